package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/project-orion/orion/internal/logging"
	"github.com/project-orion/orion/internal/store"
)

// sweepCmd represents the sweep command
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove dedup records older than the retention window",
	Long: `Sweep deletes deduplication records whose retention window has
passed. Expired records already stop blocking reprocessing on their
own; sweeping merely reclaims the space.`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	log := logging.Setup(logLevel, logJSON)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn().Err(err).Msg("store close failed")
		}
	}()

	removed, err := st.Sweep(cfg.Store.Retention)
	if err != nil {
		return err
	}

	fmt.Printf("removed %d expired dedup records (retention %s)\n", removed, cfg.Store.Retention)
	return nil
}
