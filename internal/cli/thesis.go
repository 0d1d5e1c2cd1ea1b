package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/project-orion/orion/internal/logging"
	"github.com/project-orion/orion/internal/store"
)

// thesisCmd represents the thesis command
var thesisCmd = &cobra.Command{
	Use:   "thesis",
	Short: "View or update the dynamic core thesis",
	Long: `The core thesis is the text every candidate's relevance is scored
against. It lives in the store so it can change without a redeploy;
running invocations pick the new text up on their next snapshot.`,
}

var thesisShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current core thesis",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(st *store.Store, cfg thesisConfig) error {
			thesis, err := st.CoreThesis(cfg.fallback)
			if err != nil {
				return err
			}
			fmt.Println(thesis)
			return nil
		})
	},
}

var thesisSetCmd = &cobra.Command{
	Use:   "set <text>",
	Short: "Replace the core thesis",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.TrimSpace(strings.Join(args, " "))
		if text == "" {
			return fmt.Errorf("thesis text must not be empty")
		}
		return withStore(func(st *store.Store, _ thesisConfig) error {
			if err := st.SetCoreThesis(text); err != nil {
				return err
			}
			fmt.Println("core thesis updated, applies from the next invocation")
			return nil
		})
	},
}

type thesisConfig struct {
	fallback string
}

func withStore(fn func(st *store.Store, cfg thesisConfig) error) error {
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

	return fn(st, thesisConfig{fallback: cfg.Thesis.Default})
}

func init() {
	rootCmd.AddCommand(thesisCmd)
	thesisCmd.AddCommand(thesisShowCmd)
	thesisCmd.AddCommand(thesisSetCmd)
}
