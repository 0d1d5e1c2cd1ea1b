package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/project-orion/orion/internal/logging"
	"github.com/project-orion/orion/internal/store"
)

var (
	pollDaemon   bool
	pollSchedule string
	pollTimeout  time.Duration
)

// pollCmd represents the poll command
var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll configured feeds and funnel any new entries",
	Long: `Poll checks every configured feed for entries published since the
last handled one and runs the new entries through the funnel. Feed
change tokens advance only after a batch is fully handled, so an
interrupted run redelivers its batch on the next cycle.

Each cycle takes a fresh configuration and thesis snapshot, so a thesis
updated between cycles applies from the next cycle on.

Example:
  orion poll
  orion poll --daemon --schedule "@every 15m"`,
	RunE: runPoll,
}

func init() {
	rootCmd.AddCommand(pollCmd)

	pollCmd.Flags().BoolVar(&pollDaemon, "daemon", false, "keep polling on a schedule")
	pollCmd.Flags().StringVar(&pollSchedule, "schedule", "@every 15m", "cron schedule for daemon mode")
	pollCmd.Flags().DurationVar(&pollTimeout, "timeout", 10*time.Minute, "timeout for one polling cycle")
}

func runPoll(cmd *cobra.Command, args []string) error {
	if !pollDaemon {
		return pollCycle()
	}

	log := logging.Setup(logLevel, logJSON)

	c := cron.New()
	if _, err := c.AddFunc(pollSchedule, func() {
		if err := pollCycle(); err != nil {
			log.Error().Err(err).Msg("polling cycle failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", pollSchedule, err)
	}
	if _, err := c.AddFunc("@daily", func() {
		if err := sweepCycle(log); err != nil {
			log.Error().Err(err).Msg("dedup sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("register sweep job: %w", err)
	}

	log.Info().Str("schedule", pollSchedule).Msg("polling daemon started")
	c.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down")
	<-c.Stop().Done()
	return nil
}

// The store takes an exclusive directory lock, so cron jobs that open it
// must not overlap.
var cycleMu sync.Mutex

// pollCycle assembles a fresh app (and with it a fresh thesis snapshot),
// drains every feed once, and tears the app down again.
func pollCycle() error {
	cycleMu.Lock()
	defer cycleMu.Unlock()

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(a.cfg.Feeds) == 0 {
		return fmt.Errorf("no feeds configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()

	var admitted, items, failures int
	for _, batch := range a.detector.PollAll(ctx, a.cfg.Feeds) {
		out := a.wrangler.Drain(ctx, batch)
		items += len(batch.Items)
		failures += len(out.Errors)
		for _, o := range out.Outcomes {
			if o.Admitted {
				admitted++
			}
		}
	}

	a.log.Info().Int("items", items).Int("admitted", admitted).Int("failures", failures).Msg("polling cycle complete")
	if failures > 0 {
		return fmt.Errorf("%d items failed this cycle", failures)
	}
	return nil
}

// sweepCycle reclaims expired dedup records in daemon mode, sparing a
// separate scheduled `orion sweep` deployment.
func sweepCycle(log zerolog.Logger) error {
	cycleMu.Lock()
	defer cycleMu.Unlock()

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
	log.Info().Int("removed", removed).Stringer("retention", cfg.Store.Retention).Msg("dedup sweep complete")
	return nil
}
