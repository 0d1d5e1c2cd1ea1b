package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/project-orion/orion/internal/model"
	"github.com/project-orion/orion/internal/worker"
)

var (
	wrangleTimeout  time.Duration
	wrangleFile     string
	noSemanticCache bool
)

// wrangleCmd represents the wrangle command
var wrangleCmd = &cobra.Command{
	Use:   "wrangle [url...]",
	Short: "Run candidate URLs through the admission funnel",
	Long: `Wrangle runs one or more candidate URLs through the full funnel:
keyword pre-filter, deduplication, normalization, thesis relevance,
semantic cache, entity density, and the model cascade. Survivors are
persisted as insights and announced.

Example:
  orion wrangle https://news.example.com/article
  orion wrangle --file urls.txt
  orion wrangle --no-semantic-cache https://news.example.com/article`,
	RunE: runWrangle,
}

func init() {
	rootCmd.AddCommand(wrangleCmd)

	wrangleCmd.Flags().DurationVar(&wrangleTimeout, "timeout", 10*time.Minute, "overall processing timeout")
	wrangleCmd.Flags().StringVar(&wrangleFile, "file", "", "file with candidate URLs, one per line")
	wrangleCmd.Flags().BoolVar(&noSemanticCache, "no-semantic-cache", false, "bypass the near-duplicate semantic cache")
}

func runWrangle(cmd *cobra.Command, args []string) error {
	urls := args
	if wrangleFile != "" {
		fromFile, err := worker.ReadURLsFromFile(wrangleFile)
		if err != nil {
			return err
		}
		urls = append(urls, fromFile...)
	}
	if len(urls) == 0 {
		return fmt.Errorf("nothing to wrangle: pass URLs or --file")
	}

	a, err := newApp(noSemanticCache)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), wrangleTimeout)
	defer cancel()

	var admitted, rejected, failed int
	for _, url := range urls {
		item := model.CandidateItem{
			URL:          url,
			Title:        url,
			DiscoveredAt: time.Now().UTC(),
		}
		out, err := a.wrangler.Process(ctx, item)
		if err != nil {
			failed++
			a.log.Error().Err(err).Str("url", url).Msg("processing failed")
			continue
		}
		if out.Admitted {
			admitted++
			fmt.Printf("admitted  %s  insight=%s\n", url, out.InsightID)
		} else {
			rejected++
			fmt.Printf("rejected  %s  at=%s reason=%s\n", url, out.RejectedAt, out.Reason)
		}
	}

	fmt.Printf("\n%d admitted, %d rejected, %d failed\n", admitted, rejected, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d items failed", failed, len(urls))
	}
	return nil
}
