package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/viper"

	"github.com/project-orion/orion/internal/embed"
	"github.com/project-orion/orion/internal/feed"
	"github.com/project-orion/orion/internal/filter"
	"github.com/project-orion/orion/internal/llm"
	"github.com/project-orion/orion/internal/logging"
	"github.com/project-orion/orion/internal/model"
	"github.com/project-orion/orion/internal/normalize"
	"github.com/project-orion/orion/internal/notify"
	"github.com/project-orion/orion/internal/pipeline"
	"github.com/project-orion/orion/internal/store"
	"github.com/project-orion/orion/internal/vector"
)

// thesisCache outlives individual invocations so a daemon re-embeds the
// thesis only when its text actually changes.
var thesisCache = embed.NewThesisCache(time.Hour)

// app is one fully wired instance of the funnel and its collaborators.
type app struct {
	cfg       *model.Config
	snap      model.Snapshot
	store     *store.Store
	wrangler  *pipeline.Wrangler
	detector  *feed.Detector
	publisher notify.Publisher
	log       zerolog.Logger
}

func loadConfig() (*model.Config, error) {
	cfg, err := model.LoadConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newApp assembles the funnel from configuration. The thesis is re-read
// from the store here, once, so every stage of this invocation sees the
// same snapshot.
func newApp(disableSemanticCache bool) (*app, error) {
	log := logging.Setup(logLevel, logJSON)

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	openaiClient := openai.NewClient(apiKey)

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	thesis, err := st.CoreThesis(cfg.Thesis.Default)
	if err != nil {
		// CoreThesis already falls back internally; an error here means the
		// store itself is unhealthy.
		_ = st.Close()
		return nil, err
	}
	snap := model.Snapshot{Config: cfg, CoreThesis: thesis}

	embedder := embed.NewOpenAIEmbedder(openaiClient, cfg.Embedding.Model, cfg.Embedding.TruncateChars)
	gate := embed.NewGate(embedder, thesisCache, snap.CoreThesis, cfg.Filters.SimilarityThreshold)
	cache := embed.NewSemanticCache(
		vector.NewStoredIndex(st.DB()),
		cfg.SemanticCache.Threshold,
		cfg.SemanticCache.Enabled && !disableSemanticCache,
	)

	fetcher := pipeline.NewFetcher(cfg.HTTP, log)
	normalizer := normalize.New(fetcher, normalize.Options{
		Gate:        gate,
		Transcriber: normalize.NewOpenAITranscriber(openaiClient, ""),
		Audio:       normalize.MetaAudioLocator{},
		MediaClient: fetcher.MediaClient(),
		MinText:     cfg.Filters.MinTextLength,
	}, log)

	screenerProvider, err := llm.NewProvider(llm.ConfigFromStage(cfg.Cascade.Screener))
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("screener provider: %w", err)
	}
	analystProvider, err := llm.NewProvider(llm.ConfigFromStage(cfg.Cascade.Analyst))
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("analyst provider: %w", err)
	}

	var publisher notify.Publisher
	if cfg.Notify.RedisAddr != "" {
		publisher = notify.NewRedisPublisher(cfg.Notify.RedisAddr, cfg.Notify.Topic)
	} else {
		log.Warn().Msg("no redis address configured, notifications stay in-process")
		publisher = notify.NewMemoryPublisher()
	}

	wrangler := pipeline.NewWrangler(pipeline.Deps{
		Store:      st,
		Pre:        filter.NewPreFilter(cfg.Filters.Blocklist),
		Normalizer: normalizer,
		Embedder:   embedder,
		Gate:       gate,
		Cache:      cache,
		Density:    filter.NewDensityFilter(filter.NewLexicalRecognizer(), cfg.Filters.OrgThreshold, cfg.Filters.MoneyThreshold),
		Screener:   llm.NewScreener(screenerProvider, cfg.Cascade.Screener, log),
		Analyst:    llm.NewAnalyst(analystProvider, cfg.Cascade.Analyst),
		Publisher:  publisher,
		Snapshot:   snap,
		Log:        log,
	})

	return &app{
		cfg:       cfg,
		snap:      snap,
		store:     st,
		wrangler:  wrangler,
		detector:  feed.NewDetector(st, cfg.HTTP, cfg.Store.Backfill, log),
		publisher: publisher,
		log:       log,
	}, nil
}

func (a *app) Close() {
	if err := a.publisher.Close(); err != nil {
		a.log.Warn().Err(err).Msg("publisher close failed")
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("store close failed")
	}
}
