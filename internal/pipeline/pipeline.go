// Package pipeline orchestrates the admission funnel: every discovered
// candidate passes through a fixed sequence of narrowing stages, and only
// survivors of all of them become persisted insights.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/project-orion/orion/internal/embed"
	"github.com/project-orion/orion/internal/feed"
	"github.com/project-orion/orion/internal/filter"
	"github.com/project-orion/orion/internal/llm"
	"github.com/project-orion/orion/internal/model"
	"github.com/project-orion/orion/internal/normalize"
	"github.com/project-orion/orion/internal/notify"
	"github.com/project-orion/orion/internal/store"
	"github.com/project-orion/orion/internal/worker"
)

// Wrangler runs candidates through the funnel. Stages are strictly ordered
// and the funnel narrows monotonically: once a stage rejects, nothing later
// runs for that item.
type Wrangler struct {
	store      *store.Store
	pre        *filter.PreFilter
	normalizer *normalize.Normalizer
	embedder   embed.Embedder
	gate       *embed.Gate
	cache      *embed.SemanticCache
	density    *filter.DensityFilter
	screener   *llm.Screener
	analyst    *llm.Analyst
	publisher  notify.Publisher
	snap       model.Snapshot
	workers    int
	log        zerolog.Logger
}

// Deps carries the Wrangler's collaborators; every one of them is built
// from the same per-invocation snapshot.
type Deps struct {
	Store      *store.Store
	Pre        *filter.PreFilter
	Normalizer *normalize.Normalizer
	Embedder   embed.Embedder
	Gate       *embed.Gate
	Cache      *embed.SemanticCache
	Density    *filter.DensityFilter
	Screener   *llm.Screener
	Analyst    *llm.Analyst
	Publisher  notify.Publisher
	Snapshot   model.Snapshot
	Log        zerolog.Logger
}

// NewWrangler assembles the funnel.
func NewWrangler(d Deps) *Wrangler {
	workers := d.Snapshot.Config.Concurrency.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Wrangler{
		store:      d.Store,
		pre:        d.Pre,
		normalizer: d.Normalizer,
		embedder:   d.Embedder,
		gate:       d.Gate,
		cache:      d.Cache,
		density:    d.Density,
		screener:   d.Screener,
		analyst:    d.Analyst,
		publisher:  d.Publisher,
		snap:       d.Snapshot,
		workers:    workers,
		log:        d.Log.With().Str("component", "wrangler").Logger(),
	}
}

// Outcome describes how one candidate moved through the funnel. Trace lists
// the stages that actually executed, in order.
type Outcome struct {
	Item       model.CandidateItem
	Admitted   bool
	RejectedAt model.Stage
	Reason     string
	Trace      []model.Stage
	InsightID  string
}

func (o *Outcome) reject(stage model.Stage, reason string) *Outcome {
	o.RejectedAt = stage
	o.Reason = reason
	return o
}

// Process runs one candidate through every stage. An error return means an
// infrastructure fault (network, model API, storage): the item's decision is
// not final and no dedup record is written, so a retry can reprocess it.
func (w *Wrangler) Process(ctx context.Context, item model.CandidateItem) (*Outcome, error) {
	out := &Outcome{Item: item}
	retention := w.snap.Config.Store.Retention
	log := w.log.With().Str("url", item.URL).Logger()

	// Stage 1: keyword pre-filter. Rejections here are so cheap they never
	// consume a dedup record.
	out.Trace = append(out.Trace, model.StagePreFilter)
	if !w.pre.Admit(item.Title, item.URL) {
		log.Debug().Msg("blocklisted topic")
		return out.reject(model.StagePreFilter, "blocklisted topic"), nil
	}

	// Stage 2: exact dedup on content fingerprint and URL.
	out.Trace = append(out.Trace, model.StageFingerprint)
	fpKey, urlKey := item.Fingerprint(), item.URLKey()
	for _, key := range []string{fpKey, urlKey} {
		seen, err := w.store.Seen(key, retention)
		if err != nil {
			return nil, err
		}
		if seen {
			log.Debug().Str("key", key).Msg("already handled")
			return out.reject(model.StageFingerprint, "duplicate"), nil
		}
	}

	// Stage 3: normalization. A nil result is a final filtering decision
	// (no meaningful text, or video metadata below the relevance gate).
	out.Trace = append(out.Trace, model.StageNormalize)
	res, err := w.normalizer.Normalize(ctx, item.URL)
	if err != nil {
		return nil, fmt.Errorf("normalize %s: %w", item.URL, err)
	}
	if res == nil {
		if err := w.recordRejected(fpKey, urlKey, item.URL); err != nil {
			return nil, err
		}
		return out.reject(model.StageNormalize, "no usable text"), nil
	}
	item.Text = res.Text
	out.Item = item

	// Stage 4: embed once, reuse the vector for both the thesis gate and
	// the semantic cache.
	out.Trace = append(out.Trace, model.StageEmbedding)
	vec, err := w.embedder.Embed(ctx, item.Text)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", item.URL, err)
	}
	admit, sim, err := w.gate.AdmitVector(ctx, vec)
	if err != nil {
		return nil, err
	}
	if !admit {
		log.Info().Float64("similarity", sim).Msg("below thesis relevance threshold")
		if err := w.recordRejected(fpKey, urlKey, item.URL); err != nil {
			return nil, err
		}
		return out.reject(model.StageEmbedding, "thesis relevance below threshold"), nil
	}

	// Stage 5: near-duplicate check against previously admitted content.
	out.Trace = append(out.Trace, model.StageSemanticCache)
	hit, err := w.cache.Lookup(ctx, vec)
	if err != nil {
		return nil, err
	}
	if hit != nil {
		log.Info().Str("duplicate_of", hit.ID).Float64("similarity", hit.Similarity).Msg("semantic duplicate")
		if err := w.recordRejected(fpKey, urlKey, item.URL); err != nil {
			return nil, err
		}
		return out.reject(model.StageSemanticCache, "semantic duplicate"), nil
	}

	// Stage 6: entity density.
	out.Trace = append(out.Trace, model.StageEntity)
	if !w.density.Admit(item.Text) {
		log.Debug().Msg("insufficient entity density")
		if err := w.recordRejected(fpKey, urlKey, item.URL); err != nil {
			return nil, err
		}
		return out.reject(model.StageEntity, "insufficient entity density"), nil
	}

	// Stage 7: cheap screener triage.
	out.Trace = append(out.Trace, model.StageScreener)
	decision, err := w.screener.Screen(ctx, item.Text)
	if err != nil {
		return nil, err
	}
	if !decision.IsHighPriority {
		log.Info().Str("reason", decision.Reason).Msg("screened out")
		if err := w.recordRejected(fpKey, urlKey, item.URL); err != nil {
			return nil, err
		}
		return out.reject(model.StageScreener, decision.Reason), nil
	}

	// Stage 8: full analysis. Failures here are infrastructure errors so
	// the item stays eligible for a retry.
	out.Trace = append(out.Trace, model.StageAnalyst)
	analysis, err := w.analyst.Analyze(ctx, item.Text)
	if err != nil {
		return nil, err
	}

	// Stage 9: persist, index, record, notify.
	out.Trace = append(out.Trace, model.StagePersist)
	insightID, err := w.persist(ctx, item, res.Modality, analysis, vec)
	if err != nil {
		return nil, err
	}
	if err := w.recordPublished(fpKey, urlKey, item.URL); err != nil {
		return nil, err
	}

	out.Admitted = true
	out.InsightID = insightID
	log.Info().Str("insight_id", insightID).Msg("insight created")
	return out, nil
}

func (w *Wrangler) persist(ctx context.Context, item model.CandidateItem, modality model.Modality, analysis *model.Analysis, vec []float32) (string, error) {
	kind := model.KindArticleInsight
	if modality == model.ModalityVideo {
		kind = model.KindVideoInsight
	}

	insight := &model.Insight{
		ID:               model.InsightID(item.URL),
		SourceURL:        item.URL,
		ExtractedAt:      time.Now().UTC(),
		Kind:             kind,
		Summary:          analysis.Summary,
		Sentiment:        model.Sentiment(analysis.Sentiment),
		SentimentReason:  analysis.SentimentReason,
		RelevantTickers:  analysis.RelevantTickers,
		Confidence:       analysis.Confidence,
		ExtractorVersion: model.ExtractorVersion,
		Embedding:        vec,
	}
	if err := w.store.SaveInsight(insight); err != nil {
		return "", err
	}
	if err := w.cache.Admit(ctx, insight.ID, vec); err != nil {
		return "", err
	}

	// The insight is durable at this point. A lost notification leaves an
	// orphan that consumers can find by scanning the store, so publish
	// failure is a warning, not a rollback.
	if err := w.publisher.Publish(ctx, notify.Notification{InsightID: insight.ID}); err != nil {
		w.log.Warn().Err(err).Str("insight_id", insight.ID).Msg("insight persisted but notification failed")
	}

	return insight.ID, nil
}

func (w *Wrangler) recordRejected(fpKey, urlKey, url string) error {
	return w.record(fpKey, urlKey, url, store.OutcomeRejected)
}

func (w *Wrangler) recordPublished(fpKey, urlKey, url string) error {
	return w.record(fpKey, urlKey, url, store.OutcomePublished)
}

// record marks both identities of an item as finally handled. Called only
// after the admit/reject decision is final.
func (w *Wrangler) record(fpKey, urlKey, url string, outcome store.Outcome) error {
	if err := w.store.Record(fpKey, url, outcome); err != nil {
		return err
	}
	return w.store.Record(urlKey, url, outcome)
}

// itemJob adapts one candidate to the worker pool.
type itemJob struct {
	wrangler *Wrangler
	item     model.CandidateItem
}

type itemResult struct {
	outcome *Outcome
	err     error
}

func (r *itemResult) Err() error { return r.err }

func (j *itemJob) Execute(ctx context.Context) worker.Result {
	outcome, err := j.wrangler.Process(ctx, j.item)
	return &itemResult{outcome: outcome, err: err}
}

// BatchOutcome summarizes one feed batch.
type BatchOutcome struct {
	Feed      string
	Outcomes  []*Outcome
	Errors    []error
	Committed bool
}

// Drain processes all items of a feed batch through a bounded worker pool
// and commits the feed's change token only when every item reached a final
// decision. A withheld commit makes the next poll redeliver the batch;
// finalized items then skip out at the dedup stage.
func (w *Wrangler) Drain(ctx context.Context, batch *feed.Batch) *BatchOutcome {
	out := &BatchOutcome{Feed: batch.Feed}
	if len(batch.Items) > 0 {
		jobs := make([]worker.Job, 0, len(batch.Items))
		for _, item := range batch.Items {
			jobs = append(jobs, &itemJob{wrangler: w, item: item})
		}
		results, err := worker.NewPool(w.workers).Run(ctx, jobs)
		if err != nil {
			// Some items were never dispatched; withholding the commit
			// below redelivers them next cycle.
			w.log.Warn().Err(err).Str("feed", batch.Feed).Msg("batch interrupted before every item ran")
			out.Errors = append(out.Errors, err)
		}
		for _, res := range results {
			r := res.(*itemResult)
			if r.err != nil {
				w.log.Error().Err(r.err).Str("feed", batch.Feed).Msg("item processing failed")
				out.Errors = append(out.Errors, r.err)
				continue
			}
			out.Outcomes = append(out.Outcomes, r.outcome)
		}
	}

	if len(out.Errors) > 0 {
		w.log.Warn().Str("feed", batch.Feed).Int("failed", len(out.Errors)).
			Msg("withholding feed token advance, batch will be redelivered")
		return out
	}
	if err := batch.Commit(); err != nil {
		w.log.Error().Err(err).Str("feed", batch.Feed).Msg("feed token advance failed")
		out.Errors = append(out.Errors, err)
		return out
	}
	out.Committed = true
	return out
}
