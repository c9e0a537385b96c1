// internal/triage/engine.go
package triage

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/linnemanlabs/go-core/log"
)

const tracerName = "github.com/linnemanlabs/fbtriage/internal/triage"

const (
	// DefaultConcurrency is the number of items classified at once when
	// EngineOptions leaves it unset.
	DefaultConcurrency = 4
	// MaxConcurrency caps EngineOptions.Concurrency.
	MaxConcurrency = 64
)

// RemoteErrorMarker fills the category, urgency and action of the AI decision
// recorded for an item whose remote classification failed.
const RemoteErrorMarker = "RemoteClassificationError"

// Item outcomes, used for metrics and span attributes.
const (
	OutcomeCompared     = "compared"
	OutcomeRemoteFailed = "remote_failed"
	OutcomeBaselineOnly = "baseline_only"
	// OutcomeAborted marks an item cut short by batch cancellation. It is
	// only set on spans; aborted items are not counted as records.
	OutcomeAborted = "aborted"
)

// RecordCallback is invoked once per finished record, from worker goroutines,
// in completion order.
type RecordCallback func(ctx context.Context, rec *Record)

// EngineOptions tunes batch execution.
type EngineOptions struct {
	// Concurrency caps items classified at once. <=0 selects DefaultConcurrency.
	Concurrency int
	// RPS paces outbound LLM calls. <=0 means unlimited.
	RPS float64
	// FailFast aborts the batch on the first remote failure instead of
	// recording it on the item and continuing.
	FailFast bool
}

// EngineHooks lets callers observe engine events without coupling to a
// metrics backend. Nil fields are skipped.
type EngineHooks struct {
	OnRemoteCall func(duration float64, tokens int, err error)
	OnRecord     func(outcome string, cmp Comparison)
	OnComplete   func(e *CompleteEvent)
}

// CompleteEvent summarizes a finished Run.
type CompleteEvent struct {
	BatchID        string
	Status         Status
	Items          int
	Records        int
	RemoteFailures int
	Tokens         int
	Duration       float64
}

// Engine runs both classifiers over a batch and compares them. It holds no
// store dependency; callers decide what to do with the records.
type Engine struct {
	baseline    Baseline
	remote      *Remote
	logger      log.Logger
	hooks       EngineHooks
	concurrency int
	limiter     *rate.Limiter
	failFast    bool
}

// NewEngine creates an engine. A nil remote runs baseline-only and never
// attempts an LLM call.
func NewEngine(remote *Remote, logger log.Logger, hooks EngineHooks, opts EngineOptions) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	conc := opts.Concurrency
	if conc <= 0 {
		conc = DefaultConcurrency
	}
	if conc > MaxConcurrency {
		conc = MaxConcurrency
	}
	var limiter *rate.Limiter
	if opts.RPS > 0 {
		burst := int(opts.RPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return &Engine{
		remote:      remote,
		logger:      logger,
		hooks:       hooks,
		concurrency: conc,
		limiter:     limiter,
		failFast:    opts.FailFast,
	}
}

// RemoteStatus describes the remote classifier as seen by operators.
type RemoteStatus struct {
	Connected bool   `json:"connected"`
	State     string `json:"remote"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
}

// RemoteStatus reports whether remote classification is available.
func (e *Engine) RemoteStatus() RemoteStatus {
	if e.remote == nil {
		return RemoteStatus{State: "not connected"}
	}
	return RemoteStatus{
		Connected: true,
		State:     "connected",
		Provider:  e.remote.Provider(),
		Model:     e.remote.Model(),
	}
}

// Run classifies items and returns one record per item in input order.
// A remote failure is recorded on its item and the batch continues, unless
// FailFast is set. The error is non-nil only when the batch was aborted
// (FailFast or ctx cancellation); the records finished so far are returned with it.
func (e *Engine) Run(ctx context.Context, batchID string, items []FeedbackItem, cb RecordCallback) ([]Record, error) {
	start := time.Now()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "triage.batch", trace.WithAttributes(
		attribute.String("fbtriage.batch.id", batchID),
		attribute.Int("fbtriage.batch.items", len(items)),
		attribute.Bool("fbtriage.remote.connected", e.remote != nil),
	))
	defer span.End()

	L := e.logger.With("batch_id", batchID)

	records := make([]Record, len(items))
	filled := make([]bool, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := e.runItem(gctx, L, items[i])
			if err != nil && (e.failFast || aborted(gctx, err)) {
				return err
			}
			records[i] = rec
			filled[i] = true
			if cb != nil {
				cb(gctx, &rec)
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	out := make([]Record, 0, len(records))
	var failures, tokens int
	for i := range records {
		if !filled[i] {
			continue
		}
		r := records[i]
		out = append(out, r)
		if r.Error != "" {
			failures++
		} else if r.AIDecision != nil && r.AIDecision.Meta.Tokens != nil {
			tokens += *r.AIDecision.Meta.Tokens
		}
	}

	status := StatusComplete
	if err != nil {
		status = StatusFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	dur := time.Since(start).Seconds()
	span.SetAttributes(
		attribute.Int("fbtriage.batch.records", len(out)),
		attribute.Int("fbtriage.batch.remote_failures", failures),
		attribute.Int("gen_ai.usage.total_tokens", tokens),
	)

	if e.hooks.OnComplete != nil {
		e.hooks.OnComplete(&CompleteEvent{
			BatchID:        batchID,
			Status:         status,
			Items:          len(items),
			Records:        len(out),
			RemoteFailures: failures,
			Tokens:         tokens,
			Duration:       dur,
		})
	}

	if err != nil {
		L.Error(ctx, err, "batch aborted", "records", len(out), "items", len(items))
	} else {
		L.Info(ctx, "batch classified",
			"items", len(items),
			"remote_failures", failures,
			"tokens", tokens,
			"duration", dur,
		)
	}

	return out, err
}

func (e *Engine) runItem(ctx context.Context, L log.Logger, item FeedbackItem) (Record, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "triage.item", trace.WithAttributes(
		attribute.Int("fbtriage.item.id", item.ID),
		attribute.Int("fbtriage.item.length", len(item.Text)),
	))
	defer span.End()

	rec := Record{
		ID:               item.ID,
		Feedback:         item.Text,
		BaselineDecision: e.baseline.Classify(item.Text),
	}

	if e.remote == nil {
		span.SetAttributes(attribute.String("fbtriage.item.outcome", OutcomeBaselineOnly))
		e.onRecord(OutcomeBaselineOnly, rec.Comparison)
		return rec, nil
	}

	ai, err := e.classifyRemote(ctx, item)
	if err != nil && aborted(ctx, err) {
		// the batch is being torn down; this item did not fail on its own
		span.SetAttributes(attribute.String("fbtriage.item.outcome", OutcomeAborted))
		return rec, err
	}
	if err != nil {
		L.Error(ctx, err, "remote classification failed", "item", item.ID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "remote classification failed")
		span.SetAttributes(attribute.String("fbtriage.item.outcome", OutcomeRemoteFailed))

		marker := Decision{
			Category:        RemoteErrorMarker,
			Urgency:         RemoteErrorMarker,
			SuggestedAction: RemoteErrorMarker,
			Reasoning:       err.Error(),
		}
		rec.AIDecision = &marker
		rec.Error = err.Error()
		e.onRecord(OutcomeRemoteFailed, rec.Comparison)
		return rec, err
	}

	rec.AIDecision = &ai
	rec.Comparison = Compare(&ai, rec.BaselineDecision)

	span.SetAttributes(
		attribute.String("fbtriage.item.outcome", OutcomeCompared),
		attribute.Bool("fbtriage.item.category_match", rec.Comparison.CategoryMatch),
		attribute.Bool("fbtriage.item.urgency_match", rec.Comparison.UrgencyMatch),
		attribute.Bool("fbtriage.item.action_match", rec.Comparison.ActionMatch),
	)
	L.Info(ctx, "item classified",
		"item", item.ID,
		"ai_category", ai.Category,
		"rule_category", rec.BaselineDecision.Category,
		"category_match", rec.Comparison.CategoryMatch,
	)
	e.onRecord(OutcomeCompared, rec.Comparison)
	return rec, nil
}

func (e *Engine) classifyRemote(ctx context.Context, item FeedbackItem) (Decision, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return Decision{}, &RemoteClassificationError{Item: item.ID, Reason: "waiting for rate limiter", Err: err}
		}
	}

	start := time.Now()
	d, err := e.remote.Classify(ctx, item.Text)
	if e.hooks.OnRemoteCall != nil && !aborted(ctx, err) {
		var tokens int
		if d.Meta.Tokens != nil {
			tokens = *d.Meta.Tokens
		}
		e.hooks.OnRemoteCall(time.Since(start).Seconds(), tokens, err)
	}
	if err != nil {
		var rce *RemoteClassificationError
		if errors.As(err, &rce) {
			rce.Item = item.ID
			return Decision{}, rce
		}
		return Decision{}, &RemoteClassificationError{Item: item.ID, Err: err}
	}
	return d, nil
}

// aborted reports whether err is collateral from ctx being cancelled, as
// opposed to a failure of the call itself.
func aborted(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, context.Canceled)
}

func (e *Engine) onRecord(outcome string, cmp Comparison) {
	if e.hooks.OnRecord != nil {
		e.hooks.OnRecord(outcome, cmp)
	}
}
