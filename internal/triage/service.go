package triage

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// Notifier delivers a finished batch somewhere humans will see it.
type Notifier interface {
	Send(ctx context.Context, b *Batch) error
}

// SubmitResult is the outcome of submitting feedback for triage.
type SubmitResult struct {
	ID    string `json:"batch_id"`
	Items int    `json:"items"`
}

// Service is the business boundary for triage operations.
type Service struct {
	store    Store
	engine   *Engine
	logger   log.Logger
	metrics  *Metrics
	notifier Notifier
}

// NewService creates a new triage service. metrics and notifier may be nil.
func NewService(store Store, engine *Engine, logger log.Logger, metrics *Metrics, notifier Notifier) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:    store,
		engine:   engine,
		logger:   logger,
		metrics:  metrics,
		notifier: notifier,
	}
}

// Status reports whether the remote classifier is connected.
func (s *Service) Status() RemoteStatus {
	return s.engine.RemoteStatus()
}

// Submit registers a new batch and classifies it in the background.
func (s *Service) Submit(ctx context.Context, source string, items []FeedbackItem) (*SubmitResult, error) {
	if len(items) == 0 {
		s.countSubmit("empty")
		return nil, ErrEmptyBatch
	}

	id := NewBatchID()
	b := &Batch{
		ID:        id,
		Source:    source,
		Status:    StatusPending,
		Remote:    s.engine.RemoteStatus().Connected,
		Total:     len(items),
		Records:   []Record{},
		CreatedAt: time.Now(),
	}
	if err := s.store.Put(ctx, b); err != nil {
		s.countSubmit("error")
		return nil, err
	}
	s.countSubmit("accepted")

	// detach from the request; the batch outlives it.
	go s.runBatch(context.WithoutCancel(ctx), id, items)

	return &SubmitResult{ID: id, Items: len(items)}, nil
}

// Get retrieves a batch by ID.
func (s *Service) Get(ctx context.Context, id string) (*Batch, bool, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) runBatch(ctx context.Context, id string, items []FeedbackItem) {
	L := s.logger.With("batch_id", id)

	b, ok, err := s.store.Get(ctx, id)
	if err != nil || !ok {
		L.Error(ctx, err, "failed to fetch batch for triage")
		return
	}

	b.Status = StatusInProgress
	if err := s.store.Put(ctx, b); err != nil {
		L.Error(ctx, err, "failed to update status to in_progress")
		return
	}

	// publish progress as records land; keep them ordered by item ID.
	var mu sync.Mutex
	partial := make([]Record, 0, len(items))
	progress := func(ctx context.Context, rec *Record) {
		mu.Lock()
		defer mu.Unlock()
		i, _ := slices.BinarySearchFunc(partial, rec.ID, func(r Record, id int) int { return cmp.Compare(r.ID, id) })
		partial = slices.Insert(partial, i, *rec)
		snap := *b
		snap.Done = len(partial)
		snap.Records = partial
		if err := s.store.Put(ctx, &snap); err != nil {
			L.Warn(ctx, "failed to publish batch progress", "error", err, "done", len(partial))
		}
	}

	records, runErr := s.engine.Run(ctx, id, items, progress)

	mu.Lock()
	defer mu.Unlock()

	b.Records = records
	b.Done = len(records)
	b.CompletedAt = time.Now()
	b.Duration = b.CompletedAt.Sub(b.CreatedAt).Seconds()
	b.Status = StatusComplete
	if runErr != nil {
		b.Status = StatusFailed
		b.Error = runErr.Error()
	}

	if err := s.store.Put(ctx, b); err != nil {
		L.Error(ctx, err, "failed to persist batch result")
	}

	if s.notifier != nil {
		if err := s.notifier.Send(ctx, b); err != nil {
			L.Error(ctx, err, "failed to send batch notification")
		}
	}

	sum := Summarize(records)
	L.Info(ctx, "batch complete",
		"status", b.Status,
		"records", len(records),
		"remote_failures", sum.RemoteFailures,
		"category_agreement", sum.CategoryRate,
		"duration", b.Duration,
	)
}

func (s *Service) countSubmit(result string) {
	if s.metrics != nil {
		s.metrics.SubmitsTotal.WithLabelValues(result).Inc()
	}
}
