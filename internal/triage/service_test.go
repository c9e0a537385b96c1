package triage

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/linnemanlabs/go-core/log"
)

// mockStore is a copying in-memory Store that records every Put.
type mockStore struct {
	mu      sync.Mutex
	batches map[string]*Batch
	puts    []Batch
	putErr  error
}

func newMockStore() *mockStore {
	return &mockStore{batches: make(map[string]*Batch)}
}

func (m *mockStore) Get(_ context.Context, id string) (*Batch, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, false, nil
	}
	cp := *b
	cp.Records = slices.Clone(b.Records)
	return &cp, true, nil
}

func (m *mockStore) Put(_ context.Context, b *Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	cp := *b
	cp.Records = slices.Clone(b.Records)
	m.batches[b.ID] = &cp
	m.puts = append(m.puts, cp)
	return nil
}

func (m *mockStore) history() []Batch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.puts)
}

type mockNotifier struct {
	mu    sync.Mutex
	sent  []*Batch
	err   error
	calls chan struct{}
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{calls: make(chan struct{}, 8)}
}

func (n *mockNotifier) Send(_ context.Context, b *Batch) error {
	n.mu.Lock()
	cp := *b
	n.sent = append(n.sent, &cp)
	n.mu.Unlock()
	n.calls <- struct{}{}
	return n.err
}

// waitFinished polls the store until the batch leaves pending/in_progress.
func waitFinished(t *testing.T, svc *Service, id string) *Batch {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		b, ok, err := svc.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if ok && (b.Status == StatusComplete || b.Status == StatusFailed) {
			return b
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("batch %s did not finish", id)
	return nil
}

func TestService_SubmitEmpty(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	engine := NewEngine(nil, log.Nop(), m.Hooks(), EngineOptions{})
	svc := NewService(newMockStore(), engine, log.Nop(), m, nil)

	_, err := svc.Submit(context.Background(), "empty.txt", nil)
	if !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("error = %v, want ErrEmptyBatch", err)
	}
	if got := testutil.ToFloat64(m.SubmitsTotal.WithLabelValues("empty")); got != 1 {
		t.Errorf("submits{empty} = %v, want 1", got)
	}
}

func TestService_SubmitStoreError(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	store.putErr = errors.New("disk full")
	svc := NewService(store, NewEngine(nil, nil, EngineHooks{}, EngineOptions{}), nil, nil, nil)

	if _, err := svc.Submit(context.Background(), "f.txt", NewItems([]string{"a"})); err == nil {
		t.Fatal("expected store error")
	}
}

func TestService_SubmitCompletesBatch(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	engine := NewEngine(NewRemote(echoProvider(), time.Second), log.Nop(), m.Hooks(), EngineOptions{Concurrency: 2})
	store := newMockStore()
	notifier := newMockNotifier()
	svc := NewService(store, engine, log.Nop(), m, notifier)

	res, err := svc.Submit(context.Background(), "feedback.txt", testItems())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(res.ID) != 8 {
		t.Errorf("batch ID = %q, want 8 chars", res.ID)
	}
	if res.Items != 4 {
		t.Errorf("items = %d, want 4", res.Items)
	}

	b := waitFinished(t, svc, res.ID)
	if b.Status != StatusComplete {
		t.Fatalf("status = %q, want complete (error %q)", b.Status, b.Error)
	}
	if b.Source != "feedback.txt" || !b.Remote {
		t.Errorf("source/remote = %q/%v", b.Source, b.Remote)
	}
	if b.Total != 4 || b.Done != 4 || len(b.Records) != 4 {
		t.Errorf("total/done/records = %d/%d/%d, want 4/4/4", b.Total, b.Done, len(b.Records))
	}
	for i, r := range b.Records {
		if r.ID != i+1 {
			t.Errorf("records[%d].ID = %d, want %d", i, r.ID, i+1)
		}
	}
	if b.CompletedAt.IsZero() {
		t.Error("CompletedAt not set")
	}

	select {
	case <-notifier.calls:
	case <-time.After(5 * time.Second):
		t.Fatal("notifier not called")
	}

	// the first Put is the pending batch; every progress snapshot keeps records sorted.
	hist := store.history()
	if hist[0].Status != StatusPending {
		t.Errorf("first put status = %q, want pending", hist[0].Status)
	}
	for _, snap := range hist {
		if !slices.IsSortedFunc(snap.Records, func(a, b Record) int { return a.ID - b.ID }) {
			t.Errorf("snapshot records not sorted by ID: done=%d", snap.Done)
		}
		if snap.Done != len(snap.Records) {
			t.Errorf("snapshot done=%d but %d records", snap.Done, len(snap.Records))
		}
	}

	if got := testutil.ToFloat64(m.SubmitsTotal.WithLabelValues("accepted")); got != 1 {
		t.Errorf("submits{accepted} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ItemsTotal.WithLabelValues(OutcomeCompared)); got != 4 {
		t.Errorf("items{compared} = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.BatchesTotal.WithLabelValues(string(StatusComplete))); got != 1 {
		t.Errorf("batches{complete} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RemoteTokens); got != 80 {
		t.Errorf("llm tokens = %v, want 80", got)
	}
}

func TestService_NotConnectedBaselineOnly(t *testing.T) {
	t.Parallel()

	svc := NewService(newMockStore(), NewEngine(nil, log.Nop(), EngineHooks{}, EngineOptions{}), log.Nop(), nil, nil)

	st := svc.Status()
	if st.Connected || st.State != "not connected" {
		t.Errorf("status = %+v, want not connected", st)
	}

	res, err := svc.Submit(context.Background(), "f.txt", testItems())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	b := waitFinished(t, svc, res.ID)
	if b.Status != StatusComplete || b.Remote {
		t.Errorf("status/remote = %q/%v, want complete/false", b.Status, b.Remote)
	}
	for _, r := range b.Records {
		if r.AIDecision != nil {
			t.Errorf("record %d has AI decision while not connected", r.ID)
		}
	}
}

func TestService_FailFastMarksFailed(t *testing.T) {
	t.Parallel()

	p := &mockProvider{fn: func(_ context.Context, _ *CompletionRequest) (*CompletionResponse, error) {
		return nil, errors.New("invalid api key")
	}}
	engine := NewEngine(NewRemote(p, time.Second), log.Nop(), EngineHooks{}, EngineOptions{FailFast: true})
	notifier := newMockNotifier()
	svc := NewService(newMockStore(), engine, log.Nop(), nil, notifier)

	res, err := svc.Submit(context.Background(), "f.txt", testItems())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	b := waitFinished(t, svc, res.ID)
	if b.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", b.Status)
	}
	if !strings.Contains(b.Error, "invalid api key") {
		t.Errorf("error = %q, want cause", b.Error)
	}

	select {
	case <-notifier.calls:
	case <-time.After(5 * time.Second):
		t.Fatal("notifier not called for failed batch")
	}
}

func TestService_SubmitOutlivesRequestContext(t *testing.T) {
	t.Parallel()

	p := &mockProvider{fn: func(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
		time.Sleep(10 * time.Millisecond)
		return echoProvider().fn(ctx, req)
	}}
	svc := NewService(newMockStore(), NewEngine(NewRemote(p, time.Second), log.Nop(), EngineHooks{}, EngineOptions{}), log.Nop(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	res, err := svc.Submit(ctx, "f.txt", testItems())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	cancel()

	b := waitFinished(t, svc, res.ID)
	if b.Status != StatusComplete {
		t.Errorf("status = %q, want complete after request cancel", b.Status)
	}
}

func TestService_NotifierErrorIgnored(t *testing.T) {
	t.Parallel()

	notifier := newMockNotifier()
	notifier.err = errors.New("slack down")
	svc := NewService(newMockStore(), NewEngine(nil, log.Nop(), EngineHooks{}, EngineOptions{}), log.Nop(), nil, notifier)

	res, err := svc.Submit(context.Background(), "f.txt", testItems())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	select {
	case <-notifier.calls:
	case <-time.After(5 * time.Second):
		t.Fatal("notifier not called")
	}
	b := waitFinished(t, svc, res.ID)
	if b.Status != StatusComplete {
		t.Errorf("status = %q, want complete despite notifier error", b.Status)
	}
}

func TestService_GetMissing(t *testing.T) {
	t.Parallel()

	svc := NewService(newMockStore(), NewEngine(nil, nil, EngineHooks{}, EngineOptions{}), nil, nil, nil)
	if _, ok, err := svc.Get(context.Background(), "NOPE0000"); ok || err != nil {
		t.Errorf("Get missing = ok:%v err:%v, want false/nil", ok, err)
	}
}
