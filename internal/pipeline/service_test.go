package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// mockStore implements Store for testing.
type mockStore struct {
	mu     sync.Mutex
	runs   map[string]*Run
	putErr error
}

func newMockStore() *mockStore {
	return &mockStore{runs: make(map[string]*Run)}
}

func (m *mockStore) Get(_ context.Context, id string) (*Run, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

func (m *mockStore) Put(_ context.Context, r *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	cp := *r
	m.runs[r.ID] = &cp
	return nil
}

func (m *mockStore) List(_ context.Context, _ int) ([]*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Run, 0, len(m.runs))
	for _, r := range m.runs {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

// mockRunner returns rep or err. When release is non-nil, Run blocks until
// it is closed.
type mockRunner struct {
	mu      sync.Mutex
	rep     *Report
	err     error
	release chan struct{}
	opts    []Options
}

func (m *mockRunner) Run(_ context.Context, opts Options) (*Report, error) {
	m.mu.Lock()
	m.opts = append(m.opts, opts)
	release := m.release
	m.mu.Unlock()
	if release != nil {
		<-release
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.rep, nil
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []*Report
	err  error
}

func (m *mockNotifier) Send(_ context.Context, r *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, r)
	return m.err
}

func reportWith(included int) *Report {
	return &Report{
		StartedAt:   time.Now().Add(-time.Second),
		CompletedAt: time.Now(),
		Summary:     Summary{Collected: included, Included: included},
	}
}

func TestSubmit_AsyncRunCompletes(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	n := &mockNotifier{}
	svc := NewService(store, &mockRunner{rep: reportWith(2)}, defaultOpts(), log.Nop(), ServiceHooks{}, n)

	sr, err := svc.Submit(context.Background(), RunRequest{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sr.Skipped || sr.ID == "" {
		t.Fatalf("submit result = %+v", sr)
	}
	svc.Wait()

	r, ok, err := svc.Get(context.Background(), sr.ID)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if r.Status != RunComplete {
		t.Errorf("status = %q, want %q", r.Status, RunComplete)
	}
	if r.Report == nil || r.Report.Summary.Included != 2 {
		t.Errorf("report = %+v", r.Report)
	}
	if r.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set")
	}
	if len(n.sent) != 1 {
		t.Errorf("notifications = %d, want 1", len(n.sent))
	}
}

func TestSubmit_SkipsWhileRunActive(t *testing.T) {
	t.Parallel()

	runner := &mockRunner{rep: reportWith(0), release: make(chan struct{})}
	var results []string
	var mu sync.Mutex
	hooks := ServiceHooks{OnSubmit: func(r string) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}}
	svc := NewService(newMockStore(), runner, defaultOpts(), log.Nop(), hooks)

	first, err := svc.Submit(context.Background(), RunRequest{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	second, err := svc.Submit(context.Background(), RunRequest{DryRun: true})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !second.Skipped || second.Reason != "run in progress" {
		t.Errorf("second submit = %+v, want skipped", second)
	}
	if second.ID != first.ID {
		t.Errorf("skipped ID = %q, want active run %q", second.ID, first.ID)
	}

	close(runner.release)
	svc.Wait()

	third, err := svc.Submit(context.Background(), RunRequest{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if third.Skipped {
		t.Error("expected submit after completion to be accepted")
	}
	svc.Wait()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"accepted", "skipped", "accepted"}
	if len(results) != len(want) {
		t.Fatalf("hook results = %v, want %v", results, want)
	}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("hook result[%d] = %q, want %q", i, results[i], want[i])
		}
	}
}

func TestSubmit_StoreError(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	store.putErr = errors.New("store full")
	svc := NewService(store, &mockRunner{}, defaultOpts(), log.Nop(), ServiceHooks{})

	if _, err := svc.Submit(context.Background(), RunRequest{}); err == nil {
		t.Fatal("expected error from store")
	}
	// a failed submit must not hold the active slot
	store.mu.Lock()
	store.putErr = nil
	store.mu.Unlock()
	sr, err := svc.Submit(context.Background(), RunRequest{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sr.Skipped {
		t.Error("expected second submit to be accepted")
	}
	svc.Wait()
}

func TestSubmit_RunFailure(t *testing.T) {
	t.Parallel()

	n := &mockNotifier{}
	svc := NewService(newMockStore(), &mockRunner{err: context.Canceled}, defaultOpts(), log.Nop(), ServiceHooks{}, n)

	sr, err := svc.Submit(context.Background(), RunRequest{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	svc.Wait()

	r, _, _ := svc.Get(context.Background(), sr.ID)
	if r.Status != RunFailed {
		t.Errorf("status = %q, want %q", r.Status, RunFailed)
	}
	if r.Error == "" {
		t.Error("expected error to be recorded")
	}
	if len(n.sent) != 0 {
		t.Error("failed runs should not be delivered")
	}
}

func TestSubmit_SurvivesRequestCancel(t *testing.T) {
	t.Parallel()

	svc := NewService(newMockStore(), &mockRunner{rep: reportWith(1)}, defaultOpts(), log.Nop(), ServiceHooks{})

	ctx, cancel := context.WithCancel(context.Background())
	sr, err := svc.Submit(ctx, RunRequest{})
	cancel()
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	svc.Wait()

	r, _, _ := svc.Get(context.Background(), sr.ID)
	if r.Status != RunComplete {
		t.Errorf("status = %q, want %q", r.Status, RunComplete)
	}
}

func TestService_Options(t *testing.T) {
	t.Parallel()

	svc := NewService(newMockStore(), &mockRunner{}, defaultOpts(), log.Nop(), ServiceHooks{})

	tests := []struct {
		name string
		req  RunRequest
		want func(Options) bool
	}{
		{"defaults", RunRequest{}, func(o Options) bool {
			return !o.DryRun && o.DedupEnabled && o.MaxAgeOverride == 0 && o.RelevanceThreshold == nil
		}},
		{"dry run", RunRequest{DryRun: true}, func(o Options) bool { return o.DryRun }},
		{"no dedup", RunRequest{NoDedup: true}, func(o Options) bool { return !o.DedupEnabled }},
		{"max age", RunRequest{MaxAgeDays: 3}, func(o Options) bool { return o.MaxAgeOverride == 3 && o.MaxAgeDays == 7 }},
		{"threshold", RunRequest{RelevanceThreshold: threshold(0.8)}, func(o Options) bool {
			return o.RelevanceThreshold != nil && *o.RelevanceThreshold == 0.8
		}},
		{"zero threshold", RunRequest{RelevanceThreshold: threshold(0)}, func(o Options) bool {
			return o.RelevanceThreshold != nil && *o.RelevanceThreshold == 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := svc.Options(tt.req); !tt.want(got) {
				t.Errorf("Options(%+v) = %+v", tt.req, got)
			}
		})
	}
}
