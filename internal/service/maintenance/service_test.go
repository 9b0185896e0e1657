package maintenance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/artifact-cache/internal/domain"
)

// mockPruner implements Pruner for testing
type mockPruner struct {
	mu      sync.Mutex
	removed int
	err     error
	called  int
}

func (m *mockPruner) PruneOrphans(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called++
	return m.removed, m.err
}

func (m *mockPruner) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.called
}

func runFor(t *testing.T, s *Service, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()

	time.Sleep(d)
	cancel()
	s.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start() did not return after Stop()")
	}
}

func TestService_New(t *testing.T) {
	pruner := &mockPruner{}

	// Test with nil config (should use defaults)
	s := New(nil, pruner, zap.NewNop())
	if s == nil {
		t.Fatal("New() returned nil")
	}
	if s.config.PruneInterval != time.Hour || !s.config.PruneOnStart {
		t.Errorf("config = %+v", s.config)
	}

	// Zero interval falls back to the default
	s = New(&Config{}, pruner, nil)
	if s.config.PruneInterval != time.Hour {
		t.Errorf("PruneInterval = %v, want %v", s.config.PruneInterval, time.Hour)
	}
}

func TestService_PrunesOnStartAndTick(t *testing.T) {
	pruner := &mockPruner{removed: 3}
	s := New(&Config{PruneInterval: 10 * time.Millisecond, PruneOnStart: true}, pruner, zap.NewNop())

	runFor(t, s, 50*time.Millisecond)

	if got := pruner.calls(); got < 2 {
		t.Errorf("PruneOrphans called %d times, want at least 2", got)
	}
}

func TestService_NoPruneOnStart(t *testing.T) {
	pruner := &mockPruner{}
	s := New(&Config{PruneInterval: time.Hour}, pruner, zap.NewNop())

	runFor(t, s, 20*time.Millisecond)

	if got := pruner.calls(); got != 0 {
		t.Errorf("PruneOrphans called %d times, want 0", got)
	}
}

func TestService_PruneErrorsKeepLoopRunning(t *testing.T) {
	for _, err := range []error{domain.ErrAlreadyInProgress, errors.New("store offline")} {
		pruner := &mockPruner{err: err}
		s := New(&Config{PruneInterval: 5 * time.Millisecond, PruneOnStart: true}, pruner, zap.NewNop())

		runFor(t, s, 40*time.Millisecond)

		if got := pruner.calls(); got < 2 {
			t.Errorf("%v: PruneOrphans called %d times, want the loop to keep ticking", err, got)
		}
	}
}

func TestService_DoubleStart(t *testing.T) {
	s := New(&Config{PruneInterval: time.Hour}, &mockPruner{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan error, 1)
	go func() {
		started <- s.Start(ctx)
	}()

	deadline := time.Now().Add(time.Second)
	for {
		s.mu.Lock()
		running := s.running
		s.mu.Unlock()
		if running {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("service never started")
		}
		time.Sleep(time.Millisecond)
	}

	if err := s.Start(ctx); err == nil {
		t.Error("second Start() should fail while running")
	}

	s.Stop()
	if err := <-started; err != nil {
		t.Errorf("Start() error = %v", err)
	}
}
