package selector

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/vertextoedge/artifact-cache/internal/domain"
	"github.com/vertextoedge/artifact-cache/internal/port"
)

// fixedReporter returns the same report and counts calls
type fixedReporter struct {
	report domain.CapabilityReport
	calls  int
}

func (r *fixedReporter) GetFullReport(ctx context.Context) *domain.CapabilityReport {
	r.calls++
	report := r.report
	report.RecommendedStrategy = report.Recommend()
	return &report
}

// stubBackend implements port.Backend for testing
type stubBackend struct {
	kind domain.BackendKind
}

func (b *stubBackend) Kind() domain.BackendKind { return b.kind }
func (b *stubBackend) LoadModel(ctx context.Context, cb *domain.Callbacks) (bool, error) {
	return true, nil
}
func (b *stubBackend) IsModelLoaded() bool { return false }
func (b *stubBackend) Progress() float64   { return 0 }
func (b *stubBackend) Generate(ctx context.Context, prompt string, opts port.GenerateOptions) (string, error) {
	return "", nil
}
func (b *stubBackend) UnloadModel(ctx context.Context) error              { return nil }
func (b *stubBackend) ClearModelCache(ctx context.Context) (bool, error) { return true, nil }

func allFactories() map[domain.BackendKind]Factory {
	factories := map[domain.BackendKind]Factory{}
	for _, kind := range domain.KnownBackends {
		kind := kind
		factories[kind] = func() (port.Backend, error) {
			return &stubBackend{kind: kind}, nil
		}
	}
	return factories
}

func TestService_SelectBackend(t *testing.T) {
	tests := []struct {
		name       string
		report     domain.CapabilityReport
		forced     domain.BackendKind
		want       domain.BackendKind
		wantProbes int
	}{
		{
			name:       "accelerated beats fallback",
			report:     domain.CapabilityReport{AcceleratedGPUSupported: true, FallbackGPUSupported: true, PerformanceTier: domain.TierHigh},
			want:       domain.BackendAccelerated,
			wantProbes: 1,
		},
		{
			name:       "fallback graphics",
			report:     domain.CapabilityReport{FallbackGPUSupported: true, PerformanceTier: domain.TierLow},
			want:       domain.BackendFallback,
			wantProbes: 1,
		},
		{
			name:       "cpu for medium tier",
			report:     domain.CapabilityReport{PerformanceTier: domain.TierMedium},
			want:       domain.BackendCPU,
			wantProbes: 1,
		},
		{
			name:       "remote for low tier",
			report:     domain.CapabilityReport{PerformanceTier: domain.TierLow, IsMobile: true},
			want:       domain.BackendRemote,
			wantProbes: 1,
		},
		{
			name:       "forced remote ignores a capable device",
			report:     domain.CapabilityReport{AcceleratedGPUSupported: true, PerformanceTier: domain.TierHigh},
			forced:     domain.BackendRemote,
			want:       domain.BackendRemote,
			wantProbes: 0,
		},
		{
			name:       "forced cpu on weak device",
			report:     domain.CapabilityReport{PerformanceTier: domain.TierLow},
			forced:     domain.BackendCPU,
			want:       domain.BackendCPU,
			wantProbes: 0,
		},
		{
			name:       "auto probes",
			report:     domain.CapabilityReport{PerformanceTier: domain.TierMedium},
			forced:     domain.BackendAuto,
			want:       domain.BackendCPU,
			wantProbes: 1,
		},
		{
			name:       "unknown forced value probes",
			report:     domain.CapabilityReport{FallbackGPUSupported: true},
			forced:     "quantum",
			want:       domain.BackendFallback,
			wantProbes: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reporter := &fixedReporter{report: tt.report}
			s := New(reporter, allFactories(), zap.NewNop())

			sel, err := s.SelectBackend(context.Background(), SelectOptions{ForcedBackend: tt.forced})
			if err != nil {
				t.Fatalf("SelectBackend() error = %v", err)
			}
			if sel.Kind != tt.want || sel.Backend.Kind() != tt.want {
				t.Errorf("selected %v (backend %v), want %v", sel.Kind, sel.Backend.Kind(), tt.want)
			}
			if reporter.calls != tt.wantProbes {
				t.Errorf("probe calls = %d, want %d", reporter.calls, tt.wantProbes)
			}
			if sel.Forced != (tt.wantProbes == 0) {
				t.Errorf("Forced = %v", sel.Forced)
			}
			if !sel.Forced && sel.Report == nil {
				t.Error("probed selection should carry its report")
			}
		})
	}
}

func TestService_SelectBackend_FactoryErrors(t *testing.T) {
	reporter := &fixedReporter{report: domain.CapabilityReport{PerformanceTier: domain.TierLow}}

	s := New(reporter, map[domain.BackendKind]Factory{}, zap.NewNop())
	if _, err := s.SelectBackend(context.Background(), SelectOptions{}); !errors.Is(err, domain.ErrUnknownBackend) {
		t.Errorf("SelectBackend() error = %v, want ErrUnknownBackend", err)
	}

	initErr := errors.New("endpoint missing")
	s.Register(domain.BackendRemote, func() (port.Backend, error) { return nil, initErr })
	if _, err := s.SelectBackend(context.Background(), SelectOptions{}); !errors.Is(err, initErr) {
		t.Errorf("SelectBackend() error = %v, want factory error", err)
	}
}

func TestService_Options(t *testing.T) {
	s := New(&fixedReporter{}, nil, nil)
	opts := s.Options()

	if len(opts) != 5 || opts[0].ID != domain.BackendAuto {
		t.Fatalf("Options() = %+v", opts)
	}
	for _, opt := range opts[1:] {
		if !opt.ID.IsKnown() || opt.Name == "" || opt.ExpectedPerformance == "" {
			t.Errorf("option %+v incomplete", opt)
		}
	}
}
