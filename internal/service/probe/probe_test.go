package probe

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/vertextoedge/artifact-cache/internal/domain"
	"github.com/vertextoedge/artifact-cache/internal/port"
)

// fakeSource implements port.CapabilitySource for testing
type fakeSource struct {
	accelerated domain.AcceleratedSupport
	graphics    domain.GraphicsSupport
	memory      float64
	memoryOK    bool
	cores       int
	coresOK     bool
	client      port.ClientInfo
	panicOn     string
}

func (f *fakeSource) AcceleratedAdapter(ctx context.Context) domain.AcceleratedSupport {
	if f.panicOn == "accelerated" {
		panic("device lost")
	}
	return f.accelerated
}

func (f *fakeSource) GraphicsContext(ctx context.Context) domain.GraphicsSupport {
	if f.panicOn == "graphics" {
		panic("context lost")
	}
	return f.graphics
}

func (f *fakeSource) MemoryGB() (float64, bool) { return f.memory, f.memoryOK }
func (f *fakeSource) Cores() (int, bool)        { return f.cores, f.coresOK }
func (f *fakeSource) Client() port.ClientInfo   { return f.client }

func TestService_CheckDevicePerformance(t *testing.T) {
	tests := []struct {
		name       string
		source     *fakeSource
		wantMemory float64
		wantCores  int
		wantTier   domain.PerformanceTier
	}{
		{
			name:       "unknown hints use defaults",
			source:     &fakeSource{},
			wantMemory: 4,
			wantCores:  4,
			wantTier:   domain.TierMedium,
		},
		{
			name:       "workstation",
			source:     &fakeSource{memory: 32, memoryOK: true, cores: 16, coresOK: true},
			wantMemory: 32,
			wantCores:  16,
			wantTier:   domain.TierHigh,
		},
		{
			name:       "small device",
			source:     &fakeSource{memory: 2, memoryOK: true, cores: 2, coresOK: true},
			wantMemory: 2,
			wantCores:  2,
			wantTier:   domain.TierLow,
		},
		{
			name:       "memory known cores unknown",
			source:     &fakeSource{memory: 8, memoryOK: true},
			wantMemory: 8,
			wantCores:  4,
			wantTier:   domain.TierHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(nil, tt.source, zap.NewNop())
			got := s.CheckDevicePerformance()
			if got.MemoryGB != tt.wantMemory || got.Cores != tt.wantCores || got.Tier != tt.wantTier {
				t.Errorf("CheckDevicePerformance() = %+v", got)
			}
		})
	}
}

func TestService_ChecksNeverPanic(t *testing.T) {
	ctx := context.Background()

	s := New(nil, &fakeSource{panicOn: "accelerated"}, zap.NewNop())
	if got := s.CheckAcceleratedBackend(ctx); got.Supported || got.Reason == "" {
		t.Errorf("CheckAcceleratedBackend() = %+v, want unsupported with reason", got)
	}

	s = New(nil, &fakeSource{panicOn: "graphics"}, zap.NewNop())
	if got := s.CheckFallbackGraphicsBackend(ctx); got.Supported || got.Reason == "" {
		t.Errorf("CheckFallbackGraphicsBackend() = %+v, want unsupported with reason", got)
	}
}

func TestService_UnsupportedGetsReason(t *testing.T) {
	s := New(nil, &fakeSource{graphics: domain.GraphicsSupport{Version: 2}}, zap.NewNop())

	if got := s.CheckAcceleratedBackend(context.Background()); got.Reason == "" {
		t.Error("unsupported accelerated result should carry a reason")
	}
	got := s.CheckFallbackGraphicsBackend(context.Background())
	if got.Version != 0 || got.Reason == "" {
		t.Errorf("unsupported graphics result = %+v", got)
	}
}

func TestService_GetFullReport(t *testing.T) {
	tests := []struct {
		name            string
		source          *fakeSource
		wantStrategy    domain.BackendKind
		wantPerformance string
	}{
		{
			name: "accelerated preferred over fallback",
			source: &fakeSource{
				accelerated: domain.AcceleratedSupport{Supported: true, Adapter: "card0"},
				graphics:    domain.GraphicsSupport{Supported: true, Version: 2},
			},
			wantStrategy:    domain.BackendAccelerated,
			wantPerformance: "best",
		},
		{
			name: "fallback graphics",
			source: &fakeSource{
				graphics: domain.GraphicsSupport{Supported: true, Version: 1},
			},
			wantStrategy:    domain.BackendFallback,
			wantPerformance: "good",
		},
		{
			name:            "cpu on default hints",
			source:          &fakeSource{},
			wantStrategy:    domain.BackendCPU,
			wantPerformance: "moderate",
		},
		{
			name: "remote on weak mobile device",
			source: &fakeSource{
				memory: 2, memoryOK: true, cores: 4, coresOK: true,
				client: port.ClientInfo{Name: "Safari", Version: "604.1", IsMobile: true},
			},
			wantStrategy:    domain.BackendRemote,
			wantPerformance: "low",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(nil, tt.source, zap.NewNop())
			report := s.GetFullReport(context.Background())

			if report.RecommendedStrategy != tt.wantStrategy {
				t.Errorf("RecommendedStrategy = %v, want %v", report.RecommendedStrategy, tt.wantStrategy)
			}
			if report.ExpectedPerformance != tt.wantPerformance {
				t.Errorf("ExpectedPerformance = %v, want %v", report.ExpectedPerformance, tt.wantPerformance)
			}
			if report.IsMobile != tt.source.client.IsMobile || report.BrowserName != tt.source.client.Name {
				t.Errorf("client fields = (%v, %q)", report.IsMobile, report.BrowserName)
			}
		})
	}
}
