package domain

// PerformanceTier is a coarse device performance bucket
type PerformanceTier string

// Performance tiers
const (
	TierLow    PerformanceTier = "low"
	TierMedium PerformanceTier = "medium"
	TierHigh   PerformanceTier = "high"
)

// BackendKind identifies an execution strategy
type BackendKind string

// Known backends, in selection priority order
const (
	BackendAccelerated BackendKind = "accelerated"
	BackendFallback    BackendKind = "fallback"
	BackendCPU         BackendKind = "cpu"
	BackendRemote      BackendKind = "remote"

	// BackendAuto is not a backend; it asks the selector to probe
	BackendAuto BackendKind = "auto"
)

// KnownBackends lists every concrete backend identifier
var KnownBackends = []BackendKind{BackendAccelerated, BackendFallback, BackendCPU, BackendRemote}

// IsKnown reports whether k names a concrete backend
func (k BackendKind) IsKnown() bool {
	for _, known := range KnownBackends {
		if k == known {
			return true
		}
	}
	return false
}

// ExpectedPerformance returns the label shown next to a strategy
func (k BackendKind) ExpectedPerformance() string {
	switch k {
	case BackendAccelerated:
		return "best"
	case BackendFallback:
		return "good"
	case BackendCPU:
		return "moderate"
	default:
		return "low"
	}
}

// AcceleratedSupport is the result of probing the accelerated compute backend
type AcceleratedSupport struct {
	Supported bool   `json:"supported"`
	Reason    string `json:"reason,omitempty"`
	Adapter   string `json:"adapter,omitempty"`
}

// GraphicsSupport is the result of probing the fallback graphics backend
type GraphicsSupport struct {
	Supported bool   `json:"supported"`
	Version   int    `json:"version,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// DevicePerformance holds the memory/core hints and the derived tier
type DevicePerformance struct {
	MemoryGB float64         `json:"memory_gb"`
	Cores    int             `json:"cores"`
	Score    float64         `json:"score"`
	Tier     PerformanceTier `json:"tier"`
}

// TierFor derives the performance tier from memory and core hints:
// score = memory*cores/4; high if score >= 8, medium if >= 4, else low.
func TierFor(memoryGB float64, cores int) (float64, PerformanceTier) {
	score := memoryGB * float64(cores) / 4
	switch {
	case score >= 8:
		return score, TierHigh
	case score >= 4:
		return score, TierMedium
	default:
		return score, TierLow
	}
}

// CapabilityReport is re-derived each time a strategy decision is needed
type CapabilityReport struct {
	AcceleratedGPUSupported bool               `json:"accelerated_gpu_supported"`
	FallbackGPUSupported    bool               `json:"fallback_gpu_supported"`
	Accelerated             AcceleratedSupport `json:"accelerated"`
	Fallback                GraphicsSupport    `json:"fallback"`
	DeviceMemoryGB          float64            `json:"device_memory_gb"`
	CPUCoreCount            int                `json:"cpu_core_count"`
	PerformanceTier         PerformanceTier    `json:"performance_tier"`
	IsMobile                bool               `json:"is_mobile"`
	BrowserName             string             `json:"browser_name"`
	BrowserVersion          string             `json:"browser_version"`
	RecommendedStrategy     BackendKind        `json:"recommended_strategy"`
	ExpectedPerformance     string             `json:"expected_performance"`
}

// Recommend applies the strategy priority: accelerated > fallback graphics >
// CPU-local (tier not low) > remote
func (r *CapabilityReport) Recommend() BackendKind {
	switch {
	case r.AcceleratedGPUSupported:
		return BackendAccelerated
	case r.FallbackGPUSupported:
		return BackendFallback
	case r.PerformanceTier != TierLow && r.PerformanceTier != "":
		return BackendCPU
	default:
		return BackendRemote
	}
}

// Accepted alternate spellings for backend identifiers
var backendAliases = map[string]BackendKind{
	"webgpu": BackendAccelerated,
	"webllm": BackendAccelerated,
	"gpu":    BackendAccelerated,
	"webgl":  BackendFallback,
	"wasm":   BackendCPU,
	"local":  BackendCPU,
	"api":    BackendRemote,
}

// ParseBackendKind resolves an identifier or alias. The empty string and
// "auto" resolve to BackendAuto.
func ParseBackendKind(s string) (BackendKind, bool) {
	switch k := BackendKind(s); {
	case s == "" || k == BackendAuto:
		return BackendAuto, true
	case k.IsKnown():
		return k, true
	}
	if k, ok := backendAliases[s]; ok {
		return k, true
	}
	return "", false
}
