// Package device answers capability questions about the host: which GPU
// adapters the kernel exposes, how much memory and how many cores are
// available, and who the calling client is.
package device

import (
	"context"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"

	"github.com/vertextoedge/artifact-cache/internal/domain"
	"github.com/vertextoedge/artifact-cache/internal/port"
)

// Config contains capability source configuration
type Config struct {
	// SysRoot is the sysfs mount point, "/sys" unless testing
	SysRoot string

	// MemoryGB and Cores override the detected hints when positive
	MemoryGB float64
	Cores    int

	// UserAgent identifies the client. Empty means the local process.
	UserAgent string

	DisableAccelerated bool
	DisableGraphics    bool
}

// Source implements port.CapabilitySource from sysfs and CPU identification
type Source struct {
	config Config
	client port.ClientInfo
}

// Ensure Source implements port.CapabilitySource
var _ port.CapabilitySource = (*Source)(nil)

// New creates a new Source
func New(cfg *Config) *Source {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.SysRoot == "" {
		c.SysRoot = "/sys"
	}

	client := ParseUserAgent(c.UserAgent)
	if c.UserAgent == "" {
		client = port.ClientInfo{
			Name:    "go",
			Version: strings.TrimPrefix(runtime.Version(), "go"),
		}
	}

	return &Source{config: c, client: client}
}

// AcceleratedAdapter looks for a DRM card bound to a compute-capable driver
func (s *Source) AcceleratedAdapter(ctx context.Context) domain.AcceleratedSupport {
	if s.config.DisableAccelerated {
		return domain.AcceleratedSupport{Reason: "disabled by configuration"}
	}
	if err := ctx.Err(); err != nil {
		return domain.AcceleratedSupport{Reason: err.Error()}
	}

	cards, err := scanCards(s.config.SysRoot)
	if err != nil {
		return domain.AcceleratedSupport{Reason: "DRM subsystem unavailable"}
	}
	if len(cards) == 0 {
		return domain.AcceleratedSupport{Reason: "no GPU adapter found"}
	}

	var drivers []string
	for _, card := range cards {
		if computeDrivers[card.Driver] {
			return domain.AcceleratedSupport{Supported: true, Adapter: card.Label()}
		}
		if card.Driver != "" {
			drivers = append(drivers, card.Driver)
		}
	}
	if len(drivers) == 0 {
		return domain.AcceleratedSupport{Reason: "no driver bound to GPU adapter"}
	}
	return domain.AcceleratedSupport{Reason: "no compute-capable driver (" + strings.Join(drivers, ", ") + ")"}
}

// GraphicsContext reports whether any DRM card can host a graphics context.
// Version is 2 when the kernel also exposes a render node.
func (s *Source) GraphicsContext(ctx context.Context) domain.GraphicsSupport {
	if s.config.DisableGraphics {
		return domain.GraphicsSupport{Reason: "disabled by configuration"}
	}
	if err := ctx.Err(); err != nil {
		return domain.GraphicsSupport{Reason: err.Error()}
	}

	cards, err := scanCards(s.config.SysRoot)
	if err != nil || len(cards) == 0 {
		return domain.GraphicsSupport{Reason: "no graphics device found"}
	}

	version := 1
	if hasRenderNode(s.config.SysRoot) {
		version = 2
	}
	return domain.GraphicsSupport{Supported: true, Version: version}
}

// MemoryGB returns the configured or detected total memory in GiB
func (s *Source) MemoryGB() (float64, bool) {
	if s.config.MemoryGB > 0 {
		return s.config.MemoryGB, true
	}
	bytes, ok := totalMemory()
	if !ok || bytes == 0 {
		return 0, false
	}
	return float64(bytes) / float64(domain.GB), true
}

// Cores returns the configured or detected logical core count
func (s *Source) Cores() (int, bool) {
	if s.config.Cores > 0 {
		return s.config.Cores, true
	}
	if n := cpuid.CPU.LogicalCores; n > 0 {
		return n, true
	}
	if n := runtime.NumCPU(); n > 0 {
		return n, true
	}
	return 0, false
}

// Client returns the client identity derived from the user agent
func (s *Source) Client() port.ClientInfo {
	return s.client
}

// CPUBrand returns the processor brand string, if known
func CPUBrand() string {
	return strings.TrimSpace(cpuid.CPU.BrandName)
}
