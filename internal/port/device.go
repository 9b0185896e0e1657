package port

import (
	"context"

	"github.com/vertextoedge/artifact-cache/internal/domain"
)

// CapabilitySource answers the raw capability questions the probe composes.
// Implementations must not panic; failures are reported in the result.
type CapabilitySource interface {
	// AcceleratedAdapter tries to acquire an accelerated compute adapter
	// and device
	AcceleratedAdapter(ctx context.Context) domain.AcceleratedSupport

	// GraphicsContext probes for a graphics context usable as a secondary
	// acceleration path
	GraphicsContext(ctx context.Context) domain.GraphicsSupport

	// MemoryGB returns the device memory hint; ok is false when unknown
	MemoryGB() (float64, bool)

	// Cores returns the logical core hint; ok is false when unknown
	Cores() (int, bool)

	// Client identifies the calling client (browser name/version, mobile)
	Client() ClientInfo
}

// ClientInfo identifies the client the report is computed for
type ClientInfo struct {
	Name     string
	Version  string
	IsMobile bool
}
