package device

import (
	"os"
	"path/filepath"
	"strings"
)

// Kernel drivers whose devices expose a general-purpose compute queue
var computeDrivers = map[string]bool{
	"amdgpu": true,
	"nvidia": true,
	"i915":   true,
	"xe":     true,
}

type drmCard struct {
	Name   string
	Driver string
	Vendor string
}

// Label names the card for reports, e.g. "card0 (amdgpu, AMD)"
func (c drmCard) Label() string {
	parts := []string{}
	if c.Driver != "" {
		parts = append(parts, c.Driver)
	}
	if c.Vendor != "" {
		parts = append(parts, c.Vendor)
	}
	if len(parts) == 0 {
		return c.Name
	}
	return c.Name + " (" + strings.Join(parts, ", ") + ")"
}

// isCardDevice returns true for DRM card device names (card0, card1, ...)
// but not connectors (card0-DP-1) or render nodes (renderD128).
func isCardDevice(name string) bool {
	if !strings.HasPrefix(name, "card") {
		return false
	}
	suffix := name[4:]
	if len(suffix) == 0 {
		return false
	}
	for _, character := range suffix {
		if character < '0' || character > '9' {
			return false
		}
	}
	return true
}

// scanCards lists DRM card devices under sysRoot/class/drm
func scanCards(sysRoot string) ([]drmCard, error) {
	base := filepath.Join(sysRoot, "class", "drm")
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, err
	}

	var cards []drmCard
	for _, entry := range entries {
		if !isCardDevice(entry.Name()) {
			continue
		}
		devicePath := filepath.Join(base, entry.Name(), "device")
		cards = append(cards, drmCard{
			Name:   entry.Name(),
			Driver: readDriverName(devicePath),
			Vendor: readVendor(devicePath),
		})
	}
	return cards, nil
}

// hasRenderNode reports whether any renderD* node is registered
func hasRenderNode(sysRoot string) bool {
	entries, err := os.ReadDir(filepath.Join(sysRoot, "class", "drm"))
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "renderD") {
			return true
		}
	}
	return false
}

// readDriverName returns the basename of the device's "driver" symlink
func readDriverName(devicePath string) string {
	link, err := os.Readlink(filepath.Join(devicePath, "driver"))
	if err != nil {
		return ""
	}
	return filepath.Base(link)
}

// readVendor maps PCI_ID in the device's uevent file to a vendor name
func readVendor(devicePath string) string {
	data, err := os.ReadFile(filepath.Join(devicePath, "uevent"))
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		value, ok := strings.CutPrefix(line, "PCI_ID=")
		if !ok {
			continue
		}
		vendorID, _, _ := strings.Cut(value, ":")
		switch strings.ToLower(vendorID) {
		case "1002":
			return "AMD"
		case "10de":
			return "NVIDIA"
		case "8086":
			return "Intel"
		}
	}
	return ""
}
