package device

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeSysfs builds a sysfs tree with the given cards (name -> driver) and
// optional render node
func fakeSysfs(t *testing.T, cards map[string]string, renderNode bool) string {
	t.Helper()
	root := t.TempDir()
	drm := filepath.Join(root, "class", "drm")
	drivers := filepath.Join(root, "bus", "pci", "drivers")

	for card, driver := range cards {
		device := filepath.Join(drm, card, "device")
		if err := os.MkdirAll(device, 0755); err != nil {
			t.Fatal(err)
		}
		// Connector directories must be ignored
		if err := os.MkdirAll(filepath.Join(drm, card+"-DP-1"), 0755); err != nil {
			t.Fatal(err)
		}
		if driver == "" {
			continue
		}
		target := filepath.Join(drivers, driver)
		if err := os.MkdirAll(target, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.Symlink(target, filepath.Join(device, "driver")); err != nil {
			t.Fatal(err)
		}
		if driver == "amdgpu" {
			uevent := "DRIVER=amdgpu\nPCI_ID=1002:744C\nPCI_SLOT_NAME=0000:03:00.0\n"
			if err := os.WriteFile(filepath.Join(device, "uevent"), []byte(uevent), 0644); err != nil {
				t.Fatal(err)
			}
		}
	}
	if renderNode {
		if err := os.MkdirAll(filepath.Join(drm, "renderD128"), 0755); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestSource_AcceleratedAdapter(t *testing.T) {
	tests := []struct {
		name        string
		cards       map[string]string
		noDRM       bool
		disabled    bool
		wantOK      bool
		wantAdapter string
		wantReason  string
	}{
		{
			name:        "compute driver",
			cards:       map[string]string{"card0": "amdgpu"},
			wantOK:      true,
			wantAdapter: "card0 (amdgpu, AMD)",
		},
		{
			name:       "display-only driver",
			cards:      map[string]string{"card0": "simpledrm"},
			wantReason: "simpledrm",
		},
		{
			name:       "no cards",
			cards:      map[string]string{},
			wantReason: "no GPU adapter found",
		},
		{
			name:       "no drm class",
			noDRM:      true,
			wantReason: "DRM subsystem unavailable",
		},
		{
			name:       "disabled",
			cards:      map[string]string{"card0": "nvidia"},
			disabled:   true,
			wantReason: "disabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			if !tt.noDRM {
				root = fakeSysfs(t, tt.cards, false)
				if len(tt.cards) == 0 {
					os.MkdirAll(filepath.Join(root, "class", "drm"), 0755)
				}
			}
			s := New(&Config{SysRoot: root, DisableAccelerated: tt.disabled})

			got := s.AcceleratedAdapter(context.Background())
			if got.Supported != tt.wantOK {
				t.Fatalf("Supported = %v, want %v (reason %q)", got.Supported, tt.wantOK, got.Reason)
			}
			if got.Adapter != tt.wantAdapter {
				t.Errorf("Adapter = %q, want %q", got.Adapter, tt.wantAdapter)
			}
			if !strings.Contains(got.Reason, tt.wantReason) {
				t.Errorf("Reason = %q, want it to contain %q", got.Reason, tt.wantReason)
			}
		})
	}
}

func TestSource_GraphicsContext(t *testing.T) {
	tests := []struct {
		name        string
		cards       map[string]string
		renderNode  bool
		wantOK      bool
		wantVersion int
	}{
		{name: "render node", cards: map[string]string{"card0": "i915"}, renderNode: true, wantOK: true, wantVersion: 2},
		{name: "card only", cards: map[string]string{"card1": "simpledrm"}, wantOK: true, wantVersion: 1},
		{name: "nothing", cards: map[string]string{}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&Config{SysRoot: fakeSysfs(t, tt.cards, tt.renderNode)})
			got := s.GraphicsContext(context.Background())
			if got.Supported != tt.wantOK || got.Version != tt.wantVersion {
				t.Errorf("GraphicsContext() = %+v", got)
			}
		})
	}
}

func TestSource_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(&Config{SysRoot: fakeSysfs(t, map[string]string{"card0": "amdgpu"}, true)})
	if got := s.AcceleratedAdapter(ctx); got.Supported {
		t.Error("AcceleratedAdapter() should fail on cancelled context")
	}
	if got := s.GraphicsContext(ctx); got.Supported {
		t.Error("GraphicsContext() should fail on cancelled context")
	}
}

func TestSource_Overrides(t *testing.T) {
	s := New(&Config{MemoryGB: 16, Cores: 12})

	if mem, ok := s.MemoryGB(); !ok || mem != 16 {
		t.Errorf("MemoryGB() = (%v, %v)", mem, ok)
	}
	if cores, ok := s.Cores(); !ok || cores != 12 {
		t.Errorf("Cores() = (%v, %v)", cores, ok)
	}
}

func TestSource_DetectedCores(t *testing.T) {
	cores, ok := New(nil).Cores()
	if !ok || cores < 1 {
		t.Errorf("Cores() = (%v, %v)", cores, ok)
	}
}

func TestSource_LocalClient(t *testing.T) {
	client := New(nil).Client()
	if client.Name != "go" || client.IsMobile {
		t.Errorf("Client() = %+v", client)
	}
}

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		name        string
		ua          string
		wantName    string
		wantVersion string
		wantMobile  bool
	}{
		{
			name:        "chrome desktop",
			ua:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.109 Safari/537.36",
			wantName:    "Chrome",
			wantVersion: "120.0.6099.109",
		},
		{
			name:        "edge",
			ua:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91",
			wantName:    "Edge",
			wantVersion: "120.0.2210.91",
		},
		{
			name:        "firefox",
			ua:          "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			wantName:    "Firefox",
			wantVersion: "121.0",
		},
		{
			name:        "safari iphone",
			ua:          "Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1",
			wantName:    "Safari",
			wantVersion: "604.1",
			wantMobile:  true,
		},
		{
			name:        "chrome android",
			ua:          "Mozilla/5.0 (Linux; Android 14) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.144 Mobile Safari/537.36",
			wantName:    "Chrome",
			wantVersion: "120.0.6099.144",
			wantMobile:  true,
		},
		{
			name:        "unknown",
			ua:          "curl/8.5.0",
			wantName:    "Unknown",
			wantVersion: "Unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseUserAgent(tt.ua)
			if got.Name != tt.wantName || got.Version != tt.wantVersion || got.IsMobile != tt.wantMobile {
				t.Errorf("ParseUserAgent() = %+v, want {%s %s %v}", got, tt.wantName, tt.wantVersion, tt.wantMobile)
			}
		})
	}
}
