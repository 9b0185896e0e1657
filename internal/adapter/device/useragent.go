package device

import (
	"regexp"
	"strings"

	"github.com/vertextoedge/artifact-cache/internal/port"
)

var (
	mobilePattern  = regexp.MustCompile(`(?i)Android|webOS|iPhone|iPad|iPod|BlackBerry|IEMobile|Opera Mini`)
	chromeVersion  = regexp.MustCompile(`Chrome/([0-9.]+)`)
	edgeVersion    = regexp.MustCompile(`Edg/([0-9.]+)`)
	firefoxVersion = regexp.MustCompile(`Firefox/([0-9.]+)`)
	safariVersion  = regexp.MustCompile(`Safari/([0-9.]+)`)
)

// ParseUserAgent extracts browser name, version and mobile flag from a
// User-Agent header. Unrecognized agents report "Unknown".
func ParseUserAgent(ua string) port.ClientInfo {
	info := port.ClientInfo{
		Name:     "Unknown",
		Version:  "Unknown",
		IsMobile: mobilePattern.MatchString(ua),
	}

	var pattern *regexp.Regexp
	switch {
	case strings.Contains(ua, "Chrome") && !strings.Contains(ua, "Edg"):
		info.Name, pattern = "Chrome", chromeVersion
	case strings.Contains(ua, "Edg"):
		info.Name, pattern = "Edge", edgeVersion
	case strings.Contains(ua, "Firefox"):
		info.Name, pattern = "Firefox", firefoxVersion
	case strings.Contains(ua, "Safari"):
		info.Name, pattern = "Safari", safariVersion
	default:
		return info
	}

	if m := pattern.FindStringSubmatch(ua); len(m) == 2 {
		info.Version = m[1]
	}
	return info
}
