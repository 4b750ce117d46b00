package utils

import (
	"strings"

	ua "github.com/mssola/user_agent"
)

// DeviceInfo is the device summary stored on checkout audit records
type DeviceInfo struct {
	DeviceType string `json:"device_type"` // mobile, tablet, desktop, app, unknown
	OS         string `json:"os"`
	Client     string `json:"client"` // browser name or HTTP client of the mobile app
	Platform   string `json:"platform"`
	IsBot      bool   `json:"is_bot"`
}

// native HTTP stacks used by the marketplace mobile app
var appClients = []string{"okhttp", "expo", "cfnetwork", "dalvik", "reactnative"}

var platforms = []struct{ key, platform string }{
	{"android", "android"},
	{"iphone os", "ios"},
	{"ios", "ios"},
	{"windows", "windows"},
	{"mac os x", "mac"},
	{"macos", "mac"},
	{"chrome os", "chromeos"},
	{"linux", "linux"},
}

// ParseUserAgent summarises a User-Agent header
func ParseUserAgent(userAgent string) DeviceInfo {
	if userAgent == "" || userAgent == "Unknown" {
		return DeviceInfo{DeviceType: "unknown", OS: "Unknown", Client: "Unknown", Platform: "unknown"}
	}

	lower := strings.ToLower(userAgent)
	for _, client := range appClients {
		if strings.Contains(lower, client) {
			return DeviceInfo{
				DeviceType: "app",
				OS:         "Unknown",
				Client:     strings.SplitN(userAgent, "/", 2)[0],
				Platform:   appPlatform(lower),
			}
		}
	}

	parser := ua.New(userAgent)
	info := DeviceInfo{
		DeviceType: "desktop",
		OS:         "Unknown",
		Client:     "Unknown",
		Platform:   "unknown",
		IsBot:      parser.Bot(),
	}

	if parser.Mobile() {
		info.DeviceType = "mobile"
		if strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet") {
			info.DeviceType = "tablet"
		}
	}

	osInfo := parser.OSInfo()
	if osInfo.Name != "" {
		info.OS = strings.TrimSpace(osInfo.Name + " " + osInfo.Version)
		osName := strings.ToLower(osInfo.Name)
		for _, p := range platforms {
			if strings.Contains(osName, p.key) {
				info.Platform = p.platform
				break
			}
		}
	}

	if name, version := parser.Browser(); name != "" {
		info.Client = strings.TrimSpace(name + " " + version)
	}

	return info
}

func appPlatform(lower string) string {
	switch {
	case strings.Contains(lower, "okhttp"), strings.Contains(lower, "dalvik"), strings.Contains(lower, "android"):
		return "android"
	case strings.Contains(lower, "cfnetwork"), strings.Contains(lower, "darwin"), strings.Contains(lower, "ios"):
		return "ios"
	}
	return "unknown"
}
