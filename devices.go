package stationauth

import "strings"

// deviceFromUserAgent derives the coarse browser/OS/type triple recorded
// on a device at session start. Parsing is intentionally shallow: the
// record is a display label, not a fingerprint.
func deviceFromUserAgent(userAgent string) (browser, os, deviceType string) {
	ua := strings.ToLower(userAgent)

	switch {
	case strings.Contains(ua, "edg/"), strings.Contains(ua, "edge"):
		browser = "Edge"
	case strings.Contains(ua, "opr/"), strings.Contains(ua, "opera"):
		browser = "Opera"
	case strings.Contains(ua, "firefox"):
		browser = "Firefox"
	case strings.Contains(ua, "chrome"):
		browser = "Chrome"
	case strings.Contains(ua, "safari"):
		browser = "Safari"
	default:
		browser = "Unknown"
	}

	switch {
	case strings.Contains(ua, "windows"):
		os = "Windows"
	case strings.Contains(ua, "android"):
		os = "Android"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"), strings.Contains(ua, "ios"):
		os = "iOS"
	case strings.Contains(ua, "mac os"), strings.Contains(ua, "macintosh"):
		os = "macOS"
	case strings.Contains(ua, "linux"):
		os = "Linux"
	default:
		os = "Unknown"
	}

	switch {
	case strings.Contains(ua, "ipad"), strings.Contains(ua, "tablet"):
		deviceType = "tablet"
	case strings.Contains(ua, "mobile"), strings.Contains(ua, "iphone"), strings.Contains(ua, "android"):
		deviceType = "mobile"
	default:
		deviceType = "desktop"
	}

	return browser, os, deviceType
}

func deviceName(browser, os string) string {
	return browser + " on " + os
}
