package stationauth

import "testing"

func TestDeviceFromUserAgent(t *testing.T) {
	cases := []struct {
		ua          string
		browser     string
		os          string
		deviceType  string
	}{
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/126.0 Safari/537.36", "Chrome", "Windows", "desktop"},
		{"Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 Chrome/126.0 Safari/537.36 Edg/126.0", "Edge", "Windows", "desktop"},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 Version/17.4 Safari/605.1.15", "Safari", "macOS", "desktop"},
		{"Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0", "Firefox", "Linux", "desktop"},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148 Safari/604.1", "Safari", "iOS", "mobile"},
		{"Mozilla/5.0 (iPad; CPU OS 17_4 like Mac OS X) AppleWebKit/605.1.15 Safari/604.1", "Safari", "iOS", "tablet"},
		{"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 Chrome/126.0 Mobile Safari/537.36", "Chrome", "Android", "mobile"},
		{"Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 Chrome/126.0 Safari/537.36 OPR/111.0", "Opera", "Windows", "desktop"},
		{"curl/8.4.0", "Unknown", "Unknown", "desktop"},
		{"", "Unknown", "Unknown", "desktop"},
	}

	for _, tc := range cases {
		browser, os, deviceType := deviceFromUserAgent(tc.ua)
		if browser != tc.browser || os != tc.os || deviceType != tc.deviceType {
			t.Fatalf("ua %q: got %s/%s/%s, want %s/%s/%s",
				tc.ua, browser, os, deviceType, tc.browser, tc.os, tc.deviceType)
		}
	}
}

func TestDeviceName(t *testing.T) {
	if got := deviceName("Chrome", "Windows"); got != "Chrome on Windows" {
		t.Fatalf("unexpected device name %q", got)
	}
}
