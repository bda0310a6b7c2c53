package browser

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if !opts.Headless {
		t.Error("Expected headless to be true by default")
	}

	if opts.Timeout != 30*time.Second {
		t.Errorf("Expected timeout to be 30s, got %v", opts.Timeout)
	}

	if opts.ViewportWidth != 1920 || opts.ViewportHeight != 1080 {
		t.Errorf("Expected viewport to be 1920x1080, got %dx%d", opts.ViewportWidth, opts.ViewportHeight)
	}

	if opts.Locale != "de-DE" || opts.TimezoneID != "Europe/Berlin" {
		t.Errorf("Expected German market defaults, got %s / %s", opts.Locale, opts.TimezoneID)
	}
}

func TestHeadersIncludeAcceptLanguage(t *testing.T) {
	opts := DefaultOptions()
	h := opts.headers()

	if h["Accept-Language"] != opts.AcceptLanguage {
		t.Errorf("Expected Accept-Language %q, got %q", opts.AcceptLanguage, h["Accept-Language"])
	}
	if _, ok := opts.ExtraHeaders["Accept-Language"]; ok {
		t.Error("headers() must not mutate ExtraHeaders")
	}
}

func TestStealthScripts(t *testing.T) {
	joined := strings.Join(StealthScripts(), "\n")

	for _, want := range []string{"webdriver", "chrome.runtime", "permissions.query"} {
		if !strings.Contains(joined, want) {
			t.Errorf("Expected stealth scripts to cover %q", want)
		}
	}
}
