package browser

import "time"

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
	InitScripts    []string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "de-DE,de;q=0.9,en;q=0.8",
		TimezoneID:     "Europe/Berlin",
		Locale:         "de-DE",
		ExtraHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Encoding": "gzip, deflate, br",
			"DNT":             "1",
		},
		InitScripts: StealthScripts(),
	}
}

// headers merges the Accept-Language into the extra headers sent with every request.
func (o *Options) headers() map[string]string {
	h := make(map[string]string, len(o.ExtraHeaders)+1)
	for k, v := range o.ExtraHeaders {
		h[k] = v
	}
	if o.AcceptLanguage != "" {
		h["Accept-Language"] = o.AcceptLanguage
	}
	return h
}

// StealthScripts are injected before any page script runs and hide the most
// common automation fingerprints.
func StealthScripts() []string {
	return []string{
		// navigator.webdriver
		`Object.defineProperty(navigator, 'webdriver', { get: () => undefined });`,

		// window.chrome.runtime exists on real Chrome
		`window.chrome = window.chrome || {};
window.chrome.runtime = window.chrome.runtime || {};`,

		// headless Chrome answers "denied" for notifications while Notification.permission is "default"
		`const originalQuery = window.navigator.permissions.query;
window.navigator.permissions.query = (parameters) => (
  parameters.name === 'notifications'
    ? Promise.resolve({ state: Notification.permission })
    : originalQuery(parameters)
);`,

		`Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });`,
		`Object.defineProperty(navigator, 'languages', { get: () => ['de-DE', 'de', 'en'] });`,
	}
}
