// Package acquire obtains the content a scoring run needs: rendered HTML,
// the final URL after redirects, a full-page screenshot and lab web vitals.
//
// Acquisition is HTTP-first. A plain GET with a Chrome TLS fingerprint
// covers most sites at a fraction of a browser render's cost; the headless
// browser is reserved for pages the heuristics flag as JS shells, and for
// runs that want a screenshot or vitals. HTML is the only mandatory output:
// a run proceeds with warnings when the screenshot or vitals fail.
package acquire

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"

	"github.com/sitegauge/sitegauge/config"
	"github.com/sitegauge/sitegauge/models"
)

// Acquirer manages the global browser lifecycle and the page pool.
// It is safe for concurrent use.
type Acquirer struct {
	browser     *rod.Browser
	pagePool    rod.Pool[rod.Page]
	browserCfg  config.BrowserConfig
	acquireCfg  config.AcquireConfig
	httpFetcher *httpFetcher
	activePages atomic.Int32
}

// New launches a headless browser and initialises the reusable page pool.
func New(browserCfg config.BrowserConfig, acquireCfg config.AcquireConfig) (*Acquirer, error) {
	l := launcher.New().
		Headless(browserCfg.Headless).
		NoSandbox(browserCfg.NoSandbox)

	if browserCfg.BrowserBin != "" {
		l = l.Bin(browserCfg.BrowserBin)
	}
	if browserCfg.DefaultProxy != "" {
		l = l.Proxy(browserCfg.DefaultProxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScoreError(
			models.ErrCodeAcquisition,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewScoreError(
			models.ErrCodeAcquisition,
			"failed to connect to browser",
			err,
		)
	}

	pool := rod.NewPagePool(browserCfg.MaxPages)
	slog.Info("page pool created", "maxPages", browserCfg.MaxPages)

	return &Acquirer{
		browser:     browser,
		pagePool:    pool,
		browserCfg:  browserCfg,
		acquireCfg:  acquireCfg,
		httpFetcher: newHTTPFetcher(browserCfg.DefaultProxy),
	}, nil
}

// Stats returns a snapshot of the pool's current state.
func (a *Acquirer) Stats() models.PoolStats {
	return models.PoolStats{
		MaxPages:    a.browserCfg.MaxPages,
		ActivePages: int(a.activePages.Load()),
	}
}

// Close drains the page pool and kills the browser process.
// Call this on graceful shutdown to prevent zombie Chrome processes.
func (a *Acquirer) Close() {
	slog.Info("acquirer shutting down: draining page pool")
	a.pagePool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	slog.Info("acquirer shutting down: closing browser")
	a.browser.MustClose()
	slog.Info("acquirer shutdown complete")
}

// Acquire fetches and renders the target URL, producing the scoring input.
//
// The HTTP path is tried first. Its HTML is kept when it looks like a real
// server-rendered page; otherwise (JS shell, fetch failure) the browser
// renders the page. The browser path additionally captures the screenshot
// and web vitals, which the HTTP path cannot provide.
func (a *Acquirer) Acquire(ctx context.Context, targetURL string) (*models.ScoringContext, error) {
	ctx, cancel := context.WithTimeout(ctx, a.acquireCfg.Timeout)
	defer cancel()

	start := time.Now()

	if res, err := a.httpFetcher.fetch(ctx, targetURL); err == nil {
		if !needsBrowser(res.body) {
			slog.Info("acquired via http",
				"url", targetURL,
				"bytes", len(res.body),
				"duration", time.Since(start),
			)
			return &models.ScoringContext{
				WebsiteURL:  targetURL,
				FinalURL:    res.finalURL,
				HTML:        string(res.body),
				Title:       extractTitle(res.body),
				FetchMethod: "http",
			}, nil
		}
		slog.Debug("http fetch looks like a JS shell, rendering", "url", targetURL)
	} else {
		slog.Debug("http fetch failed, rendering", "url", targetURL, "error", err)
	}

	site, err := a.render(ctx, targetURL)
	if err != nil {
		return nil, err
	}
	slog.Info("acquired via browser",
		"url", targetURL,
		"warnings", len(site.AcquisitionWarnings),
		"duration", time.Since(start),
	)
	return site, nil
}
