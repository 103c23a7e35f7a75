package acquire

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/sitegauge/sitegauge/models"
)

// render drives the full browser path: borrow a tab, render the page, then
// extract HTML plus the best-effort artifacts (screenshot, vitals).
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Acquire page           – borrow a tab from the pool (or create one)
//  2. DEFER: cleanup         – about:blank + return to pool (leak prevention)
//  3. Stealth injection      – mask navigator.webdriver etc. (before navigation!)
//  4. Headers + viewport     – Google referer, deterministic viewport
//  5. Context binding        – propagate the acquisition deadline to Rod
//  6. Navigate + wait        – DOM stable, not network idle
//  7. Extract                – HTML, title, final URL (mandatory)
//  8. Artifacts              – screenshot + vitals (best-effort, warn only)
//
// Steps 3-4 must precede step 6: stealth JS and headers only take effect for
// navigations after they are installed. Step 2's about:blank uses the
// original page reference so cleanup succeeds even after the deadline fires.
func (a *Acquirer) render(ctx context.Context, targetURL string) (*models.ScoringContext, error) {
	// ── 1. Acquire page from pool ─────────────────────────────────────
	a.activePages.Add(1)
	defer a.activePages.Add(-1)

	page, acquireErr := a.pagePool.Get(func() (*rod.Page, error) {
		return a.browser.Page(proto.TargetCreateTarget{})
	})
	if acquireErr != nil {
		return nil, models.NewScoreError(
			models.ErrCodeAcquisition,
			"failed to acquire page from pool",
			acquireErr,
		)
	}

	// ── 2. CRITICAL DEFER: prevent DOM memory leak + guarantee pool return
	defer func() {
		if navErr := page.Navigate("about:blank"); navErr != nil {
			slog.Warn("cleanup: failed to navigate to about:blank", "error", navErr)
		}
		a.pagePool.Put(page)
	}()

	// ── 3. Stealth injection ──────────────────────────────────────────
	if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
		slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
	}

	// ── 4. Headers + viewport ─────────────────────────────────────────
	if u, parseErr := url.Parse(targetURL); parseErr == nil {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(map[string]string{
				"Referer": "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname()),
			}),
		}.Call(page)
	}
	if a.acquireCfg.ViewportWidth > 0 && a.acquireCfg.ViewportHeight > 0 {
		_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             a.acquireCfg.ViewportWidth,
			Height:            a.acquireCfg.ViewportHeight,
			DeviceScaleFactor: 1,
			Mobile:            false,
		})
	}

	// ── 5. Bind the acquisition deadline to the page ──────────────────
	p := page.Context(ctx)

	// ── 6. Navigate + wait ────────────────────────────────────────────
	if navErr := p.Navigate(targetURL); navErr != nil {
		return nil, categorizeError(navErr, "navigation to target URL failed")
	}
	if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", stableErr)
	}

	// ── 7. Extract rendered HTML (mandatory) ──────────────────────────
	rawHTML, htmlErr := p.HTML()
	if htmlErr != nil {
		return nil, categorizeError(htmlErr, "failed to extract page HTML")
	}

	title := evalStringOrEmpty(p, `() => document.title`)
	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = targetURL
	}

	site := &models.ScoringContext{
		WebsiteURL:  targetURL,
		FinalURL:    finalURL,
		HTML:        rawHTML,
		Title:       title,
		FetchMethod: "browser",
	}

	// ── 8. Best-effort artifacts ──────────────────────────────────────
	if ref, err := a.screenshot(p, targetURL); err != nil {
		site.AcquisitionWarnings = append(site.AcquisitionWarnings,
			fmt.Sprintf("screenshot failed: %v", err))
	} else if ref != "" {
		site.ScreenshotRef = &ref
	}

	if vitals, err := measureVitals(p); err != nil {
		site.AcquisitionWarnings = append(site.AcquisitionWarnings,
			fmt.Sprintf("web vitals unavailable: %v", err))
	} else {
		site.WebVitals = vitals
	}

	return site, nil
}

// screenshot captures a full-page PNG into ScreenshotDir, named by the URL
// hash so repeat runs against the same URL overwrite rather than accumulate.
// Returns "" with no error when capture is disabled.
func (a *Acquirer) screenshot(p *rod.Page, targetURL string) (string, error) {
	dir := a.acquireCfg.ScreenshotDir
	if dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshot dir: %w", err)
	}

	data, err := p.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return "", fmt.Errorf("capture: %w", err)
	}

	sum := sha256.Sum256([]byte(targetURL))
	path := filepath.Join(dir, hex.EncodeToString(sum[:8])+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

// measureVitals reads lab vitals from buffered performance observers. These
// are single-load lab numbers, not field data; the external performance
// criterion is the authoritative source and these only enrich the evidence.
func measureVitals(p *rod.Page) (*models.WebVitals, error) {
	res, err := p.Eval(`() => new Promise(resolve => {
		const out = { lcp_ms: 0, cls: 0, tbt_ms: 0 };
		try {
			new PerformanceObserver(list => {
				const entries = list.getEntries();
				if (entries.length > 0) out.lcp_ms = entries[entries.length - 1].startTime;
			}).observe({ type: "largest-contentful-paint", buffered: true });
			new PerformanceObserver(list => {
				for (const e of list.getEntries()) {
					if (!e.hadRecentInput) out.cls += e.value;
				}
			}).observe({ type: "layout-shift", buffered: true });
			new PerformanceObserver(list => {
				for (const e of list.getEntries()) {
					const blocking = e.duration - 50;
					if (blocking > 0) out.tbt_ms += blocking;
				}
			}).observe({ type: "longtask", buffered: true });
		} catch (e) {}
		// Give buffered entries one tick to flush.
		setTimeout(() => resolve(out), 200);
	})`)
	if err != nil {
		return nil, err
	}

	return &models.WebVitals{
		LCPMs: res.Value.Get("lcp_ms").Num(),
		CLS:   res.Value.Get("cls").Num(),
		TBTMs: res.Value.Get("tbt_ms").Num(),
	}, nil
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors (useful for optional metadata extraction).
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw errors into typed ScoreErrors so the API layer
// can map them to appropriate HTTP status codes.
func categorizeError(err error, msg string) *models.ScoreError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScoreError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScoreError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScoreError(models.ErrCodeAcquisition, msg, err)
	}
}
