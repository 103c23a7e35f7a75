package criteria

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/sitegauge/sitegauge/models"
)

// Pre-compiled selectors for the hot paths. cascadia compilation is not
// free, and these run on every scoring pass.
var (
	selCTA       = cascadia.MustCompile(`a[href], button, input[type="submit"]`)
	selFormField = cascadia.MustCompile(`input:not([type="hidden"]):not([type="submit"]):not([type="button"]), select, textarea`)
	selSocial    = cascadia.MustCompile(`[class*="testimonial"], [class*="review"], [class*="social-proof"], blockquote`)
)

var (
	rePhone      = regexp.MustCompile(`(\+?\d[\d\s\-().]{7,}\d)`)
	reActionVerb = regexp.MustCompile(`(?i)\b(get|start|try|buy|book|order|subscribe|download|sign\s*up|join|contact|request|learn\s*more|free)\b`)
)

func parseDoc(site *models.ScoringContext) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(site.HTML))
	if err != nil {
		return nil, models.NewScoreError(models.ErrCodeCriterionFailure, "failed to parse page HTML", err)
	}
	return doc, nil
}

// evaluateSEO scores the on-page SEO foundations: title/description
// hygiene, a single h1, canonical URL, image alt coverage and Open Graph.
func evaluateSEO(_ context.Context, site *models.ScoringContext) (models.CriterionResult, error) {
	doc, err := parseDoc(site)
	if err != nil {
		return models.CriterionResult{}, err
	}

	title := strings.TrimSpace(doc.Find("head title").First().Text())
	metaDesc, _ := doc.Find(`head meta[name="description"]`).Attr("content")
	metaDesc = strings.TrimSpace(metaDesc)
	_, hasCanonical := doc.Find(`head link[rel="canonical"]`).Attr("href")
	h1Count := doc.Find("h1").Length()
	ogTitle := doc.Find(`head meta[property="og:title"]`).Length() > 0
	ogDesc := doc.Find(`head meta[property="og:description"]`).Length() > 0

	imgs := doc.Find("img")
	withAlt := 0
	imgs.Each(func(_ int, s *goquery.Selection) {
		if alt, ok := s.Attr("alt"); ok && strings.TrimSpace(alt) != "" {
			withAlt++
		}
	})
	altCoverage := 1.0
	if imgs.Length() > 0 {
		altCoverage = float64(withAlt) / float64(imgs.Length())
	}

	checks := []check{
		{name: "title present", ok: title != "", weight: 2},
		{name: "title length 10-70 chars", ok: len(title) >= 10 && len(title) <= 70},
		{name: "meta description present", ok: metaDesc != "", weight: 2},
		{name: "meta description under 160 chars", ok: metaDesc != "" && len(metaDesc) <= 160},
		{name: "exactly one h1", ok: h1Count == 1, weight: 2},
		{name: "canonical link", ok: hasCanonical},
		{name: "image alt coverage >= 80%", ok: altCoverage >= 0.8},
		{name: "open graph title and description", ok: ogTitle && ogDesc},
	}

	details := map[string]string{
		"title_length":   fmt.Sprintf("%d", len(title)),
		"h1_count":       fmt.Sprintf("%d", h1Count),
		"img_count":      fmt.Sprintf("%d", imgs.Length()),
		"alt_coverage":   fmt.Sprintf("%.0f%%", altCoverage*100),
		"meta_desc_len":  fmt.Sprintf("%d", len(metaDesc)),
	}

	return scoreChecks(models.CriterionSEO,
		"On-page SEO foundations from the rendered DOM", checks, details), nil
}

// evaluateAccessibility scores baseline accessibility: document language,
// alt text, form labeling, landmarks and heading order.
func evaluateAccessibility(_ context.Context, site *models.ScoringContext) (models.CriterionResult, error) {
	doc, err := parseDoc(site)
	if err != nil {
		return models.CriterionResult{}, err
	}

	lang, _ := doc.Find("html").Attr("lang")

	imgs := doc.Find("img")
	withAlt := 0
	imgs.Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr("alt"); ok {
			withAlt++
		}
	})
	altOK := imgs.Length() == 0 || float64(withAlt)/float64(imgs.Length()) >= 0.9

	// A field counts as labeled when it has an aria-label, an aria-labelledby
	// or a <label for=> pointing at its id.
	labeledIDs := map[string]bool{}
	doc.Find("label[for]").Each(func(_ int, s *goquery.Selection) {
		if id, ok := s.Attr("for"); ok {
			labeledIDs[id] = true
		}
	})
	fields := doc.FindMatcher(selFormField)
	labeled := 0
	fields.Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr("aria-label"); ok {
			labeled++
			return
		}
		if _, ok := s.Attr("aria-labelledby"); ok {
			labeled++
			return
		}
		if id, ok := s.Attr("id"); ok && labeledIDs[id] {
			labeled++
		}
	})
	labelsOK := fields.Length() == 0 || labeled == fields.Length()

	hasMain := doc.Find("main, [role=main]").Length() > 0
	hasNav := doc.Find("nav, [role=navigation]").Length() > 0

	// Heading order: no level may skip more than one step down.
	headingOrderOK := true
	prev := 0
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		level := int(goquery.NodeName(s)[1] - '0')
		if prev > 0 && level > prev+1 {
			headingOrderOK = false
		}
		prev = level
	})

	emptyLinks := 0
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if strings.TrimSpace(s.Text()) == "" && s.Find("img[alt]").Length() == 0 {
			if _, ok := s.Attr("aria-label"); !ok {
				emptyLinks++
			}
		}
	})

	checks := []check{
		{name: "html lang attribute", ok: strings.TrimSpace(lang) != "", weight: 2},
		{name: "image alt coverage >= 90%", ok: altOK, weight: 2},
		{name: "form fields labeled", ok: labelsOK, weight: 2},
		{name: "main landmark", ok: hasMain},
		{name: "nav landmark", ok: hasNav},
		{name: "heading levels in order", ok: headingOrderOK},
		{name: "no unlabeled empty links", ok: emptyLinks == 0},
	}

	details := map[string]string{
		"lang":           lang,
		"form_fields":    fmt.Sprintf("%d", fields.Length()),
		"labeled_fields": fmt.Sprintf("%d", labeled),
		"empty_links":    fmt.Sprintf("%d", emptyLinks),
	}

	return scoreChecks(models.CriterionAccessibility,
		"Baseline accessibility heuristics from the rendered DOM", checks, details), nil
}

// evaluateTrust scores trust signals: transport security, reachable contact
// details, legal pages and visible social proof.
func evaluateTrust(_ context.Context, site *models.ScoringContext) (models.CriterionResult, error) {
	doc, err := parseDoc(site)
	if err != nil {
		return models.CriterionResult{}, err
	}

	isHTTPS := strings.HasPrefix(site.FinalURL, "https://") ||
		(site.FinalURL == "" && strings.HasPrefix(site.WebsiteURL, "https://"))

	hasContact := false
	hasPrivacy := false
	hasTerms := false
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		hl := strings.ToLower(href)
		tl := strings.ToLower(s.Text())
		switch {
		case strings.HasPrefix(hl, "mailto:") || strings.Contains(hl, "contact") || strings.Contains(tl, "contact"):
			hasContact = true
		case strings.Contains(hl, "privacy") || strings.Contains(tl, "privacy"):
			hasPrivacy = true
		case strings.Contains(hl, "terms") || strings.Contains(tl, "terms"):
			hasTerms = true
		}
	})

	bodyText := doc.Find("body").Text()
	hasPhone := rePhone.MatchString(bodyText)
	socialProof := doc.FindMatcher(selSocial).Length() > 0

	checks := []check{
		{name: "served over https", ok: isHTTPS, weight: 2},
		{name: "contact information", ok: hasContact || hasPhone, weight: 2},
		{name: "privacy policy link", ok: hasPrivacy},
		{name: "terms link", ok: hasTerms},
		{name: "social proof present", ok: socialProof, weight: 2},
	}

	details := map[string]string{
		"https":        fmt.Sprintf("%t", isHTTPS),
		"social_proof": fmt.Sprintf("%t", socialProof),
	}

	return scoreChecks(models.CriterionTrust,
		"Trust and credibility signals from the rendered DOM", checks, details), nil
}

// evaluateCTA scores call-to-action effectiveness: presence, action
// language, early placement and form friction.
func evaluateCTA(_ context.Context, site *models.ScoringContext) (models.CriterionResult, error) {
	doc, err := parseDoc(site)
	if err != nil {
		return models.CriterionResult{}, err
	}

	ctas := doc.FindMatcher(selCTA)
	actionCTAs := 0
	ctas.Each(func(_ int, s *goquery.Selection) {
		text := s.Text()
		if text == "" {
			text, _ = s.Attr("value")
		}
		if reActionVerb.MatchString(text) {
			actionCTAs++
		}
	})

	// "Above the fold" approximated structurally: an action CTA inside the
	// header/hero region, before the first h2.
	earlyCTA := false
	doc.Find("header, [class*=hero]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		s.FindMatcher(selCTA).EachWithBreak(func(_ int, c *goquery.Selection) bool {
			if reActionVerb.MatchString(c.Text()) {
				earlyCTA = true
			}
			return !earlyCTA
		})
		return !earlyCTA
	})

	formFields := doc.FindMatcher(selFormField).Length()
	hasForm := doc.Find("form").Length() > 0
	lowFriction := !hasForm || formFields <= 5

	checks := []check{
		{name: "clickable CTA present", ok: ctas.Length() > 0, weight: 2},
		{name: "action-oriented CTA language", ok: actionCTAs > 0, weight: 2},
		{name: "CTA in hero region", ok: earlyCTA, weight: 2},
		{name: "lead form present", ok: hasForm},
		{name: "low-friction form (<= 5 fields)", ok: lowFriction},
		{name: "focused CTA set (<= 40 clickables)", ok: ctas.Length() <= 40},
	}

	details := map[string]string{
		"clickables":  fmt.Sprintf("%d", ctas.Length()),
		"action_ctas": fmt.Sprintf("%d", actionCTAs),
		"form_fields": fmt.Sprintf("%d", formFields),
	}

	return scoreChecks(models.CriterionCTA,
		"Call-to-action heuristics from the rendered DOM", checks, details), nil
}
