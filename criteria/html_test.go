package criteria

import (
	"context"
	"strings"
	"testing"

	"github.com/sitegauge/sitegauge/models"
)

// A well-built landing page that should score high on every HTML criterion.
const goodHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <title>Acme Plumbing — Emergency Repairs in Springfield</title>
  <meta name="description" content="24/7 emergency plumbing across Springfield. Licensed, insured, on site within the hour.">
  <link rel="canonical" href="https://acmeplumbing.example/">
  <meta property="og:title" content="Acme Plumbing">
  <meta property="og:description" content="Emergency plumbing repairs.">
</head>
<body>
  <header class="hero">
    <nav><a href="/services">Services</a> <a href="/contact">Contact</a></nav>
    <h1>Emergency plumbing, fixed within the hour</h1>
    <p>Licensed and insured plumbers serving Springfield since 1998. Our team handles
    burst pipes, blocked drains and water heater failures around the clock, with
    transparent pricing agreed before any work starts.</p>
    <a href="/book" class="cta">Book a repair now</a>
  </header>
  <main>
    <h2>What our customers say</h2>
    <blockquote class="testimonial">They arrived in 40 minutes and the price matched the quote. — Dana R.</blockquote>
    <h2>Get a free quote</h2>
    <form action="/quote" method="post">
      <label for="name">Your name</label>
      <input id="name" type="text">
      <label for="phone">Phone number</label>
      <input id="phone" type="tel">
      <input type="submit" value="Request my free quote">
    </form>
    <img src="/van.jpg" alt="Acme Plumbing service van">
    <p>Call us any time: +1 555 014 2368</p>
  </main>
  <footer>
    <a href="/privacy">Privacy policy</a>
    <a href="/terms">Terms of service</a>
    <a href="mailto:help@acmeplumbing.example">help@acmeplumbing.example</a>
  </footer>
</body>
</html>`

// A thin page missing nearly everything the heuristics look for.
const poorHTML = `<html>
<head></head>
<body>
  <h3>welcome</h3>
  <h1>Site</h1>
  <h1>Also site</h1>
  <div>some text</div>
  <img src="/a.jpg">
  <img src="/b.jpg">
  <a href="/x"></a>
</body>
</html>`

func goodSite() *models.ScoringContext {
	return &models.ScoringContext{
		WebsiteURL: "https://acmeplumbing.example/",
		FinalURL:   "https://acmeplumbing.example/",
		HTML:       goodHTML,
	}
}

func poorSite() *models.ScoringContext {
	return &models.ScoringContext{
		WebsiteURL: "http://thin.example/",
		FinalURL:   "http://thin.example/",
		HTML:       poorHTML,
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func TestEvaluateSEO(t *testing.T) {
	good, err := evaluateSEO(context.Background(), goodSite())
	if err != nil {
		t.Fatalf("evaluateSEO: %v", err)
	}
	if good.Criterion != models.CriterionSEO || good.Status != models.StatusOK {
		t.Fatalf("unexpected result meta: %+v", good)
	}
	if good.Score < 8 {
		t.Errorf("good page SEO score = %v, want >= 8 (failed: %v)", good.Score, good.Passes.Failed)
	}
	if !contains(good.Passes.Passed, "exactly one h1") {
		t.Errorf("h1 check not in passed list: %v", good.Passes.Passed)
	}

	poor, err := evaluateSEO(context.Background(), poorSite())
	if err != nil {
		t.Fatalf("evaluateSEO(poor): %v", err)
	}
	if poor.Score > 3 {
		t.Errorf("poor page SEO score = %v, want <= 3 (passed: %v)", poor.Score, poor.Passes.Passed)
	}
	if !contains(poor.Passes.Failed, "title present") {
		t.Errorf("missing title not flagged: %v", poor.Passes.Failed)
	}
	if !contains(poor.Passes.Failed, "exactly one h1") {
		t.Errorf("double h1 not flagged: %v", poor.Passes.Failed)
	}
}

func TestEvaluateAccessibility(t *testing.T) {
	good, err := evaluateAccessibility(context.Background(), goodSite())
	if err != nil {
		t.Fatalf("evaluateAccessibility: %v", err)
	}
	if good.Score < 8 {
		t.Errorf("good page a11y score = %v, want >= 8 (failed: %v)", good.Score, good.Passes.Failed)
	}
	if !contains(good.Passes.Passed, "form fields labeled") {
		t.Errorf("labeled form not credited: %v", good.Passes.Passed)
	}

	poor, err := evaluateAccessibility(context.Background(), poorSite())
	if err != nil {
		t.Fatalf("evaluateAccessibility(poor): %v", err)
	}
	if poor.Score > 3 {
		t.Errorf("poor page a11y score = %v, want <= 3 (passed: %v)", poor.Score, poor.Passes.Passed)
	}
	if !contains(poor.Passes.Failed, "html lang attribute") {
		t.Errorf("missing lang not flagged: %v", poor.Passes.Failed)
	}
	if !contains(poor.Passes.Failed, "no unlabeled empty links") {
		t.Errorf("empty link not flagged: %v", poor.Passes.Failed)
	}
}

func TestEvaluateAccessibility_HeadingOrder(t *testing.T) {
	// h1 → h3 skips a level.
	site := &models.ScoringContext{HTML: `<html lang="en"><body><main></main><nav></nav><h1>A</h1><h3>B</h3></body></html>`}
	res, err := evaluateAccessibility(context.Background(), site)
	if err != nil {
		t.Fatalf("evaluateAccessibility: %v", err)
	}
	if !contains(res.Passes.Failed, "heading levels in order") {
		t.Errorf("skipped heading level not flagged: %v", res.Passes.Failed)
	}
}

func TestEvaluateTrust(t *testing.T) {
	good, err := evaluateTrust(context.Background(), goodSite())
	if err != nil {
		t.Fatalf("evaluateTrust: %v", err)
	}
	if good.Score < 9 {
		t.Errorf("good page trust score = %v, want >= 9 (failed: %v)", good.Score, good.Passes.Failed)
	}

	poor, err := evaluateTrust(context.Background(), poorSite())
	if err != nil {
		t.Fatalf("evaluateTrust(poor): %v", err)
	}
	if !contains(poor.Passes.Failed, "served over https") {
		t.Errorf("http page not flagged: %v", poor.Passes.Failed)
	}
	if !contains(poor.Passes.Failed, "privacy policy link") {
		t.Errorf("missing privacy link not flagged: %v", poor.Passes.Failed)
	}
}

func TestEvaluateCTA(t *testing.T) {
	good, err := evaluateCTA(context.Background(), goodSite())
	if err != nil {
		t.Fatalf("evaluateCTA: %v", err)
	}
	if good.Score < 8 {
		t.Errorf("good page CTA score = %v, want >= 8 (failed: %v)", good.Score, good.Passes.Failed)
	}
	if !contains(good.Passes.Passed, "CTA in hero region") {
		t.Errorf("hero CTA not credited: %v", good.Passes.Passed)
	}

	poor, err := evaluateCTA(context.Background(), poorSite())
	if err != nil {
		t.Fatalf("evaluateCTA(poor): %v", err)
	}
	if !contains(poor.Passes.Failed, "action-oriented CTA language") {
		t.Errorf("missing action language not flagged: %v", poor.Passes.Failed)
	}
}

func TestEvaluateCTA_FormFriction(t *testing.T) {
	var fields strings.Builder
	for i := 0; i < 8; i++ {
		fields.WriteString(`<input type="text">`)
	}
	site := &models.ScoringContext{
		FinalURL: "https://example.com/",
		HTML: `<html><body><header class="hero"><a href="/go">Get started</a></header>
			<form>` + fields.String() + `</form></body></html>`,
	}

	res, err := evaluateCTA(context.Background(), site)
	if err != nil {
		t.Fatalf("evaluateCTA: %v", err)
	}
	if !contains(res.Passes.Failed, "low-friction form (<= 5 fields)") {
		t.Errorf("8-field form not flagged as high friction: %v", res.Passes.Failed)
	}
}

func TestScoreChecks_Weighting(t *testing.T) {
	res := scoreChecks("x", "desc", []check{
		{name: "a", ok: true, weight: 2},
		{name: "b", ok: false},
		{name: "c", ok: false},
	}, nil)
	// 2 of 4 weight passed.
	if res.Score != 5 {
		t.Errorf("score = %v, want 5", res.Score)
	}
	if len(res.Passes.Passed) != 1 || len(res.Passes.Failed) != 2 {
		t.Errorf("passes = %+v", res.Passes)
	}
}
