// Package content prepares page HTML for the AI-judged criteria: readability
// extraction to isolate the substance, markdown conversion for a compact
// model-friendly representation, and a DOM outline for structural judgment.
package content

import (
	"fmt"
	"log/slog"
	nurl "net/url"
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// minContentLength is the minimum readability TextContent length (in
// characters) before we assume the algorithm missed the main content and
// fall back to converting the full page.
const minContentLength = 50

// Preparer converts rendered HTML into judge-ready text.
// The converter is created once and reused across runs (goroutine-safe).
type Preparer struct {
	mdConverter *converter.Converter
}

// NewPreparer initialises the Preparer with a pre-configured converter:
// base plugin strips script/style/head noise, commonmark renders standard
// Markdown, and the table plugin keeps tabular content legible with
// minimal padding so it costs fewer tokens.
func NewPreparer() *Preparer {
	return &Preparer{
		mdConverter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(
					table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
				),
			),
		),
	}
}

// Markdown extracts the page's main content with readability and converts
// it to Markdown, truncated to at most maxTokens (estimated).
//
// Readability failures never abort scoring: the full page HTML is converted
// instead, which is noisier but still judgeable.
func (p *Preparer) Markdown(rawHTML, sourceURL string, maxTokens int) (string, error) {
	html := rawHTML
	if parsedURL, err := nurl.Parse(sourceURL); err == nil {
		article, err := readability.FromReader(strings.NewReader(rawHTML), parsedURL)
		if err == nil && len(strings.TrimSpace(article.TextContent)) >= minContentLength {
			html = article.Content
		} else {
			slog.Debug("readability extraction unusable, converting full page",
				"url", sourceURL, "error", err)
		}
	}

	md, err := p.mdConverter.ConvertString(html, converter.WithDomain(sourceURL))
	if err != nil {
		return "", fmt.Errorf("content: markdown conversion: %w", err)
	}
	return TruncateTokens(md, maxTokens), nil
}

// Outline renders a compact structural sketch of the page: headings in
// document order with their nesting level, plus landmark regions. The
// visual_hierarchy judge reads this instead of raw HTML.
func Outline(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	var b strings.Builder
	doc.Find("header, nav, main, aside, footer, h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		tag := goquery.NodeName(s)
		switch tag {
		case "header", "nav", "main", "aside", "footer":
			fmt.Fprintf(&b, "[%s]\n", tag)
		default:
			depth := int(tag[1] - '0')
			text := strings.Join(strings.Fields(s.Text()), " ")
			if len(text) > 80 {
				text = text[:80]
			}
			fmt.Fprintf(&b, "%s%s: %s\n", strings.Repeat("  ", depth-1), tag, text)
		}
	})
	return b.String()
}

// HeroText returns the visible text of the above-the-fold region: the first
// header/hero-like block, falling back to the first ~1200 characters of
// body text. Used by the messaging_clarity judge.
func HeroText(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	for _, sel := range []string{"header", "[class*=hero]", "main h1"} {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		if sel == "main h1" {
			// The h1 alone is usually just a slogan; its parent block
			// carries the supporting copy.
			s = s.Parent()
		}
		text := strings.Join(strings.Fields(s.Text()), " ")
		if len(text) >= minContentLength {
			return TruncateTokens(text, 400)
		}
	}

	body := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	if len(body) > 1200 {
		body = body[:1200]
	}
	return body
}

// EstimateTokens provides a fast token count estimate without a tokenizer.
//
// Heuristic: utf8 rune count / 3 — a middle ground between English
// (~4 chars/token) and CJK (~1.5 chars/token) that slightly over-estimates.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	est := n / 3
	if est < 1 {
		return 1
	}
	return est
}

// TruncateTokens cuts text to approximately maxTokens, on a rune boundary.
func TruncateTokens(text string, maxTokens int) string {
	if maxTokens <= 0 || EstimateTokens(text) <= maxTokens {
		return text
	}
	runes := []rune(text)
	limit := maxTokens * 3
	if limit >= len(runes) {
		return text
	}
	return string(runes[:limit])
}
