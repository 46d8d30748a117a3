package browser

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// BlockDetector recognizes anti-bot challenge pages via structural selectors
// and keyword-in-text heuristics.
type BlockDetector struct {
	selectors []string
	keywords  [][]byte
}

var defaultBlockSelectors = []string{
	`form#captcha-form`,
	`iframe[src*="recaptcha"]`,
	`div#recaptcha`,
	`div.g-recaptcha`,
	`form[action*="/sorry/"]`,
}

var defaultBlockKeywords = []string{
	"unusual traffic",
	"not a robot",
	"captcha",
	"通常と異なるトラフィック",
	"ロボットによる",
}

// NewBlockDetector constructs a detector; empty slices fall back to the
// defaults.
func NewBlockDetector(selectors, keywords []string) *BlockDetector {
	if len(selectors) == 0 {
		selectors = defaultBlockSelectors
	}
	if len(keywords) == 0 {
		keywords = defaultBlockKeywords
	}
	lowered := make([][]byte, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		lowered = append(lowered, bytes.ToLower([]byte(kw)))
	}
	return &BlockDetector{selectors: selectors, keywords: lowered}
}

// Detect reports whether the page is a challenge rather than real results,
// along with the signal that fired.
func (d *BlockDetector) Detect(html []byte) (bool, string) {
	if d == nil || len(html) == 0 {
		return false, ""
	}
	if selector, ok := d.matchSelector(html); ok {
		return true, "selector " + selector
	}
	if kw, ok := d.matchKeyword(html); ok {
		return true, "keyword " + kw
	}
	return false, ""
}

func (d *BlockDetector) matchSelector(html []byte) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", false
	}
	for _, sel := range d.selectors {
		if doc.Find(sel).Length() > 0 {
			return sel, true
		}
	}
	return "", false
}

func (d *BlockDetector) matchKeyword(html []byte) (string, bool) {
	lower := bytes.ToLower(html)
	for _, kw := range d.keywords {
		if bytes.Contains(lower, kw) {
			return string(kw), true
		}
	}
	return "", false
}
