// Package extract turns rendered map-search result pages into ranked listings.
package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/meodash/meorank/internal/rank"
)

// Sponsorship classification signal names, in priority order. The first
// matching signal wins; later signals are not evaluated.
const (
	SignalAdMarker   = "ad-marker"
	SignalBadgeText  = "badge-text"
	SignalLateText   = "late-text"
	SignalAriaLabel  = "aria-label"
	SignalAdSlotName = "ad-slot-class"
)

// badgeWindow is how far into a candidate's own text a sponsor word is still
// treated as a badge rather than incidental copy.
const badgeWindow = 100

// candidateSelectors locate listing entries inside the rendered results
// feed, most specific first.
var candidateSelectors = []string{
	`div[role="feed"] div[role="article"]`,
	`div[role="feed"] > div:has(a[href*="/maps/place/"])`,
	`div[role="article"]`,
	`div.section-result`,
}

// adMarkerSelectors are explicit structural advertisement markers. Matching
// the candidate itself, an ancestor or a descendant is signal one.
var adMarkerSelectors = []string{
	`[data-is-ad="true"]`,
	`[data-ad="1"]`,
	`[data-text-ad]`,
	`[data-ad-feature]`,
	`.ad-badge`,
}

var (
	// Latin sponsor vocabulary needs word boundaries: "Ad" must not match
	// "Adams Street Diner".
	sponsorWordRe = regexp.MustCompile(`(?i)(^|[^\p{L}])(sponsored|ads?|advertisement|anzeige)($|[^\p{L}])`)

	// CJK vocabulary has no word boundaries; plain containment is correct.
	sponsorCJK = []string{"広告", "スポンサー", "プロモーション"}

	// Accessibility phrasings used by "about this ad" affordances.
	adAriaRe = regexp.MustCompile(`(?i)(about this ad|why this ad|この広告について|広告について)`)

	// Class tokens that suggest an ad slot. Too generic to trust alone: a
	// match counts only when the element's text also carries sponsor
	// vocabulary.
	adClassRe = regexp.MustCompile(`(?i)(^|[\s_-])(ads?|adslot|ad-slot|sponsor\w*|promoted)($|[\s_-])`)

	// Weak badge words accepted only as confirmation inside an ad-classed
	// element. "PR" is the common Japanese ad badge but is far too short to
	// trust anywhere in a listing's text.
	weakBadgeRe = regexp.MustCompile(`(^|[^\p{L}])(PR)($|[^\p{L}])`)

	weakBadgeCJK = []string{"提供"}
)

// ParseCandidates walks the rendered page and returns every listing in raw
// DOM order, each classified as sponsored or organic.
func ParseCandidates(html []byte) ([]rank.ListingCandidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}

	var sel *goquery.Selection
	for _, cs := range candidateSelectors {
		found := doc.Find(cs)
		if found.Length() > 0 {
			sel = found
			break
		}
	}
	if sel == nil {
		return nil, nil
	}

	candidates := make([]rank.ListingCandidate, 0, sel.Length())
	sel.Each(func(i int, s *goquery.Selection) {
		name := displayName(s)
		if name == "" {
			return
		}
		sponsored, signal := classify(s)
		candidates = append(candidates, rank.ListingCandidate{
			Position:  len(candidates) + 1,
			Name:      name,
			TargetURL: placeURL(s),
			Sponsored: sponsored,
			Signal:    signal,
		})
	})
	return candidates, nil
}

// classify applies the sponsorship signals in priority order; first true wins.
func classify(s *goquery.Selection) (bool, string) {
	if hasAdMarker(s) {
		return true, SignalAdMarker
	}
	if ok, signal := textVocabulary(s); ok {
		return true, signal
	}
	if hasAdAriaLabel(s) {
		return true, SignalAriaLabel
	}
	if hasConfirmedAdSlot(s) {
		return true, SignalAdSlotName
	}
	return false, ""
}

func hasAdMarker(s *goquery.Selection) bool {
	for _, marker := range adMarkerSelectors {
		if s.Is(marker) || s.Find(marker).Length() > 0 || s.ParentsFiltered(marker).Length() > 0 {
			return true
		}
	}
	return false
}

// candidateText flattens a selection's text nodes joined by single spaces.
// Selection.Text() concatenates adjacent nodes without separators, which
// would defeat the word-boundary matching below.
func candidateText(s *goquery.Selection) string {
	var parts []string
	collectText(s, &parts)
	return strings.Join(parts, " ")
}

func collectText(s *goquery.Selection, parts *[]string) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			if t := strings.TrimSpace(c.Text()); t != "" {
				*parts = append(*parts, t)
			}
			return
		}
		collectText(c, parts)
	})
}

// textVocabulary scans the candidate's own text for sponsor vocabulary. A
// hit inside the leading badge window outranks a later occurrence, but both
// classify the listing as sponsored.
func textVocabulary(s *goquery.Selection) (bool, string) {
	text := candidateText(s)
	if text == "" {
		return false, ""
	}
	idx := vocabularyIndex(text)
	if idx < 0 {
		return false, ""
	}
	if runeOffset(text, idx) < badgeWindow {
		return true, SignalBadgeText
	}
	return true, SignalLateText
}

// vocabularyIndex returns the byte offset of the earliest sponsor-word hit,
// or -1.
func vocabularyIndex(text string) int {
	best := -1
	if loc := sponsorWordRe.FindStringSubmatchIndex(text); loc != nil {
		// Index of the word itself, not the boundary character before it.
		best = loc[4]
	}
	for _, kw := range sponsorCJK {
		if i := strings.Index(text, kw); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best
}

func runeOffset(text string, byteIdx int) int {
	return len([]rune(text[:byteIdx]))
}

func hasAdAriaLabel(s *goquery.Selection) bool {
	if label, ok := s.Attr("aria-label"); ok && adAriaRe.MatchString(label) {
		return true
	}
	matched := false
	s.Find("[aria-label]").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if label, ok := el.Attr("aria-label"); ok && adAriaRe.MatchString(label) {
			matched = true
			return false
		}
		return true
	})
	return matched
}

// hasConfirmedAdSlot looks for descendants whose class names suggest an ad
// slot, confirmed only when that element's own text carries sponsor
// vocabulary. Unconfirmed class matches are ignored to avoid false positives
// from generic names like "add-to-list".
func hasConfirmedAdSlot(s *goquery.Selection) bool {
	matched := false
	s.Find("[class]").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		class, ok := el.Attr("class")
		if !ok || !adClassRe.MatchString(class) {
			return true
		}
		if confirmsAdSlot(candidateText(el)) {
			matched = true
			return false
		}
		return true
	})
	return matched
}

func confirmsAdSlot(text string) bool {
	if text == "" {
		return false
	}
	if vocabularyIndex(text) >= 0 || weakBadgeRe.MatchString(text) {
		return true
	}
	for _, kw := range weakBadgeCJK {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// displayName resolves the listing's visible name: the place link's
// aria-label when present, otherwise the first heading-like node.
func displayName(s *goquery.Selection) string {
	link := s.Find(`a[href*="/maps/place/"]`).First()
	if label, ok := link.Attr("aria-label"); ok && strings.TrimSpace(label) != "" {
		return strings.TrimSpace(label)
	}
	if label, ok := s.Attr("aria-label"); ok && strings.TrimSpace(label) != "" {
		return strings.TrimSpace(label)
	}
	for _, hs := range []string{".fontHeadlineSmall", "h3", "h2", ".qBF1Pd"} {
		if h := s.Find(hs).First(); h.Length() > 0 {
			if name := strings.TrimSpace(h.Text()); name != "" {
				return name
			}
		}
	}
	return ""
}

func placeURL(s *goquery.Selection) string {
	href, _ := s.Find(`a[href*="/maps/place/"]`).First().Attr("href")
	return href
}
