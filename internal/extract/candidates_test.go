package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedPage(entries ...string) []byte {
	return []byte(fmt.Sprintf(
		`<html><body><div role="feed">%s</div></body></html>`,
		strings.Join(entries, "\n"),
	))
}

func entry(name, inner string) string {
	return fmt.Sprintf(
		`<div role="article" aria-label=%q>%s<a href="/maps/place/x">link</a></div>`,
		name, inner,
	)
}

func TestParseCandidatesPreservesDOMOrder(t *testing.T) {
	t.Parallel()

	html := feedPage(
		entry("First Cafe", ""),
		entry("Second Cafe", ""),
		entry("Third Cafe", ""),
	)

	candidates, err := ParseCandidates(html)
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	assert.Equal(t, "First Cafe", candidates[0].Name)
	assert.Equal(t, 1, candidates[0].Position)
	assert.Equal(t, "Third Cafe", candidates[2].Name)
	assert.Equal(t, 3, candidates[2].Position)
}

func TestParseCandidatesEmptyFeed(t *testing.T) {
	t.Parallel()

	candidates, err := ParseCandidates([]byte(`<html><body><p>nothing here</p></body></html>`))
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestClassifySignals(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		entry      string
		sponsored  bool
		wantSignal string
	}{
		{
			name:       "explicit ad marker on descendant",
			entry:      entry("Marked Cafe", `<div data-text-ad="1">promo</div>`),
			sponsored:  true,
			wantSignal: SignalAdMarker,
		},
		{
			name:       "sponsor word inside badge window",
			entry:      entry("Badged Cafe", `<span>Sponsored</span>`),
			sponsored:  true,
			wantSignal: SignalBadgeText,
		},
		{
			name: "sponsor word far into the text",
			entry: entry("Chatty Cafe",
				`<p>`+strings.Repeat("lovely terrace seating here ", 8)+`this listing is an advertisement</p>`),
			sponsored:  true,
			wantSignal: SignalLateText,
		},
		{
			name:       "japanese ad badge",
			entry:      entry("Tokyo Cafe", `<span>広告</span>`),
			sponsored:  true,
			wantSignal: SignalBadgeText,
		},
		{
			name:       "about-this-ad accessibility label",
			entry:      entry("Labeled Cafe", `<button aria-label="About this ad">i</button>`),
			sponsored:  true,
			wantSignal: SignalAriaLabel,
		},
		{
			name:       "ad slot class confirmed by PR badge",
			entry:      entry("Slotted Cafe", `<div class="result-ad-slot">PR</div>`),
			sponsored:  true,
			wantSignal: SignalAdSlotName,
		},
		{
			name:      "ad-like class without vocabulary stays organic",
			entry:     entry("Address Cafe", `<div class="ad-slot">12 Harbor Road</div>`),
			sponsored: false,
		},
		{
			name:      "short ad token inside a word stays organic",
			entry:     entry("Adams Cafe", `<p>Adams Street adjacent, admired adverts-free patio</p>`),
			sponsored: false,
		},
		{
			name:      "plain organic listing",
			entry:     entry("Plain Cafe", `<p>Open late, great coffee</p>`),
			sponsored: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			candidates, err := ParseCandidates(feedPage(tc.entry))
			require.NoError(t, err)
			require.Len(t, candidates, 1)

			assert.Equal(t, tc.sponsored, candidates[0].Sponsored)
			if tc.wantSignal != "" {
				assert.Equal(t, tc.wantSignal, candidates[0].Signal)
			}
		})
	}
}

func TestClassifyFirstSignalWins(t *testing.T) {
	t.Parallel()

	// Both an explicit marker and badge text are present; the marker has
	// priority.
	html := feedPage(entry("Double Cafe", `<div data-text-ad="1">Sponsored</div>`))

	candidates, err := ParseCandidates(html)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, SignalAdMarker, candidates[0].Signal)
}

func TestDisplayNamePrefersPlaceLinkLabel(t *testing.T) {
	t.Parallel()

	html := feedPage(
		`<div role="article"><a href="/maps/place/y" aria-label="Linked Name">x</a></div>`,
	)

	candidates, err := ParseCandidates(html)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Linked Name", candidates[0].Name)
	assert.Equal(t, "/maps/place/y", candidates[0].TargetURL)
}

func TestParseCandidatesSkipsNamelessEntries(t *testing.T) {
	t.Parallel()

	html := feedPage(
		`<div role="article"><a href="/maps/place/z"></a></div>`,
		entry("Named Cafe", ""),
	)

	candidates, err := ParseCandidates(html)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Named Cafe", candidates[0].Name)
	assert.Equal(t, 1, candidates[0].Position)
}
