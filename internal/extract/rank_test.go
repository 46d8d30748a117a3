package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meodash/meorank/internal/rank"
)

func candidate(pos int, name string, sponsored bool) rank.ListingCandidate {
	return rank.ListingCandidate{Position: pos, Name: name, Sponsored: sponsored}
}

func TestRankSkipsSponsoredListings(t *testing.T) {
	t.Parallel()

	// Sponsored at raw positions 1 and 3; target at raw position 4 is the
	// second organic entry.
	candidates := []rank.ListingCandidate{
		candidate(1, "Paid Sushi Palace", true),
		candidate(2, "Ramen Alley", false),
		candidate(3, "Promoted Izakaya", true),
		candidate(4, "Tokyo Sushi Bar Shibuya", false),
	}

	result := Rank(candidates, "Tokyo Sushi Bar")

	require.NotNil(t, result.OrganicRank)
	assert.Equal(t, 2, *result.OrganicRank)
	require.NotNil(t, result.NaiveRank)
	assert.Equal(t, 4, *result.NaiveRank)
	assert.Equal(t, 4, result.AllCount)
	assert.Equal(t, 2, result.OrganicCount)
	assert.Equal(t, 2, result.SponsoredCount)
}

func TestRankLeadingSponsoredPair(t *testing.T) {
	t.Parallel()

	candidates := []rank.ListingCandidate{
		candidate(1, "A Sponsored Diner", true),
		candidate(2, "B Sponsored Grill", true),
		candidate(3, "Tokyo Sushi Bar Shibuya", false),
		candidate(4, "C Noodle House", false),
	}

	result := Rank(candidates, "Tokyo Sushi Bar")

	require.NotNil(t, result.OrganicRank)
	assert.Equal(t, 1, *result.OrganicRank)
}

func TestRankTargetNotFoundReturnsNil(t *testing.T) {
	t.Parallel()

	candidates := []rank.ListingCandidate{
		candidate(1, "Ramen Alley", false),
		candidate(2, "Curry Corner", false),
	}

	result := Rank(candidates, "Tokyo Sushi Bar")

	assert.Nil(t, result.OrganicRank)
	assert.Nil(t, result.NaiveRank)
	assert.Equal(t, 2, result.OrganicCount)
}

func TestRankSponsoredOnlyMatchKeepsOrganicNil(t *testing.T) {
	t.Parallel()

	// The target appearing only as an ad must not produce an organic rank.
	candidates := []rank.ListingCandidate{
		candidate(1, "Tokyo Sushi Bar Shibuya", true),
		candidate(2, "Ramen Alley", false),
	}

	result := Rank(candidates, "Tokyo Sushi Bar")

	assert.Nil(t, result.OrganicRank)
	require.NotNil(t, result.NaiveRank)
	assert.Equal(t, 1, *result.NaiveRank)
}

func TestRankMatchIsCaseSensitiveContainment(t *testing.T) {
	t.Parallel()

	candidates := []rank.ListingCandidate{
		candidate(1, "tokyo sushi bar", false),
		candidate(2, "The Tokyo Sushi Bar Annex", false),
	}

	result := Rank(candidates, "Tokyo Sushi Bar")

	require.NotNil(t, result.OrganicRank)
	assert.Equal(t, 2, *result.OrganicRank)
}

func TestRankPreservesOrganicOrder(t *testing.T) {
	t.Parallel()

	candidates := []rank.ListingCandidate{
		candidate(1, "First Organic", false),
		candidate(2, "Sponsored Slot", true),
		candidate(3, "Second Organic", false),
		candidate(4, "Third Organic", false),
	}

	result := Rank(candidates, "Third Organic")

	require.NotNil(t, result.OrganicRank)
	assert.Equal(t, 3, *result.OrganicRank)
}

func TestEngineExtractNoCandidatesIsDistinctError(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil)

	_, err := engine.Extract([]byte(`<html><body><div>maintenance page</div></body></html>`), "Tokyo Sushi Bar")
	require.ErrorIs(t, err, rank.ErrNoCandidates)
}

func TestEngineExtractEndToEnd(t *testing.T) {
	t.Parallel()

	html := []byte(`<html><body><div role="feed">
		<div role="article" aria-label="Paid Sushi Palace">
			<span>Sponsored</span>
			<a href="/maps/place/paid-sushi-palace">Paid Sushi Palace</a>
		</div>
		<div role="article" aria-label="Tokyo Sushi Bar Shibuya">
			<a href="/maps/place/tokyo-sushi-bar">Tokyo Sushi Bar Shibuya</a>
			<span>4.6 stars</span>
		</div>
		<div role="article" aria-label="Ramen Alley">
			<a href="/maps/place/ramen-alley">Ramen Alley</a>
		</div>
	</div></body></html>`)

	engine := NewEngine(nil)
	result, err := engine.Extract(html, "Tokyo Sushi Bar")
	require.NoError(t, err)

	require.NotNil(t, result.OrganicRank)
	assert.Equal(t, 1, *result.OrganicRank)
	assert.Equal(t, 3, result.AllCount)
	assert.Equal(t, 1, result.SponsoredCount)
	assert.Equal(t, 2, result.OrganicCount)
}
