package extract

import (
	"strings"

	"go.uber.org/zap"

	"github.com/meodash/meorank/internal/rank"
)

// Rank computes the target shop's organic position over a candidate list in
// DOM order. The organic subsequence preserves the original order; the rank
// is the 1-based position of the first organic candidate whose display name
// contains the target as a substring. The naive rank over the unfiltered
// list is reported alongside for observability.
func Rank(candidates []rank.ListingCandidate, target string) rank.Extraction {
	out := rank.Extraction{AllCount: len(candidates)}

	organicPos := 0
	for _, c := range candidates {
		if c.Sponsored {
			out.SponsoredCount++
		} else {
			out.OrganicCount++
			organicPos++
		}

		if target == "" || !strings.Contains(c.Name, target) {
			continue
		}
		if out.NaiveRank == nil {
			naive := c.Position
			out.NaiveRank = &naive
		}
		if !c.Sponsored && out.OrganicRank == nil {
			pos := organicPos
			out.OrganicRank = &pos
		}
	}
	return out
}

// Engine implements rank.Extractor over rendered HTML.
type Engine struct {
	logger *zap.Logger
}

// NewEngine constructs an Engine.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// Extract parses the page into candidates and ranks the target. Zero
// candidates is a distinct outcome (ErrNoCandidates): it signals a broken
// page or navigation, not a genuine empty result set.
func (e *Engine) Extract(html []byte, target string) (rank.Extraction, error) {
	candidates, err := ParseCandidates(html)
	if err != nil {
		return rank.Extraction{}, err
	}
	if len(candidates) == 0 {
		return rank.Extraction{}, rank.ErrNoCandidates
	}

	result := Rank(candidates, target)
	e.logger.Debug("extraction pass",
		zap.String("target", target),
		zap.Int("all", result.AllCount),
		zap.Int("organic", result.OrganicCount),
		zap.Int("sponsored", result.SponsoredCount),
		zap.Intp("organic_rank", result.OrganicRank),
		zap.Intp("naive_rank", result.NaiveRank),
	)
	return result, nil
}
