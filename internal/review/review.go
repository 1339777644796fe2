// Package review ranks items for human attention: critical integrity
// issues first, then identifier candidates awaiting selection, then linked
// records missing required citation fields. Suggestions are surfaced, never
// auto-applied.
package review

import (
	"sort"

	"citetrack/internal/integrity"
	"citetrack/internal/item"
)

// Class identifies why an item needs review.
type Class string

const (
	ClassIntegrity        Class = "integrity"
	ClassIdentifierReview Class = "identifier_review"
	ClassCompleteness     Class = "completeness"
)

var classOrder = map[Class]int{
	ClassIntegrity:        0,
	ClassIdentifierReview: 1,
	ClassCompleteness:     2,
}

// Suggestion is one item surfaced for review, with the material the user
// needs to act on it.
type Suggestion struct {
	ItemID        int64
	SourceURL     string
	Class         Class
	Reason        string
	Candidates    []item.IdentifierCandidate
	MissingFields []string
}

// Rank orders items for review. Each item appears at most once, in its
// highest-priority class; within a class the items waiting longest surface
// first.
func Rank(items []item.URLItem) []Suggestion {
	type ranked struct {
		Suggestion
		updatedAt int64
	}
	var out []ranked

	for _, it := range items {
		sug, ok := classify(it)
		if !ok {
			continue
		}
		out = append(out, ranked{Suggestion: sug, updatedAt: it.UpdatedAt.UnixNano()})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if classOrder[out[i].Class] != classOrder[out[j].Class] {
			return classOrder[out[i].Class] < classOrder[out[j].Class]
		}
		return out[i].updatedAt < out[j].updatedAt
	})

	suggestions := make([]Suggestion, len(out))
	for i, r := range out {
		suggestions[i] = r.Suggestion
	}
	return suggestions
}

func classify(it item.URLItem) (Suggestion, bool) {
	for _, issue := range integrity.Check(it) {
		if issue.Severity == integrity.SeverityCritical {
			return Suggestion{
				ItemID:    it.ID,
				SourceURL: it.SourceURL,
				Class:     ClassIntegrity,
				Reason:    issue.Description,
			}, true
		}
	}
	if unreviewed := it.UnreviewedCandidates(); len(unreviewed) > 0 {
		return Suggestion{
			ItemID:     it.ID,
			SourceURL:  it.SourceURL,
			Class:      ClassIdentifierReview,
			Reason:     "identifier candidates await selection",
			Candidates: unreviewed,
		}, true
	}
	if it.Linked() {
		if complete, missing := it.CitationCompleteness(); !complete {
			return Suggestion{
				ItemID:        it.ID,
				SourceURL:     it.SourceURL,
				Class:         ClassCompleteness,
				Reason:        "linked record is missing required citation fields",
				MissingFields: missing,
			}, true
		}
	}
	return Suggestion{}, false
}
