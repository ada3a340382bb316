// Package similarity scores new requests against stored plans by keyword
// overlap, so repeat requests reuse an existing plan instead of spawning a
// duplicate decomposition.
package similarity

import (
	"sort"
	"strings"
	"unicode"

	"planforge/internal/logging"
)

// Relation buckets a similarity score.
type Relation string

const (
	// RelationReuse: the stored plan answers the new request; skip
	// decomposition and reuse it. Requires score strictly above ReuseThreshold.
	RelationReuse Relation = "reuse"
	// RelationRelated: worth surfacing to the user, not a substitute.
	RelationRelated Relation = "related"
	RelationUnrelated Relation = "unrelated"
)

const (
	// ReuseThreshold is exclusive: a score of exactly 0.6 is related, not
	// reuse. Reuse replaces a decomposition, so ties stay conservative.
	ReuseThreshold = 0.6
	// RelatedThreshold is exclusive on the low side.
	RelatedThreshold = 0.3
)

// stopWords are excluded from keyword sets. Short connectives dominate
// request text and would inflate every pairwise score.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "into": true, "then": true, "them": true,
	"will": true, "should": true, "would": true, "could": true, "have": true,
	"has": true, "had": true, "are": true, "was": true, "were": true,
	"can": true, "all": true, "any": true, "its": true, "also": true,
	"you": true, "your": true, "our": true, "but": true, "not": true,
	"please": true, "need": true, "want": true, "make": true, "some": true,
	"new": true, "use": true, "using": true,
}

// minKeywordLen drops tokens too short to carry meaning.
const minKeywordLen = 3

// Match pairs a stored plan with its score against a request.
type Match struct {
	PlanID   string   `json:"plan_id"`
	Score    float64  `json:"score"`
	Relation Relation `json:"relation"`
	Shared   []string `json:"shared,omitempty"`
}

// Keywords tokenizes text into its keyword set: case-folded, punctuation
// split, stop words and short tokens removed.
func Keywords(text string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool)
	for _, w := range words {
		if len(w) < minKeywordLen || stopWords[w] {
			continue
		}
		set[w] = true
	}
	return set
}

// Score computes how much of the request a stored text covers: shared
// keywords divided by the request's keyword count. The denominator is the
// request side on purpose; a stored plan that mentions everything the request
// asks for scores 1.0 no matter how much else it covers. Returns 0 when
// either side has no keywords.
func Score(request, stored string) float64 {
	return scoreSets(Keywords(request), Keywords(stored))
}

func scoreSets(request, stored map[string]bool) float64 {
	if len(request) == 0 || len(stored) == 0 {
		return 0
	}
	shared := 0
	for w := range request {
		if stored[w] {
			shared++
		}
	}
	return float64(shared) / float64(len(request))
}

// Classify buckets a score.
func Classify(score float64) Relation {
	switch {
	case score > ReuseThreshold:
		return RelationReuse
	case score > RelatedThreshold:
		return RelationRelated
	default:
		return RelationUnrelated
	}
}

// Candidate is a stored plan eligible for matching.
type Candidate struct {
	PlanID  string
	Request string
}

// Rank scores a request against every candidate and returns matches at or
// above the related threshold, best first.
func Rank(request string, candidates []Candidate) []Match {
	kr := Keywords(request)
	matches := make([]Match, 0)
	for _, c := range candidates {
		kc := Keywords(c.Request)
		score := scoreSets(kr, kc)
		rel := Classify(score)
		if rel == RelationUnrelated {
			continue
		}
		shared := make([]string, 0)
		for w := range kr {
			if kc[w] {
				shared = append(shared, w)
			}
		}
		sort.Strings(shared)
		matches = append(matches, Match{PlanID: c.PlanID, Score: score, Relation: rel, Shared: shared})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > 0 {
		logging.Similarity("request matched %d stored plans, best %.2f (%s)",
			len(matches), matches[0].Score, matches[0].PlanID)
	}
	return matches
}

// Best returns the top match, or nil when nothing clears the related
// threshold.
func Best(request string, candidates []Candidate) *Match {
	matches := Rank(request, candidates)
	if len(matches) == 0 {
		return nil
	}
	return &matches[0]
}
