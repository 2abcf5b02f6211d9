// Package classifier maps free-text utterances onto the closed intent set.
// Classification is pure pattern matching over a static weighted table:
// identical input always produces the identical Result.
package classifier

import (
	"strings"

	"github.com/opuscare/sahayak/internal/policy"
)

type Classifier struct {
	groups        []group
	confidenceMin float64
}

// New builds a classifier over the default pattern table. confidenceMin is
// the floor below which a classification is forced to UNCLEAR.
func New(confidenceMin float64) *Classifier {
	return &Classifier{
		groups:        defaultGroups(),
		confidenceMin: confidenceMin,
	}
}

// Classify scores the utterance against every pattern group and returns the
// winning intent. The prior intent is accepted per the turn contract but
// does not bias matching; carrying an intent across turns is the
// orchestrator's decision, not the classifier's.
//
// A group's score is the weight of its strongest matched pattern;
// confidence is score over the group's max weight. No match, a sub-floor
// confidence, or a top-weight tie between two groups all yield UNCLEAR.
// Malformed or empty input yields UNCLEAR with confidence 0, never an error.
func (c *Classifier) Classify(utterance string, _ Intent) Result {
	trimmed := strings.TrimSpace(utterance)
	if trimmed == "" {
		return Result{Intent: IntentUnclear, Confidence: 0}
	}

	var (
		best        *group
		bestScore   float64
		bestMatched []string
		tied        bool
		tiedMatched []string
	)

	for i := range c.groups {
		g := &c.groups[i]
		score, matched := scoreGroup(g, trimmed)
		if score == 0 {
			continue
		}
		switch {
		case score > bestScore:
			best, bestScore, bestMatched = g, score, matched
			tied = false
			tiedMatched = nil
		case score == bestScore && best != nil && g.intent != best.intent:
			tied = true
			tiedMatched = append(append(tiedMatched, bestMatched...), matched...)
		}
	}

	if best == nil {
		return Result{Intent: IntentUnclear, Confidence: 0}
	}

	confidence := policy.ClampConfidence(bestScore / best.maxWeight)

	if tied {
		// Two intents claim the same top weight: ambiguous, never guess.
		return Result{Intent: IntentUnclear, Confidence: confidence, MatchedPatterns: dedupeLabels(tiedMatched)}
	}
	if policy.BelowConfidence(confidence, c.confidenceMin) {
		return Result{Intent: IntentUnclear, Confidence: confidence, MatchedPatterns: bestMatched}
	}

	return Result{Intent: best.intent, Confidence: confidence, MatchedPatterns: bestMatched}
}

// scoreGroup returns the strongest matched weight and every matched label,
// in declared pattern order.
func scoreGroup(g *group, utterance string) (float64, []string) {
	var score float64
	var matched []string
	for _, p := range g.patterns {
		if p.re.MatchString(utterance) {
			matched = append(matched, p.label)
			if p.weight > score {
				score = p.weight
			}
		}
	}
	return score, matched
}

func dedupeLabels(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	var out []string
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}
