package enrichment

import (
	"context"
	"regexp"
	"strings"
)

// vaguePhrases mirrors the teacher's internal/quality.VaguePhrases list,
// used to penalize generic filler in the completeness/accuracy heuristics
// below.
var vaguePhrases = []string{
	"several", "various", "multiple", "many", "some", "a number of",
	"numerous", "different", "a few", "a couple of", "certain",
}

var numberPattern = regexp.MustCompile(`\d+%|\d+x|\$[\d,]+(?:\.\d+)?[BMK]?|[\d,]+`)
var properNounPattern = regexp.MustCompile(`\b[A-Z][a-z]{2,}\b`)

func detectVaguePhrases(text string) int {
	lower := strings.ToLower(text)
	count := 0
	for _, p := range vaguePhrases {
		count += strings.Count(lower, p)
	}
	return count
}

func detectNumbers(text string) int {
	return len(numberPattern.FindAllString(text, -1))
}

func detectProperNouns(text string) int {
	return len(properNounPattern.FindAllString(text, -1))
}

// specificityScore mirrors the teacher's
// internal/quality.CalculateSpecificityScore: numbers and proper nouns
// each contribute up to 40 points, vague phrases penalize 10 points each,
// clamped to [0, 100].
func specificityScore(numbers, properNouns, vague int) float64 {
	score := min(numbers*10, 40) + min(properNouns*8, 40) - vague*10
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return float64(score) / 100.0
}

// LocalQualityScorer computes the five quality dimensions algorithmically
// from a resource's enriched fields, with no model call. Grounded on the
// teacher's internal/quality.DigestEvaluator.EvaluateDigest: citation
// coverage feeds Completeness, vagueness/specificity feed Accuracy,
// classification/subject presence feeds Consistency and Relevance.
type LocalQualityScorer struct {
	WeightAccuracy     float64
	WeightCompleteness float64
	WeightConsistency  float64
	WeightTimeliness   float64
	WeightRelevance    float64
}

func NewLocalQualityScorer(wAccuracy, wCompleteness, wConsistency, wTimeliness, wRelevance float64) *LocalQualityScorer {
	return &LocalQualityScorer{
		WeightAccuracy:     wAccuracy,
		WeightCompleteness: wCompleteness,
		WeightConsistency:  wConsistency,
		WeightTimeliness:   wTimeliness,
		WeightRelevance:    wRelevance,
	}
}

func (s *LocalQualityScorer) Score(_ context.Context, in QualityInput) (*QualityResult, error) {
	words := len(strings.Fields(in.Text))

	vague := detectVaguePhrases(in.Description + " " + in.Text)
	numbers := detectNumbers(in.Text)
	nouns := detectProperNouns(in.Text)
	specificity := specificityScore(numbers, nouns, vague)

	accuracy := specificity

	completeness := 0.0
	if in.Title != "" {
		completeness += 0.25
	}
	if in.Description != "" {
		completeness += 0.25
	}
	if words >= 100 {
		completeness += 0.25
	}
	if in.CitationCount > 0 {
		completeness += 0.25
	}

	consistency := 0.0
	if in.ClassificationCode != "" {
		consistency += 0.5
	}
	if len(in.Subject) > 0 {
		consistency += 0.5
	}

	timeliness := 1.0 // no external freshness signal available locally

	relevance := 0.0
	if in.Embedding != nil {
		relevance += 0.5
	}
	if len(in.Subject) > 0 {
		relevance += 0.5
	}

	overall := accuracy*s.WeightAccuracy +
		completeness*s.WeightCompleteness +
		consistency*s.WeightConsistency +
		timeliness*s.WeightTimeliness +
		relevance*s.WeightRelevance

	return &QualityResult{
		Accuracy:     accuracy,
		Completeness: completeness,
		Consistency:  consistency,
		Timeliness:   timeliness,
		Relevance:    relevance,
		Overall:      overall,
	}, nil
}
