package enrichment

import (
	"context"
	"testing"
)

func TestLocalQualityScorerRewardsSpecificityAndPenalizesVagueness(t *testing.T) {
	scorer := NewLocalQualityScorer(0.2, 0.2, 0.2, 0.2, 0.2)

	specific := QualityInput{
		Title:              "Report",
		Description:        "A detailed report on Acme Corp revenue.",
		Text:                "Acme Corp grew revenue by 40% to $100M in 2024, led by Jane Smith.",
		Subject:            []string{"finance"},
		ClassificationCode: "004.6",
		Embedding:          []float64{0.1, 0.2},
		CitationCount:      2,
	}
	vague := QualityInput{
		Title:       "Report",
		Description: "Several various things happened.",
		Text:        "Many different things occurred in numerous ways for certain reasons.",
	}

	specificResult, err := scorer.Score(context.Background(), specific)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	vagueResult, err := scorer.Score(context.Background(), vague)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	if specificResult.Accuracy <= vagueResult.Accuracy {
		t.Errorf("expected specific text to score higher accuracy than vague text: %v vs %v", specificResult.Accuracy, vagueResult.Accuracy)
	}
	if specificResult.Completeness <= vagueResult.Completeness {
		t.Errorf("expected specific input to score higher completeness: %v vs %v", specificResult.Completeness, vagueResult.Completeness)
	}
	if specificResult.Overall <= vagueResult.Overall {
		t.Errorf("expected specific input to score higher overall: %v vs %v", specificResult.Overall, vagueResult.Overall)
	}
}

func TestLocalQualityScorerAccuracyClampedToUnitRange(t *testing.T) {
	scorer := NewLocalQualityScorer(1, 0, 0, 0, 0)
	result, err := scorer.Score(context.Background(), QualityInput{
		Text: "10% 20% 30% 40% 50% Apple Microsoft Google Amazon Meta",
	})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if result.Accuracy < 0 || result.Accuracy > 1 {
		t.Errorf("expected accuracy in [0,1], got %v", result.Accuracy)
	}
}
