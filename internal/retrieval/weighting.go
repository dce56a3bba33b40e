package retrieval

import "strings"

// AdaptiveWeights holds the normalized lexical/semantic weight split used
// to combine the lexical retriever against the dense+sparse retrievers in
// RRF fusion.
type AdaptiveWeights struct {
	Lexical  float64
	Semantic float64
	Sparse   float64
}

// adaptiveWeighting is a pure function of queryText and an optional
// caller-supplied override, per spec.md §4.7 step 4 and invariant 8
// ("Adaptive weighting is a pure function of the query string when
// hybrid_weight is null"). base is the configured default hybrid weight
// (lexical share) when no adaptation condition applies.
func adaptiveWeighting(queryText string, override *float64, base float64) AdaptiveWeights {
	lexical := base
	if override == nil {
		tokenCount := len(strings.Fields(queryText))
		switch {
		case hasQuotedPhrase(queryText):
			lexical = maxFloat(lexical, 0.6)
		case tokenCount > 0 && tokenCount <= 2:
			lexical = clamp01(lexical + 0.2)
		case tokenCount >= 6:
			lexical = clamp01(lexical - 0.2)
		}
	} else {
		lexical = clamp01(*override)
	}

	semanticShare := 1 - lexical
	return AdaptiveWeights{
		Lexical:  lexical,
		Semantic: semanticShare * 0.5,
		Sparse:   semanticShare * 0.5,
	}
}

func hasQuotedPhrase(text string) bool {
	return strings.Contains(text, `"`)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
