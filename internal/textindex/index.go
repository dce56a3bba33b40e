// Package textindex implements the keyword retrieval contract of
// spec.md §4.2: an in-memory inverted index with BM25-like scoring,
// normalized to [0,1] within each result set before RRF fusion.
package textindex

import (
	"math"
	"sort"
	"sync"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Result is one ranked hit from Search.
type Result struct {
	ResourceID string
	Score      float64
}

type docEntry struct {
	termFreq map[string]int
	length   int
}

// Index is a thread-safe, in-process inverted index keyed by resource id.
// It holds no knowledge of resource metadata; callers restrict the
// candidate set via the allowed set passed to Search, which is how
// spec.md's "filters applied before ranking" requirement is satisfied
// without duplicating the Store's filter logic here.
type Index struct {
	mu        sync.RWMutex
	stopwords map[string]bool
	docs      map[string]*docEntry
	postings  map[string]map[string]int // token -> resourceID -> term freq
	totalLen  int
}

// New creates an empty Index using the given stopword set (nil uses
// DefaultStopwords).
func New(stopwords map[string]bool) *Index {
	if stopwords == nil {
		stopwords = DefaultStopwords()
	}
	return &Index{
		stopwords: stopwords,
		docs:      make(map[string]*docEntry),
		postings:  make(map[string]map[string]int),
	}
}

// Index tokenizes textBundle (title ⊕ description ⊕ extracted_text,
// already concatenated by the caller) and replaces any prior entry for
// resourceID.
func (idx *Index) Index(resourceID, textBundle string) {
	tokens := Tokenize(textBundle, idx.stopwords)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeLocked(resourceID)

	tf := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}
	idx.docs[resourceID] = &docEntry{termFreq: tf, length: len(tokens)}
	idx.totalLen += len(tokens)
	for tok, freq := range tf {
		postings, ok := idx.postings[tok]
		if !ok {
			postings = make(map[string]int)
			idx.postings[tok] = postings
		}
		postings[resourceID] = freq
	}
}

// Remove deletes resourceID's entry, if present.
func (idx *Index) Remove(resourceID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(resourceID)
}

func (idx *Index) removeLocked(resourceID string) {
	existing, ok := idx.docs[resourceID]
	if !ok {
		return
	}
	idx.totalLen -= existing.length
	for tok := range existing.termFreq {
		postings := idx.postings[tok]
		delete(postings, resourceID)
		if len(postings) == 0 {
			delete(idx.postings, tok)
		}
	}
	delete(idx.docs, resourceID)
}

// Search tokenizes queryText the same way as Index, scores every
// candidate document containing at least one query token with BM25, and
// returns the top `limit` results with scores normalized to [0,1]. If
// allowed is non-nil, only resource ids present in it are considered.
func (idx *Index) Search(queryText string, limit int, allowed map[string]bool) []Result {
	queryTokens := Tokenize(queryText, idx.stopwords)
	if len(queryTokens) == 0 {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := len(idx.docs)
	if n == 0 {
		return nil
	}
	avgdl := float64(idx.totalLen) / float64(n)
	if avgdl == 0 {
		avgdl = 1
	}

	scores := make(map[string]float64)
	for _, tok := range dedupe(queryTokens) {
		postings, ok := idx.postings[tok]
		if !ok {
			continue
		}
		df := len(postings)
		idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
		for resourceID, tf := range postings {
			if allowed != nil && !allowed[resourceID] {
				continue
			}
			doc := idx.docs[resourceID]
			denom := float64(tf) + bm25K1*(1-bm25B+bm25B*float64(doc.length)/avgdl)
			scores[resourceID] += idf * (float64(tf) * (bm25K1 + 1)) / denom
		}
	}
	if len(scores) == 0 {
		return nil
	}

	results := make([]Result, 0, len(scores))
	maxScore := 0.0
	for id, s := range scores {
		if s > maxScore {
			maxScore = s
		}
		results = append(results, Result{ResourceID: id, Score: s})
	}
	if maxScore > 0 {
		for i := range results {
			results[i].Score /= maxScore
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ResourceID < results[j].ResourceID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func dedupe(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := tokens[:0:0]
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
