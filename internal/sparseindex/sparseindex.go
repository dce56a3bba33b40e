// Package sparseindex implements the learned-sparse-vector retrieval
// contract of spec.md §4.4: {token_id: weight} mappings scored by inner
// product on the non-zero token intersection, normalized to [0,1] within
// each result set, the same "plain Go map, brute-force top-k" shape as
// internal/vectorindex.MemoryIndex but keyed by int instead of float64
// slice index.
package sparseindex

import (
	"sort"
	"sync"
)

// Match is one ranked hit from Search.
type Match struct {
	ResourceID string
	Score      float64 // inner product, normalized to [0,1] within the result set
}

// Index is a thread-safe, in-memory sparse vector index. A second
// posting-list structure (token id -> resource ids) is kept alongside
// the raw vectors so Search only visits documents that share at least
// one nonzero token with the query, rather than scanning every document.
type Index struct {
	mu       sync.RWMutex
	vectors  map[string]map[int]float64
	postings map[int]map[string]bool
}

// New creates an empty sparse index.
func New() *Index {
	return &Index{
		vectors:  make(map[string]map[int]float64),
		postings: make(map[int]map[string]bool),
	}
}

// Add stores sparseVec for resourceID, replacing any prior entry.
func (idx *Index) Add(resourceID string, sparseVec map[int]float64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeLocked(resourceID)

	cp := make(map[int]float64, len(sparseVec))
	for tokenID, weight := range sparseVec {
		if weight == 0 {
			continue
		}
		cp[tokenID] = weight
		postings, ok := idx.postings[tokenID]
		if !ok {
			postings = make(map[string]bool)
			idx.postings[tokenID] = postings
		}
		postings[resourceID] = true
	}
	idx.vectors[resourceID] = cp
}

// Remove deletes resourceID's entry, if present.
func (idx *Index) Remove(resourceID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(resourceID)
}

func (idx *Index) removeLocked(resourceID string) {
	existing, ok := idx.vectors[resourceID]
	if !ok {
		return
	}
	for tokenID := range existing {
		postings := idx.postings[tokenID]
		delete(postings, resourceID)
		if len(postings) == 0 {
			delete(idx.postings, tokenID)
		}
	}
	delete(idx.vectors, resourceID)
}

// Search returns up to limit matches ranked by inner product against
// querySparse, normalized to [0,1] within the result set. If allowed is
// non-nil, only resource ids present in it are considered.
func (idx *Index) Search(querySparse map[int]float64, limit int, allowed map[string]bool) []Match {
	if len(querySparse) == 0 {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	scores := make(map[string]float64)
	for tokenID, qWeight := range querySparse {
		if qWeight == 0 {
			continue
		}
		for resourceID := range idx.postings[tokenID] {
			if allowed != nil && !allowed[resourceID] {
				continue
			}
			scores[resourceID] += qWeight * idx.vectors[resourceID][tokenID]
		}
	}
	if len(scores) == 0 {
		return nil
	}

	maxScore := 0.0
	matches := make([]Match, 0, len(scores))
	for id, s := range scores {
		if s > maxScore {
			maxScore = s
		}
		matches = append(matches, Match{ResourceID: id, Score: s})
	}
	if maxScore > 0 {
		for i := range matches {
			matches[i].Score /= maxScore
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ResourceID < matches[j].ResourceID
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
