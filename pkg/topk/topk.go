// Package topk selects the K most frequent keys of a count map without
// sorting the whole map.
package topk

import (
	"container/heap"
)

// Entry is a key with its hit count.
type Entry struct {
	Count int64  `json:"count"`
	Key   string `json:"key"`
}

// ranksAbove reports whether a ranks strictly higher than b: larger count
// first, then the lexicographically smaller key.
func ranksAbove(a, b Entry) bool {
	if a.Count != b.Count {
		return a.Count > b.Count
	}
	return a.Key < b.Key
}

// minHeap keeps the lowest ranked entry at the root.
type minHeap []Entry

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return ranksAbove(h[j], h[i]) }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(Entry)) }

func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Select returns the k highest ranked entries of counts in descending order.
// Runs in O(n log k) with a heap bounded to k entries. Ties on count are
// broken by key, ascending, so the output is deterministic.
func Select(counts map[string]int64, k int) []Entry {
	if k <= 0 || len(counts) == 0 {
		return []Entry{}
	}

	h := make(minHeap, 0, k)
	for key, count := range counts {
		candidate := Entry{Count: count, Key: key}
		if h.Len() < k {
			heap.Push(&h, candidate)
			continue
		}
		if ranksAbove(candidate, h[0]) {
			h[0] = candidate
			heap.Fix(&h, 0)
		}
	}

	// extract-min fills the result from the back
	result := make([]Entry, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&h).(Entry)
	}
	return result
}
