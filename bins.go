package lss

import "sort"

// Bins holds the results already computed for the current grid point, keyed by label. The
// integrals entering one grid point are reused across the quantities built from them, so each is
// computed once per point. A Bins belongs to one worker and is not safe for concurrent use.
type Bins struct {
	results map[string]Result
	hits    int
}

// NewBins returns an empty cache.
func NewBins() *Bins {
	return &Bins{results: make(map[string]Result)}
}

// Lookup returns the result stored under label.
func (b *Bins) Lookup(label string) (Result, bool) {
	r, ok := b.results[label]
	return r, ok
}

// Store records r under label, replacing any previous entry.
func (b *Bins) Store(label string, r Result) {
	b.results[label] = r
}

// Memo returns the result stored under label, computing and storing it first when absent. Errors
// are returned as is and nothing is stored for them.
func (b *Bins) Memo(label string, compute func() (Result, error)) (Result, error) {
	if r, ok := b.results[label]; ok {
		b.hits++
		return r, nil
	}
	r, err := compute()
	if err != nil {
		return r, err
	}
	b.results[label] = r
	return r, nil
}

// Reset empties the cache, typically before moving on to the next grid point.
func (b *Bins) Reset() {
	for k := range b.results {
		delete(b.results, k)
	}
	b.hits = 0
}

// Len returns the number of stored results.
func (b *Bins) Len() int {
	return len(b.results)
}

// Hits returns how many Memo calls were served from the cache since the last Reset.
func (b *Bins) Hits() int {
	return b.hits
}

// Labels returns the stored labels in lexical order.
func (b *Bins) Labels() []string {
	labels := make([]string, 0, len(b.results))
	for l := range b.results {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}
