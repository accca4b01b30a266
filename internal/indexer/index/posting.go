package index

import "fmt"

// PostingList is a strictly ascending, duplicate-free list of document IDs.
type PostingList []uint64

// TermEntry is one (term, postings) pair of a partial index.
type TermEntry struct {
	Term     string
	Postings PostingList
}

// Union merges two ascending posting lists with a two-pointer walk. An ID
// present in both appears once in the result.
func Union(a, b PostingList) PostingList {
	result := make(PostingList, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			result = append(result, a[i])
			i++
		case a[i] > b[j]:
			result = append(result, b[j])
			j++
		default:
			result = append(result, a[i])
			i++
			j++
		}
	}
	result = append(result, a[i:]...)
	result = append(result, b[j:]...)
	return result
}

// Validate reports the first position where p is not strictly ascending.
func (p PostingList) Validate() error {
	for i := 1; i < len(p); i++ {
		if p[i] <= p[i-1] {
			return fmt.Errorf("posting %d at position %d does not follow %d", p[i], i, p[i-1])
		}
	}
	return nil
}

// Equal reports whether p and q hold the same IDs in the same order.
func (p PostingList) Equal(q PostingList) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}
