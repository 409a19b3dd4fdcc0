package spatial

import (
	"cmp"
	"fmt"
	"slices"
)

// IndexKind selects the bucket index implementation.
type IndexKind string

const (
	// IndexSorted orders (hash, index) pairs and finds buckets by binary search.
	IndexSorted IndexKind = "sorted"
	// IndexCellMap keys agent lists by hash in a map.
	IndexCellMap IndexKind = "cellmap"
)

// Index groups agent indices by cell hash. It is built once per tick and is
// read-only afterwards, so concurrent Bucket calls are safe.
type Index interface {
	// Build replaces the index contents. hashes[i] is the hash of agent i.
	Build(hashes []Hash)
	// Bucket returns the indices of all agents with hash h. The slice is
	// owned by the index and must not be modified.
	Bucket(h Hash) []int32
	// Len returns the number of indexed agents.
	Len() int
}

// NewIndex creates an empty index of the given kind.
func NewIndex(kind IndexKind) (Index, error) {
	switch kind {
	case IndexSorted, "":
		return &SortedIndex{}, nil
	case IndexCellMap:
		return NewCellMap(), nil
	default:
		return nil, fmt.Errorf("spatial: unknown index kind %q", kind)
	}
}

// HashAndIndex pairs an agent index with its cell hash.
type HashAndIndex struct {
	Hash  Hash
	Index int32
}

// SortedIndex stores (hash, index) pairs ordered by hash. Agents sharing a
// hash are contiguous and ordered by index.
type SortedIndex struct {
	pairs   []HashAndIndex
	hashes  []Hash
	indices []int32
}

// Build sorts the pairs and splits them into parallel hash and index arrays.
func (s *SortedIndex) Build(hashes []Hash) {
	n := len(hashes)
	s.pairs = slices.Grow(s.pairs[:0], n)
	for i, h := range hashes {
		s.pairs = append(s.pairs, HashAndIndex{Hash: h, Index: int32(i)})
	}

	slices.SortStableFunc(s.pairs, func(a, b HashAndIndex) int {
		return cmp.Compare(a.Hash, b.Hash)
	})

	s.hashes = slices.Grow(s.hashes[:0], n)[:n]
	s.indices = slices.Grow(s.indices[:0], n)[:n]
	for i, p := range s.pairs {
		s.hashes[i] = p.Hash
		s.indices[i] = p.Index
	}
}

// First returns the position of the first pair with hash h, or -1.
func (s *SortedIndex) First(h Hash) int {
	lo, hi := 0, len(s.hashes)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if s.hashes[mid] < h {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(s.hashes) && s.hashes[lo] == h {
		return lo
	}
	return -1
}

// Bucket returns the contiguous run of indices with hash h.
func (s *SortedIndex) Bucket(h Hash) []int32 {
	start := s.First(h)
	if start < 0 {
		return nil
	}
	end := start + 1
	for end < len(s.hashes) && s.hashes[end] == h {
		end++
	}
	return s.indices[start:end]
}

// Pairs returns the sorted pairs.
func (s *SortedIndex) Pairs() []HashAndIndex {
	return s.pairs
}

// Len returns the number of indexed agents.
func (s *SortedIndex) Len() int {
	return len(s.indices)
}

// CellMap is a multi-map from hash to agent indices. Bucket slices keep
// their capacity between builds.
type CellMap struct {
	buckets map[Hash][]int32
	n       int
}

// NewCellMap creates an empty cell map.
func NewCellMap() *CellMap {
	return &CellMap{buckets: make(map[Hash][]int32)}
}

// Build clears all buckets and inserts every agent. Buckets left empty by
// the previous tick are dropped.
func (m *CellMap) Build(hashes []Hash) {
	for h, b := range m.buckets {
		if len(b) == 0 {
			delete(m.buckets, h)
			continue
		}
		m.buckets[h] = b[:0]
	}
	for i, h := range hashes {
		m.buckets[h] = append(m.buckets[h], int32(i))
	}
	m.n = len(hashes)
}

// Bucket returns the indices stored under h.
func (m *CellMap) Bucket(h Hash) []int32 {
	return m.buckets[h]
}

// Len returns the number of indexed agents.
func (m *CellMap) Len() int {
	return m.n
}
