package hnsw

// visitedSet tracks visited nodes using a bitset and a dirty list for fast
// reset between searches. Instances are pooled by the index.
type visitedSet struct {
	bits  []uint64
	dirty []uint32
}

func newVisitedSet(capacity int) *visitedSet {
	return &visitedSet{
		bits:  make([]uint64, (capacity+63)/64),
		dirty: make([]uint32, 0, 128),
	}
}

// visit marks a node as visited and reports whether it was already marked.
func (v *visitedSet) visit(id uint32) bool {
	wordIdx := int(id >> 6)
	bitMask := uint64(1) << (id & 63)

	if wordIdx >= len(v.bits) {
		v.grow(wordIdx + 1)
	}

	if v.bits[wordIdx]&bitMask != 0 {
		return true
	}
	v.bits[wordIdx] |= bitMask
	v.dirty = append(v.dirty, id)
	return false
}

// reset clears the visited status for all nodes marked in the current search.
func (v *visitedSet) reset() {
	for _, id := range v.dirty {
		v.bits[id>>6] &^= uint64(1) << (id & 63)
	}
	v.dirty = v.dirty[:0]
}

func (v *visitedSet) grow(words int) {
	next := make([]uint64, words*2)
	copy(next, v.bits)
	v.bits = next
}
