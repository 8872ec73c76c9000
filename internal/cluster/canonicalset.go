package cluster

import (
	"github.com/bits-and-blooms/bitset"

	"unflutter/internal/dartfmt"
)

// CanonicalSet records the trailing "first_element + gap" sparse table that
// follows a RODataHandler alloc block for canonical-cid clusters (§4.3). The
// occupied-slot bitmap is a dense bitset rather than a map[int]bool: tables
// for canonical string/type pools commonly run into the tens of thousands of
// slots, and only slot occupancy is recorded.
type CanonicalSet struct {
	TableLength  int64
	FirstElement int64
	Occupied     *bitset.BitSet
}

// ReadCanonicalSetTail reads the table_length/first_element header followed
// by count gap values, per §4.3's RODataHandler contract. Each gap value is
// the distance (in slots) to the next occupied slot; it accumulates a
// running slot index into Occupied.
func ReadCanonicalSetTail(s *dartfmt.Stream, count int64) (*CanonicalSet, error) {
	tableLen, err := s.ReadUnsigned()
	if err != nil {
		return nil, err
	}
	firstElement, err := s.ReadUnsigned()
	if err != nil {
		return nil, err
	}
	cs := &CanonicalSet{
		TableLength:  tableLen,
		FirstElement: firstElement,
		Occupied:     bitset.New(uint(tableLen + 1)),
	}
	slot := firstElement
	for i := int64(0); i < count; i++ {
		gap, err := s.ReadUnsigned()
		if err != nil {
			return nil, err
		}
		slot += gap
		if slot >= 0 && slot < tableLen {
			cs.Occupied.Set(uint(slot))
		}
		slot++
	}
	return cs, nil
}
