// Package measurement identifies measurement outcomes relative to the end of
// the measurement record.
package measurement

import (
	"fmt"
	"slices"

	"github.com/fyrsmithlabs/detectd/pkg/detecterr"
)

// Reference points at a measurement of Qubit performed Offset records before
// the current end of the record. Offset is strictly negative: -1 is the most
// recent measurement.
type Reference struct {
	qubit  int
	offset int
}

// New validates and builds a Reference.
func New(qubit, offset int) (Reference, error) {
	if offset >= 0 {
		return Reference{}, detecterr.New(detecterr.InvalidOffset,
			"relative measurement offsets should be strictly negative, got %d", offset)
	}
	return Reference{qubit: qubit, offset: offset}, nil
}

// MustNew is like New but panics on error.
func MustNew(qubit, offset int) Reference {
	r, err := New(qubit, offset)
	if err != nil {
		panic(err)
	}
	return r
}

// FromAbsolute builds the reference to the first measurement of qubit in
// measured, relative to the end of measured.
func FromAbsolute(measured []int, qubit int) (Reference, error) {
	i := slices.Index(measured, qubit)
	if i < 0 {
		return Reference{}, detecterr.New(detecterr.InvalidConstruction,
			"qubit %d is not measured", qubit)
	}
	return New(qubit, i-len(measured))
}

// Qubit returns the measured qubit.
func (r Reference) Qubit() int { return r.qubit }

// Offset returns the strictly negative record offset.
func (r Reference) Offset() int { return r.offset }

// OffsetBy shifts the reference by delta records.
func (r Reference) OffsetBy(delta int) (Reference, error) {
	return New(r.qubit, r.offset+delta)
}

// Compare orders references by offset, then qubit.
func Compare(a, b Reference) int {
	if a.offset != b.offset {
		return a.offset - b.offset
	}
	return a.qubit - b.qubit
}

func (r Reference) String() string {
	return fmt.Sprintf("rec[%d]@q%d", r.offset, r.qubit)
}

// Set returns the references sorted by Compare with duplicates removed.
func Set(refs []Reference) []Reference {
	out := slices.Clone(refs)
	slices.SortFunc(out, Compare)
	return slices.Compact(out)
}

// SymmetricDifference returns the references present in exactly one of a and
// b, as a Set.
func SymmetricDifference(a, b []Reference) []Reference {
	count := make(map[Reference]int, len(a)+len(b))
	for _, r := range Set(a) {
		count[r]++
	}
	for _, r := range Set(b) {
		count[r]++
	}
	out := make([]Reference, 0, len(count))
	for r, n := range count {
		if n == 1 {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, Compare)
	return out
}
