// Package index provides the FM-index over the concatenated protein database
// and the narrow/resolve primitives the search engine walks it with.
package index

import (
	"errors"
	"fmt"
)

// ErrIndexInconsistent reports a corrupted or mismatched index: an inverted
// interval, a row outside the index, or a match crossing a protein boundary.
var ErrIndexInconsistent = errors.New("index inconsistency")

// Interval is a half-open range [Left, Right) of index rows.
type Interval struct {
	Left, Right int
}

// Empty reports whether the interval holds no rows.
func (iv Interval) Empty() bool { return iv.Left >= iv.Right }

// Len is the number of rows in the interval.
func (iv Interval) Len() int {
	if iv.Right < iv.Left {
		return 0
	}
	return iv.Right - iv.Left
}

// Valid reports whether Left <= Right.
func (iv Interval) Valid() bool { return iv.Left <= iv.Right }

func (iv Interval) String() string {
	return fmt.Sprintf("[%d,%d)", iv.Left, iv.Right)
}

// Occurrence is a concrete position of a match in the protein database.
type Occurrence struct {
	Accession string
	Offset    int // 0-based
}

// Accessor is the read-only view of the index used on the search hot path.
// Implementations must be safe for concurrent use without locking.
type Accessor interface {
	// Root spans every row of the index.
	Root() Interval
	// Narrow extends the matched string by symbol and returns the rows that
	// still occur. The result is empty when no occurrence remains.
	Narrow(iv Interval, symbol byte) Interval
	// OccurrenceCount is the number of corpus occurrences an interval stands for.
	OccurrenceCount(iv Interval) int
	// Resolve maps a row of a match covering span protein residues to its protein position.
	Resolve(row, span int) (Occurrence, error)
}

// SequenceProvider gives access to full protein sequences for flanking context.
type SequenceProvider interface {
	Sequence(accession string) (string, bool)
}
