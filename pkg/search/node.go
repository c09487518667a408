package search

import (
	"encoding/binary"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/ChrisMcGann/PepMap/pkg/core"
	"github.com/ChrisMcGann/PepMap/pkg/index"
)

// NodeState is the position of a node in the expansion state machine.
// Accepted and Rejected are terminal.
type NodeState uint8

const (
	Active NodeState = iota
	Expanded
	Accepted
	Rejected
)

func (s NodeState) String() string {
	switch s {
	case Active:
		return "active"
	case Expanded:
		return "expanded"
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	}
	return "NodeState(" + strconv.Itoa(int(s)) + ")"
}

// PendingMod is a modification placed at one backbone site.
type PendingMod struct {
	Def      *core.ModDefinition
	Site     int
	Variable bool
}

// Node is one state of the backtracking search. Nodes only point to their
// parent; siblings share ancestors, which stay reachable for as long as any
// descendant is.
type Node struct {
	Interval index.Interval
	Symbol   byte // index symbol consumed to reach the node, 0 when none
	Residue  byte // residue added to the peptide, 0 when none
	parent   *Node

	Mass     float64
	Depth    int // peptide residues
	Span     int // protein residues
	QueryPos int // query symbols consumed

	// partial is the peptide so far, set once the path resolved a
	// combination symbol or used an edit.
	partial *string

	Combinations int
	Pending      *PendingMod // variable modification placed by this node
	fixed        []PendingMod
	ModCount     int // variable modifications along the path

	Edits  int
	EditOp core.EditOp

	Fingerprint uint64
	State       NodeState
}

// Parent returns the node this one was expanded from.
func (n *Node) Parent() *Node { return n.parent }

// Sequence returns the peptide spelled by the path, N- to C-terminal.
func (n *Node) Sequence() string {
	if n.partial != nil {
		return *n.partial
	}
	buf := make([]byte, n.Depth)
	i := n.Depth
	for m := n; m != nil && i > 0; m = m.parent {
		if m.partial != nil {
			copy(buf[:i], *m.partial)
			break
		}
		if m.Residue != 0 {
			i--
			buf[i] = m.Residue
		}
	}
	return string(buf)
}

// CorpusSequence returns the index symbols consumed along the path.
func (n *Node) CorpusSequence() string {
	buf := make([]byte, n.Span)
	i := n.Span
	for m := n; m != nil && i > 0; m = m.parent {
		if m.Symbol != 0 {
			i--
			buf[i] = m.Symbol
		}
	}
	return string(buf)
}

// Modifications returns every modification on the path ordered by site.
func (n *Node) Modifications() []PendingMod {
	var mods []PendingMod
	for m := n; m != nil; m = m.parent {
		if m.Pending != nil {
			mods = append(mods, *m.Pending)
		}
		mods = append(mods, m.fixed...)
	}
	sort.SliceStable(mods, func(i, j int) bool {
		if mods[i].Site != mods[j].Site {
			return mods[i].Site < mods[j].Site
		}
		return mods[i].Def.Name < mods[j].Def.Name
	})
	return mods
}

// EditList returns the edits on the path in peptide order.
func (n *Node) EditList() []core.Edit {
	if n.Edits == 0 {
		return nil
	}
	edits := make([]core.Edit, 0, n.Edits)
	for m := n; m != nil; m = m.parent {
		if m.EditOp == core.EditNone {
			continue
		}
		edits = append(edits, core.Edit{
			Op:       m.EditOp,
			Position: m.Depth,
			Protein:  m.Symbol,
			Peptide:  m.Residue,
		})
	}
	for i, j := 0, len(edits)-1; i < j; i, j = i+1, j-1 {
		edits[i], edits[j] = edits[j], edits[i]
	}
	return edits
}

// materialize stores the peptide on the node.
func (n *Node) materialize() {
	s := n.Sequence()
	n.partial = &s
}

// massKey quantizes mass so that sums reached in a different order compare equal.
func massKey(mass float64) int64 {
	return int64(math.Round(mass / massEpsilon))
}

// modKey renders the modification set as "site:name;...".
func modKey(mods []PendingMod) string {
	if len(mods) == 0 {
		return ""
	}
	var b strings.Builder
	for i, m := range mods {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(strconv.Itoa(m.Site))
		b.WriteByte(':')
		b.WriteString(m.Def.Name)
	}
	return b.String()
}

// fingerprint hashes the interval, span, mass and modification set of a node.
func (n *Node) fingerprint() uint64 {
	buf := make([]byte, 0, 64)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(n.Interval.Left))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(n.Interval.Right))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(n.Span))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(massKey(n.Mass)))
	buf = append(buf, modKey(n.Modifications())...)
	return xxhash.Sum64(buf)
}

// sameClass reports whether two accepted nodes are duplicates of each other.
func sameClass(a, b *Node) bool {
	return a.Interval == b.Interval &&
		a.Span == b.Span &&
		massKey(a.Mass) == massKey(b.Mass) &&
		modKey(a.Modifications()) == modKey(b.Modifications())
}
