package search

import (
	"fmt"

	"github.com/ChrisMcGann/PepMap/pkg/core"
	"github.com/ChrisMcGann/PepMap/pkg/index"
)

// candidateKind tags the ways a node can be extended.
type candidateKind uint8

const (
	kindMatch        candidateKind = iota // query and index agree on a concrete residue
	kindCombination                       // a combination symbol resolved to a residue
	kindModified                          // a terminal modification placed before any residue
	kindInsertion                         // index residue absent from the peptide
	kindDeletion                          // peptide residue absent from the index
	kindSubstitution                      // peptide residue differs from the index residue
)

func (k candidateKind) String() string {
	switch k {
	case kindMatch:
		return "match"
	case kindCombination:
		return "combination"
	case kindModified:
		return "modified"
	case kindInsertion:
		return "insertion"
	case kindDeletion:
		return "deletion"
	case kindSubstitution:
		return "substitution"
	}
	return "unknown"
}

// candidate is one possible child of a node, generated and filtered before
// any Node is allocated.
type candidate struct {
	kind     candidateKind
	corpus   byte // index symbol to consume, 0 for deletions and modifications
	interval index.Interval
	residue  byte // residue added to the peptide, 0 for insertions and modifications
	combo    bool // resolves a combination symbol
	mod      *core.ModDefinition
}

func (c candidate) editOp() core.EditOp {
	switch c.kind {
	case kindInsertion:
		return core.EditInsertion
	case kindDeletion:
		return core.EditDeletion
	case kindSubstitution:
		return core.EditSubstitution
	}
	return core.EditNone
}

// consumesQuery reports whether the candidate advances a sequence query.
func (c candidate) consumesQuery() bool {
	return c.kind != kindInsertion && c.kind != kindModified
}

// extension is a non-empty narrowing of a node's interval.
type extension struct {
	symbol   byte
	interval index.Interval
}

// symbolLister is implemented by accessors that know which symbols occur in
// the index.
type symbolLister interface {
	Symbols() []byte
}

// extensions narrows n by every index symbol and keeps the non-empty results.
func (s *searcher) extensions(n *Node, st *Stats) ([]extension, error) {
	out := make([]extension, 0, len(s.symbols))
	for _, sym := range s.symbols {
		iv := s.index.Narrow(n.Interval, sym)
		if !iv.Valid() {
			return nil, fmt.Errorf("%w: narrowing %s by '%c' gave %s", index.ErrIndexInconsistent, n.Interval, sym, iv)
		}
		if iv.Empty() {
			st.PrunedEmpty++
			continue
		}
		out = append(out, extension{symbol: sym, interval: iv})
	}
	return out, nil
}

func (s *searcher) canEdit(n *Node, op core.EditOp) bool {
	return n.Edits < s.q.MaxEdits && s.q.EditOps.Has(op)
}

// candidates lists every admissible extension of n.
func (s *searcher) candidates(n *Node, st *Stats) ([]candidate, error) {
	var out []candidate

	if n.parent == nil && n.Pending == nil {
		for _, def := range s.varNTerm {
			if n.ModCount < s.q.MaxModifications {
				out = append(out, candidate{kind: kindModified, interval: n.Interval, mod: def})
			}
		}
	}

	if !s.growable(n) {
		return out, nil
	}

	exts, err := s.extensions(n, st)
	if err != nil {
		return nil, err
	}

	add := func(c candidate) {
		if c.combo && n.Combinations >= s.q.MaxCombinations {
			st.PrunedCombinations++
			return
		}
		out = append(out, c)
	}

	// Insertions never open a peptide and never follow a deletion.
	insert := s.canEdit(n, core.EditInsertion) && n.Depth > 0 && n.EditOp != core.EditDeletion
	// Deletions never follow an insertion.
	del := s.canEdit(n, core.EditDeletion) && n.EditOp != core.EditInsertion
	sub := s.canEdit(n, core.EditSubstitution)

	if s.q.Open() {
		for _, e := range exts {
			combo := s.table.IsCombination(e.symbol)
			kind := kindMatch
			if combo {
				kind = kindCombination
			}
			for _, r := range s.table.Expand(e.symbol) {
				add(candidate{kind: kind, corpus: e.symbol, interval: e.interval, residue: r, combo: combo})
			}
			if sub {
				for _, r := range s.table.Concrete() {
					if !s.table.Covers(e.symbol, r) {
						add(candidate{kind: kindSubstitution, corpus: e.symbol, interval: e.interval, residue: r})
					}
				}
			}
			if insert {
				add(candidate{kind: kindInsertion, corpus: e.symbol, interval: e.interval})
			}
		}
		if del {
			for _, r := range s.table.Concrete() {
				add(candidate{kind: kindDeletion, interval: n.Interval, residue: r})
			}
		}
		return out, nil
	}

	q := s.q.Sequence[n.QueryPos]
	qCombo := s.table.IsCombination(q)
	residues := s.table.Expand(q)

	for _, e := range exts {
		combo := qCombo || s.table.IsCombination(e.symbol)
		kind := kindMatch
		if combo {
			kind = kindCombination
		}
		shared := false
		for _, r := range residues {
			if s.table.Covers(e.symbol, r) {
				shared = true
				add(candidate{kind: kind, corpus: e.symbol, interval: e.interval, residue: r, combo: combo})
			}
		}
		if !shared && sub {
			for _, r := range residues {
				add(candidate{kind: kindSubstitution, corpus: e.symbol, interval: e.interval, residue: r, combo: qCombo})
			}
		}
		if insert {
			add(candidate{kind: kindInsertion, corpus: e.symbol, interval: e.interval})
		}
	}
	if del {
		for _, r := range residues {
			add(candidate{kind: kindDeletion, interval: n.Interval, residue: r, combo: qCombo})
		}
	}
	return out, nil
}

// growable reports whether n may take another residue.
func (s *searcher) growable(n *Node) bool {
	if s.q.Open() {
		return s.maxLen == 0 || n.Depth < s.maxLen
	}
	return n.QueryPos < len(s.q.Sequence)
}
