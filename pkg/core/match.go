// Package core provides the match records produced by the index walker and
// the validation logic applied before they are reported or stored.
package core

import (
	"fmt"
	"math"
	"strings"
)

// Modification represents a modification applied at a backbone site.
type Modification struct {
	Mass     float64
	Position int    // 0 for N-term, 1..len(seq) for residues, len(seq)+1 for C-term
	Name     string // Modification name (e.g., "Carbamidomethyl", "Oxidation")
	Variable bool   // false for fixed modifications
}

// EditOp is the kind of edit operation between peptide and protein.
type EditOp byte

const (
	EditNone         EditOp = 0
	EditInsertion    EditOp = 'i' // protein residue absent from the peptide
	EditDeletion     EditOp = 'd' // peptide residue absent from the protein
	EditSubstitution EditOp = 's' // peptide residue differs from the protein residue
)

func (op EditOp) String() string {
	switch op {
	case EditInsertion:
		return "insertion"
	case EditDeletion:
		return "deletion"
	case EditSubstitution:
		return "substitution"
	}
	return "none"
}

// Edit records one edit operation. Position is the 1-based peptide position the
// edit applies to; an insertion sits between Position and Position+1.
type Edit struct {
	Op       EditOp
	Position int
	Protein  byte // 0 for deletions
	Peptide  byte // 0 for insertions
}

func (e Edit) String() string {
	switch e.Op {
	case EditInsertion:
		return fmt.Sprintf("i%d%c", e.Position, e.Protein)
	case EditDeletion:
		return fmt.Sprintf("d%d%c", e.Position, e.Peptide)
	case EditSubstitution:
		return fmt.Sprintf("s%d%c>%c", e.Position, e.Protein, e.Peptide)
	}
	return ""
}

// Match is one peptide-to-protein mapping found by a search.
type Match struct {
	QueryID       string
	Accession     string
	Offset        int     // 0-based start in the protein
	Sequence      string  // peptide residues as matched, after edits and ambiguity resolution
	Reference     string  // protein residues covered by the match
	Mass          float64 // summed residue and modification masses
	Deviation     float64 // Mass minus the query's nominal target
	Modifications []Modification
	Edits         []Edit
	Combinations  int // ambiguous symbols resolved along the path
}

// ValidationError represents an error found during match validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// Validate checks that a match is internally consistent before it is reported.
func (m *Match) Validate() error {
	var errs []string

	if m.Sequence == "" {
		errs = append(errs, "sequence is required")
	}
	if m.Accession == "" {
		errs = append(errs, "accession is required")
	}
	if m.Offset < 0 {
		errs = append(errs, "offset must be non-negative")
	}
	if math.IsNaN(m.Mass) || math.IsInf(m.Mass, 0) {
		errs = append(errs, "mass is not finite")
	}

	last := -1
	for i, mod := range m.Modifications {
		if mod.Position < 0 || mod.Position > len(m.Sequence)+1 {
			errs = append(errs, fmt.Sprintf("modification %d site %d outside peptide", i, mod.Position))
		}
		if mod.Position < last {
			errs = append(errs, "modifications must be ordered by site")
		}
		last = mod.Position
	}

	if len(m.Edits) == 0 && m.Combinations == 0 && m.Reference != "" && m.Reference != m.Sequence {
		errs = append(errs, "reference differs from sequence without edits")
	}

	if len(errs) > 0 {
		return &ValidationError{
			Field:   "Match",
			Message: strings.Join(errs, "; "),
		}
	}

	return nil
}

// EditCount is the number of edit operations in the match.
func (m *Match) EditCount() int {
	return len(m.Edits)
}

// TotalModMass returns the sum of all modification masses.
func (m *Match) TotalModMass() float64 {
	total := 0.0
	for _, mod := range m.Modifications {
		total += mod.Mass
	}
	return total
}

// VariableModCount counts the variable modifications.
func (m *Match) VariableModCount() int {
	n := 0
	for _, mod := range m.Modifications {
		if mod.Variable {
			n++
		}
	}
	return n
}

// ModString returns modifications in format "name@site;name@site;..."
func (m *Match) ModString() string {
	if len(m.Modifications) == 0 {
		return ""
	}

	var parts []string
	for _, mod := range m.Modifications {
		parts = append(parts, fmt.Sprintf("%s@%d", mod.Name, mod.Position))
	}
	return strings.Join(parts, ";")
}

// EditString returns edits in format "s3C>A;i5K"
func (m *Match) EditString() string {
	if len(m.Edits) == 0 {
		return ""
	}

	parts := make([]string, len(m.Edits))
	for i, e := range m.Edits {
		parts[i] = e.String()
	}
	return strings.Join(parts, ";")
}

// Name returns the match name in format "Sequence@Accession:Offset"
func (m *Match) Name() string {
	return fmt.Sprintf("%s@%s:%d", m.Sequence, m.Accession, m.Offset)
}
