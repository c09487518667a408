package core

import (
	"fmt"
	"math"
	"sort"
)

// AminoAcid describes one symbol of the search alphabet. A combination code
// (B, Z, J, X, ...) lists the concrete residues it stands for in Expands.
type AminoAcid struct {
	Symbol   byte
	Name     string
	MonoMass float64
	AvgMass  float64
	Expands  []byte
}

// IsCombination reports whether the symbol stands for other residues.
func (a AminoAcid) IsCombination() bool {
	return len(a.Expands) > 1 || (len(a.Expands) == 1 && a.Expands[0] != a.Symbol)
}

// standardAverage holds average residue masses of the concrete amino acids.
var standardAverage = map[byte]float64{
	'A': 71.0788, 'R': 156.1875, 'N': 114.1038, 'D': 115.0886, 'C': 103.1388,
	'E': 129.1155, 'Q': 128.1307, 'G': 57.0519, 'H': 137.1411, 'I': 113.1594,
	'L': 113.1594, 'K': 128.1741, 'M': 131.1926, 'F': 147.1766, 'P': 97.1167,
	'S': 87.0782, 'T': 101.1051, 'W': 186.2132, 'Y': 163.1760, 'V': 99.1326,
	'U': 150.0388, 'O': 237.2982,
}

var standardNames = map[byte]string{
	'A': "Alanine", 'R': "Arginine", 'N': "Asparagine", 'D': "Aspartic Acid",
	'C': "Cysteine", 'E': "Glutamic Acid", 'Q': "Glutamine", 'G': "Glycine",
	'H': "Histidine", 'I': "Isoleucine", 'L': "Leucine", 'K': "Lysine",
	'M': "Methionine", 'F': "Phenylalanine", 'P': "Proline", 'S': "Serine",
	'T': "Threonine", 'W': "Tryptophan", 'Y': "Tyrosine", 'V': "Valine",
	'U': "Selenocysteine", 'O': "Pyrrolysine",
}

// MassTable is an immutable symbol -> mass lookup shared by every search.
type MassTable struct {
	acids    [256]*AminoAcid
	concrete []byte
	minMass  float64
	maxMass  float64
	average  bool
}

// NewMassTable builds a table from the given amino acids. Combination codes
// must only expand to concrete symbols present in the same list.
func NewMassTable(acids []AminoAcid) (*MassTable, error) {
	t := &MassTable{minMass: math.Inf(1), maxMass: math.Inf(-1)}
	for i := range acids {
		aa := acids[i]
		if aa.Symbol == 0 || aa.Symbol == '/' || aa.Symbol == '$' {
			return nil, fmt.Errorf("invalid amino acid symbol %q", aa.Symbol)
		}
		if t.acids[aa.Symbol] != nil {
			return nil, fmt.Errorf("duplicate amino acid symbol '%c'", aa.Symbol)
		}
		if len(aa.Expands) == 0 {
			aa.Expands = []byte{aa.Symbol}
		}
		t.acids[aa.Symbol] = &aa
	}

	for _, aa := range t.acids {
		if aa == nil {
			continue
		}
		if !aa.IsCombination() {
			if aa.MonoMass <= 0 {
				return nil, fmt.Errorf("amino acid '%c' must have a positive mass", aa.Symbol)
			}
			t.concrete = append(t.concrete, aa.Symbol)
			t.minMass = math.Min(t.minMass, aa.MonoMass)
			t.maxMass = math.Max(t.maxMass, aa.MonoMass)
			continue
		}
		for _, s := range aa.Expands {
			sub := t.acids[s]
			if sub == nil || sub.IsCombination() {
				return nil, fmt.Errorf("combination '%c' expands to unknown residue '%c'", aa.Symbol, s)
			}
		}
	}
	if len(t.concrete) == 0 {
		return nil, fmt.Errorf("mass table has no concrete amino acids")
	}
	sort.Slice(t.concrete, func(i, j int) bool { return t.concrete[i] < t.concrete[j] })

	return t, nil
}

// StandardMassTable returns the monoisotopic table of the 22 proteinogenic
// residues plus the B, Z, J and X combination codes.
func StandardMassTable() *MassTable {
	var acids []AminoAcid
	var standard20 []byte
	for aa, comp := range AminoAcidMasses {
		s := byte(aa)
		acids = append(acids, AminoAcid{
			Symbol:   s,
			Name:     standardNames[s],
			MonoMass: comp.Mass(),
			AvgMass:  standardAverage[s],
		})
		if s != 'U' && s != 'O' {
			standard20 = append(standard20, s)
		}
	}
	sort.Slice(standard20, func(i, j int) bool { return standard20[i] < standard20[j] })

	acids = append(acids,
		AminoAcid{Symbol: 'B', Name: "Asx", Expands: []byte{'D', 'N'}},
		AminoAcid{Symbol: 'Z', Name: "Glx", Expands: []byte{'E', 'Q'}},
		AminoAcid{Symbol: 'J', Name: "Xle", Expands: []byte{'I', 'L'}},
		AminoAcid{Symbol: 'X', Name: "Unknown", Expands: standard20},
	)

	t, err := NewMassTable(acids)
	if err != nil {
		panic(err)
	}
	return t
}

// WithMasses returns a copy of the table in which the listed concrete symbols
// carry the given masses. Symbols not yet present are added.
func (t *MassTable) WithMasses(masses map[byte]float64) (*MassTable, error) {
	var acids []AminoAcid
	for _, aa := range t.acids {
		if aa == nil {
			continue
		}
		c := *aa
		if m, ok := masses[c.Symbol]; ok {
			c.MonoMass, c.AvgMass = m, m
		}
		acids = append(acids, c)
	}
	for s, m := range masses {
		if t.acids[s] == nil {
			acids = append(acids, AminoAcid{Symbol: s, MonoMass: m, AvgMass: m})
		}
	}
	return NewMassTable(acids)
}

// Average returns a table that uses average instead of monoisotopic masses.
func (t *MassTable) Average() *MassTable {
	out := *t
	out.minMass, out.maxMass = math.Inf(1), math.Inf(-1)
	out.average = true
	for _, s := range t.concrete {
		m := out.Mass(s)
		out.minMass = math.Min(out.minMass, m)
		out.maxMass = math.Max(out.maxMass, m)
	}
	return &out
}

// Lookup returns the amino acid for a symbol.
func (t *MassTable) Lookup(symbol byte) (*AminoAcid, bool) {
	aa := t.acids[symbol]
	return aa, aa != nil
}

// Known reports whether the symbol belongs to the alphabet.
func (t *MassTable) Known(symbol byte) bool {
	return t.acids[symbol] != nil
}

// Mass returns the mass of a concrete residue, or 0 for unknown and
// combination symbols.
func (t *MassTable) Mass(symbol byte) float64 {
	aa := t.acids[symbol]
	if aa == nil || aa.IsCombination() {
		return 0
	}
	if t.average && aa.AvgMass > 0 {
		return aa.AvgMass
	}
	return aa.MonoMass
}

// IsCombination reports whether symbol is a combination code.
func (t *MassTable) IsCombination(symbol byte) bool {
	aa := t.acids[symbol]
	return aa != nil && aa.IsCombination()
}

// Expand returns the concrete residues a symbol stands for. A concrete
// residue expands to itself; unknown symbols expand to nothing.
func (t *MassTable) Expand(symbol byte) []byte {
	aa := t.acids[symbol]
	if aa == nil {
		return nil
	}
	return aa.Expands
}

// Covers reports whether residue is one of the residues symbol stands for.
func (t *MassTable) Covers(symbol, residue byte) bool {
	for _, s := range t.Expand(symbol) {
		if s == residue {
			return true
		}
	}
	return false
}

// Concrete returns the sorted concrete residues. Callers must not modify it.
func (t *MassTable) Concrete() []byte {
	return t.concrete
}

// Symbols returns every symbol of the alphabet, concrete and combination, sorted.
func (t *MassTable) Symbols() []byte {
	var out []byte
	for i, aa := range t.acids {
		if aa != nil {
			out = append(out, byte(i))
		}
	}
	return out
}

// MinMass is the lightest concrete residue.
func (t *MassTable) MinMass() float64 { return t.minMass }

// MaxMass is the heaviest concrete residue.
func (t *MassTable) MaxMass() float64 { return t.maxMass }

// SequenceMass sums the residue masses of a concrete sequence.
func (t *MassTable) SequenceMass(seq string) (float64, error) {
	total := 0.0
	for i := 0; i < len(seq); i++ {
		aa := t.acids[seq[i]]
		if aa == nil {
			return 0, fmt.Errorf("unknown residue '%c' at position %d", seq[i], i+1)
		}
		if aa.IsCombination() {
			return 0, fmt.Errorf("ambiguous residue '%c' at position %d has no single mass", seq[i], i+1)
		}
		total += t.Mass(seq[i])
	}
	return total, nil
}
