// Package core provides the mass tables, modification catalog and match records
// shared by the index walker and the command line.
package core

import (
	"fmt"
	"math"
)

// Atomic masses (monoisotopic)
const (
	MassH  = 1.0078250321
	MassC  = 12.0000000000
	MassN  = 14.0030740052
	MassO  = 15.9949146221
	MassS  = 31.9720706900
	MassP  = 30.9737615100
	MassSe = 79.9165196

	// Proton mass for charge calculations
	ProtonMass = 1.00727646688

	// Water lost per peptide bond, added back once for the termini
	MassWater = 2*MassH + MassO
)

// AminoAcidComposition stores elemental composition
type AminoAcidComposition struct {
	C, H, N, O, S, Se int
}

// Mass returns the monoisotopic mass of the composition.
func (c AminoAcidComposition) Mass() float64 {
	return float64(c.C)*MassC +
		float64(c.H)*MassH +
		float64(c.N)*MassN +
		float64(c.O)*MassO +
		float64(c.S)*MassS +
		float64(c.Se)*MassSe
}

func (c AminoAcidComposition) add(o AminoAcidComposition) AminoAcidComposition {
	return AminoAcidComposition{
		C: c.C + o.C, H: c.H + o.H, N: c.N + o.N,
		O: c.O + o.O, S: c.S + o.S, Se: c.Se + o.Se,
	}
}

// AminoAcidMasses maps amino acid one-letter codes to elemental residue composition
var AminoAcidMasses = map[rune]AminoAcidComposition{
	'A': {C: 3, H: 5, N: 1, O: 1},
	'R': {C: 6, H: 12, N: 4, O: 1},
	'N': {C: 4, H: 6, N: 2, O: 2},
	'D': {C: 4, H: 5, N: 1, O: 3},
	'C': {C: 3, H: 5, N: 1, O: 1, S: 1},
	'E': {C: 5, H: 7, N: 1, O: 3},
	'Q': {C: 5, H: 8, N: 2, O: 2},
	'G': {C: 2, H: 3, N: 1, O: 1},
	'H': {C: 6, H: 7, N: 3, O: 1},
	'I': {C: 6, H: 11, N: 1, O: 1},
	'L': {C: 6, H: 11, N: 1, O: 1},
	'K': {C: 6, H: 12, N: 2, O: 1},
	'M': {C: 5, H: 9, N: 1, O: 1, S: 1},
	'F': {C: 9, H: 9, N: 1, O: 1},
	'P': {C: 5, H: 7, N: 1, O: 1},
	'S': {C: 3, H: 5, N: 1, O: 2},
	'T': {C: 4, H: 7, N: 1, O: 2},
	'W': {C: 11, H: 10, N: 2, O: 1},
	'Y': {C: 9, H: 9, N: 1, O: 2},
	'V': {C: 5, H: 9, N: 1, O: 1},
	'U': {C: 3, H: 5, N: 1, O: 1, Se: 1},
	'O': {C: 12, H: 19, N: 3, O: 2},
}

// CalculatePeptideMass computes monoisotopic mass of a peptide sequence
// including modifications, then returns the m/z for a given charge state.
func CalculatePeptideMass(sequence string, charge int, modifications []Modification) float64 {
	mass := CalculateNeutralMass(sequence, modifications)

	// Calculate m/z: (mass + charge * proton) / charge
	return (mass + float64(charge)*ProtonMass) / float64(charge)
}

// CalculateNeutralMass computes the neutral monoisotopic mass of a peptide
func CalculateNeutralMass(sequence string, modifications []Modification) float64 {
	comp := AminoAcidComposition{H: 2, O: 1} // Add water

	for _, aa := range sequence {
		if aaComp, ok := AminoAcidMasses[aa]; ok {
			comp = comp.add(aaComp)
		}
	}

	mass := comp.Mass()
	for _, mod := range modifications {
		mass += mod.Mass
	}

	return mass
}

// ToleranceUnit selects how a precursor tolerance is interpreted.
type ToleranceUnit int

const (
	// Dalton is an absolute tolerance.
	Dalton ToleranceUnit = iota
	// PPM is a tolerance relative to the neutral mass, in parts per million.
	PPM
)

// ParseToleranceUnit parses "da" or "ppm" (case insensitive).
func ParseToleranceUnit(s string) (ToleranceUnit, error) {
	switch s {
	case "da", "Da", "DA", "dalton":
		return Dalton, nil
	case "ppm", "PPM":
		return PPM, nil
	}
	return Dalton, fmt.Errorf("unknown tolerance unit '%s', expected da or ppm", s)
}

func (u ToleranceUnit) String() string {
	if u == PPM {
		return "ppm"
	}
	return "da"
}

// ResidueWindow converts a precursor m/z at the given charge into the inclusive
// window of summed residue masses (neutral mass minus water) a peptide must fall in.
func ResidueWindow(precursorMZ float64, charge int, tolerance float64, unit ToleranceUnit) (low, high float64, err error) {
	if charge <= 0 {
		return 0, 0, fmt.Errorf("charge must be positive, got %d", charge)
	}
	if tolerance < 0 {
		return 0, 0, fmt.Errorf("negative precursor tolerance %f", tolerance)
	}

	neutral := precursorMZ*float64(charge) - float64(charge)*ProtonMass
	residues := neutral - MassWater
	if residues <= 0 {
		return 0, 0, fmt.Errorf("precursor m/z %.4f at charge %d leaves no residue mass", precursorMZ, charge)
	}

	delta := tolerance
	if unit == PPM {
		delta = neutral * tolerance / 1e6
	}

	low = residues - delta
	if low < 0 {
		low = 0
	}
	return low, residues + delta, nil
}

// RoundFloat rounds a float to n decimal places
func RoundFloat(val float64, precision int) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}
