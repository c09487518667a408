package core

import (
	"math"
	"testing"
)

func TestCalculatePeptideMass(t *testing.T) {
	tests := []struct {
		name          string
		sequence      string
		charge        int
		modifications []Modification
		wantMZ        float64
		tolerance     float64
	}{
		{
			name:          "simple peptide charge 1",
			sequence:      "AAA",
			charge:        1,
			modifications: nil,
			wantMZ:        232.129, // Approximate
			tolerance:     0.1,
		},
		{
			name:          "simple peptide charge 2",
			sequence:      "AAA",
			charge:        2,
			modifications: nil,
			wantMZ:        116.569, // Approximate
			tolerance:     0.1,
		},
		{
			name:     "peptide with modification",
			sequence: "PEPTIDE",
			charge:   2,
			modifications: []Modification{
				{Mass: 57.021464, Position: 0}, // Carbamidomethyl on first residue
			},
			wantMZ:    429.2, // Approximate
			tolerance: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculatePeptideMass(tt.sequence, tt.charge, tt.modifications)
			if math.Abs(got-tt.wantMZ) > tt.tolerance {
				t.Errorf("CalculatePeptideMass() = %.3f, want %.3f (within %.3f)", got, tt.wantMZ, tt.tolerance)
			}
		})
	}
}

func TestCalculateNeutralMass(t *testing.T) {
	tests := []struct {
		name          string
		sequence      string
		modifications []Modification
		wantMass      float64
		tolerance     float64
	}{
		{
			name:          "simple tripeptide",
			sequence:      "AAA",
			modifications: nil,
			wantMass:      231.121, // Approximate neutral mass
			tolerance:     0.1,
		},
		{
			name:     "with modification",
			sequence: "AAA",
			modifications: []Modification{
				{Mass: 57.021464, Position: 0},
			},
			wantMass:  288.143, // Approximate
			tolerance: 0.1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateNeutralMass(tt.sequence, tt.modifications)
			if math.Abs(got-tt.wantMass) > tt.tolerance {
				t.Errorf("CalculateNeutralMass() = %.3f, want %.3f (within %.3f)", got, tt.wantMass, tt.tolerance)
			}
		})
	}
}

func TestRoundFloat(t *testing.T) {
	tests := []struct {
		name      string
		val       float64
		precision int
		want      float64
	}{
		{"round to 2 decimals", 3.14159, 2, 3.14},
		{"round to 4 decimals", 3.14159, 4, 3.1416},
		{"round to 0 decimals", 3.6, 0, 4.0},
		{"round negative", -3.14159, 2, -3.14},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundFloat(tt.val, tt.precision)
			if got != tt.want {
				t.Errorf("RoundFloat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResidueWindow(t *testing.T) {
	table := StandardMassTable()
	residues, err := table.SequenceMass("PEPTIDE")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		charge    int
		tolerance float64
		unit      ToleranceUnit
		wantDelta float64
	}{
		{"charge 1 dalton", 1, 0.02, Dalton, 0.02},
		{"charge 2 dalton", 2, 0.5, Dalton, 0.5},
		{"charge 3 ppm", 3, 10, PPM, (residues + MassWater) * 10 / 1e6},
		{"zero tolerance", 2, 0, Dalton, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mz := CalculatePeptideMass("PEPTIDE", tt.charge, nil)
			low, high, err := ResidueWindow(mz, tt.charge, tt.tolerance, tt.unit)
			if err != nil {
				t.Fatalf("ResidueWindow() error = %v", err)
			}
			if math.Abs(low-(residues-tt.wantDelta)) > 1e-6 || math.Abs(high-(residues+tt.wantDelta)) > 1e-6 {
				t.Errorf("ResidueWindow() = [%.6f, %.6f], want %.6f +/- %.6f", low, high, residues, tt.wantDelta)
			}
		})
	}
}

func TestResidueWindowErrors(t *testing.T) {
	tests := []struct {
		name      string
		mz        float64
		charge    int
		tolerance float64
	}{
		{"zero charge", 500, 0, 0.1},
		{"negative tolerance", 500, 2, -1},
		{"below water", 5, 1, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ResidueWindow(tt.mz, tt.charge, tt.tolerance, Dalton); err == nil {
				t.Error("ResidueWindow() expected error")
			}
		})
	}
}

func TestParseToleranceUnit(t *testing.T) {
	for in, want := range map[string]ToleranceUnit{"da": Dalton, "Da": Dalton, "dalton": Dalton, "ppm": PPM, "PPM": PPM} {
		got, err := ParseToleranceUnit(in)
		if err != nil || got != want {
			t.Errorf("ParseToleranceUnit(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseToleranceUnit("mmu"); err == nil {
		t.Error("ParseToleranceUnit(mmu) expected error")
	}
	if PPM.String() != "ppm" || Dalton.String() != "da" {
		t.Errorf("unexpected unit names %s, %s", PPM, Dalton)
	}
}
