package core

import (
	"math"
	"testing"
)

func TestStandardMassTable(t *testing.T) {
	table := StandardMassTable()

	if got := table.Mass('G'); math.Abs(got-57.02146) > 1e-4 {
		t.Errorf("Mass(G) = %f, want 57.02146", got)
	}
	if got := table.Mass('W'); math.Abs(got-186.07931) > 1e-4 {
		t.Errorf("Mass(W) = %f, want 186.07931", got)
	}
	if table.MinMass() != table.Mass('G') {
		t.Errorf("MinMass() = %f, want glycine", table.MinMass())
	}
	if table.MaxMass() != table.Mass('O') {
		t.Errorf("MaxMass() = %f, want pyrrolysine", table.MaxMass())
	}
	if got := len(table.Concrete()); got != 22 {
		t.Errorf("len(Concrete()) = %d, want 22", got)
	}
	if got := len(table.Symbols()); got != 26 {
		t.Errorf("len(Symbols()) = %d, want 26", got)
	}

	if !table.IsCombination('J') || table.IsCombination('L') {
		t.Error("J must be a combination and L must not")
	}
	if table.Mass('B') != 0 {
		t.Error("combination symbols have no mass")
	}
	if !table.Covers('J', 'I') || !table.Covers('J', 'L') || table.Covers('J', 'K') {
		t.Error("J must cover exactly I and L")
	}
	if !table.Covers('K', 'K') {
		t.Error("a concrete residue covers itself")
	}
	if len(table.Expand('X')) != 20 {
		t.Errorf("X expands to %d residues, want 20", len(table.Expand('X')))
	}
	if table.Expand('#') != nil || table.Known('#') {
		t.Error("unknown symbols expand to nothing")
	}
}

func TestNewMassTableErrors(t *testing.T) {
	tests := []struct {
		name  string
		acids []AminoAcid
	}{
		{"empty", nil},
		{"duplicate", []AminoAcid{{Symbol: 'A', MonoMass: 71}, {Symbol: 'A', MonoMass: 72}}},
		{"separator", []AminoAcid{{Symbol: '/', MonoMass: 71}}},
		{"terminator", []AminoAcid{{Symbol: '$', MonoMass: 71}}},
		{"zero mass", []AminoAcid{{Symbol: 'A'}}},
		{"unknown expansion", []AminoAcid{{Symbol: 'A', MonoMass: 71}, {Symbol: 'X', Expands: []byte("AC")}}},
		{"nested combination", []AminoAcid{
			{Symbol: 'A', MonoMass: 71}, {Symbol: 'C', MonoMass: 103},
			{Symbol: 'B', Expands: []byte("AC")}, {Symbol: 'X', Expands: []byte("AB")},
		}},
		{"combinations only", []AminoAcid{{Symbol: 'X', Expands: []byte("X")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMassTable(tt.acids); err == nil {
				t.Error("NewMassTable() expected error")
			}
		})
	}
}

func TestSequenceMass(t *testing.T) {
	table := StandardMassTable()

	got, err := table.SequenceMass("PEPTIDE")
	if err != nil {
		t.Fatal(err)
	}
	if want := CalculateNeutralMass("PEPTIDE", nil) - MassWater; math.Abs(got-want) > 1e-9 {
		t.Errorf("SequenceMass(PEPTIDE) = %f, want %f", got, want)
	}

	for _, seq := range []string{"PEPTJDE", "PEP*"} {
		if _, err := table.SequenceMass(seq); err == nil {
			t.Errorf("SequenceMass(%s) expected error", seq)
		}
	}
}

func TestWithMasses(t *testing.T) {
	table := StandardMassTable()
	heavy, err := table.WithMasses(map[byte]float64{'K': 136.109162, '*': 10})
	if err != nil {
		t.Fatal(err)
	}
	if heavy.Mass('K') != 136.109162 {
		t.Errorf("Mass(K) = %f, want 136.109162", heavy.Mass('K'))
	}
	if heavy.Mass('*') != 10 || heavy.MinMass() != 10 {
		t.Errorf("added symbol not picked up: Mass(*) = %f, MinMass() = %f", heavy.Mass('*'), heavy.MinMass())
	}
	if table.Mass('K') == heavy.Mass('K') {
		t.Error("WithMasses must not change the original table")
	}
}

func TestAverage(t *testing.T) {
	avg := StandardMassTable().Average()
	if got := avg.Mass('A'); got != 71.0788 {
		t.Errorf("average Mass(A) = %f, want 71.0788", got)
	}
	if avg.MaxMass() != 237.2982 {
		t.Errorf("average MaxMass() = %f, want 237.2982", avg.MaxMass())
	}
}
