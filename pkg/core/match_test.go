package core

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func validMatch() Match {
	return Match{
		QueryID:   "q1",
		Accession: "P12345",
		Offset:    10,
		Sequence:  "PEPTIDEK",
		Reference: "PEPTIDEK",
		Mass:      909.45,
		Modifications: []Modification{
			{Mass: 42.010565, Position: 0, Name: "Acetyl", Variable: true},
			{Mass: 57.021464, Position: 4, Name: "Carbamidomethyl"},
		},
	}
}

func TestMatchValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Match)
		wantErr string
	}{
		{"valid", func(*Match) {}, ""},
		{"missing sequence", func(m *Match) { m.Sequence = ""; m.Reference = "" }, "sequence is required"},
		{"missing accession", func(m *Match) { m.Accession = "" }, "accession is required"},
		{"negative offset", func(m *Match) { m.Offset = -1 }, "offset"},
		{"infinite mass", func(m *Match) { m.Mass = math.Inf(1) }, "not finite"},
		{"site past C-term", func(m *Match) { m.Modifications[1].Position = 10 }, "outside peptide"},
		{"unordered modifications", func(m *Match) {
			m.Modifications[0], m.Modifications[1] = m.Modifications[1], m.Modifications[0]
		}, "ordered"},
		{"reference without edits", func(m *Match) { m.Reference = "PEPTLDEK" }, "reference differs"},
		{"reference with edit", func(m *Match) {
			m.Reference = "PEPTLDEK"
			m.Edits = []Edit{{Op: EditSubstitution, Position: 5, Protein: 'L', Peptide: 'I'}}
		}, ""},
		{"reference with combination", func(m *Match) { m.Reference = "PEPTJDEK"; m.Combinations = 1 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMatch()
			tt.modify(&m)
			err := m.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if !strings.Contains(verr.Message, tt.wantErr) {
				t.Errorf("Validate() message = %q, want it to contain %q", verr.Message, tt.wantErr)
			}
		})
	}
}

func TestMatchStrings(t *testing.T) {
	m := validMatch()
	m.Edits = []Edit{
		{Op: EditSubstitution, Position: 3, Protein: 'C', Peptide: 'A'},
		{Op: EditInsertion, Position: 5, Protein: 'K'},
		{Op: EditDeletion, Position: 7, Peptide: 'E'},
	}

	if got := m.Name(); got != "PEPTIDEK@P12345:10" {
		t.Errorf("Name() = %s", got)
	}
	if got := m.ModString(); got != "Acetyl@0;Carbamidomethyl@4" {
		t.Errorf("ModString() = %s", got)
	}
	if got := m.EditString(); got != "s3C>A;i5K;d7E" {
		t.Errorf("EditString() = %s", got)
	}
	if got := m.EditCount(); got != 3 {
		t.Errorf("EditCount() = %d", got)
	}
	if got := m.VariableModCount(); got != 1 {
		t.Errorf("VariableModCount() = %d", got)
	}
	if got := m.TotalModMass(); math.Abs(got-99.032029) > 1e-9 {
		t.Errorf("TotalModMass() = %f", got)
	}

	var empty Match
	if empty.ModString() != "" || empty.EditString() != "" {
		t.Error("empty match must render empty strings")
	}
	if EditSubstitution.String() != "substitution" || EditNone.String() != "none" {
		t.Error("unexpected edit op names")
	}
}
