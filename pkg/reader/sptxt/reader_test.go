package sptxt

import (
	"math"
	"strings"
	"testing"
)

const library = `### SpectraST library
### ===

Name: n[305]AAC[160]K/2
LibID: 0
MW: 780.41
PrecursorMZ: 391.21
Comment: Mods=2/-1,A,iTRAQ8plex/2,C,Carbamidomethyl RetentionTime=1234.5,1200.0
NumPeaks: 2
147.1128	10000	y1/0.00
250.1220	5000	y2/0.01

Name: PEPTIDEK/3
PrecursorMZ: 310.83
Comment: Parent=310.83 Mods=0
NumPeaks: 1
147.1128	100	y1
`

func TestReader(t *testing.T) {
	r := NewReader(strings.NewReader(library), nil)

	if !r.Next() {
		t.Fatalf("Next() = false, err %v", r.Err())
	}
	e := r.Entry()
	if e.Sequence != "AACK" || e.Charge != 2 || e.PrecursorMZ != 391.21 || e.NumPeaks != 2 {
		t.Errorf("entry 0 = %+v", e)
	}
	if e.RetentionTime == nil || *e.RetentionTime != 1234.5 {
		t.Errorf("retention time = %v", e.RetentionTime)
	}
	if len(e.Modifications) != 2 {
		t.Fatalf("modifications = %+v", e.Modifications)
	}
	if m := e.Modifications[0]; m.Position != 0 || m.Name != "iTRAQ8plex" || m.Mass != 304.205360 {
		t.Errorf("N-term modification = %+v", m)
	}
	if m := e.Modifications[1]; m.Position != 3 || m.Name != "Carbamidomethyl" {
		t.Errorf("residue modification = %+v", m)
	}

	if !r.Next() {
		t.Fatalf("Next() = false, err %v", r.Err())
	}
	e = r.Entry()
	if e.Sequence != "PEPTIDEK" || e.Charge != 3 || len(e.Modifications) != 0 {
		t.Errorf("entry 1 = %+v", e)
	}

	if r.Next() {
		t.Error("Next() = true after last entry")
	}
	if err := r.Err(); err != nil {
		t.Errorf("Err() = %v", err)
	}
}

func TestParseInlineModifications(t *testing.T) {
	seq, mods, err := parseInlineModifications("n[43]M[147]PEPc[16]")
	if err != nil {
		t.Fatal(err)
	}
	if seq != "MPEP" {
		t.Errorf("sequence = %s, want MPEP", seq)
	}
	if len(mods) != 3 {
		t.Fatalf("modifications = %+v", mods)
	}
	wantSites := []int{0, 1, 5}
	wantMass := []float64{42, 16, -1}
	for i, m := range mods {
		if m.Position != wantSites[i] {
			t.Errorf("mod %d site = %d, want %d", i, m.Position, wantSites[i])
		}
		if math.Abs(m.Mass-wantMass[i]) > 0.1 {
			t.Errorf("mod %d mass = %f, want about %f", i, m.Mass, wantMass[i])
		}
	}

	for _, bad := range []string{"PEP[abc]K", "PE*PK", "B[100]K"} {
		if _, _, err := parseInlineModifications(bad); err == nil {
			t.Errorf("parseInlineModifications(%s) expected error", bad)
		}
	}
}
