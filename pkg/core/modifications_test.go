package core

import (
	"strings"
	"testing"
)

func TestParsePattern(t *testing.T) {
	tests := []struct {
		in      string
		target  int
		want    string
		wantLen int
		wantErr bool
	}{
		{"M", 0, "M", 1, false},
		{"[sty]", 0, "[STY]", 1, false},
		{"NX[ST]", 0, "NX[ST]", 3, false},
		{"K.P", 1, "KXP", 3, false},
		{"", 0, "", 0, false},
		{"[ST", 0, "", 0, true},
		{"[]", 0, "", 0, true},
		{"N-G", 0, "", 0, true},
		{"NG", 2, "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := ParsePattern(tt.in, tt.target)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParsePattern(%q) expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePattern(%q) error = %v", tt.in, err)
			}
			if p.String() != tt.want || p.Len() != tt.wantLen {
				t.Errorf("ParsePattern(%q) = %s (len %d), want %s (len %d)", tt.in, p, p.Len(), tt.want, tt.wantLen)
			}
		})
	}
}

func TestPatternMatches(t *testing.T) {
	sequon := mustPattern("NX[ST]", 0)
	if sequon.MinIndex() != 0 || sequon.MaxIndex() != 2 {
		t.Errorf("sequon extent = [%d, %d], want [0, 2]", sequon.MinIndex(), sequon.MaxIndex())
	}

	tests := []struct {
		residues string
		at       int
		want     bool
	}{
		{"NKS", 0, true},
		{"NAT", 0, true},
		{"NKA", 0, false},
		{"NK", 0, false}, // runs off the end
		{"ANGS", 1, true},
		{"SNGS", 0, false},
	}
	for _, tt := range tests {
		if got := sequon.Matches(tt.residues, tt.at); got != tt.want {
			t.Errorf("Matches(%s, %d) = %v, want %v", tt.residues, tt.at, got, tt.want)
		}
	}

	// Target in the middle: K before P.
	kp := mustPattern("KP", 1)
	if !kp.Matches("AKP", 2) || kp.Matches("AAP", 2) || kp.Matches("P", 0) {
		t.Error("KP pattern with target 1 mismatched")
	}
	if kp.MinIndex() != -1 || kp.MaxIndex() != 0 {
		t.Errorf("KP extent = [%d, %d], want [-1, 0]", kp.MinIndex(), kp.MaxIndex())
	}
	if !kp.TargetAllows('P') || kp.TargetAllows('K') {
		t.Error("TargetAllows must look at the target set only")
	}
	if (Pattern{}).MinIndex() != 0 || (Pattern{}).MaxIndex() != 0 {
		t.Errorf("empty extent = [%d, %d], want [0, 0]", (Pattern{}).MinIndex(), (Pattern{}).MaxIndex())
	}
	if !(Pattern{}).TargetAllows('W') {
		t.Error("empty pattern allows any residue")
	}
}

func TestModificationType(t *testing.T) {
	for i, name := range modTypeNames {
		got, err := ParseModificationType(strings.ToUpper(name))
		if err != nil || got != ModificationType(i) {
			t.Errorf("ParseModificationType(%s) = %v, %v", name, got, err)
		}
		if got.String() != name {
			t.Errorf("String() = %s, want %s", got, name)
		}
	}
	if _, err := ParseModificationType("anywhere"); err == nil {
		t.Error("ParseModificationType(anywhere) expected error")
	}

	if !ModNTermProteinAA.NTerminal() || ModNTermProteinAA.CTerminal() || !ModNTermProteinAA.ProteinTerminal() {
		t.Error("protein-nterm-aa classification wrong")
	}
	if !ModCTermPeptide.CTerminal() || ModCTermPeptide.ProteinTerminal() || ModCTermPeptide.NeedsPattern() {
		t.Error("cterm classification wrong")
	}
	if ModAA.NTerminal() || ModAA.CTerminal() || !ModAA.NeedsPattern() {
		t.Error("aa classification wrong")
	}
}

func TestModDefinitionValidate(t *testing.T) {
	if err := (&ModDefinition{Name: "Phospho", Type: ModAA}).Validate(); err == nil {
		t.Error("residue modification without pattern must fail")
	}
	if err := (&ModDefinition{Type: ModNTermPeptide}).Validate(); err == nil {
		t.Error("modification without name must fail")
	}
	if err := (&ModDefinition{Name: "TMT6plex", Type: ModNTermPeptide}).Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadFromCSV(t *testing.T) {
	csv := `mod,massshift,rule,pattern,target
Oxidation,15.994915,aa,M
# comment

Custom,100.5,protein-cterm
KP-Mod,12,aa,KP,1
Legacy,7.5,[ST]
Oxidation,15.9949
`
	db := NewModDatabase()
	if err := db.LoadFromCSV(strings.NewReader(csv)); err != nil {
		t.Fatalf("LoadFromCSV() error = %v", err)
	}

	if got := db.Names(); strings.Join(got, ",") != "Custom,KP-Mod,Legacy,Oxidation" {
		t.Errorf("Names() = %v", got)
	}

	ox, _ := db.Get("Oxidation")
	if ox.Mass != 15.9949 || ox.Type != ModAA || ox.Pattern.String() != "M" {
		t.Errorf("redefinition lost the rule: %s", ox)
	}
	custom, _ := db.Get("Custom")
	if custom.Type != ModCTermProtein {
		t.Errorf("Custom rule = %s", custom.Type)
	}
	kp, _ := db.Get("KP-Mod")
	if kp.Pattern.Target != 1 || kp.Pattern.String() != "KP" {
		t.Errorf("KP-Mod pattern = %s target %d", kp.Pattern, kp.Pattern.Target)
	}
	legacy, _ := db.Get("Legacy")
	if legacy.Type != ModAA || !legacy.Pattern.TargetAllows('T') {
		t.Errorf("legacy residue column not read: %s", legacy)
	}
}

func TestLoadFromCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{"missing mass", "mod,massshift\nOxidation\n"},
		{"bad mass", "mod,massshift\nOxidation,heavy\n"},
		{"bad rule", "mod,massshift,rule,pattern\nOxidation,16,somewhere,M\n"},
		{"bad pattern", "mod,massshift,rule,pattern\nOxidation,16,aa,[M\n"},
		{"bad target", "mod,massshift,rule,pattern,target\nOxidation,16,aa,M,first\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := NewModDatabase().LoadFromCSV(strings.NewReader(tt.csv)); err == nil {
				t.Error("LoadFromCSV() expected error")
			}
		})
	}
}

func TestLookup(t *testing.T) {
	db := DefaultModDatabase()
	defs, err := db.Lookup([]string{"Oxidation", " ", "Carbamidomethyl"})
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if len(defs) != 2 || defs[0].Name != "Oxidation" || defs[1].Name != "Carbamidomethyl" {
		t.Errorf("Lookup() = %v", defs)
	}

	if _, err := db.Lookup([]string{"Unobtainium"}); err == nil {
		t.Error("Lookup of unknown name expected error")
	}
	// Known mass without a placement rule.
	if _, err := db.Lookup([]string{"Biotin"}); err == nil {
		t.Error("Lookup of rule-less residue modification expected error")
	}
}

func TestParseModString(t *testing.T) {
	db := DefaultModDatabase()

	tests := []struct {
		name    string
		modStr  string
		seq     string
		want    []Modification
		wantErr bool
	}{
		{
			name:   "names with residues",
			modStr: "Oxidation@M8;Carbamidomethyl@C2",
			seq:    "ACDEFGHMK",
			want: []Modification{
				{Mass: 57.021464, Position: 2, Name: "Carbamidomethyl", Variable: true},
				{Mass: 15.994915, Position: 8, Name: "Oxidation", Variable: true},
			},
		},
		{
			name:   "terminal sites",
			modStr: "Acetyl@0;Amidated@K-1",
			seq:    "PEPK",
			want: []Modification{
				{Mass: 42.010565, Position: 0, Name: "Acetyl", Variable: true},
				{Mass: -0.984016, Position: 5, Name: "Amidated", Variable: true},
			},
		},
		{
			name:   "raw mass",
			modStr: "79.966331@3",
			seq:    "PESK",
			want:   []Modification{{Mass: 79.966331, Position: 3, Name: "79.966331", Variable: true}},
		},
		{name: "empty", modStr: "", seq: "PEPK"},
		{name: "unknown name", modStr: "Unobtainium@1", seq: "PEPK", wantErr: true},
		{name: "missing site", modStr: "Oxidation", seq: "PEPK", wantErr: true},
		{name: "site past C-term", modStr: "Oxidation@9", seq: "PEPK", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.ParseModString(tt.modStr, tt.seq)
			if tt.wantErr {
				if err == nil {
					t.Error("ParseModString() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseModString() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParseModString() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("mod %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
