// Package core provides modification parsing and management
package core

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// ModificationType is the placement rule of a modification.
type ModificationType int

const (
	// ModAA applies to any residue matching the pattern.
	ModAA ModificationType = iota
	// ModNTermPeptide applies to the peptide N-terminus.
	ModNTermPeptide
	// ModNTermPeptideAA applies to the peptide N-terminus when the pattern matches there.
	ModNTermPeptideAA
	// ModNTermProtein applies to the peptide N-terminus when it is the protein N-terminus.
	ModNTermProtein
	// ModNTermProteinAA is ModNTermProtein restricted by a residue pattern.
	ModNTermProteinAA
	// ModCTermPeptide applies to the peptide C-terminus.
	ModCTermPeptide
	// ModCTermPeptideAA applies to the peptide C-terminus when the pattern matches there.
	ModCTermPeptideAA
	// ModCTermProtein applies to the peptide C-terminus when it is the protein C-terminus.
	ModCTermProtein
	// ModCTermProteinAA is ModCTermProtein restricted by a residue pattern.
	ModCTermProteinAA
)

var modTypeNames = []string{
	"aa", "nterm", "nterm-aa", "protein-nterm", "protein-nterm-aa",
	"cterm", "cterm-aa", "protein-cterm", "protein-cterm-aa",
}

func (t ModificationType) String() string {
	if int(t) < len(modTypeNames) {
		return modTypeNames[t]
	}
	return fmt.Sprintf("ModificationType(%d)", int(t))
}

// ParseModificationType parses the textual form of a placement rule.
func ParseModificationType(s string) (ModificationType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range modTypeNames {
		if s == name {
			return ModificationType(i), nil
		}
	}
	return ModAA, fmt.Errorf("unknown modification rule '%s'", s)
}

// NTerminal reports whether the rule places the modification on site 0.
func (t ModificationType) NTerminal() bool {
	return t >= ModNTermPeptide && t <= ModNTermProteinAA
}

// CTerminal reports whether the rule places the modification on site length+1.
func (t ModificationType) CTerminal() bool {
	return t >= ModCTermPeptide && t <= ModCTermProteinAA
}

// ProteinTerminal reports whether the rule requires an actual protein boundary.
func (t ModificationType) ProteinTerminal() bool {
	switch t {
	case ModNTermProtein, ModNTermProteinAA, ModCTermProtein, ModCTermProteinAA:
		return true
	}
	return false
}

// NeedsPattern reports whether the rule is restricted by residues.
func (t ModificationType) NeedsPattern() bool {
	switch t {
	case ModAA, ModNTermPeptideAA, ModNTermProteinAA, ModCTermPeptideAA, ModCTermProteinAA:
		return true
	}
	return false
}

// Pattern is an ordered list of residue sets with the modified residue at Target.
// An empty set matches any residue.
type Pattern struct {
	Sets   []string
	Target int
}

// ParsePattern parses "[ST]", "M" or "NX[ST]" (X matches anything). The
// target is the index of the modified residue inside the pattern.
func ParsePattern(s string, target int) (Pattern, error) {
	var p Pattern
	s = strings.TrimSpace(s)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return Pattern{}, fmt.Errorf("unterminated residue set in pattern '%s'", s)
			}
			set := s[i+1 : i+end]
			if set == "" {
				return Pattern{}, fmt.Errorf("empty residue set in pattern '%s'", s)
			}
			p.Sets = append(p.Sets, strings.ToUpper(set))
			i += end
		case c == 'X' || c == 'x' || c == '.':
			p.Sets = append(p.Sets, "")
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z':
			p.Sets = append(p.Sets, strings.ToUpper(string(c)))
		default:
			return Pattern{}, fmt.Errorf("invalid character '%c' in pattern '%s'", c, s)
		}
	}
	if len(p.Sets) > 0 && (target < 0 || target >= len(p.Sets)) {
		return Pattern{}, fmt.Errorf("pattern target %d outside pattern '%s'", target, s)
	}
	p.Target = target
	return p, nil
}

// Len is the number of residue positions in the pattern.
func (p Pattern) Len() int { return len(p.Sets) }

// MinIndex is the offset of the first pattern position relative to the target (<= 0).
func (p Pattern) MinIndex() int { return -p.Target }

// MaxIndex is the offset of the last pattern position relative to the target (>= 0).
// An empty pattern spans only the target.
func (p Pattern) MaxIndex() int {
	if len(p.Sets) == 0 {
		return 0
	}
	return len(p.Sets) - 1 - p.Target
}

// TargetAllows reports whether the modified residue itself can be residue.
func (p Pattern) TargetAllows(residue byte) bool {
	if len(p.Sets) == 0 {
		return true
	}
	return setAllows(p.Sets[p.Target], residue)
}

// Matches reports whether the pattern matches residues with its target at index at.
// Pattern positions outside residues never match.
func (p Pattern) Matches(residues string, at int) bool {
	for i, set := range p.Sets {
		j := at + i - p.Target
		if j < 0 || j >= len(residues) {
			return false
		}
		if !setAllows(set, residues[j]) {
			return false
		}
	}
	return true
}

func (p Pattern) String() string {
	var b strings.Builder
	for _, set := range p.Sets {
		switch len(set) {
		case 0:
			b.WriteByte('X')
		case 1:
			b.WriteString(set)
		default:
			b.WriteString("[" + set + "]")
		}
	}
	return b.String()
}

func setAllows(set string, residue byte) bool {
	return set == "" || strings.IndexByte(set, residue) >= 0
}

// ModDefinition is a catalog entry: name, mass shift, placement rule and pattern.
type ModDefinition struct {
	Name    string
	Mass    float64
	Type    ModificationType
	Pattern Pattern
}

// Validate checks that the rule and pattern agree.
func (d *ModDefinition) Validate() error {
	if d.Name == "" {
		return &ValidationError{Field: "Modification", Message: "name is required"}
	}
	if d.Type.NeedsPattern() && d.Pattern.Len() == 0 {
		return &ValidationError{Field: "Modification", Message: fmt.Sprintf("no pattern set for modification %s", d.Name)}
	}
	return nil
}

func (d *ModDefinition) String() string {
	if d.Pattern.Len() == 0 {
		return fmt.Sprintf("%s (%+.6f, %s)", d.Name, d.Mass, d.Type)
	}
	return fmt.Sprintf("%s (%+.6f, %s %s)", d.Name, d.Mass, d.Type, d.Pattern)
}

// ModDatabase stores modification definitions
type ModDatabase struct {
	mods map[string]*ModDefinition
}

// NewModDatabase creates an empty modification database
func NewModDatabase() *ModDatabase {
	return &ModDatabase{
		mods: make(map[string]*ModDefinition),
	}
}

// LoadFromCSV loads modifications from a CSV file
// (format: mod,massshift[,rule[,pattern[,target]]]). The header line is skipped.
func (db *ModDatabase) LoadFromCSV(r io.Reader) error {
	scanner := bufio.NewScanner(r)

	// Skip header line
	scanner.Scan()

	lineNum := 1
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			return fmt.Errorf("line %d: invalid format, expected at least 2 comma-separated fields", lineNum)
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		mass, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return fmt.Errorf("line %d: invalid mass value '%s': %w", lineNum, parts[1], err)
		}

		def := &ModDefinition{Name: parts[0], Mass: mass}
		if existing, ok := db.mods[def.Name]; ok {
			def.Type, def.Pattern = existing.Type, existing.Pattern
		}

		if len(parts) >= 3 && parts[2] != "" {
			t, terr := ParseModificationType(parts[2])
			switch {
			case terr == nil:
				def.Type = t
			case len(parts) == 3:
				// legacy mod,massshift,aa layout
				p, perr := ParsePattern("["+strings.Trim(parts[2], "[]")+"]", 0)
				if perr != nil {
					return fmt.Errorf("line %d: %w", lineNum, terr)
				}
				def.Type, def.Pattern = ModAA, p
			default:
				return fmt.Errorf("line %d: %w", lineNum, terr)
			}
		}
		if len(parts) >= 4 && parts[3] != "" {
			target := 0
			if len(parts) >= 5 && parts[4] != "" {
				if target, err = strconv.Atoi(parts[4]); err != nil {
					return fmt.Errorf("line %d: invalid pattern target '%s': %w", lineNum, parts[4], err)
				}
			}
			if def.Pattern, err = ParsePattern(parts[3], target); err != nil {
				return fmt.Errorf("line %d: %w", lineNum, err)
			}
		}

		if err := db.Define(def); err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading CSV: %w", err)
	}

	return nil
}

// GetMass returns the mass shift for a modification name
func (db *ModDatabase) GetMass(name string) (float64, bool) {
	def, ok := db.mods[name]
	if !ok {
		return 0, false
	}
	return def.Mass, true
}

// Get returns the full definition of a modification.
func (db *ModDatabase) Get(name string) (*ModDefinition, bool) {
	def, ok := db.mods[name]
	return def, ok
}

// Lookup resolves a list of names, failing on the first unknown one.
func (db *ModDatabase) Lookup(names []string) ([]*ModDefinition, error) {
	defs := make([]*ModDefinition, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		def, ok := db.mods[name]
		if !ok {
			return nil, fmt.Errorf("unknown modification '%s'", name)
		}
		if err := def.Validate(); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Add adds or updates a modification's mass, keeping any known placement rule
func (db *ModDatabase) Add(name string, mass float64) {
	if def, ok := db.mods[name]; ok {
		def.Mass = mass
		return
	}
	db.mods[name] = &ModDefinition{Name: name, Mass: mass}
}

// Define adds or replaces a complete definition.
func (db *ModDatabase) Define(def *ModDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("modification without name")
	}
	db.mods[def.Name] = def
	return nil
}

// Names returns all modification names, sorted.
func (db *ModDatabase) Names() []string {
	names := make([]string, 0, len(db.mods))
	for name := range db.mods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseModString parses a modification string like "57.021464@2;15.994915@8" or "Carbamidomethyl@C2;Oxidation@M8"
// Returns a list of modifications
func (db *ModDatabase) ParseModString(modStr string, sequence string) ([]Modification, error) {
	if modStr == "" {
		return nil, nil
	}

	var mods []Modification
	parts := strings.Split(modStr, ";")

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		// Split by @
		atParts := strings.Split(part, "@")
		if len(atParts) != 2 {
			return nil, fmt.Errorf("invalid modification format '%s', expected 'name@position' or 'mass@position'", part)
		}

		nameOrMass := strings.TrimSpace(atParts[0])
		posStr := strings.TrimSpace(atParts[1])

		// Try to parse as a number first (direct mass)
		mass, err := strconv.ParseFloat(nameOrMass, 64)
		if err != nil {
			var ok bool
			mass, ok = db.GetMass(nameOrMass)
			if !ok {
				return nil, fmt.Errorf("unknown modification '%s'", nameOrMass)
			}
		}

		position, err := parseSite(posStr, sequence)
		if err != nil {
			return nil, fmt.Errorf("invalid position '%s': %w", posStr, err)
		}

		mods = append(mods, Modification{
			Mass:     mass,
			Position: position,
			Name:     nameOrMass,
			Variable: true,
		})
	}

	sort.SliceStable(mods, func(i, j int) bool { return mods[i].Position < mods[j].Position })
	return mods, nil
}

// parseSite parses a backbone site that may carry a residue letter.
// Examples: "2", "C2" (residue 2), "A0" or "0" (N-term), "R-1" or "-1" (C-term).
// Sites use 0 for the N-terminus, 1..len for residues and len+1 for the C-terminus.
func parseSite(posStr string, sequence string) (int, error) {
	posStr = strings.TrimSpace(posStr)

	if posStr == "-1" || strings.HasSuffix(posStr, "-1") {
		return len(sequence) + 1, nil
	}

	posStr = strings.TrimLeft(posStr, "ACDEFGHIKLMNOPQRSTUVWY")

	pos, err := strconv.Atoi(posStr)
	if err != nil {
		return 0, fmt.Errorf("invalid position number: %w", err)
	}
	if pos < 0 || pos > len(sequence)+1 {
		return 0, fmt.Errorf("site %d outside peptide of length %d", pos, len(sequence))
	}

	return pos, nil
}

func mustPattern(s string, target int) Pattern {
	p, err := ParsePattern(s, target)
	if err != nil {
		panic(err)
	}
	return p
}

// DefaultModDatabase returns a ModDatabase pre-loaded with common modifications
func DefaultModDatabase() *ModDatabase {
	db := NewModDatabase()

	// Common modifications from unimod
	db.Add("Acetyl", 42.010565)
	db.Add("Amidated", -0.984016)
	db.Add("Biotin", 226.077598)
	db.Add("Carbamidomethyl", 57.021464)
	db.Add("Carbamyl", 43.005814)
	db.Add("Carboxymethyl", 58.005479)
	db.Add("Deamidated", 0.984016)
	db.Add("Met->Hse", -29.992806)
	db.Add("Met->Hsl", -48.003371)
	db.Add("NIPCAM", 99.068414)
	db.Add("Phospho", 79.966331)
	db.Add("Dehydrated", -18.010565)
	db.Add("Propionamide", 71.037114)
	db.Add("Pyro-carbamidomethyl", 39.994915)
	db.Add("Glu->pyro-Glu", -18.010565)
	db.Add("Gln->pyro-Glu", -17.026549)
	db.Add("Cation:Na", 21.981943)
	db.Add("Methyl", 14.01565)
	db.Add("Oxidation", 15.994915)
	db.Add("Dimethyl", 28.0313)
	db.Add("Trimethyl", 42.04695)
	db.Add("Methylthio", 45.987721)
	db.Add("Sulfo", 79.956815)
	db.Add("Hex", 162.052824)
	db.Add("Lipoyl", 188.032956)
	db.Add("HexNAc", 203.079373)
	db.Add("Farnesyl", 204.187801)
	db.Add("Myristoyl", 210.198366)
	db.Add("PyridoxalPhosphate", 229.014009)
	db.Add("Palmitoyl", 238.229666)
	db.Add("GeranylGeranyl", 272.250401)
	db.Add("Phosphopantetheine", 340.085794)
	db.Add("FAD", 783.141486)
	db.Add("Guanidinyl", 42.021798)
	db.Add("HNE", 156.11503)
	db.Add("Glucuronyl", 176.032088)
	db.Add("Glutathione", 305.068156)
	db.Add("Propionyl", 56.026215)
	db.Add("TMT", 229.162932)
	db.Add("TMTPro", 304.207146)
	db.Add("TMT6plex", 229.162932)
	db.Add("TMT10plex", 229.162932)
	db.Add("TMT11plex", 229.162932)
	db.Add("TMT16plex", 304.207146)
	db.Add("iTRAQ4plex", 144.102063)
	db.Add("iTRAQ8plex", 304.205360)

	// Placement rules for the ones used as search modifications
	rule := func(name string, t ModificationType, pattern string, target int) {
		def := db.mods[name]
		def.Type = t
		if pattern != "" {
			def.Pattern = mustPattern(pattern, target)
		}
	}
	rule("Oxidation", ModAA, "M", 0)
	rule("Carbamidomethyl", ModAA, "C", 0)
	rule("Phospho", ModAA, "[STY]", 0)
	rule("Deamidated", ModAA, "[NQ]", 0)
	rule("Methyl", ModAA, "[KR]", 0)
	rule("Dimethyl", ModAA, "[KR]", 0)
	rule("Trimethyl", ModAA, "K", 0)
	rule("HexNAc", ModAA, "NX[ST]", 0)
	rule("Acetyl", ModNTermProtein, "", 0)
	rule("Amidated", ModCTermProtein, "", 0)
	rule("Carbamyl", ModNTermPeptide, "", 0)
	rule("Gln->pyro-Glu", ModNTermPeptideAA, "Q", 0)
	rule("Glu->pyro-Glu", ModNTermPeptideAA, "E", 0)
	rule("Pyro-carbamidomethyl", ModNTermPeptideAA, "C", 0)
	rule("TMT6plex", ModNTermPeptide, "", 0)
	rule("TMTPro", ModNTermPeptide, "", 0)

	return db
}
