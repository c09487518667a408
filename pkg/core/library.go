package core

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// LibraryEntry is one peptide of a spectral library, reduced to what mapping
// it onto proteins needs. Peaks are counted but not kept.
type LibraryEntry struct {
	Name          string
	Sequence      string // bare residues, modifications removed
	Charge        int
	PrecursorMZ   float64
	RetentionTime *float64
	Modifications []Modification
	NumPeaks      int
	SourceFormat  string // "msp" or "sptxt"
}

// Validate checks the fields a search needs.
func (e *LibraryEntry) Validate() error {
	var errs []string
	if e.Sequence == "" {
		errs = append(errs, "sequence is required")
	}
	if e.Charge <= 0 {
		errs = append(errs, fmt.Sprintf("charge must be positive, got %d", e.Charge))
	}
	if e.PrecursorMZ < 0 {
		errs = append(errs, "precursor m/z must be non-negative")
	}
	if len(errs) > 0 {
		return &ValidationError{Field: "LibraryEntry", Message: strings.Join(errs, "; ")}
	}
	return nil
}

// ModMass is the summed mass of the entry's modifications.
func (e *LibraryEntry) ModMass() float64 {
	total := 0.0
	for _, mod := range e.Modifications {
		total += mod.Mass
	}
	return total
}

// ResidueWindow returns the window of unmodified residue mass the entry's
// sequence must fall in: the precursor window with the library
// modifications taken out. Entries without a precursor use the m/z computed
// from their own sequence.
func (e *LibraryEntry) ResidueWindow(tolerance float64, unit ToleranceUnit) (low, high float64, err error) {
	mz := e.PrecursorMZ
	if mz == 0 && e.Charge > 0 {
		mz = CalculatePeptideMass(e.Sequence, e.Charge, e.Modifications)
	}
	low, high, err = ResidueWindow(mz, e.Charge, tolerance, unit)
	if err != nil {
		return 0, 0, fmt.Errorf("entry %s: %w", e.Name, err)
	}
	mods := e.ModMass()
	low, high = low-mods, high-mods
	if low < 0 {
		low = 0
	}
	if high < 0 {
		return 0, 0, fmt.Errorf("entry %s: modifications outweigh the precursor", e.Name)
	}
	return low, high, nil
}

// ParseModsField parses the library "Mods" comment field,
// "count/pos,AA,Name/pos,AA,Name...", where pos is the 0-based residue index
// and -1 the N-terminus. Names missing from the database are skipped and
// returned in unknown.
func (db *ModDatabase) ParseModsField(value string, length int) (mods []Modification, unknown []string, err error) {
	parts := strings.Split(strings.TrimSpace(value), "/")
	count, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, nil, fmt.Errorf("invalid modification count '%s': %w", parts[0], err)
	}
	if count != len(parts)-1 {
		return nil, nil, fmt.Errorf("modification count %d does not match %d entries", count, len(parts)-1)
	}

	for _, part := range parts[1:] {
		fields := strings.Split(part, ",")
		if len(fields) != 3 {
			return nil, nil, fmt.Errorf("invalid modification entry '%s', expected 'pos,AA,Name'", part)
		}
		pos, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, nil, fmt.Errorf("invalid modification position '%s': %w", fields[0], err)
		}
		site := pos + 1
		if site < 0 || site > length+1 {
			return nil, nil, fmt.Errorf("modification position %d outside peptide of length %d", pos, length)
		}

		name := fields[2]
		mass, ok := db.GetMass(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		mods = append(mods, Modification{Mass: mass, Position: site, Name: name, Variable: true})
	}

	sort.SliceStable(mods, func(i, j int) bool { return mods[i].Position < mods[j].Position })
	return mods, unknown, nil
}
