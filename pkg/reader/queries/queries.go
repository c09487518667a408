// Package queries loads batches of search queries from YAML files.
//
// A batch file lists queries under a "queries" key:
//
//	queries:
//	  - id: q1
//	    sequence: PEPTJDE
//	    max_combinations: 1
//	  - id: q2
//	    precursor_mz: 391.21
//	    charge: 2
//	    sequence: AACK
//	  - id: open
//	    window: [700.3, 700.4]
//	    min_length: 5
//	    max_length: 9
//	    variable: [Oxidation]
//
// Budgets and modifications missing from an entry come from Defaults.
package queries

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ChrisMcGann/PepMap/pkg/core"
	"github.com/ChrisMcGann/PepMap/pkg/search"
)

// Entry is one query as written in a batch file.
type Entry struct {
	ID       string `yaml:"id"`
	Sequence string `yaml:"sequence,omitempty"`

	Window      []float64 `yaml:"window,flow,omitempty"` // [low, high] residue mass
	Target      float64   `yaml:"target,omitempty"`      // residue mass, widened by the tolerance
	PrecursorMZ float64   `yaml:"precursor_mz,omitempty"`
	Charge      int       `yaml:"charge,omitempty"`
	Tolerance   *float64  `yaml:"tolerance,omitempty"`
	Unit        string    `yaml:"unit,omitempty"`

	Length    int `yaml:"length,omitempty"`
	MinLength int `yaml:"min_length,omitempty"`
	MaxLength int `yaml:"max_length,omitempty"`

	MaxEdits         *int     `yaml:"max_edits,omitempty"`
	EditOps          *string  `yaml:"edit_ops,omitempty"`
	MaxCombinations  *int     `yaml:"max_combinations,omitempty"`
	Variable         []string `yaml:"variable,omitempty,flow"`
	Fixed            []string `yaml:"fixed,omitempty,flow"`
	MaxModifications *int     `yaml:"max_modifications,omitempty"`
}

// File is the top level of a batch file.
type File struct {
	Queries []Entry `yaml:"queries"`
}

// Defaults completes entries that leave fields out.
type Defaults struct {
	Query     search.Query // budgets, modifications and limits
	Tolerance float64
	Unit      core.ToleranceUnit
	Mods      *core.ModDatabase
}

// Decode reads a batch file. Unknown keys are an error.
func Decode(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("failed to parse query file: %w", err)
	}
	return &f, nil
}

// Load reads a batch file and builds its queries.
func Load(r io.Reader, d Defaults) ([]*search.Query, error) {
	f, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return f.Build(d)
}

// LoadFile is Load on a file path.
func LoadFile(path string, d Defaults) ([]*search.Query, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open query file: %w", err)
	}
	defer file.Close()

	return Load(file, d)
}

// Build converts every entry, numbering those without an ID.
func (f *File) Build(d Defaults) ([]*search.Query, error) {
	if d.Mods == nil {
		d.Mods = core.DefaultModDatabase()
	}

	out := make([]*search.Query, 0, len(f.Queries))
	seen := make(map[string]bool, len(f.Queries))
	for i := range f.Queries {
		e := &f.Queries[i]
		if e.ID == "" {
			e.ID = fmt.Sprintf("q%d", i+1)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("query %d: duplicate id '%s'", i+1, e.ID)
		}
		seen[e.ID] = true

		q, err := e.Query(d)
		if err != nil {
			return nil, fmt.Errorf("query '%s': %w", e.ID, err)
		}
		out = append(out, q)
	}
	return out, nil
}

// Query builds the search query of the entry.
func (e *Entry) Query(d Defaults) (*search.Query, error) {
	q := d.Query
	q.ID = e.ID
	q.Sequence = strings.ToUpper(strings.TrimSpace(e.Sequence))
	if e.Length != 0 || e.MinLength != 0 || e.MaxLength != 0 {
		q.Length, q.MinLength, q.MaxLength = e.Length, e.MinLength, e.MaxLength
	}

	tolerance, unit := d.Tolerance, d.Unit
	if e.Tolerance != nil {
		tolerance = *e.Tolerance
	}
	if e.Unit != "" {
		u, err := core.ParseToleranceUnit(e.Unit)
		if err != nil {
			return nil, err
		}
		unit = u
	}

	switch {
	case len(e.Window) > 0:
		if len(e.Window) != 2 {
			return nil, fmt.Errorf("window needs exactly two values, got %d", len(e.Window))
		}
		q.Window = search.MassWindow{Low: e.Window[0], High: e.Window[1]}
		q.Target = e.Target
	case e.PrecursorMZ != 0:
		low, high, err := core.ResidueWindow(e.PrecursorMZ, e.Charge, tolerance, unit)
		if err != nil {
			return nil, err
		}
		q.Window = search.MassWindow{Low: low, High: high}
		q.Target = (low + high) / 2
	case e.Target != 0:
		delta := tolerance
		if unit == core.PPM {
			delta = e.Target * tolerance / 1e6
		}
		q.Window = search.MassWindow{Low: e.Target - delta, High: e.Target + delta}
		q.Target = e.Target
	}

	if e.MaxEdits != nil {
		q.MaxEdits = *e.MaxEdits
	}
	if e.EditOps != nil {
		ops, err := search.ParseEditOps(*e.EditOps)
		if err != nil {
			return nil, err
		}
		q.EditOps = ops
	}
	if e.MaxCombinations != nil {
		q.MaxCombinations = *e.MaxCombinations
	}
	if e.MaxModifications != nil {
		q.MaxModifications = *e.MaxModifications
	}
	if e.Variable != nil {
		defs, err := d.Mods.Lookup(e.Variable)
		if err != nil {
			return nil, err
		}
		q.Variable = defs
		if e.MaxModifications == nil && q.MaxModifications == 0 && len(defs) > 0 {
			q.MaxModifications = 1
		}
	}
	if e.Fixed != nil {
		defs, err := d.Mods.Lookup(e.Fixed)
		if err != nil {
			return nil, err
		}
		q.Fixed = defs
	}

	return &q, nil
}
