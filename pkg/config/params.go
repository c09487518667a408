// Package config holds the search parameter file: defaults, TOML loading and
// writing, and merging with command line flags.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"

	"github.com/ChrisMcGann/PepMap/pkg/core"
	"github.com/ChrisMcGann/PepMap/pkg/filter"
	"github.com/ChrisMcGann/PepMap/pkg/reader/queries"
	"github.com/ChrisMcGann/PepMap/pkg/search"
)

// Duration is a time.Duration written as "30s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Params is the content of a parameter file.
type Params struct {
	Index         string `toml:"index"`          // saved index file
	Proteins      string `toml:"proteins"`       // FASTA used when no index file is given
	ModsFile      string `toml:"mods_file"`      // extra modification CSV
	AverageMasses bool   `toml:"average_masses"` // use average instead of monoisotopic masses
	Workers       int    `toml:"workers"`        // 0 = number of CPUs
	Ranking       string `toml:"ranking"`

	Search SearchParams `toml:"search"`
	Filter FilterParams `toml:"filter"`
}

// SearchParams are the per-query defaults.
type SearchParams struct {
	Tolerance        float64  `toml:"tolerance"`
	ToleranceUnit    string   `toml:"tolerance_unit"`
	MaxEdits         int      `toml:"max_edits"`
	EditOps          string   `toml:"edit_ops"`
	MaxCombinations  int      `toml:"max_combinations"`
	Variable         []string `toml:"variable"`
	Fixed            []string `toml:"fixed"`
	MaxModifications int      `toml:"max_modifications"`
	MinLength        int      `toml:"min_length"`
	MaxLength        int      `toml:"max_length"`
	MaxNodes         int64    `toml:"max_nodes"`
	Timeout          Duration `toml:"timeout"`
}

// FilterParams select which matches are reported.
type FilterParams struct {
	TopN         int      `toml:"top_n"`
	MaxDeviation float64  `toml:"max_deviation"`
	MaxEdits     int      `toml:"max_edits"`
	Unedited     bool     `toml:"unedited"`
	MaxMods      int      `toml:"max_mods"`
	Accessions   []string `toml:"accessions"`
}

// Default returns the built-in parameters.
func Default() *Params {
	return &Params{
		Ranking: search.DefaultRanking.String(),
		Search: SearchParams{
			Tolerance:        0.02,
			ToleranceUnit:    "da",
			EditOps:          "none",
			MaxCombinations:  2,
			Fixed:            []string{"Carbamidomethyl"},
			Variable:         []string{"Oxidation"},
			MaxModifications: 2,
			MinLength:        6,
			MaxLength:        30,
			MaxNodes:         5_000_000,
			Timeout:          Duration{30 * time.Second},
		},
	}
}

// Load reads a parameter file on top of the defaults. Unknown keys are an error.
func Load(r io.Reader) (*Params, error) {
	p := Default()
	md, err := toml.NewDecoder(r).Decode(p)
	if err != nil {
		return nil, fmt.Errorf("failed to parse parameters: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown parameters: %s", strings.Join(keys, ", "))
	}
	return p, p.Validate()
}

// LoadFile is Load on a file path.
func LoadFile(path string) (*Params, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parameter file: %w", err)
	}
	defer f.Close()

	p, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Write encodes the parameters as TOML.
func (p *Params) Write(w io.Writer) error {
	return toml.NewEncoder(w).Encode(p)
}

// Validate checks values that do not depend on the mass table.
func (p *Params) Validate() error {
	if p.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", p.Workers)
	}
	if _, err := search.ParseRanking(p.Ranking); err != nil {
		return err
	}
	s := &p.Search
	if s.Tolerance < 0 {
		return fmt.Errorf("tolerance must be non-negative, got %f", s.Tolerance)
	}
	if _, err := core.ParseToleranceUnit(s.ToleranceUnit); err != nil {
		return err
	}
	if _, err := search.ParseEditOps(s.EditOps); err != nil {
		return err
	}
	if s.MaxEdits < 0 || s.MaxCombinations < 0 || s.MaxModifications < 0 || s.MaxNodes < 0 || s.Timeout.Duration < 0 {
		return fmt.Errorf("search budgets must be non-negative")
	}
	if s.MinLength < 0 || s.MaxLength < 0 || (s.MaxLength > 0 && s.MinLength > s.MaxLength) {
		return fmt.Errorf("invalid length bounds [%d, %d]", s.MinLength, s.MaxLength)
	}
	fc := p.FilterConfig()
	return fc.Validate()
}

// ModDatabase returns the default catalog extended by ModsFile.
func (p *Params) ModDatabase() (*core.ModDatabase, error) {
	db := core.DefaultModDatabase()
	if p.ModsFile == "" {
		return db, nil
	}
	f, err := os.Open(p.ModsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open modification file: %w", err)
	}
	defer f.Close()

	if err := db.LoadFromCSV(f); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", p.ModsFile, err)
	}
	return db, nil
}

// MassTable returns the standard table, with average masses when configured.
func (p *Params) MassTable() *core.MassTable {
	table := core.StandardMassTable()
	if p.AverageMasses {
		return table.Average()
	}
	return table
}

// QueryDefaults resolves the search section into the template every query
// starts from.
func (p *Params) QueryDefaults(db *core.ModDatabase) (queries.Defaults, error) {
	s := &p.Search
	unit, err := core.ParseToleranceUnit(s.ToleranceUnit)
	if err != nil {
		return queries.Defaults{}, err
	}
	ops, err := search.ParseEditOps(s.EditOps)
	if err != nil {
		return queries.Defaults{}, err
	}
	variable, err := db.Lookup(s.Variable)
	if err != nil {
		return queries.Defaults{}, fmt.Errorf("variable modifications: %w", err)
	}
	fixed, err := db.Lookup(s.Fixed)
	if err != nil {
		return queries.Defaults{}, fmt.Errorf("fixed modifications: %w", err)
	}

	return queries.Defaults{
		Query: search.Query{
			MaxEdits:         s.MaxEdits,
			EditOps:          ops,
			MaxCombinations:  s.MaxCombinations,
			Variable:         variable,
			Fixed:            fixed,
			MaxModifications: s.MaxModifications,
			MinLength:        s.MinLength,
			MaxLength:        s.MaxLength,
			Limits:           search.Limits{MaxNodes: s.MaxNodes, Timeout: s.Timeout.Duration},
		},
		Tolerance: s.Tolerance,
		Unit:      unit,
		Mods:      db,
	}, nil
}

// FilterConfig converts the filter section.
func (p *Params) FilterConfig() filter.Config {
	f := &p.Filter
	return filter.Config{
		TopN:         f.TopN,
		MaxDeviation: f.MaxDeviation,
		MaxEdits:     f.MaxEdits,
		Unedited:     f.Unedited,
		MaxMods:      f.MaxMods,
		Accessions:   f.Accessions,
	}
}

// RankingValue parses Ranking.
func (p *Params) RankingValue() (search.Ranking, error) {
	return search.ParseRanking(p.Ranking)
}

// flagFields maps a flag name to the parameter it sets.
var flagFields = map[string]func(dst, src *Params){
	"index":            func(d, s *Params) { d.Index = s.Index },
	"proteins":         func(d, s *Params) { d.Proteins = s.Proteins },
	"mods":             func(d, s *Params) { d.ModsFile = s.ModsFile },
	"average":          func(d, s *Params) { d.AverageMasses = s.AverageMasses },
	"workers":          func(d, s *Params) { d.Workers = s.Workers },
	"ranking":          func(d, s *Params) { d.Ranking = s.Ranking },
	"tolerance":        func(d, s *Params) { d.Search.Tolerance = s.Search.Tolerance },
	"tolerance-unit":   func(d, s *Params) { d.Search.ToleranceUnit = s.Search.ToleranceUnit },
	"max-edits":        func(d, s *Params) { d.Search.MaxEdits = s.Search.MaxEdits },
	"edit-ops":         func(d, s *Params) { d.Search.EditOps = s.Search.EditOps },
	"max-combinations": func(d, s *Params) { d.Search.MaxCombinations = s.Search.MaxCombinations },
	"variable":         func(d, s *Params) { d.Search.Variable = s.Search.Variable },
	"fixed":            func(d, s *Params) { d.Search.Fixed = s.Search.Fixed },
	"max-mods":         func(d, s *Params) { d.Search.MaxModifications = s.Search.MaxModifications },
	"min-length":       func(d, s *Params) { d.Search.MinLength = s.Search.MinLength },
	"max-length":       func(d, s *Params) { d.Search.MaxLength = s.Search.MaxLength },
	"max-nodes":        func(d, s *Params) { d.Search.MaxNodes = s.Search.MaxNodes },
	"timeout":          func(d, s *Params) { d.Search.Timeout = s.Search.Timeout },
	"top-n":            func(d, s *Params) { d.Filter.TopN = s.Filter.TopN },
	"max-deviation":    func(d, s *Params) { d.Filter.MaxDeviation = s.Filter.MaxDeviation },
	"filter-max-edits": func(d, s *Params) { d.Filter.MaxEdits = s.Filter.MaxEdits },
	"unedited":         func(d, s *Params) { d.Filter.Unedited = s.Filter.Unedited },
	"filter-max-mods":  func(d, s *Params) { d.Filter.MaxMods = s.Filter.MaxMods },
	"accession-prefix": func(d, s *Params) { d.Filter.Accessions = s.Filter.Accessions },
}

// BindFlags registers a flag for every parameter, writing into p.
func BindFlags(fs *pflag.FlagSet, p *Params) {
	fs.StringVar(&p.Index, "index", p.Index, "Saved index file")
	fs.StringVar(&p.Proteins, "proteins", p.Proteins, "Protein FASTA to index when no --index is given")
	fs.StringVar(&p.ModsFile, "mods", p.ModsFile, "Extra modification CSV (mod,massshift,rule,pattern,target)")
	fs.BoolVar(&p.AverageMasses, "average", p.AverageMasses, "Use average instead of monoisotopic masses")
	fs.IntVar(&p.Workers, "workers", p.Workers, "Worker goroutines (0 = number of CPUs)")
	fs.StringVar(&p.Ranking, "ranking", p.Ranking, "Match ranking criteria: edits, deviation, modifications, combinations")

	s := &p.Search
	fs.Float64Var(&s.Tolerance, "tolerance", s.Tolerance, "Precursor tolerance")
	fs.StringVar(&s.ToleranceUnit, "tolerance-unit", s.ToleranceUnit, "Precursor tolerance unit: da or ppm")
	fs.IntVar(&s.MaxEdits, "max-edits", s.MaxEdits, "Edit budget per peptide")
	fs.StringVar(&s.EditOps, "edit-ops", s.EditOps, "Allowed edits: any of i,d,s, 'all' or 'none'")
	fs.IntVar(&s.MaxCombinations, "max-combinations", s.MaxCombinations, "Combination symbols resolved per peptide")
	fs.StringSliceVar(&s.Variable, "variable", s.Variable, "Variable modifications")
	fs.StringSliceVar(&s.Fixed, "fixed", s.Fixed, "Fixed modifications")
	fs.IntVar(&s.MaxModifications, "max-mods", s.MaxModifications, "Variable modifications per peptide")
	fs.IntVar(&s.MinLength, "min-length", s.MinLength, "Minimum length of open search peptides")
	fs.IntVar(&s.MaxLength, "max-length", s.MaxLength, "Maximum length of open search peptides (0 = no limit)")
	fs.Int64Var(&s.MaxNodes, "max-nodes", s.MaxNodes, "Node budget per query (0 = no limit)")
	fs.DurationVar(&s.Timeout.Duration, "timeout", s.Timeout.Duration, "Time budget per query (0 = no limit)")

	f := &p.Filter
	fs.IntVar(&f.TopN, "top-n", f.TopN, "Keep only the N best matches per query (0 = no limit)")
	fs.Float64Var(&f.MaxDeviation, "max-deviation", f.MaxDeviation, "Maximum absolute mass deviation (0 = no cutoff)")
	fs.IntVar(&f.MaxEdits, "filter-max-edits", f.MaxEdits, "Drop matches with more edits (0 = no limit)")
	fs.BoolVar(&f.Unedited, "unedited", f.Unedited, "Report only matches without edits")
	fs.IntVar(&f.MaxMods, "filter-max-mods", f.MaxMods, "Drop matches with more variable modifications (0 = no limit)")
	fs.StringSliceVar(&f.Accessions, "accession-prefix", f.Accessions, "Report only accessions with these prefixes")
}

// MergeFlags returns file with every parameter whose flag was set on the
// command line taken from flags.
func MergeFlags(fs *pflag.FlagSet, flags, file *Params) *Params {
	merged := *file
	fs.Visit(func(f *pflag.Flag) {
		if set, ok := flagFields[f.Name]; ok {
			set(&merged, flags)
		}
	})
	return &merged
}
