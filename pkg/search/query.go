package search

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ChrisMcGann/PepMap/pkg/core"
	"github.com/ChrisMcGann/PepMap/pkg/sites"
)

// massEpsilon absorbs floating point noise in window comparisons.
const massEpsilon = 1e-6

// MassWindow is an inclusive range of acceptable residue mass.
type MassWindow struct {
	Low  float64
	High float64
}

// IsZero reports whether no window was given.
func (w MassWindow) IsZero() bool { return w.Low == 0 && w.High == 0 }

// Contains reports whether mass lies within the window, boundaries included.
func (w MassWindow) Contains(mass float64) bool {
	return mass >= w.Low-massEpsilon && mass <= w.High+massEpsilon
}

// Midpoint is the center of the window.
func (w MassWindow) Midpoint() float64 { return (w.Low + w.High) / 2 }

func (w MassWindow) String() string {
	return fmt.Sprintf("[%.6f, %.6f]", w.Low, w.High)
}

// EditOps is the set of edit operations a query may use.
type EditOps uint8

const (
	AllowInsertion EditOps = 1 << iota
	AllowDeletion
	AllowSubstitution

	AllEdits = AllowInsertion | AllowDeletion | AllowSubstitution
)

// Has reports whether op is allowed.
func (o EditOps) Has(op core.EditOp) bool {
	switch op {
	case core.EditInsertion:
		return o&AllowInsertion != 0
	case core.EditDeletion:
		return o&AllowDeletion != 0
	case core.EditSubstitution:
		return o&AllowSubstitution != 0
	}
	return false
}

func (o EditOps) String() string {
	var parts []string
	if o&AllowInsertion != 0 {
		parts = append(parts, "insertion")
	}
	if o&AllowDeletion != 0 {
		parts = append(parts, "deletion")
	}
	if o&AllowSubstitution != 0 {
		parts = append(parts, "substitution")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

// ParseEditOps parses a comma separated list of edit operations
// ("insertion,substitution"), the short form "ids", "all" or "none".
func ParseEditOps(s string) (EditOps, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "none":
		return 0, nil
	case "all":
		return AllEdits, nil
	}

	var ops EditOps
	fields := strings.Split(s, ",")
	if len(fields) == 1 && strings.Trim(s, "ids") == "" {
		fields = strings.Split(s, "")
	}
	for _, f := range fields {
		switch strings.TrimSpace(f) {
		case "i", "ins", "insertion":
			ops |= AllowInsertion
		case "d", "del", "deletion":
			ops |= AllowDeletion
		case "s", "sub", "substitution":
			ops |= AllowSubstitution
		default:
			return 0, fmt.Errorf("unknown edit operation '%s'", f)
		}
	}
	return ops, nil
}

// Limits bound the work a single query may do. Zero means unlimited.
type Limits struct {
	MaxNodes int64
	Timeout  time.Duration
}

// Query describes one search. A query with a Sequence maps that sequence
// (which may contain combination symbols) onto the index; a query without one
// is an open search that enumerates every indexed peptide whose mass falls in
// Window.
type Query struct {
	ID       string
	Sequence string

	Window MassWindow
	// Target is the nominal mass deviations are measured from. The window
	// midpoint is used when zero.
	Target float64

	// Length fixes the peptide length of an open search; MinLength and
	// MaxLength bound it instead.
	Length    int
	MinLength int
	MaxLength int

	MaxCombinations int
	MaxEdits        int
	EditOps         EditOps

	Variable         []*core.ModDefinition
	Fixed            []*core.ModDefinition
	MaxModifications int

	Limits Limits
}

// ConfigError reports a query that cannot be searched.
type ConfigError struct {
	Query   string
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Query == "" {
		return fmt.Sprintf("invalid query: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid query '%s': %s: %s", e.Query, e.Field, e.Message)
}

// Open reports whether the query enumerates peptides by mass alone.
func (q *Query) Open() bool { return q.Sequence == "" }

// nominal returns the mass deviations are reported against.
func (q *Query) nominal() float64 {
	if q.Target != 0 {
		return q.Target
	}
	if q.Window.IsZero() {
		return 0
	}
	return q.Window.Midpoint()
}

// lengthBounds returns the admissible peptide lengths of an open search.
// hi is 0 when unbounded.
func (q *Query) lengthBounds() (lo, hi int) {
	if q.Length > 0 {
		return q.Length, q.Length
	}
	lo = q.MinLength
	if lo < 1 {
		lo = 1
	}
	return lo, q.MaxLength
}

// Validate checks the query against the alphabet of table before any search
// starts.
func (q *Query) Validate(table *core.MassTable) error {
	fail := func(field, format string, args ...any) error {
		return &ConfigError{Query: q.ID, Field: field, Message: fmt.Sprintf(format, args...)}
	}

	w := q.Window
	switch {
	case math.IsNaN(w.Low) || math.IsNaN(w.High):
		return fail("Window", "bounds must be numbers")
	case w.Low < 0 || w.High < 0:
		return fail("Window", "negative bound in %s", w)
	case w.Low > w.High:
		return fail("Window", "low bound above high bound in %s", w)
	case q.Open() && w.IsZero():
		return fail("Window", "an open search needs a mass window")
	}

	switch {
	case q.Length < 0 || q.MinLength < 0 || q.MaxLength < 0:
		return fail("Length", "lengths must not be negative")
	case q.MaxLength > 0 && q.MinLength > q.MaxLength:
		return fail("Length", "minimum length %d above maximum %d", q.MinLength, q.MaxLength)
	case q.MaxCombinations < 0:
		return fail("MaxCombinations", "budget must not be negative")
	case q.MaxEdits < 0:
		return fail("MaxEdits", "budget must not be negative")
	case q.MaxModifications < 0:
		return fail("MaxModifications", "budget must not be negative")
	case q.Limits.MaxNodes < 0 || q.Limits.Timeout < 0:
		return fail("Limits", "limits must not be negative")
	case q.MaxEdits > 0 && q.EditOps == 0:
		return fail("EditOps", "an edit budget needs at least one edit operation")
	}

	for i := 0; i < len(q.Sequence); i++ {
		if !table.Known(q.Sequence[i]) {
			return fail("Sequence", "unknown symbol '%c' at position %d", q.Sequence[i], i+1)
		}
	}
	if !q.Open() && q.Length > 0 && q.Length != len(q.Sequence) {
		return fail("Length", "length %d conflicts with sequence of length %d", q.Length, len(q.Sequence))
	}

	for _, def := range q.Variable {
		if err := def.Validate(); err != nil {
			return fail("Variable", "%v", err)
		}
	}
	for _, def := range q.Fixed {
		if err := def.Validate(); err != nil {
			return fail("Fixed", "%v", err)
		}
		if sites.NeedsContext(def) {
			return fail("Fixed", "fixed modification %s needs flanking context; declare it variable", def.Name)
		}
	}

	if !w.IsZero() {
		if err := q.reachable(table); err != nil {
			return fail("Window", "%v", err)
		}
	}
	return nil
}

// reachable rejects windows no peptide of the admissible lengths can reach.
// The peptide of a sequence query always spells the query, edits only change
// how it aligns to the protein, so its mass range follows from the symbols.
func (q *Query) reachable(table *core.MassTable) error {
	var floor, ceiling float64
	var length int

	if q.Open() {
		minLen, maxLen := q.lengthBounds()
		neg, pos := q.modRange(maxLen)
		floor = float64(minLen)*table.MinMass() + neg
		ceiling = math.Inf(1)
		if maxLen > 0 {
			ceiling = float64(maxLen)*table.MaxMass() + pos
		}
		length = minLen
	} else {
		for i := 0; i < len(q.Sequence); i++ {
			lo, hi := math.Inf(1), math.Inf(-1)
			for _, r := range table.Expand(q.Sequence[i]) {
				lo = math.Min(lo, table.Mass(r))
				hi = math.Max(hi, table.Mass(r))
			}
			floor += lo
			ceiling += hi
		}
		neg, pos := q.modRange(len(q.Sequence))
		floor += neg
		ceiling += pos
		length = len(q.Sequence)
	}

	if q.Window.High+massEpsilon < floor {
		return fmt.Errorf("window %s below the lightest %d-residue peptide (%.6f)", q.Window, length, floor)
	}
	if q.Window.Low-massEpsilon > ceiling {
		return fmt.Errorf("window %s above the heaviest reachable peptide (%.6f)", q.Window, ceiling)
	}
	return nil
}

// modRange bounds the total mass modifications can add to a peptide of at
// most length residues (length 0 means unbounded).
func (q *Query) modRange(length int) (neg, pos float64) {
	var minVar, maxVar float64
	for _, def := range q.Variable {
		minVar = math.Min(minVar, def.Mass)
		maxVar = math.Max(maxVar, def.Mass)
	}
	neg = float64(q.MaxModifications) * minVar
	pos = float64(q.MaxModifications) * maxVar

	for _, def := range q.Fixed {
		n := 1
		if !def.Type.NTerminal() && !def.Type.CTerminal() {
			if length == 0 {
				if def.Mass > 0 {
					pos = math.Inf(1)
				} else {
					neg = math.Inf(-1)
				}
				continue
			}
			n = length
		}
		if def.Mass < 0 {
			neg += float64(n) * def.Mass
		} else {
			pos += float64(n) * def.Mass
		}
	}
	return neg, pos
}

// upperSlack is the most a path's mass can still drop through negative
// modification deltas once mods variable modifications are placed.
func (q *Query) upperSlack(mods int) float64 {
	minVar := 0.0
	for _, def := range q.Variable {
		minVar = math.Min(minVar, def.Mass)
	}
	slack := float64(q.MaxModifications-mods) * -minVar

	for _, def := range q.Fixed {
		if def.Type.CTerminal() && def.Mass < 0 {
			slack -= def.Mass
		}
	}
	return slack
}
