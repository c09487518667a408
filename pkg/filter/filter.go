// Package filter provides report filters applied to the ranked matches of a query
package filter

import (
	"fmt"
	"math"
	"strings"

	"github.com/ChrisMcGann/PepMap/pkg/core"
)

// Config holds filtering configuration
type Config struct {
	TopN         int      // Keep only the N best ranked matches (0 = no limit)
	MaxDeviation float64  // Keep only matches within this absolute mass deviation (0 = no cutoff)
	MaxEdits     int      // Keep only matches with at most this many edits (0 = no limit)
	Unedited     bool     // Keep only matches without edits
	MaxMods      int      // Keep only matches with at most this many variable modifications (0 = no limit)
	Accessions   []string // Keep only matches on accessions with one of these prefixes (nil = all)
}

// Validate checks the configured limits.
func (c *Config) Validate() error {
	switch {
	case c.TopN < 0:
		return fmt.Errorf("top-n must be non-negative, got %d", c.TopN)
	case c.MaxDeviation < 0 || math.IsNaN(c.MaxDeviation):
		return fmt.Errorf("max deviation must be non-negative, got %f", c.MaxDeviation)
	case c.MaxEdits < 0:
		return fmt.Errorf("max edits must be non-negative, got %d", c.MaxEdits)
	case c.MaxMods < 0:
		return fmt.Errorf("max modifications must be non-negative, got %d", c.MaxMods)
	}
	return nil
}

// Active reports whether any filter is configured.
func (c *Config) Active() bool {
	return c.TopN > 0 || c.MaxDeviation > 0 || c.MaxEdits > 0 || c.Unedited || c.MaxMods > 0 || len(c.Accessions) > 0
}

// Apply applies all configured filters to the matches of one query, which
// must be in rank order. The order is preserved; the input slice is not
// modified.
func (c *Config) Apply(matches []core.Match) []core.Match {
	filtered := make([]core.Match, 0, len(matches))
	for i := range matches {
		if c.keep(&matches[i]) {
			filtered = append(filtered, matches[i])
		}
	}

	// Top-N last so that it counts surviving matches
	if c.TopN > 0 && len(filtered) > c.TopN {
		filtered = filtered[:c.TopN]
	}

	return filtered
}

func (c *Config) keep(m *core.Match) bool {
	if len(c.Accessions) > 0 && !matchesAccession(m.Accession, c.Accessions) {
		return false
	}
	if c.MaxDeviation > 0 && math.Abs(m.Deviation) > c.MaxDeviation {
		return false
	}
	if c.Unedited && m.EditCount() > 0 {
		return false
	}
	if c.MaxEdits > 0 && m.EditCount() > c.MaxEdits {
		return false
	}
	if c.MaxMods > 0 && m.VariableModCount() > c.MaxMods {
		return false
	}
	return true
}

// matchesAccession checks if an accession starts with any of the allowed prefixes
func matchesAccession(accession string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(accession, prefix) {
			return true
		}
	}
	return false
}

// GroupByQuery splits matches into runs sharing a QueryID, keeping the order
// of first appearance.
func GroupByQuery(matches []core.Match) [][]core.Match {
	var groups [][]core.Match
	index := make(map[string]int)
	for _, m := range matches {
		i, ok := index[m.QueryID]
		if !ok {
			i = len(groups)
			index[m.QueryID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], m)
	}
	return groups
}

// ApplyAll filters every query's matches independently.
func (c *Config) ApplyAll(matches []core.Match) []core.Match {
	var out []core.Match
	for _, group := range GroupByQuery(matches) {
		out = append(out, c.Apply(group)...)
	}
	return out
}
