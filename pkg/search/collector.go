package search

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ChrisMcGann/PepMap/pkg/core"
	"github.com/ChrisMcGann/PepMap/pkg/index"
	"github.com/ChrisMcGann/PepMap/pkg/sites"
)

// Criterion is one key of a Ranking. Lower values rank first.
type Criterion uint8

const (
	ByEdits Criterion = iota
	ByDeviation
	ByModifications
	ByCombinations
)

var criterionNames = []string{"edits", "deviation", "modifications", "combinations"}

func (c Criterion) String() string {
	if int(c) < len(criterionNames) {
		return criterionNames[c]
	}
	return fmt.Sprintf("Criterion(%d)", int(c))
}

// Ranking orders duplicate matches and the final result list. Ties left by
// every criterion are broken on sequence, edits and modifications so that the
// outcome never depends on the order matches were found in.
type Ranking []Criterion

// DefaultRanking prefers fewer edits, then the smallest mass deviation, then
// fewer modifications.
var DefaultRanking = Ranking{ByEdits, ByDeviation, ByModifications}

// ParseRanking parses a comma separated list such as "deviation,edits".
func ParseRanking(s string) (Ranking, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultRanking, nil
	}
	var r Ranking
	for _, f := range strings.Split(s, ",") {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "mods" {
			f = "modifications"
		}
		found := false
		for i, name := range criterionNames {
			if f == name {
				r = append(r, Criterion(i))
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown ranking criterion '%s'", f)
		}
	}
	return r, nil
}

func (r Ranking) String() string {
	parts := make([]string, len(r))
	for i, c := range r {
		parts[i] = c.String()
	}
	return strings.Join(parts, ",")
}

// rankKey is what a Ranking compares.
type rankKey struct {
	edits     int
	deviation float64 // absolute
	mods      int
	combos    int
	sequence  string
	editStr   string
	modStr    string
}

func (r Ranking) compare(a, b *rankKey) int {
	for _, c := range r {
		switch c {
		case ByEdits:
			if a.edits != b.edits {
				return cmpInt(a.edits, b.edits)
			}
		case ByDeviation:
			if math.Abs(a.deviation-b.deviation) > massEpsilon {
				if a.deviation < b.deviation {
					return -1
				}
				return 1
			}
		case ByModifications:
			if a.mods != b.mods {
				return cmpInt(a.mods, b.mods)
			}
		case ByCombinations:
			if a.combos != b.combos {
				return cmpInt(a.combos, b.combos)
			}
		}
	}
	if c := strings.Compare(a.sequence, b.sequence); c != 0 {
		return c
	}
	if c := strings.Compare(a.editStr, b.editStr); c != 0 {
		return c
	}
	if c := strings.Compare(a.modStr, b.modStr); c != 0 {
		return c
	}
	return cmpInt(a.combos, b.combos)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

type entry struct {
	node *Node
	key  rankKey
}

// Collector deduplicates accepted nodes by fingerprint, keeping the best
// ranked node of each class. Merging is commutative.
type Collector struct {
	ranking Ranking
	nominal float64
	classes map[uint64][]*entry
	n       int
}

// NewCollector creates an empty collector for q.
func NewCollector(q *Query, ranking Ranking) *Collector {
	if len(ranking) == 0 {
		ranking = DefaultRanking
	}
	return &Collector{
		ranking: ranking,
		nominal: q.nominal(),
		classes: make(map[uint64][]*entry),
	}
}

func (c *Collector) key(n *Node) rankKey {
	k := rankKey{
		edits:    n.Edits,
		mods:     n.ModCount,
		combos:   n.Combinations,
		sequence: n.Sequence(),
		modStr:   modKey(n.Modifications()),
	}
	if c.nominal != 0 {
		k.deviation = math.Abs(n.Mass - c.nominal)
	}
	if edits := n.EditList(); len(edits) > 0 {
		parts := make([]string, len(edits))
		for i, e := range edits {
			parts[i] = e.String()
		}
		k.editStr = strings.Join(parts, ";")
	}
	return k
}

// Add records an accepted node.
func (c *Collector) Add(n *Node) {
	if n.Fingerprint == 0 {
		n.Fingerprint = n.fingerprint()
	}
	c.add(&entry{node: n, key: c.key(n)})
}

func (c *Collector) add(e *entry) {
	bucket := c.classes[e.node.Fingerprint]
	for i, old := range bucket {
		if sameClass(old.node, e.node) {
			if c.ranking.compare(&e.key, &old.key) < 0 {
				bucket[i] = e
			}
			return
		}
	}
	c.classes[e.node.Fingerprint] = append(bucket, e)
	c.n++
}

// Merge adds every canonical node of other.
func (c *Collector) Merge(other *Collector) {
	for _, bucket := range other.classes {
		for _, e := range bucket {
			c.add(e)
		}
	}
}

// Len is the number of distinct classes collected.
func (c *Collector) Len() int { return c.n }

func (c *Collector) entries() []*entry {
	out := make([]*entry, 0, c.n)
	for _, bucket := range c.classes {
		out = append(out, bucket...)
	}
	sort.Slice(out, func(i, j int) bool {
		if d := c.ranking.compare(&out[i].key, &out[j].key); d != 0 {
			return d < 0
		}
		return out[i].node.Interval.Left < out[j].node.Interval.Left
	})
	return out
}

// Nodes returns the canonical node of every class in rank order.
func (c *Collector) Nodes() []*Node {
	entries := c.entries()
	out := make([]*Node, len(entries))
	for i, e := range entries {
		out[i] = e.node
	}
	return out
}

// Matches resolves every canonical node to its protein occurrences. A
// modification whose rule needs flanking residues or a protein terminus is
// checked per occurrence; occurrences where it does not hold are dropped.
func (c *Collector) Matches(acc index.Accessor, en *sites.Enumerator, queryID string) ([]core.Match, error) {
	type ranked struct {
		key   *rankKey
		match core.Match
	}
	var all []ranked

	for _, e := range c.entries() {
		n := e.node
		peptide := e.key.sequence
		reference := n.CorpusSequence()
		edits := n.EditList()

		placed := n.Modifications()
		mods := make([]core.Modification, len(placed))
		var contextual []PendingMod
		for i, p := range placed {
			mods[i] = core.Modification{Mass: p.Def.Mass, Position: p.Site, Name: p.Def.Name, Variable: p.Variable}
			if sites.NeedsContext(p.Def) {
				contextual = append(contextual, p)
			}
		}

		deviation := 0.0
		if c.nominal != 0 {
			deviation = n.Mass - c.nominal
		}

		count := acc.OccurrenceCount(n.Interval)
		for row := n.Interval.Left; row < n.Interval.Left+count; row++ {
			occ, err := acc.Resolve(row, n.Span)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve %s: %w", peptide, err)
			}

			admissible := true
			for _, p := range contextual {
				ok, err := en.AdmissibleSpan(p.Def, peptide, n.Span, p.Site, occ)
				if err != nil {
					return nil, fmt.Errorf("failed to check %s on %s: %w", p.Def.Name, peptide, err)
				}
				if !ok {
					admissible = false
					break
				}
			}
			if !admissible {
				continue
			}

			m := core.Match{
				QueryID:       queryID,
				Accession:     occ.Accession,
				Offset:        occ.Offset,
				Sequence:      peptide,
				Reference:     reference,
				Mass:          n.Mass,
				Deviation:     deviation,
				Modifications: mods,
				Edits:         edits,
				Combinations:  n.Combinations,
			}
			if err := m.Validate(); err != nil {
				return nil, fmt.Errorf("invalid match %s: %w", m.Name(), err)
			}
			all = append(all, ranked{key: &e.key, match: m})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if d := c.ranking.compare(all[i].key, all[j].key); d != 0 {
			return d < 0
		}
		a, b := &all[i].match, &all[j].match
		if a.Accession != b.Accession {
			return a.Accession < b.Accession
		}
		return a.Offset < b.Offset
	})

	out := make([]core.Match, len(all))
	for i, r := range all {
		out[i] = r.match
	}
	return out, nil
}
