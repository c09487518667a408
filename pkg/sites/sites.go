// Package sites enumerates the backbone positions at which a modification may
// be placed on a peptide.
//
// Sites are numbered 0 for the N-terminus, 1..len(peptide) for residues and
// len(peptide)+1 for the C-terminus.
package sites

import (
	"sort"

	"github.com/ChrisMcGann/PepMap/pkg/core"
	"github.com/ChrisMcGann/PepMap/pkg/index"
)

// Enumerator finds modification sites, reading flanking residues and protein
// boundaries from Provider when a rule needs them. A nil Provider restricts
// patterns to the peptide itself and rejects every protein-terminus rule.
type Enumerator struct {
	Provider index.SequenceProvider
}

// New creates an Enumerator backed by provider.
func New(provider index.SequenceProvider) *Enumerator {
	return &Enumerator{Provider: provider}
}

// context is a peptide with the flanking protein residues a pattern may need.
type context struct {
	residues  string // prefix + peptide + suffix
	prefix    int
	proteinN  bool // peptide starts the protein
	proteinC  bool // peptide ends the protein
	haveOccur bool
}

func (e *Enumerator) context(def *core.ModDefinition, peptide string, occ index.Occurrence, span int) context {
	ctx := context{residues: peptide}
	if e.Provider == nil || occ.Accession == "" {
		return ctx
	}
	protein, ok := e.Provider.Sequence(occ.Accession)
	if !ok {
		return ctx
	}
	ctx.haveOccur = true
	end := occ.Offset + span
	ctx.proteinN = occ.Offset == 0
	ctx.proteinC = end == len(protein)

	before := -def.Pattern.MinIndex()
	after := def.Pattern.MaxIndex()
	start := occ.Offset - before
	if start < 0 {
		start = 0
	}
	stop := end + after
	if stop > len(protein) {
		stop = len(protein)
	}
	if end > len(protein) || occ.Offset > len(protein) || stop < end {
		return ctx
	}
	ctx.prefix = occ.Offset - start
	ctx.residues = protein[start:occ.Offset] + peptide + protein[end:stop]
	return ctx
}

// Sites returns the sorted admissible sites of def on peptide at one occurrence.
func (e *Enumerator) Sites(def *core.ModDefinition, peptide string, occ index.Occurrence) ([]int, error) {
	return e.sites(def, peptide, occ, len(peptide))
}

func (e *Enumerator) sites(def *core.ModDefinition, peptide string, occ index.Occurrence, span int) ([]int, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if peptide == "" {
		return nil, nil
	}

	ctx := e.context(def, peptide, occ, span)
	last := len(peptide) - 1
	cterm := len(peptide) + 1

	switch def.Type {
	case core.ModAA:
		var out []int
		for i := 0; i < len(peptide); i++ {
			if def.Pattern.Matches(ctx.residues, ctx.prefix+i) {
				out = append(out, i+1)
			}
		}
		return out, nil

	case core.ModNTermPeptide:
		return []int{0}, nil

	case core.ModNTermPeptideAA:
		if def.Pattern.Matches(ctx.residues, ctx.prefix) {
			return []int{0}, nil
		}

	case core.ModNTermProtein:
		if ctx.haveOccur && ctx.proteinN {
			return []int{0}, nil
		}

	case core.ModNTermProteinAA:
		if ctx.haveOccur && ctx.proteinN && def.Pattern.Matches(ctx.residues, ctx.prefix) {
			return []int{0}, nil
		}

	case core.ModCTermPeptide:
		return []int{cterm}, nil

	case core.ModCTermPeptideAA:
		if def.Pattern.Matches(ctx.residues, ctx.prefix+last) {
			return []int{cterm}, nil
		}

	case core.ModCTermProtein:
		if ctx.haveOccur && ctx.proteinC {
			return []int{cterm}, nil
		}

	case core.ModCTermProteinAA:
		if ctx.haveOccur && ctx.proteinC && def.Pattern.Matches(ctx.residues, ctx.prefix+last) {
			return []int{cterm}, nil
		}
	}

	return nil, nil
}

// SitesAny returns the sorted union of sites over every occurrence.
func (e *Enumerator) SitesAny(def *core.ModDefinition, peptide string, occs []index.Occurrence) ([]int, error) {
	seen := make(map[int]struct{})
	for _, occ := range occs {
		sites, err := e.Sites(def, peptide, occ)
		if err != nil {
			return nil, err
		}
		for _, s := range sites {
			seen[s] = struct{}{}
		}
	}

	out := make([]int, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Ints(out)
	return out, nil
}

// Admissible reports whether def may sit at site on peptide at occ.
func (e *Enumerator) Admissible(def *core.ModDefinition, peptide string, site int, occ index.Occurrence) (bool, error) {
	return e.AdmissibleSpan(def, peptide, len(peptide), site, occ)
}

// AdmissibleSpan is Admissible for a peptide aligned to span protein residues,
// which differs from len(peptide) once insertions or deletions are involved.
func (e *Enumerator) AdmissibleSpan(def *core.ModDefinition, peptide string, span, site int, occ index.Occurrence) (bool, error) {
	sites, err := e.sites(def, peptide, occ, span)
	if err != nil {
		return false, err
	}
	i := sort.SearchInts(sites, site)
	return i < len(sites) && sites[i] == site, nil
}

// Candidate is the local test used while walking the index: it only looks at
// the residue carrying the modification (the first residue for N-terminal
// rules, the last one for C-terminal rules). Flanking residues and protein
// boundaries are confirmed with Admissible once occurrences are known.
func Candidate(def *core.ModDefinition, residue byte) bool {
	if !def.Type.NeedsPattern() {
		return true
	}
	return def.Pattern.TargetAllows(residue)
}

// NeedsContext reports whether Candidate alone cannot decide admissibility.
func NeedsContext(def *core.ModDefinition) bool {
	return def.Type.ProteinTerminal() || def.Pattern.Len() > 1
}
