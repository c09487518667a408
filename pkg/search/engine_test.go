package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/PepMap/pkg/core"
	"github.com/ChrisMcGann/PepMap/pkg/index"
)

// tinyTable is the three letter alphabet A=71, C=103, D=115 with X standing
// for any of them.
func tinyTable(t *testing.T) *core.MassTable {
	t.Helper()
	table, err := core.NewMassTable([]core.AminoAcid{
		{Symbol: 'A', MonoMass: 71},
		{Symbol: 'C', MonoMass: 103},
		{Symbol: 'D', MonoMass: 115},
		{Symbol: 'X', Expands: []byte("ACD")},
	})
	require.NoError(t, err)
	return table
}

func newIndex(t *testing.T, sequences ...string) *index.FMIndex {
	t.Helper()
	proteins := make([]index.Protein, len(sequences))
	for i, seq := range sequences {
		proteins[i] = index.Protein{Accession: fmt.Sprintf("P%d", i+1), Sequence: seq}
	}
	idx, err := index.New(proteins)
	require.NoError(t, err)
	return idx
}

func search(t *testing.T, e *Engine, q *Query) ([]core.Match, *Results) {
	t.Helper()
	res, err := e.Search(context.Background(), q)
	require.NoError(t, err)
	matches, err := Collect(res)
	require.NoError(t, err)
	return matches, res
}

func names(matches []core.Match) []string {
	out := make([]string, len(matches))
	for i := range matches {
		out[i] = matches[i].Name()
	}
	return out
}

func modDef(t *testing.T, name string, mass float64, typ core.ModificationType, pattern string) *core.ModDefinition {
	t.Helper()
	d := &core.ModDefinition{Name: name, Mass: mass, Type: typ}
	if pattern != "" {
		p, err := core.ParsePattern(pattern, 0)
		require.NoError(t, err)
		d.Pattern = p
	}
	return d
}

// checkReplay replays every match: mass from residues and modifications,
// window membership and the protein residues at the reported position.
func checkReplay(t *testing.T, idx *index.FMIndex, table *core.MassTable, q *Query, matches []core.Match) {
	t.Helper()
	for _, m := range matches {
		residues, err := table.SequenceMass(m.Sequence)
		require.NoError(t, err)
		assert.InDelta(t, residues+m.TotalModMass(), m.Mass, 1e-6, m.Name())

		if !q.Window.IsZero() {
			assert.True(t, q.Window.Contains(m.Mass), "%s mass %f outside %s", m.Name(), m.Mass, q.Window)
		}

		ref, err := idx.Residues(m.Accession, m.Offset, len(m.Reference))
		require.NoError(t, err)
		assert.Equal(t, ref, m.Reference, m.Name())
		if m.EditCount() == 0 && m.Combinations == 0 {
			assert.Equal(t, ref, m.Sequence, m.Name())
		}
		assert.NoError(t, m.Validate())
	}
}

func TestSequenceQueryExactWindow(t *testing.T) {
	table := tinyTable(t)
	idx := newIndex(t, "ACAD")
	e := NewEngine(idx, table, WithWorkers(2))

	q := &Query{ID: "q1", Sequence: "AC", Window: MassWindow{Low: 174, High: 174}}
	matches, res := search(t, e, q)

	require.Len(t, matches, 1)
	assert.Equal(t, "AC", matches[0].Sequence)
	assert.Equal(t, "P1", matches[0].Accession)
	assert.Equal(t, 0, matches[0].Offset)
	assert.Equal(t, 174.0, matches[0].Mass)
	assert.Equal(t, "q1", matches[0].QueryID)
	assert.False(t, res.Truncated())
	checkReplay(t, idx, table, q, matches)
}

func TestOpenQueryFollowsIndexContent(t *testing.T) {
	table := tinyTable(t)
	idx := newIndex(t, "ACAD")
	e := NewEngine(idx, table)

	q := &Query{Window: MassWindow{Low: 174, High: 174}, Length: 2}
	matches, _ := search(t, e, q)

	// CA has the same mass and occurs at offset 1 of ACAD.
	assert.Equal(t, []string{"AC@P1:0", "CA@P1:1"}, names(matches))
	checkReplay(t, idx, table, q, matches)

	idx = newIndex(t, "ACDD")
	matches, _ = search(t, NewEngine(idx, table), q)
	assert.Equal(t, []string{"AC@P1:0"}, names(matches))
}

func TestResidueModification(t *testing.T) {
	table := tinyTable(t)
	idx := newIndex(t, "ACAD")
	e := NewEngine(idx, table)

	plus16 := modDef(t, "Plus16", 16, core.ModAA, "C")
	q := &Query{
		Window:           MassWindow{Low: 119, High: 119},
		Length:           1,
		Variable:         []*core.ModDefinition{plus16},
		MaxModifications: 1,
	}
	matches, _ := search(t, e, q)

	require.Len(t, matches, 1)
	m := matches[0]
	assert.Equal(t, "C", m.Sequence)
	assert.Equal(t, 1, m.Offset)
	assert.Equal(t, 119.0, m.Mass)
	require.Len(t, m.Modifications, 1)
	assert.Equal(t, core.Modification{Mass: 16, Position: 1, Name: "Plus16", Variable: true}, m.Modifications[0])
	checkReplay(t, idx, table, q, matches)

	// Without the modification no single residue reaches the window.
	q.MaxModifications = 0
	_, err := e.Search(context.Background(), q)
	var cerr *ConfigError
	assert.True(t, errors.As(err, &cerr))
}

func TestSubstitution(t *testing.T) {
	table := tinyTable(t)
	idx := newIndex(t, "ACD")
	e := NewEngine(idx, table)

	q := &Query{Sequence: "AAD", MaxEdits: 1, EditOps: AllowSubstitution}
	matches, _ := search(t, e, q)

	require.Len(t, matches, 1)
	m := matches[0]
	assert.Equal(t, "AAD", m.Sequence)
	assert.Equal(t, "ACD", m.Reference)
	assert.Equal(t, 71.0+71+115, m.Mass)
	assert.Equal(t, 1, m.EditCount())
	assert.Equal(t, core.Edit{Op: core.EditSubstitution, Position: 2, Protein: 'C', Peptide: 'A'}, m.Edits[0])
	assert.Equal(t, "s2C>A", m.EditString())
	checkReplay(t, idx, table, q, matches)
}

func TestInsertion(t *testing.T) {
	table := tinyTable(t)
	e := NewEngine(newIndex(t, "ACCD"), table)

	q := &Query{Sequence: "ACD", MaxEdits: 1, EditOps: AllowInsertion}
	matches, _ := search(t, e, q)

	// Inserting either C spans the same protein residues; the earliest edit wins the tie.
	require.Len(t, matches, 1)
	assert.Equal(t, "ACD", matches[0].Sequence)
	assert.Equal(t, "ACCD", matches[0].Reference)
	assert.Equal(t, []core.Edit{{Op: core.EditInsertion, Position: 1, Protein: 'C'}}, matches[0].Edits)
}

func TestInsertionNeverOpensOrClosesPeptide(t *testing.T) {
	table := tinyTable(t)
	e := NewEngine(newIndex(t, "CACD"), table)

	q := &Query{Sequence: "AC", MaxEdits: 1, EditOps: AllowInsertion}
	matches, _ := search(t, e, q)

	require.Len(t, matches, 1)
	assert.Equal(t, "AC@P1:1", matches[0].Name())
	assert.Zero(t, matches[0].EditCount())
}

func TestDeletion(t *testing.T) {
	table := tinyTable(t)
	e := NewEngine(newIndex(t, "AD"), table)

	q := &Query{Sequence: "ACD", MaxEdits: 1, EditOps: AllowDeletion}
	matches, _ := search(t, e, q)

	require.Len(t, matches, 1)
	assert.Equal(t, "ACD", matches[0].Sequence)
	assert.Equal(t, "AD", matches[0].Reference)
	assert.Equal(t, 71.0+103+115, matches[0].Mass)
	assert.Equal(t, []core.Edit{{Op: core.EditDeletion, Position: 2, Peptide: 'C'}}, matches[0].Edits)
}

func TestZeroBudgets(t *testing.T) {
	table := tinyTable(t)
	idx := newIndex(t, "ACD")
	e := NewEngine(idx, table)

	tests := []struct {
		name  string
		query *Query
		want  []string
	}{
		{"no edits", &Query{Sequence: "AAD"}, nil},
		{"edit budget allows substitution", &Query{Sequence: "AAD", MaxEdits: 1, EditOps: AllEdits}, []string{"AAD@P1:0"}},
		{"no combinations", &Query{Sequence: "AXD"}, nil},
		{"combination budget", &Query{Sequence: "AXD", MaxCombinations: 1}, []string{"ACD@P1:0"}},
		{"combination budget too small", &Query{Sequence: "XXD", MaxCombinations: 1}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, _ := search(t, e, tt.query)
			assert.Equal(t, tt.want, nilIfEmpty(names(matches)))
			for _, m := range matches {
				assert.LessOrEqual(t, m.EditCount(), tt.query.MaxEdits)
				assert.LessOrEqual(t, m.Combinations, tt.query.MaxCombinations)
			}
		})
	}
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func TestCombinationInIndex(t *testing.T) {
	table := tinyTable(t)
	idx := newIndex(t, "AXD")
	e := NewEngine(idx, table)

	matches, _ := search(t, e, &Query{Sequence: "ACD", MaxCombinations: 1})
	require.Len(t, matches, 1)
	assert.Equal(t, "ACD", matches[0].Sequence)
	assert.Equal(t, "AXD", matches[0].Reference)
	assert.Equal(t, 1, matches[0].Combinations)

	matches, _ = search(t, e, &Query{Sequence: "ACD"})
	assert.Empty(t, matches)
}

func TestTerminalModifications(t *testing.T) {
	table := core.StandardMassTable()
	idx := newIndex(t, "PEPK", "KPEP", "QKAKQ")
	e := NewEngine(idx, table)
	db := core.DefaultModDatabase()

	pep, err := table.SequenceMass("PEP")
	require.NoError(t, err)

	acetyl, _ := db.Get("Acetyl")
	window := MassWindow{Low: pep + acetyl.Mass, High: pep + acetyl.Mass}
	q := &Query{Sequence: "PEP", Window: window, Variable: []*core.ModDefinition{acetyl}, MaxModifications: 1}
	matches, _ := search(t, e, q)

	// Only the occurrence at the start of a protein can carry a protein N-terminal acetyl.
	require.Len(t, matches, 1)
	assert.Equal(t, "PEP@P1:0", matches[0].Name())
	assert.Equal(t, "Acetyl@0", matches[0].ModString())
	checkReplay(t, idx, table, q, matches)

	pyro, _ := db.Get("Gln->pyro-Glu")
	qk, err := table.SequenceMass("QK")
	require.NoError(t, err)
	window = MassWindow{Low: qk + pyro.Mass, High: qk + pyro.Mass}
	q = &Query{Sequence: "QK", Window: window, Variable: []*core.ModDefinition{pyro}, MaxModifications: 1}
	matches, _ = search(t, e, q)
	require.Len(t, matches, 1)
	assert.Equal(t, "Gln->pyro-Glu@0", matches[0].ModString())

	kq, err := table.SequenceMass("KQ")
	require.NoError(t, err)
	q = &Query{Sequence: "KQ", Window: MassWindow{Low: kq + pyro.Mass, High: kq + pyro.Mass}, Variable: []*core.ModDefinition{pyro}, MaxModifications: 1}
	matches, _ = search(t, e, q)
	assert.Empty(t, matches)

	amidated, _ := db.Get("Amidated")
	pepk, err := table.SequenceMass("PEPK")
	require.NoError(t, err)
	window = MassWindow{Low: pepk + amidated.Mass, High: pepk + amidated.Mass}
	q = &Query{Sequence: "PEPK", Window: window, Variable: []*core.ModDefinition{amidated}, MaxModifications: 1}
	matches, _ = search(t, e, q)
	require.Len(t, matches, 1)
	assert.Equal(t, "Amidated@5", matches[0].ModString())
	checkReplay(t, idx, table, q, matches)
}

func TestProteinTerminalModificationsAcrossProteins(t *testing.T) {
	table := tinyTable(t)
	idx := newIndex(t, "ACD", "CAD", "DAC", "DCA")
	nterm := modDef(t, "NTerm42", 42, core.ModNTermProtein, "")
	cterm := modDef(t, "CTerm10", 10, core.ModCTermProtein, "")

	tests := []struct {
		name string
		q    *Query
		want []string
	}{
		{
			name: "open n-term",
			q:    &Query{Window: MassWindow{Low: 216, High: 216}, Length: 2, Variable: []*core.ModDefinition{nterm}, MaxModifications: 1},
			want: []string{"AC@P1:0", "CA@P2:0"},
		},
		{
			name: "open c-term",
			q:    &Query{Window: MassWindow{Low: 184, High: 184}, Length: 2, Variable: []*core.ModDefinition{cterm}, MaxModifications: 1},
			want: []string{"AC@P3:1", "CA@P4:1"},
		},
		{
			name: "sequence n-term",
			q:    &Query{Sequence: "AC", Window: MassWindow{Low: 216, High: 216}, Variable: []*core.ModDefinition{nterm}, MaxModifications: 1},
			want: []string{"AC@P1:0"},
		},
		{
			name: "sequence c-term",
			q:    &Query{Sequence: "AC", Window: MassWindow{Low: 184, High: 184}, Variable: []*core.ModDefinition{cterm}, MaxModifications: 1},
			want: []string{"AC@P3:1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, workers := range []int{1, 8} {
				matches, _ := search(t, NewEngine(idx, table, WithWorkers(workers)), tt.q)
				assert.ElementsMatch(t, tt.want, names(matches), "workers=%d", workers)
				for _, m := range matches {
					require.Len(t, m.Modifications, 1, m.Name())
				}
				checkReplay(t, idx, table, tt.q, matches)
			}
		})
	}
}

func TestContextualPatternDropsOccurrences(t *testing.T) {
	table := core.StandardMassTable()
	idx := newIndex(t, "MNKSA", "PNKAW")
	e := NewEngine(idx, table)

	hexnac, ok := core.DefaultModDatabase().Get("HexNAc")
	require.True(t, ok)
	nk, err := table.SequenceMass("NK")
	require.NoError(t, err)

	q := &Query{
		Window:           MassWindow{Low: nk + hexnac.Mass, High: nk + hexnac.Mass},
		Length:           2,
		Variable:         []*core.ModDefinition{hexnac},
		MaxModifications: 1,
	}
	matches, _ := search(t, e, q)

	require.Len(t, matches, 1)
	assert.Equal(t, "NK@P1:1", matches[0].Name())
	assert.Equal(t, "HexNAc@1", matches[0].ModString())
}

func TestFixedModification(t *testing.T) {
	table := core.StandardMassTable()
	idx := newIndex(t, "MPCKL")
	e := NewEngine(idx, table)

	cam, _ := core.DefaultModDatabase().Get("Carbamidomethyl")
	q := &Query{Sequence: "PCK", Fixed: []*core.ModDefinition{cam}}
	matches, _ := search(t, e, q)

	require.Len(t, matches, 1)
	want := []core.Modification{{Mass: cam.Mass, Position: 2, Name: "Carbamidomethyl", Variable: false}}
	assert.Equal(t, want, matches[0].Modifications)
	assert.Zero(t, matches[0].VariableModCount())
	checkReplay(t, idx, table, q, matches)
}

func TestNegativeModificationWidensPruning(t *testing.T) {
	table := tinyTable(t)
	e := NewEngine(newIndex(t, "ACAD"), table)

	minus10 := modDef(t, "Minus10", -10, core.ModCTermPeptide, "")
	// AD weighs 186, above the window, until its C-terminus is modified.
	q := &Query{
		Window:           MassWindow{Low: 176, High: 176},
		Length:           2,
		Variable:         []*core.ModDefinition{minus10},
		MaxModifications: 1,
	}
	matches, _ := search(t, e, q)
	require.Len(t, matches, 1)
	assert.Equal(t, "AD@P1:2", matches[0].Name())
	assert.Equal(t, "Minus10@3", matches[0].ModString())
}

func testProteins() []string {
	return []string{
		"MKTAYIAKQRQISFVKSHFSRQLEERLGLIEVQAPILSRVGDGTQDNLSGAEKAVQVKVKALPDAQFEVVHSLAKWKRQTLGQHDFSAGEGLYTHMKALRPDEDRLSPLHSVYVDQWDWERVMGDGERQFSTLKSTVEAIWAGIKATEAAVSEEFGLAPFLPDQIHFVHSQELLSRYPDLDAKGRERAIAKDLGAVFLVGIGGKLSDGHRHDVRAPDYDDWUAISQL",
		"MSKGEELFTGVVPILVELDGDVNGHKFSVSGEGEGDATYGKLTLKFICTTGKLPVPWPTLVTTFSYGVQCFSRYPDHMKQHDFFKSAMPEGYVQERTIFFKDDGNYKTRAEVKFEGDTLVNRIELKGIDFKEDGNILGHKLEYNYNSHNVYIMADKQKNGIKVNFKIRHNIEDGSVQLADHYQQNTPIGDGPVLLPDNHYLSTQSALSKDPNEKRDHMVLLEFVTAAGITHGMDELYK",
		"PEPTIDEKPEPTIDERMCPEPTIDEK",
	}
}

func TestWorkerCountDoesNotChangeResults(t *testing.T) {
	table := core.StandardMassTable()
	idx := newIndex(t, testProteins()...)
	ox, _ := core.DefaultModDatabase().Get("Oxidation")

	queries := []*Query{
		{ID: "open", Window: MassWindow{Low: 700, High: 760}, MaxLength: 8, Variable: []*core.ModDefinition{ox}, MaxModifications: 1},
		{ID: "edits", Sequence: "PEPTLDE", MaxEdits: 1, EditOps: AllEdits},
		{ID: "ambiguous", Sequence: "PEPTJDE", MaxCombinations: 1, Window: MassWindow{Low: 781, High: 782}},
	}

	for _, q := range queries {
		t.Run(q.ID, func(t *testing.T) {
			single, _ := search(t, NewEngine(idx, table, WithWorkers(1)), q)
			parallel, _ := search(t, NewEngine(idx, table, WithWorkers(8)), q)
			again, _ := search(t, NewEngine(idx, table, WithWorkers(8)), q)

			require.NotEmpty(t, single)
			if diff := cmp.Diff(single, parallel); diff != "" {
				t.Errorf("results differ between 1 and 8 workers (-1 +8):\n%s", diff)
			}
			if diff := cmp.Diff(parallel, again); diff != "" {
				t.Errorf("results differ between runs (-first +second):\n%s", diff)
			}
			checkReplay(t, idx, table, q, single)
		})
	}
}

func TestNodeBudgetTruncates(t *testing.T) {
	table := core.StandardMassTable()
	e := NewEngine(newIndex(t, testProteins()...), table, WithWorkers(4))

	q := &Query{Window: MassWindow{Low: 500, High: 3000}, Limits: Limits{MaxNodes: 10}}
	res, err := e.Search(context.Background(), q)
	require.NoError(t, err)
	_, err = Collect(res)
	require.NoError(t, err)
	assert.True(t, res.Truncated())
	assert.True(t, res.Stats().Truncated)

	q.Limits.MaxNodes = 0
	q.MaxLength = 3
	_, res = search(t, e, q)
	assert.False(t, res.Truncated())
}

func TestCancelledContext(t *testing.T) {
	table := core.StandardMassTable()
	e := NewEngine(newIndex(t, testProteins()...), table)

	ctx, cancel := context.WithCancel(context.Background())
	res, err := e.Search(ctx, &Query{Window: MassWindow{Low: 500, High: 3000}})
	require.NoError(t, err)
	cancel()

	assert.False(t, res.Next())
	assert.True(t, errors.Is(res.Err(), context.Canceled))
}

type brokenIndex struct {
	*index.FMIndex
}

func (b brokenIndex) Narrow(iv index.Interval, symbol byte) index.Interval {
	return index.Interval{Left: 5, Right: 2}
}

func TestIndexInconsistencyIsFatal(t *testing.T) {
	table := tinyTable(t)
	e := NewEngine(brokenIndex{newIndex(t, "ACAD")}, table)

	res, err := e.Search(context.Background(), &Query{Sequence: "AC"})
	require.NoError(t, err)
	assert.False(t, res.Next())
	assert.True(t, errors.Is(res.Err(), index.ErrIndexInconsistent))
}

func TestValidate(t *testing.T) {
	table := tinyTable(t)
	phosphoNoPattern := &core.ModDefinition{Name: "Phospho", Mass: 80, Type: core.ModAA}
	sequon := modDef(t, "HexNAc", 203, core.ModAA, "NX[ST]")

	tests := []struct {
		name  string
		query Query
		field string
	}{
		{"inverted window", Query{Sequence: "AC", Window: MassWindow{Low: 200, High: 100}}, "Window"},
		{"negative window", Query{Sequence: "AC", Window: MassWindow{Low: -1, High: 100}}, "Window"},
		{"open without window", Query{Length: 2}, "Window"},
		{"negative edits", Query{Sequence: "AC", MaxEdits: -1}, "MaxEdits"},
		{"negative combinations", Query{Sequence: "AC", MaxCombinations: -1}, "MaxCombinations"},
		{"negative modifications", Query{Sequence: "AC", MaxModifications: -1}, "MaxModifications"},
		{"negative limits", Query{Sequence: "AC", Limits: Limits{MaxNodes: -5}}, "Limits"},
		{"edits without operations", Query{Sequence: "AC", MaxEdits: 1}, "EditOps"},
		{"unknown symbol", Query{Sequence: "AZ"}, "Sequence"},
		{"length conflicts with sequence", Query{Sequence: "AC", Length: 3}, "Length"},
		{"min above max", Query{Window: MassWindow{Low: 100, High: 200}, MinLength: 4, MaxLength: 2}, "Length"},
		{"window below sequence", Query{Sequence: "AC", Window: MassWindow{Low: 10, High: 20}}, "Window"},
		{"window above sequence", Query{Sequence: "AC", Window: MassWindow{Low: 500, High: 600}}, "Window"},
		{"window unreachable by length", Query{Length: 1, Window: MassWindow{Low: 500, High: 600}}, "Window"},
		{"missing pattern", Query{Sequence: "AC", Variable: []*core.ModDefinition{phosphoNoPattern}}, "Variable"},
		{"contextual fixed", Query{Sequence: "AC", Fixed: []*core.ModDefinition{sequon}}, "Fixed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate(table)
			var cerr *ConfigError
			require.True(t, errors.As(err, &cerr), "got %v", err)
			assert.Equal(t, tt.field, cerr.Field)
		})
	}

	valid := []Query{
		{Sequence: "AC"},
		{Sequence: "AC", Window: MassWindow{Low: 174, High: 174}},
		{Sequence: "AXD", Window: MassWindow{Low: 250, High: 300}, MaxCombinations: 1},
		{Window: MassWindow{Low: 100, High: 1000}},
		{Window: MassWindow{Low: 100, High: 200}, MinLength: 1, MaxLength: 2},
	}
	for _, q := range valid {
		assert.NoError(t, q.Validate(table), q.Sequence)
	}
}

func TestSearchReturnsConfigError(t *testing.T) {
	e := NewEngine(newIndex(t, "ACAD"), tinyTable(t))
	_, err := e.Search(context.Background(), &Query{Length: 2})
	var cerr *ConfigError
	assert.True(t, errors.As(err, &cerr))
}

func TestSearchBatch(t *testing.T) {
	table := tinyTable(t)
	e := NewEngine(newIndex(t, "ACAD", "DDCA"), table, WithWorkers(3))

	queries := []*Query{
		{ID: "a", Sequence: "CA"},
		{ID: "b", Sequence: "AD"},
		{ID: "c", Sequence: "DC"},
		{ID: "d", Sequence: "CC"},
	}

	var order []string
	found := map[string][]string{}
	err := e.SearchBatch(context.Background(), queries, func(q *Query, res *Results) error {
		order = append(order, q.ID)
		matches, err := Collect(res)
		if err != nil {
			return err
		}
		found[q.ID] = names(matches)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
	assert.Equal(t, []string{"CA@P1:1", "CA@P2:2"}, found["a"])
	assert.Equal(t, []string{"AD@P1:2"}, found["b"])
	assert.Equal(t, []string{"DC@P2:1"}, found["c"])
	assert.Empty(t, found["d"])

	bad := append(queries, &Query{ID: "bad", Sequence: "AC", MaxEdits: -1})
	err = e.SearchBatch(context.Background(), bad, func(*Query, *Results) error { return nil })
	var cerr *ConfigError
	assert.True(t, errors.As(err, &cerr))
}

func TestRankingOrder(t *testing.T) {
	table := tinyTable(t)
	idx := newIndex(t, "ACD", "AAD")

	q := &Query{Sequence: "AAD", MaxEdits: 1, EditOps: AllowSubstitution, Window: MassWindow{Low: 250, High: 270}}
	matches, _ := search(t, NewEngine(idx, table), q)
	require.Len(t, matches, 2)
	assert.Equal(t, "AAD@P2:0", matches[0].Name())
	assert.Zero(t, matches[0].EditCount())
	assert.Equal(t, "AAD@P1:0", matches[1].Name())

	for _, m := range matches {
		assert.InDelta(t, m.Mass-260, m.Deviation, 1e-9)
		assert.False(t, math.IsNaN(m.Deviation))
	}
}
