package index

import (
	"bytes"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func walk(idx *FMIndex, peptide string) Interval {
	iv := idx.Root()
	for i := 0; i < len(peptide) && !iv.Empty(); i++ {
		iv = idx.Narrow(iv, peptide[i])
	}
	return iv
}

func resolveAll(t *testing.T, idx *FMIndex, iv Interval, span int) []Occurrence {
	t.Helper()
	var out []Occurrence
	for row := iv.Left; row < iv.Right; row++ {
		occ, err := idx.Resolve(row, span)
		require.NoError(t, err)
		out = append(out, occ)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Accession != out[j].Accession {
			return out[i].Accession < out[j].Accession
		}
		return out[i].Offset < out[j].Offset
	})
	return out
}

func bruteForce(proteins []Protein, peptide string) []Occurrence {
	var out []Occurrence
	for _, p := range proteins {
		for i := 0; i+len(peptide) <= len(p.Sequence); i++ {
			if p.Sequence[i:i+len(peptide)] == peptide {
				out = append(out, Occurrence{Accession: p.Accession, Offset: i})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Accession != out[j].Accession {
			return out[i].Accession < out[j].Accession
		}
		return out[i].Offset < out[j].Offset
	})
	return out
}

func TestNarrowSingleProtein(t *testing.T) {
	idx, err := New([]Protein{{Accession: "P1", Sequence: "ACAD"}})
	require.NoError(t, err)

	iv := walk(idx, "AC")
	require.Equal(t, 1, idx.OccurrenceCount(iv))
	occ, err := idx.Resolve(iv.Left, 2)
	require.NoError(t, err)
	assert.Equal(t, Occurrence{Accession: "P1", Offset: 0}, occ)

	assert.True(t, walk(idx, "CA").Len() == 1)
	assert.True(t, walk(idx, "CC").Empty())
	assert.Equal(t, 2, walk(idx, "A").Len())
}

func TestNarrowMatchesBruteForce(t *testing.T) {
	proteins := []Protein{
		{Accession: "sp|P1", Sequence: "MKTAYIAKQRQISFVKSHFSRQ"},
		{Accession: "sp|P2", Sequence: "AKQRAKQRAKQR"},
		{Accession: "sp|P3", Sequence: "PEPTIDEKPEPTIDER"},
		{Accession: "sp|P4", Sequence: "K"},
	}
	idx, err := New(proteins)
	require.NoError(t, err)

	peptides := []string{"AKQR", "K", "PEPTIDE", "QR", "R", "KQRA", "SFVK", "XYZ", "RP", "RA"}
	for _, pep := range peptides {
		t.Run(pep, func(t *testing.T) {
			iv := walk(idx, pep)
			want := bruteForce(proteins, pep)
			if len(want) == 0 {
				assert.True(t, iv.Empty())
				return
			}
			assert.Equal(t, want, resolveAll(t, idx, iv, len(pep)))
		})
	}
}

func TestNoMatchAcrossProteins(t *testing.T) {
	idx, err := New([]Protein{
		{Accession: "A", Sequence: "AC"},
		{Accession: "B", Sequence: "DA"},
	})
	require.NoError(t, err)

	assert.True(t, walk(idx, "CD").Empty())
	assert.True(t, idx.Narrow(idx.Root(), Separator).Empty())
	assert.True(t, idx.Narrow(idx.Root(), Sentinel).Empty())
}

func TestResolveErrors(t *testing.T) {
	idx, err := New([]Protein{{Accession: "P1", Sequence: "ACAD"}})
	require.NoError(t, err)

	_, err = idx.Resolve(-1, 1)
	assert.True(t, errors.Is(err, ErrIndexInconsistent))
	_, err = idx.Resolve(idx.Len(), 1)
	assert.True(t, errors.Is(err, ErrIndexInconsistent))
	_, err = idx.Resolve(0, 0)
	assert.True(t, errors.Is(err, ErrIndexInconsistent))
}

func TestNewRejectsBadInput(t *testing.T) {
	tests := []struct {
		name     string
		proteins []Protein
	}{
		{"missing accession", []Protein{{Sequence: "AC"}}},
		{"duplicate accession", []Protein{{Accession: "P", Sequence: "AC"}, {Accession: "P", Sequence: "D"}}},
		{"separator in sequence", []Protein{{Accession: "P", Sequence: "A/C"}}},
		{"sentinel in sequence", []Protein{{Accession: "P", Sequence: "A$C"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.proteins)
			assert.Error(t, err)
		})
	}
}

func TestSequenceAndResidues(t *testing.T) {
	idx, err := New([]Protein{
		{Accession: "A", Sequence: "mkta"},
		{Accession: "B", Sequence: "PEPTIDE"},
	})
	require.NoError(t, err)

	seq, ok := idx.Sequence("A")
	require.True(t, ok)
	assert.Equal(t, "MKTA", seq)

	res, err := idx.Residues("B", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, "PTI", res)

	_, err = idx.Residues("B", 5, 3)
	assert.Error(t, err)
	_, ok = idx.Sequence("C")
	assert.False(t, ok)

	assert.Equal(t, []string{"A", "B"}, idx.Accessions())
	assert.Equal(t, 2, idx.ProteinCount())
	assert.Equal(t, "ADEIKMPT", string(idx.Symbols()))
}

func TestWriteLoadRoundTrip(t *testing.T) {
	var residues strings.Builder
	for i := 0; i < 300; i++ {
		residues.WriteByte("ACDEFGHIKLMNPQRSTVWY"[(i*7)%20])
	}
	proteins := []Protein{
		{Accession: "long", Sequence: residues.String()},
		{Accession: "short", Sequence: "PEPTIDE"},
	}
	idx, err := New(proteins)
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := idx.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	loaded, err := Load(&buf)
	require.NoError(t, err)
	assert.Equal(t, idx.Len(), loaded.Len())

	for _, pep := range []string{"PEP", "ACD", "HKT", "W", "DEF"} {
		want := resolveAll(t, idx, walk(idx, pep), len(pep))
		got := resolveAll(t, loaded, walk(loaded, pep), len(pep))
		assert.Equal(t, want, got, pep)
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	_, err := Load(strings.NewReader("NOTANINDEX"))
	assert.True(t, errors.Is(err, ErrIndexInconsistent))
}
