// Package fasta provides a streaming reader for protein FASTA files
package fasta

import (
	"fmt"
	"io"
	"strings"

	"github.com/TuftsBCB/io/fasta"
	"github.com/TuftsBCB/seq"

	"github.com/ChrisMcGann/PepMap/pkg/index"
)

// Record is one FASTA entry.
type Record struct {
	Accession   string // first word of the header
	Description string // rest of the header
	Sequence    string // upper case residues
}

// Protein converts the record for index construction.
func (r *Record) Protein() index.Protein {
	return index.Protein{Accession: r.Accession, Sequence: r.Sequence}
}

// Reader provides streaming access to FASTA records
type Reader struct {
	in      *fasta.Reader
	count   int
	current *Record
	err     error
}

// NewReader creates a new FASTA reader
func NewReader(r io.Reader) *Reader {
	return &Reader{in: fasta.NewReader(r)}
}

// Next advances to the next record. Returns false when no more records or error.
func (r *Reader) Next() bool {
	r.current = nil
	if r.err != nil {
		return false
	}

	s, err := r.in.Read()
	if err != nil {
		if err != io.EOF {
			r.err = err
		}
		return false
	}
	r.count++

	rec, err := newRecord(s)
	if err != nil {
		r.err = fmt.Errorf("record %d: %w", r.count, err)
		return false
	}
	r.current = rec
	return true
}

// Record returns the current record
func (r *Reader) Record() *Record {
	return r.current
}

// Err returns any error encountered during reading
func (r *Reader) Err() error {
	return r.err
}

// newRecord splits the header and keeps only letter residues. Stop codons are
// dropped by the FASTA reader and gap residues are rejected.
func newRecord(s seq.Sequence) (*Record, error) {
	accession, description := s.Name, ""
	if i := strings.IndexAny(s.Name, " \t"); i >= 0 {
		accession, description = s.Name[:i], s.Name[i+1:]
	}
	if accession == "" {
		return nil, fmt.Errorf("empty FASTA header")
	}

	var b strings.Builder
	b.Grow(len(s.Residues))
	for _, res := range s.Residues {
		if res < 'A' || res > 'Z' {
			return nil, fmt.Errorf("%s: invalid residue '%c'", accession, res)
		}
		b.WriteByte(byte(res))
	}

	return &Record{
		Accession:   accession,
		Description: strings.TrimSpace(description),
		Sequence:    b.String(),
	}, nil
}

// ReadAll reads every protein of r. Proteins with an empty sequence are
// skipped; duplicate accessions are an error.
func ReadAll(r io.Reader) ([]index.Protein, error) {
	reader := NewReader(r)
	seen := make(map[string]bool)

	var proteins []index.Protein
	for reader.Next() {
		rec := reader.Record()
		if rec.Sequence == "" {
			continue
		}
		if seen[rec.Accession] {
			return nil, fmt.Errorf("duplicate accession '%s'", rec.Accession)
		}
		seen[rec.Accession] = true
		proteins = append(proteins, rec.Protein())
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("failed to read FASTA: %w", err)
	}
	return proteins, nil
}
