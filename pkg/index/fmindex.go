package index

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

const (
	// Separator joins proteins in the indexed text. It is never a query symbol,
	// so no match can span two proteins.
	Separator = '/'
	// Sentinel terminates the indexed text.
	Sentinel = '$'

	checkpointRate = 64
)

// Protein is one database entry.
type Protein struct {
	Accession string
	Sequence  string
}

// FMIndex is an FM-index built over the reversed concatenation of all
// proteins. Because the text is reversed, each backward extension appends a
// residue to the C-terminal end of the matched peptide, so walks read
// peptides N- to C-terminal.
//
// An FMIndex is immutable once built and safe for concurrent use.
type FMIndex struct {
	text       []byte // forward concatenation, proteins joined by Separator
	accessions []string
	starts     []int // start of each protein in text
	lookup     map[string]int

	sa  []int32 // suffix array of the reversed text plus sentinel
	bwt []byte

	c           [256]int
	code        [256]int16 // symbol -> checkpoint column, -1 when absent
	sigma       int
	checkpoints []int32 // (len(bwt)/checkpointRate+1) rows of sigma counts
}

// New builds an index over proteins. Residues are upper-cased; sequences must
// not contain the separator or sentinel characters.
func New(proteins []Protein) (*FMIndex, error) {
	idx := &FMIndex{lookup: make(map[string]int, len(proteins))}

	var text bytes.Buffer
	for i, p := range proteins {
		if p.Accession == "" {
			return nil, fmt.Errorf("protein %d has no accession", i+1)
		}
		if _, dup := idx.lookup[p.Accession]; dup {
			return nil, fmt.Errorf("duplicate protein accession '%s'", p.Accession)
		}
		seq := strings.ToUpper(p.Sequence)
		if strings.IndexByte(seq, Separator) >= 0 || strings.IndexByte(seq, Sentinel) >= 0 {
			return nil, fmt.Errorf("protein '%s' contains a reserved character", p.Accession)
		}
		if i > 0 {
			text.WriteByte(Separator)
		}
		idx.lookup[p.Accession] = len(idx.accessions)
		idx.accessions = append(idx.accessions, p.Accession)
		idx.starts = append(idx.starts, text.Len())
		text.WriteString(seq)
	}
	idx.text = text.Bytes()

	idx.buildSuffixArray()
	idx.buildTables()
	return idx, nil
}

// reversed returns the reversed text followed by the sentinel.
func (idx *FMIndex) reversed() []byte {
	n := len(idx.text)
	r := make([]byte, n+1)
	for i := 0; i < n; i++ {
		r[i] = idx.text[n-1-i]
	}
	r[n] = Sentinel
	return r
}

// buildSuffixArray sorts the suffixes of the reversed text directly. It is
// quadratic on highly repetitive input, which is acceptable for databases
// built once at startup.
func (idx *FMIndex) buildSuffixArray() {
	r := idx.reversed()
	sa := make([]int32, len(r))
	for i := range sa {
		sa[i] = int32(i)
	}
	sort.Slice(sa, func(i, j int) bool {
		return bytes.Compare(r[sa[i]:], r[sa[j]:]) < 0
	})

	bwt := make([]byte, len(r))
	for i, p := range sa {
		if p == 0 {
			bwt[i] = r[len(r)-1]
		} else {
			bwt[i] = r[p-1]
		}
	}
	idx.sa, idx.bwt = sa, bwt
}

// buildTables derives the C array and occurrence checkpoints from the BWT.
func (idx *FMIndex) buildTables() {
	var counts [256]int
	for _, b := range idx.bwt {
		counts[b]++
	}

	for i := range idx.code {
		idx.code[i] = -1
	}
	idx.sigma = 0
	total := 0
	for s := 0; s < 256; s++ {
		idx.c[s] = total
		total += counts[s]
		if counts[s] > 0 {
			idx.code[s] = int16(idx.sigma)
			idx.sigma++
		}
	}

	blocks := len(idx.bwt)/checkpointRate + 1
	idx.checkpoints = make([]int32, blocks*idx.sigma)
	running := make([]int32, idx.sigma)
	for i, b := range idx.bwt {
		if i%checkpointRate == 0 {
			copy(idx.checkpoints[(i/checkpointRate)*idx.sigma:], running)
		}
		running[idx.code[b]]++
	}
	if len(idx.bwt)%checkpointRate == 0 {
		copy(idx.checkpoints[(len(idx.bwt)/checkpointRate)*idx.sigma:], running)
	}
}

// occ counts symbol in bwt[0:i].
func (idx *FMIndex) occ(code int16, symbol byte, i int) int {
	block := i / checkpointRate
	n := int(idx.checkpoints[block*idx.sigma+int(code)])
	for j := block * checkpointRate; j < i; j++ {
		if idx.bwt[j] == symbol {
			n++
		}
	}
	return n
}

// Root spans every row of the index.
func (idx *FMIndex) Root() Interval {
	return Interval{Left: 0, Right: len(idx.bwt)}
}

// Narrow implements Accessor.
func (idx *FMIndex) Narrow(iv Interval, symbol byte) Interval {
	code := idx.code[symbol]
	if code < 0 || symbol == Separator || symbol == Sentinel {
		return Interval{}
	}
	base := idx.c[symbol]
	return Interval{
		Left:  base + idx.occ(code, symbol, iv.Left),
		Right: base + idx.occ(code, symbol, iv.Right),
	}
}

// OccurrenceCount implements Accessor. Every row is a distinct occurrence.
func (idx *FMIndex) OccurrenceCount(iv Interval) int {
	return iv.Len()
}

// Resolve implements Accessor.
func (idx *FMIndex) Resolve(row, span int) (Occurrence, error) {
	if row < 0 || row >= len(idx.sa) {
		return Occurrence{}, fmt.Errorf("%w: row %d outside [0,%d)", ErrIndexInconsistent, row, len(idx.sa))
	}
	if span <= 0 {
		return Occurrence{}, fmt.Errorf("%w: cannot resolve span %d", ErrIndexInconsistent, span)
	}

	n := len(idx.text)
	start := n - int(idx.sa[row]) - span
	if start < 0 || start+span > n {
		return Occurrence{}, fmt.Errorf("%w: row %d with span %d leaves the text", ErrIndexInconsistent, row, span)
	}

	p := sort.Search(len(idx.starts), func(i int) bool { return idx.starts[i] > start }) - 1
	if p < 0 {
		return Occurrence{}, fmt.Errorf("%w: row %d precedes the first protein", ErrIndexInconsistent, row)
	}
	offset := start - idx.starts[p]
	if offset+span > idx.proteinLen(p) {
		return Occurrence{}, fmt.Errorf("%w: row %d crosses the end of '%s'", ErrIndexInconsistent, row, idx.accessions[p])
	}

	return Occurrence{Accession: idx.accessions[p], Offset: offset}, nil
}

func (idx *FMIndex) proteinLen(p int) int {
	if p+1 < len(idx.starts) {
		return idx.starts[p+1] - 1 - idx.starts[p]
	}
	return len(idx.text) - idx.starts[p]
}

// Sequence implements SequenceProvider.
func (idx *FMIndex) Sequence(accession string) (string, bool) {
	p, ok := idx.lookup[accession]
	if !ok {
		return "", false
	}
	start := idx.starts[p]
	return string(idx.text[start : start+idx.proteinLen(p)]), true
}

// Residues extracts n residues of a protein starting at offset.
func (idx *FMIndex) Residues(accession string, offset, n int) (string, error) {
	p, ok := idx.lookup[accession]
	if !ok {
		return "", fmt.Errorf("unknown protein '%s'", accession)
	}
	if offset < 0 || n < 0 || offset+n > idx.proteinLen(p) {
		return "", fmt.Errorf("residues [%d,%d) outside protein '%s'", offset, offset+n, accession)
	}
	start := idx.starts[p] + offset
	return string(idx.text[start : start+n]), nil
}

// Accessions returns protein accessions in database order.
func (idx *FMIndex) Accessions() []string {
	out := make([]string, len(idx.accessions))
	copy(out, idx.accessions)
	return out
}

// ProteinCount is the number of indexed proteins.
func (idx *FMIndex) ProteinCount() int { return len(idx.accessions) }

// Len is the number of rows of the index (indexed characters plus sentinel).
func (idx *FMIndex) Len() int { return len(idx.bwt) }

// Symbols lists the residue symbols occurring in the database.
func (idx *FMIndex) Symbols() []byte {
	var out []byte
	for s := 0; s < 256; s++ {
		if idx.code[s] >= 0 && s != Separator && s != Sentinel {
			out = append(out, byte(s))
		}
	}
	return out
}
