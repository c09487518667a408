package index

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// magic identifies the on-disk index format.
const magic = "PEPMAPI1"

// WriteTo writes the built index (proteins, suffix array and BWT) as
// little-endian binary blocks. The occurrence tables are rebuilt on load.
func (idx *FMIndex) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: bufio.NewWriter(w)}

	cw.write([]byte(magic))
	cw.u32(uint32(len(idx.accessions)))
	for _, acc := range idx.accessions {
		seq, _ := idx.Sequence(acc)
		cw.str(acc)
		cw.str(seq)
	}

	cw.u32(uint32(len(idx.sa)))
	buf := make([]byte, 4*len(idx.sa))
	for i, v := range idx.sa {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	cw.write(buf)
	cw.write(idx.bwt)

	if cw.err == nil {
		cw.err = cw.w.Flush()
	}
	if cw.err != nil {
		return cw.n, fmt.Errorf("failed to write index: %w", cw.err)
	}
	return cw.n, nil
}

// Load reads an index written by WriteTo.
func Load(r io.Reader) (*FMIndex, error) {
	br := bufio.NewReader(r)

	head := make([]byte, len(magic))
	if _, err := io.ReadFull(br, head); err != nil {
		return nil, fmt.Errorf("failed to read index header: %w", err)
	}
	if string(head) != magic {
		return nil, fmt.Errorf("%w: not a pepmap index (header %q)", ErrIndexInconsistent, head)
	}

	count, err := readU32(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read protein count: %w", err)
	}
	proteins := make([]Protein, 0, count)
	for i := uint32(0); i < count; i++ {
		acc, err := readStr(br)
		if err != nil {
			return nil, fmt.Errorf("failed to read protein %d: %w", i+1, err)
		}
		seq, err := readStr(br)
		if err != nil {
			return nil, fmt.Errorf("failed to read protein %d: %w", i+1, err)
		}
		proteins = append(proteins, Protein{Accession: acc, Sequence: seq})
	}

	idx := &FMIndex{lookup: make(map[string]int, len(proteins))}
	var text []byte
	for i, p := range proteins {
		if i > 0 {
			text = append(text, Separator)
		}
		idx.lookup[p.Accession] = i
		idx.accessions = append(idx.accessions, p.Accession)
		idx.starts = append(idx.starts, len(text))
		text = append(text, p.Sequence...)
	}
	idx.text = text

	rows, err := readU32(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read row count: %w", err)
	}
	if int(rows) != len(text)+1 {
		return nil, fmt.Errorf("%w: %d rows for %d indexed characters", ErrIndexInconsistent, rows, len(text))
	}

	buf := make([]byte, 4*rows)
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil, fmt.Errorf("failed to read suffix array: %w", err)
	}
	idx.sa = make([]int32, rows)
	for i := range idx.sa {
		v := int32(binary.LittleEndian.Uint32(buf[i*4:]))
		if v < 0 || int(v) >= int(rows) {
			return nil, fmt.Errorf("%w: suffix array entry %d out of range", ErrIndexInconsistent, i)
		}
		idx.sa[i] = v
	}

	idx.bwt = make([]byte, rows)
	if _, err := io.ReadFull(br, idx.bwt); err != nil {
		return nil, fmt.Errorf("failed to read BWT: %w", err)
	}

	idx.buildTables()
	return idx, nil
}

type countingWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (cw *countingWriter) write(p []byte) {
	if cw.err != nil {
		return
	}
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	cw.err = err
}

func (cw *countingWriter) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	cw.write(b[:])
}

func (cw *countingWriter) str(s string) {
	cw.u32(uint32(len(s)))
	cw.write([]byte(s))
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readStr(r io.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
