package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/ChrisMcGann/PepMap/pkg/core"
	"github.com/ChrisMcGann/PepMap/pkg/search"
	"github.com/ChrisMcGann/PepMap/pkg/writer/sqlite"
)

// matchSink receives the filtered matches of each query.
type matchSink interface {
	WriteQuery(q *search.Query, matches []core.Match, stats search.Stats, searchErr error) error
	Finalize(description, parameters string) error
	Close() error
}

// openSink returns a SQLite writer for path, or a TSV writer on stdout when
// path is empty.
func openSink(path string) (matchSink, error) {
	if path == "" {
		return newTSVWriter(os.Stdout), nil
	}
	w, err := sqlite.NewWriter(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output database: %w", err)
	}
	return w, nil
}

// progressOut is where progress lines go: stdout unless matches are written there.
func progressOut(outPath string) io.Writer {
	if outPath == "" {
		return os.Stderr
	}
	return os.Stdout
}

// tsvWriter writes one line per match.
type tsvWriter struct {
	w      *bufio.Writer
	header bool
}

func newTSVWriter(w io.Writer) *tsvWriter {
	return &tsvWriter{w: bufio.NewWriter(w)}
}

func (t *tsvWriter) WriteQuery(q *search.Query, matches []core.Match, stats search.Stats, searchErr error) error {
	if !t.header {
		fmt.Fprintln(t.w, "query\trank\taccession\toffset\tsequence\treference\tmass\tdeviation\tmodifications\tedits\tcombinations")
		t.header = true
	}
	if searchErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: query %s failed: %v\n", q.ID, searchErr)
	}
	if stats.Truncated {
		fmt.Fprintf(os.Stderr, "Warning: query %s hit its search budget, results are partial\n", q.ID)
	}
	for i := range matches {
		m := &matches[i]
		_, err := fmt.Fprintf(t.w, "%s\t%d\t%s\t%d\t%s\t%s\t%.6f\t%.6f\t%s\t%s\t%d\n",
			q.ID, i+1, m.Accession, m.Offset, m.Sequence, m.Reference,
			m.Mass, m.Deviation, m.ModString(), m.EditString(), m.Combinations)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *tsvWriter) Finalize(description, parameters string) error {
	return t.w.Flush()
}

func (t *tsvWriter) Close() error {
	return t.w.Flush()
}
