// Package sqlite provides SQLite database writing for search results
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ChrisMcGann/PepMap/pkg/core"
	"github.com/ChrisMcGann/PepMap/pkg/search"
)

const (
	// Date format for HeaderTable (ISO 8601)
	headerDateFormat = "2006-01-02"
	schemaVersion    = 1
)

// Writer handles writing queries and their matches to SQLite database files
type Writer struct {
	db         *sql.DB
	outputPath string
	queryStmt  *sql.Stmt
	matchStmt  *sql.Stmt
	modStmt    *sql.Stmt
	editStmt   *sql.Stmt
	matchID    int64
	queries    int
	matches    int
}

// NewWriter creates a new SQLite writer
func NewWriter(outputPath string) (*Writer, error) {
	db, err := sql.Open("sqlite3", outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	w := &Writer{
		db:         db,
		outputPath: outputPath,
		matchID:    1,
	}

	if err := w.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	if err := w.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	return w, nil
}

// createTables creates the required database schema
func (w *Writer) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS QueryTable (
		QueryId TEXT PRIMARY KEY,
		Sequence TEXT,
		WindowLow DOUBLE,
		WindowHigh DOUBLE,
		Target DOUBLE,
		MaxEdits INTEGER,
		EditOps TEXT,
		MaxCombinations INTEGER,
		MaxModifications INTEGER,
		Matches INTEGER,
		NodesExpanded INTEGER,
		Truncated BOOL,
		DurationMs DOUBLE,
		Error TEXT
	);

	CREATE TABLE IF NOT EXISTS MatchTable (
		MatchId INTEGER PRIMARY KEY,
		QueryId TEXT REFERENCES QueryTable(QueryId),
		Rank INTEGER,
		Accession TEXT,
		ProteinOffset INTEGER,
		Sequence TEXT,
		Reference TEXT,
		Mass DOUBLE,
		Deviation DOUBLE,
		Modifications TEXT,
		Edits TEXT,
		EditCount INTEGER,
		Combinations INTEGER
	);

	CREATE TABLE IF NOT EXISTS ModificationTable (
		MatchId INTEGER REFERENCES MatchTable(MatchId),
		Site INTEGER,
		Name TEXT,
		Mass DOUBLE,
		Variable BOOL
	);

	CREATE TABLE IF NOT EXISTS EditTable (
		MatchId INTEGER REFERENCES MatchTable(MatchId),
		Position INTEGER,
		Operation TEXT,
		Protein TEXT,
		Peptide TEXT
	);

	CREATE TABLE IF NOT EXISTS HeaderTable (
		version INTEGER NOT NULL DEFAULT 0,
		CreationDate TEXT,
		Description TEXT,
		Parameters TEXT,
		Queries INTEGER,
		Matches INTEGER
	);

	CREATE INDEX IF NOT EXISTS MatchQuery ON MatchTable(QueryId);
	`

	_, err := w.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// prepareStatements prepares SQL statements for batch insertion
func (w *Writer) prepareStatements() error {
	var err error

	w.queryStmt, err = w.db.Prepare(`
		INSERT INTO QueryTable (
			QueryId, Sequence, WindowLow, WindowHigh, Target, MaxEdits, EditOps,
			MaxCombinations, MaxModifications, Matches, NodesExpanded, Truncated,
			DurationMs, Error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare query statement: %w", err)
	}

	w.matchStmt, err = w.db.Prepare(`
		INSERT INTO MatchTable (
			MatchId, QueryId, Rank, Accession, ProteinOffset, Sequence, Reference,
			Mass, Deviation, Modifications, Edits, EditCount, Combinations
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare match statement: %w", err)
	}

	w.modStmt, err = w.db.Prepare(`
		INSERT INTO ModificationTable (MatchId, Site, Name, Mass, Variable) VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare modification statement: %w", err)
	}

	w.editStmt, err = w.db.Prepare(`
		INSERT INTO EditTable (MatchId, Position, Operation, Protein, Peptide) VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare edit statement: %w", err)
	}

	return nil
}

// WriteQuery writes one query with its ranked matches in a single
// transaction. searchErr is stored with the query when its search failed.
func (w *Writer) WriteQuery(q *search.Query, matches []core.Match, stats search.Stats, searchErr error) error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var errText any
	if searchErr != nil {
		errText = searchErr.Error()
	}

	_, err = tx.Stmt(w.queryStmt).Exec(
		q.ID,
		q.Sequence,
		q.Window.Low,
		q.Window.High,
		q.Target,
		q.MaxEdits,
		q.EditOps.String(),
		q.MaxCombinations,
		q.MaxModifications,
		len(matches),
		stats.Expanded,
		stats.Truncated,
		float64(stats.Duration)/float64(time.Millisecond),
		errText,
	)
	if err != nil {
		return fmt.Errorf("failed to insert query %s: %w", q.ID, err)
	}

	id := w.matchID
	matchStmt, modStmt, editStmt := tx.Stmt(w.matchStmt), tx.Stmt(w.modStmt), tx.Stmt(w.editStmt)
	for i := range matches {
		m := &matches[i]
		if err := m.Validate(); err != nil {
			return fmt.Errorf("invalid match %s: %w", m.Name(), err)
		}

		_, err := matchStmt.Exec(
			id,
			q.ID,
			i+1,
			m.Accession,
			m.Offset,
			m.Sequence,
			m.Reference,
			core.RoundFloat(m.Mass, 6),
			core.RoundFloat(m.Deviation, 6),
			m.ModString(),
			m.EditString(),
			m.EditCount(),
			m.Combinations,
		)
		if err != nil {
			return fmt.Errorf("failed to insert match %s: %w", m.Name(), err)
		}

		for _, mod := range m.Modifications {
			if _, err := modStmt.Exec(id, mod.Position, mod.Name, mod.Mass, mod.Variable); err != nil {
				return fmt.Errorf("failed to insert modification: %w", err)
			}
		}
		for _, e := range m.Edits {
			if _, err := editStmt.Exec(id, e.Position, e.Op.String(), residue(e.Protein), residue(e.Peptide)); err != nil {
				return fmt.Errorf("failed to insert edit: %w", err)
			}
		}
		id++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit query %s: %w", q.ID, err)
	}
	w.matchID = id
	w.queries++
	w.matches += len(matches)
	return nil
}

func residue(b byte) any {
	if b == 0 {
		return nil
	}
	return string(b)
}

// Finalize writes the header table and closes the database. parameters is
// stored as given, typically the TOML of the search parameters.
func (w *Writer) Finalize(description, parameters string) error {
	_, err := w.db.Exec(`
		INSERT INTO HeaderTable (version, CreationDate, Description, Parameters, Queries, Matches)
		VALUES (?, ?, ?, ?, ?, ?)
	`, schemaVersion, time.Now().Format(headerDateFormat), description, parameters, w.queries, w.matches)
	if err != nil {
		return fmt.Errorf("failed to insert header: %w", err)
	}

	return w.Close()
}

// Close closes the prepared statements and the database without writing a header
func (w *Writer) Close() error {
	if w.db == nil {
		return nil
	}
	for _, stmt := range []*sql.Stmt{w.queryStmt, w.matchStmt, w.modStmt, w.editStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}

	err := w.db.Close()
	w.db = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Counts returns the number of queries and matches written so far.
func (w *Writer) Counts() (queries, matches int) {
	return w.queries, w.matches
}
