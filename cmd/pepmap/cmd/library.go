package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/PepMap/pkg/config"
	"github.com/ChrisMcGann/PepMap/pkg/core"
	"github.com/ChrisMcGann/PepMap/pkg/reader/msp"
	"github.com/ChrisMcGann/PepMap/pkg/reader/queries"
	"github.com/ChrisMcGann/PepMap/pkg/reader/sptxt"
	"github.com/ChrisMcGann/PepMap/pkg/search"
)

var (
	// Flags for library command
	libraryFile   string
	libraryFormat string
)

func init() {
	libraryCmd.Flags().StringVarP(&libraryFile, "in", "i", "", "Spectral library file (required)")
	libraryCmd.Flags().StringVarP(&libraryFormat, "from", "f", "", "Library format: msp or sptxt (auto-detect if not specified)")
	libraryCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Output database file (default: TSV on stdout)")
	libraryCmd.Flags().IntVar(&chunkSize, "chunk-size", 1000, "Library entries searched per batch")
	config.BindFlags(libraryCmd.Flags(), flagParams)

	libraryCmd.MarkFlagRequired("in")
}

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Map every peptide of a spectral library onto the proteins",
	Long: `Map the peptides of an MSP or SPTXT spectral library onto the protein index.

Each entry becomes a query for its bare sequence. The mass window comes from
the precursor m/z and charge with the library's own modifications taken out,
so search modifications are not applied; edits and combination budgets are.

Examples:
  pepmap library --in library.msp --index human.idx --out mapped.db
  pepmap library --in consensus.sptxt --proteins uniprot.fasta --max-edits 1 --edit-ops s`,
	RunE: runLibrary,
}

// libraryReader is the streaming API shared by the library readers.
type libraryReader interface {
	Next() bool
	Entry() *core.LibraryEntry
	Err() error
}

func runLibrary(cmd *cobra.Command, args []string) error {
	// Validate input file exists
	if _, err := os.Stat(libraryFile); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", libraryFile)
	}

	format, err := detectFormat(libraryFile, libraryFormat)
	if err != nil {
		return err
	}

	p, err := loadParams(cmd)
	if err != nil {
		return err
	}
	modDB, err := loadModDatabase(p)
	if err != nil {
		return err
	}
	defaults, err := p.QueryDefaults(modDB)
	if err != nil {
		return err
	}

	inFile, err := os.Open(libraryFile)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer inFile.Close()

	var reader libraryReader
	var mspReader *msp.Reader
	switch format {
	case "msp":
		mspReader = msp.NewReader(inFile, modDB)
		reader = mspReader
	case "sptxt":
		reader = sptxt.NewReader(inFile, modDB)
	}

	progress := progressOut(outputFile)
	fmt.Fprintf(progress, "Reading %s...\n", libraryFile)
	fmt.Fprintf(progress, "Format: %s\n", format)

	qs, skipped, err := libraryQueries(reader, defaults, p.MassTable())
	if err != nil {
		return err
	}
	if mspReader != nil {
		reportUnknownMods(mspReader.UnknownModifications())
	}
	if len(qs) == 0 {
		return fmt.Errorf("no usable entries in %s", libraryFile)
	}

	idx, err := openIndex(p)
	if err != nil {
		return err
	}
	engine, err := newEngine(p, idx)
	if err != nil {
		return err
	}

	sink, err := openSink(outputFile)
	if err != nil {
		return err
	}
	defer sink.Close()

	fmt.Fprintf(progress, "Searching %d entries against %d proteins...\n", len(qs), idx.ProteinCount())
	fc := p.FilterConfig()
	n, matches, err := searchChunks(cmd.Context(), engine, qs, &fc, sink, progress)
	if err != nil {
		return err
	}

	if err := finalize(sink, p, "pepmap library "+filepath.Base(libraryFile)); err != nil {
		return err
	}

	fmt.Fprintf(progress, "\nMapping complete!\n")
	fmt.Fprintf(progress, "Processed: %d entries\n", n)
	if skipped > 0 {
		fmt.Fprintf(progress, "Skipped: %d entries (validation errors)\n", skipped)
	}
	fmt.Fprintf(progress, "Matches: %d\n", matches)
	if outputFile != "" {
		fmt.Fprintf(progress, "Output: %s\n", outputFile)
	}
	return nil
}

// detectFormat resolves the library format from the flag or the file extension.
func detectFormat(path, format string) (string, error) {
	if format == "" {
		ext := strings.ToLower(filepath.Ext(path))
		switch ext {
		case ".msp":
			format = "msp"
		case ".sptxt":
			format = "sptxt"
		default:
			return "", fmt.Errorf("cannot auto-detect format from extension '%s', please specify --from", ext)
		}
	}

	format = strings.ToLower(format)
	if format != "msp" && format != "sptxt" {
		return "", fmt.Errorf("invalid input format '%s', must be msp or sptxt", format)
	}
	return format, nil
}

// libraryQueries turns every valid library entry into a query. Entries that
// fail validation, or whose query cannot be searched with table, are skipped
// with a warning.
func libraryQueries(reader libraryReader, d queries.Defaults, table *core.MassTable) ([]*search.Query, int, error) {
	var qs []*search.Query
	skipped := 0
	seen := make(map[string]int)

	for reader.Next() {
		entry := reader.Entry()
		if err := entry.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: invalid entry %s: %v\n", entry.Name, err)
			skipped++
			continue
		}

		q, err := entryQuery(entry, d)
		if err == nil {
			err = q.Validate(table)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cannot search entry %s: %v\n", entry.Name, err)
			skipped++
			continue
		}

		// library names repeat across instruments and collision energies
		seen[q.ID]++
		if k := seen[q.ID]; k > 1 {
			q.ID = fmt.Sprintf("%s#%d", q.ID, k)
		}
		qs = append(qs, q)
	}

	if err := reader.Err(); err != nil {
		return nil, skipped, fmt.Errorf("error reading input file: %w", err)
	}
	return qs, skipped, nil
}

// entryQuery builds the query of one library entry. The library states the
// modifications, so the window is for unmodified residues and no search
// modifications are applied.
func entryQuery(entry *core.LibraryEntry, d queries.Defaults) (*search.Query, error) {
	low, high, err := entry.ResidueWindow(d.Tolerance, d.Unit)
	if err != nil {
		return nil, err
	}

	q := d.Query
	q.ID = entry.Name
	if q.ID == "" {
		q.ID = fmt.Sprintf("%s/%d", entry.Sequence, entry.Charge)
	}
	q.Sequence = entry.Sequence
	q.Window = search.MassWindow{Low: low, High: high}
	q.Target = (low + high) / 2
	q.Variable, q.Fixed, q.MaxModifications = nil, nil, 0
	return &q, nil
}

func reportUnknownMods(unknown map[string]int) {
	if len(unknown) == 0 {
		return
	}
	names := make([]string, 0, len(unknown))
	for name := range unknown {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "Warning: unknown modification '%s' in %d entries\n", name, unknown[name])
	}
}
