package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/PepMap/pkg/config"
	"github.com/ChrisMcGann/PepMap/pkg/filter"
	"github.com/ChrisMcGann/PepMap/pkg/reader/queries"
	"github.com/ChrisMcGann/PepMap/pkg/search"
)

var (
	// Flags for search command
	queryFile   string
	queryID     string
	sequence    string
	window      []float64
	target      float64
	precursorMZ float64
	charge      int
	outputFile  string
	chunkSize   int
)

func init() {
	searchCmd.Flags().StringVarP(&queryFile, "queries", "q", "", "YAML file of queries")
	searchCmd.Flags().StringVar(&queryID, "id", "q1", "ID of a query given by flags")
	searchCmd.Flags().StringVarP(&sequence, "sequence", "s", "", "Peptide sequence, may contain combination symbols")
	searchCmd.Flags().Float64SliceVar(&window, "window", nil, "Residue mass window as low,high")
	searchCmd.Flags().Float64Var(&target, "target", 0, "Residue mass, widened by the tolerance")
	searchCmd.Flags().Float64Var(&precursorMZ, "precursor-mz", 0, "Precursor m/z, needs --charge")
	searchCmd.Flags().IntVar(&charge, "charge", 0, "Precursor charge")
	searchCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Output database file (default: TSV on stdout)")
	searchCmd.Flags().IntVar(&chunkSize, "chunk-size", 1000, "Queries searched per batch")
	config.BindFlags(searchCmd.Flags(), flagParams)
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Map peptide queries onto the protein index",
	Long: `Map one query given by flags, or a YAML batch of queries, onto the proteins.

Examples:
  # Exact lookup with combination symbols
  pepmap search --index human.idx --sequence PEPTJDE

  # One substitution, phospho allowed, precursor window
  pepmap search --index human.idx --sequence AACKSTY --precursor-mz 391.71 --charge 2 \
      --max-edits 1 --edit-ops s --variable Phospho

  # Open search of every peptide of 7 to 12 residues in a mass window
  pepmap search --proteins uniprot.fasta --window 799.3,799.4 --min-length 7 --max-length 12

  # Batch with a parameter file, results in SQLite
  pepmap search --params search.toml --queries batch.yaml --out results.db`,
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
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

	var qs []*search.Query
	if queryFile != "" {
		if qs, err = queries.LoadFile(queryFile, defaults); err != nil {
			return err
		}
	} else {
		q, err := flagQuery(defaults)
		if err != nil {
			return err
		}
		qs = []*search.Query{q}
	}
	if len(qs) == 0 {
		return fmt.Errorf("no queries in %s", queryFile)
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

	progress := progressOut(outputFile)
	fmt.Fprintf(progress, "Searching %d queries against %d proteins...\n", len(qs), idx.ProteinCount())

	fc := p.FilterConfig()
	n, matches, err := searchChunks(cmd.Context(), engine, qs, &fc, sink, progress)
	if err != nil {
		return err
	}

	if err := finalize(sink, p, "pepmap search"); err != nil {
		return err
	}

	fmt.Fprintf(progress, "\nSearch complete!\n")
	fmt.Fprintf(progress, "Queries: %d\n", n)
	fmt.Fprintf(progress, "Matches: %d\n", matches)
	if outputFile != "" {
		fmt.Fprintf(progress, "Output: %s\n", outputFile)
	}
	return nil
}

// flagQuery builds the query described by the search command flags.
func flagQuery(d queries.Defaults) (*search.Query, error) {
	if sequence == "" && len(window) == 0 && target == 0 && precursorMZ == 0 {
		return nil, fmt.Errorf("either --queries, --sequence or a mass (--window, --target, --precursor-mz) is required")
	}
	e := queries.Entry{
		ID:          queryID,
		Sequence:    sequence,
		Window:      window,
		Target:      target,
		PrecursorMZ: precursorMZ,
		Charge:      charge,
	}
	return e.Query(d)
}

// searchChunks runs qs through the engine chunkSize queries at a time and
// writes the filtered matches of each query to sink in input order.
func searchChunks(ctx context.Context, engine *search.Engine, qs []*search.Query, fc *filter.Config, sink matchSink, progress io.Writer) (queriesDone, matchCount int, err error) {
	size := chunkSize
	if size < 1 {
		size = len(qs)
	}

	truncated := 0
	for start := 0; start < len(qs); start += size {
		end := min(start+size, len(qs))
		err := engine.SearchBatch(ctx, qs[start:end], func(q *search.Query, res *search.Results) error {
			matches, searchErr := search.Collect(res)
			matches = fc.Apply(matches)
			if res.Truncated() {
				truncated++
			}
			if err := sink.WriteQuery(q, matches, res.Stats(), searchErr); err != nil {
				return fmt.Errorf("failed to write query %s: %w", q.ID, err)
			}
			queriesDone++
			matchCount += len(matches)
			return nil
		})
		if err != nil {
			return queriesDone, matchCount, err
		}
		if len(qs) > size {
			fmt.Fprintf(progress, "Processed %d queries...\n", queriesDone)
		}
	}

	if truncated > 0 {
		fmt.Fprintf(progress, "Truncated: %d queries hit their search budget\n", truncated)
	}
	return queriesDone, matchCount, nil
}

// finalize stores the effective parameters with the results.
func finalize(sink matchSink, p *config.Params, description string) error {
	var buf bytes.Buffer
	if err := p.Write(&buf); err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}
	if err := sink.Finalize(description, buf.String()); err != nil {
		return fmt.Errorf("failed to finalize output: %w", err)
	}
	return nil
}
