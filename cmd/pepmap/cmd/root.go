// Package cmd provides CLI command implementations
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/PepMap/pkg/config"
	"github.com/ChrisMcGann/PepMap/pkg/core"
	"github.com/ChrisMcGann/PepMap/pkg/index"
	"github.com/ChrisMcGann/PepMap/pkg/reader/fasta"
	"github.com/ChrisMcGann/PepMap/pkg/search"
)

// customModsFile is loaded on top of the built-in catalog when present in
// the working directory and no --mods file is given.
const customModsFile = "unimod_custom.csv"

var (
	// Global flags
	paramsFile  string
	verbose     bool
	metricsAddr string

	// flagParams receives the search parameter flags of search and library
	flagParams = config.Default()

	logger = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "pepmap",
	Short: "PepMap - peptide to protein mapping tool",
	Long: `PepMap maps peptide sequences onto a protein database with an FM-index,
tolerating ambiguous residues, modifications and sequence edits.

Supports:
- Sequence queries with combination symbols (B, Z, J, X)
- Open searches by mass window
- Fixed and variable modifications with placement rules
- Insertions, deletions and substitutions within an edit budget
- Spectral libraries (MSP, SPTXT) as query sources`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command. SIGINT and SIGTERM cancel running searches.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(libraryCmd)
	rootCmd.AddCommand(paramsCmd)

	rootCmd.PersistentFlags().StringVarP(&paramsFile, "params", "p", "", "Parameter file (TOML); flags override its values")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log search details to stderr")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. ':9090')")
}

// setup configures logging and the metrics endpoint for every command.
func setup(cmd *cobra.Command, args []string) error {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics: server stopped", slog.String("addr", metricsAddr), slog.String("error", err.Error()))
			}
		}()
		logger.Info("metrics: serving", slog.String("addr", metricsAddr))
	}
	return nil
}

// loadParams returns the parameter file merged with the flags set on cmd.
func loadParams(cmd *cobra.Command) (*config.Params, error) {
	file := config.Default()
	if paramsFile != "" {
		var err error
		if file, err = config.LoadFile(paramsFile); err != nil {
			return nil, err
		}
	}
	p := config.MergeFlags(cmd.Flags(), flagParams, file)
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	return p, nil
}

// loadModDatabase returns the catalog for p, falling back to
// unimod_custom.csv in the working directory.
func loadModDatabase(p *config.Params) (*core.ModDatabase, error) {
	if p.ModsFile != "" {
		return p.ModDatabase()
	}

	modDB := core.DefaultModDatabase()
	if f, err := os.Open(customModsFile); err == nil {
		if err := modDB.LoadFromCSV(f); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to load %s: %v\n", customModsFile, err)
		}
		f.Close()
	}
	return modDB, nil
}

// openIndex loads the saved index or builds one from the protein FASTA.
func openIndex(p *config.Params) (*index.FMIndex, error) {
	switch {
	case p.Index != "":
		f, err := os.Open(p.Index)
		if err != nil {
			return nil, fmt.Errorf("failed to open index: %w", err)
		}
		defer f.Close()
		idx, err := index.Load(f)
		if err != nil {
			return nil, fmt.Errorf("failed to load index %s: %w", p.Index, err)
		}
		return idx, nil

	case p.Proteins != "":
		return buildIndex(p.Proteins)

	default:
		return nil, fmt.Errorf("either --index or --proteins is required")
	}
}

func buildIndex(path string) (*index.FMIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open protein file: %w", err)
	}
	defer f.Close()

	proteins, err := fasta.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(proteins) == 0 {
		return nil, fmt.Errorf("no proteins in %s", path)
	}

	start := time.Now()
	idx, err := index.New(proteins)
	if err != nil {
		return nil, fmt.Errorf("failed to build index: %w", err)
	}
	logger.Info("index: built",
		slog.Int("proteins", idx.ProteinCount()),
		slog.Int("length", idx.Len()),
		slog.Duration("duration", time.Since(start)))
	return idx, nil
}

// newEngine creates the search engine for p over idx.
func newEngine(p *config.Params, idx *index.FMIndex) (*search.Engine, error) {
	ranking, err := p.RankingValue()
	if err != nil {
		return nil, err
	}
	opts := []search.Option{search.WithRanking(ranking), search.WithLogger(logger)}
	if p.Workers > 0 {
		opts = append(opts, search.WithWorkers(p.Workers))
	}
	return search.NewEngine(idx, p.MassTable(), opts...), nil
}
