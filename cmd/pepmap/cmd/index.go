package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Flags for index command
	fastaFile string
	indexFile string
)

func init() {
	indexCmd.Flags().StringVarP(&fastaFile, "in", "i", "", "Protein FASTA file (required)")
	indexCmd.Flags().StringVarP(&indexFile, "out", "o", "", "Output index file (required)")

	indexCmd.MarkFlagRequired("in")
	indexCmd.MarkFlagRequired("out")
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build a protein index from a FASTA file",
	Long: `Build the FM-index of a protein FASTA file and save it for later searches.

Example:
  pepmap index --in uniprot_human.fasta --out human.idx`,
	RunE: runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(fastaFile); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", fastaFile)
	}

	fmt.Printf("Indexing %s...\n", fastaFile)
	idx, err := buildIndex(fastaFile)
	if err != nil {
		return err
	}

	out, err := os.Create(indexFile)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	n, err := idx.WriteTo(out)
	if err != nil {
		out.Close()
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}

	fmt.Printf("\nIndexing complete!\n")
	fmt.Printf("Proteins: %d\n", idx.ProteinCount())
	fmt.Printf("Residues: %d\n", idx.Len()-idx.ProteinCount())
	fmt.Printf("Output: %s (%d bytes)\n", indexFile, n)
	return nil
}
