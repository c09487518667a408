package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/PepMap/pkg/config"
)

var paramsOut string

func init() {
	paramsCmd.Flags().StringVarP(&paramsOut, "out", "o", "", "Write to this file instead of stdout")
	config.BindFlags(paramsCmd.Flags(), flagParams)
}

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Print the effective search parameters as TOML",
	Long: `Print the built-in defaults, merged with --params and any parameter flags,
as a parameter file.

Example:
  pepmap params --max-edits 1 --edit-ops s > search.toml`,
	Args: cobra.NoArgs,
	RunE: runParams,
}

func runParams(cmd *cobra.Command, args []string) error {
	p, err := loadParams(cmd)
	if err != nil {
		return err
	}

	if paramsOut == "" {
		return p.Write(os.Stdout)
	}

	f, err := os.Create(paramsOut)
	if err != nil {
		return fmt.Errorf("failed to create parameter file: %w", err)
	}
	if err := p.Write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write parameters: %w", err)
	}
	return f.Close()
}
