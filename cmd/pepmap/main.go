// PepMap - peptide to protein mapping tool
package main

import (
	"fmt"
	"os"

	"github.com/ChrisMcGann/PepMap/cmd/pepmap/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
