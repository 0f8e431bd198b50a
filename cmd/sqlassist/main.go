// sqlassist - a SQL assistant for tabular files
//
// Loads CSV/TSV files into SQLite or DuckDB, runs SQL or natural-language
// questions against them and exports results back to CSV/TSV format.
package main

import (
	"os"

	"github.com/fatih/color"

	"github.com/sqlassist/sqlassist-go/internal/cli"
)

// Version information (set via ldflags at build time)
var (
	version   = "dev"     //nolint:unused // Set via ldflags
	buildTime = "unknown" //nolint:unused // Set via ldflags
)

func main() {
	if err := cli.Execute(); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		_, _ = errorColor.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
