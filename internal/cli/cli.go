// Package cli provides the command-line interface for sqlassist.
package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sqlassist/sqlassist-go/internal/config"
	"github.com/sqlassist/sqlassist-go/internal/database"
	"github.com/sqlassist/sqlassist-go/internal/exporter"
	"github.com/sqlassist/sqlassist-go/internal/query"
)

var (
	// Colors for output
	successColor = color.New(color.FgGreen, color.Bold)
	infoColor    = color.New(color.FgCyan)
	warnColor    = color.New(color.FgYellow)
	sqlColor     = color.New(color.FgMagenta)
)

// statusOut receives status lines; stdout is reserved for results.
var statusOut io.Writer = os.Stderr

var rootCmd = &cobra.Command{
	Use:   "sqlassist",
	Short: "Query CSV/TSV files with SQL or plain questions",
	Long: `sqlassist - a SQL assistant for tabular files

Loads a CSV/TSV file into an embedded database, runs SQL against it and
exports the results. Headers are turned into safe column names; queries
that still use the original header names are repaired automatically.

Features:
  • SQLite (default) or DuckDB engine
  • Local, http(s) and s3 sources, compressed with .gz or .bz2
  • Natural-language questions translated to SQL by an LLM
  • Results to stdout, a local file or s3
  • JSON HTTP API (sqlassist serve)`,
	Example: `  # Load and query in one command
  sqlassist -i passengers.csv -q "SELECT * FROM data LIMIT 10" -o results.csv

  # Raw header names are repaired to sanitized column names
  sqlassist -i passengers.csv -q 'SELECT "Passenger Class", COUNT(*) FROM data GROUP BY 1'

  # Ask a question
  sqlassist -i passengers.csv -a "Which passengers are likely to survive?"

  # Show how headers were renamed
  sqlassist -i passengers.csv --show-mapping`,
	SilenceUsage:     true,
	SilenceErrors:    true,
	PersistentPreRun: setupLogging,
	RunE:             runCommand,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Config file (default: ~/.sqlassist/config.yaml)")
	pf.Bool("debug", false, "Log load, query and repair details")
	pf.StringP("input", "i", "", "Input CSV/TSV file, URL or s3:// location ('-' for stdin)")
	pf.StringP("table", "t", "", "Table name for the loaded data (default: 'data')")
	pf.StringP("db", "d", "", "Database path (default: temporary file, deleted after execution)")
	pf.BoolP("header", "H", true, "Input file has header row")
	pf.String("delimiter", "auto", "Field delimiter: 'comma', 'tab', or 'auto'")
	pf.String("engine", "", "Database engine: 'sqlite' or 'duckdb'")
	pf.Bool("no-repair", false, "Do not rewrite queries that reference unknown columns")

	f := rootCmd.Flags()
	f.StringP("query", "q", "", "SQL query to execute")
	f.StringP("ask", "a", "", "Question to translate into SQL and execute")
	f.StringP("output", "o", "", "Output CSV/TSV file or s3:// location (default: stdout)")
	f.StringSlice("index", []string{}, "Columns to index after loading, comma-separated")
	f.Bool("show-mapping", false, "Print the original → sanitized column names")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadSettings reads .env and the config file named by --config.
func loadSettings(cmd *cobra.Command) (*config.Settings, string, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	if err := config.LoadDotEnv(); err != nil {
		return nil, "", err
	}
	settings, err := config.Load(cfgFile)
	if err != nil {
		return nil, "", err
	}
	return settings, cfgFile, nil
}

// sessionConfig fills the flags shared by every command, falling back to
// settings for flags the user did not set.
func sessionConfig(cmd *cobra.Command, settings *config.Settings) (*config.Config, error) {
	flags := cmd.Flags()
	cfg := &config.Config{}

	cfg.InputFile, _ = flags.GetString("input")
	cfg.DBPath, _ = flags.GetString("db")
	cfg.KeepDB = flags.Changed("db")
	cfg.NoRepair, _ = flags.GetBool("no-repair")

	cfg.TableName, _ = flags.GetString("table")
	if cfg.TableName == "" {
		cfg.TableName = settings.TableName
	}
	cfg.Engine, _ = flags.GetString("engine")
	if cfg.Engine == "" {
		cfg.Engine = settings.Engine
	}
	cfg.HasHeader = settings.HasHeader
	if flags.Changed("header") {
		cfg.HasHeader, _ = flags.GetBool("header")
	}

	delimiterStr, _ := flags.GetString("delimiter")
	delimiter, err := config.ParseDelimiter(delimiterStr)
	if err != nil {
		return nil, err
	}
	cfg.Delimiter = delimiter
	return cfg, nil
}

func runCommand(cmd *cobra.Command, args []string) error {
	if cmd.Flags().NFlag() == 0 {
		return cmd.Help()
	}

	settings, _, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	cfg, err := sessionConfig(cmd, settings)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	cfg.SQLQuery, _ = flags.GetString("query")
	cfg.Question, _ = flags.GetString("ask")
	cfg.OutputFile, _ = flags.GetString("output")
	cfg.IndexColumns, _ = flags.GetStringSlice("index")
	cfg.ShowMapping, _ = flags.GetBool("show-mapping")

	if err := cfg.Validate(); err != nil {
		return err
	}

	debug, _ := flags.GetBool("debug")
	return run(cmd.Context(), cfg, settings, debug)
}

func run(ctx context.Context, cfg *config.Config, settings *config.Settings, debug bool) error {
	sess, err := openSession(ctx, cfg, settings, sessionOptions{
		requireTranslator: cfg.NeedsTranslator(),
		requireDataset:    true,
		debug:             debug,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	rel := sess.asst.Relation()

	if len(cfg.IndexColumns) > 0 {
		infoColor.Fprintf(statusOut, "Creating %d index(es) on '%s'\n", len(cfg.IndexColumns), rel.Name)
		if err := database.CreateIndexes(ctx, sess.db, rel.Name, cfg.IndexColumns); err != nil {
			return err
		}
	}

	if cfg.ShowMapping {
		printMapping(statusOut, rel)
	}

	var result *query.Result
	switch {
	case cfg.Question != "":
		infoColor.Fprintf(statusOut, "Translating question...\n")
		answer, err := sess.asst.Ask(ctx, cfg.Question)
		if answer != nil {
			infoColor.Fprintf(statusOut, "Generated SQL:\n")
			sqlColor.Fprintf(statusOut, "  %s\n", answer.SQL)
		}
		if err != nil {
			return err
		}
		result = answer.Result
	case cfg.SQLQuery != "":
		infoColor.Fprintf(statusOut, "Executing query...\n")
		result, err = sess.asst.Query(ctx, cfg.SQLQuery)
		if err != nil {
			return err
		}
	default:
		return nil
	}

	if result.Repair != nil {
		warnColor.Fprintf(statusOut, "Query repaired (%s):\n", result.Repair.Strategy)
		sqlColor.Fprintf(statusOut, "  %s\n", result.Repair.Query)
	}

	outputDelimiter := cfg.Delimiter
	if outputDelimiter == 0 {
		outputDelimiter = exporter.DetectOutputDelimiter(cfg.OutputFile)
	}
	if err := exporter.Export(ctx, result, cfg.OutputFile, outputDelimiter, settings.RemoteConfig()); err != nil {
		return fmt.Errorf("failed to export results: %w", err)
	}
	infoColor.Fprintf(statusOut, "  Exported %d rows\n", result.RowCount())
	if cfg.OutputFile != "" {
		successColor.Fprintf(statusOut, "✓ Query results exported to %s\n", cfg.OutputFile)
	}
	return nil
}

func printMapping(w io.Writer, rel *database.Relation) {
	infoColor.Fprintf(w, "Column mapping for '%s':\n", rel.Name)
	width := 0
	for _, m := range rel.Mapping() {
		if len(m.Raw) > width {
			width = len(m.Raw)
		}
	}
	for _, m := range rel.Mapping() {
		fmt.Fprintf(w, "  %-*s → %s\n", width, m.Raw, m.Sanitized)
	}
}

func setupLogging(cmd *cobra.Command, args []string) {
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		log.SetOutput(os.Stderr)
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	}
}
