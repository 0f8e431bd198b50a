// Package config provides run options and persistent settings for sqlassist.
package config

import (
	"fmt"
	"strings"
)

// Config holds the options of one CLI run.
type Config struct {
	InputFile    string
	OutputFile   string
	SQLQuery     string
	Question     string
	Delimiter    rune
	DBPath       string
	TableName    string
	IndexColumns []string // Columns to create indexes on
	HasHeader    bool
	Engine       string
	NoRepair     bool
	ShowMapping  bool
	KeepDB       bool // Track if db should be kept (explicitly set)
}

// ParseDelimiter converts a delimiter string to a rune.
// Valid values: "comma", "csv", "tab", "tsv", "auto".
// Returns 0 for auto-detection.
func ParseDelimiter(delimiterStr string) (rune, error) {
	switch strings.ToLower(delimiterStr) {
	case "comma", "csv":
		return ',', nil
	case "tab", "tsv":
		return '\t', nil
	case "auto":
		return 0, nil
	default:
		return 0, fmt.Errorf("invalid delimiter: %s (use 'comma', 'tab', or 'auto')", delimiterStr)
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.InputFile == "" && c.DBPath == "" {
		return fmt.Errorf("must specify an input file or an existing database")
	}
	if c.SQLQuery != "" && c.Question != "" {
		return fmt.Errorf("use either a query or a question, not both")
	}
	if c.InputFile == "" && c.SQLQuery == "" && c.Question == "" {
		return fmt.Errorf("nothing to do: specify a query or a question for an existing database")
	}
	return nil
}

// NeedsTranslator reports whether the run asks a natural-language question.
func (c *Config) NeedsTranslator() bool {
	return c.Question != ""
}
