package exporter

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/sqlassist/sqlassist-go/internal/query"
	"github.com/sqlassist/sqlassist-go/internal/remote"
)

// Write writes the header and every row of result to w. NULL values are
// written as empty fields.
func Write(w io.Writer, result *query.Result, delimiter rune) error {
	writer := csv.NewWriter(w)
	writer.Comma = delimiter

	if err := writer.Write(result.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(result.Columns))
	for _, row := range result.Rows {
		for i, val := range row {
			record[i] = formatValue(val)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatValue(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Export writes result to location (stdout when empty). A zero delimiter
// is detected from the location's extension.
func Export(ctx context.Context, result *query.Result, location string, delimiter rune, cfg remote.Config) (err error) {
	if delimiter == 0 {
		delimiter = DetectOutputDelimiter(location)
	}

	output, err := OpenOutput(ctx, location, cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, output.Close())
	}()

	return Write(output, result, delimiter)
}
