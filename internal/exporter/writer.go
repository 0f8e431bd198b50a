// Package exporter writes query results as CSV/TSV to stdout, files or S3.
package exporter

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/sqlassist/sqlassist-go/internal/remote"
)

// OpenOutput opens an output location, handling compression automatically
// based on extension. If location is empty, writes to stdout.
func OpenOutput(ctx context.Context, location string, cfg remote.Config) (io.WriteCloser, error) {
	ext := strings.ToLower(path.Ext(outputPath(location)))
	if ext == ".bz2" {
		return nil, fmt.Errorf("bzip2 output compression not yet supported, use .gz instead")
	}

	w, err := remote.OpenWriter(ctx, location, cfg)
	if err != nil {
		return nil, err
	}

	if ext == ".gz" {
		return &gzipWriter{dst: w, writer: gzip.NewWriter(w)}, nil
	}
	return w, nil
}

// gzipWriter wraps gzip writer and destination to close both properly.
type gzipWriter struct {
	dst    io.WriteCloser
	writer *gzip.Writer
}

func (g *gzipWriter) Write(p []byte) (int, error) {
	return g.writer.Write(p)
}

func (g *gzipWriter) Close() error {
	if err := g.writer.Close(); err != nil {
		g.dst.Close()
		return err
	}
	return g.dst.Close()
}

func outputPath(location string) string {
	if remote.IsRemote(location) {
		if u, err := url.Parse(location); err == nil {
			return u.Path
		}
	}
	return location
}

// DetectOutputDelimiter detects the output delimiter based on extension.
// Returns ',' for CSV files and '\t' for TSV files.
func DetectOutputDelimiter(location string) rune {
	if location == "" {
		return ','
	}

	// Strip compression extensions first
	p := outputPath(location)
	for {
		ext := strings.ToLower(path.Ext(p))
		if ext == ".gz" || ext == ".bz2" {
			p = strings.TrimSuffix(p, path.Ext(p))
			continue
		}
		break
	}

	if strings.ToLower(path.Ext(p)) == ".tsv" {
		return '\t'
	}
	return ','
}
