// Package importer loads CSV/TSV sources into the embedded engine as a
// single named relation.
package importer

import (
	"compress/bzip2"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/sqlassist/sqlassist-go/internal/remote"
)

// OpenSource opens a dataset location, handling compression automatically
// based on extension. Supports .gz (gzip) and .bz2 (bzip2) compressed sources.
func OpenSource(ctx context.Context, location string, cfg remote.Config) (io.ReadCloser, error) {
	rc, err := remote.OpenReader(ctx, location, cfg)
	if err != nil {
		return nil, err
	}

	switch compressionExt(location) {
	case ".gz":
		gzReader, err := gzip.NewReader(rc)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return &decompressor{src: rc, reader: gzReader, closer: gzReader}, nil
	case ".bz2":
		return &decompressor{src: rc, reader: bzip2.NewReader(rc)}, nil
	default:
		return rc, nil
	}
}

// decompressor wraps a decompressing reader and its source to close both.
type decompressor struct {
	src    io.Closer
	reader io.Reader
	closer io.Closer
}

func (d *decompressor) Read(p []byte) (int, error) {
	return d.reader.Read(p)
}

func (d *decompressor) Close() error {
	if d.closer != nil {
		d.closer.Close()
	}
	return d.src.Close()
}

// locationPath strips the query string from URLs so extensions can be read.
func locationPath(location string) string {
	if remote.IsRemote(location) {
		if u, err := url.Parse(location); err == nil {
			return u.Path
		}
	}
	return location
}

func compressionExt(location string) string {
	ext := strings.ToLower(path.Ext(locationPath(location)))
	if ext == ".gz" || ext == ".bz2" {
		return ext
	}
	return ""
}

// DetectDelimiter detects the delimiter based on the location's extension.
// Returns ',' for CSV sources and '\t' for TSV sources.
func DetectDelimiter(location string) rune {
	p := locationPath(location)
	// Strip compression extensions first
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
