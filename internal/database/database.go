// Package database manages the embedded engine that backs a loaded dataset:
// opening SQLite or DuckDB, materializing relations, and classifying errors.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DB wraps an engine connection with additional metadata.
// The embedded *sql.DB loads data; Reader serves user queries.
type DB struct {
	*sql.DB
	Dialect       Dialect
	Path          string
	IsTemp        bool
	ShouldCleanup bool

	reader *sql.DB
	tmpDir string
}

// Open opens or creates a database for the given engine.
// If dbPath is empty, a database inside a fresh temporary directory is used
// and removed again by Close.
func Open(engine, dbPath string) (*DB, error) {
	dialect, err := DialectFor(engine)
	if err != nil {
		return nil, err
	}

	d := &DB{Dialect: dialect}
	if dbPath == "" {
		// DuckDB refuses to open a pre-created empty file, so reserve a
		// directory and let the engine create the file itself.
		dir, err := os.MkdirTemp("", "sqlassist-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create temporary database: %w", err)
		}
		d.tmpDir = dir
		d.Path = filepath.Join(dir, "session.db")
		d.IsTemp = true
		d.ShouldCleanup = true
	} else {
		d.Path = dbPath

		dbDir := filepath.Dir(dbPath)
		if dbDir != "." && dbDir != "" {
			if err := os.MkdirAll(dbDir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
	}

	conn, err := sql.Open(dialect.Driver(), d.Path)
	if err != nil {
		d.removeTemp()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		d.removeTemp()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	d.DB = conn

	reader, err := dialect.OpenReader(conn, d.Path)
	if err != nil {
		conn.Close()
		d.removeTemp()
		return nil, fmt.Errorf("failed to open query connection: %w", err)
	}
	d.reader = reader

	return d, nil
}

// Reader returns the pool user queries run on. It cannot attach other
// databases or reach files outside the database. On SQLite it also refuses
// writes; DuckDB shares the primary pool, so callers that must not write
// roll back their transaction.
func (d *DB) Reader() *sql.DB {
	return d.reader
}

// Cleanup removes the temporary database if applicable.
func (d *DB) Cleanup() error {
	if !d.ShouldCleanup {
		return nil
	}
	if err := d.removeTemp(); err != nil {
		return fmt.Errorf("failed to remove temporary database %s: %w", d.Path, err)
	}
	return nil
}

func (d *DB) removeTemp() error {
	if d.tmpDir == "" {
		return nil
	}
	return os.RemoveAll(d.tmpDir)
}

// Close closes the connection and cleans up if necessary.
func (d *DB) Close() error {
	var readerErr error
	if d.reader != nil && d.reader != d.DB {
		readerErr = d.reader.Close()
	}
	return errors.Join(readerErr, d.DB.Close(), d.Cleanup())
}
