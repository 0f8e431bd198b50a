package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sqlassist/sqlassist-go/internal/assistant"
	"github.com/sqlassist/sqlassist-go/internal/config"
	"github.com/sqlassist/sqlassist-go/internal/database"
	"github.com/sqlassist/sqlassist-go/internal/query"
	"github.com/sqlassist/sqlassist-go/internal/translator"
)

// session bundles the database and assistant of one command.
type session struct {
	db       *database.DB
	asst     *assistant.Assistant
	progress *ProgressTracker
}

type sessionOptions struct {
	// requireTranslator fails the session when no translator can be built;
	// otherwise questions are just disabled.
	requireTranslator bool
	// requireDataset fails the session when there is nothing to load or
	// attach; otherwise it starts empty.
	requireDataset bool
	debug          bool
}

// openSession opens the database, builds the assistant and loads or attaches
// the dataset.
func openSession(ctx context.Context, cfg *config.Config, settings *config.Settings, opts sessionOptions) (*session, error) {
	debug := opts.debug
	db, err := database.Open(cfg.Engine, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	sess := &session{db: db}

	if db.IsTemp {
		infoColor.Fprintf(statusOut, "Using temporary %s database: %s\n", db.Dialect.Name(), db.Path)
	} else {
		infoColor.Fprintf(statusOut, "Opening %s database: %s\n", db.Dialect.Name(), db.Path)
	}

	execOpts := []query.Option{query.WithDebug(debug)}
	if cfg.NoRepair || !settings.RepairEnabled {
		execOpts = append(execOpts, query.WithoutRepair())
	} else {
		execOpts = append(execOpts, query.WithRepairer(query.NewRepairer(settings.RepairStrategies()...)))
	}
	executor := query.NewExecutor(db, execOpts...)

	tr, err := newTranslator(cfg, settings)
	if err != nil {
		if opts.requireTranslator {
			sess.Close()
			return nil, err
		}
		if !errors.Is(err, translator.ErrMissingAPIKey) {
			warnColor.Fprintf(statusOut, "Warning: %v\n", err)
		}
	}

	sess.progress = NewProgressTracker(!debug && cfg.InputFile != "" && isTerminal(os.Stderr), statusOut)
	sess.asst = assistant.New(db, executor, tr, assistant.Options{
		TableName:    cfg.TableName,
		Delimiter:    cfg.Delimiter,
		HasHeader:    cfg.HasHeader,
		QueryTimeout: settings.QueryTimeout(),
		Remote:       settings.RemoteConfig(),
		Progress:     sess.progress.Callback(cfg.InputFile, cfg.TableName),
		Debug:        debug,
	})

	if err := sess.loadDataset(ctx, cfg, opts.requireDataset); err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}

// newTranslator builds the backend named in settings.
func newTranslator(cfg *config.Config, settings *config.Settings) (translator.Translator, error) {
	tr, err := translator.New(settings.TranslatorConfig(cfg.Engine))
	if err != nil {
		return nil, fmt.Errorf("translator unavailable: %w", err)
	}
	return tr, nil
}

func (s *session) loadDataset(ctx context.Context, cfg *config.Config, required bool) error {
	if cfg.InputFile == "" {
		if !required && cfg.DBPath == "" {
			return nil
		}
		rel, err := s.asst.Attach(ctx)
		if err != nil {
			if required {
				return err
			}
			warnColor.Fprintf(statusOut, "Warning: %v\n", err)
			return nil
		}
		infoColor.Fprintf(statusOut, "Using table '%s' (%d rows)\n", rel.Name, rel.RowCount)
		return nil
	}

	infoColor.Fprintf(statusOut, "Loading %s → table '%s'\n", cfg.InputFile, cfg.TableName)
	rel, err := s.asst.Load(ctx, cfg.InputFile)
	if err != nil {
		s.progress.Fail(cfg.InputFile, err)
		s.progress.Stop()
		return err
	}
	s.progress.Finish(cfg.InputFile, rel.Name, int64(rel.RowCount))
	s.progress.Stop()

	successColor.Fprintf(statusOut, "✓ Loaded %d rows into table '%s'\n", rel.RowCount, rel.Name)
	return nil
}

// Close closes the database, removing it when it was temporary.
func (s *session) Close() {
	temp := s.db.ShouldCleanup
	if err := s.db.Close(); err != nil {
		warnColor.Fprintf(statusOut, "Warning: %v\n", err)
		return
	}
	if temp {
		infoColor.Fprintf(statusOut, "Cleaned up temporary database\n")
	}
}
