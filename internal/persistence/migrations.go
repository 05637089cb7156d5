package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Migrator is the subset of pgxpool.Pool that RunMigrations needs.
type Migrator interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const (
	ensureMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    name TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	selectAppliedMigrations = "SELECT name FROM schema_migrations"
	recordMigration         = "INSERT INTO schema_migrations (name) VALUES ($1)"
)

// RunMigrations applies every *.sql file in dir that has not been recorded yet, in name order.
// It returns the names applied by this call.
func RunMigrations(ctx context.Context, db Migrator, dir string, logger *zap.Logger) ([]string, error) {
	if db == nil {
		logger.Warn("no postgres pool available; skipping migrations")
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	filenames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		filenames = append(filenames, entry.Name())
	}
	sort.Strings(filenames)

	if _, err := db.Exec(ctx, ensureMigrationsTable); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return nil, err
	}

	var ran []string
	for _, name := range filenames {
		if applied[name] {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return ran, fmt.Errorf("read migration %s: %w", name, err)
		}

		logger.Info("applying migration", zap.String("file", name))
		if _, err := db.Exec(ctx, string(content)); err != nil {
			return ran, fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := db.Exec(ctx, recordMigration, name); err != nil {
			return ran, fmt.Errorf("record migration %s: %w", name, err)
		}
		ran = append(ran, name)
	}

	logger.Info("migrations applied", zap.Int("count", len(ran)), zap.Int("skipped", len(filenames)-len(ran)))
	return ran, nil
}

func appliedMigrations(ctx context.Context, db Migrator) (map[string]bool, error) {
	rows, err := db.Query(ctx, selectAppliedMigrations)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()
	applied := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}
