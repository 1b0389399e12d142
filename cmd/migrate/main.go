package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ignite/creatorhub/internal/pkg/logger"
	_ "github.com/lib/pq"
)

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	filename   TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

func fatal(msg string, err error) {
	logger.Error(msg, "error", err.Error())
	os.Exit(1)
}

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		fatal("missing configuration", fmt.Errorf("DATABASE_URL is required"))
	}

	dir := "migrations"
	listOnly := false
	for _, a := range os.Args[1:] {
		if a == "--list" {
			listOnly = true
		} else {
			dir = a
		}
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		fatal("connect", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		fatal("ping", err)
	}

	if listOnly {
		if err := listTables(ctx, db); err != nil {
			fatal("list tables", err)
		}
		return
	}

	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		fatal("create schema_migrations", err)
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		fatal("read schema_migrations", err)
	}

	files, err := migrationFiles(dir)
	if err != nil {
		fatal("read migrations dir", err)
	}

	var okCount, skipCount int
	for _, f := range files {
		if applied[f] {
			skipCount++
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			fatal("read migration", err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		if err := apply(ctx, db, f, string(data)); err != nil {
			// Later files depend on earlier ones.
			fatal("migration "+f+" failed", err)
		}
		logger.Info("migration applied", "file", f)
		okCount++
	}
	logger.Info("migrations complete", "applied", okCount, "skipped", skipCount)
}

func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func appliedMigrations(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT filename FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		out[f] = true
	}
	return out, rows.Err()
}

// apply runs one file and records it in the same transaction.
func apply(ctx context.Context, db *sql.DB, name, content string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if _, err := tx.ExecContext(ctx, content); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, name); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}

func listTables(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `SELECT tablename FROM pg_tables WHERE schemaname = 'public' ORDER BY tablename`)
	if err != nil {
		return err
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return err
		}
		fmt.Println(" ", t)
		n++
	}
	fmt.Printf("Total: %d tables\n", n)
	return rows.Err()
}
