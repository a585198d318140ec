package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tourney/internal/config"
	"tourney/internal/db"
	"tourney/internal/logging"

	"github.com/jmoiron/sqlx"
)

const downMarker = "-- +migrate Down"

func main() {
	dir := flag.String("dir", "migrations", "directory holding numbered .sql files")
	down := flag.Bool("down", false, "roll back the most recently applied migration")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New("migrate", cfg.LogLevel)
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer database.Close()

	ctx := context.Background()
	if _, err := database.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (filename text primary key, applied_at timestamptz default now())`); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure schema_migrations")
	}

	if *down {
		var filename string
		if err := database.GetContext(ctx, &filename, `SELECT filename FROM schema_migrations ORDER BY filename DESC LIMIT 1`); err != nil {
			logger.Fatal().Err(err).Msg("no applied migration to roll back")
		}
		err := db.WithTx(ctx, database, func(tx *sqlx.Tx) error {
			if err := applyFile(ctx, tx, filepath.Join(*dir, filename), false); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE filename = $1`, filename)
			return err
		})
		if err != nil {
			logger.Fatal().Err(err).Str("file", filename).Msg("rollback failed")
		}
		logger.Info().Str("file", filename).Msg("rolled back")
		return
	}

	files, err := filepath.Glob(filepath.Join(*dir, "*.sql"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to read migrations")
	}
	sort.Strings(files)

	for _, file := range files {
		filename := filepath.Base(file)
		var exists bool
		if err := database.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, filename); err != nil {
			logger.Fatal().Err(err).Msg("failed to read migration state")
		}
		if exists {
			continue
		}
		// Each file applies atomically with its bookkeeping row.
		err := db.WithTx(ctx, database, func(tx *sqlx.Tx) error {
			if err := applyFile(ctx, tx, file, true); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, filename)
			return err
		})
		if err != nil {
			logger.Fatal().Err(err).Str("file", filename).Msg("migration failed")
		}
		logger.Info().Str("file", filename).Msg("applied")
	}
}

func applyFile(ctx context.Context, tx *sqlx.Tx, path string, up bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	upSQL, downSQL, _ := strings.Cut(string(content), downMarker)
	section := upSQL
	if !up {
		section = downSQL
	}
	for _, stmt := range splitSQL(section) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func splitSQL(sqlText string) []string {
	var statements []string
	var current strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(sqlText))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		current.WriteString(line)
		current.WriteRune('\n')
		if strings.HasSuffix(strings.TrimSpace(line), ";") {
			statements = append(statements, current.String())
			current.Reset()
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		statements = append(statements, current.String())
	}
	return statements
}
