// Command migrate applies the SQL files under migrations/ in lexical
// order. It is idempotent: every statement in the schema uses IF NOT
// EXISTS guards, so re-running against an existing database is safe.
package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"stock-ledger/internal/db"
)

func main() {
	_ = godotenv.Load()
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	dir := "migrations"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", dir).Msg("read migrations directory")
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		logger.Fatal().Str("dir", dir).Msg("no .sql files found")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("database")
	}
	defer pool.Close()

	for _, f := range files {
		sql, err := os.ReadFile(f)
		if err != nil {
			logger.Fatal().Err(err).Str("file", f).Msg("read migration")
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			logger.Fatal().Err(err).Str("file", f).Msg("apply migration")
		}
		logger.Info().Str("file", f).Msg("applied")
	}
	logger.Info().Int("files", len(files)).Msg("migrations complete")
}
