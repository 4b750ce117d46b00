package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/stayhub/checkout-gateway/internal/config"
	"github.com/stayhub/checkout-gateway/internal/database"
)

func main() {
	var (
		dbURLFlag     string
		migrationsDir string
		migrate       bool
		purgeDays     int
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.StringVar(&migrationsDir, "migrations", "migrations", "directory holding the audit schema migrations")
	flag.BoolVar(&migrate, "migrate", false, "apply the audit schema migrations")
	flag.IntVar(&purgeDays, "purge-days", 0, "delete checkout audits older than this many days")
	flag.Parse()

	// Try loading .env from current working directory (optional)
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}
	if !migrate && purgeDays <= 0 {
		log.Fatal("nothing to do: pass -migrate and/or -purge-days")
	}

	// Build minimal database config without loading full app config
	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     2,
		MaxIdleConnections: 1,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if migrate {
		files, err := filepath.Glob(filepath.Join(migrationsDir, "*.sql"))
		if err != nil {
			log.Fatalf("failed to list migrations: %v", err)
		}
		sort.Strings(files)

		for _, file := range files {
			sqlText, err := os.ReadFile(file)
			if err != nil {
				log.Fatalf("failed to read %s: %v", file, err)
			}
			if _, err := db.ExecContext(ctx, string(sqlText)); err != nil {
				log.Fatalf("failed to apply %s: %v", file, err)
			}
			fmt.Printf("applied %s\n", filepath.Base(file))
		}
	}

	if purgeDays > 0 {
		logger := logrus.New()
		repo := database.NewCheckoutAuditRepository(db, logger)

		deleted, err := repo.PurgeOlderThan(ctx, purgeDays)
		if err != nil {
			log.Fatalf("failed to purge audits: %v", err)
		}
		fmt.Printf("deleted %d checkout audits older than %d days\n", deleted, purgeDays)
	}
}
