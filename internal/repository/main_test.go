package repository

import (
	"log"
	"os"
	"testing"

	"ripple/internal/config"
	"ripple/internal/database"

	"gorm.io/gorm"
)

// testDB backs the referential-integrity tests. It stays nil when no
// Postgres is reachable; those tests skip themselves in that case and
// the sqlmock tests run either way.
var testDB *gorm.DB

func TestMain(m *testing.M) {
	os.Setenv("APP_ENV", "test")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("integration tests skipped: failed to load test config: %v", err)
		os.Exit(m.Run())
	}

	testDB, err = database.Connect(cfg)
	if err != nil {
		log.Printf("integration tests skipped: test database unavailable (start Postgres to run them): %v", err)
		testDB = nil
	}

	code := m.Run()

	if testDB != nil {
		truncateTables(testDB)
	}
	os.Exit(code)
}

func truncateTables(db *gorm.DB) {
	db.Exec("TRUNCATE TABLE comments, posts, users CASCADE")
}
