// Package testing provides test helpers and in-memory doubles for the
// telephony backend
package testing

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gigline/numbers/models"
)

// TestDBConfig holds test database configuration
type TestDBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// GetTestDBConfig returns test database configuration from environment or defaults
func GetTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     getEnv("TEST_DB_HOST", "localhost"),
		Port:     getEnvAsInt("TEST_DB_PORT", 5432),
		User:     getEnv("TEST_DB_USER", "postgres"),
		Password: getEnv("TEST_DB_PASSWORD", "postgres"),
		DBName:   getEnv("TEST_DB_NAME", "numbers_test"),
		SSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}
}

// SetupTestDB creates a dedicated throwaway database for one test and runs
// the schema migrations against it
func SetupTestDB(t *testing.T) (*gorm.DB, func()) {
	t.Helper()

	config := GetTestDBConfig()

	testDBName := fmt.Sprintf("numbers_test_%d_%d", time.Now().Unix(), rand.Intn(10000))

	adminDSN := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=postgres sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.SSLMode)

	adminDB, err := gorm.Open(postgres.Open(adminDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Skipf("test database unavailable: %v", err)
	}

	if err := adminDB.Exec(fmt.Sprintf("CREATE DATABASE %s", testDBName)).Error; err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	testDSN := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, testDBName, config.SSLMode)

	testDB, err := gorm.Open(postgres.Open(testDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	if err := testDB.AutoMigrate(
		&models.PhoneNumberRecord{},
		&models.RequirementGroup{},
	); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	cleanup := func() {
		TeardownTestDB(t, testDB, adminDB, testDBName)
	}

	return testDB, cleanup
}

// TeardownTestDB drops the test database
func TeardownTestDB(t *testing.T, testDB, adminDB *gorm.DB, testDBName string) {
	t.Helper()

	if sqlDB, err := testDB.DB(); err == nil {
		sqlDB.Close()
	}

	adminDB.Exec(fmt.Sprintf(`
		SELECT pg_terminate_backend(pid)
		FROM pg_stat_activity
		WHERE datname = '%s' AND pid <> pg_backend_pid()`, testDBName))

	if err := adminDB.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %s", testDBName)).Error; err != nil {
		t.Logf("failed to drop test database %s: %v", testDBName, err)
	}

	if sqlDB, err := adminDB.DB(); err == nil {
		sqlDB.Close()
	}
}

// ClearAllTables truncates every table between test cases
func ClearAllTables(t *testing.T, db *gorm.DB) {
	t.Helper()

	tables := []string{
		"phone_numbers",
		"requirement_groups",
	}

	for _, table := range tables {
		if err := db.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)).Error; err != nil {
			t.Fatalf("failed to truncate table %s: %v", table, err)
		}
	}
}

// TestWithDB runs a test function against a fresh database
func TestWithDB(t *testing.T, testFunc func(t *testing.T, db *gorm.DB)) {
	t.Helper()

	db, cleanup := SetupTestDB(t)
	defer cleanup()

	testFunc(t, db)
}

// CreateTestContext returns a context with a deadline suitable for store calls
func CreateTestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
