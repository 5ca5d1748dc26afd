// Package helpers provides database connection and cleanup utilities for
// netsweep integration tests.
package helpers

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/anstrom/netsweep/internal/db"
)

// Constants for database testing.
const (
	defaultPostgreSQLPort = 5432
	dbConnectionTimeout   = 5 * time.Second
	retryDelay            = 500 * time.Millisecond
)

// TestDatabaseConfig returns the connection settings for the integration
// database, read from TEST_DB_* variables.
func TestDatabaseConfig() *db.Config {
	cfg := db.DefaultConfig()
	cfg.Host = getEnvOrDefault("TEST_DB_HOST", "localhost")
	cfg.Port = getEnvIntOrDefault("TEST_DB_PORT", defaultPostgreSQLPort)
	cfg.Database = getEnvOrDefault("TEST_DB_NAME", "netsweep_test")
	cfg.Username = getEnvOrDefault("TEST_DB_USER", "test_user")
	cfg.Password = getEnvOrDefault("TEST_DB_PASSWORD", "test_password")
	cfg.MaxOpenConns = 5
	cfg.MaxIdleConns = 2
	cfg.ConnMaxLifetime = time.Minute
	cfg.ConnMaxIdleTime = time.Minute
	return &cfg
}

// ConnectToTestDatabase connects and applies migrations, retrying until
// timeout while the server starts up.
func ConnectToTestDatabase(ctx context.Context, timeout time.Duration) (*db.DB, error) {
	cfg := TestDatabaseConfig()
	deadline := time.Now().Add(timeout)

	for {
		attemptCtx, cancel := context.WithTimeout(ctx, dbConnectionTimeout)
		database, err := db.ConnectAndMigrate(attemptCtx, cfg)
		cancel()
		if err == nil {
			return database, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("test database %s@%s:%d not available: %w",
				cfg.Database, cfg.Host, cfg.Port, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

// CleanupNetwork removes every scan, history entry and device inside
// network. Tests confine themselves to documentation ranges so this never
// touches real data.
func CleanupNetwork(ctx context.Context, database *db.DB, network string) error {
	queries := []string{
		`DELETE FROM scan_history WHERE device_id IN
			(SELECT id FROM devices WHERE ip_address <<= $1::cidr)`,
		`DELETE FROM scan_history WHERE scan_id IN
			(SELECT id FROM scans WHERE ip_range <<= $1::cidr)`,
		`DELETE FROM devices WHERE ip_address <<= $1::cidr`,
		`DELETE FROM scans WHERE ip_range <<= $1::cidr`,
	}
	for _, query := range queries {
		if _, err := database.ExecContext(ctx, query, network); err != nil {
			return fmt.Errorf("cleanup of %s failed: %w", network, err)
		}
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
