// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: MIT

package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
)

// SetupTestDB creates a connection to the test database and runs migrations.
func SetupTestDB(t *testing.T) (*DB, func()) {
	t.Helper()

	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("TEST_DB_PORT")
	if port == "" {
		port = "5434" // Default port in docker-compose.test.yml
	}

	cfg := Config{
		Host:         host,
		Port:         port,
		User:         "kodex",
		Password:     "kodex_test_password",
		Database:     "kodex_test",
		SSLMode:      "disable",
		MaxOpenConns: 10,
		MaxIdleConns: 10,
	}

	ctx := context.Background()
	db, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	tables := []string{
		"audit_logs",
		"sessions",
		"account_lockouts",
		"failed_login_attempts",
		"password_reset_tokens",
		"tokens",
		"user_roles",
		"roles",
		"user_profiles",
		"users",
	}
	for _, table := range tables {
		// Errors are ignored: a table may not exist yet if the schema has not been created.
		_, _ = db.pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
	}

	if err := db.Migrate(ctx, InitialSchema); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	cleanup := func() {
		for _, table := range tables {
			_, _ = db.pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
		}
		db.Close()
	}

	return db, cleanup
}
