//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"fleetmaster/config"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresTestContainer holds a running Postgres container for testing
type PostgresTestContainer struct {
	Container testcontainers.Container
	DSN       string
}

// NewPostgresTestContainer creates a new Postgres container for testing.
// It returns the container and a cleanup function that should be called
// when the test is complete.
func NewPostgresTestContainer(t *testing.T) (*PostgresTestContainer, func()) {
	t.Helper()

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("fleetmaster_test"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		pgContainer.Terminate(ctx)
		t.Fatalf("failed to get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	}

	return &PostgresTestContainer{
		Container: pgContainer,
		DSN:       connStr,
	}, cleanup
}

// SkipIfNoDocker skips the test if Docker is not available
func SkipIfNoDocker(t *testing.T) {
	t.Helper()

	defer func() {
		if r := recover(); r != nil {
			t.Skipf("Docker not available (panic recovered): %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
		return
	}
	defer provider.Close()

	_, err = provider.Client().Ping(ctx)
	if err != nil {
		t.Skipf("Docker not responding, skipping integration test: %v", err)
	}
}

// WithPostgresStore is a test helper that creates a Postgres container,
// initializes a store, runs the test function, and cleans up.
func WithPostgresStore(t *testing.T, testFn func(t *testing.T, store *PostgresStore)) {
	t.Helper()

	SkipIfNoDocker(t)

	container, cleanup := NewPostgresTestContainer(t)
	defer cleanup()

	cfg := &config.DatabaseConfig{
		Driver: "postgres",
		DSN:    container.DSN,
	}
	store, err := NewPostgresStore(cfg)
	if err != nil {
		t.Fatalf("failed to create PostgresStore: %v", err)
	}
	defer store.Close()

	testFn(t, store)
}
