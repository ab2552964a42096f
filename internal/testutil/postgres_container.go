package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/jackc/pgx/v5/stdlib" // driver used by the readiness probe
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	pgOnce sync.Once
	pgDSN  string
	pgErr  error
)

// GetPostgresDSN returns the DSN of a shared PostgreSQL test container,
// started on first use. Tests are skipped when no container provider is
// available.
func GetPostgresDSN(t *testing.T) string {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	pgOnce.Do(func() {
		pgDSN, pgErr = startPostgresContainer()
	})
	if pgErr != nil {
		t.Skipf("skipping Postgres tests: %v", pgErr)
	}
	return pgDSN
}

func startPostgresContainer() (string, error) {
	// Give generous timeout in CI environments
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	postgresC, err := testcontainers.Run(
		ctx, "postgres:16",
		testcontainers.WithExposedPorts("5432/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("ready to accept connections"),
				// Actively verify SQL connectivity through the mapped port.
				wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
					return fmt.Sprintf("postgres://repolib:repolib@%s:%s/repolib_test?sslmode=disable", host, port.Port())
				}).WithQuery("SELECT 1"),
			).WithDeadline(2*time.Minute),
		),
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_USER":     "repolib",
			"POSTGRES_PASSWORD": "repolib",
			"POSTGRES_DB":       "repolib_test",
		}),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start Postgres testcontainer: %w", err)
	}

	endpoint, err := postgresC.Endpoint(ctx, "")
	if err != nil {
		_ = postgresC.Terminate(context.Background()) // best-effort cleanup
		return "", err
	}
	return fmt.Sprintf("postgres://repolib:repolib@%s/repolib_test?sslmode=disable", endpoint), nil
}
