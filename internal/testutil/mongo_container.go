package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	mongoOnce sync.Once
	mongoURI  string
	mongoErr  error
)

// GetMongoURI returns the URI of a shared MongoDB test container, started on
// first use. Tests are skipped when no container provider is available.
func GetMongoURI(t *testing.T) string {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	mongoOnce.Do(func() {
		mongoURI, mongoErr = startMongoContainer()
	})
	if mongoErr != nil {
		t.Skipf("skipping Mongo tests: %v", mongoErr)
	}
	return mongoURI
}

func startMongoContainer() (uri string, err error) {
	// Give generous timeout in CI environments
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("starting MongoDB testcontainer panicked: %v", r)
		}
	}()

	// The container is shared by every test in the package and is reaped
	// by testcontainers when the process exits.
	mongoC, err := testcontainers.Run(
		ctx, "mongo:7",
		testcontainers.WithExposedPorts("27017/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("27017/tcp").WithStartupTimeout(2*time.Minute),
		),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start MongoDB testcontainer: %w", err)
	}

	endpoint, err := mongoC.Endpoint(ctx, "")
	if err != nil {
		_ = mongoC.Terminate(context.Background()) // best-effort cleanup
		return "", err
	}
	return fmt.Sprintf("mongodb://%s", endpoint), nil
}
