// Package testdb provides a Postgres with pgvector for integration tests.
package testdb

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const image = "pgvector/pgvector:pg16"

// URL returns BOOKSAGE_TEST_DATABASE_URL when set. Otherwise it starts a
// throwaway container for the test, or skips when Docker is unavailable.
func URL(t *testing.T) string {
	t.Helper()
	if url := os.Getenv("BOOKSAGE_TEST_DATABASE_URL"); url != "" {
		return url
	}
	if testing.Short() {
		t.Skip("postgres container skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, image,
		postgres.WithDatabase("booksage"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "failed to start postgres container")

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return url
}
