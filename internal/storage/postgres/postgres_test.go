package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/storage"
	"github.com/ButyrinIA/blog/internal/storage/storagetest"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests are skipped in -short mode")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "user",
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "blog",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}
	postgresC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start the postgres container")
	t.Cleanup(func() { _ = postgresC.Terminate(context.Background()) })

	host, err := postgresC.Host(ctx)
	require.NoError(t, err)
	port, err := postgresC.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return "postgres://user:password@" + host + ":" + port.Port() + "/blog?sslmode=disable"
}

func truncate(t *testing.T, s *PostgresStorage) {
	t.Helper()
	_, err := s.pool.Exec(context.Background(),
		`TRUNCATE follows, comments, posts, blog_groups, users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}

func TestPostgresStorage(t *testing.T) {
	dsn := startPostgres(t)

	store, err := New(context.Background(), dsn)
	require.NoError(t, err, "failed to initialise PostgresStorage")
	defer store.Close()

	storagetest.Run(t, func(t *testing.T) storage.Storage {
		truncate(t, store)
		return store
	})

	t.Run("SchemaIsIdempotent", func(t *testing.T) {
		again, err := New(context.Background(), dsn)
		require.NoError(t, err)
		assert.NoError(t, again.Close())
	})

	t.Run("CreatePostUnknownAuthor", func(t *testing.T) {
		truncate(t, store)
		err := store.CreatePost(context.Background(), &models.Post{Text: "orphan", AuthorID: 42})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}
