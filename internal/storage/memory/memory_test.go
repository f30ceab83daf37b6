package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/storage"
	"github.com/ButyrinIA/blog/internal/storage/storagetest"
)

func TestMemoryStorage(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		return New()
	})
}

func TestMemoryStorageReturnsCopies(t *testing.T) {
	store := New()
	ctx := context.Background()

	user := &models.User{Username: "alice"}
	assert.NoError(t, store.CreateUser(ctx, user))
	post := &models.Post{Text: "original", AuthorID: user.ID}
	assert.NoError(t, store.CreatePost(ctx, post))

	post.Text = "mutated by caller"

	got, err := store.GetPost(ctx, post.ID)
	assert.NoError(t, err)
	assert.Equal(t, "original", got.Text)
}

func TestMemoryStorageClose(t *testing.T) {
	store := New()
	ctx := context.Background()

	user := &models.User{Username: "alice"}
	assert.NoError(t, store.CreateUser(ctx, user))
	post := &models.Post{Text: "text", AuthorID: user.ID}
	assert.NoError(t, store.CreatePost(ctx, post))

	assert.NoError(t, store.Close(), "closing the store must not fail")

	_, err := store.GetPost(ctx, post.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound, "the store is empty after Close")
}
