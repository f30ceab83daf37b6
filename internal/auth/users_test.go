package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ButyrinIA/blog/internal/storage/memory"
)

func newUsers() *Users {
	u := NewUsers(memory.New())
	u.cost = bcrypt.MinCost
	return u
}

func TestSignUpAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	users := newUsers()

	created, err := users.SignUp(ctx, " leo ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "leo", created.Username)
	assert.NotEqual(t, "correct horse", created.PasswordHash)

	got, err := users.Authenticate(ctx, "leo", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = users.Authenticate(ctx, "leo", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = users.Authenticate(ctx, "nobody", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = users.SignUp(ctx, "leo", "another password")
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestSignUpRejects(t *testing.T) {
	ctx := context.Background()
	users := newUsers()

	tests := []struct {
		username, password string
		want               error
	}{
		{"new", "long enough", ErrReservedUsername},
		{"Follow", "long enough", ErrReservedUsername},
		{"has space", "long enough", ErrInvalidUsername},
		{"slash/name", "long enough", ErrInvalidUsername},
		{"", "long enough", ErrInvalidUsername},
		{"fine", "short", ErrWeakPassword},
	}
	for _, tt := range tests {
		_, err := users.SignUp(ctx, tt.username, tt.password)
		assert.ErrorIs(t, err, tt.want, "username=%q", tt.username)
	}
}
