// Package auth identifies the viewer: accounts, cookie sessions and admin
// tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username is already taken")
	ErrInvalidUsername    = errors.New("username may contain only letters, digits and @/./+/-/_ characters")
	ErrReservedUsername   = errors.New("username is reserved")
	ErrWeakPassword       = errors.New("password must be at least 8 characters long")
)

const (
	maxUsernameLen = 150
	minPasswordLen = 8
)

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// Usernames that would shadow a fixed route.
var reserved = map[string]struct{}{
	"new": {}, "follow": {}, "group": {}, "login": {}, "logout": {},
	"signup": {}, "admin": {}, "media": {}, "static": {},
}

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

type Users struct {
	store UserStore
	cost  int
}

func NewUsers(store UserStore) *Users {
	return &Users{store: store, cost: bcrypt.DefaultCost}
}

// ValidateUsername checks the characters, length and reserved names.
func ValidateUsername(username string) error {
	if username == "" || len(username) > maxUsernameLen || !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	if _, ok := reserved[strings.ToLower(username)]; ok {
		return fmt.Errorf("%w: %s", ErrReservedUsername, username)
	}
	return nil
}

func (u *Users) SignUp(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if len(password) < minPasswordLen {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), u.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{Username: username, PasswordHash: string(hash)}
	if err := u.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (u *Users) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := u.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
