package storage

import (
	"context"
	"errors"

	"github.com/ButyrinIA/blog/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// PostFilter narrows a post listing. The zero value matches every post.
type PostFilter struct {
	GroupID  *int64
	AuthorID *int64
	// FollowerID keeps posts whose author is followed by this user.
	FollowerID *int64
}

// Storage is the durable store. Listings are ordered newest-first
// (pub_date DESC, id DESC); comments likewise by creation time.
type Storage interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []int64) ([]*models.User, error)

	CreateGroup(ctx context.Context, group *models.Group) error
	GetGroup(ctx context.Context, id int64) (*models.Group, error)
	GetGroupBySlug(ctx context.Context, slug string) (*models.Group, error)
	GetGroupsByIDs(ctx context.Context, ids []int64) ([]*models.Group, error)
	ListGroups(ctx context.Context) ([]*models.Group, error)
	// DeleteGroup detaches the group's posts instead of deleting them.
	DeleteGroup(ctx context.Context, id int64) error

	// CreatePost assigns ID and, when zero, PubDate.
	CreatePost(ctx context.Context, post *models.Post) error
	// UpdatePost rewrites text, group and image. Author and PubDate are kept.
	UpdatePost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id int64) (*models.Post, error)
	// DeletePost orphans the post's comments.
	DeletePost(ctx context.Context, id int64) error
	CountPosts(ctx context.Context, filter PostFilter) (int, error)
	ListPosts(ctx context.Context, filter PostFilter, limit, offset int) ([]*models.Post, error)

	CreateComment(ctx context.Context, comment *models.Comment) error
	ListComments(ctx context.Context, postID int64) ([]*models.Comment, error)

	// CreateFollow reports whether a new edge was stored.
	CreateFollow(ctx context.Context, userID, authorID int64) (bool, error)
	// DeleteFollow reports whether an edge was removed.
	DeleteFollow(ctx context.Context, userID, authorID int64) (bool, error)
	IsFollowing(ctx context.Context, userID, authorID int64) (bool, error)
	CountFollowers(ctx context.Context, authorID int64) (int, error)
	CountFollowing(ctx context.Context, userID int64) (int, error)

	Close() error
}
