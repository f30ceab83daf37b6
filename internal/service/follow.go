package service

import (
	"context"
	"fmt"

	"github.com/ButyrinIA/blog/internal/metrics"
)

type FollowResult int

const (
	Followed FollowResult = iota + 1
	AlreadyFollowing
	Unfollowed
	NotFollowing
)

func (r FollowResult) String() string {
	switch r {
	case Followed:
		return "followed"
	case AlreadyFollowing:
		return "already following"
	case Unfollowed:
		return "unfollowed"
	case NotFollowing:
		return "not following"
	default:
		return "unknown"
	}
}

// Follow makes viewerID follow username. Following twice keeps one edge.
func (b *Blog) Follow(ctx context.Context, viewerID int64, username string) (FollowResult, error) {
	author, err := b.store.GetUserByUsername(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("user %q: %w", username, err)
	}
	if author.ID == viewerID {
		return 0, ErrSelfFollow
	}

	created, err := b.store.CreateFollow(ctx, viewerID, author.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to follow %q: %w", username, err)
	}
	if !created {
		return AlreadyFollowing, nil
	}
	metrics.FollowChanged(metrics.OpFollow)
	return Followed, nil
}

// Unfollow removes the edge if there is one.
func (b *Blog) Unfollow(ctx context.Context, viewerID int64, username string) (FollowResult, error) {
	author, err := b.store.GetUserByUsername(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("user %q: %w", username, err)
	}

	deleted, err := b.store.DeleteFollow(ctx, viewerID, author.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to unfollow %q: %w", username, err)
	}
	if !deleted {
		return NotFollowing, nil
	}
	metrics.FollowChanged(metrics.OpUnfollow)
	return Unfollowed, nil
}
