package service

import (
	"context"
	"fmt"
	"time"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/samber/lo"

	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/storage"
)

const loaderWait = time.Millisecond

// Loaders batch the author and group lookups of one request.
type Loaders struct {
	Users  *dataloader.Loader[int64, *models.User]
	Groups *dataloader.Loader[int64, *models.Group]
}

type loadersKey struct{}

func NewLoaders(store storage.Storage) *Loaders {
	return &Loaders{
		Users: dataloader.NewBatchedLoader(batchUsers(store),
			dataloader.WithWait[int64, *models.User](loaderWait)),
		Groups: dataloader.NewBatchedLoader(batchGroups(store),
			dataloader.WithWait[int64, *models.Group](loaderWait)),
	}
}

// WithLoaders attaches request scoped loaders to ctx.
func WithLoaders(ctx context.Context, l *Loaders) context.Context {
	return context.WithValue(ctx, loadersKey{}, l)
}

func (b *Blog) loaders(ctx context.Context) *Loaders {
	if l, ok := ctx.Value(loadersKey{}).(*Loaders); ok && l != nil {
		return l
	}
	return NewLoaders(b.store)
}

func batchUsers(store storage.Storage) dataloader.BatchFunc[int64, *models.User] {
	return func(ctx context.Context, keys []int64) []*dataloader.Result[*models.User] {
		users, err := store.GetUsersByIDs(ctx, keys)
		byID := lo.KeyBy(users, func(u *models.User) int64 { return u.ID })
		return lo.Map(keys, func(id int64, _ int) *dataloader.Result[*models.User] {
			if err != nil {
				return &dataloader.Result[*models.User]{Error: err}
			}
			if u, ok := byID[id]; ok {
				return &dataloader.Result[*models.User]{Data: u}
			}
			return &dataloader.Result[*models.User]{Error: fmt.Errorf("user %d: %w", id, storage.ErrNotFound)}
		})
	}
}

func batchGroups(store storage.Storage) dataloader.BatchFunc[int64, *models.Group] {
	return func(ctx context.Context, keys []int64) []*dataloader.Result[*models.Group] {
		groups, err := store.GetGroupsByIDs(ctx, keys)
		byID := lo.KeyBy(groups, func(g *models.Group) int64 { return g.ID })
		return lo.Map(keys, func(id int64, _ int) *dataloader.Result[*models.Group] {
			if err != nil {
				return &dataloader.Result[*models.Group]{Error: err}
			}
			if g, ok := byID[id]; ok {
				return &dataloader.Result[*models.Group]{Data: g}
			}
			return &dataloader.Result[*models.Group]{Error: fmt.Errorf("group %d: %w", id, storage.ErrNotFound)}
		})
	}
}

func loadAll[V any](ctx context.Context, l *dataloader.Loader[int64, V], ids []int64) (map[int64]V, error) {
	out := make(map[int64]V, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	values, errs := l.LoadMany(ctx, ids)()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	for i, id := range ids {
		out[id] = values[i]
	}
	return out, nil
}

func (b *Blog) hydrate(ctx context.Context, posts []*models.Post) ([]*models.PostView, error) {
	l := b.loaders(ctx)

	authorIDs := lo.Uniq(lo.Map(posts, func(p *models.Post, _ int) int64 { return p.AuthorID }))
	groupIDs := lo.Uniq(lo.FilterMap(posts, func(p *models.Post, _ int) (int64, bool) {
		if p.GroupID == nil {
			return 0, false
		}
		return *p.GroupID, true
	}))

	authors, err := loadAll(ctx, l.Users, authorIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load authors: %w", err)
	}
	groups, err := loadAll(ctx, l.Groups, groupIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load groups: %w", err)
	}

	return lo.Map(posts, func(p *models.Post, _ int) *models.PostView {
		view := &models.PostView{Post: p, Author: authors[p.AuthorID]}
		if p.GroupID != nil {
			view.Group = groups[*p.GroupID]
		}
		return view
	}), nil
}

func (b *Blog) hydrateComments(ctx context.Context, comments []*models.Comment) ([]*models.CommentView, error) {
	authorIDs := lo.Uniq(lo.Map(comments, func(c *models.Comment, _ int) int64 { return c.AuthorID }))
	authors, err := loadAll(ctx, b.loaders(ctx).Users, authorIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load comment authors: %w", err)
	}
	return lo.Map(comments, func(c *models.Comment, _ int) *models.CommentView {
		return &models.CommentView{Comment: c, Author: authors[c.AuthorID]}
	}), nil
}
