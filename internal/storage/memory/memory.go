package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/storage"
)

type followKey struct {
	userID   int64
	authorID int64
}

type MemoryStorage struct {
	users    map[int64]*models.User
	groups   map[int64]*models.Group
	posts    map[int64]*models.Post
	comments map[int64]*models.Comment
	follows  map[followKey]time.Time
	lastID   int64
	mu       sync.RWMutex
}

func New() *MemoryStorage {
	return &MemoryStorage{
		users:    make(map[int64]*models.User),
		groups:   make(map[int64]*models.Group),
		posts:    make(map[int64]*models.Post),
		comments: make(map[int64]*models.Comment),
		follows:  make(map[followKey]time.Time),
	}
}

// nextID must be called with mu held for writing.
func (s *MemoryStorage) nextID() int64 {
	s.lastID++
	return s.lastID
}

func (s *MemoryStorage) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == user.Username {
			return storage.ErrConflict
		}
	}
	user.ID = s.nextID()
	if user.DateJoined.IsZero() {
		user.DateJoined = time.Now()
	}
	u := *user
	s.users[u.ID] = &u
	return nil
}

func (s *MemoryStorage) GetUser(_ context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStorage) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *MemoryStorage) GetUsersByIDs(_ context.Context, ids []int64) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var users []*models.User
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			cp := *u
			users = append(users, &cp)
		}
	}
	return users, nil
}

func (s *MemoryStorage) CreateGroup(_ context.Context, group *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.groups {
		if g.Slug == group.Slug {
			return storage.ErrConflict
		}
	}
	group.ID = s.nextID()
	g := *group
	s.groups[g.ID] = &g
	return nil
}

func (s *MemoryStorage) GetGroup(_ context.Context, id int64) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *MemoryStorage) GetGroupBySlug(_ context.Context, slug string) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, g := range s.groups {
		if g.Slug == slug {
			cp := *g
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *MemoryStorage) GetGroupsByIDs(_ context.Context, ids []int64) ([]*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var groups []*models.Group
	for _, id := range ids {
		if g, ok := s.groups[id]; ok {
			cp := *g
			groups = append(groups, &cp)
		}
	}
	return groups, nil
}

func (s *MemoryStorage) ListGroups(_ context.Context) ([]*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make([]*models.Group, 0, len(s.groups))
	for _, g := range s.groups {
		cp := *g
		groups = append(groups, &cp)
	}
	slices.SortFunc(groups, func(a, b *models.Group) int {
		return cmp.Compare(a.Title, b.Title)
	})
	return groups, nil
}

func (s *MemoryStorage) DeleteGroup(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.groups, id)
	for _, p := range s.posts {
		if p.GroupID != nil && *p.GroupID == id {
			p.GroupID = nil
		}
	}
	return nil
}

func (s *MemoryStorage) CreatePost(_ context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[post.AuthorID]; !ok {
		return storage.ErrNotFound
	}
	if post.GroupID != nil {
		if _, ok := s.groups[*post.GroupID]; !ok {
			return storage.ErrNotFound
		}
	}
	post.ID = s.nextID()
	if post.PubDate.IsZero() {
		post.PubDate = time.Now()
	}
	s.posts[post.ID] = clonePost(post)
	return nil
}

func (s *MemoryStorage) UpdatePost(_ context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.posts[post.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if post.GroupID != nil {
		if _, ok := s.groups[*post.GroupID]; !ok {
			return storage.ErrNotFound
		}
	}
	updated := clonePost(post)
	updated.AuthorID = existing.AuthorID
	updated.PubDate = existing.PubDate
	s.posts[post.ID] = updated
	post.AuthorID, post.PubDate = existing.AuthorID, existing.PubDate
	return nil
}

func (s *MemoryStorage) GetPost(_ context.Context, id int64) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clonePost(p), nil
}

func (s *MemoryStorage) DeletePost(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.posts, id)
	for _, c := range s.comments {
		if c.PostID != nil && *c.PostID == id {
			c.PostID = nil
		}
	}
	return nil
}

func (s *MemoryStorage) CountPosts(_ context.Context, filter storage.PostFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.filterPosts(filter)), nil
}

func (s *MemoryStorage) ListPosts(_ context.Context, filter storage.PostFilter, limit, offset int) ([]*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	posts := s.filterPosts(filter)
	slices.SortFunc(posts, func(a, b *models.Post) int {
		if c := b.PubDate.Compare(a.PubDate); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	if offset >= len(posts) {
		return nil, nil
	}
	end := min(offset+limit, len(posts))

	result := make([]*models.Post, 0, end-offset)
	for _, p := range posts[offset:end] {
		result = append(result, clonePost(p))
	}
	return result, nil
}

// filterPosts must be called with mu held.
func (s *MemoryStorage) filterPosts(filter storage.PostFilter) []*models.Post {
	var posts []*models.Post
	for _, p := range s.posts {
		if filter.GroupID != nil && (p.GroupID == nil || *p.GroupID != *filter.GroupID) {
			continue
		}
		if filter.AuthorID != nil && p.AuthorID != *filter.AuthorID {
			continue
		}
		if filter.FollowerID != nil {
			if _, ok := s.follows[followKey{*filter.FollowerID, p.AuthorID}]; !ok {
				continue
			}
		}
		posts = append(posts, p)
	}
	return posts
}

func (s *MemoryStorage) CreateComment(_ context.Context, comment *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[comment.AuthorID]; !ok {
		return storage.ErrNotFound
	}
	if comment.PostID != nil {
		if _, ok := s.posts[*comment.PostID]; !ok {
			return storage.ErrNotFound
		}
	}
	comment.ID = s.nextID()
	if comment.Created.IsZero() {
		comment.Created = time.Now()
	}
	c := *comment
	if comment.PostID != nil {
		postID := *comment.PostID
		c.PostID = &postID
	}
	s.comments[c.ID] = &c
	return nil
}

func (s *MemoryStorage) ListComments(_ context.Context, postID int64) ([]*models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var comments []*models.Comment
	for _, c := range s.comments {
		if c.PostID != nil && *c.PostID == postID {
			cp := *c
			comments = append(comments, &cp)
		}
	}
	slices.SortFunc(comments, func(a, b *models.Comment) int {
		if c := b.Created.Compare(a.Created); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return comments, nil
}

func (s *MemoryStorage) CreateFollow(_ context.Context, userID, authorID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return false, storage.ErrNotFound
	}
	if _, ok := s.users[authorID]; !ok {
		return false, storage.ErrNotFound
	}
	key := followKey{userID, authorID}
	if _, ok := s.follows[key]; ok {
		return false, nil
	}
	s.follows[key] = time.Now()
	return true, nil
}

func (s *MemoryStorage) DeleteFollow(_ context.Context, userID, authorID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := followKey{userID, authorID}
	if _, ok := s.follows[key]; !ok {
		return false, nil
	}
	delete(s.follows, key)
	return true, nil
}

func (s *MemoryStorage) IsFollowing(_ context.Context, userID, authorID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.follows[followKey{userID, authorID}]
	return ok, nil
}

func (s *MemoryStorage) CountFollowers(_ context.Context, authorID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for k := range s.follows {
		if k.authorID == authorID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStorage) CountFollowing(_ context.Context, userID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for k := range s.follows {
		if k.userID == userID {
			n++
		}
	}
	return n, nil
}

// Close drops every record.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.users)
	clear(s.groups)
	clear(s.posts)
	clear(s.comments)
	clear(s.follows)
	return nil
}

func clonePost(p *models.Post) *models.Post {
	cp := *p
	if p.GroupID != nil {
		groupID := *p.GroupID
		cp.GroupID = &groupID
	}
	return &cp
}
