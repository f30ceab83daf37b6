// Package service implements the blog: listings, the follow graph, posts
// and comments.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ButyrinIA/blog/internal/forms"
	"github.com/ButyrinIA/blog/internal/media"
	"github.com/ButyrinIA/blog/internal/metrics"
	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/paginate"
	"github.com/ButyrinIA/blog/internal/storage"
)

var (
	ErrSelfFollow   = errors.New("users cannot follow themselves")
	ErrForbidden    = errors.New("only the author may change a post")
	ErrInvalidGroup = errors.New("invalid group")
)

var slugPattern = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)

const (
	maxTitleLen = 200
	maxSlugLen  = 50
)

type Blog struct {
	store   storage.Storage
	media   media.Store
	logger  *slog.Logger
	perPage int
}

func New(store storage.Storage, mediaStore media.Store, logger *slog.Logger) *Blog {
	return &Blog{
		store:   store,
		media:   mediaStore,
		logger:  logger.With("component", "service.Blog"),
		perPage: paginate.DefaultPerPage,
	}
}

// Store exposes the underlying storage for request scoped helpers.
func (b *Blog) Store() storage.Storage { return b.store }

// Health fails when the store cannot answer a query.
func (b *Blog) Health(ctx context.Context) error {
	_, err := b.store.CountPosts(ctx, storage.PostFilter{})
	return err
}

func (b *Blog) listPosts(ctx context.Context, filter storage.PostFilter, page string) (*paginate.Page[*models.PostView], error) {
	count, err := b.store.CountPosts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count posts: %w", err)
	}
	w := paginate.Resolve(page, count, b.perPage)

	posts, err := b.store.ListPosts(ctx, filter, w.Limit, w.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	views, err := b.hydrate(ctx, posts)
	if err != nil {
		return nil, err
	}
	return paginate.New(views, w, count), nil
}

// ListAll pages through every post, newest first.
func (b *Blog) ListAll(ctx context.Context, page string) (*paginate.Page[*models.PostView], error) {
	return b.listPosts(ctx, storage.PostFilter{}, page)
}

func (b *Blog) ListByGroup(ctx context.Context, slug, page string) (*models.Group, *paginate.Page[*models.PostView], error) {
	group, err := b.store.GetGroupBySlug(ctx, slug)
	if err != nil {
		return nil, nil, fmt.Errorf("group %q: %w", slug, err)
	}
	posts, err := b.listPosts(ctx, storage.PostFilter{GroupID: &group.ID}, page)
	if err != nil {
		return nil, nil, err
	}
	return group, posts, nil
}

// Profile is an author page as seen by one viewer.
type Profile struct {
	Author *models.User
	// ViewerID is 0 for anonymous viewers.
	ViewerID      int64
	PostCount     int
	Followers     int
	Following     int
	ViewerFollows bool
	Page          *paginate.Page[*models.PostView]
}

func (b *Blog) profile(ctx context.Context, viewerID int64, author *models.User) (*Profile, error) {
	p := &Profile{Author: author, ViewerID: viewerID}
	var err error

	if p.PostCount, err = b.store.CountPosts(ctx, storage.PostFilter{AuthorID: &author.ID}); err != nil {
		return nil, fmt.Errorf("failed to count posts: %w", err)
	}
	if p.Followers, err = b.store.CountFollowers(ctx, author.ID); err != nil {
		return nil, fmt.Errorf("failed to count followers: %w", err)
	}
	if p.Following, err = b.store.CountFollowing(ctx, author.ID); err != nil {
		return nil, fmt.Errorf("failed to count following: %w", err)
	}
	if viewerID != 0 && viewerID != author.ID {
		if p.ViewerFollows, err = b.store.IsFollowing(ctx, viewerID, author.ID); err != nil {
			return nil, fmt.Errorf("failed to check follow: %w", err)
		}
	}
	return p, nil
}

// ListByAuthor returns the author's profile with one page of their posts.
// viewerID is 0 for anonymous viewers.
func (b *Blog) ListByAuthor(ctx context.Context, viewerID int64, username, page string) (*Profile, error) {
	author, err := b.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("user %q: %w", username, err)
	}
	p, err := b.profile(ctx, viewerID, author)
	if err != nil {
		return nil, err
	}
	if p.Page, err = b.listPosts(ctx, storage.PostFilter{AuthorID: &author.ID}, page); err != nil {
		return nil, err
	}
	return p, nil
}

// ListFeed pages through posts by the authors viewerID follows.
func (b *Blog) ListFeed(ctx context.Context, viewerID int64, page string) (*paginate.Page[*models.PostView], error) {
	return b.listPosts(ctx, storage.PostFilter{FollowerID: &viewerID}, page)
}

func (b *Blog) Groups(ctx context.Context) ([]*models.Group, error) {
	return b.store.ListGroups(ctx)
}

func (b *Blog) CreateGroup(ctx context.Context, title, slug, description string) (*models.Group, error) {
	title, slug = strings.TrimSpace(title), strings.TrimSpace(slug)
	switch {
	case title == "" || len(title) > maxTitleLen:
		return nil, fmt.Errorf("%w: title must be 1-%d characters", ErrInvalidGroup, maxTitleLen)
	case len(slug) > maxSlugLen || !slugPattern.MatchString(slug):
		return nil, fmt.Errorf("%w: slug must be 1-%d letters, digits, - or _", ErrInvalidGroup, maxSlugLen)
	}

	group := &models.Group{Title: title, Slug: slug, Description: description}
	if err := b.store.CreateGroup(ctx, group); err != nil {
		return nil, fmt.Errorf("failed to create group %q: %w", slug, err)
	}
	b.logger.Info("group created", "slug", slug, "id", group.ID)
	return group, nil
}

func (b *Blog) DeleteGroup(ctx context.Context, slug string) error {
	group, err := b.store.GetGroupBySlug(ctx, slug)
	if err != nil {
		return fmt.Errorf("group %q: %w", slug, err)
	}
	if err := b.store.DeleteGroup(ctx, group.ID); err != nil {
		return fmt.Errorf("failed to delete group %q: %w", slug, err)
	}
	b.logger.Info("group deleted", "slug", slug, "id", group.ID)
	return nil
}

// ValidatePost runs the post form checks against the current groups.
func (b *Blog) ValidatePost(ctx context.Context, form *forms.PostForm) error {
	errs, err := form.Validate(ctx, b.store)
	if err != nil {
		return err
	}
	if errs.Any() {
		return errs
	}
	return nil
}

func (b *Blog) saveImage(ctx context.Context, form *forms.PostForm) (string, error) {
	if form.ImageInfo == nil {
		return "", nil
	}
	key, err := b.media.Save(ctx, form.ImageInfo.ContentType, form.Image.Data, form.ImageInfo.Ext)
	if err != nil {
		return "", fmt.Errorf("failed to store image: %w", err)
	}
	return key, nil
}

func (b *Blog) dropImage(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := b.media.Delete(ctx, key); err != nil {
		b.logger.Warn("failed to delete image", "key", key, "error", err)
	}
}

// CreatePost validates form and publishes it as authorID. Validation
// failures are returned as forms.Errors.
func (b *Blog) CreatePost(ctx context.Context, authorID int64, form *forms.PostForm) (*models.Post, error) {
	if err := b.ValidatePost(ctx, form); err != nil {
		return nil, err
	}

	key, err := b.saveImage(ctx, form)
	if err != nil {
		return nil, err
	}

	post := &models.Post{
		Text:     form.Text,
		AuthorID: authorID,
		GroupID:  form.GroupIDPtr(),
		Image:    key,
	}
	if err := b.store.CreatePost(ctx, post); err != nil {
		b.dropImage(ctx, key)
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	metrics.PostCreated()
	b.logger.Debug("post created", "id", post.ID, "author_id", authorID)
	return post, nil
}

// authoredPost loads postID and checks it belongs to username.
func (b *Blog) authoredPost(ctx context.Context, username string, postID int64) (*models.User, *models.Post, error) {
	author, err := b.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, nil, fmt.Errorf("user %q: %w", username, err)
	}
	post, err := b.store.GetPost(ctx, postID)
	if err != nil {
		return nil, nil, fmt.Errorf("post %d: %w", postID, err)
	}
	if post.AuthorID != author.ID {
		return nil, nil, fmt.Errorf("post %d by %q: %w", postID, username, storage.ErrNotFound)
	}
	return author, post, nil
}

// PostForEdit returns the post editorID is allowed to change.
func (b *Blog) PostForEdit(ctx context.Context, editorID int64, username string, postID int64) (*models.Post, error) {
	_, post, err := b.authoredPost(ctx, username, postID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != editorID {
		return nil, ErrForbidden
	}
	return post, nil
}

// EditPost rebinds form onto the post. Author and publication date stay.
func (b *Blog) EditPost(ctx context.Context, editorID int64, username string, postID int64, form *forms.PostForm) (*models.Post, error) {
	post, err := b.PostForEdit(ctx, editorID, username, postID)
	if err != nil {
		return nil, err
	}
	if err := b.ValidatePost(ctx, form); err != nil {
		return nil, err
	}

	key, err := b.saveImage(ctx, form)
	if err != nil {
		return nil, err
	}

	oldImage := post.Image
	post.Text = form.Text
	post.GroupID = form.GroupIDPtr()
	switch {
	case key != "":
		post.Image = key
	case form.ClearImage:
		post.Image = ""
	}

	if err := b.store.UpdatePost(ctx, post); err != nil {
		b.dropImage(ctx, key)
		return nil, fmt.Errorf("failed to update post %d: %w", postID, err)
	}
	if oldImage != post.Image {
		b.dropImage(ctx, oldImage)
	}
	return post, nil
}

func (b *Blog) DeletePost(ctx context.Context, editorID int64, username string, postID int64) error {
	post, err := b.PostForEdit(ctx, editorID, username, postID)
	if err != nil {
		return err
	}
	if err := b.store.DeletePost(ctx, post.ID); err != nil {
		return fmt.Errorf("failed to delete post %d: %w", postID, err)
	}
	b.dropImage(ctx, post.Image)
	return nil
}

// PostDetail is a single post page.
type PostDetail struct {
	Post     *models.PostView
	Profile  *Profile
	Comments []*models.CommentView
}

func (b *Blog) GetPost(ctx context.Context, viewerID int64, username string, postID int64) (*PostDetail, error) {
	author, post, err := b.authoredPost(ctx, username, postID)
	if err != nil {
		return nil, err
	}

	views, err := b.hydrate(ctx, []*models.Post{post})
	if err != nil {
		return nil, err
	}
	profile, err := b.profile(ctx, viewerID, author)
	if err != nil {
		return nil, err
	}

	comments, err := b.store.ListComments(ctx, post.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	commentViews, err := b.hydrateComments(ctx, comments)
	if err != nil {
		return nil, err
	}

	return &PostDetail{Post: views[0], Profile: profile, Comments: commentViews}, nil
}

// AddComment attaches a comment by authorID to the post.
func (b *Blog) AddComment(ctx context.Context, authorID int64, username string, postID int64, form *forms.CommentForm) (*models.Comment, error) {
	_, post, err := b.authoredPost(ctx, username, postID)
	if err != nil {
		return nil, err
	}
	if errs := form.Validate(); errs.Any() {
		return nil, errs
	}

	comment := &models.Comment{PostID: &post.ID, AuthorID: authorID, Text: form.Text}
	if err := b.store.CreateComment(ctx, comment); err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}
	return comment, nil
}
