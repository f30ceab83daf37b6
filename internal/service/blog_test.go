package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ButyrinIA/blog/internal/forms"
	"github.com/ButyrinIA/blog/internal/media/local"
	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/storage"
	"github.com/ButyrinIA/blog/internal/storage/memory"
)

var smallGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x21, 0xf9, 0x04,
	0x01, 0x0a, 0x00, 0x01, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x4c, 0x01, 0x00, 0x3b,
}

type fixture struct {
	blog     *Blog
	store    *memory.MemoryStorage
	mediaDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	mediaStore, err := local.New(dir, "/media/")
	require.NoError(t, err)
	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{blog: New(store, mediaStore, logger), store: store, mediaDir: dir}
}

func (f *fixture) user(t *testing.T, name string) *models.User {
	t.Helper()
	u := &models.User{Username: name, PasswordHash: "x"}
	require.NoError(t, f.store.CreateUser(context.Background(), u))
	return u
}

func (f *fixture) post(t *testing.T, author *models.User, group *models.Group, text string, at time.Time) *models.Post {
	t.Helper()
	p := &models.Post{Text: text, AuthorID: author.ID, PubDate: at}
	if group != nil {
		p.GroupID = &group.ID
	}
	require.NoError(t, f.store.CreatePost(context.Background(), p))
	return p
}

func (f *fixture) mediaExists(key string) bool {
	_, err := os.Stat(filepath.Join(f.mediaDir, filepath.FromSlash(key)))
	return err == nil
}

func texts(page []*models.PostView) []string {
	return lo.Map(page, func(v *models.PostView, _ int) string { return v.Text })
}

func TestListAllNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leo := f.user(t, "leo")
	start := time.Now().Add(-time.Hour)

	for i := range 13 {
		f.post(t, leo, nil, string(rune('a'+i)), start.Add(time.Duration(i)*time.Minute))
	}

	page, err := f.blog.ListAll(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, page.Number)
	assert.Equal(t, 2, page.NumPages)
	assert.Equal(t, 13, page.Count)
	require.Len(t, page.Items, 10)
	assert.Equal(t, "m", page.Items[0].Text)
	for i := 1; i < len(page.Items); i++ {
		assert.True(t, page.Items[i-1].PubDate.After(page.Items[i].PubDate))
	}
	assert.Equal(t, "leo", page.Items[0].Author.Username)

	last, err := f.blog.ListAll(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, 2, last.Number, "out of range pages clamp to the last one")
	assert.Equal(t, []string{"c", "b", "a"}, texts(last.Items))

	first, err := f.blog.ListAll(ctx, "nope")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Number)
}

func TestListAllEmpty(t *testing.T) {
	f := newFixture(t)

	page, err := f.blog.ListAll(context.Background(), "3")
	require.NoError(t, err)
	assert.Equal(t, 1, page.Number)
	assert.Equal(t, 1, page.NumPages)
	assert.Empty(t, page.Items)
}

func TestGroupProfileAndPostShowSamePost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leo := f.user(t, "leo")

	group, err := f.blog.CreateGroup(ctx, "test", "test", "test group")
	require.NoError(t, err)
	post := f.post(t, leo, group, "only post", time.Now())

	g, page, err := f.blog.ListByGroup(ctx, "test", "")
	require.NoError(t, err)
	assert.Equal(t, group.ID, g.ID)
	assert.Equal(t, 1, page.Count)
	assert.Equal(t, []string{"only post"}, texts(page.Items))
	assert.Equal(t, "test", page.Items[0].Group.Slug)

	profile, err := f.blog.ListByAuthor(ctx, 0, "leo", "")
	require.NoError(t, err)
	assert.Equal(t, 1, profile.PostCount)
	assert.Equal(t, []string{"only post"}, texts(profile.Page.Items))

	detail, err := f.blog.GetPost(ctx, 0, "leo", post.ID)
	require.NoError(t, err)
	assert.Equal(t, "only post", detail.Post.Text)
	assert.Equal(t, "test", detail.Post.Group.Title)
	assert.Equal(t, 1, detail.Profile.PostCount)
}

func TestNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leo := f.user(t, "leo")
	f.user(t, "mia")
	post := f.post(t, leo, nil, "mine", time.Now())

	_, _, err := f.blog.ListByGroup(ctx, "missing", "")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = f.blog.ListByAuthor(ctx, 0, "ghost", "")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = f.blog.GetPost(ctx, 0, "mia", post.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound, "post must belong to the named user")

	_, err = f.blog.GetPost(ctx, 0, "leo", 999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFollowLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leo := f.user(t, "leo")
	mia := f.user(t, "mia")
	f.user(t, "ann")

	res, err := f.blog.Follow(ctx, leo.ID, "mia")
	require.NoError(t, err)
	assert.Equal(t, Followed, res)

	res, err = f.blog.Follow(ctx, leo.ID, "mia")
	require.NoError(t, err)
	assert.Equal(t, AlreadyFollowing, res)

	n, err := f.store.CountFollowers(ctx, mia.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "following twice keeps one edge")

	profile, err := f.blog.ListByAuthor(ctx, leo.ID, "mia", "")
	require.NoError(t, err)
	assert.True(t, profile.ViewerFollows)
	assert.Equal(t, 1, profile.Followers)

	res, err = f.blog.Unfollow(ctx, leo.ID, "mia")
	require.NoError(t, err)
	assert.Equal(t, Unfollowed, res)

	res, err = f.blog.Unfollow(ctx, leo.ID, "mia")
	require.NoError(t, err)
	assert.Equal(t, NotFollowing, res)

	n, err = f.store.CountFollowers(ctx, mia.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = f.blog.Follow(ctx, leo.ID, "leo")
	assert.ErrorIs(t, err, ErrSelfFollow)

	_, err = f.blog.Follow(ctx, leo.ID, "ghost")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.Equal(t, "followed", Followed.String())
	assert.Equal(t, "not following", NotFollowing.String())
}

func TestFeed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leo := f.user(t, "leo")
	mia := f.user(t, "mia")
	ann := f.user(t, "ann")
	now := time.Now()

	f.post(t, mia, nil, "from mia", now)
	f.post(t, ann, nil, "from ann", now.Add(time.Second))

	feed, err := f.blog.ListFeed(ctx, leo.ID, "")
	require.NoError(t, err)
	assert.Empty(t, feed.Items)

	_, err = f.blog.Follow(ctx, leo.ID, "mia")
	require.NoError(t, err)

	feed, err = f.blog.ListFeed(ctx, leo.ID, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"from mia"}, texts(feed.Items))

	annFeed, err := f.blog.ListFeed(ctx, ann.ID, "")
	require.NoError(t, err)
	assert.Empty(t, annFeed.Items, "ann follows nobody")

	_, err = f.blog.Unfollow(ctx, leo.ID, "mia")
	require.NoError(t, err)
	feed, err = f.blog.ListFeed(ctx, leo.ID, "")
	require.NoError(t, err)
	assert.Empty(t, feed.Items)
}

func TestCreatePost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leo := f.user(t, "leo")

	post, err := f.blog.CreatePost(ctx, leo.ID, &forms.PostForm{
		Text:  "with picture",
		Image: &forms.Upload{Filename: "some.gif", Data: smallGIF},
	})
	require.NoError(t, err)
	assert.Equal(t, leo.ID, post.AuthorID)
	assert.False(t, post.PubDate.IsZero())
	assert.Regexp(t, `^posts/.+\.gif$`, post.Image)
	assert.True(t, f.mediaExists(post.Image))
}

func TestCreatePostRejectsNonImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leo := f.user(t, "leo")

	_, err := f.blog.CreatePost(ctx, leo.ID, &forms.PostForm{
		Text:  "text",
		Image: &forms.Upload{Filename: "some.txt", Data: []byte("abc")},
	})
	var errs forms.Errors
	require.ErrorAs(t, err, &errs)
	assert.Equal(t, forms.MsgInvalidImage, errs.Get("image"))

	n, err := f.store.CountPosts(ctx, storage.PostFilter{})
	require.NoError(t, err)
	assert.Zero(t, n, "no post is created")
}

func TestCreatePostRequiresText(t *testing.T) {
	f := newFixture(t)
	leo := f.user(t, "leo")

	_, err := f.blog.CreatePost(context.Background(), leo.ID, &forms.PostForm{Text: "  "})
	var errs forms.Errors
	require.ErrorAs(t, err, &errs)
	assert.Equal(t, forms.MsgRequired, errs.Get("text"))
}

type failingStore struct {
	*memory.MemoryStorage
	mock.Mock
}

func (s *failingStore) CreatePost(ctx context.Context, post *models.Post) error {
	return s.Called(ctx, post).Error(0)
}

func TestCreatePostDropsImageOnFailure(t *testing.T) {
	dir := t.TempDir()
	mediaStore, err := local.New(dir, "/media/")
	require.NoError(t, err)

	store := &failingStore{MemoryStorage: memory.New()}
	store.On("CreatePost", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	blog := New(store, mediaStore, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err = blog.CreatePost(context.Background(), 1, &forms.PostForm{
		Text:  "x",
		Image: &forms.Upload{Data: smallGIF},
	})
	assert.ErrorContains(t, err, "disk full")

	entries, err := os.ReadDir(filepath.Join(dir, "posts"))
	require.NoError(t, err)
	assert.Empty(t, entries, "the uploaded image is removed again")
	store.AssertExpectations(t)
}

func TestEditPost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leo := f.user(t, "leo")
	mia := f.user(t, "mia")
	group, err := f.blog.CreateGroup(ctx, "Cats", "cats", "")
	require.NoError(t, err)

	post, err := f.blog.CreatePost(ctx, leo.ID, &forms.PostForm{Text: "draft", Image: &forms.Upload{Data: smallGIF}})
	require.NoError(t, err)
	firstImage := post.Image
	published := post.PubDate

	edited, err := f.blog.EditPost(ctx, leo.ID, "leo", post.ID, &forms.PostForm{
		Text:    "final",
		GroupID: strconv.FormatInt(group.ID, 10),
		Image:   &forms.Upload{Data: smallGIF},
	})
	require.NoError(t, err)
	assert.Equal(t, "final", edited.Text)
	require.NotNil(t, edited.GroupID)
	assert.Equal(t, group.ID, *edited.GroupID)
	assert.NotEqual(t, firstImage, edited.Image)
	assert.False(t, f.mediaExists(firstImage), "the replaced image is deleted")
	assert.True(t, f.mediaExists(edited.Image))

	got, err := f.store.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, leo.ID, got.AuthorID)
	assert.True(t, published.Equal(got.PubDate), "pub date never changes")

	cleared, err := f.blog.EditPost(ctx, leo.ID, "leo", post.ID, &forms.PostForm{Text: "final", ClearImage: true})
	require.NoError(t, err)
	assert.Empty(t, cleared.Image)
	assert.Nil(t, cleared.GroupID)
	assert.False(t, f.mediaExists(edited.Image))

	_, err = f.blog.EditPost(ctx, mia.ID, "leo", post.ID, &forms.PostForm{Text: "hijack"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.blog.EditPost(ctx, leo.ID, "leo", post.ID, &forms.PostForm{Text: ""})
	var errs forms.Errors
	assert.ErrorAs(t, err, &errs)
}

func TestDeletePost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leo := f.user(t, "leo")
	mia := f.user(t, "mia")

	post, err := f.blog.CreatePost(ctx, leo.ID, &forms.PostForm{Text: "bye", Image: &forms.Upload{Data: smallGIF}})
	require.NoError(t, err)
	_, err = f.blog.AddComment(ctx, mia.ID, "leo", post.ID, &forms.CommentForm{Text: "nice"})
	require.NoError(t, err)

	assert.ErrorIs(t, f.blog.DeletePost(ctx, mia.ID, "leo", post.ID), ErrForbidden)
	require.NoError(t, f.blog.DeletePost(ctx, leo.ID, "leo", post.ID))

	_, err = f.store.GetPost(ctx, post.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.False(t, f.mediaExists(post.Image))
}

func TestComments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leo := f.user(t, "leo")
	mia := f.user(t, "mia")
	post := f.post(t, leo, nil, "discuss", time.Now())

	_, err := f.blog.AddComment(ctx, mia.ID, "leo", post.ID, &forms.CommentForm{Text: "first"})
	require.NoError(t, err)
	_, err = f.blog.AddComment(ctx, leo.ID, "leo", post.ID, &forms.CommentForm{Text: "second"})
	require.NoError(t, err)

	_, err = f.blog.AddComment(ctx, mia.ID, "leo", post.ID, &forms.CommentForm{Text: " "})
	var errs forms.Errors
	require.ErrorAs(t, err, &errs)
	assert.Equal(t, forms.MsgRequired, errs.Get("text"))

	_, err = f.blog.AddComment(ctx, mia.ID, "mia", post.ID, &forms.CommentForm{Text: "wrong author"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	detail, err := f.blog.GetPost(ctx, mia.ID, "leo", post.ID)
	require.NoError(t, err)
	require.Len(t, detail.Comments, 2)
	usernames := lo.Map(detail.Comments, func(c *models.CommentView, _ int) string { return c.Author.Username })
	assert.ElementsMatch(t, []string{"leo", "mia"}, usernames)
}

func TestCreateGroupValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.blog.CreateGroup(ctx, "", "slug", "")
	assert.ErrorIs(t, err, ErrInvalidGroup)

	_, err = f.blog.CreateGroup(ctx, "Title", "not a slug", "")
	assert.ErrorIs(t, err, ErrInvalidGroup)

	_, err = f.blog.CreateGroup(ctx, "Title", "ok-slug", "")
	require.NoError(t, err)
	_, err = f.blog.CreateGroup(ctx, "Again", "ok-slug", "")
	assert.ErrorIs(t, err, storage.ErrConflict)

	require.NoError(t, f.blog.DeleteGroup(ctx, "ok-slug"))
	assert.ErrorIs(t, f.blog.DeleteGroup(ctx, "ok-slug"), storage.ErrNotFound)
}

func TestRequestLoadersAreShared(t *testing.T) {
	f := newFixture(t)
	leo := f.user(t, "leo")
	f.post(t, leo, nil, "one", time.Now())

	loaders := NewLoaders(f.store)
	ctx := WithLoaders(context.Background(), loaders)

	_, err := f.blog.ListAll(ctx, "")
	require.NoError(t, err)

	user, err := loaders.Users.Load(ctx, leo.ID)()
	require.NoError(t, err)
	assert.Equal(t, "leo", user.Username)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.blog.Health(context.Background()))
}
