// Package storagetest holds behaviour tests shared by every storage.Storage
// backend.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/storage"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) storage.Storage

func Run(t *testing.T, newStore Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("Groups", func(t *testing.T) { testGroups(t, newStore(t)) })
	t.Run("PostOrdering", func(t *testing.T) { testPostOrdering(t, newStore(t)) })
	t.Run("PostFilters", func(t *testing.T) { testPostFilters(t, newStore(t)) })
	t.Run("UpdatePost", func(t *testing.T) { testUpdatePost(t, newStore(t)) })
	t.Run("DeletePost", func(t *testing.T) { testDeletePost(t, newStore(t)) })
	t.Run("DeleteGroup", func(t *testing.T) { testDeleteGroup(t, newStore(t)) })
	t.Run("Comments", func(t *testing.T) { testComments(t, newStore(t)) })
	t.Run("Follows", func(t *testing.T) { testFollows(t, newStore(t)) })
	t.Run("Feed", func(t *testing.T) { testFeed(t, newStore(t)) })
}

func mustUser(t *testing.T, s storage.Storage, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, PasswordHash: "hash"}
	require.NoError(t, s.CreateUser(context.Background(), u))
	require.NotZero(t, u.ID)
	return u
}

func mustGroup(t *testing.T, s storage.Storage, slug string) *models.Group {
	t.Helper()
	g := &models.Group{Title: "group " + slug, Slug: slug, Description: "about " + slug}
	require.NoError(t, s.CreateGroup(context.Background(), g))
	require.NotZero(t, g.ID)
	return g
}

func mustPost(t *testing.T, s storage.Storage, author *models.User, group *models.Group, text string, at time.Time) *models.Post {
	t.Helper()
	p := &models.Post{Text: text, AuthorID: author.ID, PubDate: at}
	if group != nil {
		p.GroupID = &group.ID
	}
	require.NoError(t, s.CreatePost(context.Background(), p))
	require.NotZero(t, p.ID)
	return p
}

func postIDs(posts []*models.Post) []int64 {
	return lo.Map(posts, func(p *models.Post, _ int) int64 { return p.ID })
}

func base() time.Time {
	return time.Now().Add(-24 * time.Hour).UTC().Truncate(time.Millisecond)
}

func testUsers(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")

	got, err := s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
	assert.Equal(t, "hash", got.PasswordHash)
	assert.False(t, got.DateJoined.IsZero())

	got, err = s.GetUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Username)

	_, err = s.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.GetUser(ctx, 987654)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = s.CreateUser(ctx, &models.User{Username: "alice", PasswordHash: "x"})
	assert.ErrorIs(t, err, storage.ErrConflict)

	users, err := s.GetUsersByIDs(ctx, []int64{alice.ID, bob.ID, 987654})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, lo.Map(users, func(u *models.User, _ int) string { return u.Username }))
}

func testGroups(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	cats := mustGroup(t, s, "cats")
	dogs := mustGroup(t, s, "dogs")

	got, err := s.GetGroupBySlug(ctx, "cats")
	require.NoError(t, err)
	assert.Equal(t, cats, got)

	got, err = s.GetGroup(ctx, dogs.ID)
	require.NoError(t, err)
	assert.Equal(t, dogs, got)

	_, err = s.GetGroupBySlug(ctx, "birds")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = s.CreateGroup(ctx, &models.Group{Title: "again", Slug: "cats"})
	assert.ErrorIs(t, err, storage.ErrConflict)

	groups, err := s.ListGroups(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 2)

	byIDs, err := s.GetGroupsByIDs(ctx, []int64{dogs.ID})
	require.NoError(t, err)
	require.Len(t, byIDs, 1)
	assert.Equal(t, "dogs", byIDs[0].Slug)
}

func testPostOrdering(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	author := mustUser(t, s, "author")
	start := base()

	var created []*models.Post
	for i := range 12 {
		created = append(created, mustPost(t, s, author, nil, "post", start.Add(time.Duration(i)*time.Minute)))
	}
	// Same timestamp as the newest one: the higher id wins the tie.
	tie := mustPost(t, s, author, nil, "tie", start.Add(11*time.Minute))

	total, err := s.CountPosts(ctx, storage.PostFilter{})
	require.NoError(t, err)
	assert.Equal(t, 13, total)

	first, err := s.ListPosts(ctx, storage.PostFilter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, first, 10)
	assert.Equal(t, tie.ID, first[0].ID)
	assert.Equal(t, created[11].ID, first[1].ID)

	for i := 1; i < len(first); i++ {
		assert.False(t, first[i].PubDate.After(first[i-1].PubDate), "listing must be newest-first")
	}

	second, err := s.ListPosts(ctx, storage.PostFilter{}, 10, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{created[2].ID, created[1].ID, created[0].ID}, postIDs(second))

	beyond, err := s.ListPosts(ctx, storage.PostFilter{}, 10, 20)
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func testPostFilters(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	cats := mustGroup(t, s, "cats")
	start := base()

	p1 := mustPost(t, s, alice, cats, "alice in cats", start)
	p2 := mustPost(t, s, alice, nil, "alice alone", start.Add(time.Minute))
	p3 := mustPost(t, s, bob, cats, "bob in cats", start.Add(2*time.Minute))

	inCats, err := s.ListPosts(ctx, storage.PostFilter{GroupID: &cats.ID}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{p3.ID, p1.ID}, postIDs(inCats))

	byAlice, err := s.ListPosts(ctx, storage.PostFilter{AuthorID: &alice.ID}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{p2.ID, p1.ID}, postIDs(byAlice))

	both, err := s.ListPosts(ctx, storage.PostFilter{AuthorID: &bob.ID, GroupID: &cats.ID}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{p3.ID}, postIDs(both))

	n, err := s.CountPosts(ctx, storage.PostFilter{AuthorID: &alice.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.GetPost(ctx, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice in cats", got.Text)
	require.NotNil(t, got.GroupID)
	assert.Equal(t, cats.ID, *got.GroupID)
	assert.Equal(t, alice.ID, got.AuthorID)

	_, err = s.GetPost(ctx, 987654)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testUpdatePost(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	cats := mustGroup(t, s, "cats")
	published := base()

	post := mustPost(t, s, alice, nil, "draft", published)

	edit := &models.Post{
		ID:       post.ID,
		Text:     "final",
		GroupID:  &cats.ID,
		Image:    "posts/x.gif",
		AuthorID: bob.ID,
		PubDate:  time.Now(),
	}
	require.NoError(t, s.UpdatePost(ctx, edit))
	assert.Equal(t, alice.ID, edit.AuthorID)

	got, err := s.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "final", got.Text)
	assert.Equal(t, "posts/x.gif", got.Image)
	assert.Equal(t, alice.ID, got.AuthorID, "author never changes on edit")
	assert.WithinDuration(t, published, got.PubDate, time.Millisecond)
	require.NotNil(t, got.GroupID)
	assert.Equal(t, cats.ID, *got.GroupID)

	err = s.UpdatePost(ctx, &models.Post{ID: 987654, Text: "x"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testDeletePost(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	post := mustPost(t, s, alice, nil, "short-lived", base())

	comment := &models.Comment{PostID: &post.ID, AuthorID: alice.ID, Text: "first"}
	require.NoError(t, s.CreateComment(ctx, comment))

	require.NoError(t, s.DeletePost(ctx, post.ID))

	_, err := s.GetPost(ctx, post.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	comments, err := s.ListComments(ctx, post.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)

	assert.ErrorIs(t, s.DeletePost(ctx, post.ID), storage.ErrNotFound)
}

func testDeleteGroup(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	cats := mustGroup(t, s, "cats")
	post := mustPost(t, s, alice, cats, "in cats", base())

	require.NoError(t, s.DeleteGroup(ctx, cats.ID))

	got, err := s.GetPost(ctx, post.ID)
	require.NoError(t, err, "posts survive their group")
	assert.Nil(t, got.GroupID)

	_, err = s.GetGroupBySlug(ctx, "cats")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.DeleteGroup(ctx, cats.ID), storage.ErrNotFound)
}

func testComments(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	post := mustPost(t, s, alice, nil, "commented", base())
	other := mustPost(t, s, alice, nil, "quiet", base())
	start := base()

	older := &models.Comment{PostID: &post.ID, AuthorID: bob.ID, Text: "older", Created: start}
	newer := &models.Comment{PostID: &post.ID, AuthorID: alice.ID, Text: "newer", Created: start.Add(time.Minute)}
	require.NoError(t, s.CreateComment(ctx, older))
	require.NoError(t, s.CreateComment(ctx, newer))

	comments, err := s.ListComments(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "newer", comments[0].Text)
	assert.Equal(t, "older", comments[1].Text)
	assert.Equal(t, bob.ID, comments[1].AuthorID)

	comments, err = s.ListComments(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func testFollows(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	carol := mustUser(t, s, "carol")

	created, err := s.CreateFollow(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.CreateFollow(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, created, "a second follow must not add an edge")

	_, err = s.CreateFollow(ctx, carol.ID, bob.ID)
	require.NoError(t, err)

	ok, err := s.IsFollowing(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsFollowing(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, ok, "edges are directed")

	followers, err := s.CountFollowers(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, followers)

	following, err := s.CountFollowing(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, following)

	deleted, err := s.DeleteFollow(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteFollow(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	followers, err = s.CountFollowers(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, followers)
}

func testFeed(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	carol := mustUser(t, s, "carol")
	start := base()

	feed := storage.PostFilter{FollowerID: &alice.ID}

	n, err := s.CountPosts(ctx, feed)
	require.NoError(t, err)
	assert.Zero(t, n, "nobody followed yet")

	bobPost := mustPost(t, s, bob, nil, "from bob", start)
	mustPost(t, s, carol, nil, "from carol", start.Add(time.Minute))
	mustPost(t, s, alice, nil, "from alice", start.Add(2*time.Minute))

	_, err = s.CreateFollow(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	// Posts written before the follow still show up.
	later := mustPost(t, s, bob, nil, "bob again", start.Add(3*time.Minute))

	posts, err := s.ListPosts(ctx, feed, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{later.ID, bobPost.ID}, postIDs(posts))

	_, err = s.DeleteFollow(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	posts, err = s.ListPosts(ctx, feed, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, posts)
}
