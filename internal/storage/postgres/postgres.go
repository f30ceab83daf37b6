package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/storage"
)

const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		date_joined TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS blog_groups (
		id BIGSERIAL PRIMARY KEY,
		title VARCHAR(200) NOT NULL,
		slug VARCHAR(50) NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS posts (
		id BIGSERIAL PRIMARY KEY,
		text TEXT NOT NULL,
		pub_date TIMESTAMPTZ NOT NULL DEFAULT now(),
		author_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		group_id BIGINT REFERENCES blog_groups(id) ON DELETE SET NULL,
		image TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_posts_pub_date ON posts(pub_date DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_posts_author_id ON posts(author_id);
	CREATE INDEX IF NOT EXISTS idx_posts_group_id ON posts(group_id);
	CREATE TABLE IF NOT EXISTS comments (
		id BIGSERIAL PRIMARY KEY,
		post_id BIGINT REFERENCES posts(id) ON DELETE SET NULL,
		author_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		text TEXT NOT NULL,
		created TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_comments_post_id ON comments(post_id);
	CREATE TABLE IF NOT EXISTS follows (
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		author_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, author_id)
	);
	CREATE INDEX IF NOT EXISTS idx_follows_author_id ON follows(author_id);
`

const postColumns = `p.id, p.text, p.pub_date, p.author_id, p.group_id, p.image`

type PostgresStorage struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

// translate maps driver errors onto the storage sentinels.
func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", storage.ErrConflict, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: %s", storage.ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

func (s *PostgresStorage) CreateUser(ctx context.Context, user *models.User) error {
	var joined *time.Time
	if !user.DateJoined.IsZero() {
		joined = &user.DateJoined
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (username, password_hash, date_joined)
		VALUES ($1, $2, COALESCE($3, now()))
		RETURNING id, date_joined`,
		user.Username, user.PasswordHash, joined).Scan(&user.ID, &user.DateJoined)
	return translate(err)
}

func (s *PostgresStorage) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, date_joined
		FROM users
		WHERE `+where, arg).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.DateJoined)
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *PostgresStorage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.getUser(ctx, "id=$1", id)
}

func (s *PostgresStorage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, "username=$1", username)
}

func (s *PostgresStorage) GetUsersByIDs(ctx context.Context, ids []int64) ([]*models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, username, password_hash, date_joined
		FROM users
		WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.DateJoined); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

func (s *PostgresStorage) CreateGroup(ctx context.Context, group *models.Group) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO blog_groups (title, slug, description)
		VALUES ($1, $2, $3)
		RETURNING id`,
		group.Title, group.Slug, group.Description).Scan(&group.ID)
	return translate(err)
}

func (s *PostgresStorage) queryGroups(ctx context.Context, query string, args ...any) ([]*models.Group, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.Title, &g.Slug, &g.Description); err != nil {
			return nil, err
		}
		groups = append(groups, &g)
	}
	return groups, rows.Err()
}

func (s *PostgresStorage) getGroup(ctx context.Context, where string, arg any) (*models.Group, error) {
	groups, err := s.queryGroups(ctx, `SELECT id, title, slug, description FROM blog_groups WHERE `+where, arg)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, storage.ErrNotFound
	}
	return groups[0], nil
}

func (s *PostgresStorage) GetGroup(ctx context.Context, id int64) (*models.Group, error) {
	return s.getGroup(ctx, "id=$1", id)
}

func (s *PostgresStorage) GetGroupBySlug(ctx context.Context, slug string) (*models.Group, error) {
	return s.getGroup(ctx, "slug=$1", slug)
}

func (s *PostgresStorage) GetGroupsByIDs(ctx context.Context, ids []int64) ([]*models.Group, error) {
	return s.queryGroups(ctx, `SELECT id, title, slug, description FROM blog_groups WHERE id = ANY($1)`, ids)
}

func (s *PostgresStorage) ListGroups(ctx context.Context) ([]*models.Group, error) {
	return s.queryGroups(ctx, `SELECT id, title, slug, description FROM blog_groups ORDER BY title`)
}

func (s *PostgresStorage) DeleteGroup(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM blog_groups WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) CreatePost(ctx context.Context, post *models.Post) error {
	var pubDate *time.Time
	if !post.PubDate.IsZero() {
		pubDate = &post.PubDate
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO posts (text, pub_date, author_id, group_id, image)
		VALUES ($1, COALESCE($2, now()), $3, $4, $5)
		RETURNING id, pub_date`,
		post.Text, pubDate, post.AuthorID, post.GroupID, post.Image).Scan(&post.ID, &post.PubDate)
	return translate(err)
}

func (s *PostgresStorage) UpdatePost(ctx context.Context, post *models.Post) error {
	err := s.pool.QueryRow(ctx, `
		UPDATE posts SET text=$2, group_id=$3, image=$4
		WHERE id=$1
		RETURNING author_id, pub_date`,
		post.ID, post.Text, post.GroupID, post.Image).Scan(&post.AuthorID, &post.PubDate)
	return translate(err)
}

func (s *PostgresStorage) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	var p models.Post
	err := s.pool.QueryRow(ctx, `
		SELECT `+postColumns+`
		FROM posts p
		WHERE p.id=$1`, id).Scan(&p.ID, &p.Text, &p.PubDate, &p.AuthorID, &p.GroupID, &p.Image)
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *PostgresStorage) DeletePost(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// postWhere renders the filter as a WHERE clause with positional arguments.
func postWhere(filter storage.PostFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.GroupID != nil {
		args = append(args, *filter.GroupID)
		conds = append(conds, fmt.Sprintf("p.group_id = $%d", len(args)))
	}
	if filter.AuthorID != nil {
		args = append(args, *filter.AuthorID)
		conds = append(conds, fmt.Sprintf("p.author_id = $%d", len(args)))
	}
	if filter.FollowerID != nil {
		args = append(args, *filter.FollowerID)
		conds = append(conds, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM follows f WHERE f.author_id = p.author_id AND f.user_id = $%d)", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *PostgresStorage) CountPosts(ctx context.Context, filter storage.PostFilter) (int, error) {
	where, args := postWhere(filter)
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts p`+where, args...).Scan(&count)
	return count, err
}

func (s *PostgresStorage) ListPosts(ctx context.Context, filter storage.PostFilter, limit, offset int) ([]*models.Post, error) {
	where, args := postWhere(filter)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM posts p%s
		ORDER BY p.pub_date DESC, p.id DESC
		LIMIT $%d OFFSET $%d`, postColumns, where, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		var p models.Post
		if err := rows.Scan(&p.ID, &p.Text, &p.PubDate, &p.AuthorID, &p.GroupID, &p.Image); err != nil {
			return nil, err
		}
		posts = append(posts, &p)
	}
	return posts, rows.Err()
}

func (s *PostgresStorage) CreateComment(ctx context.Context, comment *models.Comment) error {
	var created *time.Time
	if !comment.Created.IsZero() {
		created = &comment.Created
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO comments (post_id, author_id, text, created)
		VALUES ($1, $2, $3, COALESCE($4, now()))
		RETURNING id, created`,
		comment.PostID, comment.AuthorID, comment.Text, created).Scan(&comment.ID, &comment.Created)
	return translate(err)
}

func (s *PostgresStorage) ListComments(ctx context.Context, postID int64) ([]*models.Comment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, post_id, author_id, text, created
		FROM comments
		WHERE post_id=$1
		ORDER BY created DESC, id DESC`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []*models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Text, &c.Created); err != nil {
			return nil, err
		}
		comments = append(comments, &c)
	}
	return comments, rows.Err()
}

func (s *PostgresStorage) CreateFollow(ctx context.Context, userID, authorID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO follows (user_id, author_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, author_id) DO NOTHING`, userID, authorID)
	if err != nil {
		return false, translate(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStorage) DeleteFollow(ctx context.Context, userID, authorID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM follows WHERE user_id=$1 AND author_id=$2`, userID, authorID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStorage) IsFollowing(ctx context.Context, userID, authorID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM follows WHERE user_id=$1 AND author_id=$2)`,
		userID, authorID).Scan(&exists)
	return exists, err
}

func (s *PostgresStorage) CountFollowers(ctx context.Context, authorID int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM follows WHERE author_id=$1`, authorID).Scan(&count)
	return count, err
}

func (s *PostgresStorage) CountFollowing(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM follows WHERE user_id=$1`, userID).Scan(&count)
	return count, err
}

func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}
