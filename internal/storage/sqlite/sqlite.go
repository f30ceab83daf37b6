// Package sqlite is the embedded storage backend, built on gorm.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/storage"
)

type userRow struct {
	ID           int64     `gorm:"primaryKey"`
	Username     string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	DateJoined   time.Time `gorm:"not null"`
}

func (userRow) TableName() string { return "users" }

type groupRow struct {
	ID          int64  `gorm:"primaryKey"`
	Title       string `gorm:"size:200;not null"`
	Slug        string `gorm:"size:50;uniqueIndex;not null"`
	Description string `gorm:"not null;default:''"`
}

func (groupRow) TableName() string { return "blog_groups" }

type postRow struct {
	ID       int64     `gorm:"primaryKey"`
	Text     string    `gorm:"not null"`
	PubDate  time.Time `gorm:"not null;index"`
	AuthorID int64     `gorm:"not null;index"`
	GroupID  *int64    `gorm:"index"`
	Image    string    `gorm:"not null;default:''"`

	Author userRow   `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE"`
	Group  *groupRow `gorm:"foreignKey:GroupID;constraint:OnDelete:SET NULL"`
}

func (postRow) TableName() string { return "posts" }

type commentRow struct {
	ID       int64     `gorm:"primaryKey"`
	PostID   *int64    `gorm:"index"`
	AuthorID int64     `gorm:"not null"`
	Text     string    `gorm:"not null"`
	Created  time.Time `gorm:"not null"`

	Post   *postRow `gorm:"foreignKey:PostID;constraint:OnDelete:SET NULL"`
	Author userRow  `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE"`
}

func (commentRow) TableName() string { return "comments" }

type followRow struct {
	UserID   int64     `gorm:"primaryKey;autoIncrement:false"`
	AuthorID int64     `gorm:"primaryKey;autoIncrement:false;index"`
	Created  time.Time `gorm:"not null"`

	User   userRow `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Author userRow `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE"`
}

func (followRow) TableName() string { return "follows" }

type SQLiteStorage struct {
	db *gorm.DB
}

// New opens dsn (a file path or ":memory:") and migrates the schema.
func New(dsn string) (*SQLiteStorage, error) {
	db, err := gorm.Open(sqlite.Open(withForeignKeys(dsn)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// One connection: keeps ":memory:" databases alive and serialises writers.
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if err := db.AutoMigrate(&userRow{}, &groupRow{}, &postRow{}, &commentRow{}, &followRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return storage.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return storage.ErrConflict
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return storage.ErrNotFound
	}
	return err
}

func (u userRow) model() *models.User {
	return &models.User{ID: u.ID, Username: u.Username, PasswordHash: u.PasswordHash, DateJoined: u.DateJoined}
}

func (g groupRow) model() *models.Group {
	return &models.Group{ID: g.ID, Title: g.Title, Slug: g.Slug, Description: g.Description}
}

func (p postRow) model() *models.Post {
	return &models.Post{ID: p.ID, Text: p.Text, PubDate: p.PubDate, AuthorID: p.AuthorID, GroupID: p.GroupID, Image: p.Image}
}

func (c commentRow) model() *models.Comment {
	return &models.Comment{ID: c.ID, PostID: c.PostID, AuthorID: c.AuthorID, Text: c.Text, Created: c.Created}
}

func (s *SQLiteStorage) CreateUser(ctx context.Context, user *models.User) error {
	if user.DateJoined.IsZero() {
		user.DateJoined = time.Now()
	}
	row := userRow{Username: user.Username, PasswordHash: user.PasswordHash, DateJoined: user.DateJoined}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return translate(err)
	}
	user.ID = row.ID
	return nil
}

func (s *SQLiteStorage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return nil, translate(err)
	}
	return row.model(), nil
}

func (s *SQLiteStorage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&row).Error; err != nil {
		return nil, translate(err)
	}
	return row.model(), nil
}

func (s *SQLiteStorage) GetUsersByIDs(ctx context.Context, ids []int64) ([]*models.User, error) {
	var rows []userRow
	if len(ids) == 0 {
		return nil, nil
	}
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	users := make([]*models.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.model())
	}
	return users, nil
}

func (s *SQLiteStorage) CreateGroup(ctx context.Context, group *models.Group) error {
	row := groupRow{Title: group.Title, Slug: group.Slug, Description: group.Description}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return translate(err)
	}
	group.ID = row.ID
	return nil
}

func (s *SQLiteStorage) GetGroup(ctx context.Context, id int64) (*models.Group, error) {
	var row groupRow
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return nil, translate(err)
	}
	return row.model(), nil
}

func (s *SQLiteStorage) GetGroupBySlug(ctx context.Context, slug string) (*models.Group, error) {
	var row groupRow
	if err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&row).Error; err != nil {
		return nil, translate(err)
	}
	return row.model(), nil
}

func (s *SQLiteStorage) findGroups(tx *gorm.DB) ([]*models.Group, error) {
	var rows []groupRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	groups := make([]*models.Group, 0, len(rows))
	for _, r := range rows {
		groups = append(groups, r.model())
	}
	return groups, nil
}

func (s *SQLiteStorage) GetGroupsByIDs(ctx context.Context, ids []int64) ([]*models.Group, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.findGroups(s.db.WithContext(ctx).Where("id IN ?", ids))
}

func (s *SQLiteStorage) ListGroups(ctx context.Context) ([]*models.Group, error) {
	return s.findGroups(s.db.WithContext(ctx).Order("title"))
}

func (s *SQLiteStorage) DeleteGroup(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&groupRow{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) CreatePost(ctx context.Context, post *models.Post) error {
	if post.PubDate.IsZero() {
		post.PubDate = time.Now()
	}
	row := postRow{
		Text:     post.Text,
		PubDate:  post.PubDate,
		AuthorID: post.AuthorID,
		GroupID:  post.GroupID,
		Image:    post.Image,
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error; err != nil {
		return translate(err)
	}
	post.ID = row.ID
	return nil
}

func (s *SQLiteStorage) UpdatePost(ctx context.Context, post *models.Post) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row postRow
		if err := tx.First(&row, post.ID).Error; err != nil {
			return translate(err)
		}
		err := tx.Model(&row).Select("text", "group_id", "image").Updates(map[string]any{
			"text":     post.Text,
			"group_id": post.GroupID,
			"image":    post.Image,
		}).Error
		if err != nil {
			return translate(err)
		}
		post.AuthorID, post.PubDate = row.AuthorID, row.PubDate
		return nil
	})
}

func (s *SQLiteStorage) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	var row postRow
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return nil, translate(err)
	}
	return row.model(), nil
}

func (s *SQLiteStorage) DeletePost(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&postRow{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) filtered(ctx context.Context, filter storage.PostFilter) *gorm.DB {
	tx := s.db.WithContext(ctx).Model(&postRow{})
	if filter.GroupID != nil {
		tx = tx.Where("posts.group_id = ?", *filter.GroupID)
	}
	if filter.AuthorID != nil {
		tx = tx.Where("posts.author_id = ?", *filter.AuthorID)
	}
	if filter.FollowerID != nil {
		tx = tx.Where("EXISTS (SELECT 1 FROM follows WHERE follows.author_id = posts.author_id AND follows.user_id = ?)",
			*filter.FollowerID)
	}
	return tx
}

func (s *SQLiteStorage) CountPosts(ctx context.Context, filter storage.PostFilter) (int, error) {
	var count int64
	err := s.filtered(ctx, filter).Count(&count).Error
	return int(count), err
}

func (s *SQLiteStorage) ListPosts(ctx context.Context, filter storage.PostFilter, limit, offset int) ([]*models.Post, error) {
	var rows []postRow
	err := s.filtered(ctx, filter).
		Order("posts.pub_date DESC, posts.id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	posts := make([]*models.Post, 0, len(rows))
	for _, r := range rows {
		posts = append(posts, r.model())
	}
	return posts, nil
}

func (s *SQLiteStorage) CreateComment(ctx context.Context, comment *models.Comment) error {
	if comment.Created.IsZero() {
		comment.Created = time.Now()
	}
	row := commentRow{
		PostID:   comment.PostID,
		AuthorID: comment.AuthorID,
		Text:     comment.Text,
		Created:  comment.Created,
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error; err != nil {
		return translate(err)
	}
	comment.ID = row.ID
	return nil
}

func (s *SQLiteStorage) ListComments(ctx context.Context, postID int64) ([]*models.Comment, error) {
	var rows []commentRow
	err := s.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("created DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	comments := make([]*models.Comment, 0, len(rows))
	for _, r := range rows {
		comments = append(comments, r.model())
	}
	return comments, nil
}

func (s *SQLiteStorage) CreateFollow(ctx context.Context, userID, authorID int64) (bool, error) {
	row := followRow{UserID: userID, AuthorID: authorID, Created: time.Now()}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Omit(clause.Associations).
		Create(&row)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *SQLiteStorage) DeleteFollow(ctx context.Context, userID, authorID int64) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND author_id = ?", userID, authorID).
		Delete(&followRow{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *SQLiteStorage) IsFollowing(ctx context.Context, userID, authorID int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&followRow{}).
		Where("user_id = ? AND author_id = ?", userID, authorID).
		Count(&count).Error
	return count > 0, err
}

func (s *SQLiteStorage) CountFollowers(ctx context.Context, authorID int64) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&followRow{}).Where("author_id = ?", authorID).Count(&count).Error
	return int(count), err
}

func (s *SQLiteStorage) CountFollowing(ctx context.Context, userID int64) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&followRow{}).Where("user_id = ?", userID).Count(&count).Error
	return int(count), err
}

func (s *SQLiteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
