package models

import "time"

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	DateJoined   time.Time `json:"dateJoined"`
}

type Group struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

// Post.Image holds a media key; empty means no image.
type Post struct {
	ID       int64     `json:"id"`
	Text     string    `json:"text"`
	PubDate  time.Time `json:"pubDate"`
	AuthorID int64     `json:"authorId"`
	GroupID  *int64    `json:"groupId"`
	Image    string    `json:"image"`
}

// Comment.PostID is nil once the post it belonged to is deleted.
type Comment struct {
	ID       int64     `json:"id"`
	PostID   *int64    `json:"postId"`
	AuthorID int64     `json:"authorId"`
	Text     string    `json:"text"`
	Created  time.Time `json:"created"`
}

// PostView is a post with its author and group already resolved.
type PostView struct {
	*Post
	Author *User  `json:"author"`
	Group  *Group `json:"group"`
}

type CommentView struct {
	*Comment
	Author *User `json:"author"`
}
