package domain

import "time"

// Post is a blog entry owned by a single account.
type Post struct {
	ID        string
	AuthorID  string
	Title     string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PostWithAuthor joins a post with the public fields of its author.
type PostWithAuthor struct {
	Post
	AuthorName  string
	AuthorEmail string
}
