package model

import (
	"time"
)

// Article is a news item owned by exactly one author.
type Article struct {
	ID          ArticleID       `json:"id"`
	AuthorID    AccountID       `json:"authorId"`
	Author      *AccountSummary `json:"author,omitempty"`
	Title       string          `json:"title"`
	Text        string          `json:"text,omitempty"`
	Excerpt     string          `json:"excerpt,omitempty"`
	ImageURL    string          `json:"imageURL,omitempty"`
	FileURL     string          `json:"fileURL,omitempty"`
	IsPublished bool            `json:"isPublished"`
	PublishAt   *time.Time      `json:"publishDate,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   *time.Time      `json:"updatedAt,omitempty"`
}

// NewArticle creates a draft article with a fresh id.
func NewArticle(author AccountID, title, text string, now time.Time) Article {
	return Article{
		ID:        NewArticleID(),
		AuthorID:  author,
		Title:     title,
		Text:      text,
		CreatedAt: now,
	}
}

// Clone returns a deep copy so callers can mutate without aliasing time pointers.
func (a *Article) Clone() *Article {
	c := *a
	if a.PublishAt != nil {
		t := *a.PublishAt
		c.PublishAt = &t
	}
	if a.UpdatedAt != nil {
		t := *a.UpdatedAt
		c.UpdatedAt = &t
	}
	if a.Author != nil {
		s := *a.Author
		c.Author = &s
	}
	return &c
}
