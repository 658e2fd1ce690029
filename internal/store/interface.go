package store

import (
	"context"
	"errors"

	"newsdesk/internal/model"
)

var (
	ErrArticleNotFound = errors.New("article not found")
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailTaken      = errors.New("email already registered")
	// ErrWriteConflict is returned when a conditional write kept losing to
	// concurrent writers.
	ErrWriteConflict = errors.New("concurrent write conflict")
)

// maxUpdateAttempts bounds the optimistic read-modify-write loop of UpdateArticle.
const maxUpdateAttempts = 3

// ArticleFilter narrows ListArticles. Results are always sorted by creation
// time, newest first.
type ArticleFilter struct {
	// Published, when set, keeps only articles with that publication flag.
	Published *bool
	// WithAuthors resolves Article.Author for every result.
	WithAuthors bool
}

func Published() ArticleFilter { t := true; return ArticleFilter{Published: &t, WithAuthors: true} }

func Unpublished() ArticleFilter { f := false; return ArticleFilter{Published: &f} }

func (f ArticleFilter) match(a *model.Article) bool {
	return f.Published == nil || *f.Published == a.IsPublished
}

// MutateFunc changes an article in place. Returning an error aborts the write.
type MutateFunc func(a *model.Article) error

type ArticleStore interface {
	CreateArticle(ctx context.Context, a *model.Article) error
	GetArticle(ctx context.Context, id model.ArticleID) (*model.Article, error)
	ListArticles(ctx context.Context, f ArticleFilter) ([]model.Article, error)
	// UpdateArticle re-reads the article, applies fn and persists the full
	// result. The write only lands if the publication flag has not changed
	// since the read; otherwise fn is re-run against a fresh copy.
	UpdateArticle(ctx context.Context, id model.ArticleID, fn MutateFunc) (*model.Article, error)
	DeleteArticle(ctx context.Context, id model.ArticleID) error
}

type AccountStore interface {
	CreateAccount(ctx context.Context, acc *model.Account) error
	GetAccount(ctx context.Context, id model.AccountID) (*model.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)
}

type Store interface {
	ArticleStore
	AccountStore
	Close() error
}
