// Package services holds the article and account use cases behind the HTTP
// surface: input validation, the access gate, the publication state machine
// and the store.
package services

import (
	"context"
	"strings"
	"time"

	"newsdesk/internal/access"
	"newsdesk/internal/apperr"
	"newsdesk/internal/blob"
	"newsdesk/internal/clock"
	"newsdesk/internal/model"
	"newsdesk/internal/publication"
	"newsdesk/internal/store"

	"go.uber.org/zap"
)

// CreateArticleInput carries a new article. PublishAt, when set, is applied
// as an explicit publish request right after creation.
type CreateArticleInput struct {
	Title     string
	Text      string
	PublishAt *time.Time
	Image     *blob.Object
	File      *blob.Object
}

// UpdateArticleInput changes only the fields that are set.
type UpdateArticleInput struct {
	Title *string
	Text  *string
	Image *blob.Object
	File  *blob.Object
}

func (in UpdateArticleInput) empty() bool {
	return in.Title == nil && in.Text == nil && in.Image == nil && in.File == nil
}

type ArticleService struct {
	store  store.ArticleStore
	blobs  blob.Storage
	clock  clock.Clock
	logger *zap.Logger
}

func NewArticleService(st store.ArticleStore, blobs blob.Storage, clk clock.Clock, logger *zap.Logger) *ArticleService {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArticleService{store: st, blobs: blobs, clock: clk, logger: logger.Named("articles")}
}

func (s *ArticleService) Create(ctx context.Context, caller model.AccountID, in CreateArticleInput) (*model.Article, error) {
	title, text := strings.TrimSpace(in.Title), strings.TrimSpace(in.Text)
	if title == "" || text == "" {
		return nil, apperr.Validation("title and text are required")
	}

	now := s.clock.Now()
	a := model.NewArticle(caller, title, text, now)
	a.Excerpt = makeExcerpt(text)

	if in.PublishAt != nil {
		if err := publication.Publish(&a, now, in.PublishAt); err != nil {
			return nil, translate(err)
		}
	}

	var err error
	if a.ImageURL, err = s.upload(ctx, in.Image); err != nil {
		return nil, err
	}
	if a.FileURL, err = s.upload(ctx, in.File); err != nil {
		s.discard(ctx, a.ImageURL)
		return nil, err
	}

	if err := s.store.CreateArticle(ctx, &a); err != nil {
		s.discard(ctx, a.ImageURL, a.FileURL)
		return nil, translate(err)
	}
	s.logger.Info("Article created",
		zap.String("article_id", a.ID.String()),
		zap.String("author_id", caller.String()),
		zap.Stringer("state", publication.StateOf(&a)))

	return s.Get(ctx, caller, a.ID.String())
}

// Get returns one article. Unpublished articles are reported as missing to
// everyone but their author; caller is zero for anonymous readers.
func (s *ArticleService) Get(ctx context.Context, caller model.AccountID, rawID string) (*model.Article, error) {
	id, err := parseArticleID(rawID)
	if err != nil {
		return nil, err
	}
	a, err := s.store.GetArticle(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if !access.CanRead(caller, a) {
		return nil, apperr.NotFound("article not found")
	}
	return a, nil
}

// List returns every article, newest first, with authors resolved.
func (s *ArticleService) List(ctx context.Context) ([]model.Article, error) {
	articles, err := s.store.ListArticles(ctx, store.ArticleFilter{WithAuthors: true})
	if err != nil {
		return nil, translate(err)
	}
	return articles, nil
}

func (s *ArticleService) ListPublished(ctx context.Context) ([]model.Article, error) {
	articles, err := s.store.ListArticles(ctx, store.Published())
	if err != nil {
		return nil, translate(err)
	}
	return articles, nil
}

// Update changes content or attachments. The gate is checked on the fetched
// article before uploads, and again on the copy the write is based on.
func (s *ArticleService) Update(ctx context.Context, caller model.AccountID, rawID string, in UpdateArticleInput) (*model.Article, error) {
	if in.empty() {
		return nil, apperr.Validation("nothing to update")
	}
	var title, text string
	if in.Title != nil {
		if title = strings.TrimSpace(*in.Title); title == "" {
			return nil, apperr.Validation("title must not be empty")
		}
	}
	if in.Text != nil {
		if text = strings.TrimSpace(*in.Text); text == "" {
			return nil, apperr.Validation("text must not be empty")
		}
	}

	id, err := s.authorized(ctx, caller, rawID)
	if err != nil {
		return nil, err
	}

	imageURL, err := s.upload(ctx, in.Image)
	if err != nil {
		return nil, err
	}
	fileURL, err := s.upload(ctx, in.File)
	if err != nil {
		s.discard(ctx, imageURL)
		return nil, err
	}

	// Attachments the write replaces; set by the last mutation run.
	var replaced []string
	updated, err := s.store.UpdateArticle(ctx, id, func(a *model.Article) error {
		replaced = replaced[:0]
		if err := access.Authorize(caller, a); err != nil {
			return err
		}
		if in.Title != nil {
			a.Title = title
		}
		if in.Text != nil && text != a.Text {
			a.Text = text
			a.Excerpt = makeExcerpt(text)
		}
		if imageURL != "" {
			replaced = append(replaced, a.ImageURL)
			a.ImageURL = imageURL
		}
		if fileURL != "" {
			replaced = append(replaced, a.FileURL)
			a.FileURL = fileURL
		}
		now := s.clock.Now()
		a.UpdatedAt = &now
		return nil
	})
	if err != nil {
		s.discard(ctx, imageURL, fileURL)
		return nil, translate(err)
	}
	s.discard(ctx, replaced...)
	return updated, nil
}

// Publish publishes the article now, or schedules it when at is in the
// future. Publishing a published article is a conflict.
func (s *ArticleService) Publish(ctx context.Context, caller model.AccountID, rawID string, at *time.Time) (*model.Article, error) {
	id, err := s.authorized(ctx, caller, rawID)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateArticle(ctx, id, func(a *model.Article) error {
		if err := access.Authorize(caller, a); err != nil {
			return err
		}
		return publication.Publish(a, s.clock.Now(), at)
	})
	if err != nil {
		return nil, translate(err)
	}

	s.logger.Info("Article publication requested",
		zap.String("article_id", id.String()),
		zap.Stringer("state", publication.StateOf(updated)))
	return updated, nil
}

func (s *ArticleService) Delete(ctx context.Context, caller model.AccountID, rawID string) error {
	id, err := s.authorized(ctx, caller, rawID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteArticle(ctx, id); err != nil {
		return translate(err)
	}
	s.logger.Info("Article deleted", zap.String("article_id", id.String()))
	return nil
}

// authorized resolves rawID and applies the gate. Unknown ids fail with
// NotFound before the gate runs.
func (s *ArticleService) authorized(ctx context.Context, caller model.AccountID, rawID string) (model.ArticleID, error) {
	id, err := parseArticleID(rawID)
	if err != nil {
		return id, err
	}
	a, err := s.store.GetArticle(ctx, id)
	if err != nil {
		return id, translate(err)
	}
	if err := access.Authorize(caller, a); err != nil {
		return id, err
	}
	return id, nil
}

// discard removes uploads that no stored article refers to. Failures are
// logged only; the caller has nothing better to do with them.
func (s *ArticleService) discard(ctx context.Context, refs ...string) {
	if s.blobs == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, ref); err != nil {
			s.logger.Warn("Could not remove unused attachment", zap.String("ref", ref), zap.Error(err))
		}
	}
}

func (s *ArticleService) upload(ctx context.Context, obj *blob.Object) (string, error) {
	if obj == nil {
		return "", nil
	}
	if s.blobs == nil {
		return "", apperr.Validation("attachments are not accepted")
	}
	ref, err := s.blobs.Put(ctx, *obj)
	if err != nil {
		return "", apperr.Internal(err)
	}
	return ref, nil
}
