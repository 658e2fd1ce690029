// Package sweep promotes scheduled articles whose publish instant has
// elapsed.
package sweep

import (
	"context"
	"errors"
	"time"

	"newsdesk/internal/clock"
	"newsdesk/internal/model"
	"newsdesk/internal/publication"
	"newsdesk/internal/store"

	"go.uber.org/zap"
)

// Failure records an article the sweep could not promote.
type Failure struct {
	ID  model.ArticleID
	Err error
}

// Report is the outcome of one sweep batch.
type Report struct {
	StartedAt time.Time
	Scanned   int
	Published []model.ArticleID
	// Skipped holds due articles that another writer published or
	// rescheduled between the scan and the write.
	Skipped []model.ArticleID
	Failed  []Failure
	// ListErr is set when the batch could not read the unpublished set.
	ListErr error
}

type Sweeper struct {
	store  store.ArticleStore
	clock  clock.Clock
	logger *zap.Logger
}

func NewSweeper(st store.ArticleStore, clk clock.Clock, logger *zap.Logger) *Sweeper {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{store: st, clock: clk, logger: logger.Named("sweep")}
}

// RunOnce scans unpublished articles and promotes every one that is due at
// a single sampled instant. Each article is written on its own; a failure
// is recorded and the batch moves on.
func (s *Sweeper) RunOnce(ctx context.Context) Report {
	now := s.clock.Now()
	rep := Report{StartedAt: now}

	articles, err := s.store.ListArticles(ctx, store.Unpublished())
	if err != nil {
		s.logger.Error("Listing unpublished articles failed", zap.Error(err))
		rep.ListErr = err
		return rep
	}
	rep.Scanned = len(articles)

	for i := range articles {
		a := &articles[i]
		if !publication.Due(a, now) {
			continue
		}

		_, err := s.store.UpdateArticle(ctx, a.ID, func(cur *model.Article) error {
			return publication.Promote(cur, now)
		})
		switch {
		case err == nil:
			rep.Published = append(rep.Published, a.ID)
		case errors.Is(err, publication.ErrAlreadyPublished),
			errors.Is(err, publication.ErrNotDue),
			errors.Is(err, store.ErrArticleNotFound):
			rep.Skipped = append(rep.Skipped, a.ID)
		default:
			s.logger.Error("Promoting article failed",
				zap.String("article_id", a.ID.String()),
				zap.Error(err))
			rep.Failed = append(rep.Failed, Failure{ID: a.ID, Err: err})
		}
	}

	if n := len(rep.Published); n > 0 {
		s.logger.Info("Published scheduled articles", zap.Int("count", n))
	}
	return rep
}
