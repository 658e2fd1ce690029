package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"newsdesk/internal/clock"
	"newsdesk/internal/model"
	"newsdesk/internal/publication"
	"newsdesk/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var t0 = time.Date(2025, 5, 29, 10, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *store.HybridStore {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	st, err := store.NewHybridStore(mr.Addr(), store.InMemory)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seed(t *testing.T, st store.ArticleStore, publishAt *time.Time, published bool) model.Article {
	t.Helper()
	a := model.NewArticle(model.NewAccountID(), "Title", "Body", t0)
	a.PublishAt = publishAt
	a.IsPublished = published
	require.NoError(t, st.CreateArticle(context.Background(), &a))
	return a
}

func at(d time.Duration) *time.Time { t := t0.Add(d); return &t }

func TestRunOnce_PromotesOnlyDueArticles(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	clk := clock.NewFake(t0)

	due := seed(t, st, at(-time.Minute), false)
	exact := seed(t, st, at(0), false)
	future := seed(t, st, at(time.Hour), false)
	draft := seed(t, st, nil, false)
	seed(t, st, at(-time.Hour), true)

	rep := NewSweeper(st, clk, zap.NewNop()).RunOnce(ctx)

	assert.Equal(t, t0, rep.StartedAt)
	assert.Equal(t, 4, rep.Scanned)
	assert.ElementsMatch(t, []model.ArticleID{due.ID, exact.ID}, rep.Published)
	assert.Empty(t, rep.Failed)
	assert.NoError(t, rep.ListErr)

	for _, id := range []model.ArticleID{due.ID, exact.ID} {
		got, err := st.GetArticle(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.IsPublished)
	}
	for _, id := range []model.ArticleID{future.ID, draft.ID} {
		got, err := st.GetArticle(ctx, id)
		require.NoError(t, err)
		assert.False(t, got.IsPublished)
	}
}

func TestRunOnce_ScheduledArticlePublishedExactlyOnce(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	clk := clock.NewFake(t0)
	sw := NewSweeper(st, clk, zap.NewNop())

	a := seed(t, st, at(time.Hour), false)

	rep := sw.RunOnce(ctx)
	assert.Empty(t, rep.Published)

	clk.Advance(time.Hour + time.Minute)
	rep = sw.RunOnce(ctx)
	assert.Equal(t, []model.ArticleID{a.ID}, rep.Published)

	got, err := st.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, publication.Published, publication.StateOf(got))
	assert.Equal(t, *at(time.Hour), got.PublishAt.UTC())

	clk.Advance(time.Minute)
	rep = sw.RunOnce(ctx)
	assert.Empty(t, rep.Published)
	assert.Zero(t, rep.Scanned)
}

// flakyStore fails writes for selected articles and can publish an article
// behind the sweep's back right before its write.
type flakyStore struct {
	store.ArticleStore
	fail  map[model.ArticleID]bool
	race  map[model.ArticleID]bool
	list  error
	calls int
}

func (f *flakyStore) ListArticles(ctx context.Context, filter store.ArticleFilter) ([]model.Article, error) {
	if f.list != nil {
		return nil, f.list
	}
	return f.ArticleStore.ListArticles(ctx, filter)
}

func (f *flakyStore) UpdateArticle(ctx context.Context, id model.ArticleID, fn store.MutateFunc) (*model.Article, error) {
	f.calls++
	if f.fail[id] {
		return nil, errors.New("redis: connection reset")
	}
	if f.race[id] {
		_, err := f.ArticleStore.UpdateArticle(ctx, id, func(a *model.Article) error {
			a.IsPublished = true
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return f.ArticleStore.UpdateArticle(ctx, id, fn)
}

func TestRunOnce_FailureDoesNotAbortBatch(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	a := seed(t, st, at(-3*time.Minute), false)
	b := seed(t, st, at(-2*time.Minute), false)
	c := seed(t, st, at(-time.Minute), false)

	fs := &flakyStore{ArticleStore: st, fail: map[model.ArticleID]bool{b.ID: true}}
	core, logs := observer.New(zapcore.InfoLevel)

	rep := NewSweeper(fs, clock.NewFake(t0), zap.New(core)).RunOnce(ctx)

	assert.Equal(t, 3, fs.calls)
	assert.ElementsMatch(t, []model.ArticleID{a.ID, c.ID}, rep.Published)
	require.Len(t, rep.Failed, 1)
	assert.Equal(t, b.ID, rep.Failed[0].ID)
	assert.EqualError(t, rep.Failed[0].Err, "redis: connection reset")

	assert.Equal(t, 1, logs.FilterMessage("Promoting article failed").Len())
	published := logs.FilterMessage("Published scheduled articles").All()
	require.Len(t, published, 1)
	assert.EqualValues(t, 2, published[0].ContextMap()["count"])

	// The failed article is retried on the next batch.
	fs.fail = nil
	rep = NewSweeper(fs, clock.NewFake(t0), zap.NewNop()).RunOnce(ctx)
	assert.Equal(t, []model.ArticleID{b.ID}, rep.Published)
}

func TestRunOnce_ConcurrentPublishIsSkipped(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	a := seed(t, st, at(-time.Minute), false)
	fs := &flakyStore{ArticleStore: st, race: map[model.ArticleID]bool{a.ID: true}}

	rep := NewSweeper(fs, clock.NewFake(t0), zap.NewNop()).RunOnce(ctx)

	assert.Empty(t, rep.Published)
	assert.Empty(t, rep.Failed)
	assert.Equal(t, []model.ArticleID{a.ID}, rep.Skipped)
}

func TestRunOnce_QuietWhenNothingDue(t *testing.T) {
	st := newStore(t)
	seed(t, st, at(time.Hour), false)

	core, logs := observer.New(zapcore.DebugLevel)
	rep := NewSweeper(st, clock.NewFake(t0), zap.New(core)).RunOnce(context.Background())

	assert.Equal(t, 1, rep.Scanned)
	assert.Empty(t, rep.Published)
	assert.Zero(t, logs.Len())
}

func TestRunOnce_ListFailure(t *testing.T) {
	fs := &flakyStore{ArticleStore: newStore(t), list: errors.New("redis down")}

	rep := NewSweeper(fs, clock.NewFake(t0), zap.NewNop()).RunOnce(context.Background())

	assert.EqualError(t, rep.ListErr, "redis down")
	assert.Zero(t, rep.Scanned)
	assert.Zero(t, fs.calls)
}
