package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"newsdesk/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"
)

func TestNewsDoc_Conversion(t *testing.T) {
	now := time.Date(2025, 5, 29, 10, 0, 0, 0, time.UTC)
	a := model.NewArticle(model.NewAccountID(), "Title", "Text", now)
	a.ImageURL = "/uploads/image.jpg"
	a.PublishAt = &now

	doc := toNewsDoc(&a)
	assert.Equal(t, a.ID.String(), doc.ID)
	assert.Equal(t, a.AuthorID.String(), doc.Author)
	assert.Equal(t, &now, doc.PublishDate)

	author := &model.Account{ID: a.AuthorID, Email: "oleg@example.com", Name: "Oleg", PasswordHash: "secret"}
	doc.Authors = []userDoc{*toUserDoc(author)}

	back, err := fromNewsDoc(doc)
	require.NoError(t, err)
	assert.Equal(t, a.ID, back.ID)
	assert.Equal(t, a.AuthorID, back.AuthorID)
	assert.Equal(t, "/uploads/image.jpg", back.ImageURL)
	require.NotNil(t, back.Author)
	assert.Equal(t, "Oleg", back.Author.Name)
}

func TestFromNewsDoc_BadID(t *testing.T) {
	_, err := fromNewsDoc(&newsDoc{ID: "60f7f9b7e1d3c81234567890", Author: model.NewAccountID().String()})
	assert.Error(t, err)
}

func TestUserDoc_KeepsHash(t *testing.T) {
	acc := &model.Account{ID: model.NewAccountID(), Email: "a@example.com", PasswordHash: "$2a$08$x"}

	back, err := fromUserDoc(toUserDoc(acc))
	require.NoError(t, err)
	assert.Equal(t, acc.PasswordHash, back.PasswordHash)
	assert.Equal(t, acc.ID, back.ID)
}

func TestListFilter(t *testing.T) {
	assert.Equal(t, bson.M{}, listFilter(ArticleFilter{}))
	assert.Equal(t, bson.M{"isPublished": true}, listFilter(Published()))
	assert.Equal(t, bson.M{"isPublished": false}, listFilter(Unpublished()))
}

func TestArticlePipeline(t *testing.T) {
	p := articlePipeline(bson.M{}, false)
	require.Len(t, p, 2)
	assert.Equal(t, "$match", p[0][0].Key)
	assert.Equal(t, "$sort", p[1][0].Key)

	p = articlePipeline(bson.M{}, true)
	require.Len(t, p, 3)
	assert.Equal(t, "$lookup", p[2][0].Key)
}

func TestMigrationIndexes_UniqueEmail(t *testing.T) {
	idx := migrationIndexes()

	require.Len(t, idx[colUsers], 1)
	assert.Equal(t, bson.D{{Key: "email", Value: 1}}, idx[colUsers][0].Keys)
	assert.NotNil(t, idx[colUsers][0].Options)
	assert.NotEmpty(t, idx[colNews])
}

func TestReplaceFilter(t *testing.T) {
	assert.Equal(t, bson.M{"_id": "a", "version": int64(3)}, replaceFilter("a", 3))

	legacy := replaceFilter("a", 0)
	assert.Equal(t, "a", legacy["_id"])
	assert.Len(t, legacy["$or"], 2)
}

// memDocs is an in-memory news collection with the same conditional
// replace semantics as the MongoDB filter.
type memDocs struct {
	mu   sync.Mutex
	docs map[string]newsDoc
	// beforeReplace runs once per replace call, outside the lock.
	beforeReplace func()
	replaces      int
}

func newMemDocs() *memDocs { return &memDocs{docs: map[string]newsDoc{}} }

func (m *memDocs) aggregate(_ context.Context, match bson.M, _ bool) ([]newsDoc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []newsDoc
	for _, d := range m.docs {
		if id, ok := match["_id"]; ok && id != d.ID {
			continue
		}
		if pub, ok := match["isPublished"]; ok && pub != d.IsPublished {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memDocs) find(_ context.Context, id string) (*newsDoc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.docs[id]
	if !ok {
		return nil, ErrArticleNotFound
	}
	return &d, nil
}

func (m *memDocs) insert(_ context.Context, doc *newsDoc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = *doc
	return nil
}

func (m *memDocs) replace(_ context.Context, id string, version int64, doc *newsDoc) (bool, error) {
	if hook := m.beforeReplace; hook != nil {
		m.beforeReplace = nil
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaces++

	cur, ok := m.docs[id]
	if !ok || cur.Version != version {
		return false, nil
	}
	m.docs[id] = *doc
	return true, nil
}

func (m *memDocs) remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[id]; !ok {
		return ErrArticleNotFound
	}
	delete(m.docs, id)
	return nil
}

func newMemMongoStore(t *testing.T) (*MongoStore, *memDocs) {
	t.Helper()
	docs := newMemDocs()
	return &MongoStore{news: docs, logger: zap.NewNop()}, docs
}

func seedScheduled(t *testing.T, s *MongoStore, title string) model.Article {
	t.Helper()
	now := time.Date(2025, 5, 29, 10, 0, 0, 0, time.UTC)
	at := now.Add(-time.Minute)
	a := model.NewArticle(model.NewAccountID(), title, "Text", now)
	a.PublishAt = &at
	require.NoError(t, s.CreateArticle(context.Background(), &a))
	return a
}

func promote(a *model.Article) error {
	if a.IsPublished {
		return errors.New("already published")
	}
	a.IsPublished = true
	return nil
}

func TestMongoUpdateArticle_BumpsVersion(t *testing.T) {
	s, docs := newMemMongoStore(t)
	a := seedScheduled(t, s, "Title")

	got, err := s.UpdateArticle(context.Background(), a.ID, promote)
	require.NoError(t, err)
	assert.True(t, got.IsPublished)
	assert.Equal(t, int64(1), docs.docs[a.ID.String()].Version)

	_, err = s.UpdateArticle(context.Background(), a.ID, func(a *model.Article) error { a.Title = "Again"; return nil })
	require.NoError(t, err)
	assert.Equal(t, int64(2), docs.docs[a.ID.String()].Version)
}

func TestMongoUpdateArticle_ConcurrentEditIsNotLost(t *testing.T) {
	s, docs := newMemMongoStore(t)
	ctx := context.Background()
	a := seedScheduled(t, s, "Original")

	// The author edits the title between the sweep's read and its write.
	docs.beforeReplace = func() {
		_, err := s.UpdateArticle(ctx, a.ID, func(a *model.Article) error {
			a.Title = "Edited by author"
			return nil
		})
		require.NoError(t, err)
	}

	var runs int
	got, err := s.UpdateArticle(ctx, a.ID, func(a *model.Article) error {
		runs++
		return promote(a)
	})
	require.NoError(t, err)

	assert.Equal(t, 2, runs, "the stale write must miss and re-run on a fresh copy")
	assert.True(t, got.IsPublished)
	assert.Equal(t, "Edited by author", got.Title)
}

func TestMongoUpdateArticle_ConcurrentPublishSurfaces(t *testing.T) {
	s, docs := newMemMongoStore(t)
	ctx := context.Background()
	a := seedScheduled(t, s, "Title")

	docs.beforeReplace = func() {
		_, err := s.UpdateArticle(ctx, a.ID, promote)
		require.NoError(t, err)
	}

	_, err := s.UpdateArticle(ctx, a.ID, promote)
	assert.EqualError(t, err, "already published")
	assert.Equal(t, int64(1), docs.docs[a.ID.String()].Version)
}

func TestMongoUpdateArticle_DeletedMeanwhile(t *testing.T) {
	s, docs := newMemMongoStore(t)
	ctx := context.Background()
	a := seedScheduled(t, s, "Title")

	docs.beforeReplace = func() { require.NoError(t, s.DeleteArticle(ctx, a.ID)) }

	_, err := s.UpdateArticle(ctx, a.ID, promote)
	assert.ErrorIs(t, err, ErrArticleNotFound)
	assert.Empty(t, docs.docs)
}

func TestMongoUpdateArticle_GivesUpAfterRepeatedConflicts(t *testing.T) {
	s, docs := newMemMongoStore(t)
	ctx := context.Background()
	a := seedScheduled(t, s, "Title")

	var bump func()
	bump = func() {
		docs.mu.Lock()
		d := docs.docs[a.ID.String()]
		d.Version++
		docs.docs[a.ID.String()] = d
		docs.mu.Unlock()
		docs.beforeReplace = bump
	}
	docs.beforeReplace = bump

	_, err := s.UpdateArticle(ctx, a.ID, func(a *model.Article) error { a.Title = "Never"; return nil })
	assert.ErrorIs(t, err, ErrWriteConflict)
	assert.Equal(t, maxUpdateAttempts, docs.replaces)
	assert.Equal(t, "Title", docs.docs[a.ID.String()].Title)
}

func TestMongoUpdateArticle_MutationErrorAborts(t *testing.T) {
	s, docs := newMemMongoStore(t)
	a := seedScheduled(t, s, "Title")

	boom := errors.New("boom")
	_, err := s.UpdateArticle(context.Background(), a.ID, func(a *model.Article) error {
		a.Title = "Changed"
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, docs.replaces)
	assert.Equal(t, "Title", docs.docs[a.ID.String()].Title)
}

func TestMongoStore_ArticlesThroughDocs(t *testing.T) {
	s, _ := newMemMongoStore(t)
	ctx := context.Background()
	a := seedScheduled(t, s, "One")

	unpublished, err := s.ListArticles(ctx, Unpublished())
	require.NoError(t, err)
	require.Len(t, unpublished, 1)
	assert.Equal(t, a.ID, unpublished[0].ID)

	require.NoError(t, s.DeleteArticle(ctx, a.ID))
	_, err = s.GetArticle(ctx, a.ID)
	assert.ErrorIs(t, err, ErrArticleNotFound)
	assert.ErrorIs(t, s.DeleteArticle(ctx, a.ID), ErrArticleNotFound)
}
