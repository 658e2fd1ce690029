package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"newsdesk/internal/auth"
	"newsdesk/internal/blob"
	"newsdesk/internal/clock"
	"newsdesk/internal/model"
	"newsdesk/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var t0 = time.Date(2025, 5, 29, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store    *store.HybridStore
	clock    *clock.Fake
	blobs    *memBlobs
	articles *ArticleService
	accounts *AccountService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	st, err := store.NewHybridStore(mr.Addr(), store.InMemory)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clk := clock.NewFake(t0)
	blobs := &memBlobs{objects: map[string]string{}}
	tokens := auth.NewTokens("test-secret", time.Hour, clk)

	return &fixture{
		store:    st,
		clock:    clk,
		blobs:    blobs,
		articles: NewArticleService(st, blobs, clk, nil),
		accounts: NewAccountService(st, auth.NewHasher(bcrypt.MinCost), tokens, NormalizeLower, clk, nil),
	}
}

func (f *fixture) register(t *testing.T, email string) *model.Account {
	t.Helper()
	acc, err := f.accounts.Register(context.Background(), RegisterInput{Email: email, Password: "oleg228", Name: "Oleg"})
	require.NoError(t, err)
	return acc
}

func (f *fixture) draft(t *testing.T, author model.AccountID, title string) *model.Article {
	t.Helper()
	a, err := f.articles.Create(context.Background(), author, CreateArticleInput{Title: title, Text: "Body of " + title})
	require.NoError(t, err)
	return a
}

// memBlobs is an in-memory blob.Storage.
type memBlobs struct {
	mu      sync.Mutex
	objects map[string]string
	deleted []string
	err     error
	// failName makes Put fail for that filename only.
	failName string
}

func (m *memBlobs) Put(_ context.Context, obj blob.Object) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if m.failName != "" && obj.Filename == m.failName {
		return "", errors.New("upload rejected")
	}
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := "/uploads/" + obj.Filename
	m.objects[ref] = string(data)
	return ref, nil
}

func (m *memBlobs) Delete(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, ref)
	m.deleted = append(m.deleted, ref)
	return nil
}

func obj(name, body string) *blob.Object {
	return &blob.Object{Filename: name, Body: strings.NewReader(body), Size: int64(len(body))}
}

func requireKind(t *testing.T, err error, kind error) {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, kind), "expected %v, got %v", kind, err)
}

func ptr[T any](v T) *T { return &v }

