package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"newsdesk/internal/model"

	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// InMemory as the badger path opens Badger without touching disk.
const InMemory = ":memory:"

const (
	keyCreated     = "articles:created"
	keyUnpublished = "articles:unpublished"
)

var errNoContentStore = errors.New("cannot save content: badgerdb is not initialized")

func articleKey(id model.ArticleID) string { return "article:" + id.String() }
func accountKey(id model.AccountID) string { return "account:" + id.String() }
func emailKey(email string) string         { return "account:email:" + email }
func textKey(id model.ArticleID) []byte    { return []byte("text:" + id.String()) }

var _ Store = (*HybridStore)(nil)

// HybridStore keeps article metadata, listing indexes and accounts in Redis
// and the heavy article text in Badger.
type HybridStore struct {
	rdb    *redis.Client
	db     *badger.DB
	logger *zap.Logger

	gcInterval time.Duration
	stopGC     chan struct{}
	gcDone     chan struct{}
}

type HybridOption func(*HybridStore)

func WithLogger(logger *zap.Logger) HybridOption {
	return func(s *HybridStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithGCInterval sets how often the Badger value log is garbage collected.
func WithGCInterval(d time.Duration) HybridOption {
	return func(s *HybridStore) { s.gcInterval = d }
}

// NewHybridStore connects to Redis and opens Badger.
// Pass badgerPath="" to run in Redis-only mode: metadata and publication
// state remain fully usable, but article text can be neither read nor written.
func NewHybridStore(redisAddr string, badgerPath string, opts ...HybridOption) (*HybridStore, error) {
	s := &HybridStore{
		logger:     zap.NewNop(),
		gcInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	s.rdb = rdb

	if badgerPath != "" {
		bopts := badger.DefaultOptions(badgerPath)
		if badgerPath == InMemory {
			bopts = badger.DefaultOptions("").WithInMemory(true)
		}
		bopts.Logger = nil
		db, err := badger.Open(bopts)
		if err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to open badger: %w", err)
		}
		s.db = db

		if badgerPath != InMemory {
			s.startGC()
		}
	}

	return s, nil
}

// HasContentStore reports whether Badger is open, i.e. whether article text
// can be read and written.
func (s *HybridStore) HasContentStore() bool { return s.db != nil }

func (s *HybridStore) startGC() {
	s.stopGC = make(chan struct{})
	s.gcDone = make(chan struct{})

	go func() {
		defer close(s.gcDone)
		ticker := time.NewTicker(s.gcInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopGC:
				return
			case <-ticker.C:
				err := s.db.RunValueLogGC(0.7)
				if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
					s.logger.Warn("badger value log gc failed", zap.Error(err))
				}
			}
		}
	}()
}

// Close stops background GC and closes both databases.
func (s *HybridStore) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.gcDone
		s.stopGC = nil
	}

	var errs []error
	if s.rdb != nil {
		errs = append(errs, s.rdb.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

// metadata strips the fields that are not stored in Redis.
func metadata(a *model.Article) ([]byte, error) {
	meta := *a
	meta.Text = ""
	meta.Author = nil
	return json.Marshal(meta)
}

// CreateArticle writes text to Badger first so that metadata visible in
// Redis always has its text available.
func (s *HybridStore) CreateArticle(ctx context.Context, a *model.Article) error {
	if err := s.putText(a.ID, a.Text); err != nil {
		return err
	}

	data, err := metadata(a)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, articleKey(a.ID), data, 0)
	pipe.ZAdd(ctx, keyCreated, redis.Z{Score: float64(a.CreatedAt.UnixMicro()), Member: a.ID.String()})
	if !a.IsPublished {
		pipe.SAdd(ctx, keyUnpublished, a.ID.String())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store/redis: create article: %w", err)
	}
	return nil
}

// GetArticle combines metadata from Redis, text from Badger and the author
// summary.
func (s *HybridStore) GetArticle(ctx context.Context, id model.ArticleID) (*model.Article, error) {
	val, err := s.rdb.Get(ctx, articleKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrArticleNotFound
	} else if err != nil {
		return nil, fmt.Errorf("store/redis: get article: %w", err)
	}

	var a model.Article
	if err := json.Unmarshal(val, &a); err != nil {
		return nil, err
	}

	if a.Text, err = s.getText(id); err != nil {
		return nil, err
	}

	authors, err := s.summaries(ctx, []model.AccountID{a.AuthorID})
	if err != nil {
		return nil, err
	}
	a.Author = authors[a.AuthorID]

	return &a, nil
}

// ListArticles reads ids from the creation index (or the unpublished set
// when only drafts and scheduled articles are wanted) and resolves them.
func (s *HybridStore) ListArticles(ctx context.Context, f ArticleFilter) ([]model.Article, error) {
	var (
		ids []string
		err error
	)
	if f.Published != nil && !*f.Published {
		ids, err = s.rdb.SMembers(ctx, keyUnpublished).Result()
	} else {
		ids, err = s.rdb.ZRevRange(ctx, keyCreated, 0, -1).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("store/redis: list article ids: %w", err)
	}

	articles := make([]model.Article, 0, len(ids))
	if len(ids) == 0 {
		return articles, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = "article:" + id
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("store/redis: list articles: %w", err)
	}

	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// Deleted between the index read and MGET.
			continue
		}
		var a model.Article
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			s.logger.Warn("skipping undecodable article", zap.String("id", ids[i]), zap.Error(err))
			continue
		}
		if f.match(&a) {
			articles = append(articles, a)
		}
	}

	if err := s.fillTexts(articles); err != nil {
		return nil, err
	}

	if f.WithAuthors {
		authorIDs := make([]model.AccountID, 0, len(articles))
		for i := range articles {
			authorIDs = append(authorIDs, articles[i].AuthorID)
		}
		authors, err := s.summaries(ctx, authorIDs)
		if err != nil {
			return nil, err
		}
		for i := range articles {
			articles[i].Author = authors[articles[i].AuthorID]
		}
	}

	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].CreatedAt.After(articles[j].CreatedAt)
	})

	return articles, nil
}

// UpdateArticle runs fn inside a WATCH on the article key, so a concurrent
// write between the read and EXEC aborts the transaction and fn runs again
// on fresh data.
func (s *HybridStore) UpdateArticle(ctx context.Context, id model.ArticleID, fn MutateFunc) (*model.Article, error) {
	key := articleKey(id)
	// wroteText records that some attempt put text into Badger.
	var wroteText bool

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		var (
			updated *model.Article
			oldText string
			fnErr   error
		)

		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			val, err := tx.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return ErrArticleNotFound
			} else if err != nil {
				return err
			}

			var a model.Article
			if err := json.Unmarshal(val, &a); err != nil {
				return err
			}
			if a.Text, err = s.getText(id); err != nil {
				return err
			}
			oldText = a.Text
			author := a.AuthorID

			if fnErr = fn(&a); fnErr != nil {
				return fnErr
			}
			a.ID = id
			a.AuthorID = author
			if a.Text != oldText && s.db == nil {
				return errNoContentStore
			}

			data, err := metadata(&a)
			if err != nil {
				return err
			}

			// Text goes in before EXEC so committed metadata never points
			// at stale text. Readers may briefly see the new text next to
			// the old excerpt; a failed EXEC puts the old text back.
			textChanged := a.Text != oldText
			if textChanged {
				if err := s.putText(id, a.Text); err != nil {
					return err
				}
				wroteText = true
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				if a.IsPublished {
					pipe.SRem(ctx, keyUnpublished, id.String())
				} else {
					pipe.SAdd(ctx, keyUnpublished, id.String())
				}
				return nil
			})
			if err != nil {
				if textChanged {
					if rerr := s.swapText(id, a.Text, oldText); rerr != nil {
						s.logger.Warn("could not restore article text",
							zap.String("id", id.String()), zap.Error(rerr))
					}
				}
				return err
			}

			updated = &a
			return nil
		}, key)

		switch {
		case errors.Is(err, redis.TxFailedErr):
			continue
		case fnErr != nil:
			return nil, fnErr
		case errors.Is(err, ErrArticleNotFound):
			if wroteText {
				// Deleted while we were writing; drop what we put back.
				if derr := s.deleteText(id); derr != nil {
					s.logger.Warn("could not remove orphaned article text",
						zap.String("id", id.String()), zap.Error(derr))
				}
			}
			return nil, err
		case errors.Is(err, errNoContentStore):
			return nil, err
		case err != nil:
			return nil, fmt.Errorf("store/redis: update article: %w", err)
		}

		authors, err := s.summaries(ctx, []model.AccountID{updated.AuthorID})
		if err != nil {
			return nil, err
		}
		updated.Author = authors[updated.AuthorID]

		return updated, nil
	}

	return nil, ErrWriteConflict
}

// DeleteArticle removes the article from Redis and its text from Badger.
func (s *HybridStore) DeleteArticle(ctx context.Context, id model.ArticleID) error {
	pipe := s.rdb.TxPipeline()
	del := pipe.Del(ctx, articleKey(id))
	pipe.ZRem(ctx, keyCreated, id.String())
	pipe.SRem(ctx, keyUnpublished, id.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store/redis: delete article: %w", err)
	}
	if del.Val() == 0 {
		return ErrArticleNotFound
	}

	return s.deleteText(id)
}

// accountRecord is the stored form of an account; unlike model.Account it
// serialises the password hash.
type accountRecord struct {
	ID           model.AccountID `json:"id"`
	Email        string          `json:"email"`
	Name         string          `json:"name,omitempty"`
	PasswordHash string          `json:"passwordHash"`
	CreatedAt    time.Time       `json:"createdAt"`
}

func (r *accountRecord) account() *model.Account {
	return &model.Account{ID: r.ID, Email: r.Email, Name: r.Name, PasswordHash: r.PasswordHash, CreatedAt: r.CreatedAt}
}

// CreateAccount claims the email with SETNX before writing the account, so
// two concurrent registrations for one email cannot both succeed.
func (s *HybridStore) CreateAccount(ctx context.Context, acc *model.Account) error {
	ok, err := s.rdb.SetNX(ctx, emailKey(acc.Email), acc.ID.String(), 0).Result()
	if err != nil {
		return fmt.Errorf("store/redis: claim email: %w", err)
	}
	if !ok {
		return ErrEmailTaken
	}

	rec := accountRecord{ID: acc.ID, Email: acc.Email, Name: acc.Name, PasswordHash: acc.PasswordHash, CreatedAt: acc.CreatedAt}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, accountKey(acc.ID), data, 0).Err(); err != nil {
		s.rdb.Del(ctx, emailKey(acc.Email))
		return fmt.Errorf("store/redis: create account: %w", err)
	}
	return nil
}

func (s *HybridStore) GetAccount(ctx context.Context, id model.AccountID) (*model.Account, error) {
	val, err := s.rdb.Get(ctx, accountKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrAccountNotFound
	} else if err != nil {
		return nil, fmt.Errorf("store/redis: get account: %w", err)
	}

	var rec accountRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, err
	}
	return rec.account(), nil
}

func (s *HybridStore) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	idStr, err := s.rdb.Get(ctx, emailKey(email)).Result()
	if err == redis.Nil {
		return nil, ErrAccountNotFound
	} else if err != nil {
		return nil, fmt.Errorf("store/redis: get account by email: %w", err)
	}

	id, err := model.ParseAccountID(idStr)
	if err != nil {
		return nil, fmt.Errorf("store/redis: corrupt email index for %q: %w", email, err)
	}
	return s.GetAccount(ctx, id)
}

// summaries resolves author ids in a single MGET. Unknown ids are absent
// from the result.
func (s *HybridStore) summaries(ctx context.Context, ids []model.AccountID) (map[model.AccountID]*model.AccountSummary, error) {
	out := make(map[model.AccountID]*model.AccountSummary, len(ids))

	seen := make(map[model.AccountID]bool, len(ids))
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			keys = append(keys, accountKey(id))
		}
	}
	if len(keys) == 0 {
		return out, nil
	}

	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("store/redis: resolve authors: %w", err)
	}
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec accountRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		out[rec.ID] = rec.account().Summary()
	}
	return out, nil
}

func (s *HybridStore) putText(id model.ArticleID, text string) error {
	if text == "" {
		return nil
	}
	if s.db == nil {
		return errNoContentStore
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(textKey(id), []byte(text))
	})
	if err != nil {
		return fmt.Errorf("store/badger: put text: %w", err)
	}
	return nil
}

// swapText replaces the stored text with next only while it still equals
// expect, so it never clobbers a newer write.
func (s *HybridStore) swapText(id model.ArticleID, expect, next string) error {
	if s.db == nil {
		return nil
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		var cur string
		item, err := txn.Get(textKey(id))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			cur = string(val)
		}
		if cur != expect {
			return nil
		}
		if next == "" {
			return txn.Delete(textKey(id))
		}
		return txn.Set(textKey(id), []byte(next))
	})
	if err != nil {
		return fmt.Errorf("store/badger: swap text: %w", err)
	}
	return nil
}

func (s *HybridStore) deleteText(id model.ArticleID) error {
	if s.db == nil {
		return nil
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(textKey(id))
	})
	if err != nil {
		return fmt.Errorf("store/badger: delete text: %w", err)
	}
	return nil
}

// getText returns "" in Redis-only mode or when no text was stored.
func (s *HybridStore) getText(id model.ArticleID) (string, error) {
	if s.db == nil {
		return "", nil
	}

	var text string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(textKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			text = string(val)
			return nil
		})
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("store/badger: get text: %w", err)
	}
	return text, nil
}

func (s *HybridStore) fillTexts(articles []model.Article) error {
	if s.db == nil || len(articles) == 0 {
		return nil
	}

	err := s.db.View(func(txn *badger.Txn) error {
		for i := range articles {
			item, err := txn.Get(textKey(articles[i].ID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			} else if err != nil {
				return err
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			articles[i].Text = string(val)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store/badger: list texts: %w", err)
	}
	return nil
}
