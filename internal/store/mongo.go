package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"newsdesk/internal/model"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// Collection names match the ones existing deployments already use.
const (
	colNews  = "news"
	colUsers = "users"
)

var _ Store = (*MongoStore)(nil)

// MongoStore keeps articles and accounts as MongoDB documents.
type MongoStore struct {
	client *mongod.Client
	db     *mongod.Database
	news   articleDocs
	logger *zap.Logger
}

// NewMongoStore connects to uri and verifies the connection.
func NewMongoStore(ctx context.Context, uri, database string, logger *zap.Logger) (*MongoStore, error) {
	client, err := mongod.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("store/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("store/mongo: ping: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	db := client.Database(database)
	return &MongoStore{
		client: client,
		db:     db,
		news:   collectionDocs{db.Collection(colNews)},
		logger: logger,
	}, nil
}

// Migrate creates the indexes the store relies on.
func (s *MongoStore) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("store/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colUsers: {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colNews: {
			// Listing and sweep scans.
			{Keys: bson.D{{Key: "isPublished", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		},
	}
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

type newsDoc struct {
	ID          string     `bson:"_id"`
	Title       string     `bson:"title"`
	Text        string     `bson:"text"`
	Excerpt     string     `bson:"excerpt,omitempty"`
	ImageURL    string     `bson:"imageURL,omitempty"`
	FileURL     string     `bson:"fileURL,omitempty"`
	Author      string     `bson:"author"`
	IsPublished bool       `bson:"isPublished"`
	PublishDate *time.Time `bson:"publishDate,omitempty"`
	CreatedAt   time.Time  `bson:"createdAt"`
	UpdatedAt   *time.Time `bson:"updatedAt,omitempty"`
	// Version is bumped on every UpdateArticle write. Documents created
	// before it existed have no field, which reads as zero.
	Version int64 `bson:"version"`

	// Populated by the $lookup stage only.
	Authors []userDoc `bson:"authors,omitempty"`
}

type userDoc struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name,omitempty"`
	Email     string    `bson:"email"`
	Password  string    `bson:"password"`
	CreatedAt time.Time `bson:"createdAt"`
}

func toNewsDoc(a *model.Article) *newsDoc {
	return &newsDoc{
		ID:          a.ID.String(),
		Title:       a.Title,
		Text:        a.Text,
		Excerpt:     a.Excerpt,
		ImageURL:    a.ImageURL,
		FileURL:     a.FileURL,
		Author:      a.AuthorID.String(),
		IsPublished: a.IsPublished,
		PublishDate: a.PublishAt,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func fromNewsDoc(d *newsDoc) (*model.Article, error) {
	id, err := model.ParseArticleID(d.ID)
	if err != nil {
		return nil, fmt.Errorf("store/mongo: parse article id %q: %w", d.ID, err)
	}
	author, err := model.ParseAccountID(d.Author)
	if err != nil {
		return nil, fmt.Errorf("store/mongo: parse author id %q: %w", d.Author, err)
	}

	a := &model.Article{
		ID:          id,
		AuthorID:    author,
		Title:       d.Title,
		Text:        d.Text,
		Excerpt:     d.Excerpt,
		ImageURL:    d.ImageURL,
		FileURL:     d.FileURL,
		IsPublished: d.IsPublished,
		PublishAt:   d.PublishDate,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if len(d.Authors) > 0 {
		if acc, err := fromUserDoc(&d.Authors[0]); err == nil {
			a.Author = acc.Summary()
		}
	}
	return a, nil
}

func toUserDoc(acc *model.Account) *userDoc {
	return &userDoc{
		ID:        acc.ID.String(),
		Name:      acc.Name,
		Email:     acc.Email,
		Password:  acc.PasswordHash,
		CreatedAt: acc.CreatedAt,
	}
}

func fromUserDoc(d *userDoc) (*model.Account, error) {
	id, err := model.ParseAccountID(d.ID)
	if err != nil {
		return nil, fmt.Errorf("store/mongo: parse account id %q: %w", d.ID, err)
	}
	return &model.Account{ID: id, Email: d.Email, Name: d.Name, PasswordHash: d.Password, CreatedAt: d.CreatedAt}, nil
}

func (s *MongoStore) CreateArticle(ctx context.Context, a *model.Article) error {
	return s.news.insert(ctx, toNewsDoc(a))
}

func (s *MongoStore) GetArticle(ctx context.Context, id model.ArticleID) (*model.Article, error) {
	articles, err := s.aggregate(ctx, bson.M{"_id": id.String()}, true)
	if err != nil {
		return nil, err
	}
	if len(articles) == 0 {
		return nil, ErrArticleNotFound
	}
	return &articles[0], nil
}

func (s *MongoStore) ListArticles(ctx context.Context, f ArticleFilter) ([]model.Article, error) {
	return s.aggregate(ctx, listFilter(f), f.WithAuthors)
}

func listFilter(f ArticleFilter) bson.M {
	match := bson.M{}
	if f.Published != nil {
		match["isPublished"] = *f.Published
	}
	return match
}

// articlePipeline sorts newest first and optionally joins the author the
// way mongoose's populate does.
func articlePipeline(match bson.M, withAuthors bool) mongod.Pipeline {
	pipeline := mongod.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
	}
	if withAuthors {
		pipeline = append(pipeline, bson.D{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: colUsers},
			{Key: "localField", Value: "author"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "authors"},
		}}})
	}
	return pipeline
}

func (s *MongoStore) aggregate(ctx context.Context, match bson.M, withAuthors bool) ([]model.Article, error) {
	docs, err := s.news.aggregate(ctx, match, withAuthors)
	if err != nil {
		return nil, err
	}

	articles := make([]model.Article, 0, len(docs))
	for i := range docs {
		a, err := fromNewsDoc(&docs[i])
		if err != nil {
			s.logger.Warn("skipping undecodable article", zap.String("id", docs[i].ID), zap.Error(err))
			continue
		}
		articles = append(articles, *a)
	}
	return articles, nil
}

// articleDocs is the news collection as the store uses it.
type articleDocs interface {
	// aggregate runs articlePipeline and decodes the results.
	aggregate(ctx context.Context, match bson.M, withAuthors bool) ([]newsDoc, error)
	find(ctx context.Context, id string) (*newsDoc, error)
	insert(ctx context.Context, doc *newsDoc) error
	// replace writes doc only if the stored version still equals version.
	replace(ctx context.Context, id string, version int64, doc *newsDoc) (bool, error)
	remove(ctx context.Context, id string) error
}

type collectionDocs struct {
	col *mongod.Collection
}

func (c collectionDocs) aggregate(ctx context.Context, match bson.M, withAuthors bool) ([]newsDoc, error) {
	cursor, err := c.col.Aggregate(ctx, articlePipeline(match, withAuthors))
	if err != nil {
		return nil, fmt.Errorf("store/mongo: list articles: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []newsDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("store/mongo: list articles decode: %w", err)
	}
	return docs, nil
}

func (c collectionDocs) find(ctx context.Context, id string) (*newsDoc, error) {
	var doc newsDoc
	if err := c.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongod.ErrNoDocuments) {
			return nil, ErrArticleNotFound
		}
		return nil, fmt.Errorf("store/mongo: get article: %w", err)
	}
	return &doc, nil
}

func (c collectionDocs) insert(ctx context.Context, doc *newsDoc) error {
	if _, err := c.col.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("store/mongo: create article: %w", err)
	}
	return nil
}

func (c collectionDocs) remove(ctx context.Context, id string) error {
	res, err := c.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("store/mongo: delete article: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrArticleNotFound
	}
	return nil
}

func (c collectionDocs) replace(ctx context.Context, id string, version int64, doc *newsDoc) (bool, error) {
	res, err := c.col.ReplaceOne(ctx, replaceFilter(id, version), doc)
	if err != nil {
		return false, fmt.Errorf("store/mongo: update article: %w", err)
	}
	return res.MatchedCount > 0, nil
}

func replaceFilter(id string, version int64) bson.M {
	if version == 0 {
		return bson.M{"_id": id, "$or": bson.A{
			bson.M{"version": 0},
			bson.M{"version": bson.M{"$exists": false}},
		}}
	}
	return bson.M{"_id": id, "version": version}
}

// UpdateArticle replaces the document only if no other write landed since
// it was read. Any concurrent update, publication or delete makes the
// replace miss, and fn is re-run on a fresh copy.
func (s *MongoStore) UpdateArticle(ctx context.Context, id model.ArticleID, fn MutateFunc) (*model.Article, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		doc, err := s.news.find(ctx, id.String())
		if err != nil {
			return nil, err
		}

		a, err := fromNewsDoc(doc)
		if err != nil {
			return nil, err
		}
		author := a.AuthorID

		if err := fn(a); err != nil {
			return nil, err
		}
		a.ID = id
		a.AuthorID = author

		next := toNewsDoc(a)
		next.Version = doc.Version + 1
		ok, err := s.news.replace(ctx, id.String(), doc.Version, next)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		return s.GetArticle(ctx, id)
	}

	return nil, ErrWriteConflict
}

func (s *MongoStore) DeleteArticle(ctx context.Context, id model.ArticleID) error {
	return s.news.remove(ctx, id.String())
}

func (s *MongoStore) CreateAccount(ctx context.Context, acc *model.Account) error {
	_, err := s.db.Collection(colUsers).InsertOne(ctx, toUserDoc(acc))
	if err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("store/mongo: create account: %w", err)
	}
	return nil
}

func (s *MongoStore) GetAccount(ctx context.Context, id model.AccountID) (*model.Account, error) {
	return s.findAccount(ctx, bson.M{"_id": id.String()})
}

func (s *MongoStore) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	return s.findAccount(ctx, bson.M{"email": email})
}

func (s *MongoStore) findAccount(ctx context.Context, filter bson.M) (*model.Account, error) {
	var doc userDoc
	err := s.db.Collection(colUsers).FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongod.ErrNoDocuments) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("store/mongo: get account: %w", err)
	}
	return fromUserDoc(&doc)
}
