package model

import "github.com/google/uuid"

// ArticleID identifies an article. Distinct from AccountID so the two can
// never be compared by accident.
type ArticleID struct{ uuid.UUID }

// AccountID identifies an account.
type AccountID struct{ uuid.UUID }

func NewArticleID() ArticleID { return ArticleID{uuid.New()} }

func NewAccountID() AccountID { return AccountID{uuid.New()} }

// ParseArticleID parses the canonical string form of an article id.
func ParseArticleID(s string) (ArticleID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ArticleID{}, err
	}
	return ArticleID{id}, nil
}

// ParseAccountID parses the canonical string form of an account id.
func ParseAccountID(s string) (AccountID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return AccountID{}, err
	}
	return AccountID{id}, nil
}

func (id ArticleID) IsZero() bool { return id.UUID == uuid.Nil }

func (id AccountID) IsZero() bool { return id.UUID == uuid.Nil }
