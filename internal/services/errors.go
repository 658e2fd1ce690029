package services

import (
	"errors"

	"newsdesk/internal/apperr"
	"newsdesk/internal/model"
	"newsdesk/internal/publication"
	"newsdesk/internal/store"
)

// translate maps store and state machine errors onto the apperr taxonomy.
// Errors that are already classified pass through.
func translate(err error) error {
	var ae *apperr.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ae):
		return err
	case errors.Is(err, store.ErrArticleNotFound):
		return apperr.NotFound("article not found")
	case errors.Is(err, store.ErrAccountNotFound):
		return apperr.NotFound("account not found")
	case errors.Is(err, store.ErrEmailTaken):
		return apperr.Conflict("account already exists")
	case errors.Is(err, publication.ErrAlreadyPublished):
		return apperr.Conflict("article already published")
	case errors.Is(err, store.ErrWriteConflict):
		return apperr.Conflict("article was modified concurrently, try again")
	default:
		return apperr.Internal(err)
	}
}

// parseArticleID treats a malformed id like an unknown one.
func parseArticleID(raw string) (model.ArticleID, error) {
	id, err := model.ParseArticleID(raw)
	if err != nil {
		return model.ArticleID{}, apperr.NotFound("article not found")
	}
	return id, nil
}
