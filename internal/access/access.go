// Package access is the authorization gate for article mutations.
package access

import (
	"newsdesk/internal/apperr"
	"newsdesk/internal/model"
)

// Authorize permits a mutation only when the caller authored the article.
// It must be called on every mutation against a freshly read article.
func Authorize(caller model.AccountID, a *model.Article) error {
	if caller.IsZero() || caller != a.AuthorID {
		return apperr.Forbidden("no access to this article")
	}
	return nil
}

// CanRead reports whether caller may see a. Published articles are public;
// drafts and scheduled articles are visible to their author only. A zero
// caller is anonymous.
func CanRead(caller model.AccountID, a *model.Article) bool {
	if a.IsPublished {
		return true
	}
	return !caller.IsZero() && caller == a.AuthorID
}
