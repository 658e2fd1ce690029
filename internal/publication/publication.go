// Package publication decides when an article becomes published.
//
// An article is in one of three states:
//
//	Draft      not published, no publish instant
//	Scheduled  not published, publish instant set
//	Published  terminal; nothing moves an article back out of it
//
// Publish is the explicit entry used by authors; Promote is the entry used by
// the background sweep. Both only ever set IsPublished to true.
package publication

import (
	"errors"
	"time"

	"newsdesk/internal/model"
)

var (
	ErrAlreadyPublished = errors.New("article already published")
	ErrNotDue           = errors.New("article is not due for publication")
)

type State int

const (
	Draft State = iota
	Scheduled
	Published
)

func (s State) String() string {
	switch s {
	case Draft:
		return "draft"
	case Scheduled:
		return "scheduled"
	case Published:
		return "published"
	default:
		return "unknown"
	}
}

// StateOf reports the state an article is in. A scheduled article whose
// instant has elapsed stays Scheduled until the sweep promotes it.
func StateOf(a *model.Article) State {
	switch {
	case a.IsPublished:
		return Published
	case a.PublishAt != nil:
		return Scheduled
	default:
		return Draft
	}
}

// Publish applies an explicit publish request. With no instant, or an
// instant not after now, the article is published at now. A future instant
// schedules it (or reschedules a scheduled article).
func Publish(a *model.Article, now time.Time, at *time.Time) error {
	if a.IsPublished {
		return ErrAlreadyPublished
	}

	if at == nil || !at.After(now) {
		t := now
		a.PublishAt = &t
		a.IsPublished = true
		return nil
	}

	t := *at
	a.PublishAt = &t
	return nil
}

// Due reports whether a scheduled article should be published at now.
func Due(a *model.Article, now time.Time) bool {
	return !a.IsPublished && a.PublishAt != nil && !a.PublishAt.After(now)
}

// Promote moves a due scheduled article to Published. The publish instant
// is kept; it is already not after now.
func Promote(a *model.Article, now time.Time) error {
	if a.IsPublished {
		return ErrAlreadyPublished
	}
	if !Due(a, now) {
		return ErrNotDue
	}
	a.IsPublished = true
	return nil
}
