// Package blob stores uploaded attachments and hands back a reference
// clients can fetch them by.
package blob

import (
	"context"
	"errors"
	"io"
)

var (
	ErrEmptyObject = errors.New("blob: object has no body")
	// ErrForeignRef is returned by Delete for a reference this storage did
	// not hand out.
	ErrForeignRef = errors.New("blob: reference not owned by this storage")
)

// Object is one uploaded file.
type Object struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Storage persists objects. The returned reference is a URL or path.
type Storage interface {
	Put(ctx context.Context, obj Object) (string, error)
	// Delete removes the object behind a reference returned by Put. A
	// missing object is not an error.
	Delete(ctx context.Context, ref string) error
}
