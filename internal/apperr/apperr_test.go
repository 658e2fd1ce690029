package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("title is required"), http.StatusBadRequest},
		{"conflict", Conflict("already published"), http.StatusBadRequest},
		{"unauthenticated", Unauthenticated("unauthorized"), http.StatusUnauthorized},
		{"forbidden", Forbidden("no access"), http.StatusForbidden},
		{"not found", NotFound("article not found"), http.StatusNotFound},
		{"internal", Internal(errors.New("redis down")), http.StatusInternalServerError},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("update: %w", NotFound("gone")), http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Status(tc.err))
		})
	}
}

func TestMessage_WithholdsInternalDetail(t *testing.T) {
	err := Internal(errors.New("dial tcp 10.0.0.1:6379: connection refused"))

	assert.Equal(t, "internal server error", Message(err))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, "internal server error", Message(errors.New("raw")))
	assert.Equal(t, "title is required", Message(Validation("title is required")))
}

func TestIs_MatchesKindOnly(t *testing.T) {
	err := Forbidden("no access")

	assert.True(t, errors.Is(err, ErrForbidden))
	assert.False(t, errors.Is(err, ErrNotFound))
}
