package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"newsdesk/internal/model"

	"github.com/gorilla/handlers"
	"go.uber.org/zap"
)

type ctxKey int

const callerKey ctxKey = iota

func callerFrom(ctx context.Context) model.AccountID {
	id, _ := ctx.Value(callerKey).(model.AccountID)
	return id
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	token, _ := strings.CutPrefix(h, "Bearer ")
	return strings.TrimSpace(token), true
}

// authed rejects requests without a valid bearer token and passes the
// caller id to next through the request context.
func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, _ := bearerToken(r)
		s.withCaller(w, r, token, next)
	}
}

// reader lets anonymous requests through with a zero caller. A request that
// does send a token still has to send a valid one.
func (s *Server) reader(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			next(w, r)
			return
		}
		s.withCaller(w, r, token, next)
	}
}

func (s *Server) withCaller(w http.ResponseWriter, r *http.Request, token string, next http.HandlerFunc) {
	id, err := s.accounts.Authenticate(token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	next(w, r.WithContext(context.WithValue(r.Context(), callerKey, id)))
}

func (s *Server) cors() func(http.Handler) http.Handler {
	return handlers.CORS(
		handlers.AllowedOrigins(s.opts.CORSOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
		handlers.AllowCredentials(),
		handlers.OptionStatusCode(http.StatusNoContent),
	)
}

func (s *Server) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	s.logger.Info("Request",
		zap.String("method", p.Request.Method),
		zap.String("path", p.URL.Path),
		zap.Int("status", p.StatusCode),
		zap.Int("size", p.Size),
		zap.Duration("duration", time.Since(p.TimeStamp)))
}

// recoveryLogger routes handlers.RecoveryHandler output to zap.
type recoveryLogger struct {
	logger *zap.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("Handler panicked",
		zap.String("panic", fmt.Sprint(v...)),
		zap.Stack("stack"))
}
