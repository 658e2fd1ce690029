package web

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"newsdesk/internal/services"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Options configures the HTTP surface.
type Options struct {
	// APIPrefix is prepended to every API route, e.g. "/api".
	APIPrefix   string
	CORSOrigins []string
	// UploadDir is served under UploadURLPrefix when set.
	UploadDir       string
	UploadURLPrefix string
	// Location interprets publish dates given without an offset.
	Location *time.Location
}

type Server struct {
	articles *services.ArticleService
	accounts *services.AccountService
	opts     Options
	logger   *zap.Logger
	router   *mux.Router
	server   *http.Server
}

func NewServer(articles *services.ArticleService, accounts *services.AccountService, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	s := &Server{
		articles: articles,
		accounts: accounts,
		opts:     opts,
		logger:   logger.Named("http"),
		router:   mux.NewRouter(),
	}
	s.routes()
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.docsRoutes()

	// Static attachments
	if s.opts.UploadDir != "" {
		prefix := strings.TrimRight(s.opts.UploadURLPrefix, "/") + "/"
		s.router.PathPrefix(prefix).Handler(http.StripPrefix(prefix, http.FileServer(http.Dir(s.opts.UploadDir)))).Methods("GET")
	}

	api := s.router
	if p := strings.TrimRight(s.opts.APIPrefix, "/"); p != "" {
		api = s.router.PathPrefix(p).Subrouter()
	}

	// Accounts
	api.HandleFunc("/register", s.handleRegister).Methods("POST")
	api.HandleFunc("/login", s.handleLogin).Methods("POST")
	api.HandleFunc("/current", s.authed(s.handleCurrent)).Methods("GET")

	// News. The published routes go first so "published" is never taken for an id.
	api.HandleFunc("/news/published", s.handleListPublished).Methods("GET")
	api.HandleFunc("/news/published/{id}", s.authed(s.handlePublish)).Methods("PUT")
	api.HandleFunc("/news", s.authed(s.handleListNews)).Methods("GET")
	api.HandleFunc("/news", s.authed(s.handleCreateNews)).Methods("POST")
	api.HandleFunc("/news/{id}", s.reader(s.handleGetNews)).Methods("GET")
	api.HandleFunc("/news/{id}", s.authed(s.handleUpdateNews)).Methods("PUT")
	api.HandleFunc("/news/{id}", s.authed(s.handleDeleteNews)).Methods("DELETE")
}

// Handler returns the router wrapped in the server middleware. CORS is
// only enabled when origins are configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if len(s.opts.CORSOrigins) > 0 {
		h = s.cors()(h)
	}
	h = handlers.CustomLoggingHandler(io.Discard, h, s.logRequest)
	return handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{s.logger}))(h)
}

// Start launches the HTTP server and blocks until it stops. After Stop it
// returns http.ErrServerClosed.
func (s *Server) Start(addr string) error {
	s.server.Addr = addr
	s.logger.Info("Web server listening", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
