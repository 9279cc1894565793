package httpapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"todo-planner/internal/metrics"
	"todo-planner/internal/service"
)

// maxBodySize limits request bodies.
const maxBodySize = 1 << 20 // 1 MB

// Options configures cookies, CORS and listing behaviour.
type Options struct {
	// PurgeOnList runs the overdue purge before every task listing.
	PurgeOnList    bool
	CookieSecure   bool
	SameSite       http.SameSite
	AllowedOrigins []string
	// Location interprets due times sent without a zone offset.
	Location *time.Location
	// Metrics, when set, records requests and is served on GET /metrics.
	Metrics *metrics.Metrics
}

// Server exposes the task and auth services over JSON.
type Server struct {
	tasks  *service.TaskService
	auth   *service.AuthService
	opts   Options
	logger *slog.Logger
}

func NewServer(tasks *service.TaskService, auth *service.AuthService, opts Options, logger *slog.Logger) *Server {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteNoneMode
	}
	return &Server{tasks: tasks, auth: auth, opts: opts, logger: logger}
}

// log returns the logger, defaulting to slog.Default if nil.
func (s *Server) log() *slog.Logger {
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}

// Handler returns the full middleware-wrapped router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterHTTPHandlers("/api", mux)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.opts.Metrics != nil {
		mux.Handle("GET /metrics", s.opts.Metrics.Handler())
	}
	return s.recoverer(s.requestLogger(s.cors(mux)))
}

// RegisterHTTPHandlers registers the API endpoints under prefix.
func (s *Server) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	prefix = strings.TrimSuffix(prefix, "/")

	mux.HandleFunc("POST "+prefix+"/auth/register", s.handleRegister)
	mux.HandleFunc("POST "+prefix+"/auth/login", s.handleLogin)
	mux.HandleFunc("POST "+prefix+"/auth/logout", s.handleLogout)
	mux.HandleFunc("GET "+prefix+"/auth/me", s.requireAuth(s.handleMe))

	mux.HandleFunc("GET "+prefix+"/tasks", s.requireAuth(s.handleListTasks))
	mux.HandleFunc("POST "+prefix+"/tasks", s.requireAuth(s.handleCreateTask))
	mux.HandleFunc("POST "+prefix+"/tasks/purge", s.requireAuth(s.handlePurge))
	mux.HandleFunc("PATCH "+prefix+"/tasks/{id}/toggle", s.requireAuth(s.handleToggleTask))
	mux.HandleFunc("PATCH "+prefix+"/tasks/{id}/complete", s.requireAuth(s.handleCompleteTask))
	mux.HandleFunc("DELETE "+prefix+"/tasks/{id}", s.requireAuth(s.handleDeleteTask))
}
