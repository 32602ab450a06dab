package dashboard

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/oktsec/wafwatch/internal/poller"
	"github.com/oktsec/wafwatch/internal/render"
	"github.com/oktsec/wafwatch/internal/viewstate"
)

// Server serves the wafwatch browser dashboard. It only reads the store
// and forwards user actions to the poll controller.
type Server struct {
	auth    *Auth
	ctrl    *poller.Controller
	optsMu  sync.RWMutex
	opts    render.Options
	metrics http.Handler
	logger  *slog.Logger
	mux     *http.ServeMux
}

// NewServer creates a dashboard server with access-code authentication.
// metrics may be nil, in which case /metrics is not mounted.
func NewServer(ctrl *poller.Controller, opts render.Options, metrics http.Handler, logger *slog.Logger) *Server {
	s := &Server{
		auth:    NewAuth(),
		ctrl:    ctrl,
		opts:    opts,
		metrics: metrics,
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

// AccessCode returns the one-time access code displayed in the terminal.
func (s *Server) AccessCode() string {
	return s.auth.AccessCode()
}

// SetOptions replaces the render options, e.g. after a config reload.
func (s *Server) SetOptions(opts render.Options) {
	s.optsMu.Lock()
	s.opts = opts
	s.optsMu.Unlock()
	s.ctrl.Store().Hub.Publish(viewstate.Change{Resource: viewstate.ResourceControls})
}

func (s *Server) options() render.Options {
	s.optsMu.RLock()
	defer s.optsMu.RUnlock()
	return s.opts
}

// Handler returns the dashboard HTTP handler with auth and the request
// middleware applied.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.auth.Middleware(s.mux)
	h = securityHeaders(h)
	h = logging(s.logger)(h)
	h = recovery(s.logger)(h)
	h = requestID(h)
	return h
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	})
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}

	s.mux.HandleFunc("GET /dashboard/login", s.handleLoginPage)
	s.mux.HandleFunc("POST /dashboard/login", s.handleLoginSubmit)
	s.mux.HandleFunc("POST /dashboard/logout", s.handleLogout)
	s.mux.HandleFunc("GET /dashboard", s.handlePage)

	// HTMX partial endpoints
	s.mux.HandleFunc("GET /dashboard/api/view", s.handleView)
	s.mux.HandleFunc("POST /dashboard/api/autorefresh", s.handleToggleAutoRefresh)
	s.mux.HandleFunc("POST /dashboard/api/refresh", s.handleRefresh)
	s.mux.HandleFunc("POST /dashboard/api/clear", s.handleClear)

	// SSE
	s.mux.HandleFunc("GET /dashboard/api/stream", s.handleSSE)
}
