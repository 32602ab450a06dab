// Package backend is a reference implementation of the telemetry backend
// contract: firewall devices post reports, dashboards read aggregate
// stats and the recent event feed.
package backend

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/oktsec/wafwatch/internal/waf"
)

// DefaultEventsLimit is used when GET /events has no usable limit.
const DefaultEventsLimit = 100

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Options configures a Server.
type Options struct {
	Logger  *slog.Logger
	Metrics *Metrics
	// MetricsHandler, when set, is served at /metrics.
	MetricsHandler http.Handler
}

// Server serves the backend HTTP contract under /api.
type Server struct {
	store    Store
	logger   *slog.Logger
	metrics  *Metrics
	notifier *notifier
	router   *gin.Engine
	now      func() time.Time
}

// NewServer creates a backend server over store.
func NewServer(store Store, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}

	router := gin.New()
	s := &Server{
		store:    store,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		notifier: newNotifier(opts.Logger, opts.Metrics),
		router:   router,
		now:      time.Now,
	}

	router.Use(gin.Recovery(), requestID(), requestLogger(opts.Logger), corsMiddleware())
	if opts.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.POST("/report", s.report)
		api.GET("/events", s.events)
		api.GET("/stats", s.stats)
		api.POST("/clear", s.clear)
		api.GET("/health", s.health)
		api.GET("/stream", s.stream)
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.notifier.closeAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// report records one firewall decision. Missing fields take the backend
// defaults; esp_ip is the address the report came from.
func (s *Server) report(c *gin.Context) {
	var rep waf.Report
	if err := c.ShouldBindJSON(&rep); err != nil {
		s.metrics.ReportErrors.Inc()
		c.JSON(http.StatusBadRequest, waf.ReportResponse{Status: "error", Message: err.Error()})
		return
	}

	e := NewEvent(rep, c.RemoteIP(), s.now())
	rec, err := s.store.Record(c.Request.Context(), e)
	if err != nil {
		s.metrics.ReportErrors.Inc()
		s.logger.Error("recording event", "error", err)
		c.JSON(http.StatusBadRequest, waf.ReportResponse{Status: "error", Message: err.Error()})
		return
	}

	s.metrics.Reports.WithLabelValues(string(rec.Action)).Inc()
	s.logger.Info("event recorded",
		"id", rec.ID,
		"action", rec.Action,
		"method", rec.Method,
		"path", rec.Path,
		"probability", rec.Probability,
	)
	s.notifier.broadcast(waf.Notification{Type: waf.NotifyEvent, EventID: rec.ID})
	c.JSON(http.StatusOK, waf.ReportResponse{Status: "success", EventID: rec.ID})
}

func (s *Server) events(c *gin.Context) {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 0 {
		limit = DefaultEventsLimit
	}

	events, retained, err := s.store.Events(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("listing events", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, waf.EventsResponse{Events: events, Count: retained})
}

func (s *Server) stats(c *gin.Context) {
	stats, err := s.store.Stats(c.Request.Context())
	if err != nil {
		s.logger.Error("reading stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) clear(c *gin.Context) {
	if err := s.store.Clear(c.Request.Context(), s.now()); err != nil {
		s.logger.Error("clearing", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	s.metrics.Clears.Inc()
	s.logger.Info("events and statistics cleared")
	s.notifier.broadcast(waf.Notification{Type: waf.NotifyCleared})
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": waf.NewTimestamp(s.now()),
	})
}

func (s *Server) stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.notifier.serve(conn)
}

// NewEvent applies the backend defaults to a report.
func NewEvent(rep waf.Report, espIP string, at time.Time) waf.Event {
	e := waf.Event{
		Action:         rep.Action,
		Classification: rep.Classification,
		Probability:    rep.Probability,
		Method:         rep.Method,
		Path:           rep.Path,
		Query:          rep.Query,
		ClientIP:       rep.ClientIP,
		ESPIP:          espIP,
		UserAgent:      rep.UserAgent,
		Timestamp:      waf.NewTimestamp(at),
	}
	if e.Action == "" {
		e.Action = waf.ActionUnknown
	}
	if e.Classification == "" {
		e.Classification = "UNKNOWN"
	}
	if e.Method == "" {
		e.Method = "UNKNOWN"
	}
	if e.Path == "" {
		e.Path = "/"
	}
	if e.ClientIP == "" {
		e.ClientIP = "unknown"
	}
	return e
}
