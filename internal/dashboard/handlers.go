package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/oktsec/wafwatch/internal/poller"
	"github.com/oktsec/wafwatch/internal/render"
)

// viewData is what the page and partial templates render.
type viewData struct {
	render.View
	ClearPrompt string
}

func (s *Server) currentView() viewData {
	v := render.Render(s.ctrl.Store().Snapshot(), s.ctrl.AutoRefresh(), s.options())
	return viewData{View: v, ClearPrompt: poller.ClearPrompt}
}

func (s *Server) writeView(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := viewTmpl.ExecuteTemplate(w, "view", s.currentView()); err != nil {
		s.logger.Error("render view", "error", err)
	}
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = loginTmpl.Execute(w, nil)
}

func (s *Server) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)

	// Check rate limit before processing
	allowed, retryAfter := s.auth.CheckRateLimit(ip)
	if !allowed {
		s.logger.Warn("login rate-limited",
			"ip", ip,
			"retry_after", retryAfter.Round(time.Second).String(),
		)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusTooManyRequests)
		msg := fmt.Sprintf("Too many failed attempts. Try again in %d minutes.", int(retryAfter.Minutes())+1)
		_ = loginTmpl.Execute(w, map[string]any{"Error": msg})
		return
	}

	code := r.FormValue("code")
	if !s.auth.ValidateCode(code) {
		lockout := s.auth.RecordFailure(ip)
		if lockout > 0 {
			s.logger.Warn("login lockout triggered",
				"ip", ip,
				"lockout_duration", lockout.String(),
			)
		} else {
			s.logger.Info("login failed", "ip", ip)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = loginTmpl.Execute(w, map[string]any{"Error": "Invalid access code. Check your terminal."})
		return
	}

	s.auth.RecordSuccess(ip)
	s.logger.Info("login success", "ip", ip)

	token := s.auth.CreateSession()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/dashboard",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   false, // localhost only
	})
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		s.auth.InvalidateSession(cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/dashboard",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1, // delete cookie
	})

	s.logger.Info("logout", "ip", clientIP(r))
	http.Redirect(w, r, "/dashboard/login", http.StatusFound)
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTmpl.Execute(w, s.currentView()); err != nil {
		s.logger.Error("render page", "error", err)
	}
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	s.writeView(w)
}

func (s *Server) handleToggleAutoRefresh(w http.ResponseWriter, r *http.Request) {
	enabled := s.ctrl.ToggleAutoRefresh()
	s.logger.Info("auto-refresh toggled from dashboard", "enabled", enabled, "ip", clientIP(r))
	s.writeView(w)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.ctrl.RefreshNow(r.Context())
	s.writeView(w)
}

// handleClear only proceeds when the page confirmed the action and posted
// confirm=yes. Clear failures are logged by the controller and never
// rendered.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	confirmed := r.FormValue("confirm") == "yes"
	confirm := poller.ConfirmFunc(func(context.Context, string) bool { return confirmed })
	if err := s.ctrl.ClearAll(r.Context(), confirm); err != nil {
		s.logger.Debug("clear from dashboard failed", "error", err)
	}
	s.writeView(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.ctrl.Store().Snapshot()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":       "ok",
		"auto_refresh": s.ctrl.AutoRefresh(),
		"stale":        snap.Stale(),
	})
}

// --- SSE handler ---

// handleSSE pushes a freshly rendered partial every time the store or the
// controls change.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Extend write deadline so the SSE connection stays open
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{}) // no deadline

	hub := s.ctrl.Store().Hub
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	// Flush headers immediately so clients don't block waiting
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			var buf bytes.Buffer
			if err := viewTmpl.ExecuteTemplate(&buf, "view", s.currentView()); err != nil {
				s.logger.Error("render view", "error", err)
				continue
			}
			if err := writeSSE(w, "view", buf.String()); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSE writes one event; multi-line payloads become multiple data
// fields, which the browser joins back with newlines.
func writeSSE(w http.ResponseWriter, event, payload string) error {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(event)
	b.WriteByte('\n')
	for line := range strings.SplitSeq(payload, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	_, err := w.Write([]byte(b.String()))
	return err
}
