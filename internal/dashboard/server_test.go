package dashboard

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oktsec/wafwatch/internal/poller"
	"github.com/oktsec/wafwatch/internal/render"
	"github.com/oktsec/wafwatch/internal/viewstate"
	"github.com/oktsec/wafwatch/internal/waf"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type fakeBackend struct {
	mu         sync.Mutex
	stats      waf.StatsSnapshot
	events     []waf.Event
	fail       bool
	clearCalls int
}

func (f *fakeBackend) Stats(context.Context) (*waf.StatsSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("backend down")
	}
	s := f.stats
	return &s, nil
}

func (f *fakeBackend) Events(_ context.Context, limit int) ([]waf.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("backend down")
	}
	return append([]waf.Event(nil), f.events...), nil
}

func (f *fakeBackend) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearCalls++
	f.stats = waf.StatsSnapshot{}
	f.events = nil
	return nil
}

func (f *fakeBackend) clears() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clearCalls
}

func seededBackend() *fakeBackend {
	ts := waf.NewTimestamp(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return &fakeBackend{
		stats: waf.StatsSnapshot{TotalRequests: 10, BlockedRequests: 3, AllowedRequests: 7, BlockRate: 30, LastUpdated: &ts},
		events: []waf.Event{
			{ID: 2, Action: waf.ActionBlocked, Classification: "malicious", Probability: 0.9763, Method: "GET", Path: "/admin", ClientIP: "10.0.0.9"},
			{ID: 1, Action: waf.ActionAllowed, Classification: "benign", Probability: 0.02, Method: "GET", Path: "/", UserAgent: "curl/8"},
		},
	}
}

func newTestServer(t *testing.T, b poller.Backend, opts render.Options) (*Server, *poller.Controller) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	reg := prometheus.NewRegistry()
	ctrl := poller.New(b, viewstate.New(), poller.Options{
		Interval: time.Hour,
		Logger:   logger,
		Metrics:  poller.NewMetrics(reg),
	})
	t.Cleanup(ctrl.Close)

	metrics := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return NewServer(ctrl, opts, metrics, logger), ctrl
}

func loginSession(t *testing.T, srv *Server, handler http.Handler) *http.Cookie {
	t.Helper()

	form := url.Values{"code": {srv.AccessCode()}}
	req := httptest.NewRequest("POST", "/dashboard/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	t.Fatal("no session cookie after login")
	return nil
}

func do(t *testing.T, handler http.Handler, cookie *http.Cookie, method, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestServer_LoginFlow(t *testing.T) {
	srv, _ := newTestServer(t, seededBackend(), render.Options{})
	handler := srv.Handler()

	// 1. GET /dashboard should redirect to login
	w := do(t, handler, nil, "GET", "/dashboard", nil)
	if w.Code != http.StatusFound {
		t.Fatalf("dashboard without auth: status = %d, want 302", w.Code)
	}

	// 2. GET /dashboard/login should return the login page
	w = do(t, handler, nil, "GET", "/dashboard/login", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login page: status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Access") {
		t.Error("login page should contain 'Access'")
	}

	// 3. POST /dashboard/login with wrong code
	w = do(t, handler, nil, "POST", "/dashboard/login", url.Values{"code": {"wrong"}})
	if w.Code != http.StatusOK {
		t.Fatalf("wrong code: status = %d, want 200 (re-render login)", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Invalid") {
		t.Error("wrong code response should contain 'Invalid'")
	}

	// 4. POST /dashboard/login with correct code
	w = do(t, handler, nil, "POST", "/dashboard/login", url.Values{"code": {srv.AccessCode()}})
	if w.Code != http.StatusFound {
		t.Fatalf("correct code: status = %d, want 302 redirect", w.Code)
	}
	var sessionCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookieName {
			sessionCookie = c
		}
	}
	if sessionCookie == nil {
		t.Fatal("no session cookie set after login")
	}
	if !sessionCookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}

	// 5. GET /dashboard with session cookie should succeed
	w = do(t, handler, sessionCookie, "GET", "/dashboard", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("dashboard with session: status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `id="view"`) {
		t.Error("dashboard should contain the view container")
	}

	// 6. Logout invalidates the session
	do(t, handler, sessionCookie, "POST", "/dashboard/logout", url.Values{})
	w = do(t, handler, sessionCookie, "GET", "/dashboard", nil)
	if w.Code != http.StatusFound {
		t.Errorf("after logout: status = %d, want 302", w.Code)
	}
}

func TestServer_LoginLockout(t *testing.T) {
	srv, _ := newTestServer(t, seededBackend(), render.Options{})
	handler := srv.Handler()

	for range maxFailedAttempts {
		do(t, handler, nil, "POST", "/dashboard/login", url.Values{"code": {"bad"}})
	}
	w := do(t, handler, nil, "POST", "/dashboard/login", url.Values{"code": {srv.AccessCode()}})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 while locked out", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Too many failed attempts") {
		t.Error("lockout page should explain the lockout")
	}
}

func TestServer_EmptyPlaceholderBeforeFirstFetch(t *testing.T) {
	srv, _ := newTestServer(t, seededBackend(), render.Options{})
	handler := srv.Handler()
	cookie := loginSession(t, srv, handler)

	body := do(t, handler, cookie, "GET", "/dashboard/api/view", nil).Body.String()
	if !strings.Contains(body, render.Placeholder) {
		t.Error("empty feed should render the placeholder")
	}
	if strings.Contains(body, "Last updated") {
		t.Error("last-updated line must not render before the first fetch")
	}
	if strings.Contains(body, "events-list") {
		t.Error("empty feed must not render an empty list container")
	}
}

func TestServer_RefreshRendersFeed(t *testing.T) {
	srv, _ := newTestServer(t, seededBackend(), render.Options{Location: time.UTC})
	handler := srv.Handler()
	cookie := loginSession(t, srv, handler)

	w := do(t, handler, cookie, "POST", "/dashboard/api/refresh", url.Values{})
	if w.Code != http.StatusOK {
		t.Fatalf("refresh: status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"30.0%",
		"97.63%",
		"🚫 BLOCKED",
		`id="event-2"`,
		`id="event-1"`,
		`class="probability malicious"`,
		`class="classification malicious"`,
		"N/A",
		"curl/8",
		"Last updated: 2024-01-01 00:00:00",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("view should contain %q", want)
		}
	}
	if strings.Index(body, `id="event-2"`) > strings.Index(body, `id="event-1"`) {
		t.Error("events should render newest first")
	}
}

func TestServer_PageMorphsUpdates(t *testing.T) {
	srv, _ := newTestServer(t, seededBackend(), render.Options{})
	handler := srv.Handler()
	cookie := loginSession(t, srv, handler)

	page := do(t, handler, cookie, "GET", "/dashboard", nil).Body.String()
	for _, want := range []string{
		"idiomorph-ext.min.js",
		`<div id="view" hx-ext="morph">`,
		"Idiomorph.morph(view, e.data, {morphStyle: 'innerHTML'})",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("page should contain %q", want)
		}
	}
	if strings.Contains(page, "view.innerHTML =") {
		t.Error("stream updates must morph the view, not replace it")
	}

	partial := do(t, handler, cookie, "GET", "/dashboard/api/view", nil).Body.String()
	if n := strings.Count(partial, `hx-swap="morph:innerHTML"`); n != 3 {
		t.Errorf("got %d morph swaps on controls, want 3", n)
	}
}

func TestServer_ToggleAutoRefresh(t *testing.T) {
	srv, ctrl := newTestServer(t, seededBackend(), render.Options{})
	handler := srv.Handler()
	cookie := loginSession(t, srv, handler)

	if ctrl.AutoRefresh() {
		t.Fatal("controller should start paused in this test")
	}
	body := do(t, handler, cookie, "POST", "/dashboard/api/autorefresh", url.Values{}).Body.String()
	if !ctrl.AutoRefresh() {
		t.Error("toggle should enable auto-refresh")
	}
	if !strings.Contains(body, "Pause Auto-Refresh") {
		t.Error("label should offer Pause once running")
	}

	body = do(t, handler, cookie, "POST", "/dashboard/api/autorefresh", url.Values{}).Body.String()
	if ctrl.AutoRefresh() {
		t.Error("second toggle should pause")
	}
	if !strings.Contains(body, "Resume Auto-Refresh") {
		t.Error("label should offer Resume once paused")
	}
}

func TestServer_ClearRequiresConfirmation(t *testing.T) {
	b := seededBackend()
	srv, ctrl := newTestServer(t, b, render.Options{})
	handler := srv.Handler()
	cookie := loginSession(t, srv, handler)
	ctrl.RefreshNow(context.Background())

	do(t, handler, cookie, "POST", "/dashboard/api/clear", url.Values{})
	if b.clears() != 0 {
		t.Fatal("clear without confirm=yes must not reach the backend")
	}
	if len(ctrl.Store().Snapshot().Events) != 2 {
		t.Error("declined clear must leave the store untouched")
	}

	body := do(t, handler, cookie, "POST", "/dashboard/api/clear", url.Values{"confirm": {"yes"}}).Body.String()
	if b.clears() != 1 {
		t.Fatalf("clear calls = %d, want 1", b.clears())
	}
	if !strings.Contains(body, render.Placeholder) {
		t.Error("view after clear should be resynchronised to the empty backend")
	}
}

func TestServer_StaleBanner(t *testing.T) {
	b := seededBackend()
	b.fail = true

	srv, ctrl := newTestServer(t, b, render.Options{})
	ctrl.RefreshNow(context.Background())
	cookie := loginSession(t, srv, srv.Handler())
	if strings.Contains(do(t, srv.Handler(), cookie, "GET", "/dashboard/api/view", nil).Body.String(), render.StaleMessage) {
		t.Error("stale banner must be off by default")
	}

	srv.SetOptions(render.Options{ShowStale: true})
	if !strings.Contains(do(t, srv.Handler(), cookie, "GET", "/dashboard/api/view", nil).Body.String(), render.StaleMessage) {
		t.Error("stale banner should render when enabled and fetches fail")
	}
}

func TestServer_HealthAndMetricsAreOpen(t *testing.T) {
	srv, ctrl := newTestServer(t, seededBackend(), render.Options{})
	ctrl.RefreshNow(context.Background())
	handler := srv.Handler()

	w := do(t, handler, nil, "GET", "/health", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("health: %d %s", w.Code, w.Body.String())
	}

	w = do(t, handler, nil, "GET", "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "wafwatch_fetches_total") {
		t.Error("metrics should expose fetch counters")
	}
}

func TestServer_SecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t, seededBackend(), render.Options{})
	w := do(t, srv.Handler(), nil, "GET", "/dashboard/login", nil)

	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing X-Frame-Options")
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestServer_SSEPushesView(t *testing.T) {
	srv, ctrl := newTestServer(t, seededBackend(), render.Options{})

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := ts.Client()
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp, err := client.PostForm(ts.URL+"/dashboard/login", url.Values{"code": {srv.AccessCode()}})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close() //nolint:errcheck

	var sessionCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookieName {
			sessionCookie = c
		}
	}
	if sessionCookie == nil {
		t.Fatal("no session cookie from login")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+"/dashboard/api/stream", nil)
	req.AddCookie(sessionCookie)

	sseResp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer sseResp.Body.Close() //nolint:errcheck

	if ct := sseResp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("SSE content-type = %q, want text/event-stream", ct)
	}

	ctrl.RefreshNow(context.Background())

	scanner := bufio.NewScanner(sseResp.Body)
	var sawEvent bool
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event: view" {
			sawEvent = true
		}
		if sawEvent && strings.Contains(line, `id="event-2"`) {
			return
		}
	}
	t.Fatalf("no view event carrying the refreshed feed (saw event: %v, err: %v)", sawEvent, scanner.Err())
}
