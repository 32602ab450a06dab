// Package waf holds the wire types shared by the wafwatch client and the
// reference backend.
package waf

import "strings"

// Action is the firewall's disposition of a single inspected request.
type Action string

const (
	ActionAllowed Action = "ALLOWED"
	ActionBlocked Action = "BLOCKED"
	ActionUnknown Action = "UNKNOWN"
)

// Blocked reports whether the request was blocked.
func (a Action) Blocked() bool {
	return a == ActionBlocked
}

// Class is the style key for the action. Only BLOCKED gets the alarmed
// "blocked" class; any other value is lowercased, and a differently cased
// "blocked" reads as "allowed" so the class agrees with the label.
func (a Action) Class() string {
	if a.Blocked() {
		return "blocked"
	}
	class := strings.ToLower(string(a))
	if class == "blocked" {
		return "allowed"
	}
	return class
}

// StatsSnapshot is the backend's aggregate view. It is replaced wholesale
// on every successful fetch. AllowedRequests + BlockedRequests is expected
// to equal TotalRequests but is not re-checked here.
type StatsSnapshot struct {
	TotalRequests   int        `json:"total_requests"`
	BlockedRequests int        `json:"blocked_requests"`
	AllowedRequests int        `json:"allowed_requests"`
	BlockRate       float64    `json:"block_rate"`  // percent, 0-100, computed upstream
	LastUpdated     *Timestamp `json:"last_updated"` // nil until the backend has seen any activity
}

// Event is one inspected request as recorded by the backend.
type Event struct {
	ID             int64     `json:"id"`
	Action         Action    `json:"action"`
	Classification string    `json:"classification"`
	Probability    float64   `json:"probability"` // 0-1
	Method         string    `json:"method"`
	Path           string    `json:"path"`
	Query          string    `json:"query,omitempty"`
	ClientIP       string    `json:"client_ip"`
	ESPIP          string    `json:"esp_ip"`
	UserAgent      string    `json:"user_agent,omitempty"`
	Timestamp      Timestamp `json:"timestamp"`
}

// EventsResponse is the body of GET /events.
type EventsResponse struct {
	Events []Event `json:"events"`
	Count  int     `json:"count"`
}

// Report is what a firewall device posts to /report. Missing fields are
// filled with the backend defaults.
type Report struct {
	Method         string  `json:"method"`
	Path           string  `json:"path"`
	Query          string  `json:"query"`
	UserAgent      string  `json:"user_agent"`
	Probability    float64 `json:"probability"`
	Classification string  `json:"classification"`
	Action         Action  `json:"action"`
	ClientIP       string  `json:"client_ip"`
}

// ReportResponse acknowledges a report.
type ReportResponse struct {
	Status  string `json:"status"`
	EventID int64  `json:"event_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// Notification is pushed on the backend stream whenever stored state changes.
type Notification struct {
	Type    string `json:"type"` // event, cleared
	EventID int64  `json:"event_id,omitempty"`
}

const (
	NotifyEvent   = "event"
	NotifyCleared = "cleared"
)
