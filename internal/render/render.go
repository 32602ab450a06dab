// Package render maps a viewstate snapshot to a presentation-neutral view
// tree. Render has no side effects; the browser and terminal dashboards
// both draw from the same View.
package render

import (
	"strconv"
	"strings"
	"time"

	"github.com/oktsec/wafwatch/internal/viewstate"
	"github.com/oktsec/wafwatch/internal/waf"
)

// Placeholder is shown instead of the feed while it is empty.
const Placeholder = "No events yet. Waiting for firewall reports..."

// StaleMessage is the banner text used when ShowStale is enabled.
const StaleMessage = "Backend unreachable, showing last known data"

const (
	lastUpdatedLayout = "2006-01-02 15:04:05"
	eventTimeLayout   = "15:04:05"
)

// Options tune a render. The zero value reproduces the default dashboard.
type Options struct {
	// ShowStale adds a banner when the latest fetch of either resource
	// failed.
	ShowStale bool
	// PlainLabels drops emoji from action and control labels.
	PlainLabels bool
	// Location formats timestamps; nil means time.Local.
	Location *time.Location
}

// View is everything a presentation needs to draw one frame.
type View struct {
	Cards       []StatCard
	LastUpdated string // empty until the first successful stats fetch
	Controls    Controls
	Empty       bool
	Placeholder string
	Events      []EventItem
	Stale       *Banner
}

// HasLastUpdated reports whether the last-updated line should be drawn.
func (v View) HasLastUpdated() bool {
	return v.LastUpdated != ""
}

// StatCard is one counter tile.
type StatCard struct {
	Key   string
	Title string
	Value string
	Class string
}

// Controls carries the labels of the three dashboard actions.
type Controls struct {
	AutoRefresh  bool
	ToggleLabel  string
	RefreshLabel string
	ClearLabel   string
}

// EventItem is one feed entry. Key is the event id and is the only
// identity presentations may use.
type EventItem struct {
	Key                 int64
	ActionLabel         string
	ActionClass         string
	Time                string
	Method              string
	Path                string
	Query               string
	ClientIP            string
	ESPIP               string
	UserAgent           string
	Probability         string
	Classification      string
	ClassificationClass string
}

// Banner is an optional notice above the cards.
type Banner struct {
	Message string
	Since   string
}

// Render builds the view for snap.
func Render(snap viewstate.Snapshot, autoRefresh bool, opts Options) View {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	v := View{
		Cards:    statCards(snap.Stats, opts.PlainLabels),
		Controls: controls(autoRefresh, opts.PlainLabels),
	}
	if ts := snap.Stats.LastUpdated; ts != nil && !ts.IsZero() {
		v.LastUpdated = ts.In(loc).Format(lastUpdatedLayout)
	}

	if len(snap.Events) == 0 {
		v.Empty = true
		v.Placeholder = Placeholder
	} else {
		v.Events = make([]EventItem, len(snap.Events))
		for i, e := range snap.Events {
			v.Events[i] = eventItem(e, loc, opts.PlainLabels)
		}
	}

	if opts.ShowStale && snap.Stale() {
		v.Stale = staleBanner(snap, loc)
	}
	return v
}

// BlockRate formats a percentage with one decimal: 30 -> "30.0%".
func BlockRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', 1, 64) + "%"
}

// Probability formats a [0,1] confidence as a percentage with two
// decimals: 0.9763 -> "97.63%".
func Probability(p float64) string {
	return strconv.FormatFloat(p*100, 'f', 2, 64) + "%"
}

// ActionLabel is the human label for an action. Anything that is not
// BLOCKED reads as allowed.
func ActionLabel(a waf.Action, plain bool) string {
	switch {
	case a.Blocked() && plain:
		return "BLOCKED"
	case a.Blocked():
		return "🚫 BLOCKED"
	case plain:
		return "ALLOWED"
	default:
		return "✅ ALLOWED"
	}
}

// ClassificationClass is the style class shared by the probability and
// classification cells.
func ClassificationClass(classification string) string {
	return strings.ToLower(classification)
}

func statCards(s waf.StatsSnapshot, plain bool) []StatCard {
	title := func(emoji, text string) string {
		if plain {
			return text
		}
		return emoji + " " + text
	}
	return []StatCard{
		{Key: "total", Title: title("📊", "Total Requests"), Value: strconv.Itoa(s.TotalRequests), Class: "total"},
		{Key: "allowed", Title: title("✅", "Allowed"), Value: strconv.Itoa(s.AllowedRequests), Class: "allowed"},
		{Key: "blocked", Title: title("🚫", "Blocked"), Value: strconv.Itoa(s.BlockedRequests), Class: "blocked"},
		{Key: "rate", Title: title("📈", "Block Rate"), Value: BlockRate(s.BlockRate), Class: "rate"},
	}
}

func controls(autoRefresh, plain bool) Controls {
	c := Controls{AutoRefresh: autoRefresh}
	switch {
	case autoRefresh && plain:
		c.ToggleLabel = "Pause Auto-Refresh"
	case autoRefresh:
		c.ToggleLabel = "⏸️ Pause Auto-Refresh"
	case plain:
		c.ToggleLabel = "Resume Auto-Refresh"
	default:
		c.ToggleLabel = "▶️ Resume Auto-Refresh"
	}
	if plain {
		c.RefreshLabel, c.ClearLabel = "Refresh Now", "Clear All"
	} else {
		c.RefreshLabel, c.ClearLabel = "🔄 Refresh Now", "🗑️ Clear All"
	}
	return c
}

func eventItem(e waf.Event, loc *time.Location, plain bool) EventItem {
	item := EventItem{
		Key:                 e.ID,
		ActionLabel:         ActionLabel(e.Action, plain),
		ActionClass:         e.Action.Class(),
		Method:              e.Method,
		Path:                e.Path,
		Query:               e.Query,
		ClientIP:            e.ClientIP,
		ESPIP:               e.ESPIP,
		UserAgent:           e.UserAgent,
		Probability:         Probability(e.Probability),
		Classification:      e.Classification,
		ClassificationClass: ClassificationClass(e.Classification),
	}
	if item.UserAgent == "" {
		item.UserAgent = "N/A"
	}
	if !e.Timestamp.IsZero() {
		item.Time = e.Timestamp.In(loc).Format(eventTimeLayout)
	}
	return item
}

func staleBanner(snap viewstate.Snapshot, loc *time.Location) *Banner {
	b := &Banner{Message: StaleMessage}
	last := snap.StatsHealth.LastSuccess
	if ev := snap.EventHealth.LastSuccess; ev.After(last) {
		last = ev
	}
	if !last.IsZero() {
		b.Since = last.In(loc).Format(lastUpdatedLayout)
	}
	return b
}
