package render

import (
	"testing"
	"time"

	"github.com/oktsec/wafwatch/internal/viewstate"
	"github.com/oktsec/wafwatch/internal/waf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(s string) *waf.Timestamp {
	t, err := waf.ParseTimestamp(s)
	if err != nil {
		panic(err)
	}
	return &t
}

func event(id int64, action waf.Action, class string, p float64) waf.Event {
	return waf.Event{ID: id, Action: action, Classification: class, Probability: p, Method: "GET", Path: "/"}
}

func TestRender_BlockRateOneDecimal(t *testing.T) {
	snap := viewstate.Snapshot{Stats: waf.StatsSnapshot{
		TotalRequests: 10, BlockedRequests: 3, AllowedRequests: 7,
		BlockRate: 30.0, LastUpdated: ts("2024-01-01T00:00:00Z"),
	}}
	v := Render(snap, true, Options{Location: time.UTC})

	require.Len(t, v.Cards, 4)
	assert.Equal(t, "10", v.Cards[0].Value)
	assert.Equal(t, "7", v.Cards[1].Value)
	assert.Equal(t, "3", v.Cards[2].Value)
	assert.Equal(t, "30.0%", v.Cards[3].Value)
	assert.Equal(t, "2024-01-01 00:00:00", v.LastUpdated)
	assert.True(t, v.HasLastUpdated())
}

func TestRender_BlockedEvent(t *testing.T) {
	snap := viewstate.Snapshot{Events: []waf.Event{event(5, waf.ActionBlocked, "malicious", 0.9763)}}
	v := Render(snap, true, Options{})

	require.Len(t, v.Events, 1)
	item := v.Events[0]
	assert.Equal(t, int64(5), item.Key)
	assert.Equal(t, "97.63%", item.Probability)
	assert.Equal(t, "🚫 BLOCKED", item.ActionLabel)
	assert.Equal(t, "blocked", item.ActionClass)
	assert.Equal(t, "malicious", item.ClassificationClass)
}

func TestRender_PlainLabels(t *testing.T) {
	snap := viewstate.Snapshot{Events: []waf.Event{
		event(2, waf.ActionBlocked, "Malicious", 0.5),
		event(1, waf.ActionAllowed, "Benign", 0.01),
	}}
	v := Render(snap, false, Options{PlainLabels: true})

	assert.Equal(t, "BLOCKED", v.Events[0].ActionLabel)
	assert.Equal(t, "ALLOWED", v.Events[1].ActionLabel)
	assert.Equal(t, "benign", v.Events[1].ClassificationClass)
	assert.Equal(t, "Benign", v.Events[1].Classification)
	assert.Equal(t, "Resume Auto-Refresh", v.Controls.ToggleLabel)
	assert.Equal(t, "Total Requests", v.Cards[0].Title)
}

func TestRender_UnknownActionReadsAllowed(t *testing.T) {
	snap := viewstate.Snapshot{Events: []waf.Event{event(1, waf.ActionUnknown, "", 0)}}
	v := Render(snap, true, Options{})

	assert.Equal(t, "✅ ALLOWED", v.Events[0].ActionLabel)
	assert.Equal(t, "unknown", v.Events[0].ActionClass)
	assert.Equal(t, "0.00%", v.Events[0].Probability)
}

func TestRender_LowercaseBlockedIsNotAlarmed(t *testing.T) {
	snap := viewstate.Snapshot{Events: []waf.Event{event(1, waf.Action("blocked"), "benign", 0.1)}}
	v := Render(snap, true, Options{})

	assert.Equal(t, "✅ ALLOWED", v.Events[0].ActionLabel)
	assert.Equal(t, "allowed", v.Events[0].ActionClass)
}

func TestRender_EmptyFeedPlaceholder(t *testing.T) {
	v := Render(viewstate.Snapshot{Events: []waf.Event{}}, true, Options{})

	assert.True(t, v.Empty)
	assert.Equal(t, Placeholder, v.Placeholder)
	assert.Empty(t, v.Events)
	assert.False(t, v.HasLastUpdated(), "no last-updated line before the first stats fetch")
}

func TestRender_OptionalFields(t *testing.T) {
	e := event(1, waf.ActionAllowed, "benign", 0.1)
	e.Timestamp = waf.NewTimestamp(time.Date(2024, 1, 1, 13, 4, 5, 0, time.UTC))
	v := Render(viewstate.Snapshot{Events: []waf.Event{e}}, true, Options{Location: time.UTC})

	assert.Equal(t, "N/A", v.Events[0].UserAgent)
	assert.Empty(t, v.Events[0].Query)
	assert.Equal(t, "13:04:05", v.Events[0].Time)
}

func TestRender_ControlLabelsFollowFlag(t *testing.T) {
	assert.Equal(t, "⏸️ Pause Auto-Refresh", Render(viewstate.Snapshot{}, true, Options{}).Controls.ToggleLabel)
	assert.Equal(t, "▶️ Resume Auto-Refresh", Render(viewstate.Snapshot{}, false, Options{}).Controls.ToggleLabel)
}

func TestRender_KeyStability(t *testing.T) {
	older := []waf.Event{
		event(3, waf.ActionAllowed, "benign", 0.1),
		event(2, waf.ActionBlocked, "malicious", 0.9),
		event(1, waf.ActionAllowed, "benign", 0.2),
	}
	newer := append([]waf.Event{
		event(5, waf.ActionBlocked, "malicious", 0.99),
		event(4, waf.ActionAllowed, "benign", 0.05),
	}, older...)

	before := Render(viewstate.Snapshot{Events: older}, true, Options{})
	after := Render(viewstate.Snapshot{Events: newer}, true, Options{})

	byKey := make(map[int64]EventItem, len(after.Events))
	for _, item := range after.Events {
		byKey[item.Key] = item
	}
	for _, item := range before.Events {
		got, ok := byKey[item.Key]
		require.True(t, ok, "id %d missing after refresh", item.Key)
		assert.Equal(t, item, got, "item %d changed identity", item.Key)
	}
}

func TestRender_StaleBannerOffByDefault(t *testing.T) {
	snap := viewstate.Snapshot{StatsHealth: viewstate.Health{ConsecutiveFailures: 3}}
	assert.Nil(t, Render(snap, true, Options{}).Stale)
}

func TestRender_StaleBannerWhenEnabled(t *testing.T) {
	ok := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	snap := viewstate.Snapshot{
		StatsHealth: viewstate.Health{LastSuccess: ok},
		EventHealth: viewstate.Health{LastSuccess: ok.Add(-time.Minute), ConsecutiveFailures: 1},
	}
	v := Render(snap, true, Options{ShowStale: true, Location: time.UTC})

	require.NotNil(t, v.Stale)
	assert.Equal(t, StaleMessage, v.Stale.Message)
	assert.Equal(t, "2024-01-01 10:00:00", v.Stale.Since)
}

func TestRender_StaleBannerHiddenWhenHealthy(t *testing.T) {
	snap := viewstate.Snapshot{StatsHealth: viewstate.Health{LastSuccess: time.Now()}}
	assert.Nil(t, Render(snap, true, Options{ShowStale: true}).Stale)
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "0.0%", BlockRate(0))
	assert.Equal(t, "33.3%", BlockRate(100.0/3))
	assert.Equal(t, "100.00%", Probability(1))
	assert.Equal(t, "1.00%", Probability(0.01))
}
