package commands

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/oktsec/wafwatch/internal/waf"
	"github.com/oktsec/wafwatch/sdk"
	"github.com/stretchr/testify/assert"
)

func init() {
	color.NoColor = true
}

func TestPrintStatus(t *testing.T) {
	ts := waf.NewTimestamp(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	stats := &waf.StatsSnapshot{TotalRequests: 12, BlockedRequests: 4, AllowedRequests: 7, BlockRate: 33.3333, LastUpdated: &ts}

	var buf bytes.Buffer
	printStatus(&buf, "http://localhost:5000/api", &sdk.HealthResponse{Status: "healthy"}, nil, stats)
	out := buf.String()

	assert.Contains(t, out, "Backend:       http://localhost:5000/api")
	assert.Contains(t, out, "Health:        healthy")
	assert.Contains(t, out, "Total:         12")
	assert.Contains(t, out, "Blocked:       4")
	assert.Contains(t, out, "Block rate:    33.3%")
	assert.Contains(t, out, "Other:         1")
}

func TestPrintStatus_NeverUpdatedAndNoHealth(t *testing.T) {
	var buf bytes.Buffer
	printStatus(&buf, "http://x/api", nil, errors.New("404"), &waf.StatsSnapshot{})
	out := buf.String()

	assert.Contains(t, out, "no health endpoint")
	assert.Contains(t, out, "Last updated:  never")
	assert.Contains(t, out, "Block rate:    0.0%")
	assert.NotContains(t, out, "Other:")
}

func TestPrintUnreachable(t *testing.T) {
	var buf bytes.Buffer
	printUnreachable(&buf, "http://x/api", errors.New("connection refused"))
	assert.True(t, strings.Contains(buf.String(), "backend unreachable"))
	assert.Contains(t, buf.String(), "connection refused")
}
