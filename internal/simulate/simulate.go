// Package simulate generates synthetic firewall reports for exercising a
// backend and the dashboards without real hardware.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/oktsec/wafwatch/internal/waf"
	"github.com/oktsec/wafwatch/sdk"
	"golang.org/x/time/rate"
)

var errPacing = errors.New("rate limiter")

// Reporter posts reports. *sdk.Client satisfies it.
type Reporter interface {
	Report(ctx context.Context, r waf.Report) (*waf.ReportResponse, error)
}

// Options configures a Simulator.
type Options struct {
	Rate        float64 // reports per second
	Burst       int
	Attempts    uint    // per report, including the first
	BlockedRate float64 // fraction of reports that are attacks, 0-1
	BaseDelay   time.Duration
	Logger      *slog.Logger
	Seed        uint64
}

// Summary counts what a run sent.
type Summary struct {
	Sent    int
	Blocked int
	Allowed int
	Failed  int
}

// Simulator paces reports through a rate limiter and retries failed posts
// with exponential backoff.
type Simulator struct {
	reporter  Reporter
	limiter   *rate.Limiter
	attempts  uint
	blocked   float64
	baseDelay time.Duration
	logger    *slog.Logger
	rnd       *rand.Rand
}

// New creates a simulator posting to r.
func New(r Reporter, opts Options) *Simulator {
	if opts.Rate <= 0 {
		opts.Rate = 2
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Attempts == 0 {
		opts.Attempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 200 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	return &Simulator{
		reporter:  r,
		limiter:   rate.NewLimiter(rate.Limit(opts.Rate), opts.Burst),
		attempts:  opts.Attempts,
		blocked:   min(max(opts.BlockedRate, 0), 1),
		baseDelay: opts.BaseDelay,
		logger:    opts.Logger,
		rnd:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Run sends count reports, or keeps sending until ctx is cancelled when
// count is zero or negative. Individual failures are counted, not returned.
func (s *Simulator) Run(ctx context.Context, count int) (Summary, error) {
	var sum Summary
	for i := 0; count <= 0 || i < count; i++ {
		rep := s.Generate()
		id, err := s.Send(ctx, rep)
		if ctx.Err() != nil || errors.Is(err, errPacing) {
			// The limiter refuses waits that would outlive ctx's deadline.
			return sum, nil
		}
		if err != nil {
			sum.Failed++
			s.logger.Warn("report failed", "path", rep.Path, "error", err)
			continue
		}

		sum.Sent++
		if rep.Action.Blocked() {
			sum.Blocked++
		} else {
			sum.Allowed++
		}
		s.logger.Debug("report sent", "event_id", id, "action", rep.Action, "path", rep.Path)
	}
	return sum, nil
}

// Send waits for the limiter and posts rep, retrying transport errors and
// 5xx responses. 4xx responses are not retried.
func (s *Simulator) Send(ctx context.Context, rep waf.Report) (int64, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("%w: %w", errPacing, err)
	}

	var id int64
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
			return s.baseDelay << min(n, 6)
		}),
	)
	err := r.Do(func() error {
		resp, err := s.reporter.Report(ctx, rep)
		if err != nil {
			var apiErr *sdk.APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
				return retry.Unrecoverable(err)
			}
			return err
		}
		id = resp.EventID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

var (
	userAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36",
		"curl/8.4.0",
		"python-requests/2.31.0",
	}

	benign = []func(r *rand.Rand) (method, path, query string){
		func(*rand.Rand) (string, string, string) { return "GET", "/", "" },
		func(*rand.Rand) (string, string, string) { return "GET", "/api/status", "" },
		func(*rand.Rand) (string, string, string) { return "GET", "/api/data", "" },
		func(r *rand.Rand) (string, string, string) {
			return "GET", "/api/user/" + strconv.Itoa(r.IntN(500)+1), ""
		},
		func(*rand.Rand) (string, string, string) { return "GET", "/api/search", "q=firmware+update" },
		func(*rand.Rand) (string, string, string) { return "GET", "/search", "q=sensor&category=iot" },
		func(r *rand.Rand) (string, string, string) {
			return "GET", "/product/" + strconv.Itoa(r.IntN(100)+1), ""
		},
		func(*rand.Rand) (string, string, string) { return "GET", "/api/v1/users", "" },
		func(*rand.Rand) (string, string, string) { return "POST", "/login", "" },
		func(*rand.Rand) (string, string, string) { return "GET", "/profile", "" },
		func(*rand.Rand) (string, string, string) { return "GET", "/download", "file=report.pdf" },
	}

	attacks = []func(r *rand.Rand) (method, path, query string){
		func(*rand.Rand) (string, string, string) { return "GET", "/api/search", "q=' OR '1'='1' --" },
		func(*rand.Rand) (string, string, string) {
			return "GET", "/search", "q=<script>alert(document.cookie)</script>&category=all"
		},
		func(*rand.Rand) (string, string, string) { return "GET", "/api/user/1 UNION SELECT password FROM users", "" },
		func(*rand.Rand) (string, string, string) { return "GET", "/download", "file=../../../../etc/passwd" },
		func(*rand.Rand) (string, string, string) { return "GET", "/file", "path=..%2f..%2fwindows%2fwin.ini" },
		func(*rand.Rand) (string, string, string) { return "GET", "/redirect", "url=http://evil.example/phish" },
		func(*rand.Rand) (string, string, string) { return "POST", "/api/users", "name=;cat /etc/shadow" },
		func(*rand.Rand) (string, string, string) { return "GET", "/admin", "debug=true&cmd=$(id)" },
	}
)

// Generate builds one random report. Attacks are BLOCKED with a high
// probability; the rest are ALLOWED with a low one.
func (s *Simulator) Generate() waf.Report {
	r := s.rnd
	attack := r.Float64() < s.blocked

	rep := waf.Report{
		UserAgent: userAgents[r.IntN(len(userAgents))],
		ClientIP:  fmt.Sprintf("192.168.1.%d", r.IntN(250)+2),
	}
	if attack {
		rep.Method, rep.Path, rep.Query = attacks[r.IntN(len(attacks))](r)
		rep.Probability = 0.7 + r.Float64()*0.3
		rep.Classification = "malicious"
		rep.Action = waf.ActionBlocked
	} else {
		rep.Method, rep.Path, rep.Query = benign[r.IntN(len(benign))](r)
		rep.Probability = r.Float64() * 0.3
		rep.Classification = "benign"
		rep.Action = waf.ActionAllowed
	}
	return rep
}
