package poller

import (
	"context"
	"sync"
	"time"

	"github.com/oktsec/wafwatch/internal/waf"
)

// Subscriber delivers backend change notifications. *sdk.Client satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, fn func(waf.Notification)) error
}

// Follow treats backend notifications as triggers for fetch cycles. Store
// updates still come only from fetch responses, so the snapshot-replacement
// rules are the same as for polling. Push-triggered cycles run one at a
// time; notifications that arrive while one is in flight collapse into a
// single follow-up cycle. When the stream drops, Follow waits one poll
// interval before reconnecting. It returns when ctx is cancelled or the
// controller is closed.
func (c *Controller) Follow(ctx context.Context, sub Subscriber) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	pending := make(chan struct{}, 1)
	var wg sync.WaitGroup
	wg.Go(func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-pending:
				c.cycle(ctx)
			}
		}
	})
	defer func() {
		cancel()
		wg.Wait()
	}()

	for {
		c.logger.Info("following backend stream")
		err := sub.Subscribe(ctx, func(n waf.Notification) {
			c.logger.Debug("backend notification", "type", n.Type, "event_id", n.EventID)
			select {
			case pending <- struct{}{}:
			default:
				c.metrics.PushCoalesced.Inc()
			}
		})
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("backend stream dropped", "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.Interval()):
		}
	}
}
