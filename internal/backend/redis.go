package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oktsec/wafwatch/internal/waf"
	"github.com/redis/go-redis/v9"
)

// maxTxRetries bounds optimistic-lock retries when concurrent reports race
// for the next id.
const maxTxRetries = 16

// RedisStore keeps events in a capped list and the counters in a hash so
// several backend replicas can share one state.
type RedisStore struct {
	client    *redis.Client
	eventsKey string
	statsKey  string
	retention int
}

// NewRedisStore connects to addr. Keys are namespaced under prefix.
func NewRedisStore(ctx context.Context, addr, prefix string, retention int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	if prefix == "" {
		prefix = "wafwatch"
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisStore{
		client:    client,
		eventsKey: prefix + ":events",
		statsKey:  prefix + ":stats",
		retention: retention,
	}, nil
}

func (r *RedisStore) Record(ctx context.Context, e waf.Event) (waf.Event, error) {
	var rec waf.Event
	txf := func(tx *redis.Tx) error {
		total, err := tx.HGet(ctx, r.statsKey, "total").Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		rec = e
		rec.ID = int64(total + 1)
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding event: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HIncrBy(ctx, r.statsKey, "total", 1)
			switch rec.Action {
			case waf.ActionBlocked:
				pipe.HIncrBy(ctx, r.statsKey, "blocked", 1)
			case waf.ActionAllowed:
				pipe.HIncrBy(ctx, r.statsKey, "allowed", 1)
			}
			pipe.HSet(ctx, r.statsKey, "last_updated", formatTime(rec.Timestamp.Time))
			pipe.LPush(ctx, r.eventsKey, data)
			pipe.LTrim(ctx, r.eventsKey, 0, int64(r.retention-1))
			return nil
		})
		return err
	}

	for range maxTxRetries {
		err := r.client.Watch(ctx, txf, r.statsKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return e, fmt.Errorf("recording event: %w", err)
		}
		return rec, nil
	}
	return e, errors.New("recording event: too much contention")
}

func (r *RedisStore) Events(ctx context.Context, limit int) ([]waf.Event, int, error) {
	events := []waf.Event{}
	if limit <= 0 {
		n, err := r.client.LLen(ctx, r.eventsKey).Result()
		if err != nil {
			return nil, 0, fmt.Errorf("counting events: %w", err)
		}
		return events, int(n), nil
	}

	pipe := r.client.Pipeline()
	lrange := pipe.LRange(ctx, r.eventsKey, 0, int64(limit-1))
	llen := pipe.LLen(ctx, r.eventsKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, 0, fmt.Errorf("reading events: %w", err)
	}

	for _, raw := range lrange.Val() {
		var e waf.Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, 0, fmt.Errorf("decoding event: %w", err)
		}
		events = append(events, e)
	}
	return events, int(llen.Val()), nil
}

func (r *RedisStore) Stats(ctx context.Context) (waf.StatsSnapshot, error) {
	fields, err := r.client.HGetAll(ctx, r.statsKey).Result()
	if err != nil {
		return waf.StatsSnapshot{}, fmt.Errorf("reading counters: %w", err)
	}

	var c counters
	for name, dst := range map[string]*int{"total": &c.total, "blocked": &c.blocked, "allowed": &c.allowed} {
		v, ok := fields[name]
		if !ok {
			continue
		}
		if *dst, err = strconv.Atoi(v); err != nil {
			return waf.StatsSnapshot{}, fmt.Errorf("counter %s: %w", name, err)
		}
	}
	if v := fields["last_updated"]; v != "" {
		ts, err := waf.ParseTimestamp(v)
		if err != nil {
			return waf.StatsSnapshot{}, fmt.Errorf("last_updated: %w", err)
		}
		c.lastUpdated = ts.Time
	}
	return c.snapshot(), nil
}

func (r *RedisStore) Clear(ctx context.Context, at time.Time) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.eventsKey)
		pipe.HSet(ctx, r.statsKey,
			"total", 0,
			"blocked", 0,
			"allowed", 0,
			"last_updated", formatTime(at),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("clearing: %w", err)
	}
	return nil
}

// Close closes the redis connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
