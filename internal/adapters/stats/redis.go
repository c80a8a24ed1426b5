package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bnema/slotwall/internal/domain"
	"github.com/bnema/slotwall/internal/ports"
	"github.com/redis/go-redis/v9"
)

// RedisRecorder keeps decision counters in redis hashes:
//
//	<prefix>:total             outcome -> count
//	<prefix>:minute:<yyyymmddhhmm>  outcome -> count (expires after ttl)
//	<prefix>:action            <action>:<outcome> -> count
//	<prefix>:requester:<name>  outcome -> count (only with tracking on)
type RedisRecorder struct {
	rdb redis.Cmdable

	prefix string
	// ttl applies to the per-minute and per-requester keys only.
	ttl time.Duration

	bucket string // "minute" (default) or "none"

	trackRequesters bool
}

var _ ports.DecisionRecorder = (*RedisRecorder)(nil)

type RedisOption func(*RedisRecorder)

func WithRedisPrefix(prefix string) RedisOption {
	return func(r *RedisRecorder) {
		r.prefix = strings.Trim(prefix, ":")
	}
}

func WithRedisTTL(d time.Duration) RedisOption {
	return func(r *RedisRecorder) { r.ttl = d }
}

func WithRedisBucket(bucket string) RedisOption {
	return func(r *RedisRecorder) { r.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithRedisTrackRequesters(track bool) RedisOption {
	return func(r *RedisRecorder) { r.trackRequesters = track }
}

func NewRedisRecorder(rdb redis.Cmdable, opts ...RedisOption) *RedisRecorder {
	r := &RedisRecorder{
		rdb:    rdb,
		prefix: "slotwall:decisions",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRedisClient builds a client for addr. An empty addr returns nil.
func NewRedisClient(addr string) *redis.Client {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr})
}

func (r *RedisRecorder) Record(ctx context.Context, decision domain.Decision) error {
	if r == nil || r.rdb == nil {
		return nil
	}

	at := decision.At
	if at.IsZero() {
		at = time.Now()
	}
	field := decision.Outcome.String()

	pipe := r.rdb.Pipeline()
	pipe.HIncrBy(ctx, r.prefix+":total", field, 1)

	if r.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s", r.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if r.ttl > 0 {
			pipe.Expire(ctx, bucketKey, r.ttl)
		}
	}

	if action := strings.TrimSpace(decision.Action); action != "" {
		pipe.HIncrBy(ctx, r.prefix+":action", action+":"+field, 1)
	}

	if r.trackRequesters {
		if requester := strings.TrimSpace(decision.Requester); requester != "" {
			requesterKey := r.prefix + ":requester:" + requester
			pipe.HIncrBy(ctx, requesterKey, field, 1)
			if r.ttl > 0 {
				pipe.Expire(ctx, requesterKey, r.ttl)
			}
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record decision in redis: %w", err)
	}
	return nil
}
