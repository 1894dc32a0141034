package redisx

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"glassy-social/internal/shared/httpx"

	"github.com/redis/go-redis/v9"
)

type Client struct{ R *redis.Client }

func NewClient(addr string) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	return &Client{R: rdb}
}

func (c *Client) Ping(ctx context.Context) error { return c.R.Ping(ctx).Err() }

func (c *Client) Close() error { return c.R.Close() }

// AllowSliding counts hits for key inside window and reports whether limit is not exceeded.
func (c *Client) AllowSliding(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	k := "rl:" + key
	pipe := c.R.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, window)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, err
	}
	n := incr.Val()
	return n <= limit, n, nil
}

func (c *Client) LimitHTTP(limit int64, window time.Duration, keyFn func(*http.Request) (string, error), next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, err := keyFn(r)
		if err != nil || key == "" {
			httpx.WriteError(w, http.StatusUnauthorized, httpx.ErrUnauthorized, "missing_user")
			return
		}
		ok, n, e := c.AllowSliding(r.Context(), key, limit, window)
		if e != nil {
			httpx.WriteError(w, http.StatusTooManyRequests, fmt.Errorf("rate limiter error"), "rate_limiter_error")
			return
		}
		if !ok {
			httpx.WriteError(w, http.StatusTooManyRequests,
				fmt.Errorf("rate limit exceeded (count=%d, limit=%d)", n, limit),
				"rate_limited")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PutNX records an idempotency key; false means it was seen before.
func (c *Client) PutNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.R.SetNX(ctx, "idem:"+key, "1", ttl).Result()
}
