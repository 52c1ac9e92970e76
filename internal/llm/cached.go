package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fyrsmithlabs/stackadvisor/internal/cache"
	"github.com/fyrsmithlabs/stackadvisor/internal/logging"
)

// defaultSharedTimeout bounds a shared upstream call when no call timeout
// is configured.
const defaultSharedTimeout = 30 * time.Second

// CachedClient answers repeated prompts from a cache. Concurrent calls
// with the same prompt share one upstream request. Failures are never
// cached.
//
// The shared request is detached from every caller's cancellation and
// bounded by its own timeout. Each caller stops waiting when its own
// context is done.
type CachedClient struct {
	next          Client
	store         cache.Store
	group         singleflight.Group
	sharedTimeout time.Duration
	logger        *logging.Logger
}

// CachedOption configures a CachedClient.
type CachedOption func(*CachedClient)

// WithSharedTimeout bounds the shared upstream request. Non-positive values
// keep the default.
func WithSharedTimeout(d time.Duration) CachedOption {
	return func(c *CachedClient) {
		if d > 0 {
			c.sharedTimeout = d
		}
	}
}

// NewCachedClient wraps next with store. A nil logger logs nothing.
func NewCachedClient(next Client, store cache.Store, logger *logging.Logger, opts ...CachedOption) *CachedClient {
	if logger == nil {
		logger = logging.Nop()
	}
	c := &CachedClient{
		next:          next,
		store:         store,
		sharedTimeout: defaultSharedTimeout,
		logger:        logger.Named("llm.cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachedClient) Complete(ctx context.Context, prompt string) (string, error) {
	key := cache.Key(prompt)

	if v, ok, err := c.store.Get(ctx, key); err != nil {
		c.logger.Warn(ctx, "cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		c.logger.Trace(ctx, "cache hit", zap.String("key", key))
		return v, nil
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.sharedTimeout)
		defer cancel()

		out, err := c.next.Complete(callCtx, prompt)
		if err != nil {
			return "", err
		}
		if err := c.store.Put(callCtx, key, out); err != nil {
			c.logger.Warn(callCtx, "cache write failed", zap.String("key", key), zap.Error(err))
		}
		return out, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			c.logger.Trace(ctx, "shared in-flight completion", zap.String("key", key))
		}
		return res.Val.(string), nil
	}
}
