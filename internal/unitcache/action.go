package unitcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/cxxnav/internal/metrics"
	"github.com/xonecas/cxxnav/internal/treesitter"
)

type roleKey struct{}

// WithRole tags ctx with the name of the goroutine doing the work, for logs.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

func roleFrom(ctx context.Context) string {
	if r, ok := ctx.Value(roleKey{}).(string); ok {
		return r
	}
	return "foreground"
}

// parseAction performs one reuse, reparse or create step. The caller holds
// the lock for name.
func (c *Cache) parseAction(ctx context.Context, name string, content ContentFunc) (*treesitter.Unit, error) {
	c.mu.Lock()
	u := c.units[name]
	_, fresh := c.upToDate[name]
	gen, epoch := c.gen, c.epochs[name]
	c.mu.Unlock()

	if u != nil && fresh {
		c.metrics.Parse(metrics.ResultHit)
		return u, nil
	}

	src, err := content()
	if err != nil {
		return nil, fmt.Errorf("content of %s: %w", name, err)
	}

	logger := log.With().Str("file", name).Str("role", roleFrom(ctx)).Logger()
	start := time.Now()

	if u == nil {
		logger.Debug().Msg("unitcache: parse start")
		u, err = c.backend.Parse(ctx, name, c.args(), src, treesitter.FlagPrecompiledPreamble)
		if err != nil {
			if errors.Is(err, treesitter.ErrUnparseable) {
				c.metrics.Parse(metrics.ResultUnparseable)
				logger.Debug().Err(err).Msg("unitcache: unparseable")
				return nil, fmt.Errorf("%w: %w", ErrNoUnit, err)
			}
			c.metrics.Parse(metrics.ResultError)
			return nil, err
		}
		c.metrics.ObserveParse(metrics.ResultCreate, time.Since(start).Seconds())
		c.metrics.Parse(metrics.ResultCreate)

		c.mu.Lock()
		c.units[name] = u
		c.markLocked(name, gen, epoch)
		n := len(c.units)
		c.mu.Unlock()

		c.metrics.SetUnits(n)
		logger.Debug().Dur("took", time.Since(start)).Msg("unitcache: parse done")
		return u, nil
	}

	logger.Debug().Int("version", u.Version()).Msg("unitcache: reparse start")
	if err := c.backend.Reparse(ctx, u, src); err != nil {
		c.metrics.Parse(metrics.ResultError)
		return nil, err
	}
	c.metrics.ObserveParse(metrics.ResultReparse, time.Since(start).Seconds())
	c.metrics.Parse(metrics.ResultReparse)

	c.mu.Lock()
	c.markLocked(name, gen, epoch)
	c.mu.Unlock()

	logger.Debug().Dur("took", time.Since(start)).Msg("unitcache: reparse done")
	return u, nil
}

// markLocked records name as up to date unless the cache was cleared or the
// file invalidated after the parse began. c.mu must be held.
func (c *Cache) markLocked(name string, gen, epoch uint64) {
	if c.gen != gen || c.epochs[name] != epoch {
		log.Debug().Str("file", name).Msg("unitcache: invalidated during parse, left stale")
		return
	}
	c.upToDate[name] = struct{}{}
}
