// Package progress emits synthetic progress values while a long remote call
// is in flight.
package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Config controls the tick cadence.
type Config struct {
	Interval time.Duration
	Step     int
	Cap      int
}

// DefaultConfig ticks every 500ms in steps of 10 up to 90.
func DefaultConfig() Config {
	return Config{Interval: 500 * time.Millisecond, Step: 10, Cap: 90}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.Step <= 0 {
		c.Step = d.Step
	}
	if c.Cap <= 0 || c.Cap > 100 {
		c.Cap = d.Cap
	}
	return c
}

// Estimator owns one ticker goroutine.  The zero value is not usable; call
// Start.
type Estimator struct {
	cfg    Config
	emit   func(int)
	value  atomic.Int64
	cancel context.CancelFunc
	group  *errgroup.Group
	once   sync.Once
}

// Start begins ticking.  emit is called from the ticker goroutine with a
// non-decreasing value that never exceeds cfg.Cap.  A nil emit only tracks
// Value.  Cancelling ctx stops the ticks but Stop must still be called.
func Start(ctx context.Context, cfg Config, emit func(int)) *Estimator {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	e := &Estimator{cfg: cfg, emit: emit, cancel: cancel, group: g}
	g.Go(func() error {
		e.run(gctx)
		return nil
	})
	return e
}

func (e *Estimator) run(ctx context.Context) {
	t := time.NewTicker(e.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			cur := int(e.value.Load())
			if cur >= e.cfg.Cap {
				continue
			}
			next := min(cur+e.cfg.Step, e.cfg.Cap)
			// Stop may have raced with the tick.
			if ctx.Err() != nil {
				return
			}
			e.value.Store(int64(next))
			if e.emit != nil {
				e.emit(next)
			}
		}
	}
}

// Stop halts the ticker and waits for its goroutine to exit.  It is safe to
// call more than once; after it returns emit is never called again.
func (e *Estimator) Stop() {
	e.once.Do(func() {
		e.cancel()
		_ = e.group.Wait()
	})
}

// Value returns the last emitted value.
func (e *Estimator) Value() int { return int(e.value.Load()) }
