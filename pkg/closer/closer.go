// Package closer provides ordered, timeout-bounded shutdown of named
// resources (consumer groups, producers, pools), run LIFO.
package closer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	logger "github.com/nastyazhadan/matching-engine/pkg/logging/zap"
)

const DefaultShutdownTimeout = 5 * time.Second

type Closer struct {
	mu    sync.Mutex
	once  sync.Once
	funcs []namedFunc
}

type namedFunc struct {
	name string
	fn   func(context.Context) error
}

func New() *Closer {
	return &Closer{}
}

func (c *Closer) Add(name string, fn func(context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.funcs = append(c.funcs, namedFunc{name: name, fn: fn})
}

// CloseAll runs every registered closer in LIFO order, continuing past
// individual failures and returning the first error encountered.
func (c *Closer) CloseAll(ctx context.Context) error {
	var result error

	c.once.Do(func() {
		c.mu.Lock()
		funcs := c.funcs
		c.funcs = nil
		c.mu.Unlock()

		for i := len(funcs) - 1; i >= 0; i-- {
			if err := c.safeRun(ctx, funcs[i]); err != nil && result == nil {
				result = err
			}
		}
	})

	return result
}

func (c *Closer) safeRun(ctx context.Context, nf namedFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic closing %s: %v", nf.name, r)
			logger.Error(ctx, "panic recovered during shutdown", zap.String("resource", nf.name), zap.Any("panic", r))
		}
	}()

	start := time.Now()
	logger.Info(ctx, "closing resource", zap.String("resource", nf.name))

	err = nf.fn(ctx)

	took := time.Since(start)
	if err != nil {
		logger.Error(ctx, "failed to close resource", zap.String("resource", nf.name), zap.Duration("took", took), zap.Error(err))
	} else {
		logger.Info(ctx, "resource closed", zap.String("resource", nf.name), zap.Duration("took", took))
	}

	return err
}
