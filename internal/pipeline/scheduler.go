package pipeline

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/factoryd/internal/blueprint"
)

// maxWorkers caps fan-out width regardless of module count.
const maxWorkers = 4

// workerLimit resolves the configured width: zero means min(4, modules).
func workerLimit(configured, modules int) int {
	if configured > 0 {
		return configured
	}
	if modules < maxWorkers {
		if modules < 1 {
			return 1
		}
		return modules
	}
	return maxWorkers
}

// fanOut runs fn for every module with bounded parallelism. A task's
// failure is captured per module and never cancels its siblings: the
// group only sees nil returns, so the full result map always comes back.
func fanOut(ctx context.Context, limit int, mods []blueprint.Module, fn func(ctx context.Context, mod blueprint.Module) error) map[string]error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var mu sync.Mutex
	failures := make(map[string]error)

	for _, mod := range mods {
		mod := mod
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = nil
					mu.Lock()
					failures[mod.Name] = fmt.Errorf("module %s panicked: %v", mod.Name, r)
					mu.Unlock()
				}
			}()
			if err := fn(ctx, mod); err != nil {
				mu.Lock()
				failures[mod.Name] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failures
}
