package alu

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/benbjohnson/loki"
	"github.com/benbjohnson/loki/config"
	"golang.org/x/sync/errgroup"
)

// MetaALU is the bank of handlers of a single program instance.
type MetaALU struct {
	Keys      MetaKeys
	Semantics map[int]loki.Expr
	Handlers  map[int]*Handler

	// Number of handlers regenerated after failing verification.
	RetryN int
}

// BuildMetaALU builds handlers 1 through cfg.NumALUs in parallel. Each
// handler uses its own random source derived from seed and its id, so the
// result does not depend on scheduling. Handlers failing verification are
// regenerated.
func BuildMetaALU(ctx context.Context, cfg config.Config, b *Builder, semantics SemanticsMap, seed int64) (*MetaALU, error) {
	m := &MetaALU{
		Keys:      make(MetaKeys),
		Semantics: make(map[int]loki.Expr),
		Handlers:  make(map[int]*Handler),
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for id := 1; id <= cfg.NumALUs; id++ {
		id := id
		g.Go(func() error {
			rng := rand.New(rand.NewSource(HandlerSeed(seed, id)))

			var retryN int
			for {
				h, err := b.Build(ctx, rng, id, semantics[id])
				if err != nil {
					return fmt.Errorf("build handler %d: %w", id, err)
				}

				if err := h.Verify(rng); errors.Is(err, ErrHandlerMismatch) {
					retryN++
					continue
				} else if err != nil {
					return err
				}

				mu.Lock()
				defer mu.Unlock()
				m.Keys[id], m.Semantics[id], m.Handlers[id] = h.Keys, h.Semantics, h
				m.RetryN += retryN
				return nil
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Printf("[alu] %d handlers built, %d regenerated", len(m.Handlers), m.RetryN)
	return m, nil
}

// HandlerSeed returns the seed of the random source building handler id.
func HandlerSeed(seed int64, id int) int64 {
	return seed*1000003 + int64(id)
}

// Handler returns handler id.
func (m *MetaALU) Handler(id int) (*Handler, bool) {
	h, ok := m.Handlers[id]
	return h, ok
}

// WriteAsm writes the pseudo-assembly of every handler to dir as
// alu_<id>.asm. The memory handler has no assembly.
func (m *MetaALU) WriteAsm(dir string) error {
	for id, h := range m.Handlers {
		if h.IsMemoryHandler() {
			continue
		}

		path := filepath.Join(dir, fmt.Sprintf("alu_%d.asm", id))
		if err := os.WriteFile(path, []byte(EmitAsm(h.Semantics)), 0o666); err != nil {
			return err
		}
	}
	return nil
}
