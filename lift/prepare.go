package lift

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/benbjohnson/loki"
	"github.com/benbjohnson/loki/alu"
	"github.com/benbjohnson/loki/config"
	"golang.org/x/exp/slices"
)

// Prepared holds the forms of a program used by the rest of a run.
type Prepared struct {
	Arguments []string `json:"arguments"`

	// Instructions evaluated by the input emulator.
	Emulator []loki.Assignment `json:"emulator"`

	// Post-processed SSA instructions translated to bytecode, one block per
	// instruction.
	Instructions []loki.Assignment `json:"instructions"`
	Blocks       []*alu.Block      `json:"blocks"`
}

// Prepare validates p and derives its emulation and handler forms. The
// super-optimizer runs on the handler form when enabled by cfg.
func Prepare(ctx context.Context, p *Program, cfg config.Config, rng *rand.Rand) (*Prepared, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	t := time.Now()
	ret := &Prepared{
		Arguments:    slices.Clone(p.Arguments),
		Emulator:     Preprocess(p.Instructions),
		Instructions: PostProcess(p.Instructions, p.Arguments),
	}
	log.Printf("[prepare] %d instructions post-processed to %d", len(p.Instructions), len(ret.Instructions))

	if cfg.Superoptimization {
		n := len(ret.Instructions)

		a, err := SuperOptimize(ctx, ret.Instructions, cfg, rng)
		if err != nil {
			return nil, fmt.Errorf("superoptimize: %w", err)
		}
		ret.Instructions = a
		log.Printf("[prepare] superoptimized %d instructions to %d", n, len(a))
	}

	ret.Blocks = alu.NewBlocks(ret.Instructions)
	log.Printf("[prepare] %d blocks ready (%s)", len(ret.Blocks), time.Since(t))
	return ret, nil
}

// Output returns the register holding the program result.
func (p *Prepared) Output() loki.Expr {
	return p.Instructions[len(p.Instructions)-1].LHS
}
