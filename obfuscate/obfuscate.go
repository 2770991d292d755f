package obfuscate

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/loki"
	"github.com/benbjohnson/loki/alu"
	"github.com/benbjohnson/loki/bytecode"
	"github.com/benbjohnson/loki/config"
	"github.com/benbjohnson/loki/emulator"
	"github.com/benbjohnson/loki/lift"
	"github.com/benbjohnson/loki/rewrite"
)

// Obfuscator turns lifted programs into virtualized instances.
type Obfuscator struct {
	cfg      config.Config
	rewriter *rewrite.Rewriter

	// Optional prover checking every MBA rewrite of a handler.
	Prover rewrite.Prover
}

// New returns an obfuscator for cfg. The MBA rule table is loaded from
// cfg.EquivalenceClassesPath when rewriting is enabled.
func New(cfg config.Config) (*Obfuscator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var table *rewrite.Table
	if cfg.RewriteMBA {
		t, err := rewrite.LoadDir(cfg.EquivalenceClassesPath)
		if err != nil {
			return nil, fmt.Errorf("load rule table: %w", err)
		}
		log.Printf("[rules] %d equivalence classes loaded from %s", t.Len(), cfg.EquivalenceClassesPath)
		table = t
	}

	return &Obfuscator{
		cfg:      cfg,
		rewriter: rewrite.NewRewriter(table),
	}, nil
}

// Run obfuscates p with the default obfuscator for cfg.
func Run(ctx context.Context, cfg config.Config, p *lift.Program, dir string) error {
	o, err := New(cfg)
	if err != nil {
		return err
	}
	return o.Run(ctx, p, dir)
}

// Run writes cfg.NumInstances independently obfuscated instances of p to
// dir/instance_<i>. Each instance is verified against the program before
// it is written; a mismatch aborts the run.
func (o *Obfuscator) Run(ctx context.Context, p *lift.Program, dir string) error {
	if err := p.Validate(); err != nil {
		return err
	}

	seed := o.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log.Printf("[obfuscate] seed %d, %d instances", seed, o.cfg.NumInstances)

	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < o.cfg.NumInstances; i++ {
		inst, err := o.Instance(ctx, p, rng.Int63())
		if err != nil {
			return fmt.Errorf("instance %d: %w", i, err)
		}

		path := filepath.Join(dir, fmt.Sprintf("instance_%d", i))
		if err := inst.WriteDir(path, o.cfg.DebugOutput); err != nil {
			return fmt.Errorf("instance %d: %w", i, err)
		}
	}
	return nil
}

// Instance is a single obfuscated and verified version of a program.
type Instance struct {
	Seed int64

	Program    *lift.Program
	Prepared   *lift.Prepared
	Schedule   alu.SchedulerMap
	Semantics  alu.SemanticsMap
	MetaALU    *alu.MetaALU
	Code       bytecode.Program
	Translator *bytecode.Translator

	// Registers holding each argument.
	Registers []uint16

	Timings Timings
}

// Timings holds the duration of each stage of an instance.
type Timings struct {
	Prepare   time.Duration `json:"prepare"`
	Schedule  time.Duration `json:"schedule"`
	MetaALU   time.Duration `json:"meta_alu"`
	Translate time.Duration `json:"translate"`
	Verify    time.Duration `json:"verify"`
	Total     time.Duration `json:"total"`
}

// Instance runs every stage for p using a random source derived from seed.
// Each stage completes before the next one starts.
func (o *Obfuscator) Instance(ctx context.Context, p *lift.Program, seed int64) (*Instance, error) {
	inst := &Instance{Seed: seed, Program: p}
	rng := rand.New(rand.NewSource(seed))
	start := time.Now()

	t := time.Now()
	prepared, err := lift.Prepare(ctx, p, o.cfg, rng)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	inst.Prepared, inst.Timings.Prepare = prepared, time.Since(t)

	t = time.Now()
	s := alu.NewScheduler(o.cfg, rng)
	inst.Schedule, inst.Semantics = s.Schedule(prepared.Blocks)
	inst.Timings.Schedule = time.Since(t)
	log.Printf("[schedule] %d blocks on %d handlers, %d reused", len(prepared.Blocks), len(inst.Semantics), s.ReuseN)

	t = time.Now()
	b := alu.NewBuilder(o.cfg, o.rewriter)
	b.Prover = o.Prover
	if inst.MetaALU, err = alu.BuildMetaALU(ctx, o.cfg, b, inst.Semantics, rng.Int63()); err != nil {
		return nil, fmt.Errorf("meta alu: %w", err)
	}
	inst.Timings.MetaALU = time.Since(t)

	t = time.Now()
	inst.Translator = bytecode.NewTranslator(prepared.Arguments)
	if inst.Code, err = inst.Translator.Translate(prepared.Blocks, inst.MetaALU.Keys, inst.Schedule); err != nil {
		return nil, fmt.Errorf("translate: %w", err)
	}
	inst.Registers = inst.Translator.ArgumentRegisters()
	inst.Timings.Translate = time.Since(t)

	t = time.Now()
	v := &emulator.Verificator{
		Arguments: argumentExprs(p),
		Emulator:  prepared.Emulator,
		Code:      inst.Code,
		Semantics: inst.MetaALU.Semantics,
		Registers: inst.Registers,
	}
	if err := v.Verify(ctx, rng, o.cfg.VerificationIterations); err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	inst.Timings.Verify = time.Since(t)

	inst.Timings.Total = time.Since(start)
	return inst, nil
}

// argumentExprs returns the register of each argument at the width the
// program reads it. Unread arguments are 64 bits wide.
func argumentExprs(p *lift.Program) []loki.Expr {
	a := make([]loki.Expr, len(p.Arguments))
	for i, name := range p.Arguments {
		if e, ok := p.Argument(name); ok {
			a[i] = e
		} else {
			a[i] = loki.Reg64(name)
		}
	}
	return a
}

// ensureDir creates dir and its parents.
func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o777)
}
