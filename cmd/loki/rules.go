package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/loki/rewrite"
	"github.com/benbjohnson/loki/z3"
)

// RulesGenerateCommand represents a command for synthesizing a rule table.
type RulesGenerateCommand struct{}

// NewRulesGenerateCommand returns a new instance of RulesGenerateCommand.
func NewRulesGenerateCommand() *RulesGenerateCommand {
	return &RulesGenerateCommand{}
}

// Run executes the "rules generate" subcommand.
func (cmd *RulesGenerateCommand) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("loki-rules-generate", flag.ContinueOnError)
	outputDir := fs.String("o", "mba", "output directory")
	width := fs.Uint("width", 64, "bit width")
	depth := fs.Int("depth", 3, "maximum expansion depth")
	samples := fs.Int("samples", 32, "number of random samples")
	seed := fs.Int64("seed", 0, "random seed")
	verbose := fs.Bool("v", false, "verbose")
	fs.Usage = cmd.usage
	if err := fs.Parse(args); err != nil {
		return err
	} else if fs.NArg() != 0 {
		return fmt.Errorf("unexpected arguments")
	}
	initLogging(*verbose)

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	w := *width
	s := rewrite.NewSynthesizer(rand.New(rand.NewSource(*seed)), *samples, w)
	reps := rewrite.BasicSemantics(w)
	if err := s.InitWithSelection(ctx, reps); err != nil {
		return err
	} else if err := s.Synthesize(ctx, *depth); err != nil {
		return err
	}

	t := s.Table(reps)
	log.Printf("[rules] %d classes synthesized", s.ClassN())

	if err := os.MkdirAll(*outputDir, 0o777); err != nil {
		return err
	}
	path := filepath.Join(*outputDir, fmt.Sprintf("rules_%d.json.zst", w))
	if err := t.WriteFile(path); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%d classes written to %s\n", t.Len(), path)
	return nil
}

func (cmd *RulesGenerateCommand) usage() {
	fmt.Fprintln(os.Stderr, `
usage: loki rules generate [arguments]

Arguments:

	-o DIR
	    Output directory. Defaults to "mba".
	-width N
	    Bit width of the synthesized expressions. Defaults to 64.
	-depth N
	    Maximum number of grammar expansions. Defaults to 3.
	-samples N
	    Number of random input samples per fingerprint. Defaults to 32.
	-seed N
	    Random seed.
	-v
	    Enable verbose logging.
`[1:])
}

// RulesPruneCommand represents a command for removing unproven rules.
type RulesPruneCommand struct{}

// NewRulesPruneCommand returns a new instance of RulesPruneCommand.
func NewRulesPruneCommand() *RulesPruneCommand {
	return &RulesPruneCommand{}
}

// Run executes the "rules prune" subcommand.
func (cmd *RulesPruneCommand) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("loki-rules-prune", flag.ContinueOnError)
	timeout := fs.Duration("timeout", 5*time.Second, "solver timeout per query")
	verbose := fs.Bool("v", false, "verbose")
	fs.Usage = cmd.usage
	if err := fs.Parse(args); err != nil {
		return err
	} else if fs.NArg() != 2 {
		return fmt.Errorf("input and output paths required")
	}
	initLogging(*verbose)

	t, err := rewrite.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	prover := z3.NewProver(*timeout)
	other, err := rewrite.Prune(t, prover)
	if err != nil {
		return err
	}
	log.Printf("[rules] %d queries in %s", prover.Stats().SolveN, prover.Stats().SolveTime)

	return other.WriteFile(fs.Arg(1))
}

func (cmd *RulesPruneCommand) usage() {
	fmt.Fprintln(os.Stderr, `
usage: loki rules prune [arguments] input output

Arguments:

	-timeout DURATION
	    Solver timeout per query. Defaults to 5s.
	-v
	    Enable verbose logging.
`[1:])
}
