package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/benbjohnson/loki/config"
	"github.com/benbjohnson/loki/lift"
	"github.com/benbjohnson/loki/obfuscate"
	"github.com/benbjohnson/loki/z3"
)

// ObfuscateCommand represents a command for obfuscating a lifted program.
type ObfuscateCommand struct{}

// NewObfuscateCommand returns a new instance of ObfuscateCommand.
func NewObfuscateCommand() *ObfuscateCommand {
	return &ObfuscateCommand{}
}

// Run executes the "obfuscate" subcommand.
func (cmd *ObfuscateCommand) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("loki-obfuscate", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file")
	outputDir := fs.String("o", "out", "output directory")
	instances := fs.Int("n", 0, "number of instances")
	seed := fs.Int64("seed", 0, "random seed")
	prove := fs.Bool("prove", false, "prove handler rewrites with z3")
	debug := fs.Bool("debug", false, "write intermediate stages")
	verbose := fs.Bool("v", false, "verbose")
	fs.Usage = cmd.usage
	if err := fs.Parse(args); err != nil {
		return err
	} else if fs.NArg() == 0 {
		return fmt.Errorf("program path required")
	} else if fs.NArg() > 1 {
		return fmt.Errorf("too many programs specified")
	}
	initLogging(*verbose)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}
	if *instances > 0 {
		cfg.NumInstances = *instances
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	if *debug {
		cfg.DebugOutput = true
	}

	p, err := lift.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	o, err := obfuscate.New(cfg)
	if err != nil {
		return err
	}
	if *prove {
		o.Prover = z3.NewProver(cfg.SolverTimeout)
	}

	if err := o.Run(ctx, p, *outputDir); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%d instances written to %s\n", cfg.NumInstances, *outputDir)
	return nil
}

func (cmd *ObfuscateCommand) usage() {
	fmt.Fprintln(os.Stderr, `
usage: loki obfuscate [arguments] program.json

Arguments:

	-config PATH
	    YAML configuration file.
	-o DIR
	    Output directory. Defaults to "out".
	-n N
	    Number of instances. Overrides the configuration.
	-seed N
	    Random seed. Overrides the configuration.
	-prove
	    Check every MBA rewrite of a handler with z3.
	-debug
	    Write intermediate stages to debug_files/.
	-v
	    Enable verbose logging.
`[1:])
}
