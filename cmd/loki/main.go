package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err == flag.ErrHelp {
		os.Exit(1)
	} else if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	var cmd string
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "", "-h", "--help", "help":
		usage()
		return flag.ErrHelp
	case "obfuscate":
		return NewObfuscateCommand().Run(ctx, args)
	case "rules":
		return runRules(ctx, args)
	case "emulate":
		return NewEmulateCommand(os.Stdout).Run(ctx, args)
	default:
		return fmt.Errorf(`loki %s: unknown command`, cmd)
	}
}

func runRules(ctx context.Context, args []string) error {
	var cmd string
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "generate":
		return NewRulesGenerateCommand().Run(ctx, args)
	case "prune":
		return NewRulesPruneCommand().Run(ctx, args)
	default:
		usage()
		return flag.ErrHelp
	}
}

// initLogging sends log output to stderr in verbose mode and discards it
// otherwise.
func initLogging(verbose bool) {
	log.SetFlags(0)
	log.SetOutput(os.Stderr)
	if !verbose {
		log.SetOutput(io.Discard)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `
Loki is a code virtualization obfuscator.

Usage:

	loki <command> [arguments]

The commands are:

	obfuscate       obfuscate a lifted program
	rules generate  synthesize an MBA rule table
	rules prune     drop rules the SMT solver cannot prove
	emulate         execute an obfuscated instance
	help            this screen
`[1:])
}
