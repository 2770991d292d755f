package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/benbjohnson/loki/emulator"
	"github.com/benbjohnson/loki/obfuscate"
)

// EmulateCommand represents a command for executing an obfuscated instance.
type EmulateCommand struct {
	Stdout io.Writer
}

// NewEmulateCommand returns a new instance of EmulateCommand.
func NewEmulateCommand(stdout io.Writer) *EmulateCommand {
	return &EmulateCommand{Stdout: stdout}
}

// Run executes the "emulate" subcommand.
func (cmd *EmulateCommand) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("loki-emulate", flag.ContinueOnError)
	dir := fs.String("dir", "", "instance directory")
	verbose := fs.Bool("v", false, "verbose")
	fs.Usage = cmd.usage
	if err := fs.Parse(args); err != nil {
		return err
	} else if *dir == "" {
		return fmt.Errorf("instance directory required")
	}
	initLogging(*verbose)

	values, err := parseArgumentValues(fs.Args())
	if err != nil {
		return err
	}

	buf, err := os.ReadFile(filepath.Join(*dir, obfuscate.VariableMapFile))
	if err != nil {
		return err
	}
	vars, err := obfuscate.ParseVariableMap(buf)
	if err != nil {
		return err
	}

	vmArgs := make([]emulator.Argument, len(vars))
	for i, v := range vars {
		value, ok := values[v.Name]
		if !ok {
			return fmt.Errorf("missing value for argument: %s", v.Name)
		}
		vmArgs[i] = emulator.Argument{Register: v.Register, Value: value}
	}
	if len(values) > len(vars) {
		return fmt.Errorf("too many arguments: %d > %d", len(values), len(vars))
	}

	code, err := obfuscate.ReadByteCode(*dir)
	if err != nil {
		return err
	}
	semantics, err := obfuscate.ReadSemantics(filepath.Join(*dir, obfuscate.SemanticsFile))
	if err != nil {
		return err
	}

	result, err := emulator.NewVM(semantics).Run(code, vmArgs)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Stdout, "%#x\n", result)
	return nil
}

// parseArgumentValues parses "name=value" pairs. Values accept Go integer
// literal prefixes.
func parseArgumentValues(args []string) (map[string]uint64, error) {
	m := make(map[string]uint64, len(args))
	for _, arg := range args {
		name, s, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid argument, expected name=value: %q", arg)
		}

		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", name, err)
		}
		m[name] = v
	}
	return m, nil
}

func (cmd *EmulateCommand) usage() {
	fmt.Fprintln(os.Stderr, `
usage: loki emulate -dir DIR [name=value...]

Executes the bytecode of an obfuscated instance on the given argument
values and prints the result.

Arguments:

	-dir DIR
	    Instance directory written by "loki obfuscate".
	-v
	    Enable verbose logging.
`[1:])
}
