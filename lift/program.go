package lift

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/benbjohnson/loki"
)

// Validation errors.
var (
	ErrNoInstructions = errors.New("no instructions found")
	ErrNoArguments    = errors.New("no input arguments found")
	ErrEmptyArgument  = errors.New("empty input argument provided")
	ErrInvalidName    = errors.New("invalid register name")
)

// Program represents a lifted function: the names of its input registers and
// the assignments computing its result. The final assignment holds the
// return value.
type Program struct {
	Arguments    []string          `json:"arguments"`
	Instructions []loki.Assignment `json:"instructions"`
}

// ReadFile decodes a JSON program from path and validates it.
func ReadFile(path string) (*Program, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(buf)
}

// Parse decodes a JSON program and validates it.
func Parse(data []byte) (*Program, error) {
	var p Program
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse program: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate returns an error if the program has no instructions, no arguments
// or an empty argument name. Register names may not contain the SSA version
// separator.
func (p *Program) Validate() error {
	if len(p.Instructions) == 0 {
		return ErrNoInstructions
	} else if len(p.Arguments) == 0 {
		return ErrNoArguments
	}
	for i, name := range p.Arguments {
		if name == "" {
			return fmt.Errorf("argument %d: %w", i, ErrEmptyArgument)
		} else if strings.Contains(name, loki.VersionSeparator) {
			return fmt.Errorf("argument %d: %w: %q", i, ErrInvalidName, name)
		}
	}
	for i, a := range p.Instructions {
		if len(a.LHS) == 0 || len(a.RHS) == 0 {
			return fmt.Errorf("instruction %d: empty expression", i)
		} else if a.LHS.Width() != a.RHS.Width() {
			return fmt.Errorf("instruction %d: width mismatch: %d != %d", i, a.LHS.Width(), a.RHS.Width())
		}

		for _, v := range append(a.LHS.Vars(), a.RHS.Vars()...) {
			if strings.Contains(v.Name(), loki.VersionSeparator) {
				return fmt.Errorf("instruction %d: %w: %q", i, ErrInvalidName, v.Name())
			}
		}
	}
	return nil
}

// String returns the instructions followed by the argument names.
func (p *Program) String() string {
	var sb strings.Builder
	sb.WriteString("Instructions:\n")
	sb.WriteString(loki.FormatAssignments(p.Instructions))
	sb.WriteString("\nArguments:\n")
	for _, name := range p.Arguments {
		sb.WriteString(name)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Argument returns the register expression of the named argument as first
// referenced by the instructions. Returns false if no instruction reads it.
func (p *Program) Argument(name string) (loki.Expr, bool) {
	for _, a := range p.Instructions {
		for _, v := range a.RHS.Vars() {
			if v.Name() == name {
				return v, true
			}
		}
	}
	return nil, false
}
