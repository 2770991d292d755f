package obfuscate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/benbjohnson/loki"
	"github.com/benbjohnson/loki/bytecode"
	"github.com/davecgh/go-spew/spew"
	"github.com/klauspost/compress/zstd"
)

// Instance output files.
const (
	ByteCodeFile     = "byte_code.bin"
	VariableMapFile  = "variable_map.txt"
	KeysFile         = "keys.json"
	SchedulerMapFile = "scheduler_map.json"
	SemanticsFile    = "semantics.json.zst"
	TimingsFile      = "timings.json"
	DebugDir         = "debug_files"
)

// WriteDir writes the instance outputs to dir. Intermediate stages are
// written to dir/debug_files when debug is set.
func (inst *Instance) WriteDir(dir string, debug bool) error {
	if err := ensureDir(dir); err != nil {
		return err
	}

	if err := inst.MetaALU.WriteAsm(dir); err != nil {
		return fmt.Errorf("write asm: %w", err)
	}

	code, err := inst.Code.MarshalBinary()
	if err != nil {
		return err
	} else if err := os.WriteFile(filepath.Join(dir, ByteCodeFile), code, 0o666); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(dir, VariableMapFile), []byte(inst.Translator.VariableMap()), 0o666); err != nil {
		return err
	}

	if err := writeJSON(filepath.Join(dir, KeysFile), inst.MetaALU.Keys); err != nil {
		return err
	} else if err := writeJSON(filepath.Join(dir, SchedulerMapFile), inst.Schedule); err != nil {
		return err
	} else if err := writeJSON(filepath.Join(dir, TimingsFile), inst.Timings); err != nil {
		return err
	}

	if err := WriteSemantics(filepath.Join(dir, SemanticsFile), inst.MetaALU.Semantics); err != nil {
		return err
	}

	if debug {
		if err := inst.writeDebugDir(filepath.Join(dir, DebugDir)); err != nil {
			return fmt.Errorf("write debug files: %w", err)
		}
	}
	return nil
}

// writeDebugDir dumps every intermediate stage of the instance.
func (inst *Instance) writeDebugDir(dir string) error {
	if err := ensureDir(dir); err != nil {
		return err
	}

	cfg := spew.ConfigState{Indent: "  ", SortKeys: true, DisablePointerAddresses: true}

	var blocks, trees strings.Builder
	for i, b := range inst.Prepared.Blocks {
		fmt.Fprintf(&blocks, "%d: %s\n", i, b)
		fmt.Fprintf(&trees, "%s\n%s\n", b.Output, b.Expr.Tree())
	}

	files := map[string]string{
		"program.txt":   inst.Program.String(),
		"emulator.txt":  loki.FormatAssignments(inst.Prepared.Emulator),
		"ssa.txt":       loki.FormatAssignments(inst.Prepared.Instructions),
		"blocks.txt":    blocks.String(),
		"trees.txt":     trees.String(),
		"scheduler.txt": cfg.Sdump(inst.Schedule),
		"semantics.txt": cfg.Sdump(inst.Semantics),
		"keys.txt":      cfg.Sdump(inst.MetaALU.Keys),
		"listing.txt":   inst.Translator.Listing(inst.Prepared.Instructions, inst.Code),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(data), 0o666); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(buf, '\n'), 0o666)
}

// WriteSemantics writes the handler semantics as zstd-compressed JSON.
func WriteSemantics(path string, semantics map[int]loki.Expr) error {
	buf, err := json.Marshal(semantics)
	if err != nil {
		return err
	}

	var zbuf bytes.Buffer
	enc, err := zstd.NewWriter(&zbuf)
	if err != nil {
		return err
	} else if _, err := enc.Write(buf); err != nil {
		enc.Close()
		return err
	} else if err := enc.Close(); err != nil {
		return err
	}
	return os.WriteFile(path, zbuf.Bytes(), 0o666)
}

// ReadSemantics reads handler semantics written by WriteSemantics.
func ReadSemantics(path string) (map[int]loki.Expr, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var semantics map[int]loki.Expr
	if err := json.NewDecoder(dec).Decode(&semantics); err != nil {
		return nil, fmt.Errorf("decode semantics %s: %w", path, err)
	}
	return semantics, nil
}

// Variable is an argument entry of a variable map.
type Variable struct {
	Name     string
	Register uint16
}

// ParseVariableMap parses the "name 0xreg" lines of a variable map.
func ParseVariableMap(data []byte) ([]Variable, error) {
	var a []Variable
	for i, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("variable map line %d: expected name and register: %q", i+1, line)
		}
		r, err := strconv.ParseUint(fields[1], 0, 16)
		if err != nil {
			return nil, fmt.Errorf("variable map line %d: %w", i+1, err)
		}
		a = append(a, Variable{Name: fields[0], Register: uint16(r)})
	}
	return a, nil
}

// ReadByteCode reads the bytecode of an instance directory.
func ReadByteCode(dir string) (bytecode.Program, error) {
	buf, err := os.ReadFile(filepath.Join(dir, ByteCodeFile))
	if err != nil {
		return nil, err
	}

	var p bytecode.Program
	if err := p.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	return p, nil
}
