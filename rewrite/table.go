package rewrite

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/benbjohnson/loki"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/exp/slices"
)

// ErrRepresentative is returned when a representative is not a single
// operator over its parameters.
var ErrRepresentative = errors.New("invalid representative")

// Class is a set of expressions over p0, p1 & p2 that compute the same
// function as their representative.
type Class struct {
	Representative loki.Expr   `json:"representative"`
	Members        []loki.Expr `json:"members"`
}

// Table maps representative expressions to their equivalence classes.
// Tables are loaded from shard files and unioned.
type Table struct {
	classes map[string]*Class
	members map[string]map[string]struct{}
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		classes: make(map[string]*Class),
		members: make(map[string]map[string]struct{}),
	}
}

// Len returns the number of equivalence classes in the table.
func (t *Table) Len() int { return len(t.classes) }

// Insert adds members to the class of rep, creating the class if needed.
// Members already present are ignored. Panics if rep is not a valid
// representative.
func (t *Table) Insert(rep loki.Expr, members ...loki.Expr) {
	if !ValidRepresentative(rep) {
		panic(fmt.Sprintf("assert: %s: %s", ErrRepresentative, rep))
	}

	key := rep.Key()
	c, ok := t.classes[key]
	if !ok {
		c = &Class{Representative: rep.Clone()}
		t.classes[key] = c
		t.members[key] = make(map[string]struct{})
	}

	seen := t.members[key]
	for _, m := range members {
		k := m.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		c.Members = append(c.Members, m.Clone())
	}
}

// ValidRepresentative returns true if rep is parameter p0 or a single
// operator whose i-th operand is parameter p<i>. The masked shift amount of
// Shl and Lshr is accepted as the second operand.
func ValidRepresentative(rep loki.Expr) bool {
	if len(rep) == 0 {
		return false
	} else if rep.Root().Arity() == 0 {
		return isParam(rep, 0)
	}

	w := rep.Width()
	p0, p1 := loki.Reg("p0", w), loki.Reg("p1", w)
	switch rep.Op() {
	case loki.OpShl:
		if rep.Equal(loki.Shl(p0, p1, w)) {
			return true
		}
	case loki.OpLshr:
		if rep.Equal(loki.Lshr(p0, p1, w)) {
			return true
		}
	}

	for i, arg := range rep.Args() {
		if !isParam(arg, i) {
			return false
		}
	}
	return true
}

func isParam(e loki.Expr, i int) bool {
	return e.IsVar() && e.Name() == fmt.Sprintf("p%d", i)
}

// Merge unions every class of other into t.
func (t *Table) Merge(other *Table) {
	for _, c := range other.Classes() {
		t.Insert(c.Representative, c.Members...)
	}
}

// Classes returns all classes ordered by representative.
func (t *Table) Classes() []*Class {
	keys := make([]string, 0, len(t.classes))
	for k := range t.classes {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	a := make([]*Class, 0, len(keys))
	for _, k := range keys {
		a = append(a, t.classes[k])
	}
	return a
}

// Class returns the class of rep, if any.
func (t *Table) Class(rep loki.Expr) *Class {
	return t.classes[rep.Key()]
}

// Rules returns the members of every class keyed by the root of the
// representative. Registers & constants share the key of register "p0".
func (t *Table) Rules() map[loki.LinearExpr][]loki.Expr {
	m := make(map[loki.LinearExpr][]loki.Expr)
	for _, c := range t.Classes() {
		if len(c.Members) == 0 {
			continue
		}
		root := c.Representative.Root()
		m[root] = append(m[root], c.Members...)
	}
	return m
}

// String returns a human-readable dump of every class.
func (t *Table) String() string {
	var buf strings.Builder
	for _, c := range t.Classes() {
		fmt.Fprintf(&buf, "representative: %s\n", c.Representative)
		for _, m := range c.Members {
			fmt.Fprintf(&buf, "%s\n", m)
		}
		buf.WriteString("\n\n")
	}
	return buf.String()
}

// MarshalJSON encodes the table as a list of classes.
func (t *Table) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Classes())
}

// UnmarshalJSON decodes a list of classes into the table.
func (t *Table) UnmarshalJSON(data []byte) error {
	var classes []*Class
	if err := json.Unmarshal(data, &classes); err != nil {
		return err
	}

	*t = *NewTable()
	for i, c := range classes {
		if !ValidRepresentative(c.Representative) {
			return fmt.Errorf("class %d: %w: %s", i, ErrRepresentative, c.Representative)
		}
		t.Insert(c.Representative, c.Members...)
	}
	return nil
}

// ReadFile reads a single table shard. Shards ending in ".zst" are
// zstd-compressed.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		r = dec
	}

	t := NewTable()
	if err := json.NewDecoder(r).Decode(t); err != nil {
		return nil, fmt.Errorf("decode rule table %s: %w", path, err)
	}
	return t, nil
}

// WriteFile writes the table to path as a single shard. The shard is
// zstd-compressed if path ends in ".zst".
func (t *Table) WriteFile(path string) error {
	buf, err := json.Marshal(t)
	if err != nil {
		return err
	}

	if strings.HasSuffix(path, ".zst") {
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
		buf = zbuf.Bytes()
	}

	return os.WriteFile(path, buf, 0o666)
}

// LoadDir reads every shard in dir and returns their union. A missing
// directory is an error.
func LoadDir(dir string) (*Table, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}

	var paths []string
	for _, pattern := range []string{"*.json", "*.json.zst"} {
		a, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, a...)
	}
	slices.Sort(paths)

	t := NewTable()
	for _, path := range paths {
		other, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		t.Merge(other)
	}
	return t, nil
}
