package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/loki/config"
	"github.com/google/go-cmp/cmp"
)

func TestDefault(t *testing.T) {
	c := config.Default()
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	} else if c.NumALUs != 511 || c.MaxSemanticsPerALU != 5 || c.NumReservedALUHandlers != 2 {
		t.Fatalf("unexpected layout: %+v", c)
	} else if c.SolverTimeout != 5*time.Second {
		t.Fatalf("unexpected timeout: %s", c.SolverTimeout)
	}
}

func TestLoad(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "loki.yaml")
		if err := os.WriteFile(path, []byte(""+
			"rewrite_mba: true\n"+
			"num_alus: 16\n"+
			"solver_timeout: 250ms\n"+
			"seed: 42\n",
		), 0o666); err != nil {
			t.Fatal(err)
		}

		c, err := config.Load(path)
		if err != nil {
			t.Fatal(err)
		}

		want := config.Default()
		want.RewriteMBA = true
		want.NumALUs = 16
		want.SolverTimeout = 250 * time.Millisecond
		want.Seed = 42
		if diff := cmp.Diff(want, c); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("ErrNotExist", func(t *testing.T) {
		if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); !os.IsNotExist(err) {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("ErrInvalid", func(t *testing.T) {
		if _, err := config.Parse([]byte("min_semantics_per_alu: 9\n")); !errors.Is(err, config.ErrInvalid) {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	for _, tt := range []struct {
		name string
		fn   func(*config.Config)
	}{
		{"TooFewSlots", func(c *config.Config) { c.MaxSemanticsPerALU, c.MinSemanticsPerALU = 2, 1 }},
		{"TooFewReserved", func(c *config.Config) { c.NumReservedALUHandlers = 1 }},
		{"NoGenericHandlers", func(c *config.Config) { c.NumALUs = 2 }},
		{"ReuseProbability", func(c *config.Config) { c.ReuseProbability = 1.5 }},
		{"PointFunctionBudget", func(c *config.Config) { c.PointFunctionBudget = 0 }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			c := config.Default()
			tt.fn(&c)
			if err := c.Validate(); !errors.Is(err, config.ErrInvalid) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
