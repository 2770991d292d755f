package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned when a configuration fails validation.
var ErrInvalid = errors.New("invalid config")

// Config holds the parameters of an obfuscation run. It is passed by value
// to every component and never modified after construction.
type Config struct {
	// Rewrite handler expressions with the MBA rule table.
	RewriteMBA bool `yaml:"rewrite_mba"`

	// Run the super-optimizer over lifted instructions.
	Superoptimization bool `yaml:"superoptimization"`

	// Randomize the placement of semantics blocks onto handler slots.
	ScheduleNonDeterministic bool `yaml:"schedule_non_deterministic"`

	// Probability that a repeated block reuses an earlier slot when
	// scheduling non-deterministically.
	ReuseProbability float64 `yaml:"reuse_probability"`

	// Handler layout.
	NumALUs                int `yaml:"num_alus"`
	MinSemanticsPerALU     int `yaml:"min_semantics_per_alu"`
	MaxSemanticsPerALU     int `yaml:"max_semantics_per_alu"`
	NumReservedALUHandlers int `yaml:"num_reserved_alu_handlers"`

	// Length bounds for super-optimized instructions.
	MinSuperhandlerDepth int `yaml:"min_superhandler_depth"`
	MaxSuperhandlerDepth int `yaml:"max_superhandler_depth"`

	// Directory holding the MBA rule table shards.
	EquivalenceClassesPath string `yaml:"equivalence_classes_path"`

	// Number of random inputs checked by the verificator.
	VerificationIterations int `yaml:"verification_iterations"`

	// Write intermediate stages under debug_files/.
	DebugOutput bool `yaml:"debug_output"`

	// Number of independently obfuscated instances per run.
	NumInstances int `yaml:"num_instances"`

	// Wall-clock limit of a single SMT query.
	SolverTimeout time.Duration `yaml:"solver_timeout"`

	// Number of candidates tried when synthesizing a point function.
	PointFunctionBudget int `yaml:"point_function_budget"`

	// Seed of the run's random source. Zero selects a time-based seed.
	Seed int64 `yaml:"seed"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		RewriteMBA:               false,
		Superoptimization:        true,
		ScheduleNonDeterministic: true,
		ReuseProbability:         2.0 / 3.0,
		NumALUs:                  511,
		MinSemanticsPerALU:       3,
		MaxSemanticsPerALU:       5,
		NumReservedALUHandlers:   2,
		MinSuperhandlerDepth:     3,
		MaxSuperhandlerDepth:     12,
		EquivalenceClassesPath:   "./mba/",
		VerificationIterations:   100,
		DebugOutput:              false,
		NumInstances:             256,
		SolverTimeout:            5 * time.Second,
		PointFunctionBudget:      2500,
	}
}

// Load reads a YAML configuration file from path. Fields missing from the
// file keep their default values.
func Load(path string) (Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(buf)
}

// Parse decodes YAML data over the default configuration and validates it.
func Parse(data []byte) (Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate returns ErrInvalid if the handler layout cannot hold a program.
func (c Config) Validate() error {
	switch {
	case c.MinSemanticsPerALU > c.MaxSemanticsPerALU:
		return fmt.Errorf("%w: min semantics per alu (%d) exceeds max (%d)", ErrInvalid, c.MinSemanticsPerALU, c.MaxSemanticsPerALU)
	case c.MaxSemanticsPerALU < 3:
		return fmt.Errorf("%w: max semantics per alu must be at least 3", ErrInvalid)
	case c.NumReservedALUHandlers < 2:
		return fmt.Errorf("%w: at least 2 reserved handlers required", ErrInvalid)
	case c.NumALUs <= c.NumReservedALUHandlers:
		return fmt.Errorf("%w: num alus (%d) must exceed reserved handlers (%d)", ErrInvalid, c.NumALUs, c.NumReservedALUHandlers)
	case c.MinSuperhandlerDepth > c.MaxSuperhandlerDepth:
		return fmt.Errorf("%w: min superhandler depth exceeds max", ErrInvalid)
	case c.ReuseProbability < 0 || c.ReuseProbability > 1:
		return fmt.Errorf("%w: reuse probability out of range: %v", ErrInvalid, c.ReuseProbability)
	case c.VerificationIterations < 0:
		return fmt.Errorf("%w: negative verification iterations", ErrInvalid)
	case c.PointFunctionBudget <= 0:
		return fmt.Errorf("%w: point function budget must be positive", ErrInvalid)
	}
	return nil
}

// HandlerCapacity returns the number of handler slots available to
// non-memory semantics blocks.
func (c Config) HandlerCapacity() int {
	return (c.NumALUs - c.NumReservedALUHandlers + 1) * c.MaxSemanticsPerALU
}
