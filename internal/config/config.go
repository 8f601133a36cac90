// Package config resolves the process-wide settings the sandbox needs
// from the environment, the same way packages/api/internal/cfg does in
// the orchestrator this project is grounded on.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the sandbox's process-wide configuration. Every field has a
// sane default so the binary runs unconfigured in development.
type Config struct {
	// Port is the HTTP listener port.
	Port int `env:"PORT" envDefault:"8081"`

	// BuildDir is the shared, append-only build-output directory reused
	// across requests so the Go build cache stays warm (spec.md §4.3).
	BuildDir string `env:"FARCE_BUILD_DIR" envDefault:".farce-build"`

	// GoToolchain is the path to (or name of) the Go compiler invoked
	// as the bytecode-producing toolchain.
	GoToolchain string `env:"FARCE_GO_BIN" envDefault:"go"`

	// FuelBudget is the per-invocation instruction budget (spec.md §9
	// open question 3: promoted from a hard-coded constant).
	FuelBudget uint64 `env:"FARCE_FUEL_BUDGET" envDefault:"500000"`

	// InstructionsPerSecond calibrates FuelBudget into the wall-clock
	// budget the VM Host actually enforces (internal/vmhost).
	InstructionsPerSecond uint64 `env:"FARCE_INSTRUCTIONS_PER_SECOND" envDefault:"2000000"`

	// MaxConcurrentBuilds bounds the worker pool that stage+compile+run
	// is dispatched onto (spec.md §9 open question 4).
	MaxConcurrentBuilds int `env:"FARCE_MAX_CONCURRENT_BUILDS" envDefault:"4"`

	// MaxSubmissionBytes caps the HTTP request body size.
	MaxSubmissionBytes int64 `env:"FARCE_MAX_SUBMISSION_BYTES" envDefault:"65536"`

	// CompileTimeout bounds the compiler subprocess; spec.md leaves
	// compilation wall-clock unbounded by default, but the reference
	// notes implementers "may add wall-clock deadlines" (§5), so this
	// is on by default with a generous bound; zero disables it.
	CompileTimeout time.Duration `env:"FARCE_COMPILE_TIMEOUT" envDefault:"30s"`

	// IsDebug switches the logger to a human-readable console encoder.
	IsDebug bool `env:"FARCE_DEBUG" envDefault:"false"`
}

// Parse reads Config from the environment, applying envDefault tags for
// anything unset.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
