// Package sandbox wires the five pipeline components — catalog, stage,
// compiler, vmhost, result — into the single request lifecycle spec.md
// §2 describes: stage -> compile -> instantiate -> invoke -> decode ->
// cleanup, with every error kind converted into a log-carrying Result
// rather than propagated to the caller.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/sbraitsch/farce/internal/catalog"
	"github.com/sbraitsch/farce/internal/compiler"
	"github.com/sbraitsch/farce/internal/logger"
	"github.com/sbraitsch/farce/internal/result"
	"github.com/sbraitsch/farce/internal/stage"
	"github.com/sbraitsch/farce/internal/taxonomy"
	"github.com/sbraitsch/farce/internal/vmhost"
)

// null is the JSON encoding of a null `out` field, returned on every
// failure path (spec.md §3's Execution Result: "a JSON null on
// failure").
var null = json.RawMessage("null")

// Submission is the immutable, one-request input to the pipeline.
type Submission struct {
	Problem catalog.Problem
	Source  []byte
	Param   *string
}

// Result is the value returned to the HTTP caller.
type Result struct {
	Log *string         `json:"log"`
	Out json.RawMessage `json:"out"`
}

// Pipeline owns the long-lived collaborators (the compiler driver, the
// resource bounds, the logger) shared across every request.
type Pipeline struct {
	Driver                *compiler.Driver
	FuelBudget            uint64
	InstructionsPerSecond uint64
	// CompileTimeout bounds the toolchain subprocess; zero means
	// unbounded (the caller's context governs instead).
	CompileTimeout time.Duration
	Logger         logger.Logger
}

// New builds a Pipeline. l may be nil, in which case the package-level
// global logger.L() is used.
func New(driver *compiler.Driver, fuelBudget, instructionsPerSecond uint64, l logger.Logger) *Pipeline {
	if l == nil {
		l = logger.L()
	}
	return &Pipeline{
		Driver:                driver,
		FuelBudget:            fuelBudget,
		InstructionsPerSecond: instructionsPerSecond,
		Logger:                l,
	}
}

// WithCompileTimeout returns a copy of p with CompileTimeout set.
func (p *Pipeline) WithCompileTimeout(d time.Duration) *Pipeline {
	cp := *p
	cp.CompileTimeout = d
	return &cp
}

// Execute runs one submission through the full pipeline. It never
// returns a Go error: every failure kind is converted into a Result
// whose Log field carries a description, matching spec.md §7's "always
// HTTP 200" contract at the request boundary.
func (p *Pipeline) Execute(ctx context.Context, sub Submission) Result {
	entry, err := catalog.Resolve(string(sub.Problem))
	if err != nil {
		return errResult(err)
	}

	ws, err := stage.Stage(ctx, entry, sub.Source)
	if err != nil {
		return errResult(err)
	}
	defer p.closeWorkspace(ctx, ws)

	compileCtx := ctx
	if p.CompileTimeout > 0 {
		var compileCancel context.CancelFunc
		compileCtx, compileCancel = context.WithTimeout(ctx, p.CompileTimeout)
		defer compileCancel()
	}

	artifact, err := p.Driver.Compile(compileCtx, ws)
	if err != nil {
		return errResult(err)
	}
	defer p.removeArtifact(ctx, artifact)

	wasmBytes, err := os.ReadFile(artifact.Path)
	if err != nil {
		return errResult(taxonomy.Wrapf(taxonomy.ModuleLoad, err, "reading compiled artifact %s", artifact.Path))
	}

	outcome, err := vmhost.Run(ctx, wasmBytes, entry, sub.Param, vmhost.Options{
		FuelBudget:            p.FuelBudget,
		InstructionsPerSecond: p.InstructionsPerSecond,
	})
	if err != nil {
		return errResult(err)
	}

	out, err := result.Decode(outcome.Raw)
	if err != nil {
		return errResult(err)
	}

	return Result{Log: outcome.Log, Out: out}
}

func (p *Pipeline) closeWorkspace(ctx context.Context, ws *stage.Workspace) {
	if err := ws.Close(); err != nil {
		p.Logger.Warn(ctx, "failed to remove workspace", zap.String("dir", ws.Dir), zap.Error(err))
	}
}

func (p *Pipeline) removeArtifact(ctx context.Context, artifact *compiler.Artifact) {
	if err := artifact.Remove(); err != nil {
		p.Logger.Warn(ctx, "failed to remove artifact", zap.String("path", artifact.Path), zap.Error(err))
	}
}

// errResult converts any pipeline failure into a caller-facing Result.
// The message shape for each taxonomy.Kind matches the wording spec.md
// §8's scenario table pins down verbatim (OutOfFuel's and
// MissingParameter's exact text, CompilationFailed's "Error:
// Compilation failed: " prefix).
func errResult(err error) Result {
	msg := errMessage(err)
	return Result{Log: &msg, Out: null}
}

func errMessage(err error) string {
	var taxErr *taxonomy.Error
	if errors.As(err, &taxErr) {
		switch taxErr.Kind {
		case taxonomy.OutOfFuel:
			return taxErr.Message
		case taxonomy.MissingParameter:
			return taxErr.Message
		case taxonomy.CompilationFailed:
			return fmt.Sprintf("Error: Compilation failed: %s", taxErr.Message)
		default:
			return fmt.Sprintf("Error: %s", taxErr.Message)
		}
	}
	return fmt.Sprintf("Error: %s", err.Error())
}
