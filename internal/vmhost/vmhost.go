// Package vmhost is the VM Host: it instantiates a wazero runtime,
// registers the WASI capabilities the guest imports, wires a captured
// stdout sink, enforces a per-invocation instruction budget, invokes
// the guest's exported entry point, and decodes the returned pointer
// into the host's copy of the guest's result bytes.
//
// Grounded on the wazero embedding style in
// _examples/other_examples/...-wazero_runtime.go.go: a fresh
// wazero.Runtime per call, wasi_snapshot_preview1 instantiated before
// the guest module, a dedicated stdout sink wired through ModuleConfig.
package vmhost

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/sbraitsch/farce/internal/catalog"
	"github.com/sbraitsch/farce/internal/taxonomy"
)

// recordSize is the width of the guest's {ptr int32; len int32} return
// record: two little-endian 32-bit integers (spec.md §4.4/§6.4).
const recordSize = 8

// Options configures one invocation's resource bounds.
type Options struct {
	// FuelBudget is the instruction budget in the reference's units
	// (spec.md's "instruction-fuel accounting"). No default is applied
	// here: config.FuelBudget defaults to 500,000, and a zero budget
	// expires immediately.
	FuelBudget uint64
	// InstructionsPerSecond calibrates FuelBudget into a wall-clock
	// budget: wazero, unlike wasmtime, exposes no native instruction
	// counter, so the host approximates deterministic enforcement with
	// a context deadline sized from this throughput estimate. Tests
	// that need to force the OutOfFuel path deterministically should
	// set FuelBudget to 0 rather than rely on wall-clock timing.
	InstructionsPerSecond uint64
}

// Outcome is what one successful guest invocation produced. It is only
// meaningful when Run returns a nil error.
type Outcome struct {
	// Log is nil unless the captured stdout buffer was empty — the
	// reference's intentionally-preserved policy (spec.md §4.4/§9 open
	// question 1): populated only when there is *no* output.
	Log *string
	// Raw is the UTF-8 JSON bytes extracted from the guest's return
	// record, not yet parsed.
	Raw []byte
}

// Run instantiates wasmBytes, invokes its `run` export with the
// arity entry.Arity requires, and decodes the result. The wazero
// runtime and module are both closed before Run returns, regardless of
// outcome, releasing the VM Instance's memory in one step (spec.md §3:
// "strictly single-owner, single-request objects").
func Run(ctx context.Context, wasmBytes []byte, entry catalog.Entry, param *string, opts Options) (Outcome, error) {
	// WithCloseOnContextDone is what makes the fuel budget actually
	// interrupt a running guest: without it wazero never polls ctx.Done()
	// during a Wasm call, so a CPU-bound guest (e.g. an infinite loop)
	// would run forever past withFuelBudget's deadline instead of
	// surfacing OutOfFuel (spec.md §8 property 4 / scenario row 4).
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	defer rt.Close(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		return Outcome{}, taxonomy.Wrapf(taxonomy.ModuleLoad, err, "instantiating WASI capabilities")
	}

	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		return Outcome{}, taxonomy.Wrapf(taxonomy.ModuleLoad, err, "compiling guest module")
	}

	stdout := newLockedBuffer()
	modCfg := wazero.NewModuleConfig().
		WithStdout(stdout).
		WithStderr(os.Stderr).
		WithStdin(nil).
		WithArgs("run")

	budgetCtx, cancel := withFuelBudget(ctx, opts)
	defer cancel()

	mod, err := rt.InstantiateModule(budgetCtx, compiled, modCfg)
	if err != nil {
		return Outcome{}, classifyFailure(budgetCtx, err)
	}
	defer mod.Close(ctx)

	if init := mod.ExportedFunction("_initialize"); init != nil {
		if _, err := init.Call(budgetCtx); err != nil {
			return Outcome{}, classifyFailure(budgetCtx, err)
		}
	}

	mem := mod.Memory()
	if mem == nil {
		return Outcome{}, taxonomy.New(taxonomy.ModuleLoad, "guest module does not export memory")
	}

	run := mod.ExportedFunction("run")
	if run == nil {
		return Outcome{}, taxonomy.New(taxonomy.ModuleLoad, "guest module does not export run")
	}

	var results []uint64
	if entry.IsParameterized() {
		if param == nil {
			return Outcome{}, taxonomy.New(taxonomy.MissingParameter, "Param function called without passing a parameter.")
		}

		data := []byte(*param)
		// The host writes the parameter at offset 0, relying on the
		// bundled guest glue reading it before any allocation happens
		// (spec.md §4.4's documented fragile precondition).
		if !mem.Write(0, data) {
			return Outcome{}, taxonomy.New(taxonomy.ModuleLoad, "guest memory too small to hold parameter")
		}

		results, err = run.Call(budgetCtx, 0, uint64(len(data)))
	} else {
		results, err = run.Call(budgetCtx)
	}

	captured := stdout.snapshot()

	if err != nil {
		return Outcome{}, classifyFailure(budgetCtx, err)
	}

	if len(results) != 1 {
		return Outcome{}, taxonomy.Newf(taxonomy.ResultDecode, "run returned %d values, expected 1", len(results))
	}

	raw, err := decodeReturnRecord(mem, uint32(results[0]))
	if err != nil {
		return Outcome{}, err
	}

	var log *string
	if captured == "" {
		empty := ""
		log = &empty
	}

	return Outcome{Log: log, Raw: raw}, nil
}

// decodeReturnRecord reads the 8-byte {ptr; len} record at recordPtr
// and returns the UTF-8 bytes it addresses.
func decodeReturnRecord(mem interface{ Read(uint32, uint32) ([]byte, bool) }, recordPtr uint32) ([]byte, error) {
	record, ok := mem.Read(recordPtr, recordSize)
	if !ok {
		return nil, taxonomy.Newf(taxonomy.ResultDecode, "return record pointer 0x%x out of memory bounds", recordPtr)
	}

	strPtr := binary.LittleEndian.Uint32(record[0:4])
	strLen := binary.LittleEndian.Uint32(record[4:8])

	raw, ok := mem.Read(strPtr, strLen)
	if !ok {
		return nil, taxonomy.Newf(taxonomy.ResultDecode, "result string at 0x%x len %d out of memory bounds", strPtr, strLen)
	}

	// Copy out: mem.Read returns a view into guest linear memory, which
	// is freed the moment the caller closes the module.
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// withFuelBudget derives a context bounding how long the guest call may
// run, calibrated from opts so that exhausting the instruction budget
// and exceeding the derived wall-clock bound coincide deterministically
// enough for the OutOfFuel contract (spec.md §4.4, §9 open question 3).
func withFuelBudget(parent context.Context, opts Options) (context.Context, context.CancelFunc) {
	ips := opts.InstructionsPerSecond
	if ips == 0 {
		ips = 1
	}

	budget := time.Duration(float64(opts.FuelBudget) / float64(ips) * float64(time.Second))
	return context.WithTimeout(parent, budget)
}

// classifyFailure maps a wazero call/instantiate error to the taxonomy
// kind spec.md §7 names: a budget-context timeout is OutOfFuel with its
// mandated message, anything else is a GuestTrap.
func classifyFailure(budgetCtx context.Context, err error) *taxonomy.Error {
	if errors.Is(budgetCtx.Err(), context.DeadlineExceeded) {
		return taxonomy.New(taxonomy.OutOfFuel, "Instruction maximum exceeded. Aborted execution to avoid DOS.")
	}
	return taxonomy.Wrap(taxonomy.GuestTrap, "guest trapped", err)
}

// lockedBuffer is the captured-stdout sink: the wazero guest writes
// under a write lock while it runs, the host snapshots it under a read
// lock once the call returns. Neither side holds the lock across the
// guest call itself, so the two owners never deadlock (spec.md §3/§5's
// shared-ownership rule for the stdout buffer).
type lockedBuffer struct {
	mu  sync.RWMutex
	buf bytes.Buffer
}

func newLockedBuffer() *lockedBuffer { return &lockedBuffer{} }

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) snapshot() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.buf.String()
}
