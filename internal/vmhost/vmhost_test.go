package vmhost

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbraitsch/farce/internal/catalog"
	"github.com/sbraitsch/farce/internal/taxonomy"
)

// loopingGuestModule hand-assembles a minimal valid wasm binary: it
// exports linear memory and a nullary `run` that branches back to its
// own loop header forever, never reaching the trailing unreachable. No
// compiler produced these bytes; they are the wasm binary format spec's
// sections written out by hand, one instruction: a void loop whose body
// is an unconditional branch to itself.
func loopingGuestModule() []byte {
	var mod []byte
	mod = append(mod, 0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00) // \0asm, version 1

	// Type section: one func type, () -> (i32).
	mod = append(mod, 0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f)
	// Function section: the module's one function uses type 0.
	mod = append(mod, 0x03, 0x02, 0x01, 0x00)
	// Memory section: one memory, no max, 1 initial page.
	mod = append(mod, 0x05, 0x03, 0x01, 0x00, 0x01)
	// Export section: "run" (func 0) and "memory" (mem 0).
	mod = append(mod, 0x07, 0x10, 0x02,
		0x03, 0x72, 0x75, 0x6e, 0x00, 0x00, // "run", kind=func, idx=0
		0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, 0x02, 0x00, // "memory", kind=mem, idx=0
	)
	// Code section: run's body is `loop br 0 end unreachable end` - a
	// loop with no exit, followed by an unreachable marker so the
	// implicit fallthrough past the loop still type-checks against the
	// function's declared i32 result.
	mod = append(mod, 0x0a, 0x0a, 0x01, 0x08, 0x00,
		0x03, 0x40, // loop (void)
		0x0c, 0x00, // br 0
		0x0b,       // end (loop)
		0x00,       // unreachable
		0x0b,       // end (function)
	)
	return mod
}

func TestRunInfiniteLoopGuestSurfacesOutOfFuel(t *testing.T) {
	entry := catalog.Entry{Problem: catalog.Arbitrary, Arity: catalog.ArityNullary}
	opts := Options{FuelBudget: 1, InstructionsPerSecond: 50}

	deadline := time.Now().Add(5 * time.Second)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	_, err := Run(ctx, loopingGuestModule(), entry, nil, opts)
	require.Error(t, err)

	var taxErr *taxonomy.Error
	require.ErrorAs(t, err, &taxErr)
	assert.Equal(t, taxonomy.OutOfFuel, taxErr.Kind)
}

// fakeMemory stands in for api.Memory so decodeReturnRecord can be
// exercised without instantiating a real wasm module.
type fakeMemory struct {
	data []byte
}

func (m *fakeMemory) Read(offset, byteCount uint32) ([]byte, bool) {
	end := uint64(offset) + uint64(byteCount)
	if end > uint64(len(m.data)) {
		return nil, false
	}
	return m.data[offset:end], true
}

func recordAt(buf []byte, recordOffset, strPtr, strLen uint32) {
	binary.LittleEndian.PutUint32(buf[recordOffset:], strPtr)
	binary.LittleEndian.PutUint32(buf[recordOffset+4:], strLen)
}

func TestDecodeReturnRecordHappyPath(t *testing.T) {
	mem := &fakeMemory{data: make([]byte, 64)}
	copy(mem.data[32:], `{"ok":true}`)
	recordAt(mem.data, 0, 32, uint32(len(`{"ok":true}`)))

	raw, err := decodeReturnRecord(mem, 0)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(raw))
}

func TestDecodeReturnRecordOutOfBoundsRecord(t *testing.T) {
	mem := &fakeMemory{data: make([]byte, 4)}

	_, err := decodeReturnRecord(mem, 0)
	require.Error(t, err)

	var taxErr *taxonomy.Error
	require.ErrorAs(t, err, &taxErr)
	assert.Equal(t, taxonomy.ResultDecode, taxErr.Kind)
}

func TestDecodeReturnRecordOutOfBoundsString(t *testing.T) {
	mem := &fakeMemory{data: make([]byte, 16)}
	recordAt(mem.data, 0, 1000, 10)

	_, err := decodeReturnRecord(mem, 0)
	require.Error(t, err)

	var taxErr *taxonomy.Error
	require.ErrorAs(t, err, &taxErr)
	assert.Equal(t, taxonomy.ResultDecode, taxErr.Kind)
}

func TestLockedBufferConcurrentWriteAndSnapshot(t *testing.T) {
	b := newLockedBuffer()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			_, _ = b.Write([]byte("x"))
		}
	}()
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
			_ = b.snapshot()
		}
	}

	assert.Equal(t, 100, len(b.snapshot()))
}

func TestWithFuelBudgetZeroExpiresImmediately(t *testing.T) {
	ctx, cancel := withFuelBudget(context.Background(), Options{FuelBudget: 0, InstructionsPerSecond: 1})
	defer cancel()

	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}

func TestWithFuelBudgetScalesWithInstructionsPerSecond(t *testing.T) {
	ctx, cancel := withFuelBudget(context.Background(), Options{FuelBudget: 500_000, InstructionsPerSecond: 2_000_000})
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.InDelta(t, 250*time.Millisecond, time.Until(deadline), float64(50*time.Millisecond))
}

func TestClassifyFailureMapsDeadlineToOutOfFuel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()

	err := classifyFailure(ctx, errors.New("trap: out of fuel"))
	assert.Equal(t, taxonomy.OutOfFuel, err.Kind)
	assert.Equal(t, "Instruction maximum exceeded. Aborted execution to avoid DOS.", err.Message)
}

func TestClassifyFailureMapsOtherErrorsToGuestTrap(t *testing.T) {
	err := classifyFailure(context.Background(), errors.New("unreachable"))
	assert.Equal(t, taxonomy.GuestTrap, err.Kind)
}
