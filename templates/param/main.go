package main

import (
	"encoding/binary"
	"encoding/json"
	"unsafe"
)

var retained [][]byte

// run receives its input as a runtime argument rather than as source:
// the host writes the parameter's bytes into this instance's linear
// memory at a fixed offset before calling run, and passes that offset
// and the byte count as arguments (spec.md §9 open question 2 — fixed
// offset 0, preserved as documented rather than papered over with a
// guest-side allocator).
//
//go:wasmexport run
func run(ptr uint32, length uint32) uint32 {
	var input string
	if length > 0 {
		data := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(ptr))), length)
		input = string(data)
	}

	out, err := json.Marshal(CountChars(input))
	if err != nil {
		out = []byte("null")
	}
	return writeResult(out)
}

func writeResult(data []byte) uint32 {
	retained = append(retained, data)

	var ptr uint32
	if len(data) > 0 {
		ptr = uint32(uintptr(unsafe.Pointer(&data[0])))
	}

	record := make([]byte, 8)
	binary.LittleEndian.PutUint32(record[0:4], ptr)
	binary.LittleEndian.PutUint32(record[4:8], uint32(len(data)))
	retained = append(retained, record)

	return uint32(uintptr(unsafe.Pointer(&record[0])))
}

func main() {}
