package main

import (
	"encoding/binary"
	"encoding/json"
	"unsafe"
)

// retained keeps every result buffer and its descriptor record alive
// past the call that produced them: the host reads both only after
// `run` returns, and Go's GC would otherwise be free to collect a
// buffer with no other reference (spec.md §9's "guest leaks its buffer
// to keep it alive past the call").
var retained [][]byte

//go:wasmexport run
func run() uint32 {
	data, err := json.Marshal(Execute())
	if err != nil {
		data = []byte("null")
	}
	return writeResult(data)
}

// writeResult copies data's address and length into an 8-byte
// little-endian record and returns the record's own address, the
// pointer-to-pointer indirection the host's VM Host decodes.
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
