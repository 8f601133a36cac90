package main

import (
	"encoding/binary"
	"encoding/json"
	"unsafe"
)

var retained [][]byte

//go:wasmexport run
func run() uint32 {
	data, err := json.Marshal(FindPrimes())
	if err != nil {
		data = []byte("null")
	}
	return writeResult(data)
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
