package main

import (
	"encoding/binary"
	"encoding/json"
	"math/rand"
	"unsafe"
)

// input is the fixed plaintext the decode problem always exercises
// (spec.md §8's round-trip law).
const input = "frontend development sucks"

type workResult struct {
	Success  bool   `json:"success"`
	Expected string `json:"expected"`
	Result   string `json:"result"`
}

var retained [][]byte

//go:wasmexport run
func run() uint32 {
	letterMap := shuffledAlphabet()

	encoded := make([]rune, 0, len(input))
	for _, c := range input {
		if cipher, ok := letterMap[c]; ok {
			encoded = append(encoded, cipher)
		} else {
			encoded = append(encoded, c)
		}
	}

	decoded := Decode(string(encoded), letterMap)

	out := workResult{
		Success:  decoded == input,
		Expected: input,
		Result:   decoded,
	}

	data, err := json.Marshal(out)
	if err != nil {
		data = []byte("null")
	}
	return writeResult(data)
}

// shuffledAlphabet builds a random one-to-one substitution over a..z,
// mirroring the reference's per-request random cipher.
func shuffledAlphabet() map[rune]rune {
	letters := []rune("abcdefghijklmnopqrstuvwxyz")
	shifted := append([]rune(nil), letters...)
	rand.Shuffle(len(shifted), func(i, j int) { shifted[i], shifted[j] = shifted[j], shifted[i] })

	m := make(map[rune]rune, len(letters))
	for i, c := range letters {
		m[c] = shifted[i]
	}
	return m
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
