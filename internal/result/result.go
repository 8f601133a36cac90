// Package result implements the Result Marshaller: it takes the UTF-8
// bytes the VM Host extracted from guest linear memory and parses them
// as JSON, preserving the guest's exact byte representation.
package result

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/sbraitsch/farce/internal/taxonomy"
)

// Decode validates raw as UTF-8 and as JSON, then returns it unmodified
// as a json.RawMessage so re-encoding never diverges byte-for-byte from
// what the guest serialized (spec.md §8 property 3).
func Decode(raw []byte) (json.RawMessage, error) {
	if !utf8.Valid(raw) {
		return nil, taxonomy.New(taxonomy.ResultDecode, "guest result is not valid UTF-8")
	}

	if !json.Valid(raw) {
		return nil, taxonomy.New(taxonomy.ResultDecode, "guest result is not valid JSON")
	}

	return json.RawMessage(raw), nil
}
