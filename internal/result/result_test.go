package result

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbraitsch/farce/internal/taxonomy"
)

func TestDecodeValidJSONRoundTripsByteForByte(t *testing.T) {
	raw := []byte(`{"count":95,"last":499}`)

	out, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(raw), out)
}

func TestDecodeInvalidUTF8(t *testing.T) {
	_, err := Decode([]byte{0xff, 0xfe, 0xfd})

	var taxErr *taxonomy.Error
	require.True(t, errors.As(err, &taxErr))
	assert.Equal(t, taxonomy.ResultDecode, taxErr.Kind)
}

func TestDecodeMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{"count": `))

	var taxErr *taxonomy.Error
	require.True(t, errors.As(err, &taxErr))
	assert.Equal(t, taxonomy.ResultDecode, taxErr.Kind)
}
