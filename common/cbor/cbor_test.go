package cbor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutOfMem1(t *testing.T) {
	require := require.New(t)

	var f []byte
	err := Unmarshal([]byte("\x9b\x00\x00000000"), &f)
	require.Error(err, "Invalid CBOR input should fail")
}

func TestOutOfMem2(t *testing.T) {
	require := require.New(t)

	var f []byte
	err := Unmarshal([]byte("\x9b\x00\x00\x81112233"), &f)
	require.Error(err, "Invalid CBOR input should fail")
}

func TestCanonicalMapOrder(t *testing.T) {
	require := require.New(t)

	a := Marshal(map[string]uint64{"b": 2, "a": 1, "cc": 3})
	b := Marshal(map[string]uint64{"cc": 3, "a": 1, "b": 2})
	require.Equal(a, b, "map encoding should not depend on insertion order")

	var decoded map[string]uint64
	require.NoError(Unmarshal(a, &decoded))
	require.EqualValues(map[string]uint64{"a": 1, "b": 2, "cc": 3}, decoded)
}

func TestUnmarshalNil(t *testing.T) {
	require := require.New(t)

	x := 7
	require.NoError(Unmarshal(nil, &x), "nil input should be a no-op")
	require.Equal(7, x)
}
