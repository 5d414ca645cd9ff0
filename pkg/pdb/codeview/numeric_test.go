package codeview

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUintNumericBoundaries(t *testing.T) {
	cases := []struct {
		value uint64
		tag   uint16
		size  int
	}{
		{0, 0, 2},
		{0x7FFF, 0x7FFF, 2}, // largest literal
		{0x8000, LF_USHORT, 4},
		{0x8001, LF_USHORT, 4},
		{math.MaxUint16, LF_USHORT, 4},
		{math.MaxUint16 + 1, LF_ULONG, 6},
		{math.MaxUint32, LF_ULONG, 6},
		{math.MaxUint32 + 1, LF_UQUADWORD, 10},
		{math.MaxUint64, LF_UQUADWORD, 10},
	}
	for _, tc := range cases {
		n := UintNumeric(tc.value)
		assert.Equal(t, tc.tag, n.Tag, "value %#x", tc.value)
		assert.Equal(t, tc.size, n.EncodedSize(), "value %#x", tc.value)
		assert.Equal(t, tc.value, n.Value(), "value %#x", tc.value)
	}
}

func TestIntNumericBoundaries(t *testing.T) {
	cases := []struct {
		value int64
		tag   uint16
	}{
		{-1, LF_CHAR},
		{math.MinInt8, LF_CHAR},
		{math.MinInt8 - 1, LF_SHORT},
		{math.MinInt16, LF_SHORT},
		{math.MinInt16 - 1, LF_LONG},
		{math.MinInt32, LF_LONG},
		{math.MinInt32 - 1, LF_QUADWORD},
		{math.MinInt64, LF_QUADWORD},
		{42, 42}, // non-negative values take the unsigned forms
	}
	for _, tc := range cases {
		assert.Equal(t, tc.tag, IntNumeric(tc.value).Tag, "value %d", tc.value)
	}
}

func TestNumericRoundTripPreservesTag(t *testing.T) {
	// A wide encoding of a small value survives decode/encode unchanged.
	wide := Numeric{Tag: LF_ULONG, Uint: 5}
	encoded := wide.Append(nil)
	require.Len(t, encoded, 6)

	decoded, consumed, err := DecodeNumeric(encoded)
	require.NoError(t, err)
	assert.Equal(t, 6, consumed)
	assert.Equal(t, wide, decoded)
	assert.Equal(t, encoded, decoded.Append(nil))
}

func TestDecodeNumericFloats(t *testing.T) {
	f32 := Numeric{Tag: LF_REAL32, Float: 1.5}
	decoded, consumed, err := DecodeNumeric(f32.Append(nil))
	require.NoError(t, err)
	assert.Equal(t, 6, consumed)
	assert.Equal(t, 1.5, decoded.Float)

	f64 := Numeric{Tag: LF_REAL64, Float: -2.25e10}
	decoded, consumed, err = DecodeNumeric(f64.Append(nil))
	require.NoError(t, err)
	assert.Equal(t, 10, consumed)
	assert.Equal(t, -2.25e10, decoded.Float)
}

func TestDecodeNumericErrors(t *testing.T) {
	_, _, err := DecodeNumeric([]byte{0x01})
	assert.ErrorIs(t, err, ErrMalformedRecord)

	_, _, err = DecodeNumeric([]byte{0x0b, 0x80}) // unknown tag 0x800b
	assert.ErrorIs(t, err, ErrMalformedRecord)

	_, _, err = DecodeNumeric([]byte{0x03, 0x80, 0x01}) // truncated LF_LONG
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestNumericRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("unsigned encode/decode round-trips", prop.ForAll(
		func(v uint64) bool {
			n := UintNumeric(v)
			decoded, consumed, err := DecodeNumeric(n.Append(nil))
			return err == nil && consumed == n.EncodedSize() && decoded.Value() == v
		},
		gen.UInt64(),
	))

	properties.Property("signed encode/decode round-trips", prop.ForAll(
		func(v int64) bool {
			n := IntNumeric(v)
			decoded, consumed, err := DecodeNumeric(n.Append(nil))
			if err != nil || consumed != n.EncodedSize() {
				return false
			}
			if v < 0 {
				return decoded.Int == v
			}
			return decoded.Value() == uint64(v)
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}
