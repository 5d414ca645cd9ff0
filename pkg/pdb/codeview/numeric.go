package codeview

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Numeric is a decoded numeric leaf: either a literal 16-bit value (Tag below
// LF_NUMERIC) or a tagged fixed-width constant. The tag is preserved so a
// decode/encode round trip reproduces the original bytes even when the value
// would fit a narrower encoding.
type Numeric struct {
	Tag   uint16
	Int   int64   // LF_CHAR, LF_SHORT, LF_LONG, LF_QUADWORD
	Uint  uint64  // literal, LF_USHORT, LF_ULONG, LF_UQUADWORD
	Float float64 // LF_REAL32, LF_REAL64
}

// UintNumeric returns the minimal encoding of an unsigned value.
func UintNumeric(v uint64) Numeric {
	switch {
	case v < LF_NUMERIC:
		return Numeric{Tag: uint16(v), Uint: v}
	case v <= math.MaxUint16:
		return Numeric{Tag: LF_USHORT, Uint: v}
	case v <= math.MaxUint32:
		return Numeric{Tag: LF_ULONG, Uint: v}
	default:
		return Numeric{Tag: LF_UQUADWORD, Uint: v}
	}
}

// IntNumeric returns the minimal encoding of a signed value.
func IntNumeric(v int64) Numeric {
	if v >= 0 {
		return UintNumeric(uint64(v))
	}
	switch {
	case v >= math.MinInt8:
		return Numeric{Tag: LF_CHAR, Int: v}
	case v >= math.MinInt16:
		return Numeric{Tag: LF_SHORT, Int: v}
	case v >= math.MinInt32:
		return Numeric{Tag: LF_LONG, Int: v}
	default:
		return Numeric{Tag: LF_QUADWORD, Int: v}
	}
}

// Value returns the numeric value as an unsigned integer, the common case for
// sizes and offsets. Signed values are converted; floats truncate.
func (n Numeric) Value() uint64 {
	switch n.Tag {
	case LF_CHAR, LF_SHORT, LF_LONG, LF_QUADWORD:
		return uint64(n.Int)
	case LF_REAL32, LF_REAL64:
		return uint64(n.Float)
	default:
		return n.Uint
	}
}

// EncodedSize returns the number of bytes Append will emit.
func (n Numeric) EncodedSize() int {
	switch {
	case n.Tag < LF_NUMERIC:
		return 2
	case n.Tag == LF_CHAR:
		return 3
	case n.Tag == LF_SHORT, n.Tag == LF_USHORT:
		return 4
	case n.Tag == LF_LONG, n.Tag == LF_ULONG, n.Tag == LF_REAL32:
		return 6
	default:
		return 10
	}
}

// Append encodes the numeric leaf onto buf.
func (n Numeric) Append(buf []byte) []byte {
	var scratch [8]byte
	binary.LittleEndian.PutUint16(scratch[:], n.Tag)
	buf = append(buf, scratch[:2]...)

	switch n.Tag {
	case LF_CHAR:
		buf = append(buf, byte(int8(n.Int)))
	case LF_SHORT:
		binary.LittleEndian.PutUint16(scratch[:], uint16(int16(n.Int)))
		buf = append(buf, scratch[:2]...)
	case LF_USHORT:
		binary.LittleEndian.PutUint16(scratch[:], uint16(n.Uint))
		buf = append(buf, scratch[:2]...)
	case LF_LONG:
		binary.LittleEndian.PutUint32(scratch[:4], uint32(int32(n.Int)))
		buf = append(buf, scratch[:4]...)
	case LF_ULONG:
		binary.LittleEndian.PutUint32(scratch[:4], uint32(n.Uint))
		buf = append(buf, scratch[:4]...)
	case LF_REAL32:
		binary.LittleEndian.PutUint32(scratch[:4], math.Float32bits(float32(n.Float)))
		buf = append(buf, scratch[:4]...)
	case LF_REAL64:
		binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(n.Float))
		buf = append(buf, scratch[:]...)
	case LF_QUADWORD:
		binary.LittleEndian.PutUint64(scratch[:], uint64(n.Int))
		buf = append(buf, scratch[:]...)
	case LF_UQUADWORD:
		binary.LittleEndian.PutUint64(scratch[:], n.Uint)
		buf = append(buf, scratch[:]...)
	}
	return buf
}

// DecodeNumeric parses a numeric leaf from the start of data.
// Returns the value and the number of bytes consumed.
func DecodeNumeric(data []byte) (Numeric, int, error) {
	if len(data) < 2 {
		return Numeric{}, 0, fmt.Errorf("%w: truncated numeric leaf", ErrMalformedRecord)
	}

	tag := binary.LittleEndian.Uint16(data)
	if tag < LF_NUMERIC {
		return Numeric{Tag: tag, Uint: uint64(tag)}, 2, nil
	}

	switch tag {
	case LF_CHAR:
		if len(data) < 3 {
			break
		}
		return Numeric{Tag: tag, Int: int64(int8(data[2]))}, 3, nil
	case LF_SHORT:
		if len(data) < 4 {
			break
		}
		return Numeric{Tag: tag, Int: int64(int16(binary.LittleEndian.Uint16(data[2:])))}, 4, nil
	case LF_USHORT:
		if len(data) < 4 {
			break
		}
		return Numeric{Tag: tag, Uint: uint64(binary.LittleEndian.Uint16(data[2:]))}, 4, nil
	case LF_LONG:
		if len(data) < 6 {
			break
		}
		return Numeric{Tag: tag, Int: int64(int32(binary.LittleEndian.Uint32(data[2:])))}, 6, nil
	case LF_ULONG:
		if len(data) < 6 {
			break
		}
		return Numeric{Tag: tag, Uint: uint64(binary.LittleEndian.Uint32(data[2:]))}, 6, nil
	case LF_REAL32:
		if len(data) < 6 {
			break
		}
		f := math.Float32frombits(binary.LittleEndian.Uint32(data[2:]))
		return Numeric{Tag: tag, Float: float64(f)}, 6, nil
	case LF_REAL64:
		if len(data) < 10 {
			break
		}
		f := math.Float64frombits(binary.LittleEndian.Uint64(data[2:]))
		return Numeric{Tag: tag, Float: f}, 10, nil
	case LF_QUADWORD:
		if len(data) < 10 {
			break
		}
		return Numeric{Tag: tag, Int: int64(binary.LittleEndian.Uint64(data[2:]))}, 10, nil
	case LF_UQUADWORD:
		if len(data) < 10 {
			break
		}
		return Numeric{Tag: tag, Uint: binary.LittleEndian.Uint64(data[2:])}, 10, nil
	default:
		return Numeric{}, 0, fmt.Errorf("%w: unknown numeric leaf tag 0x%04x", ErrMalformedRecord, tag)
	}

	return Numeric{}, 0, fmt.Errorf("%w: truncated numeric leaf 0x%04x", ErrMalformedRecord, tag)
}
