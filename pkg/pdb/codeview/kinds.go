// Package codeview implements the variable-length record codec shared by the
// TPI/IPI type streams and the symbol streams: length-prefixed, kind-tagged
// records padded to a 4-byte boundary, with the variable-width numeric leaf
// encoding used for embedded constants. Records of unrecognized kinds are
// preserved as raw bytes so streams always round-trip byte-exactly.
package codeview

import "fmt"

// First type index usable for records; indices below refer to built-in
// primitive types.
const TypeIndexBegin = 0x1000

// Records are padded to this boundary within their stream.
const RecordAlignment = 4

// Padding sentinel bytes. A pad run of n bytes is LF_PAD0+n .. 0xF1, each
// byte encoding how many padding bytes remain including itself.
const (
	LF_PAD0  = 0xF0
	LF_PAD15 = 0xFF
)

// LF_* type record kinds (post-VC7 values).
const (
	LF_VTSHAPE    = 0x000a
	LF_LABEL      = 0x000e
	LF_NULL       = 0x000f
	LF_ENDPRECOMP = 0x0014

	LF_MODIFIER  = 0x1001
	LF_POINTER   = 0x1002
	LF_PROCEDURE = 0x1008
	LF_MFUNCTION = 0x1009

	LF_ARGLIST    = 0x1201
	LF_FIELDLIST  = 0x1203
	LF_BITFIELD   = 0x1205
	LF_METHODLIST = 0x1206

	LF_BCLASS    = 0x1400
	LF_VBCLASS   = 0x1401
	LF_IVBCLASS  = 0x1402
	LF_INDEX     = 0x1404
	LF_VFUNCTAB  = 0x1409

	LF_ENUMERATE   = 0x1502
	LF_ARRAY       = 0x1503
	LF_CLASS       = 0x1504
	LF_STRUCTURE   = 0x1505
	LF_UNION       = 0x1506
	LF_ENUM        = 0x1507
	LF_MEMBER      = 0x150d
	LF_STMEMBER    = 0x150e
	LF_METHOD      = 0x150f
	LF_NESTTYPE    = 0x1510
	LF_ONEMETHOD   = 0x1511
	LF_TYPESERVER2 = 0x1515
	LF_INTERFACE   = 0x1519
	LF_VFTABLE     = 0x151d

	LF_FUNC_ID          = 0x1601
	LF_MFUNC_ID         = 0x1602
	LF_BUILDINFO        = 0x1603
	LF_SUBSTR_LIST      = 0x1604
	LF_STRING_ID        = 0x1605
	LF_UDT_SRC_LINE     = 0x1606
	LF_UDT_MOD_SRC_LINE = 0x1607
)

// Numeric leaf tags. Values below LF_NUMERIC are literal 16-bit integers;
// values at or above it tag a typed constant in the following bytes.
const (
	LF_NUMERIC   = 0x8000
	LF_CHAR      = 0x8000
	LF_SHORT     = 0x8001
	LF_USHORT    = 0x8002
	LF_LONG      = 0x8003
	LF_ULONG     = 0x8004
	LF_REAL32    = 0x8005
	LF_REAL64    = 0x8006
	LF_QUADWORD  = 0x8009
	LF_UQUADWORD = 0x800a
)

// Built-in type kinds (low byte of a built-in type index).
const (
	T_NOTYPE  = 0x0000
	T_VOID    = 0x0003
	T_HRESULT = 0x0008
	T_CHAR    = 0x0010
	T_SHORT   = 0x0011
	T_LONG    = 0x0012
	T_QUAD    = 0x0013
	T_UCHAR   = 0x0020
	T_USHORT  = 0x0021
	T_ULONG   = 0x0022
	T_UQUAD   = 0x0023
	T_BOOL08  = 0x0030
	T_REAL32  = 0x0040
	T_REAL64  = 0x0041
	T_RCHAR   = 0x0070
	T_WCHAR   = 0x0071
	T_INT4    = 0x0074
	T_UINT4   = 0x0075
	T_INT8    = 0x0076
	T_UINT8   = 0x0077
)

// Built-in pointer modes (bits 8-11 of a built-in type index).
const (
	TM_DIRECT = 0
	TM_NPTR32 = 4
	TM_NPTR64 = 6
)

// LeafKindName returns the name for an LF_* constant.
func LeafKindName(kind uint16) string {
	switch kind {
	case LF_MODIFIER:
		return "LF_MODIFIER"
	case LF_POINTER:
		return "LF_POINTER"
	case LF_PROCEDURE:
		return "LF_PROCEDURE"
	case LF_MFUNCTION:
		return "LF_MFUNCTION"
	case LF_ARGLIST:
		return "LF_ARGLIST"
	case LF_FIELDLIST:
		return "LF_FIELDLIST"
	case LF_BITFIELD:
		return "LF_BITFIELD"
	case LF_METHODLIST:
		return "LF_METHODLIST"
	case LF_ARRAY:
		return "LF_ARRAY"
	case LF_CLASS:
		return "LF_CLASS"
	case LF_STRUCTURE:
		return "LF_STRUCTURE"
	case LF_UNION:
		return "LF_UNION"
	case LF_ENUM:
		return "LF_ENUM"
	case LF_ENUMERATE:
		return "LF_ENUMERATE"
	case LF_MEMBER:
		return "LF_MEMBER"
	case LF_STMEMBER:
		return "LF_STMEMBER"
	case LF_METHOD:
		return "LF_METHOD"
	case LF_ONEMETHOD:
		return "LF_ONEMETHOD"
	case LF_NESTTYPE:
		return "LF_NESTTYPE"
	case LF_INDEX:
		return "LF_INDEX"
	case LF_VTSHAPE:
		return "LF_VTSHAPE"
	case LF_FUNC_ID:
		return "LF_FUNC_ID"
	case LF_MFUNC_ID:
		return "LF_MFUNC_ID"
	case LF_BUILDINFO:
		return "LF_BUILDINFO"
	case LF_STRING_ID:
		return "LF_STRING_ID"
	case LF_SUBSTR_LIST:
		return "LF_SUBSTR_LIST"
	case LF_UDT_SRC_LINE:
		return "LF_UDT_SRC_LINE"
	case LF_UDT_MOD_SRC_LINE:
		return "LF_UDT_MOD_SRC_LINE"
	default:
		return fmt.Sprintf("LF_0x%04x", kind)
	}
}

// BuiltinTypeName returns the name of a built-in type index.
func BuiltinTypeName(typeIdx uint32) string {
	if typeIdx >= TypeIndexBegin {
		return ""
	}

	kind := typeIdx & 0xFF
	mode := (typeIdx >> 8) & 0xF

	var baseName string
	switch kind {
	case T_NOTYPE:
		baseName = "<no type>"
	case T_VOID:
		baseName = "void"
	case T_HRESULT:
		baseName = "HRESULT"
	case T_CHAR, T_RCHAR:
		baseName = "char"
	case T_SHORT:
		baseName = "short"
	case T_LONG:
		baseName = "long"
	case T_QUAD, T_INT8:
		baseName = "int64"
	case T_UCHAR:
		baseName = "unsigned char"
	case T_USHORT:
		baseName = "unsigned short"
	case T_ULONG:
		baseName = "unsigned long"
	case T_UQUAD, T_UINT8:
		baseName = "uint64"
	case T_BOOL08:
		baseName = "bool"
	case T_REAL32:
		baseName = "float"
	case T_REAL64:
		baseName = "double"
	case T_WCHAR:
		baseName = "wchar_t"
	case T_INT4:
		baseName = "int32"
	case T_UINT4:
		baseName = "uint32"
	default:
		baseName = fmt.Sprintf("builtin_0x%04x", typeIdx)
	}

	if mode != TM_DIRECT {
		return baseName + "*"
	}
	return baseName
}
