package codeview

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Typed views of the common type record payloads. Parsers validate that the
// declared payload is fully consumed up to well-formed padding; builders
// produce payloads the framing codec aligns. Kinds without a typed view here
// still round-trip through the raw Record form.

// ParseString parses a null-terminated string from data.
// Returns the string and number of bytes consumed (including null).
func ParseString(data []byte) (string, int) {
	idx := bytes.IndexByte(data, 0)
	if idx == -1 {
		return string(data), len(data)
	}
	return string(data[:idx]), idx + 1
}

func appendString(buf []byte, s string) []byte {
	buf = append(buf, s...)
	return append(buf, 0)
}

func appendUint32(buf []byte, v uint32) []byte {
	var scratch [4]byte
	binary.LittleEndian.PutUint32(scratch[:], v)
	return append(buf, scratch[:]...)
}

func appendUint16(buf []byte, v uint16) []byte {
	var scratch [2]byte
	binary.LittleEndian.PutUint16(scratch[:], v)
	return append(buf, scratch[:]...)
}

func shortPayload(kind uint16, n int) error {
	return fmt.Errorf("%w: %s payload of %d bytes", ErrMalformedRecord, LeafKindName(kind), n)
}

// Modifier is an LF_MODIFIER record: const/volatile/unaligned qualifiers
// applied to another type.
type Modifier struct {
	ModifiedType uint32
	Modifiers    uint16
}

const (
	ModifierConst     = 0x0001
	ModifierVolatile  = 0x0002
	ModifierUnaligned = 0x0004
)

func ParseModifier(rec Record) (*Modifier, error) {
	if len(rec.Data) < 6 {
		return nil, shortPayload(LF_MODIFIER, len(rec.Data))
	}
	if err := ValidatePadding(rec.Data[6:]); err != nil {
		return nil, err
	}
	return &Modifier{
		ModifiedType: binary.LittleEndian.Uint32(rec.Data[0:]),
		Modifiers:    binary.LittleEndian.Uint16(rec.Data[4:]),
	}, nil
}

func (m Modifier) Record() Record {
	buf := appendUint32(nil, m.ModifiedType)
	buf = appendUint16(buf, m.Modifiers)
	return Record{Kind: LF_MODIFIER, Data: buf}
}

// Pointer is an LF_POINTER record.
type Pointer struct {
	Underlying uint32
	Attributes uint32
}

func ParsePointer(rec Record) (*Pointer, error) {
	if len(rec.Data) < 8 {
		return nil, shortPayload(LF_POINTER, len(rec.Data))
	}
	return &Pointer{
		Underlying: binary.LittleEndian.Uint32(rec.Data[0:]),
		Attributes: binary.LittleEndian.Uint32(rec.Data[4:]),
	}, nil
}

// Kind returns the pointer kind bits (near/far/64-bit and so on).
func (p Pointer) Kind() uint32 { return p.Attributes & 0x1F }

// Mode returns the pointer mode bits (plain, lvalue ref, rvalue ref, ...).
func (p Pointer) Mode() uint32 { return (p.Attributes >> 5) & 0x07 }

func (p Pointer) Record() Record {
	buf := appendUint32(nil, p.Underlying)
	buf = appendUint32(buf, p.Attributes)
	return Record{Kind: LF_POINTER, Data: buf}
}

// Pointer64 returns the attribute word of an ordinary 64-bit near pointer.
func Pointer64() uint32 {
	const ptrKind64, ptrSize = 0x0C, 8
	return ptrKind64 | ptrSize<<13
}

// ArgList is an LF_ARGLIST record: the argument types of a procedure.
type ArgList struct {
	Args []uint32
}

func ParseArgList(rec Record) (*ArgList, error) {
	if len(rec.Data) < 4 {
		return nil, shortPayload(LF_ARGLIST, len(rec.Data))
	}
	count := binary.LittleEndian.Uint32(rec.Data[0:])
	if uint64(4+4*count) > uint64(len(rec.Data)) {
		return nil, fmt.Errorf("%w: arglist count %d exceeds payload", ErrMalformedRecord, count)
	}
	args := make([]uint32, count)
	for i := range args {
		args[i] = binary.LittleEndian.Uint32(rec.Data[4+4*i:])
	}
	if err := ValidatePadding(rec.Data[4+4*count:]); err != nil {
		return nil, err
	}
	return &ArgList{Args: args}, nil
}

func (a ArgList) Record() Record {
	buf := appendUint32(nil, uint32(len(a.Args)))
	for _, arg := range a.Args {
		buf = appendUint32(buf, arg)
	}
	return Record{Kind: LF_ARGLIST, Data: buf}
}

// Procedure is an LF_PROCEDURE record.
type Procedure struct {
	ReturnType uint32
	CallConv   uint8
	FuncAttrs  uint8
	NumParams  uint16
	ArgList    uint32
}

func ParseProcedure(rec Record) (*Procedure, error) {
	if len(rec.Data) < 12 {
		return nil, shortPayload(LF_PROCEDURE, len(rec.Data))
	}
	return &Procedure{
		ReturnType: binary.LittleEndian.Uint32(rec.Data[0:]),
		CallConv:   rec.Data[4],
		FuncAttrs:  rec.Data[5],
		NumParams:  binary.LittleEndian.Uint16(rec.Data[6:]),
		ArgList:    binary.LittleEndian.Uint32(rec.Data[8:]),
	}, nil
}

func (p Procedure) Record() Record {
	buf := appendUint32(nil, p.ReturnType)
	buf = append(buf, p.CallConv, p.FuncAttrs)
	buf = appendUint16(buf, p.NumParams)
	buf = appendUint32(buf, p.ArgList)
	return Record{Kind: LF_PROCEDURE, Data: buf}
}

// Array is an LF_ARRAY record.
type Array struct {
	ElementType uint32
	IndexType   uint32
	Size        Numeric
	Name        string
}

func ParseArray(rec Record) (*Array, error) {
	if len(rec.Data) < 10 {
		return nil, shortPayload(LF_ARRAY, len(rec.Data))
	}
	size, consumed, err := DecodeNumeric(rec.Data[8:])
	if err != nil {
		return nil, err
	}
	name, n := ParseString(rec.Data[8+consumed:])
	if err := ValidatePadding(rec.Data[8+consumed+n:]); err != nil {
		return nil, err
	}
	return &Array{
		ElementType: binary.LittleEndian.Uint32(rec.Data[0:]),
		IndexType:   binary.LittleEndian.Uint32(rec.Data[4:]),
		Size:        size,
		Name:        name,
	}, nil
}

func (a Array) Record() Record {
	buf := appendUint32(nil, a.ElementType)
	buf = appendUint32(buf, a.IndexType)
	buf = a.Size.Append(buf)
	buf = appendString(buf, a.Name)
	return Record{Kind: LF_ARRAY, Data: buf}
}

// Struct is an LF_STRUCTURE or LF_CLASS record.
type Struct struct {
	Kind        uint16 // LF_STRUCTURE or LF_CLASS
	Count       uint16
	Property    uint16
	FieldList   uint32
	DerivedFrom uint32
	VTableShape uint32
	Size        Numeric
	Name        string
}

// PropertyForwardRef marks a forward declaration.
const PropertyForwardRef = 0x0080

func ParseStruct(rec Record) (*Struct, error) {
	if rec.Kind != LF_STRUCTURE && rec.Kind != LF_CLASS {
		return nil, fmt.Errorf("%w: kind %s is not a structure", ErrMalformedRecord, LeafKindName(rec.Kind))
	}
	if len(rec.Data) < 18 {
		return nil, shortPayload(rec.Kind, len(rec.Data))
	}
	size, consumed, err := DecodeNumeric(rec.Data[16:])
	if err != nil {
		return nil, err
	}
	name, n := ParseString(rec.Data[16+consumed:])
	if err := ValidatePadding(rec.Data[16+consumed+n:]); err != nil {
		return nil, err
	}
	return &Struct{
		Kind:        rec.Kind,
		Count:       binary.LittleEndian.Uint16(rec.Data[0:]),
		Property:    binary.LittleEndian.Uint16(rec.Data[2:]),
		FieldList:   binary.LittleEndian.Uint32(rec.Data[4:]),
		DerivedFrom: binary.LittleEndian.Uint32(rec.Data[8:]),
		VTableShape: binary.LittleEndian.Uint32(rec.Data[12:]),
		Size:        size,
		Name:        name,
	}, nil
}

func (s Struct) Record() Record {
	kind := s.Kind
	if kind == 0 {
		kind = LF_STRUCTURE
	}
	buf := appendUint16(nil, s.Count)
	buf = appendUint16(buf, s.Property)
	buf = appendUint32(buf, s.FieldList)
	buf = appendUint32(buf, s.DerivedFrom)
	buf = appendUint32(buf, s.VTableShape)
	buf = s.Size.Append(buf)
	buf = appendString(buf, s.Name)
	return Record{Kind: kind, Data: buf}
}

// Union is an LF_UNION record.
type Union struct {
	Count     uint16
	Property  uint16
	FieldList uint32
	Size      Numeric
	Name      string
}

func ParseUnion(rec Record) (*Union, error) {
	if len(rec.Data) < 10 {
		return nil, shortPayload(LF_UNION, len(rec.Data))
	}
	size, consumed, err := DecodeNumeric(rec.Data[8:])
	if err != nil {
		return nil, err
	}
	name, n := ParseString(rec.Data[8+consumed:])
	if err := ValidatePadding(rec.Data[8+consumed+n:]); err != nil {
		return nil, err
	}
	return &Union{
		Count:     binary.LittleEndian.Uint16(rec.Data[0:]),
		Property:  binary.LittleEndian.Uint16(rec.Data[2:]),
		FieldList: binary.LittleEndian.Uint32(rec.Data[4:]),
		Size:      size,
		Name:      name,
	}, nil
}

func (u Union) Record() Record {
	buf := appendUint16(nil, u.Count)
	buf = appendUint16(buf, u.Property)
	buf = appendUint32(buf, u.FieldList)
	buf = u.Size.Append(buf)
	buf = appendString(buf, u.Name)
	return Record{Kind: LF_UNION, Data: buf}
}

// Enum is an LF_ENUM record.
type Enum struct {
	Count      uint16
	Property   uint16
	Underlying uint32
	FieldList  uint32
	Name       string
}

func ParseEnum(rec Record) (*Enum, error) {
	if len(rec.Data) < 13 {
		return nil, shortPayload(LF_ENUM, len(rec.Data))
	}
	name, n := ParseString(rec.Data[12:])
	if err := ValidatePadding(rec.Data[12+n:]); err != nil {
		return nil, err
	}
	return &Enum{
		Count:      binary.LittleEndian.Uint16(rec.Data[0:]),
		Property:   binary.LittleEndian.Uint16(rec.Data[2:]),
		Underlying: binary.LittleEndian.Uint32(rec.Data[4:]),
		FieldList:  binary.LittleEndian.Uint32(rec.Data[8:]),
		Name:       name,
	}, nil
}

func (e Enum) Record() Record {
	buf := appendUint16(nil, e.Count)
	buf = appendUint16(buf, e.Property)
	buf = appendUint32(buf, e.Underlying)
	buf = appendUint32(buf, e.FieldList)
	buf = appendString(buf, e.Name)
	return Record{Kind: LF_ENUM, Data: buf}
}

// Bitfield is an LF_BITFIELD record.
type Bitfield struct {
	BaseType uint32
	Length   uint8
	Position uint8
}

func ParseBitfield(rec Record) (*Bitfield, error) {
	if len(rec.Data) < 6 {
		return nil, shortPayload(LF_BITFIELD, len(rec.Data))
	}
	if err := ValidatePadding(rec.Data[6:]); err != nil {
		return nil, err
	}
	return &Bitfield{
		BaseType: binary.LittleEndian.Uint32(rec.Data[0:]),
		Length:   rec.Data[4],
		Position: rec.Data[5],
	}, nil
}

func (b Bitfield) Record() Record {
	buf := appendUint32(nil, b.BaseType)
	buf = append(buf, b.Length, b.Position)
	return Record{Kind: LF_BITFIELD, Data: buf}
}

// StringID is an LF_STRING_ID record (IPI stream).
type StringID struct {
	Substrings uint32
	Value      string
}

func ParseStringID(rec Record) (*StringID, error) {
	if len(rec.Data) < 5 {
		return nil, shortPayload(LF_STRING_ID, len(rec.Data))
	}
	value, n := ParseString(rec.Data[4:])
	if err := ValidatePadding(rec.Data[4+n:]); err != nil {
		return nil, err
	}
	return &StringID{
		Substrings: binary.LittleEndian.Uint32(rec.Data[0:]),
		Value:      value,
	}, nil
}

func (s StringID) Record() Record {
	buf := appendUint32(nil, s.Substrings)
	buf = appendString(buf, s.Value)
	return Record{Kind: LF_STRING_ID, Data: buf}
}

// FuncID is an LF_FUNC_ID record (IPI stream).
type FuncID struct {
	ParentScope  uint32
	FunctionType uint32
	Name         string
}

func ParseFuncID(rec Record) (*FuncID, error) {
	if len(rec.Data) < 9 {
		return nil, shortPayload(LF_FUNC_ID, len(rec.Data))
	}
	name, n := ParseString(rec.Data[8:])
	if err := ValidatePadding(rec.Data[8+n:]); err != nil {
		return nil, err
	}
	return &FuncID{
		ParentScope:  binary.LittleEndian.Uint32(rec.Data[0:]),
		FunctionType: binary.LittleEndian.Uint32(rec.Data[4:]),
		Name:         name,
	}, nil
}

func (f FuncID) Record() Record {
	buf := appendUint32(nil, f.ParentScope)
	buf = appendUint32(buf, f.FunctionType)
	buf = appendString(buf, f.Name)
	return Record{Kind: LF_FUNC_ID, Data: buf}
}

// Member is an LF_MEMBER sub-leaf of a field list.
type Member struct {
	Attributes uint16
	Type       uint32
	Offset     Numeric
	Name       string
}

// Enumerate is an LF_ENUMERATE sub-leaf of a field list.
type Enumerate struct {
	Attributes uint16
	Value      Numeric
	Name       string
}

// FieldList is an LF_FIELDLIST record holding the members of a structure,
// union, or enum. Only the member and enumerate sub-leaves have typed views;
// other sub-leaves pass through as opaque field-list bytes.
type FieldList struct {
	Members    []Member
	Enumerates []Enumerate
}

// Sub-leaves inside a field list are aligned the same way records are.
func fieldListAlign(offset int) int {
	return (offset + RecordAlignment - 1) &^ (RecordAlignment - 1)
}

// ParseFieldList walks the typed sub-leaves of a field list payload.
// Unrecognized sub-leaves terminate the walk without error; the raw record
// still round-trips.
func ParseFieldList(rec Record) (*FieldList, error) {
	fl := &FieldList{}
	data := rec.Data
	offset := 0

	for offset+2 <= len(data) {
		leaf := binary.LittleEndian.Uint16(data[offset:])

		// Padding sentinel before the next aligned sub-leaf.
		if leaf&0xFF00 == 0xF000 && data[offset] >= LF_PAD0 {
			offset++
			continue
		}
		offset += 2

		switch leaf {
		case LF_MEMBER:
			if offset+6 > len(data) {
				return nil, fmt.Errorf("%w: truncated LF_MEMBER", ErrMalformedRecord)
			}
			m := Member{
				Attributes: binary.LittleEndian.Uint16(data[offset:]),
				Type:       binary.LittleEndian.Uint32(data[offset+2:]),
			}
			offset += 6
			value, consumed, err := DecodeNumeric(data[offset:])
			if err != nil {
				return nil, err
			}
			m.Offset = value
			offset += consumed
			name, n := ParseString(data[offset:])
			m.Name = name
			offset += n
			fl.Members = append(fl.Members, m)

		case LF_ENUMERATE:
			if offset+2 > len(data) {
				return nil, fmt.Errorf("%w: truncated LF_ENUMERATE", ErrMalformedRecord)
			}
			e := Enumerate{Attributes: binary.LittleEndian.Uint16(data[offset:])}
			offset += 2
			value, consumed, err := DecodeNumeric(data[offset:])
			if err != nil {
				return nil, err
			}
			e.Value = value
			offset += consumed
			name, n := ParseString(data[offset:])
			e.Name = name
			offset += n
			fl.Enumerates = append(fl.Enumerates, e)

		default:
			return fl, nil
		}

		offset = fieldListAlign(offset)
	}

	return fl, nil
}

// Record builds the field list payload with each sub-leaf padded to the
// record alignment.
func (fl FieldList) Record() Record {
	var buf []byte
	for _, m := range fl.Members {
		buf = appendUint16(buf, LF_MEMBER)
		buf = appendUint16(buf, m.Attributes)
		buf = appendUint32(buf, m.Type)
		buf = m.Offset.Append(buf)
		buf = appendString(buf, m.Name)
		buf = appendPadding(buf, padSize(len(buf)))
	}
	for _, e := range fl.Enumerates {
		buf = appendUint16(buf, LF_ENUMERATE)
		buf = appendUint16(buf, e.Attributes)
		buf = e.Value.Append(buf)
		buf = appendString(buf, e.Name)
		buf = appendPadding(buf, padSize(len(buf)))
	}
	return Record{Kind: LF_FIELDLIST, Data: buf}
}

// TypeRefs returns the type indices a record references, for the kinds the
// codec understands. Unknown kinds yield no references. Only indices at or
// above TypeIndexBegin are returned; built-in indices reference nothing.
func TypeRefs(rec Record) []uint32 {
	var refs []uint32
	add := func(idx uint32) {
		if idx >= TypeIndexBegin {
			refs = append(refs, idx)
		}
	}
	u32 := func(off int) uint32 {
		if off+4 > len(rec.Data) {
			return 0
		}
		return binary.LittleEndian.Uint32(rec.Data[off:])
	}

	switch rec.Kind {
	case LF_MODIFIER, LF_POINTER, LF_BITFIELD:
		add(u32(0))
	case LF_ARRAY:
		add(u32(0))
		add(u32(4))
	case LF_PROCEDURE:
		add(u32(0))
		add(u32(8))
	case LF_MFUNCTION:
		add(u32(0))
		add(u32(4))
		add(u32(8))
		add(u32(16))
	case LF_ARGLIST:
		if list, err := ParseArgList(rec); err == nil {
			for _, arg := range list.Args {
				add(arg)
			}
		}
	case LF_STRUCTURE, LF_CLASS:
		add(u32(4))
		add(u32(8))
		add(u32(12))
	case LF_UNION:
		add(u32(4))
	case LF_ENUM:
		add(u32(4))
		add(u32(8))
	case LF_FIELDLIST:
		if fl, err := ParseFieldList(rec); err == nil {
			for _, m := range fl.Members {
				add(m.Type)
			}
		}
	case LF_FUNC_ID:
		add(u32(4))
	}
	return refs
}
