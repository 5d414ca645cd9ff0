package codeview

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Symbol record kinds (S_* values).
const (
	S_COMPILE   = 0x0001
	S_SSEARCH   = 0x0005
	S_END       = 0x0006
	S_SKIP      = 0x0007
	S_OBJNAME   = 0x0009
	S_ENDARG    = 0x000a
	S_RETURN    = 0x000d
	S_ENTRYTHIS = 0x000e

	S_PROCREF_ST  = 0x0400
	S_DATAREF_ST  = 0x0401
	S_ALIGN       = 0x0402
	S_LPROCREF_ST = 0x0403
	S_OEM         = 0x0404

	S_REGISTER_ST = 0x1001
	S_CONSTANT_ST = 0x1002
	S_UDT_ST      = 0x1003
	S_BPREL32_ST  = 0x1006
	S_LDATA32_ST  = 0x1007
	S_GDATA32_ST  = 0x1008
	S_PUB32_ST    = 0x1009
	S_LPROC32_ST  = 0x100a
	S_GPROC32_ST  = 0x100b
	S_REGREL32_ST = 0x100d
	S_FRAMEPROC   = 0x1012
	S_ANNOTATION  = 0x1019

	S_OBJNAME_ST = 0x1101
	S_THUNK32_ST = 0x1102
	S_BLOCK32_ST = 0x1103
	S_LABEL32_ST = 0x1105

	S_REGISTER  = 0x1106
	S_CONSTANT  = 0x1107
	S_UDT       = 0x1108
	S_BPREL32   = 0x110b
	S_LDATA32   = 0x110c
	S_GDATA32   = 0x110d
	S_PUB32     = 0x110e
	S_LPROC32   = 0x110f
	S_GPROC32   = 0x1110
	S_REGREL32  = 0x1111
	S_LTHREAD32 = 0x1112
	S_GTHREAD32 = 0x1113
	S_COMPILE2  = 0x1116

	S_LMANDATA = 0x111c
	S_GMANDATA = 0x111d

	S_UNAMESPACE = 0x1124

	S_PROCREF       = 0x1125
	S_DATAREF       = 0x1126
	S_LPROCREF      = 0x1127
	S_ANNOTATIONREF = 0x1128
	S_TOKENREF      = 0x1129

	S_GMANPROC = 0x112a
	S_LMANPROC = 0x112b

	S_TRAMPOLINE  = 0x112c
	S_MANCONSTANT = 0x112d

	S_SEPCODE = 0x1132

	S_SECTION   = 0x1136
	S_COFFGROUP = 0x1137
	S_EXPORT    = 0x1138

	S_CALLSITEINFO = 0x1139
	S_FRAMECOOKIE  = 0x113a

	S_COMPILE3 = 0x113c
	S_ENVBLOCK = 0x113d

	S_LOCAL                                = 0x113e
	S_DEFRANGE                             = 0x113f
	S_DEFRANGE_SUBFIELD                    = 0x1140
	S_DEFRANGE_REGISTER                    = 0x1141
	S_DEFRANGE_FRAMEPOINTER_REL            = 0x1142
	S_DEFRANGE_SUBFIELD_REGISTER           = 0x1143
	S_DEFRANGE_FRAMEPOINTER_REL_FULL_SCOPE = 0x1144
	S_DEFRANGE_REGISTER_REL                = 0x1145

	S_LPROC32_ID = 0x1146
	S_GPROC32_ID = 0x1147

	S_BUILDINFO      = 0x114c
	S_INLINESITE     = 0x114d
	S_INLINESITE_END = 0x114e
	S_PROC_ID_END    = 0x114f

	S_FILESTATIC = 0x1153

	S_LPROC32_DPC    = 0x1155
	S_LPROC32_DPC_ID = 0x1156

	S_CALLEES = 0x115a
	S_CALLERS = 0x115b

	S_HEAPALLOCSITE = 0x115e
)

// CV_SIGNATURE_C13 may prefix a module symbol stream.
const symbolSignatureC13 = 4

// ParseSymbols decodes every symbol record in a symbol stream. A leading
// C13 signature word, present in module symbol streams but not in the
// global symbol record stream, is skipped.
func ParseSymbols(data []byte) ([]Record, error) {
	if len(data) >= 4 && binary.LittleEndian.Uint32(data) == symbolSignatureC13 {
		data = data[4:]
	}
	return DecodeRecords(bytes.NewReader(data))
}

// ProcSym is a procedure symbol (S_GPROC32, S_LPROC32, and variants).
type ProcSym struct {
	Kind      uint16 // S_GPROC32 unless set
	Parent    uint32
	End       uint32
	Next      uint32
	Length    uint32
	DbgStart  uint32
	DbgEnd    uint32
	TypeIndex uint32
	Offset    uint32
	Segment   uint16
	Flags     uint8
	Name      string
}

func ParseProcSym(rec Record) (*ProcSym, error) {
	data := rec.Data
	if len(data) < 35 {
		return nil, fmt.Errorf("%w: %s payload of %d bytes", ErrMalformedRecord, SymbolKindName(rec.Kind), len(data))
	}
	name, _ := ParseString(data[35:])
	return &ProcSym{
		Kind:      rec.Kind,
		Parent:    binary.LittleEndian.Uint32(data[0:]),
		End:       binary.LittleEndian.Uint32(data[4:]),
		Next:      binary.LittleEndian.Uint32(data[8:]),
		Length:    binary.LittleEndian.Uint32(data[12:]),
		DbgStart:  binary.LittleEndian.Uint32(data[16:]),
		DbgEnd:    binary.LittleEndian.Uint32(data[20:]),
		TypeIndex: binary.LittleEndian.Uint32(data[24:]),
		Offset:    binary.LittleEndian.Uint32(data[28:]),
		Segment:   binary.LittleEndian.Uint16(data[32:]),
		Flags:     data[34],
		Name:      name,
	}, nil
}

func (p ProcSym) Record() Record {
	kind := p.Kind
	if kind == 0 {
		kind = S_GPROC32
	}
	buf := appendUint32(nil, p.Parent)
	buf = appendUint32(buf, p.End)
	buf = appendUint32(buf, p.Next)
	buf = appendUint32(buf, p.Length)
	buf = appendUint32(buf, p.DbgStart)
	buf = appendUint32(buf, p.DbgEnd)
	buf = appendUint32(buf, p.TypeIndex)
	buf = appendUint32(buf, p.Offset)
	buf = appendUint16(buf, p.Segment)
	buf = append(buf, p.Flags)
	buf = appendString(buf, p.Name)
	return Record{Kind: kind, Data: buf}
}

// DataSym is a data symbol (S_GDATA32, S_LDATA32, and thread-local variants).
type DataSym struct {
	Kind      uint16 // S_GDATA32 unless set
	TypeIndex uint32
	Offset    uint32
	Segment   uint16
	Name      string
}

func ParseDataSym(rec Record) (*DataSym, error) {
	data := rec.Data
	if len(data) < 10 {
		return nil, fmt.Errorf("%w: %s payload of %d bytes", ErrMalformedRecord, SymbolKindName(rec.Kind), len(data))
	}
	name, _ := ParseString(data[10:])
	return &DataSym{
		Kind:      rec.Kind,
		TypeIndex: binary.LittleEndian.Uint32(data[0:]),
		Offset:    binary.LittleEndian.Uint32(data[4:]),
		Segment:   binary.LittleEndian.Uint16(data[8:]),
		Name:      name,
	}, nil
}

func (d DataSym) Record() Record {
	kind := d.Kind
	if kind == 0 {
		kind = S_GDATA32
	}
	buf := appendUint32(nil, d.TypeIndex)
	buf = appendUint32(buf, d.Offset)
	buf = appendUint16(buf, d.Segment)
	buf = appendString(buf, d.Name)
	return Record{Kind: kind, Data: buf}
}

// PubSym is a public symbol (S_PUB32).
type PubSym struct {
	Flags   uint32
	Offset  uint32
	Segment uint16
	Name    string
}

func ParsePubSym(rec Record) (*PubSym, error) {
	data := rec.Data
	if len(data) < 10 {
		return nil, fmt.Errorf("%w: S_PUB32 payload of %d bytes", ErrMalformedRecord, len(data))
	}
	name, _ := ParseString(data[10:])
	return &PubSym{
		Flags:   binary.LittleEndian.Uint32(data[0:]),
		Offset:  binary.LittleEndian.Uint32(data[4:]),
		Segment: binary.LittleEndian.Uint16(data[8:]),
		Name:    name,
	}, nil
}

func (p PubSym) Record() Record {
	buf := appendUint32(nil, p.Flags)
	buf = appendUint32(buf, p.Offset)
	buf = appendUint16(buf, p.Segment)
	buf = appendString(buf, p.Name)
	return Record{Kind: S_PUB32, Data: buf}
}

// UDTSym is a user-defined type symbol (S_UDT).
type UDTSym struct {
	TypeIndex uint32
	Name      string
}

func ParseUDTSym(rec Record) (*UDTSym, error) {
	data := rec.Data
	if len(data) < 5 {
		return nil, fmt.Errorf("%w: S_UDT payload of %d bytes", ErrMalformedRecord, len(data))
	}
	name, _ := ParseString(data[4:])
	return &UDTSym{
		TypeIndex: binary.LittleEndian.Uint32(data[0:]),
		Name:      name,
	}, nil
}

func (u UDTSym) Record() Record {
	buf := appendUint32(nil, u.TypeIndex)
	buf = appendString(buf, u.Name)
	return Record{Kind: S_UDT, Data: buf}
}

// ConstantSym is a constant symbol (S_CONSTANT).
type ConstantSym struct {
	TypeIndex uint32
	Value     Numeric
	Name      string
}

func ParseConstantSym(rec Record) (*ConstantSym, error) {
	data := rec.Data
	if len(data) < 6 {
		return nil, fmt.Errorf("%w: S_CONSTANT payload of %d bytes", ErrMalformedRecord, len(data))
	}
	value, consumed, err := DecodeNumeric(data[4:])
	if err != nil {
		return nil, err
	}
	name, _ := ParseString(data[4+consumed:])
	return &ConstantSym{
		TypeIndex: binary.LittleEndian.Uint32(data[0:]),
		Value:     value,
		Name:      name,
	}, nil
}

func (c ConstantSym) Record() Record {
	buf := appendUint32(nil, c.TypeIndex)
	buf = c.Value.Append(buf)
	buf = appendString(buf, c.Name)
	return Record{Kind: S_CONSTANT, Data: buf}
}

// SymbolKindName returns the name for a symbol kind constant.
func SymbolKindName(kind uint16) string {
	switch kind {
	case S_COMPILE:
		return "S_COMPILE"
	case S_END:
		return "S_END"
	case S_GPROC32:
		return "S_GPROC32"
	case S_LPROC32:
		return "S_LPROC32"
	case S_GPROC32_ID:
		return "S_GPROC32_ID"
	case S_LPROC32_ID:
		return "S_LPROC32_ID"
	case S_GDATA32:
		return "S_GDATA32"
	case S_LDATA32:
		return "S_LDATA32"
	case S_PUB32:
		return "S_PUB32"
	case S_UDT:
		return "S_UDT"
	case S_CONSTANT:
		return "S_CONSTANT"
	case S_PROCREF:
		return "S_PROCREF"
	case S_LPROCREF:
		return "S_LPROCREF"
	case S_DATAREF:
		return "S_DATAREF"
	case S_COMPILE2:
		return "S_COMPILE2"
	case S_COMPILE3:
		return "S_COMPILE3"
	case S_FRAMEPROC:
		return "S_FRAMEPROC"
	case S_REGREL32:
		return "S_REGREL32"
	case S_LTHREAD32:
		return "S_LTHREAD32"
	case S_GTHREAD32:
		return "S_GTHREAD32"
	case S_LOCAL:
		return "S_LOCAL"
	case S_BUILDINFO:
		return "S_BUILDINFO"
	case S_INLINESITE:
		return "S_INLINESITE"
	case S_INLINESITE_END:
		return "S_INLINESITE_END"
	case S_PROC_ID_END:
		return "S_PROC_ID_END"
	case S_UNAMESPACE:
		return "S_UNAMESPACE"
	case S_SECTION:
		return "S_SECTION"
	case S_COFFGROUP:
		return "S_COFFGROUP"
	case S_EXPORT:
		return "S_EXPORT"
	case S_ENVBLOCK:
		return "S_ENVBLOCK"
	case S_OBJNAME:
		return "S_OBJNAME"
	case S_HEAPALLOCSITE:
		return "S_HEAPALLOCSITE"
	case S_CALLSITEINFO:
		return "S_CALLSITEINFO"
	case S_FRAMECOOKIE:
		return "S_FRAMECOOKIE"
	case S_DEFRANGE_REGISTER:
		return "S_DEFRANGE_REGISTER"
	case S_DEFRANGE_FRAMEPOINTER_REL:
		return "S_DEFRANGE_FRAMEPOINTER_REL"
	case S_DEFRANGE_SUBFIELD_REGISTER:
		return "S_DEFRANGE_SUBFIELD_REGISTER"
	case S_DEFRANGE_FRAMEPOINTER_REL_FULL_SCOPE:
		return "S_DEFRANGE_FRAMEPOINTER_REL_FULL_SCOPE"
	case S_DEFRANGE_REGISTER_REL:
		return "S_DEFRANGE_REGISTER_REL"
	default:
		return fmt.Sprintf("S_0x%04x", kind)
	}
}

// IsProcSymbol returns true if the kind is a procedure symbol.
func IsProcSymbol(kind uint16) bool {
	switch kind {
	case S_GPROC32, S_LPROC32, S_GPROC32_ID, S_LPROC32_ID,
		S_GPROC32_ST, S_LPROC32_ST, S_GMANPROC, S_LMANPROC,
		S_LPROC32_DPC, S_LPROC32_DPC_ID:
		return true
	}
	return false
}

// IsDataSymbol returns true if the kind is a data symbol.
func IsDataSymbol(kind uint16) bool {
	switch kind {
	case S_GDATA32, S_LDATA32, S_GDATA32_ST, S_LDATA32_ST,
		S_GMANDATA, S_LMANDATA, S_GTHREAD32, S_LTHREAD32:
		return true
	}
	return false
}

// IsGlobalSymbol returns true if the symbol has global linkage.
func IsGlobalSymbol(kind uint16) bool {
	switch kind {
	case S_GPROC32, S_GPROC32_ID, S_GPROC32_ST, S_GMANPROC,
		S_GDATA32, S_GDATA32_ST, S_GMANDATA, S_GTHREAD32, S_PUB32:
		return true
	}
	return false
}
