package codeview

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructRoundTrip(t *testing.T) {
	s := Struct{
		Count:     2,
		FieldList: 0x1001,
		Size:      UintNumeric(16),
		Name:      "Point",
	}

	rec := s.Record()
	assert.Equal(t, uint16(LF_STRUCTURE), rec.Kind)

	// Through the framing codec and back.
	encoded, err := EncodeRecords([]Record{rec})
	require.NoError(t, err)
	decoded, err := DecodeRecords(bytes.NewReader(encoded))
	require.NoError(t, err)
	require.Len(t, decoded, 1)

	got, err := ParseStruct(decoded[0])
	require.NoError(t, err)
	assert.Equal(t, uint16(2), got.Count)
	assert.Equal(t, uint32(0x1001), got.FieldList)
	assert.Equal(t, uint64(16), got.Size.Value())
	assert.Equal(t, "Point", got.Name)
}

func TestParseStructRejectsBadPadding(t *testing.T) {
	rec := Struct{Name: "X", Size: UintNumeric(1)}.Record()
	rec.Data = append(rec.Data, 0x00) // tail byte that is not a pad sentinel

	_, err := ParseStruct(rec)
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestFieldListRoundTrip(t *testing.T) {
	fl := FieldList{
		Members: []Member{
			{Attributes: 3, Type: T_INT4, Offset: UintNumeric(0), Name: "x"},
			{Attributes: 3, Type: T_INT4, Offset: UintNumeric(4), Name: "y"},
		},
	}

	rec := fl.Record()
	assert.Zero(t, len(rec.Data)%RecordAlignment, "sub-leaves are aligned")

	got, err := ParseFieldList(rec)
	require.NoError(t, err)
	require.Len(t, got.Members, 2)
	assert.Equal(t, "y", got.Members[1].Name)
	assert.Equal(t, uint64(4), got.Members[1].Offset.Value())
}

func TestEnumFieldListRoundTrip(t *testing.T) {
	fl := FieldList{
		Enumerates: []Enumerate{
			{Value: UintNumeric(0), Name: "Red"},
			{Value: UintNumeric(0x8000), Name: "Green"}, // needs a tagged leaf
			{Value: IntNumeric(-1), Name: "Invalid"},
		},
	}

	got, err := ParseFieldList(fl.Record())
	require.NoError(t, err)
	require.Len(t, got.Enumerates, 3)
	assert.Equal(t, uint64(0x8000), got.Enumerates[1].Value.Value())
	assert.Equal(t, int64(-1), got.Enumerates[2].Value.Int)
}

func TestPointerRoundTrip(t *testing.T) {
	p := Pointer{Underlying: 0x1000, Attributes: Pointer64()}
	got, err := ParsePointer(p.Record())
	require.NoError(t, err)
	assert.Equal(t, p.Underlying, got.Underlying)
	assert.Equal(t, uint32(0x0C), got.Kind())
	assert.Equal(t, uint32(0), got.Mode())
}

func TestProcedureAndArgListRoundTrip(t *testing.T) {
	args := ArgList{Args: []uint32{T_INT4, T_UINT4}}
	gotArgs, err := ParseArgList(args.Record())
	require.NoError(t, err)
	assert.Equal(t, args.Args, gotArgs.Args)

	proc := Procedure{ReturnType: T_VOID, NumParams: 2, ArgList: 0x1000}
	gotProc, err := ParseProcedure(proc.Record())
	require.NoError(t, err)
	assert.Equal(t, proc, *gotProc)
}

func TestParseArgListCountOverrun(t *testing.T) {
	rec := Record{Kind: LF_ARGLIST, Data: []byte{0xFF, 0xFF, 0xFF, 0x0F}}
	_, err := ParseArgList(rec)
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestArrayAndUnionAndEnumRoundTrip(t *testing.T) {
	arr := Array{ElementType: T_INT4, IndexType: T_UINT4, Size: UintNumeric(40), Name: ""}
	gotArr, err := ParseArray(arr.Record())
	require.NoError(t, err)
	assert.Equal(t, uint64(40), gotArr.Size.Value())

	u := Union{Count: 1, FieldList: 0x1002, Size: UintNumeric(8), Name: "Value"}
	gotU, err := ParseUnion(u.Record())
	require.NoError(t, err)
	assert.Equal(t, "Value", gotU.Name)

	e := Enum{Count: 3, Underlying: T_INT4, FieldList: 0x1003, Name: "Color"}
	gotE, err := ParseEnum(e.Record())
	require.NoError(t, err)
	assert.Equal(t, *gotE, e)
}

func TestModifierAndBitfieldRoundTrip(t *testing.T) {
	m := Modifier{ModifiedType: 0x1000, Modifiers: ModifierConst}
	gotM, err := ParseModifier(m.Record())
	require.NoError(t, err)
	assert.Equal(t, m, *gotM)

	b := Bitfield{BaseType: T_UINT4, Length: 3, Position: 5}
	gotB, err := ParseBitfield(b.Record())
	require.NoError(t, err)
	assert.Equal(t, b, *gotB)
}

func TestIDRecordsRoundTrip(t *testing.T) {
	s := StringID{Value: "src/main.c"}
	gotS, err := ParseStringID(s.Record())
	require.NoError(t, err)
	assert.Equal(t, "src/main.c", gotS.Value)

	f := FuncID{FunctionType: 0x1000, Name: "main"}
	gotF, err := ParseFuncID(f.Record())
	require.NoError(t, err)
	assert.Equal(t, f, *gotF)
}

func TestTypeRefs(t *testing.T) {
	cases := []struct {
		name string
		rec  Record
		want []uint32
	}{
		{"pointer to builtin", Pointer{Underlying: T_INT4}.Record(), nil},
		{"pointer to type", Pointer{Underlying: 0x1000}.Record(), []uint32{0x1000}},
		{"array", Array{ElementType: 0x1001, IndexType: T_UINT4, Size: UintNumeric(1)}.Record(), []uint32{0x1001}},
		{"procedure", Procedure{ReturnType: 0x1002, ArgList: 0x1003}.Record(), []uint32{0x1002, 0x1003}},
		{"arglist", ArgList{Args: []uint32{T_INT4, 0x1004, 0x1005}}.Record(), []uint32{0x1004, 0x1005}},
		{"structure", Struct{FieldList: 0x1006, Size: UintNumeric(4)}.Record(), []uint32{0x1006}},
		{"enum", Enum{Underlying: T_INT4, FieldList: 0x1007}.Record(), []uint32{0x1007}},
		{"fieldlist", FieldList{Members: []Member{
			{Type: T_INT4, Offset: UintNumeric(0), Name: "a"},
			{Type: 0x1008, Offset: UintNumeric(8), Name: "b"},
		}}.Record(), []uint32{0x1008}},
		{"unknown kind", Record{Kind: 0x9999, Data: []byte{0, 0x10, 0, 0}}, nil},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TypeRefs(tc.rec), tc.name)
	}
}
