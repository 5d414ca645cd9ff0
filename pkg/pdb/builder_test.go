package pdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-pdb/pdbrw/pkg/pdb/codeview"
	"github.com/go-pdb/pdbrw/pkg/pdb/msf"
	"github.com/go-pdb/pdbrw/pkg/pdb/streams"
)

func TestBuildAndReopen(t *testing.T) {
	b := NewBuilder(streams.MachineAMD64)

	// A small type graph: field list, the structure using it, and a pointer
	// to the structure.
	flIdx, err := b.AddType(codeview.FieldList{Members: []codeview.Member{
		{Type: codeview.T_INT4, Offset: codeview.UintNumeric(0), Name: "x"},
		{Type: codeview.T_INT4, Offset: codeview.UintNumeric(4), Name: "y"},
	}}.Record())
	require.NoError(t, err)

	structIdx, err := b.AddType(codeview.Struct{
		Count:     2,
		FieldList: flIdx,
		Size:      codeview.UintNumeric(8),
		Name:      "Point",
	}.Record())
	require.NoError(t, err)

	ptrIdx, err := b.AddType(codeview.Pointer{
		Underlying: structIdx,
		Attributes: codeview.Pointer64(),
	}.Record())
	require.NoError(t, err)

	_, err = b.AddID(codeview.StringID{Value: "src/point.c"}.Record())
	require.NoError(t, err)

	b.AddSymbol(codeview.ProcSym{
		Kind:      codeview.S_GPROC32,
		Length:    64,
		TypeIndex: structIdx,
		Offset:    0x1000,
		Segment:   1,
		Name:      "point_new",
	}.Record())
	b.AddSymbol(codeview.PubSym{Offset: 0x1000, Segment: 1, Name: "_point_new"}.Record())

	path := filepath.Join(t.TempDir(), "test.pdb")
	require.NoError(t, b.Commit(path))

	p, err := Open(path)
	require.NoError(t, err)
	defer p.Close()

	info := p.Info()
	assert.Equal(t, uint32(1), info.Age)
	assert.Equal(t, "x64", info.Machine)
	assert.NotEmpty(t, info.GUID)

	// Types survive the trip with their indices and payloads intact.
	require.Equal(t, 3, p.TypeCount())
	structRec := p.GetType(structIdx)
	require.NotNil(t, structRec)
	s, err := codeview.ParseStruct(structRec.Record)
	require.NoError(t, err)
	assert.Equal(t, "Point", s.Name)
	assert.Equal(t, uint64(8), s.Size.Value())

	ptrRec := p.GetType(ptrIdx)
	require.NotNil(t, ptrRec)
	ptr, err := codeview.ParsePointer(ptrRec.Record)
	require.NoError(t, err)
	assert.Equal(t, structIdx, ptr.Underlying)

	ids := p.IDRecords()
	require.Len(t, ids, 1)
	str, err := codeview.ParseStringID(ids[0].Record)
	require.NoError(t, err)
	assert.Equal(t, "src/point.c", str.Value)

	functions, err := p.Functions()
	require.NoError(t, err)
	require.Len(t, functions, 1)
	assert.Equal(t, "point_new", functions[0].Name)
	assert.Equal(t, structIdx, functions[0].TypeIndex)
	assert.True(t, functions[0].IsGlobal)

	publics, err := p.PublicSymbols()
	require.NoError(t, err)
	require.Len(t, publics, 1)
	assert.Equal(t, "_point_new", publics[0].Name)
}

func TestBuildEmptyPDB(t *testing.T) {
	b := NewBuilder(streams.MachineARM64)

	path := filepath.Join(t.TempDir(), "empty.pdb")
	require.NoError(t, b.Commit(path))

	p, err := Open(path)
	require.NoError(t, err)
	defer p.Close()

	assert.Zero(t, p.TypeCount())
	assert.Empty(t, p.Modules())

	symbols, err := p.Symbols()
	require.NoError(t, err)
	assert.Empty(t, symbols)

	// The previous-directory slot is a present, zero-length stream.
	s, err := p.MSF().Stream(StreamPrevDirectory)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), s.Size())
}

func TestBuildWithSmallBlockSize(t *testing.T) {
	b := NewBuilder(streams.MachineAMD64)

	// Enough types to push the TPI stream past several 512-byte blocks.
	prev := uint32(codeview.T_INT4)
	for i := 0; i < 200; i++ {
		idx, err := b.AddType(codeview.Pointer{
			Underlying: prev,
			Attributes: codeview.Pointer64(),
		}.Record())
		require.NoError(t, err)
		prev = idx
	}

	path := filepath.Join(t.TempDir(), "chain.pdb")
	require.NoError(t, b.Commit(path, msf.WithBlockSize(512)))

	p, err := Open(path)
	require.NoError(t, err)
	defer p.Close()

	require.Equal(t, 200, p.TypeCount())
	last := p.GetType(prev)
	require.NotNil(t, last)
	ptr, err := codeview.ParsePointer(last.Record)
	require.NoError(t, err)
	assert.Equal(t, prev-1, ptr.Underlying)
}
