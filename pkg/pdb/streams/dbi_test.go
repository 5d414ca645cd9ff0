package streams

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBIBuilderRoundTrip(t *testing.T) {
	b := NewDBIBuilder(MachineAMD64)
	b.Age = 2
	b.SymRecordStream = 7

	dbi, err := ReadDBIStream(b.Build())
	require.NoError(t, err)

	assert.Equal(t, int32(-1), dbi.Header.VersionSignature)
	assert.Equal(t, uint32(DBIStreamVersionV70), dbi.Header.VersionHeader)
	assert.Equal(t, uint32(2), dbi.Header.Age)
	assert.Equal(t, uint16(MachineAMD64), dbi.Header.Machine)
	assert.Equal(t, uint16(7), dbi.Header.SymRecordStream)
	assert.Equal(t, "x64", MachineTypeName(dbi.Header.Machine))
	assert.Empty(t, dbi.Modules)
	assert.Nil(t, dbi.DebugHeader)
}

func TestDBIBuilderDebugHeader(t *testing.T) {
	b := NewDBIBuilder(MachineARM64)
	b.SetDebugHeader(nil)

	dbi, err := ReadDBIStream(b.Build())
	require.NoError(t, err)

	require.NotNil(t, dbi.DebugHeader)
	assert.Equal(t, uint16(NoDebugStream), dbi.DebugHeader.SectionHeader)
	assert.Equal(t, uint16(NoDebugStream), dbi.DebugHeader.Pdata)
}

func TestDBIBuilderCustomDebugHeader(t *testing.T) {
	b := NewDBIBuilder(MachineI386)
	dh := &DebugHeader{
		FPO: NoDebugStream, Exception: NoDebugStream, Fixup: NoDebugStream,
		OmapToSrc: NoDebugStream, OmapFromSrc: NoDebugStream,
		SectionHeader: 11, TokenRidMap: NoDebugStream,
		Xdata: NoDebugStream, Pdata: NoDebugStream, NewFPO: NoDebugStream,
		OriginalSectionHdr: NoDebugStream,
	}
	b.SetDebugHeader(dh)

	dbi, err := ReadDBIStream(b.Build())
	require.NoError(t, err)
	require.NotNil(t, dbi.DebugHeader)
	assert.Equal(t, uint16(11), dbi.DebugHeader.SectionHeader)
}

func TestReadDBIStreamErrors(t *testing.T) {
	_, err := ReadDBIStream(make([]byte, 10))
	require.Error(t, err)

	// Wrong version signature.
	data := NewDBIBuilder(MachineAMD64).Build()
	binary.LittleEndian.PutUint32(data[0:], 0)
	_, err = ReadDBIStream(data)
	require.Error(t, err)

	// Substream size overrunning the stream.
	data = NewDBIBuilder(MachineAMD64).Build()
	binary.LittleEndian.PutUint32(data[24:], 4096) // ModInfoSize
	_, err = ReadDBIStream(data)
	require.Error(t, err)
}

func TestParseModuleInfo(t *testing.T) {
	// One module entry: 64 fixed bytes, two names, padding to 4 bytes.
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, uint32(0)) // Unused1
	binary.Write(buf, binary.LittleEndian, SectionContrib{Section: 1, Size: 0x100, ModuleIndex: 0})
	binary.Write(buf, binary.LittleEndian, uint16(0))            // Flags
	binary.Write(buf, binary.LittleEndian, uint16(12))           // ModuleSymStream
	binary.Write(buf, binary.LittleEndian, uint32(256))          // SymByteSize
	binary.Write(buf, binary.LittleEndian, uint32(0))            // C11ByteSize
	binary.Write(buf, binary.LittleEndian, uint32(0))            // C13ByteSize
	binary.Write(buf, binary.LittleEndian, uint16(1))            // SourceFileCount
	binary.Write(buf, binary.LittleEndian, uint16(0))            // Padding
	binary.Write(buf, binary.LittleEndian, uint32(0))            // Unused2
	binary.Write(buf, binary.LittleEndian, uint32(0))            // SourceFileNameIndex
	binary.Write(buf, binary.LittleEndian, uint32(0))            // PdbFilePathNameIndex
	buf.WriteString("main.obj\x00")
	buf.WriteString("lib.a\x00")
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}

	modules, err := parseModuleInfo(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Equal(t, "main.obj", modules[0].ModuleName)
	assert.Equal(t, "lib.a", modules[0].ObjFileName)
	assert.Equal(t, uint16(12), modules[0].ModuleSymStream)
	assert.True(t, modules[0].HasSymbols())
}

func TestParseSectionContribs(t *testing.T) {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, uint32(sectionContribVer60))
	binary.Write(buf, binary.LittleEndian, SectionContrib{Section: 1, Offset: 0, Size: 0x200})
	binary.Write(buf, binary.LittleEndian, SectionContrib{Section: 2, Offset: 0x200, Size: 0x80})

	contribs, err := parseSectionContribs(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, contribs, 2)
	assert.Equal(t, int32(0x200), contribs[0].Size)
	assert.Equal(t, uint16(2), contribs[1].Section)
}
