package pdb

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-pdb/pdbrw/pkg/pdb/codeview"
	"github.com/go-pdb/pdbrw/pkg/pdb/msf"
	"github.com/go-pdb/pdbrw/pkg/pdb/streams"
)

// buildModuleDBI serializes a DBI stream holding a single module whose
// symbols live in the given stream.
func buildModuleDBI(t *testing.T, symStream uint16, symBytes uint32) []byte {
	t.Helper()

	mod := new(bytes.Buffer)
	binary.Write(mod, binary.LittleEndian, uint32(0)) // Unused1
	binary.Write(mod, binary.LittleEndian, streams.SectionContrib{})
	binary.Write(mod, binary.LittleEndian, uint16(0)) // Flags
	binary.Write(mod, binary.LittleEndian, symStream)
	binary.Write(mod, binary.LittleEndian, symBytes)
	binary.Write(mod, binary.LittleEndian, uint32(0)) // C11ByteSize
	binary.Write(mod, binary.LittleEndian, uint32(0)) // C13ByteSize
	binary.Write(mod, binary.LittleEndian, uint16(0)) // SourceFileCount
	binary.Write(mod, binary.LittleEndian, uint16(0)) // Padding
	binary.Write(mod, binary.LittleEndian, uint32(0)) // Unused2
	binary.Write(mod, binary.LittleEndian, uint32(0)) // SourceFileNameIndex
	binary.Write(mod, binary.LittleEndian, uint32(0)) // PdbFilePathNameIndex
	mod.WriteString("main.obj\x00")
	mod.WriteString("main.obj\x00")
	for mod.Len()%4 != 0 {
		mod.WriteByte(0)
	}

	header := streams.DBIHeader{
		VersionSignature:  -1,
		VersionHeader:     streams.DBIStreamVersionV70,
		Age:               1,
		GlobalStreamIndex: streams.NoDebugStream,
		PublicStreamIndex: streams.NoDebugStream,
		SymRecordStream:   streams.NoDebugStream,
		ModInfoSize:       int32(mod.Len()),
		Machine:           streams.MachineAMD64,
	}

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, header)
	buf.Write(mod.Bytes())
	return buf.Bytes()
}

// writeModulePDB writes a minimal PDB whose one module points its symbols
// at stream 12 holding symData.
func writeModulePDB(t *testing.T, symData []byte) string {
	t.Helper()

	w := msf.NewWriter()
	require.NoError(t, w.AddStream(StreamPrevDirectory, nil))
	require.NoError(t, w.AddStream(StreamPDB, streams.NewInfoBuilder(uuid.New(), 1).Build()))
	require.NoError(t, w.AddStream(StreamDBI, buildModuleDBI(t, 12, uint32(len(symData)))))
	require.NoError(t, w.AddStream(12, symData))

	path := filepath.Join(t.TempDir(), "mod.pdb")
	require.NoError(t, w.Finish(path))
	return path
}

func TestFunctionsFromModuleStream(t *testing.T) {
	encoded, err := codeview.EncodeRecords([]codeview.Record{codeview.ProcSym{
		Kind:    codeview.S_LPROC32,
		Length:  32,
		Offset:  0x10,
		Segment: 1,
		Name:    "helper",
	}.Record()})
	require.NoError(t, err)

	// Module symbol streams open with a C13 signature word.
	symData := make([]byte, 4, 4+len(encoded))
	binary.LittleEndian.PutUint32(symData, 4)
	symData = append(symData, encoded...)

	p, err := Open(writeModulePDB(t, symData))
	require.NoError(t, err)
	defer p.Close()

	functions, err := p.Functions()
	require.NoError(t, err)
	require.Len(t, functions, 1)
	assert.Equal(t, "helper", functions[0].Name)
	assert.Equal(t, "main.obj", functions[0].Module)
	assert.False(t, functions[0].IsGlobal)
}

func TestModuleSymbolReadErrorsPropagate(t *testing.T) {
	path := writeModulePDB(t, []byte{4, 0, 0, 0})

	p, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, p.Close())

	// The module stream can no longer be read; the failure must surface
	// instead of the module being silently skipped.
	_, err = p.Functions()
	require.Error(t, err)
	assert.ErrorContains(t, err, "main.obj")
}

func TestModuleSymbolParseErrorsPropagate(t *testing.T) {
	p, err := Open(writeModulePDB(t, []byte{0x01, 0x00, 0x10, 0x11}))
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Functions()
	require.ErrorIs(t, err, codeview.ErrMalformedRecord)
	assert.ErrorContains(t, err, "main.obj")
}
