package streams

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// DBI stream versions
const (
	DBIStreamVersionVC41 = 930803
	DBIStreamVersionV50  = 19960307
	DBIStreamVersionV60  = 19970606
	DBIStreamVersionV70  = 19990903
	DBIStreamVersionV110 = 20091201
)

// Machine types
const (
	MachineUnknown = 0x0000
	MachineI386    = 0x014c
	MachineIA64    = 0x0200
	MachineAMD64   = 0x8664
	MachineARM     = 0x01c0
	MachineARM64   = 0xAA64
)

const dbiHeaderSize = 64

// Section contribution substream versions.
const (
	sectionContribVer60 = 0xeffe0000 + 19970605
	sectionContribV2    = 0xeffe0000 + 20140516
)

// A slot in the optional debug header with no stream behind it.
const NoDebugStream = 0xFFFF

// DBIHeader is the fixed header of the DBI stream (64 bytes).
type DBIHeader struct {
	VersionSignature        int32  // always -1
	VersionHeader           uint32 // DBI version
	Age                     uint32
	GlobalStreamIndex       uint16
	BuildNumber             uint16
	PublicStreamIndex       uint16
	PdbDllVersion           uint16
	SymRecordStream         uint16
	PdbDllRbld              uint16
	ModInfoSize             int32
	SectionContributionSize int32
	SectionMapSize          int32
	SourceInfoSize          int32
	TypeServerMapSize       int32
	MFCTypeServerIndex      uint32
	OptionalDbgHeaderSize   int32
	ECSubstreamSize         int32
	Flags                   uint16
	Machine                 uint16
	Padding                 uint32
}

// DebugHeader is the optional trailing substream of stream indices for
// auxiliary debug data. Absent slots hold NoDebugStream.
type DebugHeader struct {
	FPO                uint16
	Exception          uint16
	Fixup              uint16
	OmapToSrc          uint16
	OmapFromSrc        uint16
	SectionHeader      uint16
	TokenRidMap        uint16
	Xdata              uint16
	Pdata              uint16
	NewFPO             uint16
	OriginalSectionHdr uint16
}

// DBIStream is the parsed DBI stream.
type DBIStream struct {
	Header          DBIHeader
	Modules         []ModuleInfo
	SectionContribs []SectionContrib
	DebugHeader     *DebugHeader
}

// ModuleInfo describes one compiled module.
type ModuleInfo struct {
	Unused1              uint32
	SectionContrib       SectionContrib
	Flags                uint16
	ModuleSymStream      uint16 // NoDebugStream if none
	SymByteSize          uint32
	C11ByteSize          uint32
	C13ByteSize          uint32
	SourceFileCount      uint16
	Padding              uint16
	Unused2              uint32
	SourceFileNameIndex  uint32
	PdbFilePathNameIndex uint32
	ModuleName           string
	ObjFileName          string
}

// SectionContrib describes a section contribution from a module (28 bytes).
type SectionContrib struct {
	Section         uint16
	Padding1        uint16
	Offset          int32
	Size            int32
	Characteristics uint32
	ModuleIndex     uint16
	Padding2        uint16
	DataCrc         uint32
	RelocCrc        uint32
}

// ReadDBIStream parses the DBI stream.
func ReadDBIStream(data []byte) (*DBIStream, error) {
	if len(data) < dbiHeaderSize {
		return nil, fmt.Errorf("DBI stream too small: %d bytes", len(data))
	}

	var header DBIHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read DBI header: %w", err)
	}
	if header.VersionSignature != -1 {
		return nil, fmt.Errorf("invalid DBI version signature: %d", header.VersionSignature)
	}

	dbi := &DBIStream{Header: header}

	modInfoOffset := dbiHeaderSize
	secContribOffset := modInfoOffset + int(header.ModInfoSize)

	if header.ModInfoSize > 0 {
		end := modInfoOffset + int(header.ModInfoSize)
		if end > len(data) {
			return nil, fmt.Errorf("module info substream of %d bytes exceeds DBI stream", header.ModInfoSize)
		}
		modules, err := parseModuleInfo(data[modInfoOffset:end])
		if err != nil {
			return nil, fmt.Errorf("failed to parse module info: %w", err)
		}
		dbi.Modules = modules
	}

	if header.SectionContributionSize > 0 {
		end := secContribOffset + int(header.SectionContributionSize)
		if end > len(data) {
			return nil, fmt.Errorf("section contribution substream of %d bytes exceeds DBI stream",
				header.SectionContributionSize)
		}
		contribs, err := parseSectionContribs(data[secContribOffset:end])
		if err != nil {
			return nil, fmt.Errorf("failed to parse section contributions: %w", err)
		}
		dbi.SectionContribs = contribs
	}

	// The optional debug header is the last substream in the stream.
	if header.OptionalDbgHeaderSize >= 22 {
		offset := len(data) - int(header.OptionalDbgHeaderSize)
		if offset < dbiHeaderSize {
			return nil, fmt.Errorf("optional debug header of %d bytes exceeds DBI stream",
				header.OptionalDbgHeaderSize)
		}
		var dh DebugHeader
		if err := binary.Read(bytes.NewReader(data[offset:]), binary.LittleEndian, &dh); err != nil {
			return nil, fmt.Errorf("failed to read optional debug header: %w", err)
		}
		dbi.DebugHeader = &dh
	}

	return dbi, nil
}

// parseModuleInfo parses the module info substream: a fixed 64-byte entry,
// two null-terminated names, then padding to a 4-byte boundary.
func parseModuleInfo(data []byte) ([]ModuleInfo, error) {
	var modules []ModuleInfo
	offset := 0

	for offset+64 <= len(data) {
		var mod ModuleInfo

		mod.Unused1 = binary.LittleEndian.Uint32(data[offset:])
		if err := binary.Read(bytes.NewReader(data[offset+4:]), binary.LittleEndian, &mod.SectionContrib); err != nil {
			return nil, err
		}
		offset += 4 + 28

		mod.Flags = binary.LittleEndian.Uint16(data[offset:])
		mod.ModuleSymStream = binary.LittleEndian.Uint16(data[offset+2:])
		mod.SymByteSize = binary.LittleEndian.Uint32(data[offset+4:])
		mod.C11ByteSize = binary.LittleEndian.Uint32(data[offset+8:])
		mod.C13ByteSize = binary.LittleEndian.Uint32(data[offset+12:])
		mod.SourceFileCount = binary.LittleEndian.Uint16(data[offset+16:])
		mod.Padding = binary.LittleEndian.Uint16(data[offset+18:])
		mod.Unused2 = binary.LittleEndian.Uint32(data[offset+20:])
		mod.SourceFileNameIndex = binary.LittleEndian.Uint32(data[offset+24:])
		mod.PdbFilePathNameIndex = binary.LittleEndian.Uint32(data[offset+28:])
		offset += 32

		name, n := cstring(data[offset:])
		mod.ModuleName = name
		offset += n
		name, n = cstring(data[offset:])
		mod.ObjFileName = name
		offset += n

		offset = (offset + 3) &^ 3
		modules = append(modules, mod)
	}

	return modules, nil
}

// parseSectionContribs parses the section contribution substream.
func parseSectionContribs(data []byte) ([]SectionContrib, error) {
	if len(data) < 4 {
		return nil, nil
	}

	version := binary.LittleEndian.Uint32(data)
	entrySize := 28
	if version == sectionContribV2 {
		entrySize = 32 // V2 appends ISectCoff
	}

	r := bytes.NewReader(data[4:])
	numEntries := (len(data) - 4) / entrySize

	contribs := make([]SectionContrib, 0, numEntries)
	for i := 0; i < numEntries; i++ {
		var contrib SectionContrib
		if err := binary.Read(r, binary.LittleEndian, &contrib); err != nil {
			return nil, fmt.Errorf("failed to read section contribution %d: %w", i, err)
		}
		if entrySize == 32 {
			var coffSection uint32
			binary.Read(r, binary.LittleEndian, &coffSection)
		}
		contribs = append(contribs, contrib)
	}

	return contribs, nil
}

// MachineTypeName returns the human-readable name for a machine type.
func MachineTypeName(machine uint16) string {
	switch machine {
	case MachineI386:
		return "x86"
	case MachineAMD64:
		return "x64"
	case MachineARM:
		return "ARM"
	case MachineARM64:
		return "ARM64"
	case MachineIA64:
		return "IA64"
	default:
		return fmt.Sprintf("0x%04x", machine)
	}
}

// HasSymbols returns true if the module has symbol information.
func (m *ModuleInfo) HasSymbols() bool {
	return m.ModuleSymStream != NoDebugStream && m.SymByteSize > 0
}

// DBIBuilder assembles a DBI stream with empty substreams: enough for
// consumers that want the machine type, age, and symbol record stream
// wiring without per-module debug info.
type DBIBuilder struct {
	Age             uint32
	Machine         uint16
	BuildNumber     uint16
	SymRecordStream uint16
	debugHeader     *DebugHeader
}

func NewDBIBuilder(machine uint16) *DBIBuilder {
	return &DBIBuilder{
		Age:             1,
		Machine:         machine,
		BuildNumber:     0x8EB, // major 8, minor 11, matching current linkers
		SymRecordStream: NoDebugStream,
	}
}

// SetDebugHeader appends an optional debug header. Pass nil for one with
// every slot absent.
func (b *DBIBuilder) SetDebugHeader(dh *DebugHeader) {
	if dh == nil {
		dh = &DebugHeader{
			FPO: NoDebugStream, Exception: NoDebugStream, Fixup: NoDebugStream,
			OmapToSrc: NoDebugStream, OmapFromSrc: NoDebugStream,
			SectionHeader: NoDebugStream, TokenRidMap: NoDebugStream,
			Xdata: NoDebugStream, Pdata: NoDebugStream, NewFPO: NoDebugStream,
			OriginalSectionHdr: NoDebugStream,
		}
	}
	b.debugHeader = dh
}

// Build serializes the DBI stream.
func (b *DBIBuilder) Build() []byte {
	header := DBIHeader{
		VersionSignature:  -1,
		VersionHeader:     DBIStreamVersionV70,
		Age:               b.Age,
		GlobalStreamIndex: NoDebugStream,
		BuildNumber:       b.BuildNumber | 0x8000, // new version format flag
		PublicStreamIndex: NoDebugStream,
		SymRecordStream:   b.SymRecordStream,
		Machine:           b.Machine,
	}
	if b.debugHeader != nil {
		header.OptionalDbgHeaderSize = 22
	}

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, header)
	if b.debugHeader != nil {
		binary.Write(buf, binary.LittleEndian, *b.debugHeader)
	}
	return buf.Bytes()
}
