// Package streams implements the well-known PDB stream formats layered on
// the MSF container: the info stream, the TPI/IPI type streams, and the DBI
// stream, with both read and build paths.
package streams

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// PDB info stream versions.
const (
	PDBStreamVersionVC2     = 19941610
	PDBStreamVersionVC4     = 19950623
	PDBStreamVersionVC41    = 19950814
	PDBStreamVersionVC50    = 19960307
	PDBStreamVersionVC98    = 19970604
	PDBStreamVersionVC70Dep = 19990604
	PDBStreamVersionVC70    = 20000404
	PDBStreamVersionVC80    = 20030901
	PDBStreamVersionVC110   = 20091201
	PDBStreamVersionVC140   = 20140508
)

// Feature codes trailing the named stream map.
const (
	PDBFeatureVC110            = 20091201
	PDBFeatureVC140            = 20140508
	PDBFeatureNoTypeMerge      = 0x4D544F4E
	PDBFeatureMinimalDebugInfo = 0x494E494D
)

// PDBInfo is the parsed PDB info stream (stream 1): identity of the PDB
// plus the named stream map and feature codes.
type PDBInfo struct {
	Version      uint32
	Signature    uint32 // timestamp at creation
	Age          uint32 // times the PDB has been written
	GUID         [16]byte
	NamedStreams map[string]uint32
	Features     []uint32
}

// PDBInfoHeader is the fixed header at the start of the PDB info stream.
type PDBInfoHeader struct {
	Version   uint32
	Signature uint32
	Age       uint32
	GUID      [16]byte
}

// ReadPDBInfo parses the PDB info stream.
func ReadPDBInfo(r io.Reader) (*PDBInfo, error) {
	var header PDBInfoHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read PDB info header: %w", err)
	}

	switch header.Version {
	case PDBStreamVersionVC70, PDBStreamVersionVC80, PDBStreamVersionVC110, PDBStreamVersionVC140:
	default:
		return nil, fmt.Errorf("unsupported PDB stream version: %d", header.Version)
	}

	info := &PDBInfo{
		Version:      header.Version,
		Signature:    header.Signature,
		Age:          header.Age,
		GUID:         header.GUID,
		NamedStreams: make(map[string]uint32),
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDB info stream: %w", err)
	}

	// Named stream map: string buffer then the offset-to-index hash table.
	if len(rest) < 4 {
		return nil, fmt.Errorf("PDB info stream truncated at named stream map")
	}
	strBufSize := binary.LittleEndian.Uint32(rest)
	if uint64(4+strBufSize) > uint64(len(rest)) {
		return nil, fmt.Errorf("PDB info stream truncated in string buffer")
	}
	strBuf := rest[4 : 4+strBufSize]

	entries, consumed, err := parseHashTable(rest[4+strBufSize:])
	if err != nil {
		return nil, fmt.Errorf("malformed named stream map: %w", err)
	}
	for _, e := range entries {
		if e.Key >= strBufSize {
			return nil, fmt.Errorf("named stream key offset %d outside string buffer", e.Key)
		}
		name, _ := cstring(strBuf[e.Key:])
		info.NamedStreams[name] = e.Val
	}

	// Trailing feature codes.
	features := rest[4+strBufSize+uint32(consumed):]
	for len(features) >= 4 {
		info.Features = append(info.Features, binary.LittleEndian.Uint32(features))
		features = features[4:]
	}

	return info, nil
}

// UUID returns the PDB identity as a uuid.UUID. The on-disk layout stores
// the first three fields little-endian, Windows GUID style.
func (p *PDBInfo) UUID() uuid.UUID {
	return guidToUUID(p.GUID)
}

// GUIDString returns the GUID as a formatted hex string.
func (p *PDBInfo) GUIDString() string {
	return fmt.Sprintf("%08X%04X%04X%02X%02X%02X%02X%02X%02X%02X%02X",
		binary.LittleEndian.Uint32(p.GUID[0:4]),
		binary.LittleEndian.Uint16(p.GUID[4:6]),
		binary.LittleEndian.Uint16(p.GUID[6:8]),
		p.GUID[8], p.GUID[9], p.GUID[10], p.GUID[11],
		p.GUID[12], p.GUID[13], p.GUID[14], p.GUID[15])
}

// HasIPI reports whether the feature codes declare an IPI stream.
func (p *PDBInfo) HasIPI() bool {
	for _, f := range p.Features {
		if f == PDBFeatureVC140 {
			return true
		}
	}
	return false
}

// InfoBuilder assembles a PDB info stream.
type InfoBuilder struct {
	Signature uint32
	Age       uint32
	GUID      uuid.UUID
	features  []uint32
	names     []string
	indices   []uint32
}

// NewInfoBuilder returns a builder for a fresh age-1 PDB declaring the
// VC140 feature, which readers require before looking for an IPI stream.
func NewInfoBuilder(id uuid.UUID, signature uint32) *InfoBuilder {
	return &InfoBuilder{
		Signature: signature,
		Age:       1,
		GUID:      id,
		features:  []uint32{PDBFeatureVC140},
	}
}

// AddNamedStream registers a named stream in the map.
func (b *InfoBuilder) AddNamedStream(name string, index uint32) {
	b.names = append(b.names, name)
	b.indices = append(b.indices, index)
}

// AddFeature appends a feature code.
func (b *InfoBuilder) AddFeature(code uint32) {
	b.features = append(b.features, code)
}

// Build serializes the info stream.
func (b *InfoBuilder) Build() []byte {
	var strBuf []byte
	table := &hashTable{}
	for i, name := range b.names {
		table.put(uint32(len(strBuf)), b.indices[i])
		strBuf = append(strBuf, name...)
		strBuf = append(strBuf, 0)
	}

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, PDBInfoHeader{
		Version:   PDBStreamVersionVC70,
		Signature: b.Signature,
		Age:       b.Age,
		GUID:      uuidToGUID(b.GUID),
	})
	binary.Write(buf, binary.LittleEndian, uint32(len(strBuf)))
	buf.Write(strBuf)
	buf.Write(table.append(nil))
	for _, f := range b.features {
		binary.Write(buf, binary.LittleEndian, f)
	}
	return buf.Bytes()
}

// uuidToGUID converts RFC byte order to the on-disk Windows GUID layout.
func uuidToGUID(u uuid.UUID) [16]byte {
	var g [16]byte
	g[0], g[1], g[2], g[3] = u[3], u[2], u[1], u[0]
	g[4], g[5] = u[5], u[4]
	g[6], g[7] = u[7], u[6]
	copy(g[8:], u[8:])
	return g
}

func guidToUUID(g [16]byte) uuid.UUID {
	var u uuid.UUID
	u[0], u[1], u[2], u[3] = g[3], g[2], g[1], g[0]
	u[4], u[5] = g[5], g[4]
	u[6], u[7] = g[7], g[6]
	copy(u[8:], g[8:])
	return u
}

// cstring extracts a null-terminated string, returning it and the bytes
// consumed including the terminator.
func cstring(data []byte) (string, int) {
	idx := bytes.IndexByte(data, 0)
	if idx == -1 {
		return string(data), len(data)
	}
	return string(data[:idx]), idx + 1
}
