package streams

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go-pdb/pdbrw/pkg/pdb/codeview"
)

// TPI stream versions
const (
	TPIStreamVersion40  = 19950410
	TPIStreamVersion41  = 19951122
	TPIStreamVersion50  = 19961031
	TPIStreamVersionV70 = 19990903
	TPIStreamVersionV80 = 20040203
)

// Hash parameters emitted by the builder and expected by current readers.
const (
	tpiHashKeySize    = 4
	tpiNumHashBuckets = 0x3FFFF

	// Granularity of the index-offset table: one entry per this many bytes
	// of record data, for binary-searching a type index to a stream offset.
	tpiIndexOffsetInterval = 8 * 1024
)

// ErrForwardTypeReference indicates a type record referencing a type index
// that has not been added yet. Type streams are strictly ordered; a record
// may only reference built-ins and earlier records.
var ErrForwardTypeReference = errors.New("forward type reference")

// TPIHeader is the fixed 56-byte header of the TPI and IPI streams.
type TPIHeader struct {
	Version                 uint32
	HeaderSize              uint32
	TypeIndexBegin          uint32
	TypeIndexEnd            uint32
	TypeRecordBytes         uint32
	HashStreamIndex         uint16
	HashAuxStreamIndex      uint16
	HashKeySize             uint32
	NumHashBuckets          uint32
	HashValueBufferOffset   int32
	HashValueBufferLength   uint32
	IndexOffsetBufferOffset int32
	IndexOffsetBufferLength uint32
	HashAdjBufferOffset     int32
	HashAdjBufferLength     uint32
}

// TPIStream is a parsed TPI (or IPI) stream.
type TPIStream struct {
	Header      TPIHeader
	TypeRecords []TypeRecord
	typeMap     map[uint32]*TypeRecord
}

// TypeRecord is a type record together with its assigned type index.
type TypeRecord struct {
	Index  uint32
	Record codeview.Record
}

// ReadTPIStream parses a TPI or IPI stream from raw bytes.
func ReadTPIStream(data []byte) (*TPIStream, error) {
	r := bytes.NewReader(data)

	var header TPIHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read TPI header: %w", err)
	}

	if header.Version != TPIStreamVersionV80 && header.Version != TPIStreamVersionV70 {
		return nil, fmt.Errorf("unsupported TPI version: %d", header.Version)
	}

	recordData := make([]byte, header.TypeRecordBytes)
	if _, err := io.ReadFull(r, recordData); err != nil {
		return nil, fmt.Errorf("failed to read type records: %w", err)
	}

	records, err := codeview.DecodeRecords(bytes.NewReader(recordData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode type records: %w", err)
	}

	tpi := &TPIStream{
		Header:      header,
		TypeRecords: make([]TypeRecord, len(records)),
		typeMap:     make(map[uint32]*TypeRecord, len(records)),
	}
	for i, rec := range records {
		idx := header.TypeIndexBegin + uint32(i)
		tpi.TypeRecords[i] = TypeRecord{Index: idx, Record: rec}
		tpi.typeMap[idx] = &tpi.TypeRecords[i]
	}

	if got := header.TypeIndexBegin + uint32(len(records)); got != header.TypeIndexEnd {
		return nil, fmt.Errorf("TPI record count mismatch: header ends at 0x%x, records end at 0x%x",
			header.TypeIndexEnd, got)
	}

	return tpi, nil
}

// GetType returns the type record for the given type index, or nil.
func (t *TPIStream) GetType(index uint32) *TypeRecord {
	return t.typeMap[index]
}

// NumTypes returns the number of type records.
func (t *TPIStream) NumTypes() int {
	return len(t.TypeRecords)
}

// TypeCount returns the span of assigned type indices.
func (t *TPIStream) TypeCount() uint32 {
	return t.Header.TypeIndexEnd - t.Header.TypeIndexBegin
}

// TPIBuilder accumulates type records and assigns sequential type indices.
// The same builder serves the TPI and IPI streams; they share a layout.
type TPIBuilder struct {
	records []codeview.Record
	next    uint32
}

func NewTPIBuilder() *TPIBuilder {
	return &TPIBuilder{next: codeview.TypeIndexBegin}
}

// Add appends a record and returns its assigned type index. Records may only
// reference built-in indices and indices already assigned by this builder.
func (b *TPIBuilder) Add(rec codeview.Record) (uint32, error) {
	for _, ref := range codeview.TypeRefs(rec) {
		if ref >= b.next {
			return 0, fmt.Errorf("%w: %s record 0x%x references 0x%x",
				ErrForwardTypeReference, codeview.LeafKindName(rec.Kind), b.next, ref)
		}
	}
	idx := b.next
	b.records = append(b.records, rec)
	b.next++
	return idx, nil
}

// Count returns the number of records added.
func (b *TPIBuilder) Count() uint32 {
	return b.next - codeview.TypeIndexBegin
}

// Build serializes the type stream and its hash stream. hashStreamIndex is
// the stream slot the caller will store the hash stream in, recorded in the
// header so readers can find it.
func (b *TPIBuilder) Build(hashStreamIndex uint16) (stream, hashStream []byte, err error) {
	recordBytes, err := codeview.EncodeRecords(b.records)
	if err != nil {
		return nil, nil, err
	}
	hashStream, err = b.buildHashStream()
	if err != nil {
		return nil, nil, err
	}

	count := b.Count()
	header := TPIHeader{
		Version:                 TPIStreamVersionV80,
		HeaderSize:              56,
		TypeIndexBegin:          codeview.TypeIndexBegin,
		TypeIndexEnd:            codeview.TypeIndexBegin + count,
		TypeRecordBytes:         uint32(len(recordBytes)),
		HashStreamIndex:         hashStreamIndex,
		HashAuxStreamIndex:      0xFFFF,
		HashKeySize:             tpiHashKeySize,
		NumHashBuckets:          tpiNumHashBuckets,
		HashValueBufferOffset:   0,
		HashValueBufferLength:   4 * count,
		IndexOffsetBufferOffset: int32(4 * count),
		IndexOffsetBufferLength: uint32(len(hashStream)) - 4*count,
		HashAdjBufferOffset:     int32(len(hashStream)),
		HashAdjBufferLength:     0,
	}

	buf := new(bytes.Buffer)
	buf.Grow(int(header.HeaderSize) + len(recordBytes))
	binary.Write(buf, binary.LittleEndian, header)
	buf.Write(recordBytes)
	return buf.Bytes(), hashStream, nil
}

// buildHashStream emits the hash value buffer (one bucket per record) followed
// by the index-offset buffer (type index and stream offset of the record that
// starts each interval of record data).
func (b *TPIBuilder) buildHashStream() ([]byte, error) {
	buf := new(bytes.Buffer)

	for _, rec := range b.records {
		h, err := typeRecordHash(rec)
		if err != nil {
			return nil, err
		}
		binary.Write(buf, binary.LittleEndian, h%tpiNumHashBuckets)
	}

	offset := 0
	lastInterval := -1
	for i, rec := range b.records {
		if interval := offset / tpiIndexOffsetInterval; interval != lastInterval {
			binary.Write(buf, binary.LittleEndian, codeview.TypeIndexBegin+uint32(i))
			binary.Write(buf, binary.LittleEndian, uint32(offset))
			lastInterval = interval
		}
		offset += rec.EncodedSize() + padTo4(rec.EncodedSize())
	}
	return buf.Bytes(), nil
}

func padTo4(n int) int {
	return (4 - n%4) % 4
}

// typeRecordHash computes the hash bucket source for a record: the type name
// for the named user-defined types, the raw record bytes otherwise.
func typeRecordHash(rec codeview.Record) (uint32, error) {
	switch rec.Kind {
	case codeview.LF_CLASS, codeview.LF_STRUCTURE:
		if s, err := codeview.ParseStruct(rec); err == nil && s.Name != "" {
			return HashV1([]byte(s.Name)), nil
		}
	case codeview.LF_UNION:
		if u, err := codeview.ParseUnion(rec); err == nil && u.Name != "" {
			return HashV1([]byte(u.Name)), nil
		}
	case codeview.LF_ENUM:
		if e, err := codeview.ParseEnum(rec); err == nil && e.Name != "" {
			return HashV1([]byte(e.Name)), nil
		}
	}
	encoded, err := codeview.AppendRecord(nil, rec.Kind, rec.Data)
	if err != nil {
		return 0, err
	}
	return HashV1(encoded[4:]), nil
}
