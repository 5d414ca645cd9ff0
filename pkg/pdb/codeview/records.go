package codeview

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Record is a single tagged, variable-length record from a type or symbol
// stream. Data holds the payload after the kind field, trailing alignment
// padding included, so an unmodified record always re-encodes byte-exactly
// regardless of whether the kind is understood.
type Record struct {
	Kind uint16
	Data []byte
}

// EncodedSize returns the on-wire size of the record: length field, kind,
// and payload with its padding.
func (r Record) EncodedSize() int {
	return 4 + len(r.Data)
}

// RecordReader decodes records one at a time from a byte source. It is the
// lazy counterpart of DecodeRecords and buffers only the current record.
type RecordReader struct {
	r   io.Reader
	err error
}

// NewRecordReader creates a reader over a record stream.
func NewRecordReader(r io.Reader) *RecordReader {
	return &RecordReader{r: r}
}

// Next returns the next record. It returns io.EOF cleanly at the end of the
// stream, ErrTrailingGarbage when leftover bytes cannot hold a record, and
// ErrMalformedRecord for framing violations.
func (rr *RecordReader) Next() (Record, error) {
	if rr.err != nil {
		return Record{}, rr.err
	}

	var hdr [4]byte
	n, err := io.ReadFull(rr.r, hdr[:])
	if err == io.EOF {
		rr.err = io.EOF
		return Record{}, io.EOF
	}
	if err != nil {
		// A partial header cannot be the start of any record.
		rr.err = fmt.Errorf("%w: %d stray bytes at end of stream", ErrTrailingGarbage, n)
		return Record{}, rr.err
	}

	length := binary.LittleEndian.Uint16(hdr[0:])
	kind := binary.LittleEndian.Uint16(hdr[2:])

	if length < 2 {
		rr.err = fmt.Errorf("%w: record length %d too small for kind field", ErrMalformedRecord, length)
		return Record{}, rr.err
	}
	if (2+int(length))%RecordAlignment != 0 {
		rr.err = fmt.Errorf("%w: record size %d not %d-byte aligned",
			ErrMalformedRecord, 2+int(length), RecordAlignment)
		return Record{}, rr.err
	}

	data := make([]byte, length-2)
	if _, err := io.ReadFull(rr.r, data); err != nil {
		rr.err = fmt.Errorf("%w: truncated payload for kind 0x%04x", ErrMalformedRecord, kind)
		return Record{}, rr.err
	}

	return Record{Kind: kind, Data: data}, nil
}

// DecodeRecords reads every record in the stream.
func DecodeRecords(r io.Reader) ([]Record, error) {
	rr := NewRecordReader(r)
	var records []Record
	for {
		rec, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}

// AppendRecord encodes one record onto buf: 2-byte length, 2-byte kind, the
// payload, and canonical padding sentinels up to the next 4-byte boundary.
// Payloads that already carry their padding (decoded records) re-encode
// unchanged. Payloads whose padded length overflows the 16-bit length field
// are ErrMalformedRecord; the codec never emits a wrapped length.
func AppendRecord(buf []byte, kind uint16, payload []byte) ([]byte, error) {
	pad := padSize(4 + len(payload))
	length := 2 + len(payload) + pad
	if length > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d byte payload overflows the record length field",
			ErrMalformedRecord, len(payload))
	}

	var scratch [2]byte
	binary.LittleEndian.PutUint16(scratch[:], uint16(length))
	buf = append(buf, scratch[:]...)
	binary.LittleEndian.PutUint16(scratch[:], kind)
	buf = append(buf, scratch[:]...)
	buf = append(buf, payload...)
	return appendPadding(buf, pad), nil
}

// EncodeRecords serializes a record sequence into one contiguous buffer.
func EncodeRecords(records []Record) ([]byte, error) {
	n := 0
	for _, rec := range records {
		n += rec.EncodedSize() + RecordAlignment
	}
	buf := make([]byte, 0, n)
	for _, rec := range records {
		var err error
		if buf, err = AppendRecord(buf, rec.Kind, rec.Data); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// padSize returns the number of padding bytes needed after size bytes.
func padSize(size int) int {
	return (RecordAlignment - size%RecordAlignment) % RecordAlignment
}

// appendPadding emits n padding sentinels, each encoding how many padding
// bytes remain: LF_PAD0+n, LF_PAD0+n-1, .., 0xF1.
func appendPadding(buf []byte, n int) []byte {
	for ; n > 0; n-- {
		buf = append(buf, byte(LF_PAD0+n))
	}
	return buf
}

// ValidatePadding checks that every byte of a record tail is a well-formed
// padding sentinel.
func ValidatePadding(tail []byte) error {
	if len(tail) >= RecordAlignment {
		return fmt.Errorf("%w: %d padding bytes exceed alignment", ErrMalformedRecord, len(tail))
	}
	for _, b := range tail {
		if b < LF_PAD0 {
			return fmt.Errorf("%w: invalid padding byte 0x%02x", ErrMalformedRecord, b)
		}
	}
	return nil
}
