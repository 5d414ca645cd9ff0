package msf

import (
	"fmt"
	"io"
)

// Stream represents a single stream within an MSF file.
// Streams are composed of potentially non-contiguous blocks and only borrow
// read access from their container; they become invalid when it is closed.
type Stream struct {
	msf    *MSF
	size   uint32
	blocks []uint32
	absent bool
}

// Size returns the size of the stream in bytes.
func (s *Stream) Size() uint32 {
	return s.size
}

// Blocks returns the block indices that make up this stream.
func (s *Stream) Blocks() []uint32 {
	return s.blocks
}

// ReadAll reads the entire stream contents into a byte slice.
func (s *Stream) ReadAll() ([]byte, error) {
	data := make([]byte, s.size)
	if _, err := io.ReadFull(NewStreamReader(s), data); err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}
	return data, nil
}

// StreamReader provides sequential and random access to a stream's data,
// handling the non-contiguous block layout transparently. It buffers at most
// one block worth of state, so arbitrarily large streams can be processed in
// bounded memory.
type StreamReader struct {
	stream *Stream
	offset int64 // Current position in the stream
}

// NewStreamReader creates a new reader positioned at the stream start.
func NewStreamReader(s *Stream) *StreamReader {
	return &StreamReader{stream: s}
}

// Len returns the stream length in bytes.
func (sr *StreamReader) Len() uint32 {
	return sr.stream.size
}

// Offset returns the current position within the stream.
func (sr *StreamReader) Offset() int64 {
	return sr.offset
}

// Read implements io.Reader. A read spanning a block boundary is satisfied
// by consecutive block reads at the translated file offsets.
func (sr *StreamReader) Read(p []byte) (int, error) {
	if sr.offset >= int64(sr.stream.size) {
		return 0, io.EOF
	}

	blockSize := int64(sr.stream.msf.BlockSize())
	totalRead := 0

	for len(p) > 0 && sr.offset < int64(sr.stream.size) {
		blockIdx := sr.offset / blockSize
		posInBlock := sr.offset % blockSize

		toRead := int64(len(p))
		if rem := blockSize - posInBlock; toRead > rem {
			toRead = rem
		}
		if rem := int64(sr.stream.size) - sr.offset; toRead > rem {
			toRead = rem
		}

		block := sr.stream.blocks[blockIdx]
		if err := sr.stream.msf.readBlockAt(block, uint32(posInBlock), p[:toRead]); err != nil {
			return totalRead, err
		}

		totalRead += int(toRead)
		sr.offset += toRead
		p = p[toRead:]
	}

	return totalRead, nil
}

// Seek implements io.Seeker. Positions are clamped to [0, size].
func (sr *StreamReader) Seek(offset int64, whence int) (int64, error) {
	var newOffset int64
	switch whence {
	case io.SeekStart:
		newOffset = offset
	case io.SeekCurrent:
		newOffset = sr.offset + offset
	case io.SeekEnd:
		newOffset = int64(sr.stream.size) + offset
	default:
		return sr.offset, fmt.Errorf("invalid whence %d", whence)
	}

	if newOffset < 0 {
		newOffset = 0
	}
	if newOffset > int64(sr.stream.size) {
		newOffset = int64(sr.stream.size)
	}

	sr.offset = newOffset
	return sr.offset, nil
}

// StreamDirectory represents the directory of all streams in the MSF file.
// It is parsed once on open and read-only afterwards.
type StreamDirectory struct {
	NumStreams   uint32
	StreamSizes  []uint32
	StreamBlocks [][]uint32
}
