package msf

import (
	"encoding/binary"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// DefaultBlockSize is the block size used for written containers unless
// overridden.
const DefaultBlockSize = 4096

// MaxStreams is the largest stream count the writer accepts. The container
// directory could hold more, but stream indices are 16-bit everywhere above
// the container layer.
const MaxStreams = 0xFFFF

// Writer accumulates complete stream contents and serializes them into a
// fresh MSF container in a single pass. A Writer is good for one Finish call;
// there is no append or in-place mutation mode.
type Writer struct {
	blockSize uint32
	streams   [][]byte
	present   []bool
	log       *zap.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithBlockSize overrides the default block size. The size must be one of
// ValidBlockSizes; Finish rejects others.
func WithBlockSize(size uint32) WriterOption {
	return func(w *Writer) { w.blockSize = size }
}

// WithWriteLogger attaches a logger to the writer.
func WithWriteLogger(log *zap.Logger) WriterOption {
	return func(w *Writer) {
		if log != nil {
			w.log = log
		}
	}
}

// NewWriter creates an empty writer.
func NewWriter(opts ...WriterOption) *Writer {
	w := &Writer{blockSize: DefaultBlockSize, log: zap.NewNop()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// AddStream sets the complete content of the stream at the given index.
// Slots skipped between added indices are written as absent; an added stream
// with empty content is a present, zero-length stream.
func (w *Writer) AddStream(index int, data []byte) error {
	if index < 0 || index > MaxStreams {
		return fmt.Errorf("%w: stream index %d", ErrTooManyStreams, index)
	}
	for len(w.streams) <= index {
		w.streams = append(w.streams, nil)
		w.present = append(w.present, false)
	}
	w.streams[index] = data
	w.present[index] = true
	return nil
}

// AddAbsentStream marks the slot at the given index absent, growing the slot
// count when needed. Skipped slots are absent by default; this only matters
// for trailing absent slots with no present stream after them.
func (w *Writer) AddAbsentStream(index int) error {
	if index < 0 || index > MaxStreams {
		return fmt.Errorf("%w: stream index %d", ErrTooManyStreams, index)
	}
	for len(w.streams) <= index {
		w.streams = append(w.streams, nil)
		w.present = append(w.present, false)
	}
	w.streams[index] = nil
	w.present[index] = false
	return nil
}

// NumStreams returns the number of stream slots added so far, absent slots
// included.
func (w *Writer) NumStreams() int {
	return len(w.streams)
}

// Finish writes the complete container to a new file at path. The write is
// all-or-nothing: any error leaves no valid container behind.
func (w *Writer) Finish(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := w.writeTo(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	return nil
}

func (w *Writer) writeTo(f *os.File) error {
	if !isValidBlockSize(w.blockSize) {
		return fmt.Errorf("%w: invalid block size %d", ErrMalformedSuperblock, w.blockSize)
	}
	if len(w.streams) > MaxStreams {
		return fmt.Errorf("%w: %d streams", ErrTooManyStreams, len(w.streams))
	}

	bs := newWritableBlockStore(f, w.blockSize)
	alloc := NewBlockAllocator(w.blockSize)

	// Data streams first, in index order, so block allocation is
	// deterministic.
	sizes := make([]uint32, len(w.streams))
	blockLists := make([][]uint32, len(w.streams))
	for i, data := range w.streams {
		if !w.present[i] {
			sizes[i] = absentStreamSize
			continue
		}
		if uint64(len(data)) >= absentStreamSize {
			return fmt.Errorf("%w: stream %d is %d bytes", ErrFileTooLarge, i, len(data))
		}
		sizes[i] = uint32(len(data))
		blocks, err := w.writeStreamData(bs, alloc, data)
		if err != nil {
			return fmt.Errorf("failed to write stream %d: %w", i, err)
		}
		blockLists[i] = blocks
		w.log.Debug("wrote stream",
			zap.Int("index", i),
			zap.Int("bytes", len(data)),
			zap.Int("blocks", len(blocks)))
	}

	// The directory is paginated last: its content depends on every other
	// stream's block list.
	dir := w.marshalDirectory(sizes, blockLists)
	dirBlocks, err := w.writeStreamData(bs, alloc, dir)
	if err != nil {
		return fmt.Errorf("failed to write directory: %w", err)
	}
	if uint32(len(dirBlocks)) > w.blockSize/4 {
		return fmt.Errorf("%w: %d directory blocks exceed single block map",
			ErrFileTooLarge, len(dirBlocks))
	}

	// Block map: one block listing the directory's blocks.
	blockMap := make([]byte, len(dirBlocks)*4)
	for i, idx := range dirBlocks {
		binary.LittleEndian.PutUint32(blockMap[i*4:], idx)
	}
	blockMapAddr := alloc.Allocate()
	if err := bs.WriteBlock(blockMapAddr, blockMap); err != nil {
		return fmt.Errorf("failed to write directory block map: %w", err)
	}

	numBlocks := alloc.NumBlocks()
	if err := alloc.writeFreeBlockMap(bs, 1); err != nil {
		return fmt.Errorf("failed to write free block map: %w", err)
	}

	sb := SuperBlock{
		BlockSize:         w.blockSize,
		FreeBlockMapBlock: 1,
		NumBlocks:         numBlocks,
		NumDirectoryBytes: uint32(len(dir)),
		BlockMapAddr:      blockMapAddr,
	}
	copy(sb.Magic[:], MSFMagic)
	if err := bs.WriteBlock(0, sb.Marshal()); err != nil {
		return fmt.Errorf("failed to write superblock: %w", err)
	}

	// Blocks reserved but never written (trailing FPM slots) must still be
	// inside the file.
	if err := f.Truncate(sb.FileSize()); err != nil {
		return fmt.Errorf("failed to size file: %w", err)
	}

	w.log.Debug("wrote MSF container",
		zap.Uint32("num_blocks", numBlocks),
		zap.Int("num_streams", len(w.streams)),
		zap.Uint32("directory_bytes", sb.NumDirectoryBytes))

	return nil
}

// writeStreamData allocates blocks for data and writes it out block by block.
func (w *Writer) writeStreamData(bs *blockStore, alloc *BlockAllocator, data []byte) ([]uint32, error) {
	n := (uint32(len(data)) + w.blockSize - 1) / w.blockSize
	blocks := alloc.AllocateN(n)
	for i, idx := range blocks {
		start := uint32(i) * w.blockSize
		end := start + w.blockSize
		if end > uint32(len(data)) {
			end = uint32(len(data))
		}
		if err := bs.WriteBlock(idx, data[start:end]); err != nil {
			return nil, err
		}
	}
	return blocks, nil
}

// marshalDirectory serializes the stream directory: stream count, sizes,
// then the block list of each present stream.
func (w *Writer) marshalDirectory(sizes []uint32, blockLists [][]uint32) []byte {
	n := 4 + 4*len(sizes)
	for _, blocks := range blockLists {
		n += 4 * len(blocks)
	}
	dir := make([]byte, 0, n)

	var scratch [4]byte
	put := func(v uint32) {
		binary.LittleEndian.PutUint32(scratch[:], v)
		dir = append(dir, scratch[:]...)
	}

	put(uint32(len(sizes)))
	for _, size := range sizes {
		put(size)
	}
	for _, blocks := range blockLists {
		for _, idx := range blocks {
			put(idx)
		}
	}
	return dir
}
