package msf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// Absent stream sentinel in the directory: the slot exists but holds no stream.
const absentStreamSize = 0xFFFFFFFF

// MSF represents an opened MSF (Multi-Stream Format) file.
//
// A single MSF value is not safe for concurrent mutation, but once opened all
// of its state is read-only; concurrent reads of different streams are safe.
type MSF struct {
	file       *os.File
	blocks     *blockStore
	superBlock *SuperBlock
	fpm        *FreeBlockMap
	directory  *StreamDirectory
	streams    []*Stream

	cache *lru.Cache[uint32, []byte]
	log   *zap.Logger
}

// Option configures an MSF container on open.
type Option func(*MSF)

// WithBlockCache enables an LRU cache of n decoded blocks on the reader.
func WithBlockCache(n int) Option {
	return func(m *MSF) {
		if n > 0 {
			// lru.New only fails for non-positive sizes
			m.cache, _ = lru.New[uint32, []byte](n)
		}
	}
}

// WithLogger attaches a logger; a nop logger is used otherwise.
func WithLogger(log *zap.Logger) Option {
	return func(m *MSF) {
		if log != nil {
			m.log = log
		}
	}
}

// Open opens an MSF file and parses its structure.
func Open(path string, opts ...Option) (*MSF, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	msf := &MSF{file: f, log: zap.NewNop()}
	for _, opt := range opts {
		opt(msf)
	}

	msf.superBlock, err = ReadSuperBlock(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read superblock: %w", err)
	}
	msf.blocks = newBlockStore(f, msf.superBlock.BlockSize, msf.superBlock.NumBlocks)

	msf.fpm, err = readFreeBlockMap(msf.blocks, msf.superBlock)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read free block map: %w", err)
	}

	if err := msf.readStreamDirectory(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read stream directory: %w", err)
	}

	msf.buildStreams()

	msf.log.Debug("opened MSF container",
		zap.Uint32("block_size", msf.superBlock.BlockSize),
		zap.Uint32("num_blocks", msf.superBlock.NumBlocks),
		zap.Uint32("num_streams", msf.directory.NumStreams))

	return msf, nil
}

// Close closes the MSF file. Streams obtained from this container become
// invalid once it is closed.
func (m *MSF) Close() error {
	if m.file != nil {
		return m.file.Close()
	}
	return nil
}

// SuperBlock returns the MSF SuperBlock.
func (m *MSF) SuperBlock() *SuperBlock {
	return m.superBlock
}

// FreeBlockMap returns the parsed active free block map.
func (m *MSF) FreeBlockMap() *FreeBlockMap {
	return m.fpm
}

// NumStreams returns the number of stream slots in the file, including
// absent ones.
func (m *MSF) NumStreams() int {
	return int(m.directory.NumStreams)
}

// StreamAbsent reports whether the slot at the given index holds no stream.
// Absent slots are distinct from zero-length streams and must survive a
// rewrite as absent.
func (m *MSF) StreamAbsent(index int) bool {
	return index >= 0 && index < len(m.streams) && m.streams[index].absent
}

// Stream returns the stream at the given index. Absent slots and
// out-of-range indices yield ErrNoSuchStream.
func (m *MSF) Stream(index int) (*Stream, error) {
	if index < 0 || index >= len(m.streams) {
		return nil, fmt.Errorf("%w: index %d of %d", ErrNoSuchStream, index, len(m.streams))
	}
	if m.streams[index].absent {
		return nil, fmt.Errorf("%w: stream %d is absent", ErrNoSuchStream, index)
	}
	return m.streams[index], nil
}

// StreamReader returns a reader positioned at the start of the stream at the
// given index.
func (m *MSF) StreamReader(index int) (*StreamReader, error) {
	s, err := m.Stream(index)
	if err != nil {
		return nil, err
	}
	return NewStreamReader(s), nil
}

// BlockSize returns the block size used by this MSF file.
func (m *MSF) BlockSize() uint32 {
	return m.superBlock.BlockSize
}

// readBlockAt reads len(p) bytes at the given offset within one block,
// consulting the block cache when enabled.
func (m *MSF) readBlockAt(index, offset uint32, p []byte) error {
	if m.cache == nil {
		return m.blocks.ReadBlockAt(index, offset, p)
	}
	block, ok := m.cache.Get(index)
	if !ok {
		var err error
		block, err = m.blocks.ReadBlock(index)
		if err != nil {
			return err
		}
		m.cache.Add(index, block)
	}
	if offset+uint32(len(p)) > uint32(len(block)) {
		return fmt.Errorf("%w: read of %d bytes at offset %d crosses block end",
			ErrOutOfRange, len(p), offset)
	}
	copy(p, block[offset:])
	return nil
}

// readStreamDirectory reads and parses the stream directory. The directory's
// own block list lives in the block map block named by the superblock.
func (m *MSF) readStreamDirectory() error {
	sb := m.superBlock
	numDirBlocks := sb.NumDirectoryBlocks()

	// A single-level block map: the directory block list must fit one block.
	if numDirBlocks > sb.BlockSize/4 {
		return fmt.Errorf("%w: %d directory blocks exceed single block map",
			ErrMalformedDirectory, numDirBlocks)
	}

	mapData, err := m.blocks.ReadBlock(sb.BlockMapAddr)
	if err != nil {
		return fmt.Errorf("failed to read directory block map: %w", err)
	}

	dirBlocks := make([]uint32, numDirBlocks)
	for i := range dirBlocks {
		dirBlocks[i] = binary.LittleEndian.Uint32(mapData[i*4:])
	}

	// Concatenate the directory's blocks into one logical buffer.
	dirData := make([]byte, sb.NumDirectoryBytes)
	read := uint32(0)
	for _, idx := range dirBlocks {
		if idx >= sb.NumBlocks {
			return fmt.Errorf("%w: directory block %d beyond %d blocks",
				ErrMalformedDirectory, idx, sb.NumBlocks)
		}
		n := sb.BlockSize
		if read+n > sb.NumDirectoryBytes {
			n = sb.NumDirectoryBytes - read
		}
		if err := m.blocks.ReadBlockAt(idx, 0, dirData[read:read+n]); err != nil {
			return fmt.Errorf("failed to read directory block %d: %w", idx, err)
		}
		read += n
	}

	dir, err := parseStreamDirectory(dirData, sb.BlockSize, sb.NumBlocks)
	if err != nil {
		return err
	}
	m.directory = dir

	return m.verifyAllocation(dirBlocks)
}

// parseStreamDirectory decodes the concatenated directory buffer: stream
// count, stream sizes, then one block list per present stream.
func parseStreamDirectory(data []byte, blockSize, numBlocks uint32) (*StreamDirectory, error) {
	r := bytes.NewReader(data)

	var numStreams uint32
	if err := binary.Read(r, binary.LittleEndian, &numStreams); err != nil {
		return nil, fmt.Errorf("%w: missing stream count", ErrMalformedDirectory)
	}

	if uint64(numStreams)*4 > uint64(len(data)) {
		return nil, fmt.Errorf("%w: %d streams exceed directory buffer", ErrMalformedDirectory, numStreams)
	}

	streamSizes := make([]uint32, numStreams)
	for i := uint32(0); i < numStreams; i++ {
		if err := binary.Read(r, binary.LittleEndian, &streamSizes[i]); err != nil {
			return nil, fmt.Errorf("%w: truncated stream sizes at %d", ErrMalformedDirectory, i)
		}
	}

	streamBlocks := make([][]uint32, numStreams)
	for i := uint32(0); i < numStreams; i++ {
		size := streamSizes[i]
		if size == absentStreamSize {
			streamBlocks[i] = nil
			continue
		}
		// 64-bit ceil so sizes just below the absent sentinel cannot wrap to
		// an empty block list; the list must also fit the unread directory
		// bytes.
		n := (uint64(size) + uint64(blockSize) - 1) / uint64(blockSize)
		if n*4 > uint64(r.Len()) {
			return nil, fmt.Errorf("%w: stream %d of %d bytes needs %d blocks beyond directory buffer",
				ErrMalformedDirectory, i, size, n)
		}
		blocks := make([]uint32, n)
		for j := range blocks {
			if err := binary.Read(r, binary.LittleEndian, &blocks[j]); err != nil {
				return nil, fmt.Errorf("%w: truncated block list for stream %d", ErrMalformedDirectory, i)
			}
			if blocks[j] >= numBlocks {
				return nil, fmt.Errorf("%w: stream %d references block %d beyond %d blocks",
					ErrMalformedDirectory, i, blocks[j], numBlocks)
			}
		}
		streamBlocks[i] = blocks
	}

	return &StreamDirectory{
		NumStreams:   numStreams,
		StreamSizes:  streamSizes,
		StreamBlocks: streamBlocks,
	}, nil
}

// verifyAllocation checks that every block referenced by the directory or by
// any stream is marked allocated in the active free block map.
func (m *MSF) verifyAllocation(dirBlocks []uint32) error {
	check := func(what string, idx uint32) error {
		if !m.fpm.IsAllocated(idx) {
			return fmt.Errorf("%w: %s references free block %d", ErrMalformedDirectory, what, idx)
		}
		return nil
	}

	if err := check("block map", m.superBlock.BlockMapAddr); err != nil {
		return err
	}
	for _, idx := range dirBlocks {
		if err := check("directory", idx); err != nil {
			return err
		}
	}
	for i, blocks := range m.directory.StreamBlocks {
		for _, idx := range blocks {
			if err := check(fmt.Sprintf("stream %d", i), idx); err != nil {
				return err
			}
		}
	}
	return nil
}

// buildStreams creates Stream objects for all slots in the directory.
func (m *MSF) buildStreams() {
	m.streams = make([]*Stream, m.directory.NumStreams)
	for i := uint32(0); i < m.directory.NumStreams; i++ {
		size := m.directory.StreamSizes[i]
		if size == absentStreamSize {
			m.streams[i] = &Stream{msf: m, absent: true}
			continue
		}
		m.streams[i] = &Stream{
			msf:    m,
			size:   size,
			blocks: m.directory.StreamBlocks[i],
		}
	}
}
