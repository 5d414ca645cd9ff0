package msf

import (
	"fmt"
	"io"
)

// blockStore provides fixed-size block I/O over the underlying file.
// It performs no caching of its own; the MSF reader layers an optional
// cache on top.
type blockStore struct {
	r         io.ReaderAt
	w         io.WriterAt
	blockSize uint32
	numBlocks uint32
}

func newBlockStore(r io.ReaderAt, blockSize, numBlocks uint32) *blockStore {
	return &blockStore{r: r, blockSize: blockSize, numBlocks: numBlocks}
}

func newWritableBlockStore(w io.WriterAt, blockSize uint32) *blockStore {
	return &blockStore{w: w, blockSize: blockSize}
}

// ReadBlock reads the entire block at the given index.
func (bs *blockStore) ReadBlock(index uint32) ([]byte, error) {
	buf := make([]byte, bs.blockSize)
	if err := bs.ReadBlockAt(index, 0, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadBlockAt reads len(p) bytes starting at the given offset within a block.
// The read must not cross the block's end.
func (bs *blockStore) ReadBlockAt(index, offset uint32, p []byte) error {
	if index >= bs.numBlocks {
		return fmt.Errorf("%w: block %d of %d", ErrOutOfRange, index, bs.numBlocks)
	}
	if offset+uint32(len(p)) > bs.blockSize {
		return fmt.Errorf("%w: read of %d bytes at offset %d crosses block end",
			ErrOutOfRange, len(p), offset)
	}
	pos := int64(index)*int64(bs.blockSize) + int64(offset)
	if _, err := bs.r.ReadAt(p, pos); err != nil {
		return fmt.Errorf("failed to read block %d: %w", index, err)
	}
	return nil
}

// WriteBlock writes one block at the given index. Short data is zero-padded
// to the block size; data longer than a block is rejected.
func (bs *blockStore) WriteBlock(index uint32, data []byte) error {
	if uint32(len(data)) > bs.blockSize {
		return fmt.Errorf("%w: %d bytes into a %d byte block", ErrOutOfRange, len(data), bs.blockSize)
	}
	buf := data
	if uint32(len(data)) < bs.blockSize {
		buf = make([]byte, bs.blockSize)
		copy(buf, data)
	}
	pos := int64(index) * int64(bs.blockSize)
	if _, err := bs.w.WriteAt(buf, pos); err != nil {
		return fmt.Errorf("failed to write block %d: %w", index, err)
	}
	return nil
}
