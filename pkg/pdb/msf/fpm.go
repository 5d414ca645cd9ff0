package msf

import (
	"fmt"
)

// The free block map is stored as a bitmap spread over reserved blocks: every
// block whose index is congruent to 1 or 2 modulo the block size is an FPM
// block (two interleaved copies; the superblock names the active one). The
// k-th active FPM block covers blocks [k*8*blockSize, (k+1)*8*blockSize).
// On disk a set bit means the block is FREE, a clear bit means allocated.

// FreeBlockMap is the parsed free block map of an opened container.
type FreeBlockMap struct {
	bits      []byte
	numBlocks uint32
}

// readFreeBlockMap loads the active FPM copy named by the superblock.
func readFreeBlockMap(bs *blockStore, sb *SuperBlock) (*FreeBlockMap, error) {
	bitsPerBlock := sb.BlockSize * 8
	intervals := (sb.NumBlocks + bitsPerBlock - 1) / bitsPerBlock

	bits := make([]byte, 0, intervals*sb.BlockSize)
	for k := uint32(0); k < intervals; k++ {
		idx := k*sb.BlockSize + sb.FreeBlockMapBlock
		if idx >= sb.NumBlocks {
			return nil, fmt.Errorf("%w: FPM block %d beyond %d blocks",
				ErrMalformedSuperblock, idx, sb.NumBlocks)
		}
		block, err := bs.ReadBlock(idx)
		if err != nil {
			return nil, fmt.Errorf("failed to read FPM block %d: %w", idx, err)
		}
		bits = append(bits, block...)
	}

	return &FreeBlockMap{bits: bits, numBlocks: sb.NumBlocks}, nil
}

// IsAllocated reports whether the given block is marked allocated in the
// active FPM copy. Blocks beyond the block count are never allocated.
func (f *FreeBlockMap) IsAllocated(block uint32) bool {
	if block >= f.numBlocks {
		return false
	}
	byteIdx := block / 8
	if byteIdx >= uint32(len(f.bits)) {
		return false
	}
	return f.bits[byteIdx]&(1<<(block%8)) == 0
}

// BlockAllocator hands out free blocks for a single write operation. It
// skips the superblock and the reserved FPM blocks automatically and tracks
// which blocks it has given out so the final bitmap can be emitted. An
// allocator must not be reused across write operations.
type BlockAllocator struct {
	blockSize uint32
	allocated []bool
	cursor    uint32
	high      uint32 // highest allocated index
}

// NewBlockAllocator creates an allocator for a fresh container with the given
// block size. Block 0 (superblock) and the first FPM block pair are reserved
// up front.
func NewBlockAllocator(blockSize uint32) *BlockAllocator {
	a := &BlockAllocator{blockSize: blockSize}
	a.Reserve(0)
	a.Reserve(1)
	a.Reserve(2)
	return a
}

func (a *BlockAllocator) isReservedMeta(idx uint32) bool {
	if idx == 0 {
		return true
	}
	m := idx % a.blockSize
	return m == 1 || m == 2
}

func (a *BlockAllocator) grow(idx uint32) {
	for uint32(len(a.allocated)) <= idx {
		a.allocated = append(a.allocated, false)
	}
}

// Reserve marks a specific block as allocated.
func (a *BlockAllocator) Reserve(idx uint32) {
	a.grow(idx)
	a.allocated[idx] = true
	if idx > a.high {
		a.high = idx
	}
}

// Allocate returns the lowest-numbered free block and marks it allocated.
// Reserved meta blocks (superblock, FPM pairs) are claimed as they are
// passed over so they count as allocated in the final bitmap.
func (a *BlockAllocator) Allocate() uint32 {
	for {
		idx := a.cursor
		a.cursor++
		a.grow(idx)
		if a.isReservedMeta(idx) {
			a.Reserve(idx)
			continue
		}
		if a.allocated[idx] {
			continue
		}
		a.Reserve(idx)
		return idx
	}
}

// AllocateN allocates n blocks in ascending order.
func (a *BlockAllocator) AllocateN(n uint32) []uint32 {
	blocks := make([]uint32, n)
	for i := range blocks {
		blocks[i] = a.Allocate()
	}
	return blocks
}

// IsAllocated reports whether the allocator has handed out or reserved the block.
func (a *BlockAllocator) IsAllocated(idx uint32) bool {
	return idx < uint32(len(a.allocated)) && a.allocated[idx]
}

// NumBlocks returns the total block count for the superblock: one past the
// highest allocated block.
func (a *BlockAllocator) NumBlocks() uint32 {
	return a.high + 1
}

// writeFreeBlockMap emits both FPM copies for every interval the container
// spans: the active copy carries the real bitmap, the inactive copy is left
// fully free for this write generation.
func (a *BlockAllocator) writeFreeBlockMap(bs *blockStore, activeSlot uint32) error {
	numBlocks := a.NumBlocks()
	bitsPerBlock := a.blockSize * 8
	intervals := (numBlocks + bitsPerBlock - 1) / bitsPerBlock

	freeFill := make([]byte, a.blockSize)
	for i := range freeFill {
		freeFill[i] = 0xFF
	}

	inactiveSlot := uint32(3) - activeSlot

	for k := uint32(0); k < intervals; k++ {
		buf := make([]byte, a.blockSize)
		copy(buf, freeFill)
		base := k * bitsPerBlock
		for bit := uint32(0); bit < bitsPerBlock && base+bit < numBlocks; bit++ {
			if a.IsAllocated(base + bit) {
				buf[bit/8] &^= 1 << (bit % 8)
			}
		}
		if err := bs.WriteBlock(k*a.blockSize+activeSlot, buf); err != nil {
			return err
		}
		if err := bs.WriteBlock(k*a.blockSize+inactiveSlot, freeFill); err != nil {
			return err
		}
	}
	return nil
}
