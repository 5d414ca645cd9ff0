// Package msf implements the Multi-Stream Format (MSF) container underlying
// Microsoft PDB files: a block-addressed virtual filesystem with a free block
// map, a stream directory, and streaming access to individual streams.
package msf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MSF 7.00 magic signature
var MSFMagic = []byte("Microsoft C/C++ MSF 7.00\r\n\x1aDS\x00\x00\x00")

// SuperBlock is the header structure at the beginning of an MSF file.
// It contains metadata needed to navigate the file's stream structure.
type SuperBlock struct {
	Magic             [32]byte // Must be MSFMagic
	BlockSize         uint32   // Block size in bytes (512, 1024, 2048, or 4096)
	FreeBlockMapBlock uint32   // Index of active FPM block (1 or 2)
	NumBlocks         uint32   // Total number of blocks in file
	NumDirectoryBytes uint32   // Size of stream directory in bytes
	Unknown           uint32   // Reserved/unknown field
	BlockMapAddr      uint32   // Block index containing the stream directory block map
}

// SuperBlockSize is the size of the SuperBlock structure in bytes.
const SuperBlockSize = 56

// ValidBlockSizes are the allowed block sizes for MSF files.
var ValidBlockSizes = []uint32{512, 1024, 2048, 4096}

// ReadSuperBlock reads and validates the SuperBlock from the beginning of an MSF file.
func ReadSuperBlock(r io.Reader) (*SuperBlock, error) {
	var sb SuperBlock

	if _, err := io.ReadFull(r, sb.Magic[:]); err != nil {
		return nil, fmt.Errorf("failed to read magic: %w", err)
	}

	if !bytes.Equal(sb.Magic[:], MSFMagic) {
		return nil, fmt.Errorf("%w: invalid magic, not a PDB file", ErrMalformedSuperblock)
	}

	fields := []*uint32{
		&sb.BlockSize,
		&sb.FreeBlockMapBlock,
		&sb.NumBlocks,
		&sb.NumDirectoryBytes,
		&sb.Unknown,
		&sb.BlockMapAddr,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return nil, fmt.Errorf("failed to read superblock fields: %w", err)
		}
	}

	if !isValidBlockSize(sb.BlockSize) {
		return nil, fmt.Errorf("%w: invalid block size %d", ErrMalformedSuperblock, sb.BlockSize)
	}

	if sb.FreeBlockMapBlock != 1 && sb.FreeBlockMapBlock != 2 {
		return nil, fmt.Errorf("%w: FreeBlockMapBlock %d (must be 1 or 2)",
			ErrMalformedSuperblock, sb.FreeBlockMapBlock)
	}

	if sb.BlockMapAddr >= sb.NumBlocks {
		return nil, fmt.Errorf("%w: BlockMapAddr %d beyond %d blocks",
			ErrMalformedSuperblock, sb.BlockMapAddr, sb.NumBlocks)
	}

	return &sb, nil
}

// Marshal serializes the superblock into its 56-byte on-disk form.
func (sb *SuperBlock) Marshal() []byte {
	buf := make([]byte, SuperBlockSize)
	copy(buf, sb.Magic[:])
	binary.LittleEndian.PutUint32(buf[32:], sb.BlockSize)
	binary.LittleEndian.PutUint32(buf[36:], sb.FreeBlockMapBlock)
	binary.LittleEndian.PutUint32(buf[40:], sb.NumBlocks)
	binary.LittleEndian.PutUint32(buf[44:], sb.NumDirectoryBytes)
	binary.LittleEndian.PutUint32(buf[48:], sb.Unknown)
	binary.LittleEndian.PutUint32(buf[52:], sb.BlockMapAddr)
	return buf
}

// NumDirectoryBlocks returns the number of blocks needed to store the stream
// directory. The division is done in 64 bits so byte counts near the top of
// the 32-bit range cannot wrap to a small block count.
func (sb *SuperBlock) NumDirectoryBlocks() uint32 {
	return uint32((uint64(sb.NumDirectoryBytes) + uint64(sb.BlockSize) - 1) / uint64(sb.BlockSize))
}

// FileSize returns the expected file size based on block count.
func (sb *SuperBlock) FileSize() int64 {
	return int64(sb.NumBlocks) * int64(sb.BlockSize)
}

func isValidBlockSize(size uint32) bool {
	for _, valid := range ValidBlockSizes {
		if size == valid {
			return true
		}
	}
	return false
}
