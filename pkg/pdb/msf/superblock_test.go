package msf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSuperBlock() *SuperBlock {
	sb := &SuperBlock{
		BlockSize:         4096,
		FreeBlockMapBlock: 1,
		NumBlocks:         10,
		NumDirectoryBytes: 100,
		BlockMapAddr:      3,
	}
	copy(sb.Magic[:], MSFMagic)
	return sb
}

func TestReadSuperBlockRoundTrip(t *testing.T) {
	sb := validSuperBlock()

	got, err := ReadSuperBlock(bytes.NewReader(sb.Marshal()))
	require.NoError(t, err)
	assert.Equal(t, sb, got)
}

func TestReadSuperBlockBadMagic(t *testing.T) {
	data := validSuperBlock().Marshal()
	data[0] = 'X'

	_, err := ReadSuperBlock(bytes.NewReader(data))
	require.ErrorIs(t, err, ErrMalformedSuperblock)
}

func TestReadSuperBlockBadBlockSize(t *testing.T) {
	for _, size := range []uint32{0, 256, 1000, 8192} {
		sb := validSuperBlock()
		sb.BlockSize = size

		_, err := ReadSuperBlock(bytes.NewReader(sb.Marshal()))
		assert.ErrorIs(t, err, ErrMalformedSuperblock, "block size %d", size)
	}
}

func TestReadSuperBlockBadFreeBlockMap(t *testing.T) {
	for _, fpm := range []uint32{0, 3, 7} {
		sb := validSuperBlock()
		sb.FreeBlockMapBlock = fpm

		_, err := ReadSuperBlock(bytes.NewReader(sb.Marshal()))
		assert.ErrorIs(t, err, ErrMalformedSuperblock, "FPM slot %d", fpm)
	}
}

func TestReadSuperBlockBlockMapOutOfRange(t *testing.T) {
	sb := validSuperBlock()
	sb.BlockMapAddr = sb.NumBlocks

	_, err := ReadSuperBlock(bytes.NewReader(sb.Marshal()))
	require.ErrorIs(t, err, ErrMalformedSuperblock)
}

func TestReadSuperBlockTruncated(t *testing.T) {
	data := validSuperBlock().Marshal()

	_, err := ReadSuperBlock(bytes.NewReader(data[:40]))
	require.Error(t, err)
}
