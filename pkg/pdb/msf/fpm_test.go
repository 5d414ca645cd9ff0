package msf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocatorSkipsMetaBlocks(t *testing.T) {
	a := NewBlockAllocator(512)

	// Blocks 0 (superblock), 1 and 2 (FPM pair) are reserved up front.
	assert.Equal(t, uint32(3), a.Allocate())
	assert.Equal(t, uint32(4), a.Allocate())

	// Allocate enough to cross the next FPM pair at 513/514.
	var last uint32
	for i := 0; i < 512; i++ {
		last = a.Allocate()
	}
	assert.Equal(t, uint32(518), last)
	assert.True(t, a.IsAllocated(513), "passed-over FPM block counts as allocated")
	assert.True(t, a.IsAllocated(514))
	assert.False(t, a.IsAllocated(519))
}

func TestAllocatorNoDoubleAllocation(t *testing.T) {
	a := NewBlockAllocator(512)

	seen := make(map[uint32]bool)
	for _, idx := range a.AllocateN(2000) {
		require.False(t, seen[idx], "block %d allocated twice", idx)
		require.False(t, a.isReservedMeta(idx), "meta block %d handed out", idx)
		seen[idx] = true
	}
}

func TestAllocatorNumBlocksCoversAll(t *testing.T) {
	a := NewBlockAllocator(4096)
	blocks := a.AllocateN(100)

	n := a.NumBlocks()
	for _, idx := range blocks {
		assert.Less(t, idx, n)
	}
	// Every index below NumBlocks is either handed out or reserved meta.
	for idx := uint32(0); idx < n; idx++ {
		assert.True(t, a.IsAllocated(idx), "gap at block %d", idx)
	}
}
