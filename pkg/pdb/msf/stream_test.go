package msf

import (
	"io"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStream(t *testing.T, blockSize uint32, data []byte) (*MSF, *Stream) {
	t.Helper()
	path := writeContainer(t, blockSize, map[int][]byte{0: data})
	m, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	s, err := m.Stream(0)
	require.NoError(t, err)
	return m, s
}

func TestStreamReaderCrossesBlockBoundary(t *testing.T) {
	data := pattern(512*3+100, 9)
	_, s := openStream(t, 512, data)

	r := NewStreamReader(s)

	// A single read spanning the first block boundary.
	_, err := r.Seek(510, io.SeekStart)
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(r, buf)
	require.NoError(t, err)
	assert.Equal(t, data[510:514], buf)

	// Reads of one byte each side of every boundary.
	for _, off := range []int64{511, 512, 513, 1023, 1024, 1025} {
		_, err := r.Seek(off, io.SeekStart)
		require.NoError(t, err)
		one := make([]byte, 1)
		_, err = io.ReadFull(r, one)
		require.NoError(t, err)
		assert.Equal(t, data[off], one[0], "offset %d", off)
	}
}

func TestStreamReaderSeek(t *testing.T) {
	data := pattern(1000, 2)
	_, s := openStream(t, 512, data)
	r := NewStreamReader(s)

	off, err := r.Seek(-10, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(990), off)

	buf := make([]byte, 20)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, data[990:], buf[:10])

	_, err = r.Read(buf)
	assert.ErrorIs(t, err, io.EOF)

	// Positions clamp to [0, size].
	off, err = r.Seek(-5000, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(0), off)
	off, err = r.Seek(5000, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), off)

	_, err = r.Seek(0, 42)
	assert.Error(t, err)
}

func TestStreamReaderEmptyStream(t *testing.T) {
	_, s := openStream(t, 512, nil)
	r := NewStreamReader(s)

	buf := make([]byte, 8)
	_, err := r.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

// Any way of slicing a stream read produces the same bytes as one contiguous
// read, regardless of where the slices land relative to block boundaries.
func TestStreamReadOffsetsProperty(t *testing.T) {
	data := pattern(512*4+37, 5)
	_, s := openStream(t, 512, data)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("ranged read matches ReadAll slice", prop.ForAll(
		func(offset, length int) bool {
			if offset+length > len(data) {
				length = len(data) - offset
			}
			r := NewStreamReader(s)
			if _, err := r.Seek(int64(offset), io.SeekStart); err != nil {
				return false
			}
			buf := make([]byte, length)
			if _, err := io.ReadFull(r, buf); err != nil {
				return false
			}
			return assert.ObjectsAreEqual(data[offset:offset+length], buf)
		},
		gen.IntRange(0, len(data)-1),
		gen.IntRange(0, len(data)),
	))

	properties.TestingRun(t)
}
