package streams

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfoBuilderRoundTrip(t *testing.T) {
	id := uuid.MustParse("12345678-9abc-def0-1122-334455667788")

	b := NewInfoBuilder(id, 0x5F0E1234)
	b.Age = 3
	b.AddNamedStream("/names", 9)
	b.AddNamedStream("/LinkInfo", 10)

	info, err := ReadPDBInfo(bytes.NewReader(b.Build()))
	require.NoError(t, err)

	assert.Equal(t, uint32(PDBStreamVersionVC70), info.Version)
	assert.Equal(t, uint32(0x5F0E1234), info.Signature)
	assert.Equal(t, uint32(3), info.Age)
	assert.Equal(t, id, info.UUID())
	assert.Equal(t, map[string]uint32{"/names": 9, "/LinkInfo": 10}, info.NamedStreams)
	assert.Equal(t, []uint32{PDBFeatureVC140}, info.Features)
	assert.True(t, info.HasIPI())
}

func TestInfoBuilderNoNamedStreams(t *testing.T) {
	b := NewInfoBuilder(uuid.New(), 1)

	info, err := ReadPDBInfo(bytes.NewReader(b.Build()))
	require.NoError(t, err)
	assert.Empty(t, info.NamedStreams)
}

func TestInfoBuilderExtraFeatures(t *testing.T) {
	b := NewInfoBuilder(uuid.New(), 1)
	b.AddFeature(PDBFeatureMinimalDebugInfo)

	info, err := ReadPDBInfo(bytes.NewReader(b.Build()))
	require.NoError(t, err)
	assert.Equal(t, []uint32{PDBFeatureVC140, PDBFeatureMinimalDebugInfo}, info.Features)
}

func TestReadPDBInfoUnsupportedVersion(t *testing.T) {
	data := NewInfoBuilder(uuid.New(), 1).Build()
	data[0] = 0x01

	_, err := ReadPDBInfo(bytes.NewReader(data))
	require.Error(t, err)
}

func TestReadPDBInfoTruncated(t *testing.T) {
	data := NewInfoBuilder(uuid.New(), 1).Build()

	_, err := ReadPDBInfo(bytes.NewReader(data[:20]))
	require.Error(t, err)

	// Header intact but named stream map cut off.
	_, err = ReadPDBInfo(bytes.NewReader(data[:28]))
	require.Error(t, err)
}

func TestGUIDStringMatchesUUID(t *testing.T) {
	id := uuid.MustParse("12345678-9abc-def0-1122-334455667788")
	b := NewInfoBuilder(id, 1)

	info, err := ReadPDBInfo(bytes.NewReader(b.Build()))
	require.NoError(t, err)
	assert.Equal(t, "123456789ABCDEF01122334455667788", info.GUIDString())
}
