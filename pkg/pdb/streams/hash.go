package streams

import (
	"encoding/binary"
	"fmt"
)

// HashV1 is the original PDB string hash, used for TPI hash buckets and the
// named stream map. Folds the input as little-endian words, then mixes with
// the case-folding mask.
func HashV1(data []byte) uint32 {
	var hash uint32
	for len(data) >= 4 {
		hash ^= binary.LittleEndian.Uint32(data)
		data = data[4:]
	}
	if len(data) >= 2 {
		hash ^= uint32(binary.LittleEndian.Uint16(data))
		data = data[2:]
	}
	if len(data) == 1 {
		hash ^= uint32(data[0])
	}

	hash |= 0x20202020
	hash ^= hash >> 11
	return hash ^ (hash >> 16)
}

// hashTable is the serialized hash table embedded in the PDB info stream:
// size, capacity, present and deleted bit vectors, then the present
// key-value pairs in slot order.
type hashTable struct {
	entries []hashEntry
}

type hashEntry struct {
	Key uint32
	Val uint32
}

func (t *hashTable) put(key, val uint32) {
	t.entries = append(t.entries, hashEntry{Key: key, Val: val})
}

func (t *hashTable) append(buf []byte) []byte {
	size := uint32(len(t.entries))
	cap := size
	if cap < 8 {
		cap = 8
	}

	buf = appendU32(buf, size)
	buf = appendU32(buf, cap)
	buf = appendFilledBitVector(buf, size)
	buf = appendU32(buf, 0) // deleted bit vector, no words
	for _, e := range t.entries {
		buf = appendU32(buf, e.Key)
		buf = appendU32(buf, e.Val)
	}
	return buf
}

// appendFilledBitVector emits a bit vector with the first n bits set:
// a word count then the packed words.
func appendFilledBitVector(buf []byte, n uint32) []byte {
	words := (n + 31) / 32
	buf = appendU32(buf, words)
	bits := make([]byte, words*4)
	for i := uint32(0); i < n; i++ {
		bits[i/8] |= 1 << (i % 8)
	}
	return append(buf, bits...)
}

// parseHashTable reads a serialized hash table, returning the present
// entries and the number of bytes consumed.
func parseHashTable(data []byte) ([]hashEntry, int, error) {
	if len(data) < 8 {
		return nil, 0, fmt.Errorf("hash table truncated at header")
	}
	size := binary.LittleEndian.Uint32(data[0:])
	offset := 8

	for _, name := range []string{"present", "deleted"} {
		if offset+4 > len(data) {
			return nil, 0, fmt.Errorf("hash table truncated at %s bit vector", name)
		}
		words := binary.LittleEndian.Uint32(data[offset:])
		offset += 4 + int(words)*4
		if offset > len(data) {
			return nil, 0, fmt.Errorf("hash table truncated in %s bit vector", name)
		}
	}

	if offset+int(size)*8 > len(data) {
		return nil, 0, fmt.Errorf("hash table truncated at entries")
	}
	entries := make([]hashEntry, size)
	for i := range entries {
		entries[i] = hashEntry{
			Key: binary.LittleEndian.Uint32(data[offset:]),
			Val: binary.LittleEndian.Uint32(data[offset+4:]),
		}
		offset += 8
	}
	return entries, offset, nil
}

func appendU32(buf []byte, v uint32) []byte {
	var scratch [4]byte
	binary.LittleEndian.PutUint32(scratch[:], v)
	return append(buf, scratch[:]...)
}
