package pdu

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModularChecksumKnownValue(t *testing.T) {
	// one aligned word sums as itself
	c := NewChecksum(ChecksumModular)
	c.Digest(0, []byte{0x01, 0x02, 0x03, 0x04})
	assert.Equal(t, uint32(0x01020304), c.Sum())

	// a trailing partial word is zero-padded on the right
	c.Reset()
	c.Digest(0, []byte{0x01, 0x02, 0x03, 0x04, 0xFF})
	want := uint32(0x01020304)
	want += uint32(0xFF000000)
	assert.Equal(t, want, c.Sum())
}

func TestModularChecksumOrderIndependent(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog pack")

	inOrder := NewChecksum(ChecksumModular)
	inOrder.Digest(0, data)

	// feed the same bytes as misaligned out-of-order segments
	scrambled := NewChecksum(ChecksumModular)
	scrambled.Digest(17, data[17:30])
	scrambled.Digest(0, data[:17])
	scrambled.Digest(30, data[30:])

	assert.Equal(t, inOrder.Sum(), scrambled.Sum())
}

func TestCRC32MatchesStdlib(t *testing.T) {
	data := []byte("payload under test")
	c := NewChecksum(ChecksumCRC32)
	c.Digest(0, data[:7])
	c.Digest(7, data[7:])
	assert.Equal(t, crc32.ChecksumIEEE(data), c.Sum())
}

func TestNullChecksumMatchesAnything(t *testing.T) {
	c := NewChecksum(ChecksumNull)
	c.Digest(0, []byte{1, 2, 3})
	assert.True(t, c.Matches(0))
	assert.True(t, c.Matches(0xFFFFFFFF))
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported(ChecksumModular))
	assert.True(t, Supported(ChecksumCRC32))
	assert.True(t, Supported(ChecksumNull))
	assert.False(t, Supported(ChecksumType(7)))
}

func TestMatches(t *testing.T) {
	c := NewChecksum(ChecksumModular)
	c.Digest(0, []byte{0, 0, 0, 42})
	assert.True(t, c.Matches(42))
	assert.False(t, c.Matches(43))
}
