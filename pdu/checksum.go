package pdu

import "hash/crc32"

// Checksum accumulates a CFDP file checksum incrementally. Data may be fed
// in any order and with any alignment; each octet contributes at the lane
// determined by its absolute file offset, so out-of-order class 2 segments
// sum to the same value as an in-order pass.
//
// The modular algorithm is the 727.0-B section 4.2.2 sum of aligned 32-bit
// words; CRC-32 is the IEEE polynomial over in-order data only and is
// therefore restricted to class 1 reception and sending; the null checksum
// always verifies.
type Checksum struct {
	kind ChecksumType
	sum  uint32
	crc  uint32
}

// NewChecksum returns an accumulator for the given algorithm.
func NewChecksum(kind ChecksumType) Checksum {
	return Checksum{kind: kind}
}

// Supported reports whether this implementation can compute kind.
func Supported(kind ChecksumType) bool {
	switch kind {
	case ChecksumModular, ChecksumCRC32, ChecksumNull:
		return true
	}
	return false
}

// Type returns the algorithm this accumulator computes.
func (c *Checksum) Type() ChecksumType { return c.kind }

// Reset clears the accumulated value, keeping the algorithm.
func (c *Checksum) Reset() {
	c.sum = 0
	c.crc = 0
}

// Digest folds data starting at absolute file offset into the checksum.
func (c *Checksum) Digest(offset FileSize, data []byte) {
	switch c.kind {
	case ChecksumModular:
		for i, b := range data {
			lane := (uint32(offset) + uint32(i)) & 3
			c.sum += uint32(b) << ((3 - lane) * 8)
		}
	case ChecksumCRC32:
		c.crc = crc32.Update(c.crc, crc32.IEEETable, data)
	case ChecksumNull:
		// nothing to accumulate
	}
}

// Sum returns the accumulated checksum value as carried in an EOF PDU.
func (c *Checksum) Sum() uint32 {
	if c.kind == ChecksumCRC32 {
		return c.crc
	}
	return c.sum
}

// Matches reports whether the accumulated value equals expected. The null
// checksum matches anything.
func (c *Checksum) Matches(expected uint32) bool {
	if c.kind == ChecksumNull {
		return true
	}
	return c.Sum() == expected
}
