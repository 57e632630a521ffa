package cfdp

import (
	"github.com/opd-ai/cfdp/clist"
	"github.com/opd-ai/cfdp/pdu"
)

// Chunk is one contiguous byte range of a file, identified by offset and
// size.
type Chunk struct {
	Offset pdu.FileSize
	Size   pdu.FileSize
}

// End returns the exclusive end offset of the range.
func (c Chunk) End() pdu.FileSize { return c.Offset + c.Size }

// ChunkList tracks a set of non-overlapping file ranges in ascending offset
// order within a fixed capacity. Receivers use it to record which segments
// have arrived (gaps become NAK segment requests); senders use it to queue
// segments a NAK asked to be retransmitted.
//
// When the list is full and an incoming range cannot merge with a neighbor,
// the smallest tracked range is sacrificed. Dropping receive state only
// widens a gap, which a later NAK recovers, so precision degrades before
// anything is lost for good.
type ChunkList struct {
	chunks []Chunk
	count  int
}

// NewChunkList returns a list able to track up to capacity ranges. The
// backing store is allocated once, here.
func NewChunkList(capacity int) ChunkList {
	return ChunkList{chunks: make([]Chunk, capacity)}
}

// Reset forgets all tracked ranges.
func (cl *ChunkList) Reset() { cl.count = 0 }

// Count returns the number of tracked ranges.
func (cl *ChunkList) Count() int { return cl.count }

// First returns the lowest-offset range. It panics if the list is empty.
func (cl *ChunkList) First() Chunk {
	if cl.count == 0 {
		panic("cfdp: First on empty chunk list")
	}
	return cl.chunks[0]
}

// RemoveFirst drops the lowest-offset range.
func (cl *ChunkList) RemoveFirst() {
	if cl.count == 0 {
		panic("cfdp: RemoveFirst on empty chunk list")
	}
	copy(cl.chunks[0:], cl.chunks[1:cl.count])
	cl.count--
}

// Add records the range [offset, offset+size), merging it with any adjacent
// or overlapping neighbors. Zero-size ranges are ignored.
func (cl *ChunkList) Add(offset, size pdu.FileSize) {
	if size == 0 {
		return
	}
	end := offset + size

	// find the first chunk starting at or after offset
	i := 0
	for i < cl.count && cl.chunks[i].Offset < offset {
		i++
	}

	// merge with the predecessor if it reaches offset
	if i > 0 && cl.chunks[i-1].End() >= offset {
		i--
		if cl.chunks[i].End() >= end {
			return // fully contained
		}
		end = maxSize(end, cl.chunks[i].End())
		offset = cl.chunks[i].Offset
	} else if i < cl.count && end >= cl.chunks[i].Offset {
		// merge with the successor in place
		end = maxSize(end, cl.chunks[i].End())
	} else {
		// disjoint: insert at i
		if cl.count == len(cl.chunks) {
			cl.evictSmallest(Chunk{Offset: offset, Size: size})
			return
		}
		copy(cl.chunks[i+1:cl.count+1], cl.chunks[i:cl.count])
		cl.chunks[i] = Chunk{Offset: offset, Size: size}
		cl.count++
		return
	}

	// the merged range may now swallow following chunks
	j := i + 1
	for j < cl.count && cl.chunks[j].Offset <= end {
		end = maxSize(end, cl.chunks[j].End())
		j++
	}
	cl.chunks[i] = Chunk{Offset: offset, Size: end - offset}
	if j > i+1 {
		copy(cl.chunks[i+1:], cl.chunks[j:cl.count])
		cl.count -= j - (i + 1)
	}
}

// evictSmallest makes room for c by discarding the smallest tracked range,
// unless c itself is the smallest, in which case c is dropped.
func (cl *ChunkList) evictSmallest(c Chunk) {
	smallest := 0
	for i := 1; i < cl.count; i++ {
		if cl.chunks[i].Size < cl.chunks[smallest].Size {
			smallest = i
		}
	}
	if cl.chunks[smallest].Size >= c.Size {
		return
	}
	copy(cl.chunks[smallest:], cl.chunks[smallest+1:cl.count])
	cl.count--
	cl.Add(c.Offset, c.Size)
}

// ComputeGaps invokes fn for each untracked hole below total, starting at
// start, up to limit holes. It returns the number of holes reported. A
// receiver turns these into NAK segment requests.
func (cl *ChunkList) ComputeGaps(total, start pdu.FileSize, limit int, fn func(Chunk)) int {
	if start >= total || limit <= 0 {
		return 0
	}
	gaps := 0
	pos := start
	for i := 0; i < cl.count && gaps < limit; i++ {
		c := cl.chunks[i]
		if c.End() <= pos {
			continue
		}
		if c.Offset > pos {
			hi := minSize(c.Offset, total)
			if hi > pos {
				fn(Chunk{Offset: pos, Size: hi - pos})
				gaps++
			}
		}
		pos = maxSize(pos, c.End())
		if pos >= total {
			return gaps
		}
	}
	if gaps < limit && pos < total {
		fn(Chunk{Offset: pos, Size: total - pos})
		gaps++
	}
	return gaps
}

// Complete reports whether the tracked ranges cover [0, total) entirely.
func (cl *ChunkList) Complete(total pdu.FileSize) bool {
	if total == 0 {
		return true
	}
	return cl.count == 1 && cl.chunks[0].Offset == 0 && cl.chunks[0].Size >= total
}

// ChunkWrapper pools a ChunkList on a channel free list so transactions can
// borrow gap trackers without allocating.
type ChunkWrapper struct {
	node   clist.Node[*ChunkWrapper]
	chunks ChunkList
}

func maxSize(a, b pdu.FileSize) pdu.FileSize {
	if a > b {
		return a
	}
	return b
}

func minSize(a, b pdu.FileSize) pdu.FileSize {
	if a < b {
		return a
	}
	return b
}
