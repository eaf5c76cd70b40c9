package matcher

import (
	"encoding/binary"
	"fmt"
)

const (
	// MinMatch is the shortest match the block format can express.
	MinMatch = 4

	// MaxDistance is the largest offset a sequence can carry.
	MaxDistance = 65535

	// MaxDictSize is the amount of history that can still be referenced.
	MaxDictSize = 64 * 1024

	// startOffset keeps every real position above zero, so a zero entry in
	// the hash table never points into the window.
	startOffset = 64 * 1024

	// resetThreshold bounds how far positions may grow before a reset
	// clears the tables and starts again from startOffset.
	resetThreshold = 1 << 30
)

// InvariantError reports a read outside the window. It signals a bug in the
// caller and is raised with panic; compressors recover it at their entry
// point and turn it into an ordinary error.
type InvariantError struct {
	Op   string
	Pos  uint32
	Low  uint32
	High uint32
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("matcher: %s at position %d outside window [%d, %d)", e.Op, e.Pos, e.Low, e.High)
}

// Segment identifies which of the two window buffers holds a position.
type Segment int

const (
	SegmentDict Segment = iota
	SegmentCurrent
)

// Window maps stream positions onto the two byte ranges the matcher reads.
// The dictionary segment ends at position dictLimit-1 and the current
// segment starts at dictLimit. Positions below lowLimit are out of reach.
type Window struct {
	dict      []byte
	cur       []byte
	lowLimit  uint32
	dictLimit uint32
}

// LowLimit returns the lowest readable position.
func (w *Window) LowLimit() uint32 { return w.lowLimit }

// DictLimit returns the position of the first byte of the current segment.
func (w *Window) DictLimit() uint32 { return w.dictLimit }

// End returns the position one past the last byte of the current segment.
func (w *Window) End() uint32 { return w.dictLimit + uint32(len(w.cur)) }

// Pos converts an index into the current segment to a position.
func (w *Window) Pos(i int) uint32 { return w.dictLimit + uint32(i) }

// Index converts a position in the current segment to a slice index.
func (w *Window) Index(p uint32) int {
	if p < w.dictLimit || p > w.End() {
		panic(&InvariantError{Op: "index", Pos: p, Low: w.dictLimit, High: w.End()})
	}
	return int(p - w.dictLimit)
}

// Contains reports whether p can be read.
func (w *Window) Contains(p uint32) bool {
	return p >= w.lowLimit && p < w.End()
}

// Insertable reports whether a four byte sequence starting at p lies
// entirely inside the window.
func (w *Window) Insertable(p uint32) bool {
	return p >= w.lowLimit && uint64(p)+MinMatch <= uint64(w.End())
}

// Clip limits a length n starting at p so it does not run past limit.
func (w *Window) Clip(p uint32, n int, limit uint32) int {
	if p >= limit {
		return 0
	}
	if room := int(limit - p); n > room {
		return room
	}
	return n
}

// Locate resolves p to a segment and an index inside that segment.
func (w *Window) Locate(p uint32) (Segment, int) {
	if !w.Contains(p) {
		panic(&InvariantError{Op: "read", Pos: p, Low: w.lowLimit, High: w.End()})
	}
	if p >= w.dictLimit {
		return SegmentCurrent, int(p - w.dictLimit)
	}
	return SegmentDict, len(w.dict) - int(w.dictLimit-p)
}

// ByteAt returns the byte stored at p.
func (w *Window) ByteAt(p uint32) byte {
	seg, i := w.Locate(p)
	if seg == SegmentCurrent {
		return w.cur[i]
	}
	return w.dict[i]
}

// Read32 returns the little endian word starting at p. Words that straddle
// the two segments are assembled byte by byte.
func (w *Window) Read32(p uint32) uint32 {
	if p >= w.dictLimit {
		if i := int(p - w.dictLimit); i+4 <= len(w.cur) {
			return binary.LittleEndian.Uint32(w.cur[i:])
		}
	} else if p >= w.lowLimit && p+4 <= w.dictLimit {
		i := len(w.dict) - int(w.dictLimit-p)
		return binary.LittleEndian.Uint32(w.dict[i:])
	}
	return uint32(w.ByteAt(p)) | uint32(w.ByteAt(p+1))<<8 |
		uint32(w.ByteAt(p+2))<<16 | uint32(w.ByteAt(p+3))<<24
}

// equal16 compares the two bytes at a and b. Pairs that are not fully
// readable compare equal so the caller falls back to the full check.
func (w *Window) equal16(a, b int64) bool {
	if a < int64(w.lowLimit) || b < int64(w.lowLimit) || a+2 > int64(w.End()) || b+2 > int64(w.End()) {
		return true
	}
	pa, pb := uint32(a), uint32(b)
	return w.ByteAt(pa) == w.ByteAt(pb) && w.ByteAt(pa+1) == w.ByteAt(pb+1)
}

// Count returns how many bytes starting at ip equal the bytes starting at
// match, stopping at limit. ip and limit must lie in the current segment.
// A match that starts in the dictionary continues into the current segment
// once it reaches dictLimit.
func (w *Window) Count(ip, match, limit uint32) int {
	if ip >= limit || match >= ip {
		return 0
	}
	src := w.cur[w.Index(ip):w.Index(limit)]
	n := 0
	if match < w.dictLimit {
		_, mi := w.Locate(match)
		ref := w.dict[mi:]
		n = countCommon(src, ref)
		if n < len(ref) || n == len(src) {
			return n
		}
		src = src[n:]
		match = w.dictLimit
	}
	return n + countCommon(src, w.cur[match-w.dictLimit:])
}

// CountBack returns how many bytes before ip equal the bytes before match,
// without moving ip below ipLow or match below matchLow.
func (w *Window) CountBack(ip, match, ipLow, matchLow uint32) int {
	if matchLow < w.lowLimit {
		matchLow = w.lowLimit
	}
	back := uint32(0)
	for ip-back > ipLow && match-back > matchLow && w.ByteAt(ip-back-1) == w.ByteAt(match-back-1) {
		back++
	}
	return int(back)
}
