package compress

import (
	"encoding/binary"

	"github.com/harriteja/GoZ4HC/matcher"
)

// encoder writes sequences into the destination block. anchor is the first
// input byte not yet covered by a sequence.
type encoder struct {
	src      []byte
	dst      []byte
	mode     OutputMode
	op       int
	anchor   int
	oend     int
	consumed int
}

func newEncoder(src, dst []byte, mode OutputMode) *encoder {
	e := &encoder{src: src, dst: dst, mode: mode, oend: len(dst)}
	if mode == LimitedDestSize {
		// The final literals must still fit once the last match is written.
		e.oend -= LastLiterals
	}
	return e
}

// emit writes the literals in front of m followed by m itself. It reports
// false, leaving the output untouched, when a limited destination cannot
// hold the sequence.
func (e *encoder) emit(m matcher.Match) bool {
	return e.encode(m, e.mode != NoLimit)
}

func (e *encoder) encode(m matcher.Match, limited bool) bool {
	if m.Start < e.anchor || m.Length < MinMatch || m.Offset < 1 || m.Offset > MaxDistance || m.Start+m.Length > len(e.src) {
		panic(&matcher.InvariantError{
			Op:   "encode sequence",
			Pos:  uint32(m.Start),
			Low:  uint32(e.anchor),
			High: uint32(len(e.src)),
		})
	}

	litLen := m.Start - e.anchor
	token := e.op
	op := token + 1
	if limited && op+litLen/255+litLen+2+1+LastLiterals > e.oend {
		return false
	}
	if litLen >= runMask {
		e.dst[token] = runMask << mlBits
		op = putLength(e.dst, op, litLen-runMask)
	} else {
		e.dst[token] = byte(litLen << mlBits)
	}
	op += copy(e.dst[op:], e.src[e.anchor:m.Start])

	binary.LittleEndian.PutUint16(e.dst[op:], uint16(m.Offset))
	op += 2

	ml := m.Length - MinMatch
	if limited && op+ml/255+1+LastLiterals > e.oend {
		return false
	}
	if ml >= mlMask {
		e.dst[token] |= mlMask
		op = putLength(e.dst, op, ml-mlMask)
	} else {
		e.dst[token] |= byte(ml)
	}

	e.op = op
	e.anchor = m.Start + m.Length
	return true
}

// putLength writes the continuation bytes of a saturated length field.
func putLength(dst []byte, op, n int) int {
	for ; n >= 255; n -= 255 {
		dst[op] = 255
		op++
	}
	dst[op] = byte(n)
	return op + 1
}

// overflow handles a sequence that did not fit. In LimitedDestSize mode it
// fits a shortened version of m when the space left allows one, then fills
// the rest of the destination with literals.
func (e *encoder) overflow(m matcher.Match) error {
	if e.mode != LimitedDestSize {
		return ErrDstTooSmall
	}
	litLen := m.Start - e.anchor
	litCost := 1 + (litLen+240)/255 + litLen
	maxLitPos := e.oend - 3
	if e.op+litCost <= maxLitPos {
		left := maxLitPos - (e.op + litCost)
		if maxLength := MinMatch + mlMask - 1 + left*255; m.Length > maxLength {
			m.Length = maxLength
		}
		if e.oend+LastLiterals-(e.op+litCost+2)-1+m.Length >= MFLimit {
			e.encode(m, false)
		}
	}
	return e.lastLiterals()
}

// lastLiterals emits the final literal-only sequence. In LimitedDestSize
// mode the run is shortened to what fits and consumed records how much of
// the input the block covers.
func (e *encoder) lastLiterals() error {
	if e.mode == LimitedDestSize {
		e.oend += LastLiterals
	}
	run := len(e.src) - e.anchor
	extra := (run + 255 - runMask) / 255
	if e.mode != NoLimit && e.op+1+extra+run > e.oend {
		if e.mode == LimitedOutput {
			return ErrDstTooSmall
		}
		run = e.oend - e.op - 1
		extra = (run + 256 - runMask) / 256
		run -= extra
	}

	if run >= runMask {
		e.dst[e.op] = runMask << mlBits
		e.op = putLength(e.dst, e.op+1, run-runMask)
	} else {
		e.dst[e.op] = byte(run << mlBits)
		e.op++
	}
	e.op += copy(e.dst[e.op:], e.src[e.anchor:e.anchor+run])
	e.consumed = e.anchor + run
	return nil
}
