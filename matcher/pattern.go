package matcher

// repeatState records whether the bytes at the search position form a
// short repeating pattern. It is tested at most once per search.
type repeatState int

const (
	repeatUntested repeatState = iota
	repeatNot
	repeatConfirmed
)

// patternPeriod returns 1 when all four bytes of v are equal, 2 when v is a
// repeated two byte unit and 0 otherwise.
func patternPeriod(v uint32) int {
	switch {
	case v&0xFFFF == v>>16 && v&0xFF == (v>>8)&0xFF:
		return 1
	case v&0xFFFF == v>>16:
		return 2
	}
	return 0
}

// patternByte is the byte expected k positions after a pattern-aligned start.
func patternByte(pattern uint32, k uint32) byte {
	return byte(pattern >> (8 * (k & 3)))
}

// countPattern counts the bytes starting at p that continue pattern, assuming
// p is pattern aligned. Counting stops at limit.
func (w *Window) countPattern(p, limit, pattern uint32) int {
	n := uint32(0)
	if p >= w.dictLimit && limit <= w.End() && p < limit {
		buf := w.cur[p-w.dictLimit : limit-w.dictLimit]
		for n < uint32(len(buf)) && buf[n] == patternByte(pattern, n) {
			n++
		}
		return int(n)
	}
	for p+n < limit && w.Contains(p+n) && w.ByteAt(p+n) == patternByte(pattern, n) {
		n++
	}
	return int(n)
}

// reverseCountPattern counts the bytes before p that continue pattern
// backwards, assuming p is pattern aligned. Counting stops at low.
func (w *Window) reverseCountPattern(p, low, pattern uint32) int {
	if low < w.lowLimit {
		low = w.lowLimit
	}
	n := uint32(0)
	for p-n > low && w.ByteAt(p-n-1) == patternByte(pattern, 3-(n&3)) {
		n++
	}
	return int(n)
}

// repeatScan caches the repeat test for one search.
type repeatScan struct {
	state     repeatState
	period    int
	srcLength int
}

func (pp *repeatScan) test(w *Window, ip, iHigh, pattern uint32) {
	if pp.state != repeatUntested {
		return
	}
	if pp.period = patternPeriod(pattern); pp.period == 0 {
		pp.state = repeatNot
		return
	}
	pp.state = repeatConfirmed
	pp.srcLength = w.countPattern(ip+MinMatch, iHigh, pattern) + MinMatch
}

// patternJump is where a chain walk resumes after crossing a repeat run.
type patternJump struct {
	next    uint32
	segment int
	aligned bool
}

// skipPattern measures the repeat run around candIdx and returns the
// position to continue from. When the run is long enough to hold the whole
// source pattern, the jump lands where the match ends exactly at the run's
// end. Otherwise it lands at the run's start. The result is false when
// candIdx does not begin with pattern.
func (w *Window) skipPattern(scan *repeatScan, candIdx, lowest, iHigh, pattern uint32) (patternJump, bool) {
	if w.Read32(candIdx) != pattern {
		return patternJump{}, false
	}
	forward := w.countPattern(candIdx+MinMatch, iHigh, pattern) + MinMatch
	back := w.reverseCountPattern(candIdx, lowest, pattern)
	back -= back % scan.period
	segment := back + forward
	if forward <= scan.srcLength && segment >= scan.srcLength {
		k := scan.srcLength - forward
		if r := k % scan.period; r != 0 {
			k += scan.period - r
		}
		if k <= back {
			return patternJump{next: candIdx - uint32(k), segment: segment, aligned: true}, true
		}
	}
	return patternJump{next: candIdx - uint32(back), segment: segment}, true
}
