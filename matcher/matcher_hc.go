// Package matcher finds back-references for the high-compression LZ4
// encoder. It keeps a hash-chain index over a sliding window of at most
// 64KB of history and answers longest-match queries against it.
package matcher

const (
	// HashLog is the number of bits of the four byte hash.
	HashLog = 15

	// HashTableSize is the number of hash buckets.
	HashTableSize = 1 << HashLog

	// ChainTableSize is the number of chain links, one per position modulo
	// the window size.
	ChainTableSize = 1 << 16
)

// Match is a back-reference. Start is an index into the current segment,
// and the referenced bytes begin Offset bytes before it.
type Match struct {
	Start  int
	Offset int
	Length int
}

// SearchParams tunes a single match search.
type SearchParams struct {
	// MaxAttempts bounds the number of candidates examined.
	MaxAttempts int
	// PatternAnalysis enables the repeat-run shortcut.
	PatternAnalysis bool
	// ChainSwap lets the walk follow the chain of a later byte of the
	// current best match when that chain reaches further back.
	ChainSwap bool
}

// HCMatcher is the hash-chain index. The zero value is not usable; create
// one with NewHCMatcher.
type HCMatcher struct {
	win          Window
	hashTable    [HashTableSize]uint32
	chainTable   [ChainTableSize]uint16
	nextToUpdate uint32
}

// NewHCMatcher returns an empty matcher.
func NewHCMatcher() *HCMatcher {
	m := &HCMatcher{}
	m.win = Window{lowLimit: startOffset, dictLimit: startOffset}
	m.nextToUpdate = startOffset
	return m
}

func hash4(v uint32) uint32 {
	return (v * 2654435761) >> (32 - HashLog)
}

// Window exposes the matcher's window.
func (m *HCMatcher) Window() *Window { return &m.win }

// NextToUpdate returns the first position that has not been indexed yet.
func (m *HCMatcher) NextToUpdate() uint32 { return m.nextToUpdate }

// Reset forgets all history. Positions continue from past the previous end,
// so stale table entries fall out of reach without clearing the tables.
// Once positions have grown large the tables are cleared and positions
// restart from the origin.
func (m *HCMatcher) Reset() {
	origin := m.win.End() + startOffset
	if m.win.End() > resetThreshold {
		clear(m.hashTable[:])
		clear(m.chainTable[:])
		origin = startOffset
	}
	m.win = Window{lowLimit: origin, dictLimit: origin}
	m.nextToUpdate = origin
}

// LoadDict resets the matcher and indexes dict as history. Only the last
// 64KB of dict are kept. The matcher references dict until the next call
// to Attach or LoadDict copies it out, so callers must keep it unchanged.
func (m *HCMatcher) LoadDict(dict []byte) {
	if len(dict) > MaxDictSize {
		dict = dict[len(dict)-MaxDictSize:]
	}
	m.Reset()
	m.win.cur = dict
	if len(dict) >= MinMatch {
		m.Insert(m.win.End() - 3)
	}
}

// Attach makes src the current segment. hist must hold the bytes that
// immediately precede src in the stream and becomes the dictionary
// segment; it ends at the previous window end.
func (m *HCMatcher) Attach(hist, src []byte) {
	if len(hist) > MaxDictSize {
		hist = hist[len(hist)-MaxDictSize:]
	}
	if m.win.End() > resetThreshold {
		m.LoadDict(hist)
	}
	m.win.dictLimit = m.win.End()
	m.win.dict = hist
	m.win.lowLimit = m.win.dictLimit - uint32(len(hist))
	m.win.cur = src
	if m.nextToUpdate < m.win.lowLimit {
		m.nextToUpdate = m.win.lowLimit
	}
}

// Insert indexes every position from the last indexed one up to, but not
// including, target. Positions too close to the window end stay pending.
func (m *HCMatcher) Insert(target uint32) {
	idx := m.nextToUpdate
	if idx < m.win.lowLimit {
		idx = m.win.lowLimit
	}
	for ; idx < target && m.win.Insertable(idx); idx++ {
		h := hash4(m.win.Read32(idx))
		delta := idx - m.hashTable[h]
		if delta > MaxDistance {
			delta = MaxDistance
		}
		m.chainTable[uint16(idx)] = uint16(delta)
		m.hashTable[h] = idx
	}
	if idx > m.nextToUpdate {
		m.nextToUpdate = idx
	}
}

// HeadOf returns the most recent indexed position sharing the hash of the
// four bytes at p. The result is false when that position is out of reach.
func (m *HCMatcher) HeadOf(p uint32) (uint32, bool) {
	head := m.hashTable[hash4(m.win.Read32(p))]
	return head, head >= m.win.lowLimit && head < p
}

// Next returns the previous position on the chain through p. The result is
// false once the chain leaves the window or hits a saturated link.
func (m *HCMatcher) Next(p uint32) (uint32, bool) {
	delta := m.delta(p)
	if delta == MaxDistance || delta > p || p-delta < m.win.lowLimit {
		return 0, false
	}
	return p - delta, true
}

func (m *HCMatcher) delta(p uint32) uint32 {
	return uint32(m.chainTable[uint16(p)])
}

// BestMatch indexes up to ip and returns the longest match starting at ip
// that ends no later than limit. Both are indexes into the current segment.
func (m *HCMatcher) BestMatch(ip, limit int, p SearchParams) (Match, bool) {
	return m.WiderMatch(ip, ip, limit, MinMatch-1, p)
}

// LongerMatch returns a match at ip that is longer than minLen.
func (m *HCMatcher) LongerMatch(ip, limit, minLen int, p SearchParams) (Match, bool) {
	return m.WiderMatch(ip, ip, limit, minLen, p)
}

// WiderMatch searches around ip for a match longer than longest. A match
// may be extended backwards as far as low, so its start can precede ip.
func (m *HCMatcher) WiderMatch(ip, low, high, longest int, p SearchParams) (Match, bool) {
	w := &m.win
	return m.widerMatch(w.Pos(ip), w.Pos(low), w.Pos(high), longest, p)
}

func (m *HCMatcher) widerMatch(ip, iLow, iHigh uint32, longest int, p SearchParams) (Match, bool) {
	w := &m.win
	dictLimit := w.dictLimit
	lowest := w.lowLimit
	if ip > lowest+MaxDistance {
		lowest = ip - MaxDistance
	}
	lookBack := int(ip - iLow)
	initial := longest
	attempts := p.MaxAttempts
	chainPos := uint32(0)
	pattern := w.Read32(ip)
	var scan repeatScan
	var best Match

	m.Insert(ip)
	cand, ok := m.HeadOf(ip)
	if !ok {
		return best, false
	}
	for cand >= lowest && cand < ip && attempts > 0 {
		attempts--

		viable := true
		if cand >= dictLimit {
			tail := int64(longest - 1)
			viable = w.equal16(int64(iLow)+tail, int64(cand)-int64(lookBack)+tail)
		}
		length := 0
		if viable && w.Read32(cand) == pattern {
			back := 0
			if lookBack > 0 {
				back = w.CountBack(ip, cand, iLow, w.lowLimit)
			}
			length = MinMatch + w.Count(ip+MinMatch, cand+MinMatch, iHigh) + back
			if length > longest {
				longest = length
				best = Match{Start: int(ip - uint32(back) - dictLimit), Offset: int(ip - cand), Length: length}
			}
		}

		// A candidate as long as the best one also gets to pick the chain.
		if p.ChainSwap && length == longest && lookBack == 0 && cand+uint32(longest) <= ip {
			pos, dist := m.swapChain(cand, longest)
			chainPos = pos
			if dist > 1 {
				if dist > cand {
					break
				}
				cand -= dist
				continue
			}
		}

		delta := m.delta(cand)
		if p.PatternAnalysis && delta == 1 && chainPos == 0 {
			scan.test(w, ip, iHigh, pattern)
			if scan.state == repeatConfirmed && cand > lowest {
				if jump, ok := w.skipPattern(&scan, cand-1, lowest, iHigh, pattern); ok {
					cand = jump.next
					if !jump.aligned && lookBack == 0 {
						maxLength := jump.segment
						if scan.srcLength < maxLength {
							maxLength = scan.srcLength
						}
						if longest < maxLength {
							if ip-cand > MaxDistance {
								break
							}
							longest = maxLength
							best = Match{Start: int(ip - dictLimit), Offset: int(ip - cand), Length: maxLength}
						}
						next, ok := m.Next(cand)
						if !ok {
							break
						}
						cand = next
					}
					continue
				}
			}
		}

		if chainPos == 0 {
			next, ok := m.Next(cand)
			if !ok {
				break
			}
			cand = next
			continue
		}
		d := m.delta(cand + chainPos)
		if d > cand {
			break
		}
		cand -= d
	}
	return best, longest > initial
}

// swapChain scans the chain links of the bytes covered by the current best
// match and returns the offset within the match whose link reaches furthest
// back, together with that distance. The scan accelerates while no better
// link turns up.
func (m *HCMatcher) swapChain(cand uint32, longest int) (uint32, uint32) {
	const trigger = 4
	dist := uint32(1)
	end := uint32(longest - MinMatch + 1)
	step := uint32(1)
	accel := uint32(1 << trigger)
	chainPos := uint32(0)
	for pos := uint32(0); pos < end; pos += step {
		d := m.delta(cand + pos)
		step = accel >> trigger
		accel++
		if d > dist {
			dist = d
			chainPos = pos
			accel = 1 << trigger
		}
	}
	return chainPos, dist
}
