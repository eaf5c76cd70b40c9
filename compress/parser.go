package compress

import (
	"github.com/harriteja/GoZ4HC/matcher"
)

// parseState is a state of the lazy hash-chain parser.
type parseState int

const (
	// stateScanning looks for a first match at the cursor.
	stateScanning parseState = iota
	// stateSearch2 looks for a longer match overlapping the end of m1.
	stateSearch2
	// stateSearch3 looks for a third match overlapping the end of m2.
	stateSearch3
)

// hashChainParser is the lazy parser used by levels 1 to 9. It keeps up to
// three overlapping candidates and decides how to trim and emit them.
type hashChainParser struct {
	m      *matcher.HCMatcher
	params matcher.SearchParams
}

func (p *hashChainParser) parse(enc *encoder) error {
	n := len(enc.src)
	if n < minInputLength {
		return enc.lastLiterals()
	}
	mflimit := n - MFLimit
	matchLimit := n - LastLiterals

	// m0 is the first match found at the current step. It is restored
	// when a later candidate would squeeze m1 out entirely.
	var m0, m1, m2, m3 matcher.Match
	ip := 0
	state := stateScanning

	for {
		switch state {
		case stateScanning:
			if ip > mflimit {
				return enc.lastLiterals()
			}
			found, ok := p.m.BestMatch(ip, matchLimit, p.params)
			if !ok {
				ip++
				continue
			}
			m0, m1 = found, found
			state = stateSearch2

		case stateSearch2:
			m2 = p.widerMatch(m1.Start+m1.Length-2, m1.Start, m1.Length, mflimit, matchLimit)
			if m2.Length <= m1.Length {
				if !enc.emit(m1) {
					return enc.overflow(m1)
				}
				ip = m1.Start + m1.Length
				state = stateScanning
				continue
			}
			if m0.Start < m1.Start && m2.Start < m1.Start+m0.Length {
				m1 = m0
			}
			if m2.Start-m1.Start < 3 {
				// The first match is too short to keep.
				m1 = m2
				continue
			}
			state = stateSearch3

		case stateSearch3:
			if m2.Start-m1.Start < optimalML {
				length := m1.Length
				if length > optimalML {
					length = optimalML
				}
				if m1.Start+length > m2.Start+m2.Length-MinMatch {
					length = m2.Start - m1.Start + m2.Length - MinMatch
				}
				if correction := length - (m2.Start - m1.Start); correction > 0 {
					m2.Start += correction
					m2.Length -= correction
				}
			}

			m3 = p.widerMatch(m2.Start+m2.Length-3, m2.Start, m2.Length, mflimit, matchLimit)
			if m3.Length <= m2.Length {
				// No better third match: emit m1 and m2.
				if m2.Start < m1.Start+m1.Length {
					m1.Length = m2.Start - m1.Start
				}
				if !enc.emit(m1) {
					return enc.overflow(m1)
				}
				if !enc.emit(m2) {
					return enc.overflow(m2)
				}
				ip = m2.Start + m2.Length
				state = stateScanning
				continue
			}

			if m3.Start < m1.Start+m1.Length+3 {
				if m3.Start >= m1.Start+m1.Length {
					// m3 follows m1 closely: drop m2 and emit m1.
					if m2.Start < m1.Start+m1.Length {
						correction := m1.Start + m1.Length - m2.Start
						m2.Start += correction
						m2.Length -= correction
						if m2.Length < MinMatch {
							m2 = m3
						}
					}
					if !enc.emit(m1) {
						return enc.overflow(m1)
					}
					m1 = m3
					m0 = m2
					state = stateSearch2
					continue
				}
				m2 = m3
				continue
			}

			// Three ascending matches: trim and emit m1, then shift.
			if m2.Start < m1.Start+m1.Length {
				if m2.Start-m1.Start < optimalML {
					if m1.Length > optimalML {
						m1.Length = optimalML
					}
					if m1.Start+m1.Length > m2.Start+m2.Length-MinMatch {
						m1.Length = m2.Start - m1.Start + m2.Length - MinMatch
					}
					if correction := m1.Length - (m2.Start - m1.Start); correction > 0 {
						m2.Start += correction
						m2.Length -= correction
					}
				} else {
					m1.Length = m2.Start - m1.Start
				}
			}
			if !enc.emit(m1) {
				return enc.overflow(m1)
			}
			m1 = m2
			m2 = m3
		}
	}
}

// widerMatch searches at ip for a match longer than longest that may start as
// early as low, where the current match spans [low, low+longest). The zero
// Match is returned when that match already reaches mflimit or nothing
// better exists.
func (p *hashChainParser) widerMatch(ip, low, longest, mflimit, matchLimit int) matcher.Match {
	if low+longest > mflimit {
		return matcher.Match{}
	}
	found, ok := p.m.WiderMatch(ip, low, matchLimit, longest, p.params)
	if !ok {
		return matcher.Match{}
	}
	return found
}
