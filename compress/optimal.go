package compress

import (
	"github.com/harriteja/GoZ4HC/matcher"
)

const (
	// optNum is the number of positions priced in one optimal pass
	optNum = 4096
	// trailingLiterals is the number of literal slots priced past the last match
	trailingLiterals = 3
)

// optCell is the cheapest known way to reach a position of the pass.
// length 1 marks a literal.
type optCell struct {
	price  int
	offset int
	length int
	litLen int
}

// literalsPrice returns the encoded size of a literal run.
func literalsPrice(litLen int) int {
	price := litLen
	if litLen >= runMask {
		price += 1 + (litLen-runMask)/255
	}
	return price
}

// sequencePrice returns the encoded size of a literal run followed by a
// match of the given length.
func sequencePrice(litLen, matchLen int) int {
	price := 1 + 2 + literalsPrice(litLen)
	if matchLen >= mlMask+MinMatch {
		price += 1 + (matchLen-(mlMask+MinMatch))/255
	}
	return price
}

// optimalParser is the price-based parser used by levels 10 to 12. Each
// pass prices every way of reaching the positions covered by a first match,
// then walks back from the cheapest end to pick the sequences.
type optimalParser struct {
	m          *matcher.HCMatcher
	params     matcher.SearchParams
	sufficient int
	fullUpdate bool
	opt        []optCell
}

func (p *optimalParser) reset(m *matcher.HCMatcher, params matcher.SearchParams, sufficient int, fullUpdate bool) {
	p.m = m
	p.params = params
	p.sufficient = sufficient
	if p.sufficient >= optNum {
		p.sufficient = optNum - 1
	}
	p.fullUpdate = fullUpdate
	if p.opt == nil {
		p.opt = make([]optCell, optNum+trailingLiterals)
	}
}

func (p *optimalParser) longerMatch(ip, limit, minLen int) (matcher.Match, bool) {
	return p.m.LongerMatch(ip, limit, minLen, p.params)
}

func (p *optimalParser) parse(enc *encoder) error {
	n := len(enc.src)
	if n < minInputLength {
		return enc.lastLiterals()
	}
	mflimit := n - MFLimit
	matchLimit := n - LastLiterals
	opt := p.opt

	ip := 0
	for ip <= mflimit {
		litLen := ip - enc.anchor
		first, ok := p.longerMatch(ip, matchLimit, MinMatch-1)
		if !ok {
			ip++
			continue
		}
		if first.Length > p.sufficient {
			if !enc.emit(first) {
				return enc.overflow(first)
			}
			ip = enc.anchor
			continue
		}

		for pos := 0; pos < MinMatch; pos++ {
			opt[pos] = optCell{price: literalsPrice(litLen + pos), length: 1, litLen: litLen + pos}
		}
		for length := MinMatch; length <= first.Length; length++ {
			opt[length] = optCell{price: sequencePrice(litLen, length), offset: first.Offset, length: length, litLen: litLen}
		}
		lastPos := first.Length
		p.fillTrailing(lastPos)

		var bestLength, bestOffset, cur int
		immediate := false
		for cur = 1; cur < lastPos; cur++ {
			if ip+cur > mflimit {
				break
			}
			if p.fullUpdate {
				if opt[cur+1].price <= opt[cur].price && opt[cur+MinMatch].price < opt[cur].price+3 {
					continue
				}
			} else if opt[cur+1].price <= opt[cur].price {
				continue
			}

			minLen := MinMatch - 1
			if !p.fullUpdate {
				minLen = lastPos - cur
			}
			found, ok := p.longerMatch(ip+cur, matchLimit, minLen)
			if !ok {
				continue
			}
			if found.Length > p.sufficient || found.Length+cur >= optNum {
				bestLength, bestOffset = found.Length, found.Offset
				lastPos = cur + 1
				immediate = true
				break
			}

			base := opt[cur].litLen
			for lit := 1; lit < MinMatch; lit++ {
				price := opt[cur].price - literalsPrice(base) + literalsPrice(base+lit)
				if pos := cur + lit; price < opt[pos].price {
					opt[pos] = optCell{price: price, length: 1, litLen: base + lit}
				}
			}

			for length := MinMatch; length <= found.Length; length++ {
				pos := cur + length
				var price, ll int
				if opt[cur].length == 1 {
					ll = opt[cur].litLen
					if cur > ll {
						price = opt[cur-ll].price
					}
					price += sequencePrice(ll, length)
				} else {
					price = opt[cur].price + sequencePrice(0, length)
				}
				if pos > lastPos+trailingLiterals || price <= opt[pos].price {
					if length == found.Length && lastPos < pos {
						lastPos = pos
					}
					opt[pos] = optCell{price: price, offset: found.Offset, length: length, litLen: ll}
				}
			}
			p.fillTrailing(lastPos)
		}

		if !immediate {
			bestLength = opt[lastPos].length
			bestOffset = opt[lastPos].offset
			cur = lastPos - bestLength
		}

		// Walk back from the chosen end, storing each step at its start.
		pos, length, offset := cur, bestLength, bestOffset
		for {
			nextLength, nextOffset := opt[pos].length, opt[pos].offset
			opt[pos].length, opt[pos].offset = length, offset
			length, offset = nextLength, nextOffset
			if nextLength > pos {
				break
			}
			pos -= nextLength
		}

		for rPos := 0; rPos < lastPos; {
			length, offset := opt[rPos].length, opt[rPos].offset
			if length == 1 {
				ip++
				rPos++
				continue
			}
			rPos += length
			seq := matcher.Match{Start: ip, Offset: offset, Length: length}
			if !enc.emit(seq) {
				return enc.overflow(seq)
			}
			ip = enc.anchor
		}
	}
	return enc.lastLiterals()
}

// fillTrailing prices the literal slots just past lastPos.
func (p *optimalParser) fillTrailing(lastPos int) {
	for lit := 1; lit <= trailingLiterals; lit++ {
		p.opt[lastPos+lit] = optCell{
			price:  p.opt[lastPos].price + literalsPrice(lit),
			length: 1,
			litLen: lit,
		}
	}
}
