package matcher

import (
	"bytes"
	"math/rand"
	"testing"

	"gotest.tools/v3/assert"
	"pgregory.net/rapid"
)

var deepSearch = SearchParams{MaxAttempts: 256, PatternAnalysis: true}

type matchT interface {
	assert.TestingT
	Helper()
	Fatalf(format string, args ...any)
}

// verifyMatch checks that m describes bytes that really repeat.
func verifyMatch(t matchT, w *Window, m Match) {
	t.Helper()
	start := w.Pos(m.Start)
	assert.Assert(t, m.Offset >= 1 && m.Offset <= MaxDistance, "offset %d", m.Offset)
	assert.Assert(t, m.Length >= MinMatch, "length %d", m.Length)
	for i := 0; i < m.Length; i++ {
		p := start + uint32(i)
		if w.ByteAt(p) != w.ByteAt(p-uint32(m.Offset)) {
			t.Fatalf("byte %d of match %+v differs", i, m)
		}
	}
}

func TestInsertIsMonotonic(t *testing.T) {
	m := NewHCMatcher()
	m.Attach(nil, bytes.Repeat([]byte("abcdefgh"), 16))
	w := m.Window()

	m.Insert(w.Pos(40))
	assert.Equal(t, m.NextToUpdate(), w.Pos(40))

	m.Insert(w.Pos(10))
	assert.Equal(t, m.NextToUpdate(), w.Pos(40))

	// Positions whose four bytes run past the end stay pending.
	m.Insert(w.End())
	assert.Equal(t, m.NextToUpdate(), w.End()-3)
}

func TestChainLinks(t *testing.T) {
	m := NewHCMatcher()
	src := []byte("abcdXXXXabcdYYYYabcdZZZZ")
	m.Attach(nil, src)
	w := m.Window()

	m.Insert(w.Pos(16))
	head, ok := m.HeadOf(w.Pos(16))
	assert.Assert(t, ok)
	assert.Equal(t, head, w.Pos(8))

	prev, ok := m.Next(head)
	assert.Assert(t, ok)
	assert.Equal(t, prev, w.Pos(0))

	_, ok = m.Next(prev)
	assert.Assert(t, !ok)
}

// Without chain swaps or pattern analysis a search visits exactly the
// candidates reached by HeadOf and Next.
func TestSearchWalksChain(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		alphabet := rapid.IntRange(1, 4).Draw(rt, "alphabet")
		n := rapid.IntRange(16, 2048).Draw(rt, "n")
		seed := rapid.Int64().Draw(rt, "seed")
		rng := rand.New(rand.NewSource(seed))
		src := make([]byte, n)
		for i := range src {
			src[i] = byte('a' + rng.Intn(alphabet))
		}
		ip := rapid.IntRange(0, n-12).Draw(rt, "ip")
		attempts := rapid.IntRange(1, 64).Draw(rt, "attempts")
		limit := n - 5

		m := NewHCMatcher()
		m.Attach(nil, src)
		w := m.Window()
		at := w.Pos(ip)
		m.Insert(at)

		var want Match
		longest := MinMatch - 1
		cand, ok := m.HeadOf(at)
		for left := attempts; ok && left > 0; left-- {
			if w.Read32(cand) == w.Read32(at) {
				length := MinMatch + w.Count(at+MinMatch, cand+MinMatch, w.Pos(limit))
				if length > longest {
					longest = length
					want = Match{Start: ip, Offset: int(at - cand), Length: length}
				}
			}
			cand, ok = m.Next(cand)
		}

		got, found := m.BestMatch(ip, limit, SearchParams{MaxAttempts: attempts})
		assert.Equal(rt, found, longest >= MinMatch)
		assert.Equal(rt, got, want)
	})
}

func TestChainSwapOnEqualLength(t *testing.T) {
	m := NewHCMatcher()
	dict := []byte("abbbaabaabbaabaaababababbbbbaaaaabababaabaa")
	m.LoadDict(dict)
	src := []byte("abbaabaabbaabaababaaabbbabbbabababaabb")
	m.Attach(dict, src)

	// The dictionary candidate at 10 only ties the best length of 6. Its
	// swap still reaches the 13 byte match at 3 on the third attempt.
	params := SearchParams{MaxAttempts: 3, ChainSwap: true}
	got, ok := m.LongerMatch(2, len(src)-5, MinMatch-1, params)
	assert.Assert(t, ok)
	assert.Equal(t, got, Match{Start: 2, Offset: 42, Length: 13})
	verifyMatch(t, m.Window(), got)
}

func TestBestMatch(t *testing.T) {
	tests := []struct {
		name       string
		src        string
		ip         int
		wantOffset int
		wantLength int
	}{
		{"simple repeat", "hello world, hello world!", 13, 13, 11},
		{"overlapping run", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", 1, 1, 39},
		{"picks longest", "abcdeXabcdefgYYabcdefgh", 15, 9, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewHCMatcher()
			m.Attach(nil, []byte(tt.src))
			got, ok := m.BestMatch(tt.ip, len(tt.src), deepSearch)
			assert.Assert(t, ok)
			assert.Equal(t, got.Start, tt.ip)
			assert.Equal(t, got.Offset, tt.wantOffset)
			assert.Equal(t, got.Length, tt.wantLength)
			verifyMatch(t, m.Window(), got)
		})
	}
}

func TestBestMatchNone(t *testing.T) {
	m := NewHCMatcher()
	src := []byte("abcdefghijklmnopqrstuvwxyz")
	m.Attach(nil, src)
	_, ok := m.BestMatch(10, len(src), deepSearch)
	assert.Assert(t, !ok)
}

func TestMatchIntoDictionary(t *testing.T) {
	m := NewHCMatcher()
	dict := []byte("the quick brown fox jumps over the lazy dog")
	m.LoadDict(dict)

	src := []byte("a quick brown fox!")
	m.Attach(dict, src)

	got, ok := m.BestMatch(1, len(src), deepSearch)
	assert.Assert(t, ok)
	assert.Equal(t, got.Length, len(" quick brown fox"))
	verifyMatch(t, m.Window(), got)
}

func TestWiderMatchExtendsBackwards(t *testing.T) {
	m := NewHCMatcher()
	src := []byte("0123456789----0123456789")
	m.Attach(nil, src)

	got, ok := m.WiderMatch(18, 14, len(src), 5, deepSearch)
	assert.Assert(t, ok)
	assert.Equal(t, got.Start, 14)
	assert.Equal(t, got.Length, 10)
	assert.Equal(t, got.Offset, 14)
}

func TestResetForgetsHistory(t *testing.T) {
	m := NewHCMatcher()
	src := []byte("abcdabcdabcdabcd")
	m.Attach(nil, src)
	_, ok := m.BestMatch(4, len(src), deepSearch)
	assert.Assert(t, ok)

	end := m.Window().End()
	m.Reset()
	assert.Assert(t, m.Window().LowLimit() > end)

	fresh := []byte("abcdXYZW")
	m.Attach(nil, fresh)
	_, ok = m.BestMatch(0, len(fresh), deepSearch)
	assert.Assert(t, !ok)
}

func TestLongRunPatternShortcut(t *testing.T) {
	tests := []struct {
		name    string
		unit    string
		pattern bool
	}{
		{"single byte run", "a", false},
		{"single byte run with analysis", "a", true},
		{"two byte run", "ab", false},
		{"two byte run with analysis", "ab", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := bytes.Repeat([]byte(tt.unit), 60000/len(tt.unit))
			src = append(src, "tail of the block"...)

			m := NewHCMatcher()
			m.Attach(nil, src)
			params := SearchParams{MaxAttempts: 64, PatternAnalysis: tt.pattern}
			got, ok := m.BestMatch(50000, len(src), params)
			assert.Assert(t, ok)
			verifyMatch(t, m.Window(), got)
			assert.Equal(t, got.Start+got.Length, 60000)
		})
	}
}

func TestMatchesAreValid(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		alphabet := rapid.IntRange(1, 8).Draw(rt, "alphabet")
		n := rapid.IntRange(16, 4096).Draw(rt, "n")
		seed := rapid.Int64().Draw(rt, "seed")
		rng := rand.New(rand.NewSource(seed))
		src := make([]byte, n)
		for i := range src {
			src[i] = byte('a' + rng.Intn(alphabet))
		}
		params := SearchParams{
			MaxAttempts:     rapid.IntRange(1, 512).Draw(rt, "attempts"),
			PatternAnalysis: rapid.Bool().Draw(rt, "pattern"),
			ChainSwap:       rapid.Bool().Draw(rt, "swap"),
		}

		m := NewHCMatcher()
		m.Attach(nil, src)
		for ip := 0; ip+12 <= n; ip += 3 {
			got, ok := m.BestMatch(ip, n-5, params)
			if !ok {
				continue
			}
			if got.Start != ip || got.Start+got.Length > n-5 {
				rt.Fatalf("match %+v escapes [%d, %d)", got, ip, n-5)
			}
			verifyMatch(rt, m.Window(), got)
		}
	})
}
