package matcher

import (
	"encoding/binary"
	"math/bits"

	"github.com/harriteja/GoZ4HC/internal/cpu"
)

// wordCompare selects the 8-byte comparison loop on CPUs where unaligned
// loads are cheap.
var wordCompare = cpu.WordCompare()

// countCommon returns the length of the common prefix of a and b.
func countCommon(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	if wordCompare {
		for i+8 <= n {
			x := binary.LittleEndian.Uint64(a[i:]) ^ binary.LittleEndian.Uint64(b[i:])
			if x != 0 {
				return i + bits.TrailingZeros64(x)>>3
			}
			i += 8
		}
	}
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}
