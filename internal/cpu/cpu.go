// Package cpu detects the CPU features used to pick match-length counters.
package cpu

import (
	"runtime"
	"sync"

	"golang.org/x/sys/cpu"
)

// Implementation types
const (
	ImplGeneric = iota // byte-at-a-time comparison
	ImplSSE2           // 8-byte loads on x86-64
	ImplAVX2           // 8-byte loads on x86-64, AVX2 present
	ImplASIMD          // 8-byte loads on arm64
)

// Features represents CPU feature flags
type Features struct {
	HasSSE2  bool
	HasAVX2  bool
	HasASIMD bool
}

var (
	detectOnce sync.Once
	features   Features
	best       int
)

// DetectFeatures returns the detected feature flags.
func DetectFeatures() Features {
	detectOnce.Do(detect)
	return features
}

func detect() {
	switch runtime.GOARCH {
	case "amd64":
		features.HasSSE2 = cpu.X86.HasSSE2
		features.HasAVX2 = cpu.X86.HasAVX2
	case "arm64":
		features.HasASIMD = cpu.ARM64.HasASIMD
	}

	switch {
	case features.HasAVX2:
		best = ImplAVX2
	case features.HasSSE2:
		best = ImplSSE2
	case features.HasASIMD:
		best = ImplASIMD
	default:
		best = ImplGeneric
	}
}

// BestImplementation returns the best counter implementation available on this CPU
func BestImplementation() int {
	detectOnce.Do(detect)
	return best
}

// WordCompare reports whether match lengths should be counted with
// unaligned 8-byte loads rather than byte by byte.
func WordCompare() bool {
	return BestImplementation() != ImplGeneric
}

// ImplementationName returns a string name for the implementation type
func ImplementationName(impl int) string {
	switch impl {
	case ImplGeneric:
		return "Generic"
	case ImplSSE2:
		return "SSE2"
	case ImplAVX2:
		return "AVX2"
	case ImplASIMD:
		return "ASIMD"
	default:
		return "Unknown"
	}
}
