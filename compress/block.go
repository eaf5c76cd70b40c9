// Package compress implements the LZ4 high-compression block encoder, its
// streaming context and the LZ4 frame format built on top of it.
package compress

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/harriteja/GoZ4HC/matcher"
)

const (
	// MinMatch is the shortest match the block format can express
	MinMatch = matcher.MinMatch
	// MaxDistance is the largest match offset
	MaxDistance = matcher.MaxDistance
	// MFLimit is the distance from the block end after which no match may start
	MFLimit = 12
	// LastLiterals is the number of trailing bytes always emitted as literals
	LastLiterals = 5
	// MaxInputSize is the largest input a single call accepts
	MaxInputSize = 0x7E000000

	// minInputLength is the smallest input for which a match search runs
	minInputLength = MFLimit + 1
	// optimalML biases overlapping matches towards medium lengths
	optimalML = mlMask - 1 + MinMatch

	mlBits  = 4
	mlMask  = 1<<mlBits - 1
	runMask = 1<<(8-mlBits) - 1
)

// CompressionLevel defines how much effort to spend on compression
type CompressionLevel int

const (
	// MinLevel is the lowest explicit compression level
	MinLevel CompressionLevel = 1
	// FastLevel optimizes for speed over compression ratio
	FastLevel CompressionLevel = 3
	// DefaultLevel is used when level 0 is requested
	DefaultLevel CompressionLevel = 9
	// OptMinLevel is the first level that uses the optimal parser
	OptMinLevel CompressionLevel = 10
	// MaxLevel provides the highest compression at the cost of speed
	MaxLevel CompressionLevel = 12
)

var (
	// ErrInvalidCompressionLevel indicates the compression level is outside valid range
	ErrInvalidCompressionLevel = errors.New("invalid compression level")
	// ErrInputTooLarge indicates the input exceeds MaxInputSize
	ErrInputTooLarge = errors.New("input too large")
	// ErrDstTooSmall indicates the compressed data does not fit the destination
	ErrDstTooSmall = errors.New("destination buffer too small")
	// ErrInternal indicates the encoder detected a broken invariant. The
	// context that produced it must be reset before reuse.
	ErrInternal = errors.New("internal compressor error")
)

// OutputMode selects how the encoder treats the destination capacity.
type OutputMode int

const (
	// NoLimit assumes the destination holds CompressBound(len(src)) bytes.
	NoLimit OutputMode = iota
	// LimitedOutput fails with ErrDstTooSmall when the output does not fit.
	LimitedOutput
	// LimitedDestSize consumes as much input as fits the destination.
	LimitedDestSize
)

func (m OutputMode) String() string {
	switch m {
	case NoLimit:
		return "no-limit"
	case LimitedOutput:
		return "limited-output"
	case LimitedDestSize:
		return "limited-dest-size"
	}
	return "unknown"
}

// CompressBound returns the largest compressed size of an n byte input, or
// 0 when n exceeds MaxInputSize.
func CompressBound(n int) int {
	if n < 0 || n > MaxInputSize {
		return 0
	}
	return n + n/255 + 16
}

// normalizeLevel maps level 0 to DefaultLevel and rejects levels out of range.
func normalizeLevel(level CompressionLevel) (CompressionLevel, error) {
	if level < 0 || level > MaxLevel {
		return 0, errors.Wrapf(ErrInvalidCompressionLevel, "level %d", level)
	}
	if level == 0 {
		return DefaultLevel, nil
	}
	return level, nil
}

var compressorPool = sync.Pool{
	New: func() any {
		c, _ := NewCompressor(DefaultLevel)
		return c
	},
}

func getCompressor(level CompressionLevel, patternAnalysis bool) (*Compressor, error) {
	c := compressorPool.Get().(*Compressor)
	if err := c.SetLevel(level); err != nil {
		compressorPool.Put(c)
		return nil, err
	}
	c.SetPatternAnalysis(patternAnalysis)
	return c, nil
}

func putCompressor(c *Compressor) {
	if c.broken {
		return
	}
	compressorPool.Put(c)
}

// Block represents a compressible data block with a specific compression level
type Block[T ~[]byte] struct {
	input   T
	level   CompressionLevel
	options BlockOptions
}

// BlockOptions provides configuration for block compression
type BlockOptions struct {
	// Mode selects how the destination capacity is enforced
	Mode OutputMode
	// DisablePatternAnalysis turns off the repeat-run shortcut. Output
	// still decodes to the same bytes; only speed and ratio change.
	DisablePatternAnalysis bool
}

// NewBlock creates a new block from input with default options
func NewBlock[T ~[]byte](input T, level CompressionLevel) (*Block[T], error) {
	return NewBlockWithOptions(input, level, BlockOptions{})
}

// NewBlockWithOptions creates a new block with specific options
func NewBlockWithOptions[T ~[]byte](input T, level CompressionLevel, options BlockOptions) (*Block[T], error) {
	if len(input) > MaxInputSize {
		return nil, errors.Wrapf(ErrInputTooLarge, "%d bytes", len(input))
	}
	level, err := normalizeLevel(level)
	if err != nil {
		return nil, err
	}
	return &Block[T]{
		input:   input,
		level:   level,
		options: options,
	}, nil
}

// Level returns the effective compression level of the block.
func (b *Block[T]) Level() CompressionLevel {
	return b.level
}

// Compress compresses the block into dst and returns the number of bytes
// written and the number of input bytes consumed. Only LimitedDestSize
// mode can consume less than the whole input.
func (b *Block[T]) Compress(dst []byte) (written, consumed int, err error) {
	c, err := getCompressor(b.level, !b.options.DisablePatternAnalysis)
	if err != nil {
		return 0, 0, err
	}
	defer putCompressor(c)
	return c.Compress([]byte(b.input), dst, b.options.Mode)
}

// CompressToBuffer compresses the block data to the provided buffer. When
// dst is nil or smaller than the worst case a new buffer is allocated.
func (b *Block[T]) CompressToBuffer(dst []byte) ([]byte, error) {
	if bound := CompressBound(len(b.input)); len(dst) < bound {
		dst = make([]byte, bound)
	}
	n, _, err := b.Compress(dst)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

// CompressBlock compresses input using LZ4HC algorithm with default compression level.
// If dst is nil or too small, a new buffer will be allocated.
func CompressBlock(src []byte, dst []byte) ([]byte, error) {
	return CompressBlockLevel(src, dst, DefaultLevel)
}

// CompressBlockLevel compresses input with specified compression level.
// If dst is nil or too small, a new buffer will be allocated.
func CompressBlockLevel(src []byte, dst []byte, level CompressionLevel) ([]byte, error) {
	block, err := NewBlock(src, level)
	if err != nil {
		return nil, err
	}
	return block.CompressToBuffer(dst)
}

// CompressBlockLimited compresses src into dst without ever writing past
// len(dst). It returns ErrDstTooSmall when the result does not fit.
func CompressBlockLimited(src, dst []byte, level CompressionLevel) (int, error) {
	block, err := NewBlockWithOptions(src, level, BlockOptions{Mode: LimitedOutput})
	if err != nil {
		return 0, err
	}
	n, _, err := block.Compress(dst)
	return n, err
}

// CompressBlockDestSize compresses as much of src as fits into dst. It
// returns the number of bytes written and the length of the prefix of src
// they encode.
func CompressBlockDestSize(src, dst []byte, level CompressionLevel) (written, consumed int, err error) {
	block, err := NewBlockWithOptions(src, level, BlockOptions{Mode: LimitedDestSize})
	if err != nil {
		return 0, 0, err
	}
	return block.Compress(dst)
}
