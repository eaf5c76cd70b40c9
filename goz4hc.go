// Package goz4hc provides a pure-Go LZ4 high-compression encoder. Output
// is standard LZ4 block or frame data that any LZ4 decoder accepts.
package goz4hc

import (
	"context"
	"io"

	"github.com/harriteja/GoZ4HC/compress"
	"github.com/harriteja/GoZ4HC/parallel"
)

// Compression levels. Level 0 selects DefaultLevel.
const (
	MinLevel     = int(compress.MinLevel)
	DefaultLevel = int(compress.DefaultLevel)
	MaxLevel     = int(compress.MaxLevel)
)

// Errors returned by the block and frame functions.
var (
	ErrInvalidCompressionLevel = compress.ErrInvalidCompressionLevel
	ErrInputTooLarge           = compress.ErrInputTooLarge
	ErrDstTooSmall             = compress.ErrDstTooSmall
	ErrInternal                = compress.ErrInternal
	ErrCorruptInput            = compress.ErrCorruptInput
)

// CompressBound returns the worst-case compressed size of an n byte input.
func CompressBound(n int) int {
	return compress.CompressBound(n)
}

// CompressBlock compresses a byte slice using the default compression level.
// It allocates a new destination slice if dst is nil or too small.
// Returns the compressed data slice.
func CompressBlock(src []byte, dst []byte) ([]byte, error) {
	return compress.CompressBlock(src, dst)
}

// CompressBlockLevel compresses a byte slice with the specified compression level.
// Levels range from 1 (fastest) to 12 (best compression).
// It allocates a new destination slice if dst is nil or too small.
func CompressBlockLevel(src []byte, dst []byte, level int) ([]byte, error) {
	return compress.CompressBlockLevel(src, dst, compress.CompressionLevel(level))
}

// CompressBlockLimited compresses src into dst and fails with
// ErrDstTooSmall rather than writing past len(dst).
func CompressBlockLimited(src, dst []byte, level int) (int, error) {
	return compress.CompressBlockLimited(src, dst, compress.CompressionLevel(level))
}

// CompressBlockDestSize fills dst with the compressed form of the longest
// prefix of src that fits and reports how many bytes of src it covers.
func CompressBlockDestSize(src, dst []byte, level int) (written, consumed int, err error) {
	return compress.CompressBlockDestSize(src, dst, compress.CompressionLevel(level))
}

// DecompressBlock decompresses an LZ4-compressed block.
// It allocates a new destination slice if dst is nil or too small.
// The maxSize parameter limits the maximum size of the decompressed data.
func DecompressBlock(src []byte, dst []byte, maxSize int) ([]byte, error) {
	return compress.DecompressBlock(src, dst, maxSize)
}

// Stream compresses consecutive blocks that may reference each other.
type Stream = compress.Stream

// NewStream returns a streaming compression context.
func NewStream(level int) (*Stream, error) {
	return compress.NewStream(compress.CompressionLevel(level))
}

// Reader is an io.Reader that decompresses data from an LZ4 frame.
type Reader struct {
	r *compress.Reader
}

// NewReader creates a new Reader that decompresses from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: compress.NewReader(r)}
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	return r.r.Read(p)
}

// Writer is an io.WriteCloser that compresses data to an LZ4 frame.
type Writer struct {
	w *compress.Writer
}

// NewWriter creates a new Writer that compresses to w using the default compression level.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: compress.NewWriter(w)}
}

// NewWriterLevel creates a new Writer that compresses to w using the specified compression level.
// Levels range from 1 (fastest) to 12 (best compression).
func NewWriterLevel(w io.Writer, level int) (*Writer, error) {
	zw, err := compress.NewWriterLevel(w, compress.CompressionLevel(level))
	if err != nil {
		return nil, err
	}
	return &Writer{w: zw}, nil
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	return w.w.Write(p)
}

// Flush writes any buffered data as a complete block.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// Close implements io.Closer.
func (w *Writer) Close() error {
	return w.w.Close()
}

// Reset resets the Writer to write to dst.
func (w *Writer) Reset(dst io.Writer) {
	w.w.Reset(dst)
}

// NewParallelWriter returns a frame writer that compresses blocks on
// several goroutines. A non-positive numWorkers uses GOMAXPROCS.
func NewParallelWriter(w io.Writer, level, numWorkers int) (*compress.ParallelWriter, error) {
	return compress.NewParallelWriterWithOptions(w, compress.ParallelWriterOptions{
		Level:           compress.CompressionLevel(level),
		NumWorkers:      numWorkers,
		ContentChecksum: true,
	})
}

// CompressParallel splits src into chunkSize pieces and compresses them as
// independent blocks on numWorkers goroutines.
func CompressParallel(ctx context.Context, src []byte, level, numWorkers, chunkSize int) ([]parallel.BlockResult, error) {
	d := parallel.NewDispatcher(numWorkers, chunkSize)
	if err := d.SetLevel(compress.CompressionLevel(level)); err != nil {
		return nil, err
	}
	return d.CompressBlocks(ctx, src)
}

// DecompressParallel reverses CompressParallel.
func DecompressParallel(ctx context.Context, blocks []parallel.BlockResult, numWorkers int) ([]byte, error) {
	return parallel.NewDispatcher(numWorkers, 0).DecompressBlocks(ctx, blocks)
}
