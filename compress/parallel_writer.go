package compress

import (
	"hash"
	"io"
	"runtime"
	"sync"

	"github.com/containerd/log"
	"github.com/pierrec/xxHash/xxHash32"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ParallelWriter is an io.WriteCloser that compresses data to an LZ4 frame
// using multiple goroutines. Blocks are always independent so each worker
// can use its own Compressor.
type ParallelWriter struct {
	bw          blockWriter
	header      frameHeader
	level       CompressionLevel
	pattern     bool
	blockSize   int
	numWorkers  int
	content     hash.Hash32
	compressors []*Compressor

	// pending holds up to numWorkers blocks waiting for compression
	pending []byte
	zbufs   [][]byte

	wroteHeader bool
	closed      bool
	written     uint64
	mu          sync.Mutex
}

// ParallelWriterOptions provides configuration options for a ParallelWriter
type ParallelWriterOptions struct {
	// Level sets the compression level
	Level CompressionLevel
	// BlockSize sets the size of compression blocks
	BlockSize int
	// NumWorkers sets the number of worker goroutines (0 = use GOMAXPROCS)
	NumWorkers int
	// BlockChecksum appends a checksum to every block
	BlockChecksum bool
	// ContentChecksum appends a checksum of the whole content
	ContentChecksum bool
	// DisablePatternAnalysis turns off the repeat-run shortcut
	DisablePatternAnalysis bool
}

// NewParallelWriter creates a new ParallelWriter with default options
func NewParallelWriter(w io.Writer) *ParallelWriter {
	pw, _ := NewParallelWriterWithOptions(w, ParallelWriterOptions{ContentChecksum: true})
	return pw
}

// NewParallelWriterLevel creates a new ParallelWriter with specified level
func NewParallelWriterLevel(w io.Writer, level CompressionLevel) (*ParallelWriter, error) {
	return NewParallelWriterWithOptions(w, ParallelWriterOptions{
		Level:           level,
		ContentChecksum: true,
	})
}

// NewParallelWriterWithOptions creates a new ParallelWriter with custom options
func NewParallelWriterWithOptions(w io.Writer, options ParallelWriterOptions) (*ParallelWriter, error) {
	level, err := normalizeLevel(options.Level)
	if err != nil {
		return nil, err
	}
	header, err := WriterOptions{
		BlockSize:       options.BlockSize,
		BlockChecksum:   options.BlockChecksum,
		ContentChecksum: options.ContentChecksum,
	}.header()
	if err != nil {
		return nil, err
	}
	blockSize := options.BlockSize
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}

	pw := &ParallelWriter{
		bw:        blockWriter{w: w, checksum: options.BlockChecksum},
		header:    header,
		level:     level,
		pattern:   !options.DisablePatternAnalysis,
		blockSize: blockSize,
	}
	if options.ContentChecksum {
		pw.content = xxHash32.New(0)
	}
	pw.SetNumWorkers(options.NumWorkers)
	return pw, nil
}

// SetNumWorkers sets the number of worker goroutines. Non-positive values
// select GOMAXPROCS. It must be called before the first Write.
func (pw *ParallelWriter) SetNumWorkers(n int) {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	pw.numWorkers = n
	pw.pending = make([]byte, 0, n*pw.blockSize)
	pw.zbufs = make([][]byte, n)
}

// Write implements io.Writer
func (pw *ParallelWriter) Write(p []byte) (int, error) {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.closed {
		return 0, ErrWriterClosed
	}
	if err := pw.writeHeader(); err != nil {
		return 0, err
	}

	total := 0
	for len(p) > 0 {
		n := cap(pw.pending) - len(pw.pending)
		if n > len(p) {
			n = len(p)
		}
		pw.pending = append(pw.pending, p[:n]...)
		p = p[n:]
		total += n

		if len(pw.pending) == cap(pw.pending) {
			if err := pw.flush(); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// Close implements io.Closer
func (pw *ParallelWriter) Close() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.closed {
		return nil
	}
	if err := pw.writeHeader(); err != nil {
		return err
	}
	if err := pw.flush(); err != nil {
		return err
	}
	pw.closed = true
	log.L.WithField("bytes", pw.written).WithField("workers", pw.numWorkers).Debug("parallel lz4 frame closed")
	return pw.bw.writeEnd(pw.content)
}

// Reset resets the writer to write a new frame to w
func (pw *ParallelWriter) Reset(w io.Writer) {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	pw.bw.w = w
	pw.pending = pw.pending[:0]
	pw.closed = false
	pw.wroteHeader = false
	pw.written = 0
	if pw.content != nil {
		pw.content.Reset()
	}
}

func (pw *ParallelWriter) writeHeader() error {
	if pw.wroteHeader {
		return nil
	}
	if _, err := pw.bw.w.Write(pw.header.appendTo(make([]byte, 0, maxHeaderSize))); err != nil {
		return err
	}
	pw.wroteHeader = true
	return nil
}

// compressor returns the context of worker i, creating it on first use.
func (pw *ParallelWriter) compressor(i int) (*Compressor, error) {
	for len(pw.compressors) <= i {
		c, err := NewCompressor(pw.level)
		if err != nil {
			return nil, err
		}
		c.SetPatternAnalysis(pw.pattern)
		pw.compressors = append(pw.compressors, c)
	}
	return pw.compressors[i], nil
}

// flush compresses the pending blocks concurrently and writes them in order.
func (pw *ParallelWriter) flush() error {
	if len(pw.pending) == 0 {
		return nil
	}

	var blocks [][]byte
	for off := 0; off < len(pw.pending); off += pw.blockSize {
		end := off + pw.blockSize
		if end > len(pw.pending) {
			end = len(pw.pending)
		}
		blocks = append(blocks, pw.pending[off:end])
	}

	sizes := make([]int, len(blocks))
	var g errgroup.Group
	for i, block := range blocks {
		i, block := i, block
		c, err := pw.compressor(i)
		if err != nil {
			return err
		}
		if len(pw.zbufs[i]) < CompressBound(len(block)) {
			pw.zbufs[i] = make([]byte, CompressBound(pw.blockSize))
		}
		zbuf := pw.zbufs[i]
		g.Go(func() error {
			n, _, err := c.Compress(block, zbuf, NoLimit)
			if err != nil {
				return errors.Wrapf(err, "compress block %d", i)
			}
			sizes[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, block := range blocks {
		if err := pw.bw.writeBlock(block, pw.zbufs[i][:sizes[i]]); err != nil {
			return err
		}
		if pw.content != nil {
			pw.content.Write(block)
		}
	}
	pw.written += uint64(len(pw.pending))
	pw.pending = pw.pending[:0]
	return nil
}
