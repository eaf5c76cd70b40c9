// Package parallel compresses large inputs as independent LZ4 blocks on a
// pool of workers, each owning its own compression context.
package parallel

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/containerd/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/harriteja/GoZ4HC/compress"
)

// DefaultChunkSize is the default size of chunks for parallel compression
const DefaultChunkSize = 1 << 20 // 1MB

// DefaultNumWorkers is the default number of worker goroutines
const DefaultNumWorkers = 0 // 0 means use runtime.GOMAXPROCS(0)

var (
	// ErrChecksumMismatch indicates a decoded block that does not match its checksum
	ErrChecksumMismatch = errors.New("block checksum mismatch")
	// ErrSizeMismatch indicates a decoded block of unexpected length
	ErrSizeMismatch = errors.New("block size mismatch")
)

// Stats summarizes the work done by a Dispatcher
type Stats struct {
	TotalJobs   int
	TotalBytes  int64
	OutputBytes int64
}

// Dispatcher manages parallel compression of LZ4 blocks. Calls on one
// Dispatcher are serialized; every worker keeps its own Compressor.
type Dispatcher struct {
	// Number of worker goroutines
	numWorkers int

	// Size of each chunk to compress in parallel
	chunkSize int

	level           compress.CompressionLevel
	patternAnalysis bool
	metrics         *Metrics

	// compressors[i] belongs to worker i
	compressors []*compress.Compressor

	stats Stats
	mu    sync.Mutex
}

// NewDispatcher creates a new parallel compression dispatcher
func NewDispatcher(numWorkers, chunkSize int) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Dispatcher{
		numWorkers:      numWorkers,
		chunkSize:       chunkSize,
		level:           compress.DefaultLevel,
		patternAnalysis: true,
	}
}

// NumWorkers returns the number of worker goroutines
func (d *Dispatcher) NumWorkers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.numWorkers
}

// ChunkSize returns the size of chunks used for parallel compression
func (d *Dispatcher) ChunkSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chunkSize
}

// Level returns the compression level
func (d *Dispatcher) Level() compress.CompressionLevel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.level
}

// SetChunkSize changes the chunk size
func (d *Dispatcher) SetChunkSize(size int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if size <= 0 {
		size = DefaultChunkSize
	}
	d.chunkSize = size
}

// SetNumWorkers changes the number of worker goroutines
func (d *Dispatcher) SetNumWorkers(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	d.numWorkers = n
}

// SetLevel changes the compression level of later calls
func (d *Dispatcher) SetLevel(level compress.CompressionLevel) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if level < 0 || level > compress.MaxLevel {
		return errors.Wrapf(compress.ErrInvalidCompressionLevel, "level %d", level)
	}
	if level == 0 {
		level = compress.DefaultLevel
	}
	d.level = level
	for _, c := range d.compressors {
		if err := c.SetLevel(level); err != nil {
			return err
		}
	}
	return nil
}

// SetPatternAnalysis enables or disables the repeat-run shortcut
func (d *Dispatcher) SetPatternAnalysis(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.patternAnalysis = enabled
	for _, c := range d.compressors {
		c.SetPatternAnalysis(enabled)
	}
}

// SetMetrics makes the dispatcher report to m. A nil m disables reporting.
func (d *Dispatcher) SetMetrics(m *Metrics) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.metrics = m
}

// Stats returns the totals accumulated since the dispatcher was created
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// compressor returns the context owned by worker i.
func (d *Dispatcher) compressor(i int) (*compress.Compressor, error) {
	for len(d.compressors) <= i {
		c, err := compress.NewCompressor(d.level)
		if err != nil {
			return nil, err
		}
		c.SetPatternAnalysis(d.patternAnalysis)
		d.compressors = append(d.compressors, c)
	}
	return d.compressors[i], nil
}

// CompressBlocks splits input into chunks and compresses each one as an
// independent block. The results are returned in input order.
func (d *Dispatcher) CompressBlocks(ctx context.Context, input []byte) ([]BlockResult, error) {
	var results []BlockResult
	err := d.CompressBlocksFunc(ctx, input, func(r BlockResult) error {
		results = append(results, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// CompressBlocksFunc compresses input like CompressBlocks and calls fn for
// every block in input order while later blocks are still being compressed.
// An error from fn stops the workers after their current block.
func (d *Dispatcher) CompressBlocksFunc(ctx context.Context, input []byte, fn func(BlockResult) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	numChunks := (len(input) + d.chunkSize - 1) / d.chunkSize
	if numChunks == 0 {
		return nil
	}
	workers := d.numWorkers
	if workers > numChunks {
		workers = numChunks
	}

	logger := log.G(ctx).WithFields(log.Fields{
		"chunks":  numChunks,
		"workers": workers,
		"level":   d.level,
	})
	logger.Debug("dispatching compression")

	jobs := make(chan int, numChunks)
	for i := 0; i < numChunks; i++ {
		jobs <- i
	}
	close(jobs)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	rc := NewResultsCollector(numChunks)

	contexts := make([]*compress.Compressor, workers)
	for w := range contexts {
		c, err := d.compressor(w)
		if err != nil {
			return err
		}
		contexts[w] = c
	}

	for _, c := range contexts {
		c := c
		g.Go(func() error {
			err := d.compressWorker(gctx, c, input, jobs, rc)
			if err != nil {
				rc.Abort(err)
			}
			return err
		})
	}

	var out int64
	var fnErr error
	for i := 0; i < numChunks; i++ {
		r, err := rc.GetNextResult()
		if err != nil {
			break
		}
		out += int64(len(r.Data))
		if fnErr = fn(r); fnErr != nil {
			cancel()
			break
		}
	}

	err := g.Wait()
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return err
	}

	d.stats.TotalJobs += numChunks
	d.stats.TotalBytes += int64(len(input))
	d.stats.OutputBytes += out
	logger.WithField("output", out).Debug("compression finished")
	return nil
}

// compressWorker compresses chunks taken from jobs until none are left.
// Cancellation is only checked between chunks.
func (d *Dispatcher) compressWorker(ctx context.Context, c *compress.Compressor, input []byte, jobs <-chan int, rc *ResultsCollector) error {
	for idx := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := idx * d.chunkSize
		end := start + d.chunkSize
		if end > len(input) {
			end = len(input)
		}
		chunk := input[start:end]

		began := time.Now()
		dst := make([]byte, compress.CompressBound(len(chunk)))
		n, _, err := c.Compress(chunk, dst, compress.NoLimit)
		if err != nil {
			return errors.Wrapf(err, "compress chunk %d", idx)
		}
		d.metrics.observe(opCompress, len(chunk), n, time.Since(began))

		if err := rc.AddResult(BlockResult{
			Index:        idx,
			Data:         dst[:n],
			OriginalSize: len(chunk),
			Checksum:     xxhash.Sum64(chunk),
		}); err != nil {
			return err
		}
	}
	return nil
}

// DecompressBlocks decodes blocks produced by CompressBlocks in parallel
// and returns the concatenated original data.
func (d *Dispatcher) DecompressBlocks(ctx context.Context, blocks []BlockResult) ([]byte, error) {
	d.mu.Lock()
	workers := d.numWorkers
	metrics := d.metrics
	d.mu.Unlock()

	offsets := make([]int, len(blocks)+1)
	for i, b := range blocks {
		if b.Index != i {
			return nil, errors.Wrapf(ErrIndexOutOfRange, "block %d carries index %d", i, b.Index)
		}
		offsets[i+1] = offsets[i] + b.OriginalSize
	}
	out := make([]byte, offsets[len(blocks)])

	log.G(ctx).WithField("blocks", len(blocks)).WithField("workers", workers).Debug("dispatching decompression")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, b := range blocks {
		i, b := i, b
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			began := time.Now()
			dst := out[offsets[i]:offsets[i+1]:offsets[i+1]]
			got, err := compress.DecompressBlock(b.Data, dst, b.OriginalSize)
			if err != nil {
				return errors.Wrapf(err, "decompress block %d", i)
			}
			if len(got) != b.OriginalSize {
				return errors.Wrapf(ErrSizeMismatch, "block %d: got %d bytes, want %d", i, len(got), b.OriginalSize)
			}
			if xxhash.Sum64(got) != b.Checksum {
				return errors.Wrapf(ErrChecksumMismatch, "block %d", i)
			}
			metrics.observe(opDecompress, len(b.Data), len(got), time.Since(began))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
