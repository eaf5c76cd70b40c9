package compress

import (
	"encoding/binary"
	"hash"
	"io"
	"sync"

	"github.com/containerd/log"
	"github.com/pierrec/lz4/v4"
	"github.com/pierrec/xxHash/xxHash32"
	"github.com/pkg/errors"
)

const (
	// DefaultBlockSize is the default frame block size
	DefaultBlockSize = 4 << 20

	// Magic number for LZ4 frame detection
	frameMagic uint32 = 0x184D2204

	// frameVersion is the version field of the FLG byte
	frameVersion = 0x40

	// storedBlockFlag marks a block stored without compression
	storedBlockFlag = 0x80000000

	// Maximum size for frame header
	maxHeaderSize = 15
)

// FLG byte flags
const (
	flagBlockIndependence = 0x20
	flagBlockChecksum     = 0x10
	flagContentSize       = 0x08
	flagContentChecksum   = 0x04
)

var (
	// ErrInvalidFrame indicates an invalid frame format
	ErrInvalidFrame = errors.New("invalid LZ4 frame format")
	// ErrInvalidBlockSize indicates a block size the frame format cannot describe
	ErrInvalidBlockSize = errors.New("invalid block size")
	// ErrWriterClosed is returned when writing to a closed writer
	ErrWriterClosed = errors.New("writer is closed")
)

// blockSizeID returns the BD identifier of a frame block size.
func blockSizeID(size int) (byte, error) {
	switch size {
	case 64 << 10:
		return 4, nil
	case 256 << 10:
		return 5, nil
	case 1 << 20:
		return 6, nil
	case 4 << 20:
		return 7, nil
	}
	return 0, errors.Wrapf(ErrInvalidBlockSize, "%d bytes", size)
}

// frameHeader contains LZ4 frame information
type frameHeader struct {
	blockIndependence bool
	blockChecksum     bool
	contentChecksum   bool
	contentSize       uint64
	blockSizeID       byte
}

// appendTo encodes the header, including its checksum byte.
func (h frameHeader) appendTo(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, frameMagic)
	start := len(buf)

	flg := byte(frameVersion)
	if h.blockIndependence {
		flg |= flagBlockIndependence
	}
	if h.blockChecksum {
		flg |= flagBlockChecksum
	}
	if h.contentSize > 0 {
		flg |= flagContentSize
	}
	if h.contentChecksum {
		flg |= flagContentChecksum
	}
	buf = append(buf, flg, h.blockSizeID<<4)
	if h.contentSize > 0 {
		buf = binary.LittleEndian.AppendUint64(buf, h.contentSize)
	}
	return append(buf, byte(xxHash32.Checksum(buf[start:], 0)>>8))
}

// WriterOptions configures a frame Writer
type WriterOptions struct {
	// Level sets the compression level
	Level CompressionLevel
	// BlockSize is the maximum block size: 64KiB, 256KiB, 1MiB or 4MiB
	BlockSize int
	// BlockChecksum appends a checksum to every block
	BlockChecksum bool
	// ContentChecksum appends a checksum of the whole content
	ContentChecksum bool
	// ContentSize is recorded in the header when non-zero
	ContentSize uint64
	// DependentBlocks lets blocks reference the data of earlier blocks
	DependentBlocks bool
	// DisablePatternAnalysis turns off the repeat-run shortcut
	DisablePatternAnalysis bool
}

// DefaultWriterOptions returns the options used by NewWriter.
func DefaultWriterOptions() WriterOptions {
	return WriterOptions{
		Level:           DefaultLevel,
		BlockSize:       DefaultBlockSize,
		ContentChecksum: true,
	}
}

func (o WriterOptions) header() (frameHeader, error) {
	if o.BlockSize == 0 {
		o.BlockSize = DefaultBlockSize
	}
	id, err := blockSizeID(o.BlockSize)
	if err != nil {
		return frameHeader{}, err
	}
	return frameHeader{
		blockIndependence: !o.DependentBlocks,
		blockChecksum:     o.BlockChecksum,
		contentChecksum:   o.ContentChecksum,
		contentSize:       o.ContentSize,
		blockSizeID:       id,
	}, nil
}

// blockWriter writes the block part of a frame.
type blockWriter struct {
	w        io.Writer
	checksum bool
	scratch  []byte
}

// writeBlock writes one block, storing raw when compression did not help.
func (bw *blockWriter) writeBlock(raw, compressed []byte) error {
	data := compressed
	size := uint32(len(compressed))
	if len(compressed) == 0 || len(compressed) >= len(raw) {
		data = raw
		size = uint32(len(raw)) | storedBlockFlag
	}
	bw.scratch = binary.LittleEndian.AppendUint32(bw.scratch[:0], size)
	bw.scratch = append(bw.scratch, data...)
	if bw.checksum {
		bw.scratch = binary.LittleEndian.AppendUint32(bw.scratch, xxHash32.Checksum(data, 0))
	}
	_, err := bw.w.Write(bw.scratch)
	return err
}

// writeEnd writes the end mark and the optional content checksum.
func (bw *blockWriter) writeEnd(content hash.Hash32) error {
	bw.scratch = binary.LittleEndian.AppendUint32(bw.scratch[:0], 0)
	if content != nil {
		bw.scratch = binary.LittleEndian.AppendUint32(bw.scratch, content.Sum32())
	}
	_, err := bw.w.Write(bw.scratch)
	return err
}

// Writer is an io.WriteCloser that compresses to an LZ4 frame
type Writer struct {
	bw          blockWriter
	opts        WriterOptions
	header      frameHeader
	comp        *Compressor
	stream      *Stream
	content     hash.Hash32
	buf         []byte
	zbuf        []byte
	wroteHeader bool
	closed      bool
	written     uint64
	blocks      int
	mu          sync.Mutex
}

// NewWriter returns a new Writer that compresses to w
func NewWriter(w io.Writer) *Writer {
	zw, _ := NewWriterWithOptions(w, DefaultWriterOptions())
	return zw
}

// NewWriterLevel returns a new Writer that compresses to w with the given level
func NewWriterLevel(w io.Writer, level CompressionLevel) (*Writer, error) {
	opts := DefaultWriterOptions()
	opts.Level = level
	return NewWriterWithOptions(w, opts)
}

// NewWriterWithOptions returns a new Writer configured by opts
func NewWriterWithOptions(w io.Writer, opts WriterOptions) (*Writer, error) {
	header, err := opts.header()
	if err != nil {
		return nil, err
	}
	blockSize := opts.BlockSize
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	z := &Writer{
		bw:     blockWriter{w: w, checksum: opts.BlockChecksum},
		opts:   opts,
		header: header,
		buf:    make([]byte, 0, blockSize),
		zbuf:   make([]byte, CompressBound(blockSize)),
	}
	if opts.DependentBlocks {
		z.stream, err = NewStream(opts.Level)
		if err == nil {
			z.stream.SetPatternAnalysis(!opts.DisablePatternAnalysis)
		}
	} else {
		z.comp, err = NewCompressor(opts.Level)
		if err == nil {
			z.comp.SetPatternAnalysis(!opts.DisablePatternAnalysis)
		}
	}
	if err != nil {
		return nil, err
	}
	z.resetContent()
	return z, nil
}

func (z *Writer) resetContent() {
	z.content = nil
	if z.opts.ContentChecksum {
		z.content = xxHash32.New(0)
	}
}

// Write implements io.Writer
func (z *Writer) Write(p []byte) (int, error) {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.closed {
		return 0, ErrWriterClosed
	}
	if err := z.writeHeader(); err != nil {
		return 0, err
	}

	total := 0
	for len(p) > 0 {
		n := cap(z.buf) - len(z.buf)
		if n > len(p) {
			n = len(p)
		}
		z.buf = append(z.buf, p[:n]...)
		p = p[n:]
		total += n

		if len(z.buf) == cap(z.buf) {
			if err := z.flush(); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// writeHeader writes the LZ4 frame header once
func (z *Writer) writeHeader() error {
	if z.wroteHeader {
		return nil
	}
	if _, err := z.bw.w.Write(z.header.appendTo(make([]byte, 0, maxHeaderSize))); err != nil {
		return err
	}
	z.wroteHeader = true
	return nil
}

// flush compresses and writes the buffered block
func (z *Writer) flush() error {
	if len(z.buf) == 0 {
		return nil
	}

	var n int
	var err error
	if z.stream != nil {
		n, err = z.stream.CompressContinue(z.buf, z.zbuf)
	} else {
		n, _, err = z.comp.Compress(z.buf, z.zbuf, NoLimit)
	}
	if err != nil {
		return errors.Wrapf(err, "compress block %d", z.blocks)
	}
	if err := z.bw.writeBlock(z.buf, z.zbuf[:n]); err != nil {
		return err
	}
	if z.content != nil {
		z.content.Write(z.buf)
	}

	z.written += uint64(len(z.buf))
	z.blocks++
	z.buf = z.buf[:0]
	return nil
}

// Flush compresses and writes any buffered data as a block
func (z *Writer) Flush() error {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.closed {
		return ErrWriterClosed
	}
	if err := z.writeHeader(); err != nil {
		return err
	}
	return z.flush()
}

// Close closes the Writer, flushing any unwritten data to the underlying io.Writer
func (z *Writer) Close() error {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.closed {
		return nil
	}
	if err := z.writeHeader(); err != nil {
		return err
	}
	if err := z.flush(); err != nil {
		return err
	}
	z.closed = true
	log.L.WithField("blocks", z.blocks).WithField("bytes", z.written).Debug("lz4 frame closed")
	return z.bw.writeEnd(z.content)
}

// Reset discards the Writer's state and makes it write a new frame to w
func (z *Writer) Reset(w io.Writer) {
	z.mu.Lock()
	defer z.mu.Unlock()

	z.bw.w = w
	z.buf = z.buf[:0]
	z.written = 0
	z.blocks = 0
	z.closed = false
	z.wroteHeader = false
	if z.stream != nil {
		z.stream.Reset()
	}
	z.resetContent()
}

// Reader is an io.Reader that decompresses an LZ4 frame
type Reader struct {
	zr *lz4.Reader
}

// NewReader returns a new Reader that decompresses from r
func NewReader(r io.Reader) *Reader {
	return &Reader{zr: lz4.NewReader(r)}
}

// Read implements io.Reader
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.zr.Read(p)
	if err != nil && err != io.EOF {
		return n, errors.Wrapf(ErrInvalidFrame, "%v", err)
	}
	return n, err
}

// Reset makes the Reader decompress a new frame from rd
func (r *Reader) Reset(rd io.Reader) {
	r.zr.Reset(rd)
}
