package compress

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/pierrec/lz4/v4"
	"github.com/pierrec/xxHash/xxHash32"
	"github.com/pkg/errors"
)

// compressFrame writes data through a Writer configured with opts.
func compressFrame(t *testing.T, data []byte, opts WriterOptions) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriterWithOptions(&buf, opts)
	if err != nil {
		t.Fatalf("NewWriterWithOptions() error = %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return buf.Bytes()
}

// Test frame header encoding
func TestFrameHeader(t *testing.T) {
	tests := []struct {
		name     string
		opts     WriterOptions
		wantFLG  byte
		wantBD   byte
		wantSize int
	}{
		{"Default header", DefaultWriterOptions(), 0x64, 0x70, 7},
		{"No checksums", WriterOptions{}, 0x60, 0x70, 7},
		{"With block checksum", WriterOptions{BlockChecksum: true}, 0x70, 0x70, 7},
		{"With content size", WriterOptions{ContentSize: 1000}, 0x68, 0x70, 15},
		{"Dependent blocks", WriterOptions{DependentBlocks: true}, 0x40, 0x70, 7},
		{"Small block size", WriterOptions{BlockSize: 64 << 10}, 0x60, 0x40, 7},
		{"256KB block size", WriterOptions{BlockSize: 256 << 10}, 0x60, 0x50, 7},
		{"1MB block size", WriterOptions{BlockSize: 1 << 20}, 0x60, 0x60, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, err := tt.opts.header()
			if err != nil {
				t.Fatalf("header() error = %v", err)
			}
			got := header.appendTo(nil)
			if len(got) != tt.wantSize {
				t.Fatalf("header size = %d, want %d", len(got), tt.wantSize)
			}
			if magic := binary.LittleEndian.Uint32(got); magic != frameMagic {
				t.Errorf("magic = %#x, want %#x", magic, frameMagic)
			}
			if got[4] != tt.wantFLG {
				t.Errorf("FLG = %#x, want %#x", got[4], tt.wantFLG)
			}
			if got[5] != tt.wantBD {
				t.Errorf("BD = %#x, want %#x", got[5], tt.wantBD)
			}
			wantHC := byte(xxHash32.Checksum(got[4:len(got)-1], 0) >> 8)
			if hc := got[len(got)-1]; hc != wantHC {
				t.Errorf("HC = %#x, want %#x", hc, wantHC)
			}
			if tt.opts.ContentSize > 0 {
				if size := binary.LittleEndian.Uint64(got[6:]); size != tt.opts.ContentSize {
					t.Errorf("content size = %d, want %d", size, tt.opts.ContentSize)
				}
			}
		})
	}
}

func TestInvalidBlockSize(t *testing.T) {
	for _, size := range []int{1, 1000, 128 << 10, 8 << 20} {
		_, err := NewWriterWithOptions(io.Discard, WriterOptions{BlockSize: size})
		if !errors.Is(err, ErrInvalidBlockSize) {
			t.Errorf("NewWriterWithOptions(BlockSize: %d) error = %v, want %v", size, err, ErrInvalidBlockSize)
		}
	}
}

func TestEmptyFrame(t *testing.T) {
	frame := compressFrame(t, nil, DefaultWriterOptions())

	// Header, end mark and the checksum of no content.
	if len(frame) != 15 {
		t.Fatalf("empty frame size = %d, want 15", len(frame))
	}
	if end := binary.LittleEndian.Uint32(frame[7:]); end != 0 {
		t.Errorf("end mark = %#x, want 0", end)
	}
	if sum := binary.LittleEndian.Uint32(frame[11:]); sum != xxHash32.Checksum(nil, 0) {
		t.Errorf("content checksum = %#x, want %#x", sum, xxHash32.Checksum(nil, 0))
	}

	got, err := io.ReadAll(NewReader(bytes.NewReader(frame)))
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("decoded %d bytes from an empty frame", len(got))
	}
}

// Test Writer and Reader together
func TestFrameRoundTrip(t *testing.T) {
	data := generateTextData(600*1024, 31)
	tests := []struct {
		name string
		opts WriterOptions
	}{
		{"Default", DefaultWriterOptions()},
		{"Fast level", WriterOptions{Level: FastLevel, ContentChecksum: true}},
		{"Max level small blocks", WriterOptions{Level: MaxLevel, BlockSize: 64 << 10}},
		{"Block checksum", WriterOptions{BlockChecksum: true, BlockSize: 256 << 10}},
		{"Content size", WriterOptions{ContentSize: uint64(len(data)), ContentChecksum: true}},
		{"Dependent blocks", WriterOptions{DependentBlocks: true, BlockSize: 64 << 10, ContentChecksum: true}},
		{"Dependent optimal", WriterOptions{Level: OptMinLevel, DependentBlocks: true, BlockSize: 64 << 10}},
		{"No pattern analysis", WriterOptions{DisablePatternAnalysis: true, BlockSize: 1 << 20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := compressFrame(t, data, tt.opts)
			if len(frame) >= len(data) {
				t.Errorf("frame size %d not smaller than input %d", len(frame), len(data))
			}

			got, err := io.ReadAll(NewReader(bytes.NewReader(frame)))
			if err != nil {
				t.Fatalf("Reader: ReadAll() error = %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Fatalf("Reader: decoded data differs from input")
			}

			// Any conforming reader accepts the frame.
			got, err = io.ReadAll(lz4.NewReader(bytes.NewReader(frame)))
			if err != nil {
				t.Fatalf("lz4.Reader: ReadAll() error = %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Fatalf("lz4.Reader: decoded data differs from input")
			}
		})
	}
}

func TestReadForeignFrame(t *testing.T) {
	data := generateTextData(200*1024, 17)

	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("lz4.Writer.Write() error = %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("lz4.Writer.Close() error = %v", err)
	}

	got, err := io.ReadAll(NewReader(&buf))
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("decoded data differs from input")
	}
}

func TestStoredBlock(t *testing.T) {
	data := generateRandomData(64 << 10)
	frame := compressFrame(t, data, WriterOptions{BlockSize: 64 << 10})

	size := binary.LittleEndian.Uint32(frame[7:])
	if size != storedBlockFlag|uint32(len(data)) {
		t.Fatalf("block size field = %#x, want stored block of %d bytes", size, len(data))
	}
	if !bytes.Equal(frame[11:11+len(data)], data) {
		t.Errorf("stored block does not hold the raw input")
	}

	got, err := io.ReadAll(NewReader(bytes.NewReader(frame)))
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("decoded data differs from input")
	}
}

func TestBlockChecksum(t *testing.T) {
	data := generateCompressibleData(10000)
	frame := compressFrame(t, data, WriterOptions{BlockChecksum: true})

	size := int(binary.LittleEndian.Uint32(frame[7:]))
	block := frame[11 : 11+size]
	sum := binary.LittleEndian.Uint32(frame[11+size:])
	if sum != xxHash32.Checksum(block, 0) {
		t.Errorf("block checksum = %#x, want %#x", sum, xxHash32.Checksum(block, 0))
	}

	// A flipped bit inside the block is detected.
	frame[11] ^= 0x01
	if _, err := io.ReadAll(NewReader(bytes.NewReader(frame))); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("ReadAll() on corrupt block error = %v, want %v", err, ErrInvalidFrame)
	}
}

func TestReaderInvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"Invalid magic number", []byte(strings.Repeat("not an lz4 frame ", 4))},
		{"Truncated frame", compressFrame(t, generateTextData(5000, 1), DefaultWriterOptions())[:20]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := io.ReadAll(NewReader(bytes.NewReader(tt.input)))
			if !errors.Is(err, ErrInvalidFrame) {
				t.Errorf("ReadAll() error = %v, want %v", err, ErrInvalidFrame)
			}
		})
	}
}

func TestWriterLevel(t *testing.T) {
	if _, err := NewWriterLevel(io.Discard, MaxLevel+1); !errors.Is(err, ErrInvalidCompressionLevel) {
		t.Errorf("NewWriterLevel() error = %v, want %v", err, ErrInvalidCompressionLevel)
	}

	data := generateTextData(100000, 2)
	for _, level := range []CompressionLevel{MinLevel, DefaultLevel, MaxLevel} {
		t.Run(fmt.Sprintf("level-%d", level), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriterLevel(&buf, level)
			if err != nil {
				t.Fatalf("NewWriterLevel() error = %v", err)
			}
			// Many small writes.
			for off := 0; off < len(data); off += 777 {
				end := off + 777
				if end > len(data) {
					end = len(data)
				}
				if _, err := w.Write(data[off:end]); err != nil {
					t.Fatalf("Write() error = %v", err)
				}
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}
			got, err := io.ReadAll(NewReader(&buf))
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Errorf("decoded data differs from input")
			}
		})
	}
}

// Test flush behavior
func TestFlush(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	first := generateTextData(3000, 1)
	if _, err := w.Write(first); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	afterFlush := buf.Len()
	if afterFlush <= 7 {
		t.Fatalf("Flush() wrote %d bytes, want header and a block", afterFlush)
	}

	// Flushing with nothing buffered writes nothing.
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if buf.Len() != afterFlush {
		t.Errorf("empty Flush() wrote %d bytes", buf.Len()-afterFlush)
	}

	second := generateTextData(3000, 2)
	w.Write(second)
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	got, err := io.ReadAll(NewReader(&buf))
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !bytes.Equal(got, append(first, second...)) {
		t.Errorf("decoded data differs from input")
	}
}

func TestWriterClosed(t *testing.T) {
	w := NewWriter(io.Discard)
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}
	if _, err := w.Write([]byte("late")); !errors.Is(err, ErrWriterClosed) {
		t.Errorf("Write() after Close error = %v, want %v", err, ErrWriterClosed)
	}
	if err := w.Flush(); !errors.Is(err, ErrWriterClosed) {
		t.Errorf("Flush() after Close error = %v, want %v", err, ErrWriterClosed)
	}
}

func TestWriterReset(t *testing.T) {
	opts := WriterOptions{DependentBlocks: true, BlockSize: 64 << 10, ContentChecksum: true}
	data := generateTextData(150*1024, 3)

	var first bytes.Buffer
	w, err := NewWriterWithOptions(&first, opts)
	if err != nil {
		t.Fatalf("NewWriterWithOptions() error = %v", err)
	}
	w.Write(data)
	w.Close()

	var second bytes.Buffer
	w.Reset(&second)
	w.Write(data)
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Errorf("frame after Reset differs from the first frame")
	}
}

func TestReaderReset(t *testing.T) {
	a := compressFrame(t, []byte(strings.Repeat("first frame ", 100)), DefaultWriterOptions())
	b := compressFrame(t, []byte(strings.Repeat("second frame ", 100)), DefaultWriterOptions())

	r := NewReader(bytes.NewReader(a))
	if _, err := io.ReadAll(r); err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	r.Reset(bytes.NewReader(b))
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() after Reset error = %v", err)
	}
	if string(got) != strings.Repeat("second frame ", 100) {
		t.Errorf("Reset() reader decoded the wrong frame")
	}
}

func BenchmarkWriter(b *testing.B) {
	data := generateTextData(4<<20, 1)
	b.SetBytes(int64(len(data)))
	w := NewWriter(io.Discard)
	for i := 0; i < b.N; i++ {
		w.Reset(io.Discard)
		w.Write(data)
		w.Close()
	}
}
