package compress

import (
	"github.com/pkg/errors"

	"github.com/harriteja/GoZ4HC/matcher"
)

// MaxDictSize is the amount of history a stream keeps for later blocks.
const MaxDictSize = matcher.MaxDictSize

// Stream compresses a sequence of blocks where each block may reference up
// to 64KB of the bytes that came before it. It keeps its own copy of that
// history, so callers may reuse their buffers between calls. A Stream must
// not be used by two goroutines at once.
type Stream struct {
	c       *Compressor
	history []byte
}

// NewStream returns an empty stream compressing at the given level.
func NewStream(level CompressionLevel) (*Stream, error) {
	c, err := NewCompressor(level)
	if err != nil {
		return nil, err
	}
	return &Stream{
		c:       c,
		history: make([]byte, 0, MaxDictSize),
	}, nil
}

// Level returns the compression level of the stream.
func (s *Stream) Level() CompressionLevel {
	return s.c.Level()
}

// SetLevel changes the level used for the following blocks. History is kept.
func (s *Stream) SetLevel(level CompressionLevel) error {
	return s.c.SetLevel(level)
}

// SetPatternAnalysis enables or disables the repeat-run shortcut.
func (s *Stream) SetPatternAnalysis(enabled bool) {
	s.c.SetPatternAnalysis(enabled)
}

// Reset forgets all history and clears a previous internal error.
func (s *Stream) Reset() {
	s.c.m.Reset()
	s.c.broken = false
	s.history = s.history[:0]
}

// LoadDict resets the stream and uses the last 64KB of dict as history.
// It returns the number of bytes kept.
func (s *Stream) LoadDict(dict []byte) int {
	s.Reset()
	if len(dict) > MaxDictSize {
		dict = dict[len(dict)-MaxDictSize:]
	}
	s.history = append(s.history, dict...)
	s.c.m.LoadDict(s.history)
	return len(s.history)
}

// SaveDict copies up to len(buf) bytes of the most recent history into buf
// and returns how many were copied. Later blocks only reference those bytes.
func (s *Stream) SaveDict(buf []byte) int {
	n := len(buf)
	if n > len(s.history) {
		n = len(s.history)
	}
	copy(buf, s.history[len(s.history)-n:])
	copy(s.history, s.history[len(s.history)-n:])
	s.history = s.history[:n]
	s.c.m.Attach(s.history, nil)
	return n
}

// Dict returns the current history. The slice is only valid until the next
// call on the stream.
func (s *Stream) Dict() []byte {
	return s.history
}

// CompressContinue compresses src as the next block of the stream and
// returns the number of bytes written to dst. On ErrDstTooSmall the stream
// is left as if the call never happened.
func (s *Stream) CompressContinue(src, dst []byte) (int, error) {
	n, _, err := s.compressContinue(src, dst, NoLimit)
	return n, err
}

// CompressContinueDestSize compresses as much of src as fits into dst.
// Only the consumed prefix becomes part of the stream history.
func (s *Stream) CompressContinueDestSize(src, dst []byte) (written, consumed int, err error) {
	return s.compressContinue(src, dst, LimitedDestSize)
}

func (s *Stream) compressContinue(src, dst []byte, mode OutputMode) (written, consumed int, err error) {
	if s.c.broken {
		return 0, 0, errors.Wrap(ErrInternal, "stream must be reset after an internal error")
	}
	if err := checkInput(src, dst, mode); err != nil {
		return 0, 0, err
	}

	s.c.m.Attach(s.history, src)
	written, consumed, err = s.c.compress(src, dst, mode)
	switch {
	case s.c.broken:
		return 0, 0, err
	case err != nil:
		// Drop whatever was indexed from src.
		s.c.m.LoadDict(s.history)
		return 0, 0, err
	case consumed < len(src):
		s.appendHistory(src[:consumed])
		s.c.m.LoadDict(s.history)
	default:
		s.appendHistory(src)
		s.c.m.Attach(s.history, nil)
	}
	return written, consumed, nil
}

// appendHistory adds b to the history, keeping only the last 64KB.
func (s *Stream) appendHistory(b []byte) {
	if len(b) >= MaxDictSize {
		s.history = append(s.history[:0], b[len(b)-MaxDictSize:]...)
		return
	}
	if keep := MaxDictSize - len(b); len(s.history) > keep {
		n := copy(s.history, s.history[len(s.history)-keep:])
		s.history = s.history[:n]
	}
	s.history = append(s.history, b...)
}
