package compress

import (
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// defaultMaxSize is the output size assumed when the caller gives none.
const defaultMaxSize = 64 * 1024

// ErrCorruptInput indicates a block that cannot be decoded
var ErrCorruptInput = errors.New("corrupt compressed block")

// DecompressBlock decompresses an LZ4 block whose decoded size is at most
// maxSize. If dst is nil or too small, a new buffer will be allocated.
func DecompressBlock(src []byte, dst []byte, maxSize int) ([]byte, error) {
	return DecompressBlockWithDict(src, dst, nil, maxSize)
}

// DecompressBlockWithDict decompresses a block produced by a Stream. dict
// must hold the stream bytes that precede the block.
func DecompressBlockWithDict(src, dst, dict []byte, maxSize int) ([]byte, error) {
	if len(src) == 0 {
		return nil, errors.Wrap(ErrCorruptInput, "empty source buffer")
	}
	if len(src) == 1 && src[0] == 0 {
		return dst[:0], nil
	}
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	if len(dst) < maxSize {
		dst = make([]byte, maxSize)
	}

	var (
		n   int
		err error
	)
	if len(dict) > 0 {
		n, err = lz4.UncompressBlockWithDict(src, dst, dict)
	} else {
		n, err = lz4.UncompressBlock(src, dst)
	}
	if err != nil {
		return nil, errors.Wrapf(ErrCorruptInput, "%v", err)
	}
	return dst[:n], nil
}
