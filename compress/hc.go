package compress

import (
	"runtime"

	"github.com/pkg/errors"

	"github.com/harriteja/GoZ4HC/matcher"
)

// strategyKind selects the parser used for a level.
type strategyKind int

const (
	hashChainStrategy strategyKind = iota
	optimalStrategy
)

// levelParams holds the search effort for one compression level.
type levelParams struct {
	strategy strategyKind
	// attempts bounds the candidates examined per search
	attempts int
	// sufficient is the match length the optimal parser encodes at once
	sufficient int
	// fullUpdate makes the optimal parser search every position
	fullUpdate bool
}

var levelTable = [MaxLevel + 1]levelParams{
	0:  {hashChainStrategy, 256, 0, false},
	1:  {hashChainStrategy, 2, 0, false},
	2:  {hashChainStrategy, 2, 0, false},
	3:  {hashChainStrategy, 4, 0, false},
	4:  {hashChainStrategy, 8, 0, false},
	5:  {hashChainStrategy, 16, 0, false},
	6:  {hashChainStrategy, 32, 0, false},
	7:  {hashChainStrategy, 64, 0, false},
	8:  {hashChainStrategy, 128, 0, false},
	9:  {hashChainStrategy, 256, 0, false},
	10: {optimalStrategy, 96, 64, false},
	11: {optimalStrategy, 512, 128, false},
	12: {optimalStrategy, 16384, optNum, true},
}

// parser turns the attached input into sequences.
type parser interface {
	parse(enc *encoder) error
}

// Compressor is a reusable block compression context. It owns a match
// index of about 256KB and must not be used by two goroutines at once.
type Compressor struct {
	m               *matcher.HCMatcher
	level           CompressionLevel
	patternAnalysis bool
	chain           hashChainParser
	opt             optimalParser
	// broken is set after an internal error; the context is not reused
	broken bool
}

// NewCompressor returns a compression context for the given level.
func NewCompressor(level CompressionLevel) (*Compressor, error) {
	c := &Compressor{
		m:               matcher.NewHCMatcher(),
		patternAnalysis: true,
	}
	if err := c.SetLevel(level); err != nil {
		return nil, err
	}
	return c, nil
}

// Level returns the current compression level.
func (c *Compressor) Level() CompressionLevel {
	return c.level
}

// SetLevel changes the compression level used by later calls.
func (c *Compressor) SetLevel(level CompressionLevel) error {
	level, err := normalizeLevel(level)
	if err != nil {
		return err
	}
	c.level = level
	return nil
}

// SetPatternAnalysis enables or disables the repeat-run shortcut.
func (c *Compressor) SetPatternAnalysis(enabled bool) {
	c.patternAnalysis = enabled
}

// Compress compresses src into dst as an independent block and returns the
// number of bytes written and consumed. In NoLimit mode a destination
// shorter than CompressBound(len(src)) is treated as LimitedOutput.
func (c *Compressor) Compress(src, dst []byte, mode OutputMode) (written, consumed int, err error) {
	if err := checkInput(src, dst, mode); err != nil {
		return 0, 0, err
	}
	c.m.Reset()
	c.m.Attach(nil, src)
	c.broken = false
	return c.compress(src, dst, mode)
}

func checkInput(src, dst []byte, mode OutputMode) error {
	if len(src) > MaxInputSize {
		return errors.Wrapf(ErrInputTooLarge, "%d bytes", len(src))
	}
	if mode == LimitedDestSize && len(dst) < 1 {
		return errors.Wrap(ErrDstTooSmall, "no room for a token")
	}
	return nil
}

// compress runs the parser selected by the level over the attached input.
func (c *Compressor) compress(src, dst []byte, mode OutputMode) (written, consumed int, err error) {
	if mode == NoLimit && len(dst) < CompressBound(len(src)) {
		mode = LimitedOutput
	}
	defer func() {
		if r := recover(); r != nil {
			written, consumed = 0, 0
			err = internalError(r)
			c.broken = true
		}
	}()

	enc := newEncoder(src, dst, mode)
	if err := c.parser().parse(enc); err != nil {
		return 0, 0, err
	}
	return enc.op, enc.consumed, nil
}

// parser selects the strategy of the current level.
func (c *Compressor) parser() parser {
	lp := levelTable[c.level]
	params := matcher.SearchParams{
		MaxAttempts:     lp.attempts,
		PatternAnalysis: c.patternAnalysis,
	}
	if lp.strategy == optimalStrategy {
		params.ChainSwap = true
		c.opt.reset(c.m, params, lp.sufficient, lp.fullUpdate)
		return &c.opt
	}
	params.PatternAnalysis = c.patternAnalysis && lp.attempts > 128
	c.chain = hashChainParser{m: c.m, params: params}
	return &c.chain
}

// internalError converts a recovered invariant violation into ErrInternal.
// Any other panic is propagated.
func internalError(r any) error {
	switch v := r.(type) {
	case *matcher.InvariantError:
		return errors.Wrap(ErrInternal, v.Error())
	case runtime.Error:
		return errors.Wrap(ErrInternal, v.Error())
	}
	panic(r)
}
