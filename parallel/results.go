package parallel

import (
	"sync"

	"github.com/pkg/errors"
)

var (
	// ErrIndexOutOfRange indicates a block index outside the collector
	ErrIndexOutOfRange = errors.New("block index out of range")
	// ErrCollectorComplete is returned when adding to a finished collector
	ErrCollectorComplete = errors.New("collector is already complete")
	// ErrNoMoreBlocks is returned once every block has been handed out
	ErrNoMoreBlocks = errors.New("no more blocks")
)

// ResultsCollector gathers block results that arrive in any order and
// hands them out in index order.
type ResultsCollector struct {
	// Results buffer
	results []BlockResult
	present []bool

	// Current state
	numBlocks      int
	received       int
	nextBlockIndex int
	complete       bool
	err            error

	// Synchronization
	mu      sync.Mutex
	changed sync.Cond
}

// BlockResult represents a compressed block and its metadata
type BlockResult struct {
	// Block index in original sequence
	Index int

	// Compressed data
	Data []byte

	// Original size
	OriginalSize int

	// XXH64 of the original bytes
	Checksum uint64
}

// NewResultsCollector creates a new results collector for the specified number of blocks
func NewResultsCollector(numBlocks int) *ResultsCollector {
	rc := &ResultsCollector{}
	rc.changed.L = &rc.mu
	rc.reset(numBlocks)
	return rc
}

// AddResult stores the result of one block
func (rc *ResultsCollector) AddResult(result BlockResult) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.complete {
		return ErrCollectorComplete
	}
	if result.Index < 0 || result.Index >= rc.numBlocks {
		return errors.Wrapf(ErrIndexOutOfRange, "index %d of %d", result.Index, rc.numBlocks)
	}

	if !rc.present[result.Index] {
		rc.present[result.Index] = true
		rc.received++
	}
	rc.results[result.Index] = result

	if rc.received == rc.numBlocks {
		rc.complete = true
	}
	rc.changed.Broadcast()
	return nil
}

// Abort wakes every waiter and makes them return err. Only the first
// error is kept.
func (rc *ResultsCollector) Abort(err error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.err == nil {
		rc.err = err
	}
	rc.changed.Broadcast()
}

// WaitForCompletion waits until all blocks have been collected or the
// collector is aborted
func (rc *ResultsCollector) WaitForCompletion() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	for !rc.complete && rc.err == nil {
		rc.changed.Wait()
	}
	return rc.err
}

// IsComplete returns true if all results have been collected
func (rc *ResultsCollector) IsComplete() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	return rc.complete
}

// GetResult gets a specific block result
func (rc *ResultsCollector) GetResult(index int) (BlockResult, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if index < 0 || index >= rc.numBlocks {
		return BlockResult{}, errors.Wrapf(ErrIndexOutOfRange, "index %d of %d", index, rc.numBlocks)
	}
	if !rc.present[index] {
		return BlockResult{}, errors.Errorf("block %d not available", index)
	}
	return rc.results[index], nil
}

// GetAllResults gets all block results in order
func (rc *ResultsCollector) GetAllResults() ([]BlockResult, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.err != nil {
		return nil, rc.err
	}
	if !rc.complete {
		return nil, errors.New("collection not complete")
	}

	// Make a copy to avoid race conditions
	results := make([]BlockResult, len(rc.results))
	copy(results, rc.results)
	return results, nil
}

// GetNextResult returns the next block in index order, waiting for it if
// necessary
func (rc *ResultsCollector) GetNextResult() (BlockResult, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	for rc.nextBlockIndex < rc.numBlocks {
		if rc.err != nil {
			return BlockResult{}, rc.err
		}
		if rc.present[rc.nextBlockIndex] {
			result := rc.results[rc.nextBlockIndex]
			rc.nextBlockIndex++
			return result, nil
		}
		rc.changed.Wait()
	}
	return BlockResult{}, ErrNoMoreBlocks
}

// CompressedSize returns the total size of the collected blocks
func (rc *ResultsCollector) CompressedSize() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	total := 0
	for i, ok := range rc.present {
		if ok {
			total += len(rc.results[i].Data)
		}
	}
	return total
}

// Reset prepares the collector for reuse
func (rc *ResultsCollector) Reset(numBlocks int) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.reset(numBlocks)
}

func (rc *ResultsCollector) reset(numBlocks int) {
	if numBlocks < 0 {
		numBlocks = 0
	}
	rc.results = make([]BlockResult, numBlocks)
	rc.present = make([]bool, numBlocks)
	rc.numBlocks = numBlocks
	rc.received = 0
	rc.nextBlockIndex = 0
	rc.complete = numBlocks == 0
	rc.err = nil
}
