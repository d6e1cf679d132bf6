// Package stattest provides the data plumbing used by kernel two-sample and
// independence tests: block-wise sample fetchers and the per-feature
// initializer that binds a feature set to a fetcher slot.
package stattest

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/kexpfam/pkg/errors"
)

// DataFetcher iterates over the samples of one feature set in blocks.
type DataFetcher interface {
	// Samples returns the feature set the fetcher was created from.
	Samples() mat.Matrix
	// NumSamples returns the number of samples (rows).
	NumSamples() int
	// SetBlockSize sets the number of rows returned by Next. n <= 0 means
	// the whole set in one block.
	SetBlockSize(n int) error
	// Start rewinds to the first block.
	Start()
	// Next returns the next block and true, or nil and false when exhausted.
	Next() (mat.Matrix, bool)
	// Reset rewinds and restores the default block size.
	Reset()
}

// NewDataFetcher returns a fetcher suited to samples. *mat.Dense is served
// as zero-copy row slices; any other matrix is copied block by block.
func NewDataFetcher(samples mat.Matrix) DataFetcher {
	if d, ok := samples.(*mat.Dense); ok {
		return &denseFetcher{blockCursor: blockCursor{n: rowsOf(d)}, samples: d}
	}
	return &copyingFetcher{blockCursor: blockCursor{n: rowsOf(samples)}, samples: samples}
}

func rowsOf(m mat.Matrix) int {
	if m == nil {
		return 0
	}
	if d, ok := m.(*mat.Dense); ok && d.IsEmpty() {
		return 0
	}
	r, _ := m.Dims()
	return r
}

// blockCursor holds the iteration state shared by every fetcher.
type blockCursor struct {
	n         int
	blockSize int
	next      int
}

func (c *blockCursor) NumSamples() int { return c.n }

func (c *blockCursor) SetBlockSize(n int) error {
	if n > c.n && c.n > 0 {
		return errors.NewValidationError("block_size", "must not exceed the number of samples", n)
	}
	c.blockSize = n
	c.next = 0
	return nil
}

func (c *blockCursor) Start() { c.next = 0 }

func (c *blockCursor) Reset() {
	c.blockSize = 0
	c.next = 0
}

// advance returns the next row range [start, end).
func (c *blockCursor) advance() (int, int, bool) {
	if c.next >= c.n {
		return 0, 0, false
	}
	size := c.blockSize
	if size <= 0 {
		size = c.n
	}
	start := c.next
	end := min(start+size, c.n)
	c.next = end
	return start, end, true
}

type denseFetcher struct {
	blockCursor
	samples *mat.Dense
}

func (f *denseFetcher) Samples() mat.Matrix { return f.samples }

func (f *denseFetcher) Next() (mat.Matrix, bool) {
	start, end, ok := f.advance()
	if !ok {
		return nil, false
	}
	_, c := f.samples.Dims()
	return f.samples.Slice(start, end, 0, c), true
}

type copyingFetcher struct {
	blockCursor
	samples mat.Matrix
}

func (f *copyingFetcher) Samples() mat.Matrix { return f.samples }

func (f *copyingFetcher) Next() (mat.Matrix, bool) {
	start, end, ok := f.advance()
	if !ok {
		return nil, false
	}
	_, c := f.samples.Dims()
	block := mat.NewDense(end-start, c, nil)
	for i := start; i < end; i++ {
		for j := 0; j < c; j++ {
			block.Set(i-start, j, f.samples.At(i, j))
		}
	}
	return block, true
}

// ForEachBlock calls fn for every block of f starting from the first one.
// Iteration stops at the first error.
func ForEachBlock(f DataFetcher, fn func(block mat.Matrix, startRow int) error) error {
	f.Start()
	start := 0
	for {
		block, ok := f.Next()
		if !ok {
			return nil
		}
		if err := fn(block, start); err != nil {
			return err
		}
		r, _ := block.Dims()
		start += r
	}
}
