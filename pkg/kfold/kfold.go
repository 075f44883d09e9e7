// Package kfold assigns data points to cross-validation folds reproducibly
// from a seed, either independently per point or grouped by spatial block.
package kfold

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Folder assigns a fold label in [1, K] to each point of a batch. Points
// are (x, y) image pixel indices. Implementations consume seeded generator
// state sequentially and are not safe for concurrent use; assignment must
// happen in the orchestrating goroutine, never inside a worker.
type Folder interface {
	Assign(points [][2]int) []int
	NumFolds() int
	Counts() map[int]int
	Proportions() []float64
}

// KFolder draws an independent uniform fold label for every point. The
// sequence of labels over a run is deterministic for a fixed seed and batch
// partition.
type KFolder struct {
	k      int
	rnd    *rand.Rand
	counts map[int]int
}

// NewKFolder creates a per-point fold assigner. K must be greater than 1.
func NewKFolder(k int, seed int64) (*KFolder, error) {
	if k <= 1 {
		return nil, fmt.Errorf("fold count must be > 1, got %d", k)
	}
	counts := make(map[int]int, k)
	for i := 1; i <= k; i++ {
		counts[i] = 0
	}
	return &KFolder{
		k:      k,
		rnd:    rand.New(rand.NewSource(seed)),
		counts: counts,
	}, nil
}

// Assign draws a fold label in [1, K] for each point and records the
// running per-fold counts.
func (f *KFolder) Assign(points [][2]int) []int {
	folds := make([]int, len(points))
	for i := range points {
		folds[i] = 1 + f.rnd.Intn(f.k)
		f.counts[folds[i]]++
	}
	return folds
}

// NumFolds returns K.
func (f *KFolder) NumFolds() int {
	return f.k
}

// Counts returns the running number of points assigned to each fold.
func (f *KFolder) Counts() map[int]int {
	out := make(map[int]int, f.k)
	for k, v := range f.counts {
		out[k] = v
	}
	return out
}

// Proportions returns the fraction of points assigned so far to each fold
// label 1..K.
func (f *KFolder) Proportions() []float64 {
	props := make([]float64, f.k)
	for i := 1; i <= f.k; i++ {
		props[i-1] = float64(f.counts[i])
	}
	total := floats.Sum(props)
	if total > 0 {
		floats.Scale(1/total, props)
	}
	return props
}

// BlockedKFolder groups fold assignment by square spatial block: every
// point in the same block always receives the same label. Block labels are
// drawn eagerly at construction. Each block's draw is retried until the
// label differs from the up and left neighbours' labels, so no two
// vertically or horizontally adjacent blocks share a fold. For K == 2 that
// constraint is unsatisfiable on interior blocks, so only the up neighbour
// is excluded.
type BlockedKFolder struct {
	KFolder

	blockPx    int
	rows, cols int // block grid dimensions
	blockFolds []int
}

// NewBlockedKFolder creates a block-grouped fold assigner for an image of
// imShape = (width, height) pixels, divided into blockPx-sized blocks.
func NewBlockedKFolder(imShape [2]int, blockPx, k int, seed int64) (*BlockedKFolder, error) {
	base, err := NewKFolder(k, seed)
	if err != nil {
		return nil, err
	}
	if blockPx < 1 {
		return nil, fmt.Errorf("block size must be >= 1 pixel, got %d", blockPx)
	}
	if imShape[0] < 1 || imShape[1] < 1 {
		return nil, fmt.Errorf("image shape must be positive, got %dx%d", imShape[0], imShape[1])
	}
	f := &BlockedKFolder{
		KFolder: *base,
		blockPx: blockPx,
		rows:    ceilDiv(imShape[0], blockPx),
		cols:    ceilDiv(imShape[1], blockPx),
	}
	f.drawBlockFolds()
	return f, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// drawBlockFolds fills the block label grid row-major, excluding each
// block's up and left neighbour labels from its draw.
func (f *BlockedKFolder) drawBlockFolds() {
	f.blockFolds = make([]int, f.rows*f.cols)
	for i := 0; i < f.rows; i++ {
		for j := 0; j < f.cols; j++ {
			excl := map[int]bool{0: true}
			if i > 0 {
				excl[f.blockFolds[(i-1)*f.cols+j]] = true
			}
			if j > 0 && f.k > 2 {
				excl[f.blockFolds[i*f.cols+j-1]] = true
			}
			label := 0
			for excl[label] {
				label = 1 + f.rnd.Intn(f.k)
			}
			f.blockFolds[i*f.cols+j] = label
		}
	}
}

// BlockFold returns the precomputed label of block (i, j) in the block
// grid. Exposed for tests of the adjacency policy.
func (f *BlockedKFolder) BlockFold(i, j int) int {
	return f.blockFolds[i*f.cols+j]
}

// BlockGrid returns the block grid dimensions.
func (f *BlockedKFolder) BlockGrid() (rows, cols int) {
	return f.rows, f.cols
}

// Assign maps each point to its block by integer division and looks up the
// block's precomputed label, recording running counts.
func (f *BlockedKFolder) Assign(points [][2]int) []int {
	folds := make([]int, len(points))
	for i, p := range points {
		bi := p[0] / f.blockPx
		bj := p[1] / f.blockPx
		folds[i] = f.blockFolds[bi*f.cols+bj]
		f.counts[folds[i]]++
	}
	return folds
}
