// Package models holds the value types shared by the extraction pipeline.
package models

import "fmt"

// FixedSlice is a half-open interval [Start, Stop) of row indices used to
// describe contiguous reads from a row-addressable source.
type FixedSlice struct {
	// Start is the first row of the slice
	Start int

	// Stop is one past the last row of the slice
	Stop int
}

// Len returns the number of rows covered by the slice.
func (s FixedSlice) Len() int {
	return s.Stop - s.Start
}

// Value is the set of element types stored in feature arrays: float32 for
// continuous data and int32 for categorical data.
type Value interface {
	~float32 | ~int32
}

// MaskedArray is a dense stack of square patches together with a same-shape
// boolean mask. A mask cell is true wherever the value is missing, either
// because the patch cell fell outside the image or because the stored value
// equals the source's missing sentinel. Data is laid out row-major as
// (patch, row, col, channel).
type MaskedArray[T Value] struct {
	// Data is the dense patch values, zero-filled where masked
	Data []T

	// Mask is true wherever the corresponding value is missing
	Mask []bool

	// NPatches is the number of patches in the stack
	NPatches int

	// Side is the patch side length in pixels (2*halfwidth + 1)
	Side int

	// Channels is the number of feature channels per pixel
	Channels int
}

// NewMaskedArray allocates a zero-filled patch stack with an all-false mask.
// Zero or negative dimensions are a caller bug, not a runtime condition.
func NewMaskedArray[T Value](npatches, side, channels int) *MaskedArray[T] {
	if npatches <= 0 || side <= 0 || channels <= 0 {
		panic(fmt.Sprintf("models: invalid patch stack dimensions (%d, %d, %d)",
			npatches, side, channels))
	}
	n := npatches * side * side * channels
	return &MaskedArray[T]{
		Data:     make([]T, n),
		Mask:     make([]bool, n),
		NPatches: npatches,
		Side:     side,
		Channels: channels,
	}
}

// cellOffset returns the flat offset of the first channel of cell
// (patch, y, x).
func (m *MaskedArray[T]) cellOffset(patch, y, x int) int {
	return ((patch*m.Side+y)*m.Side + x) * m.Channels
}

// Cell returns the channel vector stored at cell (patch, y, x). The returned
// slice aliases the underlying data.
func (m *MaskedArray[T]) Cell(patch, y, x int) []T {
	off := m.cellOffset(patch, y, x)
	return m.Data[off : off+m.Channels]
}

// CellMask returns the mask vector for cell (patch, y, x). The returned
// slice aliases the underlying mask.
func (m *MaskedArray[T]) CellMask(patch, y, x int) []bool {
	off := m.cellOffset(patch, y, x)
	return m.Mask[off : off+m.Channels]
}

// Patch returns the flat data and mask of a single patch.
func (m *MaskedArray[T]) Patch(patch int) ([]T, []bool) {
	n := m.Side * m.Side * m.Channels
	return m.Data[patch*n : (patch+1)*n], m.Mask[patch*n : (patch+1)*n]
}

// MaskSentinel flags every in-bounds cell whose stored value equals the
// source's declared missing sentinel. Cells already masked stay masked.
func (m *MaskedArray[T]) MaskSentinel(missing T) {
	for i, v := range m.Data {
		if v == missing {
			m.Mask[i] = true
		}
	}
}

// TargetBatch is one batch of rows read from a target source: the target
// values (continuous or categorical, whichever the source stores) and the
// world coordinates of each point.
type TargetBatch struct {
	// Con holds continuous target rows, nil for categorical sources
	Con [][]float32

	// Cat holds categorical target rows, nil for continuous sources
	Cat [][]int32

	// Coords is the (x, y) world coordinate of each point
	Coords [][2]float64
}

// Len returns the number of points in the batch.
func (b *TargetBatch) Len() int {
	return len(b.Coords)
}

// DataArrays is the assembled output of one extraction batch: the feature
// patches for each channel group, the targets (training only), and the world
// coordinates and image indices of each point.
type DataArrays struct {
	// Con is the continuous feature patch stack, nil if the source has none
	Con *MaskedArray[float32]

	// Cat is the categorical feature patch stack, nil if the source has none
	Cat *MaskedArray[int32]

	// ConTargets / CatTargets hold the target rows for the training path
	ConTargets [][]float32
	CatTargets [][]int32

	// Coords is the (x, y) world coordinate of each point
	Coords [][2]float64

	// Indices is the (x, y) image pixel index of each point
	Indices [][2]int
}

// Len returns the number of points in the batch.
func (d *DataArrays) Len() int {
	return len(d.Indices)
}
