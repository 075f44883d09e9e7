// Package source provides row-addressable access to feature and target
// data. Feature rasters are stored row-major as (imageRow, imageCol,
// channel); target tables as (point, column) with per-point world
// coordinates. Sources declare an optional missing-data sentinel and a
// native access granularity in rows for efficient range reads.
package source

import (
	"fmt"
	"math"

	"github.com/dtpc/landshark/internal/models"
)

// Default missing sentinels: the most negative representable value of each
// element type.
const (
	ContinuousMissing  float32 = -math.MaxFloat32
	CategoricalMissing int32   = math.MinInt32
)

// Band is the single-operation read capability over one channel group of a
// feature raster: fetch a contiguous range of image rows. Each fetched row
// is cols*channels values.
type Band[T models.Value] interface {
	// Shape returns (image rows, image cols, channels)
	Shape() (rows, cols, channels int)

	// Missing returns the declared missing sentinel, if any
	Missing() (T, bool)

	// Columns returns the channel names, same length as the channel dim
	Columns() []string

	// Native returns the source's preferred read granularity in rows
	Native() int

	// ReadRows returns rows [s.Start, s.Stop) as a flat buffer of
	// s.Len()*cols*channels values
	ReadRows(s models.FixedSlice) ([]T, error)
}

// MemBand is an in-memory Band backed by a flat row-major buffer.
type MemBand[T models.Value] struct {
	data       []T
	rows       int
	cols       int
	channels   int
	missing    T
	hasMissing bool
	columns    []string
	native     int
}

// NewMemBand wraps a flat (rows, cols, channels) buffer as a Band.
func NewMemBand[T models.Value](data []T, rows, cols, channels int, columns []string) (*MemBand[T], error) {
	if len(data) != rows*cols*channels {
		return nil, fmt.Errorf("band buffer has %d values, want %d (%dx%dx%d)",
			len(data), rows*cols*channels, rows, cols, channels)
	}
	if len(columns) != channels {
		return nil, fmt.Errorf("band has %d column names for %d channels", len(columns), channels)
	}
	return &MemBand[T]{
		data:     data,
		rows:     rows,
		cols:     cols,
		channels: channels,
		columns:  columns,
		native:   1,
	}, nil
}

// SetMissing declares the band's missing sentinel.
func (b *MemBand[T]) SetMissing(v T) {
	b.missing = v
	b.hasMissing = true
}

// SetNative declares the band's native read granularity in rows.
func (b *MemBand[T]) SetNative(rows int) {
	if rows > 0 {
		b.native = rows
	}
}

func (b *MemBand[T]) Shape() (int, int, int) {
	return b.rows, b.cols, b.channels
}

func (b *MemBand[T]) Missing() (T, bool) {
	return b.missing, b.hasMissing
}

func (b *MemBand[T]) Columns() []string {
	return b.columns
}

func (b *MemBand[T]) Native() int {
	return b.native
}

func (b *MemBand[T]) ReadRows(s models.FixedSlice) ([]T, error) {
	if s.Start < 0 || s.Stop > b.rows || s.Start >= s.Stop {
		return nil, fmt.Errorf("row slice [%d, %d) out of range [0, %d)", s.Start, s.Stop, b.rows)
	}
	stride := b.cols * b.channels
	return b.data[s.Start*stride : s.Stop*stride], nil
}

// Features is one feature source: up to two parallel channel groups over
// the same raster grid. Either group may be absent, never both.
type Features struct {
	// Con is the continuous channel group, nil if absent
	Con Band[float32]

	// Cat is the categorical channel group, nil if absent
	Cat Band[int32]

	closer func() error
}

// Rows returns the number of image rows shared by the channel groups.
func (f *Features) Rows() int {
	if f.Con != nil {
		r, _, _ := f.Con.Shape()
		return r
	}
	r, _, _ := f.Cat.Shape()
	return r
}

// Close releases the underlying file handle, if any.
func (f *Features) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer()
}

// Targets is a row-addressable table of training target points.
type Targets interface {
	// Len returns the number of target points
	Len() int

	// Native returns the source's preferred read granularity in rows
	Native() int

	// ReadRows returns target values and world coordinates for points
	// [s.Start, s.Stop)
	ReadRows(s models.FixedSlice) (*models.TargetBatch, error)

	// Close releases the underlying file handle, if any
	Close() error
}
