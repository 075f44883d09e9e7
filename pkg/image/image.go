// Package image maps between world coordinates and pixel indices of a
// raster grid, and enumerates pixel index batches over image regions.
package image

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/dtpc/landshark/internal/models"
)

// BoundingBox is the world-coordinate extent of an image.
type BoundingBox struct {
	XMin, XMax float64
	YMin, YMax float64
}

// NewBoundingBox computes the extent from pixel-edge coordinate sequences.
// The sequences may be increasing or decreasing.
func NewBoundingBox(xCoords, yCoords []float64) BoundingBox {
	xmin, xmax := minMax(xCoords)
	ymin, ymax := minMax(yCoords)
	return BoundingBox{XMin: xmin, XMax: xmax, YMin: ymin, YMax: ymax}
}

func minMax(coords []float64) (float64, float64) {
	lo, hi := coords[0], coords[len(coords)-1]
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi
}

// Contains reports, for each (x, y) world point, whether it lies within the
// box. Boundary points are inside.
func (b BoundingBox) Contains(points [][2]float64) []bool {
	in := make([]bool, len(points))
	for i, p := range points {
		in[i] = p[0] >= b.XMin && p[0] <= b.XMax &&
			p[1] >= b.YMin && p[1] <= b.YMax
	}
	return in
}

// Spec is an immutable descriptor of a raster grid. XCoords and YCoords are
// the pixel-edge coordinates, so their lengths are width+1 and height+1.
// Either sequence may run in increasing or decreasing order, but must be
// strictly monotonic.
type Spec struct {
	XCoords []float64
	YCoords []float64
	CRS     string

	bbox BoundingBox
}

// NewSpec validates the edge coordinate sequences and builds a Spec.
func NewSpec(xCoords, yCoords []float64, crs string) (Spec, error) {
	if len(xCoords) < 2 || len(yCoords) < 2 {
		return Spec{}, fmt.Errorf("image spec needs at least 2 edge coordinates per axis, got %d x %d",
			len(xCoords), len(yCoords))
	}
	if !monotonic(xCoords) || !monotonic(yCoords) {
		return Spec{}, fmt.Errorf("image spec edge coordinates must be strictly monotonic")
	}
	return Spec{
		XCoords: xCoords,
		YCoords: yCoords,
		CRS:     crs,
		bbox:    NewBoundingBox(xCoords, yCoords),
	}, nil
}

func monotonic(coords []float64) bool {
	increasing := coords[len(coords)-1] > coords[0]
	for i := 1; i < len(coords); i++ {
		if increasing && coords[i] <= coords[i-1] {
			return false
		}
		if !increasing && coords[i] >= coords[i-1] {
			return false
		}
	}
	return true
}

// Width returns the number of pixel columns.
func (s Spec) Width() int {
	return len(s.XCoords) - 1
}

// Height returns the number of pixel rows.
func (s Spec) Height() int {
	return len(s.YCoords) - 1
}

// BBox returns the world-coordinate extent of the image.
func (s Spec) BBox() BoundingBox {
	return s.bbox
}

// PixelCoordinates computes pixel-edge coordinate sequences from an origin
// and pixel size along one axis. Positive delta yields an increasing
// sequence; pass a negative delta for north-up y axes.
func PixelCoordinates(n int, origin, delta float64) []float64 {
	coords := make([]float64, n+1)
	for i := range coords {
		coords[i] = origin + float64(i)*delta
	}
	return coords
}

// WorldToImage maps world coordinates to the pixel bin index they fall in,
// given pixel-edge coordinates (length n+1 for n pixels). For increasing
// edges, coordinate c maps to the unique i with edges[i] <= c < edges[i+1];
// a coordinate exactly on the final edge clamps to the last pixel. Edges in
// decreasing order are handled symmetrically. Coordinates outside the edge
// range clamp to the first or last pixel; use BoundingBox.Contains to
// filter points beforehand.
func WorldToImage(coords []float64, edges []float64) []int {
	n := len(edges) - 1
	increasing := edges[n] > edges[0]
	indices := make([]int, len(coords))
	for k, c := range coords {
		var j int
		if increasing {
			// smallest j with edges[j] >= c
			j = sort.SearchFloat64s(edges, c)
		} else {
			// smallest j with edges[j] <= c
			j = sort.Search(len(edges), func(i int) bool { return edges[i] <= c })
		}
		var idx int
		switch {
		case j > n:
			idx = n - 1
		case edges[j] == c:
			idx = min(j, n-1)
		case j == 0:
			idx = 0
		default:
			idx = j - 1
		}
		indices[k] = idx
	}
	return indices
}

// ImageToWorld returns the leading-edge world coordinate of each pixel
// index, the inverse direction of WorldToImage.
func ImageToWorld(indices []int, edges []float64) []float64 {
	coords := make([]float64, len(indices))
	for k, i := range indices {
		coords[k] = edges[i]
	}
	return coords
}

// stripSlices partitions [0, total) into n contiguous row bands as evenly
// as possible. The first total%n bands get one extra row, so bands tile the
// range exactly without gap or overlap.
func stripSlices(total, n int) []models.FixedSlice {
	base := total / n
	rem := total % n
	slices := make([]models.FixedSlice, n)
	start := 0
	for i := range slices {
		size := base
		if i < rem {
			size++
		}
		slices[i] = models.FixedSlice{Start: start, Stop: start + size}
		start += size
	}
	return slices
}

// StripSpec returns the sub-spec of the stripIndex'th of totalStrips
// horizontal bands of the image. stripIndex is 1-based. The y edge sequence
// of a strip includes the boundary edge shared with the next strip; x edges
// are unchanged. When totalStrips exceeds the row count the trailing strips
// are zero-height, with a single y edge and Height() == 0.
func StripSpec(stripIndex, totalStrips int, spec Spec) (Spec, error) {
	if totalStrips < 1 {
		return Spec{}, fmt.Errorf("total strips must be >= 1, got %d", totalStrips)
	}
	if stripIndex < 1 || stripIndex > totalStrips {
		return Spec{}, fmt.Errorf("strip index %d out of range [1, %d]", stripIndex, totalStrips)
	}
	s := stripSlices(spec.Height(), totalStrips)[stripIndex-1]
	if s.Len() == 0 {
		yCoords := spec.YCoords[s.Start : s.Start+1]
		return Spec{
			XCoords: spec.XCoords,
			YCoords: yCoords,
			CRS:     spec.CRS,
			bbox:    NewBoundingBox(spec.XCoords, yCoords),
		}, nil
	}
	return NewSpec(spec.XCoords, spec.YCoords[s.Start:s.Stop+1], spec.CRS)
}

// BatchIterator delivers pixel index batches one at a time. A freshly
// constructed iterator restarts the same deterministic sequence.
type BatchIterator interface {
	// Next returns the next batch of x and y pixel indices, each at most
	// batchSize long, or ok=false when the sequence is exhausted.
	Next() (xs, ys []int, ok bool)
}

// CollectBatches drains an iterator into a list of (xs, ys) batch pairs.
func CollectBatches(it BatchIterator) [][2][]int {
	var out [][2][]int
	for {
		xs, ys, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, [2][]int{xs, ys})
	}
}

// stripBatches lazily enumerates the pixels of a row band in row-major
// order. Only one batch of indices is live at a time.
type stripBatches struct {
	width     int
	rows      models.FixedSlice
	batchSize int
	cursor    int // flat offset within the strip
}

func (b *stripBatches) Next() ([]int, []int, bool) {
	total := b.rows.Len() * b.width
	if b.cursor >= total {
		return nil, nil, false
	}
	n := min(b.batchSize, total-b.cursor)
	xs := make([]int, n)
	ys := make([]int, n)
	for i := 0; i < n; i++ {
		flat := b.cursor + i
		xs[i] = flat % b.width
		ys[i] = b.rows.Start + flat/b.width
	}
	b.cursor += n
	return xs, ys, true
}

// listBatches walks a pre-computed index sequence.
type listBatches struct {
	xs, ys    []int
	batchSize int
	pos       int
}

func (b *listBatches) Next() ([]int, []int, bool) {
	if b.pos >= len(b.xs) {
		return nil, nil, false
	}
	stop := min(b.pos+b.batchSize, len(b.xs))
	xs, ys := b.xs[b.pos:stop], b.ys[b.pos:stop]
	b.pos = stop
	return xs, ys, true
}

// StripIndices enumerates every pixel of the stripIndex'th of totalStrips
// row bands in row-major order (y outer, x inner), delivered lazily in
// batches of at most batchSize pixels. It also returns the total pixel
// count of the strip.
func StripIndices(spec Spec, stripIndex, totalStrips, batchSize int) (BatchIterator, int, error) {
	if batchSize <= 0 {
		return nil, 0, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if stripIndex < 1 || stripIndex > totalStrips {
		return nil, 0, fmt.Errorf("strip index %d out of range [1, %d]", stripIndex, totalStrips)
	}
	s := stripSlices(spec.Height(), totalStrips)[stripIndex-1]
	it := &stripBatches{width: spec.Width(), rows: s, batchSize: batchSize}
	return it, s.Len() * spec.Width(), nil
}

// RandomIndices samples nPoints distinct pixels from the full image without
// replacement, deterministically for a given seed, delivered in batches of
// at most batchSize pixels. It also returns the total count nPoints.
// Memory is proportional to nPoints, not to the image size.
func RandomIndices(spec Spec, nPoints, batchSize int, seed int64) (BatchIterator, int, error) {
	if batchSize <= 0 {
		return nil, 0, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	total := spec.Width() * spec.Height()
	if nPoints < 1 || nPoints > total {
		return nil, 0, fmt.Errorf("point count %d out of range [1, %d]", nPoints, total)
	}
	rnd := rand.New(rand.NewSource(seed))
	picks := sampleWithoutReplacement(rnd, total, nPoints)
	w := spec.Width()
	xs := make([]int, nPoints)
	ys := make([]int, nPoints)
	for i, p := range picks {
		xs[i] = p % w
		ys[i] = p / w
	}
	return &listBatches{xs: xs, ys: ys, batchSize: batchSize}, nPoints, nil
}

// sampleWithoutReplacement draws k distinct integers from [0, n) in random
// order using Floyd's algorithm, keeping memory proportional to k rather
// than n.
func sampleWithoutReplacement(rnd *rand.Rand, n, k int) []int {
	chosen := make(map[int]struct{}, k)
	picks := make([]int, 0, k)
	for i := n - k; i < n; i++ {
		j := rnd.Intn(i + 1)
		if _, taken := chosen[j]; taken {
			j = i
		}
		chosen[j] = struct{}{}
		picks = append(picks, j)
	}
	rnd.Shuffle(len(picks), func(a, b int) {
		picks[a], picks[b] = picks[b], picks[a]
	})
	return picks
}
