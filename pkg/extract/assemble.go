// Package extract assembles masked feature patches from row-addressable
// sources and drives the batched, parallel extraction pipeline for
// training and query data.
package extract

import (
	"fmt"
	"sort"

	"github.com/dtpc/landshark/internal/models"
	"github.com/dtpc/landshark/pkg/patch"
	"github.com/dtpc/landshark/pkg/source"
)

// DirectRead assembles a patch stack by reading each source pixel
// individually. Suited to sparse, scattered centres where little row
// overlap exists between patches.
func DirectRead[T models.Value](band source.Band[T],
	reads []patch.ReadOp, masks []patch.MaskOp, npatches, side int) (*models.MaskedArray[T], error) {

	_, _, channels := band.Shape()
	out := models.NewMaskedArray[T](npatches, side, channels)

	for _, r := range reads {
		row, err := band.ReadRows(models.FixedSlice{Start: r.SrcY, Stop: r.SrcY + 1})
		if err != nil {
			return nil, fmt.Errorf("reading image row %d: %w", r.SrcY, err)
		}
		src := row[r.SrcX*channels : (r.SrcX+1)*channels]
		copy(out.Cell(r.Idx, r.PatchY, r.PatchX), src)
	}
	applyMasks(out, masks)
	if missing, ok := band.Missing(); ok {
		out.MaskSentinel(missing)
	}
	return out, nil
}

// CachedRead assembles a patch stack by first fetching the minimal set of
// contiguous row ranges covering every read, then satisfying all reads
// from the cache. Amortizes row fetches when adjacent patches overlap, as
// in the row-major query sweep.
func CachedRead[T models.Value](band source.Band[T],
	reads []patch.ReadOp, masks []patch.MaskOp, npatches, side int) (*models.MaskedArray[T], error) {

	rows, _, channels := band.Shape()
	out := models.NewMaskedArray[T](npatches, side, channels)

	cache, err := fetchRows(band, rowSlices(reads, band.Native(), rows))
	if err != nil {
		return nil, err
	}
	for _, r := range reads {
		row := cache[r.SrcY]
		src := row[r.SrcX*channels : (r.SrcX+1)*channels]
		copy(out.Cell(r.Idx, r.PatchY, r.PatchX), src)
	}
	applyMasks(out, masks)
	if missing, ok := band.Missing(); ok {
		out.MaskSentinel(missing)
	}
	return out, nil
}

func applyMasks[T models.Value](out *models.MaskedArray[T], masks []patch.MaskOp) {
	for _, m := range masks {
		for i, cell := 0, out.CellMask(m.Idx, m.PatchY, m.PatchX); i < len(cell); i++ {
			cell[i] = true
		}
	}
}

// rowSlices computes the minimal set of contiguous row ranges covering
// every source row referenced by the read operations, with each range
// aligned to the band's native chunk granularity so fetches land on chunk
// boundaries. The final range clamps to the row count.
func rowSlices(reads []patch.ReadOp, native, rows int) []models.FixedSlice {
	if len(reads) == 0 {
		return nil
	}
	if native < 1 {
		native = 1
	}
	seen := make(map[int]struct{})
	for _, r := range reads {
		seen[r.SrcY/native] = struct{}{}
	}
	chunks := make([]int, 0, len(seen))
	for c := range seen {
		chunks = append(chunks, c)
	}
	sort.Ints(chunks)

	var slices []models.FixedSlice
	emit := func(first, last int) {
		slices = append(slices, models.FixedSlice{
			Start: first * native,
			Stop:  min((last+1)*native, rows),
		})
	}
	start := chunks[0]
	prev := chunks[0]
	for _, c := range chunks[1:] {
		if c != prev+1 {
			emit(start, prev)
			start = c
		}
		prev = c
	}
	emit(start, prev)
	return slices
}

// fetchRows reads each row range once and indexes the result by row.
func fetchRows[T models.Value](band source.Band[T], slices []models.FixedSlice) (map[int][]T, error) {
	_, cols, channels := band.Shape()
	stride := cols * channels
	cache := make(map[int][]T)
	for _, s := range slices {
		data, err := band.ReadRows(s)
		if err != nil {
			return nil, fmt.Errorf("reading image rows [%d, %d): %w", s.Start, s.Stop, err)
		}
		for i := 0; i < s.Len(); i++ {
			cache[s.Start+i] = data[i*stride : (i+1)*stride]
		}
	}
	return cache, nil
}
