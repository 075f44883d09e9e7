// Package patch computes the read and mask operations needed to assemble
// fixed-size square patches centred on image pixels, clipping at the image
// boundary.
package patch

import "fmt"

// ReadOp copies one source pixel into one destination patch cell.
type ReadOp struct {
	// Idx is the destination patch index within the batch
	Idx int

	// PatchY, PatchX locate the destination cell within the patch
	PatchY, PatchX int

	// SrcY, SrcX locate the source pixel within the image
	SrcY, SrcX int
}

// MaskOp marks one destination patch cell as outside the image, so no
// source pixel exists for it.
type MaskOp struct {
	Idx            int
	PatchY, PatchX int
}

// Patches computes, for a batch of patch centres, the full set of read and
// mask operations covering every cell of every patch. Patch side length is
// 2*halfwidth + 1. Each destination cell appears in exactly one of the two
// returned lists: a ReadOp when the corresponding source pixel lies within
// [0, height) x [0, width), a MaskOp otherwise. Read operations are emitted
// grouped by source row within each patch so that cached row reads stay
// local.
func Patches(centerX, centerY []int, halfwidth, width, height int) ([]ReadOp, []MaskOp, error) {
	if len(centerX) != len(centerY) {
		return nil, nil, fmt.Errorf("centre index lengths differ: %d != %d", len(centerX), len(centerY))
	}
	if halfwidth < 0 {
		return nil, nil, fmt.Errorf("halfwidth must be >= 0, got %d", halfwidth)
	}
	if width < 1 || height < 1 {
		return nil, nil, fmt.Errorf("image dimensions must be positive, got %dx%d", width, height)
	}

	side := 2*halfwidth + 1
	n := len(centerX)
	reads := make([]ReadOp, 0, n*side*side)
	var masks []MaskOp

	for i := 0; i < n; i++ {
		cx, cy := centerX[i], centerY[i]
		for dy := -halfwidth; dy <= halfwidth; dy++ {
			sy := cy + dy
			for dx := -halfwidth; dx <= halfwidth; dx++ {
				sx := cx + dx
				if sy >= 0 && sy < height && sx >= 0 && sx < width {
					reads = append(reads, ReadOp{
						Idx:    i,
						PatchY: dy + halfwidth,
						PatchX: dx + halfwidth,
						SrcY:   sy,
						SrcX:   sx,
					})
				} else {
					masks = append(masks, MaskOp{
						Idx:    i,
						PatchY: dy + halfwidth,
						PatchX: dx + halfwidth,
					})
				}
			}
		}
	}
	return reads, masks, nil
}
