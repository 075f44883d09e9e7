package extract

import (
	"fmt"

	"github.com/dtpc/landshark/internal/models"
	"github.com/dtpc/landshark/pkg/image"
	"github.com/dtpc/landshark/pkg/patch"
	"github.com/dtpc/landshark/pkg/record"
	"github.com/dtpc/landshark/pkg/source"
)

// TrainingResult is the output of one training batch: the serialized
// records and the echoed image indices needed for fold assignment.
type TrainingResult struct {
	Records [][]byte
	Indices [][2]int
}

// TrainingProcessor extracts and serializes training patches for batches
// of target points. Each processor owns its feature source, opened lazily
// on the first batch, so instances can run on independent workers.
type TrainingProcessor struct {
	FeaturePath string
	Spec        image.Spec
	HalfWidth   int

	src *source.Features
}

func (p *TrainingProcessor) features() (*source.Features, error) {
	if p.src == nil {
		src, err := source.OpenFeatures(p.FeaturePath)
		if err != nil {
			return nil, err
		}
		p.src = src
	}
	return p.src, nil
}

// Process extracts patches centred on the batch's target points.
func (p *TrainingProcessor) Process(batch *models.TargetBatch) (TrainingResult, error) {
	src, err := p.features()
	if err != nil {
		return TrainingResult{}, err
	}

	// coordinate mapping clamps to edge pixels, so points outside the
	// image would silently land on the boundary
	for i, in := range p.Spec.BBox().Contains(batch.Coords) {
		if !in {
			return TrainingResult{}, fmt.Errorf("target point (%v, %v) lies outside the image",
				batch.Coords[i][0], batch.Coords[i][1])
		}
	}

	coordsX := make([]float64, batch.Len())
	coordsY := make([]float64, batch.Len())
	for i, c := range batch.Coords {
		coordsX[i], coordsY[i] = c[0], c[1]
	}
	indicesX := image.WorldToImage(coordsX, p.Spec.XCoords)
	indicesY := image.WorldToImage(coordsY, p.Spec.YCoords)

	arrays, err := assemble(src, indicesX, indicesY, p.HalfWidth, p.Spec, DirectRead[float32], DirectRead[int32])
	if err != nil {
		return TrainingResult{}, err
	}
	arrays.ConTargets = batch.Con
	arrays.CatTargets = batch.Cat
	arrays.Coords = batch.Coords

	records, err := record.Serialise(arrays)
	if err != nil {
		return TrainingResult{}, err
	}
	return TrainingResult{Records: records, Indices: arrays.Indices}, nil
}

// Close releases the processor's feature source.
func (p *TrainingProcessor) Close() error {
	if p.src == nil {
		return nil
	}
	return p.src.Close()
}

// QueryProcessor extracts and serializes query patches for batches of
// pixel indices. Like TrainingProcessor it owns a lazily opened feature
// source, but reads rows through the row cache since the row-major query
// sweep makes adjacent patches overlap heavily.
type QueryProcessor struct {
	FeaturePath string
	Spec        image.Spec
	HalfWidth   int

	src *source.Features
}

func (p *QueryProcessor) features() (*source.Features, error) {
	if p.src == nil {
		src, err := source.OpenFeatures(p.FeaturePath)
		if err != nil {
			return nil, err
		}
		p.src = src
	}
	return p.src, nil
}

// Process extracts patches centred on the batch of (xs, ys) pixel indices.
func (p *QueryProcessor) Process(task [2][]int) ([][]byte, error) {
	src, err := p.features()
	if err != nil {
		return nil, err
	}
	indicesX, indicesY := task[0], task[1]

	arrays, err := assemble(src, indicesX, indicesY, p.HalfWidth, p.Spec, CachedRead[float32], CachedRead[int32])
	if err != nil {
		return nil, err
	}
	coordsX := image.ImageToWorld(indicesX, p.Spec.XCoords)
	coordsY := image.ImageToWorld(indicesY, p.Spec.YCoords)
	arrays.Coords = make([][2]float64, len(indicesX))
	for i := range arrays.Coords {
		arrays.Coords[i] = [2]float64{coordsX[i], coordsY[i]}
	}
	return record.Serialise(arrays)
}

// Close releases the processor's feature source.
func (p *QueryProcessor) Close() error {
	if p.src == nil {
		return nil
	}
	return p.src.Close()
}

// readStrategy assembles one channel group's patch stack.
type readStrategy[T models.Value] func(source.Band[T], []patch.ReadOp, []patch.MaskOp, int, int) (*models.MaskedArray[T], error)

// assemble runs patch geometry once and applies a read strategy to each
// present channel group.
func assemble(src *source.Features, indicesX, indicesY []int, halfwidth int, spec image.Spec,
	readCon readStrategy[float32], readCat readStrategy[int32]) (*models.DataArrays, error) {

	reads, masks, err := patch.Patches(indicesX, indicesY, halfwidth, spec.Width(), spec.Height())
	if err != nil {
		return nil, fmt.Errorf("computing patch geometry: %w", err)
	}
	npatches := len(indicesX)
	side := 2*halfwidth + 1

	arrays := &models.DataArrays{
		Indices: make([][2]int, npatches),
	}
	for i := range arrays.Indices {
		arrays.Indices[i] = [2]int{indicesX[i], indicesY[i]}
	}
	if src.Con != nil {
		arrays.Con, err = readCon(src.Con, reads, masks, npatches, side)
		if err != nil {
			return nil, fmt.Errorf("assembling continuous patches: %w", err)
		}
	}
	if src.Cat != nil {
		arrays.Cat, err = readCat(src.Cat, reads, masks, npatches, side)
		if err != nil {
			return nil, fmt.Errorf("assembling categorical patches: %w", err)
		}
	}
	return arrays, nil
}
