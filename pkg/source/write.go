package source

import (
	"fmt"
	"strings"

	"github.com/robert-malhotra/go-hdf5/hdf5"

	"github.com/dtpc/landshark/internal/models"
	"github.com/dtpc/landshark/pkg/image"
)

// BandData describes one channel group to write into a feature file.
type BandData[T models.Value] struct {
	// Data is the flat (rows, cols, channels) value buffer
	Data []T

	// Channels is the number of feature channels per pixel
	Channels int

	// Columns names each channel
	Columns []string

	// Missing, if non-nil, declares the missing sentinel
	Missing *T

	// ChunkRows is the chunk granularity in image rows (defaults to 1)
	ChunkRows int
}

// WriteFeatures creates a feature HDF5 file for the given raster grid. At
// least one channel group must be supplied. Used by importers and tests.
func WriteFeatures(path string, spec image.Spec, con *BandData[float32], cat *BandData[int32]) error {
	if con == nil && cat == nil {
		return fmt.Errorf("feature file needs at least one channel group")
	}
	f, err := hdf5.Create(path)
	if err != nil {
		return fmt.Errorf("creating feature file: %w", err)
	}
	defer f.Close()

	root := f.Root()
	if _, err := root.CreateDataset(strings.TrimPrefix(xEdgesDataset, "/"), spec.XCoords,
		hdf5.WithAttribute(crsAttr, spec.CRS)); err != nil {
		return fmt.Errorf("writing x edges: %w", err)
	}
	if _, err := root.CreateDataset(strings.TrimPrefix(yEdgesDataset, "/"), spec.YCoords); err != nil {
		return fmt.Errorf("writing y edges: %w", err)
	}
	rows, cols := spec.Height(), spec.Width()
	if con != nil {
		if err := writeBand(root, conDataset, con, rows, cols); err != nil {
			return err
		}
	}
	if cat != nil {
		if err := writeBand(root, catDataset, cat, rows, cols); err != nil {
			return err
		}
	}
	return f.Close()
}

func writeBand[T models.Value](root *hdf5.Group, name string, d *BandData[T], rows, cols int) error {
	if len(d.Data) != rows*cols*d.Channels {
		return fmt.Errorf("band %s has %d values, want %d", name, len(d.Data), rows*cols*d.Channels)
	}
	nested := make([][][]T, rows)
	for y := 0; y < rows; y++ {
		nested[y] = make([][]T, cols)
		for x := 0; x < cols; x++ {
			off := (y*cols + x) * d.Channels
			nested[y][x] = d.Data[off : off+d.Channels]
		}
	}
	chunkRows := d.ChunkRows
	if chunkRows <= 0 {
		chunkRows = 1
	}
	opts := []hdf5.DatasetOption{
		hdf5.WithAttribute(columnsAttr, d.Columns),
		hdf5.WithAttribute(chunkRowsAttr, int64(chunkRows)),
	}
	if d.Missing != nil {
		opts = append(opts, hdf5.WithAttribute(missingAttr, *d.Missing))
	}
	if _, err := root.CreateDataset(strings.TrimPrefix(name, "/"), nested, opts...); err != nil {
		return fmt.Errorf("writing band %s: %w", name, err)
	}
	return nil
}

// WriteTargets creates a target HDF5 file holding one table of target
// values plus per-point world coordinates. Exactly one of con and cat must
// be non-nil.
func WriteTargets(path string, con [][]float32, cat [][]int32, columns []string, coords [][2]float64) error {
	if (con == nil) == (cat == nil) {
		return fmt.Errorf("target file needs exactly one of continuous or categorical data")
	}
	n := len(coords)
	if (con != nil && len(con) != n) || (cat != nil && len(cat) != n) {
		return fmt.Errorf("target table and coordinate lengths differ")
	}
	f, err := hdf5.Create(path)
	if err != nil {
		return fmt.Errorf("creating target file: %w", err)
	}
	defer f.Close()

	root := f.Root()
	opts := []hdf5.DatasetOption{
		hdf5.WithAttribute(columnsAttr, columns),
		hdf5.WithAttribute(chunkRowsAttr, int64(1)),
	}
	if con != nil {
		if _, err := root.CreateDataset(strings.TrimPrefix(conDataset, "/"), con, opts...); err != nil {
			return fmt.Errorf("writing target data: %w", err)
		}
	} else {
		if _, err := root.CreateDataset(strings.TrimPrefix(catDataset, "/"), cat, opts...); err != nil {
			return fmt.Errorf("writing target data: %w", err)
		}
	}
	nested := make([][]float64, n)
	for i, c := range coords {
		nested[i] = []float64{c[0], c[1]}
	}
	if _, err := root.CreateDataset(strings.TrimPrefix(coordsDataset, "/"), nested); err != nil {
		return fmt.Errorf("writing coordinates: %w", err)
	}
	return f.Close()
}
