package source

import (
	"fmt"

	"github.com/robert-malhotra/go-hdf5/hdf5"

	"github.com/dtpc/landshark/internal/models"
	"github.com/dtpc/landshark/pkg/image"
)

// HDF5 layout shared by the feature and target files:
//
//	features: /x_coordinates, /y_coordinates (float64 pixel edges, the x
//	  dataset carries a "crs" attribute), /continuous_data (float32,
//	  rows x cols x channels) and/or /categorical_data (int32, same grid),
//	  each with "columns" and "chunkrows" attributes and an optional
//	  "missing" sentinel attribute.
//	targets: /continuous_data or /categorical_data (points x columns) with
//	  the same attributes, plus /coordinates (points x 2 world coords).

const (
	conDataset    = "/continuous_data"
	catDataset    = "/categorical_data"
	coordsDataset = "/coordinates"
	xEdgesDataset = "/x_coordinates"
	yEdgesDataset = "/y_coordinates"

	missingAttr   = "missing"
	columnsAttr   = "columns"
	chunkRowsAttr = "chunkrows"
	crsAttr       = "crs"
)

// ReadImageSpec reads the raster grid descriptor from a feature file.
func ReadImageSpec(path string) (image.Spec, error) {
	f, err := hdf5.Open(path)
	if err != nil {
		return image.Spec{}, fmt.Errorf("opening feature file: %w", err)
	}
	defer f.Close()

	xds, err := f.OpenDataset(xEdgesDataset)
	if err != nil {
		return image.Spec{}, fmt.Errorf("opening %s: %w", xEdgesDataset, err)
	}
	xCoords, err := xds.ReadFloat64()
	if err != nil {
		return image.Spec{}, fmt.Errorf("reading x edges: %w", err)
	}
	yds, err := f.OpenDataset(yEdgesDataset)
	if err != nil {
		return image.Spec{}, fmt.Errorf("opening %s: %w", yEdgesDataset, err)
	}
	yCoords, err := yds.ReadFloat64()
	if err != nil {
		return image.Spec{}, fmt.Errorf("reading y edges: %w", err)
	}
	crs := ""
	if attr := xds.Attr(crsAttr); attr != nil {
		if s, err := attr.ReadScalarString(); err == nil {
			crs = s
		}
	}
	return image.NewSpec(xCoords, yCoords, crs)
}

// ReadChannelCounts reads the number of continuous and categorical
// channels of a feature file without loading any raster data. Absent
// channel groups count zero.
func ReadChannelCounts(path string) (nCon, nCat int, err error) {
	f, err := hdf5.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("opening feature file: %w", err)
	}
	defer f.Close()

	if ds, err := f.OpenDataset(conDataset); err == nil {
		if shape := ds.Shape(); len(shape) == 3 {
			nCon = int(shape[2])
		}
	}
	if ds, err := f.OpenDataset(catDataset); err == nil {
		if shape := ds.Shape(); len(shape) == 3 {
			nCat = int(shape[2])
		}
	}
	if nCon == 0 && nCat == 0 {
		return 0, 0, fmt.Errorf("feature file %s has neither continuous nor categorical data", path)
	}
	return nCon, nCat, nil
}

// OpenFeatures opens a feature file and loads its channel groups. At least
// one of the continuous and categorical groups must be present.
func OpenFeatures(path string) (*Features, error) {
	f, err := hdf5.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening feature file: %w", err)
	}
	defer f.Close()

	con, err := openBand(f, conDataset, (*hdf5.Dataset).ReadFloat32)
	if err != nil {
		return nil, err
	}
	cat, err := openBand(f, catDataset, (*hdf5.Dataset).ReadInt32)
	if err != nil {
		return nil, err
	}
	if con == nil && cat == nil {
		return nil, fmt.Errorf("feature file %s has neither continuous nor categorical data", path)
	}
	if con != nil && cat != nil {
		cr, cc, _ := con.Shape()
		kr, kc, _ := cat.Shape()
		if cr != kr || cc != kc {
			return nil, fmt.Errorf("channel group grids differ: %dx%d vs %dx%d", cr, cc, kr, kc)
		}
	}
	feats := &Features{}
	if con != nil {
		feats.Con = con
	}
	if cat != nil {
		feats.Cat = cat
	}
	return feats, nil
}

// openBand loads one channel group, or returns nil if the dataset is
// absent from the file.
func openBand[T models.Value](f *hdf5.File, name string, read func(*hdf5.Dataset) ([]T, error)) (*MemBand[T], error) {
	ds, err := f.OpenDataset(name)
	if err != nil {
		return nil, nil
	}
	shape := ds.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("dataset %s has rank %d, want 3", name, len(shape))
	}
	rows, cols, channels := int(shape[0]), int(shape[1]), int(shape[2])
	data, err := read(ds)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	columns, err := readColumns(ds, channels)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", name, err)
	}
	band, err := NewMemBand(data, rows, cols, channels, columns)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", name, err)
	}
	if missing, ok, err := readMissing[T](ds); err != nil {
		return nil, fmt.Errorf("dataset %s: %w", name, err)
	} else if ok {
		band.SetMissing(missing)
	}
	if attr := ds.Attr(chunkRowsAttr); attr != nil {
		if n, err := attr.ReadScalarInt64(); err == nil {
			band.SetNative(int(n))
		}
	}
	return band, nil
}

func readColumns(ds *hdf5.Dataset, channels int) ([]string, error) {
	attr := ds.Attr(columnsAttr)
	if attr == nil {
		// unnamed channels
		cols := make([]string, channels)
		for i := range cols {
			cols[i] = fmt.Sprintf("band%d", i)
		}
		return cols, nil
	}
	cols, err := attr.ReadString()
	if err != nil {
		return nil, fmt.Errorf("reading columns attribute: %w", err)
	}
	return cols, nil
}

// readMissing reads the declared missing sentinel attribute, reporting
// whether one is declared.
func readMissing[T models.Value](ds *hdf5.Dataset) (T, bool, error) {
	var zero T
	attr := ds.Attr(missingAttr)
	if attr == nil {
		return zero, false, nil
	}
	switch any(zero).(type) {
	case float32:
		vals, err := attr.ReadFloat32()
		if err != nil {
			return zero, false, fmt.Errorf("reading missing attribute: %w", err)
		}
		if len(vals) == 0 {
			return zero, false, fmt.Errorf("missing attribute is empty")
		}
		return T(vals[0]), true, nil
	case int32:
		vals, err := attr.ReadInt32()
		if err != nil {
			return zero, false, fmt.Errorf("reading missing attribute: %w", err)
		}
		if len(vals) == 0 {
			return zero, false, fmt.Errorf("missing attribute is empty")
		}
		return T(vals[0]), true, nil
	}
	return zero, false, nil
}

// H5Targets is a target source loaded from an HDF5 file. The table is read
// once at open; ReadRows serves slices from memory.
type H5Targets struct {
	con      []float32
	cat      []int32
	nColumns int
	columns  []string
	coords   []float64 // flat n x 2
	n        int
	native   int
}

// OpenTargets opens a target file holding either continuous or categorical
// target data plus per-point coordinates.
func OpenTargets(path string) (*H5Targets, error) {
	f, err := hdf5.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening target file: %w", err)
	}
	defer f.Close()

	t := &H5Targets{native: 1}

	if ds, err := f.OpenDataset(conDataset); err == nil {
		if err := t.loadTable(ds, func(d *hdf5.Dataset) error {
			vals, err := d.ReadFloat32()
			t.con = vals
			return err
		}); err != nil {
			return nil, err
		}
	} else if ds, err := f.OpenDataset(catDataset); err == nil {
		if err := t.loadTable(ds, func(d *hdf5.Dataset) error {
			vals, err := d.ReadInt32()
			t.cat = vals
			return err
		}); err != nil {
			return nil, err
		}
	} else {
		return nil, fmt.Errorf("target file %s has neither continuous nor categorical data", path)
	}

	cds, err := f.OpenDataset(coordsDataset)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", coordsDataset, err)
	}
	coords, err := cds.ReadFloat64()
	if err != nil {
		return nil, fmt.Errorf("reading coordinates: %w", err)
	}
	if len(coords) != 2*t.n {
		return nil, fmt.Errorf("coordinate table has %d values for %d points", len(coords), t.n)
	}
	t.coords = coords
	return t, nil
}

func (t *H5Targets) loadTable(ds *hdf5.Dataset, read func(*hdf5.Dataset) error) error {
	shape := ds.Shape()
	if len(shape) != 2 {
		return fmt.Errorf("target dataset has rank %d, want 2", len(shape))
	}
	t.n = int(shape[0])
	t.nColumns = int(shape[1])
	if err := read(ds); err != nil {
		return fmt.Errorf("reading target data: %w", err)
	}
	cols, err := readColumns(ds, t.nColumns)
	if err != nil {
		return err
	}
	t.columns = cols
	if attr := ds.Attr(chunkRowsAttr); attr != nil {
		if n, err := attr.ReadScalarInt64(); err == nil && n > 0 {
			t.native = int(n)
		}
	}
	return nil
}

// Categorical reports whether the targets are categorical.
func (t *H5Targets) Categorical() bool {
	return t.cat != nil
}

// Columns returns the target column names.
func (t *H5Targets) Columns() []string {
	return t.columns
}

func (t *H5Targets) Len() int {
	return t.n
}

func (t *H5Targets) Native() int {
	return t.native
}

func (t *H5Targets) ReadRows(s models.FixedSlice) (*models.TargetBatch, error) {
	if s.Start < 0 || s.Stop > t.n || s.Start >= s.Stop {
		return nil, fmt.Errorf("target slice [%d, %d) out of range [0, %d)", s.Start, s.Stop, t.n)
	}
	batch := &models.TargetBatch{
		Coords: make([][2]float64, s.Len()),
	}
	for i := 0; i < s.Len(); i++ {
		row := s.Start + i
		batch.Coords[i] = [2]float64{t.coords[2*row], t.coords[2*row+1]}
	}
	if t.con != nil {
		batch.Con = make([][]float32, s.Len())
		for i := 0; i < s.Len(); i++ {
			row := s.Start + i
			batch.Con[i] = t.con[row*t.nColumns : (row+1)*t.nColumns]
		}
	}
	if t.cat != nil {
		batch.Cat = make([][]int32, s.Len())
		for i := 0; i < s.Len(); i++ {
			row := s.Start + i
			batch.Cat[i] = t.cat[row*t.nColumns : (row+1)*t.nColumns]
		}
	}
	return batch, nil
}

// Close implements Targets. The file handle is released at open time, once
// the table is in memory.
func (t *H5Targets) Close() error {
	return nil
}
