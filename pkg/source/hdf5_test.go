package source

import (
	"path/filepath"
	"testing"

	"github.com/dtpc/landshark/internal/models"
	"github.com/dtpc/landshark/pkg/image"
)

func testSpec(t *testing.T) image.Spec {
	t.Helper()
	spec, err := image.NewSpec(
		image.PixelCoordinates(4, 100, 2.5),
		image.PixelCoordinates(3, 50, -2.5),
		"EPSG:3577")
	if err != nil {
		t.Fatalf("NewSpec failed: %v", err)
	}
	return spec
}

// TestFeatureFileRoundTrip writes a feature file with both channel groups
// and reads it back through the spec reader, the channel count reader and
// the band loader.
func TestFeatureFileRoundTrip(t *testing.T) {
	spec := testSpec(t)
	rows, cols := spec.Height(), spec.Width()

	conData := make([]float32, rows*cols*2)
	for i := range conData {
		conData[i] = float32(i) / 2
	}
	conData[5] = ContinuousMissing
	missing := ContinuousMissing

	catData := make([]int32, rows*cols)
	for i := range catData {
		catData[i] = int32(i % 7)
	}

	path := filepath.Join(t.TempDir(), "features.hdf5")
	err := WriteFeatures(path, spec,
		&BandData[float32]{Data: conData, Channels: 2, Columns: []string{"rain", "temp"}, Missing: &missing, ChunkRows: 2},
		&BandData[int32]{Data: catData, Channels: 1, Columns: []string{"soil"}})
	if err != nil {
		t.Fatalf("WriteFeatures failed: %v", err)
	}

	gotSpec, err := ReadImageSpec(path)
	if err != nil {
		t.Fatalf("ReadImageSpec failed: %v", err)
	}
	if gotSpec.Width() != 4 || gotSpec.Height() != 3 {
		t.Errorf("spec is %dx%d, want 4x3", gotSpec.Width(), gotSpec.Height())
	}
	if gotSpec.CRS != "EPSG:3577" {
		t.Errorf("CRS = %q, want EPSG:3577", gotSpec.CRS)
	}
	for i, edge := range spec.XCoords {
		if gotSpec.XCoords[i] != edge {
			t.Errorf("x edge %d = %v, want %v", i, gotSpec.XCoords[i], edge)
		}
	}

	nCon, nCat, err := ReadChannelCounts(path)
	if err != nil {
		t.Fatalf("ReadChannelCounts failed: %v", err)
	}
	if nCon != 2 || nCat != 1 {
		t.Errorf("channel counts (%d, %d), want (2, 1)", nCon, nCat)
	}

	feats, err := OpenFeatures(path)
	if err != nil {
		t.Fatalf("OpenFeatures failed: %v", err)
	}
	defer feats.Close()

	if feats.Con == nil || feats.Cat == nil {
		t.Fatal("expected both channel groups")
	}
	if got := feats.Con.Columns(); len(got) != 2 || got[0] != "rain" || got[1] != "temp" {
		t.Errorf("continuous columns = %v", got)
	}
	if m, ok := feats.Con.Missing(); !ok || m != ContinuousMissing {
		t.Errorf("continuous missing = (%v, %v)", m, ok)
	}
	if _, ok := feats.Cat.Missing(); ok {
		t.Error("categorical band reports a sentinel none was written with")
	}
	if feats.Con.Native() != 2 {
		t.Errorf("continuous native granularity = %d, want 2", feats.Con.Native())
	}

	row, err := feats.Con.ReadRows(models.FixedSlice{Start: 1, Stop: 2})
	if err != nil {
		t.Fatalf("ReadRows failed: %v", err)
	}
	if len(row) != cols*2 {
		t.Fatalf("row has %d values, want %d", len(row), cols*2)
	}
	if row[0] != conData[cols*2] {
		t.Errorf("row 1 starts with %v, want %v", row[0], conData[cols*2])
	}
}

// TestTargetFileRoundTrip writes a continuous target table and reads
// batches back.
func TestTargetFileRoundTrip(t *testing.T) {
	con := [][]float32{{1, 2}, {3, 4}, {5, 6}, {7, 8}}
	coords := [][2]float64{{101, 49}, {103, 47}, {105, 45}, {107, 43}}

	path := filepath.Join(t.TempDir(), "targets.hdf5")
	if err := WriteTargets(path, con, nil, []string{"ph", "clay"}, coords); err != nil {
		t.Fatalf("WriteTargets failed: %v", err)
	}

	targets, err := OpenTargets(path)
	if err != nil {
		t.Fatalf("OpenTargets failed: %v", err)
	}
	defer targets.Close()

	if targets.Len() != 4 {
		t.Fatalf("Len = %d, want 4", targets.Len())
	}
	if targets.Categorical() {
		t.Error("continuous targets report categorical")
	}
	if cols := targets.Columns(); len(cols) != 2 || cols[0] != "ph" {
		t.Errorf("columns = %v", cols)
	}

	batch, err := targets.ReadRows(models.FixedSlice{Start: 1, Stop: 3})
	if err != nil {
		t.Fatalf("ReadRows failed: %v", err)
	}
	if batch.Len() != 2 {
		t.Fatalf("batch has %d points, want 2", batch.Len())
	}
	if batch.Cat != nil {
		t.Error("continuous batch carries categorical rows")
	}
	if batch.Con[0][0] != 3 || batch.Con[1][1] != 6 {
		t.Errorf("batch values %v", batch.Con)
	}
	if batch.Coords[0] != coords[1] {
		t.Errorf("batch coords %v, want %v", batch.Coords[0], coords[1])
	}

	if _, err := targets.ReadRows(models.FixedSlice{Start: 3, Stop: 5}); err == nil {
		t.Error("expected error for out-of-range slice")
	}
}

func TestWriteTargetsValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.hdf5")
	if err := WriteTargets(path, nil, nil, nil, nil); err == nil {
		t.Error("expected error when no table is given")
	}
	if err := WriteTargets(path, [][]float32{{1}}, [][]int32{{1}}, nil, [][2]float64{{0, 0}}); err == nil {
		t.Error("expected error when both tables are given")
	}
	if err := WriteTargets(path, [][]float32{{1}, {2}}, nil, []string{"t"}, [][2]float64{{0, 0}}); err == nil {
		t.Error("expected error for table/coordinate length mismatch")
	}
}
