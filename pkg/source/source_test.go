package source

import (
	"testing"

	"github.com/dtpc/landshark/internal/models"
)

func TestMemBandReadRows(t *testing.T) {
	// 3 rows x 2 cols x 2 channels
	data := make([]float32, 3*2*2)
	for i := range data {
		data[i] = float32(i)
	}
	b, err := NewMemBand(data, 3, 2, 2, []string{"a", "b"})
	if err != nil {
		t.Fatalf("NewMemBand failed: %v", err)
	}

	rows, cols, channels := b.Shape()
	if rows != 3 || cols != 2 || channels != 2 {
		t.Fatalf("shape (%d, %d, %d), want (3, 2, 2)", rows, cols, channels)
	}

	got, err := b.ReadRows(models.FixedSlice{Start: 1, Stop: 3})
	if err != nil {
		t.Fatalf("ReadRows failed: %v", err)
	}
	if len(got) != 2*2*2 {
		t.Fatalf("read %d values, want 8", len(got))
	}
	if got[0] != 4 || got[len(got)-1] != 11 {
		t.Errorf("rows [1, 3) span values %v..%v, want 4..11", got[0], got[len(got)-1])
	}

	if _, err := b.ReadRows(models.FixedSlice{Start: 2, Stop: 4}); err == nil {
		t.Error("expected error for out-of-range slice")
	}
	if _, err := b.ReadRows(models.FixedSlice{Start: 2, Stop: 2}); err == nil {
		t.Error("expected error for empty slice")
	}
}

func TestMemBandValidation(t *testing.T) {
	if _, err := NewMemBand(make([]float32, 5), 2, 2, 2, []string{"a", "b"}); err == nil {
		t.Error("expected error for buffer size mismatch")
	}
	if _, err := NewMemBand(make([]float32, 8), 2, 2, 2, []string{"a"}); err == nil {
		t.Error("expected error for column count mismatch")
	}
}

func TestMemBandMissing(t *testing.T) {
	b, err := NewMemBand(make([]int32, 4), 2, 2, 1, []string{"x"})
	if err != nil {
		t.Fatalf("NewMemBand failed: %v", err)
	}
	if _, ok := b.Missing(); ok {
		t.Error("band reports a missing sentinel before one is set")
	}
	b.SetMissing(CategoricalMissing)
	if v, ok := b.Missing(); !ok || v != CategoricalMissing {
		t.Errorf("Missing = (%v, %v), want (%v, true)", v, ok, CategoricalMissing)
	}
}

func TestFeaturesRows(t *testing.T) {
	cat, err := NewMemBand(make([]int32, 6), 3, 2, 1, []string{"x"})
	if err != nil {
		t.Fatalf("NewMemBand failed: %v", err)
	}
	f := &Features{Cat: cat}
	if f.Rows() != 3 {
		t.Errorf("Rows = %d, want 3", f.Rows())
	}
	if err := f.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
