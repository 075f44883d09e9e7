package models

import "testing"

func TestMaskedArrayLayout(t *testing.T) {
	m := NewMaskedArray[float32](2, 3, 2)
	if len(m.Data) != 2*3*3*2 || len(m.Mask) != len(m.Data) {
		t.Fatalf("allocated %d values and %d mask cells", len(m.Data), len(m.Mask))
	}

	// write through Cell and read back through Patch
	copy(m.Cell(1, 2, 0), []float32{7, 8})
	data, mask := m.Patch(1)
	if len(data) != 3*3*2 {
		t.Fatalf("patch has %d values, want 18", len(data))
	}
	off := (2*3 + 0) * 2
	if data[off] != 7 || data[off+1] != 8 {
		t.Errorf("cell (1, 2, 0) holds (%v, %v), want (7, 8)", data[off], data[off+1])
	}
	for _, masked := range mask {
		if masked {
			t.Error("fresh array has masked cells")
		}
	}
}

func TestMaskedArrayMaskSentinel(t *testing.T) {
	m := NewMaskedArray[int32](1, 2, 1)
	copy(m.Data, []int32{5, -9, 5, -9})
	m.Mask[0] = true // already masked cells must stay masked

	m.MaskSentinel(-9)
	want := []bool{true, true, false, true}
	for i := range want {
		if m.Mask[i] != want[i] {
			t.Errorf("mask[%d] = %v, want %v", i, m.Mask[i], want[i])
		}
	}
}

func TestNewMaskedArrayPanicsOnBadDims(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for zero patch count")
		}
	}()
	NewMaskedArray[float32](0, 3, 1)
}

func TestFixedSliceLen(t *testing.T) {
	if got := (FixedSlice{Start: 3, Stop: 8}).Len(); got != 5 {
		t.Errorf("Len = %d, want 5", got)
	}
}
