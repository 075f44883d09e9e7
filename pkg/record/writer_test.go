package record

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMultiFileWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewMultiFileWriter(dir, "train")
	if err != nil {
		t.Fatalf("NewMultiFileWriter failed: %v", err)
	}

	var want [][]byte
	for i := 0; i < 3; i++ {
		b, err := Marshal(sampleRecord())
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		want = append(want, b)
	}
	if err := w.Add(want[:2]); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := w.Add(want[2:]); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if w.Records() != 3 {
		t.Errorf("Records = %d, want 3", w.Records())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.Close(); err == nil {
		t.Error("expected error closing a closed writer")
	}

	recs, err := ReadAll(filepath.Join(dir, "train.00000.rec"))
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(recs) != 3 {
		t.Errorf("read back %d records, want 3", len(recs))
	}
}

// TestMultiFileWriterRolls lowers the size cap and checks that records
// spill into numbered files with none lost.
func TestMultiFileWriterRolls(t *testing.T) {
	dir := t.TempDir()
	w, err := NewMultiFileWriter(dir, "query.1of1")
	if err != nil {
		t.Fatalf("NewMultiFileWriter failed: %v", err)
	}
	w.maxBytes = 64

	rec, err := Marshal(sampleRecord())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		if err := w.Add([][]byte{rec}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected rolled output files, got %d", len(entries))
	}
	total := 0
	for _, e := range entries {
		recs, err := ReadAll(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatalf("ReadAll(%s) failed: %v", e.Name(), err)
		}
		total += len(recs)
	}
	if total != 10 {
		t.Errorf("files hold %d records, want 10", total)
	}
}

func TestSplitByFold(t *testing.T) {
	batch := [][]byte{{1}, {2}, {3}, {4}}
	folds := []int{2, 1, 2, 3}

	train, test := SplitByFold(batch, folds, 2)
	if len(train) != 2 || len(test) != 2 {
		t.Fatalf("split %d/%d, want 2/2", len(train), len(test))
	}
	if train[0][0] != 2 || train[1][0] != 4 {
		t.Errorf("training records %v", train)
	}
	if test[0][0] != 1 || test[1][0] != 3 {
		t.Errorf("test records %v", test)
	}

	train, test = SplitByFold(batch, folds, 5)
	if len(train) != 4 || len(test) != 0 {
		t.Errorf("split with unused fold gave %d/%d", len(train), len(test))
	}
}
