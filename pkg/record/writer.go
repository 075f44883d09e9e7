package record

import (
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// DefaultFileSizeMB is the size threshold past which the writer rolls over
// to a new output file.
const DefaultFileSizeMB = 100

// MultiFileWriter appends length-prefixed records to a sequence of
// size-capped files named <tag>.00000.rec, <tag>.00001.rec, ... in one
// directory. Not safe for concurrent use.
type MultiFileWriter struct {
	dir      string
	tag      string
	maxBytes int64

	fileIndex int
	f         *os.File
	written   int64
	records   int
}

// NewMultiFileWriter creates the output directory if needed and opens the
// first output file.
func NewMultiFileWriter(dir, tag string) (*MultiFileWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	w := &MultiFileWriter{
		dir:       dir,
		tag:       tag,
		maxBytes:  DefaultFileSizeMB << 20,
		fileIndex: -1,
	}
	if err := w.nextFile(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *MultiFileWriter) nextFile() error {
	if w.f != nil {
		if err := w.f.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", w.f.Name(), err)
		}
		log.Printf("wrote %s (%s)", w.f.Name(), humanize.Bytes(uint64(w.written)))
	}
	w.fileIndex++
	w.written = 0
	path := filepath.Join(w.dir, fmt.Sprintf("%s.%05d.rec", w.tag, w.fileIndex))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating record file: %w", err)
	}
	w.f = f
	return nil
}

// Add appends a batch of records, rolling to a new file first if the
// current one is over the size cap.
func (w *MultiFileWriter) Add(batch [][]byte) error {
	if w.f == nil {
		return fmt.Errorf("record writer is not open")
	}
	if w.written > w.maxBytes {
		if err := w.nextFile(); err != nil {
			return err
		}
	}
	var prefix [4]byte
	for _, rec := range batch {
		binary.LittleEndian.PutUint32(prefix[:], uint32(len(rec)))
		if _, err := w.f.Write(prefix[:]); err != nil {
			return fmt.Errorf("writing record: %w", err)
		}
		if _, err := w.f.Write(rec); err != nil {
			return fmt.Errorf("writing record: %w", err)
		}
		w.written += int64(4 + len(rec))
		w.records++
	}
	return w.f.Sync()
}

// Records returns the number of records written so far.
func (w *MultiFileWriter) Records() int {
	return w.records
}

// Close finishes the current file. The writer cannot be reused afterwards.
func (w *MultiFileWriter) Close() error {
	if w.f == nil {
		return fmt.Errorf("record writer is not open")
	}
	err := w.f.Close()
	log.Printf("wrote %s (%s)", w.f.Name(), humanize.Bytes(uint64(w.written)))
	w.f = nil
	if err != nil {
		return fmt.Errorf("closing record file: %w", err)
	}
	return nil
}

// SplitByFold partitions a batch of records into those whose fold label
// differs from testFold (training) and those whose label equals it (test).
func SplitByFold(batch [][]byte, folds []int, testFold int) (train, test [][]byte) {
	for i, rec := range batch {
		if folds[i] == testFold {
			test = append(test, rec)
		} else {
			train = append(train, rec)
		}
	}
	return train, test
}

// ReadAll reads back every record from one record file, in order. Used for
// verification and tests.
func ReadAll(path string) ([]*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading record file: %w", err)
	}
	var out []*Record
	for len(data) > 0 {
		if len(data) < 4 {
			return nil, fmt.Errorf("truncated record file %s", path)
		}
		n := int(binary.LittleEndian.Uint32(data))
		data = data[4:]
		if len(data) < n {
			return nil, fmt.Errorf("truncated record file %s", path)
		}
		rec, err := Unmarshal(data[:n])
		if err != nil {
			return nil, fmt.Errorf("record %d of %s: %w", len(out), path, err)
		}
		out = append(out, rec)
		data = data[n:]
	}
	return out, nil
}
