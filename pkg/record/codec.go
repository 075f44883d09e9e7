// Package record serializes extracted patch examples into compressed,
// checksummed byte records and writes them to size-capped rolling files,
// split by fold for training or tagged by strip for query output.
package record

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/klauspost/compress/snappy"

	"github.com/dtpc/landshark/internal/models"
)

// Record is one extracted example: the feature patch for each channel
// group with its missing mask, the target values (training only), and the
// point's world coordinates and image indices.
type Record struct {
	// ConShape / CatShape are (side, side, channels) of each patch, zero
	// when the channel group is absent
	ConShape [3]int32
	CatShape [3]int32

	Con     []float32
	ConMask []bool
	Cat     []int32
	CatMask []bool

	ConTargets []float32
	CatTargets []int32

	Coords  [2]float64
	Indices [2]int32
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Marshal encodes a record as a snappy-compressed payload preceded by a
// CRC-32C checksum of the compressed bytes.
func Marshal(r *Record) ([]byte, error) {
	var raw bytes.Buffer
	w := func(v any) {
		// bytes.Buffer writes never fail
		_ = binary.Write(&raw, binary.LittleEndian, v)
	}

	w(r.ConShape)
	w(r.CatShape)
	w(int32(len(r.ConTargets)))
	w(int32(len(r.CatTargets)))
	w(r.Con)
	w(boolBytes(r.ConMask))
	w(r.Cat)
	w(boolBytes(r.CatMask))
	w(r.ConTargets)
	w(r.CatTargets)
	w(r.Coords)
	w(r.Indices)

	payload := snappy.Encode(nil, raw.Bytes())
	out := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(out, crc32.Checksum(payload, castagnoli))
	copy(out[4:], payload)
	return out, nil
}

// Unmarshal decodes a record produced by Marshal, verifying the checksum.
func Unmarshal(b []byte) (*Record, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("record too short: %d bytes", len(b))
	}
	payload := b[4:]
	if crc := binary.LittleEndian.Uint32(b); crc != crc32.Checksum(payload, castagnoli) {
		return nil, fmt.Errorf("record checksum mismatch")
	}
	raw, err := snappy.Decode(nil, payload)
	if err != nil {
		return nil, fmt.Errorf("decompressing record: %w", err)
	}

	rd := bytes.NewReader(raw)
	r := &Record{}
	read := func(v any) error {
		return binary.Read(rd, binary.LittleEndian, v)
	}
	var nConTargets, nCatTargets int32
	if err := read(&r.ConShape); err != nil {
		return nil, fmt.Errorf("decoding record header: %w", err)
	}
	if err := read(&r.CatShape); err != nil {
		return nil, fmt.Errorf("decoding record header: %w", err)
	}
	if err := read(&nConTargets); err != nil {
		return nil, fmt.Errorf("decoding record header: %w", err)
	}
	if err := read(&nCatTargets); err != nil {
		return nil, fmt.Errorf("decoding record header: %w", err)
	}

	conLen := int(r.ConShape[0]) * int(r.ConShape[1]) * int(r.ConShape[2])
	catLen := int(r.CatShape[0]) * int(r.CatShape[1]) * int(r.CatShape[2])
	r.Con = make([]float32, conLen)
	r.Cat = make([]int32, catLen)
	r.ConTargets = make([]float32, nConTargets)
	r.CatTargets = make([]int32, nCatTargets)
	conMask := make([]byte, conLen)
	catMask := make([]byte, catLen)

	for _, v := range []any{r.Con, conMask, r.Cat, catMask, r.ConTargets, r.CatTargets, &r.Coords, &r.Indices} {
		if err := read(v); err != nil {
			return nil, fmt.Errorf("decoding record body: %w", err)
		}
	}
	r.ConMask = bytesToBool(conMask)
	r.CatMask = bytesToBool(catMask)
	return r, nil
}

func boolBytes(mask []bool) []byte {
	out := make([]byte, len(mask))
	for i, m := range mask {
		if m {
			out[i] = 1
		}
	}
	return out
}

func bytesToBool(b []byte) []bool {
	out := make([]bool, len(b))
	for i, v := range b {
		out[i] = v != 0
	}
	return out
}

// Serialise converts one assembled batch into per-point records, one byte
// string per point.
func Serialise(d *models.DataArrays) ([][]byte, error) {
	n := d.Len()
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		r := &Record{
			Coords:  d.Coords[i],
			Indices: [2]int32{int32(d.Indices[i][0]), int32(d.Indices[i][1])},
		}
		if d.Con != nil {
			r.ConShape = [3]int32{int32(d.Con.Side), int32(d.Con.Side), int32(d.Con.Channels)}
			r.Con, r.ConMask = d.Con.Patch(i)
		}
		if d.Cat != nil {
			r.CatShape = [3]int32{int32(d.Cat.Side), int32(d.Cat.Side), int32(d.Cat.Channels)}
			r.Cat, r.CatMask = d.Cat.Patch(i)
		}
		if d.ConTargets != nil {
			r.ConTargets = d.ConTargets[i]
		}
		if d.CatTargets != nil {
			r.CatTargets = d.CatTargets[i]
		}
		b, err := Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("serialising point %d: %w", i, err)
		}
		out[i] = b
	}
	return out, nil
}
