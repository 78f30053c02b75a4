package db

import (
	"bytes"
	"compress/gzip"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/EVS-ATMOS/xsapr-clutter-project/internal/clutter"
)

// maskBlob is the stored form of a clutter mask. Cells are row-major, one
// byte per gate.
type maskBlob struct {
	Rows    int     `cbor:"rows"`
	Cols    int     `cbor:"cols"`
	Clutter []uint8 `cbor:"clutter"`
	Invalid []uint8 `cbor:"invalid,omitempty"`
}

// EncodeMask serializes a mask as gzip-compressed CBOR.
func EncodeMask(m clutter.MaskedGrid) ([]byte, error) {
	shape := m.Shape()
	blob := maskBlob{Rows: shape.Rows, Cols: shape.Cols, Clutter: make([]uint8, shape.Size())}
	raw := m.Values.RawMatrix()
	for r := 0; r < shape.Rows; r++ {
		for c := 0; c < shape.Cols; c++ {
			if raw.Data[r*raw.Stride+c] != 0 {
				blob.Clutter[r*shape.Cols+c] = 1
			}
		}
	}
	if m.Invalid != nil {
		blob.Invalid = make([]uint8, len(m.Invalid))
		for i, v := range m.Invalid {
			if v {
				blob.Invalid[i] = 1
			}
		}
	}

	payload, err := cbor.Marshal(blob)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeMask reverses EncodeMask.
func DecodeMask(data []byte) (clutter.MaskedGrid, error) {
	if len(data) == 0 {
		return clutter.MaskedGrid{}, fmt.Errorf("empty mask blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return clutter.MaskedGrid{}, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var blob maskBlob
	if err := cbor.NewDecoder(gz).Decode(&blob); err != nil {
		return clutter.MaskedGrid{}, fmt.Errorf("failed to decode mask: %w", err)
	}
	n := blob.Rows * blob.Cols
	if blob.Rows <= 0 || blob.Cols <= 0 || len(blob.Clutter) != n {
		return clutter.MaskedGrid{}, fmt.Errorf("corrupt mask: %dx%d with %d cells", blob.Rows, blob.Cols, len(blob.Clutter))
	}
	if blob.Invalid != nil && len(blob.Invalid) != n {
		return clutter.MaskedGrid{}, fmt.Errorf("corrupt mask: %d validity cells for %d gates", len(blob.Invalid), n)
	}

	g := clutter.NewBoolGrid(blob.Rows, blob.Cols)
	for i, v := range blob.Clutter {
		g.Cells[i] = v != 0
	}
	var invalid []bool
	if blob.Invalid != nil {
		invalid = make([]bool, n)
		for i, v := range blob.Invalid {
			invalid[i] = v != 0
		}
	}
	return clutter.NewMaskedGrid(g, invalid), nil
}
