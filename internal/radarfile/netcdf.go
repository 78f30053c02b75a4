package radarfile

import (
	"fmt"
	"io"
	"reflect"

	"github.com/ctessum/cdf"
)

// FillValue is written into invalid gates of output fields.
const FillValue = -9999.0

func hasVariable(h *cdf.Header, name string) bool {
	for _, v := range h.Variables() {
		if v == name {
			return true
		}
	}
	return false
}

func product(lens []int) int {
	n := 1
	for _, l := range lens {
		n *= l
	}
	return n
}

// readAll reads every value of variable v into the typed slice cdf uses
// for it.
func readAll(f *cdf.File, v string) (interface{}, error) {
	n := product(f.Header.Lengths(v))
	r := f.Reader(v, nil, nil)
	buf := r.Zero(n)
	if n == 0 {
		return buf, nil
	}
	if _, err := r.Read(buf); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read variable %s: %w", v, err)
	}
	return buf, nil
}

// toFloat64 converts any numeric slice returned by cdf.
func toFloat64(data interface{}) ([]float64, error) {
	switch d := data.(type) {
	case []float64:
		out := make([]float64, len(d))
		copy(out, d)
		return out, nil
	case []float32:
		out := make([]float64, len(d))
		for i, v := range d {
			out[i] = float64(v)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(d))
		for i, v := range d {
			out[i] = float64(v)
		}
		return out, nil
	case []int16:
		out := make([]float64, len(d))
		for i, v := range d {
			out[i] = float64(v)
		}
		return out, nil
	case []int8:
		out := make([]float64, len(d))
		for i, v := range d {
			out[i] = float64(v)
		}
		return out, nil
	case []uint8:
		out := make([]float64, len(d))
		for i, v := range d {
			out[i] = float64(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported data type %T", data)
	}
}

// attrFloats returns a numeric attribute as float64s, or nil when it is
// absent or not numeric.
func attrFloats(h *cdf.Header, v, name string) []float64 {
	a := h.GetAttribute(v, name)
	if a == nil {
		return nil
	}
	out, err := toFloat64(a)
	if err != nil {
		return nil
	}
	return out
}

// zeroOf returns a one-element slice of the same type as data, which
// cdf.Header.AddVariable uses to pick the variable type.
func zeroOf(data interface{}) interface{} {
	return reflect.MakeSlice(reflect.TypeOf(data), 1, 1).Interface()
}
