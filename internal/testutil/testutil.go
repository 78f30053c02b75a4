// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/cdf"

	"github.com/EVS-ATMOS/xsapr-clutter-project/internal/fsutil"
)

// NCVar describes one variable of a NetCDF fixture. Fill is a one-element
// typed slice; it selects the variable type and becomes its _FillValue.
type NCVar struct {
	Name  string
	Dims  []string
	Fill  interface{}
	Attrs map[string]interface{}
	Data  interface{}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// WriteNetCDF encodes vars through a real temporary file and stores the
// bytes at path in fsys. A dimension of length 0 is the record dimension;
// variables over it are declared with no records.
func WriteNetCDF(t *testing.T, fsys fsutil.FileSystem, path string, dims []string, lens []int, vars []NCVar) {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "fixture.nc"))
	AssertNoError(t, err)
	defer f.Close()

	h := cdf.NewHeader(dims, lens)
	h.AddAttribute("", "instrument_name", "xsapr-sgp")
	for _, v := range vars {
		h.AddVariable(v.Name, v.Dims, v.Fill)
		if h.GetAttribute(v.Name, "_FillValue") == nil {
			h.AddAttribute(v.Name, "_FillValue", v.Fill)
		}
		for k, a := range v.Attrs {
			h.AddAttribute(v.Name, k, a)
		}
	}
	h.Define()

	nc, err := cdf.Create(f, h)
	AssertNoError(t, err)
	for _, v := range vars {
		end := nc.Header.Lengths(v.Name)
		if hasZero(end) {
			continue
		}
		_, err := nc.Writer(v.Name, make([]int, len(end)), end).Write(v.Data)
		AssertNoError(t, err)
	}
	AssertNoError(t, cdf.UpdateNumRecs(f))

	data, err := os.ReadFile(f.Name())
	AssertNoError(t, err)
	AssertNoError(t, fsys.WriteFile(path, data, 0644))
}

func hasZero(lens []int) bool {
	for _, l := range lens {
		if l == 0 {
			return true
		}
	}
	return false
}

// SweepAzimuths returns the azimuth of each ray of a WriteSweep fixture.
func SweepAzimuths(rows int) []float32 {
	az := make([]float32, rows)
	for i := range az {
		az[i] = float32(360 * i / rows)
	}
	return az
}

// WriteSweep writes a rows × cols PPI sweep with time, range and azimuth
// coordinates, the given reflectivity (fill -9999) and an all-zero
// velocity field.
func WriteSweep(t *testing.T, fsys fsutil.FileSystem, path string, rows, cols int, refl []float32) {
	t.Helper()
	times := make([]float64, rows)
	for i := range times {
		times[i] = float64(i)
	}
	ranges := make([]float32, cols)
	for j := range ranges {
		ranges[j] = float32(100 * (j + 1))
	}
	WriteNetCDF(t, fsys, path, []string{"time", "range"}, []int{rows, cols}, []NCVar{
		{Name: "time", Dims: []string{"time"}, Fill: []float64{-1}, Data: times},
		{Name: "range", Dims: []string{"range"}, Fill: []float32{-1}, Data: ranges,
			Attrs: map[string]interface{}{"units": "meters"}},
		{Name: "azimuth", Dims: []string{"time"}, Fill: []float32{-1}, Data: SweepAzimuths(rows)},
		{Name: "reflectivity", Dims: []string{"time", "range"}, Fill: []float32{-9999}, Data: refl,
			Attrs: map[string]interface{}{"units": "dBZ"}},
		{Name: "velocity", Dims: []string{"time", "range"}, Fill: []float32{-9999}, Data: make([]float32, rows*cols)},
	})
}

// OscillatingSweep returns rows × cols reflectivity of 20 dBZ everywhere
// except (r, c), which is set to v.
func OscillatingSweep(rows, cols, r, c int, v float32) []float32 {
	refl := make([]float32, rows*cols)
	for i := range refl {
		refl[i] = 20
	}
	refl[r*cols+c] = v
	return refl
}
