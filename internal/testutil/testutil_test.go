package testutil

import (
	"testing"

	"github.com/ctessum/cdf"

	"github.com/EVS-ATMOS/xsapr-clutter-project/internal/fsutil"
)

func TestAssertNoError(t *testing.T) {
	AssertNoError(t, nil)
}

func TestOscillatingSweep(t *testing.T) {
	refl := OscillatingSweep(2, 3, 1, 2, 7)
	if len(refl) != 6 {
		t.Fatalf("expected 6 gates, got %d", len(refl))
	}
	if refl[5] != 7 || refl[0] != 20 {
		t.Errorf("unexpected sweep %v", refl)
	}
}

func TestSweepAzimuths(t *testing.T) {
	az := SweepAzimuths(4)
	want := []float32{0, 90, 180, 270}
	for i := range want {
		if az[i] != want[i] {
			t.Errorf("azimuth %d = %v, want %v", i, az[i], want[i])
		}
	}
}

func TestWriteSweep(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	WriteSweep(t, mfs, "/radar/a.nc", 2, 3, OscillatingSweep(2, 3, 0, 0, 5))

	if !mfs.Exists("/radar/a.nc") {
		t.Fatal("expected fixture to be written")
	}

	f, err := cdf.Open(fsutil.NewBuffer(mustRead(t, mfs, "/radar/a.nc")))
	AssertNoError(t, err)
	lens := f.Header.Lengths("reflectivity")
	if len(lens) != 2 || lens[0] != 2 || lens[1] != 3 {
		t.Errorf("unexpected reflectivity lengths %v", lens)
	}
	if got := f.Header.GetAttribute("reflectivity", "units"); got != "dBZ" {
		t.Errorf("units = %v, want dBZ", got)
	}
}

func mustRead(t *testing.T, fsys fsutil.FileSystem, path string) []byte {
	t.Helper()
	data, err := fsys.ReadFile(path)
	AssertNoError(t, err)
	return data
}
