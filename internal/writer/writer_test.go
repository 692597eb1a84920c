package writer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zheqd/geosnag/internal/constants"
	"github.com/zheqd/geosnag/internal/exiftool"
)

func newTestWriter() *Writer {
	// No exiftool command configured; EXIF writes are expected to fail,
	// sidecar writes still work.
	return New(exiftool.Capabilities{}, "1.2.3")
}

func writePhoto(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte{0xff, 0xd8, 0xff, 0xe0}, 0o644); err != nil {
		t.Fatalf("could not write photo: %v", err)
	}
	return path
}

func TestWriteGPS_InvalidCoordinates(t *testing.T) {
	w := newTestWriter()

	for _, c := range [][2]float64{{91, 0}, {-91, 0}, {0, 181}, {0, -181}} {
		res := w.WriteGPS("/photos/a.jpg", c[0], c[1], nil, false, "")
		if res.Success() {
			t.Errorf("expected failure for coordinates (%v, %v)", c[0], c[1])
		}
	}
}

func TestWriteGPS_NoBackend(t *testing.T) {
	w := newTestWriter()
	path := writePhoto(t, t.TempDir(), "a.jpg")

	res := w.WriteGPS(path, 50.08, 14.43, nil, false, "")
	if res.Success() {
		t.Fatal("expected failure without an EXIF backend")
	}
	if res.Method != MethodExif || res.FilePath != path {
		t.Errorf("result identity wrong: %+v", res)
	}
}

func TestWriteGPS_UnknownMismatchFormat(t *testing.T) {
	w := newTestWriter()
	path := writePhoto(t, t.TempDir(), "a.heic")

	if res := w.WriteGPS(path, 50, 14, nil, false, "BMP"); res.Success() {
		t.Error("expected failure for an unknown real format")
	}
}

func TestWriteXMPSidecar(t *testing.T) {
	w := newTestWriter()
	dir := t.TempDir()
	path := writePhoto(t, dir, "a.jpg")

	alt := -12.5
	res := w.WriteXMPSidecar(path, -33.8568, 151.2153, &alt, false)
	if !res.Success() {
		t.Fatalf("sidecar write failed: %v", res.Err)
	}
	if res.Method != MethodXMPSidecar {
		t.Errorf("expected method %q, got %q", MethodXMPSidecar, res.Method)
	}

	data, err := os.ReadFile(filepath.Join(dir, "a.xmp"))
	if err != nil {
		t.Fatalf("sidecar not written: %v", err)
	}
	content := string(data)

	// Southern / eastern hemisphere, degrees,decimal-minutes notation.
	for _, want := range []string{
		"<exif:GPSLatitude>33,51.408000S</exif:GPSLatitude>",
		"<exif:GPSLongitude>151,12.918000E</exif:GPSLongitude>",
		"<exif:GPSAltitude>12.50</exif:GPSAltitude>",
		"<exif:GPSAltitudeRef>1</exif:GPSAltitudeRef>",
		"WGS-84",
		constants.ProjectName + " v1.2.3",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("sidecar missing %q", want)
		}
	}

	// No temp file may survive.
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("leftover temp file: %s", e.Name())
		}
	}
}

func TestWriteXMPSidecar_NoAltitude(t *testing.T) {
	w := newTestWriter()
	dir := t.TempDir()
	path := writePhoto(t, dir, "b.jpg")

	if res := w.WriteXMPSidecar(path, 50.0755, 14.4378, nil, false); !res.Success() {
		t.Fatalf("sidecar write failed: %v", res.Err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "b.xmp"))
	if err != nil {
		t.Fatalf("sidecar not written: %v", err)
	}
	if strings.Contains(string(data), "GPSAltitude") {
		t.Error("altitude tags written without altitude data")
	}
	if !strings.Contains(string(data), "N</exif:GPSLatitude>") {
		t.Error("expected northern hemisphere latitude")
	}
}

func TestWriteXMPSidecar_OverwritesExisting(t *testing.T) {
	w := newTestWriter()
	dir := t.TempDir()
	path := writePhoto(t, dir, "c.jpg")
	sidecar := filepath.Join(dir, "c.xmp")

	if err := os.WriteFile(sidecar, []byte("stale"), 0o644); err != nil {
		t.Fatalf("could not seed sidecar: %v", err)
	}

	if res := w.WriteXMPSidecar(path, 10, 20, nil, false); !res.Success() {
		t.Fatalf("sidecar write failed: %v", res.Err)
	}

	data, _ := os.ReadFile(sidecar)
	if string(data) == "stale" {
		t.Error("existing sidecar was not overwritten")
	}
}

func TestWriteXMPSidecar_InvalidCoordinates(t *testing.T) {
	w := newTestWriter()
	dir := t.TempDir()
	path := writePhoto(t, dir, "d.jpg")

	if res := w.WriteXMPSidecar(path, 95, 0, nil, false); res.Success() {
		t.Fatal("expected failure for out-of-range latitude")
	}
	if _, err := os.Stat(filepath.Join(dir, "d.xmp")); err == nil {
		t.Error("sidecar written despite invalid coordinates")
	}
}

func TestStampProcessed_NoBackend(t *testing.T) {
	w := newTestWriter()
	if err := w.StampProcessed("/photos/a.jpg"); err == nil {
		t.Error("expected error without an EXIF backend")
	}
}

func TestRunOnCopy_RefusesSymlink(t *testing.T) {
	w := newTestWriter()
	dir := t.TempDir()
	target := writePhoto(t, dir, "real.jpg")
	link := filepath.Join(dir, "link.jpg")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	if err := w.runOnCopy(link, ".jpg", []string{"-Software=x"}); err == nil {
		t.Error("expected refusal to write through a symlink")
	}
}

func TestGPSArgs(t *testing.T) {
	alt := -3.25
	args := gpsArgs(-50.5, -14.25, &alt)

	want := []string{
		"-GPSLatitude=50.50000000",
		"-GPSLatitudeRef=S",
		"-GPSLongitude=14.25000000",
		"-GPSLongitudeRef=W",
		"-GPSMapDatum=WGS-84",
		"-GPSAltitude=3.25",
		"-GPSAltitudeRef=1",
	}
	if len(args) != len(want) {
		t.Fatalf("expected %d args, got %d: %v", len(want), len(args), args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("arg %d: expected %q, got %q", i, want[i], args[i])
		}
	}
}

func TestGPSArgs_NoAltitude(t *testing.T) {
	args := gpsArgs(50, 14, nil)
	for _, a := range args {
		if strings.Contains(a, "Altitude") {
			t.Errorf("altitude arg without altitude data: %q", a)
		}
	}
}

func TestMakeStamp(t *testing.T) {
	w := newTestWriter()
	stamp := w.makeStamp()

	if !strings.HasPrefix(stamp, constants.MarkerPrefix+"v1.2.3:") {
		t.Errorf("unexpected stamp format: %q", stamp)
	}
	if !strings.HasSuffix(stamp, "Z") {
		t.Errorf("expected UTC timestamp, got %q", stamp)
	}
}
