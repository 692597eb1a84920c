// Package writer writes GPS coordinates into photo files via ExifTool,
// or into XMP sidecar files next to them. After a successful GPS write
// the file is stamped with a processed marker so re-runs skip it.
//
// All file writes are atomic: the original is copied to a temp file in
// the same directory, ExifTool modifies the copy, and the copy is
// renamed over the original. A failure at any point leaves the
// original untouched and removes the temp file.
package writer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zheqd/geosnag/internal/constants"
	"github.com/zheqd/geosnag/internal/exiftool"
)

const writeTimeout = 30 * time.Second

// Write methods reported in Result.
const (
	MethodExif       = "exif"
	MethodXMPSidecar = "xmp_sidecar"
)

// formatExtensions maps a sniffed format name to the canonical
// extension used when rewriting format-mismatched files. ExifTool
// validates by extension, so a JPEG saved as .heic must be written
// through a .jpg-named temp copy.
var formatExtensions = map[string]string{
	"JPEG": ".jpg",
	"PNG":  ".png",
	"HEIC": ".heic",
}

// Result reports the outcome of one write operation. Failures are
// values, not errors: batch-apply counts successes and failures
// without aborting.
type Result struct {
	FilePath string
	Method   string
	Err      error
}

// Success reports whether the write completed.
func (r Result) Success() bool { return r.Err == nil }

// Writer applies GPS data to photo files.
type Writer struct {
	tool    exiftool.Capabilities
	version string
}

// New creates a Writer using the given ExifTool capabilities and the
// application version (embedded in the processed marker).
func New(caps exiftool.Capabilities, version string) *Writer {
	return &Writer{tool: caps, version: version}
}

// CanWriteExif reports whether an EXIF write backend is available.
func (w *Writer) CanWriteExif() bool { return w.tool.Available() }

// WriteGPS writes GPS coordinates into the photo's EXIF data.
// formatMismatch, when non-empty, names the file's real format (from
// the scan) and routes the write through a correctly-named temp copy.
// stampAfterWrite also sets the processed marker in the same pass.
func (w *Writer) WriteGPS(path string, lat, lon float64, alt *float64, stampAfterWrite bool, formatMismatch string) Result {
	res := Result{FilePath: path, Method: MethodExif}

	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		res.Err = fmt.Errorf("invalid coordinates: (%v, %v)", lat, lon)
		return res
	}
	if !w.tool.Available() {
		res.Err = fmt.Errorf("no EXIF write backend available, install exiftool")
		return res
	}

	tmpExt := strings.ToLower(filepath.Ext(path))
	if formatMismatch != "" {
		ext, ok := formatExtensions[formatMismatch]
		if !ok {
			res.Err = fmt.Errorf("unknown real format %q for mismatched file", formatMismatch)
			return res
		}
		slog.Info("format mismatch, writing through renamed copy",
			"file", filepath.Base(path), "real_format", formatMismatch)
		tmpExt = ext
	}

	args := gpsArgs(lat, lon, alt)
	if stampAfterWrite {
		args = append(args, "-Software="+w.makeStamp())
	}

	res.Err = w.runOnCopy(path, tmpExt, args)
	if res.Err != nil {
		slog.Error("gps write failed", "path", path, "error", res.Err)
	}
	return res
}

// WriteXMPSidecar writes GPS coordinates to an XMP sidecar next to the
// photo (non-destructive; readable by Lightroom, Darktable, digiKam).
// stampOriginal additionally sets the processed marker on the photo
// itself so re-runs skip it.
func (w *Writer) WriteXMPSidecar(path string, lat, lon float64, alt *float64, stampOriginal bool) Result {
	res := Result{FilePath: path, Method: MethodXMPSidecar}

	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		res.Err = fmt.Errorf("invalid coordinates: (%v, %v)", lat, lon)
		return res
	}

	xmpPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".xmp"
	if _, err := os.Stat(xmpPath); err == nil {
		slog.Warn("xmp sidecar already exists, overwriting", "path", xmpPath)
	}

	content := w.renderXMP(lat, lon, alt)
	tmp := xmpPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		os.Remove(tmp)
		res.Err = err
		return res
	}
	if err := os.Rename(tmp, xmpPath); err != nil {
		os.Remove(tmp)
		res.Err = err
		return res
	}

	if stampOriginal {
		if err := w.StampProcessed(path); err != nil {
			slog.Warn("could not stamp processed marker", "path", path, "error", err)
		}
	}
	return res
}

// StampProcessed writes only the processed marker tag.
func (w *Writer) StampProcessed(path string) error {
	if !w.tool.Available() {
		return fmt.Errorf("no EXIF write backend available")
	}
	return w.runOnCopy(path, strings.ToLower(filepath.Ext(path)), []string{"-Software=" + w.makeStamp()})
}

// runOnCopy copies path to a temp file in the same directory, runs
// ExifTool on the copy with the given tag arguments, then renames the
// copy over the original.
func (w *Writer) runOnCopy(path, tmpExt string, tagArgs []string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("refusing to write through symlink: %s", path)
	}

	tmp, err := copyToTemp(path, tmpExt, fi.Mode().Perm())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	args := append([]string{"-overwrite_original"}, tagArgs...)
	args = append(args, tmp)
	if _, err := w.tool.Run(ctx, args...); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func copyToTemp(path, ext string, perm os.FileMode) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp(filepath.Dir(path), ".geosnag_*"+ext)
	if err != nil {
		return "", err
	}
	tmp := dst.Name()

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := dst.Chmod(perm); err != nil {
		dst.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return tmp, nil
}

func gpsArgs(lat, lon float64, alt *float64) []string {
	latRef, lonRef := "N", "E"
	if lat < 0 {
		latRef = "S"
	}
	if lon < 0 {
		lonRef = "W"
	}

	args := []string{
		fmt.Sprintf("-GPSLatitude=%.8f", abs(lat)),
		"-GPSLatitudeRef=" + latRef,
		fmt.Sprintf("-GPSLongitude=%.8f", abs(lon)),
		"-GPSLongitudeRef=" + lonRef,
		"-GPSMapDatum=WGS-84",
	}
	if alt != nil {
		altRef := "0"
		if *alt < 0 {
			altRef = "1"
		}
		args = append(args,
			fmt.Sprintf("-GPSAltitude=%.2f", abs(*alt)),
			"-GPSAltitudeRef="+altRef,
		)
	}
	return args
}

func (w *Writer) makeStamp() string {
	now := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	return fmt.Sprintf("%sv%s:%s", constants.MarkerPrefix, w.version, now)
}

func (w *Writer) renderXMP(lat, lon float64, alt *float64) string {
	latRef, lonRef := "N", "E"
	if lat < 0 {
		latRef = "S"
	}
	if lon < 0 {
		lonRef = "W"
	}

	latAbs, lonAbs := abs(lat), abs(lon)
	latDeg, lonDeg := int(latAbs), int(lonAbs)
	latMin := (latAbs - float64(latDeg)) * 60
	lonMin := (lonAbs - float64(lonDeg)) * 60

	altXML := ""
	if alt != nil {
		altRef := "0"
		if *alt < 0 {
			altRef = "1"
		}
		altXML = fmt.Sprintf("\n      <exif:GPSAltitude>%.2f</exif:GPSAltitude>"+
			"\n      <exif:GPSAltitudeRef>%s</exif:GPSAltitudeRef>", abs(*alt), altRef)
	}

	return fmt.Sprintf(`<?xpacket begin='%s' id='W5M0MpCehiHzreSzNTczkc9d'?>
<x:xmpmeta xmlns:x='adobe:ns:meta/'>
  <rdf:RDF xmlns:rdf='http://www.w3.org/1999/02/22-rdf-syntax-ns#'>
    <rdf:Description rdf:about=''
      xmlns:exif='http://ns.adobe.com/exif/1.0/'
      xmlns:xmp='http://ns.adobe.com/xap/1.0/'>
      <exif:GPSVersionID>2.3.0.0</exif:GPSVersionID>
      <exif:GPSLatitude>%d,%.6f%s</exif:GPSLatitude>
      <exif:GPSLongitude>%d,%.6f%s</exif:GPSLongitude>
      <exif:GPSMapDatum>WGS-84</exif:GPSMapDatum>%s
      <xmp:CreatorTool>%s v%s</xmp:CreatorTool>
    </rdf:Description>
  </rdf:RDF>
</x:xmpmeta>
<?xpacket end='w'?>`,
		"\ufeff",
		latDeg, latMin, latRef,
		lonDeg, lonMin, lonRef,
		altXML,
		constants.ProjectName, w.version)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
