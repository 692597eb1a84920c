package scanner

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/zheqd/geosnag/internal/constants"
	"github.com/zheqd/geosnag/internal/exiftool"
	"github.com/zheqd/geosnag/internal/photo"
)

// ReadFunc reads metadata for a single file. Implementations never
// return an error; failures are recorded in the Photo's ScanError so a
// bad file cannot abort a batch.
type ReadFunc func(path string) *photo.Photo

// exifDateLayouts are tried in order when parsing EXIF datetime strings.
var exifDateLayouts = []string{
	"2006:01:02 15:04:05",
	"2006-01-02 15:04:05",
	"2006:01:02 15:04:05.999999",
}

// Backend extracts photo metadata. JPEG and TIFF-based RAW files are
// parsed in-process with goexif; HEIC/HEIF containers fall back to
// ExifTool when available. The HEIC decoder is initialized lazily on
// the first HEIC file so non-HEIC libraries pay nothing for it.
type Backend struct {
	exifTool exiftool.Capabilities

	heicOnce sync.Once
	heicOK   bool
}

// NewBackend creates a metadata backend using the given external-tool
// capabilities (see exiftool.Probe).
func NewBackend(caps exiftool.Capabilities) *Backend {
	return &Backend{exifTool: caps}
}

// Read scans one photo file and returns its metadata. Safe for
// concurrent use: it shares no mutable state between calls.
func (b *Backend) Read(path string) *photo.Photo {
	name := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(name))

	p := &photo.Photo{
		FilePath:  path,
		FileName:  name,
		Extension: ext,
	}
	p.FormatMismatch = detectFormatMismatch(path, ext)

	switch ext {
	case ".heic", ".heif":
		b.readHEIC(path, p)
	default:
		readWithGoexif(path, p)
	}

	if p.ScanError != "" {
		slog.Warn("failed to scan photo", "path", path, "error", p.ScanError)
	}
	return p
}

// readWithGoexif parses EXIF from JPEG and TIFF-based RAW files.
// A file that simply carries no EXIF block yields an empty Photo, not
// a scan error; only I/O failures are recorded as errors.
func readWithGoexif(path string, p *photo.Photo) {
	f, err := os.Open(path)
	if err != nil {
		p.ScanError = err.Error()
		return
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		slog.Debug("no parsable exif data", "path", path, "error", err)
		return
	}

	p.CameraMake = tagString(x, exif.Make)
	p.CameraModel = tagString(x, exif.Model)
	p.DateTimeOriginal = parseDateTime(x)

	if lat, lon, err := x.LatLong(); err == nil {
		if lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180 {
			p.HasGPS = true
			p.GPSLatitude = &lat
			p.GPSLongitude = &lon
			p.GPSAltitude = parseAltitude(x)
		}
	}

	p.Processed = strings.HasPrefix(tagString(x, exif.Software), constants.MarkerPrefix)
}

// readHEIC extracts metadata from HEIC/HEIF containers via ExifTool.
func (b *Backend) readHEIC(path string, p *photo.Photo) {
	b.heicOnce.Do(func() {
		b.heicOK = b.exifTool.Available()
		if !b.heicOK {
			slog.Warn("exiftool not available, HEIC files will be scanned without metadata")
		}
	})
	if !b.heicOK {
		// Transient: the record stays out of the index so the file is
		// retried once exiftool is installed.
		p.ScanError = "exiftool unavailable, cannot read HEIC metadata"
		return
	}

	out, err := b.exifTool.Run(context.Background(), "-j", "-n",
		"-DateTimeOriginal", "-CreateDate", "-ModifyDate",
		"-GPSLatitude", "-GPSLongitude", "-GPSAltitude",
		"-Make", "-Model", "-Software",
		path)
	if err != nil {
		p.ScanError = err.Error()
		return
	}

	var records []struct {
		DateTimeOriginal string   `json:"DateTimeOriginal"`
		CreateDate       string   `json:"CreateDate"`
		ModifyDate       string   `json:"ModifyDate"`
		GPSLatitude      *float64 `json:"GPSLatitude"`
		GPSLongitude     *float64 `json:"GPSLongitude"`
		GPSAltitude      *float64 `json:"GPSAltitude"`
		Make             string   `json:"Make"`
		Model            string   `json:"Model"`
		Software         string   `json:"Software"`
	}
	if err := json.Unmarshal(out, &records); err != nil || len(records) == 0 {
		p.ScanError = "exiftool returned unparsable output"
		return
	}
	r := records[0]

	p.CameraMake = strings.TrimSpace(r.Make)
	p.CameraModel = strings.TrimSpace(r.Model)
	for _, s := range []string{r.DateTimeOriginal, r.CreateDate, r.ModifyDate} {
		if t := parseExifDateString(s); t != nil {
			p.DateTimeOriginal = t
			break
		}
	}

	if r.GPSLatitude != nil && r.GPSLongitude != nil {
		lat, lon := *r.GPSLatitude, *r.GPSLongitude
		if lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180 {
			p.HasGPS = true
			p.GPSLatitude = &lat
			p.GPSLongitude = &lon
			p.GPSAltitude = r.GPSAltitude
		}
	}

	p.Processed = strings.HasPrefix(r.Software, constants.MarkerPrefix)
}

// parseDateTime tries the EXIF datetime tags in priority order.
func parseDateTime(x *exif.Exif) *time.Time {
	for _, field := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTimeDigitized, exif.DateTime} {
		if t := parseExifDateString(tagString(x, field)); t != nil {
			return t
		}
	}
	return nil
}

func parseExifDateString(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range exifDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func parseAltitude(x *exif.Exif) *float64 {
	tag, err := x.Get(exif.GPSAltitude)
	if err != nil {
		return nil
	}
	rat, err := tag.Rat(0)
	if err != nil {
		return nil
	}
	alt, _ := rat.Float64()
	if ref, err := x.Get(exif.GPSAltitudeRef); err == nil {
		if v, err := ref.Int(0); err == nil && v == 1 {
			alt = -alt
		}
	}
	return &alt
}

func tagString(x *exif.Exif, field exif.FieldName) string {
	tag, err := x.Get(field)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// extFormats maps extensions to the format expected from their magic
// bytes. RAW formats are not sniffed.
var extFormats = map[string]string{
	".jpg":  "JPEG",
	".jpeg": "JPEG",
	".png":  "PNG",
	".heic": "HEIC",
	".heif": "HEIC",
}

// detectFormatMismatch sniffs the file header and returns the real
// format name when it disagrees with the extension (common with Google
// Takeout exports that save JPEGs under a .heic name), or "".
func detectFormatMismatch(path, ext string) string {
	expected, ok := extFormats[ext]
	if !ok {
		return ""
	}

	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	header := make([]byte, 12)
	n, _ := io.ReadFull(f, header)
	header = header[:n]

	var real string
	switch {
	case len(header) >= 3 && header[0] == 0xff && header[1] == 0xd8 && header[2] == 0xff:
		real = "JPEG"
	case len(header) >= 4 && string(header[:4]) == "\x89PNG":
		real = "PNG"
	case len(header) >= 8 && string(header[4:8]) == "ftyp":
		real = "HEIC"
	default:
		return ""
	}

	if real == expected {
		return ""
	}
	return real
}
