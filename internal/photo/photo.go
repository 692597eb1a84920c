package photo

import (
	"fmt"
	"strings"
	"time"
)

// Photo holds the metadata extracted from a single photo file.
// Instances are constructed once (by a scan or by the index) and never
// mutated afterwards; a rescan produces a new Photo.
type Photo struct {
	FilePath  string // absolute path, unique key
	FileName  string
	Extension string // lowercase, with dot

	DateTimeOriginal *time.Time
	HasGPS           bool
	GPSLatitude      *float64
	GPSLongitude     *float64
	GPSAltitude      *float64
	CameraMake       string
	CameraModel      string

	// Processed is true when the GeoSnag marker tag was found, meaning
	// GPS data was already written by a previous run.
	Processed bool

	// ScanError holds the failure message for this file, if any.
	// It is transient: records with a scan error are never cached.
	ScanError string

	// FormatMismatch names the real format when the file content does
	// not match its extension (e.g. "JPEG" for a JPEG saved as .heic).
	FormatMismatch string
}

// DateKey returns the calendar date used for matching ("2006-01-02"),
// or "" when the photo has no usable timestamp.
func (p *Photo) DateKey() string {
	if p.DateTimeOriginal == nil {
		return ""
	}
	return p.DateTimeOriginal.Format("2006-01-02")
}

// Device returns a display string combining camera make and model.
func (p *Photo) Device() string {
	return strings.TrimSpace(p.CameraMake + " " + p.CameraModel)
}

// FormatDelta renders a signed duration as a compact human string,
// e.g. "+41m37s", "-1h05m12s", "+8s".
func FormatDelta(d time.Duration) string {
	sign := "+"
	if d < 0 {
		sign = "-"
		d = -d
	}
	total := int(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%s%dh%02dm%02ds", sign, hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%s%dm%02ds", sign, minutes, seconds)
	default:
		return fmt.Sprintf("%s%ds", sign, seconds)
	}
}
