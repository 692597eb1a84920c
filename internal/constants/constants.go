// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Project identity
const (
	// ProjectName is the display name used in banners and the marker tag
	ProjectName = "GeoSnag"

	// MarkerPrefix is the prefix written into the EXIF Software tag after
	// a successful GPS write; files carrying it are skipped on re-runs
	MarkerPrefix = "GeoSnag:"
)

// Matching constants
const (
	// DefaultMaxTimeDeltaMinutes is the default matching window between a
	// target photo and a same-day GPS source
	DefaultMaxTimeDeltaMinutes = 120

	// DefaultMinConfidence is the minimum confidence required to apply a
	// match (0 = apply everything that matched)
	DefaultMinConfidence = 0.0
)

// Processing constants
const (
	// DefaultWorkers is the default number of parallel metadata readers
	DefaultWorkers = 4

	// DefaultPreviewCount is the default number of matches shown in the
	// preview table
	DefaultPreviewCount = 20
)
