// Package index implements the persistent scan index. It caches photo
// metadata keyed by file identity (mtime + size) so repeat runs skip
// EXIF reads for unchanged files, and caches per-target match outcomes
// so confirmed no-matches are not re-evaluated while their GPS-source
// set is unchanged.
package index

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zheqd/geosnag/internal/photo"
)

// Version of the on-disk format. A mismatch discards the whole file.
const Version = 5

// Filename is the index file name, created next to the config file.
const Filename = ".geosnag_index.json"

const timeLayout = "2006-01-02T15:04:05"

// entry is the persisted record for one file. Match-cache fields are
// meaningful only while MatchGen equals the index's current generation.
type entry struct {
	MTime float64 `json:"mtime"`
	Size  int64   `json:"size"`

	DateTimeOriginal *string  `json:"datetime_original"`
	HasGPS           bool     `json:"has_gps"`
	GPSLatitude      *float64 `json:"gps_latitude"`
	GPSLongitude     *float64 `json:"gps_longitude"`
	GPSAltitude      *float64 `json:"gps_altitude"`
	CameraMake       *string  `json:"camera_make"`
	CameraModel      *string  `json:"camera_model"`
	Processed        bool     `json:"geosnag_processed"`

	MatchStatus   *string `json:"match_status"`
	MatchSourceFP *string `json:"match_source_fp"`
	MatchGen      int     `json:"match_gen"`
}

type indexFile struct {
	Version         int               `json:"version"`
	ThresholdMin    *int              `json:"match_threshold_minutes"`
	MatchGeneration int               `json:"match_generation"`
	Entries         map[string]*entry `json:"entries"`
}

// Index is the scan cache for one index file. It is not safe for
// concurrent use; all mutation happens on the orchestrating goroutine.
type Index struct {
	path       string
	entries    map[string]*entry
	threshold  *int
	generation int
	dirty      bool
}

// New creates an empty index bound to the given file path.
func New(path string) *Index {
	return &Index{
		path:    path,
		entries: make(map[string]*entry),
	}
}

// Load reads the index file and returns the number of entries loaded.
// It fails closed: a missing file, corrupt JSON, or a version mismatch
// all result in an empty index and a log line, never an error.
func (ix *Index) Load() int {
	data, err := os.ReadFile(ix.path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("no existing index, starting fresh", "path", ix.path)
		} else {
			slog.Warn("index unreadable, starting fresh", "path", ix.path, "error", err)
		}
		return 0
	}

	var f indexFile
	if err := json.Unmarshal(data, &f); err != nil {
		slog.Warn("corrupt index file, starting fresh", "path", ix.path, "error", err)
		return 0
	}
	if f.Version != Version {
		slog.Info("index version mismatch, rebuilding", "got", f.Version, "need", Version)
		return 0
	}

	ix.entries = f.Entries
	if ix.entries == nil {
		ix.entries = make(map[string]*entry)
	}
	ix.threshold = f.ThresholdMin
	ix.generation = f.MatchGeneration
	slog.Info("index loaded", "entries", len(ix.entries))
	return len(ix.entries)
}

// Save writes the index atomically (temp file + rename in the same
// directory). It is a no-op unless the index was modified since the
// last load or save. On failure the temp file is removed and the
// existing index file is left untouched.
func (ix *Index) Save() error {
	if !ix.dirty {
		slog.Debug("index unchanged, skipping save")
		return nil
	}

	f := indexFile{
		Version:         Version,
		ThresholdMin:    ix.threshold,
		MatchGeneration: ix.generation,
		Entries:         ix.entries,
	}
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	tmp := ix.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, ix.path); err != nil {
		os.Remove(tmp)
		return err
	}

	slog.Info("index saved", "entries", len(ix.entries), "path", ix.path)
	ix.dirty = false
	return nil
}

// Lookup returns the cached Photo for path, or nil on a cache miss.
// A hit requires an entry whose (mtime, size) fingerprint matches the
// file's current stat; any mismatch, including the file no longer
// existing, is a miss rather than an error.
func (ix *Index) Lookup(path string) *photo.Photo {
	e, ok := ix.entries[path]
	if !ok {
		return nil
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil
	}
	if mtimeOf(fi) != e.MTime || fi.Size() != e.Size {
		return nil
	}
	return entryToPhoto(path, e)
}

// Update inserts or replaces the entry for p using the file's current
// identity. The fresh entry carries no match-cache data: rescanning a
// file invalidates any cached match decision for it. Records with a
// scan error are never stored.
func (ix *Index) Update(p *photo.Photo) {
	if p.ScanError != "" {
		return
	}
	fi, err := os.Stat(p.FilePath)
	if err != nil {
		return
	}
	ix.entries[p.FilePath] = photoToEntry(p, fi)
	ix.dirty = true
}

// Prune removes entries whose path is not in valid, handling files
// deleted or renamed since the last run. Returns the removed count.
func (ix *Index) Prune(valid map[string]struct{}) int {
	var stale []string
	for p := range ix.entries {
		if _, ok := valid[p]; !ok {
			stale = append(stale, p)
		}
	}
	for _, p := range stale {
		delete(ix.entries, p)
	}
	if len(stale) > 0 {
		ix.dirty = true
		slog.Info("pruned stale index entries", "count", len(stale))
	}
	return len(stale)
}

// Clear empties the index and resets the match threshold and
// generation to their initial state.
func (ix *Index) Clear() {
	ix.entries = make(map[string]*entry)
	ix.threshold = nil
	ix.generation = 0
	ix.dirty = true
}

// Len returns the number of cached entries.
func (ix *Index) Len() int { return len(ix.entries) }

// Path returns the index file location.
func (ix *Index) Path() string { return ix.path }

// Generation returns the current match generation counter.
func (ix *Index) Generation() int { return ix.generation }

// Threshold returns the stored match threshold in minutes, if any.
func (ix *Index) Threshold() (int, bool) {
	if ix.threshold == nil {
		return 0, false
	}
	return *ix.threshold, true
}

// MatchResult returns the cached match outcome for path. ok is false
// when no entry exists, no result was cached, or the entry's generation
// stamp is stale (a threshold change bumped the generation since).
func (ix *Index) MatchResult(path string) (status, sourceFP string, ok bool) {
	e, found := ix.entries[path]
	if !found || e.MatchStatus == nil || e.MatchGen != ix.generation {
		return "", "", false
	}
	status = *e.MatchStatus
	if e.MatchSourceFP != nil {
		sourceFP = *e.MatchSourceFP
	}
	return status, sourceFP, true
}

// SetMatchResult stamps a match outcome onto an existing entry along
// with the current generation. It is a no-op when path has no entry:
// a file must have been scanned before its match result can be cached.
func (ix *Index) SetMatchResult(path, status, sourceFP string) {
	e, ok := ix.entries[path]
	if !ok {
		return
	}
	e.MatchStatus = &status
	e.MatchSourceFP = &sourceFP
	e.MatchGen = ix.generation
	ix.dirty = true
}

// ValidateThreshold compares minutes against the stored match
// threshold. Unchanged thresholds return true and do nothing. A change
// (including from unset) bumps the match generation, which invalidates
// every cached match result in O(1), stores the new threshold, and
// returns false.
func (ix *Index) ValidateThreshold(minutes int) bool {
	if ix.threshold != nil && *ix.threshold == minutes {
		return true
	}
	slog.Info("match threshold changed, invalidating match cache",
		"old", thresholdString(ix.threshold), "new", minutes)
	ix.generation++
	ix.threshold = &minutes
	ix.dirty = true
	return false
}

func thresholdString(t *int) any {
	if t == nil {
		return "unset"
	}
	return *t
}

func mtimeOf(fi os.FileInfo) float64 {
	return float64(fi.ModTime().UnixNano()) / 1e9
}

func photoToEntry(p *photo.Photo, fi os.FileInfo) *entry {
	e := &entry{
		MTime:        mtimeOf(fi),
		Size:         fi.Size(),
		HasGPS:       p.HasGPS,
		GPSLatitude:  p.GPSLatitude,
		GPSLongitude: p.GPSLongitude,
		GPSAltitude:  p.GPSAltitude,
		Processed:    p.Processed,
	}
	if p.DateTimeOriginal != nil {
		s := p.DateTimeOriginal.Format(timeLayout)
		e.DateTimeOriginal = &s
	}
	if p.CameraMake != "" {
		m := p.CameraMake
		e.CameraMake = &m
	}
	if p.CameraModel != "" {
		m := p.CameraModel
		e.CameraModel = &m
	}
	return e
}

func entryToPhoto(path string, e *entry) *photo.Photo {
	p := &photo.Photo{
		FilePath:     path,
		FileName:     filepath.Base(path),
		Extension:    strings.ToLower(filepath.Ext(path)),
		HasGPS:       e.HasGPS,
		GPSLatitude:  e.GPSLatitude,
		GPSLongitude: e.GPSLongitude,
		GPSAltitude:  e.GPSAltitude,
		Processed:    e.Processed,
	}
	if e.DateTimeOriginal != nil {
		if t, err := time.Parse(timeLayout, *e.DateTimeOriginal); err == nil {
			p.DateTimeOriginal = &t
		}
	}
	if e.CameraMake != nil {
		p.CameraMake = *e.CameraMake
	}
	if e.CameraModel != nil {
		p.CameraModel = *e.CameraModel
	}
	return p
}
