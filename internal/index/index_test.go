package index

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zheqd/geosnag/internal/photo"
)

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	return path
}

func testPhoto(path string) *photo.Photo {
	ts := time.Date(2017, 9, 23, 23, 11, 37, 0, time.UTC)
	lat, lon, alt := 55.7539, 37.6208, 151.0
	return &photo.Photo{
		FilePath:         path,
		FileName:         filepath.Base(path),
		Extension:        ".jpg",
		DateTimeOriginal: &ts,
		HasGPS:           true,
		GPSLatitude:      &lat,
		GPSLongitude:     &lon,
		GPSAltitude:      &alt,
		CameraMake:       "NIKON CORPORATION",
		CameraModel:      "NIKON D610",
	}
}

func TestLoad_MissingFile(t *testing.T) {
	ix := New(filepath.Join(t.TempDir(), Filename))

	if n := ix.Load(); n != 0 {
		t.Errorf("expected 0 entries from missing file, got %d", n)
	}
}

func TestLoad_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, Filename, "{not json")

	ix := New(path)
	if n := ix.Load(); n != 0 {
		t.Errorf("expected 0 entries from corrupt file, got %d", n)
	}
}

func TestLoad_VersionMismatch(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, Filename,
		`{"version":1,"match_threshold_minutes":120,"match_generation":3,"entries":{"/a.jpg":{"mtime":1,"size":2}}}`)

	ix := New(path)
	if n := ix.Load(); n != 0 {
		t.Errorf("expected version mismatch to discard entries, got %d", n)
	}
}

func TestUpdateLookup_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	photoPath := writeTestFile(t, dir, "a.jpg", "fake jpeg data")

	ix := New(filepath.Join(dir, Filename))
	orig := testPhoto(photoPath)
	ix.Update(orig)

	got := ix.Lookup(photoPath)
	if got == nil {
		t.Fatal("expected cache hit after update")
	}
	if got.FilePath != orig.FilePath {
		t.Errorf("expected path %q, got %q", orig.FilePath, got.FilePath)
	}
	if got.DateTimeOriginal == nil || !got.DateTimeOriginal.Equal(*orig.DateTimeOriginal) {
		t.Errorf("expected timestamp %v, got %v", orig.DateTimeOriginal, got.DateTimeOriginal)
	}
	if !got.HasGPS || got.GPSLatitude == nil || *got.GPSLatitude != 55.7539 {
		t.Errorf("GPS fields not preserved: %+v", got)
	}
	if got.GPSAltitude == nil || *got.GPSAltitude != 151.0 {
		t.Errorf("altitude not preserved: %+v", got.GPSAltitude)
	}
	if got.CameraMake != "NIKON CORPORATION" || got.CameraModel != "NIKON D610" {
		t.Errorf("camera fields not preserved: %q %q", got.CameraMake, got.CameraModel)
	}
	if got.DateKey() != "2017-09-23" {
		t.Errorf("expected date key 2017-09-23, got %q", got.DateKey())
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	photoPath := writeTestFile(t, dir, "a.jpg", "fake jpeg data")
	indexPath := filepath.Join(dir, Filename)

	ix := New(indexPath)
	ix.Update(testPhoto(photoPath))
	if err := ix.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	ix2 := New(indexPath)
	if n := ix2.Load(); n != 1 {
		t.Fatalf("expected 1 entry after reload, got %d", n)
	}
	if got := ix2.Lookup(photoPath); got == nil {
		t.Error("expected cache hit after reload")
	}
}

func TestSave_SkippedWhenClean(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, Filename)

	ix := New(indexPath)
	if err := ix.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := os.Stat(indexPath); !os.IsNotExist(err) {
		t.Error("expected no index file to be written when index is clean")
	}
}

func TestSave_DirtyFlagResets(t *testing.T) {
	dir := t.TempDir()
	photoPath := writeTestFile(t, dir, "a.jpg", "fake jpeg data")
	indexPath := filepath.Join(dir, Filename)

	ix := New(indexPath)
	ix.Update(testPhoto(photoPath))
	if err := ix.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// A cache hit must not dirty the index: a second save is a no-op.
	if got := ix.Lookup(photoPath); got == nil {
		t.Fatal("expected cache hit")
	}
	os.Remove(indexPath)
	if err := ix.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := os.Stat(indexPath); !os.IsNotExist(err) {
		t.Error("expected second save to be skipped (index unchanged)")
	}
}

func TestLookup_SizeChanged(t *testing.T) {
	dir := t.TempDir()
	photoPath := writeTestFile(t, dir, "a.jpg", "original content")

	ix := New(filepath.Join(dir, Filename))
	ix.Update(testPhoto(photoPath))

	fi, _ := os.Stat(photoPath)
	mtime := fi.ModTime()

	// Change the size but restore the mtime — still a miss.
	if err := os.WriteFile(photoPath, []byte("different length content here"), 0o644); err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}
	if err := os.Chtimes(photoPath, mtime, mtime); err != nil {
		t.Fatalf("chtimes failed: %v", err)
	}

	if got := ix.Lookup(photoPath); got != nil {
		t.Error("expected cache miss after size change")
	}
}

func TestLookup_MTimeChanged(t *testing.T) {
	dir := t.TempDir()
	photoPath := writeTestFile(t, dir, "a.jpg", "content")

	ix := New(filepath.Join(dir, Filename))
	ix.Update(testPhoto(photoPath))

	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(photoPath, later, later); err != nil {
		t.Fatalf("chtimes failed: %v", err)
	}

	if got := ix.Lookup(photoPath); got != nil {
		t.Error("expected cache miss after mtime change")
	}
}

func TestLookup_FileDeleted(t *testing.T) {
	dir := t.TempDir()
	photoPath := writeTestFile(t, dir, "a.jpg", "content")

	ix := New(filepath.Join(dir, Filename))
	ix.Update(testPhoto(photoPath))
	os.Remove(photoPath)

	if got := ix.Lookup(photoPath); got != nil {
		t.Error("expected cache miss for deleted file")
	}
}

func TestUpdate_ScanErrorNotStored(t *testing.T) {
	dir := t.TempDir()
	photoPath := writeTestFile(t, dir, "a.jpg", "content")

	ix := New(filepath.Join(dir, Filename))
	p := testPhoto(photoPath)
	p.ScanError = "read timed out"
	ix.Update(p)

	if ix.Len() != 0 {
		t.Error("expected records with a scan error to stay out of the index")
	}
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	keep := writeTestFile(t, dir, "keep.jpg", "content")
	gone := writeTestFile(t, dir, "gone.jpg", "content")

	ix := New(filepath.Join(dir, Filename))
	ix.Update(testPhoto(keep))
	ix.Update(testPhoto(gone))

	removed := ix.Prune(map[string]struct{}{keep: {}})
	if removed != 1 {
		t.Errorf("expected 1 pruned entry, got %d", removed)
	}
	if ix.Len() != 1 {
		t.Errorf("expected 1 remaining entry, got %d", ix.Len())
	}
	if ix.Lookup(gone) != nil {
		t.Error("pruned entry still resolvable")
	}
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	photoPath := writeTestFile(t, dir, "a.jpg", "content")

	ix := New(filepath.Join(dir, Filename))
	ix.Update(testPhoto(photoPath))
	ix.ValidateThreshold(120)

	ix.Clear()

	if ix.Len() != 0 {
		t.Errorf("expected empty index after clear, got %d entries", ix.Len())
	}
	if _, ok := ix.Threshold(); ok {
		t.Error("expected threshold to reset on clear")
	}
	if ix.Generation() != 0 {
		t.Errorf("expected generation 0 after clear, got %d", ix.Generation())
	}
}

func TestMatchResult_NoEntry(t *testing.T) {
	ix := New(filepath.Join(t.TempDir(), Filename))

	if _, _, ok := ix.MatchResult("/nope.jpg"); ok {
		t.Error("expected no match result for unknown path")
	}
}

func TestSetMatchResult_RequiresEntry(t *testing.T) {
	ix := New(filepath.Join(t.TempDir(), Filename))

	ix.SetMatchResult("/nope.jpg", "no_match", "abc")
	if _, _, ok := ix.MatchResult("/nope.jpg"); ok {
		t.Error("expected SetMatchResult on unknown path to be a no-op")
	}
}

func TestMatchResult_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	photoPath := writeTestFile(t, dir, "a.jpg", "content")

	ix := New(filepath.Join(dir, Filename))
	ix.ValidateThreshold(120)
	ix.Update(testPhoto(photoPath))
	ix.SetMatchResult(photoPath, "no_match", "fp123")

	status, fp, ok := ix.MatchResult(photoPath)
	if !ok {
		t.Fatal("expected cached match result")
	}
	if status != "no_match" || fp != "fp123" {
		t.Errorf("expected (no_match, fp123), got (%s, %s)", status, fp)
	}
}

func TestUpdate_StripsMatchResult(t *testing.T) {
	dir := t.TempDir()
	photoPath := writeTestFile(t, dir, "a.jpg", "content")

	ix := New(filepath.Join(dir, Filename))
	ix.Update(testPhoto(photoPath))
	ix.SetMatchResult(photoPath, "no_match", "fp123")

	// Rescanning a file invalidates its cached match decision.
	ix.Update(testPhoto(photoPath))
	if _, _, ok := ix.MatchResult(photoPath); ok {
		t.Error("expected rescan to drop the cached match result")
	}
}

func TestValidateThreshold(t *testing.T) {
	dir := t.TempDir()
	photoPath := writeTestFile(t, dir, "a.jpg", "content")

	ix := New(filepath.Join(dir, Filename))

	// First call transitions from "unset" — counts as a change.
	if ix.ValidateThreshold(120) {
		t.Error("expected first threshold set to report a change")
	}
	if ix.ValidateThreshold(120) != true {
		t.Error("expected unchanged threshold to be valid")
	}

	ix.Update(testPhoto(photoPath))
	ix.SetMatchResult(photoPath, "no_match", "fp123")
	if _, _, ok := ix.MatchResult(photoPath); !ok {
		t.Fatal("expected cached result before threshold change")
	}

	// Changing the threshold invalidates every cached result in O(1);
	// staleness is detected lazily via the generation stamp.
	if ix.ValidateThreshold(60) {
		t.Error("expected threshold change to report invalidation")
	}
	if _, _, ok := ix.MatchResult(photoPath); ok {
		t.Error("expected cached result to be stale after threshold change")
	}
}

func TestMatchResult_SurvivesSaveLoad(t *testing.T) {
	dir := t.TempDir()
	photoPath := writeTestFile(t, dir, "a.jpg", "content")
	indexPath := filepath.Join(dir, Filename)

	ix := New(indexPath)
	ix.ValidateThreshold(120)
	ix.Update(testPhoto(photoPath))
	ix.SetMatchResult(photoPath, "matched", "fpABC")
	if err := ix.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	ix2 := New(indexPath)
	ix2.Load()
	if ix2.ValidateThreshold(120) != true {
		t.Error("expected stored threshold to match")
	}
	status, fp, ok := ix2.MatchResult(photoPath)
	if !ok || status != "matched" || fp != "fpABC" {
		t.Errorf("expected persisted match result, got (%s, %s, %v)", status, fp, ok)
	}
}
