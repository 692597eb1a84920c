package matcher

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"strings"

	"github.com/zheqd/geosnag/internal/photo"
)

// ResultCache is the per-target match-outcome cache, satisfied by
// *index.Index. Cached "no_match" decisions let repeat runs skip
// targets whose GPS-source set has not changed.
type ResultCache interface {
	MatchResult(path string) (status, sourceFP string, ok bool)
	SetMatchResult(path, status, sourceFP string)
}

// SourceFingerprints computes, per calendar date, a hash of the sorted
// set of GPS-source file paths on that date. The fingerprint changes
// exactly when a source is added or removed for the date, independent
// of enumeration order.
func SourceFingerprints(photos []*photo.Photo) map[string]string {
	byDate := make(map[string][]string)
	for _, p := range photos {
		if p.HasGPS && p.DateTimeOriginal != nil {
			key := p.DateKey()
			byDate[key] = append(byDate[key], p.FilePath)
		}
	}

	fps := make(map[string]string, len(byDate))
	for date, paths := range byDate {
		sort.Strings(paths)
		sum := sha256.Sum256([]byte(strings.Join(paths, "|")))
		fps[date] = hex.EncodeToString(sum[:])[:16]
	}
	return fps
}

// FilterCached splits photos into the ones worth re-matching and the
// targets whose cached "no_match" result is still valid (same source
// fingerprint for their date). Sources always pass through, as do
// targets with a cached "matched" status: a matched target is always
// re-evaluated so a flip to no-match is caught.
func FilterCached(photos []*photo.Photo, cache ResultCache, fps map[string]string) (toMatch, cacheSkipped []*photo.Photo) {
	for _, p := range photos {
		// Targets without a timestamp always pass through: they belong
		// in the "no datetime" bucket, not the cache-skipped count.
		if p.HasGPS || p.DateKey() == "" {
			toMatch = append(toMatch, p)
			continue
		}
		status, fp, ok := cache.MatchResult(p.FilePath)
		if ok && status == StatusNoMatch && fp == fps[p.DateKey()] {
			cacheSkipped = append(cacheSkipped, p)
			continue
		}
		toMatch = append(toMatch, p)
	}
	if len(cacheSkipped) > 0 {
		slog.Info("match cache hit", "skipped_targets", len(cacheSkipped))
	}
	return toMatch, cacheSkipped
}

// StoreResults writes fresh match outcomes back to the cache, stamping
// each evaluated target with the current fingerprint of its date's
// source set.
func StoreResults(cache ResultCache, matches []Match, unmatched []*photo.Photo, fps map[string]string) {
	for _, m := range matches {
		cache.SetMatchResult(m.Target.FilePath, StatusMatched, fps[m.Target.DateKey()])
	}
	for _, u := range unmatched {
		cache.SetMatchResult(u.FilePath, StatusNoMatch, fps[u.DateKey()])
	}
}
