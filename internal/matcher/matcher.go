// Package matcher pairs photos lacking GPS coordinates with GPS-bearing
// photos taken on the same calendar day, picking the source nearest in
// time within a configurable window.
package matcher

import (
	"log/slog"
	"sort"
	"time"

	"github.com/zheqd/geosnag/internal/photo"
)

// Match statuses persisted to the match cache.
const (
	StatusMatched = "matched"
	StatusNoMatch = "no_match"
)

// Match pairs a target photo with the GPS source donating coordinates.
type Match struct {
	Target *photo.Photo
	Source *photo.Photo

	// Delta is signed: positive means the target was taken after the
	// source. Confidence uses the absolute value.
	Delta      time.Duration
	Confidence float64 // 0-100, higher = closer in time
}

// DeltaString renders the signed time delta, e.g. "+41m37s".
func (m Match) DeltaString() string { return photo.FormatDelta(m.Delta) }

// Stats summarizes one matching pass.
type Stats struct {
	TotalPhotos      int
	Sources          int // photos with GPS and a timestamp
	Targets          int // photos without GPS that have a timestamp
	AlreadyProcessed int // skipped, marker tag present
	WithoutDateTime  int // targets lacking a timestamp, cannot match
	SourceDates      int // unique dates with at least one source
	Matched          int
	Unmatched        int
	AvgConfidence    float64
	AvgDeltaMinutes  float64 // mean absolute delta of successful matches
}

// MatchPhotos splits a unified photo list into GPS sources and targets
// and matches them. A photo with GPS and a timestamp is a source even
// when it also carries the processed marker; a processed photo without
// GPS is counted and excluded; everything else without GPS is a target.
func MatchPhotos(photos []*photo.Photo, maxDelta time.Duration) ([]Match, []*photo.Photo, Stats) {
	var sources, targets []*photo.Photo
	stats := Stats{TotalPhotos: len(photos)}

	for _, p := range photos {
		switch {
		case p.HasGPS && p.DateTimeOriginal != nil:
			sources = append(sources, p)
		case p.Processed:
			stats.AlreadyProcessed++
		case !p.HasGPS:
			targets = append(targets, p)
		}
		// Photos with GPS but no timestamp are only counted in the total.
	}

	return matchLists(sources, targets, maxDelta, stats)
}

// MatchLists matches explicit source and target lists. Intended for
// callers that already partitioned their photos (and for tests).
func MatchLists(sources, targets []*photo.Photo, maxDelta time.Duration) ([]Match, []*photo.Photo, Stats) {
	stats := Stats{TotalPhotos: len(sources) + len(targets)}
	return matchLists(sources, targets, maxDelta, stats)
}

func matchLists(sources, targets []*photo.Photo, maxDelta time.Duration, stats Stats) ([]Match, []*photo.Photo, Stats) {
	stats.Sources = len(sources)

	byDate := make(map[string][]*photo.Photo)
	for _, sp := range sources {
		if sp.HasGPS && sp.DateTimeOriginal != nil {
			if key := sp.DateKey(); key != "" {
				byDate[key] = append(byDate[key], sp)
			}
		}
	}
	stats.SourceDates = len(byDate)

	// Sorting each date group by timestamp makes the scan below pick
	// the earlier source on an exact tie.
	for _, group := range byDate {
		sort.Slice(group, func(i, j int) bool {
			return group[i].DateTimeOriginal.Before(*group[j].DateTimeOriginal)
		})
	}

	slog.Info("gps source index built", "sources", stats.Sources, "dates", stats.SourceDates)

	var matches []Match
	var unmatched []*photo.Photo

	for _, tp := range targets {
		if tp.DateTimeOriginal == nil {
			stats.WithoutDateTime++
			unmatched = append(unmatched, tp)
			continue
		}
		stats.Targets++

		group, ok := byDate[tp.DateKey()]
		if !ok {
			stats.Unmatched++
			unmatched = append(unmatched, tp)
			continue
		}

		var best *photo.Photo
		var bestDelta time.Duration
		for _, sp := range group {
			delta := tp.DateTimeOriginal.Sub(*sp.DateTimeOriginal)
			if delta < 0 {
				delta = -delta
			}
			if delta > maxDelta {
				continue
			}
			if best == nil || delta < bestDelta {
				best = sp
				bestDelta = delta
			}
		}

		if best == nil {
			stats.Unmatched++
			unmatched = append(unmatched, tp)
			continue
		}

		matches = append(matches, Match{
			Target:     tp,
			Source:     best,
			Delta:      tp.DateTimeOriginal.Sub(*best.DateTimeOriginal),
			Confidence: confidence(bestDelta, maxDelta),
		})
		stats.Matched++
	}

	if len(matches) > 0 {
		var confSum, deltaSum float64
		for _, m := range matches {
			confSum += m.Confidence
			d := m.Delta
			if d < 0 {
				d = -d
			}
			deltaSum += d.Minutes()
		}
		stats.AvgConfidence = confSum / float64(len(matches))
		stats.AvgDeltaMinutes = deltaSum / float64(len(matches))
	}

	slog.Info("matching complete",
		"matched", stats.Matched, "unmatched", stats.Unmatched,
		"avg_confidence", stats.AvgConfidence, "avg_delta_min", stats.AvgDeltaMinutes)

	return matches, unmatched, stats
}

// confidence scales linearly from 100 at zero delta to 0 at the full
// window. A zero window only admits exact-tie matches, at 100.
func confidence(delta, maxDelta time.Duration) float64 {
	if maxDelta == 0 {
		return 100.0
	}
	c := 100.0 * (1.0 - delta.Seconds()/maxDelta.Seconds())
	return max(0.0, min(100.0, c))
}
