// Package scanner walks photo directories and extracts metadata,
// combining a persistent scan index (cache) with a bounded worker pool
// so unchanged files skip the expensive EXIF read entirely and changed
// files are read in parallel.
package scanner

import (
	"log/slog"
	"time"

	"github.com/zheqd/geosnag/internal/constants"
	"github.com/zheqd/geosnag/internal/index"
	"github.com/zheqd/geosnag/internal/photo"
)

// Options configures a scan run.
type Options struct {
	Directories []string

	// Extensions restricts the scan; empty means the full default
	// photo set (PhotoExtensions).
	Extensions map[string]struct{}

	Recursive       bool
	ExcludePatterns []string
	Workers         int
}

// Progress is called once per resolved file, from the orchestrating
// goroutine only. cached reports an index hit, failed a scan error.
type Progress func(cached, failed bool)

// Scanner resolves photo metadata for a set of directories.
type Scanner struct {
	// Read is the metadata backend, typically Backend.Read. It must be
	// safe for concurrent use.
	Read ReadFunc

	// Progress is optional.
	Progress Progress
}

// Scan enumerates all matching files and returns their metadata.
// Files whose index entry matches the current (mtime, size) are served
// from the cache; the rest are read through the backend on a worker
// pool. The index, when non-nil, is consulted and mutated only on the
// calling goroutine, is updated with every successful fresh read, and
// is pruned of paths missing from the enumeration. Records with a scan
// error are returned but kept out of the index so the next run retries
// them. Order of the returned slice is not guaranteed.
func (s *Scanner) Scan(opts Options, idx *index.Index) []*photo.Photo {
	start := time.Now()

	if opts.Workers < 1 {
		opts.Workers = constants.DefaultWorkers
	}
	// A config without an extensions list scans the full photo set;
	// ExtensionSet(nil) yields an empty map, so check len, not nil.
	if len(opts.Extensions) == 0 {
		opts.Extensions = ExtensionSet(PhotoExtensions)
	}

	slog.Info("collecting file paths", "directories", len(opts.Directories))
	paths := CollectPaths(opts.Directories, opts.Extensions, opts.Recursive, opts.ExcludePatterns)
	slog.Info("enumeration complete", "files", len(paths), "elapsed", time.Since(start).Round(time.Millisecond))

	if len(paths) == 0 {
		return nil
	}

	results := make([]*photo.Photo, 0, len(paths))
	var misses []string

	if idx != nil {
		for _, path := range paths {
			if cached := idx.Lookup(path); cached != nil {
				results = append(results, cached)
				s.progress(true, false)
			} else {
				misses = append(misses, path)
			}
		}
		slog.Info("index consulted", "hits", len(results), "misses", len(misses))
	} else {
		misses = paths
	}

	if len(misses) > 0 {
		workers := min(opts.Workers, len(misses))
		slog.Info("scanning files", "count", len(misses), "workers", workers)

		jobs := make(chan string)
		scanned := make(chan *photo.Photo)

		for i := 0; i < workers; i++ {
			go func() {
				for path := range jobs {
					scanned <- s.Read(path)
				}
			}()
		}
		go func() {
			for _, path := range misses {
				jobs <- path
			}
			close(jobs)
		}()

		errors := 0
		for range misses {
			p := <-scanned
			results = append(results, p)
			if p.ScanError != "" {
				errors++
			} else if idx != nil {
				// Index writes stay on this goroutine; workers share
				// no mutable state.
				idx.Update(p)
			}
			s.progress(false, p.ScanError != "")
		}
		if errors > 0 {
			slog.Warn("scan finished with errors", "errors", errors)
		}
	}

	if idx != nil {
		valid := make(map[string]struct{}, len(paths))
		for _, path := range paths {
			valid[path] = struct{}{}
		}
		idx.Prune(valid)
	}

	slog.Info("scan complete", "photos", len(results), "elapsed", time.Since(start).Round(time.Millisecond))
	return results
}

func (s *Scanner) progress(cached, failed bool) {
	if s.Progress != nil {
		s.Progress(cached, failed)
	}
}
