package scanner

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Directory names always skipped during walks (Synology housekeeping
// dirs, VCS metadata, our own state dir).
var excludedDirs = map[string]struct{}{
	"@eaDir":   {},
	"#recycle": {},
	".git":     {},
	".geosnag": {},
}

// PhotoExtensions is the default set of supported photo extensions.
var PhotoExtensions = []string{
	".jpg", ".jpeg",
	".arw", ".nef", ".cr2", ".cr3", ".dng", ".orf", ".raf", ".rw2",
	".heic", ".heif",
	".png",
}

// ExtensionSet normalizes a list of extensions into a lookup set with
// lowercase dotted keys ("JPG" and ".jpg" both become ".jpg").
func ExtensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = struct{}{}
	}
	return set
}

// CollectPaths walks the given directories and returns all photo file
// paths matching the extension set, in sorted order.
// Non-existent directories are logged and skipped. Exclude patterns
// are doublestar globs matched against both the path relative to the
// scanned directory and the absolute path.
func CollectPaths(directories []string, extensions map[string]struct{}, recursive bool, excludePatterns []string) []string {
	var paths []string

	for _, dir := range directories {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			slog.Warn("directory not found, skipping", "dir", dir)
			continue
		}

		root := dir
		filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				slog.Warn("walk error, skipping", "path", path, "error", err)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if path == root {
					return nil
				}
				if _, skip := excludedDirs[d.Name()]; skip {
					return filepath.SkipDir
				}
				if !recursive {
					return filepath.SkipDir
				}
				return nil
			}

			ext := strings.ToLower(filepath.Ext(d.Name()))
			if _, ok := extensions[ext]; !ok {
				return nil
			}
			if excluded(path, root, excludePatterns) {
				return nil
			}
			paths = append(paths, path)
			return nil
		})
	}

	sort.Strings(paths)
	return paths
}

func excluded(path, root string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	abs := filepath.ToSlash(path)
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, abs); ok {
			return true
		}
	}
	return false
}
