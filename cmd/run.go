package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/zheqd/geosnag/internal/config"
	"github.com/zheqd/geosnag/internal/constants"
	"github.com/zheqd/geosnag/internal/exiftool"
	"github.com/zheqd/geosnag/internal/index"
	"github.com/zheqd/geosnag/internal/matcher"
	"github.com/zheqd/geosnag/internal/photo"
	"github.com/zheqd/geosnag/internal/scanner"
	"github.com/zheqd/geosnag/internal/writer"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scan, match, and (optionally) write GPS data",
	Long: `Scan the configured directories, match GPS-less photos to same-day
GPS sources by nearest timestamp, and write coordinates to the matched
files.

By default this is a dry run: matches are previewed but nothing is
written. Pass --apply to modify files.

Examples:
  # Dry run with ./config.yaml
  geosnag run

  # Write GPS data
  geosnag run --apply

  # Custom config, wider matching window, CSV report
  geosnag run -c nas.yaml --max-delta 240 --report matches.csv

  # Force a full rescan and re-match
  geosnag run --reindex --rematch`,
	RunE:         runRun,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("apply", false, "Write GPS data to files (default is dry run)")
	runCmd.Flags().BoolP("dry-run", "n", false, "Preview matches without writing (overrides config)")
	runCmd.Flags().StringP("write-mode", "w", "", "GPS write method: exif, xmp_sidecar, or both (overrides config)")
	runCmd.Flags().IntP("max-delta", "d", -1, "Max time difference in minutes (overrides config)")
	runCmd.Flags().Float64("min-confidence", -1, "Minimum confidence to apply a match (overrides config)")
	runCmd.Flags().Int("workers", 0, "Number of parallel scan workers (overrides config)")
	runCmd.Flags().Bool("reindex", false, "Force full rescan, ignore cached index")
	runCmd.Flags().Bool("no-index", false, "Disable the scan index entirely")
	runCmd.Flags().Bool("rematch", false, "Re-evaluate all targets, ignore the match cache")
	runCmd.Flags().StringP("report", "r", "", "Save a CSV match report to this file")
	runCmd.Flags().Int("preview", constants.DefaultPreviewCount, "Number of matches to preview")
	runCmd.Flags().Bool("no-skip-processed", false, "Don't skip photos already carrying the processed marker")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}

	printBanner()

	caps := exiftool.Probe()
	gpsWriter := writer.New(caps, Version)

	needsExif := cfg.WriteMode == config.WriteModeExif || cfg.WriteMode == config.WriteModeBoth
	if !cfg.DryRun && needsExif && !gpsWriter.CanWriteExif() {
		fmt.Println("  No EXIF write backend available.")
		fmt.Println("  ExifTool was not found at: exiftool, /opt/bin/exiftool, /usr/bin/exiftool")
		fmt.Println("  On Synology DSM, install it via Entware: opkg install perl-image-exiftool")
		return errors.New("exiftool is required for --apply")
	}

	if cfg.DryRun {
		fmt.Println("  DRY RUN MODE — no files will be modified")
		fmt.Println("  Use --apply to write GPS data")
	} else {
		fmt.Println("  LIVE MODE — files will be modified")
	}
	fmt.Println()

	// Phase 1: scan
	fmt.Println("  Phase 1: Scanning photos...")
	scanStart := time.Now()

	var idx *index.Index
	if cfg.UseIndex && !mustGetBool(cmd, "no-index") {
		idx = index.New(cfg.IndexPath())
		if mustGetBool(cmd, "reindex") {
			idx.Clear()
		} else {
			idx.Load()
		}
		idx.ValidateThreshold(cfg.Matching.MaxTimeDeltaMinutes)
	}

	photos := scanPhotos(cfg, idx, caps)
	if idx != nil {
		if err := idx.Save(); err != nil {
			return fmt.Errorf("failed to save index: %w", err)
		}
	}
	scanTime := time.Since(scanStart)
	fmt.Println()

	if len(photos) == 0 {
		fmt.Println("  No photos found. Check scan_dirs and extensions in the config.")
		return nil
	}

	// Phase 2: match
	fmt.Println("  Phase 2: Matching photos by timestamp...")
	matchStart := time.Now()
	maxDelta := time.Duration(cfg.Matching.MaxTimeDeltaMinutes) * time.Minute

	toMatch := photos
	if cfg.SkipProcessed {
		toMatch = make([]*photo.Photo, 0, len(photos))
		for _, p := range photos {
			if !p.Processed {
				toMatch = append(toMatch, p)
			}
		}
	}

	fps := matcher.SourceFingerprints(photos)
	var cacheSkipped []*photo.Photo
	if idx != nil && !mustGetBool(cmd, "rematch") {
		toMatch, cacheSkipped = matcher.FilterCached(toMatch, idx, fps)
	}

	matches, unmatched, stats := matcher.MatchPhotos(toMatch, maxDelta)

	if idx != nil {
		matcher.StoreResults(idx, matches, unmatched, fps)
		if err := idx.Save(); err != nil {
			return fmt.Errorf("failed to save index: %w", err)
		}
	}
	matchTime := time.Since(matchStart)
	fmt.Println()

	printScanSummary(photos)
	printMatchSummary(matches, stats, len(cacheSkipped))
	printMatchPreview(matches, mustGetInt(cmd, "preview"))

	if reportPath := mustGetString(cmd, "report"); reportPath != "" {
		// Cache-skipped targets are still unmatched for reporting purposes.
		if err := saveReport(reportPath, matches, append(unmatched, cacheSkipped...)); err != nil {
			return err
		}
		fmt.Printf("  Report saved to: %s\n\n", reportPath)
	}

	// Phase 3: write
	if len(matches) == 0 {
		fmt.Println("  No matches found. Nothing to write.")
		return nil
	}
	if cfg.DryRun {
		fmt.Printf("  DRY RUN complete. %d photos would be geo-tagged.\n", stats.Matched)
		fmt.Println("  Run with --apply to write GPS data.")
		return nil
	}

	fmt.Println("  Phase 3: Writing GPS data...")
	writeStart := time.Now()
	success, fail := applyMatches(gpsWriter, matches, cfg)
	writeTime := time.Since(writeStart)

	fmt.Println()
	fmt.Println("  WRITE RESULTS")
	fmt.Println("  ─────────────")
	fmt.Printf("  Successful:  %6d\n", success)
	fmt.Printf("  Failed:      %6d\n", fail)
	fmt.Printf("  Write mode:  %s\n", cfg.WriteMode)
	fmt.Println()
	fmt.Printf("  Timing: scan=%s, match=%s, write=%s\n",
		formatDuration(scanTime), formatDuration(matchTime), formatDuration(writeTime))
	fmt.Println()

	if fail > 0 {
		return fmt.Errorf("%d writes failed, check the log for details", fail)
	}
	fmt.Printf("  All %d photos geo-tagged. The processed tag was written — these\n", success)
	fmt.Println("  files will be skipped on re-runs.")
	return nil
}

// loadRunConfig loads the YAML config and applies CLI flag overrides.
func loadRunConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if mustGetBool(cmd, "dry-run") {
		cfg.DryRun = true
	}
	if mustGetBool(cmd, "apply") {
		cfg.DryRun = false
	}
	if mode := mustGetString(cmd, "write-mode"); mode != "" {
		cfg.WriteMode = mode
	}
	if d := mustGetInt(cmd, "max-delta"); d >= 0 {
		cfg.Matching.MaxTimeDeltaMinutes = d
	}
	if c := mustGetFloat64(cmd, "min-confidence"); c >= 0 {
		cfg.Matching.MinConfidence = c
	}
	if w := mustGetInt(cmd, "workers"); w > 0 {
		cfg.Workers = w
	}
	if mustGetBool(cmd, "no-skip-processed") {
		cfg.SkipProcessed = false
	}

	setupLogging(cfg.LogLevel, mustGetBool(cmd, "verbose"))
	return cfg, nil
}

// scanPhotos runs the concurrent scan with an optional progress spinner.
func scanPhotos(cfg *config.Config, idx *index.Index, caps exiftool.Capabilities) []*photo.Photo {
	var bar *progressbar.ProgressBar
	if stdoutIsTerminal() {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Scanning"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("photos"),
			progressbar.OptionSpinnerType(14),
		)
	}

	backend := scanner.NewBackend(caps)
	s := &scanner.Scanner{
		Read: backend.Read,
		Progress: func(cached, failed bool) {
			if bar != nil {
				bar.Add(1)
			}
		},
	}

	photos := s.Scan(scanner.Options{
		Directories:     cfg.ScanDirs,
		Extensions:      scanner.ExtensionSet(cfg.Extensions),
		Recursive:       cfg.Recursive,
		ExcludePatterns: cfg.ExcludePatterns,
		Workers:         cfg.Workers,
	}, idx)

	if bar != nil {
		bar.Finish()
		fmt.Println()
	}
	return photos
}

// applyMatches writes GPS data for every match at or above the
// configured confidence. Per-file failures are counted, not fatal.
func applyMatches(w *writer.Writer, matches []matcher.Match, cfg *config.Config) (success, fail int) {
	var bar *progressbar.ProgressBar
	if stdoutIsTerminal() {
		bar = progressbar.NewOptions(len(matches),
			progressbar.OptionSetDescription("Writing GPS"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
	}

	for _, m := range matches {
		if bar != nil {
			bar.Add(1)
		}
		if m.Confidence < cfg.Matching.MinConfidence {
			continue
		}
		if m.Source.GPSLatitude == nil || m.Source.GPSLongitude == nil {
			fail++
			continue
		}

		lat := *m.Source.GPSLatitude
		lon := *m.Source.GPSLongitude
		alt := m.Source.GPSAltitude

		var results []writer.Result
		if cfg.WriteMode == config.WriteModeExif || cfg.WriteMode == config.WriteModeBoth {
			results = append(results, w.WriteGPS(m.Target.FilePath, lat, lon, alt, true, m.Target.FormatMismatch))
		}
		if cfg.WriteMode == config.WriteModeXMPSidecar || cfg.WriteMode == config.WriteModeBoth {
			stamp := cfg.WriteMode == config.WriteModeXMPSidecar
			results = append(results, w.WriteXMPSidecar(m.Target.FilePath, lat, lon, alt, stamp))
		}

		ok := true
		for _, r := range results {
			if !r.Success() {
				ok = false
			}
		}
		if ok {
			success++
		} else {
			fail++
		}
	}

	if bar != nil {
		fmt.Println()
	}
	return success, fail
}
