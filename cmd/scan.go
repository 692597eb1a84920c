package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zheqd/geosnag/internal/config"
	"github.com/zheqd/geosnag/internal/exiftool"
	"github.com/zheqd/geosnag/internal/index"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan photo directories and refresh the index, without matching",
	Long: `Scan the configured directories, read metadata for new or changed
files, and refresh the scan index. No matching or writing happens.

Examples:
  # Warm the index after adding photos
  geosnag scan

  # Machine-readable summary
  geosnag scan --json`,
	RunE:         runScan,
	SilenceUsage: true,
}

// ScanResult is the JSON summary of a scan-only run.
type ScanResult struct {
	TotalPhotos int    `json:"total_photos"`
	WithGPS     int    `json:"with_gps"`
	WithoutGPS  int    `json:"without_gps"`
	Processed   int    `json:"already_processed"`
	ScanErrors  int    `json:"scan_errors"`
	IndexSize   int    `json:"index_entries"`
	DurationMs  int64  `json:"duration_ms"`
	Duration    string `json:"duration_human,omitempty"`
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().Int("workers", 0, "Number of parallel scan workers (overrides config)")
	scanCmd.Flags().Bool("reindex", false, "Force full rescan, ignore cached index")
	scanCmd.Flags().Bool("json", false, "Output as JSON instead of a summary")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if w := mustGetInt(cmd, "workers"); w > 0 {
		cfg.Workers = w
	}
	jsonOutput := mustGetBool(cmd, "json")
	setupLogging(cfg.LogLevel, mustGetBool(cmd, "verbose"))

	start := time.Now()

	var idx *index.Index
	if cfg.UseIndex {
		idx = index.New(cfg.IndexPath())
		if mustGetBool(cmd, "reindex") {
			idx.Clear()
		} else {
			idx.Load()
		}
	}

	photos := scanPhotos(cfg, idx, exiftool.Probe())
	if idx != nil {
		if err := idx.Save(); err != nil {
			return fmt.Errorf("failed to save index: %w", err)
		}
	}

	if jsonOutput {
		result := ScanResult{TotalPhotos: len(photos), DurationMs: time.Since(start).Milliseconds()}
		for _, p := range photos {
			switch {
			case p.HasGPS:
				result.WithGPS++
			case p.Processed:
				result.Processed++
			default:
				result.WithoutGPS++
			}
			if p.ScanError != "" {
				result.ScanErrors++
			}
		}
		if idx != nil {
			result.IndexSize = idx.Len()
		}
		return outputJSON(result)
	}

	fmt.Println()
	printScanSummary(photos)
	fmt.Printf("  Duration: %s\n", formatDuration(time.Since(start)))
	return nil
}
