package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/zheqd/geosnag/internal/constants"
	"github.com/zheqd/geosnag/internal/matcher"
	"github.com/zheqd/geosnag/internal/photo"
)

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

// formatDuration formats a duration as a human-readable string
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func printBanner() {
	fmt.Println()
	fmt.Printf("  %s %s — photo geo-tagging\n", constants.ProjectName, Version)
	fmt.Println("  GPS enrichment from same-day photos")
	fmt.Println()
}

func printScanSummary(photos []*photo.Photo) {
	var withGPS, withDT, errors, processed, noGPS, eligible int
	devices := map[string]struct{}{}

	for _, p := range photos {
		if p.HasGPS {
			withGPS++
		}
		if p.DateTimeOriginal != nil {
			withDT++
		}
		if p.ScanError != "" {
			errors++
		}
		if p.Processed {
			processed++
		}
		if !p.HasGPS && !p.Processed {
			noGPS++
			if p.DateTimeOriginal != nil {
				eligible++
			}
		}
		if d := p.Device(); d != "" {
			devices[d] = struct{}{}
		}
	}

	fmt.Println("  SCAN RESULTS")
	fmt.Println("  ────────────")
	fmt.Printf("  Total photos:        %6d\n", len(photos))
	fmt.Printf("    With GPS:          %6d  (usable as GPS sources)\n", withGPS)
	fmt.Printf("    Without GPS:       %6d  (candidates for enrichment)\n", noGPS)
	fmt.Printf("    Already processed: %6d  (%s tag found, skipped)\n", processed, constants.ProjectName)
	fmt.Printf("    With datetime:     %6d\n", withDT)
	fmt.Printf("    Eligible targets:  %6d  (no GPS + has datetime + not processed)\n", eligible)
	fmt.Printf("    Scan errors:       %6d\n", errors)
	if len(devices) > 0 {
		names := make([]string, 0, len(devices))
		for d := range devices {
			names = append(names, d)
		}
		sort.Strings(names)
		fmt.Printf("    Devices:           %s\n", strings.Join(names, ", "))
	}
	fmt.Println()
}

func printMatchSummary(matches []matcher.Match, stats matcher.Stats, cacheSkipped int) {
	fmt.Println("  MATCHING RESULTS")
	fmt.Println("  ────────────────")
	fmt.Printf("  GPS sources:        %6d  across %d dates\n", stats.Sources, stats.SourceDates)
	fmt.Printf("  Eligible targets:   %6d\n", stats.Targets)
	fmt.Printf("  Already processed:  %6d\n", stats.AlreadyProcessed)
	fmt.Printf("  Matched:            %6d  (%.1f%%)\n", stats.Matched,
		float64(stats.Matched)/float64(max(stats.Targets, 1))*100)
	fmt.Printf("  Unmatched:          %6d\n", stats.Unmatched)
	fmt.Printf("  No datetime:        %6d\n", stats.WithoutDateTime)
	if cacheSkipped > 0 {
		fmt.Printf("  Cache skipped:      %6d  (unchanged since last run)\n", cacheSkipped)
	}

	if len(matches) > 0 {
		fmt.Println()
		fmt.Printf("  Avg confidence:     %6.1f%%\n", stats.AvgConfidence)
		fmt.Printf("  Avg time delta:     %6.1f min\n", stats.AvgDeltaMinutes)

		buckets := []struct {
			label string
			min   float64
			count int
		}{
			{label: "90-100%", min: 90},
			{label: "70-89%", min: 70},
			{label: "50-69%", min: 50},
			{label: "< 50%", min: 0},
		}
		for _, m := range matches {
			for i := range buckets {
				if m.Confidence >= buckets[i].min {
					buckets[i].count++
					break
				}
			}
		}
		fmt.Println()
		fmt.Println("  Confidence distribution:")
		for _, b := range buckets {
			bar := strings.Repeat("█", b.count*30/max(len(matches), 1))
			fmt.Printf("    %8s: %4d  %s\n", b.label, b.count, bar)
		}
	}
	fmt.Println()
}

func printMatchPreview(matches []matcher.Match, maxShow int) {
	if len(matches) == 0 {
		return
	}

	fmt.Printf("  MATCH PREVIEW (first %d of %d)\n", min(maxShow, len(matches)), len(matches))

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	if stdoutIsTerminal() {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleLight)
	}
	tw.AppendHeader(table.Row{"Target File", "Δ Time", "Conf", "GPS Source"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})

	for _, m := range matches[:min(maxShow, len(matches))] {
		tw.AppendRow(table.Row{
			truncate(m.Target.FileName, 40),
			m.DeltaString(),
			fmt.Sprintf("%.1f", m.Confidence),
			truncate(m.Source.FileName, 33),
		})
	}
	tw.Render()

	if len(matches) > maxShow {
		fmt.Printf("  ... and %d more\n", len(matches)-maxShow)
	}
	fmt.Println()
}

// truncate shortens s to limit runes; byte slicing would split
// multi-byte runes in non-ASCII filenames.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-3]) + "..."
}
