package cmd

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/zheqd/geosnag/internal/matcher"
	"github.com/zheqd/geosnag/internal/photo"
)

// saveReport writes the match results to a CSV file, one row per
// matched and per unmatched target.
func saveReport(path string, matches []matcher.Match, unmatched []*photo.Photo) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"Status",
		"Target File",
		"Target DateTime",
		"Target Make/Model",
		"Source File",
		"Source DateTime",
		"Latitude",
		"Longitude",
		"Time Delta (min)",
		"Confidence (%)",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, m := range matches {
		row := []string{
			"MATCHED",
			m.Target.FilePath,
			timeString(m.Target),
			m.Target.Device(),
			m.Source.FilePath,
			timeString(m.Source),
			floatString(m.Source.GPSLatitude, 6),
			floatString(m.Source.GPSLongitude, 6),
			fmt.Sprintf("%.1f", m.Delta.Minutes()),
			fmt.Sprintf("%.1f", m.Confidence),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	for _, u := range unmatched {
		row := []string{
			"UNMATCHED",
			u.FilePath,
			timeString(u),
			u.Device(),
			"", "", "", "", "", "",
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func timeString(p *photo.Photo) string {
	if p.DateTimeOriginal == nil {
		return ""
	}
	return p.DateTimeOriginal.Format("2006-01-02T15:04:05")
}

func floatString(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.*f", prec, *v)
}
