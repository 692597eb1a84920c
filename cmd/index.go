package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zheqd/geosnag/internal/config"
	"github.com/zheqd/geosnag/internal/index"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect or reset the scan index",
}

var indexStatusCmd = &cobra.Command{
	Use:          "status",
	Short:        "Show scan index statistics",
	RunE:         runIndexStatus,
	SilenceUsage: true,
}

var indexClearCmd = &cobra.Command{
	Use:          "clear",
	Short:        "Clear all cached scan and match results",
	RunE:         runIndexClear,
	SilenceUsage: true,
}

// IndexStatus is the JSON form of `geosnag index status`.
type IndexStatus struct {
	Path             string `json:"path"`
	Entries          int    `json:"entries"`
	MatchGeneration  int    `json:"match_generation"`
	ThresholdMinutes *int   `json:"match_threshold_minutes"`
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexStatusCmd)
	indexCmd.AddCommand(indexClearCmd)

	indexStatusCmd.Flags().Bool("json", false, "Output as JSON")
}

func runIndexStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.LogLevel, mustGetBool(cmd, "verbose"))

	idx := index.New(cfg.IndexPath())
	idx.Load()

	status := IndexStatus{
		Path:            idx.Path(),
		Entries:         idx.Len(),
		MatchGeneration: idx.Generation(),
	}
	if t, ok := idx.Threshold(); ok {
		status.ThresholdMinutes = &t
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(status)
	}

	fmt.Printf("Index file:       %s\n", status.Path)
	fmt.Printf("Entries:          %d\n", status.Entries)
	fmt.Printf("Match generation: %d\n", status.MatchGeneration)
	if status.ThresholdMinutes != nil {
		fmt.Printf("Match threshold:  %d minutes\n", *status.ThresholdMinutes)
	} else {
		fmt.Println("Match threshold:  unset")
	}
	return nil
}

func runIndexClear(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.LogLevel, mustGetBool(cmd, "verbose"))

	idx := index.New(cfg.IndexPath())
	loaded := idx.Load()
	idx.Clear()
	if err := idx.Save(); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}

	fmt.Printf("Cleared %d cached entries from %s\n", loaded, idx.Path())
	return nil
}
