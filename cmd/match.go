package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/ar-marker/internal/config"
	"github.com/kozaktomas/ar-marker/internal/matcher"
)

var matchCmd = &cobra.Command{
	Use:   "match <frame>",
	Short: "Match one camera frame against the stored markers",
	Long: `Match a single image file against every project's marker and report the
best project if its confidence clears the threshold.

Examples:
  # Match a photo taken of a poster
  ar-marker match photo.jpg

  # Require a stronger match
  ar-marker match photo.jpg --threshold 0.85

  # Output as JSON
  ar-marker match photo.jpg --json`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().Float64("threshold", 0.7, "Minimum confidence for a match (overrides MATCH_THRESHOLD)")
	matchCmd.Flags().Duration("timeout", 5*time.Second, "Give up matching after this long")
	matchCmd.Flags().Bool("json", false, "Output as JSON")
}

// matchOutput is the JSON shape printed by the match command.
type matchOutput struct {
	Frame      string  `json:"frame"`
	Matched    bool    `json:"matched"`
	ProjectID  string  `json:"projectId,omitempty"`
	Name       string  `json:"name,omitempty"`
	Video      string  `json:"video,omitempty"`
	Confidence float64 `json:"confidence"`
	TimedOut   bool    `json:"timedOut,omitempty"`
}

func runMatch(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cmd.Flags().Changed("threshold") {
		cfg.Matching.Threshold = mustGetFloat64(cmd, "threshold")
	}
	timeout := mustGetDuration(cmd, "timeout")
	jsonOutput := mustGetBool(cmd, "json")

	frame, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read frame: %w", err)
	}

	svc, err := openServices(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	result, err := svc.engine.Match(ctx, frame)
	out := matchOutput{Frame: args[0]}
	switch {
	case errors.Is(err, matcher.ErrMatchTimeout):
		out.TimedOut = true
	case err != nil:
		return fmt.Errorf("failed to match frame: %w", err)
	default:
		out.Matched = result.Matched
		out.ProjectID = result.ProjectID
		out.Confidence = result.Confidence
		if result.Project != nil {
			out.Name = result.Project.Name
			out.Video = result.Project.Video.URL
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	info := svc.engine.Snapshot()
	fmt.Printf("Compared against %d markers in %s\n", info.Markers, time.Since(start).Round(time.Millisecond))
	switch {
	case out.TimedOut:
		fmt.Printf("No match: timed out after %s\n", timeout)
	case out.Matched:
		fmt.Printf("Matched %s (%s) with confidence %.3f\n", out.Name, out.ProjectID, out.Confidence)
		fmt.Printf("Video: %s\n", out.Video)
	default:
		fmt.Printf("No match (best confidence %.3f, threshold %.2f)\n", out.Confidence, cfg.Matching.Threshold)
	}
	return nil
}
