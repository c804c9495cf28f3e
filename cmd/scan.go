package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/ar-marker/internal/camera"
	"github.com/kozaktomas/ar-marker/internal/config"
	"github.com/kozaktomas/ar-marker/internal/session"
)

var scanCmd = &cobra.Command{
	Use:   "scan <dir>",
	Short: "Run a capture session over a directory of frames",
	Long: `Run a full capture session with a directory standing in for the camera.
Image files in the directory are captured in name order, one per sampling
tick, until a marker is detected or the timeout passes.

Examples:
  # Scan recorded frames with the configured interval
  ar-marker scan ./frames

  # Sample every 200ms for at most 10 seconds
  ar-marker scan ./frames --interval 200ms --timeout 10s`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().Duration("interval", 0, "Sampling interval (overrides MATCH_INTERVAL_MS)")
	scanCmd.Flags().Duration("timeout", 30*time.Second, "Stop scanning after this long")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	interval := mustGetDuration(cmd, "interval")
	if interval > 0 {
		cfg.Matching.Interval = interval
	}
	timeout := mustGetDuration(cmd, "timeout")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, err := openServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	if svc.registry.Len() == 0 {
		fmt.Println("Warning: no projects registered, nothing can be detected")
	}

	sess := sessionFactory(svc)(camera.NewDirectoryDevice(args[0]))
	defer sess.Close()

	states, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	fmt.Printf("Scanning %s every %s (timeout %s)\n", args[0], cfg.Matching.Interval, timeout)
	if err := sess.Start(ctx); err != nil {
		st := sess.State()
		if st.Remediation != "" {
			return fmt.Errorf("%s: %s", st.Error, st.Remediation)
		}
		return err
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case st, ok := <-states:
			if !ok {
				return errors.New("session closed")
			}
			done, err := reportScanState(st)
			if done {
				fmt.Printf("Ticks skipped while matching: %d\n", sess.Skipped())
				return err
			}
		case <-deadline.C:
			fmt.Printf("No marker detected within %s\n", timeout)
			return nil
		case <-ctx.Done():
			fmt.Println("\nInterrupted")
			return nil
		}
	}
}

// reportScanState prints one session transition and reports whether the
// scan is over.
func reportScanState(st session.State) (bool, error) {
	switch st.Status {
	case session.StatusDetected:
		name, video := st.ProjectID, ""
		if st.Project != nil {
			name, video = st.Project.Name, st.Project.Video.URL
		}
		fmt.Printf("Detected %s (%s) with confidence %.3f\n", name, st.ProjectID, st.Confidence)
		if video != "" {
			fmt.Printf("Video: %s\n", video)
		}
		return true, nil
	case session.StatusError:
		fmt.Printf("Camera error: %s\n", st.Error)
		if st.Remediation != "" {
			fmt.Printf("  %s\n", st.Remediation)
		}
		return true, fmt.Errorf("capture failed: %s", st.Error)
	default:
		fmt.Printf("Session %s\n", st.Status)
		return false, nil
	}
}
