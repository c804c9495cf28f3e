package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/ar-marker/internal/fingerprint"
)

// Build metadata variables, set by -ldflags at compile time. When unset,
// version falls back to the VCS stamp embedded by the Go toolchain.
var (
	Version   = "dev"
	CommitSHA = ""
	BuildDate = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and fingerprint format",
	Long: `Print build information and the marker fingerprint layout. Servers and
CLI builds that report different fingerprint layouts cannot share a project
database.`,
	RunE: runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().Bool("json", false, "Output as JSON")
}

// buildInfo is what the version command reports.
type buildInfo struct {
	Version     string `json:"version"`
	Commit      string `json:"commit"`
	Built       string `json:"built"`
	Dirty       bool   `json:"dirty,omitempty"`
	GoVersion   string `json:"goVersion"`
	Fingerprint string `json:"fingerprint"`
}

// currentBuildInfo merges ldflags values with the embedded VCS settings.
func currentBuildInfo(settings []debug.BuildSetting) buildInfo {
	info := buildInfo{
		Version:     Version,
		Commit:      CommitSHA,
		Built:       BuildDate,
		GoVersion:   runtime.Version(),
		Fingerprint: fmt.Sprintf("%d-bit descriptors, %dx%d grid", fingerprint.DescriptorSize, fingerprint.GridSize, fingerprint.GridSize),
	}
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Built == "" {
				info.Built = s.Value
			}
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}
	if info.Commit == "" {
		info.Commit = "unknown"
	}
	if info.Built == "" {
		info.Built = "unknown"
	}
	return info
}

func runVersion(cmd *cobra.Command, args []string) error {
	var settings []debug.BuildSetting
	if bi, ok := debug.ReadBuildInfo(); ok {
		settings = bi.Settings
	}
	info := currentBuildInfo(settings)

	if mustGet(cmd, "json", cmd.Flags().GetBool) {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	commit := info.Commit
	if info.Dirty {
		commit += " (modified)"
	}
	fmt.Printf("ar-marker %s\n", info.Version)
	fmt.Printf("  Commit:      %s\n", commit)
	fmt.Printf("  Built:       %s\n", info.Built)
	fmt.Printf("  Go:          %s\n", info.GoVersion)
	fmt.Printf("  Fingerprint: %s\n", info.Fingerprint)
	return nil
}
