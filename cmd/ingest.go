package cmd

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/ar-marker/internal/assetstore"
	"github.com/kozaktomas/ar-marker/internal/config"
	"github.com/kozaktomas/ar-marker/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <manifest.yaml>",
	Short: "Create projects in bulk from a manifest",
	Long: `Create AR projects from a YAML manifest. Each entry names the project and
points at its image, optional marker override and video. Paths are relative
to the manifest file.

Manifest format:
  projects:
    - name: Gallery poster
      image: poster.jpg
      marker: poster-crop.png   # optional, defaults to image
      video: poster.mp4

Every entry is validated before any upload. Use --dry-run to stop there.

Examples:
  # Import all projects listed in the manifest
  ar-marker ingest exhibition.yaml

  # Check the manifest without uploading anything
  ar-marker ingest exhibition.yaml --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().Int("concurrency", 2, "Number of projects uploaded in parallel")
	ingestCmd.Flags().Bool("dry-run", false, "Validate the manifest without uploading")
}

// ingestManifest is the YAML document read by the ingest command.
type ingestManifest struct {
	Projects []manifestEntry `yaml:"projects"`
}

type manifestEntry struct {
	Name   string `yaml:"name"`
	Image  string `yaml:"image"`
	Marker string `yaml:"marker"`
	Video  string `yaml:"video"`
}

func loadManifest(path string) (*ingestManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m ingestManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if len(m.Projects) == 0 {
		return nil, errors.New("manifest lists no projects")
	}
	return &m, nil
}

// submission reads the files of one manifest entry.
func (e manifestEntry) submission(baseDir string) (ingest.Submission, error) {
	s := ingest.Submission{Name: e.Name}

	var err error
	if s.Original, err = readAsset(baseDir, e.Image); err != nil {
		return s, fmt.Errorf("image: %w", err)
	}
	if s.Video, err = readAsset(baseDir, e.Video); err != nil {
		return s, fmt.Errorf("video: %w", err)
	}
	if e.Marker != "" {
		marker, err := readAsset(baseDir, e.Marker)
		if err != nil {
			return s, fmt.Errorf("marker: %w", err)
		}
		s.Marker = &marker
	}
	return s, nil
}

func readAsset(baseDir, name string) (ingest.Asset, error) {
	if name == "" {
		return ingest.Asset{}, errors.New("path is required")
	}
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ingest.Asset{}, err
	}
	return ingest.Asset{
		Filename:    filepath.Base(path),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Data:        data,
	}, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	concurrency := max(1, mustGetInt(cmd, "concurrency"))
	dryRun := mustGetBool(cmd, "dry-run")

	manifest, err := loadManifest(args[0])
	if err != nil {
		return err
	}
	baseDir := filepath.Dir(args[0])

	// Validate every entry before the first upload.
	submissions := make([]ingest.Submission, 0, len(manifest.Projects))
	var invalid int
	for i, entry := range manifest.Projects {
		s, err := entry.submission(baseDir)
		if err == nil {
			err = ingest.Validate(s)
		}
		if err != nil {
			fmt.Printf("  [%d] %s: %v\n", i+1, entry.Name, err)
			invalid++
			continue
		}
		submissions = append(submissions, s)
	}
	if invalid > 0 {
		return fmt.Errorf("%d of %d manifest entries are invalid", invalid, len(manifest.Projects))
	}

	if dryRun {
		fmt.Printf("Manifest OK: %d projects\n", len(submissions))
		for _, s := range submissions {
			fmt.Printf("  - %s\n", ingest.Describe(s))
		}
		return nil
	}

	ctx := context.Background()
	svc, err := openServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	assets, err := assetstore.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to configure asset store: %w", err)
	}
	if err := assets.Ping(ctx); err != nil {
		return fmt.Errorf("asset store is not reachable: %w", err)
	}
	pipeline := ingest.NewPipeline(assets, svc.registry)

	fmt.Printf("Projects to create: %d\n\n", len(submissions))

	bar := progressbar.NewOptions(len(submissions),
		progressbar.OptionSetDescription("Creating projects"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("projects"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var (
		mu       sync.Mutex
		failures []string
		created  int
		wg       sync.WaitGroup
	)
	sem := make(chan struct{}, concurrency)

	for _, s := range submissions {
		wg.Add(1)
		go func(s ingest.Submission) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			_, err := pipeline.Ingest(ctx, s)

			mu.Lock()
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", s.Name, err))
			} else {
				created++
			}
			mu.Unlock()
			bar.Add(1)
		}(s)
	}

	wg.Wait()
	fmt.Println()

	for _, f := range failures {
		fmt.Printf("  ERROR %s\n", f)
	}
	fmt.Printf("\nCompleted: %d created, %d errors\n", created, len(failures))
	fmt.Printf("Total projects: %d\n", svc.registry.Len())

	if len(failures) > 0 {
		return fmt.Errorf("%d projects failed", len(failures))
	}
	return nil
}
