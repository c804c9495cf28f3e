package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/ar-marker/internal/config"
	"github.com/kozaktomas/ar-marker/internal/registry"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List and manage AR projects",
	Long: `List all AR projects in creation order. Use subcommands to delete projects.

A running server keeps its own copy of the project set; restart it to pick up
changes made from the command line.`,
	RunE: runProjectsList,
}

var projectsDeleteCmd = &cobra.Command{
	Use:   "delete [id...]",
	Short: "Delete projects by id",
	Long: `Delete one or more projects by their id. Uploaded assets are left in the
asset store.

Example:
  ar-marker projects delete 0192f0c1-7c4e-7b8a-9d3e-2f1a0b4c5d6e`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProjectsDelete,
}

func init() {
	rootCmd.AddCommand(projectsCmd)
	projectsCmd.AddCommand(projectsDeleteCmd)

	projectsCmd.Flags().Bool("json", false, "Output as JSON")

	projectsDeleteCmd.Flags().Bool("yes", false, "Skip confirmation prompt")
}

// projectListing is the JSON shape of one listed project.
type projectListing struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	OriginalImage string    `json:"originalImage"`
	MarkerImage   string    `json:"markerImage"`
	Video         string    `json:"video"`
	CreatedAt     time.Time `json:"createdAt"`
}

func runProjectsList(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	jsonOutput := mustGetBool(cmd, "json")
	ctx := context.Background()

	svc, err := openServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	projects, err := svc.registry.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list projects: %w", err)
	}

	if jsonOutput {
		out := make([]projectListing, 0, len(projects))
		for _, p := range projects {
			out = append(out, projectListing{
				ID:            p.ID,
				Name:          p.Name,
				OriginalImage: p.OriginalImage.URL,
				MarkerImage:   p.MarkerImage.URL,
				Video:         p.Video.URL,
				CreatedAt:     p.CreatedAt,
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(projects) == 0 {
		fmt.Println("No projects found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCREATED\tVIDEO")
	fmt.Fprintln(w, "--\t----\t-------\t-----")
	for _, p := range projects {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.CreatedAt.Format("2006-01-02 15:04"), p.Video.URL)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d projects\n", len(projects))
	return nil
}

func runProjectsDelete(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	skipConfirm := mustGetBool(cmd, "yes")
	ctx := context.Background()

	svc, err := openServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	// Validate ids and show what will be deleted
	var validIDs []string
	fmt.Println("Projects to delete:")
	for _, id := range args {
		p, err := svc.registry.Get(ctx, id)
		switch {
		case errors.Is(err, registry.ErrNotFound):
			fmt.Printf("  - WARNING: Unknown id %s (skipping)\n", id)
		case err != nil:
			return fmt.Errorf("failed to look up project %s: %w", id, err)
		default:
			fmt.Printf("  - %s (%s)\n", p.Name, p.ID)
			validIDs = append(validIDs, p.ID)
		}
	}

	if len(validIDs) == 0 {
		return errors.New("no valid projects to delete")
	}

	if !skipConfirm {
		fmt.Printf("\nDelete %d project(s)? [y/N]: ", len(validIDs))
		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	for _, id := range validIDs {
		if err := svc.registry.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete project %s: %w", id, err)
		}
	}

	fmt.Printf("Deleted %d project(s).\n", len(validIDs))
	return nil
}
