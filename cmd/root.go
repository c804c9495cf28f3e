package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ar-marker",
	Short: "Marker-based AR project server and tools",
	Long: `AR Marker manages augmented reality projects: a marker image paired with
a video that plays when the marker is recognised in a camera frame.

It serves the project API and live capture sessions over HTTP, and offers
commands to import, list, delete and test projects from the shell.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
