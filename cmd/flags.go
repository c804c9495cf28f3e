package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// mustGet reads a flag registered in init() with one of pflag's typed
// getters. A missing or mistyped flag is a programming error and panics.
//
//	threshold := mustGet(cmd, "threshold", cmd.Flags().GetFloat64)
func mustGet[T any](cmd *cobra.Command, name string, get func(string) (T, error)) T {
	val, err := get(name)
	if err != nil {
		panic(fmt.Sprintf("%s: flag --%s: %v", cmd.CommandPath(), name, err))
	}
	return val
}

func mustGetBool(cmd *cobra.Command, name string) bool {
	return mustGet(cmd, name, cmd.Flags().GetBool)
}

func mustGetInt(cmd *cobra.Command, name string) int {
	return mustGet(cmd, name, cmd.Flags().GetInt)
}

func mustGetString(cmd *cobra.Command, name string) string {
	return mustGet(cmd, name, cmd.Flags().GetString)
}

func mustGetFloat64(cmd *cobra.Command, name string) float64 {
	return mustGet(cmd, name, cmd.Flags().GetFloat64)
}

// mustGetDuration reads flags such as --interval and --timeout.
func mustGetDuration(cmd *cobra.Command, name string) time.Duration {
	return mustGet(cmd, name, cmd.Flags().GetDuration)
}
