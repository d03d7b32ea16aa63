// Command mahzen-engine drives the clone and index engines against a
// catalog database on disk: manage object-store targets, launch or control
// clone jobs, run or cancel bucket indexes, and browse an indexed bucket.
package main

import (
	"fmt"
	"os"

	"github.com/mahzen/engine/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mahzen-engine",
	Short: "Clone and index objects across S3-compatible targets",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("db", "mahzen-engine.db", "path to the catalog SQLite database")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "output logs in JSON format")
	rootCmd.PersistentFlags().String("temp-dir", "", "scratch directory for cross-target clone staging (defaults to the OS temp dir)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(targetCmd)
	rootCmd.AddCommand(cloneCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(browseCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	logging.Init(logging.Config{
		Level:      logging.Level(level),
		JSONOutput: jsonOutput,
	})
}
