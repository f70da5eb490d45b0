package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/use-agent/scrollgrab/config"
)

var (
	cfg     *config.Config
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "scrollgrab",
	Short: "Harvest assets from pages that render on scroll",
	Long: `scrollgrab drives a headless browser through pages that materialize
their content lazily, resolves the best asset URL for every matching
element and downloads the assets into a local directory.

Use "scrollgrab run" for one-shot harvests, or "scrollgrab serve" to
expose the pipeline as an HTTP API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		if verbose {
			cfg.Log.Level = "debug"
		}
		// One-shot runs keep stdout for the outcome report; logs go to
		// stderr. The server logs to stdout like any other service.
		out := io.Writer(os.Stderr)
		if cmd.Name() == "serve" {
			out = os.Stdout
		}
		initLogger(cfg.Log, out)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig, out io.Writer) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	slog.SetDefault(slog.New(handler))
}
