package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/scrollgrab/models"
	"github.com/use-agent/scrollgrab/pipeline"
)

var (
	runSelector     string
	runSrcAttr      string
	runSrcsetAttr   string
	runTimeout      time.Duration
	runScrollPasses int
	runConcurrency  int
	runManifest     bool
	runHeaded       bool
	runNoSandbox    bool
	runViewport     string
)

var runCmd = &cobra.Command{
	Use:   "run <url> <output-dir>",
	Short: "Harvest one page into a local directory",
	Long: `Renders the target page, scrolls it to the bottom to trigger lazy
loading, resolves one asset URL per matching element and downloads the
assets as <ordinal>.jpg into the output directory.

The exit code is 0 when the run completes, even if individual downloads
failed; the report lists every failure. A run that cannot complete at all
(session launch, navigation, timeout) exits non-zero.

Example:
  scrollgrab run https://example.com/gallery ./downloads`,
	Args: cobra.ExactArgs(2),
	RunE: runHarvest,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runSelector, "selector", "img", "CSS selector for harvestable elements")
	f.StringVar(&runSrcAttr, "src-attr", "src", "attribute holding the primary asset URL")
	f.StringVar(&runSrcsetAttr, "srcset-attr", "srcset", "attribute holding responsive candidates")
	f.DurationVar(&runTimeout, "timeout", 90*time.Second, "deadline for the entire run")
	f.IntVar(&runScrollPasses, "scroll-passes", 20, "max viewport-height scroll steps")
	f.IntVar(&runConcurrency, "concurrency", 1, "parallel downloads (1 = strictly sequential)")
	f.BoolVar(&runManifest, "manifest", false, "write a manifest.md summary into the output directory")
	f.BoolVar(&runHeaded, "headed", false, "show the browser window")
	f.BoolVar(&runNoSandbox, "no-sandbox", false, "disable the Chrome sandbox (required in most containers)")
	f.StringVar(&runViewport, "viewport", "max", `browser viewport, "max" or "WxH" like 1366x900`)
}

func runHarvest(cmd *cobra.Command, args []string) error {
	targetURL, outputDir := args[0], args[1]
	applyRunFlags(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := pipeline.New(cfg, targetURL, outputDir).Run(ctx)
	if err != nil {
		return err
	}

	printReport(os.Stdout, result)
	return nil
}

// applyRunFlags overlays explicitly set flags onto the environment config.
// Unset flags leave the SCROLLGRAB_* values in place.
func applyRunFlags(cmd *cobra.Command) {
	fl := cmd.Flags()
	if fl.Changed("selector") {
		cfg.Harvest.Selector = runSelector
	}
	if fl.Changed("src-attr") {
		cfg.Harvest.SrcAttr = runSrcAttr
	}
	if fl.Changed("srcset-attr") {
		cfg.Harvest.SrcsetAttr = runSrcsetAttr
	}
	if fl.Changed("timeout") {
		cfg.Harvest.RunTimeout = runTimeout
	}
	if fl.Changed("scroll-passes") {
		cfg.Harvest.ScrollPasses = runScrollPasses
	}
	if fl.Changed("concurrency") {
		cfg.Fetch.Concurrency = runConcurrency
	}
	if fl.Changed("manifest") {
		cfg.Harvest.Manifest = runManifest
	}
	if fl.Changed("headed") {
		cfg.Browser.Headless = !runHeaded
	}
	if fl.Changed("no-sandbox") {
		cfg.Browser.NoSandbox = runNoSandbox
	}
	if fl.Changed("viewport") {
		cfg.Browser.Viewport = runViewport
	}
}

// printReport writes the per-asset outcome table and the run summary.
func printReport(w io.Writer, result *models.HarvestResult) {
	if result.PageTitle != "" {
		fmt.Fprintf(w, "%s\n\n", result.PageTitle)
	}

	if len(result.Outcomes) == 0 {
		fmt.Fprintln(w, "no assets matched")
	} else {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ORDINAL\tSTATUS\tSOURCE\tRESULT")
		for _, o := range result.Outcomes {
			if o.Failed() {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s: %s\n",
					o.Ordinal, o.Status, o.SourceURL, o.Reason, o.Error)
			} else {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s (%d bytes)\n",
					o.Ordinal, o.Status, o.SourceURL, o.Path, o.Bytes)
			}
		}
		tw.Flush()
	}

	fmt.Fprintf(w, "\n%d assets: %d downloaded, %d failed in %.1fs\n",
		result.Summary.Total, result.Summary.Succeeded, result.Summary.Failed,
		float64(result.Timing.TotalMs)/1000)
	fmt.Fprintf(w, "output: %s\n", result.OutputDir)
}
