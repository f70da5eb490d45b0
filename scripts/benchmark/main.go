package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// CLI flags
var (
	apiURL = flag.String("api-url", "http://localhost:8080", "scrollgrab API base URL")
	apiKey = flag.String("api-key", "", "API key for authenticated requests")
	runs   = flag.Int("runs", 3, "Number of runs per URL for averaging")
	output = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// Test URLs covering different page shapes: no images at all, a handful of
// static images, and scroll-materialized galleries.
var testURLs = []struct {
	Label string
	URL   string
}{
	{"Empty", "https://example.com"},
	{"Blog", "https://go.dev/blog/gopher"},
	{"Docs", "https://go.dev/doc/effective_go"},
	{"Gallery", "https://commons.wikimedia.org/wiki/Commons:Picture_of_the_day"},
	{"Complex", "https://github.com/go-rod/rod"},
}

// --- Request / Response types (mirrors models package) ---

type harvestRequest struct {
	URL     string `json:"url"`
	Timeout int    `json:"timeout"`
}

type harvestResponse struct {
	Success   bool         `json:"success"`
	PageTitle string       `json:"page_title"`
	Outcomes  []outcome    `json:"outcomes"`
	Summary   summary      `json:"summary"`
	Timing    timingInfo   `json:"timing"`
	Error     *errorDetail `json:"error,omitempty"`
}

type outcome struct {
	Status string `json:"status"`
	Bytes  int64  `json:"bytes"`
}

type summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type timingInfo struct {
	TotalMs    int64 `json:"total_ms"`
	RenderMs   int64 `json:"render_ms"`
	DownloadMs int64 `json:"download_ms"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --- Benchmark result types ---

type runResult struct {
	Run        int    `json:"run"`
	TotalMs    int64  `json:"total_ms"`
	RenderMs   int64  `json:"render_ms"`
	DownloadMs int64  `json:"download_ms"`
	Assets     int    `json:"assets"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	BytesTotal int64  `json:"bytes_total"`
	HasTitle   bool   `json:"has_title"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

type urlAverages struct {
	TotalMs    float64 `json:"total_ms"`
	RenderMs   float64 `json:"render_ms"`
	DownloadMs float64 `json:"download_ms"`
	Assets     float64 `json:"assets"`
	BytesTotal float64 `json:"bytes_total"`
}

type urlResult struct {
	URL      string       `json:"url"`
	Label    string       `json:"label"`
	Runs     []runResult  `json:"runs"`
	Averages *urlAverages `json:"averages,omitempty"`
}

type benchmarkReport struct {
	Timestamp  string      `json:"timestamp"`
	APIURL     string      `json:"api_url"`
	RunsPerURL int         `json:"runs_per_url"`
	Results    []urlResult `json:"results"`
}

func main() {
	flag.Parse()

	fmt.Println("=== scrollgrab Benchmark Suite ===")
	fmt.Printf("API URL:   %s\n", *apiURL)
	fmt.Printf("Runs/URL:  %d\n", *runs)
	fmt.Printf("Output:    %s\n", *output)
	fmt.Println()

	// Quick connectivity check.
	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		fmt.Fprintf(os.Stderr, "Make sure scrollgrab is running (scrollgrab serve)\n")
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		APIURL:     *apiURL,
		RunsPerURL: *runs,
	}

	for _, t := range testURLs {
		fmt.Printf("Benchmarking [%s] %s ...\n", t.Label, t.URL)
		ur := urlResult{URL: t.URL, Label: t.Label}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := benchmarkURL(t.URL, i)
			if rr.Success {
				fmt.Printf("OK  %dms  %d/%d assets\n", rr.TotalMs, rr.Succeeded, rr.Assets)
			} else {
				fmt.Printf("FAILED: %s\n", rr.Error)
			}
			ur.Runs = append(ur.Runs, rr)
		}

		ur.Averages = computeAverages(ur.Runs)
		report.Results = append(report.Results, ur)
		fmt.Println()
	}

	// Print summary table.
	printTable(report.Results)

	// Write JSON report.
	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func benchmarkURL(url string, run int) runResult {
	rr := runResult{Run: run}

	reqBody := harvestRequest{
		URL:     url,
		Timeout: 120,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	req, err := http.NewRequest("POST", *apiURL+"/api/v1/harvest", bytes.NewReader(bodyBytes))
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	client := &http.Client{Timeout: 150 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()

	var hr harvestResponse
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}

	rr.Success = hr.Success
	rr.TotalMs = hr.Timing.TotalMs
	rr.RenderMs = hr.Timing.RenderMs
	rr.DownloadMs = hr.Timing.DownloadMs
	rr.Assets = hr.Summary.Total
	rr.Succeeded = hr.Summary.Succeeded
	rr.Failed = hr.Summary.Failed
	rr.HasTitle = hr.PageTitle != ""
	for _, o := range hr.Outcomes {
		rr.BytesTotal += o.Bytes
	}

	if hr.Error != nil {
		rr.Error = hr.Error.Message
	}

	return rr
}

func computeAverages(runs []runResult) *urlAverages {
	var successCount int
	var avg urlAverages

	for _, r := range runs {
		if !r.Success {
			continue
		}
		successCount++
		avg.TotalMs += float64(r.TotalMs)
		avg.RenderMs += float64(r.RenderMs)
		avg.DownloadMs += float64(r.DownloadMs)
		avg.Assets += float64(r.Assets)
		avg.BytesTotal += float64(r.BytesTotal)
	}

	if successCount == 0 {
		return nil
	}

	n := float64(successCount)
	avg.TotalMs /= n
	avg.RenderMs /= n
	avg.DownloadMs /= n
	avg.Assets /= n
	avg.BytesTotal /= n
	return &avg
}

func printTable(results []urlResult) {
	fmt.Println(strings.Repeat("─", 85))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "URL\tAvg Latency\tRender\tDownload\tAssets\tBytes\n")
	fmt.Fprintf(w, "───\t───────────\t──────\t────────\t──────\t─────\n")

	for _, r := range results {
		if r.Averages == nil {
			fmt.Fprintf(w, "%s\tFAILED\t-\t-\t-\t-\n", truncateURL(r.URL, 40))
			continue
		}

		fmt.Fprintf(w, "%s\t%dms\t%dms\t%dms\t%.1f\t%s\n",
			truncateURL(r.URL, 40),
			int64(r.Averages.TotalMs),
			int64(r.Averages.RenderMs),
			int64(r.Averages.DownloadMs),
			r.Averages.Assets,
			formatInt(int(r.Averages.BytesTotal)),
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 85))
}

func truncateURL(u string, max int) string {
	if len(u) <= max {
		return u
	}
	return u[:max-3] + "..."
}

func formatInt(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var result []byte
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}
	return string(result)
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
