package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// harvestRequest mirrors the scrollgrab API request model.
type harvestRequest struct {
	URL          string `json:"url"`
	Selector     string `json:"selector,omitempty"`
	Timeout      int    `json:"timeout,omitempty"`
	ScrollPasses int    `json:"scroll_passes,omitempty"`
	Concurrency  int    `json:"concurrency,omitempty"`
	Manifest     bool   `json:"manifest,omitempty"`
}

// harvestResponse mirrors the scrollgrab API response model.
type harvestResponse struct {
	Success   bool   `json:"success"`
	RunID     string `json:"run_id"`
	OutputDir string `json:"output_dir"`
	PageTitle string `json:"page_title"`
	Outcomes  []struct {
		Ordinal   int    `json:"ordinal"`
		SourceURL string `json:"source_url"`
		Path      string `json:"path"`
		Status    string `json:"status"`
		Reason    string `json:"reason"`
		Error     string `json:"error"`
		Bytes     int64  `json:"bytes"`
	} `json:"outcomes"`
	Summary struct {
		Total     int `json:"total"`
		Succeeded int `json:"succeeded"`
		Failed    int `json:"failed"`
	} `json:"summary"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	apiURL := os.Getenv("SCROLLGRAB_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("SCROLLGRAB_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "SCROLLGRAB_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"scrollgrab",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	harvestPageTool := mcp.NewTool("harvest_page",
		mcp.WithDescription("Harvest assets (images by default) from a web page into a server-side directory. Uses a headless browser and scrolls the page so lazily loaded content materializes before asset URLs are resolved."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page to harvest"),
		),
		mcp.WithString("selector",
			mcp.Description("CSS selector for the elements to harvest (default: 'img')"),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Deadline in seconds for the entire run (default: 90, max: 600)"),
		),
		mcp.WithNumber("scroll_passes",
			mcp.Description("Maximum viewport-height scroll steps used to trigger lazy loading (default: 20)"),
		),
		mcp.WithNumber("concurrency",
			mcp.Description("Parallel downloads, 1 keeps downloads strictly sequential (default: 1, max: 16)"),
		),
		mcp.WithBoolean("manifest",
			mcp.Description("Also write a manifest.md summary into the output directory"),
		),
	)

	s.AddTool(harvestPageTool, handleHarvestPage(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleHarvestPage(apiURL, apiKey string) server.ToolHandlerFunc {
	// Requests may legitimately run for up to the API's 600s ceiling, so the
	// client deadline sits above it.
	client := &http.Client{Timeout: 620 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		reqBody := harvestRequest{
			URL:      url,
			Selector: request.GetString("selector", ""),
		}

		args := request.GetArguments()
		if v, ok := args["timeout"].(float64); ok {
			reqBody.Timeout = int(v)
		}
		if v, ok := args["scroll_passes"].(float64); ok {
			reqBody.ScrollPasses = int(v)
		}
		if v, ok := args["concurrency"].(float64); ok {
			reqBody.Concurrency = int(v)
		}
		if v, ok := args["manifest"].(bool); ok {
			reqBody.Manifest = v
		}

		body, err := json.Marshal(reqBody)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal request: %v", err)), nil
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+"/api/v1/harvest", bytes.NewReader(body))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create request: %v", err)), nil
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("X-API-Key", apiKey)

		resp, err := client.Do(httpReq)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("API request failed: %v", err)), nil
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read response: %v", err)), nil
		}

		var harvestResp harvestResponse
		if err := json.Unmarshal(respBody, &harvestResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		if !harvestResp.Success {
			errMsg := "harvest failed"
			if harvestResp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", harvestResp.Error.Code, harvestResp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		return mcp.NewToolResultText(formatHarvest(&harvestResp, url)), nil
	}
}

// formatHarvest renders an API response as text for the tool consumer.
func formatHarvest(resp *harvestResponse, url string) string {
	var sb strings.Builder

	title := resp.PageTitle
	if title == "" {
		title = url
	}
	sb.WriteString(fmt.Sprintf("Harvested %q: %d assets, %d downloaded, %d failed\n",
		title, resp.Summary.Total, resp.Summary.Succeeded, resp.Summary.Failed))
	sb.WriteString(fmt.Sprintf("Run %s, output directory: %s\n\n", resp.RunID, resp.OutputDir))

	for _, o := range resp.Outcomes {
		if o.Status == "failed" {
			sb.WriteString(fmt.Sprintf("[%d] FAILED (%s) %s: %s\n", o.Ordinal, o.Reason, o.SourceURL, o.Error))
		} else {
			sb.WriteString(fmt.Sprintf("[%d] %s (%d bytes) from %s\n", o.Ordinal, o.Path, o.Bytes, o.SourceURL))
		}
	}

	return sb.String()
}
