// Package manifest renders a human-readable record of a harvest run. The
// manifest pairs each numbered file with its source URL and caption, and
// carries a short readable excerpt of the page so a directory of 1.jpg,
// 2.jpg, ... stays identifiable months later.
package manifest

import (
	"fmt"
	nurl "net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/use-agent/scrollgrab/models"
	"github.com/use-agent/scrollgrab/srcset"
	"golang.org/x/net/html"
)

// FileName is the manifest's name inside the output directory.
const FileName = "manifest.md"

// minExcerptSource is the minimum readable text length (in characters) for
// the readability output to be considered meaningful. Below it, the page is
// likely a pure gallery and the excerpt section is omitted.
const minExcerptSource = 50

// excerptMaxRunes caps the rendered excerpt.
const excerptMaxRunes = 600

// Input carries everything the manifest needs from a finished run.
type Input struct {
	TargetURL   string
	RunID       string
	HTML        string // rendered page snapshot, may be empty
	Outcomes    []models.FetchOutcome
	RetrievedAt time.Time
}

// Write renders the manifest and stores it next to the downloaded files.
func Write(dir string, in Input) error {
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(Build(in)), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Build renders the manifest document.
func Build(in Input) string {
	var b strings.Builder

	title := PageTitle(in.HTML)
	if title == "" {
		title = "Harvest manifest"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "- Source: %s\n", in.TargetURL)
	fmt.Fprintf(&b, "- Run: %s\n", in.RunID)
	fmt.Fprintf(&b, "- Retrieved: %s\n", in.RetrievedAt.UTC().Format(time.RFC3339))

	summary := models.Summarize(in.Outcomes)
	fmt.Fprintf(&b, "- Assets: %d total, %d downloaded, %d failed\n\n",
		summary.Total, summary.Succeeded, summary.Failed)

	if excerpt := pageExcerpt(in.HTML, in.TargetURL); excerpt != "" {
		b.WriteString("## Page excerpt\n\n")
		b.WriteString(excerpt)
		b.WriteString("\n\n")
	}

	if len(in.Outcomes) > 0 {
		captions := captionIndex(in.HTML, in.TargetURL)
		b.WriteString("## Assets\n\n")
		b.WriteString("| # | File | Status | Source | Caption |\n")
		b.WriteString("|---|------|--------|--------|---------|\n")
		for _, o := range in.Outcomes {
			status := string(o.Status)
			if o.Failed() {
				status = fmt.Sprintf("failed (%s)", o.Reason)
			}
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n",
				o.Ordinal,
				filepath.Base(o.Path),
				status,
				cell(o.SourceURL),
				cell(captions[o.SourceURL]),
			)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// PageTitle returns the first <title> text from the snapshot, or "".
func PageTitle(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))
	inTitle := false
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(tokenizer.Text()))
			}
		case html.EndTagToken:
			if inTitle {
				return ""
			}
		}
	}
}

// mdConverter returns the shared Markdown converter. The converter is
// goroutine-safe and reusable, so one instance serves all runs.
var mdConverter = sync.OnceValue(func() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
})

// pageExcerpt runs the Readability algorithm over the snapshot and converts
// the main content to Markdown, truncated for the manifest. Gallery pages
// with no real prose yield an empty excerpt, which is fine.
func pageExcerpt(rawHTML, sourceURL string) string {
	if strings.TrimSpace(rawHTML) == "" {
		return ""
	}
	parsedURL, err := nurl.Parse(sourceURL)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(strings.NewReader(rawHTML), parsedURL)
	if err != nil {
		return ""
	}
	if len(strings.TrimSpace(article.TextContent)) < minExcerptSource {
		return ""
	}
	md, err := mdConverter().ConvertString(article.Content, converter.WithDomain(parsedURL.Host))
	if err != nil {
		return ""
	}
	return truncate(strings.TrimSpace(md), excerptMaxRunes)
}

// captionIndex maps each resolved asset URL to its alt text. URLs resolve
// through the same srcset selection and base resolution as the harvester,
// so lookups by outcome SourceURL line up.
func captionIndex(rawHTML, sourceURL string) map[string]string {
	captions := make(map[string]string)
	if rawHTML == "" {
		return captions
	}
	base, err := nurl.Parse(sourceURL)
	if err != nil {
		return captions
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return captions
	}

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		chosen := srcset.Best(s.AttrOr("src", ""), s.AttrOr("srcset", ""))
		if chosen == "" {
			return
		}
		resolved, err := base.Parse(chosen)
		if err != nil {
			return
		}
		alt := strings.TrimSpace(s.AttrOr("alt", ""))
		if alt == "" {
			return
		}
		key := resolved.String()
		if _, ok := captions[key]; !ok {
			captions[key] = alt
		}
	})
	return captions
}

// cell escapes a value for use inside a Markdown table row.
func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}

func truncate(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return strings.TrimSpace(string(runes[:maxRunes])) + "..."
}
