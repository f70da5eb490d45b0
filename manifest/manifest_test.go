package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/scrollgrab/models"
)

const galleryHTML = `<!DOCTYPE html>
<html>
<head><title>Autumn Walks</title></head>
<body>
<h1>Autumn Walks</h1>
<img src="/media/1.jpg" alt="Maple leaves">
<img src="thumb.jpg" srcset="mid.jpg 800w, /media/large.jpg 1600w" alt="Foggy trail">
<img src="/media/3.jpg">
</body>
</html>`

func testInput() Input {
	return Input{
		TargetURL: "https://example.com/walks/",
		RunID:     "run-123",
		HTML:      galleryHTML,
		Outcomes: []models.FetchOutcome{
			{Ordinal: 1, SourceURL: "https://example.com/media/1.jpg", Path: "/out/1.jpg", Status: models.StatusSuccess, Bytes: 100},
			{Ordinal: 2, SourceURL: "https://example.com/media/large.jpg", Path: "/out/2.jpg", Status: models.StatusFailed, Reason: models.FailTimeout, Error: "deadline"},
			{Ordinal: 3, SourceURL: "https://example.com/media/3.jpg", Path: "/out/3.jpg", Status: models.StatusSuccess, Bytes: 50},
		},
		RetrievedAt: time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC),
	}
}

func TestBuild(t *testing.T) {
	got := Build(testInput())

	for _, want := range []string{
		"# Autumn Walks",
		"- Source: https://example.com/walks/",
		"- Run: run-123",
		"- Retrieved: 2025-11-03T12:00:00Z",
		"- Assets: 3 total, 2 downloaded, 1 failed",
		"| 1 | 1.jpg | success |",
		"| 2 | 2.jpg | failed (timeout) |",
		"| 3 | 3.jpg | success |",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("manifest missing %q\n---\n%s", want, got)
		}
	}
}

func TestBuildMatchesCaptionsThroughSrcset(t *testing.T) {
	got := Build(testInput())

	// Ordinal 2's URL comes from the last srcset candidate, resolved
	// against the page URL; its caption must still be found.
	if !strings.Contains(got, "Foggy trail") {
		t.Errorf("manifest missing caption for srcset-resolved asset\n---\n%s", got)
	}
	if !strings.Contains(got, "Maple leaves") {
		t.Errorf("manifest missing caption for plain src asset\n---\n%s", got)
	}
}

func TestBuildWithoutSnapshot(t *testing.T) {
	in := testInput()
	in.HTML = ""
	got := Build(in)

	if !strings.Contains(got, "# Harvest manifest") {
		t.Errorf("manifest without snapshot should use fallback heading\n---\n%s", got)
	}
	if !strings.Contains(got, "| 1 | 1.jpg |") {
		t.Errorf("manifest without snapshot should still list assets\n---\n%s", got)
	}
}

func TestPageTitle(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{"simple", "<html><head><title>Hello</title></head></html>", "Hello"},
		{"whitespace trimmed", "<title>\n  Spaced  \n</title>", "Spaced"},
		{"missing", "<html><body><p>no title</p></body></html>", ""},
		{"empty input", "", ""},
		{"empty element", "<title></title>", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PageTitle(tt.html); got != tt.want {
				t.Errorf("PageTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	if err := Write(dir, testInput()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("reading manifest: %v", err)
	}
	if !strings.Contains(string(data), "# Autumn Walks") {
		t.Errorf("written manifest missing title:\n%s", data)
	}
}

func TestCellEscapesTableBreakers(t *testing.T) {
	if got := cell("a|b\nc"); got != "a\\|b c" {
		t.Errorf("cell() = %q, want %q", got, "a\\|b c")
	}
}
