package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kbassist/backend/internal/articles"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDirSourceReadsFilesInNameOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b_sla.yaml", `
- title: Setting up SLAs
  category: SLA
  tags: [sla, response]
  content: Define response targets for every shared inbox.
- title: SLA Reports
  category: SLA
  tags: []
  content: Reports show breached conversations.
`)
	writeFile(t, dir, "a_automation.json", `{
  "title": "How to Configure Automations in Hiver",
  "category": "Automation",
  "tags": ["automation"],
  "content": "<p>Automations run <b>workflow</b> rules.</p><script>alert(1)</script>"
}`)
	writeFile(t, dir, "notes.txt", "ignored")
	if err := os.Mkdir(filepath.Join(dir, "nested.json"), 0o755); err != nil {
		t.Fatal(err)
	}

	recs, err := NewDirSource(dir).Records(context.Background())
	if err != nil {
		t.Fatalf("Records() = %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("len = %d, want 3", len(recs))
	}

	if *recs[0].Title != "How to Configure Automations in Hiver" {
		t.Errorf("first record = %q, files must load in name order", *recs[0].Title)
	}
	if got := *recs[0].Content; got != "Automations run workflow rules." {
		t.Errorf("content not cleaned: %q", got)
	}
	if recs[0].Source != "a_automation.json" || recs[2].Source != "b_sla.yaml" {
		t.Errorf("sources = %q, %q", recs[0].Source, recs[2].Source)
	}
	if recs[2].Tags == nil || len(recs[2].Tags) != 0 {
		t.Errorf("explicit empty tags should stay present, got %#v", recs[2].Tags)
	}

	loaded, err := articles.Load(recs)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if loaded[1].Title != "Setting up SLAs" || loaded[1].ID != 1 {
		t.Errorf("loaded[1] = %+v", loaded[1])
	}
}

func TestDirSourceMissingFieldSurvivesParsing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "partial.json", `[{"title": "No body", "category": "General", "tags": []}]`)

	recs, err := NewDirSource(dir).Records(context.Background())
	if err != nil {
		t.Fatalf("Records() = %v", err)
	}

	_, err = articles.Load(recs)
	var me *articles.MalformedArticleError
	if !errors.As(err, &me) || me.Field != "content" || me.Source != "partial.json" {
		t.Fatalf("Load() = %v, want malformed content in partial.json", err)
	}
}

func TestDirSourceRejectsUnparsableFile(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"json", "broken.json", `{"title": `},
		{"yaml", "broken.yaml", "title: [unterminated"},
		{"empty yaml", "empty.yml", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, tt.file, tt.body)

			_, err := NewDirSource(dir).Records(context.Background())
			if !errors.Is(err, articles.ErrMalformedArticle) {
				t.Fatalf("Records() = %v, want ErrMalformedArticle", err)
			}
			if !strings.Contains(err.Error(), tt.file) {
				t.Errorf("error %q should name %s", err, tt.file)
			}
		})
	}
}

func TestDirSourceMissingDirectory(t *testing.T) {
	_, err := NewDirSource(filepath.Join(t.TempDir(), "absent")).Records(context.Background())
	if err == nil || errors.Is(err, articles.ErrMalformedArticle) {
		t.Fatalf("Records() = %v, want an I/O error", err)
	}
}

func TestDirSourceHTMLArticle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "shared-inbox.html", `<html><head>
<title>Shared Inbox Basics</title>
<meta name="category" content="Inbox">
<meta name="keywords" content="inbox, sharing, ">
</head><body>
<nav>Home | Docs</nav>
<h1>Shared Inbox Basics</h1>
<p>Invite teammates to the inbox.</p>
<ul><li>Assign emails</li><li>Add notes</li></ul>
<footer>Copyright</footer>
</body></html>`)

	recs, err := NewDirSource(dir).Records(context.Background())
	if err != nil {
		t.Fatalf("Records() = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("len = %d", len(recs))
	}

	r := recs[0]
	if r.Title == nil || *r.Title != "Shared Inbox Basics" {
		t.Errorf("title = %v", r.Title)
	}
	if r.Category == nil || *r.Category != "Inbox" {
		t.Errorf("category = %v", r.Category)
	}
	if len(r.Tags) != 2 || r.Tags[0] != "inbox" || r.Tags[1] != "sharing" {
		t.Errorf("tags = %q", r.Tags)
	}
	content := *r.Content
	if strings.Contains(content, "Home | Docs") || strings.Contains(content, "Copyright") {
		t.Errorf("navigation chrome kept: %q", content)
	}
	if !strings.Contains(content, "Invite teammates to the inbox.") || !strings.Contains(content, "Assign emails") {
		t.Errorf("body text lost: %q", content)
	}
}

func TestCleanContent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "  Use 2 < 3 rules.\n\nSecond paragraph. ", "Use 2 < 3 rules.\n\nSecond paragraph."},
		{"paragraphs", "<p>One</p><p>Two</p>", "One\nTwo"},
		{"drops scripts", "<div>Keep<script>var x = 1;</script></div>", "Keep"},
		{"collapses spaces", "<p>a    b\t\tc</p>", "a b c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanContent(tt.in); got != tt.want {
				t.Errorf("CleanContent(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractTitleFallsBackToHeading(t *testing.T) {
	if got := ExtractTitle("<body><h1> Routing Rules </h1></body>"); got != "Routing Rules" {
		t.Errorf("ExtractTitle() = %q", got)
	}
	if got := ExtractTitle("<p>no title</p>"); got != "" {
		t.Errorf("ExtractTitle() = %q, want empty", got)
	}
}
