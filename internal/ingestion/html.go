package ingestion

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	markupPattern     = regexp.MustCompile(`<(?:[a-zA-Z][a-zA-Z0-9]*)(?:\s[^>]*)?/?>`)
	whitespacePattern = regexp.MustCompile(`[ \t\f\v]+`)
	blankLinesPattern = regexp.MustCompile(`\n\s*\n+`)
)

// CleanContent returns plain text for article content. Content without markup is
// returned trimmed but otherwise untouched.
func CleanContent(content string) string {
	if !markupPattern.MatchString(content) {
		return strings.TrimSpace(content)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return strings.TrimSpace(content)
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	// Keep paragraph structure so extractive answers stay readable.
	doc.Find("p, li, h1, h2, h3, h4, h5, h6, br, tr, div").Each(func(i int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	text := doc.Find("body").Text()
	text = whitespacePattern.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = blankLinesPattern.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}

// ExtractTitle returns the document title of an HTML page, or "" when it has none.
func ExtractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	title := doc.Find("title").First().Text()
	if strings.TrimSpace(title) == "" {
		title = doc.Find("h1").First().Text()
	}

	return strings.TrimSpace(title)
}

// parseHTMLRecord reads an article from an HTML page. Category and tags come from
// <meta name="category"> and <meta name="keywords">; absent elements leave the
// corresponding field missing.
func parseHTMLRecord(html string) (title, category *string, tags []string, content string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil, nil, "", err
	}

	if t := ExtractTitle(html); t != "" {
		title = &t
	}
	if sel := doc.Find(`meta[name="category"]`).First(); sel.Length() > 0 {
		c := strings.TrimSpace(sel.AttrOr("content", ""))
		category = &c
	}
	if sel := doc.Find(`meta[name="keywords"]`).First(); sel.Length() > 0 {
		tags = []string{}
		for _, kw := range strings.Split(sel.AttrOr("content", ""), ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				tags = append(tags, kw)
			}
		}
	}

	return title, category, tags, CleanContent(html), nil
}
