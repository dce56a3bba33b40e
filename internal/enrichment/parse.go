package enrichment

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"neoalexandria/internal/apperr"
)

// ParsedContent is the normalized output of the Parse stage: extracted
// title and cleaned body text, per spec.md §4.6's "bytes + content-type ->
// normalized text + basic metadata" contract.
type ParsedContent struct {
	Title string
	Text  string
}

var boilerplateSelectors = "script, style, nav, footer, header, aside, form, iframe, noscript, " +
	".sidebar, #sidebar, .ad, .advertisement, .popup, .modal, .cookie-banner"

var mainContentSelectors = []string{
	"article", "main", ".main-content", ".entry-content", ".post-content",
	".post-body", ".article-body", "[role='main']", ".content", "#content",
}

var collapseNewlines = regexp.MustCompile(`\n{2,}`)

// ParseHTML extracts a title and the main textual content from raw HTML,
// removing common boilerplate elements first. Grounded on the teacher's
// internal/fetch.ParseArticleContent / extractTitle, generalized to take
// raw bytes directly instead of mutating a core.Article in place. Parse is
// a mandatory (non-degradable) stage: a malformed document is a fatal
// error, not a nulled field.
func ParseHTML(rawBytes []byte) (*ParsedContent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(rawBytes)))
	if err != nil {
		return nil, apperr.Fatal("failed to parse HTML document", err)
	}

	doc.Find(boilerplateSelectors).Remove()

	title := extractTitle(doc)

	var textBuilder strings.Builder
	found := false
	for _, selector := range mainContentSelectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			s.Find("p, h1, h2, h3, h4, h5, h6, li, blockquote, pre").Each(func(_ int, item *goquery.Selection) {
				textBuilder.WriteString(strings.TrimSpace(item.Text()))
				textBuilder.WriteString("\n\n")
			})
		})
		if textBuilder.Len() > 0 {
			found = true
			break
		}
	}
	if !found {
		doc.Find("body").Find("p, h1, h2, h3, h4, h5, h6, li, blockquote, pre").Each(func(_ int, item *goquery.Selection) {
			textBuilder.WriteString(strings.TrimSpace(item.Text()))
			textBuilder.WriteString("\n\n")
		})
	}

	text := strings.TrimSpace(collapseNewlines.ReplaceAllString(textBuilder.String(), "\n"))

	if title == "" && text != "" {
		words := strings.Fields(text)
		if len(words) > 10 {
			words = words[:10]
		}
		title = strings.Join(words, " ")
	}

	return &ParsedContent{Title: title, Text: text}, nil
}

func extractTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("head title").First().Text()); title != "" {
		return title
	}
	if ogTitle, ok := doc.Find("meta[property='og:title']").Attr("content"); ok {
		if ogTitle = strings.TrimSpace(ogTitle); ogTitle != "" {
			return ogTitle
		}
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}
