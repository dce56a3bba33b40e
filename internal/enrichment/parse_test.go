package enrichment

import "testing"

func TestParseHTMLExtractsTitleFromTitleTag(t *testing.T) {
	html := `<html><head><title>My Article</title></head><body><article><p>Hello world.</p></article></body></html>`
	parsed, err := ParseHTML([]byte(html))
	if err != nil {
		t.Fatalf("ParseHTML failed: %v", err)
	}
	if parsed.Title != "My Article" {
		t.Errorf("expected title 'My Article', got %q", parsed.Title)
	}
	if parsed.Text != "Hello world." {
		t.Errorf("expected text 'Hello world.', got %q", parsed.Text)
	}
}

func TestParseHTMLFallsBackToOGTitle(t *testing.T) {
	html := `<html><head><meta property="og:title" content="OG Title"></head><body><main><p>Body text.</p></main></body></html>`
	parsed, err := ParseHTML([]byte(html))
	if err != nil {
		t.Fatalf("ParseHTML failed: %v", err)
	}
	if parsed.Title != "OG Title" {
		t.Errorf("expected title 'OG Title', got %q", parsed.Title)
	}
}

func TestParseHTMLRemovesBoilerplate(t *testing.T) {
	html := `<html><head><title>T</title></head><body>
		<nav><p>Skip me</p></nav>
		<article><p>Keep me.</p></article>
		<footer><p>Skip me too</p></footer>
	</body></html>`
	parsed, err := ParseHTML([]byte(html))
	if err != nil {
		t.Fatalf("ParseHTML failed: %v", err)
	}
	if parsed.Text != "Keep me." {
		t.Errorf("expected only article text, got %q", parsed.Text)
	}
}

func TestParseHTMLFallsBackToFirstTenWordsForTitle(t *testing.T) {
	html := `<html><body><article><p>one two three four five six seven eight nine ten eleven twelve</p></article></body></html>`
	parsed, err := ParseHTML([]byte(html))
	if err != nil {
		t.Fatalf("ParseHTML failed: %v", err)
	}
	wantTitle := "one two three four five six seven eight nine ten"
	if parsed.Title != wantTitle {
		t.Errorf("expected fallback title %q, got %q", wantTitle, parsed.Title)
	}
}
