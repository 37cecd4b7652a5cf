package structure

import "testing"

const pageHTML = `<html lang="en">
<head><title>Example Page</title></head>
<body>
  <header><h1>Site Header</h1></header>
  <nav class="navbar">
    <a href="/home">Home</a>
    <a href="/about">About</a>
  </nav>
  <main>
    <article>
      <h2>Article Heading</h2>
      <p>Some body text in the article that goes on for a while.</p>
      <a href="https://other.example/ref">External ref</a>
      <a href="/local">Local link</a>
    </article>
  </main>
  <form id="signup" method="post" action="/signup">
    <input type="email" name="email" required>
    <input type="text" name="name">
    <textarea name="bio"></textarea>
  </form>
  <footer>Copyright</footer>
</body>
</html>`

func TestAnalyze_Basics(t *testing.T) {
	ps, err := Analyze(pageHTML, "https://example.com/start")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ps.Title != "Example Page" {
		t.Errorf("expected title 'Example Page', got %q", ps.Title)
	}
	if ps.Language != "en" {
		t.Errorf("expected language 'en', got %q", ps.Language)
	}
}

func TestAnalyze_Sections(t *testing.T) {
	ps, err := Analyze(pageHTML, "https://example.com/start")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tags := map[string]bool{}
	for _, s := range ps.Sections {
		tags[s.Tag] = true
	}
	for _, want := range []string{"header", "nav", "main", "article", "footer"} {
		if !tags[want] {
			t.Errorf("expected section tag %q to be found, got %+v", want, ps.Sections)
		}
	}
}

func TestAnalyze_SectionHeadingAndLinksCount(t *testing.T) {
	ps, err := Analyze(pageHTML, "https://example.com/start")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, s := range ps.Sections {
		if s.Tag == "article" {
			if s.Heading != "Article Heading" {
				t.Errorf("expected article heading, got %q", s.Heading)
			}
			if s.LinksCount != 2 {
				t.Errorf("expected 2 links in article, got %d", s.LinksCount)
			}
		}
	}
}

func TestAnalyze_Navigation(t *testing.T) {
	ps, err := Analyze(pageHTML, "https://example.com/start")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ps.Navigation) != 2 {
		t.Fatalf("expected 2 nav links, got %d: %+v", len(ps.Navigation), ps.Navigation)
	}
}

func TestAnalyze_LinkPartitioning(t *testing.T) {
	ps, err := Analyze(pageHTML, "https://example.com/start")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	foundExternal := false
	for _, l := range ps.ExternalLinks {
		if l.URL == "https://other.example/ref" {
			foundExternal = true
		}
	}
	if !foundExternal {
		t.Errorf("expected external link to be categorized, got %+v", ps.ExternalLinks)
	}
	foundInternal := false
	for _, l := range ps.InternalLinks {
		if l.URL == "https://example.com/local" {
			foundInternal = true
		}
	}
	if !foundInternal {
		t.Errorf("expected internal link to be categorized, got %+v", ps.InternalLinks)
	}
}

func TestAnalyze_Forms(t *testing.T) {
	ps, err := Analyze(pageHTML, "https://example.com/start")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ps.Forms) != 1 {
		t.Fatalf("expected 1 form, got %d", len(ps.Forms))
	}
	f := ps.Forms[0]
	if f.Method != "POST" {
		t.Errorf("expected method upper-cased to POST, got %q", f.Method)
	}
	if len(f.Fields) != 3 {
		t.Fatalf("expected 3 fields, got %d: %+v", len(f.Fields), f.Fields)
	}
	if !f.Fields[0].Required {
		t.Errorf("expected email field to be required")
	}
}

func TestAnalyze_FormDefaultMethodIsGet(t *testing.T) {
	html := `<html><body><form action="/search"><input type="text" name="q"></form></body></html>`
	ps, err := Analyze(html, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ps.Forms[0].Method != "GET" {
		t.Errorf("expected default method GET, got %q", ps.Forms[0].Method)
	}
}

func TestAnalyze_Outline(t *testing.T) {
	ps, err := Analyze(pageHTML, "https://example.com/start")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ps.Outline) != 2 {
		t.Fatalf("expected 2 headings in outline, got %d: %+v", len(ps.Outline), ps.Outline)
	}
	if ps.Outline[0].Level != 1 || ps.Outline[1].Level != 2 {
		t.Errorf("expected h1 before h2 in outline, got %+v", ps.Outline)
	}
}

func TestAnalyze_TextPreviewTruncates(t *testing.T) {
	long := ""
	for i := 0; i < 60; i++ {
		long += "word "
	}
	html := `<html><body><section>` + long + `</section></body></html>`
	ps, err := Analyze(html, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, s := range ps.Sections {
		if s.Tag == "section" {
			found = true
			if len(s.TextPreview) > 203 {
				t.Errorf("expected preview truncated to ~200 chars + ellipsis, got length %d", len(s.TextPreview))
			}
		}
	}
	if !found {
		t.Fatalf("expected a section tag entry")
	}
}
