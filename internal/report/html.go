package report

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// Renderer converts markdown reports into standalone HTML pages.
type Renderer struct {
	md   goldmark.Markdown
	page *template.Template
}

// NewRenderer creates a Renderer with GFM tables and syntax highlighting.
// Raw HTML in reports is escaped since they embed model output.
func NewRenderer() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Renderer{
		md:   md,
		page: template.Must(template.New("report").Parse(pageTemplate)),
	}
}

// HTML renders markdown as a full HTML page titled title.
func (r *Renderer) HTML(title, markdown string) ([]byte, error) {
	var body bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &body); err != nil {
		return nil, fmt.Errorf("converting markdown: %w", err)
	}

	var out bytes.Buffer
	err := r.page.Execute(&out, struct {
		Title   string
		Content template.HTML
	}{Title: title, Content: template.HTML(body.String())})
	if err != nil {
		return nil, fmt.Errorf("rendering page: %w", err)
	}
	return out.Bytes(), nil
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{.Title}}</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; max-width: 60rem; margin: 2rem auto; padding: 0 1rem; line-height: 1.55; color: #1f2328; }
    pre { padding: 1rem; overflow-x: auto; border-radius: 6px; background: #f6f8fa; }
    blockquote { margin: 0; padding-left: 1rem; border-left: 4px solid #d0d7de; color: #59636e; }
    hr { border: 0; border-top: 1px solid #d0d7de; margin: 2rem 0; }
  </style>
</head>
<body>
<article>
{{.Content}}
</article>
</body>
</html>`
