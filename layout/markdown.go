package layout

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderMarkdown converts Markdown to HTML with goldmark and lays it out.
// Raw HTML inside the Markdown is not passed through.
func (e *Engine) RenderMarkdown(source string) error {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(source), &buf); err != nil {
		return fmt.Errorf("markdown: %w", err)
	}
	return e.RenderHTML(buf.String())
}
