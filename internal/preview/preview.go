// Package preview renders extracted deck text for display.
package preview

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
)

type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatPlain    Format = "plain"
)

// ParseFormat maps a query value to a Format; empty means markdown.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatMarkdown:
		return FormatMarkdown, nil
	case FormatHTML:
		return FormatHTML, nil
	case FormatPlain:
		return FormatPlain, nil
	}
	return "", fmt.Errorf("unknown preview format %q", s)
}

// Heading is one entry of a deck outline.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// Preview is extracted text rendered in one format plus its outline.
type Preview struct {
	Format  Format    `json:"format"`
	Body    string    `json:"body"`
	Outline []Heading `json:"outline"`
}

var md = goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough))

// Render converts markdown source into the requested format.
func Render(src string, f Format) (Preview, error) {
	p := Preview{Format: f, Outline: Outline(src)}
	switch f {
	case FormatMarkdown:
		p.Body = src
	case FormatHTML:
		out, err := ToHTML(src)
		if err != nil {
			return Preview{}, err
		}
		p.Body = out
	case FormatPlain:
		out, err := ToPlain(src)
		if err != nil {
			return Preview{}, err
		}
		p.Body = out
	default:
		return Preview{}, fmt.Errorf("unknown preview format %q", f)
	}
	return p, nil
}

// ToHTML renders markdown. Raw HTML in the source is omitted.
func ToHTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// ToPlain renders markdown to HTML and keeps only the text, one block
// per paragraph.
func ToPlain(src string) (string, error) {
	rendered, err := ToHTML(src)
	if err != nil {
		return "", err
	}
	doc, err := html.Parse(strings.NewReader(rendered))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var blocks []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style":
				return
			case "p", "li", "td", "th", "blockquote", "pre", "h1", "h2", "h3", "h4", "h5", "h6":
				if t := textContent(n); t != "" {
					blocks = append(blocks, t)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(blocks, "\n\n"), nil
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

// Outline lists the headings of a markdown document in order.
func Outline(src string) []Heading {
	b := []byte(src)
	doc := md.Parser().Parse(text.NewReader(b))

	headings := []Heading{}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			if t := inlineText(h, b); t != "" {
				headings = append(headings, Heading{Level: h.Level, Text: t})
			}
		}
	}
	return headings
}

// inlineText gets the text content of a goldmark inline subtree.
func inlineText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
			continue
		}
		buf.WriteString(inlineText(c, src))
	}
	return strings.TrimSpace(buf.String())
}
