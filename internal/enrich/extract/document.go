// Package extract pulls person-like contacts, business emails and crawl
// targets out of fetched HTML.
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a parsed page. Visible text is computed once at parse time.
type Document struct {
	URL  string
	HTML string

	doc  *goquery.Document
	text string
}

// Parse builds a Document. An empty body yields an empty, usable Document.
func Parse(pageURL, rawHTML string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	d := &Document{URL: pageURL, HTML: rawHTML, doc: doc}
	var b strings.Builder
	for _, n := range doc.Nodes {
		writeVisible(&b, n)
	}
	d.text = b.String()
	return d, nil
}

// Text returns the page's visible text with block elements on their own lines.
func (d *Document) Text() string {
	if d == nil {
		return ""
	}
	return d.text
}

// Lines returns the trimmed, non-empty lines of the visible text.
func (d *Document) Lines() []string {
	return splitLines(d.Text())
}

var hiddenAtoms = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Iframe:   true,
}

var blockAtoms = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Br: true, atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Figcaption: true, atom.Figure: true, atom.Footer: true, atom.Form: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Li: true, atom.Main: true, atom.Nav: true,
	atom.Ol: true, atom.P: true, atom.Pre: true, atom.Section: true, atom.Table: true,
	atom.Td: true, atom.Th: true, atom.Tr: true, atom.Ul: true,
}

func writeVisible(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if hiddenAtoms[n.DataAtom] {
			return
		}
	case html.CommentNode, html.DoctypeNode:
		return
	}
	block := n.Type == html.ElementNode && blockAtoms[n.DataAtom]
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeVisible(b, c)
	}
	if block {
		b.WriteByte('\n')
	}
}

// nodeText is the visible text of n collapsed to single spaces.
func nodeText(n *html.Node) string {
	var b strings.Builder
	writeVisible(&b, n)
	return collapse(b.String())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		l = collapse(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}
