// Package render post-processes markup produced by the external rendering
// service: heading anchors for the table of contents and inline reference
// markers. It never converts markdown itself.
package render

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Heading is one table-of-contents entry derived from rendered markup.
type Heading struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Level int    `json:"level"`
}

// HeadingID returns the anchor id assigned to the heading at scan index i.
func HeadingID(i int) string {
	return fmt.Sprintf("heading-%d", i)
}

// ExtractHeadings lists the h1-h6 elements of markup in document order.
// Ids follow scan order, so they shift when headings are inserted or removed
// between renders.
func ExtractHeadings(markup string) []Heading {
	headings := []Heading{}
	nodes, ok := parseFragment(markup)
	if !ok {
		return headings
	}
	scanHeadings(nodes, func(_ *html.Node, h Heading) {
		headings = append(headings, h)
	})
	return headings
}

// StampHeadingIDs writes the ids ExtractHeadings would assign onto the
// heading elements and returns the re-serialized markup. Markup that cannot
// be processed is returned unchanged.
func StampHeadingIDs(markup string) string {
	nodes, ok := parseFragment(markup)
	if !ok {
		return markup
	}
	scanHeadings(nodes, func(n *html.Node, h Heading) {
		setAttr(n, "id", h.ID)
	})

	var buf strings.Builder
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return markup
		}
	}
	return buf.String()
}

func parseFragment(markup string) ([]*html.Node, bool) {
	if strings.TrimSpace(markup) == "" {
		return nil, false
	}
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), body)
	if err != nil {
		return nil, false
	}
	return nodes, true
}

// scanHeadings is the single traversal shared by extraction and stamping.
// Template contents are inert and never scanned.
func scanHeadings(nodes []*html.Node, visit func(*html.Node, Heading)) {
	index := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.DataAtom == atom.Template {
				return
			}
			if level := headingLevel(n); level > 0 {
				visit(n, Heading{ID: HeadingID(index), Text: TextContent(n), Level: level})
				index++
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
}

func headingLevel(n *html.Node) int {
	switch n.DataAtom {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	case atom.H6:
		return 6
	default:
		return 0
	}
}

// TextContent concatenates the text nodes below n.
func TextContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func setAttr(n *html.Node, key, value string) {
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}

// Attr returns the value of a namespace-less attribute on n, or "".
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}
