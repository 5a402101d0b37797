package preview

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/mdddj/blog-new-sub000/internal/render"
)

// TriggerClass marks an element as an image preview trigger.
const TriggerClass = "image-preview-trigger"

// TriggerInfo describes a trigger found in markup.
type TriggerInfo struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// FindTriggers lists elements with the trigger class in document order. URL
// is the data-preview-url attribute and may be empty.
func FindTriggers(markup string) []TriggerInfo {
	found := []TriggerInfo{}
	if strings.TrimSpace(markup) == "" {
		return found
	}
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), body)
	if err != nil {
		return found
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Template {
			return
		}
		if n.Type == html.ElementNode && hasClass(n, TriggerClass) {
			found = append(found, TriggerInfo{Text: render.TextContent(n), URL: render.Attr(n, "data-preview-url")})
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return found
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(render.Attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}
