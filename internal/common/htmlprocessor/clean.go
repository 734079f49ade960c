// Package htmlprocessor prepares rendered page HTML for text conversion.
package htmlprocessor

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// nonContentElements carry no readable text
var nonContentElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Canvas:   true,
	atom.Object:   true,
	atom.Embed:    true,
	atom.Link:     true,
	atom.Meta:     true,
}

// CleanBody parses a body fragment, drops non-content elements and comments,
// and re-serializes the <body> element.
func CleanBody(bodyHTML string) (string, error) {
	doc, err := html.Parse(strings.NewReader(bodyHTML))
	if err != nil {
		return "", fmt.Errorf("failed to parse body HTML: %w", err)
	}

	body := findElement(doc, atom.Body)
	if body == nil {
		return "", fmt.Errorf("document has no body element")
	}

	removeNonContent(body)

	var buf bytes.Buffer
	if err := html.Render(&buf, body); err != nil {
		return "", fmt.Errorf("failed to render body HTML: %w", err)
	}
	return buf.String(), nil
}

func findElement(node *html.Node, a atom.Atom) *html.Node {
	if node.Type == html.ElementNode && node.DataAtom == a {
		return node
	}
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func isNonContent(node *html.Node) bool {
	switch node.Type {
	case html.CommentNode:
		return true
	case html.ElementNode:
		// Foreign elements (inside svg) have no atom for their own names
		return nonContentElements[node.DataAtom] || strings.EqualFold(node.Data, "svg")
	}
	return false
}

func removeNonContent(parent *html.Node) int {
	removed := 0
	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		if isNonContent(c) {
			parent.RemoveChild(c)
			removed++
		} else {
			removed += removeNonContent(c)
		}
		c = next
	}
	return removed
}
