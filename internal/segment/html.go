package segment

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/mfurukawa/pagemill/internal/document"
)

// nonContentTags are removed from the DOM before segmentation.
var nonContentTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"iframe":   true,
	"svg":      true,
	"nav":      true,
	"header":   true,
	"footer":   true,
	"aside":    true,
}

// HTMLSegmenter splits a rendered page into top-level content
// subtrees. Each unit carries the subtree's serialized HTML plus a
// block-level text rendition for backends that work from text.
type HTMLSegmenter struct{}

func (s *HTMLSegmenter) Segment(data []byte, name string) ([]document.Unit, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &SegmentationError{Source: name, Err: fmt.Errorf("parse html: %w", err)}
	}

	stripNonContent(doc)

	root := findBody(doc)
	if root == nil {
		root = doc
	}

	candidates := contentChildren(root)
	// Unwrap single page-level containers so one wrapper div does not
	// collapse the whole document into a single unit.
	for len(candidates) == 1 {
		inner := contentChildren(candidates[0])
		if len(inner) < 2 {
			break
		}
		candidates = inner
	}

	units := make([]document.Unit, 0, len(candidates))
	for _, n := range candidates {
		text := unitText(n)
		if text == "" {
			continue
		}
		units = append(units, document.Unit{
			Index: len(units),
			Text:  text,
			Raw:   renderNode(n),
		})
	}
	if len(units) == 0 {
		// Bare text directly under body, with no element children.
		if t := textContent(root); t != "" {
			return []document.Unit{{Index: 0, Text: t, Raw: renderNode(root)}}, nil
		}
		return nil, &SegmentationError{Source: name, Err: errors.New("no textual content after cleanup")}
	}
	return units, nil
}

func stripNonContent(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if c.Type == html.ElementNode && nonContentTags[c.Data] {
			n.RemoveChild(c)
			continue
		}
		stripNonContent(c)
	}
}

// contentChildren returns element children that contain any text.
func contentChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if textContent(c) == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// unitText renders a subtree as block-separated text, with heading
// tags prefixed at their level so structure survives for text-only
// backends.
func unitText(n *html.Node) string {
	var blocks []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if level := headingLevel(n.Data); level > 0 {
				if t := textContent(n); t != "" {
					blocks = append(blocks, strings.Repeat("#", level)+" "+t)
				}
				return
			}
			switch n.Data {
			case "p", "li", "td", "th", "blockquote", "pre":
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
	walk(n)
	if len(blocks) == 0 {
		if t := textContent(n); t != "" {
			return t
		}
	}
	return strings.Join(blocks, "\n\n")
}

func renderNode(n *html.Node) []byte {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return nil
	}
	return buf.Bytes()
}

func headingLevel(tag string) int {
	switch tag {
	case "h1":
		return 1
	case "h2":
		return 2
	case "h3":
		return 3
	case "h4":
		return 4
	case "h5":
		return 5
	case "h6":
		return 6
	}
	return 0
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

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
