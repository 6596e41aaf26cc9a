// Package outline parses Markdown into a header tree of atomic blocks
// and splits that tree into bounded-size chunks. Parsing is a single
// forward scan over lines; it never fails on malformed input.
package outline

import (
	"regexp"
	"strings"
)

// BlockKind classifies an atomic block.
type BlockKind string

const (
	BlockParagraph BlockKind = "paragraph"
	BlockTable     BlockKind = "table"
	BlockCode      BlockKind = "code"
	BlockList      BlockKind = "list"
)

// Block is an atomic run of source lines. Blocks never split across
// chunks.
type Block struct {
	Kind BlockKind
	// Text holds the exact source lines joined with newlines.
	Text string
}

// Node is one section of the outline. The root has level 0 and no
// title; every other node is an ATX header with the blocks that
// precede its first child header.
type Node struct {
	Title    string
	Level    int
	Blocks   []Block
	Children []*Node
}

var (
	headerRe   = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	listItemRe = regexp.MustCompile(`^\s*([-*+]|\d+[.)])\s+`)
)

// Parse builds the outline for a Markdown document. Each header
// becomes a child of the nearest preceding header with a lower level.
// Fenced code and pipe tables are opaque: header lines inside them do
// not open sections. A fence left open at end of input closes
// implicitly.
func Parse(markdown string) *Node {
	root := &Node{}
	stack := []*Node{root}

	var cur []string
	var curKind BlockKind
	inFence := false
	fenceMarker := ""

	flush := func() {
		if len(cur) == 0 {
			return
		}
		text := strings.Join(cur, "\n")
		cur = nil
		if strings.TrimSpace(text) == "" {
			return
		}
		top := stack[len(stack)-1]
		top.Blocks = append(top.Blocks, Block{Kind: curKind, Text: text})
	}

	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)

		if inFence {
			cur = append(cur, line)
			if strings.HasPrefix(trimmed, fenceMarker) {
				inFence = false
				flush()
			}
			continue
		}

		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			flush()
			curKind = BlockCode
			cur = append(cur, line)
			inFence = true
			fenceMarker = trimmed[:3]
			continue
		}

		if m := headerRe.FindStringSubmatch(line); m != nil {
			flush()
			level := len(m[1])
			node := &Node{Title: strings.TrimSpace(m[2]), Level: level}
			for len(stack) > 1 && stack[len(stack)-1].Level >= level {
				stack = stack[:len(stack)-1]
			}
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, node)
			stack = append(stack, node)
			continue
		}

		if trimmed == "" {
			flush()
			continue
		}

		kind := classifyLine(line, trimmed, curKind, len(cur) > 0)
		if len(cur) > 0 && kind != curKind {
			flush()
		}
		curKind = kind
		cur = append(cur, line)
	}
	flush()

	return root
}

// classifyLine decides which block kind a line continues or opens.
// Indented lines under a list item stay part of that list.
func classifyLine(line, trimmed string, curKind BlockKind, inBlock bool) BlockKind {
	if strings.HasPrefix(trimmed, "|") {
		return BlockTable
	}
	if listItemRe.MatchString(line) {
		return BlockList
	}
	if inBlock && curKind == BlockList && strings.HasPrefix(line, "  ") {
		return BlockList
	}
	return BlockParagraph
}

// Walk visits every node depth-first, parents before children.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// BlockCount returns the number of blocks in the subtree.
func (n *Node) BlockCount() int {
	count := 0
	n.Walk(func(node *Node) {
		count += len(node.Blocks)
	})
	return count
}
