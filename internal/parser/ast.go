package parser

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// CodeBlock represents a parsed code block from markdown content.
type CodeBlock struct {
	// Hint is the raw last line of the block immediately preceding the code
	// block, backticks included.
	Hint string
	// Lang is the language identifier of the code block (e.g., "swift", "diff").
	Lang string
	// Content is the raw text inside the code block.
	Content string
}

// document is a parsed markdown response.
type document struct {
	source []byte
	root   ast.Node
}

func parseDocument(source []byte) document {
	return document{
		source: source,
		root:   goldmark.DefaultParser().Parse(text.NewReader(source)),
	}
}

// rawLines returns the source lines of a leaf block as written, so inline
// markup such as backticks and emphasis markers survive.
func (d document) rawLines(n ast.Node) []string {
	lines := n.Lines()
	out := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		out = append(out, strings.TrimRight(string(seg.Value(d.source)), "\r\n"))
	}
	return out
}

// codeBlocks finds all fenced code blocks and the hint line before each.
func (d document) codeBlocks() ([]CodeBlock, error) {
	var blocks []CodeBlock
	walker := func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		fenced, ok := node.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		block := CodeBlock{Lang: string(fenced.Language(d.source))}

		var content bytes.Buffer
		lines := fenced.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			content.Write(line.Value(d.source))
		}
		block.Content = content.String()

		if prev := fenced.PreviousSibling(); prev != nil {
			switch prev.(type) {
			case *ast.Paragraph, *ast.TextBlock, *ast.Heading:
				if raw := d.rawLines(prev); len(raw) > 0 {
					block.Hint = strings.TrimSpace(raw[len(raw)-1])
				}
			}
		}

		blocks = append(blocks, block)
		return ast.WalkSkipChildren, nil
	}

	if err := ast.Walk(d.root, walker); err != nil {
		return nil, err
	}
	return blocks, nil
}

// proseLines returns the raw lines of every paragraph, heading and list
// text block, skipping code.
func (d document) proseLines() ([]string, error) {
	var out []string
	walker := func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.TextBlock, *ast.Heading:
			out = append(out, d.rawLines(node)...)
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	}
	if err := ast.Walk(d.root, walker); err != nil {
		return nil, err
	}
	return out, nil
}

// section is the content under one heading, up to the next heading.
type section struct {
	Title string
	Level int
	Text  string
	Items []string
}

func (d document) sections() []section {
	var out []section
	var cur *section
	var body []ast.Node

	flush := func() {
		if cur == nil {
			return
		}
		cur.Text = strings.TrimSpace(d.blockText(body))
		for _, n := range body {
			if list, ok := n.(*ast.List); ok {
				cur.Items = append(cur.Items, d.listItems(list)...)
			}
		}
		out = append(out, *cur)
		cur, body = nil, nil
	}

	for n := d.root.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			flush()
			cur = &section{Title: strings.TrimSpace(strings.Join(d.rawLines(h), " ")), Level: h.Level}
			continue
		}
		if cur != nil {
			body = append(body, n)
		}
	}
	flush()
	return out
}

// blockText reassembles the raw text of nodes, one paragraph per block.
func (d document) blockText(nodes []ast.Node) string {
	var parts []string
	for _, n := range nodes {
		switch n := n.(type) {
		case *ast.List:
			for _, item := range d.listItems(n) {
				parts = append(parts, "- "+item)
			}
		case *ast.FencedCodeBlock:
			// code belongs to file changes, not prose
		default:
			if n.Type() == ast.TypeBlock && n.Lines().Len() > 0 {
				parts = append(parts, strings.Join(d.rawLines(n), "\n"))
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

func (d document) listItems(list *ast.List) []string {
	var items []string
	for li := list.FirstChild(); li != nil; li = li.NextSibling() {
		var words []string
		for c := li.FirstChild(); c != nil; c = c.NextSibling() {
			switch c.(type) {
			case *ast.Paragraph, *ast.TextBlock:
				words = append(words, d.rawLines(c)...)
			}
		}
		if item := strings.TrimSpace(strings.Join(words, " ")); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// firstHeading returns the text of the first level-1 heading.
func (d document) firstHeading() string {
	for n := d.root.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok && h.Level == 1 {
			return strings.TrimSpace(strings.Join(d.rawLines(h), " "))
		}
	}
	return ""
}
