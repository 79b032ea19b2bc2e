package vault

import (
	"slices"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/elcuervo/otx/internal/cache"
	"github.com/elcuervo/otx/internal/task"
)

var markdown = goldmark.New()

// ParseMetadata returns the top-level sections of a markdown document and
// every list item in it, checklist items flagged.
func ParseMetadata(source []byte) *cache.Metadata {
	doc := markdown.Parser().Parse(text.NewReader(source))

	lines := strings.Split(string(source), "\n")
	starts := lineStarts(source)
	lineOf := func(offset int) int {
		i, found := slices.BinarySearch(starts, offset)
		if !found {
			i--
		}
		return max(i, 0)
	}

	md := &cache.Metadata{}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		start, stop, ok := span(n)
		if !ok {
			continue
		}
		md.Sections = append(md.Sections, cache.Section{
			Type:  sectionType(n),
			Start: lineOf(start),
			End:   lineOf(max(stop-1, start)),
		})
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindListItem {
			return ast.WalkContinue, nil
		}

		start, _, ok := span(n)
		if !ok {
			return ast.WalkContinue, nil
		}

		line := lineOf(start)
		md.ListItems = append(md.ListItems, cache.ListItem{
			Line: line,
			Task: line < len(lines) && task.IsChecklist(lines[line]),
		})

		return ast.WalkContinue, nil
	})

	return md
}

func lineStarts(source []byte) []int {
	starts := []int{0}
	for i, b := range source {
		if b == '\n' && i+1 < len(source) {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// span returns the byte range covered by the lines of a block and its block
// descendants. Containers like lists carry no lines of their own.
func span(n ast.Node) (start, stop int, ok bool) {
	start, stop = -1, -1

	var visit func(ast.Node)
	visit = func(n ast.Node) {
		if n.Type() != ast.TypeBlock {
			return
		}

		if lines := n.Lines(); lines != nil && lines.Len() > 0 {
			first, last := lines.At(0), lines.At(lines.Len()-1)
			if start < 0 || first.Start < start {
				start = first.Start
			}
			if last.Stop > stop {
				stop = last.Stop
			}
		}

		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			visit(c)
		}
	}
	visit(n)

	return start, stop, start >= 0
}

func sectionType(n ast.Node) string {
	switch n.Kind() {
	case ast.KindList:
		return cache.SectionList
	case ast.KindHeading:
		return cache.SectionHeading
	case ast.KindParagraph, ast.KindTextBlock:
		return "paragraph"
	case ast.KindFencedCodeBlock, ast.KindCodeBlock:
		return "code"
	case ast.KindBlockquote:
		return "blockquote"
	case ast.KindHTMLBlock:
		return "html"
	default:
		return strings.ToLower(n.Kind().String())
	}
}
