// Package ingest turns raw documents into the two-tier retrieval hierarchy:
// large parent sections persisted for context and small overlapping child
// fragments destined for the hybrid index.
package ingest

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
	"golang.org/x/text/unicode/norm"

	"github.com/docent-ai/docent"
)

// Default sizing for the parent/child hierarchy, in characters.
const (
	DefaultMinParentSize = 2000
	DefaultMaxParentSize = 10000
	DefaultChildSize     = 500
	DefaultChildOverlap  = 100
)

// headingPathSep joins heading titles when small sections merge, so the
// metadata keeps the full heading trail (e.g. "Introduction -> Background").
const headingPathSep = " -> "

// ChunkerOption configures a HierarchicalChunker.
type ChunkerOption func(*HierarchicalChunker)

// WithParentBounds sets the min/max parent section size in characters.
func WithParentBounds(minSize, maxSize int) ChunkerOption {
	return func(c *HierarchicalChunker) {
		if minSize > 0 {
			c.minParent = minSize
		}
		if maxSize > 0 {
			c.maxParent = maxSize
		}
	}
}

// WithChildSizing sets the fragment size and overlap in characters.
func WithChildSizing(size, overlap int) ChunkerOption {
	return func(c *HierarchicalChunker) {
		if size > 0 {
			c.childSize = size
		}
		if overlap >= 0 {
			c.childOverlap = overlap
		}
	}
}

// HierarchicalChunker splits a document into parent sections and child
// fragments.
//
// The initial split follows markdown structure: heading levels 1-3 open a
// new section, the heading line stays in the section content, and the
// heading title is recorded under the H1/H2/H3 metadata keys. Structural
// sections are then normalized in three passes: small sections merge forward
// until they reach the minimum, oversized sections re-split with the
// fixed-size splitter, and stragglers produced by that split merge into a
// neighbor. Finally each parent's content is cut into overlapping fragments
// tagged with the parent's ID.
type HierarchicalChunker struct {
	minParent    int
	maxParent    int
	childSize    int
	childOverlap int
}

// NewHierarchicalChunker creates a chunker with the given options.
func NewHierarchicalChunker(opts ...ChunkerOption) *HierarchicalChunker {
	c := &HierarchicalChunker{
		minParent:    DefaultMinParentSize,
		maxParent:    DefaultMaxParentSize,
		childSize:    DefaultChildSize,
		childOverlap: DefaultChildOverlap,
	}
	for _, o := range opts {
		o(c)
	}
	if c.childOverlap >= c.childSize {
		c.childOverlap = c.childSize / 5
	}
	return c
}

// section is an intermediate chunk between the structural split and parent
// finalization.
type section struct {
	content  string
	metadata map[string]string
}

// Chunk splits a document into finalized parent sections and their child
// fragments. docName (typically the file stem) seeds the deterministic
// parent IDs and the source metadata, so re-ingesting the same document
// overwrites its previous records instead of duplicating them.
func (c *HierarchicalChunker) Chunk(docName, text string) ([]docent.ParentSection, []docent.ChildFragment) {
	text = norm.NFC.String(strings.TrimSpace(text))
	if text == "" {
		return nil, nil
	}

	sections := splitStructural(text)
	sections = c.mergeSmall(sections)
	sections = c.splitLarge(sections)
	sections = c.cleanSmall(sections)

	parents := make([]docent.ParentSection, 0, len(sections))
	var fragments []docent.ChildFragment
	for i, sec := range sections {
		parentID := fmt.Sprintf("%s_parent_%d", docName, i)
		meta := make(map[string]string, len(sec.metadata)+1)
		for k, v := range sec.metadata {
			meta[k] = v
		}
		meta[docent.MetaSource] = docName
		parents = append(parents, docent.ParentSection{
			ID:       parentID,
			Content:  sec.content,
			Metadata: meta,
		})

		for j, piece := range splitText(sec.content, c.childSize, c.childOverlap) {
			fragments = append(fragments, docent.ChildFragment{
				ID:      fmt.Sprintf("%s_child_%d", parentID, j),
				Content: piece,
				Metadata: map[string]string{
					docent.MetaParentID: parentID,
					docent.MetaSource:   docName,
				},
			})
		}
	}
	return parents, fragments
}

var mdParser = goldmark.New()

// splitStructural cuts the document at level 1-3 markdown headings. The
// heading line opens its section and its title lands in the H<level>
// metadata key. Text before the first heading becomes an untitled leading
// section.
func splitStructural(text string) []section {
	src := []byte(text)
	doc := mdParser.Parser().Parse(gmtext.NewReader(src))

	type mark struct {
		start int
		level int
		title string
	}
	var marks []mark
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		if h.Level > 3 || h.Lines().Len() == 0 {
			return ast.WalkSkipChildren, nil
		}
		// Back up from the heading text to the start of its line so the
		// marker characters stay with the section content.
		start := h.Lines().At(0).Start
		for start > 0 && src[start-1] != '\n' {
			start--
		}
		marks = append(marks, mark{
			start: start,
			level: h.Level,
			title: headingTitle(h, src),
		})
		return ast.WalkSkipChildren, nil
	})

	if len(marks) == 0 {
		return []section{{content: text, metadata: map[string]string{}}}
	}

	var sections []section
	if pre := strings.TrimSpace(text[:marks[0].start]); pre != "" {
		sections = append(sections, section{content: pre, metadata: map[string]string{}})
	}
	for i, m := range marks {
		end := len(text)
		if i+1 < len(marks) {
			end = marks[i+1].start
		}
		content := strings.TrimSpace(text[m.start:end])
		if content == "" {
			continue
		}
		sections = append(sections, section{
			content:  content,
			metadata: map[string]string{fmt.Sprintf("H%d", m.level): m.title},
		})
	}
	return sections
}

func headingTitle(h *ast.Heading, src []byte) string {
	var b strings.Builder
	for n := h.FirstChild(); n != nil; n = n.NextSibling() {
		if t, ok := n.(*ast.Text); ok {
			b.Write(t.Segment.Value(src))
		}
	}
	return strings.TrimSpace(b.String())
}

// mergeSmall accumulates sections in order until the buffer reaches the
// minimum parent size, then emits it. A trailing buffer below the minimum is
// folded into the previously emitted parent, unless it would be the only
// parent.
func (c *HierarchicalChunker) mergeSmall(sections []section) []section {
	var out []section
	var buf *section
	for _, sec := range sections {
		if buf == nil {
			s := sec
			buf = &s
		} else {
			buf.content = buf.content + "\n\n" + sec.content
			buf.metadata = mergeMetadata(buf.metadata, sec.metadata)
		}
		if len(buf.content) >= c.minParent {
			out = append(out, *buf)
			buf = nil
		}
	}
	if buf != nil {
		if len(out) == 0 {
			return []section{*buf}
		}
		last := &out[len(out)-1]
		last.content = last.content + "\n\n" + buf.content
		last.metadata = mergeMetadata(last.metadata, buf.metadata)
	}
	return out
}

// mergeMetadata folds incoming into base: keys present in both concatenate
// with the heading path separator, new keys copy over.
func mergeMetadata(base, incoming map[string]string) map[string]string {
	for k, v := range incoming {
		if prev, ok := base[k]; ok && prev != "" && v != "" && prev != v {
			base[k] = prev + headingPathSep + v
		} else if v != "" {
			base[k] = v
		}
	}
	return base
}

// splitLarge re-splits any section above the maximum parent size with the
// fixed-size splitter, reusing the child overlap so no boundary text is
// lost. Split pieces inherit the section's metadata.
func (c *HierarchicalChunker) splitLarge(sections []section) []section {
	var out []section
	for _, sec := range sections {
		if len(sec.content) <= c.maxParent {
			out = append(out, sec)
			continue
		}
		for _, piece := range splitText(sec.content, c.maxParent, c.childOverlap) {
			out = append(out, section{content: piece, metadata: copyMetadata(sec.metadata)})
		}
	}
	return out
}

// cleanSmall merges sections left under the minimum by splitLarge into a
// neighbor: the previous section when one exists, otherwise the next.
func (c *HierarchicalChunker) cleanSmall(sections []section) []section {
	var out []section
	for i := 0; i < len(sections); i++ {
		sec := sections[i]
		if len(sec.content) >= c.minParent || len(sections) == 1 {
			out = append(out, sec)
			continue
		}
		if len(out) > 0 {
			prev := &out[len(out)-1]
			if len(prev.content)+len(sec.content) <= c.maxParent || i+1 >= len(sections) {
				prev.content = prev.content + "\n\n" + sec.content
				prev.metadata = mergeMetadata(prev.metadata, sec.metadata)
				continue
			}
		}
		if i+1 < len(sections) {
			next := &sections[i+1]
			next.content = sec.content + "\n\n" + next.content
			next.metadata = mergeMetadata(copyMetadata(sec.metadata), next.metadata)
			continue
		}
		out = append(out, sec)
	}
	return out
}

func copyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
