package policydoc

import (
	"regexp"
	"strconv"
	"strings"
)

// headingNumber matches an explicit dotted section number at the start of a
// heading, e.g. "3.2 Equipment Tiers" or "4. Software".
var headingNumber = regexp.MustCompile(`^(\d+(?:\.\d+)*)\.?\s+(.+)$`)

// treeBuilder assembles a PolicyDocument from a stream of headings and body
// blocks. Ingestors feed it in document order; Finish validates invariants.
type treeBuilder struct {
	doc   *PolicyDocument
	stack []builderEntry
}

type builderEntry struct {
	section *Section // nil for the document root
	level   int
}

func newTreeBuilder(title string) *treeBuilder {
	return &treeBuilder{
		doc:   &PolicyDocument{Title: title},
		stack: []builderEntry{{section: nil, level: 0}},
	}
}

// StartSection opens a new section at the given heading level. A heading
// whose text begins with a dotted number ("3.2 Equipment Tiers") keeps that
// ID; otherwise an ID is synthesized from its position in the tree. The
// first unnumbered level-1 heading becomes the document title instead.
func (b *treeBuilder) StartSection(level int, heading string, page int) {
	heading = strings.TrimSpace(heading)
	if heading == "" {
		return
	}

	id, title, explicit := splitHeadingNumber(heading)

	if !explicit && level == 1 && len(b.doc.Sections) == 0 && len(b.stack) == 1 {
		b.doc.Title = heading
		return
	}

	// Pop to the parent of this heading level.
	for len(b.stack) > 1 && b.stack[len(b.stack)-1].level >= level {
		b.stack = b.stack[:len(b.stack)-1]
	}
	parent := b.stack[len(b.stack)-1].section

	if !explicit {
		title = heading
		if parent == nil {
			id = strconv.Itoa(len(b.doc.Sections) + 1)
		} else {
			id = parent.ID + "." + strconv.Itoa(len(parent.Children)+1)
		}
	}

	sec := &Section{
		ID:    id,
		Title: title,
		Depth: strings.Count(id, ".") + 1,
		Page:  page,
	}
	if parent == nil {
		b.doc.Sections = append(b.doc.Sections, sec)
	} else {
		parent.Children = append(parent.Children, sec)
	}
	b.stack = append(b.stack, builderEntry{section: sec, level: level})
}

// AddProse appends a prose block to the current section. Text before the
// first section heading is dropped (preamble has no citable section ID).
func (b *treeBuilder) AddProse(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	cur := b.stack[len(b.stack)-1].section
	if cur == nil {
		return
	}
	cur.Blocks = append(cur.Blocks, Block{Prose: text})
}

// AddTable appends a table block to the current section.
func (b *treeBuilder) AddTable(t *Table) {
	if t == nil || len(t.Header) == 0 {
		return
	}
	cur := b.stack[len(b.stack)-1].section
	if cur == nil {
		return
	}
	cur.Blocks = append(cur.Blocks, Block{Table: t})
}

// Finish validates and returns the assembled document.
func (b *treeBuilder) Finish() (*PolicyDocument, error) {
	if err := b.doc.validate(); err != nil {
		return nil, err
	}
	return b.doc, nil
}

func splitHeadingNumber(heading string) (id, title string, explicit bool) {
	m := headingNumber.FindStringSubmatch(heading)
	if m == nil {
		return "", heading, false
	}
	return m[1], strings.TrimSpace(m[2]), true
}
