package policydoc

import (
	"fmt"
	"strings"
)

// PolicyDocument is the root of a parsed policy document.
type PolicyDocument struct {
	Title    string     // Document title (from first unnumbered heading or filename)
	Sections []*Section // Top-level numbered sections
}

// Section is a recursive node in the policy tree. Section IDs are dotted
// numeric identifiers ("3.2") where a child's ID extends its parent's.
type Section struct {
	ID       string
	Title    string
	Depth    int // number of dotted components in ID
	Page     int // source page (0 if N/A)
	Blocks   []Block
	Children []*Section
}

// Block is one body element of a section: either prose or a table.
type Block struct {
	Prose string // non-empty for prose blocks
	Table *Table // non-nil for table blocks
}

// Table is a rectangular grid with a header row. Every data row has the
// same column count as the header.
type Table struct {
	Header []string
	Rows   [][]string
}

// ParseError reports a malformed document: inconsistent heading numbering
// or a ragged table. A corpus load that hits one is abandoned; the
// previously active version stays in place.
type ParseError struct {
	SectionID string
	Msg       string
}

func (e *ParseError) Error() string {
	if e.SectionID != "" {
		return fmt.Sprintf("parse error in section %s: %s", e.SectionID, e.Msg)
	}
	return "parse error: " + e.Msg
}

// Section finds a section by ID anywhere in the tree. Returns nil if absent.
func (d *PolicyDocument) Section(id string) *Section {
	var found *Section
	d.Walk(func(s *Section) {
		if s.ID == id {
			found = s
		}
	})
	return found
}

// Walk visits every section depth-first in document order.
func (d *PolicyDocument) Walk(fn func(*Section)) {
	var walk func(ss []*Section)
	walk = func(ss []*Section) {
		for _, s := range ss {
			fn(s)
			walk(s.Children)
		}
	}
	walk(d.Sections)
}

// Cell addresses a table cell by (section ID, row key, column name). The
// row key matches against the first column; the column name matches the
// header case-insensitively.
func (d *PolicyDocument) Cell(sectionID, rowKey, columnName string) (string, bool) {
	sec := d.Section(sectionID)
	if sec == nil {
		return "", false
	}
	for _, b := range sec.Blocks {
		if b.Table == nil {
			continue
		}
		col := -1
		for i, h := range b.Table.Header {
			if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(columnName)) {
				col = i
				break
			}
		}
		if col < 0 {
			continue
		}
		for _, row := range b.Table.Rows {
			if len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), strings.TrimSpace(rowKey)) {
				return row[col], true
			}
		}
	}
	return "", false
}

// Prose returns the section's prose blocks concatenated in order.
func (s *Section) Prose() string {
	var sb strings.Builder
	for _, b := range s.Blocks {
		if b.Prose == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(b.Prose)
	}
	return sb.String()
}

// validate checks the structural invariants: unique section IDs, child IDs
// that are dotted extensions of their parents, and rectangular tables.
func (d *PolicyDocument) validate() error {
	seen := make(map[string]bool)
	var check func(parent string, ss []*Section) error
	check = func(parent string, ss []*Section) error {
		for _, s := range ss {
			if seen[s.ID] {
				return &ParseError{SectionID: s.ID, Msg: "duplicate section id"}
			}
			seen[s.ID] = true
			if parent != "" && !strings.HasPrefix(s.ID, parent+".") {
				return &ParseError{SectionID: s.ID, Msg: fmt.Sprintf("child id does not extend parent %s", parent)}
			}
			for _, b := range s.Blocks {
				if b.Table == nil {
					continue
				}
				if len(b.Table.Header) == 0 {
					return &ParseError{SectionID: s.ID, Msg: "table without header row"}
				}
				for i, row := range b.Table.Rows {
					if len(row) != len(b.Table.Header) {
						return &ParseError{
							SectionID: s.ID,
							Msg:       fmt.Sprintf("ragged table: row %d has %d cells, header has %d", i+1, len(row), len(b.Table.Header)),
						}
					}
				}
			}
			if err := check(s.ID, s.Children); err != nil {
				return err
			}
		}
		return nil
	}
	return check("", d.Sections)
}
