package policydoc

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownIngestor parses Markdown policy documents using goldmark with the
// GFM table extension enabled.
type MarkdownIngestor struct{}

func (p *MarkdownIngestor) Ingest(r io.Reader, filename string) (*PolicyDocument, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	reader := text.NewReader(src)
	doc := md.Parser().Parse(reader)

	b := newTreeBuilder(strings.TrimSuffix(strings.TrimSuffix(filename, ".md"), ".markdown"))
	var currentText bytes.Buffer

	flushText := func() {
		b.AddProse(currentText.String())
		currentText.Reset()
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			flushText()
			b.StartSection(node.Level, string(node.Text(src)), 0)

		case *east.Table:
			flushText()
			tbl, err := markdownTable(node, src)
			if err != nil {
				return nil, err
			}
			b.AddTable(tbl)

		default:
			t := extractText(n, src)
			if t != "" {
				if currentText.Len() > 0 {
					currentText.WriteString("\n\n")
				}
				currentText.WriteString(t)
			}
		}
	}
	flushText()

	return b.Finish()
}

// markdownTable converts a goldmark table node into a Table, checking that
// every data row matches the header's column count.
func markdownTable(node *east.Table, src []byte) (*Table, error) {
	tbl := &Table{}
	for row := node.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, strings.TrimSpace(string(cell.Text(src))))
		}
		switch row.(type) {
		case *east.TableHeader:
			tbl.Header = cells
		case *east.TableRow:
			if len(tbl.Header) > 0 && len(cells) != len(tbl.Header) {
				return nil, &ParseError{Msg: fmt.Sprintf("ragged table: row has %d cells, header has %d", len(cells), len(tbl.Header))}
			}
			tbl.Rows = append(tbl.Rows, cells)
		}
	}
	if len(tbl.Header) == 0 {
		return nil, &ParseError{Msg: "table without header row"}
	}
	return tbl, nil
}

// extractText gets the text content of a goldmark AST node.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
	}
	// Also handle inline children.
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		} else {
			buf.WriteString(extractText(c, src))
		}
	}
	return strings.TrimSpace(buf.String())
}
