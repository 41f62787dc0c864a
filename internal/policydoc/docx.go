package policydoc

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fumiama/go-docx"
)

// DOCXIngestor handles .docx policy documents. Heading styles build the
// section tree; Word tables become table blocks.
type DOCXIngestor struct{}

func (p *DOCXIngestor) Ingest(r io.Reader, filename string) (*PolicyDocument, error) {
	// go-docx needs a ReadSeeker+size, so write to a temp file.
	tmp, err := os.CreateTemp("", "spendguard-docx-*.docx")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("seek temp file: %w", err)
	}

	doc, err := docx.Parse(tmp, int64(size))
	tmp.Close()
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	b := newTreeBuilder(strings.TrimSuffix(filename, ".docx"))
	var currentText strings.Builder

	flushText := func() {
		b.AddProse(currentText.String())
		currentText.Reset()
	}

	for _, item := range doc.Document.Body.Items {
		switch node := item.(type) {
		case *docx.Paragraph:
			level := docxHeadingLevel(node)
			text := docxParagraphText(node)
			if level > 0 && text != "" {
				flushText()
				b.StartSection(level, text, 0)
			} else if text != "" {
				if currentText.Len() > 0 {
					currentText.WriteString("\n\n")
				}
				currentText.WriteString(text)
			}

		case *docx.Table:
			flushText()
			tbl, err := docxTable(node)
			if err != nil {
				return nil, err
			}
			b.AddTable(tbl)
		}
	}
	flushText()

	return b.Finish()
}

// docxTable converts a Word table: first row is the header, remaining rows
// must match its width.
func docxTable(t *docx.Table) (*Table, error) {
	tbl := &Table{}
	for _, row := range t.TableRows {
		var cells []string
		for _, cell := range row.TableCells {
			var sb strings.Builder
			for _, para := range cell.Paragraphs {
				if sb.Len() > 0 {
					sb.WriteString(" ")
				}
				sb.WriteString(docxParagraphText(para))
			}
			cells = append(cells, strings.TrimSpace(sb.String()))
		}
		if len(cells) == 0 {
			continue
		}
		if tbl.Header == nil {
			tbl.Header = cells
		} else if len(cells) != len(tbl.Header) {
			return nil, &ParseError{Msg: fmt.Sprintf("ragged table: row has %d cells, header has %d", len(cells), len(tbl.Header))}
		} else {
			tbl.Rows = append(tbl.Rows, cells)
		}
	}
	if tbl.Header == nil {
		return nil, &ParseError{Msg: "table without header row"}
	}
	return tbl, nil
}

func docxHeadingLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := para.Properties.Style.Val
	for level := 1; level <= 6; level++ {
		if strings.EqualFold(style, fmt.Sprintf("Heading%d", level)) || strings.EqualFold(style, fmt.Sprintf("heading %d", level)) {
			return level
		}
	}
	return 0
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
