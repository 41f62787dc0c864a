package policydoc

import (
	"fmt"
	"io"
	"strings"
)

// PlainTextIngestor parses plain-text policy documents. Section headings are
// lines that start with a dotted number ("3.2 Equipment Tiers"); tables are
// runs of pipe-delimited lines with an optional dashed separator row. Pages
// are delimited by form feeds, which is what the PDF text extractor emits.
type PlainTextIngestor struct{}

func (p *PlainTextIngestor) Ingest(r io.Reader, filename string) (*PolicyDocument, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSuffix(filename, ".txt")
	return parsePlainText(string(src), title)
}

func parsePlainText(src, title string) (*PolicyDocument, error) {
	b := newTreeBuilder(title)
	page := 1

	var para []string
	flushPara := func() {
		if len(para) > 0 {
			b.AddProse(strings.Join(para, " "))
			para = nil
		}
	}

	seenContent := false
	lines := strings.Split(src, "\n")
	for i := 0; i < len(lines); i++ {
		if strings.Contains(lines[i], "\f") {
			page += strings.Count(lines[i], "\f")
			flushPara()
		}
		line := strings.TrimSpace(strings.ReplaceAll(lines[i], "\f", " "))

		switch {
		case line == "":
			flushPara()

		case isTableLine(line):
			flushPara()
			tbl, rest, err := parsePipeTable(lines[i:])
			if err != nil {
				return nil, err
			}
			b.AddTable(tbl)
			i += rest - 1
			seenContent = true

		case isHeadingLine(line):
			flushPara()
			id, _, _ := splitHeadingNumber(line)
			// Nest by dotted depth: "3.2" sits one level under "3".
			b.StartSection(strings.Count(id, ".")+1, line, page)
			seenContent = true

		default:
			// The first non-blank line of the document doubles as its title
			// when it precedes any section heading.
			if !seenContent {
				b.doc.Title = line
				seenContent = true
				continue
			}
			para = append(para, line)
		}
	}
	flushPara()

	return b.Finish()
}

// isHeadingLine reports whether the line is a numbered section heading
// rather than prose that happens to start with a number. Headings are short
// and do not end mid-sentence.
func isHeadingLine(line string) bool {
	_, title, ok := splitHeadingNumber(line)
	if !ok {
		return false
	}
	return len(line) <= 120 && !strings.HasSuffix(title, ".")
}

func isTableLine(line string) bool {
	return strings.HasPrefix(line, "|") && strings.Count(line, "|") >= 2
}

// parsePipeTable consumes consecutive pipe-delimited lines starting at
// lines[0] and returns the table plus the number of lines consumed.
func parsePipeTable(lines []string) (*Table, int, error) {
	tbl := &Table{}
	consumed := 0
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if !isTableLine(line) {
			break
		}
		consumed++
		cells := splitPipeRow(line)
		if isSeparatorRow(cells) {
			continue
		}
		if tbl.Header == nil {
			tbl.Header = cells
			continue
		}
		if len(cells) != len(tbl.Header) {
			return nil, 0, &ParseError{Msg: fmt.Sprintf("ragged table: row has %d cells, header has %d", len(cells), len(tbl.Header))}
		}
		tbl.Rows = append(tbl.Rows, cells)
	}
	if tbl.Header == nil {
		return nil, 0, &ParseError{Msg: "table without header row"}
	}
	return tbl, consumed, nil
}

func splitPipeRow(line string) []string {
	line = strings.Trim(line, "|")
	parts := strings.Split(line, "|")
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}

func isSeparatorRow(cells []string) bool {
	for _, c := range cells {
		if strings.Trim(c, "-: ") != "" {
			return false
		}
	}
	return len(cells) > 0
}
