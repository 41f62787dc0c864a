package policydoc

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// HTMLIngestor handles HTML policy documents: h1-h6 headings build the
// section tree, <table> elements become table blocks.
type HTMLIngestor struct{}

func (p *HTMLIngestor) Ingest(r io.Reader, filename string) (*PolicyDocument, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSuffix(strings.TrimSuffix(filename, ".html"), ".htm")
	if t := findTitle(doc); t != "" {
		title = t
	}

	b := newTreeBuilder(title)
	var currentText strings.Builder
	var parseErr error

	flushText := func() {
		b.AddProse(currentText.String())
		currentText.Reset()
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if parseErr != nil {
			return
		}
		if n.Type == html.ElementNode {
			level := headingLevel(n.Data)
			if level > 0 {
				flushText()
				b.StartSection(level, textContent(n), 0)
				return // Don't recurse into heading children (already extracted text).
			}

			// Skip non-content elements.
			switch n.Data {
			case "script", "style", "nav", "footer", "header":
				return
			case "table":
				flushText()
				tbl, err := htmlTable(n)
				if err != nil {
					parseErr = err
					return
				}
				b.AddTable(tbl)
				return
			case "p", "li", "blockquote":
				t := textContent(n)
				if t != "" {
					if currentText.Len() > 0 {
						currentText.WriteString("\n\n")
					}
					currentText.WriteString(t)
				}
				return
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	body := findBody(doc)
	if body != nil {
		walk(body)
	} else {
		walk(doc)
	}
	if parseErr != nil {
		return nil, parseErr
	}
	flushText()

	return b.Finish()
}

// htmlTable collects tr/th/td cells. The first row (or any row of th cells)
// is the header; remaining rows must match its width.
func htmlTable(table *html.Node) (*Table, error) {
	tbl := &Table{}
	var walkRows func(*html.Node)
	var rowErr error
	walkRows = func(n *html.Node) {
		if rowErr != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "tr" {
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					cells = append(cells, textContent(c))
				}
			}
			if len(cells) == 0 {
				return
			}
			if tbl.Header == nil {
				tbl.Header = cells
			} else if len(cells) != len(tbl.Header) {
				rowErr = &ParseError{Msg: fmt.Sprintf("ragged table: row has %d cells, header has %d", len(cells), len(tbl.Header))}
			} else {
				tbl.Rows = append(tbl.Rows, cells)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walkRows(c)
		}
	}
	walkRows(table)
	if rowErr != nil {
		return nil, rowErr
	}
	if tbl.Header == nil {
		return nil, &ParseError{Msg: "table without header row"}
	}
	return tbl, nil
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

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		return textContent(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
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
