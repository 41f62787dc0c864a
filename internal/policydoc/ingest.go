package policydoc

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Ingestor converts raw policy document bytes into a PolicyDocument.
type Ingestor interface {
	Ingest(r io.Reader, filename string) (*PolicyDocument, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
	".pdf":      true,
	".docx":     true,
	".html":     true,
	".htm":      true,
}

// ForFile returns the appropriate ingestor for a filename.
func ForFile(filename string) (Ingestor, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".md", ".markdown":
		return &MarkdownIngestor{}, nil
	case ".txt":
		return &PlainTextIngestor{}, nil
	case ".pdf":
		return &PDFIngestor{}, nil
	case ".docx":
		return &DOCXIngestor{}, nil
	case ".html", ".htm":
		return &HTMLIngestor{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}
