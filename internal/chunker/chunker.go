package chunker

import (
	"fmt"
	"strings"

	"github.com/jibzus/enterprise-spendguard/internal/policydoc"
)

// Kind distinguishes prose chunks from table chunks.
type Kind string

const (
	KindProse Kind = "prose"
	KindTable Kind = "table"
)

// Chunk is a retrievable unit of policy text with section provenance.
type Chunk struct {
	ID          string   // deterministic: "<section_id>#p<n>" or "<section_id>#t<n>"
	SectionID   string
	SectionPath []string // heading titles from root to this section
	Page        int
	Kind        Kind
	Index       int // sequence within the section, per kind
	Text        string
	TokenCount  int
}

// Config controls chunking behavior.
type Config struct {
	MaxTokens     int // window size for prose chunks
	OverlapTokens int // tokens duplicated between consecutive windows of one section
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:     300,
		OverlapTokens: 40,
	}
}

// Normalize clamps out-of-range values to usable ones. ChunkDocument and
// ReconstructProse both apply it, so slicing and reconstruction agree on the
// effective overlap even for an invalid config.
func (c Config) Normalize() Config {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 300
	}
	if c.OverlapTokens < 0 || c.OverlapTokens >= c.MaxTokens {
		c.OverlapTokens = c.MaxTokens / 8
	}
	return c
}

// ChunkDocument walks the policy tree depth-first and produces chunks.
//
// Prose blocks of a section are concatenated into one token stream and
// sliced into windows of MaxTokens with OverlapTokens carried between
// consecutive windows. Overlap never crosses a section boundary. Table
// blocks become exactly one chunk each, never split mid-row, even when
// their serialized size exceeds MaxTokens. An empty section produces no
// chunks.
func ChunkDocument(doc *policydoc.PolicyDocument, cfg Config) []Chunk {
	cfg = cfg.Normalize()

	var chunks []Chunk
	var walk func(s *policydoc.Section, path []string)
	walk = func(s *policydoc.Section, path []string) {
		secPath := append(append([]string{}, path...), s.Title)
		chunks = append(chunks, chunkSection(s, secPath, cfg)...)
		for _, child := range s.Children {
			walk(child, secPath)
		}
	}
	for _, s := range doc.Sections {
		walk(s, nil)
	}
	return chunks
}

func chunkSection(s *policydoc.Section, path []string, cfg Config) []Chunk {
	var chunks []Chunk
	proseIdx, tableIdx := 0, 0

	emitProse := func(words []string) {
		step := cfg.MaxTokens - cfg.OverlapTokens
		for start := 0; start < len(words); start += step {
			end := start + cfg.MaxTokens
			if end > len(words) {
				end = len(words)
			}
			text := strings.Join(words[start:end], " ")
			chunks = append(chunks, Chunk{
				ID:          fmt.Sprintf("%s#p%d", s.ID, proseIdx),
				SectionID:   s.ID,
				SectionPath: path,
				Page:        s.Page,
				Kind:        KindProse,
				Index:       proseIdx,
				Text:        text,
				TokenCount:  end - start,
			})
			proseIdx++
			if end == len(words) {
				break
			}
		}
	}

	// All prose of a section forms a single stream so overlap stays within
	// the section; tables interleave as standalone chunks.
	var words []string
	for _, b := range s.Blocks {
		if b.Prose != "" {
			words = append(words, Tokenize(b.Prose)...)
			continue
		}
		if b.Table != nil {
			text := SerializeTable(b.Table)
			chunks = append(chunks, Chunk{
				ID:          fmt.Sprintf("%s#t%d", s.ID, tableIdx),
				SectionID:   s.ID,
				SectionPath: path,
				Page:        s.Page,
				Kind:        KindTable,
				Index:       tableIdx,
				Text:        text,
				TokenCount:  CountTokens(text),
			})
			tableIdx++
		}
	}
	if len(words) > 0 {
		emitProse(words)
	}
	return chunks
}

// SerializeTable renders a table one row per line, header first, so a chunk
// always holds an integral number of rows.
func SerializeTable(t *policydoc.Table) string {
	var sb strings.Builder
	writeRow := func(cells []string) {
		sb.WriteString("| ")
		sb.WriteString(strings.Join(cells, " | "))
		sb.WriteString(" |\n")
	}
	writeRow(t.Header)
	for _, row := range t.Rows {
		writeRow(row)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// ReconstructProse rebuilds a section's normalized prose from its prose
// chunks (ordered by index), stripping the overlap duplicated between
// consecutive windows.
func ReconstructProse(chunks []Chunk, cfg Config) string {
	cfg = cfg.Normalize()
	var words []string
	for i, c := range chunks {
		w := Tokenize(c.Text)
		if i > 0 && len(w) > cfg.OverlapTokens {
			w = w[cfg.OverlapTokens:]
		} else if i > 0 {
			w = nil
		}
		words = append(words, w...)
	}
	return strings.Join(words, " ")
}
