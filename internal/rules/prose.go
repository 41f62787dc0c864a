package rules

import (
	"regexp"
	"strings"
)

var prohibitionLead = regexp.MustCompile(`(?i)(?:prohibited|banned|not\s+permitted|forbidden)[^:]*:\s*([^.]+)`)

// parseProseChunk extracts rules from prose policy text. Currently the only
// prose-borne rule is the prohibition list ("The following categories are
// prohibited ...: gaming equipment, cryptocurrency mining hardware, ...").
func parseProseChunk(text, sectionID string) []Rule {
	m := prohibitionLead.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	var out []Rule
	for _, cat := range splitList(m[1]) {
		cat = strings.TrimSpace(strings.TrimSuffix(cat, "."))
		if cat == "" {
			continue
		}
		out = append(out, Rule{
			Type:        TypeProhibition,
			Sections:    []string{sectionID},
			Prohibition: &Prohibition{Category: cat},
		})
	}
	return out
}
