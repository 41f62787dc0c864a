package rules

import (
	"regexp"
	"strconv"
	"strings"
)

// Role match specificity, most specific first: an exact role-code match
// beats a code-range match, which beats a fuzzy text match.
const (
	specNone = iota
	specFuzzy
	specRange
	specExact
)

var (
	codeRangePattern = regexp.MustCompile(`(?i)\b([a-z]+)(\d+)\s*[-–]\s*(?:[a-z]+)?(\d+)\b`)
	openRangePattern = regexp.MustCompile(`(?i)\b([a-z]+)(\d+)\s*\+`)
	roleCodePattern  = regexp.MustCompile(`(?i)^([a-z]+)(\d+)$`)
	parenthetical    = regexp.MustCompile(`\s*\([^)]*\)`)
)

// matchRole scores how the rule's role label applies to the request role.
func matchRole(ruleRole, reqRole string) int {
	rr := strings.TrimSpace(strings.ToLower(ruleRole))
	qr := strings.TrimSpace(strings.ToLower(reqRole))
	if rr == "" || qr == "" {
		return specNone
	}

	if rr == qr {
		return specExact
	}
	// "Engineer (IC1-IC4)" matches role "Engineer" exactly once the
	// parenthetical qualifier is stripped.
	if strings.TrimSpace(parenthetical.ReplaceAllString(rr, "")) == qr {
		return specExact
	}

	if code := roleCodePattern.FindStringSubmatch(qr); code != nil {
		prefix, num := code[1], mustAtoi(code[2])
		if m := codeRangePattern.FindStringSubmatch(rr); m != nil {
			if strings.EqualFold(m[1], prefix) && num >= mustAtoi(m[2]) && num <= mustAtoi(m[3]) {
				return specRange
			}
		}
		if m := openRangePattern.FindStringSubmatch(rr); m != nil {
			if strings.EqualFold(m[1], prefix) && num >= mustAtoi(m[2]) {
				return specRange
			}
		}
	}

	if strings.Contains(rr, qr) || strings.Contains(qr, rr) {
		return specFuzzy
	}
	return specNone
}

func mustAtoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
