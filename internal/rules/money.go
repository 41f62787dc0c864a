package rules

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	moneyPattern = regexp.MustCompile(`\$\s?(\d[\d,]*(?:\.\d{1,2})?)`)
	rangePattern = regexp.MustCompile(`\$\s?(\d[\d,]*(?:\.\d{1,2})?)\s*(?:-|–|—|to)\s*\$?\s?(\d[\d,]*(?:\.\d{1,2})?)`)
	plusPattern  = regexp.MustCompile(`\$\s?(\d[\d,]*(?:\.\d{1,2})?)\s*\+`)
)

// ParseMoney extracts the first dollar figure from a string ("$2,000" ->
// 2000).
func ParseMoney(s string) (float64, bool) {
	m := moneyPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseAmountRange parses an amount band. Supported shapes:
// "$0 - $500", "$2,001–$10,000", "$10,000+", "under $500", "over $10,000".
// max < 0 means open-ended.
func ParseAmountRange(s string) (min, max float64, ok bool) {
	s = strings.TrimSpace(s)

	if m := rangePattern.FindStringSubmatch(s); m != nil {
		lo, err1 := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		hi, err2 := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
		if err1 == nil && err2 == nil {
			return lo, hi, true
		}
		return 0, 0, false
	}

	if m := plusPattern.FindStringSubmatch(s); m != nil {
		lo, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err == nil {
			return lo, -1, true
		}
		return 0, 0, false
	}

	lower := strings.ToLower(s)
	if v, found := ParseMoney(s); found {
		switch {
		case strings.HasPrefix(lower, "under") || strings.HasPrefix(lower, "below") || strings.HasPrefix(lower, "up to"):
			return 0, v, true
		case strings.HasPrefix(lower, "over") || strings.HasPrefix(lower, "above"):
			return v, -1, true
		}
	}
	return 0, 0, false
}
