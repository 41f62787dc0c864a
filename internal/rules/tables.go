package rules

import (
	"fmt"
	"strings"
)

// parseSerializedTable reads the chunker's table serialization (one pipe-
// delimited row per line, header first) back into header and rows.
func parseSerializedTable(text string) (header []string, rows [][]string, ok bool) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "|") {
			continue
		}
		parts := strings.Split(strings.Trim(line, "|"), "|")
		cells := make([]string, len(parts))
		for i, p := range parts {
			cells[i] = strings.TrimSpace(p)
		}
		if header == nil {
			header = cells
			continue
		}
		rows = append(rows, cells)
	}
	return header, rows, header != nil
}

// columnIndex finds the first header column whose name contains any of the
// given keywords (case-insensitive).
func columnIndex(header []string, keywords ...string) int {
	for i, h := range header {
		lh := strings.ToLower(h)
		for _, kw := range keywords {
			if strings.Contains(lh, kw) {
				return i
			}
		}
	}
	return -1
}

// parseTableChunk maps a table chunk onto a recognized rule schema by its
// header names. Tables matching no schema yield no rules; tables matching a
// schema but holding an unparsable required cell return AmbiguousRuleError
// rather than a guessed rule.
func parseTableChunk(text, sectionID string) ([]Rule, error) {
	header, rows, ok := parseSerializedTable(text)
	if !ok || len(rows) == 0 {
		return nil, nil
	}

	if roleCol := columnIndex(header, "role", "tier", "level"); roleCol >= 0 {
		if capCol := columnIndex(header, "cap", "limit", "max"); capCol >= 0 {
			return parseCapTable(header, rows, roleCol, capCol, sectionID)
		}
	}
	if rangeCol := columnIndex(header, "range", "amount", "band"); rangeCol >= 0 {
		if apprCol := columnIndex(header, "approver", "approval", "sign-off"); apprCol >= 0 {
			return parseApprovalTable(header, rows, rangeCol, apprCol, sectionID)
		}
	}
	if catCol := columnIndex(header, "category"); catCol >= 0 {
		if vendCol := columnIndex(header, "vendor", "supplier"); vendCol >= 0 {
			return parseVendorTable(header, rows, catCol, vendCol, sectionID)
		}
	}
	if prohCol := columnIndex(header, "prohibited", "banned"); prohCol >= 0 {
		var out []Rule
		for _, row := range rows {
			if cat := strings.TrimSpace(row[prohCol]); cat != "" {
				out = append(out, Rule{
					Type:        TypeProhibition,
					Sections:    []string{sectionID},
					Prohibition: &Prohibition{Category: cat},
				})
			}
		}
		return out, nil
	}
	return nil, nil
}

func parseCapTable(header []string, rows [][]string, roleCol, capCol int, sectionID string) ([]Rule, error) {
	var out []Rule
	for _, row := range rows {
		role := strings.TrimSpace(row[roleCol])
		if role == "" {
			continue
		}
		amount, ok := ParseMoney(row[capCol])
		if !ok {
			return nil, &AmbiguousRuleError{
				Reason: fmt.Sprintf("section %s: cap cell %q for role %q is not a currency amount", sectionID, row[capCol], role),
			}
		}
		cap := &EquipmentCap{Role: role, Amount: amount, Currency: "USD"}
		// Example columns seed the compliant-alternatives pool:
		// "Dell Latitude 5400 ($1,200)".
		for i, h := range header {
			if !strings.Contains(strings.ToLower(h), "example") {
				continue
			}
			cell := strings.TrimSpace(row[i])
			if cell == "" || strings.EqualFold(cell, "n/a") {
				continue
			}
			price, ok := ParseMoney(cell)
			if !ok {
				continue
			}
			desc := strings.TrimSpace(moneyPattern.ReplaceAllString(cell, ""))
			desc = strings.TrimSpace(strings.Trim(desc, "()"))
			cap.Examples = append(cap.Examples, AlternativeItem{Description: desc, Amount: price})
		}
		out = append(out, Rule{
			Type:     TypeEquipmentCap,
			Sections: []string{sectionID},
			Cap:      cap,
		})
	}
	return out, nil
}

func parseApprovalTable(header []string, rows [][]string, rangeCol, apprCol int, sectionID string) ([]Rule, error) {
	timelineCol := columnIndex(header, "timeline", "turnaround", "sla")
	var out []Rule
	for _, row := range rows {
		min, max, ok := ParseAmountRange(row[rangeCol])
		if !ok {
			return nil, &AmbiguousRuleError{
				Reason: fmt.Sprintf("section %s: amount range cell %q is not a recognized band", sectionID, row[rangeCol]),
			}
		}
		approvers := splitList(row[apprCol])
		if len(approvers) == 0 {
			return nil, &AmbiguousRuleError{
				Reason: fmt.Sprintf("section %s: empty approver cell for band %q", sectionID, row[rangeCol]),
			}
		}
		t := &ApprovalThreshold{MinAmount: min, MaxAmount: max, Approvers: approvers}
		if timelineCol >= 0 {
			t.Timeline = strings.TrimSpace(row[timelineCol])
		}
		out = append(out, Rule{
			Type:     TypeApprovalThreshold,
			Sections: []string{sectionID},
			Approval: t,
		})
	}
	return out, nil
}

func parseVendorTable(header []string, rows [][]string, catCol, vendCol int, sectionID string) ([]Rule, error) {
	rankCol := columnIndex(header, "rank", "priority", "preference")
	var out []Rule
	for i, row := range rows {
		cat := strings.TrimSpace(row[catCol])
		vendor := strings.TrimSpace(row[vendCol])
		if cat == "" || vendor == "" {
			continue
		}
		rank := i + 1
		if rankCol >= 0 {
			if n := parseInt(row[rankCol]); n > 0 {
				rank = n
			}
		}
		out = append(out, Rule{
			Type:     TypeVendorPreference,
			Sections: []string{sectionID},
			Vendor:   &VendorPreference{Category: cat, Vendor: vendor, Rank: rank},
		})
	}
	return out, nil
}

// splitList splits a cell like "C-level, Legal" or "Manager and IT" into
// its items.
func splitList(s string) []string {
	s = strings.ReplaceAll(s, " and ", ",")
	s = strings.ReplaceAll(s, "+", ",")
	s = strings.ReplaceAll(s, ";", ",")
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt(s string) int {
	n := 0
	for _, r := range strings.TrimSpace(s) {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
