package rules

import (
	"fmt"
	"strings"
)

// RuleType discriminates the normalized rule variants.
type RuleType string

const (
	TypeEquipmentCap      RuleType = "equipment_cap"
	TypeApprovalThreshold RuleType = "approval_threshold"
	TypeProhibition       RuleType = "prohibition"
	TypeVendorPreference  RuleType = "vendor_preference"
)

// Rule is a normalized, typed fact extracted from one or more chunks.
// Exactly one variant field is set, matching Type. Sections carries
// provenance: the section IDs the rule was derived from.
type Rule struct {
	Type      RuleType `json:"type"`
	Sections  []string `json:"sections"`
	Ambiguous bool     `json:"ambiguous,omitempty"`

	Cap         *EquipmentCap      `json:"equipment_cap,omitempty"`
	Approval    *ApprovalThreshold `json:"approval_threshold,omitempty"`
	Prohibition *Prohibition       `json:"prohibition,omitempty"`
	Vendor      *VendorPreference  `json:"vendor_preference,omitempty"`

	// specificity records how the cap's role label matched the request
	// role during resolution. Not serialized.
	specificity int
}

// EquipmentCap limits what a role may spend on a single equipment purchase.
type EquipmentCap struct {
	Role     string            `json:"role"`
	Amount   float64           `json:"amount"`
	Currency string            `json:"currency"`
	Examples []AlternativeItem `json:"examples,omitempty"`
}

// ApprovalThreshold names the approvers required for an amount band.
// MaxAmount < 0 means the band is open-ended.
type ApprovalThreshold struct {
	MinAmount float64  `json:"min_amount"`
	MaxAmount float64  `json:"max_amount"`
	Approvers []string `json:"approvers"`
	Timeline  string   `json:"timeline,omitempty"`
}

// Covers reports whether the band applies to the amount.
func (t *ApprovalThreshold) Covers(amount float64) bool {
	return amount >= t.MinAmount && (t.MaxAmount < 0 || amount <= t.MaxAmount)
}

// Prohibition bans a purchase category outright, regardless of amount.
type Prohibition struct {
	Category string `json:"category"`
}

// Matches reports whether the request category falls under the prohibition.
func (p *Prohibition) Matches(category string) bool {
	c := strings.ToLower(strings.TrimSpace(category))
	banned := strings.ToLower(strings.TrimSpace(p.Category))
	if c == "" || banned == "" {
		return false
	}
	return c == banned || strings.Contains(c, banned) || strings.Contains(banned, c)
}

// VendorPreference ranks a vendor for a purchase category.
type VendorPreference struct {
	Category string `json:"category"`
	Vendor   string `json:"vendor"`
	Rank     int    `json:"rank"`
}

// AlternativeItem is a candidate purchase drawn from the policy corpus
// (example columns of cap tables) that can replace a non-compliant item.
type AlternativeItem struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// NoRuleFoundError indicates retrieval produced no chunk above the minimum
// similarity threshold for any resolution query. It must surface as
// NEEDS_INFO, never as a silent COMPLIANT.
type NoRuleFoundError struct {
	Query string
}

func (e *NoRuleFoundError) Error() string {
	return fmt.Sprintf("no policy rule found for query %q", e.Query)
}

// AmbiguousRuleError indicates policy text that matched a recognized schema
// but could not be parsed without guessing. The candidate set is attached
// for caller disambiguation.
type AmbiguousRuleError struct {
	Reason     string
	Candidates []Rule
}

func (e *AmbiguousRuleError) Error() string {
	return "ambiguous policy rule: " + e.Reason
}
