package evaluator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jibzus/enterprise-spendguard/internal/embedding"
	"github.com/jibzus/enterprise-spendguard/internal/rules"
)

// Request is a structured purchase request. It is immutable once submitted
// for evaluation.
type Request struct {
	ItemDescription string  `json:"item_description"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	RequestorRole   string  `json:"requestor_role"`
	Category        string  `json:"category"`
	Vendor          string  `json:"vendor,omitempty"`
}

// Status is the terminal state of an evaluation.
type Status string

const (
	StatusCompliant Status = "COMPLIANT"
	StatusViolation Status = "VIOLATION"
	StatusNeedsInfo Status = "NEEDS_INFO"
)

// Alternative is a compliant candidate item drawn from the policy corpus.
type Alternative struct {
	Description string     `json:"description"`
	Amount      float64    `json:"amount"`
	MeetsRule   rules.Rule `json:"meets_rule"`
}

// Verdict is the structured outcome of evaluating one purchase request.
type Verdict struct {
	Status        Status                    `json:"status"`
	AppliedRules  []rules.Rule              `json:"applied_rules"`
	CitedSections []string                  `json:"cited_sections"`
	DeltaOverCap  float64                   `json:"delta_over_cap,omitempty"`
	ApprovalChain *rules.ApprovalThreshold  `json:"approval_chain,omitempty"`
	Alternatives  []Alternative             `json:"alternatives"`
	Vendors       []rules.VendorPreference  `json:"vendor_preferences,omitempty"`
	Reasons       []string                  `json:"reasons,omitempty"`
}

// Evaluate applies the resolved rules to a request and produces a verdict.
//
// The check sequence is structural: a request cannot reach a compliant
// verdict without passing the cap check and the prohibition check. Rule
// resolution failures arrive as resolveErr and always map to NEEDS_INFO;
// the engine fails closed, never defaulting to COMPLIANT.
//
// Evaluating the same (request, rule set) twice yields an identical
// verdict: rule selection tie-breaks are handled upstream and every
// collection here is deterministically ordered.
func Evaluate(req Request, rs []rules.Rule, resolveErr error) Verdict {
	v := Verdict{
		Status:       StatusCompliant,
		AppliedRules: []rules.Rule{},
		Alternatives: []Alternative{},
	}

	if resolveErr != nil {
		return needsInfo(v, rs, resolveErr)
	}
	if reason := missingField(req); reason != "" {
		v.Status = StatusNeedsInfo
		v.Reasons = append(v.Reasons, reason)
		v.CitedSections = []string{}
		return v
	}

	cited := make(map[string]bool)
	violating := false

	// CapCheck.
	caps := rulesOfType(rs, rules.TypeEquipmentCap)
	if ambiguous(caps) {
		v.Status = StatusNeedsInfo
		v.AppliedRules = append(v.AppliedRules, caps...)
		v.Reasons = append(v.Reasons, fmt.Sprintf("role %q matches %d conflicting spending caps", req.RequestorRole, len(caps)))
		v.CitedSections = collectSections(caps)
		return v
	}
	var capRule *rules.Rule
	if len(caps) == 1 {
		capRule = &caps[0]
		v.AppliedRules = append(v.AppliedRules, caps[0])
		cite(cited, caps[0].Sections)
		if req.Amount > capRule.Cap.Amount {
			violating = true
			v.DeltaOverCap = req.Amount - capRule.Cap.Amount
			v.Reasons = append(v.Reasons, fmt.Sprintf("amount $%.2f exceeds the $%.2f cap for role %q", req.Amount, capRule.Cap.Amount, capRule.Cap.Role))
		}
	}

	// ProhibitionCheck: prohibitions are absolute, never overridable by
	// amount.
	for _, p := range rulesOfType(rs, rules.TypeProhibition) {
		if p.Prohibition.Matches(req.Category) {
			violating = true
			v.AppliedRules = append(v.AppliedRules, p)
			cite(cited, p.Sections)
			v.Reasons = append(v.Reasons, fmt.Sprintf("category %q is prohibited", req.Category))
		}
	}

	// ApprovalCheck: informational, attached for caller display. A covered
	// amount never causes violation; an uncovered amount on an otherwise
	// clean request is NEEDS_INFO.
	bandFound := false
	for _, t := range rulesOfType(rs, rules.TypeApprovalThreshold) {
		if t.Approval.Covers(req.Amount) {
			bandFound = true
			v.ApprovalChain = t.Approval
			v.AppliedRules = append(v.AppliedRules, t)
			cite(cited, t.Sections)
			break
		}
	}
	if !bandFound && !violating {
		v.Status = StatusNeedsInfo
		v.Reasons = append(v.Reasons, fmt.Sprintf("no approval band covers amount $%.2f", req.Amount))
		v.CitedSections = sortedSections(cited)
		return v
	}

	// AlternativesSearch: corpus items for the same role whose amount fits
	// under the cap, cheapest first. No alternative is not an error.
	if violating && capRule != nil {
		for _, ex := range capRule.Cap.Examples {
			if ex.Amount <= capRule.Cap.Amount {
				v.Alternatives = append(v.Alternatives, Alternative{
					Description: ex.Description,
					Amount:      ex.Amount,
					MeetsRule:   *capRule,
				})
			}
		}
		sort.SliceStable(v.Alternatives, func(i, j int) bool {
			if v.Alternatives[i].Amount != v.Alternatives[j].Amount {
				return v.Alternatives[i].Amount < v.Alternatives[j].Amount
			}
			return v.Alternatives[i].Description < v.Alternatives[j].Description
		})
	}

	// Vendor preferences ride along for caller display.
	for _, vp := range rulesOfType(rs, rules.TypeVendorPreference) {
		v.Vendors = append(v.Vendors, *vp.Vendor)
	}

	if violating {
		v.Status = StatusViolation
	}
	v.CitedSections = sortedSections(cited)
	return v
}

// needsInfo maps a resolution failure onto a NEEDS_INFO verdict, attaching
// ambiguous candidates when available so the caller can disambiguate.
func needsInfo(v Verdict, rs []rules.Rule, err error) Verdict {
	v.Status = StatusNeedsInfo
	v.CitedSections = []string{}

	var ambErr *rules.AmbiguousRuleError
	var noRule *rules.NoRuleFoundError
	var unavailable *embedding.UnavailableError
	var mismatch *embedding.MismatchError
	switch {
	case errors.As(err, &ambErr):
		v.AppliedRules = append(v.AppliedRules, ambErr.Candidates...)
		v.Reasons = append(v.Reasons, ambErr.Reason)
	case errors.As(err, &noRule):
		v.Reasons = append(v.Reasons, "no applicable policy rule found")
	case errors.As(err, &unavailable), errors.As(err, &mismatch):
		v.Reasons = append(v.Reasons, "policy check unavailable: "+err.Error())
	default:
		v.Reasons = append(v.Reasons, err.Error())
	}
	return v
}

func missingField(req Request) string {
	switch {
	case strings.TrimSpace(req.RequestorRole) == "":
		return "requestor_role is required"
	case strings.TrimSpace(req.Category) == "":
		return "category is required"
	case req.Amount < 0:
		return "amount must be non-negative"
	}
	return ""
}

func rulesOfType(rs []rules.Rule, t rules.RuleType) []rules.Rule {
	var out []rules.Rule
	for _, r := range rs {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

func ambiguous(rs []rules.Rule) bool {
	for _, r := range rs {
		if r.Ambiguous {
			return true
		}
	}
	return len(rs) > 1
}

func cite(cited map[string]bool, sections []string) {
	for _, s := range sections {
		cited[s] = true
	}
}

func collectSections(rs []rules.Rule) []string {
	cited := make(map[string]bool)
	for _, r := range rs {
		cite(cited, r.Sections)
	}
	return sortedSections(cited)
}

func sortedSections(cited map[string]bool) []string {
	out := make([]string, 0, len(cited))
	for s := range cited {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
