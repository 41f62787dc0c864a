package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jibzus/enterprise-spendguard/internal/chunker"
	"github.com/jibzus/enterprise-spendguard/internal/index"
	"github.com/jibzus/enterprise-spendguard/internal/retriever"
)

// RequestFeatures are the request fields rule resolution keys on.
type RequestFeatures struct {
	Role     string
	Category string
	Amount   float64
}

// Resolver turns retrieved policy chunks into the normalized rule set
// governing a request.
type Resolver struct {
	ret  *retriever.Retriever
	topK int
	log  *slog.Logger
}

// NewResolver creates a resolver issuing top-k retrieval queries.
func NewResolver(ret *retriever.Retriever, topK int, log *slog.Logger) *Resolver {
	if topK <= 0 {
		topK = retriever.DefaultTopK
	}
	return &Resolver{ret: ret, topK: topK, log: log}
}

// Resolve issues one retrieval query per rule concern, parses the matched
// chunks into typed rules, and selects the rules governing the request.
//
// Errors: *NoRuleFoundError when no query returned a chunk above the
// similarity threshold; *AmbiguousRuleError when recognized policy text
// could not be parsed without guessing; embedding errors pass through.
// Callers map all of these to a NEEDS_INFO verdict.
func (r *Resolver) Resolve(ctx context.Context, ix *index.Index, f RequestFeatures) ([]Rule, error) {
	queries := []string{
		fmt.Sprintf("equipment spending cap limit for role %s buying %s", f.Role, f.Category),
		fmt.Sprintf("approvers approval amount range timeline for a $%.2f purchase", f.Amount),
		"prohibited banned purchase categories " + f.Category,
		"preferred vendor ranking for " + f.Category,
	}

	seen := make(map[string]bool)
	var hits []index.Hit
	for _, q := range queries {
		qh, err := r.ret.Retrieve(ctx, ix, q, r.topK, "")
		if err != nil {
			return nil, err
		}
		for _, h := range qh {
			if seen[h.Entry.ChunkID] {
				continue
			}
			seen[h.Entry.ChunkID] = true
			hits = append(hits, h)
		}
	}
	if len(hits) == 0 {
		return nil, &NoRuleFoundError{Query: queries[0]}
	}

	var parsed []Rule
	for _, h := range hits {
		var (
			rs  []Rule
			err error
		)
		if h.Entry.Kind == chunker.KindTable {
			rs, err = parseTableChunk(h.Entry.Text, h.Entry.SectionID)
			if err != nil {
				return nil, err
			}
		} else {
			rs = parseProseChunk(h.Entry.Text, h.Entry.SectionID)
		}
		parsed = append(parsed, rs...)
	}

	resolved := selectCaps(parsed, f.Role)
	resolved = append(resolved, dedupeByType(parsed, TypeApprovalThreshold)...)
	resolved = append(resolved, dedupeByType(parsed, TypeProhibition)...)
	resolved = append(resolved, vendorsForCategory(parsed, f.Category)...)

	if len(resolved) == 0 {
		return nil, &NoRuleFoundError{Query: queries[0]}
	}
	r.log.Debug("rules resolved",
		"role", f.Role,
		"category", f.Category,
		"chunks", len(hits),
		"rules", len(resolved),
	)
	return resolved, nil
}

// selectCaps picks the equipment cap(s) whose role label matches the
// request role at the highest specificity: exact role-code match beats a
// range match beats a fuzzy text match. Distinct caps surviving at the same
// specificity are all returned tagged ambiguous, so the evaluator escalates
// to NEEDS_INFO instead of guessing.
func selectCaps(parsed []Rule, role string) []Rule {
	best := specNone
	var candidates []Rule
	for _, rule := range parsed {
		if rule.Type != TypeEquipmentCap {
			continue
		}
		spec := matchRole(rule.Cap.Role, role)
		if spec == specNone || spec < best {
			continue
		}
		rule.specificity = spec
		if spec > best {
			best = spec
			candidates = candidates[:0]
		}
		candidates = append(candidates, rule)
	}

	// Identical caps retrieved via different queries are one rule.
	uniq := make(map[string]int)
	var out []Rule
	for _, c := range candidates {
		key := fmt.Sprintf("%s|%.2f", strings.ToLower(c.Cap.Role), c.Cap.Amount)
		if i, ok := uniq[key]; ok {
			out[i].Sections = mergeSections(out[i].Sections, c.Sections)
			continue
		}
		uniq[key] = len(out)
		out = append(out, c)
	}
	if len(out) > 1 {
		for i := range out {
			out[i].Ambiguous = true
		}
	}
	return out
}

func dedupeByType(parsed []Rule, t RuleType) []Rule {
	uniq := make(map[string]int)
	var out []Rule
	for _, rule := range parsed {
		if rule.Type != t {
			continue
		}
		var key string
		switch t {
		case TypeApprovalThreshold:
			key = fmt.Sprintf("%.2f|%.2f", rule.Approval.MinAmount, rule.Approval.MaxAmount)
		case TypeProhibition:
			key = strings.ToLower(rule.Prohibition.Category)
		default:
			key = fmt.Sprintf("%v", rule)
		}
		if i, ok := uniq[key]; ok {
			out[i].Sections = mergeSections(out[i].Sections, rule.Sections)
			continue
		}
		uniq[key] = len(out)
		out = append(out, rule)
	}
	sortRules(out)
	return out
}

func vendorsForCategory(parsed []Rule, category string) []Rule {
	var out []Rule
	for _, rule := range parsed {
		if rule.Type != TypeVendorPreference {
			continue
		}
		c := strings.ToLower(strings.TrimSpace(category))
		vc := strings.ToLower(strings.TrimSpace(rule.Vendor.Category))
		if c == "" || vc == "" {
			continue
		}
		if c == vc || strings.Contains(c, vc) || strings.Contains(vc, c) {
			out = append(out, rule)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Vendor.Rank < out[j].Vendor.Rank })
	return out
}

// sortRules orders rules deterministically so repeated evaluations of the
// same request produce identical verdicts.
func sortRules(rs []Rule) {
	sort.SliceStable(rs, func(i, j int) bool {
		switch rs[i].Type {
		case TypeApprovalThreshold:
			return rs[i].Approval.MinAmount < rs[j].Approval.MinAmount
		case TypeProhibition:
			return rs[i].Prohibition.Category < rs[j].Prohibition.Category
		}
		return false
	})
}

func mergeSections(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := append([]string{}, a...)
	for _, s := range out {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
