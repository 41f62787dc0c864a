package evaluator

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/jibzus/enterprise-spendguard/internal/embedding"
	"github.com/jibzus/enterprise-spendguard/internal/rules"
)

func policyRules() []rules.Rule {
	return []rules.Rule{
		{
			Type:     rules.TypeEquipmentCap,
			Sections: []string{"3.2"},
			Cap: &rules.EquipmentCap{
				Role:     "Intern",
				Amount:   2000,
				Currency: "USD",
				Examples: []rules.AlternativeItem{
					{Description: "MacBook Air", Amount: 1800},
					{Description: "Dell Latitude 5400", Amount: 1200},
					{Description: "Mac Studio", Amount: 2400},
				},
			},
		},
		{
			Type:     rules.TypeApprovalThreshold,
			Sections: []string{"4.1"},
			Approval: &rules.ApprovalThreshold{MinAmount: 0, MaxAmount: 500, Approvers: []string{"Manager"}, Timeline: "2 business days"},
		},
		{
			Type:     rules.TypeApprovalThreshold,
			Sections: []string{"4.1"},
			Approval: &rules.ApprovalThreshold{MinAmount: 501, MaxAmount: 2000, Approvers: []string{"Manager", "Finance"}, Timeline: "4 business days"},
		},
		{
			Type:     rules.TypeApprovalThreshold,
			Sections: []string{"4.1"},
			Approval: &rules.ApprovalThreshold{MinAmount: 2001, MaxAmount: 10000, Approvers: []string{"Director", "Finance"}, Timeline: "7 business days"},
		},
		{
			Type:        rules.TypeProhibition,
			Sections:    []string{"3.3"},
			Prohibition: &rules.Prohibition{Category: "gaming equipment"},
		},
	}
}

func internRequest(amount float64, category string) Request {
	return Request{
		ItemDescription: "laptop computer",
		Amount:          amount,
		Currency:        "USD",
		RequestorRole:   "Intern",
		Category:        category,
	}
}

func TestEvaluate_CompliantUnderCap(t *testing.T) {
	v := Evaluate(internRequest(1200, "laptop"), policyRules(), nil)
	if v.Status != StatusCompliant {
		t.Fatalf("expected COMPLIANT, got %s (%v)", v.Status, v.Reasons)
	}
	if v.DeltaOverCap != 0 {
		t.Errorf("expected zero delta, got %v", v.DeltaOverCap)
	}
	if v.ApprovalChain == nil {
		t.Fatal("expected approval chain attached")
	}
	if v.ApprovalChain.MinAmount != 501 || v.ApprovalChain.MaxAmount != 2000 {
		t.Errorf("expected $501-$2,000 band, got %+v", v.ApprovalChain)
	}
	if len(v.Alternatives) != 0 {
		t.Errorf("compliant verdict must not propose alternatives, got %d", len(v.Alternatives))
	}
	wantCited := []string{"3.2", "4.1"}
	if len(v.CitedSections) != 2 || v.CitedSections[0] != wantCited[0] || v.CitedSections[1] != wantCited[1] {
		t.Errorf("expected cited sections %v, got %v", wantCited, v.CitedSections)
	}
}

func TestEvaluate_CapViolationWithAlternatives(t *testing.T) {
	v := Evaluate(internRequest(4500, "laptop"), policyRules(), nil)
	if v.Status != StatusViolation {
		t.Fatalf("expected VIOLATION, got %s", v.Status)
	}
	if v.DeltaOverCap != 2500 {
		t.Errorf("expected delta 2500, got %v", v.DeltaOverCap)
	}

	// Only examples at or under the cap, cheapest first.
	if len(v.Alternatives) != 2 {
		t.Fatalf("expected 2 compliant alternatives, got %d", len(v.Alternatives))
	}
	if v.Alternatives[0].Description != "Dell Latitude 5400" || v.Alternatives[0].Amount != 1200 {
		t.Errorf("unexpected first alternative: %+v", v.Alternatives[0])
	}
	if v.Alternatives[1].Description != "MacBook Air" {
		t.Errorf("unexpected second alternative: %+v", v.Alternatives[1])
	}
	for _, a := range v.Alternatives {
		if a.MeetsRule.Type != rules.TypeEquipmentCap {
			t.Error("alternative must reference the rule it satisfies")
		}
	}

	found := false
	for _, s := range v.CitedSections {
		if s == "3.2" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected cap's source section cited, got %v", v.CitedSections)
	}
}

func TestEvaluate_ProhibitionIgnoresAmount(t *testing.T) {
	v := Evaluate(internRequest(50, "gaming equipment"), policyRules(), nil)
	if v.Status != StatusViolation {
		t.Fatalf("expected VIOLATION for prohibited category at any amount, got %s", v.Status)
	}
	if v.DeltaOverCap != 0 {
		t.Errorf("prohibition violation has no cap delta, got %v", v.DeltaOverCap)
	}
	found := false
	for _, s := range v.CitedSections {
		if s == "3.3" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected prohibition section cited, got %v", v.CitedSections)
	}
}

func TestEvaluate_ResolverErrorsFailClosed(t *testing.T) {
	req := internRequest(1200, "laptop")
	cases := []struct {
		name string
		err  error
	}{
		{"no rule found", &rules.NoRuleFoundError{Query: "spending cap"}},
		{"embedding unavailable", &embedding.UnavailableError{ModelID: "openai/x", Err: errors.New("connect timeout")}},
		{"model mismatch", &embedding.MismatchError{IndexModel: "tfidf/a", QueryModel: "tfidf/b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := Evaluate(req, nil, tc.err)
			if v.Status != StatusNeedsInfo {
				t.Errorf("expected NEEDS_INFO, got %s", v.Status)
			}
			if len(v.Reasons) == 0 {
				t.Error("expected an explanatory reason")
			}
		})
	}
}

func TestEvaluate_AmbiguousRulesSurfaceCandidates(t *testing.T) {
	candidates := []rules.Rule{
		{Type: rules.TypeEquipmentCap, Sections: []string{"3.2"}, Cap: &rules.EquipmentCap{Role: "Engineer", Amount: 3500}},
		{Type: rules.TypeEquipmentCap, Sections: []string{"9.1"}, Cap: &rules.EquipmentCap{Role: "Engineer", Amount: 5000}},
	}
	err := &rules.AmbiguousRuleError{Reason: "conflicting caps for Engineer", Candidates: candidates}
	v := Evaluate(internRequest(100, "laptop"), nil, err)
	if v.Status != StatusNeedsInfo {
		t.Fatalf("expected NEEDS_INFO, got %s", v.Status)
	}
	if len(v.AppliedRules) != 2 {
		t.Errorf("expected candidate rules attached, got %d", len(v.AppliedRules))
	}
}

func TestEvaluate_ConflictingCapsInRuleSet(t *testing.T) {
	rs := []rules.Rule{
		{Type: rules.TypeEquipmentCap, Ambiguous: true, Sections: []string{"3.2"}, Cap: &rules.EquipmentCap{Role: "Engineer", Amount: 3500}},
		{Type: rules.TypeEquipmentCap, Ambiguous: true, Sections: []string{"9.1"}, Cap: &rules.EquipmentCap{Role: "Engineer", Amount: 5000}},
	}
	v := Evaluate(Request{RequestorRole: "Engineer", Category: "laptop", Amount: 4000}, rs, nil)
	if v.Status != StatusNeedsInfo {
		t.Fatalf("expected NEEDS_INFO for conflicting caps, got %s", v.Status)
	}
}

func TestEvaluate_MissingFieldsNeedInfo(t *testing.T) {
	cases := []struct {
		name string
		req  Request
	}{
		{"missing role", Request{Category: "laptop", Amount: 100}},
		{"missing category", Request{RequestorRole: "Intern", Amount: 100}},
		{"negative amount", Request{RequestorRole: "Intern", Category: "laptop", Amount: -5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := Evaluate(tc.req, policyRules(), nil)
			if v.Status != StatusNeedsInfo {
				t.Errorf("expected NEEDS_INFO, got %s", v.Status)
			}
		})
	}
}

func TestEvaluate_NoApprovalBandNeedsInfo(t *testing.T) {
	// $15,000 falls outside every band in the fixture (no open-ended band).
	v := Evaluate(Request{RequestorRole: "Engineer", Category: "laptop", Amount: 15000}, policyRules(), nil)
	if v.Status != StatusNeedsInfo {
		t.Fatalf("expected NEEDS_INFO when no band covers the amount, got %s", v.Status)
	}
}

func TestEvaluate_NeverCompliantWithoutRules(t *testing.T) {
	// An empty rule set with no resolver error still must not pass.
	v := Evaluate(internRequest(100, "laptop"), nil, nil)
	if v.Status == StatusCompliant {
		t.Fatal("empty rule set must never yield COMPLIANT")
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	req := internRequest(4500, "laptop")
	first, err := json.Marshal(Evaluate(req, policyRules(), nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := json.Marshal(Evaluate(req, policyRules(), nil))
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(first) != string(again) {
			t.Fatalf("run %d: verdict changed\nfirst: %s\nagain: %s", i, first, again)
		}
	}
}
