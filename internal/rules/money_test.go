package rules

import "testing"

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"$2,000", 2000, true},
		{"$500", 500, true},
		{"$1,234.56", 1234.56, true},
		{"$ 750", 750, true},
		{"Dell Latitude 5400 ($1,200)", 1200, true},
		{"2000", 0, false},
		{"N/A", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseMoney(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseMoney(%q) = %v, %v; want %v, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestParseAmountRange(t *testing.T) {
	cases := []struct {
		in       string
		min, max float64
		ok       bool
	}{
		{"$0 - $500", 0, 500, true},
		{"$501 - $2,000", 501, 2000, true},
		{"$2,001–$10,000", 2001, 10000, true},
		{"$500 to $1,000", 500, 1000, true},
		{"$10,000+", 10000, -1, true},
		{"under $500", 0, 500, true},
		{"up to $250", 0, 250, true},
		{"over $10,000", 10000, -1, true},
		{"whatever", 0, 0, false},
		{"$500", 0, 0, false},
	}
	for _, tc := range cases {
		min, max, ok := ParseAmountRange(tc.in)
		if ok != tc.ok || min != tc.min || max != tc.max {
			t.Errorf("ParseAmountRange(%q) = %v, %v, %v; want %v, %v, %v", tc.in, min, max, ok, tc.min, tc.max, tc.ok)
		}
	}
}

func TestApprovalThreshold_Covers(t *testing.T) {
	band := &ApprovalThreshold{MinAmount: 501, MaxAmount: 2000}
	open := &ApprovalThreshold{MinAmount: 10000, MaxAmount: -1}

	cases := []struct {
		t      *ApprovalThreshold
		amount float64
		want   bool
	}{
		{band, 501, true},
		{band, 2000, true},
		{band, 500, false},
		{band, 2001, false},
		{open, 10000, true},
		{open, 1e9, true},
		{open, 9999, false},
	}
	for _, tc := range cases {
		if got := tc.t.Covers(tc.amount); got != tc.want {
			t.Errorf("Covers(%v) on [%v,%v] = %v, want %v", tc.amount, tc.t.MinAmount, tc.t.MaxAmount, got, tc.want)
		}
	}
}

func TestProhibition_Matches(t *testing.T) {
	p := &Prohibition{Category: "gaming equipment"}
	cases := []struct {
		category string
		want     bool
	}{
		{"gaming equipment", true},
		{"Gaming Equipment", true},
		{"gaming", true},
		{"high-end gaming equipment bundle", true},
		{"laptop", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := p.Matches(tc.category); got != tc.want {
			t.Errorf("Matches(%q) = %v, want %v", tc.category, got, tc.want)
		}
	}
}
