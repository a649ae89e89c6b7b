package core_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"dealer-inventory/internal/core"
)

func TestSplitGross(t *testing.T) {
	tests := []struct {
		name    string
		gross   string
		wantNet string
		wantVAT string
	}{
		{"standard import example", "125000", "100000", "25000"},
		{"round amount", "150000", "120000", "30000"},
		{"odd amount rounds to 2 decimals", "99999", "79999.20", "19999.80"},
		{"small amount", "1.25", "1.00", "0.25"},
		{"zero", "0", "0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gross := decimal.RequireFromString(tt.gross)
			net, vat := core.SplitGross(gross)

			if !net.Equal(decimal.RequireFromString(tt.wantNet)) {
				t.Errorf("net = %s, want %s", net, tt.wantNet)
			}
			if !vat.Equal(decimal.RequireFromString(tt.wantVAT)) {
				t.Errorf("vat = %s, want %s", vat, tt.wantVAT)
			}
			if !net.Add(vat).Equal(gross) {
				t.Errorf("net + vat = %s, want gross %s", net.Add(vat), gross)
			}
		})
	}
}

func TestNormalizeOrgNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"556677-8899", "5566778899"},
		{"556677 8899", "5566778899"},
		{" 556677-8899 ", "5566778899"},
		{"5566778899", "5566778899"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := core.NormalizeOrgNumber(tt.in); got != tt.want {
			t.Errorf("NormalizeOrgNumber(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
