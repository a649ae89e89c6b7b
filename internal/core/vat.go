package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// VATRate is the Swedish standard VAT rate applied by the gross-up rule.
var VATRate = decimal.RequireFromString("0.25")

var one = decimal.NewFromInt(1)

// SplitGross computes the net/VAT split for a VAT-inclusive amount:
// vat = gross * rate / (1 + rate), net = gross - vat, rounded to 2 decimals.
func SplitGross(gross decimal.Decimal) (net, vat decimal.Decimal) {
	vat = gross.Mul(VATRate).Div(one.Add(VATRate)).Round(2)
	net = gross.Sub(vat)
	return net, vat
}

// NormalizeOrgNumber strips dashes and whitespace so organisation numbers can be
// compared regardless of formatting ("556677-8899" == "556677 8899" == "5566778899").
func NormalizeOrgNumber(n string) string {
	n = strings.TrimSpace(n)
	return strings.NewReplacer("-", "", " ", "").Replace(n)
}
