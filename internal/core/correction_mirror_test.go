package core

import (
	"strings"
	"testing"
	"time"

	"dealer-inventory/internal/fortnox"
)

func TestMirrorVoucher(t *testing.T) {
	original := &fortnox.Voucher{
		VoucherSeries:   "A",
		VoucherNumber:   417,
		TransactionDate: "2026-02-10",
		Description:     "Purchase ABC123 Volvo V70",
		VoucherRows: []fortnox.VoucherRow{
			{Account: 1410, Debit: 150000, Credit: 0},
			{Account: 2440, Debit: 0, Credit: 150000},
			{Account: 1680, Debit: 0, Credit: 25000},
			{Account: 2440, Debit: 25000, Credit: 0},
		},
	}

	today := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	mirror := mirrorVoucher(original, today)

	if mirror.TransactionDate != "2026-08-29" {
		t.Errorf("TransactionDate = %q, want today", mirror.TransactionDate)
	}
	if !strings.Contains(mirror.Description, "A 417") {
		t.Errorf("Description %q does not reference the original voucher", mirror.Description)
	}
	if len(mirror.VoucherRows) != len(original.VoucherRows) {
		t.Fatalf("rows = %d, want %d", len(mirror.VoucherRows), len(original.VoucherRows))
	}

	var originalDebits, originalCredits, mirrorDebits, mirrorCredits float64
	for i, row := range mirror.VoucherRows {
		orig := original.VoucherRows[i]
		if row.Account != orig.Account {
			t.Errorf("row %d: account %d, want %d", i, row.Account, orig.Account)
		}
		if row.Debit != orig.Credit || row.Credit != orig.Debit {
			t.Errorf("row %d: debit/credit not swapped: %+v vs %+v", i, row, orig)
		}
		originalDebits += orig.Debit
		originalCredits += orig.Credit
		mirrorDebits += row.Debit
		mirrorCredits += row.Credit
	}
	if mirrorDebits != originalCredits {
		t.Errorf("sum of correction debits %v != sum of original credits %v", mirrorDebits, originalCredits)
	}
	if mirrorCredits != originalDebits {
		t.Errorf("sum of correction credits %v != sum of original debits %v", mirrorCredits, originalDebits)
	}
}

func TestMirrorVoucher_EmptyRows(t *testing.T) {
	mirror := mirrorVoucher(&fortnox.Voucher{VoucherSeries: "B", VoucherNumber: 1}, time.Now())
	if len(mirror.VoucherRows) != 0 {
		t.Errorf("rows = %d, want 0", len(mirror.VoucherRows))
	}
}
