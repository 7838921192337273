package filing

import "github.com/shopspring/decimal"

// =============================================================================
// VARIANCE CALCULATOR - Pure, no hidden state
// =============================================================================

// ComputeOutward derives the outward return totals:
//
//	total    = b2b + b2c - credit_note + debit_note + sez_exempted
//	variance = total - ledger_total
func ComputeOutward(f OutwardFigures) OutwardTotals {
	total := f.B2B.
		Add(f.B2C).
		Sub(f.CreditNote).
		Add(f.DebitNote).
		Add(f.SEZExempted)
	return OutwardTotals{
		Total:    total,
		Variance: total.Sub(f.LedgerTotal),
	}
}

// ComputeLiabilityVariance is the only value the engine derives for a
// liability return: ledger taxable value minus statement taxable value.
func ComputeLiabilityVariance(f LiabilityFigures) decimal.Decimal {
	return f.Ledger.TaxableValue.Sub(f.Statement.TaxableValue)
}
