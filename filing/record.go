package filing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CLIENT
// =============================================================================

type ClientStatus string

const (
	ClientActive   ClientStatus = "active"
	ClientInactive ClientStatus = "inactive"
)

// Client is a taxpayer whose returns are tracked. Clients are deactivated,
// never deleted.
type Client struct {
	ID        ClientID
	Name      string
	TaxID     string // registration number, optional
	Status    ClientStatus
	CreatedAt time.Time
}

// =============================================================================
// RECORD HEADER - Metadata shared by both return kinds
// =============================================================================

type RecordHeader struct {
	ID       RecordID
	ClientID ClientID
	Period   Period
	Status   Status

	PreparerID UserID
	ReviewerID UserID // empty when no reviewer is set
	PreparedAt *time.Time
	ReviewedAt *time.Time

	FilingReference string
	FiledAt         *time.Time
	LockedAt        *time.Time

	// Version increments on every persisted update. Stores reject an update
	// whose Version does not match the stored row.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (h *RecordHeader) Locked() bool { return h.Status == StatusLocked }

// FilingRecord is either an *OutwardReturn or a *LiabilityReturn.
type FilingRecord interface {
	Kind() ReturnKind
	Header() *RecordHeader
}

// =============================================================================
// OUTWARD RETURN (gstr1)
// =============================================================================

// OutwardFigures are the editable line items of an outward return.
type OutwardFigures struct {
	B2B         decimal.Decimal // business-to-business sales
	B2C         decimal.Decimal // business-to-consumer sales
	CreditNote  decimal.Decimal
	DebitNote   decimal.Decimal
	SEZExempted decimal.Decimal // exempted / special-zone sales
	LedgerTotal decimal.Decimal // reference total from the accounting ledger
	Tax         TaxHeads
}

// OutwardTotals are derived from OutwardFigures by ComputeOutward.
type OutwardTotals struct {
	Total    decimal.Decimal
	Variance decimal.Decimal
}

type OutwardReturn struct {
	RecordHeader
	Figures OutwardFigures
	Totals  OutwardTotals
	Checklist
}

func (r *OutwardReturn) Kind() ReturnKind       { return KindOutward }
func (r *OutwardReturn) Header() *RecordHeader { return &r.RecordHeader }

// =============================================================================
// CHECKLIST - Six independent completeness flags on an outward return
// =============================================================================

type ChecklistItem string

const (
	CheckSales      ChecklistItem = "sales"
	CheckPurchase   ChecklistItem = "purchase"
	CheckNotes      ChecklistItem = "notes"
	CheckContinuity ChecklistItem = "continuity"
	CheckHSN        ChecklistItem = "hsn"
	CheckNil        ChecklistItem = "nil"
)

// ChecklistItems lists the items in display order.
var ChecklistItems = []ChecklistItem{
	CheckSales, CheckPurchase, CheckNotes, CheckContinuity, CheckHSN, CheckNil,
}

func ParseChecklistItem(s string) (ChecklistItem, error) {
	switch item := ChecklistItem(s); item {
	case CheckSales, CheckPurchase, CheckNotes, CheckContinuity, CheckHSN, CheckNil:
		return item, nil
	}
	return "", &FieldError{Field: s, Reason: "unknown checklist item"}
}

// ChecklistEntry is one flag. At is set while Done is true.
type ChecklistEntry struct {
	Done bool
	At   *time.Time
}

type Checklist struct {
	Sales      ChecklistEntry
	Purchase   ChecklistEntry
	Notes      ChecklistEntry
	Continuity ChecklistEntry
	HSN        ChecklistEntry
	Nil        ChecklistEntry
}

// Entry returns the flag for item, or nil for an unknown item.
func (c *Checklist) Entry(item ChecklistItem) *ChecklistEntry {
	switch item {
	case CheckSales:
		return &c.Sales
	case CheckPurchase:
		return &c.Purchase
	case CheckNotes:
		return &c.Notes
	case CheckContinuity:
		return &c.Continuity
	case CheckHSN:
		return &c.HSN
	case CheckNil:
		return &c.Nil
	}
	return nil
}

// Set marks an item done at `at`, or clears it and its timestamp.
func (c *Checklist) Set(item ChecklistItem, done bool, at time.Time) {
	e := c.Entry(item)
	if e == nil {
		return
	}
	e.Done = done
	if done {
		e.At = &at
	} else {
		e.At = nil
	}
}

// Complete reports whether all six items are done. Informational only; no
// transition depends on it.
func (c *Checklist) Complete() bool {
	for _, item := range ChecklistItems {
		if !c.Entry(item).Done {
			return false
		}
	}
	return true
}

// =============================================================================
// LIABILITY RETURN (gstr3b)
// =============================================================================

// CarriedForward is copied from the locked outward return when the liability
// return is created and never re-synced.
type CarriedForward struct {
	Total    decimal.Decimal
	Variance decimal.Decimal
	Tax      TaxHeads
}

type LiabilityFigures struct {
	Liability     Breakdown // independently entered liability
	Statement     Breakdown // input-tax-credit statement from the authority
	Ledger        Breakdown // accounting-ledger cross-check
	Ineligible    TaxHeads
	ReverseCharge TaxHeads
	Eligible      TaxHeads
	Net           TaxHeads // net payable
	Interest      TaxHeads
	LateFee       decimal.Decimal
}

type LiabilityReturn struct {
	RecordHeader
	Carried CarriedForward
	Figures LiabilityFigures

	// TVVariance = Ledger.TaxableValue - Statement.TaxableValue.
	TVVariance decimal.Decimal
}

func (r *LiabilityReturn) Kind() ReturnKind       { return KindLiability }
func (r *LiabilityReturn) Header() *RecordHeader { return &r.RecordHeader }

// LiabilityField names one caller-settable figure of a liability return.
// The string values are the stable wire and column names.
type LiabilityField string

const (
	FieldLiabilityTV   LiabilityField = "liability_tv"
	FieldLiabilityCGST LiabilityField = "liability_cgst"
	FieldLiabilitySGST LiabilityField = "liability_sgst"
	FieldLiabilityIGST LiabilityField = "liability_igst"

	FieldStatementTV   LiabilityField = "tv_2b"
	FieldStatementCGST LiabilityField = "cgst_2b"
	FieldStatementSGST LiabilityField = "sgst_2b"
	FieldStatementIGST LiabilityField = "igst_2b"

	FieldLedgerTV   LiabilityField = "tv_tally"
	FieldLedgerCGST LiabilityField = "cgst_tally"
	FieldLedgerSGST LiabilityField = "sgst_tally"
	FieldLedgerIGST LiabilityField = "igst_tally"

	FieldIneligibleCGST LiabilityField = "ineligible_cgst"
	FieldIneligibleSGST LiabilityField = "ineligible_sgst"
	FieldIneligibleIGST LiabilityField = "ineligible_igst"

	FieldReverseChargeCGST LiabilityField = "rcm_cgst"
	FieldReverseChargeSGST LiabilityField = "rcm_sgst"
	FieldReverseChargeIGST LiabilityField = "rcm_igst"

	FieldEligibleCGST LiabilityField = "eligible_cgst"
	FieldEligibleSGST LiabilityField = "eligible_sgst"
	FieldEligibleIGST LiabilityField = "eligible_igst"

	FieldNetCGST LiabilityField = "net_cgst"
	FieldNetSGST LiabilityField = "net_sgst"
	FieldNetIGST LiabilityField = "net_igst"

	FieldInterestCGST LiabilityField = "interest_cgst"
	FieldInterestSGST LiabilityField = "interest_sgst"
	FieldInterestIGST LiabilityField = "interest_igst"

	FieldLateFee LiabilityField = "late_fee"
)

// LiabilityFields lists every settable field. tv_variance is derived and
// deliberately absent.
var LiabilityFields = []LiabilityField{
	FieldLiabilityTV, FieldLiabilityCGST, FieldLiabilitySGST, FieldLiabilityIGST,
	FieldStatementTV, FieldStatementCGST, FieldStatementSGST, FieldStatementIGST,
	FieldLedgerTV, FieldLedgerCGST, FieldLedgerSGST, FieldLedgerIGST,
	FieldIneligibleCGST, FieldIneligibleSGST, FieldIneligibleIGST,
	FieldReverseChargeCGST, FieldReverseChargeSGST, FieldReverseChargeIGST,
	FieldEligibleCGST, FieldEligibleSGST, FieldEligibleIGST,
	FieldNetCGST, FieldNetSGST, FieldNetIGST,
	FieldInterestCGST, FieldInterestSGST, FieldInterestIGST,
	FieldLateFee,
}

func ParseLiabilityField(s string) (LiabilityField, error) {
	f := LiabilityField(s)
	if (&LiabilityFigures{}).Field(f) == nil {
		return "", &FieldError{Field: s, Reason: "not a settable liability figure"}
	}
	return f, nil
}

// ParseLiabilityFigures converts a name-keyed map into typed fields. Any
// unknown name rejects the whole map.
func ParseLiabilityFigures(in map[string]decimal.Decimal) (map[LiabilityField]decimal.Decimal, error) {
	out := make(map[LiabilityField]decimal.Decimal, len(in))
	for name, v := range in {
		f, err := ParseLiabilityField(name)
		if err != nil {
			return nil, err
		}
		out[f] = v
	}
	return out, nil
}

// Field returns a pointer to the figure named by f, or nil if f is not settable.
func (lf *LiabilityFigures) Field(f LiabilityField) *decimal.Decimal {
	switch f {
	case FieldLiabilityTV:
		return &lf.Liability.TaxableValue
	case FieldLiabilityCGST:
		return &lf.Liability.CGST
	case FieldLiabilitySGST:
		return &lf.Liability.SGST
	case FieldLiabilityIGST:
		return &lf.Liability.IGST
	case FieldStatementTV:
		return &lf.Statement.TaxableValue
	case FieldStatementCGST:
		return &lf.Statement.CGST
	case FieldStatementSGST:
		return &lf.Statement.SGST
	case FieldStatementIGST:
		return &lf.Statement.IGST
	case FieldLedgerTV:
		return &lf.Ledger.TaxableValue
	case FieldLedgerCGST:
		return &lf.Ledger.CGST
	case FieldLedgerSGST:
		return &lf.Ledger.SGST
	case FieldLedgerIGST:
		return &lf.Ledger.IGST
	case FieldIneligibleCGST:
		return &lf.Ineligible.CGST
	case FieldIneligibleSGST:
		return &lf.Ineligible.SGST
	case FieldIneligibleIGST:
		return &lf.Ineligible.IGST
	case FieldReverseChargeCGST:
		return &lf.ReverseCharge.CGST
	case FieldReverseChargeSGST:
		return &lf.ReverseCharge.SGST
	case FieldReverseChargeIGST:
		return &lf.ReverseCharge.IGST
	case FieldEligibleCGST:
		return &lf.Eligible.CGST
	case FieldEligibleSGST:
		return &lf.Eligible.SGST
	case FieldEligibleIGST:
		return &lf.Eligible.IGST
	case FieldNetCGST:
		return &lf.Net.CGST
	case FieldNetSGST:
		return &lf.Net.SGST
	case FieldNetIGST:
		return &lf.Net.IGST
	case FieldInterestCGST:
		return &lf.Interest.CGST
	case FieldInterestSGST:
		return &lf.Interest.SGST
	case FieldInterestIGST:
		return &lf.Interest.IGST
	case FieldLateFee:
		return &lf.LateFee
	}
	return nil
}

// =============================================================================
// ASSIGNMENT
// =============================================================================

// Assignment names the preparer responsible for each return kind of a client
// in a period. Empty preparer ids mean unassigned.
type Assignment struct {
	ClientID          ClientID
	Period            Period
	OutwardPreparer   UserID
	LiabilityPreparer UserID
	CreatedBy         UserID
	CreatedAt         time.Time
}

// PreparerFor returns the assigned preparer for a kind.
func (a *Assignment) PreparerFor(kind ReturnKind) UserID {
	if kind == KindLiability {
		return a.LiabilityPreparer
	}
	return a.OutwardPreparer
}
