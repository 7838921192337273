/*
Package filing provides the periodic return filing workflow engine.

PURPOSE:
  Tracks preparation, review and filing of two dependent periodic tax
  returns per client per month:

    - Outward return (wire code "gstr1"): summary of outward supplies.
    - Liability return (wire code "gstr3b"): reconciles tax liability
      against input credits. Only opened once the outward return for the
      same client and period is locked.

KEY CONCEPTS IN THIS FILE (types.go):
  - Identifiers: ClientID, UserID, RecordID
  - Principal: the acting user and role, always passed explicitly
  - ReturnKind / Status: what a record is and where it is in its lifecycle
  - TaxHeads: the three parallel tax components (CGST, SGST, IGST)

DESIGN PRINCIPLES:
  1. Explicit principal: no operation reads the acting user from ambient state
  2. Precision: all money uses decimal.Decimal
  3. Closed vocabularies: kinds, statuses, checklist items and liability
     fields are enums with explicit switches, never free-form names

SEE ALSO:
  - record.go: OutwardReturn and LiabilityReturn shapes
  - workflow.go: The state machine (Engine)
  - variance.go: Derived totals
*/
package filing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ClientID string
type UserID string
type RecordID string

// =============================================================================
// PRINCIPAL - Who is acting
// =============================================================================

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleReviewer Role = "reviewer"
	RolePreparer Role = "preparer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleReviewer, RolePreparer:
		return true
	}
	return false
}

// CanReview reports whether the role may approve or send back a return.
func (r Role) CanReview() bool {
	return r == RoleAdmin || r == RoleReviewer
}

// Principal is the authenticated actor of an operation. It is resolved by the
// caller (session/auth layer) and handed to every engine operation.
type Principal struct {
	ID   UserID
	Role Role
}

func (p Principal) validate() error {
	if p.ID == "" || !p.Role.Valid() {
		return fmt.Errorf("%w: principal %q with role %q", ErrForbidden, p.ID, p.Role)
	}
	return nil
}

// =============================================================================
// RETURN KINDS AND STATUSES
// =============================================================================

type ReturnKind string

const (
	KindOutward   ReturnKind = "gstr1"
	KindLiability ReturnKind = "gstr3b"
)

// Kinds lists every return kind in dependency order.
var Kinds = []ReturnKind{KindOutward, KindLiability}

func ParseReturnKind(s string) (ReturnKind, error) {
	switch ReturnKind(s) {
	case KindOutward, KindLiability:
		return ReturnKind(s), nil
	}
	return "", &FieldError{Field: s, Reason: "unknown return kind"}
}

// Label is the display name used in notifications.
func (k ReturnKind) Label() string {
	switch k {
	case KindOutward:
		return "GSTR-1"
	case KindLiability:
		return "GSTR-3B"
	}
	return string(k)
}

// dueDay is the statutory day of the following month a return is due on.
func (k ReturnKind) dueDay() int {
	if k == KindLiability {
		return 20
	}
	return 11
}

type Status string

const (
	// Outward return lifecycle.
	StatusDraft       Status = "draft"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"

	// Liability return starts here.
	StatusPending Status = "pending"

	// Terminal for both kinds.
	StatusLocked Status = "locked"

	// StatusNotStarted is a board projection for a key with no record yet.
	// It is never persisted.
	StatusNotStarted Status = "not_started"
)

// CanEdit reports whether a principal with the given role may edit figures or
// submit a record in the given status.
func CanEdit(role Role, status Status) bool {
	if !role.Valid() {
		return false
	}
	switch status {
	case StatusDraft, StatusUnderReview, StatusPending:
		return true
	}
	return false
}

// =============================================================================
// TAX HEADS
// =============================================================================

// TaxHeads holds the three parallel tax components.
type TaxHeads struct {
	CGST decimal.Decimal `json:"cgst"`
	SGST decimal.Decimal `json:"sgst"`
	IGST decimal.Decimal `json:"igst"`
}

func (t TaxHeads) Total() decimal.Decimal {
	return t.CGST.Add(t.SGST).Add(t.IGST)
}

// Breakdown is a taxable value with its tax heads.
type Breakdown struct {
	TaxableValue decimal.Decimal `json:"taxable_value"`
	TaxHeads
}
