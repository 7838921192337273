/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the filing model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Clients:       ClientDTO, CreateClientRequest
  Assignments:   AssignmentDTO, UpsertAssignmentRequest
  Returns:       OutwardReturnDTO, LiabilityReturnDTO, OpenReturnRequest,
                 OutwardFiguresRequest, LiabilityFiguresRequest,
                 ChecklistRequest, SubmitRequest, ReviewRequest, FileRequest
  Notifications: NotificationDTO, NotificationsResponse
  Reports:       BoardRowDTO, SummaryDTO, DueItemDTO, ActivityDTO

VALIDATION:
  Request shapes are checked with go-playground/validator struct tags
  before they reach the engine. The engine re-checks everything that
  matters for the workflow.

MONEY:
  decimal.Decimal marshals as a JSON string and accepts numbers or strings.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/filing-engine/filing"
)

const dateLayout = "2006-01-02"

// =============================================================================
// REQUESTS
// =============================================================================

type CreateClientRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	TaxID string `json:"tax_id" validate:"omitempty,len=15,alphanum"`
}

// UpsertAssignmentRequest leaves a preparer unchanged when its field is
// absent and clears it when it is "".
type UpsertAssignmentRequest struct {
	ClientID          string  `json:"client_id" validate:"required"`
	Period            string  `json:"period" validate:"required,datetime=2006-01"`
	OutwardPreparer   *string `json:"gstr1_preparer"`
	LiabilityPreparer *string `json:"gstr3b_preparer"`
}

type OpenReturnRequest struct {
	ClientID string `json:"client_id" validate:"required"`
	Period   string `json:"period" validate:"required,datetime=2006-01"`
}

type OutwardFiguresRequest struct {
	B2B         decimal.Decimal `json:"b2b"`
	B2C         decimal.Decimal `json:"b2c"`
	CreditNote  decimal.Decimal `json:"credit_note"`
	DebitNote   decimal.Decimal `json:"debit_note"`
	SEZExempted decimal.Decimal `json:"sez_exempted"`
	LedgerTotal decimal.Decimal `json:"ledger_total"`
	Tax         filing.TaxHeads `json:"tax"`
}

func (r OutwardFiguresRequest) toFigures() filing.OutwardFigures {
	return filing.OutwardFigures{
		B2B:         r.B2B,
		B2C:         r.B2C,
		CreditNote:  r.CreditNote,
		DebitNote:   r.DebitNote,
		SEZExempted: r.SEZExempted,
		LedgerTotal: r.LedgerTotal,
		Tax:         r.Tax,
	}
}

// LiabilityFiguresRequest overwrites only the named fields.
type LiabilityFiguresRequest struct {
	Fields map[string]decimal.Decimal `json:"fields" validate:"required,min=1"`
}

type ChecklistRequest struct {
	Item string `json:"item" validate:"required"`
	Done *bool  `json:"done" validate:"required"`
}

type SubmitRequest struct {
	ReviewerID string `json:"reviewer_id" validate:"required"`
}

type ReviewRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Remarks  string `json:"remarks" validate:"max=2000"`
}

type FileRequest struct {
	Reference string `json:"reference" validate:"required,max=64"`
}

// =============================================================================
// CLIENTS AND ASSIGNMENTS
// =============================================================================

type ClientDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	TaxID     string `json:"tax_id,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

func toClientDTO(c filing.Client) ClientDTO {
	return ClientDTO{
		ID:        string(c.ID),
		Name:      c.Name,
		TaxID:     c.TaxID,
		Status:    string(c.Status),
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
}

type AssignmentDTO struct {
	ClientID          string `json:"client_id"`
	Period            string `json:"period"`
	OutwardPreparer   string `json:"gstr1_preparer"`
	LiabilityPreparer string `json:"gstr3b_preparer"`
	CreatedBy         string `json:"created_by"`
	CreatedAt         string `json:"created_at"`
}

func toAssignmentDTO(a filing.Assignment) AssignmentDTO {
	return AssignmentDTO{
		ClientID:          string(a.ClientID),
		Period:            a.Period.String(),
		OutwardPreparer:   string(a.OutwardPreparer),
		LiabilityPreparer: string(a.LiabilityPreparer),
		CreatedBy:         string(a.CreatedBy),
		CreatedAt:         a.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// RETURNS
// =============================================================================

// RecordHeaderDTO is shared by both return kinds. CanEdit is computed for
// the requesting principal.
type RecordHeaderDTO struct {
	ID              string  `json:"id"`
	Kind            string  `json:"kind"`
	ClientID        string  `json:"client_id"`
	Period          string  `json:"period"`
	FinancialYear   string  `json:"financial_year"`
	Status          string  `json:"status"`
	PreparerID      string  `json:"preparer_id,omitempty"`
	ReviewerID      string  `json:"reviewer_id,omitempty"`
	PreparedAt      *string `json:"prepared_at,omitempty"`
	ReviewedAt      *string `json:"reviewed_at,omitempty"`
	FilingReference string  `json:"filing_reference,omitempty"`
	FiledAt         *string `json:"filed_at,omitempty"`
	LockedAt        *string `json:"locked_at,omitempty"`
	DueDate         string  `json:"due_date"`
	DueColor        string  `json:"due_color"`
	CanEdit         bool    `json:"can_edit"`
	Version         int64   `json:"version"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

func toHeaderDTO(kind filing.ReturnKind, h *filing.RecordHeader, role filing.Role, now time.Time) RecordHeaderDTO {
	return RecordHeaderDTO{
		ID:              string(h.ID),
		Kind:            string(kind),
		ClientID:        string(h.ClientID),
		Period:          h.Period.String(),
		FinancialYear:   h.Period.FinancialYear().Label(),
		Status:          string(h.Status),
		PreparerID:      string(h.PreparerID),
		ReviewerID:      string(h.ReviewerID),
		PreparedAt:      formatOptTime(h.PreparedAt),
		ReviewedAt:      formatOptTime(h.ReviewedAt),
		FilingReference: h.FilingReference,
		FiledAt:         formatOptTime(h.FiledAt),
		LockedAt:        formatOptTime(h.LockedAt),
		DueDate:         h.Period.DueDate(kind, now.Location()).Format(dateLayout),
		DueColor:        string(filing.DueColorFor(kind, h.Period, h.Status, now)),
		CanEdit:         filing.CanEdit(role, h.Status),
		Version:         h.Version,
		CreatedAt:       h.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       h.UpdatedAt.Format(time.RFC3339),
	}
}

type ChecklistItemDTO struct {
	Item string  `json:"item"`
	Done bool    `json:"done"`
	At   *string `json:"at,omitempty"`
}

type OutwardReturnDTO struct {
	RecordHeaderDTO
	B2B               decimal.Decimal    `json:"b2b"`
	B2C               decimal.Decimal    `json:"b2c"`
	CreditNote        decimal.Decimal    `json:"credit_note"`
	DebitNote         decimal.Decimal    `json:"debit_note"`
	SEZExempted       decimal.Decimal    `json:"sez_exempted"`
	LedgerTotal       decimal.Decimal    `json:"ledger_total"`
	Tax               filing.TaxHeads    `json:"tax"`
	Total             decimal.Decimal    `json:"total"`
	Variance          decimal.Decimal    `json:"variance"`
	Checklist         []ChecklistItemDTO `json:"checklist"`
	ChecklistComplete bool               `json:"checklist_complete"`
}

func toOutwardDTO(r *filing.OutwardReturn, role filing.Role, now time.Time) OutwardReturnDTO {
	checklist := make([]ChecklistItemDTO, 0, len(filing.ChecklistItems))
	for _, item := range filing.ChecklistItems {
		e := r.Checklist.Entry(item)
		checklist = append(checklist, ChecklistItemDTO{Item: string(item), Done: e.Done, At: formatOptTime(e.At)})
	}
	return OutwardReturnDTO{
		RecordHeaderDTO:   toHeaderDTO(filing.KindOutward, &r.RecordHeader, role, now),
		B2B:               r.Figures.B2B,
		B2C:               r.Figures.B2C,
		CreditNote:        r.Figures.CreditNote,
		DebitNote:         r.Figures.DebitNote,
		SEZExempted:       r.Figures.SEZExempted,
		LedgerTotal:       r.Figures.LedgerTotal,
		Tax:               r.Figures.Tax,
		Total:             r.Totals.Total,
		Variance:          r.Totals.Variance,
		Checklist:         checklist,
		ChecklistComplete: r.Checklist.Complete(),
	}
}

type OutwardTotalsDTO struct {
	Total    decimal.Decimal `json:"total"`
	Variance decimal.Decimal `json:"variance"`
}

type CarriedForwardDTO struct {
	Total    decimal.Decimal `json:"total"`
	Variance decimal.Decimal `json:"variance"`
	Tax      filing.TaxHeads `json:"tax"`
}

// LiabilityReturnDTO exposes figures keyed by their settable field names,
// the same names LiabilityFiguresRequest accepts.
type LiabilityReturnDTO struct {
	RecordHeaderDTO
	Carried    CarriedForwardDTO          `json:"gstr1"`
	Figures    map[string]decimal.Decimal `json:"figures"`
	TVVariance decimal.Decimal            `json:"tv_variance"`
}

func toLiabilityDTO(r *filing.LiabilityReturn, role filing.Role, now time.Time) LiabilityReturnDTO {
	figures := make(map[string]decimal.Decimal, len(filing.LiabilityFields))
	for _, f := range filing.LiabilityFields {
		figures[string(f)] = *r.Figures.Field(f)
	}
	return LiabilityReturnDTO{
		RecordHeaderDTO: toHeaderDTO(filing.KindLiability, &r.RecordHeader, role, now),
		Carried: CarriedForwardDTO{
			Total:    r.Carried.Total,
			Variance: r.Carried.Variance,
			Tax:      r.Carried.Tax,
		},
		Figures:    figures,
		TVVariance: r.TVVariance,
	}
}

// toRecordDTO returns the kind-specific DTO for a record.
func toRecordDTO(rec filing.FilingRecord, role filing.Role, now time.Time) any {
	switch r := rec.(type) {
	case *filing.OutwardReturn:
		return toOutwardDTO(r, role, now)
	case *filing.LiabilityReturn:
		return toLiabilityDTO(r, role, now)
	}
	return nil
}

// =============================================================================
// NOTIFICATIONS AND ACTIVITY
// =============================================================================

type NotificationDTO struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Category  string `json:"category"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

type NotificationsResponse struct {
	Unread      []NotificationDTO `json:"unread"`
	UnreadCount int               `json:"unread_count"`
	Recent      []NotificationDTO `json:"recent"`
}

func toNotificationDTOs(ns []filing.Notification) []NotificationDTO {
	dtos := make([]NotificationDTO, len(ns))
	for i, n := range ns {
		dtos[i] = NotificationDTO{
			ID:        n.ID,
			Title:     n.Title,
			Message:   n.Message,
			Category:  string(n.Category),
			Read:      n.Read,
			CreatedAt: n.CreatedAt.Format(time.RFC3339),
		}
	}
	return dtos
}

type ActivityDTO struct {
	ID        string `json:"id"`
	Actor     string `json:"actor"`
	Action    string `json:"action"`
	Detail    string `json:"detail,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Period    string `json:"period,omitempty"`
	Kind      string `json:"kind,omitempty"`
	RecordID  string `json:"record_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

func toActivityDTO(e filing.ActivityEntry) ActivityDTO {
	dto := ActivityDTO{
		ID:        e.ID,
		Actor:     string(e.Actor),
		Action:    string(e.Action),
		Detail:    e.Detail,
		ClientID:  string(e.ClientID),
		Kind:      string(e.Kind),
		RecordID:  string(e.RecordID),
		Timestamp: e.Timestamp.Format(time.RFC3339),
	}
	if e.Period != nil {
		dto.Period = e.Period.String()
	}
	return dto
}

// =============================================================================
// BOARD, SUMMARY, DUE DATES
// =============================================================================

type BoardEntryDTO struct {
	RecordID string `json:"record_id,omitempty"`
	Status   string `json:"status"`
	DueDate  string `json:"due_date"`
	Color    string `json:"color"`
	Preparer string `json:"preparer,omitempty"`
	Assigned string `json:"assigned,omitempty"`
}

type BoardRowDTO struct {
	Client    ClientDTO     `json:"client"`
	Period    string        `json:"period"`
	Outward   BoardEntryDTO `json:"gstr1"`
	Liability BoardEntryDTO `json:"gstr3b"`
}

type BoardResponse struct {
	Period        string        `json:"period"`
	FinancialYear string        `json:"financial_year"`
	Rows          []BoardRowDTO `json:"rows"`
}

func toBoardEntryDTO(e filing.BoardEntry) BoardEntryDTO {
	return BoardEntryDTO{
		RecordID: string(e.RecordID),
		Status:   string(e.Status),
		DueDate:  e.DueDate.Format(dateLayout),
		Color:    string(e.Color),
		Preparer: string(e.Preparer),
		Assigned: string(e.Assigned),
	}
}

type KindSummaryDTO struct {
	Filed   int `json:"filed"`
	Pending int `json:"pending"`
}

type SummaryDTO struct {
	Period        string         `json:"period"`
	FinancialYear string         `json:"financial_year"`
	ActiveClients int            `json:"active_clients"`
	Outward       KindSummaryDTO `json:"gstr1"`
	Liability     KindSummaryDTO `json:"gstr3b"`
}

type DueItemDTO struct {
	ClientID   string `json:"client_id"`
	ClientName string `json:"client_name"`
	Period     string `json:"period"`
	Kind       string `json:"kind"`
	RecordID   string `json:"record_id,omitempty"`
	Status     string `json:"status"`
	DueDate    string `json:"due_date"`
	Overdue    bool   `json:"overdue"`
	Preparer   string `json:"preparer,omitempty"`
}

func toDueItemDTO(d filing.DueItem) DueItemDTO {
	return DueItemDTO{
		ClientID:   string(d.Client.ID),
		ClientName: d.Client.Name,
		Period:     d.Period.String(),
		Kind:       string(d.Kind),
		RecordID:   string(d.RecordID),
		Status:     string(d.Status),
		DueDate:    d.DueDate.Format(dateLayout),
		Overdue:    d.Overdue,
		Preparer:   string(d.Preparer),
	}
}

func formatOptTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
