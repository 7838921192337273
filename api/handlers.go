/*
handlers.go - HTTP API handlers for the filing workflow

PURPOSE:
  Exposes the filing engine via REST API. Handles HTTP request/response,
  JSON serialization and request validation, and delegates to the engine.

ENDPOINTS:
  Clients:
    GET    /api/clients                      List clients (?active=true)
    POST   /api/clients                      Create client (admin)
    POST   /api/clients/{id}/deactivate      Deactivate client (admin)

  Assignments:
    GET    /api/assignments?period=YYYY-MM   Assignments of a period
    PUT    /api/assignments                  Upsert preparers

  Returns ({kind} is gstr1 or gstr3b):
    POST   /api/returns/{kind}               Create or get for (client, period)
    GET    /api/returns/{kind}/{id}          Get one return
    PUT    /api/returns/gstr1/{id}/figures   Autosave outward figures
    PUT    /api/returns/gstr1/{id}/checklist Toggle a checklist item
    POST   /api/returns/gstr1/{id}/submit    Submit for review
    POST   /api/returns/gstr1/{id}/review    Approve or send back
    PUT    /api/returns/gstr3b/{id}/figures  Partial liability update
    POST   /api/returns/{kind}/{id}/file     File and lock

  Inbox and reports:
    GET    /api/notifications                Unread + recent for the caller
    POST   /api/notifications/read           Mark all read
    GET    /api/activity                     Audit trail (?client_id=&limit=)
    GET    /api/board?period=YYYY-MM         Board with due colors
    GET    /api/summary?period=YYYY-MM       Filed vs pending counts
    GET    /api/due-dates                    Overdue and due-soon returns

REQUEST FLOW:
  1. Resolve principal (RequirePrincipal middleware)
  2. Decode and validate body
  3. Call the engine
  4. Serialize response, or map the error in fail()

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Error mapping
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/warp/filing-engine/filing"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500

	defaultMaxBodyBytes = 1 << 20
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine   *filing.Engine
	Log      logrus.FieldLogger
	Validate *validator.Validate
	Clock    func() time.Time

	// WarningDays is the due-soon horizon of /api/due-dates.
	WarningDays int

	// Ping checks the backing store for /healthz. Nil means always healthy.
	Ping func(ctx context.Context) error

	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64
}

// NewHandler creates a handler around the engine.
func NewHandler(engine *filing.Engine, log logrus.FieldLogger) *Handler {
	return &Handler{
		Engine:      engine,
		Log:         log.WithField("module", "api"),
		Validate:    newValidator(),
		Clock:        time.Now,
		WarningDays:  3,
		MaxBodyBytes: defaultMaxBodyBytes,
	}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (h *Handler) now() time.Time { return h.Clock() }

// decode reads a JSON body into dst and runs struct validation. It writes
// the error response itself and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	body := http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large", nil)
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.Validate.Struct(dst); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

// principal is always present behind RequirePrincipal.
func principal(r *http.Request) filing.Principal {
	p, _ := PrincipalFrom(r.Context())
	return p
}

// periodParam reads ?period=YYYY-MM, defaulting to the current filing period.
func (h *Handler) periodParam(r *http.Request) (filing.Period, error) {
	s := r.URL.Query().Get("period")
	if s == "" {
		return filing.CurrentFilingPeriod(h.now()), nil
	}
	return filing.ParsePeriod(s)
}

func recordID(r *http.Request) filing.RecordID {
	return filing.RecordID(chi.URLParam(r, "id"))
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Ping != nil {
		if err := h.Ping(r.Context()); err != nil {
			h.Log.WithError(err).Error("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// CLIENT HANDLERS
// =============================================================================

func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	clients, err := h.Engine.ListClients(r.Context(), activeOnly)
	if err != nil {
		h.fail(w, r, "ListClients", err)
		return
	}

	dtos := make([]ClientDTO, len(clients))
	for i, c := range clients {
		dtos[i] = toClientDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.Engine.CreateClient(r.Context(), principal(r), req.Name, req.TaxID)
	if err != nil {
		h.fail(w, r, "CreateClient", err)
		return
	}
	writeJSON(w, http.StatusCreated, toClientDTO(*c))
}

func (h *Handler) DeactivateClient(w http.ResponseWriter, r *http.Request) {
	id := filing.ClientID(chi.URLParam(r, "id"))
	if err := h.Engine.DeactivateClient(r.Context(), principal(r), id); err != nil {
		h.fail(w, r, "DeactivateClient", err)
		return
	}
	c, err := h.Engine.GetClient(r.Context(), id)
	if err != nil {
		h.fail(w, r, "DeactivateClient", err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(*c))
}

// =============================================================================
// ASSIGNMENT HANDLERS
// =============================================================================

func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	period, err := h.periodParam(r)
	if err != nil {
		h.fail(w, r, "ListAssignments", err)
		return
	}
	assignments, err := h.Engine.Assignments.ListForPeriod(r.Context(), period)
	if err != nil {
		h.fail(w, r, "ListAssignments", err)
		return
	}

	dtos := make([]AssignmentDTO, len(assignments))
	for i, a := range assignments {
		dtos[i] = toAssignmentDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) UpsertAssignment(w http.ResponseWriter, r *http.Request) {
	var req UpsertAssignmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	period, err := filing.ParsePeriod(req.Period)
	if err != nil {
		h.fail(w, r, "UpsertAssignment", err)
		return
	}

	a, err := h.Engine.UpsertAssignment(r.Context(), principal(r),
		filing.ClientID(req.ClientID), period,
		optUserID(req.OutwardPreparer), optUserID(req.LiabilityPreparer))
	if err != nil {
		h.fail(w, r, "UpsertAssignment", err)
		return
	}
	writeJSON(w, http.StatusOK, toAssignmentDTO(*a))
}

func optUserID(s *string) *filing.UserID {
	if s == nil {
		return nil
	}
	id := filing.UserID(strings.TrimSpace(*s))
	return &id
}

// =============================================================================
// RETURN HANDLERS (both kinds)
// =============================================================================

// OpenReturn creates the return for (client, period) or returns the
// existing one. Repeating the call is safe.
func (h *Handler) OpenReturn(kind filing.ReturnKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OpenReturnRequest
		if !h.decode(w, r, &req) {
			return
		}
		period, err := filing.ParsePeriod(req.Period)
		if err != nil {
			h.fail(w, r, "OpenReturn", err)
			return
		}

		p := principal(r)
		rec, err := h.Engine.CreateOrGetRecord(r.Context(), p, filing.ClientID(req.ClientID), period, kind)
		if err != nil {
			h.fail(w, r, "OpenReturn", err)
			return
		}

		writeJSON(w, http.StatusOK, toRecordDTO(rec, p.Role, h.now()))
	}
}

func (h *Handler) GetReturn(kind filing.ReturnKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := h.Engine.GetRecord(r.Context(), kind, recordID(r))
		if err != nil {
			h.fail(w, r, "GetReturn", err)
			return
		}
		writeJSON(w, http.StatusOK, toRecordDTO(rec, principal(r).Role, h.now()))
	}
}

func (h *Handler) FileReturn(kind filing.ReturnKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req FileRequest
		if !h.decode(w, r, &req) {
			return
		}

		p := principal(r)
		id := recordID(r)
		if err := h.Engine.FileAndLock(r.Context(), p, kind, id, req.Reference); err != nil {
			h.fail(w, r, "FileReturn", err)
			return
		}
		h.writeRecord(w, r, kind, id)
	}
}

// writeRecord re-reads a record after a transition and writes it.
func (h *Handler) writeRecord(w http.ResponseWriter, r *http.Request, kind filing.ReturnKind, id filing.RecordID) {
	rec, err := h.Engine.GetRecord(r.Context(), kind, id)
	if err != nil {
		h.fail(w, r, "GetReturn", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(rec, principal(r).Role, h.now()))
}

// =============================================================================
// OUTWARD RETURN HANDLERS
// =============================================================================

// UpdateOutwardFigures is the autosave endpoint. It answers with the
// recomputed totals only.
func (h *Handler) UpdateOutwardFigures(w http.ResponseWriter, r *http.Request) {
	var req OutwardFiguresRequest
	if !h.decode(w, r, &req) {
		return
	}

	totals, err := h.Engine.UpdateOutwardFigures(r.Context(), principal(r), recordID(r), req.toFigures())
	if err != nil {
		h.fail(w, r, "UpdateOutwardFigures", err)
		return
	}
	writeJSON(w, http.StatusOK, OutwardTotalsDTO{Total: totals.Total, Variance: totals.Variance})
}

func (h *Handler) SetChecklistItem(w http.ResponseWriter, r *http.Request) {
	var req ChecklistRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := filing.ParseChecklistItem(req.Item)
	if err != nil {
		h.fail(w, r, "SetChecklistItem", err)
		return
	}

	id := recordID(r)
	if err := h.Engine.SetChecklistItem(r.Context(), principal(r), id, item, *req.Done); err != nil {
		h.fail(w, r, "SetChecklistItem", err)
		return
	}
	h.writeRecord(w, r, filing.KindOutward, id)
}

func (h *Handler) SubmitForReview(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !h.decode(w, r, &req) {
		return
	}

	id := recordID(r)
	if err := h.Engine.SubmitForReview(r.Context(), principal(r), id, filing.UserID(strings.TrimSpace(req.ReviewerID))); err != nil {
		h.fail(w, r, "SubmitForReview", err)
		return
	}
	h.writeRecord(w, r, filing.KindOutward, id)
}

func (h *Handler) ReviewDecision(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if !h.decode(w, r, &req) {
		return
	}
	decision, err := filing.ParseDecision(req.Decision)
	if err != nil {
		h.fail(w, r, "ReviewDecision", err)
		return
	}

	id := recordID(r)
	if err := h.Engine.ReviewDecision(r.Context(), principal(r), id, decision, req.Remarks); err != nil {
		h.fail(w, r, "ReviewDecision", err)
		return
	}
	h.writeRecord(w, r, filing.KindOutward, id)
}

// =============================================================================
// LIABILITY RETURN HANDLERS
// =============================================================================

func (h *Handler) UpdateLiabilityFigures(w http.ResponseWriter, r *http.Request) {
	var req LiabilityFiguresRequest
	if !h.decode(w, r, &req) {
		return
	}
	fields, err := filing.ParseLiabilityFigures(req.Fields)
	if err != nil {
		h.fail(w, r, "UpdateLiabilityFigures", err)
		return
	}

	id := recordID(r)
	if err := h.Engine.UpdateLiabilityFigures(r.Context(), principal(r), id, fields); err != nil {
		h.fail(w, r, "UpdateLiabilityFigures", err)
		return
	}
	h.writeRecord(w, r, filing.KindLiability, id)
}

// =============================================================================
// NOTIFICATION HANDLERS
// =============================================================================

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	user := principal(r).ID
	unread, err := h.Engine.ListNotifications(r.Context(), user)
	if err != nil {
		h.fail(w, r, "ListNotifications", err)
		return
	}
	recent, err := h.Engine.Notifications.Recent(r.Context(), user, filing.RecentNotificationLimit)
	if err != nil {
		h.fail(w, r, "ListNotifications", err)
		return
	}

	writeJSON(w, http.StatusOK, NotificationsResponse{
		Unread:      toNotificationDTOs(unread),
		UnreadCount: len(unread),
		Recent:      toNotificationDTOs(recent),
	})
}

func (h *Handler) MarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.MarkNotificationsRead(r.Context(), principal(r).ID); err != nil {
		h.fail(w, r, "MarkNotificationsRead", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ACTIVITY AND REPORT HANDLERS
// =============================================================================

func (h *Handler) ListActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultActivityLimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = min(n, maxActivityLimit)
	}

	entries, err := h.Engine.Activity.List(r.Context(), filing.ActivityFilter{
		ClientID: filing.ClientID(q.Get("client_id")),
		Actor:    filing.UserID(q.Get("actor")),
		Limit:    limit,
	})
	if err != nil {
		h.fail(w, r, "ListActivity", err)
		return
	}

	dtos := make([]ActivityDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toActivityDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) Board(w http.ResponseWriter, r *http.Request) {
	period, err := h.periodParam(r)
	if err != nil {
		h.fail(w, r, "Board", err)
		return
	}
	rows, err := h.Engine.Board(r.Context(), period, h.now())
	if err != nil {
		h.fail(w, r, "Board", err)
		return
	}

	dtos := make([]BoardRowDTO, len(rows))
	for i, row := range rows {
		dtos[i] = BoardRowDTO{
			Client:    toClientDTO(row.Client),
			Period:    row.Period.String(),
			Outward:   toBoardEntryDTO(row.Outward),
			Liability: toBoardEntryDTO(row.Liability),
		}
	}
	writeJSON(w, http.StatusOK, BoardResponse{
		Period:        period.String(),
		FinancialYear: period.FinancialYear().Label(),
		Rows:          dtos,
	})
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	period, err := h.periodParam(r)
	if err != nil {
		h.fail(w, r, "Summary", err)
		return
	}
	s, err := h.Engine.Summary(r.Context(), period)
	if err != nil {
		h.fail(w, r, "Summary", err)
		return
	}

	writeJSON(w, http.StatusOK, SummaryDTO{
		Period:        s.Period.String(),
		FinancialYear: s.Period.FinancialYear().Label(),
		ActiveClients: s.ActiveClients,
		Outward:       KindSummaryDTO{Filed: s.Outward.Filed, Pending: s.Outward.Pending},
		Liability:     KindSummaryDTO{Filed: s.Liability.Filed, Pending: s.Liability.Pending},
	})
}

func (h *Handler) DueDates(w http.ResponseWriter, r *http.Request) {
	items, err := h.Engine.DueItems(r.Context(), h.now(), h.WarningDays)
	if err != nil {
		h.fail(w, r, "DueDates", err)
		return
	}

	dtos := make([]DueItemDTO, len(items))
	for i, item := range items {
		dtos[i] = toDueItemDTO(item)
	}
	writeJSON(w, http.StatusOK, dtos)
}
