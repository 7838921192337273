/*
workflow.go - The filing state machine

PURPOSE:
  Engine is the single entry point for everything that changes a return.
  Each operation takes the acting Principal explicitly, checks its guards,
  applies the transition, recomputes derived figures when figures changed,
  persists, then notifies, then logs.

STATE MACHINE (outward return, "gstr1"):

    create ──▶ draft ──submit──▶ under_review ──approve──▶ approved
                 ▲                    │                        │
                 └──────reject────────┘                        │
                                                               ▼
    draft / under_review / approved ─────────file──────────▶ locked

STATE MACHINE (liability return, "gstr3b"):

    create (outward locked) ──▶ pending ──file──▶ locked

  locked is terminal. Every mutation of a locked record fails with ErrLocked.

CONCURRENCY:
  Guard check and write for one record run under a per-record mutex, so two
  callers in the same process never interleave. Stores additionally reject
  writes whose Version is stale (another process). The engine re-reads and
  retries those, which keeps autosave last-write-wins for callers.

SIDE EFFECTS:
  Notifications and activity entries are written after the record. Their
  failures are logged and never returned.

SEE ALSO:
  - variance.go: Derived totals
  - notify.go:   Dispatcher
  - activity.go: ActivityLog
*/
package filing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// maxConflictRetries bounds re-read attempts after ErrConflict.
const maxConflictRetries = 3

type Engine struct {
	store Store
	log   logrus.FieldLogger
	clock func() time.Time
	locks keyedMutex

	Assignments   *AssignmentRegistry
	Notifications *Dispatcher
	Activity      *ActivityLog
}

type Option func(*Engine)

// WithClock replaces time.Now for every timestamp the engine writes.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

func NewEngine(store Store, log logrus.FieldLogger, opts ...Option) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	e := &Engine{
		store: store,
		log:   log.WithField("module", "filing"),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.Activity = NewActivityLog(store, log, e.now)
	e.Notifications = NewDispatcher(store, log, e.now)
	e.Assignments = NewAssignmentRegistry(store, store, e.Activity, log, e.now)
	return e
}

func (e *Engine) now() time.Time { return e.clock() }

// =============================================================================
// CLIENTS
// =============================================================================

func (e *Engine) CreateClient(ctx context.Context, p Principal, name, taxID string) (*Client, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: client name is required", ErrInvalidInput)
	}
	c := Client{
		ID:        ClientID(uuid.NewString()),
		Name:      name,
		TaxID:     strings.TrimSpace(taxID),
		Status:    ClientActive,
		CreatedAt: e.now(),
	}
	if err := e.store.InsertClient(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	e.Activity.Append(ctx, ActivityEntry{
		Actor:    p.ID,
		Action:   ActionClientCreated,
		Detail:   c.Name,
		ClientID: c.ID,
	})
	return &c, nil
}

// DeactivateClient hides a client from the board. Its records are kept.
func (e *Engine) DeactivateClient(ctx context.Context, p Principal, id ClientID) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	if err := e.store.SetClientStatus(ctx, id, ClientInactive); err != nil {
		return err
	}
	e.Activity.Append(ctx, ActivityEntry{
		Actor:    p.ID,
		Action:   ActionClientDeactivated,
		ClientID: id,
	})
	return nil
}

func (e *Engine) GetClient(ctx context.Context, id ClientID) (*Client, error) {
	return e.store.GetClient(ctx, id)
}

func (e *Engine) ListClients(ctx context.Context, activeOnly bool) ([]Client, error) {
	return e.store.ListClients(ctx, activeOnly)
}

func requireAdmin(p Principal) error {
	if err := p.validate(); err != nil {
		return err
	}
	if p.Role != RoleAdmin {
		return fmt.Errorf("%w: role %s cannot manage clients", ErrForbidden, p.Role)
	}
	return nil
}

// =============================================================================
// CREATE OR GET
// =============================================================================

// CreateOrGetRecord returns the record for (clientID, period, kind), creating
// it if absent. A concurrent or repeated create returns the existing row.
func (e *Engine) CreateOrGetRecord(ctx context.Context, p Principal, clientID ClientID, period Period, kind ReturnKind) (FilingRecord, error) {
	switch kind {
	case KindOutward:
		return e.OpenOutward(ctx, p, clientID, period)
	case KindLiability:
		return e.OpenLiability(ctx, p, clientID, period)
	}
	return nil, &FieldError{Field: string(kind), Reason: "unknown return kind"}
}

func (e *Engine) OpenOutward(ctx context.Context, p Principal, clientID ClientID, period Period) (*OutwardReturn, error) {
	if err := e.checkOpen(ctx, p, clientID, period); err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(recordKey(KindOutward, clientID, period))
	defer unlock()

	existing, err := e.store.FindOutward(ctx, clientID, period)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to look up gstr1 record: %w", err)
	}
	if err := e.checkClientActive(ctx, clientID); err != nil {
		return nil, err
	}

	now := e.now()
	r := &OutwardReturn{
		RecordHeader: e.newHeader(p, clientID, period, StatusDraft, now),
		Totals:       ComputeOutward(OutwardFigures{}),
	}
	if err := e.store.InsertOutward(ctx, r); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return e.store.FindOutward(ctx, clientID, period)
		}
		return nil, fmt.Errorf("failed to create gstr1 record: %w", err)
	}

	e.recordCreated(ctx, p, r)
	return r, nil
}

// OpenLiability requires the outward return for the same client and period
// to be locked. The outward total, variance and tax heads are copied once.
func (e *Engine) OpenLiability(ctx context.Context, p Principal, clientID ClientID, period Period) (*LiabilityReturn, error) {
	if err := e.checkOpen(ctx, p, clientID, period); err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(recordKey(KindLiability, clientID, period))
	defer unlock()

	existing, err := e.store.FindLiability(ctx, clientID, period)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to look up gstr3b record: %w", err)
	}
	if err := e.checkClientActive(ctx, clientID); err != nil {
		return nil, err
	}

	outward, err := e.store.FindOutward(ctx, clientID, period)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, &DependencyError{ClientID: clientID, Period: period, OutwardStatus: StatusNotStarted}
	case err != nil:
		return nil, fmt.Errorf("failed to look up gstr1 record: %w", err)
	case !outward.Locked():
		return nil, &DependencyError{ClientID: clientID, Period: period, OutwardStatus: outward.Status}
	}

	now := e.now()
	r := &LiabilityReturn{
		RecordHeader: e.newHeader(p, clientID, period, StatusPending, now),
		Carried: CarriedForward{
			Total:    outward.Totals.Total,
			Variance: outward.Totals.Variance,
			Tax:      outward.Figures.Tax,
		},
	}
	r.TVVariance = ComputeLiabilityVariance(r.Figures)
	if err := e.store.InsertLiability(ctx, r); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return e.store.FindLiability(ctx, clientID, period)
		}
		return nil, fmt.Errorf("failed to create gstr3b record: %w", err)
	}

	e.recordCreated(ctx, p, r)
	return r, nil
}

func (e *Engine) checkOpen(ctx context.Context, p Principal, clientID ClientID, period Period) error {
	if err := p.validate(); err != nil {
		return err
	}
	if err := period.Validate(); err != nil {
		return err
	}
	if clientID == "" {
		return fmt.Errorf("%w: client id is required", ErrInvalidInput)
	}
	return nil
}

// checkClientActive guards creation of new records. Existing records of a
// deactivated client stay readable through create-or-get.
func (e *Engine) checkClientActive(ctx context.Context, clientID ClientID) error {
	c, err := e.store.GetClient(ctx, clientID)
	if err != nil {
		return err
	}
	if c.Status != ClientActive {
		return fmt.Errorf("%w: client %s is inactive", ErrInvalidInput, clientID)
	}
	return nil
}

func (e *Engine) newHeader(p Principal, clientID ClientID, period Period, status Status, now time.Time) RecordHeader {
	return RecordHeader{
		ID:         RecordID(uuid.NewString()),
		ClientID:   clientID,
		Period:     period,
		Status:     status,
		PreparerID: p.ID,
		PreparedAt: &now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (e *Engine) recordCreated(ctx context.Context, p Principal, r FilingRecord) {
	h := r.Header()
	e.log.WithFields(logrus.Fields{
		"record_id": h.ID,
		"client_id": h.ClientID,
		"period":    h.Period.String(),
		"kind":      r.Kind(),
	}).Info("record created")
	e.logActivity(ctx, p, r, ActionRecordCreated, "")
}

// =============================================================================
// READS
// =============================================================================

func (e *Engine) GetOutward(ctx context.Context, id RecordID) (*OutwardReturn, error) {
	return e.store.GetOutward(ctx, id)
}

func (e *Engine) GetLiability(ctx context.Context, id RecordID) (*LiabilityReturn, error) {
	return e.store.GetLiability(ctx, id)
}

func (e *Engine) GetRecord(ctx context.Context, kind ReturnKind, id RecordID) (FilingRecord, error) {
	switch kind {
	case KindOutward:
		return e.GetOutward(ctx, id)
	case KindLiability:
		return e.GetLiability(ctx, id)
	}
	return nil, &FieldError{Field: string(kind), Reason: "unknown return kind"}
}

// =============================================================================
// EDITS
// =============================================================================

// UpdateOutwardFigures overwrites every figure, recomputes total and
// variance and makes the actor the preparer. Allowed in any status but locked.
func (e *Engine) UpdateOutwardFigures(ctx context.Context, p Principal, id RecordID, f OutwardFigures) (OutwardTotals, error) {
	if err := p.validate(); err != nil {
		return OutwardTotals{}, err
	}
	r, err := e.mutateOutward(ctx, id, "edit figures", func(r *OutwardReturn, now time.Time) error {
		r.Figures = f
		r.Totals = ComputeOutward(f)
		r.PreparerID = p.ID
		r.PreparedAt = &now
		return nil
	})
	if err != nil {
		return OutwardTotals{}, err
	}
	e.logActivity(ctx, p, r, ActionFiguresSaved,
		fmt.Sprintf("total=%s variance=%s", r.Totals.Total, r.Totals.Variance))
	return r.Totals, nil
}

// UpdateLiabilityFigures overwrites only the supplied fields and recomputes
// tv_variance. An unknown field rejects the whole update.
func (e *Engine) UpdateLiabilityFigures(ctx context.Context, p Principal, id RecordID, fields map[LiabilityField]decimal.Decimal) error {
	if err := p.validate(); err != nil {
		return err
	}
	var probe LiabilityFigures
	for f := range fields {
		if probe.Field(f) == nil {
			return &FieldError{Field: string(f), Reason: "not a settable liability figure"}
		}
	}
	r, err := e.mutateLiability(ctx, id, "edit figures", func(r *LiabilityReturn, now time.Time) error {
		for f, v := range fields {
			*r.Figures.Field(f) = v
		}
		r.TVVariance = ComputeLiabilityVariance(r.Figures)
		r.PreparerID = p.ID
		r.PreparedAt = &now
		return nil
	})
	if err != nil {
		return err
	}
	e.logActivity(ctx, p, r, ActionFiguresSaved,
		fmt.Sprintf("%d fields, tv_variance=%s", len(fields), r.TVVariance))
	return nil
}

// SetChecklistItem sets or clears one checklist flag. Status is untouched.
func (e *Engine) SetChecklistItem(ctx context.Context, p Principal, id RecordID, item ChecklistItem, done bool) error {
	if err := p.validate(); err != nil {
		return err
	}
	if (&Checklist{}).Entry(item) == nil {
		return &FieldError{Field: string(item), Reason: "unknown checklist item"}
	}
	r, err := e.mutateOutward(ctx, id, "update checklist", func(r *OutwardReturn, now time.Time) error {
		r.Checklist.Set(item, done, now)
		return nil
	})
	if err != nil {
		return err
	}
	e.logActivity(ctx, p, r, ActionChecklistUpdated, fmt.Sprintf("%s=%t", item, done))
	return nil
}

// =============================================================================
// REVIEW
// =============================================================================

func (e *Engine) SubmitForReview(ctx context.Context, p Principal, id RecordID, reviewerID UserID) error {
	if err := p.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(string(reviewerID)) == "" {
		return fmt.Errorf("%w: reviewer is required", ErrInvalidInput)
	}
	r, err := e.mutateOutward(ctx, id, "submit", func(r *OutwardReturn, _ time.Time) error {
		if !CanEdit(p.Role, r.Status) {
			return &TransitionError{Kind: KindOutward, Record: r.ID, From: r.Status, Action: "submit"}
		}
		r.Status = StatusUnderReview
		r.ReviewerID = reviewerID
		return nil
	})
	if err != nil {
		return err
	}
	e.Notifications.Send(ctx, reviewerID, "New Review",
		fmt.Sprintf("GSTR-1 for %s (%s) is ready for your review", e.clientName(ctx, r.ClientID), r.Period),
		CategoryInfo)
	e.logActivity(ctx, p, r, ActionSubmittedForReview, "reviewer="+string(reviewerID))
	return nil
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func ParseDecision(s string) (Decision, error) {
	switch d := Decision(strings.ToLower(strings.TrimSpace(s))); d {
	case DecisionApprove, DecisionReject:
		return d, nil
	}
	return "", fmt.Errorf("%w: decision %q (use approve or reject)", ErrInvalidInput, s)
}

// ReviewDecision approves or sends back a record under review. Only admins
// and reviewers may decide.
func (e *Engine) ReviewDecision(ctx context.Context, p Principal, id RecordID, d Decision, remarks string) error {
	if err := p.validate(); err != nil {
		return err
	}
	if d != DecisionApprove && d != DecisionReject {
		return fmt.Errorf("%w: decision %q", ErrInvalidInput, d)
	}
	if !p.Role.CanReview() {
		return fmt.Errorf("%w: role %s cannot review", ErrForbidden, p.Role)
	}

	r, err := e.mutateOutward(ctx, id, string(d), func(r *OutwardReturn, now time.Time) error {
		if r.Status != StatusUnderReview {
			return &TransitionError{Kind: KindOutward, Record: r.ID, From: r.Status, Action: string(d)}
		}
		if d == DecisionApprove {
			r.Status = StatusApproved
			r.ReviewerID = p.ID
			r.ReviewedAt = &now
		} else {
			r.Status = StatusDraft
			r.ReviewerID = ""
		}
		return nil
	})
	if err != nil {
		return err
	}

	client := e.clientName(ctx, r.ClientID)
	if d == DecisionApprove {
		e.Notifications.Send(ctx, r.PreparerID, "Approved",
			fmt.Sprintf("GSTR-1 for %s (%s) was approved", client, r.Period),
			CategorySuccess)
		e.logActivity(ctx, p, r, ActionReviewApproved, remarks)
		return nil
	}

	msg := fmt.Sprintf("GSTR-1 for %s (%s) was sent back", client, r.Period)
	if remarks = strings.TrimSpace(remarks); remarks != "" {
		msg += ": " + remarks
	}
	e.Notifications.Send(ctx, r.PreparerID, "Sent Back", msg, CategoryWarning)
	e.logActivity(ctx, p, r, ActionReviewRejected, remarks)
	return nil
}

// =============================================================================
// FILE AND LOCK
// =============================================================================

// FileAndLock stores the filing reference and locks the record. Any
// authenticated principal may file from any status but locked.
func (e *Engine) FileAndLock(ctx context.Context, p Principal, kind ReturnKind, id RecordID, reference string) error {
	if err := p.validate(); err != nil {
		return err
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return fmt.Errorf("%w: filing reference is required", ErrInvalidInput)
	}

	lock := func(h *RecordHeader, now time.Time) {
		h.Status = StatusLocked
		h.FilingReference = reference
		h.FiledAt = &now
		h.LockedAt = &now
	}

	var (
		r   FilingRecord
		err error
	)
	switch kind {
	case KindOutward:
		r, err = e.mutateOutward(ctx, id, "file", func(r *OutwardReturn, now time.Time) error {
			lock(&r.RecordHeader, now)
			return nil
		})
	case KindLiability:
		r, err = e.mutateLiability(ctx, id, "file", func(r *LiabilityReturn, now time.Time) error {
			lock(&r.RecordHeader, now)
			return nil
		})
	default:
		return &FieldError{Field: string(kind), Reason: "unknown return kind"}
	}
	if err != nil {
		return err
	}

	h := r.Header()
	e.log.WithFields(logrus.Fields{
		"record_id": h.ID,
		"kind":      kind,
		"reference": reference,
	}).Info("record filed and locked")

	e.Notifications.Send(ctx, h.PreparerID, "Filed",
		fmt.Sprintf("%s for %s (%s) was filed, reference %s", kind.Label(), e.clientName(ctx, h.ClientID), h.Period, reference),
		CategorySuccess)
	e.logActivity(ctx, p, r, ActionFiledAndLocked, "reference="+reference)
	return nil
}

// =============================================================================
// ASSIGNMENTS AND NOTIFICATIONS
// =============================================================================

func (e *Engine) UpsertAssignment(ctx context.Context, p Principal, clientID ClientID, period Period, outwardPreparer, liabilityPreparer *UserID) (*Assignment, error) {
	return e.Assignments.Upsert(ctx, p, clientID, period, outwardPreparer, liabilityPreparer)
}

func (e *Engine) ListNotifications(ctx context.Context, user UserID) ([]Notification, error) {
	return e.Notifications.ListUnread(ctx, user)
}

func (e *Engine) MarkNotificationsRead(ctx context.Context, user UserID) error {
	return e.Notifications.MarkAllRead(ctx, user)
}

// =============================================================================
// READ-MODIFY-WRITE
// =============================================================================

func (e *Engine) mutateOutward(ctx context.Context, id RecordID, action string, fn func(*OutwardReturn, time.Time) error) (*OutwardReturn, error) {
	return mutate(ctx, e, KindOutward, id, action, e.store.GetOutward, e.store.UpdateOutward, fn)
}

func (e *Engine) mutateLiability(ctx context.Context, id RecordID, action string, fn func(*LiabilityReturn, time.Time) error) (*LiabilityReturn, error) {
	return mutate(ctx, e, KindLiability, id, action, e.store.GetLiability, e.store.UpdateLiability, fn)
}

// mutate loads a record under its key lock, rejects locked records, applies
// fn and writes it back. A version conflict re-runs the whole cycle.
func mutate[R FilingRecord](
	ctx context.Context,
	e *Engine,
	kind ReturnKind,
	id RecordID,
	action string,
	get func(context.Context, RecordID) (R, error),
	put func(context.Context, R) error,
	fn func(R, time.Time) error,
) (R, error) {
	var zero R

	unlock := e.locks.Lock(recordIDKey(kind, id))
	defer unlock()

	for attempt := 1; ; attempt++ {
		r, err := get(ctx, id)
		if err != nil {
			return zero, err
		}
		h := r.Header()
		if h.Locked() {
			return zero, &TransitionError{Kind: kind, Record: id, From: h.Status, Action: action}
		}

		now := e.now()
		if err := fn(r, now); err != nil {
			return zero, err
		}
		h.UpdatedAt = now

		err = put(ctx, r)
		if err == nil {
			return r, nil
		}
		if !IsRetryable(err) || attempt >= maxConflictRetries {
			return zero, fmt.Errorf("failed to save %s record %s: %w", kind, id, err)
		}
		e.log.WithFields(logrus.Fields{
			"record_id": id,
			"kind":      kind,
			"attempt":   attempt,
		}).Warn("version conflict, retrying")
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func (e *Engine) logActivity(ctx context.Context, p Principal, r FilingRecord, action ActivityAction, detail string) {
	h := r.Header()
	period := h.Period
	e.Activity.Append(ctx, ActivityEntry{
		Actor:    p.ID,
		Action:   action,
		Detail:   detail,
		ClientID: h.ClientID,
		Period:   &period,
		Kind:     r.Kind(),
		RecordID: h.ID,
	})
}

// clientName falls back to the id when the client cannot be read, since it
// only feeds notification text.
func (e *Engine) clientName(ctx context.Context, id ClientID) string {
	c, err := e.store.GetClient(ctx, id)
	if err != nil {
		return string(id)
	}
	return c.Name
}
