package filing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// ACTIVITY LOG - Append-only audit trail
// =============================================================================

type ActivityAction string

const (
	ActionRecordCreated      ActivityAction = "RECORD_CREATED"
	ActionFiguresSaved       ActivityAction = "FIGURES_SAVED"
	ActionChecklistUpdated   ActivityAction = "CHECKLIST_UPDATED"
	ActionSubmittedForReview ActivityAction = "SUBMITTED_FOR_REVIEW"
	ActionReviewApproved     ActivityAction = "REVIEW_APPROVED"
	ActionReviewRejected     ActivityAction = "REVIEW_REJECTED"
	ActionFiledAndLocked     ActivityAction = "FILED_AND_LOCKED"
	ActionAssignmentUpserted ActivityAction = "ASSIGNMENT_UPSERTED"
	ActionClientCreated      ActivityAction = "CLIENT_CREATED"
	ActionClientDeactivated  ActivityAction = "CLIENT_DEACTIVATED"
)

type ActivityEntry struct {
	ID     string
	Actor  UserID
	Action ActivityAction
	Detail string

	// Optional context
	ClientID ClientID
	Period   *Period
	Kind     ReturnKind
	RecordID RecordID

	Timestamp time.Time
}

// ActivityFilter selects entries for ActivityLog.List. Zero fields match
// everything.
type ActivityFilter struct {
	ClientID ClientID
	Actor    UserID
	Actions  []ActivityAction
	Limit    int
}

// Matches reports whether e passes the filter, ignoring Limit.
func (f ActivityFilter) Matches(e ActivityEntry) bool {
	if f.ClientID != "" && e.ClientID != f.ClientID {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if len(f.Actions) == 0 {
		return true
	}
	for _, a := range f.Actions {
		if a == e.Action {
			return true
		}
	}
	return false
}

type ActivityLog struct {
	store ActivityStore
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewActivityLog(store ActivityStore, log logrus.FieldLogger, now func() time.Time) *ActivityLog {
	if now == nil {
		now = time.Now
	}
	return &ActivityLog{
		store: store,
		log:   log.WithField("module", "activity"),
		now:   now,
	}
}

// Append records an entry. Failures are logged and swallowed.
func (a *ActivityLog) Append(ctx context.Context, e ActivityEntry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = a.now()
	}
	if err := a.store.AppendActivity(ctx, e); err != nil {
		a.log.WithFields(logrus.Fields{
			"action": e.Action,
			"actor":  e.Actor,
			"record": e.RecordID,
		}).WithError(err).Error("failed to append activity entry")
	}
}

// List returns matching entries, newest first.
func (a *ActivityLog) List(ctx context.Context, f ActivityFilter) ([]ActivityEntry, error) {
	return a.store.QueryActivity(ctx, f)
}
