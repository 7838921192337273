/*
assignment.go - Who prepares which return for a client and period

PURPOSE:
  Records the preparer responsible for each return kind of a client in a
  period. Assignments are informational: no transition checks them. The
  filing board shows them next to each record.

UPSERT RULES:
  - At most one row per (client, period).
  - An existing row keeps the preparers the caller did not supply and has
    its created_by overwritten; its created_at is kept.
  - There is no delete.

SEE ALSO:
  - board.go: Joins assignments with records
*/
package filing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

type AssignmentRegistry struct {
	store    AssignmentStore
	clients  ClientStore
	activity *ActivityLog
	log      logrus.FieldLogger
	now      func() time.Time
	locks    keyedMutex
}

func NewAssignmentRegistry(store AssignmentStore, clients ClientStore, activity *ActivityLog, log logrus.FieldLogger, now func() time.Time) *AssignmentRegistry {
	if now == nil {
		now = time.Now
	}
	return &AssignmentRegistry{
		store:    store,
		clients:  clients,
		activity: activity,
		log:      log.WithField("module", "assignment"),
		now:      now,
	}
}

// Upsert sets the preparers for (clientID, period). A nil preparer leaves
// the stored value alone; a pointer to "" clears it.
func (r *AssignmentRegistry) Upsert(
	ctx context.Context,
	p Principal,
	clientID ClientID,
	period Period,
	outwardPreparer *UserID,
	liabilityPreparer *UserID,
) (*Assignment, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := period.Validate(); err != nil {
		return nil, err
	}
	if _, err := r.clients.GetClient(ctx, clientID); err != nil {
		return nil, err
	}

	unlock := r.locks.Lock(assignmentKey(clientID, period))
	defer unlock()

	a, err := r.store.GetAssignment(ctx, clientID, period)
	switch {
	case errors.Is(err, ErrNotFound):
		a = &Assignment{ClientID: clientID, Period: period, CreatedAt: r.now()}
	case err != nil:
		return nil, fmt.Errorf("failed to load assignment: %w", err)
	}

	if outwardPreparer != nil {
		a.OutwardPreparer = *outwardPreparer
	}
	if liabilityPreparer != nil {
		a.LiabilityPreparer = *liabilityPreparer
	}
	a.CreatedBy = p.ID

	if err := r.store.SaveAssignment(ctx, *a); err != nil {
		return nil, fmt.Errorf("failed to save assignment: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"client_id": clientID,
		"period":    period.String(),
		"actor":     p.ID,
	}).Debug("assignment saved")

	r.activity.Append(ctx, ActivityEntry{
		Actor:    p.ID,
		Action:   ActionAssignmentUpserted,
		Detail:   fmt.Sprintf("gstr1=%s gstr3b=%s", a.OutwardPreparer, a.LiabilityPreparer),
		ClientID: clientID,
		Period:   &period,
	})
	return a, nil
}

func (r *AssignmentRegistry) Get(ctx context.Context, clientID ClientID, period Period) (*Assignment, error) {
	return r.store.GetAssignment(ctx, clientID, period)
}

func (r *AssignmentRegistry) ListForPeriod(ctx context.Context, period Period) ([]Assignment, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	return r.store.ListAssignments(ctx, period)
}
