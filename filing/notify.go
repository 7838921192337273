package filing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// NOTIFICATIONS - Per-user inbox fed by workflow transitions
// =============================================================================

type Category string

const (
	CategoryInfo    Category = "info"
	CategorySuccess Category = "success"
	CategoryWarning Category = "warning"
)

type Notification struct {
	ID        string
	Recipient UserID
	Title     string
	Message   string
	Category  Category
	Read      bool
	CreatedAt time.Time
}

// RecentNotificationLimit is how many notifications Recent returns by default.
const RecentNotificationLimit = 10

// Dispatcher writes notifications. Send never fails the caller: the
// transition that triggered it has already been persisted.
type Dispatcher struct {
	store NotificationStore
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewDispatcher(store NotificationStore, log logrus.FieldLogger, now func() time.Time) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		store: store,
		log:   log.WithField("module", "notify"),
		now:   now,
	}
}

// Send records an unread notification for recipient. An empty recipient is
// skipped, a store failure is logged.
func (d *Dispatcher) Send(ctx context.Context, recipient UserID, title, message string, category Category) {
	if recipient == "" {
		d.log.WithField("title", title).Debug("notification without recipient skipped")
		return
	}
	n := Notification{
		ID:        uuid.NewString(),
		Recipient: recipient,
		Title:     title,
		Message:   message,
		Category:  category,
		CreatedAt: d.now(),
	}
	if err := d.store.InsertNotification(ctx, n); err != nil {
		d.log.WithFields(logrus.Fields{
			"recipient": recipient,
			"title":     title,
		}).WithError(err).Warn("failed to store notification")
	}
}

// ListUnread returns the unread notifications of user, newest first.
func (d *Dispatcher) ListUnread(ctx context.Context, user UserID) ([]Notification, error) {
	return d.store.ListNotifications(ctx, user, true, 0)
}

// Recent returns the latest notifications of user, read or not.
func (d *Dispatcher) Recent(ctx context.Context, user UserID, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = RecentNotificationLimit
	}
	return d.store.ListNotifications(ctx, user, false, limit)
}

func (d *Dispatcher) UnreadCount(ctx context.Context, user UserID) (int, error) {
	return d.store.CountUnread(ctx, user)
}

// MarkAllRead marks every notification of user as read. Other users are untouched.
func (d *Dispatcher) MarkAllRead(ctx context.Context, user UserID) error {
	return d.store.MarkAllRead(ctx, user)
}
