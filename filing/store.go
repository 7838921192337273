/*
store.go - Persistence interfaces for clients, assignments, records and side effects

PURPOSE:
  Defines the boundary between the workflow engine and the database. The
  engine prescribes record shapes and invariants; any store that enforces
  them can be plugged in.

KEY INTERFACES:
  ClientStore:       Client registry (no delete)
  AssignmentStore:   (client, period) -> preparers, keyed upsert
  RecordStore:       Outward and liability returns, one row per key
  NotificationStore: Per-user inbox
  ActivityStore:     Append-only audit trail

STORE INVARIANTS:
  - Insert* of a record whose (client, period) key already exists for that
    kind returns ErrDuplicateKey and leaves the existing row untouched.
  - Update* succeeds only when the stored Version equals the caller's
    Version; the stored Version is then incremented and so is the caller's.
    A mismatch returns ErrConflict, a missing row ErrNotFound.
  - Get and Find methods return ErrNotFound (possibly wrapped) for missing rows.
  - Activity entries are never updated or deleted.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - filing/store/memory.go: In-memory for testing and development

SEE ALSO:
  - workflow.go: The only writer of status, reviewer and lock fields
*/
package filing

import "context"

type ClientStore interface {
	InsertClient(ctx context.Context, c Client) error
	GetClient(ctx context.Context, id ClientID) (*Client, error)
	// ListClients returns clients ordered by name.
	ListClients(ctx context.Context, activeOnly bool) ([]Client, error)
	SetClientStatus(ctx context.Context, id ClientID, status ClientStatus) error
}

type AssignmentStore interface {
	// SaveAssignment inserts or overwrites the row for (ClientID, Period).
	// CreatedAt of an existing row is preserved.
	SaveAssignment(ctx context.Context, a Assignment) error
	GetAssignment(ctx context.Context, clientID ClientID, period Period) (*Assignment, error)
	ListAssignments(ctx context.Context, period Period) ([]Assignment, error)
}

type RecordStore interface {
	InsertOutward(ctx context.Context, r *OutwardReturn) error
	GetOutward(ctx context.Context, id RecordID) (*OutwardReturn, error)
	FindOutward(ctx context.Context, clientID ClientID, period Period) (*OutwardReturn, error)
	UpdateOutward(ctx context.Context, r *OutwardReturn) error
	ListOutward(ctx context.Context, period Period) ([]OutwardReturn, error)

	InsertLiability(ctx context.Context, r *LiabilityReturn) error
	GetLiability(ctx context.Context, id RecordID) (*LiabilityReturn, error)
	FindLiability(ctx context.Context, clientID ClientID, period Period) (*LiabilityReturn, error)
	UpdateLiability(ctx context.Context, r *LiabilityReturn) error
	ListLiability(ctx context.Context, period Period) ([]LiabilityReturn, error)
}

type NotificationStore interface {
	InsertNotification(ctx context.Context, n Notification) error
	// ListNotifications returns newest first. limit <= 0 means no limit.
	ListNotifications(ctx context.Context, recipient UserID, unreadOnly bool, limit int) ([]Notification, error)
	CountUnread(ctx context.Context, recipient UserID) (int, error)
	MarkAllRead(ctx context.Context, recipient UserID) error
}

type ActivityStore interface {
	AppendActivity(ctx context.Context, e ActivityEntry) error
	// QueryActivity returns newest first.
	QueryActivity(ctx context.Context, f ActivityFilter) ([]ActivityEntry, error)
}

// Store is everything the engine needs.
type Store interface {
	ClientStore
	AssignmentStore
	RecordStore
	NotificationStore
	ActivityStore
}
