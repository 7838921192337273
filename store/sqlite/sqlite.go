/*
Package sqlite provides a SQLite-backed implementation of filing.Store.

PURPOSE:
  Persists clients, assignments, both return kinds, notifications and the
  activity log. In production, the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

KEY TABLES:
  clients:        Client registry (never deleted)
  assignments:    UNIQUE(client_id, month, year), upserted
  gstr1_records:  Outward returns, UNIQUE(client_id, month, year)
  gstr3b_records: Liability returns, UNIQUE(client_id, month, year)
  notifications:  Per-user inbox, ordered by (created_at, seq)
  activity_log:   Append-only, no UPDATE or DELETE is ever issued

STORAGE FORMATS:
  - Money is TEXT via decimal.Decimal's Scanner/Valuer, so values round-trip
    exactly.
  - Timestamps are fixed-width UTC TEXT (timeLayout) so that string order is
    time order.
  - Record rows carry a version column. Updates run
    "... WHERE id = ? AND version = ?" and bump it; zero affected rows is
    ErrNotFound or ErrConflict.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single open connection, which
  also lets ":memory:" databases be shared by every query of one Store.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/filing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := filing.NewEngine(store, logger)

SEE ALSO:
  - filing/store.go: Interface definitions
  - filing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/filing-engine/filing"
)

// timeLayout is RFC3339 with fixed nanosecond width.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements filing.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ filing.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// =============================================================================
// SCHEMA
// =============================================================================

var (
	headerColumns = []string{
		"id", "client_id", "month", "year", "status",
		"preparer_id", "reviewer_id", "prepared_at", "reviewed_at",
		"filing_reference", "filed_at", "locked_at",
		"version", "created_at", "updated_at",
	}

	// headerMutable are rewritten by updates. Key, version and created_at never change.
	headerMutable = []string{
		"status", "preparer_id", "reviewer_id", "prepared_at", "reviewed_at",
		"filing_reference", "filed_at", "locked_at", "updated_at",
	}

	outwardFigureColumns = []string{
		"b2b", "b2c", "credit_note", "debit_note", "sez_exempted", "ledger_total",
		"cgst", "sgst", "igst", "total", "variance",
	}

	carriedColumns = []string{
		"carried_total", "carried_variance", "carried_cgst", "carried_sgst", "carried_igst",
	}
)

func checklistColumns() []string {
	cols := make([]string, 0, 2*len(filing.ChecklistItems))
	for _, item := range filing.ChecklistItems {
		cols = append(cols, "chk_"+string(item), "chk_"+string(item)+"_at")
	}
	return cols
}

func liabilityFieldColumns() []string {
	cols := make([]string, 0, len(filing.LiabilityFields))
	for _, f := range filing.LiabilityFields {
		cols = append(cols, string(f))
	}
	return cols
}

func outwardBodyColumns() []string {
	return append(append([]string{}, outwardFigureColumns...), checklistColumns()...)
}

func liabilityBodyColumns() []string {
	cols := append([]string{}, carriedColumns...)
	cols = append(cols, liabilityFieldColumns()...)
	return append(cols, "tv_variance")
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	recordHeader := `
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id),
		month INTEGER NOT NULL,
		year INTEGER NOT NULL,
		status TEXT NOT NULL,
		preparer_id TEXT NOT NULL DEFAULT '',
		reviewer_id TEXT NOT NULL DEFAULT '',
		prepared_at TEXT,
		reviewed_at TEXT,
		filing_reference TEXT NOT NULL DEFAULT '',
		filed_at TEXT,
		locked_at TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,`

	var checklistDefs []string
	for _, item := range filing.ChecklistItems {
		checklistDefs = append(checklistDefs,
			fmt.Sprintf("chk_%s INTEGER NOT NULL DEFAULT 0", item),
			fmt.Sprintf("chk_%s_at TEXT", item))
	}

	schema := `
	-- Clients (deactivated, never deleted)
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		tax_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_clients_status_name ON clients(status, name);

	-- Preparer assignments per client and period
	CREATE TABLE IF NOT EXISTS assignments (
		client_id TEXT NOT NULL REFERENCES clients(id),
		month INTEGER NOT NULL,
		year INTEGER NOT NULL,
		gstr1_preparer TEXT NOT NULL DEFAULT '',
		gstr3b_preparer TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(client_id, month, year)
	);

	-- Outward returns
	CREATE TABLE IF NOT EXISTS gstr1_records (` + recordHeader + `
		` + columnDefs(outwardFigureColumns, "TEXT NOT NULL DEFAULT '0'") + `,
		` + strings.Join(checklistDefs, ",\n\t\t") + `,
		UNIQUE(client_id, month, year)
	);

	CREATE INDEX IF NOT EXISTS idx_gstr1_period ON gstr1_records(year, month);

	-- Liability returns
	CREATE TABLE IF NOT EXISTS gstr3b_records (` + recordHeader + `
		` + columnDefs(carriedColumns, "TEXT NOT NULL DEFAULT '0'") + `,
		` + columnDefs(liabilityFieldColumns(), "TEXT NOT NULL DEFAULT '0'") + `,
		tv_variance TEXT NOT NULL DEFAULT '0',
		UNIQUE(client_id, month, year)
	);

	CREATE INDEX IF NOT EXISTS idx_gstr3b_period ON gstr3b_records(year, month);

	-- Notifications
	CREATE TABLE IF NOT EXISTS notifications (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		recipient TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		category TEXT NOT NULL,
		is_read INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_recipient
		ON notifications(recipient, is_read, created_at DESC);

	-- Activity log (append-only)
	CREATE TABLE IF NOT EXISTS activity_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		client_id TEXT NOT NULL DEFAULT '',
		month INTEGER,
		year INTEGER,
		kind TEXT NOT NULL DEFAULT '',
		record_id TEXT NOT NULL DEFAULT '',
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activity_client ON activity_log(client_id, timestamp DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

func columnDefs(cols []string, typ string) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = c + " " + typ
	}
	return strings.Join(defs, ",\n\t\t")
}

// =============================================================================
// CLIENTS (filing.ClientStore)
// =============================================================================

func (s *Store) InsertClient(ctx context.Context, c filing.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, tax_id, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.Name, c.TaxID, c.Status, formatTime(c.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return filing.ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert client: %w", err)
	}
	return nil
}

func (s *Store) GetClient(ctx context.Context, id filing.ClientID) (*filing.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, tax_id, status, created_at FROM clients WHERE id = ?
	`, id)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &filing.NotFoundError{What: "client", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return c, nil
}

func (s *Store) ListClients(ctx context.Context, activeOnly bool) ([]filing.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, name, tax_id, status, created_at FROM clients`
	var args []any
	if activeOnly {
		query += ` WHERE status = ?`
		args = append(args, filing.ClientActive)
	}
	query += ` ORDER BY name, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []filing.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

func (s *Store) SetClientStatus(ctx context.Context, id filing.ClientID, status filing.ClientStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE clients SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &filing.NotFoundError{What: "client", ID: string(id)}
	}
	return nil
}

func scanClient(row scannable) (*filing.Client, error) {
	var c filing.Client
	rs := &rowScanner{}
	rs.field(&c.ID, &c.Name, &c.TaxID, &c.Status)
	rs.time(&c.CreatedAt)
	if err := rs.scan(row); err != nil {
		return nil, err
	}
	return &c, nil
}

// =============================================================================
// ASSIGNMENTS (filing.AssignmentStore)
// =============================================================================

// SaveAssignment upserts on (client_id, month, year). created_at is kept
// from the first insert.
func (s *Store) SaveAssignment(ctx context.Context, a filing.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assignments
		(client_id, month, year, gstr1_preparer, gstr3b_preparer, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id, month, year) DO UPDATE SET
			gstr1_preparer = excluded.gstr1_preparer,
			gstr3b_preparer = excluded.gstr3b_preparer,
			created_by = excluded.created_by
	`,
		a.ClientID, int(a.Period.Month), a.Period.Year,
		a.OutwardPreparer, a.LiabilityPreparer,
		a.CreatedBy, formatTime(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save assignment: %w", err)
	}
	return nil
}

const assignmentColumns = `client_id, month, year, gstr1_preparer, gstr3b_preparer, created_by, created_at`

func (s *Store) GetAssignment(ctx context.Context, clientID filing.ClientID, period filing.Period) (*filing.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE client_id = ? AND month = ? AND year = ?`,
		clientID, int(period.Month), period.Year)
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &filing.NotFoundError{What: "assignment", ID: string(clientID) + "/" + period.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

func (s *Store) ListAssignments(ctx context.Context, period filing.Period) ([]filing.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE month = ? AND year = ? ORDER BY client_id`,
		int(period.Month), period.Year)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []filing.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, *a)
	}
	return assignments, rows.Err()
}

func scanAssignment(row scannable) (*filing.Assignment, error) {
	var a filing.Assignment
	rs := &rowScanner{}
	rs.field(&a.ClientID, &a.Period.Month, &a.Period.Year,
		&a.OutwardPreparer, &a.LiabilityPreparer, &a.CreatedBy)
	rs.time(&a.CreatedAt)
	if err := rs.scan(row); err != nil {
		return nil, err
	}
	return &a, nil
}

// =============================================================================
// OUTWARD RETURNS (filing.RecordStore)
// =============================================================================

func outwardColumns() []string {
	return append(append([]string{}, headerColumns...), outwardBodyColumns()...)
}

func outwardBodyArgs(r *filing.OutwardReturn) []any {
	args := []any{
		r.Figures.B2B, r.Figures.B2C, r.Figures.CreditNote, r.Figures.DebitNote,
		r.Figures.SEZExempted, r.Figures.LedgerTotal,
		r.Figures.Tax.CGST, r.Figures.Tax.SGST, r.Figures.Tax.IGST,
		r.Totals.Total, r.Totals.Variance,
	}
	for _, item := range filing.ChecklistItems {
		e := r.Checklist.Entry(item)
		args = append(args, e.Done, optTime(e.At))
	}
	return args
}

func scanOutward(row scannable) (*filing.OutwardReturn, error) {
	var r filing.OutwardReturn
	rs := &rowScanner{}
	rs.header(&r.RecordHeader)
	rs.field(
		&r.Figures.B2B, &r.Figures.B2C, &r.Figures.CreditNote, &r.Figures.DebitNote,
		&r.Figures.SEZExempted, &r.Figures.LedgerTotal,
		&r.Figures.Tax.CGST, &r.Figures.Tax.SGST, &r.Figures.Tax.IGST,
		&r.Totals.Total, &r.Totals.Variance,
	)
	for _, item := range filing.ChecklistItems {
		e := r.Checklist.Entry(item)
		rs.field(&e.Done)
		rs.optTime(&e.At)
	}
	if err := rs.scan(row); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) InsertOutward(ctx context.Context, r *filing.OutwardReturn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.Version = 1
	args := append(headerArgs(&r.RecordHeader), outwardBodyArgs(r)...)
	if err := s.insert(ctx, "gstr1_records", outwardColumns(), args); err != nil {
		return err
	}
	return nil
}

func (s *Store) GetOutward(ctx context.Context, id filing.RecordID) (*filing.OutwardReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+strings.Join(outwardColumns(), ", ")+` FROM gstr1_records WHERE id = ?`, id)
	r, err := scanOutward(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &filing.NotFoundError{What: "gstr1 record", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get gstr1 record: %w", err)
	}
	return r, nil
}

func (s *Store) FindOutward(ctx context.Context, clientID filing.ClientID, period filing.Period) (*filing.OutwardReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+strings.Join(outwardColumns(), ", ")+` FROM gstr1_records WHERE client_id = ? AND month = ? AND year = ?`,
		clientID, int(period.Month), period.Year)
	r, err := scanOutward(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &filing.NotFoundError{What: "gstr1 record", ID: string(clientID) + "/" + period.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find gstr1 record: %w", err)
	}
	return r, nil
}

func (s *Store) UpdateOutward(ctx context.Context, r *filing.OutwardReturn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cols := append(append([]string{}, headerMutable...), outwardBodyColumns()...)
	args := append(headerMutableArgs(&r.RecordHeader), outwardBodyArgs(r)...)
	if err := s.update(ctx, "gstr1_records", "gstr1 record", cols, args, r.ID, r.Version); err != nil {
		return err
	}
	r.Version++
	return nil
}

func (s *Store) ListOutward(ctx context.Context, period filing.Period) ([]filing.OutwardReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(outwardColumns(), ", ")+` FROM gstr1_records WHERE month = ? AND year = ? ORDER BY client_id`,
		int(period.Month), period.Year)
	if err != nil {
		return nil, fmt.Errorf("failed to list gstr1 records: %w", err)
	}
	defer rows.Close()

	var records []filing.OutwardReturn
	for rows.Next() {
		r, err := scanOutward(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan gstr1 record: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

// =============================================================================
// LIABILITY RETURNS (filing.RecordStore)
// =============================================================================

func liabilityColumns() []string {
	return append(append([]string{}, headerColumns...), liabilityBodyColumns()...)
}

func liabilityBodyArgs(r *filing.LiabilityReturn) []any {
	args := []any{
		r.Carried.Total, r.Carried.Variance,
		r.Carried.Tax.CGST, r.Carried.Tax.SGST, r.Carried.Tax.IGST,
	}
	for _, f := range filing.LiabilityFields {
		args = append(args, *r.Figures.Field(f))
	}
	return append(args, r.TVVariance)
}

func scanLiability(row scannable) (*filing.LiabilityReturn, error) {
	var r filing.LiabilityReturn
	rs := &rowScanner{}
	rs.header(&r.RecordHeader)
	rs.field(
		&r.Carried.Total, &r.Carried.Variance,
		&r.Carried.Tax.CGST, &r.Carried.Tax.SGST, &r.Carried.Tax.IGST,
	)
	for _, f := range filing.LiabilityFields {
		rs.field(r.Figures.Field(f))
	}
	rs.field(&r.TVVariance)
	if err := rs.scan(row); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) InsertLiability(ctx context.Context, r *filing.LiabilityReturn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.Version = 1
	args := append(headerArgs(&r.RecordHeader), liabilityBodyArgs(r)...)
	return s.insert(ctx, "gstr3b_records", liabilityColumns(), args)
}

func (s *Store) GetLiability(ctx context.Context, id filing.RecordID) (*filing.LiabilityReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+strings.Join(liabilityColumns(), ", ")+` FROM gstr3b_records WHERE id = ?`, id)
	r, err := scanLiability(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &filing.NotFoundError{What: "gstr3b record", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get gstr3b record: %w", err)
	}
	return r, nil
}

func (s *Store) FindLiability(ctx context.Context, clientID filing.ClientID, period filing.Period) (*filing.LiabilityReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+strings.Join(liabilityColumns(), ", ")+` FROM gstr3b_records WHERE client_id = ? AND month = ? AND year = ?`,
		clientID, int(period.Month), period.Year)
	r, err := scanLiability(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &filing.NotFoundError{What: "gstr3b record", ID: string(clientID) + "/" + period.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find gstr3b record: %w", err)
	}
	return r, nil
}

func (s *Store) UpdateLiability(ctx context.Context, r *filing.LiabilityReturn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cols := append(append([]string{}, headerMutable...), liabilityBodyColumns()...)
	args := append(headerMutableArgs(&r.RecordHeader), liabilityBodyArgs(r)...)
	if err := s.update(ctx, "gstr3b_records", "gstr3b record", cols, args, r.ID, r.Version); err != nil {
		return err
	}
	r.Version++
	return nil
}

func (s *Store) ListLiability(ctx context.Context, period filing.Period) ([]filing.LiabilityReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(liabilityColumns(), ", ")+` FROM gstr3b_records WHERE month = ? AND year = ? ORDER BY client_id`,
		int(period.Month), period.Year)
	if err != nil {
		return nil, fmt.Errorf("failed to list gstr3b records: %w", err)
	}
	defer rows.Close()

	var records []filing.LiabilityReturn
	for rows.Next() {
		r, err := scanLiability(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan gstr3b record: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

// =============================================================================
// RECORD HELPERS
// =============================================================================

func headerArgs(h *filing.RecordHeader) []any {
	return []any{
		h.ID, h.ClientID, int(h.Period.Month), h.Period.Year, h.Status,
		h.PreparerID, h.ReviewerID, optTime(h.PreparedAt), optTime(h.ReviewedAt),
		h.FilingReference, optTime(h.FiledAt), optTime(h.LockedAt),
		h.Version, formatTime(h.CreatedAt), formatTime(h.UpdatedAt),
	}
}

func headerMutableArgs(h *filing.RecordHeader) []any {
	return []any{
		h.Status, h.PreparerID, h.ReviewerID, optTime(h.PreparedAt), optTime(h.ReviewedAt),
		h.FilingReference, optTime(h.FiledAt), optTime(h.LockedAt), formatTime(h.UpdatedAt),
	}
}

// insert writes one record row. Table and column names come from the
// closed lists above, never from callers.
func (s *Store) insert(ctx context.Context, table string, cols []string, args []any) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, table, strings.Join(cols, ", "), placeholders)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueConstraintError(err) {
			return filing.ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

// update rewrites cols of the row with id if its version still matches.
func (s *Store) update(ctx context.Context, table, what string, cols []string, args []any, id filing.RecordID, version int64) error {
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	query := fmt.Sprintf(`UPDATE %s SET %s, version = version + 1 WHERE id = ? AND version = ?`,
		table, strings.Join(sets, ", "))

	res, err := s.db.ExecContext(ctx, query, append(args, id, version)...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", what, err)
	}
	if n > 0 {
		return nil
	}

	var count int
	if err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE id = ?`, table), id,
	).Scan(&count); err != nil {
		return fmt.Errorf("failed to check %s: %w", what, err)
	}
	if count == 0 {
		return &filing.NotFoundError{What: what, ID: string(id)}
	}
	return filing.ErrConflict
}

// =============================================================================
// NOTIFICATIONS (filing.NotificationStore)
// =============================================================================

func (s *Store) InsertNotification(ctx context.Context, n filing.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient, title, message, category, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.Recipient, n.Title, n.Message, n.Category, n.Read, formatTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, recipient filing.UserID, unreadOnly bool, limit int) ([]filing.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, recipient, title, message, category, is_read, created_at
		FROM notifications
		WHERE recipient = ?`
	args := []any{recipient}
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC, seq DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []filing.Notification
	for rows.Next() {
		var n filing.Notification
		rs := &rowScanner{}
		rs.field(&n.ID, &n.Recipient, &n.Title, &n.Message, &n.Category, &n.Read)
		rs.time(&n.CreatedAt)
		if err := rs.scan(rows); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (s *Store) CountUnread(ctx context.Context, recipient filing.UserID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient = ? AND is_read = 0`, recipient,
	).Scan(&count)
	return count, err
}

func (s *Store) MarkAllRead(ctx context.Context, recipient filing.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE recipient = ? AND is_read = 0`, recipient)
	if err != nil {
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return nil
}

// =============================================================================
// ACTIVITY LOG (filing.ActivityStore)
// =============================================================================

func (s *Store) AppendActivity(ctx context.Context, e filing.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var month, year sql.NullInt64
	if e.Period != nil {
		month = sql.NullInt64{Int64: int64(e.Period.Month), Valid: true}
		year = sql.NullInt64{Int64: int64(e.Period.Year), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log
		(id, actor, action, detail, client_id, month, year, kind, record_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Actor, e.Action, e.Detail, e.ClientID, month, year, e.Kind, e.RecordID, formatTime(e.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

func (s *Store) QueryActivity(ctx context.Context, f filing.ActivityFilter) ([]filing.ActivityEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if f.ClientID != "" {
		where = append(where, "client_id = ?")
		args = append(args, f.ClientID)
	}
	if f.Actor != "" {
		where = append(where, "actor = ?")
		args = append(args, f.Actor)
	}
	if len(f.Actions) > 0 {
		where = append(where, "action IN ("+strings.TrimSuffix(strings.Repeat("?, ", len(f.Actions)), ", ")+")")
		for _, a := range f.Actions {
			args = append(args, a)
		}
	}

	query := `
		SELECT id, actor, action, detail, client_id, month, year, kind, record_id, timestamp
		FROM activity_log`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY timestamp DESC, seq DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	defer rows.Close()

	var entries []filing.ActivityEntry
	for rows.Next() {
		var (
			e           filing.ActivityEntry
			month, year sql.NullInt64
		)
		rs := &rowScanner{}
		rs.field(&e.ID, &e.Actor, &e.Action, &e.Detail, &e.ClientID, &month, &year, &e.Kind, &e.RecordID)
		rs.time(&e.Timestamp)
		if err := rs.scan(rows); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		if month.Valid && year.Valid {
			e.Period = &filing.Period{Month: time.Month(month.Int64), Year: int(year.Int64)}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// SCANNING
// =============================================================================

type scannable interface {
	Scan(dest ...any) error
}

// rowScanner collects scan destinations and the conversions to run once a
// row has been read.
type rowScanner struct {
	dest  []any
	after []func() error
}

func (rs *rowScanner) field(dest ...any) {
	rs.dest = append(rs.dest, dest...)
}

func (rs *rowScanner) time(t *time.Time) {
	var raw string
	rs.dest = append(rs.dest, &raw)
	rs.after = append(rs.after, func() error {
		v, err := parseTime(raw)
		*t = v
		return err
	})
}

func (rs *rowScanner) optTime(t **time.Time) {
	var raw sql.NullString
	rs.dest = append(rs.dest, &raw)
	rs.after = append(rs.after, func() error {
		if !raw.Valid {
			*t = nil
			return nil
		}
		v, err := parseTime(raw.String)
		*t = &v
		return err
	})
}

func (rs *rowScanner) header(h *filing.RecordHeader) {
	rs.field(&h.ID, &h.ClientID, &h.Period.Month, &h.Period.Year, &h.Status,
		&h.PreparerID, &h.ReviewerID)
	rs.optTime(&h.PreparedAt)
	rs.optTime(&h.ReviewedAt)
	rs.field(&h.FilingReference)
	rs.optTime(&h.FiledAt)
	rs.optTime(&h.LockedAt)
	rs.field(&h.Version)
	rs.time(&h.CreatedAt)
	rs.time(&h.UpdatedAt)
}

func (rs *rowScanner) scan(row scannable) error {
	if err := row.Scan(rs.dest...); err != nil {
		return err
	}
	for _, fn := range rs.after {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func optTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
