package filing

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// FILING BOARD - Read-only projection of one period across active clients
// =============================================================================

// BoardEntry is one return kind of one client. RecordID is empty and Status
// is StatusNotStarted when no record exists yet.
type BoardEntry struct {
	Kind     ReturnKind
	RecordID RecordID
	Status   Status
	DueDate  time.Time
	Color    DueColor

	// Preparer is who last prepared the record; Assigned is the registry's
	// choice. Either may be empty.
	Preparer UserID
	Assigned UserID
}

type BoardRow struct {
	Client    Client
	Period    Period
	Outward   BoardEntry
	Liability BoardEntry
}

// Board returns one row per active client, ordered by client name.
func (e *Engine) Board(ctx context.Context, period Period, now time.Time) ([]BoardRow, error) {
	snap, err := e.loadPeriod(ctx, period)
	if err != nil {
		return nil, err
	}

	rows := make([]BoardRow, 0, len(snap.clients))
	for _, c := range snap.clients {
		var assigned Assignment
		if a, ok := snap.assignments[c.ID]; ok {
			assigned = a
		}
		row := BoardRow{
			Client:    c,
			Period:    period,
			Outward:   newBoardEntry(KindOutward, period, now, assigned.OutwardPreparer),
			Liability: newBoardEntry(KindLiability, period, now, assigned.LiabilityPreparer),
		}
		if r, ok := snap.outward[c.ID]; ok {
			row.Outward.fill(&r.RecordHeader, period, now)
		}
		if r, ok := snap.liability[c.ID]; ok {
			row.Liability.fill(&r.RecordHeader, period, now)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func newBoardEntry(kind ReturnKind, period Period, now time.Time, assigned UserID) BoardEntry {
	return BoardEntry{
		Kind:     kind,
		Status:   StatusNotStarted,
		DueDate:  period.DueDate(kind, now.Location()),
		Color:    DueColorFor(kind, period, StatusNotStarted, now),
		Assigned: assigned,
	}
}

func (b *BoardEntry) fill(h *RecordHeader, period Period, now time.Time) {
	b.RecordID = h.ID
	b.Status = h.Status
	b.Preparer = h.PreparerID
	b.Color = DueColorFor(b.Kind, period, h.Status, now)
}

// =============================================================================
// SUMMARY - Filed vs pending counts
// =============================================================================

type KindSummary struct {
	Kind    ReturnKind
	Filed   int
	Pending int
}

type PeriodSummary struct {
	Period        Period
	ActiveClients int
	Outward       KindSummary
	Liability     KindSummary
}

// Summary counts locked records per kind over active clients. Every active
// client without a locked record counts as pending.
func (e *Engine) Summary(ctx context.Context, period Period) (*PeriodSummary, error) {
	snap, err := e.loadPeriod(ctx, period)
	if err != nil {
		return nil, err
	}

	s := &PeriodSummary{
		Period:        period,
		ActiveClients: len(snap.clients),
		Outward:       KindSummary{Kind: KindOutward},
		Liability:     KindSummary{Kind: KindLiability},
	}
	for _, c := range snap.clients {
		if r, ok := snap.outward[c.ID]; ok && r.Locked() {
			s.Outward.Filed++
		}
		if r, ok := snap.liability[c.ID]; ok && r.Locked() {
			s.Liability.Filed++
		}
	}
	s.Outward.Pending = s.ActiveClients - s.Outward.Filed
	s.Liability.Pending = s.ActiveClients - s.Liability.Filed
	return s, nil
}

// =============================================================================
// DUE ITEMS - Open returns that are overdue or due soon
// =============================================================================

type DueItem struct {
	Client   Client
	Period   Period
	Kind     ReturnKind
	RecordID RecordID
	Status   Status
	DueDate  time.Time
	Overdue  bool
	// Preparer is the record's preparer, else the assigned one.
	Preparer UserID
}

// DueItems lists the unlocked returns of the current filing period (the
// month before now) that are overdue or due within warningDays. Items are
// ordered by due date, then client name.
func (e *Engine) DueItems(ctx context.Context, now time.Time, warningDays int) ([]DueItem, error) {
	if warningDays < 0 {
		return nil, fmt.Errorf("%w: warning days %d", ErrInvalidInput, warningDays)
	}
	period := CurrentFilingPeriod(now)
	rows, err := e.Board(ctx, period, now)
	if err != nil {
		return nil, err
	}

	horizon := now.AddDate(0, 0, warningDays)
	var items []DueItem
	for _, row := range rows {
		for _, entry := range []BoardEntry{row.Outward, row.Liability} {
			if entry.Status == StatusLocked || entry.DueDate.After(horizon) {
				continue
			}
			preparer := entry.Preparer
			if preparer == "" {
				preparer = entry.Assigned
			}
			items = append(items, DueItem{
				Client:   row.Client,
				Period:   period,
				Kind:     entry.Kind,
				RecordID: entry.RecordID,
				Status:   entry.Status,
				DueDate:  entry.DueDate,
				Overdue:  now.After(entry.DueDate),
				Preparer: preparer,
			})
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].DueDate.Equal(items[j].DueDate) {
			return items[i].DueDate.Before(items[j].DueDate)
		}
		return items[i].Client.Name < items[j].Client.Name
	})
	return items, nil
}

// =============================================================================
// PERIOD SNAPSHOT
// =============================================================================

type periodSnapshot struct {
	clients     []Client
	outward     map[ClientID]OutwardReturn
	liability   map[ClientID]LiabilityReturn
	assignments map[ClientID]Assignment
}

func (e *Engine) loadPeriod(ctx context.Context, period Period) (*periodSnapshot, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	clients, err := e.store.ListClients(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	outward, err := e.store.ListOutward(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("failed to list gstr1 records: %w", err)
	}
	liability, err := e.store.ListLiability(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("failed to list gstr3b records: %w", err)
	}
	assignments, err := e.store.ListAssignments(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}

	snap := &periodSnapshot{
		clients:     clients,
		outward:     make(map[ClientID]OutwardReturn, len(outward)),
		liability:   make(map[ClientID]LiabilityReturn, len(liability)),
		assignments: make(map[ClientID]Assignment, len(assignments)),
	}
	for _, r := range outward {
		snap.outward[r.ClientID] = r
	}
	for _, r := range liability {
		snap.liability[r.ClientID] = r
	}
	for _, a := range assignments {
		snap.assignments[a.ClientID] = a
	}
	return snap, nil
}
