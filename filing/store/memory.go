// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/filing-engine/filing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	clients     map[filing.ClientID]filing.Client
	assignments map[key]filing.Assignment

	outward        map[filing.RecordID]filing.OutwardReturn
	outwardByKey   map[key]filing.RecordID
	liability      map[filing.RecordID]filing.LiabilityReturn
	liabilityByKey map[key]filing.RecordID

	notifications []filing.Notification
	activity      []filing.ActivityEntry
}

type key struct {
	ClientID filing.ClientID
	Period   filing.Period
}

var _ filing.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		clients:        make(map[filing.ClientID]filing.Client),
		assignments:    make(map[key]filing.Assignment),
		outward:        make(map[filing.RecordID]filing.OutwardReturn),
		outwardByKey:   make(map[key]filing.RecordID),
		liability:      make(map[filing.RecordID]filing.LiabilityReturn),
		liabilityByKey: make(map[key]filing.RecordID),
	}
}

// =============================================================================
// CLIENTS
// =============================================================================

func (m *Memory) InsertClient(_ context.Context, c filing.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[c.ID]; ok {
		return filing.ErrDuplicateKey
	}
	m.clients[c.ID] = c
	return nil
}

func (m *Memory) GetClient(_ context.Context, id filing.ClientID) (*filing.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[id]
	if !ok {
		return nil, &filing.NotFoundError{What: "client", ID: string(id)}
	}
	return &c, nil
}

func (m *Memory) ListClients(_ context.Context, activeOnly bool) ([]filing.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []filing.Client
	for _, c := range m.clients {
		if activeOnly && c.Status != filing.ClientActive {
			continue
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *Memory) SetClientStatus(_ context.Context, id filing.ClientID, status filing.ClientStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok {
		return &filing.NotFoundError{What: "client", ID: string(id)}
	}
	c.Status = status
	m.clients[id] = c
	return nil
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

func (m *Memory) SaveAssignment(_ context.Context, a filing.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{ClientID: a.ClientID, Period: a.Period}
	if existing, ok := m.assignments[k]; ok {
		a.CreatedAt = existing.CreatedAt
	}
	m.assignments[k] = a
	return nil
}

func (m *Memory) GetAssignment(_ context.Context, clientID filing.ClientID, period filing.Period) (*filing.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assignments[key{ClientID: clientID, Period: period}]
	if !ok {
		return nil, &filing.NotFoundError{What: "assignment", ID: string(clientID) + "/" + period.String()}
	}
	return &a, nil
}

func (m *Memory) ListAssignments(_ context.Context, period filing.Period) ([]filing.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []filing.Assignment
	for k, a := range m.assignments {
		if k.Period == period {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ClientID < result[j].ClientID })
	return result, nil
}

// =============================================================================
// OUTWARD RETURNS
// =============================================================================

func (m *Memory) InsertOutward(_ context.Context, r *filing.OutwardReturn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{ClientID: r.ClientID, Period: r.Period}
	if _, ok := m.outwardByKey[k]; ok {
		return filing.ErrDuplicateKey
	}
	r.Version = 1
	m.outward[r.ID] = *r
	m.outwardByKey[k] = r.ID
	return nil
}

func (m *Memory) GetOutward(_ context.Context, id filing.RecordID) (*filing.OutwardReturn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.outward[id]
	if !ok {
		return nil, &filing.NotFoundError{What: "gstr1 record", ID: string(id)}
	}
	return &r, nil
}

func (m *Memory) FindOutward(ctx context.Context, clientID filing.ClientID, period filing.Period) (*filing.OutwardReturn, error) {
	m.mu.RLock()
	id, ok := m.outwardByKey[key{ClientID: clientID, Period: period}]
	m.mu.RUnlock()
	if !ok {
		return nil, &filing.NotFoundError{What: "gstr1 record", ID: string(clientID) + "/" + period.String()}
	}
	return m.GetOutward(ctx, id)
}

func (m *Memory) UpdateOutward(_ context.Context, r *filing.OutwardReturn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.outward[r.ID]
	if !ok {
		return &filing.NotFoundError{What: "gstr1 record", ID: string(r.ID)}
	}
	if stored.Version != r.Version {
		return filing.ErrConflict
	}
	r.Version++
	m.outward[r.ID] = *r
	return nil
}

func (m *Memory) ListOutward(_ context.Context, period filing.Period) ([]filing.OutwardReturn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []filing.OutwardReturn
	for _, r := range m.outward {
		if r.Period == period {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ClientID < result[j].ClientID })
	return result, nil
}

// =============================================================================
// LIABILITY RETURNS
// =============================================================================

func (m *Memory) InsertLiability(_ context.Context, r *filing.LiabilityReturn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{ClientID: r.ClientID, Period: r.Period}
	if _, ok := m.liabilityByKey[k]; ok {
		return filing.ErrDuplicateKey
	}
	r.Version = 1
	m.liability[r.ID] = *r
	m.liabilityByKey[k] = r.ID
	return nil
}

func (m *Memory) GetLiability(_ context.Context, id filing.RecordID) (*filing.LiabilityReturn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.liability[id]
	if !ok {
		return nil, &filing.NotFoundError{What: "gstr3b record", ID: string(id)}
	}
	return &r, nil
}

func (m *Memory) FindLiability(ctx context.Context, clientID filing.ClientID, period filing.Period) (*filing.LiabilityReturn, error) {
	m.mu.RLock()
	id, ok := m.liabilityByKey[key{ClientID: clientID, Period: period}]
	m.mu.RUnlock()
	if !ok {
		return nil, &filing.NotFoundError{What: "gstr3b record", ID: string(clientID) + "/" + period.String()}
	}
	return m.GetLiability(ctx, id)
}

func (m *Memory) UpdateLiability(_ context.Context, r *filing.LiabilityReturn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.liability[r.ID]
	if !ok {
		return &filing.NotFoundError{What: "gstr3b record", ID: string(r.ID)}
	}
	if stored.Version != r.Version {
		return filing.ErrConflict
	}
	r.Version++
	m.liability[r.ID] = *r
	return nil
}

func (m *Memory) ListLiability(_ context.Context, period filing.Period) ([]filing.LiabilityReturn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []filing.LiabilityReturn
	for _, r := range m.liability {
		if r.Period == period {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ClientID < result[j].ClientID })
	return result, nil
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (m *Memory) InsertNotification(_ context.Context, n filing.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *Memory) ListNotifications(_ context.Context, recipient filing.UserID, unreadOnly bool, limit int) ([]filing.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []filing.Notification
	// Walk backwards so equal timestamps keep newest-inserted first.
	for i := len(m.notifications) - 1; i >= 0; i-- {
		n := m.notifications[i]
		if n.Recipient != recipient || (unreadOnly && n.Read) {
			continue
		}
		result = append(result, n)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *Memory) CountUnread(_ context.Context, recipient filing.UserID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, n := range m.notifications {
		if n.Recipient == recipient && !n.Read {
			count++
		}
	}
	return count, nil
}

func (m *Memory) MarkAllRead(_ context.Context, recipient filing.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notifications {
		if m.notifications[i].Recipient == recipient {
			m.notifications[i].Read = true
		}
	}
	return nil
}

// =============================================================================
// ACTIVITY
// =============================================================================

func (m *Memory) AppendActivity(_ context.Context, e filing.ActivityEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity = append(m.activity, e)
	return nil
}

func (m *Memory) QueryActivity(_ context.Context, f filing.ActivityFilter) ([]filing.ActivityEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []filing.ActivityEntry
	for i := len(m.activity) - 1; i >= 0; i-- {
		if f.Matches(m.activity[i]) {
			result = append(result, m.activity[i])
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}
