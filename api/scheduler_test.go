package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/filing-engine/filing"
)

func newTestScheduler(env *apiEnv) *ReminderScheduler {
	s := NewReminderScheduler(env.engine, env.handler.Log)
	s.Clock = func() time.Time { return env.now }
	return s
}

func TestReminderScheduler_NotifiesAssignedPreparerOnce(t *testing.T) {
	// GIVEN: A client whose outward return is overdue, with an assigned preparer
	env := newAPIEnv(t)
	client := env.createClient("Acme Traders")
	prep := filing.UserID("prep-1")
	_, err := env.engine.UpsertAssignment(context.Background(), admin,
		filing.ClientID(client.ID), filing.MustPeriod(2025, time.March), &prep, nil)
	require.NoError(t, err)
	env.now = time.Date(2025, time.April, 12, 8, 0, 0, 0, time.UTC)
	s := newTestScheduler(env)

	// WHEN: The scheduler runs twice on the same day
	first := s.RunNow()
	second := s.RunNow()

	// THEN: One reminder for the overdue outward return, no repeat
	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)

	unread, err := env.engine.ListNotifications(context.Background(), prep)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "Overdue", unread[0].Title)
	assert.Equal(t, filing.CategoryWarning, unread[0].Category)
	assert.Contains(t, unread[0].Message, "GSTR-1 for Acme Traders (2025-03)")
	assert.Contains(t, unread[0].Message, "11 Apr 2025")
}

func TestReminderScheduler_RepeatsNextDayAndSkipsUnassigned(t *testing.T) {
	env := newAPIEnv(t)
	env.createClient("Unassigned Co")
	assigned := env.createClient("Acme Traders")
	r := env.openOutward(assigned.ID) // preparer is prep-1 from the record
	env.now = time.Date(2025, time.April, 9, 8, 0, 0, 0, time.UTC)
	s := newTestScheduler(env)

	// Due soon: only the client with a preparer is reminded
	assert.Equal(t, 1, s.RunNow())

	// Next day, still open
	env.now = env.now.AddDate(0, 0, 1)
	assert.Equal(t, 1, s.RunNow())

	// Once filed, no more reminders for it
	env.lockOutward(r.ID)
	env.now = env.now.AddDate(0, 0, 1)
	assert.Equal(t, 0, s.RunNow())

	unread, err := env.engine.ListNotifications(context.Background(), preparer.ID)
	require.NoError(t, err)
	var dueSoon int
	for _, n := range unread {
		if n.Title == "Due Soon" {
			dueSoon++
		}
	}
	assert.Equal(t, 2, dueSoon)
}

func TestReminderScheduler_StartStop(t *testing.T) {
	env := newAPIEnv(t)
	s := newTestScheduler(env)
	s.CheckInterval = time.Hour

	s.Start()
	s.Start() // second start is a no-op
	s.Stop()
	s.Stop()

	s.Enabled = false
	s.Start()
	assert.Nil(t, s.ticker)
}
