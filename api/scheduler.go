/*
scheduler.go - Due-date reminder scheduler

PURPOSE:
  Periodically lists open returns of the current filing period that are
  overdue or due within the warning horizon, and notifies their preparer.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Reads due items from the engine (Engine.DueItems); never mutates returns
  - A reminder for the same return and state goes out at most once per day
  - Returns without a preparer (none recorded, none assigned) are skipped

CONFIGURATION:
  - CheckInterval: How often to check (REMINDER_INTERVAL, default 24h)
  - WarningDays:   Due-soon horizon (DUE_DATE_WARNING_DAYS, default 3)
  - Enabled:       Whether the scheduler runs (REMINDERS_ENABLED)

USAGE:
  scheduler := NewReminderScheduler(engine, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - filing/board.go: DueItems
  - handlers.go: /api/due-dates (same listing, on demand)
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/filing-engine/filing"
)

// ReminderScheduler sends due-date reminders.
type ReminderScheduler struct {
	Engine        *filing.Engine
	Log           logrus.FieldLogger
	CheckInterval time.Duration
	WarningDays   int
	Enabled       bool
	Clock         func() time.Time

	// sent maps a reminder key to the day it was last sent.
	sent map[string]string

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	runMu  sync.Mutex
}

// NewReminderScheduler creates a scheduler with the defaults above.
func NewReminderScheduler(engine *filing.Engine, log logrus.FieldLogger) *ReminderScheduler {
	return &ReminderScheduler{
		Engine:        engine,
		Log:           log.WithField("module", "scheduler"),
		CheckInterval: 24 * time.Hour,
		WarningDays:   3,
		Enabled:       true,
		Clock:         time.Now,
		sent:          make(map[string]string),
	}
}

// Start begins the scheduler.
func (rs *ReminderScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Log.Info("reminders disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run()

	rs.Log.WithField("interval", rs.CheckInterval.String()).Info("reminder scheduler started")
}

// Stop stops the scheduler and waits for a running check to finish.
func (rs *ReminderScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.Log.Info("reminder scheduler stopped")
	}
}

func (rs *ReminderScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.checkAndNotify()

	for {
		select {
		case <-rs.ticker.C:
			rs.checkAndNotify()
		case <-rs.stop:
			return
		}
	}
}

// RunNow performs one check and returns the number of reminders sent.
func (rs *ReminderScheduler) RunNow() int {
	return rs.checkAndNotify()
}

func (rs *ReminderScheduler) checkAndNotify() int {
	rs.runMu.Lock()
	defer rs.runMu.Unlock()

	ctx := context.Background()
	now := rs.Clock()

	items, err := rs.Engine.DueItems(ctx, now, rs.WarningDays)
	if err != nil {
		rs.Log.WithError(err).Error("failed to list due returns")
		return 0
	}

	today := now.Format(dateLayout)
	for key, day := range rs.sent {
		if day != today {
			delete(rs.sent, key)
		}
	}

	sent, skipped := 0, 0
	for _, item := range items {
		if item.Preparer == "" {
			skipped++
			continue
		}
		key := reminderKey(item)
		if rs.sent[key] == today {
			continue
		}

		title, message := reminderText(item)
		rs.Engine.Notifications.Send(ctx, item.Preparer, title, message, filing.CategoryWarning)
		rs.sent[key] = today
		sent++
	}

	if sent > 0 || skipped > 0 {
		rs.Log.WithFields(logrus.Fields{
			"sent":       sent,
			"unassigned": skipped,
			"due_items":  len(items),
		}).Info("due-date check completed")
	}
	return sent
}

// reminderKey changes when a due-soon return becomes overdue, so each
// state is reminded separately.
func reminderKey(item filing.DueItem) string {
	return fmt.Sprintf("%s|%s|%s|%t", item.Kind, item.Client.ID, item.Period, item.Overdue)
}

func reminderText(item filing.DueItem) (title, message string) {
	due := item.DueDate.Format("02 Jan 2006")
	if item.Overdue {
		return "Overdue", fmt.Sprintf("%s for %s (%s) was due on %s and is not filed yet",
			item.Kind.Label(), item.Client.Name, item.Period, due)
	}
	return "Due Soon", fmt.Sprintf("%s for %s (%s) is due on %s",
		item.Kind.Label(), item.Client.Name, item.Period, due)
}
