package filing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/filing-engine/filing"
)

func userPtr(id filing.UserID) *filing.UserID { return &id }

func TestAssignment_UpsertKeepsSingleRow(t *testing.T) {
	// GIVEN: An assignment for (client, March)
	// WHEN: Upserting again with different preparers
	// THEN: One row holds the second values, created_at is kept

	env := newTestEnv(t)
	created := env.now

	_, err := env.engine.UpsertAssignment(env.ctx, admin, env.client, march2025, userPtr("prep-1"), userPtr("prep-2"))
	require.NoError(t, err)

	env.now = env.now.Add(24 * time.Hour)
	_, err = env.engine.UpsertAssignment(env.ctx, reviewer, env.client, march2025, userPtr("prep-3"), userPtr("prep-4"))
	require.NoError(t, err)

	rows, err := env.engine.Assignments.ListForPeriod(env.ctx, march2025)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, filing.UserID("prep-3"), rows[0].OutwardPreparer)
	assert.Equal(t, filing.UserID("prep-4"), rows[0].LiabilityPreparer)
	assert.Equal(t, reviewer.ID, rows[0].CreatedBy)
	assert.Equal(t, created, rows[0].CreatedAt)
}

func TestAssignment_OmittedPreparerIsKept(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.UpsertAssignment(env.ctx, admin, env.client, march2025, userPtr("prep-1"), userPtr("prep-2"))
	require.NoError(t, err)
	a, err := env.engine.UpsertAssignment(env.ctx, admin, env.client, march2025, nil, userPtr(""))
	require.NoError(t, err)

	assert.Equal(t, filing.UserID("prep-1"), a.OutwardPreparer)
	assert.Empty(t, a.LiabilityPreparer, "an explicit empty id clears the preparer")
	assert.Equal(t, filing.UserID("prep-1"), a.PreparerFor(filing.KindOutward))
}

func TestAssignment_PeriodsAreIndependent(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.UpsertAssignment(env.ctx, admin, env.client, march2025, userPtr("prep-1"), nil)
	require.NoError(t, err)
	_, err = env.engine.UpsertAssignment(env.ctx, admin, env.client, march2025.Next(), userPtr("prep-9"), nil)
	require.NoError(t, err)

	march, err := env.engine.Assignments.Get(env.ctx, env.client, march2025)
	require.NoError(t, err)
	assert.Equal(t, filing.UserID("prep-1"), march.OutwardPreparer)

	_, err = env.engine.Assignments.Get(env.ctx, env.client, march2025.Previous())
	assert.ErrorIs(t, err, filing.ErrNotFound)
}

func TestAssignment_Validation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.UpsertAssignment(env.ctx, admin, "missing", march2025, userPtr("prep-1"), nil)
	assert.ErrorIs(t, err, filing.ErrNotFound)

	_, err = env.engine.UpsertAssignment(env.ctx, admin, env.client, filing.Period{Month: 0, Year: 2025}, nil, nil)
	assert.ErrorIs(t, err, filing.ErrInvalidPeriod)

	_, err = env.engine.UpsertAssignment(env.ctx, filing.Principal{}, env.client, march2025, nil, nil)
	assert.ErrorIs(t, err, filing.ErrForbidden)
}

func TestAssignment_LogsActivity(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.UpsertAssignment(env.ctx, admin, env.client, march2025, userPtr("prep-1"), nil)
	require.NoError(t, err)

	entries, err := env.engine.Activity.List(env.ctx, filing.ActivityFilter{
		Actions: []filing.ActivityAction{filing.ActionAssignmentUpserted},
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, admin.ID, entries[0].Actor)
	require.NotNil(t, entries[0].Period)
	assert.Equal(t, march2025, *entries[0].Period)
}
