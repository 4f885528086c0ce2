package database

import (
	"context"
	"testing"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationOutbox(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.RunInTx(ctx, func(tx domain.Tx) error {
		if err := tx.EnqueueNotification(ctx, "waitlist_promoted", "u1", map[string]string{"booking_id": "b1"}); err != nil {
			return err
		}
		return tx.EnqueueNotification(ctx, "waitlist_expired", "u2", map[string]string{"waitlist_id": "w1"})
	}))

	tasks, err := db.GetPendingNotifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "waitlist_promoted", tasks[0].Kind)
	assert.JSONEq(t, `{"booking_id":"b1"}`, tasks[0].Payload)
	assert.Equal(t, models.OutboxPending, tasks[0].Status)

	require.NoError(t, db.CompleteNotification(ctx, tasks[0].ID))

	future := time.Now().Add(time.Hour)
	require.NoError(t, db.FailNotification(ctx, tasks[1].ID, "smtp down", &future))

	pending, err := db.GetPendingNotifications(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "retry is not due yet")

	past := time.Now().Add(-time.Second)
	require.NoError(t, db.FailNotification(ctx, tasks[1].ID, "smtp down", &past))
	pending, err = db.GetPendingNotifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].RetryCount)
	assert.Equal(t, models.OutboxRetry, pending[0].Status)

	require.NoError(t, db.FailNotification(ctx, tasks[1].ID, "gave up", nil))
	failed, err := db.ListFailedNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.NotNil(t, failed[0].LastError)
	assert.Equal(t, "gave up", *failed[0].LastError)
}
