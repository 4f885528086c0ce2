package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/events"
	"courtbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	slotStart = "2025-03-03T09:00:00"
	slotEnd   = "2025-03-03T10:00:00"
)

func assertContiguous(t *testing.T, env *testEnv, bucket models.Bucket) []*models.WaitlistEntry {
	t.Helper()
	active, err := env.db.ListWaitlistBucket(context.Background(), bucket)
	require.NoError(t, err)
	for i, e := range active {
		require.NotNil(t, e.Position)
		assert.Equal(t, i+1, *e.Position, "entry %s", e.ID)
	}
	return active
}

func TestWaitlist_FullCourtFlow(t *testing.T) {
	env := newTestEnv(t, baseCatalog())
	ctx := context.Background()

	holder, err := env.service.CreateBooking(ctx, request(t, "holder", "court-1", slotStart, slotEnd))
	require.NoError(t, err)

	req := request(t, "waiter", "court-1", slotStart, slotEnd)
	check, err := env.service.CheckAvailability(ctx, req)
	require.NoError(t, err)
	assert.False(t, check.Available)
	assert.False(t, check.CourtAvailable)

	entry, err := env.service.JoinWaitlist(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, entry.Position)
	assert.Equal(t, 1, *entry.Position)
	assert.Equal(t, models.WaitlistWaiting, entry.Status)

	pos, err := env.service.GetWaitlistPosition(ctx, "waiter", req.Bucket())
	require.NoError(t, err)
	assert.True(t, pos.InWaitlist)
	assert.Equal(t, 1, *pos.Position)
	assert.Equal(t, 1, pos.TotalWaiting)

	var promoted []events.WaitlistEventPayload
	env.bus.Subscribe(events.EventWaitlistPromoted, func(e *events.Event) error {
		var p events.WaitlistEventPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return err
		}
		promoted = append(promoted, p)
		return nil
	})

	require.NoError(t, env.service.CancelBooking(ctx, "holder", holder.ID))

	stored, err := env.db.GetWaitlistEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WaitlistNotified, stored.Status)
	assert.Nil(t, stored.Position)
	require.NotNil(t, stored.NotifiedAt)
	require.NotNil(t, stored.BookingID)

	booking, err := env.service.GetBooking(ctx, "waiter", *stored.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, booking.Status)

	pos, err = env.service.GetWaitlistPosition(ctx, "waiter", req.Bucket())
	require.NoError(t, err)
	assert.False(t, pos.InWaitlist)
	assert.Equal(t, 0, pos.TotalWaiting)

	require.Len(t, promoted, 1)
	assert.Equal(t, "waiter", promoted[0].UserID)
	assert.Equal(t, booking.ID, promoted[0].BookingID)

	pending, err := env.db.GetPendingNotifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, events.EventWaitlistPromoted, pending[0].Kind)
	assert.Equal(t, "waiter", pending[0].UserID)
}

func TestWaitlist_DuplicateJoin(t *testing.T) {
	env := newTestEnv(t, baseCatalog())
	ctx := context.Background()

	req := request(t, "u1", "court-1", slotStart, slotEnd)
	_, err := env.service.JoinWaitlist(ctx, req)
	require.NoError(t, err)

	_, err = env.service.JoinWaitlist(ctx, req)
	assert.ErrorIs(t, err, domain.ErrAlreadyWaitlisted)

	// another window is another bucket
	_, err = env.service.JoinWaitlist(ctx, request(t, "u1", "court-1", "2025-03-03T10:00:00", "2025-03-03T11:00:00"))
	require.NoError(t, err)

	_, err = env.service.JoinWaitlist(ctx, request(t, "u1", "court-x", slotStart, slotEnd))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWaitlist_PositionsStayContiguous(t *testing.T) {
	env := newTestEnv(t, baseCatalog())
	ctx := context.Background()

	holder, err := env.service.CreateBooking(ctx, request(t, "holder", "court-1", slotStart, slotEnd))
	require.NoError(t, err)

	ids := make(map[string]string)
	for _, user := range []string{"a", "b", "c", "d"} {
		e, err := env.service.JoinWaitlist(ctx, request(t, user, "court-1", slotStart, slotEnd))
		require.NoError(t, err)
		ids[user] = e.ID
	}
	bucket := request(t, "", "court-1", slotStart, slotEnd).Bucket()
	assert.Len(t, assertContiguous(t, env, bucket), 4)

	assert.ErrorIs(t, env.service.WithdrawWaitlist(ctx, "a", ids["b"]), domain.ErrForbidden)
	require.NoError(t, env.service.WithdrawWaitlist(ctx, "b", ids["b"]))
	active := assertContiguous(t, env, bucket)
	require.Len(t, active, 3)
	assert.Equal(t, []string{ids["a"], ids["c"], ids["d"]}, []string{active[0].ID, active[1].ID, active[2].ID})

	_, err = env.db.GetWaitlistEntry(ctx, ids["b"])
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, env.service.CancelBooking(ctx, "holder", holder.ID))
	active = assertContiguous(t, env, bucket)
	require.Len(t, active, 2)
	assert.Equal(t, ids["c"], active[0].ID)

	// the promoted entry is no longer withdrawable
	assert.ErrorIs(t, env.service.WithdrawWaitlist(ctx, "a", ids["a"]), domain.ErrInvalidRequest)

	expired, err := env.service.ExpireStaleWaitlist(ctx, time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, expired)
	assert.Empty(t, assertContiguous(t, env, bucket))

	stored, err := env.db.GetWaitlistEntry(ctx, ids["d"])
	require.NoError(t, err)
	assert.Equal(t, models.WaitlistExpired, stored.Status)
	assert.Nil(t, stored.Position)
}

func TestWaitlist_PromotionBlockedKeepsHead(t *testing.T) {
	env := newTestEnv(t, baseCatalog())
	ctx := context.Background()

	holder, err := env.service.CreateBooking(ctx, request(t, "holder", "court-1", slotStart, slotEnd))
	require.NoError(t, err)

	greedy := request(t, "greedy", "court-1", slotStart, slotEnd)
	greedy.RacketCount = 3
	head, err := env.service.JoinWaitlist(ctx, greedy)
	require.NoError(t, err)
	_, err = env.service.JoinWaitlist(ctx, request(t, "modest", "court-1", slotStart, slotEnd))
	require.NoError(t, err)

	require.NoError(t, env.service.CancelBooking(ctx, "holder", holder.ID))

	stored, err := env.db.GetWaitlistEntry(ctx, head.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WaitlistWaiting, stored.Status)
	assert.Equal(t, 1, *stored.Position)

	pos, err := env.service.GetWaitlistPosition(ctx, "modest", greedy.Bucket())
	require.NoError(t, err)
	assert.Equal(t, 2, pos.TotalWaiting)
	assert.Equal(t, 2, *pos.Position)

	result, err := env.service.Waitlist().Promote(ctx, greedy.Bucket())
	require.NoError(t, err)
	assert.False(t, result.Promoted)
	assert.Equal(t, ReasonInsufficientRacket, result.Reason)
	assert.Equal(t, 2, env.equipmentCount(t, models.EquipmentRacket))
}

func TestWaitlist_PromoteReducesByAtMostOne(t *testing.T) {
	env := newTestEnv(t, baseCatalog())
	ctx := context.Background()

	bucket := request(t, "", "court-1", slotStart, slotEnd).Bucket()
	for _, user := range []string{"a", "b", "c"} {
		_, err := env.service.JoinWaitlist(ctx, request(t, user, "court-1", slotStart, slotEnd))
		require.NoError(t, err)
	}

	// the court is free, so each promotion admits the head and then blocks the rest
	result, err := env.service.Waitlist().Promote(ctx, bucket)
	require.NoError(t, err)
	assert.True(t, result.Promoted)
	assert.Len(t, assertContiguous(t, env, bucket), 2)

	result, err = env.service.Waitlist().Promote(ctx, bucket)
	require.NoError(t, err)
	assert.False(t, result.Promoted)
	assert.Equal(t, ReasonCourtUnavailable, result.Reason)
	assert.Len(t, assertContiguous(t, env, bucket), 2)
}

func TestWaitlist_ConcurrentJoins(t *testing.T) {
	env := newTestEnv(t, baseCatalog())
	ctx := context.Background()
	bucket := request(t, "", "court-1", slotStart, slotEnd).Bucket()

	const joiners = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		positions = make(map[int]string)
	)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("w%02d", i)
			entry, err := env.service.JoinWaitlist(ctx, request(t, user, "court-1", slotStart, slotEnd))
			if !assert.NoError(t, err) || !assert.NotNil(t, entry.Position) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			positions[*entry.Position] = user
		}(i)
	}
	wg.Wait()

	assert.Len(t, positions, joiners, "every join got its own position")
	for p := 1; p <= joiners; p++ {
		assert.Contains(t, positions, p)
	}
	assert.Len(t, assertContiguous(t, env, bucket), joiners)
}

func TestWaitlist_ConcurrentCancelPromotesOnce(t *testing.T) {
	env := newTestEnv(t, baseCatalog())
	ctx := context.Background()
	bucket := request(t, "", "court-1", slotStart, slotEnd).Bucket()

	holder, err := env.service.CreateBooking(ctx, request(t, "holder", "court-1", slotStart, slotEnd))
	require.NoError(t, err)

	const waiters = 5
	for i := 0; i < waiters; i++ {
		_, err := env.service.JoinWaitlist(ctx, request(t, fmt.Sprintf("w%d", i), "court-1", slotStart, slotEnd))
		require.NoError(t, err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		cancelled int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := env.service.CancelBooking(ctx, "holder", holder.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrAlreadyCancelled):
				cancelled++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, cancelled)

	pos, err := env.service.GetWaitlistPosition(ctx, "w1", bucket)
	require.NoError(t, err)
	assert.Equal(t, waiters-1, pos.TotalWaiting)
	require.NotNil(t, pos.Position)
	assert.Equal(t, 1, *pos.Position)
	assert.Len(t, assertContiguous(t, env, bucket), waiters-1)

	confirmed, err := env.db.ListBookings(ctx, models.BookingFilter{CourtID: "court-1", Status: models.StatusConfirmed})
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, "w0", confirmed[0].UserID)
}

func TestWaitlist_PromoteEmptyBucket(t *testing.T) {
	env := newTestEnv(t, baseCatalog())

	result, err := env.service.Waitlist().Promote(context.Background(), request(t, "", "court-1", slotStart, slotEnd).Bucket())
	require.NoError(t, err)
	assert.False(t, result.Promoted)
	assert.Nil(t, result.Entry)
}

func TestWaitlist_ExpireOnlyStarted(t *testing.T) {
	env := newTestEnv(t, baseCatalog())
	ctx := context.Background()

	early, err := env.service.JoinWaitlist(ctx, request(t, "u1", "court-1", slotStart, slotEnd))
	require.NoError(t, err)
	late, err := env.service.JoinWaitlist(ctx, request(t, "u1", "court-1", "2025-03-03T18:00:00", "2025-03-03T19:00:00"))
	require.NoError(t, err)

	var expiredEvents int
	env.bus.Subscribe(events.EventWaitlistExpired, func(*events.Event) error {
		expiredEvents++
		return nil
	})

	n, err := env.service.ExpireStaleWaitlist(ctx, time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, expiredEvents)

	stored, err := env.db.GetWaitlistEntry(ctx, early.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WaitlistExpired, stored.Status)

	stored, err = env.db.GetWaitlistEntry(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WaitlistWaiting, stored.Status)

	mine, err := env.service.ListUserWaitlist(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	n, err = env.service.ExpireStaleWaitlist(ctx, time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, n)
}
