package service

import (
	"context"
	"testing"

	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAvailability(t *testing.T) {
	catalog := baseCatalog()
	catalog.Coaches = append(catalog.Coaches, models.Coach{ID: "coach-off", Name: "Bo", HourlyRate: decimal.NewFromInt(25), Status: models.ResourceUnavailable})
	env := newTestEnv(t, catalog)
	ctx := context.Background()

	req := request(t, "u1", "court-1", slotStart, slotEnd)
	check, err := env.service.CheckAvailability(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityCheck{
		Available:        true,
		CourtAvailable:   true,
		CoachAvailable:   true,
		RacketsAvailable: 2,
		ShoesAvailable:   4,
	}, check)

	req.CoachID = strPtr("coach-off")
	check, err = env.service.CheckAvailability(ctx, req)
	require.NoError(t, err)
	assert.False(t, check.Available)
	assert.True(t, check.CourtAvailable)
	assert.False(t, check.CoachAvailable)

	req.CoachID = nil
	req.ShoesCount = 5
	check, err = env.service.CheckAvailability(ctx, req)
	require.NoError(t, err)
	assert.False(t, check.Available)

	closed := request(t, "u1", "court-closed", slotStart, slotEnd)
	check, err = env.service.CheckAvailability(ctx, closed)
	require.NoError(t, err)
	assert.False(t, check.CourtAvailable)

	req.ShoesCount = -1
	_, err = env.service.CheckAvailability(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestCheckAvailability_DoesNotReserve(t *testing.T) {
	env := newTestEnv(t, baseCatalog())
	ctx := context.Background()

	req := request(t, "u1", "court-1", slotStart, slotEnd)
	req.RacketCount = 2
	for i := 0; i < 3; i++ {
		check, err := env.service.CheckAvailability(ctx, req)
		require.NoError(t, err)
		assert.True(t, check.Available)
	}
	assert.Equal(t, 2, env.equipmentCount(t, models.EquipmentRacket))
}
