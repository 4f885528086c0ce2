package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/database"
	"courtbook/internal/events"
	"courtbook/internal/models"
	"courtbook/internal/repository"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	db      *database.DB
	bus     *events.EventBus
	service *BookingService
}

func newTestEnv(t *testing.T, catalog config.CatalogConfig) *testEnv {
	t.Helper()
	logger := zerolog.Nop()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "service.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.SeedCatalog(context.Background(), catalog))

	bus := events.NewEventBus(&logger)
	locker := repository.NewMemoryLocker(5 * time.Second)

	return &testEnv{
		db:      db,
		bus:     bus,
		service: NewBookingService(db, locker, bus, &logger),
	}
}

// baseCatalog has one $20/h outdoor court, a coach, 2 rackets and 4 pairs of shoes, no rules.
func baseCatalog() config.CatalogConfig {
	return config.CatalogConfig{
		Courts: []models.Court{
			{ID: "court-1", Name: "Court 1", Type: models.CourtOutdoor, BasePrice: decimal.NewFromInt(20), Status: models.ResourceAvailable},
			{ID: "court-2", Name: "Court 2", Type: models.CourtIndoor, BasePrice: decimal.NewFromInt(40), Status: models.ResourceAvailable},
			{ID: "court-closed", Name: "Closed", Type: models.CourtOutdoor, BasePrice: decimal.NewFromInt(20), Status: models.ResourceMaintenance},
		},
		Coaches: []models.Coach{
			{ID: "coach-1", Name: "Ann", HourlyRate: decimal.NewFromInt(30), Status: models.ResourceAvailable},
		},
		Equipment: []models.Equipment{
			{Type: models.EquipmentRacket, TotalStock: 2, AvailableCount: 2, RentalPrice: decimal.NewFromInt(5)},
			{Type: models.EquipmentShoes, TotalStock: 4, AvailableCount: 4, RentalPrice: decimal.NewFromInt(3)},
		},
	}
}

func withRules(c config.CatalogConfig, rules ...models.PricingRule) config.CatalogConfig {
	c.PricingRules = append(c.PricingRules, rules...)
	return c
}

func window(t *testing.T, start, end string) models.TimeWindow {
	t.Helper()
	w, err := models.ParseTimeWindow(start, end)
	require.NoError(t, err)
	return w
}

func request(t *testing.T, user, court, start, end string) models.BookingRequest {
	t.Helper()
	return models.BookingRequest{UserID: user, CourtID: court, Window: window(t, start, end)}
}

func strPtr(s string) *string {
	return &s
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (e *testEnv) equipmentCount(t *testing.T, kind string) int {
	t.Helper()
	eq, err := e.db.GetEquipment(context.Background(), kind)
	require.NoError(t, err)
	return eq.AvailableCount
}
