package service

import (
	"context"
	"errors"
	"fmt"

	"courtbook/internal/domain"
	"courtbook/internal/models"
)

// AvailabilityChecker previews whether a request could be admitted. The
// result is advisory; admission re-checks under locks.
type AvailabilityChecker struct {
	store domain.Store
}

func NewAvailabilityChecker(store domain.Store) *AvailabilityChecker {
	return &AvailabilityChecker{store: store}
}

func (c *AvailabilityChecker) Check(ctx context.Context, req models.BookingRequest) (models.AvailabilityCheck, error) {
	if err := validateRequest(req); err != nil {
		return models.AvailabilityCheck{}, err
	}
	return checkAvailability(ctx, c.store, req)
}

// checkAvailability runs against the pool or inside an admission transaction.
func checkAvailability(ctx context.Context, r domain.Reader, req models.BookingRequest) (models.AvailabilityCheck, error) {
	var result models.AvailabilityCheck

	court, err := r.GetCourt(ctx, req.CourtID)
	if err != nil {
		return result, err
	}
	if court.Bookable() {
		busy, err := r.CourtHasOverlap(ctx, court.ID, req.Window)
		if err != nil {
			return result, err
		}
		result.CourtAvailable = !busy
	}

	result.CoachAvailable = true
	if req.HasCoach() {
		coach, err := r.GetCoach(ctx, *req.CoachID)
		if err != nil {
			return result, err
		}
		result.CoachAvailable = false
		if coach.Bookable() {
			busy, err := r.CoachHasOverlap(ctx, coach.ID, req.Window)
			if err != nil {
				return result, err
			}
			result.CoachAvailable = !busy
		}
	}

	if result.RacketsAvailable, err = equipmentAvailable(ctx, r, models.EquipmentRacket); err != nil {
		return result, err
	}
	if result.ShoesAvailable, err = equipmentAvailable(ctx, r, models.EquipmentShoes); err != nil {
		return result, err
	}

	result.Available = result.CourtAvailable &&
		result.CoachAvailable &&
		result.RacketsAvailable >= req.RacketCount &&
		result.ShoesAvailable >= req.ShoesCount
	return result, nil
}

// equipmentAvailable returns 0 for a type the facility does not stock.
func equipmentAvailable(ctx context.Context, r domain.Reader, equipmentType string) (int, error) {
	eq, err := r.GetEquipment(ctx, equipmentType)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return eq.AvailableCount, nil
}

func validateRequest(req models.BookingRequest) error {
	if !req.Window.Valid() {
		return fmt.Errorf("%w: end_time must be after start_time", domain.ErrInvalidWindow)
	}
	if req.CourtID == "" {
		return fmt.Errorf("%w: court_id is required", domain.ErrInvalidRequest)
	}
	if req.RacketCount < 0 || req.ShoesCount < 0 {
		return fmt.Errorf("%w: equipment counts must not be negative", domain.ErrInvalidRequest)
	}
	return nil
}
