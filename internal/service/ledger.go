package service

import (
	"context"
	"fmt"

	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/rs/zerolog"
)

type ResourceKind string

const (
	ResourceCourt     ResourceKind = "court"
	ResourceCoach     ResourceKind = "coach"
	ResourceEquipment ResourceKind = "equipment"
)

// Claim asks the ledger for capacity on one resource. Exclusive resources
// (court, coach) always have quantity 1.
type Claim struct {
	Kind     ResourceKind
	ID       string
	Quantity int
	Window   models.TimeWindow
}

// LockKey is the key that serializes check-then-commit on the claimed resource.
func (c Claim) LockKey() string {
	return string(c.Kind) + ":" + c.ID
}

// Reservation is what Reserve committed and what Release gives back.
type Reservation struct {
	Claims []Claim
}

// CapacityError names the claim the ledger could not satisfy.
type CapacityError struct {
	Claim Claim
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("insufficient capacity on %s %s", e.Claim.Kind, e.Claim.ID)
}

func (e *CapacityError) Unwrap() error {
	return domain.ErrInsufficientCapacity
}

// ClaimsFor lists the claims of a request in check order: court, coach, rackets, shoes.
func ClaimsFor(req models.BookingRequest) []Claim {
	claims := []Claim{{Kind: ResourceCourt, ID: req.CourtID, Quantity: 1, Window: req.Window}}
	if req.HasCoach() {
		claims = append(claims, Claim{Kind: ResourceCoach, ID: *req.CoachID, Quantity: 1, Window: req.Window})
	}
	if req.RacketCount > 0 {
		claims = append(claims, Claim{Kind: ResourceEquipment, ID: models.EquipmentRacket, Quantity: req.RacketCount, Window: req.Window})
	}
	if req.ShoesCount > 0 {
		claims = append(claims, Claim{Kind: ResourceEquipment, ID: models.EquipmentShoes, Quantity: req.ShoesCount, Window: req.Window})
	}
	return claims
}

func LockKeys(claims []Claim) []string {
	keys := make([]string, 0, len(claims))
	for _, c := range claims {
		keys = append(keys, c.LockKey())
	}
	return keys
}

// Ledger is the only component that changes resource capacity. Callers must
// hold the claims' lock keys and pass the transaction the commitment is written in.
type Ledger struct {
	logger *zerolog.Logger
}

func NewLedger(logger *zerolog.Logger) *Ledger {
	return &Ledger{logger: logger}
}

// Reserve checks and takes capacity for every claim or returns a *CapacityError.
// On error the caller rolls the transaction back, so nothing is partially committed.
func (l *Ledger) Reserve(ctx context.Context, tx domain.Tx, claims []Claim) (Reservation, error) {
	for _, c := range claims {
		var (
			ok  bool
			err error
		)
		switch c.Kind {
		case ResourceCourt:
			var busy bool
			busy, err = tx.CourtHasOverlap(ctx, c.ID, c.Window)
			ok = !busy
		case ResourceCoach:
			var busy bool
			busy, err = tx.CoachHasOverlap(ctx, c.ID, c.Window)
			ok = !busy
		case ResourceEquipment:
			ok, err = tx.ReserveEquipment(ctx, c.ID, c.Quantity)
		default:
			err = fmt.Errorf("unknown resource kind %q", c.Kind)
		}
		if err != nil {
			return Reservation{}, err
		}
		if !ok {
			l.logger.Debug().Str("resource", c.LockKey()).Int("quantity", c.Quantity).Msg("Capacity exhausted")
			return Reservation{}, &CapacityError{Claim: c}
		}
	}
	return Reservation{Claims: claims}, nil
}

// Release gives equipment back to its pool. Court and coach capacity is freed
// by the booking leaving the confirmed state in the same transaction.
func (l *Ledger) Release(ctx context.Context, tx domain.Tx, r Reservation) error {
	for _, c := range r.Claims {
		if c.Kind != ResourceEquipment {
			continue
		}
		if err := tx.ReleaseEquipment(ctx, c.ID, c.Quantity); err != nil {
			return err
		}
	}
	return nil
}
