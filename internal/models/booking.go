package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Booking struct {
	ID               string            `json:"id"`
	UserID           string            `json:"user_id"`
	CourtID          string            `json:"court_id"`
	CoachID          *string           `json:"coach_id"`
	Window           TimeWindow        `json:"window"`
	RacketCount      int               `json:"racket_count"`
	ShoesCount       int               `json:"shoes_count"`
	BasePrice        decimal.Decimal   `json:"base_price"`
	PricingModifiers []PricingModifier `json:"pricing_modifiers"`
	EquipmentFee     decimal.Decimal   `json:"equipment_fee"`
	CoachFee         decimal.Decimal   `json:"coach_fee"`
	TotalPrice       decimal.Decimal   `json:"total_price"`
	Status           string            `json:"status"` // confirmed, cancelled, waitlist
	CreatedAt        time.Time         `json:"created_at"`
	CancelledAt      *time.Time        `json:"cancelled_at,omitempty"`
}

func (b *Booking) IsConfirmed() bool {
	return b.Status == StatusConfirmed
}

// ApplyPrice copies a price breakdown onto the booking.
func (b *Booking) ApplyPrice(p PriceCalculation) {
	b.BasePrice = p.BasePrice
	b.PricingModifiers = p.PricingModifiers
	b.EquipmentFee = p.EquipmentFee
	b.CoachFee = p.CoachFee
	b.TotalPrice = p.TotalPrice
}

// BookingRequest is the input shared by availability, pricing, admission and waitlist.
type BookingRequest struct {
	UserID      string
	CourtID     string
	CoachID     *string
	Window      TimeWindow
	RacketCount int
	ShoesCount  int
}

func (r BookingRequest) HasCoach() bool {
	return r.CoachID != nil && *r.CoachID != ""
}

func (r BookingRequest) Bucket() Bucket {
	return Bucket{CourtID: r.CourtID, Window: r.Window}
}

type AvailabilityCheck struct {
	Available        bool `json:"available"`
	CourtAvailable   bool `json:"court_available"`
	CoachAvailable   bool `json:"coach_available"`
	RacketsAvailable int  `json:"rackets_available"`
	ShoesAvailable   int  `json:"shoes_available"`
}

// BookingFilter narrows booking listings; zero values mean no filter.
type BookingFilter struct {
	UserID  string
	CourtID string
	Status  string
	From    *time.Time
	To      *time.Time
}
