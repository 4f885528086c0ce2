package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Court struct {
	ID          string          `yaml:"id" json:"id"`
	Name        string          `yaml:"name" json:"name"`
	Type        string          `yaml:"type" json:"type"`
	BasePrice   decimal.Decimal `yaml:"base_price" json:"base_price"`
	Status      string          `yaml:"status" json:"status"`
	Description string          `yaml:"description" json:"description,omitempty"`
	CreatedAt   time.Time       `yaml:"-" json:"created_at"`
}

func (c *Court) Bookable() bool {
	return c.Status == "" || c.Status == ResourceAvailable
}

type Coach struct {
	ID          string          `yaml:"id" json:"id"`
	Name        string          `yaml:"name" json:"name"`
	HourlyRate  decimal.Decimal `yaml:"hourly_rate" json:"hourly_rate"`
	Bio         string          `yaml:"bio" json:"bio,omitempty"`
	Specialties []string        `yaml:"specialties" json:"specialties,omitempty"`
	Status      string          `yaml:"status" json:"status"`
	CreatedAt   time.Time       `yaml:"-" json:"created_at"`
}

func (c *Coach) Bookable() bool {
	return c.Status == "" || c.Status == ResourceAvailable
}

// Equipment is a fungible pool. AvailableCount is only changed by the ledger.
type Equipment struct {
	ID             string          `yaml:"id" json:"id"`
	Type           string          `yaml:"type" json:"type"`
	TotalStock     int             `yaml:"total_stock" json:"total_stock"`
	AvailableCount int             `yaml:"available_count" json:"available_count"`
	RentalPrice    decimal.Decimal `yaml:"rental_price" json:"rental_price"`
	CreatedAt      time.Time       `yaml:"-" json:"created_at"`
}

// Holiday is one facility calendar day used by holiday pricing rules.
type Holiday struct {
	Date string `yaml:"date" json:"date"`
	Name string `yaml:"name" json:"name"`
}
