package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type PricingRule struct {
	ID         string          `yaml:"id" json:"id"`
	Name       string          `yaml:"name" json:"name"`
	RuleType   string          `yaml:"rule_type" json:"rule_type"`
	StartTime  string          `yaml:"start_time" json:"start_time,omitempty"`
	EndTime    string          `yaml:"end_time" json:"end_time,omitempty"`
	DaysOfWeek []int           `yaml:"days_of_week" json:"days_of_week,omitempty"`
	Multiplier decimal.Decimal `yaml:"multiplier" json:"multiplier"`
	Surcharge  decimal.Decimal `yaml:"surcharge" json:"surcharge"`
	IsActive   bool            `yaml:"is_active" json:"is_active"`
	CreatedAt  time.Time       `yaml:"-" json:"created_at"`
}

// UnmarshalYAML defaults an omitted multiplier to 1. An explicit 0 is kept.
func (r *PricingRule) UnmarshalYAML(value *yaml.Node) error {
	type plain PricingRule
	rule := plain{Multiplier: decimal.NewFromInt(1)}
	if err := value.Decode(&rule); err != nil {
		return err
	}
	*r = PricingRule(rule)
	return nil
}

// AppliesOnWeekday reports whether the rule's weekday set contains day.
// An empty set means no restriction.
func (r *PricingRule) AppliesOnWeekday(day time.Weekday) bool {
	if len(r.DaysOfWeek) == 0 {
		return true
	}
	return r.HasWeekday(day)
}

func (r *PricingRule) HasWeekday(day time.Weekday) bool {
	for _, d := range r.DaysOfWeek {
		if d == int(day) {
			return true
		}
	}
	return false
}

type PricingModifier struct {
	RuleName string          `json:"rule_name"`
	RuleType string          `json:"rule_type"`
	Amount   decimal.Decimal `json:"amount"`
	Type     string          `json:"type"`
}

type PriceCalculation struct {
	BasePrice        decimal.Decimal   `json:"base_price"`
	PricingModifiers []PricingModifier `json:"pricing_modifiers"`
	EquipmentFee     decimal.Decimal   `json:"equipment_fee"`
	CoachFee         decimal.Decimal   `json:"coach_fee"`
	TotalPrice       decimal.Decimal   `json:"total_price"`
}
