package service

import (
	"fmt"
	"time"

	"courtbook/internal/models"
)

// ruleInput is what a pricing rule can look at.
type ruleInput struct {
	start   time.Time
	court   *models.Court
	holiday func() (bool, error)
}

type ruleMatcher func(rule *models.PricingRule, in ruleInput) (bool, error)

// ruleMatchers is the single dispatch point for rule applicability.
var ruleMatchers = map[string]ruleMatcher{
	models.RulePeakHour:     matchPeakHour,
	models.RuleWeekend:      matchWeekend,
	models.RuleHoliday:      matchHoliday,
	models.RulePremiumCourt: matchPremiumCourt,
}

func ruleApplies(rule *models.PricingRule, in ruleInput) (bool, error) {
	match, ok := ruleMatchers[rule.RuleType]
	if !ok {
		return false, fmt.Errorf("unknown rule type %q", rule.RuleType)
	}
	return match(rule, in)
}

// matchPeakHour checks the start clock time against [start_time, end_time).
// A window whose end is before its start wraps past midnight.
func matchPeakHour(rule *models.PricingRule, in ruleInput) (bool, error) {
	if rule.StartTime == "" || rule.EndTime == "" {
		return false, nil
	}
	from, err := models.ParseClock(rule.StartTime)
	if err != nil {
		return false, err
	}
	to, err := models.ParseClock(rule.EndTime)
	if err != nil {
		return false, err
	}

	clock := models.ClockSeconds(in.start)
	var inWindow bool
	if from <= to {
		inWindow = clock >= from && clock < to
	} else {
		inWindow = clock >= from || clock < to
	}
	return inWindow && rule.AppliesOnWeekday(in.start.Weekday()), nil
}

// matchWeekend uses the configured days; there is no built-in Saturday/Sunday.
func matchWeekend(rule *models.PricingRule, in ruleInput) (bool, error) {
	return rule.HasWeekday(in.start.Weekday()), nil
}

func matchHoliday(rule *models.PricingRule, in ruleInput) (bool, error) {
	if !rule.AppliesOnWeekday(in.start.Weekday()) {
		return false, nil
	}
	return in.holiday()
}

func matchPremiumCourt(_ *models.PricingRule, in ruleInput) (bool, error) {
	return in.court.Type == models.CourtIndoor, nil
}
