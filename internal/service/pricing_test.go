package service

import (
	"context"
	"testing"

	"courtbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func peakRule() models.PricingRule {
	return models.PricingRule{
		Name:       "Morning peak",
		RuleType:   models.RulePeakHour,
		StartTime:  "09:00",
		EndTime:    "11:00",
		DaysOfWeek: []int{1, 2, 3, 4, 5},
		Multiplier: dec("1.5"),
		IsActive:   true,
	}
}

func TestCalculatePrice_PeakHour(t *testing.T) {
	env := newTestEnv(t, withRules(baseCatalog(), peakRule()))
	ctx := context.Background()

	// 2025-03-03 is a Monday
	price, err := env.service.CalculatePrice(ctx, request(t, "u1", "court-1", "2025-03-03T09:00:00", "2025-03-03T10:00:00"))
	require.NoError(t, err)

	assert.True(t, price.BasePrice.Equal(dec("20")))
	require.Len(t, price.PricingModifiers, 1)
	assert.Equal(t, models.ModifierMultiplier, price.PricingModifiers[0].Type)
	assert.Equal(t, "Morning peak", price.PricingModifiers[0].RuleName)
	assert.True(t, price.PricingModifiers[0].Amount.Equal(dec("10")))
	assert.True(t, price.TotalPrice.Equal(dec("30")))

	// end of the peak window is exclusive
	price, err = env.service.CalculatePrice(ctx, request(t, "u1", "court-1", "2025-03-03T11:00:00", "2025-03-03T12:00:00"))
	require.NoError(t, err)
	assert.Empty(t, price.PricingModifiers)
	assert.True(t, price.TotalPrice.Equal(dec("20")))

	// Sunday is not in the weekday set
	price, err = env.service.CalculatePrice(ctx, request(t, "u1", "court-1", "2025-03-09T09:00:00", "2025-03-09T10:00:00"))
	require.NoError(t, err)
	assert.Empty(t, price.PricingModifiers)
}

func TestCalculatePrice_Idempotent(t *testing.T) {
	env := newTestEnv(t, withRules(baseCatalog(), peakRule()))
	ctx := context.Background()

	req := request(t, "u1", "court-1", "2025-03-03T09:30:00", "2025-03-03T11:15:00")
	req.CoachID = strPtr("coach-1")
	req.RacketCount = 1

	first, err := env.service.CalculatePrice(ctx, req)
	require.NoError(t, err)
	second, err := env.service.CalculatePrice(ctx, req)
	require.NoError(t, err)

	assert.True(t, first.TotalPrice.Equal(second.TotalPrice))
	assert.Equal(t, len(first.PricingModifiers), len(second.PricingModifiers))
}

func TestCalculatePrice_Fees(t *testing.T) {
	env := newTestEnv(t, baseCatalog())
	ctx := context.Background()

	req := request(t, "u1", "court-1", "2025-03-03T09:00:00", "2025-03-03T10:30:00")
	req.CoachID = strPtr("coach-1")
	req.RacketCount = 2
	req.ShoesCount = 1

	price, err := env.service.CalculatePrice(ctx, req)
	require.NoError(t, err)

	assert.True(t, price.BasePrice.Equal(dec("30")), price.BasePrice.String())
	assert.True(t, price.EquipmentFee.Equal(dec("13")), price.EquipmentFee.String())
	assert.True(t, price.CoachFee.Equal(dec("45")), price.CoachFee.String())
	assert.True(t, price.TotalPrice.Equal(dec("88")), price.TotalPrice.String())
}

func TestCalculatePrice_RuleTypes(t *testing.T) {
	tests := []struct {
		name      string
		rule      models.PricingRule
		holidays  []models.Holiday
		court     string
		start     string
		end       string
		wantTotal string
		wantMods  int
	}{
		{
			name:      "weekend surcharge on Saturday",
			rule:      models.PricingRule{Name: "Weekend", RuleType: models.RuleWeekend, DaysOfWeek: []int{0, 6}, Multiplier: dec("1"), Surcharge: dec("5"), IsActive: true},
			court:     "court-1",
			start:     "2025-03-08T10:00:00",
			end:       "2025-03-08T11:00:00",
			wantTotal: "25",
			wantMods:  1,
		},
		{
			name:      "zero multiplier clears the running price before surcharges",
			rule:      models.PricingRule{Name: "Free weekend", RuleType: models.RuleWeekend, DaysOfWeek: []int{0, 6}, Multiplier: dec("0"), Surcharge: dec("5"), IsActive: true},
			court:     "court-1",
			start:     "2025-03-08T10:00:00",
			end:       "2025-03-08T11:00:00",
			wantTotal: "5",
			wantMods:  2,
		},
		{
			name:      "weekend rule without days never matches",
			rule:      models.PricingRule{Name: "Weekend", RuleType: models.RuleWeekend, Multiplier: dec("2"), IsActive: true},
			court:     "court-1",
			start:     "2025-03-08T10:00:00",
			end:       "2025-03-08T11:00:00",
			wantTotal: "20",
		},
		{
			name:      "holiday multiplier",
			rule:      models.PricingRule{Name: "Holiday", RuleType: models.RuleHoliday, Multiplier: dec("2"), IsActive: true},
			holidays:  []models.Holiday{{Date: "2025-12-25", Name: "Christmas"}},
			court:     "court-1",
			start:     "2025-12-25T10:00:00",
			end:       "2025-12-25T11:00:00",
			wantTotal: "40",
			wantMods:  1,
		},
		{
			name:      "holiday rule on a normal day",
			rule:      models.PricingRule{Name: "Holiday", RuleType: models.RuleHoliday, Multiplier: dec("2"), IsActive: true},
			holidays:  []models.Holiday{{Date: "2025-12-25", Name: "Christmas"}},
			court:     "court-1",
			start:     "2025-12-24T10:00:00",
			end:       "2025-12-24T11:00:00",
			wantTotal: "20",
		},
		{
			name:      "premium indoor court",
			rule:      models.PricingRule{Name: "Indoor", RuleType: models.RulePremiumCourt, Multiplier: dec("1.25"), IsActive: true},
			court:     "court-2",
			start:     "2025-03-03T10:00:00",
			end:       "2025-03-03T11:00:00",
			wantTotal: "50",
			wantMods:  1,
		},
		{
			name:      "premium rule skips outdoor court",
			rule:      models.PricingRule{Name: "Indoor", RuleType: models.RulePremiumCourt, Multiplier: dec("1.25"), IsActive: true},
			court:     "court-1",
			start:     "2025-03-03T10:00:00",
			end:       "2025-03-03T11:00:00",
			wantTotal: "20",
		},
		{
			name:      "peak window across midnight",
			rule:      models.PricingRule{Name: "Late", RuleType: models.RulePeakHour, StartTime: "22:00", EndTime: "02:00", Multiplier: dec("1.5"), IsActive: true},
			court:     "court-1",
			start:     "2025-03-04T01:00:00",
			end:       "2025-03-04T02:00:00",
			wantTotal: "30",
			wantMods:  1,
		},
		{
			name:      "inactive rule ignored",
			rule:      models.PricingRule{Name: "Off", RuleType: models.RulePremiumCourt, Multiplier: dec("3"), IsActive: false},
			court:     "court-2",
			start:     "2025-03-03T10:00:00",
			end:       "2025-03-03T11:00:00",
			wantTotal: "40",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := withRules(baseCatalog(), tt.rule)
			catalog.Holidays = tt.holidays
			env := newTestEnv(t, catalog)

			price, err := env.service.CalculatePrice(context.Background(), request(t, "u1", tt.court, tt.start, tt.end))
			require.NoError(t, err)
			assert.True(t, price.TotalPrice.Equal(dec(tt.wantTotal)), "total %s", price.TotalPrice)
			assert.Len(t, price.PricingModifiers, tt.wantMods)
		})
	}
}

func TestCalculatePrice_RulesCompound(t *testing.T) {
	catalog := withRules(baseCatalog(),
		models.PricingRule{Name: "Indoor", RuleType: models.RulePremiumCourt, Multiplier: dec("1.5"), IsActive: true},
		models.PricingRule{Name: "Evening", RuleType: models.RulePeakHour, StartTime: "18:00", EndTime: "22:00", Multiplier: dec("2"), Surcharge: dec("4"), IsActive: true},
	)
	env := newTestEnv(t, catalog)

	price, err := env.service.CalculatePrice(context.Background(), request(t, "u1", "court-2", "2025-03-03T19:00:00", "2025-03-03T20:00:00"))
	require.NoError(t, err)

	// 40 -> *1.5 = 60 -> *2 = 120 -> +4 = 124
	require.Len(t, price.PricingModifiers, 3)
	assert.True(t, price.PricingModifiers[0].Amount.Equal(dec("20")))
	assert.True(t, price.PricingModifiers[1].Amount.Equal(dec("60")))
	assert.Equal(t, models.ModifierSurcharge, price.PricingModifiers[2].Type)
	assert.True(t, price.PricingModifiers[2].Amount.Equal(dec("4")))
	assert.True(t, price.TotalPrice.Equal(dec("124")))
}

func TestRuleApplies_UnknownType(t *testing.T) {
	_, err := ruleApplies(&models.PricingRule{RuleType: "lunar"}, ruleInput{})
	assert.Error(t, err)
}

func TestMatchPeakHour_MissingBounds(t *testing.T) {
	in := ruleInput{start: window(t, "2025-03-03T10:00:00", "2025-03-03T11:00:00").Start}
	ok, err := matchPeakHour(&models.PricingRule{StartTime: "09:00"}, in)
	require.NoError(t, err)
	assert.False(t, ok)
}
