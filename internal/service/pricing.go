package service

import (
	"context"
	"errors"

	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var decimalOne = decimal.NewFromInt(1)

// PricingEngine computes a price breakdown. The result depends only on the
// request and the catalog at call time; no rounding is applied.
type PricingEngine struct {
	store  domain.Store
	logger *zerolog.Logger
}

func NewPricingEngine(store domain.Store, logger *zerolog.Logger) *PricingEngine {
	return &PricingEngine{store: store, logger: logger}
}

func (p *PricingEngine) Calculate(ctx context.Context, req models.BookingRequest) (models.PriceCalculation, error) {
	if err := validateRequest(req); err != nil {
		return models.PriceCalculation{}, err
	}
	return p.calculate(ctx, p.store, req)
}

func (p *PricingEngine) calculate(ctx context.Context, r domain.Reader, req models.BookingRequest) (models.PriceCalculation, error) {
	var calc models.PriceCalculation

	court, err := r.GetCourt(ctx, req.CourtID)
	if err != nil {
		return calc, err
	}

	calc.BasePrice = req.Window.Charge(court.BasePrice)
	calc.PricingModifiers = []models.PricingModifier{}

	rules, err := r.ListActivePricingRules(ctx)
	if err != nil {
		return calc, err
	}

	holidayChecked, isHoliday := false, false
	in := ruleInput{
		start: req.Window.Start,
		court: court,
		holiday: func() (bool, error) {
			if !holidayChecked {
				v, err := r.IsHoliday(ctx, req.Window.Start)
				if err != nil {
					return false, err
				}
				holidayChecked, isHoliday = true, v
			}
			return isHoliday, nil
		},
	}

	running := calc.BasePrice
	for _, rule := range rules {
		applies, err := ruleApplies(rule, in)
		if err != nil {
			p.logger.Warn().Err(err).Str("rule_id", rule.ID).Msg("Skipping pricing rule")
			continue
		}
		if !applies {
			continue
		}

		if !rule.Multiplier.Equal(decimalOne) {
			amount := running.Mul(rule.Multiplier.Sub(decimalOne))
			calc.PricingModifiers = append(calc.PricingModifiers, models.PricingModifier{
				RuleName: rule.Name,
				RuleType: rule.RuleType,
				Amount:   amount,
				Type:     models.ModifierMultiplier,
			})
			running = running.Mul(rule.Multiplier)
		}
		if rule.Surcharge.IsPositive() {
			calc.PricingModifiers = append(calc.PricingModifiers, models.PricingModifier{
				RuleName: rule.Name,
				RuleType: rule.RuleType,
				Amount:   rule.Surcharge,
				Type:     models.ModifierSurcharge,
			})
			running = running.Add(rule.Surcharge)
		}
	}

	calc.EquipmentFee = decimal.Zero
	for _, item := range []struct {
		kind  string
		count int
	}{
		{models.EquipmentRacket, req.RacketCount},
		{models.EquipmentShoes, req.ShoesCount},
	} {
		if item.count <= 0 {
			continue
		}
		eq, err := r.GetEquipment(ctx, item.kind)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return calc, err
		}
		calc.EquipmentFee = calc.EquipmentFee.Add(eq.RentalPrice.Mul(decimal.NewFromInt(int64(item.count))))
	}

	calc.CoachFee = decimal.Zero
	if req.HasCoach() {
		coach, err := r.GetCoach(ctx, *req.CoachID)
		if err != nil {
			return calc, err
		}
		calc.CoachFee = req.Window.Charge(coach.HourlyRate)
	}

	calc.TotalPrice = running.Add(calc.EquipmentFee).Add(calc.CoachFee)
	return calc, nil
}
