package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/google/uuid"
)

// catalogNamespace derives stable ids for seed records that do not carry one.
var catalogNamespace = uuid.MustParse("6f1d3c0e-8d0c-4a55-9a36-2a2f2b6c3e11")

// SeedCatalog upserts courts, coaches, equipment, pricing rules and holidays.
// Existing equipment keeps its available_count, clamped to the new total_stock.
func (db *DB) SeedCatalog(ctx context.Context, catalog config.CatalogConfig) error {
	now := time.Now().UTC()

	return db.RunInTx(ctx, func(tx domain.Tx) error {
		q := tx.(*queries)

		for _, court := range catalog.Courts {
			_, err := q.db.ExecContext(ctx, `
				INSERT INTO courts (id, name, type, base_price, status, description, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name, type = excluded.type, base_price = excluded.base_price,
					status = excluded.status, description = excluded.description`,
				court.ID, court.Name, court.Type, court.BasePrice, court.Status, court.Description, now)
			if err != nil {
				return fmt.Errorf("failed to seed court %s: %w", court.ID, err)
			}
		}

		for _, coach := range catalog.Coaches {
			specialties, err := json.Marshal(nonNilStrings(coach.Specialties))
			if err != nil {
				return err
			}
			_, err = q.db.ExecContext(ctx, `
				INSERT INTO coaches (id, name, hourly_rate, bio, specialties, status, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name, hourly_rate = excluded.hourly_rate, bio = excluded.bio,
					specialties = excluded.specialties, status = excluded.status`,
				coach.ID, coach.Name, coach.HourlyRate, coach.Bio, string(specialties), coach.Status, now)
			if err != nil {
				return fmt.Errorf("failed to seed coach %s: %w", coach.ID, err)
			}
		}

		for _, eq := range catalog.Equipment {
			res, err := q.db.ExecContext(ctx, `
				UPDATE equipment SET
					available_count = MAX(0, MIN(?, available_count + (? - total_stock))),
					total_stock = ?, rental_price = ?
				WHERE type = ?`, eq.TotalStock, eq.TotalStock, eq.TotalStock, eq.RentalPrice, eq.Type)
			if err != nil {
				return fmt.Errorf("failed to seed equipment %s: %w", eq.Type, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				continue
			}

			id := eq.ID
			if id == "" {
				id = "equipment-" + eq.Type
			}
			_, err = q.db.ExecContext(ctx, `
				INSERT INTO equipment (id, type, total_stock, available_count, rental_price, created_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				id, eq.Type, eq.TotalStock, eq.AvailableCount, eq.RentalPrice, now)
			if err != nil {
				return fmt.Errorf("failed to seed equipment %s: %w", eq.Type, err)
			}
		}

		for i, rule := range catalog.PricingRules {
			id := rule.ID
			if id == "" {
				id = uuid.NewSHA1(catalogNamespace, []byte(rule.Name)).String()
			}
			days, err := json.Marshal(nonNilInts(rule.DaysOfWeek))
			if err != nil {
				return err
			}
			// creation order follows the order of the catalog
			createdAt := now.Add(time.Duration(i) * time.Microsecond)
			_, err = q.db.ExecContext(ctx, `
				INSERT INTO pricing_rules (id, name, rule_type, start_time, end_time, days_of_week,
					multiplier, surcharge, is_active, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name, rule_type = excluded.rule_type,
					start_time = excluded.start_time, end_time = excluded.end_time,
					days_of_week = excluded.days_of_week, multiplier = excluded.multiplier,
					surcharge = excluded.surcharge, is_active = excluded.is_active`,
				id, rule.Name, rule.RuleType, nullIfEmpty(rule.StartTime), nullIfEmpty(rule.EndTime),
				string(days), rule.Multiplier, rule.Surcharge, rule.IsActive, createdAt)
			if err != nil {
				return fmt.Errorf("failed to seed pricing rule %q: %w", rule.Name, err)
			}
		}

		for _, h := range catalog.Holidays {
			_, err := q.db.ExecContext(ctx, `
				INSERT INTO holidays (date, name) VALUES (?, ?)
				ON CONFLICT(date) DO UPDATE SET name = excluded.name`, h.Date, h.Name)
			if err != nil {
				return fmt.Errorf("failed to seed holiday %s: %w", h.Date, err)
			}
		}
		return nil
	})
}

const courtColumns = `id, name, type, base_price, status, description, created_at`

func scanCourt(row interface{ Scan(...interface{}) error }) (*models.Court, error) {
	var c models.Court
	if err := row.Scan(&c.ID, &c.Name, &c.Type, &c.BasePrice, &c.Status, &c.Description, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (q *queries) GetCourt(ctx context.Context, id string) (*models.Court, error) {
	court, err := scanCourt(q.db.QueryRowContext(ctx, `SELECT `+courtColumns+` FROM courts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("court %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get court: %w", err)
	}
	return court, nil
}

func (q *queries) ListCourts(ctx context.Context) ([]*models.Court, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+courtColumns+` FROM courts ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list courts: %w", err)
	}
	defer rows.Close()

	var courts []*models.Court
	for rows.Next() {
		c, err := scanCourt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan court: %w", err)
		}
		courts = append(courts, c)
	}
	return courts, rows.Err()
}

func (q *queries) GetCoach(ctx context.Context, id string) (*models.Coach, error) {
	var (
		c           models.Coach
		specialties string
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT id, name, hourly_rate, bio, specialties, status, created_at
		FROM coaches WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.HourlyRate, &c.Bio, &specialties, &c.Status, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("coach %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get coach: %w", err)
	}
	if err := json.Unmarshal([]byte(specialties), &c.Specialties); err != nil {
		return nil, fmt.Errorf("failed to decode coach specialties: %w", err)
	}
	return &c, nil
}

const equipmentColumns = `id, type, total_stock, available_count, rental_price, created_at`

func scanEquipment(row interface{ Scan(...interface{}) error }) (*models.Equipment, error) {
	var e models.Equipment
	if err := row.Scan(&e.ID, &e.Type, &e.TotalStock, &e.AvailableCount, &e.RentalPrice, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// GetEquipment returns the pool for a type, or ErrNotFound when the facility does not stock it.
func (q *queries) GetEquipment(ctx context.Context, equipmentType string) (*models.Equipment, error) {
	eq, err := scanEquipment(q.db.QueryRowContext(ctx,
		`SELECT `+equipmentColumns+` FROM equipment WHERE type = ?`, equipmentType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("equipment %s: %w", equipmentType, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get equipment: %w", err)
	}
	return eq, nil
}

func (q *queries) ListEquipment(ctx context.Context) ([]*models.Equipment, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+equipmentColumns+` FROM equipment ORDER BY type`)
	if err != nil {
		return nil, fmt.Errorf("failed to list equipment: %w", err)
	}
	defer rows.Close()

	var items []*models.Equipment
	for rows.Next() {
		e, err := scanEquipment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan equipment: %w", err)
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

// ReserveEquipment decrements the pool only if enough units remain.
// It reports false without changing anything when they do not.
func (q *queries) ReserveEquipment(ctx context.Context, equipmentType string, quantity int) (bool, error) {
	if quantity <= 0 {
		return true, nil
	}
	res, err := q.db.ExecContext(ctx, `
		UPDATE equipment SET available_count = available_count - ?
		WHERE type = ? AND available_count >= ?`, quantity, equipmentType, quantity)
	if err != nil {
		return false, fmt.Errorf("failed to reserve equipment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to reserve equipment: %w", err)
	}
	return n == 1, nil
}

// ReleaseEquipment returns units to the pool. Returning more than was taken
// fails with ErrOverRelease and leaves the counter untouched.
func (q *queries) ReleaseEquipment(ctx context.Context, equipmentType string, quantity int) error {
	if quantity <= 0 {
		return nil
	}
	res, err := q.db.ExecContext(ctx, `
		UPDATE equipment SET available_count = available_count + ?
		WHERE type = ? AND available_count + ? <= total_stock`, quantity, equipmentType, quantity)
	if err != nil {
		return fmt.Errorf("failed to release equipment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to release equipment: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := q.GetEquipment(ctx, equipmentType); err != nil {
		return err
	}
	return fmt.Errorf("release %d %s: %w", quantity, equipmentType, domain.ErrOverRelease)
}

// ListActivePricingRules returns active rules in creation order.
func (q *queries) ListActivePricingRules(ctx context.Context) ([]*models.PricingRule, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, name, rule_type, start_time, end_time, days_of_week, multiplier, surcharge, is_active, created_at
		FROM pricing_rules WHERE is_active = 1 ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pricing rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.PricingRule
	for rows.Next() {
		var (
			r          models.PricingRule
			start, end sql.NullString
			days       string
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.RuleType, &start, &end, &days,
			&r.Multiplier, &r.Surcharge, &r.IsActive, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pricing rule: %w", err)
		}
		r.StartTime, r.EndTime = start.String, end.String
		if err := json.Unmarshal([]byte(days), &r.DaysOfWeek); err != nil {
			return nil, fmt.Errorf("failed to decode days_of_week of rule %s: %w", r.ID, err)
		}
		rules = append(rules, &r)
	}
	return rules, rows.Err()
}

func (q *queries) IsHoliday(ctx context.Context, date time.Time) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM holidays WHERE date = ?`,
		date.Format(models.DateLayout)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check holiday: %w", err)
	}
	return n > 0, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nonNilInts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}
