package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RayBen445/ChatBot/domain/account"
	"github.com/RayBen445/ChatBot/domain/pricing"
	"github.com/RayBen445/ChatBot/ports"
	"github.com/shopspring/decimal"
)

// DiscountStore implements ports.DiscountStore using SQLite.
type DiscountStore struct {
	db *DB
}

// NewDiscountStore creates a new SQLite discount store.
func NewDiscountStore(db *DB) *DiscountStore {
	return &DiscountStore{db: db}
}

const discountColumns = `id, name, percent, start_date, end_date, tiers, active, created_at, created_by, updated_at`

// List returns all discounts ordered by ID.
func (s *DiscountStore) List(ctx context.Context) ([]pricing.Discount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+discountColumns+` FROM discounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list discounts: %w", err)
	}
	defer rows.Close()

	out := []pricing.Discount{}
	for rows.Next() {
		d, err := scanDiscount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Get retrieves a discount by ID.
func (s *DiscountStore) Get(ctx context.Context, id string) (pricing.Discount, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+discountColumns+` FROM discounts WHERE id = ?`, id)
	d, err := scanDiscount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return pricing.Discount{}, fmt.Errorf("discount %s: %w", id, ports.ErrNotFound)
	}
	return d, err
}

// Create stores a new discount.
func (s *DiscountStore) Create(ctx context.Context, d pricing.Discount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO discounts (`+discountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.Name, d.Percent, d.StartDate.UTC(), d.EndDate.UTC(), joinTiers(d.Tiers),
		d.Active, d.CreatedAt.UTC(), d.CreatedBy, d.UpdatedAt.UTC())
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("discount %s: %w", d.ID, ports.ErrExists)
		}
		return fmt.Errorf("insert discount: %w", err)
	}
	return nil
}

// Update replaces an existing discount.
func (s *DiscountStore) Update(ctx context.Context, d pricing.Discount) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE discounts
		SET name = ?, percent = ?, start_date = ?, end_date = ?, tiers = ?, active = ?, updated_at = ?
		WHERE id = ?
	`, d.Name, d.Percent, d.StartDate.UTC(), d.EndDate.UTC(), joinTiers(d.Tiers), d.Active, d.UpdatedAt.UTC(), d.ID)
	if err != nil {
		return fmt.Errorf("update discount: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("discount %s: %w", d.ID, ports.ErrNotFound)
	}
	return nil
}

func scanDiscount(row scanner) (pricing.Discount, error) {
	var (
		d     pricing.Discount
		tiers string
	)
	err := row.Scan(&d.ID, &d.Name, &d.Percent, &d.StartDate, &d.EndDate, &tiers,
		&d.Active, &d.CreatedAt, &d.CreatedBy, &d.UpdatedAt)
	if err != nil {
		return pricing.Discount{}, err
	}
	d.Tiers = splitTiers(tiers)
	d.StartDate = d.StartDate.UTC()
	d.EndDate = d.EndDate.UTC()
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return d, nil
}

func joinTiers(tiers []account.Tier) string {
	parts := make([]string, len(tiers))
	for i, t := range tiers {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

func splitTiers(s string) []account.Tier {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tiers := make([]account.Tier, len(parts))
	for i, p := range parts {
		tiers[i] = account.Tier(p)
	}
	return tiers
}

// PricingStore implements ports.PricingStore using SQLite.
type PricingStore struct {
	db *DB
}

// NewPricingStore creates a new SQLite pricing store.
func NewPricingStore(db *DB) *PricingStore {
	return &PricingStore{db: db}
}

// Get returns the stored table; empty when nothing was saved.
func (s *PricingStore) Get(ctx context.Context) (pricing.Table, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tier, currency, amount FROM prices`)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	table := pricing.Table{}
	for rows.Next() {
		var (
			tier, currency string
			amount         decimal.Decimal
		)
		if err := rows.Scan(&tier, &currency, &amount); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		t := account.Tier(tier)
		if table[t] == nil {
			table[t] = make(map[pricing.Currency]decimal.Decimal)
		}
		table[t][pricing.Currency(currency)] = amount
	}
	return table, rows.Err()
}

// Put replaces the whole table in one transaction.
func (s *PricingStore) Put(ctx context.Context, t pricing.Table, at time.Time, by string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM prices`); err != nil {
		return fmt.Errorf("clear prices: %w", err)
	}
	for tier, prices := range t {
		for currency, amount := range prices {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO prices (tier, currency, amount) VALUES (?, ?, ?)
			`, string(tier), string(currency), amount.String()); err != nil {
				return fmt.Errorf("insert price %s/%s: %w", tier, currency, err)
			}
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO pricing_meta (id, updated_at, updated_by) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at, updated_by = excluded.updated_by
	`, at.UTC(), by); err != nil {
		return fmt.Errorf("record pricing update: %w", err)
	}

	return tx.Commit()
}

// Ensure interface compliance.
var (
	_ ports.DiscountStore = (*DiscountStore)(nil)
	_ ports.PricingStore  = (*PricingStore)(nil)
)
