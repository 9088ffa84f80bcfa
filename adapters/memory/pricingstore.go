package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/RayBen445/ChatBot/domain/pricing"
	"github.com/RayBen445/ChatBot/ports"
)

// DiscountStore is an in-memory implementation of ports.DiscountStore.
type DiscountStore struct {
	mu        sync.RWMutex
	discounts map[string]pricing.Discount
}

// NewDiscountStore creates a new in-memory discount store.
func NewDiscountStore() *DiscountStore {
	return &DiscountStore{discounts: make(map[string]pricing.Discount)}
}

// List returns all discounts ordered by ID.
func (s *DiscountStore) List(ctx context.Context) ([]pricing.Discount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]pricing.Discount, 0, len(s.discounts))
	for _, d := range s.discounts {
		out = append(out, cloneDiscount(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get retrieves a discount by ID.
func (s *DiscountStore) Get(ctx context.Context, id string) (pricing.Discount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.discounts[id]
	if !ok {
		return pricing.Discount{}, fmt.Errorf("discount %s: %w", id, ports.ErrNotFound)
	}
	return cloneDiscount(d), nil
}

// Create stores a new discount.
func (s *DiscountStore) Create(ctx context.Context, d pricing.Discount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.discounts[d.ID]; ok {
		return fmt.Errorf("discount %s: %w", d.ID, ports.ErrExists)
	}
	s.discounts[d.ID] = cloneDiscount(d)
	return nil
}

// Update replaces an existing discount.
func (s *DiscountStore) Update(ctx context.Context, d pricing.Discount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.discounts[d.ID]; !ok {
		return fmt.Errorf("discount %s: %w", d.ID, ports.ErrNotFound)
	}
	s.discounts[d.ID] = cloneDiscount(d)
	return nil
}

func cloneDiscount(d pricing.Discount) pricing.Discount {
	d.Tiers = append(d.Tiers[:0:0], d.Tiers...)
	return d
}

// PricingStore is an in-memory implementation of ports.PricingStore.
type PricingStore struct {
	mu        sync.RWMutex
	table     pricing.Table
	updatedAt time.Time
	updatedBy string
}

// NewPricingStore creates a pricing store holding an empty table.
func NewPricingStore() *PricingStore {
	return &PricingStore{table: pricing.Table{}}
}

// Get returns a copy of the stored table.
func (s *PricingStore) Get(ctx context.Context) (pricing.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.Clone(), nil
}

// Put replaces the stored table.
func (s *PricingStore) Put(ctx context.Context, t pricing.Table, at time.Time, by string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = t.Clone()
	s.updatedAt = at
	s.updatedBy = by
	return nil
}

// LastUpdate reports when and by whom the table was last replaced.
func (s *PricingStore) LastUpdate() (time.Time, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt, s.updatedBy
}

// Ensure interface compliance.
var (
	_ ports.DiscountStore = (*DiscountStore)(nil)
	_ ports.PricingStore  = (*PricingStore)(nil)
)
