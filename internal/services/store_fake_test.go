package services

import (
	"context"
	"sort"
	"sync"

	"upkeep-bknd/internal/models"
	"upkeep-bknd/internal/utils"
)

// memStore is an in-memory ProviderStore with the same upsert rules as
// the postgres store.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[string]models.Provider
	err    error

	upserts int
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]models.Provider)}
}

func (m *memStore) FindAll(_ context.Context, params models.ProviderQueryParams) ([]models.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	ids := make(map[string]bool, len(params.PlaceIDs))
	for _, id := range params.PlaceIDs {
		ids[id] = true
	}

	var out []models.Provider
	for _, p := range m.rows {
		if params.ServiceType != "" && p.ServiceType != params.ServiceType {
			continue
		}
		if len(ids) > 0 && !ids[p.PlaceID] {
			continue
		}
		if n := params.Near; n != nil && utils.HaversineMiles(n.Lat, n.Lng, p.Lat, p.Lng) > n.RadiusMiles {
			continue
		}
		if len(params.Pricing) > 0 && !containsPricing(params.Pricing, p.Pricing) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

func containsPricing(list []models.Pricing, p models.Pricing) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}

func (m *memStore) FindByPlaceID(_ context.Context, placeID string) (*models.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.rows[placeID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *memStore) FindBySubscriptionID(_ context.Context, subscriptionID string) (*models.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.rows {
		if p.StripeSubscriptionID != nil && *p.StripeSubscriptionID == subscriptionID {
			p := p
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) Upsert(_ context.Context, placeID string, record *models.Provider) (*models.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.upserts++

	record.PlaceID = placeID
	if existing, ok := m.rows[placeID]; ok {
		merged := existing
		merged.Name = record.Name
		merged.Description = record.Description
		merged.Address = record.Address
		merged.ServiceType = record.ServiceType
		merged.Services = record.Services
		merged.City = record.City
		merged.Lat, merged.Lng = record.Lat, record.Lng
		merged.Radius = record.Radius
		merged.Type = record.Type
		merged.Pricing = record.Pricing
		merged.Rating = record.Rating
		merged.ReviewCount = record.ReviewCount
		merged.Availability = record.Availability
		merged.Website = record.Website
		m.rows[placeID] = merged
		*record = merged
		return record, nil
	}

	m.nextID++
	record.ID = m.nextID
	if record.SubscriptionTier == "" {
		record.SubscriptionTier = models.TierNone
	}
	m.rows[placeID] = *record
	return record, nil
}

func (m *memStore) UpsertBatch(ctx context.Context, records []*models.Provider) ([]*models.Provider, error) {
	out := make([]*models.Provider, 0, len(records))
	for _, r := range records {
		p, err := m.Upsert(ctx, r.PlaceID, r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) UpdateClaim(_ context.Context, p *models.Provider) error {
	return m.update(p, func(row *models.Provider) {
		row.Verified = p.Verified
		row.LicenseHash = p.LicenseHash
		row.ClaimedBy = p.ClaimedBy
		row.ClaimedAt = p.ClaimedAt
	})
}

func (m *memStore) UpdateBilling(_ context.Context, p *models.Provider) error {
	return m.update(p, func(row *models.Provider) {
		row.SubscriptionTier = p.SubscriptionTier
		row.PendingTier = p.PendingTier
		row.SubscriptionStatus = p.SubscriptionStatus
		row.StripeCustomerID = p.StripeCustomerID
		row.StripeSubscriptionID = p.StripeSubscriptionID
	})
}

func (m *memStore) update(p *models.Provider, apply func(*models.Provider)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	row, ok := m.rows[p.PlaceID]
	if !ok {
		return ErrNotFound
	}
	apply(&row)
	m.rows[p.PlaceID] = row
	return nil
}

func (m *memStore) get(placeID string) models.Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[placeID]
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}
