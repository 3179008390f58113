package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"upkeep-bknd/internal/metrics"
	"upkeep-bknd/internal/models"
	"upkeep-bknd/internal/places"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"
)

// ProviderStore persists providers keyed by place id.
type ProviderStore interface {
	FindAll(ctx context.Context, params models.ProviderQueryParams) ([]models.Provider, error)
	FindByPlaceID(ctx context.Context, placeID string) (*models.Provider, error)
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Provider, error)
	// Upsert inserts the record or refreshes the discovery fields of the
	// existing row for placeID. id and placeId never change on update.
	Upsert(ctx context.Context, placeID string, record *models.Provider) (*models.Provider, error)
	UpsertBatch(ctx context.Context, records []*models.Provider) ([]*models.Provider, error)
	UpdateClaim(ctx context.Context, p *models.Provider) error
	UpdateBilling(ctx context.Context, p *models.Provider) error
}

// discoveryColumns are refreshed by every upsert. Claim and billing
// columns are left alone so a rediscovery never un-verifies a provider.
var discoveryColumns = []string{
	"name", "description", "address", "service_type", "services", "city",
	"lat", "lng", "radius", "type", "pricing", "rating", "review_count",
	"availability", "website",
}

var (
	claimColumns   = []string{"verified", "license_hash", "claimed_by", "claimed_at", "updated_at"}
	billingColumns = []string{"subscription_tier", "pending_tier", "subscription_status", "stripe_customer_id", "stripe_subscription_id", "updated_at"}
)

type BunProviderStore struct {
	db      bun.IDB
	metrics *metrics.Recorder
	logr    *zap.Logger
}

func NewProviderStore(db bun.IDB, rec *metrics.Recorder, logr *zap.Logger) *BunProviderStore {
	return &BunProviderStore{db: db, metrics: rec, logr: logr}
}

// FindAll returns providers matching params. With Near set the filter and
// ordering run in PostGIS against the generated geography column.
func (s *BunProviderStore) FindAll(ctx context.Context, params models.ProviderQueryParams) ([]models.Provider, error) {
	var providers []models.Provider

	q := s.db.NewSelect().Model(&providers)

	if params.ServiceType != "" {
		q = q.Where("p.service_type = ?", params.ServiceType)
	}
	if params.City != "" {
		q = q.Where("LOWER(p.city) = ?", strings.ToLower(params.City))
	}
	if len(params.Pricing) > 0 {
		q = q.Where("p.pricing IN (?)", bun.In(params.Pricing))
	}
	if len(params.PlaceIDs) > 0 {
		q = q.Where("p.place_id IN (?)", bun.In(params.PlaceIDs))
	}

	if n := params.Near; n != nil {
		q = q.Where("ST_DWithin(p.geom, ST_SetSRID(ST_MakePoint(?, ?), 4326)::geography, ?)",
			n.Lng, n.Lat, n.RadiusMiles*places.MetersPerMile).
			OrderExpr("ST_Distance(p.geom, ST_SetSRID(ST_MakePoint(?, ?), 4326)::geography) ASC", n.Lng, n.Lat)
	} else {
		q = q.OrderExpr("p.id ASC")
	}

	if params.Limit > 0 {
		q = q.Limit(params.Limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("find providers: %w", err)
	}
	return providers, nil
}

func (s *BunProviderStore) FindByPlaceID(ctx context.Context, placeID string) (*models.Provider, error) {
	return s.findOne(ctx, "p.place_id = ?", placeID)
}

func (s *BunProviderStore) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Provider, error) {
	return s.findOne(ctx, "p.stripe_subscription_id = ?", subscriptionID)
}

func (s *BunProviderStore) findOne(ctx context.Context, where string, arg interface{}) (*models.Provider, error) {
	p := new(models.Provider)
	err := s.db.NewSelect().Model(p).Where(where, arg).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find provider: %w", err)
	}
	return p, nil
}

// Upsert writes record under placeID. The id comes from the table's
// sequence on first insert. A unique violation means a concurrent insert
// won the race between our conflict check and write; one retry turns it
// into an update.
func (s *BunProviderStore) Upsert(ctx context.Context, placeID string, record *models.Provider) (*models.Provider, error) {
	record.PlaceID = placeID

	err := s.upsert(ctx, record)
	if err != nil && isUniqueViolation(err) {
		s.logr.Warn("retrying provider upsert after unique violation", zap.String("place_id", placeID))
		err = s.upsert(ctx, record)
	}
	if err != nil {
		s.metrics.Upsert("error")
		return nil, fmt.Errorf("upsert provider %s: %w", placeID, err)
	}

	s.metrics.Upsert("ok")
	return record, nil
}

func (s *BunProviderStore) upsert(ctx context.Context, p *models.Provider) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Services == nil {
		p.Services = []string{}
	}
	if p.Specializations == nil {
		p.Specializations = []string{}
	}
	if p.Certifications == nil {
		p.Certifications = []string{}
	}
	if p.SubscriptionTier == "" {
		p.SubscriptionTier = models.TierNone
	}

	q := s.db.NewInsert().
		Model(p).
		On("CONFLICT (place_id) DO UPDATE")
	for _, col := range discoveryColumns {
		q = q.Set("? = EXCLUDED.?", bun.Ident(col), bun.Ident(col))
	}
	_, err := q.Set("updated_at = EXCLUDED.updated_at").
		Returning("*").
		Exec(ctx)
	return err
}

// UpsertBatch upserts each record on its own, so a slow row never holds
// locks for the rest of the batch. Duplicate place ids collapse to the last
// occurrence at the position of the first.
func (s *BunProviderStore) UpsertBatch(ctx context.Context, records []*models.Provider) ([]*models.Provider, error) {
	index := make(map[string]int, len(records))
	unique := make([]*models.Provider, 0, len(records))
	for _, r := range records {
		if i, ok := index[r.PlaceID]; ok {
			unique[i] = r
			continue
		}
		index[r.PlaceID] = len(unique)
		unique = append(unique, r)
	}

	out := make([]*models.Provider, 0, len(unique))
	for _, r := range unique {
		p, err := s.Upsert(ctx, r.PlaceID, r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *BunProviderStore) UpdateClaim(ctx context.Context, p *models.Provider) error {
	return s.update(ctx, p, claimColumns)
}

func (s *BunProviderStore) UpdateBilling(ctx context.Context, p *models.Provider) error {
	return s.update(ctx, p, billingColumns)
}

func (s *BunProviderStore) update(ctx context.Context, p *models.Provider, columns []string) error {
	p.UpdatedAt = time.Now().UTC()

	res, err := s.db.NewUpdate().
		Model(p).
		Column(columns...).
		Where("p.place_id = ?", p.PlaceID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update provider %s: %w", p.PlaceID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// sqlStateError is implemented by pgdriver.Error.
type sqlStateError interface {
	Field(k byte) string
}

var _ sqlStateError = pgdriver.Error{}

func isUniqueViolation(err error) bool {
	var pgErr sqlStateError
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return false
}
