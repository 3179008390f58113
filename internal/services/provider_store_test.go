package services

import (
	"context"
	"errors"
	"testing"

	"upkeep-bknd/internal/database"
	"upkeep-bknd/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sqlStateStub string

func (e sqlStateStub) Error() string       { return "sqlstate " + string(e) }
func (e sqlStateStub) Field(k byte) string { return map[byte]string{'C': string(e)}[k] }

func newMockStore(t *testing.T) (*BunProviderStore, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := database.Wrap(sqldb)
	t.Cleanup(func() { _ = db.Close() })
	return NewProviderStore(db, nil, zap.NewNop()), mock
}

func TestStoreUpsertRefreshesDiscoveryColumns(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO "providers" .*'abc'.* ON CONFLICT \(place_id\) DO UPDATE SET "name" = EXCLUDED\."name".*"website" = EXCLUDED\."website", updated_at = EXCLUDED\.updated_at RETURNING \*`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "place_id", "name", "verified", "geom"}).
			AddRow(7, "abc", "Shop", true, "0101000020E6100000"))

	p := candidate("ignored", 31.99, -102.07, models.ServiceMechanics)
	got, err := store.Upsert(context.Background(), "abc", &p)
	require.NoError(t, err)

	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, "abc", got.PlaceID)
	assert.True(t, got.Verified, "claim state comes back from the existing row")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpsertNeverTouchesClaimColumns(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`DO UPDATE SET`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	p := candidate("abc", 1, 1, models.ServiceMechanics)
	_, err := store.Upsert(context.Background(), "abc", &p)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	for _, col := range append(claimColumns, billingColumns...) {
		if col == "updated_at" {
			continue
		}
		assert.NotContains(t, discoveryColumns, col)
	}
}

func TestStoreUpsertRetriesUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO "providers"`).WillReturnError(sqlStateStub("23505"))
	mock.ExpectQuery(`INSERT INTO "providers"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "place_id"}).AddRow(3, "abc"))

	p := candidate("abc", 1, 1, models.ServiceMechanics)
	got, err := store.Upsert(context.Background(), "abc", &p)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpsertOtherErrorsAreNotRetried(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO "providers"`).WillReturnError(sqlStateStub("23514"))

	p := candidate("abc", 1, 1, models.ServiceMechanics)
	_, err := store.Upsert(context.Background(), "abc", &p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert provider abc")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpsertBatchCollapsesDuplicates(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO "providers" .*'Second A'`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "place_id", "name"}).AddRow(1, "a", "Second A"))
	mock.ExpectQuery(`INSERT INTO "providers" .*'Only B'`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "place_id", "name"}).AddRow(2, "b", "Only B"))

	first := candidate("a", 1, 1, models.ServiceMechanics)
	first.Name = "First A"
	b := candidate("b", 1, 1, models.ServiceMechanics)
	b.Name = "Only B"
	second := candidate("a", 1, 1, models.ServiceMechanics)
	second.Name = "Second A"

	got, err := store.UpsertBatch(context.Background(), []*models.Provider{&first, &b, &second})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].PlaceID)
	assert.Equal(t, "Second A", got[0].Name)
	assert.Equal(t, "b", got[1].PlaceID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpsertBatchStopsOnError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO "providers"`).WillReturnError(errors.New("connection reset"))

	a := candidate("a", 1, 1, models.ServiceMechanics)
	b := candidate("b", 1, 1, models.ServiceMechanics)
	_, err := store.UpsertBatch(context.Background(), []*models.Provider{&a, &b})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreFindAllNear(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM "providers" AS "p" WHERE \(p\.service_type = 'welders'\) AND \(p\.pricing IN \('budget', 'premium'\)\) AND \(ST_DWithin\(p\.geom, ST_SetSRID\(ST_MakePoint\(-95\.37, 29\.76\), 4326\)::geography, [0-9.]+\)\) ORDER BY ST_Distance\(p\.geom, .*\) ASC LIMIT 5`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "place_id", "lat", "lng"}).
			AddRow(1, "a", 29.77, -95.37).
			AddRow(2, "b", 29.80, -95.37))

	got, err := store.FindAll(context.Background(), models.ProviderQueryParams{
		ServiceType: models.ServiceWelders,
		Pricing:     []models.Pricing{models.PricingBudget, models.PricingPremium},
		Near:        &models.GeoCircle{Lat: 29.76, Lng: -95.37, RadiusMiles: 25},
		Limit:       5,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].PlaceID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreFindAllByPlaceIDs(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`WHERE \(p\.place_id IN \('a', 'b'\)\) ORDER BY p\.id ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "place_id"}).AddRow(1, "a"))

	got, err := store.FindAll(context.Background(), models.ProviderQueryParams{PlaceIDs: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreFindByPlaceID(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`WHERE \(p\.place_id = 'abc'\) LIMIT 1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "place_id", "subscription_tier"}).AddRow(4, "abc", "contact"))
	mock.ExpectQuery(`WHERE \(p\.place_id = 'missing'\) LIMIT 1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "place_id"}))

	got, err := store.FindByPlaceID(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, models.TierContact, got.SubscriptionTier)

	_, err = store.FindByPlaceID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreFindBySubscriptionID(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`WHERE \(p\.stripe_subscription_id = 'sub_1'\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "place_id", "stripe_subscription_id"}).AddRow(4, "abc", "sub_1"))

	got, err := store.FindBySubscriptionID(context.Background(), "sub_1")
	require.NoError(t, err)
	require.NotNil(t, got.StripeSubscriptionID)
	assert.Equal(t, "sub_1", *got.StripeSubscriptionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpdateClaim(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE "providers" AS "p" SET "verified" = TRUE, "license_hash" = 'hash', .*WHERE \(p\.place_id = 'abc'\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "providers"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	p := &models.Provider{PlaceID: "abc", Verified: true, LicenseHash: "hash"}
	require.NoError(t, store.UpdateClaim(context.Background(), p))

	gone := &models.Provider{PlaceID: "gone", Verified: true}
	assert.ErrorIs(t, store.UpdateClaim(context.Background(), gone), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpdateBilling(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE "providers" AS "p" SET "subscription_tier" = 'none', "pending_tier" = 'contact', .*"stripe_customer_id" = 'cus_1'`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tier := models.TierContact
	cus := "cus_1"
	p := &models.Provider{PlaceID: "abc", SubscriptionTier: models.TierNone, PendingTier: &tier, StripeCustomerID: &cus}
	require.NoError(t, store.UpdateBilling(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}
