package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"upkeep-bknd/internal/metrics"
	"upkeep-bknd/internal/models"
	"upkeep-bknd/internal/places"
	"upkeep-bknd/internal/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultSearchRadius = 50.0
	defaultRegionSuffix = ", TX"
	defaultNearbyLimit  = 50

	// persistTimeout bounds storing and caching one search's results once
	// the places call has returned.
	persistTimeout = 10 * time.Second
)

// PlacesSearcher fetches and normalizes candidates from the places backend.
type PlacesSearcher interface {
	Search(ctx context.Context, req places.SearchRequest) ([]models.Provider, error)
}

// SearchRequest is the public provider query. Coordinates win over city
// when both are present.
type SearchRequest struct {
	City        string   `json:"city" validate:"omitempty,max=120"`
	ServiceType string   `json:"serviceType" validate:"omitempty,oneof=mechanics welders engineers other"`
	Lat         *float64 `json:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lng         *float64 `json:"lng" validate:"omitempty,gte=-180,lte=180"`
	Radius      *float64 `json:"radius" validate:"omitempty,gte=10,lte=50"`
}

// NearbyRequest queries stored providers only; it never calls the places
// backend.
type NearbyRequest struct {
	ServiceType string   `json:"serviceType" validate:"omitempty,oneof=mechanics welders engineers other"`
	Lat         *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng         *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
	Radius      *float64 `json:"radius" validate:"omitempty,gte=10,lte=50"`
	Pricing     []string `json:"pricing" validate:"omitempty,dive,oneof=budget mid-range premium"`
	Limit       int      `json:"limit" validate:"omitempty,min=1,max=100"`
}

type ProviderServiceOptions struct {
	// RegionSuffix is appended to bare city names, e.g. ", TX".
	RegionSuffix string
	// SearchTimeout bounds a single places backend call.
	SearchTimeout time.Duration
}

type ProviderService struct {
	store    ProviderStore
	searcher PlacesSearcher
	cache    *SearchCache
	metrics  *metrics.Recorder
	logr     *zap.Logger
	opts     ProviderServiceOptions

	flight singleflight.Group
}

func NewProviderService(store ProviderStore, searcher PlacesSearcher, cache *SearchCache, rec *metrics.Recorder, logr *zap.Logger, opts ProviderServiceOptions) *ProviderService {
	if opts.RegionSuffix == "" {
		opts.RegionSuffix = defaultRegionSuffix
	}
	return &ProviderService{
		store:    store,
		searcher: searcher,
		cache:    cache,
		metrics:  rec,
		logr:     logr,
		opts:     opts,
	}
}

// resolvedSearch is a validated SearchRequest with defaults applied and
// exactly one positioning strategy chosen.
type resolvedSearch struct {
	serviceType models.ServiceType
	radius      float64
	center      *models.GeoCircle
	city        string
	near        string
}

func resolveSearch(req SearchRequest, regionSuffix string) (resolvedSearch, error) {
	if err := validateStruct(req); err != nil {
		return resolvedSearch{}, err
	}

	r := resolvedSearch{
		serviceType: models.ServiceMechanics,
		radius:      defaultSearchRadius,
		city:        strings.TrimSpace(req.City),
	}
	if req.ServiceType != "" {
		r.serviceType = models.ServiceType(req.ServiceType)
	}
	if req.Radius != nil {
		r.radius = *req.Radius
	}

	verr := &ValidationError{}
	switch {
	case req.Lat != nil && req.Lng == nil:
		verr.add("lng", "is required when lat is set")
	case req.Lng != nil && req.Lat == nil:
		verr.add("lat", "is required when lng is set")
	case req.Lat != nil && req.Lng != nil:
		r.center = &models.GeoCircle{Lat: *req.Lat, Lng: *req.Lng, RadiusMiles: r.radius}
	case r.city == "":
		verr.add("location", "provide lat and lng, or city")
	default:
		r.near = r.city + regionSuffix
	}
	if err := verr.orNil(); err != nil {
		return resolvedSearch{}, err
	}
	return r, nil
}

// key identifies equivalent searches for caching and request collapsing.
func (r resolvedSearch) key() string {
	if r.center != nil {
		return fmt.Sprintf("%s:%.3f,%.3f:%g", r.serviceType, r.center.Lat, r.center.Lng, r.radius)
	}
	return fmt.Sprintf("%s:city:%s:%g", r.serviceType, strings.ToLower(r.city), r.radius)
}

func (r resolvedSearch) placesRequest() places.SearchRequest {
	req := places.SearchRequest{
		Near:        r.near,
		City:        r.city,
		RadiusMiles: r.radius,
		ServiceType: r.serviceType,
	}
	if r.center != nil {
		req.Center = &places.LatLng{Latitude: r.center.Lat, Longitude: r.center.Lng}
	}
	return req
}

// rank annotates distance and drops anything outside the radius, nearest
// first. City searches have no reference point and keep store order.
// Always returns a fresh slice so shared flight results are never mutated.
func rank(providers []models.Provider, center *models.GeoCircle) []models.Provider {
	out := make([]models.Provider, 0, len(providers))
	if center == nil {
		return append(out, providers...)
	}

	for _, p := range providers {
		d := utils.HaversineMiles(center.Lat, center.Lng, p.Lat, p.Lng)
		if d > center.RadiusMiles {
			continue
		}
		p.Distance = &d
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].Distance < *out[j].Distance
	})
	return out
}

// FindProviders resolves the query, refreshes the store from the places
// backend unless a fresh result is cached, and returns ranked providers.
func (s *ProviderService) FindProviders(ctx context.Context, req SearchRequest) ([]models.Provider, error) {
	search, err := resolveSearch(req, s.opts.RegionSuffix)
	if err != nil {
		return nil, err
	}

	// The shared search outlives any one caller; each caller stops
	// waiting when its own context ends.
	key := search.key()
	ch := s.flight.DoChan(key, func() (interface{}, error) {
		fctx, cancel := s.flightContext(ctx)
		defer cancel()
		return s.discover(fctx, search, key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.logr.Debug("provider search shared in-flight result", zap.String("key", key))
		}
		return rank(res.Val.([]models.Provider), search.center), nil
	}
}

// flightContext detaches a shared search from the caller that started it
// while keeping its values, and bounds the whole flight.
func (s *ProviderService) flightContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if s.opts.SearchTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.SearchTimeout+persistTimeout)
}

func (s *ProviderService) discover(ctx context.Context, search resolvedSearch, key string) ([]models.Provider, error) {
	if cached, ok := s.fromCache(ctx, key); ok {
		s.metrics.Search(string(search.serviceType), "cache")
		return cached, nil
	}

	searchCtx := ctx
	if s.opts.SearchTimeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, s.opts.SearchTimeout)
		defer cancel()
	}

	candidates, err := s.searcher.Search(searchCtx, search.placesRequest())
	if err != nil {
		return nil, s.searchError(err)
	}

	records := make([]*models.Provider, len(candidates))
	for i := range candidates {
		records[i] = &candidates[i]
	}

	stored, err := s.store.UpsertBatch(ctx, records)
	if err != nil {
		s.logr.Error("failed to upsert discovered providers",
			zap.String("key", key),
			zap.Int("candidates", len(records)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	providers := make([]models.Provider, len(stored))
	ids := make([]string, len(stored))
	for i, p := range stored {
		providers[i] = *p
		ids[i] = p.PlaceID
	}

	if err := s.cache.Put(ctx, key, ids); err != nil {
		s.logr.Warn("failed to cache provider search", zap.String("key", key), zap.Error(err))
	}

	s.metrics.Search(string(search.serviceType), "live")
	return providers, nil
}

// fromCache serves a search from the store when its place ids are still
// fresh and every one of them is still stored.
func (s *ProviderService) fromCache(ctx context.Context, key string) ([]models.Provider, bool) {
	ids, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logr.Warn("search cache unavailable", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if len(ids) == 0 {
		return []models.Provider{}, true
	}

	providers, err := s.store.FindAll(ctx, models.ProviderQueryParams{PlaceIDs: ids})
	if err != nil {
		s.logr.Warn("failed to load cached providers", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if len(providers) < len(ids) {
		return nil, false
	}
	return providers, true
}

func (s *ProviderService) searchError(err error) error {
	switch {
	case errors.Is(err, places.ErrMissingAPIKey):
		s.logr.Error("places search is not configured")
		return fmt.Errorf("%w: %v", ErrMisconfigured, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
}

// ListNearby returns stored providers within radius of a point, nearest
// first, without touching the places backend.
func (s *ProviderService) ListNearby(ctx context.Context, req NearbyRequest) ([]models.Provider, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	radius := defaultSearchRadius
	if req.Radius != nil {
		radius = *req.Radius
	}
	limit := req.Limit
	if limit == 0 {
		limit = defaultNearbyLimit
	}

	center := &models.GeoCircle{Lat: *req.Lat, Lng: *req.Lng, RadiusMiles: radius}
	params := models.ProviderQueryParams{
		ServiceType: models.ServiceType(req.ServiceType),
		Near:        center,
		Limit:       limit,
	}
	for _, p := range req.Pricing {
		params.Pricing = append(params.Pricing, models.Pricing(p))
	}

	providers, err := s.store.FindAll(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.metrics.Search(req.ServiceType, "store")
	return rank(providers, center), nil
}

func (s *ProviderService) GetProvider(ctx context.Context, placeID string) (*models.Provider, error) {
	p, err := s.store.FindByPlaceID(ctx, placeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return p, nil
}
