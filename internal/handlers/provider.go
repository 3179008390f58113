package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"upkeep-bknd/internal/middleware"
	"upkeep-bknd/internal/models"
	"upkeep-bknd/internal/services"
	"upkeep-bknd/internal/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ProviderQueries interface {
	FindProviders(ctx context.Context, req services.SearchRequest) ([]models.Provider, error)
	ListNearby(ctx context.Context, req services.NearbyRequest) ([]models.Provider, error)
	GetProvider(ctx context.Context, placeID string) (*models.Provider, error)
}

type ProviderClaims interface {
	Claim(ctx context.Context, userID string, req services.ClaimRequest) (*services.ClaimResult, error)
	Subscribe(ctx context.Context, userID string, req services.SubscribeRequest) (*models.Provider, error)
}

type ProviderHandler struct {
	queries ProviderQueries
	claims  ProviderClaims
	logr    *zap.Logger
}

func NewProviderHandler(queries ProviderQueries, claims ProviderClaims, logr *zap.Logger) *ProviderHandler {
	return &ProviderHandler{queries: queries, claims: claims, logr: logr}
}

// FindProviders refreshes from the places backend and returns matching
// providers.
// GET /providers?city=|lat=&lng=&serviceType=&radius=
func (h *ProviderHandler) FindProviders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fields := map[string]string{}

	req := services.SearchRequest{
		City:        q.Get("city"),
		ServiceType: q.Get("serviceType"),
		Lat:         floatParam(r, "lat", fields),
		Lng:         floatParam(r, "lng", fields),
		Radius:      floatParam(r, "radius", fields),
	}
	if len(fields) > 0 {
		writeFieldErrors(w, fields)
		return
	}

	providers, err := h.queries.FindProviders(r.Context(), req)
	if err != nil {
		writeError(w, h.logr.With(zap.String("service_type", req.ServiceType)), "provider search", err)
		return
	}

	writeJSON(w, http.StatusOK, providers)
}

// ListNearby reads stored providers only.
// GET /providers/nearby?lat=&lng=&radius=&serviceType=&pricing=budget,premium&limit=&format=geojson
func (h *ProviderHandler) ListNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fields := map[string]string{}

	req := services.NearbyRequest{
		ServiceType: q.Get("serviceType"),
		Lat:         floatParam(r, "lat", fields),
		Lng:         floatParam(r, "lng", fields),
		Radius:      floatParam(r, "radius", fields),
		Pricing:     utils.ParseQueryList(q, "pricing"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			fields["limit"] = "must be an integer"
		}
		req.Limit = limit
	}
	if len(fields) > 0 {
		writeFieldErrors(w, fields)
		return
	}

	providers, err := h.queries.ListNearby(r.Context(), req)
	if err != nil {
		writeError(w, h.logr, "nearby providers", err)
		return
	}

	if strings.EqualFold(q.Get("format"), "geojson") {
		writeJSON(w, http.StatusOK, models.NewProviderFeatureCollection(providers))
		return
	}
	writeJSON(w, http.StatusOK, providers)
}

// GET /providers/{placeId}
func (h *ProviderHandler) GetProvider(w http.ResponseWriter, r *http.Request) {
	placeID := chi.URLParam(r, "placeId")

	p, err := h.queries.GetProvider(r.Context(), placeID)
	if err != nil {
		writeError(w, h.logr.With(zap.String("place_id", placeID)), "get provider", err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// POST /providers/claim
func (h *ProviderHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req services.ClaimRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.claims.Claim(r.Context(), middleware.UserIDFromContext(r.Context()), req)
	if err != nil {
		writeError(w, h.logr.With(zap.String("place_id", req.PlaceID)), "claim provider", err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// POST /providers/subscribe
func (h *ProviderHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req services.SubscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.claims.Subscribe(r.Context(), middleware.UserIDFromContext(r.Context()), req)
	if err != nil {
		writeError(w, h.logr.With(zap.String("place_id", req.PlaceID), zap.String("tier", req.Tier)), "subscribe provider", err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}
