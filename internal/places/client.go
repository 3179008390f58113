package places

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"upkeep-bknd/internal/metrics"
	"upkeep-bknd/internal/models"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://places.googleapis.com"

	// MetersPerMile converts the request radius for the location bias.
	MetersPerMile = 1609.34
	// MaxRadiusMeters is the largest bias radius the backend accepts.
	MaxRadiusMeters = 50000.0
	// PageSize is the number of results requested per call. No pagination.
	PageSize = 10

	fieldMask = "places.id,places.displayName,places.formattedAddress,places.location," +
		"places.rating,places.userRatingCount,places.websiteUri,places.primaryType,places.types," +
		"places.priceLevel,places.regularOpeningHours,places.editorialSummary,places.addressComponents"
)

var (
	// ErrMissingAPIKey is returned before any network call when no key is configured.
	ErrMissingAPIKey = errors.New("places: api key not configured")
	// ErrBackendUnavailable hides every transport, status and decode failure.
	ErrBackendUnavailable = errors.New("places: search backend unavailable")
)

// SearchRequest describes one provider search. Either Center or Near
// positions the search; Center wins when both are set.
type SearchRequest struct {
	Center      *LatLng
	Near        string // free-text location, e.g. "Midland, TX"
	City        string // city label copied onto results lacking one
	RadiusMiles float64
	ServiceType models.ServiceType
}

// Client calls the Places Text Search API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Recorder
	logr       *zap.Logger
}

// NewClient creates a places client. timeout bounds every call on top of
// the caller's context.
func NewClient(apiKey, baseURL string, timeout time.Duration, rec *metrics.Recorder, logr *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		metrics:    rec,
		logr:       logr,
	}
}

// RadiusMeters converts miles to meters, capped at MaxRadiusMeters.
func RadiusMeters(miles float64) float64 {
	return math.Min(miles*MetersPerMile, MaxRadiusMeters)
}

// Search runs a text search for the request's service type and returns
// normalized provider records. Candidates that cannot be normalized are
// skipped.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]models.Provider, error) {
	query := QueryFor(req.ServiceType)

	var bias *LocationBias
	if req.Center != nil {
		bias = &LocationBias{Circle: Circle{
			Center: *req.Center,
			Radius: RadiusMeters(req.RadiusMiles),
		}}
	} else if near := strings.TrimSpace(req.Near); near != "" {
		query = fmt.Sprintf("%s in %s", query, near)
	}

	raw, err := c.SearchText(ctx, query, bias)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make([]models.Provider, 0, len(raw))
	for _, cand := range raw {
		p, ok := Normalize(cand, req, now)
		if !ok {
			c.logr.Debug("skipping incomplete place candidate", zap.String("place_id", cand.PlaceID()))
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// SearchText performs the raw API call. The backend's own error payloads
// are logged and replaced with ErrBackendUnavailable.
func (c *Client) SearchText(ctx context.Context, query string, bias *LocationBias) ([]RawCandidate, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	body, err := json.Marshal(searchTextRequest{
		TextQuery:      query,
		MaxResultCount: PageSize,
		LocationBias:   bias,
	})
	if err != nil {
		return nil, fmt.Errorf("encode places request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/places:searchText", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build places request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", c.apiKey)
	httpReq.Header.Set("X-Goog-FieldMask", fieldMask)

	start := time.Now()
	candidates, err := c.do(httpReq)
	c.metrics.PlacesRequest(time.Since(start), err)
	if err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
			return nil, ctxErr
		}
		c.logr.Error("places search failed", zap.String("query", query), zap.Error(err))
		return nil, ErrBackendUnavailable
	}

	c.logr.Debug("places search completed", zap.String("query", query), zap.Int("results", len(candidates)))
	return candidates, nil
}

func (c *Client) do(req *http.Request) ([]RawCandidate, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call places api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("places api status %d: %s", resp.StatusCode, string(b))
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode places response: %w", err)
	}
	// legacy envelope reports failures in-band
	if out.Status != "" && out.Status != "OK" && out.Status != "ZERO_RESULTS" {
		return nil, fmt.Errorf("places api status %q", out.Status)
	}

	candidates := out.candidates()
	if len(candidates) > PageSize {
		candidates = candidates[:PageSize]
	}
	return candidates, nil
}
