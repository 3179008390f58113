package routes

import (
	"net/http"
	"time"

	"upkeep-bknd/internal/auth"
	"upkeep-bknd/internal/billing"
	"upkeep-bknd/internal/config"
	"upkeep-bknd/internal/handlers"
	"upkeep-bknd/internal/logger"
	"upkeep-bknd/internal/metrics"
	mdlwr "upkeep-bknd/internal/middleware"
	"upkeep-bknd/internal/models"
	"upkeep-bknd/internal/places"
	"upkeep-bknd/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Handlers is everything the router mounts.
type Handlers struct {
	Providers     *handlers.ProviderHandler
	Billing       *handlers.BillingHandler
	Auth          *handlers.AuthHandler
	AuthMW        *mdlwr.AuthMiddleware
	SearchLimiter *mdlwr.RateLimiter
	Metrics       http.Handler
}

// NewRouter builds the services on db and rdb and mounts them. rdb may be
// nil, which disables the search cache and rate limiting.
func NewRouter(db *bun.DB, rdb *redis.Client, cfg *config.Config, logr *logger.Logger) (http.Handler, error) {
	jwtMgr, err := auth.NewJWTVerifier(cfg.JWTPublicKeyPath, cfg.JWTIssuer)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(reg)

	identitySvc := services.NewIdentityService(db)
	store := services.NewProviderStore(db, rec, logr.Logger)
	placesClient := places.NewClient(cfg.GooglePlacesAPIKey, cfg.PlacesBaseURL, cfg.SearchTimeout, rec, logr.Logger)
	providerSvc := services.NewProviderService(store, placesClient, services.NewSearchCache(rdb, cfg.SearchFreshness), rec, logr.Logger,
		services.ProviderServiceOptions{
			RegionSuffix:  cfg.SearchRegionSuffix,
			SearchTimeout: cfg.SearchTimeout,
		})

	stripeClient := billing.NewStripeClient(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.StripeAPIBaseURL, logr.Logger)
	claimSvc := services.NewClaimService(store, stripeClient, identitySvc, services.TierPrices{
		models.TierVerified: cfg.StripePriceVerified,
		models.TierContact:  cfg.StripePriceContact,
		models.TierPromoted: cfg.StripePricePromoted,
	}, rec, logr.Logger)

	if cfg.GooglePlacesAPIKey == "" {
		logr.Warn("GOOGLE_PLACES_API_KEY not set, provider search will fail")
	}
	if !stripeClient.Configured() {
		logr.Warn("STRIPE_SECRET_KEY not set, subscriptions are disabled")
	}

	return Mount(cfg, logr.Logger, Handlers{
		Providers:     handlers.NewProviderHandler(providerSvc, claimSvc, logr.Logger),
		Billing:       handlers.NewBillingHandler(stripeClient, claimSvc, logr.Logger),
		Auth:          handlers.NewAuthHandler(identitySvc, logr.Logger),
		AuthMW:        mdlwr.NewAuthMiddleware(jwtMgr, identitySvc, logr.Logger),
		SearchLimiter: mdlwr.NewRateLimiter(rdb, "provider-search", cfg.SearchRateLimitPerMinute, time.Minute, logr.Logger),
		Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}), nil
}

func Mount(cfg *config.Config, logr *zap.Logger, h Handlers) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte("ok"))
		if err != nil {
			return
		}
	})
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {

		r.Route("/auth", func(r chi.Router) {
			r.Use(h.AuthMW.JWTAuth)
			r.Get("/me", h.Auth.Me)
		})

		r.Route("/providers", func(r chi.Router) {
			// Signed by Stripe, not by a user.
			r.Post("/billing/webhook", h.Billing.Webhook)

			r.Group(func(r chi.Router) {
				if cfg.SearchRequiresAuth {
					r.Use(h.AuthMW.JWTAuth)
				} else {
					// Anonymous callers are limited per client IP, taken
					// from the proxy headers when present.
					logr.Warn("provider search is open to unauthenticated callers")
					r.Use(middleware.RealIP)
				}
				r.Use(h.SearchLimiter.Limit)
				r.Get("/", h.Providers.FindProviders)
				r.Get("/nearby", h.Providers.ListNearby)
				r.Get("/{placeId}", h.Providers.GetProvider)
			})

			r.Group(func(r chi.Router) {
				r.Use(h.AuthMW.JWTAuth)
				r.Post("/claim", h.Providers.Claim)
				r.Post("/subscribe", h.Providers.Subscribe)
			})
		})

	})

	return r
}
