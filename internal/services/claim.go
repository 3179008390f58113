package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"upkeep-bknd/internal/billing"
	"upkeep-bknd/internal/metrics"
	"upkeep-bknd/internal/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Billing is the subset of the payment provider the claim workflow uses.
type Billing interface {
	CreateCustomer(ctx context.Context, email, paymentMethodID string, metadata map[string]string) (string, error)
	RetrieveCustomer(ctx context.Context, customerID string) (*billing.Customer, error)
	CreateSubscription(ctx context.Context, customerID, priceID string, metadata map[string]string) (*billing.Subscription, error)
	ChangeSubscriptionPrice(ctx context.Context, subscriptionID, priceID string, metadata map[string]string) (*billing.Subscription, error)
}

// UserDirectory resolves the caller's account for the billing email.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

// TierPrices maps each paid tier to its billing price id.
type TierPrices map[models.SubscriptionTier]string

type ClaimRequest struct {
	PlaceID          string `json:"placeId" validate:"required,max=512"`
	BusinessLicense  string `json:"businessLicense" validate:"max=2048"`
	SubscriptionTier string `json:"subscriptionTier" validate:"omitempty,oneof=none verified contact promoted"`
}

type ClaimResult struct {
	Message  string           `json:"message"`
	Provider *models.Provider `json:"provider"`
}

type SubscribeRequest struct {
	PlaceID         string `json:"placeId" validate:"required,max=512"`
	Tier            string `json:"tier" validate:"required,oneof=verified contact promoted"`
	PaymentMethodID string `json:"paymentMethodId" validate:"required,max=255"`
}

type ClaimService struct {
	store   ProviderStore
	billing Billing
	users   UserDirectory
	prices  TierPrices
	metrics *metrics.Recorder
	logr    *zap.Logger
	now     func() time.Time
}

func NewClaimService(store ProviderStore, b Billing, users UserDirectory, prices TierPrices, rec *metrics.Recorder, logr *zap.Logger) *ClaimService {
	return &ClaimService{
		store:   store,
		billing: b,
		users:   users,
		prices:  prices,
		metrics: rec,
		logr:    logr,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Claim marks a provider verified for the calling user. The license itself
// is never stored, only its hash. A paid tier in the request is noted in
// the message but only Subscribe can grant it.
func (s *ClaimService) Claim(ctx context.Context, userID string, req ClaimRequest) (*ClaimResult, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	p, err := s.find(ctx, req.PlaceID)
	if err != nil {
		return nil, err
	}

	if p.Verified && p.ClaimedBy != nil && *p.ClaimedBy != userID {
		return nil, ErrAlreadyClaimed
	}

	license := strings.TrimSpace(req.BusinessLicense)
	if license == "" {
		return nil, ErrInvalidLicense
	}

	hash, err := hashLicense(license)
	if err != nil {
		return nil, fmt.Errorf("hash license: %w", err)
	}

	now := s.now()
	p.Verified = true
	p.LicenseHash = hash
	p.ClaimedAt = &now
	if userID != "" {
		p.ClaimedBy = &userID
	}

	if err := s.store.UpdateClaim(ctx, p); err != nil {
		return nil, s.storeError("claim", p.PlaceID, err)
	}

	s.logr.Info("provider claimed",
		zap.String("place_id", p.PlaceID),
		zap.String("user_id", userID))

	msg := "Provider claimed successfully"
	if tier := models.SubscriptionTier(req.SubscriptionTier); tier.Paid() && tier.Rank() > p.SubscriptionTier.Rank() {
		msg = fmt.Sprintf("Provider claimed successfully. Subscribe to activate the %s tier", tier)
	}
	return &ClaimResult{Message: msg, Provider: p}, nil
}

// hashLicense bcrypts a sha256 digest so licenses longer than bcrypt's
// 72 byte input limit still hash in full.
func hashLicense(license string) (string, error) {
	sum := sha256.Sum256([]byte(license))
	b, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(sum[:])), bcrypt.DefaultCost)
	return string(b), err
}

// VerifyLicense reports whether license matches a stored hash.
func VerifyLicense(hash, license string) bool {
	sum := sha256.Sum256([]byte(strings.TrimSpace(license)))
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(hex.EncodeToString(sum[:]))) == nil
}

// Subscribe moves a claimed provider onto a paid tier. A live
// subscription has its price changed in place; otherwise a new one is
// created, reusing any existing billing customer. The tier is granted
// immediately only when billing reports the subscription active;
// otherwise it waits in pendingTier for the webhook, and further changes
// are refused until it resolves.
func (s *ClaimService) Subscribe(ctx context.Context, userID string, req SubscribeRequest) (*models.Provider, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	tier := models.SubscriptionTier(req.Tier)
	priceID := s.prices[tier]
	if s.billing == nil || priceID == "" {
		s.logr.Error("billing is not configured for tier", zap.String("tier", string(tier)))
		return nil, fmt.Errorf("%w: no price for tier %s", ErrMisconfigured, tier)
	}

	p, err := s.find(ctx, req.PlaceID)
	if err != nil {
		return nil, err
	}
	if !p.Verified {
		return nil, newValidationError("placeId", "provider must be claimed before subscribing")
	}
	if p.ClaimedBy == nil || *p.ClaimedBy != userID {
		return nil, ErrNotClaimant
	}
	if p.PendingTier != nil {
		return nil, ErrSubscriptionPending
	}
	if tier.Rank() <= p.SubscriptionTier.Rank() {
		return nil, newValidationError("tier", fmt.Sprintf("must be above the current tier (%s)", p.SubscriptionTier))
	}

	metadata := map[string]string{
		"place_id":    p.PlaceID,
		"provider_id": strconv.FormatInt(p.ID, 10),
	}

	sub, err := s.startSubscription(ctx, p, userID, req.PaymentMethodID, priceID, tier, metadata)
	if err != nil {
		return nil, err
	}

	status := sub.Status
	p.StripeSubscriptionID = &sub.ID
	p.SubscriptionStatus = &status
	if status == models.SubscriptionActive || status == models.SubscriptionTrialing {
		p.SubscriptionTier = tier
		p.PendingTier = nil
	} else {
		p.PendingTier = &tier
	}

	if err := s.store.UpdateBilling(ctx, p); err != nil {
		return nil, s.storeError("subscribe", p.PlaceID, err)
	}

	s.metrics.Subscription(string(tier), status)
	s.logr.Info("provider subscription created",
		zap.String("place_id", p.PlaceID),
		zap.String("tier", string(tier)),
		zap.String("status", status),
		zap.String("subscription_id", sub.ID))

	p.PaymentClientSecret = sub.ClientSecret
	return p, nil
}

func (s *ClaimService) startSubscription(ctx context.Context, p *models.Provider, userID, paymentMethodID, priceID string, tier models.SubscriptionTier, metadata map[string]string) (*billing.Subscription, error) {
	if p.StripeSubscriptionID != nil && p.SubscriptionStatus != nil && models.SubscriptionLive(*p.SubscriptionStatus) {
		metadata["tier"] = string(tier)
		sub, err := s.billing.ChangeSubscriptionPrice(ctx, *p.StripeSubscriptionID, priceID, metadata)
		if err != nil {
			s.metrics.Subscription(string(tier), "error")
			return nil, s.billingError(err)
		}
		return sub, nil
	}

	customerID, err := s.customerFor(ctx, p, userID, paymentMethodID, metadata)
	if err != nil {
		return nil, err
	}

	metadata["tier"] = string(tier)
	sub, err := s.billing.CreateSubscription(ctx, customerID, priceID, metadata)
	if err != nil {
		s.metrics.Subscription(string(tier), "error")
		return nil, s.billingError(err)
	}
	return sub, nil
}

// customerFor returns the provider's billing customer, creating one when
// none is stored or the stored one was deleted. A new customer id is
// saved right away so a failed subscription never orphans it.
func (s *ClaimService) customerFor(ctx context.Context, p *models.Provider, userID, paymentMethodID string, metadata map[string]string) (string, error) {
	if p.StripeCustomerID != nil && *p.StripeCustomerID != "" {
		cust, err := s.billing.RetrieveCustomer(ctx, *p.StripeCustomerID)
		switch {
		case err == nil && !cust.Deleted:
			return cust.ID, nil
		case err == nil, errors.Is(err, billing.ErrCustomerNotFound):
			s.logr.Warn("stored billing customer is gone, creating a new one",
				zap.String("place_id", p.PlaceID),
				zap.String("customer_id", *p.StripeCustomerID))
		default:
			return "", s.billingError(err)
		}
	}

	customerID, err := s.billing.CreateCustomer(ctx, s.billingEmail(ctx, userID), paymentMethodID, metadata)
	if err != nil {
		return "", s.billingError(err)
	}

	p.StripeCustomerID = &customerID
	if err := s.store.UpdateBilling(ctx, p); err != nil {
		return "", s.storeError("save customer", p.PlaceID, err)
	}
	return customerID, nil
}

func (s *ClaimService) billingEmail(ctx context.Context, userID string) string {
	if s.users == nil || userID == "" {
		return ""
	}
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		s.logr.Warn("could not resolve billing email", zap.String("user_id", userID), zap.Error(err))
		return ""
	}
	return u.Email
}

// ReconcileSubscription applies a billing status change. Active or
// trialing promotes the pending tier. Terminal failures drop the pending
// tier but never downgrade a tier already granted.
func (s *ClaimService) ReconcileSubscription(ctx context.Context, subscriptionID, status string) (*models.Provider, error) {
	p, err := s.store.FindBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	p.SubscriptionStatus = &status
	switch status {
	case models.SubscriptionActive, models.SubscriptionTrialing:
		if p.PendingTier != nil {
			p.SubscriptionTier = *p.PendingTier
			p.PendingTier = nil
		}
	case models.SubscriptionIncompleteExpired, models.SubscriptionCanceled, models.SubscriptionUnpaid:
		p.PendingTier = nil
	}

	if err := s.store.UpdateBilling(ctx, p); err != nil {
		return nil, s.storeError("reconcile", p.PlaceID, err)
	}

	s.metrics.Subscription(string(p.SubscriptionTier), status)
	s.logr.Info("provider subscription reconciled",
		zap.String("place_id", p.PlaceID),
		zap.String("subscription_id", subscriptionID),
		zap.String("status", status),
		zap.String("tier", string(p.SubscriptionTier)))
	return p, nil
}

func (s *ClaimService) find(ctx context.Context, placeID string) (*models.Provider, error) {
	p, err := s.store.FindByPlaceID(ctx, placeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return p, nil
}

func (s *ClaimService) storeError(op, placeID string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	s.logr.Error("provider update failed", zap.String("op", op), zap.String("place_id", placeID), zap.Error(err))
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}

func (s *ClaimService) billingError(err error) error {
	if errors.Is(err, billing.ErrNotConfigured) {
		return fmt.Errorf("%w: %v", ErrMisconfigured, err)
	}
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}
