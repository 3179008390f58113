package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"upkeep-bknd/internal/billing"
	"upkeep-bknd/internal/models"
	"upkeep-bknd/internal/services"

	"go.uber.org/zap"
)

const maxWebhookBody = 64 << 10

type EventParser interface {
	ParseEvent(payload []byte, signature string) (*billing.Event, error)
}

type SubscriptionReconciler interface {
	ReconcileSubscription(ctx context.Context, subscriptionID, status string) (*models.Provider, error)
}

type BillingHandler struct {
	events     EventParser
	reconciler SubscriptionReconciler
	logr       *zap.Logger
}

func NewBillingHandler(events EventParser, reconciler SubscriptionReconciler, logr *zap.Logger) *BillingHandler {
	return &BillingHandler{events: events, reconciler: reconciler, logr: logr}
}

type webhookResp struct {
	Received bool   `json:"received"`
	Ignored  string `json:"ignored,omitempty"`
}

// Webhook applies subscription status changes pushed by Stripe. Events
// that don't concern a known subscription are acknowledged so Stripe stops
// retrying them; storage failures return 500 so it retries.
// POST /providers/billing/webhook
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid payload"})
		return
	}

	evt, err := h.events.ParseEvent(payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
	case errors.Is(err, billing.ErrEventIgnored):
		writeJSON(w, http.StatusOK, webhookResp{Received: true, Ignored: "event type"})
		return
	case errors.Is(err, billing.ErrNotConfigured):
		h.logr.Error("billing webhook received but no webhook secret is configured")
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: "service is not configured"})
		return
	case errors.Is(err, billing.ErrInvalidSignature):
		h.logr.Warn("billing webhook signature rejected")
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid signature"})
		return
	default:
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid payload"})
		return
	}

	logr := h.logr.With(
		zap.String("event_id", evt.ID),
		zap.String("event_type", evt.Type),
		zap.String("subscription_id", evt.SubscriptionID))

	_, err = h.reconciler.ReconcileSubscription(r.Context(), evt.SubscriptionID, evt.Status)
	if errors.Is(err, services.ErrNotFound) {
		logr.Info("billing event for unknown subscription")
		writeJSON(w, http.StatusOK, webhookResp{Received: true, Ignored: "unknown subscription"})
		return
	}
	if err != nil {
		writeError(w, logr, "reconcile subscription", err)
		return
	}

	writeJSON(w, http.StatusOK, webhookResp{Received: true})
}
