package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

var (
	// ErrNotConfigured means no secret key was provided; no call was made.
	ErrNotConfigured = errors.New("billing: stripe not configured")
	// ErrUnavailable wraps every Stripe API failure.
	ErrUnavailable = errors.New("billing: upstream unavailable")
	// ErrCustomerNotFound is returned when a stored customer id no longer exists.
	ErrCustomerNotFound = errors.New("billing: customer not found")

	ErrInvalidSignature = errors.New("billing: invalid webhook signature")
	ErrInvalidPayload   = errors.New("billing: invalid webhook payload")
	ErrEventIgnored     = errors.New("billing: event ignored")
)

type Customer struct {
	ID      string
	Email   string
	Deleted bool
}

type Subscription struct {
	ID         string
	CustomerID string
	Status     string
	// ClientSecret lets the frontend confirm the first payment.
	ClientSecret string
}

// Event is the part of a Stripe webhook event this service reconciles on.
type Event struct {
	ID             string
	Type           string
	SubscriptionID string
	Status         string
}

// StripeClient implements the billing collaborator on top of stripe-go.
type StripeClient struct {
	api           *client.API
	webhookSecret string
	logr          *zap.Logger
}

// NewStripeClient returns a client. An empty secretKey yields a client
// whose API calls fail with ErrNotConfigured. baseURL overrides the API
// host (stripe-mock, tests).
func NewStripeClient(secretKey, webhookSecret, baseURL string, logr *zap.Logger) *StripeClient {
	c := &StripeClient{
		webhookSecret: strings.TrimSpace(webhookSecret),
		logr:          logr,
	}
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		return c
	}

	var backends *stripe.Backends
	if baseURL != "" {
		backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(baseURL),
			HTTPClient:        &http.Client{Timeout: 15 * time.Second},
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
		})
		backends = &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	}
	c.api = client.New(secretKey, backends)
	return c
}

func (c *StripeClient) Configured() bool {
	return c != nil && c.api != nil
}

// CreateCustomer creates a customer with the payment method attached as
// the invoice default.
func (c *StripeClient) CreateCustomer(ctx context.Context, email, paymentMethodID string, metadata map[string]string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	params := &stripe.CustomerParams{
		Email:         stripe.String(email),
		PaymentMethod: stripe.String(paymentMethodID),
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	cust, err := c.api.Customers.New(params)
	if err != nil {
		return "", c.upstream("create customer", err)
	}
	return cust.ID, nil
}

func (c *StripeClient) RetrieveCustomer(ctx context.Context, customerID string) (*Customer, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	params := &stripe.CustomerParams{}
	params.Context = ctx
	cust, err := c.api.Customers.Get(customerID, params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.HTTPStatusCode == http.StatusNotFound {
			return nil, ErrCustomerNotFound
		}
		return nil, c.upstream("retrieve customer", err)
	}
	return &Customer{ID: cust.ID, Email: cust.Email, Deleted: cust.Deleted}, nil
}

// CreateSubscription starts a subscription in default_incomplete mode.
// The returned status is usually "incomplete" until the client confirms
// the first payment.
func (c *StripeClient) CreateSubscription(ctx context.Context, customerID, priceID string, metadata map[string]string) (*Subscription, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	params.Context = ctx
	params.AddExpand("latest_invoice.payment_intent")
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	sub, err := c.api.Subscriptions.New(params)
	if err != nil {
		return nil, c.upstream("create subscription", err)
	}

	out := &Subscription{
		ID:         sub.ID,
		CustomerID: customerID,
		Status:     string(sub.Status),
	}
	if sub.LatestInvoice != nil && sub.LatestInvoice.PaymentIntent != nil {
		out.ClientSecret = sub.LatestInvoice.PaymentIntent.ClientSecret
	}
	return out, nil
}

// ChangeSubscriptionPrice moves an existing subscription's item onto
// priceID. The difference is prorated onto the next invoice, so the
// subscription keeps its current status.
func (c *StripeClient) ChangeSubscriptionPrice(ctx context.Context, subscriptionID, priceID string, metadata map[string]string) (*Subscription, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	get := &stripe.SubscriptionParams{}
	get.Context = ctx
	current, err := c.api.Subscriptions.Get(subscriptionID, get)
	if err != nil {
		return nil, c.upstream("retrieve subscription", err)
	}
	if current.Items == nil || len(current.Items.Data) == 0 {
		return nil, c.upstream("retrieve subscription", fmt.Errorf("subscription %s has no items", subscriptionID))
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{ID: stripe.String(current.Items.Data[0].ID), Price: stripe.String(priceID)},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	sub, err := c.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, c.upstream("update subscription", err)
	}

	out := &Subscription{ID: sub.ID, Status: string(sub.Status)}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	return out, nil
}

// ParseEvent verifies the Stripe-Signature header and extracts the
// subscription state carried by the event.
func (c *StripeClient) ParseEvent(payload []byte, signature string) (*Event, error) {
	if c == nil || c.webhookSecret == "" {
		return nil, ErrNotConfigured
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, ErrInvalidSignature
	}
	if evt.Data == nil {
		return nil, ErrInvalidPayload
	}

	out := &Event{ID: evt.ID, Type: string(evt.Type)}
	switch out.Type {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
			return nil, ErrInvalidPayload
		}
		out.SubscriptionID = sub.ID
		out.Status = string(sub.Status)
	case "invoice.paid", "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(evt.Data.Raw, &inv); err != nil {
			return nil, ErrInvalidPayload
		}
		if inv.Subscription == nil || inv.Subscription.ID == "" {
			return nil, ErrEventIgnored
		}
		out.SubscriptionID = inv.Subscription.ID
		if out.Type == "invoice.paid" {
			out.Status = "active"
		} else {
			out.Status = "past_due"
		}
	default:
		return nil, ErrEventIgnored
	}

	if out.SubscriptionID == "" {
		return nil, ErrInvalidPayload
	}
	return out, nil
}

func (c *StripeClient) upstream(op string, err error) error {
	fields := []zap.Field{zap.String("op", op)}
	var serr *stripe.Error
	if errors.As(err, &serr) {
		fields = append(fields,
			zap.Int("status", serr.HTTPStatusCode),
			zap.String("code", string(serr.Code)),
			zap.String("request_id", serr.RequestID),
		)
	} else {
		fields = append(fields, zap.Error(err))
	}
	c.logr.Error("stripe request failed", fields...)
	return fmt.Errorf("%w: %s", ErrUnavailable, op)
}
