package models

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

type ServiceType string

const (
	ServiceMechanics ServiceType = "mechanics"
	ServiceWelders   ServiceType = "welders"
	ServiceEngineers ServiceType = "engineers"
	ServiceOther     ServiceType = "other"
)

func (s ServiceType) Valid() bool {
	switch s {
	case ServiceMechanics, ServiceWelders, ServiceEngineers, ServiceOther:
		return true
	}
	return false
}

type ProviderType string

const (
	ProviderIndependent ProviderType = "independent"
	ProviderSpecialized ProviderType = "specialized"
)

type Pricing string

const (
	PricingBudget   Pricing = "budget"
	PricingMidRange Pricing = "mid-range"
	PricingPremium  Pricing = "premium"
)

func (p Pricing) Valid() bool {
	return p == PricingBudget || p == PricingMidRange || p == PricingPremium
}

const (
	DefaultRadiusMiles  = 50.0
	DefaultAvailability = "business hours"
)

// GeoPoint is a GeoJSON point. Coordinates are [longitude, latitude].
type GeoPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

func NewGeoPoint(lat, lng float64) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: [2]float64{lng, lat}}
}

func (g GeoPoint) Lat() float64 { return g.Coordinates[1] }
func (g GeoPoint) Lng() float64 { return g.Coordinates[0] }

type Location struct {
	City        string   `json:"city"`
	Coordinates GeoPoint `json:"coordinates"`
}

// Provider is a service business discovered through places search.
// Lat/Lng are the stored columns; the geography column used for spatial
// queries is generated from them by the database, so the two can't drift.
type Provider struct {
	bun.BaseModel `bun:"table:providers,alias:p"`

	ID          int64        `bun:"id,pk,autoincrement" json:"id"`
	PlaceID     string       `bun:"place_id,notnull,unique" json:"placeId"`
	Name        string       `bun:"name,notnull" json:"name"`
	Description string       `bun:"description,notnull" json:"description"`
	Address     string       `bun:"address,notnull" json:"address"`
	ServiceType ServiceType  `bun:"service_type,notnull" json:"serviceType"`
	Services    []string     `bun:"services,array" json:"services"`
	City        string       `bun:"city,notnull" json:"-"`
	Lat         float64      `bun:"lat,notnull" json:"lat"`
	Lng         float64      `bun:"lng,notnull" json:"lng"`
	Radius      float64      `bun:"radius,notnull" json:"radius"`
	Type        ProviderType `bun:"type,notnull" json:"type"`
	Pricing     Pricing      `bun:"pricing,notnull" json:"pricing"`
	Rating      float64      `bun:"rating,notnull" json:"rating"`
	ReviewCount int          `bun:"review_count,notnull" json:"reviewCount"`

	Availability    string   `bun:"availability,notnull" json:"availability"`
	Specializations []string `bun:"specializations,array" json:"specializations"`
	Certifications  []string `bun:"certifications,array" json:"certifications"`
	Website         *string  `bun:"website" json:"website,omitempty"`

	// Claim
	Verified    bool       `bun:"verified,notnull" json:"verified"`
	LicenseHash string     `bun:"license_hash,notnull" json:"-"`
	ClaimedBy   *string    `bun:"claimed_by" json:"-"`
	ClaimedAt   *time.Time `bun:"claimed_at" json:"claimedAt,omitempty"`

	// Billing
	SubscriptionTier     SubscriptionTier  `bun:"subscription_tier,notnull" json:"subscriptionTier"`
	PendingTier          *SubscriptionTier `bun:"pending_tier" json:"pendingTier,omitempty"`
	SubscriptionStatus   *string           `bun:"subscription_status" json:"subscriptionStatus,omitempty"`
	StripeCustomerID     *string           `bun:"stripe_customer_id" json:"stripeCustomerId,omitempty"`
	StripeSubscriptionID *string           `bun:"stripe_subscription_id" json:"stripeSubscriptionId,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updatedAt"`

	// Distance in miles from the query point, only set on search results.
	Distance *float64 `bun:"-" json:"distance,omitempty"`
	// PaymentClientSecret is returned once by subscribe so the client can
	// confirm the first payment. Never stored.
	PaymentClientSecret string `bun:"-" json:"paymentClientSecret,omitempty"`
}

func (p *Provider) Location() Location {
	return Location{City: p.City, Coordinates: NewGeoPoint(p.Lat, p.Lng)}
}

// SetLocation keeps the lat/lng columns in step with the GeoJSON point.
func (p *Provider) SetLocation(loc Location) {
	p.City = loc.City
	p.Lat = loc.Coordinates.Lat()
	p.Lng = loc.Coordinates.Lng()
}

// Capabilities reports what the provider's current tier unlocks.
type Capabilities struct {
	VerifiedBadge  bool `json:"verifiedBadge"`
	ContactEnabled bool `json:"contactEnabled"`
	Featured       bool `json:"featured"`
}

func (p *Provider) Capabilities() Capabilities {
	return Capabilities{
		VerifiedBadge:  p.Verified || p.SubscriptionTier.AtLeast(TierVerified),
		ContactEnabled: p.SubscriptionTier.AtLeast(TierContact),
		Featured:       p.SubscriptionTier.AtLeast(TierPromoted),
	}
}

func (p Provider) MarshalJSON() ([]byte, error) {
	type provider Provider
	return json.Marshal(struct {
		provider
		Location     Location     `json:"location"`
		Capabilities Capabilities `json:"capabilities"`
	}{
		provider:     provider(p),
		Location:     p.Location(),
		Capabilities: p.Capabilities(),
	})
}

// GeoCircle is a center point plus radius in miles.
type GeoCircle struct {
	Lat         float64
	Lng         float64
	RadiusMiles float64
}

// ProviderQueryParams filters stored providers. Zero values are ignored.
type ProviderQueryParams struct {
	ServiceType ServiceType
	City        string
	Pricing     []Pricing
	PlaceIDs    []string
	Near        *GeoCircle
	Limit       int
}
