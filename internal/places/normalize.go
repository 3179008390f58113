package places

import (
	"strings"
	"time"

	"upkeep-bknd/internal/models"
)

// serviceQueries maps a service type to the text query sent to the
// places backend.
var serviceQueries = map[models.ServiceType]string{
	models.ServiceMechanics: "mechanics",
	models.ServiceWelders:   "welders",
	models.ServiceEngineers: "engineering services",
	models.ServiceOther:     "mechanics | welders | engineering services",
}

// QueryFor returns the search text for a service type, falling back to
// mechanics for unknown or empty values.
func QueryFor(st models.ServiceType) string {
	if q, ok := serviceQueries[st]; ok {
		return q
	}
	return serviceQueries[models.ServiceMechanics]
}

// vehicle repair shops are classified as independent providers
var vehicleRepairTypes = map[string]bool{
	"car_repair":       true,
	"auto_repair_shop": true,
	"truck_repair":     true,
}

// generic place types carry no service information
var genericTypes = map[string]bool{
	"point_of_interest": true,
	"establishment":     true,
	"store":             true,
}

var priceLevels = map[string]models.Pricing{
	"PRICE_LEVEL_FREE":           models.PricingBudget,
	"PRICE_LEVEL_INEXPENSIVE":    models.PricingBudget,
	"PRICE_LEVEL_MODERATE":       models.PricingMidRange,
	"PRICE_LEVEL_EXPENSIVE":      models.PricingPremium,
	"PRICE_LEVEL_VERY_EXPENSIVE": models.PricingPremium,
}

// Normalize maps a raw candidate onto the canonical provider record.
// It returns false when the candidate has no place id, no coordinates or
// no address, since none of those can be defaulted.
func Normalize(raw RawCandidate, req SearchRequest, now time.Time) (models.Provider, bool) {
	placeID := raw.PlaceID()
	lat, lng, hasCoords := raw.Coordinates()
	address := raw.Address()
	if placeID == "" || !hasCoords || address == "" {
		return models.Provider{}, false
	}

	serviceType := req.ServiceType
	if !serviceType.Valid() {
		serviceType = models.ServiceMechanics
	}

	radius := req.RadiusMiles
	if radius <= 0 {
		radius = models.DefaultRadiusMiles
	}

	rating := 0.0
	if raw.Rating != nil {
		rating = clamp(*raw.Rating, 0, 5)
	}

	reviews := raw.ReviewCount()
	if reviews < 0 {
		reviews = 0
	}

	p := models.Provider{
		PlaceID:          placeID,
		Name:             firstNonEmpty(raw.Name(), address),
		Address:          address,
		ServiceType:      serviceType,
		Services:         serviceLabels(raw, serviceType),
		Radius:           radius,
		Type:             classify(raw),
		Pricing:          pricing(raw),
		Rating:           rating,
		ReviewCount:      reviews,
		Availability:     availability(raw),
		Specializations:  []string{},
		Certifications:   []string{},
		SubscriptionTier: models.TierNone,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if raw.EditorialSummary != nil {
		p.Description = strings.TrimSpace(raw.EditorialSummary.Text)
	}
	if site := firstNonEmpty(raw.WebsiteURI, raw.Website); site != "" {
		p.Website = &site
	}

	p.SetLocation(models.Location{
		City:        firstNonEmpty(raw.City(), req.City),
		Coordinates: models.NewGeoPoint(lat, lng),
	})
	return p, true
}

func classify(raw RawCandidate) models.ProviderType {
	if vehicleRepairTypes[raw.PrimaryType] {
		return models.ProviderIndependent
	}
	for _, t := range raw.Types {
		if vehicleRepairTypes[t] {
			return models.ProviderIndependent
		}
	}
	return models.ProviderSpecialized
}

func pricing(raw RawCandidate) models.Pricing {
	if p, ok := priceLevels[raw.PriceLevel]; ok {
		return p
	}
	if raw.PriceLevelLegacy != nil {
		switch lvl := *raw.PriceLevelLegacy; {
		case lvl <= 1:
			return models.PricingBudget
		case lvl == 2:
			return models.PricingMidRange
		default:
			return models.PricingPremium
		}
	}
	return models.PricingMidRange
}

func availability(raw RawCandidate) string {
	if raw.RegularOpeningHours != nil && len(raw.RegularOpeningHours.WeekdayDescriptions) > 0 {
		return strings.Join(raw.RegularOpeningHours.WeekdayDescriptions, "; ")
	}
	return models.DefaultAvailability
}

// serviceLabels turns place types into readable labels, primary type
// first. Falls back to the searched service type.
func serviceLabels(raw RawCandidate, st models.ServiceType) []string {
	types := raw.Types
	if raw.PrimaryType != "" {
		types = append([]string{raw.PrimaryType}, types...)
	}

	seen := make(map[string]bool, len(types))
	labels := make([]string, 0, len(types))
	for _, t := range types {
		if t == "" || genericTypes[t] || seen[t] {
			continue
		}
		seen[t] = true
		labels = append(labels, strings.ReplaceAll(t, "_", " "))
	}
	if len(labels) == 0 {
		labels = append(labels, string(st))
	}
	return labels
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
