package models

// ProviderFeature represents a provider in GeoJSON format
type ProviderFeature struct {
	ID         int64                  `json:"id"`
	Type       string                 `json:"type"`
	Geometry   GeoPoint               `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// ProviderFeatureCollection is the GeoJSON response for map views
type ProviderFeatureCollection struct {
	Type     string            `json:"type"` // "FeatureCollection"
	Features []ProviderFeature `json:"features"`
	Count    int               `json:"count"`
}

// NewProviderFeatureCollection converts providers to a FeatureCollection.
func NewProviderFeatureCollection(providers []Provider) *ProviderFeatureCollection {
	features := make([]ProviderFeature, 0, len(providers))
	for i := range providers {
		p := &providers[i]
		properties := map[string]interface{}{
			"placeId":          p.PlaceID,
			"name":             p.Name,
			"address":          p.Address,
			"city":             p.City,
			"serviceType":      p.ServiceType,
			"type":             p.Type,
			"pricing":          p.Pricing,
			"rating":           p.Rating,
			"reviewCount":      p.ReviewCount,
			"verified":         p.Verified,
			"subscriptionTier": p.SubscriptionTier,
			"capabilities":     p.Capabilities(),
		}
		if p.Distance != nil {
			properties["distance"] = *p.Distance
		}

		features = append(features, ProviderFeature{
			ID:         p.ID,
			Type:       "Feature",
			Geometry:   NewGeoPoint(p.Lat, p.Lng),
			Properties: properties,
		})
	}

	return &ProviderFeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
		Count:    len(features),
	}
}
