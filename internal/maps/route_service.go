// README: Road-distance lookups via the Google Maps Directions API.
package maps

import (
	"context"
	"errors"
	"fmt"

	"googlemaps.github.io/maps"
)

// ErrUpstreamUnavailable marks a failed or empty lookup. Callers on the
// execution path treat this as best-effort and carry on without the leg.
var ErrUpstreamUnavailable = errors.New("distance provider unavailable")

// Leg is one origin→destination road segment.
type Leg struct {
	Km      float64
	Minutes float64
}

// RouteService handles interactions with the Google Maps API.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a RouteService with the given API key.
func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// Distance returns the driving distance and duration between two locations.
// Origin and destination are either street addresses or "lat,lng" pairs.
func (s *RouteService) Distance(ctx context.Context, origin, destination string) (Leg, error) {
	r := &maps.DirectionsRequest{
		Origin:      origin,
		Destination: destination,
		Mode:        maps.TravelModeDriving,
		Language:    "he",
		Region:      "IL",
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return Leg{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return Leg{}, fmt.Errorf("%w: no route found", ErrUpstreamUnavailable)
	}

	leg := routes[0].Legs[0]
	return Leg{
		Km:      float64(leg.Distance.Meters) / 1000.0,
		Minutes: leg.Duration.Minutes(),
	}, nil
}
