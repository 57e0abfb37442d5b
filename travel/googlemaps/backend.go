// Package googlemaps is a travel backend on the Google Maps Geocoding and
// Directions APIs, using public transit.
package googlemaps

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/DominikKuenkele/sgs-housing-bot/travel"
	"golang.org/x/time/rate"
	"googlemaps.github.io/maps"
)

type Config struct {
	APIKey   string
	Region   string
	Language string
	// RatePerSecond caps outgoing requests; <= 0 disables the limit.
	RatePerSecond float64
	HTTPClient    *http.Client
	// BaseURL overrides the API host, for tests.
	BaseURL string
}

type Backend struct {
	client   *maps.Client
	limiter  *rate.Limiter
	region   string
	language string
}

func New(cfg Config) (*Backend, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("googlemaps: missing api key")
	}
	opts := []maps.ClientOption{maps.WithAPIKey(cfg.APIKey)}
	if cfg.HTTPClient != nil {
		opts = append(opts, maps.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, maps.WithBaseURL(cfg.BaseURL))
	}
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return &Backend{client: client, limiter: limiter, region: cfg.Region, language: cfg.Language}, nil
}

func (b *Backend) Locate(ctx context.Context, name string) (travel.Place, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return travel.Place{}, err
	}
	results, err := b.client.Geocode(ctx, &maps.GeocodingRequest{
		Address:  name,
		Region:   b.region,
		Language: b.language,
	})
	if err != nil {
		if notFound(err) {
			return travel.Place{}, fmt.Errorf("%q: %w", name, travel.ErrLocationNotFound)
		}
		return travel.Place{}, classify("geocode", err)
	}
	if len(results) == 0 {
		return travel.Place{}, fmt.Errorf("%q: %w", name, travel.ErrLocationNotFound)
	}
	r := results[0]
	return travel.Place{
		Name: r.FormattedAddress,
		ID:   r.PlaceID,
		Lat:  r.Geometry.Location.Lat,
		Lon:  r.Geometry.Location.Lng,
	}, nil
}

func (b *Backend) Journey(ctx context.Context, origin, destination travel.Place, departAt time.Time) (time.Duration, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	routes, _, err := b.client.Directions(ctx, &maps.DirectionsRequest{
		Origin:        latLng(origin),
		Destination:   latLng(destination),
		Mode:          maps.TravelModeTransit,
		DepartureTime: strconv.FormatInt(departAt.Unix(), 10),
		Region:        b.region,
		Language:      b.language,
	})
	if err != nil {
		if notFound(err) {
			return 0, fmt.Errorf("%q -> %q: %w", origin.Name, destination.Name, travel.ErrJourneyNotFound)
		}
		return 0, classify("directions", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, fmt.Errorf("%q -> %q: %w", origin.Name, destination.Name, travel.ErrJourneyNotFound)
	}
	var total time.Duration
	for _, leg := range routes[0].Legs {
		total += leg.Duration
	}
	return total, nil
}

func latLng(p travel.Place) string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lon, 'f', -1, 64)
}

// notFound matches the API statuses for an empty answer. The client library
// surfaces them as plain errors carrying the status string.
func notFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "ZERO_RESULTS") || strings.Contains(msg, "NOT_FOUND")
}

// classify marks request and key errors as permanent; quota and server
// errors stay retryable. A denied request means the key is unusable.
func classify(op string, err error) error {
	msg := err.Error()
	wrapped := fmt.Errorf("maps %s: %w", op, err)
	switch {
	case strings.Contains(msg, "REQUEST_DENIED"):
		return travel.Permanent(fmt.Errorf("%w: %w", travel.ErrAuth, wrapped))
	case strings.Contains(msg, "INVALID_REQUEST"):
		return travel.Permanent(wrapped)
	default:
		return wrapped
	}
}

var _ travel.Backend = (*Backend)(nil)
