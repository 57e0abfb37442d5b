package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/DominikKuenkele/sgs-housing-bot/pipeline"
	"github.com/DominikKuenkele/sgs-housing-bot/secrets"
	"github.com/DominikKuenkele/sgs-housing-bot/travel"
	"github.com/DominikKuenkele/sgs-housing-bot/travel/googlemaps"
	"github.com/DominikKuenkele/sgs-housing-bot/travel/vasttrafik"
	"github.com/spf13/viper"
)

func travelLocationFromViper(log *slog.Logger) *time.Location {
	name := strings.TrimSpace(viper.GetString("travel.timezone"))
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warn("travel_timezone_fallback", "timezone", name, "error", err.Error())
		return time.Local
	}
	return loc
}

// resolverFromViper returns a nil Resolver for travel.provider=none. All
// credentials are resolved here, before the run touches the database.
func resolverFromViper(ctx context.Context, log *slog.Logger, sec secrets.Resolver) (pipeline.Resolver, error) {
	httpClient := &http.Client{Timeout: viper.GetDuration("travel.timeout")}
	rps := viper.GetFloat64("travel.rate_per_second")

	var backend travel.Backend
	provider := strings.ToLower(strings.TrimSpace(viper.GetString("travel.provider")))
	switch provider {
	case "none", "off":
		return nil, nil
	case "", "vasttrafik":
		key, err := sec.Resolve(ctx, "VASTTRAFIK_API_KEY")
		if err != nil {
			return nil, err
		}
		tokens := &vasttrafik.TokenSource{
			TokenURL:   viper.GetString("travel.vasttrafik.token_url"),
			Key:        key,
			Scope:      viper.GetString("travel.vasttrafik.scope"),
			Path:       tokenPathFromViper(),
			HTTPClient: httpClient,
		}
		backend = vasttrafik.New(vasttrafik.Config{
			BaseURL:       viper.GetString("travel.vasttrafik.base_url"),
			Tokens:        tokens,
			RatePerSecond: rps,
			HTTPClient:    httpClient,
		})
	case "googlemaps", "google":
		key, err := sec.Resolve(ctx, "GOOGLE_MAPS_API_KEY")
		if err != nil {
			return nil, err
		}
		b, err := googlemaps.New(googlemaps.Config{
			APIKey:        key,
			Region:        viper.GetString("travel.googlemaps.region"),
			Language:      viper.GetString("travel.googlemaps.language"),
			RatePerSecond: rps,
			HTTPClient:    httpClient,
		})
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		return nil, fmt.Errorf("unsupported travel.provider: %s", provider)
	}

	return travel.NewResolver(backend, travel.Options{
		Attempts:      viper.GetInt("travel.attempts"),
		Backoff:       viper.GetDuration("travel.backoff"),
		Timeout:       viper.GetDuration("travel.timeout"),
		Location:      travelLocationFromViper(log),
		ReferenceHour: viper.GetInt("travel.reference_hour"),
		Logger:        log,
	}), nil
}
