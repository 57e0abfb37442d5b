// Package vasttrafik is a travel backend for the Västtrafik Planera Resa v4
// API.
package vasttrafik

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/DominikKuenkele/sgs-housing-bot/travel"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://ext-api.vasttrafik.se/pr/v4"

type Tokens interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

type Config struct {
	BaseURL string
	Tokens  Tokens
	// RatePerSecond caps outgoing API requests; <= 0 disables the limit.
	RatePerSecond float64
	HTTPClient    *http.Client
}

type Client struct {
	baseURL string
	tokens  Tokens
	limiter *rate.Limiter
	http    *http.Client
}

func New(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Client{baseURL: base, tokens: cfg.Tokens, limiter: limiter, http: client}
}

type locationsResponse struct {
	Results []struct {
		Gid          string  `json:"gid"`
		Name         string  `json:"name"`
		LocationType string  `json:"locationType"`
		Latitude     float64 `json:"latitude"`
		Longitude    float64 `json:"longitude"`
	} `json:"results"`
}

func (c *Client) Locate(ctx context.Context, name string) (travel.Place, error) {
	q := url.Values{}
	q.Set("q", name)
	q.Set("limit", "1")

	var resp locationsResponse
	if err := c.get(ctx, "/locations/by-text", q, &resp); err != nil {
		return travel.Place{}, err
	}
	if len(resp.Results) == 0 {
		return travel.Place{}, fmt.Errorf("%q: %w", name, travel.ErrLocationNotFound)
	}
	r := resp.Results[0]
	return travel.Place{Name: r.Name, ID: r.Gid, Lat: r.Latitude, Lon: r.Longitude}, nil
}

type endpoint struct {
	PlannedTime string `json:"plannedTime"`
}

type link struct {
	Origin      endpoint `json:"origin"`
	Destination endpoint `json:"destination"`
}

type journey struct {
	DepartureAccessLink *link  `json:"departureAccessLink"`
	ArrivalAccessLink   *link  `json:"arrivalAccessLink"`
	TripLegs            []link `json:"tripLegs"`
	DestinationLink     *struct {
		PlannedDepartureTime string `json:"plannedDepartureTime"`
		PlannedArrivalTime   string `json:"plannedArrivalTime"`
	} `json:"destinationLink"`
}

type journeysResponse struct {
	Results []journey `json:"results"`
}

func (c *Client) Journey(ctx context.Context, origin, destination travel.Place, departAt time.Time) (time.Duration, error) {
	q := url.Values{}
	q.Set("originName", origin.Name)
	q.Set("originLatitude", formatCoord(origin.Lat))
	q.Set("originLongitude", formatCoord(origin.Lon))
	q.Set("destinationName", destination.Name)
	q.Set("destinationLatitude", formatCoord(destination.Lat))
	q.Set("destinationLongitude", formatCoord(destination.Lon))
	q.Set("dateTime", departAt.Format(time.RFC3339))
	q.Set("dateTimeRelatesTo", "departure")
	q.Set("limit", "1")

	var resp journeysResponse
	if err := c.get(ctx, "/journeys", q, &resp); err != nil {
		return 0, err
	}
	if len(resp.Results) == 0 {
		return 0, fmt.Errorf("%q -> %q: %w", origin.Name, destination.Name, travel.ErrJourneyNotFound)
	}
	return resp.Results[0].duration()
}

// duration is the planned time from the first departure to the final
// arrival. Access links take precedence over trip legs, which take
// precedence over a walk-only destination link.
func (j journey) duration() (time.Duration, error) {
	var startRaw, endRaw string
	switch {
	case j.DepartureAccessLink != nil:
		startRaw = j.DepartureAccessLink.Origin.PlannedTime
	case len(j.TripLegs) > 0:
		startRaw = j.TripLegs[0].Origin.PlannedTime
	case j.DestinationLink != nil:
		startRaw = j.DestinationLink.PlannedDepartureTime
	}
	switch {
	case j.ArrivalAccessLink != nil:
		endRaw = j.ArrivalAccessLink.Destination.PlannedTime
	case len(j.TripLegs) > 0:
		endRaw = j.TripLegs[len(j.TripLegs)-1].Destination.PlannedTime
	case j.DestinationLink != nil:
		endRaw = j.DestinationLink.PlannedArrivalTime
	}
	if startRaw == "" || endRaw == "" {
		return 0, travel.Permanent(fmt.Errorf("vasttrafik: journey without planned times"))
	}
	start, err := time.Parse(time.RFC3339, startRaw)
	if err != nil {
		return 0, travel.Permanent(fmt.Errorf("vasttrafik: departure time: %w", err))
	}
	end, err := time.Parse(time.RFC3339, endRaw)
	if err != nil {
		return 0, travel.Permanent(fmt.Errorf("vasttrafik: arrival time: %w", err))
	}
	if end.Before(start) {
		return 0, travel.Permanent(fmt.Errorf("vasttrafik: arrival %s before departure %s", endRaw, startRaw))
	}
	return end.Sub(start), nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if c.tokens == nil {
		return travel.Permanent(fmt.Errorf("vasttrafik: no token source"))
	}
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", travel.ErrAuth, err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return travel.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("vasttrafik %s: %w", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("vasttrafik %s: %w", path, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate()
	}
	if err := statusError(path, resp.StatusCode); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("vasttrafik %s: decode: %w", path, err)
	}
	return nil
}

// statusError classifies non-2xx responses. Throttling, server errors and
// expired tokens are worth another attempt; other client errors are not.
func statusError(op string, status int) error {
	if status >= 200 && status < 300 {
		return nil
	}
	err := fmt.Errorf("vasttrafik %s: status %d", op, status)
	switch {
	case status == http.StatusUnauthorized, status == http.StatusTooManyRequests, status >= 500:
		return err
	default:
		return travel.Permanent(err)
	}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var _ travel.Backend = (*Client)(nil)
