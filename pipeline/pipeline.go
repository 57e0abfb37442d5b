// Package pipeline runs one crawl: ingest listings, match them against
// subscriptions, resolve missing travel times and notify subscribers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/DominikKuenkele/sgs-housing-bot/db/models"
	"github.com/DominikKuenkele/sgs-housing-bot/listing"
	"github.com/DominikKuenkele/sgs-housing-bot/match"
	"github.com/DominikKuenkele/sgs-housing-bot/notify"
	"github.com/DominikKuenkele/sgs-housing-bot/store"
	"github.com/DominikKuenkele/sgs-housing-bot/travel"
	"github.com/gammazero/workerpool"
)

type Store interface {
	UpsertApartments(ctx context.Context, apartments []models.Apartment) error
	FindCandidateMatches(ctx context.Context) ([]store.CandidateMatch, error)
	EnsureSubscribedApartments(ctx context.Context, links []store.Link) error
	UpsertDistance(ctx context.Context, apartmentID string, destinationID uint, minutes int) error
}

type Resolver interface {
	Resolve(ctx context.Context, origin, destination string) (travel.Lookup, error)
}

type Notifier interface {
	Dispatch(ctx context.Context, held []store.Link) (notify.Report, error)
}

type Pipeline struct {
	Source listing.Source
	Store  Store
	// Resolver may be nil; digests then carry no travel times.
	Resolver Resolver
	Notifier Notifier
	Workers  int
	Logger   *slog.Logger
}

type Result struct {
	Listings           int
	Candidates         int
	Links              int
	DistancesRequested int
	DistancesStored    int
	DistancesSkipped   int
	DistancesFailed    int
	// LinksHeld are links kept out of this run's digests because one of
	// their travel times is still unresolved.
	LinksHeld     int
	Notifications notify.Report
}

type resolved struct {
	req     match.DistanceRequest
	minutes int
}

type failedLookup struct {
	req match.DistanceRequest
	err error
}

// resolution is the outcome of the distance stage. held lists the links
// whose travel time may still resolve on a later run.
type resolution struct {
	found   []resolved
	skipped int
	failed  []failedLookup
	held    []store.Link
}

// Run executes the stages in order. Listing, store and cancellation errors
// end the run at once. A failed lookup only affects its own pair, and a
// provider authentication failure only ends distance resolution; links
// still waiting for a travel time are held back from this run's digests.
// A failing mail batch only affects that batch. All of these are reported
// in the returned error after the remaining stages ran.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	var res Result
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}
	if p.Source == nil || p.Store == nil || p.Notifier == nil {
		return res, fmt.Errorf("pipeline is not configured")
	}

	listings, err := p.Source.Fetch(ctx)
	if err != nil {
		return res, fmt.Errorf("fetch listings: %w", err)
	}
	res.Listings = len(listings)
	apartments := make([]models.Apartment, 0, len(listings))
	for _, l := range listings {
		apartments = append(apartments, l.Apartment())
	}
	if err := p.Store.UpsertApartments(ctx, apartments); err != nil {
		return res, fmt.Errorf("store apartments: %w", err)
	}
	log.Info("apartments_stored", "count", len(apartments))

	candidates, err := p.Store.FindCandidateMatches(ctx)
	if err != nil {
		return res, fmt.Errorf("find candidates: %w", err)
	}
	res.Candidates = len(candidates)
	plan := match.Build(candidates)
	res.Links = len(plan.NeedsSubscriptionLink)
	res.DistancesRequested = len(plan.NeedsDistance)
	log.Info("matches_planned", "candidates", len(candidates), "links", len(plan.NeedsSubscriptionLink), "distances", len(plan.NeedsDistance))

	if err := p.Store.EnsureSubscribedApartments(ctx, plan.NeedsSubscriptionLink); err != nil {
		return res, fmt.Errorf("link apartments: %w", err)
	}

	var errs []error
	rs, abortErr := p.resolve(ctx, log, plan.NeedsDistance)
	if err := ctx.Err(); err != nil {
		return res, err
	}
	res.DistancesSkipped = rs.skipped
	res.DistancesFailed = len(rs.failed)
	res.LinksHeld = len(rs.held)
	if abortErr != nil {
		log.Error("distance_resolution_aborted", "error", abortErr.Error(), "resolved", len(rs.found), "held_links", len(rs.held))
		errs = append(errs, fmt.Errorf("resolve distances: %w", abortErr))
	}
	if len(rs.failed) > 0 {
		pairErrs := make([]error, 0, len(rs.failed))
		for _, f := range rs.failed {
			pairErrs = append(pairErrs, fmt.Errorf("apartment %s, destination %q: %w", f.req.ApartmentID, f.req.Destination, f.err))
		}
		errs = append(errs, fmt.Errorf("resolve distances: %d of %d lookups failed: %w", len(rs.failed), len(plan.NeedsDistance), errors.Join(pairErrs...)))
	}
	for _, f := range rs.found {
		if err := p.Store.UpsertDistance(ctx, f.req.ApartmentID, f.req.DestinationID, f.minutes); err != nil {
			return res, fmt.Errorf("store distance: %w", err)
		}
		res.DistancesStored++
	}
	if len(rs.found) > 0 {
		log.Info("distances_stored", "count", len(rs.found))
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}
	report, err := p.Notifier.Dispatch(ctx, rs.held)
	res.Notifications = report
	if err != nil {
		errs = append(errs, fmt.Errorf("notify: %w", err))
	}
	return res, errors.Join(errs...)
}

// resolve looks up all requests on a worker pool. A failed lookup is
// recorded and the others continue. An authentication failure cancels the
// outstanding lookups and is returned; lookups that already finished are
// kept. Links of pairs that failed transiently or were never looked up go
// into the held list; a permanently failing pair is notified without its
// travel time so it cannot block the apartment forever.
func (p *Pipeline) resolve(ctx context.Context, log *slog.Logger, reqs []match.DistanceRequest) (resolution, error) {
	var rs resolution
	if len(reqs) == 0 {
		return rs, nil
	}
	if p.Resolver == nil {
		log.Info("distance_resolution_disabled", "requests", len(reqs))
		rs.skipped = len(reqs)
		return rs, nil
	}
	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}

	rctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		done     = make([]bool, len(reqs))
		abortErr error
	)
	wp := workerpool.New(workers)
	for i, req := range reqs {
		wp.Submit(func() {
			if rctx.Err() != nil {
				return
			}
			lookup, err := p.Resolver.Resolve(rctx, req.Destination, req.Address)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil && errors.Is(err, travel.ErrAuth):
				if abortErr == nil {
					abortErr = err
					cancel()
				}
			case err != nil && rctx.Err() != nil:
				// Cut short by the abort or the caller; stays unresolved.
			case err != nil:
				permanent := travel.IsPermanent(err)
				rs.failed = append(rs.failed, failedLookup{req: req, err: err})
				done[i] = permanent
				log.Warn("distance_failed", "apartment_id", req.ApartmentID, "destination", req.Destination, "permanent", permanent, "error", err.Error())
			case !lookup.Found():
				rs.skipped++
				done[i] = true
				log.Info("distance_skipped", "apartment_id", req.ApartmentID, "destination", req.Destination, "reason", lookup.Outcome.String())
			default:
				rs.found = append(rs.found, resolved{req: req, minutes: lookup.Minutes})
				done[i] = true
				log.Debug("distance_resolved", "apartment_id", req.ApartmentID, "destination", req.Destination, "minutes", lookup.Minutes)
			}
		})
	}
	wp.StopWait()

	held := make(map[store.Link]struct{})
	for i, req := range reqs {
		if !done[i] {
			held[req.Link()] = struct{}{}
		}
	}
	for l := range held {
		rs.held = append(rs.held, l)
	}
	sort.Slice(rs.held, func(i, j int) bool {
		a, b := rs.held[i], rs.held[j]
		if a.ApartmentID != b.ApartmentID {
			return a.ApartmentID < b.ApartmentID
		}
		return a.SubscriptionID < b.SubscriptionID
	})
	sort.Slice(rs.found, func(i, j int) bool {
		a, b := rs.found[i].req, rs.found[j].req
		if a.ApartmentID != b.ApartmentID {
			return a.ApartmentID < b.ApartmentID
		}
		return a.DestinationID < b.DestinationID
	})
	sort.Slice(rs.failed, func(i, j int) bool {
		a, b := rs.failed[i].req, rs.failed[j].req
		if a.ApartmentID != b.ApartmentID {
			return a.ApartmentID < b.ApartmentID
		}
		return a.DestinationID < b.DestinationID
	})
	return rs, abortErr
}
