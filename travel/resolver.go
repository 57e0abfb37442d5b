package travel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type Options struct {
	// Attempts bounds tries per backend call for transient errors.
	Attempts int
	Backoff  time.Duration
	// Timeout applies to every single backend call.
	Timeout time.Duration
	// Location and ReferenceHour define the departure time: ReferenceHour:00
	// on the day after the call, in Location.
	Location      *time.Location
	ReferenceHour int
	Now           func() time.Time
	Logger        *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		Attempts:      3,
		Backoff:       2 * time.Second,
		Timeout:       10 * time.Second,
		Location:      time.Local,
		ReferenceHour: 10,
	}
}

type placeResult struct {
	place Place
	found bool
}

type pairResult struct {
	minutes int
	found   bool
}

// Resolver caches place lookups and durations for the lifetime of one
// instance. Concurrent calls for the same place or pair share one backend
// request.
type Resolver struct {
	backend Backend
	opts    Options
	log     *slog.Logger

	mu     sync.Mutex
	places map[string]placeResult
	pairs  map[string]pairResult
	calls  singleflight.Group
}

func NewResolver(backend Backend, opts Options) *Resolver {
	def := DefaultOptions()
	if opts.Attempts <= 0 {
		opts.Attempts = def.Attempts
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Location == nil {
		opts.Location = def.Location
	}
	if opts.ReferenceHour < 0 || opts.ReferenceHour > 23 {
		opts.ReferenceHour = def.ReferenceHour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		backend: backend,
		opts:    opts,
		log:     log,
		places:  make(map[string]placeResult),
		pairs:   make(map[string]pairResult),
	}
}

// ReferenceTime returns hour:00 on the day after now, in loc.
func ReferenceTime(now time.Time, loc *time.Location, hour int) time.Time {
	if loc == nil {
		loc = time.Local
	}
	n := now.In(loc)
	return time.Date(n.Year(), n.Month(), n.Day()+1, hour, 0, 0, 0, loc)
}

// Resolve returns the planned trip duration from origin to destination.
// Unknown places and missing journeys are reported through the Lookup
// outcome. A non-nil error means the backend kept failing and resolution
// should stop for this run.
func (r *Resolver) Resolve(ctx context.Context, origin, destination string) (Lookup, error) {
	if r == nil || r.backend == nil {
		return Lookup{}, fmt.Errorf("travel resolver is not configured")
	}
	from, ok, err := r.place(ctx, origin)
	if err != nil {
		return Lookup{}, err
	}
	if !ok {
		return Lookup{Outcome: MissLocation, Place: origin}, nil
	}
	to, ok, err := r.place(ctx, destination)
	if err != nil {
		return Lookup{}, err
	}
	if !ok {
		return Lookup{Outcome: MissLocation, Place: destination}, nil
	}

	res, err := r.pair(ctx, from, to)
	if err != nil {
		return Lookup{}, err
	}
	if !res.found {
		return Lookup{Outcome: MissJourney}, nil
	}
	return Lookup{Outcome: Found, Minutes: res.minutes}, nil
}

func (r *Resolver) place(ctx context.Context, name string) (Place, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Place{}, false, nil
	}
	r.mu.Lock()
	cached, ok := r.places[name]
	r.mu.Unlock()
	if ok {
		return cached.place, cached.found, nil
	}

	v, err, _ := r.calls.Do("place\x00"+name, func() (any, error) {
		r.mu.Lock()
		cached, ok := r.places[name]
		r.mu.Unlock()
		if ok {
			return cached, nil
		}
		var p Place
		err := r.retry(ctx, "locate", func(ctx context.Context) error {
			var err error
			p, err = r.backend.Locate(ctx, name)
			return err
		})
		res := placeResult{place: p, found: err == nil}
		if err != nil && !errors.Is(err, ErrLocationNotFound) {
			return nil, fmt.Errorf("locate %q: %w", name, err)
		}
		if !res.found {
			r.log.Info("location_not_found", "place", name)
		}
		r.mu.Lock()
		r.places[name] = res
		r.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return Place{}, false, err
	}
	res := v.(placeResult)
	return res.place, res.found, nil
}

func (r *Resolver) pair(ctx context.Context, from, to Place) (pairResult, error) {
	key := from.coordKey() + "->" + to.coordKey()
	r.mu.Lock()
	cached, ok := r.pairs[key]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	v, err, _ := r.calls.Do("pair\x00"+key, func() (any, error) {
		r.mu.Lock()
		cached, ok := r.pairs[key]
		r.mu.Unlock()
		if ok {
			return cached, nil
		}
		at := ReferenceTime(r.opts.Now(), r.opts.Location, r.opts.ReferenceHour)
		var d time.Duration
		err := r.retry(ctx, "journey", func(ctx context.Context) error {
			var err error
			d, err = r.backend.Journey(ctx, from, to, at)
			return err
		})
		if err != nil && !errors.Is(err, ErrJourneyNotFound) {
			return nil, fmt.Errorf("journey %q -> %q: %w", from.Name, to.Name, err)
		}
		res := pairResult{found: err == nil}
		if res.found {
			res.minutes = int(math.Round(d.Minutes()))
		} else {
			r.log.Info("journey_not_found", "origin", from.Name, "destination", to.Name, "depart_at", at)
		}
		r.mu.Lock()
		r.pairs[key] = res
		r.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return pairResult{}, err
	}
	return v.(pairResult), nil
}
