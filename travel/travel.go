// Package travel resolves public transport durations between a subscriber
// destination and an apartment address.
package travel

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrLocationNotFound = errors.New("location not found")
	ErrJourneyNotFound  = errors.New("journey not found")
	// ErrAuth means the provider rejected or could not issue credentials.
	// Every further lookup of the run would fail the same way.
	ErrAuth = errors.New("travel provider authentication failed")
)

// Place is a geocoded place name.
type Place struct {
	Name string
	ID   string
	Lat  float64
	Lon  float64
}

func (p Place) coordKey() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon)
}

// Backend is an external travel planner. Locate returns ErrLocationNotFound
// when the name yields no result; Journey returns ErrJourneyNotFound when no
// trip departs at the requested time.
type Backend interface {
	Locate(ctx context.Context, name string) (Place, error)
	Journey(ctx context.Context, origin, destination Place, departAt time.Time) (time.Duration, error)
}

type Outcome int

const (
	Found Outcome = iota
	MissLocation
	MissJourney
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case MissLocation:
		return "location_not_found"
	case MissJourney:
		return "journey_not_found"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Lookup is the result of a resolution. Minutes is only meaningful for Found;
// Place names the unresolved place for MissLocation.
type Lookup struct {
	Outcome Outcome
	Minutes int
	Place   string
}

func (l Lookup) Found() bool { return l.Outcome == Found }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
