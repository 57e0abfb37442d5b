package store

import (
	"context"
	"errors"

	"github.com/DominikKuenkele/sgs-housing-bot/db/models"
)

var ErrNotFound = errors.New("not found")

// Store is the only owner of apartments, subscriptions, destinations,
// distances and subscription links. Every mutating call commits on its own.
type Store interface {
	UpsertApartments(ctx context.Context, apartments []models.Apartment) error
	FindCandidateMatches(ctx context.Context) ([]CandidateMatch, error)
	UpsertDistance(ctx context.Context, apartmentID string, destinationID uint, minutes int) error
	EnsureSubscribedApartment(ctx context.Context, apartmentID string, subscriptionID uint) error
	EnsureSubscribedApartments(ctx context.Context, links []Link) error
	FindUnnotified(ctx context.Context) ([]UnnotifiedRow, error)
	SetNotified(ctx context.Context, subscriptionID uint, apartmentIDs []string, value bool) error
	SetNotifiedLinks(ctx context.Context, links []Link, value bool) error

	AddSubscription(ctx context.Context, sub models.Subscription) (models.Subscription, error)
	RemoveSubscriptionsByEmail(ctx context.Context, email string) (int64, error)
	ListSubscriptions(ctx context.Context) ([]models.Subscription, error)
}

// CandidateMatch is one (apartment, subscription, destination) triple whose
// apartment passes the subscription's rent and area filter. Destination is
// nil for subscriptions without destinations. Minutes carries the persisted
// distance for the pair, if any.
type CandidateMatch struct {
	Apartment    models.Apartment
	Subscription models.Subscription
	Destination  *models.Destination
	Minutes      *int
}

// UnnotifiedRow is one (subscription, apartment, destination) tuple for a
// subscription link that has not been notified yet.
type UnnotifiedRow struct {
	Subscription models.Subscription
	Apartment    models.Apartment
	Destination  *models.Destination
	Minutes      *int
}

// Link identifies a subscribed_apartments row.
type Link struct {
	ApartmentID    string
	SubscriptionID uint
}
