// Package match turns candidate rows from the store into the work the
// pipeline has to do: travel durations to compute and subscription links to
// ensure. It does no I/O.
package match

import (
	"sort"

	"github.com/DominikKuenkele/sgs-housing-bot/db/models"
	"github.com/DominikKuenkele/sgs-housing-bot/store"
)

// DistanceRequest asks for the travel time from a subscriber destination to
// an apartment address. A destination belongs to exactly one subscription.
type DistanceRequest struct {
	ApartmentID    string
	Address        string
	DestinationID  uint
	Destination    string
	SubscriptionID uint
}

// Link is the subscription link whose digest shows this travel time.
func (r DistanceRequest) Link() store.Link {
	return store.Link{ApartmentID: r.ApartmentID, SubscriptionID: r.SubscriptionID}
}

type Plan struct {
	NeedsDistance         []DistanceRequest
	NeedsSubscriptionLink []store.Link
}

// Eligible reports whether the apartment passes the subscription's filter.
// Both bounds are strict.
func Eligible(a models.Apartment, s models.Subscription) bool {
	return a.Area > float64(s.MinArea) && a.Rent < s.MaxRent
}

// Build derives the plan from candidate rows. Pairs that already have a
// stored distance are never requested again. Output is deduplicated and
// sorted by apartment id, then destination or subscription id.
func Build(candidates []store.CandidateMatch) Plan {
	type distKey struct {
		apartmentID   string
		destinationID uint
	}
	dists := make(map[distKey]DistanceRequest)
	links := make(map[store.Link]struct{})

	for _, c := range candidates {
		if !Eligible(c.Apartment, c.Subscription) {
			continue
		}
		links[store.Link{ApartmentID: c.Apartment.ID, SubscriptionID: c.Subscription.ID}] = struct{}{}

		if c.Destination == nil || c.Minutes != nil {
			continue
		}
		k := distKey{apartmentID: c.Apartment.ID, destinationID: c.Destination.ID}
		if _, ok := dists[k]; ok {
			continue
		}
		dists[k] = DistanceRequest{
			ApartmentID:    c.Apartment.ID,
			Address:        c.Apartment.Address,
			DestinationID:  c.Destination.ID,
			Destination:    c.Destination.Name,
			SubscriptionID: c.Subscription.ID,
		}
	}

	plan := Plan{
		NeedsDistance:         make([]DistanceRequest, 0, len(dists)),
		NeedsSubscriptionLink: make([]store.Link, 0, len(links)),
	}
	for _, d := range dists {
		plan.NeedsDistance = append(plan.NeedsDistance, d)
	}
	for l := range links {
		plan.NeedsSubscriptionLink = append(plan.NeedsSubscriptionLink, l)
	}
	sort.Slice(plan.NeedsDistance, func(i, j int) bool {
		a, b := plan.NeedsDistance[i], plan.NeedsDistance[j]
		if a.ApartmentID != b.ApartmentID {
			return a.ApartmentID < b.ApartmentID
		}
		return a.DestinationID < b.DestinationID
	})
	sort.Slice(plan.NeedsSubscriptionLink, func(i, j int) bool {
		a, b := plan.NeedsSubscriptionLink[i], plan.NeedsSubscriptionLink[j]
		if a.ApartmentID != b.ApartmentID {
			return a.ApartmentID < b.ApartmentID
		}
		return a.SubscriptionID < b.SubscriptionID
	})
	return plan
}
