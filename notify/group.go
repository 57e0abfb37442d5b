// Package notify turns unnotified subscription links into one digest per
// subscriber and keeps the notified flag consistent with delivery.
package notify

import (
	"sort"

	"github.com/DominikKuenkele/sgs-housing-bot/db/models"
	"github.com/DominikKuenkele/sgs-housing-bot/store"
)

type TravelTime struct {
	DestinationID uint
	Destination   string
	Minutes       int
}

// Entry is one apartment of a digest with the travel time to every
// destination that has a stored distance, ordered by destination id.
type Entry struct {
	Apartment models.Apartment
	Travel    []TravelTime
}

// Digest collects everything one subscription is told about in a run.
type Digest struct {
	Subscription models.Subscription
	Entries      []Entry
}

// Links returns the subscription links covered by the digest.
func (d Digest) Links() []store.Link {
	out := make([]store.Link, 0, len(d.Entries))
	for _, e := range d.Entries {
		out = append(out, store.Link{ApartmentID: e.Apartment.ID, SubscriptionID: d.Subscription.ID})
	}
	return out
}

// Group folds rows into digests ordered by subscription id, entries by
// apartment id. Every destination row of an apartment is kept; rows without
// a destination or without a distance contribute no travel time.
func Group(rows []store.UnnotifiedRow) []Digest {
	type apartmentAcc struct {
		apartment models.Apartment
		travel    map[uint]TravelTime
	}
	type subscriptionAcc struct {
		subscription models.Subscription
		apartments   map[string]*apartmentAcc
	}
	subs := make(map[uint]*subscriptionAcc)

	for _, r := range rows {
		s, ok := subs[r.Subscription.ID]
		if !ok {
			s = &subscriptionAcc{subscription: r.Subscription, apartments: make(map[string]*apartmentAcc)}
			subs[r.Subscription.ID] = s
		}
		a, ok := s.apartments[r.Apartment.ID]
		if !ok {
			a = &apartmentAcc{apartment: r.Apartment, travel: make(map[uint]TravelTime)}
			s.apartments[r.Apartment.ID] = a
		}
		if r.Destination == nil || r.Minutes == nil {
			continue
		}
		a.travel[r.Destination.ID] = TravelTime{
			DestinationID: r.Destination.ID,
			Destination:   r.Destination.Name,
			Minutes:       *r.Minutes,
		}
	}

	out := make([]Digest, 0, len(subs))
	for _, s := range subs {
		d := Digest{Subscription: s.subscription, Entries: make([]Entry, 0, len(s.apartments))}
		for _, a := range s.apartments {
			e := Entry{Apartment: a.apartment, Travel: make([]TravelTime, 0, len(a.travel))}
			for _, tt := range a.travel {
				e.Travel = append(e.Travel, tt)
			}
			sort.Slice(e.Travel, func(i, j int) bool { return e.Travel[i].DestinationID < e.Travel[j].DestinationID })
			d.Entries = append(d.Entries, e)
		}
		sort.Slice(d.Entries, func(i, j int) bool { return d.Entries[i].Apartment.ID < d.Entries[j].Apartment.ID })
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subscription.ID < out[j].Subscription.ID })
	return out
}
