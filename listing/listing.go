// Package listing fetches raw apartment listings.
package listing

import (
	"context"
	"time"

	"github.com/DominikKuenkele/sgs-housing-bot/db/models"
)

// Listing is one apartment as published by a source.
type Listing struct {
	ID       string
	Address  string
	Location string
	Size     string
	Area     float64
	Rent     int64
	FreeFrom time.Time
	URL      string
}

func (l Listing) Apartment() models.Apartment {
	return models.Apartment{
		ID:       l.ID,
		Address:  l.Address,
		Location: l.Location,
		Size:     l.Size,
		Area:     l.Area,
		Rent:     l.Rent,
		FreeFrom: l.FreeFrom,
		URL:      l.URL,
	}
}

type Source interface {
	Fetch(ctx context.Context) ([]Listing, error)
}
