package store

import (
	"database/sql"
	"time"

	"github.com/DominikKuenkele/sgs-housing-bot/db/models"
)

// joinedRow is the flat shape of the apartment/subscription/destination
// joins; the destination and distance columns come from LEFT JOINs.
type joinedRow struct {
	ApartmentID string    `gorm:"column:apartment_id"`
	Address     string    `gorm:"column:address"`
	Location    string    `gorm:"column:location"`
	Size        string    `gorm:"column:size"`
	Area        float64   `gorm:"column:area"`
	Rent        int64     `gorm:"column:rent"`
	FreeFrom    time.Time `gorm:"column:free_from"`
	URL         string    `gorm:"column:url"`
	Updated     time.Time `gorm:"column:updated"`

	SubscriptionID uint   `gorm:"column:subscription_id"`
	Email          string `gorm:"column:email"`
	MaxRent        int64  `gorm:"column:max_rent"`
	MinArea        int64  `gorm:"column:min_area"`

	DestinationID   sql.NullInt64  `gorm:"column:destination_id"`
	DestinationName sql.NullString `gorm:"column:destination_name"`
	Minutes         sql.NullInt64  `gorm:"column:minutes"`
}

const joinedColumns = `
  a.id AS apartment_id, a.address AS address, a.location AS location, a.size AS size,
  a.area AS area, a.rent AS rent, a.free_from AS free_from, a.url AS url, a.updated AS updated,
  s.id AS subscription_id, s.email AS email, s.max_rent AS max_rent, s.min_area AS min_area,
  d.id AS destination_id, d.destination AS destination_name,
  di.time AS minutes`

func (r joinedRow) apartment() models.Apartment {
	return models.Apartment{
		ID:       r.ApartmentID,
		Address:  r.Address,
		Location: r.Location,
		Size:     r.Size,
		Area:     r.Area,
		Rent:     r.Rent,
		FreeFrom: r.FreeFrom,
		URL:      r.URL,
		Updated:  r.Updated,
	}
}

func (r joinedRow) subscription() models.Subscription {
	return models.Subscription{
		ID:      r.SubscriptionID,
		Email:   r.Email,
		MaxRent: r.MaxRent,
		MinArea: r.MinArea,
	}
}

func (r joinedRow) destination() *models.Destination {
	if !r.DestinationID.Valid {
		return nil
	}
	return &models.Destination{
		ID:             uint(r.DestinationID.Int64),
		SubscriptionID: r.SubscriptionID,
		Name:           r.DestinationName.String,
	}
}

func (r joinedRow) minutes() *int {
	if !r.Minutes.Valid || !r.DestinationID.Valid {
		return nil
	}
	m := int(r.Minutes.Int64)
	return &m
}
