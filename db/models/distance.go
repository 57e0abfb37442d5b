package models

// Distance memoizes the travel time in minutes between an apartment and a
// subscriber destination.
type Distance struct {
	ApartmentID   string `gorm:"column:apartment_id;type:text;primaryKey"`
	DestinationID uint   `gorm:"column:destination_id;primaryKey"`
	Minutes       int    `gorm:"column:time;not null"`
}

func (Distance) TableName() string { return "distances" }

// SubscribedApartment records that an apartment matched a subscription and
// whether the subscriber has been told about it.
type SubscribedApartment struct {
	ApartmentID    string `gorm:"column:apartment_id;type:text;primaryKey"`
	SubscriptionID uint   `gorm:"column:subscription_id;primaryKey"`
	Notified       bool   `gorm:"column:notified;not null"`
}

func (SubscribedApartment) TableName() string { return "subscribed_apartments" }
