package models

type Subscription struct {
	ID      uint   `gorm:"column:id;primaryKey;autoIncrement"`
	Email   string `gorm:"column:email;type:text;not null;index:idx_subscriptions_email"`
	MaxRent int64  `gorm:"column:max_rent;not null"`
	MinArea int64  `gorm:"column:min_area;not null"`

	Destinations []Destination `gorm:"foreignKey:SubscriptionID"`
}

func (Subscription) TableName() string { return "subscriptions" }

type Destination struct {
	ID             uint   `gorm:"column:id;primaryKey;autoIncrement"`
	SubscriptionID uint   `gorm:"column:subscription_id;not null;index:idx_destinations_subscription"`
	Name           string `gorm:"column:destination;type:text;not null"`
}

func (Destination) TableName() string { return "destinations" }
