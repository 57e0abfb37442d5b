package models

import "time"

type Apartment struct {
	ID       string    `gorm:"column:id;type:text;primaryKey"`
	Address  string    `gorm:"column:address;type:text;not null"`
	Location string    `gorm:"column:location;type:text;not null"`
	Size     string    `gorm:"column:size;type:text;not null"`
	Area     float64   `gorm:"column:area;not null"`
	Rent     int64     `gorm:"column:rent;not null"`
	FreeFrom time.Time `gorm:"column:free_from;not null"`
	URL      string    `gorm:"column:url;type:text;not null"`
	Updated  time.Time `gorm:"column:updated;not null"`
}

func (Apartment) TableName() string { return "apartments" }
