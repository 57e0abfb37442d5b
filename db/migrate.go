package db

import (
	"fmt"

	"gorm.io/gorm"
)

// The schema is spelled out instead of derived with AutoMigrate so that the
// ON DELETE CASCADE clauses end up in the CREATE TABLE statements; SQLite
// cannot add foreign keys to an existing table.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS apartments (
  id TEXT PRIMARY KEY,
  address TEXT NOT NULL,
  location TEXT NOT NULL,
  size TEXT NOT NULL,
  area REAL NOT NULL,
  rent INTEGER NOT NULL,
  free_from DATETIME NOT NULL,
  url TEXT NOT NULL,
  updated DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  email TEXT NOT NULL,
  max_rent INTEGER NOT NULL,
  min_area INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_email ON subscriptions(email)`,
	`CREATE TABLE IF NOT EXISTS destinations (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  subscription_id INTEGER NOT NULL REFERENCES subscriptions(id) ON DELETE CASCADE,
  destination TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_destinations_subscription ON destinations(subscription_id)`,
	`CREATE TABLE IF NOT EXISTS distances (
  apartment_id TEXT NOT NULL REFERENCES apartments(id) ON DELETE CASCADE,
  destination_id INTEGER NOT NULL REFERENCES destinations(id) ON DELETE CASCADE,
  time INTEGER NOT NULL,
  PRIMARY KEY (apartment_id, destination_id)
)`,
	`CREATE INDEX IF NOT EXISTS idx_distances_destination ON distances(destination_id)`,
	`CREATE TABLE IF NOT EXISTS subscribed_apartments (
  apartment_id TEXT NOT NULL REFERENCES apartments(id) ON DELETE CASCADE,
  subscription_id INTEGER NOT NULL REFERENCES subscriptions(id) ON DELETE CASCADE,
  notified BOOLEAN NOT NULL DEFAULT 0,
  PRIMARY KEY (apartment_id, subscription_id)
)`,
	`CREATE INDEX IF NOT EXISTS idx_subscribed_apartments_notified ON subscribed_apartments(notified, subscription_id)`,
}

func Migrate(gdb *gorm.DB) error {
	if gdb == nil {
		return fmt.Errorf("nil gorm db")
	}
	return gdb.Transaction(func(tx *gorm.DB) error {
		for _, stmt := range schema {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		return nil
	})
}
