package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/DominikKuenkele/sgs-housing-bot/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormStore struct {
	DB *gorm.DB

	// Now stamps apartments.updated; defaults to time.Now.
	Now func() time.Time
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// UpsertApartments inserts new apartments. An already known id keeps the
// stored listing fields and only gets its updated timestamp refreshed.
func (s *GormStore) UpsertApartments(ctx context.Context, apartments []models.Apartment) error {
	if s == nil || s.DB == nil {
		return fmt.Errorf("store is not initialized")
	}
	if len(apartments) == 0 {
		return nil
	}
	now := s.now().UTC()
	rows := make([]models.Apartment, 0, len(apartments))
	seen := make(map[string]bool, len(apartments))
	for _, a := range apartments {
		a.ID = strings.TrimSpace(a.ID)
		if a.ID == "" {
			return fmt.Errorf("apartment without id (address %q)", a.Address)
		}
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		a.Updated = now
		rows = append(rows, a)
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{"updated": now}),
	}).Create(&rows).Error
}

const candidateQuery = `SELECT` + joinedColumns + `
FROM apartments a
JOIN subscriptions s ON a.area > s.min_area AND a.rent < s.max_rent
LEFT JOIN destinations d ON d.subscription_id = s.id
LEFT JOIN distances di ON di.apartment_id = a.id AND di.destination_id = d.id
ORDER BY a.id, s.id, d.id`

// FindCandidateMatches returns every (apartment, subscription, destination)
// triple where area > min_area and rent < max_rent.
func (s *GormStore) FindCandidateMatches(ctx context.Context) ([]CandidateMatch, error) {
	if s == nil || s.DB == nil {
		return nil, nil
	}
	var rows []joinedRow
	if err := s.DB.WithContext(ctx).Raw(candidateQuery).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("find candidate matches: %w", err)
	}
	out := make([]CandidateMatch, 0, len(rows))
	for _, r := range rows {
		out = append(out, CandidateMatch{
			Apartment:    r.apartment(),
			Subscription: r.subscription(),
			Destination:  r.destination(),
			Minutes:      r.minutes(),
		})
	}
	return out, nil
}

func (s *GormStore) UpsertDistance(ctx context.Context, apartmentID string, destinationID uint, minutes int) error {
	if s == nil || s.DB == nil {
		return fmt.Errorf("store is not initialized")
	}
	if minutes < 0 {
		return fmt.Errorf("negative distance %d for apartment %s", minutes, apartmentID)
	}
	row := models.Distance{ApartmentID: apartmentID, DestinationID: destinationID, Minutes: minutes}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "apartment_id"}, {Name: "destination_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"time"}),
	}).Create(&row).Error
}

// EnsureSubscribedApartment creates the link with notified=false. An existing
// link is left untouched, including its notified flag.
func (s *GormStore) EnsureSubscribedApartment(ctx context.Context, apartmentID string, subscriptionID uint) error {
	return s.EnsureSubscribedApartments(ctx, []Link{{ApartmentID: apartmentID, SubscriptionID: subscriptionID}})
}

func (s *GormStore) EnsureSubscribedApartments(ctx context.Context, links []Link) error {
	if s == nil || s.DB == nil {
		return fmt.Errorf("store is not initialized")
	}
	if len(links) == 0 {
		return nil
	}
	rows := make([]models.SubscribedApartment, 0, len(links))
	for _, l := range links {
		rows = append(rows, models.SubscribedApartment{ApartmentID: l.ApartmentID, SubscriptionID: l.SubscriptionID})
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "apartment_id"}, {Name: "subscription_id"}},
		DoNothing: true,
	}).Create(&rows).Error
}

const unnotifiedQuery = `SELECT` + joinedColumns + `
FROM subscribed_apartments sa
JOIN subscriptions s ON s.id = sa.subscription_id
JOIN apartments a ON a.id = sa.apartment_id
LEFT JOIN destinations d ON d.subscription_id = s.id
LEFT JOIN distances di ON di.apartment_id = a.id AND di.destination_id = d.id
WHERE sa.notified = ?
ORDER BY s.id, a.id, d.id`

func (s *GormStore) FindUnnotified(ctx context.Context) ([]UnnotifiedRow, error) {
	if s == nil || s.DB == nil {
		return nil, nil
	}
	var rows []joinedRow
	if err := s.DB.WithContext(ctx).Raw(unnotifiedQuery, false).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("find unnotified: %w", err)
	}
	out := make([]UnnotifiedRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, UnnotifiedRow{
			Subscription: r.subscription(),
			Apartment:    r.apartment(),
			Destination:  r.destination(),
			Minutes:      r.minutes(),
		})
	}
	return out, nil
}

func (s *GormStore) SetNotified(ctx context.Context, subscriptionID uint, apartmentIDs []string, value bool) error {
	if s == nil || s.DB == nil {
		return fmt.Errorf("store is not initialized")
	}
	if len(apartmentIDs) == 0 {
		return nil
	}
	return setNotified(s.DB.WithContext(ctx), subscriptionID, apartmentIDs, value)
}

// SetNotifiedLinks flips the notified flag of all links in one transaction.
func (s *GormStore) SetNotifiedLinks(ctx context.Context, links []Link, value bool) error {
	if s == nil || s.DB == nil {
		return fmt.Errorf("store is not initialized")
	}
	if len(links) == 0 {
		return nil
	}
	bySub := make(map[uint][]string)
	for _, l := range links {
		bySub[l.SubscriptionID] = append(bySub[l.SubscriptionID], l.ApartmentID)
	}
	subIDs := make([]uint, 0, len(bySub))
	for id := range bySub {
		subIDs = append(subIDs, id)
	}
	sort.Slice(subIDs, func(i, j int) bool { return subIDs[i] < subIDs[j] })

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range subIDs {
			if err := setNotified(tx, id, bySub[id], value); err != nil {
				return err
			}
		}
		return nil
	})
}

func setNotified(tx *gorm.DB, subscriptionID uint, apartmentIDs []string, value bool) error {
	err := tx.Model(&models.SubscribedApartment{}).
		Where("subscription_id = ? AND apartment_id IN ?", subscriptionID, apartmentIDs).
		Update("notified", value).Error
	if err != nil {
		return fmt.Errorf("set notified=%t for subscription %d: %w", value, subscriptionID, err)
	}
	return nil
}

// AddSubscription stores a subscription together with its destinations.
// Blank destination names are dropped.
func (s *GormStore) AddSubscription(ctx context.Context, sub models.Subscription) (models.Subscription, error) {
	if s == nil || s.DB == nil {
		return models.Subscription{}, fmt.Errorf("store is not initialized")
	}
	sub.ID = 0
	sub.Email = strings.TrimSpace(sub.Email)
	if sub.Email == "" {
		return models.Subscription{}, fmt.Errorf("subscription email is required")
	}
	if sub.MaxRent < 0 || sub.MinArea < 0 {
		return models.Subscription{}, fmt.Errorf("max_rent and min_area must not be negative")
	}
	dests := make([]models.Destination, 0, len(sub.Destinations))
	for _, d := range sub.Destinations {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			continue
		}
		dests = append(dests, models.Destination{Name: name})
	}
	sub.Destinations = dests

	if err := s.DB.WithContext(ctx).Create(&sub).Error; err != nil {
		return models.Subscription{}, fmt.Errorf("add subscription: %w", err)
	}
	return sub, nil
}

// RemoveSubscriptionsByEmail deletes every subscription with the email and
// all rows that depend on them. Children are deleted before parents so the
// result does not depend on the engine enforcing ON DELETE CASCADE.
func (s *GormStore) RemoveSubscriptionsByEmail(ctx context.Context, email string) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, fmt.Errorf("store is not initialized")
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return 0, fmt.Errorf("email is required")
	}
	var removed int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&models.Subscription{}).Where("email = ?", email).Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return ErrNotFound
		}
		destIDs := tx.Model(&models.Destination{}).Select("id").Where("subscription_id IN ?", ids)
		if err := tx.Where("destination_id IN (?)", destIDs).Delete(&models.Distance{}).Error; err != nil {
			return err
		}
		if err := tx.Where("subscription_id IN ?", ids).Delete(&models.SubscribedApartment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("subscription_id IN ?", ids).Delete(&models.Destination{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&models.Subscription{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("remove subscriptions for %s: %w", email, err)
	}
	return removed, nil
}

func (s *GormStore) ListSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	if s == nil || s.DB == nil {
		return nil, nil
	}
	var subs []models.Subscription
	err := s.DB.WithContext(ctx).
		Preload("Destinations", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Order("email, id").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

var _ Store = (*GormStore)(nil)
