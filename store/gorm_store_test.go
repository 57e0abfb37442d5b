package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DominikKuenkele/sgs-housing-bot/db"
	"github.com/DominikKuenkele/sgs-housing-bot/db/models"
	"gorm.io/gorm"
)

func openTestStore(t *testing.T) (*GormStore, *gorm.DB) {
	t.Helper()
	cfg := db.DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "test.db")
	gdb, err := db.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })
	return NewGormStore(gdb), gdb
}

func apartment(id string, area float64, rent int64) models.Apartment {
	return models.Apartment{
		ID:       id,
		Address:  "Street " + id,
		Location: "Centrum",
		Size:     "1 rum",
		Area:     area,
		Rent:     rent,
		FreeFrom: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		URL:      "https://example.com/" + id,
	}
}

func mustAddSubscription(t *testing.T, s *GormStore, email string, maxRent, minArea int64, dests ...string) models.Subscription {
	t.Helper()
	sub := models.Subscription{Email: email, MaxRent: maxRent, MinArea: minArea}
	for _, d := range dests {
		sub.Destinations = append(sub.Destinations, models.Destination{Name: d})
	}
	out, err := s.AddSubscription(context.Background(), sub)
	if err != nil {
		t.Fatalf("AddSubscription(%q): %v", email, err)
	}
	return out
}

func TestUpsertApartments_KeepsFieldsAndTouchesUpdated(t *testing.T) {
	s, gdb := openTestStore(t)
	ctx := context.Background()

	first := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	second := first.Add(24 * time.Hour)
	s.Now = func() time.Time { return first }
	if err := s.UpsertApartments(ctx, []models.Apartment{apartment("A1", 30, 5000)}); err != nil {
		t.Fatalf("UpsertApartments: %v", err)
	}

	changed := apartment("A1", 30, 9999)
	s.Now = func() time.Time { return second }
	if err := s.UpsertApartments(ctx, []models.Apartment{changed, apartment("A2", 40, 6000)}); err != nil {
		t.Fatalf("UpsertApartments (again): %v", err)
	}

	var rows []models.Apartment
	if err := gdb.Order("id").Find(&rows).Error; err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[0].Rent != 5000 {
		t.Fatalf("A1 rent = %d, want 5000 (first insert wins)", rows[0].Rent)
	}
	if !rows[0].Updated.Equal(second) {
		t.Fatalf("A1 updated = %v, want %v", rows[0].Updated, second)
	}
	if !rows[0].FreeFrom.Equal(time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("A1 free_from = %v", rows[0].FreeFrom)
	}
}

func TestUpsertApartments_RejectsEmptyID(t *testing.T) {
	s, _ := openTestStore(t)
	err := s.UpsertApartments(context.Background(), []models.Apartment{apartment(" ", 30, 5000)})
	if err == nil {
		t.Fatal("expected error for empty apartment id")
	}
}

func TestFindCandidateMatches_StrictFilters(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	sub := mustAddSubscription(t, s, "a@example.com", 6000, 30, "Central", "Campus")
	_ = mustAddSubscription(t, s, "b@example.com", 100000, 0)

	apts := []models.Apartment{
		apartment("A1", 31, 5999), // matches both
		apartment("A2", 30, 5000), // area == min_area
		apartment("A3", 35, 6000), // rent == max_rent
	}
	if err := s.UpsertApartments(ctx, apts); err != nil {
		t.Fatalf("UpsertApartments: %v", err)
	}

	got, err := s.FindCandidateMatches(ctx)
	if err != nil {
		t.Fatalf("FindCandidateMatches: %v", err)
	}

	type key struct {
		apt  string
		sub  uint
		dest string
	}
	var keys []key
	for _, c := range got {
		k := key{apt: c.Apartment.ID, sub: c.Subscription.ID}
		if c.Destination != nil {
			k.dest = c.Destination.Name
		}
		if c.Minutes != nil {
			t.Fatalf("unexpected cached minutes for %+v", k)
		}
		keys = append(keys, k)
	}
	want := []key{
		{"A1", sub.ID, "Central"},
		{"A1", sub.ID, "Campus"},
		{"A1", sub.ID + 1, ""},
		{"A2", sub.ID + 1, ""},
		{"A3", sub.ID + 1, ""},
	}
	if len(keys) != len(want) {
		t.Fatalf("FindCandidateMatches() = %+v, want %+v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("FindCandidateMatches()[%d] = %+v, want %+v", i, keys[i], want[i])
		}
	}
}

func TestFindCandidateMatches_CarriesDistance(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	sub := mustAddSubscription(t, s, "a@example.com", 10000, 0, "Central")
	if err := s.UpsertApartments(ctx, []models.Apartment{apartment("A1", 30, 5000)}); err != nil {
		t.Fatalf("UpsertApartments: %v", err)
	}
	destID := sub.Destinations[0].ID
	if err := s.UpsertDistance(ctx, "A1", destID, 20); err != nil {
		t.Fatalf("UpsertDistance: %v", err)
	}
	if err := s.UpsertDistance(ctx, "A1", destID, 25); err != nil {
		t.Fatalf("UpsertDistance (overwrite): %v", err)
	}

	got, err := s.FindCandidateMatches(ctx)
	if err != nil {
		t.Fatalf("FindCandidateMatches: %v", err)
	}
	if len(got) != 1 || got[0].Minutes == nil || *got[0].Minutes != 25 {
		t.Fatalf("FindCandidateMatches() = %+v, want one row with 25 minutes", got)
	}
}

func TestUpsertDistance_ForeignKeys(t *testing.T) {
	s, _ := openTestStore(t)
	if err := s.UpsertDistance(context.Background(), "missing", 42, 10); err == nil {
		t.Fatal("expected foreign key violation for unknown apartment and destination")
	}
}

func TestEnsureSubscribedApartment_KeepsNotified(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	sub := mustAddSubscription(t, s, "a@example.com", 10000, 0)
	if err := s.UpsertApartments(ctx, []models.Apartment{apartment("A1", 30, 5000)}); err != nil {
		t.Fatalf("UpsertApartments: %v", err)
	}
	if err := s.EnsureSubscribedApartment(ctx, "A1", sub.ID); err != nil {
		t.Fatalf("EnsureSubscribedApartment: %v", err)
	}
	if err := s.SetNotified(ctx, sub.ID, []string{"A1"}, true); err != nil {
		t.Fatalf("SetNotified: %v", err)
	}
	if err := s.EnsureSubscribedApartment(ctx, "A1", sub.ID); err != nil {
		t.Fatalf("EnsureSubscribedApartment (again): %v", err)
	}
	rows, err := s.FindUnnotified(ctx)
	if err != nil {
		t.Fatalf("FindUnnotified: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("FindUnnotified() = %+v, want none", rows)
	}
}

func TestFindUnnotified_OrderAndDistances(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	subA := mustAddSubscription(t, s, "a@example.com", 10000, 0, "Central", "Campus")
	subB := mustAddSubscription(t, s, "b@example.com", 10000, 0)
	if err := s.UpsertApartments(ctx, []models.Apartment{apartment("A2", 30, 5000), apartment("A1", 30, 5000)}); err != nil {
		t.Fatalf("UpsertApartments: %v", err)
	}
	links := []Link{
		{ApartmentID: "A2", SubscriptionID: subB.ID},
		{ApartmentID: "A2", SubscriptionID: subA.ID},
		{ApartmentID: "A1", SubscriptionID: subA.ID},
	}
	if err := s.EnsureSubscribedApartments(ctx, links); err != nil {
		t.Fatalf("EnsureSubscribedApartments: %v", err)
	}
	if err := s.UpsertDistance(ctx, "A1", subA.Destinations[0].ID, 12); err != nil {
		t.Fatalf("UpsertDistance: %v", err)
	}

	rows, err := s.FindUnnotified(ctx)
	if err != nil {
		t.Fatalf("FindUnnotified: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("len(FindUnnotified()) = %d, want 5", len(rows))
	}
	first := rows[0]
	if first.Subscription.ID != subA.ID || first.Apartment.ID != "A1" || first.Destination == nil || first.Destination.Name != "Central" {
		t.Fatalf("rows[0] = %+v", first)
	}
	if first.Minutes == nil || *first.Minutes != 12 {
		t.Fatalf("rows[0].Minutes = %v, want 12", first.Minutes)
	}
	if rows[1].Minutes != nil {
		t.Fatalf("rows[1].Minutes = %v, want nil", *rows[1].Minutes)
	}
	last := rows[4]
	if last.Subscription.ID != subB.ID || last.Destination != nil {
		t.Fatalf("rows[4] = %+v", last)
	}

	if err := s.SetNotifiedLinks(ctx, links[1:], true); err != nil {
		t.Fatalf("SetNotifiedLinks: %v", err)
	}
	rows, err = s.FindUnnotified(ctx)
	if err != nil {
		t.Fatalf("FindUnnotified: %v", err)
	}
	if len(rows) != 1 || rows[0].Subscription.ID != subB.ID {
		t.Fatalf("FindUnnotified() after mark = %+v, want only subscription %d", rows, subB.ID)
	}

	if err := s.SetNotifiedLinks(ctx, links, false); err != nil {
		t.Fatalf("SetNotifiedLinks(false): %v", err)
	}
	rows, _ = s.FindUnnotified(ctx)
	if len(rows) != 5 {
		t.Fatalf("len(FindUnnotified()) after revert = %d, want 5", len(rows))
	}
}

func TestRemoveSubscriptionsByEmail_Cascades(t *testing.T) {
	s, gdb := openTestStore(t)
	ctx := context.Background()

	a1 := mustAddSubscription(t, s, "a@example.com", 10000, 0, "Central")
	_ = mustAddSubscription(t, s, "a@example.com", 8000, 10, "Campus")
	b := mustAddSubscription(t, s, "b@example.com", 10000, 0, "Harbour")
	if err := s.UpsertApartments(ctx, []models.Apartment{apartment("A1", 30, 5000)}); err != nil {
		t.Fatalf("UpsertApartments: %v", err)
	}
	_ = s.EnsureSubscribedApartments(ctx, []Link{{"A1", a1.ID}, {"A1", b.ID}})
	_ = s.UpsertDistance(ctx, "A1", a1.Destinations[0].ID, 10)
	_ = s.UpsertDistance(ctx, "A1", b.Destinations[0].ID, 15)

	n, err := s.RemoveSubscriptionsByEmail(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("RemoveSubscriptionsByEmail: %v", err)
	}
	if n != 2 {
		t.Fatalf("removed = %d, want 2", n)
	}

	counts := map[string]any{
		"subscriptions":         &models.Subscription{},
		"destinations":          &models.Destination{},
		"distances":             &models.Distance{},
		"subscribed_apartments": &models.SubscribedApartment{},
	}
	for table, model := range counts {
		var c int64
		if err := gdb.Model(model).Count(&c).Error; err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if c != 1 {
			t.Fatalf("count(%s) = %d, want 1", table, c)
		}
	}

	if _, err := s.RemoveSubscriptionsByEmail(ctx, "a@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("RemoveSubscriptionsByEmail (again) error = %v, want ErrNotFound", err)
	}
}

func TestListSubscriptions(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	_ = mustAddSubscription(t, s, "b@example.com", 10000, 0, "Harbour")
	_ = mustAddSubscription(t, s, "a@example.com", 9000, 20, "Central", " ", "Campus")

	subs, err := s.ListSubscriptions(ctx)
	if err != nil {
		t.Fatalf("ListSubscriptions: %v", err)
	}
	if len(subs) != 2 || subs[0].Email != "a@example.com" {
		t.Fatalf("ListSubscriptions() = %+v", subs)
	}
	if len(subs[0].Destinations) != 2 || subs[0].Destinations[1].Name != "Campus" {
		t.Fatalf("destinations = %+v, want [Central Campus]", subs[0].Destinations)
	}
}

func TestAddSubscription_RequiresEmail(t *testing.T) {
	s, _ := openTestStore(t)
	if _, err := s.AddSubscription(context.Background(), models.Subscription{MaxRent: 1}); err == nil {
		t.Fatal("expected error for empty email")
	}
}
