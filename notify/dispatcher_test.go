package notify

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DominikKuenkele/sgs-housing-bot/db"
	"github.com/DominikKuenkele/sgs-housing-bot/db/models"
	"github.com/DominikKuenkele/sgs-housing-bot/store"
)

// fakeTransport fails for the first failN calls, or for every batch that
// contains a message to one of failFor.
type fakeTransport struct {
	mu      sync.Mutex
	failN   int
	failFor map[string]bool
	calls   int
	sent    [][]Message
	// seen captures the notified flags at send time, when set.
	onSend func()
}

func (f *fakeTransport) Send(_ context.Context, msgs []Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.onSend != nil {
		f.onSend()
	}
	if f.calls <= f.failN {
		return errors.New("connection refused")
	}
	for _, m := range msgs {
		if f.failFor[m.To] {
			return errors.New("550 mailbox unavailable")
		}
	}
	f.sent = append(f.sent, msgs)
	return nil
}

func openTestStore(t *testing.T) *store.GormStore {
	t.Helper()
	cfg := db.DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "notify.db")
	gdb, err := db.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })
	return store.NewGormStore(gdb)
}

// seed creates one subscription per email, each linked to the apartments.
func seed(t *testing.T, s *store.GormStore, emails []string, apartmentIDs ...string) []models.Subscription {
	t.Helper()
	ctx := context.Background()
	var apts []models.Apartment
	for _, id := range apartmentIDs {
		apts = append(apts, testApartment(id))
	}
	if err := s.UpsertApartments(ctx, apts); err != nil {
		t.Fatalf("UpsertApartments: %v", err)
	}
	var subs []models.Subscription
	for _, email := range emails {
		sub, err := s.AddSubscription(ctx, models.Subscription{
			Email: email, MaxRent: 10000, MinArea: 0,
			Destinations: []models.Destination{{Name: "Central"}},
		})
		if err != nil {
			t.Fatalf("AddSubscription: %v", err)
		}
		for _, id := range apartmentIDs {
			if err := s.EnsureSubscribedApartment(ctx, id, sub.ID); err != nil {
				t.Fatalf("EnsureSubscribedApartment: %v", err)
			}
		}
		subs = append(subs, sub)
	}
	return subs
}

func unnotifiedEmails(t *testing.T, s *store.GormStore) map[string]int {
	t.Helper()
	rows, err := s.FindUnnotified(context.Background())
	if err != nil {
		t.Fatalf("FindUnnotified: %v", err)
	}
	out := map[string]int{}
	for _, r := range rows {
		out[r.Subscription.Email]++
	}
	return out
}

func testOptions() Options {
	return Options{
		Sender:   "bot@example.com",
		Attempts: 3,
		Now:      func() time.Time { return time.Date(2024, 8, 1, 9, 0, 0, 0, time.UTC) },
	}
}

func TestDispatch_SendsOneDigestPerSubscriptionAndMarks(t *testing.T) {
	s := openTestStore(t)
	seed(t, s, []string{"a@example.com", "b@example.com"}, "1", "2")

	tr := &fakeTransport{}
	var pendingAtSend map[string]int
	tr.onSend = func() { pendingAtSend = unnotifiedEmails(t, s) }

	report, err := NewDispatcher(s, tr, testOptions()).Dispatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(tr.sent) != 1 || len(tr.sent[0]) != 2 {
		t.Fatalf("sent = %+v, want one batch with two messages", tr.sent)
	}
	if len(pendingAtSend) != 0 {
		t.Fatalf("unnotified at send time = %v, want links marked before send", pendingAtSend)
	}
	if report.Count(Sent) != 2 {
		t.Fatalf("sent digests = %d, want 2", report.Count(Sent))
	}
	if got := unnotifiedEmails(t, s); len(got) != 0 {
		t.Fatalf("unnotified after dispatch = %v, want none", got)
	}

	report, err = NewDispatcher(s, tr, testOptions()).Dispatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("Dispatch (again): %v", err)
	}
	if len(report.Outcomes) != 0 || tr.calls != 1 {
		t.Fatalf("second dispatch sent again: outcomes=%+v calls=%d", report.Outcomes, tr.calls)
	}
}

func TestDispatch_RetriesThenSucceeds(t *testing.T) {
	s := openTestStore(t)
	seed(t, s, []string{"a@example.com"}, "1")

	tr := &fakeTransport{failN: 2}
	if _, err := NewDispatcher(s, tr, testOptions()).Dispatch(context.Background(), nil); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if tr.calls != 3 || len(tr.sent) != 1 {
		t.Fatalf("calls = %d, sent = %d, want 3 and 1", tr.calls, len(tr.sent))
	}
}

func TestDispatch_RevertsEveryPairOfFailedBatch(t *testing.T) {
	s := openTestStore(t)
	seed(t, s, []string{"a@example.com", "b@example.com", "c@example.com"}, "1", "2")

	tr := &fakeTransport{failN: 3}
	report, err := NewDispatcher(s, tr, testOptions()).Dispatch(context.Background(), nil)
	if !errors.Is(err, ErrSendFailed) {
		t.Fatalf("Dispatch() error = %v, want ErrSendFailed", err)
	}
	if tr.calls != 3 {
		t.Fatalf("transport calls = %d, want 3", tr.calls)
	}
	if report.Count(Failed) != 3 {
		t.Fatalf("failed digests = %d, want 3", report.Count(Failed))
	}
	got := unnotifiedEmails(t, s)
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		if got[email] != 2 {
			t.Fatalf("unnotified rows for %s = %d, want 2 (all reverted): %v", email, got[email], got)
		}
	}
}

func TestDispatch_FailedBatchLeavesOtherBatchesSent(t *testing.T) {
	s := openTestStore(t)
	seed(t, s, []string{"a@example.com", "b@example.com", "c@example.com"}, "1")

	opts := testOptions()
	opts.BatchSize = 1
	tr := &fakeTransport{failFor: map[string]bool{"b@example.com": true}}
	report, err := NewDispatcher(s, tr, opts).Dispatch(context.Background(), nil)
	if !errors.Is(err, ErrSendFailed) {
		t.Fatalf("Dispatch() error = %v, want ErrSendFailed", err)
	}
	if report.Count(Sent) != 2 || report.Count(Failed) != 1 {
		t.Fatalf("report = %+v", report.Outcomes)
	}
	got := unnotifiedEmails(t, s)
	if len(got) != 1 || got["b@example.com"] != 1 {
		t.Fatalf("unnotified = %v, want only b@example.com", got)
	}
}

func TestDispatch_DryRunDoesNotMutate(t *testing.T) {
	s := openTestStore(t)
	seed(t, s, []string{"a@example.com"}, "1")

	opts := testOptions()
	opts.DryRun = true
	tr := &fakeTransport{}
	report, err := NewDispatcher(s, tr, opts).Dispatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if tr.calls != 0 || report.Count(Composed) != 1 {
		t.Fatalf("dry run: calls=%d outcomes=%+v", tr.calls, report.Outcomes)
	}
	if got := unnotifiedEmails(t, s); got["a@example.com"] != 1 {
		t.Fatalf("unnotified = %v, want a@example.com untouched", got)
	}
}

type failingMarkStore struct {
	rows []store.UnnotifiedRow
}

func (f *failingMarkStore) FindUnnotified(context.Context) ([]store.UnnotifiedRow, error) {
	return f.rows, nil
}

func (f *failingMarkStore) SetNotifiedLinks(context.Context, []store.Link, bool) error {
	return errors.New("database is locked")
}

func TestDispatch_MarkFailureSkipsSend(t *testing.T) {
	st := &failingMarkStore{rows: []store.UnnotifiedRow{{
		Subscription: models.Subscription{ID: 1, Email: "a@example.com"},
		Apartment:    testApartment("1"),
	}}}
	tr := &fakeTransport{}
	report, err := NewDispatcher(st, tr, testOptions()).Dispatch(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error when marking fails")
	}
	if tr.calls != 0 {
		t.Fatalf("transport calls = %d, want 0", tr.calls)
	}
	if report.Count(Sent) != 0 {
		t.Fatalf("report = %+v", report.Outcomes)
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{Pending: "pending", Composed: "composed", Sent: "sent", Failed: "failed"}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}

func TestDispatch_HeldLinksStayUnnotified(t *testing.T) {
	s := openTestStore(t)
	subs := seed(t, s, []string{"a@example.com", "b@example.com"}, "1", "2")

	tr := &fakeTransport{}
	held := []store.Link{
		{ApartmentID: "1", SubscriptionID: subs[0].ID},
		{ApartmentID: "2", SubscriptionID: subs[0].ID},
		{ApartmentID: "2", SubscriptionID: subs[1].ID},
	}
	report, err := NewDispatcher(s, tr, testOptions()).Dispatch(context.Background(), held)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(report.Outcomes) != 1 || report.Outcomes[0].Email != "b@example.com" || report.Outcomes[0].Apartments != 1 {
		t.Fatalf("outcomes = %+v, want one digest for b with apartment 1", report.Outcomes)
	}
	if got := unnotifiedEmails(t, s); got["a@example.com"] != 2 || got["b@example.com"] != 1 {
		t.Fatalf("unnotified after dispatch = %v, want a:2 b:1", got)
	}

	if _, err := NewDispatcher(s, tr, testOptions()).Dispatch(context.Background(), nil); err != nil {
		t.Fatalf("Dispatch (next run): %v", err)
	}
	if got := unnotifiedEmails(t, s); len(got) != 0 {
		t.Fatalf("unnotified after next run = %v, want none", got)
	}
}
