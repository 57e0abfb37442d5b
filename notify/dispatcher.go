package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DominikKuenkele/sgs-housing-bot/internal/strutil"
	"github.com/DominikKuenkele/sgs-housing-bot/store"
)

var ErrSendFailed = errors.New("send failed")

const maxLoggedBody = 4096

// State of a digest within one dispatch.
type State int

const (
	Pending State = iota
	Composed
	Sent
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Composed:
		return "composed"
	case Sent:
		return "sent"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Store is the part of the persistent store the dispatcher needs.
type Store interface {
	FindUnnotified(ctx context.Context) ([]store.UnnotifiedRow, error)
	SetNotifiedLinks(ctx context.Context, links []store.Link, value bool) error
}

type Options struct {
	Sender  string
	Subject string
	// Attempts bounds transport calls per batch.
	Attempts int
	Backoff  time.Duration
	// BatchSize is the number of digests per transport call; 0 sends all
	// digests in one batch.
	BatchSize int
	// DryRun composes digests without marking or sending them.
	DryRun bool
	Now    func() time.Time
	Logger *slog.Logger
}

type Dispatcher struct {
	store     Store
	transport Transport
	opts      Options
	log       *slog.Logger
}

func NewDispatcher(st Store, tr Transport, opts Options) *Dispatcher {
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Subject == "" {
		opts.Subject = DefaultSubject
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{store: st, transport: tr, opts: opts, log: log}
}

// Outcome is the final state of one digest.
type Outcome struct {
	SubscriptionID uint
	Email          string
	Apartments     int
	Batch          int
	State          State
}

type Report struct {
	Outcomes []Outcome
}

func (r Report) Count(s State) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State == s {
			n++
		}
	}
	return n
}

type batch struct {
	digests  []Digest
	messages []Message
}

// Dispatch sends one digest per subscription with unnotified links. Each
// batch is marked notified before the send and reverted when every attempt
// failed, so a failed batch is retried by the next run and a delivered one
// is never sent again. A failed batch does not stop later batches.
//
// Links in held are left out of this run and keep notified=false.
func (d *Dispatcher) Dispatch(ctx context.Context, held []store.Link) (Report, error) {
	var report Report
	if d == nil || d.store == nil {
		return report, fmt.Errorf("dispatcher is not configured")
	}
	if d.transport == nil && !d.opts.DryRun {
		return report, fmt.Errorf("dispatcher has no mail transport")
	}

	rows, err := d.store.FindUnnotified(ctx)
	if err != nil {
		return report, err
	}
	if len(held) > 0 {
		rows = withoutLinks(rows, held)
		d.log.Info("digest_links_held", "links", len(held))
	}
	digests := Group(rows)
	if len(digests) == 0 {
		d.log.Info("no_new_apartments")
		return report, nil
	}

	now := d.opts.Now()
	batches := d.split(digests, now)
	d.log.Info("digests_composed", "digests", len(digests), "batches", len(batches), "dry_run", d.opts.DryRun)

	var errs []error
	for i, b := range batches {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		state, err := d.dispatchBatch(ctx, i, b)
		for _, dg := range b.digests {
			report.Outcomes = append(report.Outcomes, Outcome{
				SubscriptionID: dg.Subscription.ID,
				Email:          dg.Subscription.Email,
				Apartments:     len(dg.Entries),
				Batch:          i,
				State:          state,
			})
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return report, errors.Join(errs...)
}

func (d *Dispatcher) split(digests []Digest, now time.Time) []batch {
	size := d.opts.BatchSize
	if size <= 0 || size > len(digests) {
		size = len(digests)
	}
	var out []batch
	for start := 0; start < len(digests); start += size {
		end := min(start+size, len(digests))
		b := batch{digests: digests[start:end]}
		for _, dg := range b.digests {
			b.messages = append(b.messages, Compose(dg, d.opts.Sender, d.opts.Subject, now))
		}
		out = append(out, b)
	}
	return out
}

func (d *Dispatcher) dispatchBatch(ctx context.Context, idx int, b batch) (State, error) {
	var links []store.Link
	for _, dg := range b.digests {
		links = append(links, dg.Links()...)
		d.log.Info("digest_composed", "batch", idx, "email", dg.Subscription.Email, "apartments", len(dg.Entries))
	}
	if d.opts.DryRun {
		for _, m := range b.messages {
			d.log.Info("digest_dry_run", "to", m.To, "subject", m.Subject, "body", strutil.Ellipsize(m.Body, maxLoggedBody))
		}
		return Composed, nil
	}

	if err := d.store.SetNotifiedLinks(ctx, links, true); err != nil {
		return Composed, fmt.Errorf("mark batch %d notified: %w", idx, err)
	}

	sendErr := d.send(ctx, idx, b.messages)
	if sendErr == nil {
		d.log.Info("digest_batch_sent", "batch", idx, "messages", len(b.messages), "links", len(links))
		return Sent, nil
	}

	d.log.Error("digest_send_failed", "batch", idx, "messages", len(b.messages), "error", sendErr.Error())
	err := fmt.Errorf("batch %d: %w: %w", idx, ErrSendFailed, sendErr)
	if rerr := d.store.SetNotifiedLinks(context.WithoutCancel(ctx), links, false); rerr != nil {
		d.log.Error("digest_revert_failed", "batch", idx, "error", rerr.Error())
		err = errors.Join(err, fmt.Errorf("revert batch %d: %w", idx, rerr))
	}
	return Failed, err
}

func (d *Dispatcher) send(ctx context.Context, idx int, msgs []Message) error {
	var err error
	for attempt := 1; attempt <= d.opts.Attempts; attempt++ {
		if err = d.transport.Send(ctx, msgs); err == nil {
			return nil
		}
		if ctx.Err() != nil || attempt == d.opts.Attempts {
			break
		}
		d.log.Warn("digest_send_retry", "batch", idx, "attempt", attempt, "error", err.Error())
		if d.opts.Backoff > 0 {
			t := time.NewTimer(d.opts.Backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return errors.Join(err, ctx.Err())
			case <-t.C:
			}
		}
	}
	return err
}

func withoutLinks(rows []store.UnnotifiedRow, held []store.Link) []store.UnnotifiedRow {
	skip := make(map[store.Link]struct{}, len(held))
	for _, l := range held {
		skip[l] = struct{}{}
	}
	out := rows[:0:0]
	for _, r := range rows {
		if _, ok := skip[store.Link{ApartmentID: r.Apartment.ID, SubscriptionID: r.Subscription.ID}]; ok {
			continue
		}
		out = append(out, r)
	}
	return out
}
