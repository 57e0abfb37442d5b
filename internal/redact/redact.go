// Package redact scrubs credentials from log output.
package redact

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
)

var (
	jwtLike    = regexp.MustCompile(`\b[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\b`)
	bearerLine = regexp.MustCompile(`(?i)\b(bearer|basic)\s+[A-Za-z0-9._~+/=-]{10,}`)
	simpleKV   = regexp.MustCompile(`(?i)\b([A-Za-z0-9_-]{1,32})(\s*[:=]\s*)([A-Za-z0-9._~%-]{8,})`)
)

// Redactor replaces known secret values and credential-shaped substrings.
// Secrets can be added after construction; loggers built earlier see them.
type Redactor struct {
	mu     sync.RWMutex
	values []string
}

func New(values ...string) *Redactor {
	r := &Redactor{}
	r.Add(values...)
	return r
}

// Add registers literal secret values. Values shorter than four bytes are
// ignored so that ports and the like survive.
func (r *Redactor) Add(values ...string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range values {
		v = strings.TrimSpace(v)
		if len(v) < 4 {
			continue
		}
		r.values = append(r.values, v)
	}
	// Longest first so a secret containing another is replaced whole.
	sort.Slice(r.values, func(i, j int) bool { return len(r.values[i]) > len(r.values[j]) })
}

func (r *Redactor) String(s string) string {
	if r == nil || strings.TrimSpace(s) == "" {
		return s
	}
	r.mu.RLock()
	for _, v := range r.values {
		s = strings.ReplaceAll(s, v, "[redacted]")
	}
	r.mu.RUnlock()

	s = jwtLike.ReplaceAllString(s, "[redacted_jwt]")
	s = bearerLine.ReplaceAllString(s, "$1 [redacted]")
	return simpleKV.ReplaceAllStringFunc(s, func(m string) string {
		sub := simpleKV.FindStringSubmatch(m)
		if len(sub) != 4 || !sensitiveKey(sub[1]) {
			return m
		}
		return sub[1] + sub[2] + "[redacted]"
	})
}

func sensitiveKey(key string) bool {
	n := strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(strings.TrimSpace(key)))
	switch {
	case n == "key", n == "signature":
		return true
	case strings.Contains(n, "apikey"),
		strings.Contains(n, "authorization"),
		strings.Contains(n, "token"),
		strings.Contains(n, "secret"),
		strings.Contains(n, "password"):
		return true
	}
	return false
}

// Handler redacts the message and every string or error attribute before
// passing the record on.
type Handler struct {
	next slog.Handler
	r    *Redactor
}

func NewHandler(next slog.Handler, r *Redactor) *Handler {
	return &Handler{next: next, r: r}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, h.r.String(rec.Message), rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.attr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = h.attr(a)
	}
	return &Handler{next: h.next.WithAttrs(clean), r: h.r}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name), r: h.r}
}

func (h *Handler) attr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, h.r.String(v.String()))
	case slog.KindGroup:
		group := v.Group()
		clean := make([]any, len(group))
		for i, g := range group {
			clean[i] = h.attr(g)
		}
		return slog.Group(a.Key, clean...)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, h.r.String(err.Error()))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}
