package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/DominikKuenkele/sgs-housing-bot/internal/redact"
	"github.com/DominikKuenkele/sgs-housing-bot/secrets"
	"github.com/spf13/viper"
)

// loggerFromViper builds the process logger. Every record passes through r,
// so secrets added to r later are scrubbed too.
func loggerFromViper(w io.Writer, r *redact.Redactor) (*slog.Logger, error) {
	level := slog.LevelInfo
	if raw := strings.TrimSpace(viper.GetString("log.level")); raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			return nil, fmt.Errorf("invalid log.level %q", raw)
		}
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(strings.TrimSpace(viper.GetString("log.format"))) {
	case "", "text":
		return slog.New(redact.NewHandler(slog.NewTextHandler(w, opts), r)), nil
	case "json":
		return slog.New(redact.NewHandler(slog.NewJSONHandler(w, opts), r)), nil
	default:
		return nil, fmt.Errorf("invalid log.format %q (want text or json)", viper.GetString("log.format"))
	}
}

// redactingResolver registers resolved passwords and keys with the log
// redactor. Hosts and user names stay readable.
type redactingResolver struct {
	next secrets.Resolver
	r    *redact.Redactor
}

func (rr redactingResolver) Resolve(ctx context.Context, ref string) (string, error) {
	v, err := rr.next.Resolve(ctx, ref)
	if err == nil && (strings.HasSuffix(ref, "_PASSWORD") || strings.HasSuffix(ref, "_KEY")) {
		rr.r.Add(v)
	}
	return v, err
}
