package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/DominikKuenkele/sgs-housing-bot/notify"
	"github.com/DominikKuenkele/sgs-housing-bot/secrets"
	"github.com/spf13/viper"
)

// smtpConfigFromViper takes host and port from config and falls back to the
// SMTP_SERVER and SMTP_PORT secrets. SMTP_USER and SMTP_PASSWORD are
// required. A port left unset ends up as 465 in the transport.
func smtpConfigFromViper(ctx context.Context, sec secrets.Resolver) (notify.SMTPConfig, error) {
	cfg := notify.SMTPConfig{
		Host:    strings.TrimSpace(viper.GetString("mail.host")),
		Port:    viper.GetInt("mail.port"),
		SSL:     viper.GetBool("mail.ssl"),
		Timeout: viper.GetDuration("mail.timeout"),
	}
	if cfg.Host == "" {
		host, err := sec.Resolve(ctx, "SMTP_SERVER")
		if err != nil {
			return cfg, fmt.Errorf("mail.host: %w", err)
		}
		cfg.Host = host
	}
	port, ok, err := secrets.Optional(ctx, sec, "SMTP_PORT")
	if err != nil {
		return cfg, err
	}
	if ok && cfg.Port <= 0 {
		p, err := strconv.Atoi(strings.TrimSpace(port))
		if err != nil || p <= 0 {
			return cfg, fmt.Errorf("invalid SMTP_PORT %q", port)
		}
		cfg.Port = p
	}

	if cfg.Username, err = sec.Resolve(ctx, "SMTP_USER"); err != nil {
		return cfg, err
	}
	if cfg.Password, err = sec.Resolve(ctx, "SMTP_PASSWORD"); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func dispatcherOptionsFromViper(log *slog.Logger, smtpUser string, dryRun bool) notify.Options {
	sender := strings.TrimSpace(viper.GetString("mail.sender"))
	if sender == "" {
		sender = smtpUser
	}
	return notify.Options{
		Sender:    sender,
		Subject:   viper.GetString("mail.subject"),
		Attempts:  viper.GetInt("mail.attempts"),
		Backoff:   viper.GetDuration("mail.backoff"),
		BatchSize: viper.GetInt("mail.batch_size"),
		DryRun:    dryRun,
		Logger:    log,
	}
}
