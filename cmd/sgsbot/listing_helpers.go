package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/DominikKuenkele/sgs-housing-bot/internal/pathutil"
	"github.com/DominikKuenkele/sgs-housing-bot/listing"
	"github.com/spf13/viper"
)

func sourceFromViper(log *slog.Logger) (listing.Source, error) {
	switch strings.ToLower(strings.TrimSpace(viper.GetString("listing.source"))) {
	case "", "sgs":
		return &listing.BrowserSource{
			URL:       strings.TrimSpace(viper.GetString("listing.url")),
			UserAgent: strings.TrimSpace(viper.GetString("listing.user_agent")),
			ExecPath:  pathutil.ExpandHomePath(viper.GetString("listing.chrome_path")),
			Timeout:   viper.GetDuration("listing.render_timeout"),
			Logger:    log,
		}, nil
	case "sgs-http":
		return &listing.SGSSource{
			URL:       strings.TrimSpace(viper.GetString("listing.url")),
			UserAgent: strings.TrimSpace(viper.GetString("listing.user_agent")),
			Timeout:   viper.GetDuration("listing.timeout"),
			Logger:    log,
		}, nil
	case "csv":
		path := pathutil.ExpandHomePath(viper.GetString("listing.csv_path"))
		if path == "" {
			return nil, fmt.Errorf("listing.csv_path is required for listing.source=csv")
		}
		return &listing.CSVSource{Path: path}, nil
	default:
		return nil, fmt.Errorf("unsupported listing.source: %s", viper.GetString("listing.source"))
	}
}
