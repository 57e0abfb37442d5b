package main

import (
	"time"

	"github.com/DominikKuenkele/sgs-housing-bot/listing"
	"github.com/DominikKuenkele/sgs-housing-bot/notify"
	"github.com/DominikKuenkele/sgs-housing-bot/travel/vasttrafik"
	"github.com/spf13/viper"
)

func setDefaults() {
	viper.SetDefault("data_root", "/var/lib/sgs-housing-bot")

	viper.SetDefault("db.driver", "sqlite")
	viper.SetDefault("db.dsn", "")
	viper.SetDefault("db.automigrate", true)
	viper.SetDefault("db.pool.max_open_conns", 1)
	viper.SetDefault("db.pool.max_idle_conns", 1)
	viper.SetDefault("db.pool.conn_max_lifetime", time.Duration(0))
	viper.SetDefault("db.sqlite.busy_timeout_ms", 5000)
	viper.SetDefault("db.sqlite.wal", true)

	viper.SetDefault("listing.source", "sgs")
	viper.SetDefault("listing.url", listing.DefaultSGSURL)
	viper.SetDefault("listing.csv_path", "")
	viper.SetDefault("listing.timeout", 30*time.Second)
	viper.SetDefault("listing.user_agent", "sgs-housing-bot/1.0")
	viper.SetDefault("listing.chrome_path", "")
	viper.SetDefault("listing.render_timeout", 45*time.Second)

	viper.SetDefault("travel.provider", "vasttrafik")
	viper.SetDefault("travel.timeout", 10*time.Second)
	viper.SetDefault("travel.attempts", 3)
	viper.SetDefault("travel.backoff", 2*time.Second)
	viper.SetDefault("travel.workers", 4)
	viper.SetDefault("travel.rate_per_second", 5.0)
	viper.SetDefault("travel.timezone", "Europe/Stockholm")
	viper.SetDefault("travel.reference_hour", 10)
	viper.SetDefault("travel.vasttrafik.base_url", vasttrafik.DefaultBaseURL)
	viper.SetDefault("travel.vasttrafik.token_url", vasttrafik.DefaultTokenURL)
	viper.SetDefault("travel.vasttrafik.scope", vasttrafik.DefaultScope)
	viper.SetDefault("travel.googlemaps.region", "se")
	viper.SetDefault("travel.googlemaps.language", "sv")

	viper.SetDefault("mail.host", "")
	viper.SetDefault("mail.port", 0)
	viper.SetDefault("mail.ssl", true)
	viper.SetDefault("mail.sender", "")
	viper.SetDefault("mail.subject", notify.DefaultSubject)
	viper.SetDefault("mail.attempts", 3)
	viper.SetDefault("mail.backoff", 5*time.Second)
	viper.SetDefault("mail.timeout", 30*time.Second)
	viper.SetDefault("mail.batch_size", 0)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}
