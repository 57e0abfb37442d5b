package main

import (
	"path/filepath"
	"strings"

	"github.com/DominikKuenkele/sgs-housing-bot/db"
	"github.com/DominikKuenkele/sgs-housing-bot/internal/pathutil"
	"github.com/DominikKuenkele/sgs-housing-bot/travel/vasttrafik"
	"github.com/spf13/viper"
)

const databaseFileName = "database.db"

func dataRootFromViper() string {
	return pathutil.ExpandHomePath(strings.TrimSpace(viper.GetString("data_root")))
}

func dbConfigFromViper() db.Config {
	cfg := db.DefaultConfig()

	cfg.Driver = viper.GetString("db.driver")
	dsn := strings.TrimSpace(viper.GetString("db.dsn"))
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		cfg.DSN = dsn
	} else {
		cfg.DSN = pathutil.UnderRoot(dataRootFromViper(), dsn, databaseFileName)
	}
	cfg.AutoMigrate = viper.GetBool("db.automigrate")

	cfg.Pool.MaxOpenConns = viper.GetInt("db.pool.max_open_conns")
	cfg.Pool.MaxIdleConns = viper.GetInt("db.pool.max_idle_conns")
	cfg.Pool.ConnMaxLifetime = viper.GetDuration("db.pool.conn_max_lifetime")
	if cfg.Pool.ConnMaxLifetime < 0 {
		cfg.Pool.ConnMaxLifetime = 0
	}

	cfg.SQLite.BusyTimeoutMs = viper.GetInt("db.sqlite.busy_timeout_ms")
	cfg.SQLite.WAL = viper.GetBool("db.sqlite.wal")

	// One writer per database file; more connections only add lock contention.
	if cfg.Pool.MaxOpenConns <= 0 {
		cfg.Pool.MaxOpenConns = 1
	}
	if cfg.Pool.MaxIdleConns <= 0 {
		cfg.Pool.MaxIdleConns = 1
	}
	if cfg.SQLite.BusyTimeoutMs <= 0 {
		cfg.SQLite.BusyTimeoutMs = 5000
	}

	return cfg
}

func tokenPathFromViper() string {
	return filepath.Join(dataRootFromViper(), vasttrafik.TokenFileName)
}
