package db

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/DominikKuenkele/sgs-housing-bot/internal/pathutil"
)

type Config struct {
	Driver      string
	DSN         string
	AutoMigrate bool

	Pool   PoolConfig
	SQLite SQLiteConfig
}

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLiteConfig holds per-connection pragmas. Foreign keys are not optional:
// cascade deletes of subscriptions and apartments rely on them.
type SQLiteConfig struct {
	BusyTimeoutMs int
	WAL           bool
}

func DefaultConfig() Config {
	return Config{
		Driver:      "sqlite",
		AutoMigrate: true,
		Pool: PoolConfig{
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		},
		SQLite: SQLiteConfig{
			BusyTimeoutMs: 5000,
			WAL:           true,
		},
	}
}

// ResolveSQLiteDSN turns a plain path (or "file:" URI) into a DSN that
// enables foreign keys on every connection the pool opens.
func ResolveSQLiteDSN(dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", fmt.Errorf("missing sqlite dsn")
	}
	if dsn == ":memory:" {
		return "file::memory:?_pragma=foreign_keys(1)", nil
	}

	path, query, _ := strings.Cut(dsn, "?")
	if !strings.HasPrefix(path, "file:") {
		path = filepath.Clean(pathutil.ExpandHomePath(path))
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return "", fmt.Errorf("invalid sqlite dsn query %q: %w", query, err)
	}
	hasFK := false
	for _, p := range values["_pragma"] {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(p)), "foreign_keys") {
			hasFK = true
		}
	}
	if !hasFK {
		values.Add("_pragma", "foreign_keys(1)")
	}
	return path + "?" + values.Encode(), nil
}
