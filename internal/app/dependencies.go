// Package app holds startup wiring shared by the api and worker binaries.
package app

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// NewLimiterStore wires a rate limiter store backed by Redis.
func NewLimiterStore(rdb *redis.Client) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "ratelimit"})
}

// NewWriteLimiter builds middleware throttling write endpoints per client IP.
// The format follows ulule's "<count>-<period>" convention, e.g. "120-M".
func NewWriteLimiter(store limiter.Store, format string) (func(http.Handler) http.Handler, error) {
	rate, err := limiter.NewRateFromFormatted(format)
	if err != nil {
		return nil, fmt.Errorf("app: parse rate %q: %w", format, err)
	}
	mw := limiterstdlib.NewMiddleware(limiter.New(store, rate))
	return mw.Handler, nil
}

// RunMigrations applies pending schema migrations from sourcePath at startup.
func RunMigrations(databaseURL, sourcePath string) error {
	url := databaseURL
	if strings.HasPrefix(url, "postgres://") {
		url = "pgx5://" + strings.TrimPrefix(url, "postgres://")
	} else if strings.HasPrefix(url, "postgresql://") {
		url = "pgx5://" + strings.TrimPrefix(url, "postgresql://")
	}
	m, err := migrate.New("file://"+sourcePath, url)
	if err != nil {
		return fmt.Errorf("app: open migrations: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("app: apply migrations: %w", err)
	}
	return nil
}
