package cache

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/LedgerFox/internal/pkg/env"
)

// LimiterDatabase is the Redis database holding rate limiter counters
// (locks and the client live in CACHE_DB).
const LimiterDatabase = 1

// NewFiberStorage returns a fiber.Storage on the configured Redis server,
// used by the limiter middleware.
func NewFiberStorage(database int) fiber.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	addr := Options().Addr
	if h, p, err := net.SplitHostPort(addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: database,
		Reset:    false,
	})
}
