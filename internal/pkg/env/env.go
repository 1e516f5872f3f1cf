package env

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/joho/godotenv"
)

var Env map[string]string

func GetEnv(key, def string) string {
	// First check our loaded Env map
	if val, ok := Env[key]; ok {
		return val
	}
	// Fallback to OS environment variables (for Docker/tests)
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// GetInt parses an integer variable and falls back to def on absence or parse errors.
func GetInt(key string, def int) int {
	raw := strings.TrimSpace(GetEnv(key, ""))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Warnf("[Env] %s=%q is not an integer, using %d", key, raw, def)
		return def
	}
	return v
}

// GetDuration parses a Go duration string ("15m", "72h").
func GetDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(GetEnv(key, ""))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Warnf("[Env] %s=%q is not a duration, using %s", key, raw, def)
		return def
	}
	return d
}

// GetList splits a comma separated variable, dropping empty items.
func GetList(key string) []string {
	raw := GetEnv(key, "")
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func SetupEnvFile() {
	// Look for .env file in project root
	envFiles := []string{
		".env",          // Current directory
		"../../.env",    // From cmd/ledgerfox to project root
		"../../../.env", // Fallback for deeper nesting
	}

	var err error
	for _, envFile := range envFiles {
		Env, err = godotenv.Read(envFile)
		if err == nil {
			return
		}
	}

	// Containers inject configuration through the process environment.
	Env = map[string]string{}
	log.Warn("[Env] No .env file found, using process environment only")
}

func AppEnv() string {
	return strings.ToLower(strings.TrimSpace(GetEnv("APP_ENV", "prod")))
}

func IsDev() bool {
	return AppEnv() == "dev"
}

// IsSandbox reports whether the runtime is a non-production one (dev, test, sandbox).
func IsSandbox() bool {
	switch AppEnv() {
	case "dev", "test", "sandbox":
		return true
	default:
		return false
	}
}
