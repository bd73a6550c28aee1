// Package utils provides shared helpers used across ledgerlight.
package utils

import (
	"os"
	"strconv"
	"sync"
)

// envCache stores previously fetched non-empty environment variable values so
// repeat lookups avoid the relatively expensive syscall interaction.
var envCache sync.Map // map[string]string

func getEnv(key string) (string, bool) {
	if v, ok := envCache.Load(key); ok {
		return v.(string), true
	}
	if v := os.Getenv(key); v != "" {
		envCache.Store(key, v)
		return v, true
	}
	return "", false
}

func clearEnvCache(key string) {
	envCache.Delete(key)
}

// EnvOrDefault returns the value of the environment variable identified by
// key, or fallback if it is unset or empty. Successful lookups are served
// from envCache on repeat calls for the same key.
func EnvOrDefault(key, fallback string) string {
	if v, ok := getEnv(key); ok {
		return v
	}
	return fallback
}

// EnvOrDefaultInt returns the integer value of key or fallback if it is
// unset, empty, or cannot be parsed as an integer. A value that fails to
// parse is evicted from envCache so a corrected environment variable is
// picked up on the next call rather than the failure being cached.
func EnvOrDefaultInt(key string, fallback int) int {
	if v, ok := getEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		clearEnvCache(key)
	}
	return fallback
}

// EnvOrDefaultUint64 returns the uint64 value of key or fallback if it is
// unset, empty, or cannot be parsed as a uint64. A value that fails to
// parse is evicted from envCache, same as EnvOrDefaultInt.
func EnvOrDefaultUint64(key string, fallback uint64) uint64 {
	if v, ok := getEnv(key); ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
		clearEnvCache(key)
	}
	return fallback
}
