package config

import (
	"log"
	"strconv"
	"time"
)

type AuthConfig interface {
	GetAccessTokenSecret() string
	GetBcryptCost() int
	GetRefreshSecretLength() int
	GetDefaultAccessTokenTTL() time.Duration
	GetDefaultRefreshTokenTTL() time.Duration
	GetStoreTimeout() time.Duration
}

type Auth struct{}

var _ AuthConfig = Auth{}

// GetAccessTokenSecret returns the HMAC secret used to sign access tokens.
// The service cannot run without it.
func (Auth) GetAccessTokenSecret() string {
	return mustEnv("JWT_ACCESS_SECRET")
}

func (Auth) GetBcryptCost() int {
	return intEnv("BCRYPT_COST", 12)
}

// GetRefreshSecretLength returns the number of random bytes in a raw
// refresh secret (64 bytes = 128 hex characters).
func (Auth) GetRefreshSecretLength() int {
	return intEnv("REFRESH_SECRET_LENGTH", 64)
}

func (Auth) GetDefaultAccessTokenTTL() time.Duration {
	return ttlEnv("ACCESS_TOKEN_TTL", 10*time.Minute)
}

func (Auth) GetDefaultRefreshTokenTTL() time.Duration {
	return ttlEnv("REFRESH_TOKEN_TTL", 30*24*time.Hour)
}

// GetStoreTimeout bounds every persistence call made by the core.
func (Auth) GetStoreTimeout() time.Duration {
	return ttlEnv("STORE_TIMEOUT", 5*time.Second)
}

func mustEnv(key string) string {
	v := GetEnv(key, "")
	if v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func intEnv(key string, defaultValue int) int {
	s := GetEnv(key, "")
	if s == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

func ttlEnv(key string, defaultValue time.Duration) time.Duration {
	s := GetEnv(key, "")
	if s == "" {
		return defaultValue
	}
	d, err := ParseTTL(s)
	if err != nil {
		log.Fatalf("invalid duration for %s: %q", key, s)
	}
	return d
}
