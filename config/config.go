package config

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Keys of the dynamic configuration values the airlock consumes.
const (
	// KeyMalwareScanningEnabled gates whether submitted data goes through a
	// malware scan before review. A scan verdict arriving while this is
	// disabled is a deployment contradiction and is rejected outright.
	KeyMalwareScanningEnabled = "airlock.malware_scanning_enabled"
)

// Service provides access to dynamic configuration values stored in the
// system_config table
type Service struct {
	db    *sql.DB
	mu    sync.RWMutex
	cache map[string]cachedEntry
}

type cachedEntry struct {
	value     string
	expiresAt time.Time
}

const defaultTTL = time.Minute

func New(db *sql.DB) *Service {
	return &Service{db: db, cache: make(map[string]cachedEntry)}
}

// GetString returns a string config value. Environment variable overrides DB values when present.
// The env var name is derived from key by uppercasing and replacing dots with underscores.
func (s *Service) GetString(ctx context.Context, key string, defaultValue string) (string, error) {
	if v, ok := s.envOverride(key); ok {
		return v, nil
	}

	if v, ok := s.getFromCache(key); ok {
		return v, nil
	}

	const q = `SELECT value FROM system_config WHERE key = $1 LIMIT 1`

	var v string

	err := s.db.QueryRowContext(ctx, q, key).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return defaultValue, nil
		}

		return "", err
	}

	s.putInCache(key, v)

	return v, nil
}

// GetBool returns a boolean config value using the same resolution order as
// GetString. Unparseable stored values fall back to the default.
func (s *Service) GetBool(ctx context.Context, key string, defaultValue bool) (bool, error) {
	v, err := s.GetString(ctx, key, strconv.FormatBool(defaultValue))
	if err != nil {
		return false, err
	}

	parsed, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return defaultValue, nil
	}

	return parsed, nil
}

// MalwareScanningEnabled reports whether the deployment performs malware
// scanning on submitted data. Defaults to enabled.
func (s *Service) MalwareScanningEnabled(ctx context.Context) (bool, error) {
	return s.GetBool(ctx, KeyMalwareScanningEnabled, true)
}

func (s *Service) envOverride(key string) (string, bool) {
	name := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))

	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return "", false
	}

	return v, true
}

func (s *Service) getFromCache(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", false
	}

	return entry.value, true
}

func (s *Service) putInCache(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache[key] = cachedEntry{value: value, expiresAt: time.Now().Add(defaultTTL)}
}
