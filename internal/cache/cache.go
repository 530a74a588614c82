// Package cache stores assembled feedback reports keyed by everything
// that determines their content.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/abhisek/radgrade/internal/clinical"
)

// DefaultTTL is how long a cached report stays valid.
const DefaultTTL = time.Hour

// Cache is a byte store with per-entry expiry.
type Cache interface {
	// Get returns the value and true on a hit. A miss is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// KeyParts are the inputs that fully determine a report.
type KeyParts struct {
	CaseID            string
	ReportText        string
	ImageRef          string
	ModelVersions     map[string]string
	VocabularyVersion string
	// GroundTruth is the case's reference set. Order does not matter.
	GroundTruth       []clinical.Finding
}

// Key hashes parts into a stable cache key. ReportText should already be
// normalized so that formatting-only differences share an entry.
func Key(parts KeyParts) string {
	h := sha256.New()
	write := func(s string) {
		fmt.Fprintf(h, "%d:%s|", len(s), s)
	}
	write(parts.CaseID)
	write(parts.ReportText)
	write(parts.ImageRef)
	write(parts.VocabularyVersion)

	roles := make([]string, 0, len(parts.ModelVersions))
	for r := range parts.ModelVersions {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	for _, r := range roles {
		write(r + "=" + parts.ModelVersions[r])
	}

	truth := make([]string, len(parts.GroundTruth))
	for i, f := range parts.GroundTruth {
		truth[i] = strings.Join([]string{f.CanonicalID, string(f.Polarity), f.BodyRegion, f.PathologyType}, "\x00")
	}
	sort.Strings(truth)
	write("truth=" + strconv.Itoa(len(truth)))
	for _, t := range truth {
		write(t)
	}
	return "report:" + hex.EncodeToString(h.Sum(nil))
}

// Memory is an in-process cache. Expired entries are dropped lazily on
// access and by Sweep.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// NewMemory returns a memory cache. ttl <= 0 uses DefaultTTL; now may be
// nil.
func NewMemory(ttl time.Duration, now func() time.Time) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Memory{ttl: ttl, now: now, entries: make(map[string]memoryEntry)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: append([]byte(nil), value...), expires: m.now().Add(m.ttl)}
	return nil
}

// Sweep removes expired entries and returns how many were dropped.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) Close() error { return nil }

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Noop) Set(context.Context, string, []byte) error { return nil }
func (Noop) Close() error { return nil }

// Config selects and tunes the cache.
type Config struct {
	Enabled  bool          `yaml:"enabled"`
	TTL      time.Duration `yaml:"ttl"`
	RedisURL string        `yaml:"redisURL"`
	Prefix   string        `yaml:"prefix"`
}

// DefaultConfig enables an in-memory cache with the default TTL.
func DefaultConfig() Config {
	return Config{Enabled: true, TTL: DefaultTTL, Prefix: "radgrade:"}
}

// New builds the configured cache.
func New(cfg Config) (Cache, error) {
	switch {
	case !cfg.Enabled:
		return Noop{}, nil
	case strings.TrimSpace(cfg.RedisURL) != "":
		return NewRedis(RedisOptions{URL: cfg.RedisURL, TTL: cfg.TTL, Prefix: cfg.Prefix})
	default:
		return NewMemory(cfg.TTL, nil), nil
	}
}
