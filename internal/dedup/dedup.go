// Package dedup suppresses repeated opportunities with two checks: an exact
// content fingerprint that never expires and a per-company cooldown window.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
)

const (
	DefaultCooldown = 7 * 24 * time.Hour
	DefaultShards   = 32
)

// Reasons reported on duplicate verdicts.
const (
	ReasonFingerprint   = "fingerprint"
	ReasonCompanyWindow = "company_window"
)

// Store persists fingerprints and company windows.
type Store interface {
	HasFingerprint(ctx context.Context, fp string) (bool, error)
	LastSeen(ctx context.Context, companyKey string) (time.Time, bool, error)
	// Record stores the fingerprint and moves the company window to at.
	Record(ctx context.Context, fp, companyKey string, at time.Time) error
	// PruneWindows deletes windows last seen before the cutoff.
	PruneWindows(ctx context.Context, before time.Time) (int, error)
}

// Identity is the projection of a post that dedup compares.
type Identity struct {
	CompanyKey string
	Topic      string
	Kind       lead.Kind
}

// IdentityFor builds the projection. Without a company key the text stands in
// for the topic so unrelated posts with unknown companies do not collide.
func IdentityFor(companyKey, role string, kind lead.Kind, text string) Identity {
	topic := role
	if strings.TrimSpace(companyKey) == "" {
		topic = text
	}
	return Identity{CompanyKey: companyKey, Topic: topic, Kind: kind}
}

// Fingerprint hashes the case- and whitespace-collapsed projection.
func (id Identity) Fingerprint() string {
	parts := []string{collapse(id.CompanyKey), collapse(id.Topic), collapse(string(id.Kind))}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func collapse(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Verdict is the outcome of a dedup check.
type Verdict struct {
	Duplicate   bool
	Reason      string
	Fingerprint string
	LastSeenAt  time.Time
}

// Engine linearizes checks and records per company key. Keys are partitioned
// over a fixed set of shards, each guarded by its own mutex.
type Engine struct {
	store    Store
	cooldown time.Duration
	shards   []sync.Mutex
	logger   *zap.Logger
}

// New returns an engine. Zero values select the defaults.
func New(store Store, cooldown time.Duration, shards int, logger *zap.Logger) *Engine {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if shards <= 0 {
		shards = DefaultShards
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, cooldown: cooldown, shards: make([]sync.Mutex, shards), logger: logger}
}

// Cooldown returns the configured company window length.
func (e *Engine) Cooldown() time.Duration { return e.cooldown }

func (e *Engine) shard(id Identity) *sync.Mutex {
	key := id.CompanyKey
	if key == "" {
		key = id.Fingerprint()
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return &e.shards[h.Sum32()%uint32(len(e.shards))]
}

// IsDuplicate evaluates both checks without recording anything.
func (e *Engine) IsDuplicate(ctx context.Context, id Identity, at time.Time) (Verdict, error) {
	mu := e.shard(id)
	mu.Lock()
	defer mu.Unlock()
	return e.check(ctx, id, at)
}

// Record stores the identity as seen at the given time.
func (e *Engine) Record(ctx context.Context, id Identity, at time.Time) error {
	mu := e.shard(id)
	mu.Lock()
	defer mu.Unlock()
	return e.store.Record(ctx, id.Fingerprint(), id.CompanyKey, at)
}

// CheckAndRecord evaluates both checks and, only for a unique verdict, records
// the identity while still holding the shard lock.
func (e *Engine) CheckAndRecord(ctx context.Context, id Identity, at time.Time) (Verdict, error) {
	mu := e.shard(id)
	mu.Lock()
	defer mu.Unlock()

	v, err := e.check(ctx, id, at)
	if err != nil || v.Duplicate {
		return v, err
	}
	if err := e.store.Record(ctx, v.Fingerprint, id.CompanyKey, at); err != nil {
		return v, fmt.Errorf("recording %s: %w", id.CompanyKey, err)
	}
	return v, nil
}

func (e *Engine) check(ctx context.Context, id Identity, at time.Time) (Verdict, error) {
	v := Verdict{Fingerprint: id.Fingerprint()}

	seen, err := e.store.HasFingerprint(ctx, v.Fingerprint)
	if err != nil {
		return v, fmt.Errorf("checking fingerprint: %w", err)
	}
	if seen {
		v.Duplicate = true
		v.Reason = ReasonFingerprint
		return v, nil
	}

	if id.CompanyKey == "" {
		return v, nil
	}

	last, ok, err := e.store.LastSeen(ctx, id.CompanyKey)
	if err != nil {
		return v, fmt.Errorf("checking company window: %w", err)
	}
	if ok && at.Sub(last) < e.cooldown {
		v.Duplicate = true
		v.Reason = ReasonCompanyWindow
		v.LastSeenAt = last
	}
	return v, nil
}

// Prune drops company windows that can no longer flag anything.
func (e *Engine) Prune(ctx context.Context, now time.Time) error {
	n, err := e.store.PruneWindows(ctx, now.Add(-e.cooldown))
	if err != nil {
		return fmt.Errorf("pruning company windows: %w", err)
	}
	if n > 0 {
		e.logger.Debug("pruned company windows", zap.Int("count", n))
	}
	return nil
}
