// Package security holds operator grants, the IP blacklist and user/IP bans,
// persisted as JSON.
package security

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/phiralab/phira-mp-server/internal/v1/logging"
)

// BanType discriminates ban targets.
type BanType string

const (
	BanUser BanType = "id"
	BanIP   BanType = "ip"
)

// BanRecord is one active or expired ban. A nil ExpireAt means permanent.
type BanRecord struct {
	Type      BanType    `json:"type"`
	Target    string     `json:"target"`
	ExpireAt  *time.Time `json:"expire_at,omitempty"`
	Reason    string     `json:"reason"`
	CreatedAt time.Time  `json:"created_at"`
}

func (b BanRecord) expired(now time.Time) bool {
	return b.ExpireAt != nil && !b.ExpireAt.After(now)
}

// fileSchema is the on-disk layout. Timestamps are unix-seconds numbers so
// security.json stays interchangeable with the rest of the tooling.
type fileSchema struct {
	Ops          []string            `json:"ops"`
	BlacklistIPs map[string]*float64 `json:"blacklist_ips"`
	Bans         []banJSON           `json:"bans"`
}

type banJSON struct {
	Type      BanType  `json:"type"`
	Target    string   `json:"target"`
	ExpireAt  *float64 `json:"expire_at,omitempty"`
	Reason    string   `json:"reason"`
	CreatedAt float64  `json:"created_at"`
}

func toUnix(t *time.Time) *float64 {
	if t == nil {
		return nil
	}
	v := float64(t.UnixMilli()) / 1e3
	return &v
}

func fromUnix(v *float64) *time.Time {
	if v == nil {
		return nil
	}
	t := time.UnixMilli(int64(*v * 1e3))
	return &t
}

// Store is the in-memory security state. Expired entries are purged lazily
// on every read; every mutation is saved back to disk under the lock.
type Store struct {
	mu   sync.Mutex
	path string

	ops       map[string]struct{}
	blacklist map[string]*time.Time
	bans      []BanRecord

	now func() time.Time
}

// Load reads the store from path. A missing file yields an empty store.
func Load(path string) (*Store, error) {
	s := &Store{
		path:      path,
		ops:       make(map[string]struct{}),
		blacklist: make(map[string]*time.Time),
		now:       time.Now,
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var file fileSchema
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for _, op := range file.Ops {
		s.ops[op] = struct{}{}
	}
	for ip, exp := range file.BlacklistIPs {
		s.blacklist[ip] = fromUnix(exp)
	}
	for _, b := range file.Bans {
		s.bans = append(s.bans, BanRecord{
			Type:      b.Type,
			Target:    b.Target,
			ExpireAt:  fromUnix(b.ExpireAt),
			Reason:    b.Reason,
			CreatedAt: time.UnixMilli(int64(b.CreatedAt * 1e3)),
		})
	}
	return s, nil
}

// save writes the store to disk. Callers hold the lock.
func (s *Store) save() {
	file := fileSchema{
		Ops:          make([]string, 0, len(s.ops)),
		BlacklistIPs: make(map[string]*float64, len(s.blacklist)),
		Bans:         make([]banJSON, 0, len(s.bans)),
	}
	for op := range s.ops {
		file.Ops = append(file.Ops, op)
	}
	for ip, exp := range s.blacklist {
		file.BlacklistIPs[ip] = toUnix(exp)
	}
	for _, b := range s.bans {
		file.Bans = append(file.Bans, banJSON{
			Type:      b.Type,
			Target:    b.Target,
			ExpireAt:  toUnix(b.ExpireAt),
			Reason:    b.Reason,
			CreatedAt: float64(b.CreatedAt.UnixMilli()) / 1e3,
		})
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		logging.Error(context.Background(), "marshalling security store", zap.Error(err))
		return
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		logging.Error(context.Background(), "saving security store", zap.Error(err))
	}
}

// purge drops expired bans and blacklist entries. Callers hold the lock.
func (s *Store) purge() {
	now := s.now()
	kept := s.bans[:0]
	for _, b := range s.bans {
		if !b.expired(now) {
			kept = append(kept, b)
		}
	}
	s.bans = kept
	for ip, expireAt := range s.blacklist {
		if expireAt != nil && !expireAt.After(now) {
			delete(s.blacklist, ip)
		}
	}
}

// AddBan records a ban. ttl of zero means permanent. Replaces an existing
// ban on the same type and target.
func (s *Store) AddBan(banType BanType, target string, ttl time.Duration, reason string) BanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge()

	rec := BanRecord{
		Type:      banType,
		Target:    target,
		Reason:    reason,
		CreatedAt: s.now(),
	}
	if ttl > 0 {
		expireAt := s.now().Add(ttl)
		rec.ExpireAt = &expireAt
	}

	kept := s.bans[:0]
	for _, b := range s.bans {
		if b.Type != banType || b.Target != target {
			kept = append(kept, b)
		}
	}
	s.bans = append(kept, rec)
	s.save()
	return rec
}

// RemoveBan lifts a ban. Reports whether one existed.
func (s *Store) RemoveBan(banType BanType, target string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge()

	kept := s.bans[:0]
	removed := false
	for _, b := range s.bans {
		if b.Type == banType && b.Target == target {
			removed = true
			continue
		}
		kept = append(kept, b)
	}
	s.bans = kept
	if removed {
		s.save()
	}
	return removed
}

// IsBanned returns the active ban for a target, if any.
func (s *Store) IsBanned(banType BanType, target string) (*BanRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge()

	for _, b := range s.bans {
		if b.Type == banType && b.Target == target {
			rec := b
			return &rec, true
		}
	}
	return nil, false
}

// ListBans returns all active bans.
func (s *Store) ListBans() []BanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge()
	return append([]BanRecord(nil), s.bans...)
}

// AddBlacklistIP blocks an IP at accept time. ttl of zero means permanent.
func (s *Store) AddBlacklistIP(ip string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge()

	var expireAt *time.Time
	if ttl > 0 {
		t := s.now().Add(ttl)
		expireAt = &t
	}
	s.blacklist[ip] = expireAt
	s.save()
}

func (s *Store) RemoveBlacklistIP(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge()

	if _, ok := s.blacklist[ip]; !ok {
		return false
	}
	delete(s.blacklist, ip)
	s.save()
	return true
}

func (s *Store) IsBlacklistedIP(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge()
	_, ok := s.blacklist[ip]
	return ok
}

// ListBlacklistIPs returns the active blacklist entries.
func (s *Store) ListBlacklistIPs() map[string]*time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge()

	out := make(map[string]*time.Time, len(s.blacklist))
	for ip, exp := range s.blacklist {
		out[ip] = exp
	}
	return out
}

// IPBlocked reports whether an IP must be refused at accept time, either by
// blacklist or by an active ip-type ban. Implements the transport gate.
func (s *Store) IPBlocked(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge()

	if _, ok := s.blacklist[ip]; ok {
		return true
	}
	for _, b := range s.bans {
		if b.Type == BanIP && b.Target == ip {
			return true
		}
	}
	return false
}

// Op grants operator status.
func (s *Store) Op(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops[id] = struct{}{}
	s.save()
}

// Deop revokes operator status. Reports whether the id was an operator.
func (s *Store) Deop(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ops[id]; !ok {
		return false
	}
	delete(s.ops, id)
	s.save()
	return true
}

func (s *Store) IsOp(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ops[id]
	return ok
}

// Ops lists all operator ids.
func (s *Store) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.ops))
	for op := range s.ops {
		out = append(out, op)
	}
	return out
}
