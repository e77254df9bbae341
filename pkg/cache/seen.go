package cache

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/gofrs/flock"
	"github.com/oarkflow/json"
)

// SeenKey records when a message control id was first and last loaded.
type SeenKey struct {
	Key       string    `json:"key"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Count     int64     `json:"count"`
}

// Seen tracks control ids that were already loaded so replayed feeds are not
// stored twice. Keys older than ttl are forgotten. When persistFile is set the
// key set survives restarts.
type Seen struct {
	cache       *ristretto.Cache
	persistFile string
	ttl         time.Duration
	maxKeys     int

	mu   sync.RWMutex
	keys map[string]*SeenKey
}

func NewSeen(persistFile string, ttl time.Duration, maxKeys int) (*Seen, error) {
	if maxKeys <= 0 {
		maxKeys = 100000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(maxKeys * 10),
		MaxCost:     int64(maxKeys),
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("seen: %w", err)
	}
	s := &Seen{
		cache:       c,
		persistFile: persistFile,
		ttl:         ttl,
		maxKeys:     maxKeys,
		keys:        make(map[string]*SeenKey),
	}
	if err := s.load(); err != nil {
		c.Close()
		return nil, err
	}
	return s, nil
}

func (s *Seen) expired(k *SeenKey) bool {
	return s.ttl > 0 && time.Since(k.LastSeen) > s.ttl
}

// Has reports whether key was marked and has not expired.
func (s *Seen) Has(key string) bool {
	if _, ok := s.cache.Get(key); ok {
		return true
	}
	s.mu.RLock()
	k, ok := s.keys[key]
	s.mu.RUnlock()
	if !ok || s.expired(k) {
		return false
	}
	s.cache.Set(key, true, 1)
	return true
}

// Mark records key as loaded.
func (s *Seen) Mark(key string) {
	now := time.Now()
	s.mu.Lock()
	k, ok := s.keys[key]
	if !ok {
		k = &SeenKey{Key: key, FirstSeen: now}
		s.keys[key] = k
	}
	k.LastSeen = now
	k.Count++
	if len(s.keys) > s.maxKeys {
		s.evictOldest()
	}
	s.mu.Unlock()
	if s.ttl > 0 {
		s.cache.SetWithTTL(key, true, 1, s.ttl)
	} else {
		s.cache.Set(key, true, 1)
	}
}

func (s *Seen) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// evictOldest drops the least recently seen key. Callers hold mu.
func (s *Seen) evictOldest() {
	var oldest *SeenKey
	for _, k := range s.keys {
		if oldest == nil || k.LastSeen.Before(oldest.LastSeen) {
			oldest = k
		}
	}
	if oldest != nil {
		delete(s.keys, oldest.Key)
		s.cache.Del(oldest.Key)
	}
}

func (s *Seen) load() error {
	if s.persistFile == "" {
		return nil
	}
	data, err := os.ReadFile(s.persistFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("seen: read %s: %w", s.persistFile, err)
	}
	var keys []*SeenKey
	if len(data) > 0 {
		if err := json.Unmarshal(data, &keys); err != nil {
			return fmt.Errorf("seen: decode %s: %w", s.persistFile, err)
		}
	}
	for _, k := range keys {
		if !s.expired(k) {
			s.keys[k.Key] = k
		}
	}
	return nil
}

// Save writes the live key set to the persist file under a file lock.
func (s *Seen) Save() error {
	if s.persistFile == "" {
		return nil
	}
	s.mu.RLock()
	keys := make([]*SeenKey, 0, len(s.keys))
	for _, k := range s.keys {
		if !s.expired(k) {
			keys = append(keys, k)
		}
	}
	data, err := json.Marshal(keys)
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	lock := flock.New(s.persistFile + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("seen: lock: %w", err)
	}
	defer lock.Unlock()
	return os.WriteFile(s.persistFile, data, 0o644)
}

func (s *Seen) Close() error {
	err := s.Save()
	s.cache.Close()
	return err
}
