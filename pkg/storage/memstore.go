package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/uhyunpark/deeppool/pkg/app/core/pool"
)

// InMemoryStore keeps snapshots and events in maps. Snapshots are stored
// encoded so callers never share state with the store.
type InMemoryStore struct {
	mu     sync.Mutex
	pools  map[string][]byte
	events map[string][]EventRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		pools:  make(map[string][]byte),
		events: make(map[string][]EventRecord),
	}
}

func (s *InMemoryStore) SavePool(snap pool.Snapshot, events []pool.Event) ([]EventRecord, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pool: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.events[snap.Key]
	last := uint64(len(log))
	records := make([]EventRecord, 0, len(events))
	for _, ev := range events {
		last++
		rec, err := NewEventRecord(last, ev)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	s.pools[snap.Key] = data
	s.events[snap.Key] = append(log, records...)
	return records, nil
}

func (s *InMemoryStore) LoadPool(key string) (pool.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.pools[key]
	if !ok {
		return pool.Snapshot{}, false, nil
	}
	var snap pool.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return pool.Snapshot{}, false, err
	}
	return snap, true, nil
}

func (s *InMemoryStore) LoadPools() ([]pool.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.pools))
	for k := range s.pools {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]pool.Snapshot, 0, len(keys))
	for _, k := range keys {
		var snap pool.Snapshot
		if err := json.Unmarshal(s.pools[k], &snap); err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func (s *InMemoryStore) LoadEvents(key string, after uint64, limit int) ([]EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.events[key]
	if after >= uint64(len(log)) {
		return nil, nil
	}
	out := log[after:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return append([]EventRecord(nil), out...), nil
}

func (s *InMemoryStore) LastEventSeq(key string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.events[key])), nil
}

func (s *InMemoryStore) Close() error { return nil }

var _ Store = (*InMemoryStore)(nil)
