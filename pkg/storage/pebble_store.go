package storage

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/deeppool/pkg/app/core/pool"
)

// Store persists pool snapshots together with the events that produced
// them.
type Store interface {
	// SavePool writes the snapshot and appends events in one atomic step,
	// returning the events with their assigned sequence numbers.
	SavePool(snap pool.Snapshot, events []pool.Event) ([]EventRecord, error)
	LoadPool(key string) (pool.Snapshot, bool, error)
	LoadPools() ([]pool.Snapshot, error)
	// LoadEvents returns up to limit events of a pool with Seq > after, in
	// sequence order. limit <= 0 means no limit.
	LoadEvents(key string, after uint64, limit int) ([]EventRecord, error)
	LastEventSeq(key string) (uint64, error)
	Close() error
}

type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}
func (s *PebbleStore) Close() error { return s.db.Close() }

// SavePool persists a pool snapshot and appends its events atomically
func (s *PebbleStore) SavePool(snap pool.Snapshot, events []pool.Event) ([]EventRecord, error) {
	id := pool.IDOf(snap.Key)
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pool: %w", err)
	}

	last, err := s.lastSeq(id)
	if err != nil {
		return nil, err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(poolKey(id), data, nil); err != nil {
		return nil, fmt.Errorf("failed to stage pool: %w", err)
	}
	records := make([]EventRecord, 0, len(events))
	for _, ev := range events {
		last++
		rec, err := NewEventRecord(last, ev)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event record: %w", err)
		}
		if err := batch.Set(eventKey(id, last), val, nil); err != nil {
			return nil, fmt.Errorf("failed to stage event: %w", err)
		}
		records = append(records, rec)
	}
	if err := batch.Set(seqKey(id), seqBytes(last), nil); err != nil {
		return nil, fmt.Errorf("failed to stage sequence: %w", err)
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return nil, fmt.Errorf("failed to save pool: %w", err)
	}
	return records, nil
}

// LoadPool loads one pool snapshot by key
func (s *PebbleStore) LoadPool(key string) (pool.Snapshot, bool, error) {
	data, closer, err := s.db.Get(poolKey(pool.IDOf(key)))
	if err == pebble.ErrNotFound {
		return pool.Snapshot{}, false, nil
	}
	if err != nil {
		return pool.Snapshot{}, false, fmt.Errorf("failed to get pool: %w", err)
	}
	defer closer.Close()

	var snap pool.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return pool.Snapshot{}, false, fmt.Errorf("failed to unmarshal pool %s: %w", key, err)
	}
	return snap, true, nil
}

// LoadPools loads every persisted pool snapshot
func (s *PebbleStore) LoadPools() ([]pool.Snapshot, error) {
	prefix := poolPrefixAll()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var out []pool.Snapshot
	for iter.First(); iter.Valid(); iter.Next() {
		var snap pool.Snapshot
		if err := json.Unmarshal(iter.Value(), &snap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pool at %s: %w", iter.Key(), err)
		}
		out = append(out, snap)
	}
	return out, iter.Error()
}

// LoadEvents loads a pool's events after a sequence number
func (s *PebbleStore) LoadEvents(key string, after uint64, limit int) ([]EventRecord, error) {
	id := pool.IDOf(key)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: eventKey(id, after+1),
		UpperBound: keyUpperBound(eventPrefix(id)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var out []EventRecord
	for iter.First(); iter.Valid() && (limit <= 0 || len(out) < limit); iter.Next() {
		var rec EventRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event at %s: %w", iter.Key(), err)
		}
		out = append(out, rec)
	}
	return out, iter.Error()
}

// LastEventSeq returns the sequence of the newest event of a pool, 0 if none
func (s *PebbleStore) LastEventSeq(key string) (uint64, error) {
	return s.lastSeq(pool.IDOf(key))
}

func (s *PebbleStore) lastSeq(id common.Hash) (uint64, error) {
	val, closer, err := s.db.Get(seqKey(id))
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get sequence: %w", err)
	}
	defer closer.Close()
	return seqFromBytes(val)
}

var _ Store = (*PebbleStore)(nil)
