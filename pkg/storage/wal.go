package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// WAL is an append-only audit journal of persisted events, one JSON line
// per record. It is written after the store commit and never read back by
// the node.
type WAL interface {
	Append(records ...EventRecord) error
	Close() error
}

type NopWAL struct{}

func NewNopWAL() *NopWAL                        { return &NopWAL{} }
func (w *NopWAL) Append(_ ...EventRecord) error { return nil }
func (w *NopWAL) Close() error                  { return nil }

type FileWAL struct {
	mu sync.Mutex
	f  *os.File
}

func NewFileWAL(path string) (*FileWAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileWAL{f: f}, nil
}

func (w *FileWAL) Append(records ...EventRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode wal record %s#%d: %w", rec.Pool, rec.Seq, err)
		}
		if _, err := fmt.Fprintln(w.f, string(line)); err != nil {
			return err
		}
	}
	return nil
}

func (w *FileWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

var _ WAL = (*NopWAL)(nil)
var _ WAL = (*FileWAL)(nil)
