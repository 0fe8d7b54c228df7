package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/uhyunpark/deeppool/pkg/app/core/pool"
)

func seqBytes(seq uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], seq)
	return k[:]
}

func seqFromBytes(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("sequence value has %d bytes", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// EventRecord is a pool event as persisted and served to observers.
type EventRecord struct {
	Seq       uint64          `json:"seq"`
	Pool      string          `json:"pool"`
	Kind      string          `json:"kind"`
	Epoch     uint64          `json:"epoch"`
	Timestamp uint64          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEventRecord encodes ev with sequence number seq.
func NewEventRecord(seq uint64, ev pool.Event) (EventRecord, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return EventRecord{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	h := ev.EventHeader()
	return EventRecord{
		Seq:       seq,
		Pool:      h.Pool,
		Kind:      h.Kind,
		Epoch:     h.Epoch,
		Timestamp: h.Timestamp,
		Data:      data,
	}, nil
}
