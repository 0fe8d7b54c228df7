package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pool key schema for Pebble storage. Pools are namespaced by their id,
// keccak256 of the pool key:
//
//   pool:<id>                → JSON Snapshot
//   evt:<id>:<seq>           → JSON EventRecord
//   seq:<id>                 → last event sequence, 8 bytes big endian
//
// Account balances live in a separate database owned by the account
// package under acc:<address>.

// Key prefixes
const (
	prefixPool  = "pool:"
	prefixEvent = "evt:"
	prefixSeq   = "seq:"
)

// poolKey returns the key for a pool snapshot
// Format: "pool:{id}"
func poolKey(id common.Hash) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixPool, id.Hex()))
}

// poolPrefixAll returns the prefix covering every pool snapshot
func poolPrefixAll() []byte {
	return []byte(prefixPool)
}

// eventKey returns the key for one event
// Format: "evt:{id}:{seq}"
// Sequence is zero-padded (20 digits) for lexicographic sorting
func eventKey(id common.Hash, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixEvent, id.Hex(), seq))
}

// eventPrefix returns the prefix for all events of a pool
// Format: "evt:{id}:"
func eventPrefix(id common.Hash) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixEvent, id.Hex()))
}

// seqKey returns the key holding a pool's last event sequence
// Format: "seq:{id}"
func seqKey(id common.Hash) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixSeq, id.Hex()))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
