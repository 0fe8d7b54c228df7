package transaction

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/deeppool/pkg/crypto"
)

var (
	ErrBadSignature   = errors.New("transaction: signature invalid")
	ErrSignerMismatch = errors.New("transaction: signature does not match signer")
	ErrReplayed       = errors.New("transaction: nonce already used")
)

// NonceStore remembers the last accepted nonce per signer
// account.Manager implements it with Pebble persistence
type NonceStore interface {
	Nonce(addr common.Address) uint64
	AdvanceNonce(addr common.Address, nonce uint64) error
}

// Verifier authenticates signed requests and enforces strictly increasing
// nonces per signer
type Verifier struct {
	mu     sync.Mutex
	nonces NonceStore
}

// NewVerifier creates a verifier backed by nonces
func NewVerifier(nonces NonceStore) *Verifier {
	return &Verifier{nonces: nonces}
}

// Verify recovers the signer, checks the claimed signer if present, and
// consumes the nonce. A request that fails verification consumes nothing.
func (v *Verifier) Verify(req *SignedRequest) (common.Address, error) {
	if err := req.Validate(); err != nil {
		return common.Address{}, err
	}

	owner, err := v.Recover(req)
	if err != nil {
		return common.Address{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if last := v.nonces.Nonce(owner); req.Nonce <= last {
		return common.Address{}, fmt.Errorf("%w: %s last=%d got=%d", ErrReplayed, owner.Hex(), last, req.Nonce)
	}
	if err := v.nonces.AdvanceNonce(owner, req.Nonce); err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrReplayed, err)
	}
	return owner, nil
}

// Recover returns the address that signed req without touching nonces
func (v *Verifier) Recover(req *SignedRequest) (common.Address, error) {
	sig, err := crypto.DecodeSignature(req.Signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	owner, err := crypto.RecoverAddress(req.Digest(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	if req.Signer != "" && common.HexToAddress(req.Signer) != owner {
		return common.Address{}, fmt.Errorf("%w: claimed %s, recovered %s", ErrSignerMismatch, req.Signer, owner.Hex())
	}
	return owner, nil
}
