package transaction

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethCrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/uhyunpark/deeppool/pkg/crypto"
)

// RequestType names the pool operation a signed request invokes
type RequestType string

const (
	RequestCreatePool      RequestType = "create_pool"
	RequestPlaceOrder      RequestType = "place_order"
	RequestCancelOrder     RequestType = "cancel_order"
	RequestFillOrder       RequestType = "fill_order"
	RequestStake           RequestType = "stake"
	RequestUnstake         RequestType = "unstake"
	RequestClaimRebates    RequestType = "claim_rebates"
	RequestWithdrawSettled RequestType = "withdraw_settled"
	RequestAddPricePoint   RequestType = "add_price_point" // operator only
	RequestSetNextEpoch    RequestType = "set_next_epoch"  // operator only
)

// SignedRequest is the wire envelope for every mutation
// Signature is secp256k1 over Digest(); Signer, when set, must match the recovered address
type SignedRequest struct {
	Type      RequestType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Nonce     uint64          `json:"nonce"`
	Signer    string          `json:"signer,omitempty"`
	Signature string          `json:"signature"` // Hex-encoded signature (0x...)
}

// NewSignedRequest marshals payload into an unsigned request
func NewSignedRequest(typ RequestType, payload any, nonce uint64) (*SignedRequest, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return &SignedRequest{Type: typ, Payload: data, Nonce: nonce}, nil
}

// Digest is keccak256(type || payload || nonce as 8 big-endian bytes)
func (r *SignedRequest) Digest() []byte {
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], r.Nonce)
	return ethCrypto.Keccak256([]byte(r.Type), r.Payload, nonce[:])
}

// Sign fills Signer and Signature
func (r *SignedRequest) Sign(s *crypto.Signer) error {
	sig, err := s.Sign(r.Digest())
	if err != nil {
		return err
	}
	r.Signer = s.Address().Hex()
	r.Signature = crypto.EncodeSignature(sig)
	return nil
}

// Validate performs basic validation on request structure
func (r *SignedRequest) Validate() error {
	if r.Type == "" {
		return fmt.Errorf("missing request type")
	}
	if r.Signature == "" {
		return fmt.Errorf("missing signature")
	}
	if len(r.Payload) == 0 {
		return fmt.Errorf("missing payload")
	}
	if r.Signer != "" && !common.IsHexAddress(r.Signer) {
		return fmt.Errorf("invalid signer address: %s", r.Signer)
	}
	return nil
}

// Decode unmarshals the payload into v
func (r *SignedRequest) Decode(v any) error {
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", r.Type, err)
	}
	return nil
}

// Payloads

// CreatePoolPayload leaves a numeric field nil to take the node default. An
// explicit zero is kept and validated as given.
type CreatePoolPayload struct {
	Base     string  `json:"base"`
	Quote    string  `json:"quote"`
	TickSize *uint64 `json:"tickSize,omitempty"`
	LotSize  *uint64 `json:"lotSize,omitempty"`
	TakerFee *uint64 `json:"takerFee,omitempty"`
	MakerFee *uint64 `json:"makerFee,omitempty"`
}

type PlaceOrderPayload struct {
	Pool                   string `json:"pool"`
	IsBid                  bool   `json:"isBid"`
	Price                  uint64 `json:"price"`
	Quantity               uint64 `json:"quantity"`
	ExpireTimestamp        uint64 `json:"expireTimestamp,omitempty"`
	SelfMatchingPrevention uint8  `json:"selfMatchingPrevention,omitempty"`
}

type CancelOrderPayload struct {
	Pool    string `json:"pool"`
	OrderID uint64 `json:"orderId"`
}

type FillOrderPayload struct {
	Pool     string `json:"pool"`
	OrderID  uint64 `json:"orderId"`
	Quantity uint64 `json:"quantity"`
}

type StakePayload struct {
	Pool   string `json:"pool"`
	Amount uint64 `json:"amount"`
}

type PoolPayload struct {
	Pool string `json:"pool"`
}

type PricePointPayload struct {
	Pool      string `json:"pool"`
	BaseRate  uint64 `json:"baseRate"`
	QuoteRate uint64 `json:"quoteRate"`
	Timestamp uint64 `json:"timestamp"`
}

type NextEpochPayload struct {
	Pool          string `json:"pool"`
	TakerFee      uint64 `json:"takerFee"`
	MakerFee      uint64 `json:"makerFee"`
	StakeRequired uint64 `json:"stakeRequired"`
}
