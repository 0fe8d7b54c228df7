package transaction

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/deeppool/pkg/app/core/account"
	"github.com/uhyunpark/deeppool/pkg/crypto"
)

func signed(t *testing.T, s *crypto.Signer, typ RequestType, payload any, nonce uint64) *SignedRequest {
	t.Helper()
	req, err := NewSignedRequest(typ, payload, nonce)
	require.NoError(t, err)
	require.NoError(t, req.Sign(s))
	return req
}

func TestVerifyRecoversSigner(t *testing.T) {
	s, _ := crypto.GenerateKey()
	v := NewVerifier(account.NewMemoryManager())

	req := signed(t, s, RequestCancelOrder, CancelOrderPayload{Pool: "SUI_USDC", OrderID: 3}, 1)
	owner, err := v.Verify(req)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), owner)

	var p CancelOrderPayload
	require.NoError(t, req.Decode(&p))
	assert.Equal(t, uint64(3), p.OrderID)
}

func TestVerifyRejectsReplay(t *testing.T) {
	s, _ := crypto.GenerateKey()
	v := NewVerifier(account.NewMemoryManager())

	req := signed(t, s, RequestClaimRebates, PoolPayload{Pool: "p"}, 5)
	_, err := v.Verify(req)
	require.NoError(t, err)

	_, err = v.Verify(req)
	assert.ErrorIs(t, err, ErrReplayed)

	older := signed(t, s, RequestClaimRebates, PoolPayload{Pool: "p"}, 4)
	_, err = v.Verify(older)
	assert.ErrorIs(t, err, ErrReplayed)

	newer := signed(t, s, RequestClaimRebates, PoolPayload{Pool: "p"}, 6)
	_, err = v.Verify(newer)
	assert.NoError(t, err)
}

func TestVerifyRejectsTampering(t *testing.T) {
	s, _ := crypto.GenerateKey()
	other, _ := crypto.GenerateKey()
	v := NewVerifier(account.NewMemoryManager())

	tests := []struct {
		name   string
		mutate func(r *SignedRequest)
		want   error
	}{
		{"payload changed", func(r *SignedRequest) { r.Payload = []byte(`{"pool":"q","amount":999}`) }, ErrSignerMismatch},
		{"nonce changed", func(r *SignedRequest) { r.Nonce++ }, ErrSignerMismatch},
		{"claimed other signer", func(r *SignedRequest) { r.Signer = other.Address().Hex() }, ErrSignerMismatch},
		{"garbage signature", func(r *SignedRequest) { r.Signature = "0x1234" }, ErrBadSignature},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := signed(t, s, RequestStake, StakePayload{Pool: "p", Amount: 1}, uint64(i+1))
			tt.mutate(req)
			_, err := v.Verify(req)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		req  SignedRequest
	}{
		{"no type", SignedRequest{Payload: []byte("{}"), Signature: "0x00"}},
		{"no signature", SignedRequest{Type: RequestStake, Payload: []byte("{}")}},
		{"no payload", SignedRequest{Type: RequestStake, Signature: "0x00"}},
		{"bad signer", SignedRequest{Type: RequestStake, Payload: []byte("{}"), Signature: "0x00", Signer: "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.req.Validate())
		})
	}
}

func TestDigestCoversEveryField(t *testing.T) {
	base := SignedRequest{Type: RequestStake, Payload: []byte(`{"a":1}`), Nonce: 1}
	d := base.Digest()

	changed := []SignedRequest{
		{Type: RequestUnstake, Payload: base.Payload, Nonce: 1},
		{Type: RequestStake, Payload: []byte(`{"a":2}`), Nonce: 1},
		{Type: RequestStake, Payload: base.Payload, Nonce: 2},
	}
	for _, c := range changed {
		assert.NotEqual(t, d, c.Digest())
	}
}
