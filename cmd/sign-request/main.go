// Command sign-request signs a pool request for POST /api/v1/requests.
//
// Usage:
//
//	PRIVATE_KEY=0x... sign-request <type> '<payload json>' <nonce>
//
// Without PRIVATE_KEY a fresh key is generated and printed.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/uhyunpark/deeppool/pkg/app/core/account"
	"github.com/uhyunpark/deeppool/pkg/app/core/transaction"
	"github.com/uhyunpark/deeppool/pkg/crypto"
)

func main() {
	if len(os.Args) != 4 {
		fmt.Fprintln(os.Stderr, "usage: sign-request <type> '<payload json>' <nonce>")
		fmt.Fprintln(os.Stderr, `example: sign-request place_order '{"pool":"SUI-USDC","isBid":true,"price":10,"quantity":100}' 1`)
		os.Exit(2)
	}
	typ := transaction.RequestType(os.Args[1])
	payload := json.RawMessage(os.Args[2])
	if !json.Valid(payload) {
		fail("payload is not valid JSON")
	}
	nonce, err := strconv.ParseUint(os.Args[3], 10, 64)
	if err != nil {
		fail("invalid nonce: %v", err)
	}

	// Step 1: Load or generate key
	signer, err := loadSigner()
	if err != nil {
		fail("key: %v", err)
	}
	fmt.Fprintf(os.Stderr, "Address: %s\n", signer.Address().Hex())

	// Step 2: Build and sign request
	req, err := transaction.NewSignedRequest(typ, payload, nonce)
	if err != nil {
		fail("build request: %v", err)
	}
	if err := req.Sign(signer); err != nil {
		fail("sign: %v", err)
	}

	// Step 3: Verify against a scratch ledger
	verifier := transaction.NewVerifier(account.NewMemoryManager())
	recovered, err := verifier.Verify(req)
	if err != nil {
		fail("verify: %v", err)
	}
	fmt.Fprintf(os.Stderr, "Signature valid, signer %s\n\n", recovered.Hex())

	// Step 4: Print JSON body for submission
	out, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		fail("marshal: %v", err)
	}
	fmt.Fprintln(os.Stderr, "Submit with:")
	fmt.Fprintln(os.Stderr, "  POST http://localhost:8080/api/v1/requests")
	fmt.Fprintln(os.Stderr, "  Content-Type: application/json")
	fmt.Println(string(out))
}

func loadSigner() (*crypto.Signer, error) {
	if key := os.Getenv("PRIVATE_KEY"); key != "" {
		return crypto.FromPrivateKeyHex(key)
	}
	signer, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "Generated key: %s (KEEP SECRET!)\n", signer.PrivateKeyHex())
	return signer, nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
