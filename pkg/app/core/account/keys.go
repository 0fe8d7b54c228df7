package account

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// The ledger keeps one record per external account, keyed by the
// checksummed address under a single prefix so the manager can load the
// whole ledger with one range scan at startup.
const prefixAccount = "acc:"

// accountKey is "acc:" followed by the EIP-55 address.
func accountKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixAccount, addr.Hex()))
}

func accountPrefixAll() []byte {
	return []byte(prefixAccount)
}

// keyUpperBound bumps the last byte of prefix, giving an exclusive scan bound.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// accountKeyFromBytes parses an iterator key back into its owner.
func accountKeyFromBytes(key []byte) (common.Address, error) {
	addrHex, ok := strings.CutPrefix(string(key), prefixAccount)
	if !ok || len(addrHex) != 2+2*common.AddressLength || !common.IsHexAddress(addrHex) {
		return common.Address{}, fmt.Errorf("malformed ledger key %q", key)
	}
	return common.HexToAddress(addrHex), nil
}
