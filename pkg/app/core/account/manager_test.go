package account

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alice = common.HexToAddress("0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func TestDepositWithdraw(t *testing.T) {
	m := NewMemoryManager()

	if err := m.Deposit(alice, "SUI", 0); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero deposit err = %v", err)
	}
	if err := m.Deposit(alice, "SUI", 100); err != nil {
		t.Fatal(err)
	}
	if err := m.Withdraw(alice, "SUI", 101); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("overdraw err = %v", err)
	}
	if got := m.Balance(alice, "SUI"); got != 100 {
		t.Errorf("balance after failed withdraw = %d", got)
	}
	if err := m.Withdraw(alice, "SUI", 40); err != nil {
		t.Fatal(err)
	}
	if got := m.Balance(alice, "SUI"); got != 60 {
		t.Errorf("balance = %d, want 60", got)
	}
	if got := m.Balance(alice, "USDC"); got != 0 {
		t.Errorf("unfunded asset balance = %d", got)
	}
}

func TestWithdrawUnknownAccount(t *testing.T) {
	m := NewMemoryManager()
	if err := m.Withdraw(bob, "SUI", 1); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("err = %v", err)
	}
	if m.Count() != 0 {
		t.Errorf("failed withdraw created an account")
	}
}

func TestTransfer(t *testing.T) {
	m := NewMemoryManager()
	m.Deposit(alice, "DEEP", 50)

	if err := m.Transfer(alice, bob, "DEEP", 60); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("over-transfer err = %v", err)
	}
	if err := m.Transfer(alice, bob, "DEEP", 20); err != nil {
		t.Fatal(err)
	}
	if m.Balance(alice, "DEEP") != 30 || m.Balance(bob, "DEEP") != 20 {
		t.Errorf("balances = %d / %d", m.Balance(alice, "DEEP"), m.Balance(bob, "DEEP"))
	}
}

func TestGetAccountIsCopy(t *testing.T) {
	m := NewMemoryManager()
	m.Deposit(alice, "SUI", 10)

	acc := m.GetAccount(alice)
	acc.Balances["SUI"] = 999
	if m.Balance(alice, "SUI") != 10 {
		t.Error("mutating a returned account changed the manager")
	}
}

func TestNonce(t *testing.T) {
	m := NewMemoryManager()
	if err := m.AdvanceNonce(alice, 1); err != nil {
		t.Fatal(err)
	}
	if err := m.AdvanceNonce(alice, 1); !errors.Is(err, ErrStaleNonce) {
		t.Errorf("replayed nonce err = %v", err)
	}
	if err := m.AdvanceNonce(alice, 5); err != nil {
		t.Fatal(err)
	}
	if m.Nonce(alice) != 5 {
		t.Errorf("nonce = %d", m.Nonce(alice))
	}
}

func TestPersistence(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "accounts")

	m, err := NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	m.Deposit(alice, "SUI", 70)
	m.Deposit(bob, "USDC", 5)
	m.Transfer(alice, bob, "SUI", 20)
	m.AdvanceNonce(bob, 3)
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	if reopened.Count() != 2 {
		t.Fatalf("count = %d", reopened.Count())
	}
	if reopened.Balance(alice, "SUI") != 50 || reopened.Balance(bob, "SUI") != 20 {
		t.Errorf("SUI = %d / %d", reopened.Balance(alice, "SUI"), reopened.Balance(bob, "SUI"))
	}
	if reopened.Nonce(bob) != 3 {
		t.Errorf("nonce = %d", reopened.Nonce(bob))
	}
	list := reopened.List()
	if list[0].Address != bob {
		t.Errorf("List not sorted by address: %v", list)
	}
}

func TestAccountKeyRoundTrip(t *testing.T) {
	addr, err := accountKeyFromBytes(accountKey(alice))
	if err != nil || addr != alice {
		t.Errorf("round trip = %s, %v", addr.Hex(), err)
	}
	if _, err := accountKeyFromBytes([]byte("acc:0x12")); err == nil {
		t.Error("short key accepted")
	}
	if _, err := accountKeyFromBytes([]byte("pool:" + alice.Hex())); err == nil {
		t.Error("foreign prefix accepted")
	}
	if _, err := accountKeyFromBytes(append(accountKey(alice), 'x')); err == nil {
		t.Error("trailing bytes accepted")
	}
}
