package transaction

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Context is what the hosting executor tells a pool about the call it is
// running: who is calling, and when.
type Context struct {
	Sender    common.Address
	Epoch     uint64
	Timestamp uint64 // unix milliseconds
}

func (c Context) String() string {
	return fmt.Sprintf("Context{Sender=%s, Epoch=%d, Timestamp=%d}", c.Sender.Hex(), c.Epoch, c.Timestamp)
}

// WithSender returns a copy of c acting on behalf of sender.
func (c Context) WithSender(sender common.Address) Context {
	c.Sender = sender
	return c
}
