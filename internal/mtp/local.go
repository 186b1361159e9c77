package mtp

import (
	"fmt"
	"sync"

	"github.com/uspbroker/broker/internal/usp"
)

// LocalConn is an in-process Connection, grounded on cellorg's Pipe
// (service.go): Send calls the peer's Inbox directly, standing in for
// a socket; there is no buffering between the two sides. Used by
// tests and by embedders that run a simulated Service in the same
// process as the Broker.
type LocalConn struct {
	selfID     string
	endpointID string
	peer       Inbox
	mu         sync.Mutex
	closed     bool
}

// NewLocalPair wires two LocalConns back to back: sending on one
// delivers to the other's inbox, tagged with the sender's own endpoint
// id so the receiver can route on it. endpointA/endpointB name each
// side; EndpointID() on the returned pair reports the remote side, as
// it does for TCPConn.
func NewLocalPair(endpointA string, inboxA Inbox, endpointB string, inboxB Inbox) (a, b *LocalConn) {
	a = &LocalConn{selfID: endpointA, endpointID: endpointB, peer: inboxB}
	b = &LocalConn{selfID: endpointB, endpointID: endpointA, peer: inboxA}
	return a, b
}

func (c *LocalConn) Send(rec *usp.Record) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("mtp: local connection to %s is closed", c.endpointID)
	}
	c.mu.Unlock()
	c.peer.Deliver(c.selfID, rec)
	return nil
}

func (c *LocalConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *LocalConn) EndpointID() string { return c.endpointID }
