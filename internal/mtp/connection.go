// Package mtp defines the Message Transport Protocol boundary: the core
// broker sees only a Connection handle and a Send operation, never a
// raw socket. Concrete transports (UDS, MQTT, WebSocket, STOMP in the
// real USP ecosystem) are out of scope; this package ships one
// concrete transport (TCP+JSON, grounded on cellorg's broker/client
// pair) plus an in-process transport for tests and embedding.
package mtp

import "github.com/uspbroker/broker/internal/usp"

// Role distinguishes which direction of traffic a Connection carries,
// mirroring the controller_mtp vs agent_mtp transport split. On transports
// that don't discriminate (undifferentiated UDS), both roles share one
// Connection.
type Role int

const (
	RoleController Role = iota // Broker acting as Controller talking to a Service-as-Agent
	RoleAgent                  // Broker acting as Agent talking to a Service-as-Controller
)

// Connection is the typed handle the core depends on to deliver a record
// to one endpoint. Implementations must be safe for concurrent use: the
// core may call Send from arbitrary goroutines (vendor hook callers), and
// the transport delivers inbound records to the core's Inbox independent
// of any Send in flight.
type Connection interface {
	// Send delivers a record over this connection. It does not wait for
	// any application-level response; correlation is the core's job.
	Send(rec *usp.Record) error

	// Close releases the underlying transport resource. Idempotent.
	Close() error

	// EndpointID is the remote endpoint this connection carries traffic
	// for.
	EndpointID() string
}

// Inbox is the sink a transport delivers decoded inbound records to. The
// broker's actor loop is the only consumer; transports must not block
// indefinitely on a full Inbox — delivery only promises in-order
// delivery within one endpoint's stream, so a transport may run its own
// per-connection goroutine feeding a shared, reasonably-buffered channel.
type Inbox interface {
	Deliver(endpointID string, rec *usp.Record)
}

// InboxFunc adapts a function to the Inbox interface.
type InboxFunc func(endpointID string, rec *usp.Record)

func (f InboxFunc) Deliver(endpointID string, rec *usp.Record) { f(endpointID, rec) }
