package broker

import (
	"time"

	"github.com/uspbroker/broker/internal/mtp"
	"github.com/uspbroker/broker/internal/usp"
)

// ServiceState tracks a registered USP Service through its connection
// lifecycle.
type ServiceState int

const (
	ServiceConnecting ServiceState = iota // connection accepted, no Register yet
	ServiceActive                         // Register processed; schema discovery may still be outstanding
	ServiceDisconnecting                  // connection lost, rows pending cleanup
)

func (s ServiceState) String() string {
	switch s {
	case ServiceConnecting:
		return "connecting"
	case ServiceActive:
		return "active"
	case ServiceDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// Service is a connected USP Service's broker-side record.
// InstanceNumber is allocated from a fixed-capacity arena (see
// instanceArena below) rather than derived from a growing slice index,
// so a long-running Broker does not accumulate garbage slots across
// repeated connect/disconnect cycles of the same physical Service.
type Service struct {
	InstanceNumber  int
	EndpointID      string
	Conn            mtp.Connection
	State           ServiceState
	RegisteredPaths []string
	ConnectedAt     time.Time

	// AddPassthruInFlight counts outstanding Add passthru requests
	// forwarded to this Service. While non-zero, ObjectCreation/
	// ObjectDeletion notifications from the Service are held in
	// PendingAddNotifies rather than relayed immediately, so a
	// Controller never observes a creation notification before the
	// AddResp that caused it.
	AddPassthruInFlight int
	PendingAddNotifies  []*usp.Message
}

// instanceArena hands out Service instance numbers from a fixed pool,
// recycling released numbers via a free list instead of growing
// without bound.
type instanceArena struct {
	capacity int
	free     []int
	nextNew  int
}

func newInstanceArena(capacity int) *instanceArena {
	return &instanceArena{capacity: capacity, nextNew: 1}
}

// allocate returns a fresh instance number, or ok=false if the arena is
// exhausted (reported as ResourcesExceeded).
func (a *instanceArena) allocate() (int, bool) {
	if n := len(a.free); n > 0 {
		id := a.free[n-1]
		a.free = a.free[:n-1]
		return id, true
	}
	if a.nextNew > a.capacity {
		return 0, false
	}
	id := a.nextNew
	a.nextNew++
	return id, true
}

func (a *instanceArena) release(id int) {
	a.free = append(a.free, id)
}

// CorrelatorEntry correlates an outgoing (Broker-originated or
// passthru-rewritten) request with the originating Controller request,
// so the matching response can be rewritten and routed back. Mirrors
// store.RequestRow but lives in the actor's working set; the correlator
// writes a matching RequestTable row and deletes it when the entry
// resolves, and nothing reads those rows back after a restart.
type CorrelatorEntry struct {
	BrokerMsgID     string
	OriginEndpoint  string
	OriginMsgID     string
	ServiceInstance int
	MsgType         usp.MessageType
	Deadline        time.Time

	// OnComplete runs on the actor goroutine once the matching response
	// (or a timeout/disconnect fault) arrives. It is how every internal
	// suspension point (SchemaDiscovery awaiting GetSupportedDMResp,
	// RequestBridge awaiting a vendor response) resumes without blocking
	// the actor itself — the call that created the entry has already
	// returned, and the inbound demultiplexer is what drives this closure.
	OnComplete func(msg *usp.Message, fault *usp.Fault)
}

// ReqMapEntry tracks one active asynchronous USP command (RequestBridge):
// an Operate the Broker has dispatched to a Service and for which it is
// waiting on a matching OperationComplete Notify, rather than a direct
// response. RequestInstance is the row this entry occupies in the
// Broker's Request table; Path is the command's full data-model path
// ("Device.Foo.Reboot()"); CommandKey is the opaque handle the
// originator supplied. (Path, CommandKey) is unique per Service, and
// the entry is destroyed in lockstep with its Request-table row.
type ReqMapEntry struct {
	RequestInstance int
	Path            string
	CommandKey      string
	ServiceInstance int
}

// SubsMapEntry tracks one subscription row bridged or reconciled
// between a Controller's subscription object and a Service's vendor
// subscription.
type SubsMapEntry struct {
	SubscriptionID     string
	ServiceInstance    int
	ControllerEndpoint string
	Path               string
	NotifType          usp.NotifyType
	BrokerCreated      bool
}

// MsgMapEntry tracks an in-flight Notify awaiting NotifyResp
// acknowledgement back to the originating Service.
type MsgMapEntry struct {
	BrokerMsgID     string
	ServiceInstance int
	OriginMsgID     string
}
