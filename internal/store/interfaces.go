// Package store defines the persistence and lookup boundaries the
// broker's actor depends on (the schema discovery component's owned schema
// cache, permission table, and the ReqMap/SubsMap/MsgMap tables), plus
// the concrete implementations: an in-memory SchemaStore and
// PermissionStore (stdlib maps, justified in DESIGN.md — these are
// process-local caches rebuilt from scratch on every restart, never
// durable state), and a badger-backed RequestTable/SubscriptionTable
// (durable, so a Broker restart does not silently orphan in-flight
// correlations or leave subscriptions unreconciled).
package store

import "github.com/uspbroker/broker/internal/usp"

// SchemaStore holds the supported data model surface learned from each
// Service's GetSupportedDMResp (schema discovery). Lookups
// are by path prefix: the longest registered SupportedObj path that is
// an ancestor of (or equal to) the queried path owns it.
type SchemaStore interface {
	// PutSchema replaces the schema rows owned by instanceID, discarding
	// whatever it held before (a Service's schema is always handled in
	// full on registration and on any add/delete of a registered path).
	PutSchema(instanceID int, objs []usp.SupportedObj)

	// Lookup returns the owning instance id and the matched SupportedObj
	// for a given data model path, or ok=false if no Service owns it.
	Lookup(path string) (instanceID int, obj usp.SupportedObj, ok bool)

	// DropSchema discards every row owned by instanceID, used on
	// deregistration and disconnect.
	DropSchema(instanceID int)
}

// PermissionStore answers whether a given Controller endpoint holds a
// permission bit against a data model path (RequestBridge's enforcement
// point). The broker does not implement policy
// distribution; it only enforces what this store reports.
type PermissionStore interface {
	// Allowed reports whether endpointID holds every bit set in want for
	// path.
	Allowed(endpointID, path string, want usp.Permission) bool

	// Grant records a permission grant; used by tests and by whatever
	// out-of-band policy loader populates the store at startup.
	Grant(endpointID, path string, perm usp.Permission)
}

// RequestRow is the durable shape of one row in the Broker's Request
// table. It serves two distinct keyspaces over the same store: a
// CorrelatorEntry keyed by the Broker-minted msg_id sent upstream
// (MsgID, OriginEndpoint, OriginMsgID, ServiceInstance, MsgType), and a
// RequestBridge ReqMapEntry keyed by a synthetic "ASYNC-<instance>"
// row id (ServiceInstance, Path, CommandKey, Active) tracking an
// async Operate awaiting its OperationComplete Notify. A row belongs
// to at most one keyspace; Path/CommandKey/Active are zero on
// correlator rows and OriginEndpoint/OriginMsgID are empty on async
// command rows.
type RequestRow struct {
	MsgID           string
	OriginEndpoint  string
	OriginMsgID     string
	ServiceInstance int
	MsgType         usp.MessageType

	Path       string
	CommandKey string
	Active     bool
}

// RequestTable persists in-flight request correlations and active
// asynchronous commands (the correlator's and RequestBridge's backing
// store). Rows are written when a request or command starts and
// deleted when it completes; the broker does not read them back after
// a restart.
type RequestTable interface {
	Put(row RequestRow) error
	Get(msgID string) (RequestRow, bool, error)
	Delete(msgID string) error
	// All returns every row.
	All() ([]RequestRow, error)
}

// SubscriptionRow is the durable shape of a SubsMapEntry.
type SubscriptionRow struct {
	SubscriptionID     string
	ServiceInstance    int
	ControllerEndpoint string
	Path               string
	NotifType          usp.NotifyType
	BrokerCreated      bool
}

// SubscriptionTable persists the subscription bridge's rows so
// reconciliation on Service reconnect has something to compare against.
type SubscriptionTable interface {
	Put(row SubscriptionRow) error
	Get(subscriptionID string) (SubscriptionRow, bool, error)
	Delete(subscriptionID string) error
	ByServiceInstance(instanceID int) ([]SubscriptionRow, error)
	All() ([]SubscriptionRow, error)
}

// InstanceCache remembers, per Service, the last known set of instances
// under a multi-instance object (the instance cache, consulted by
// PassThru to reject an incoming Delete of an instance the cache
// already knows is absent; Adds are not checked against it).
type InstanceCache interface {
	Put(instanceID int, objPath string, instances []string)
	Get(instanceID int, objPath string) ([]string, bool)
	Drop(instanceID int)
}
