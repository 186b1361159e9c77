package broker

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/uspbroker/broker/internal/metrics"
	"github.com/uspbroker/broker/internal/mtp"
	"github.com/uspbroker/broker/internal/store"
	"github.com/uspbroker/broker/internal/usp"
)

// Config carries the Broker's own tunables, replacing the cell/pool
// pipeline/cell configuration with the resource-limit and deadline
// rules a Broker process needs.
type Config struct {
	EndpointID           string
	MaxUSPServices       int
	MaxVendorParamGroups int
	MaxDMPath            int
	MaxMsgIDLen          int
	MaxCompoundKeyParams int
	MaxInFlightRequests  int
	ResponseTimeout      time.Duration
	InstanceCacheExpiry  time.Duration
}

func DefaultConfig() Config {
	return Config{
		EndpointID:           "proto::usp-broker",
		MaxUSPServices:       64,
		MaxVendorParamGroups: 256,
		MaxDMPath:            256,
		MaxMsgIDLen:          64,
		MaxCompoundKeyParams: 16,
		MaxInFlightRequests:  4096,
		ResponseTimeout:      30 * time.Second,
		InstanceCacheExpiry:  -1,
	}
}

// Actor is the single goroutine that owns every piece of Broker state.
// Every external event, whether an inbound wire record or an
// administrative call, is converted to a closure and run serially off
// a.inbox; nothing off this goroutine ever mutates Service/ReqMap/
// SubsMap/MsgMap state directly. Suspension points (RequestCorrelator
// awaiting a Service's response) never block this goroutine: a pending
// request's continuation is a closure stored in corr, invoked later
// by whichever inbound record or timeout resolves it.
type Actor struct {
	cfg Config
	log zerolog.Logger

	ids      *usp.IDGenerator
	builders *usp.Builders

	schema    store.SchemaStore
	perms     store.PermissionStore
	reqTable  store.RequestTable
	subsTable store.SubscriptionTable
	instCache store.InstanceCache

	arena        *instanceArena
	services     map[int]*Service
	byEndpoint   map[string]int
	pendingConns map[string]*Service // connected, not yet Registered

	corr    map[string]*CorrelatorEntry
	subsMap map[string]*SubsMapEntry
	msgMap  map[string]*MsgMapEntry

	reqArena *instanceArena
	reqMap   map[string]*ReqMapEntry

	inbox chan func()
	done  chan struct{}
}

// Collaborators groups the store/metrics dependencies Actor needs, kept
// separate from Config so tests can swap in fakes without touching
// tunables.
type Collaborators struct {
	Schema    store.SchemaStore
	Perms     store.PermissionStore
	ReqTable  store.RequestTable
	SubsTable store.SubscriptionTable
	InstCache store.InstanceCache
}

func NewActor(cfg Config, log zerolog.Logger, collab Collaborators) *Actor {
	ids := usp.NewIDGenerator()
	return &Actor{
		cfg:        cfg,
		log:        log,
		ids:        ids,
		builders:   usp.NewBuilders(ids),
		schema:     collab.Schema,
		perms:      collab.Perms,
		reqTable:   collab.ReqTable,
		subsTable:  collab.SubsTable,
		instCache:  collab.InstCache,
		arena:      newInstanceArena(cfg.MaxUSPServices),
		services:   make(map[int]*Service),
		byEndpoint: make(map[string]int),
		corr:       make(map[string]*CorrelatorEntry),
		subsMap:    make(map[string]*SubsMapEntry),
		msgMap:     make(map[string]*MsgMapEntry),
		reqArena:   newInstanceArena(cfg.MaxInFlightRequests),
		reqMap:     make(map[string]*ReqMapEntry),
		inbox:      make(chan func(), 256),
		done:       make(chan struct{}),
	}
}

// Run drains the inbox until Stop is called. It must run in exactly one
// goroutine for the lifetime of the Actor.
func (a *Actor) Run() {
	for {
		select {
		case fn := <-a.inbox:
			fn()
		case <-a.done:
			a.drainTimeouts()
			return
		}
	}
}

func (a *Actor) Stop() {
	close(a.done)
}

// submit enqueues fn to run on the actor goroutine and returns
// immediately; used by callers (admin API, timeout goroutines) that
// are not themselves the actor goroutine.
func (a *Actor) submit(fn func()) {
	select {
	case a.inbox <- fn:
	case <-a.done:
	}
}

// Deliver implements mtp.Inbox: every inbound record becomes one
// closure on the actor's inbox, so wire decoding (done on the
// transport's own goroutine) never races with actor state.
func (a *Actor) Deliver(endpointID string, rec *usp.Record) {
	a.submit(func() { a.handleRecord(endpointID, rec) })
}

var _ mtp.Inbox = (*Actor)(nil)

// handleRecord dispatches one inbound record to the component that
// owns its message type.
func (a *Actor) handleRecord(endpointID string, rec *usp.Record) {
	msg := rec.Message
	if msg == nil || msg.Header == nil {
		a.log.Warn().Str("endpoint", endpointID).Msg("dropping record with no header")
		return
	}

	metrics.MessagesReceivedTotal.WithLabelValues(string(msg.Header.MsgType)).Inc()

	switch msg.Header.MsgType {
	case usp.MsgRegister:
		a.handleRegister(endpointID, msg)
	case usp.MsgDeregister:
		a.handleDeregister(endpointID, msg)
	case usp.MsgGetSupportedDMResp:
		a.handleGetSupportedDMResp(endpointID, msg)
	case usp.MsgNotify:
		a.handleNotify(endpointID, msg)
	case usp.MsgNotifyResp:
		a.handleNotifyResp(endpointID, msg)
	case usp.MsgGet, usp.MsgSet, usp.MsgAdd, usp.MsgDelete, usp.MsgOperate, usp.MsgGetInstances:
		a.handleControllerRequest(endpointID, msg)
	case usp.MsgGetResp, usp.MsgSetResp, usp.MsgAddResp, usp.MsgDeleteResp, usp.MsgOperateResp, usp.MsgGetInstancesResp:
		a.handleServiceResponse(endpointID, msg)
	case usp.MsgError:
		a.handleServiceError(endpointID, msg)
	default:
		a.log.Warn().Str("endpoint", endpointID).Str("type", string(msg.Header.MsgType)).Msg("unrecognised message type")
	}
}

// OnConnect registers a new transport-level connection before any
// Register record has been seen (the connecting state).
func (a *Actor) OnConnect(endpointID string, conn mtp.Connection) {
	a.submit(func() { a.connect(endpointID, conn) })
}

// OnDisconnect runs the full lifecycle teardown for a lost connection.
func (a *Actor) OnDisconnect(endpointID string) {
	a.submit(func() { a.disconnect(endpointID) })
}

func (a *Actor) drainTimeouts() {
	for msgID, entry := range a.corr {
		delete(a.corr, msgID)
		if entry.OnComplete != nil {
			entry.OnComplete(nil, usp.ErrInternalError("broker shutting down"))
		}
	}
}
