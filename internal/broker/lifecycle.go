package broker

import (
	"time"

	"github.com/uspbroker/broker/internal/metrics"
	"github.com/uspbroker/broker/internal/mtp"
	"github.com/uspbroker/broker/internal/usp"
)

// LifecycleManager owns the two events no message type
// carries: a transport accepting a new connection, and a transport
// losing one. Both run fully on the actor goroutine.

// connect installs a new Service record in the Connecting state. It
// does not allocate an instance number yet — the lifecycle rules
// only mint one once Register is actually processed, so a connection
// that never registers never consumes arena capacity.
func (a *Actor) connect(endpointID string, conn mtp.Connection) {
	if existing := a.serviceByEndpoint(endpointID); existing != nil {
		a.log.Warn().Str("endpoint", endpointID).Msg("replacing existing connection for endpoint")
		a.teardown(existing.InstanceNumber)
	}

	svc := &Service{
		EndpointID:  endpointID,
		Conn:        conn,
		State:       ServiceConnecting,
		ConnectedAt: time.Now(),
	}
	a.pending(endpointID, svc)
	metrics.ServiceConnectsTotal.WithLabelValues("accepted").Inc()
}

func (a *Actor) pending(endpointID string, svc *Service) {
	if a.pendingConns == nil {
		a.pendingConns = make(map[string]*Service)
	}
	a.pendingConns[endpointID] = svc
}

// disconnect runs full teardown for a lost connection, whatever state
// the Service was in (disconnect is valid from Connecting
// or Active).
func (a *Actor) disconnect(endpointID string) {
	if svc := a.pendingConns[endpointID]; svc != nil {
		delete(a.pendingConns, endpointID)
		metrics.ServiceDisconnectsTotal.Inc()
		return
	}
	id, ok := a.byEndpoint[endpointID]
	if !ok {
		return
	}
	a.teardown(id)
	metrics.ServiceDisconnectsTotal.Inc()
}

// teardown releases every piece of state a Service instance owns, in
// the order required to keep invariants intact: fail in-flight requests
// bound for it first (so callers get InternalError rather than hanging
// until ResponseTimeout), then drop its subscription rows, its schema,
// its instance cache, and finally its registry slot.
func (a *Actor) teardown(instanceID int) {
	svc := a.services[instanceID]
	if svc == nil {
		return
	}
	svc.State = ServiceDisconnecting

	for msgID, entry := range a.corr {
		if entry.ServiceInstance != instanceID {
			continue
		}
		delete(a.corr, msgID)
		if entry.OnComplete != nil {
			entry.OnComplete(nil, errUnknownService(svc.EndpointID))
		}
	}
	a.failAsyncCommandsFor(instanceID, "", usp.ErrCommandFailure("service %q disconnected with an active command", svc.EndpointID))

	a.dropSubscriptionsFor(instanceID)
	a.schema.DropSchema(instanceID)
	a.instCache.Drop(instanceID)
	a.unregisterService(instanceID)
}
