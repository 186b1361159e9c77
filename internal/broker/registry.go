package broker

import "github.com/uspbroker/broker/internal/metrics"

// ServiceRegistry: the lookup surface over a.services/a.byEndpoint/
// a.arena. Every method here assumes it runs on the actor
// goroutine; none of them take a lock, because the actor is the lock.

// serviceByEndpoint returns the Service for a connected endpoint, or
// nil if none is registered under that id.
func (a *Actor) serviceByEndpoint(endpointID string) *Service {
	id, ok := a.byEndpoint[endpointID]
	if !ok {
		return nil
	}
	return a.services[id]
}

// serviceByInstance returns the Service for an instance number, or nil.
func (a *Actor) serviceByInstance(instanceID int) *Service {
	return a.services[instanceID]
}

// registerService allocates an instance number and installs svc into
// both lookup maps. Callers must already have svc.InstanceNumber unset
// (zero); it is filled in here.
func (a *Actor) registerService(svc *Service) (*Service, error) {
	id, ok := a.arena.allocate()
	if !ok {
		return nil, errResourcesExceededServices(a.cfg.MaxUSPServices)
	}
	svc.InstanceNumber = id
	a.services[id] = svc
	a.byEndpoint[svc.EndpointID] = id
	metrics.ServicesConnected.Set(float64(len(a.services)))
	return svc, nil
}

// unregisterService removes a Service from both lookup maps and
// releases its instance number back to the arena. It does not touch
// schema, subscription, or request state — that is lifecycle.go's job,
// invoked in a specific order around this call.
func (a *Actor) unregisterService(instanceID int) {
	svc, ok := a.services[instanceID]
	if !ok {
		return
	}
	delete(a.services, instanceID)
	delete(a.byEndpoint, svc.EndpointID)
	a.arena.release(instanceID)
	metrics.ServicesConnected.Set(float64(len(a.services)))
}
