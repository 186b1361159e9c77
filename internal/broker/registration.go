package broker

import (
	"strings"

	"github.com/uspbroker/broker/internal/metrics"
	"github.com/uspbroker/broker/internal/usp"
)

// handleRegister moves a pending connection into the
// registry, validates every requested path against the global
// invariant that no two Services may own overlapping data model paths,
// and replies with per-path Success/Failure the way the original
// RegisterResp always does — a Register that fails for some paths and
// succeeds for others is not itself an error (partial acceptance
// semantics apply at the path granularity, not the message).
func (a *Actor) handleRegister(endpointID string, msg *usp.Message) {
	reg := msg.Register
	if reg == nil {
		a.sendError(endpointID, msg, usp.ErrMessageNotUnderstood("register message missing body"))
		return
	}

	svc := a.pendingConns[endpointID]
	if svc == nil {
		// A second Register on an already-active connection re-validates
		// and extends RegisteredPaths rather than erroring outright.
		svc = a.serviceByEndpoint(endpointID)
	}
	if svc == nil {
		a.sendError(endpointID, msg, errUnknownService(endpointID))
		return
	}

	if svc.InstanceNumber == 0 {
		registered, err := a.registerService(svc)
		if err != nil {
			metrics.RegisterFailuresTotal.WithLabelValues("resources_exceeded").Inc()
			a.sendError(endpointID, msg, err)
			return
		}
		delete(a.pendingConns, endpointID)
		svc = registered
	}

	results := make([]usp.RegisteredPathResult, 0, len(reg.RegPaths))
	var accepted []string
	for _, rp := range reg.RegPaths {
		if fault := a.validateRegisterPath(svc.InstanceNumber, rp.Path); fault != nil {
			metrics.RegisterFailuresTotal.WithLabelValues(string(fault.Kind)).Inc()
			results = append(results, usp.RegisteredPathResult{
				RequestedPath: rp.Path,
				Failure:       fault.ToOperFailure(),
			})
			continue
		}
		accepted = append(accepted, rp.Path)
		results = append(results, usp.RegisteredPathResult{
			RequestedPath: rp.Path,
			Success:       &usp.RegisterSuccess{RegisteredPath: rp.Path},
		})
	}

	svc.RegisteredPaths = append(svc.RegisteredPaths, accepted...)
	svc.State = ServiceActive

	resp := a.builders.RegisterResp(results)
	resp.Header.MsgID = msg.MsgID()
	a.send(endpointID, resp)

	if len(accepted) > 0 {
		a.requestSchema(svc, accepted)
	}
}

// validateRegisterPath enforces the global invariant that a data model
// path is owned by exactly one Service at a time: too long a path is
// MessageNotUnderstood, a path already owned by a different Service is
// PathAlreadyRegistered.
func (a *Actor) validateRegisterPath(instanceID int, path string) *usp.Fault {
	if len(path) > a.cfg.MaxDMPath {
		return usp.ErrMessageNotUnderstood("registered path %q exceeds max length %d", path, a.cfg.MaxDMPath)
	}
	if owner, _, ok := a.schema.Lookup(path); ok && owner != instanceID {
		return usp.ErrPathAlreadyRegistered("path %q is already owned by Service instance %d", path, owner)
	}
	for _, svc := range a.services {
		if svc.InstanceNumber == instanceID {
			continue
		}
		for _, existing := range svc.RegisteredPaths {
			if pathsOverlap(existing, path) {
				return usp.ErrPathAlreadyRegistered("path %q overlaps already-registered path %q (Service instance %d)", path, existing, svc.InstanceNumber)
			}
		}
	}
	return nil
}

func pathsOverlap(a, b string) bool {
	return pathUnderLocal(a, b) || pathUnderLocal(b, a)
}

func pathUnderLocal(prefix, path string) bool {
	if prefix == path {
		return true
	}
	if !strings.HasSuffix(prefix, ".") {
		prefix += "."
	}
	return strings.HasPrefix(path, prefix)
}

// handleDeregister drops ownership of the requested
// paths. A full deregistration of every path a Service owns does not
// by itself close the connection — that is left to the transport
// noticing the socket drop — but it does roll back schema and
// subscription rows for those paths immediately rather than waiting
// for disconnect.
//
// An empty path list means "deregister every path this Service owns".
// On that sweep, the first per-path failure replaces the whole
// per-path result list with a single ERROR response; paths already
// detached by an earlier, successful iteration stay detached (no
// cascading object-creation undo) since the schema mutation already
// happened before the failure was discovered.
func (a *Actor) handleDeregister(endpointID string, msg *usp.Message) {
	dereg := msg.Deregister
	if dereg == nil {
		a.sendError(endpointID, msg, usp.ErrMessageNotUnderstood("deregister message missing body"))
		return
	}
	svc := a.serviceByEndpoint(endpointID)
	if svc == nil {
		a.sendError(endpointID, msg, errUnknownService(endpointID))
		return
	}

	paths := dereg.Paths
	allOwned := len(paths) == 0
	if allOwned {
		paths = append([]string(nil), svc.RegisteredPaths...)
	}

	results := make([]usp.DeregisteredPathResult, 0, len(paths))
	var removed []string
	for _, path := range paths {
		var fault *usp.Fault
		switch {
		case len(path) > a.cfg.MaxDMPath:
			fault = usp.ErrMessageNotUnderstood("path %q exceeds max length %d", path, a.cfg.MaxDMPath)
		case !containsPath(svc.RegisteredPaths, path):
			fault = usp.ErrDeregisterFailure("path %q is not registered by this Service", path)
		}
		if fault != nil {
			if allOwned {
				svc.RegisteredPaths = removePaths(svc.RegisteredPaths, removed)
				a.dropSubscriptionsForPaths(svc.InstanceNumber, removed)
				a.failDeregisteredCommands(svc.InstanceNumber, removed)
				a.sendError(endpointID, msg, fault)
				return
			}
			results = append(results, usp.DeregisteredPathResult{
				RequestedPath: path,
				Failure:       fault.ToOperFailure(),
			})
			continue
		}
		removed = append(removed, path)
		results = append(results, usp.DeregisteredPathResult{
			RequestedPath: path,
			Success:       &usp.DeregisterSuccess{DeregisteredPaths: []string{path}},
		})
	}

	svc.RegisteredPaths = removePaths(svc.RegisteredPaths, removed)
	a.dropSubscriptionsForPaths(svc.InstanceNumber, removed)
	a.failDeregisteredCommands(svc.InstanceNumber, removed)

	resp := a.builders.DeregisterResp(results)
	resp.Header.MsgID = msg.MsgID()
	a.send(endpointID, resp)
}

// failDeregisteredCommands fails every active async command whose
// path descends from one of the paths just deregistered, since the
// schema subtree it targeted no longer belongs to this Service.
func (a *Actor) failDeregisteredCommands(instanceID int, paths []string) {
	for _, p := range paths {
		a.failAsyncCommandsFor(instanceID, p, usp.ErrCommandFailure("path %q deregistered with an active command", p))
	}
}

func containsPath(paths []string, p string) bool {
	for _, existing := range paths {
		if existing == p {
			return true
		}
	}
	return false
}

func removePaths(paths []string, remove []string) []string {
	if len(remove) == 0 {
		return paths
	}
	removeSet := make(map[string]bool, len(remove))
	for _, p := range remove {
		removeSet[p] = true
	}
	out := paths[:0]
	for _, p := range paths {
		if !removeSet[p] {
			out = append(out, p)
		}
	}
	return out
}
