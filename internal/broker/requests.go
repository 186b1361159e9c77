package broker

import (
	"strings"

	"github.com/uspbroker/broker/internal/usp"
)

// handleControllerRequest is the single front door every inbound
// Controller request passes through: permission enforcement, path
// resolution against the SchemaStore, and the decision between the
// PassThru fast path (one owning Service), the generic vendor hook
// path (paths split across Services, partial results merged back into
// one reply), and RequestBridge for Operate.
func (a *Actor) handleControllerRequest(endpointID string, msg *usp.Message) {
	paths := requestPaths(msg)
	if len(paths) == 0 {
		a.sendError(endpointID, msg, usp.ErrMessageNotUnderstood("request carries no data model paths"))
		return
	}

	if !a.checkPermissions(endpointID, msg.Header.MsgType, paths) {
		a.sendError(endpointID, msg, usp.ErrRequestDenied("endpoint %q lacks permission for the requested path(s)", endpointID))
		return
	}

	if allUnder(paths, isSubscriptionPath) {
		a.handleSubscriptionRequest(endpointID, msg)
		return
	}

	// Operate never takes the PassThru fast path: async commands need
	// RequestBridge's precondition check and ReqMapEntry bookkeeping,
	// which a verbatim forward would skip.
	if msg.Operate != nil {
		a.handleOperate(endpointID, msg)
		return
	}

	owners := make(map[int][]string) // instance -> subset of paths it owns
	var unowned []string
	for _, p := range paths {
		instanceID, _, ok := a.schema.Lookup(p)
		if !ok {
			unowned = append(unowned, p)
			continue
		}
		owners[instanceID] = append(owners[instanceID], p)
	}

	if len(owners) == 0 {
		a.sendError(endpointID, msg, errNoSchemaOwner(strings.Join(unowned, ", ")))
		return
	}

	if len(owners) == 1 && len(unowned) == 0 {
		for instanceID := range owners {
			a.attemptPassthru(endpointID, msg, instanceID)
			return
		}
	}

	a.dispatchSplit(endpointID, msg, owners, unowned)
}

// checkPermissions enforces the minimum permission bit each message
// type requires against every path it names.
func (a *Actor) checkPermissions(endpointID string, msgType usp.MessageType, paths []string) bool {
	want := permissionFor(msgType)
	for _, p := range paths {
		if !a.perms.Allowed(endpointID, p, want) {
			return false
		}
	}
	return true
}

func permissionFor(msgType usp.MessageType) usp.Permission {
	switch msgType {
	case usp.MsgGet, usp.MsgGetInstances:
		return usp.PermitGet
	case usp.MsgSet:
		return usp.PermitSet
	case usp.MsgAdd:
		return usp.PermitAdd
	case usp.MsgDelete:
		return usp.PermitDelete
	case usp.MsgOperate:
		return usp.PermitOperate
	default:
		return usp.PermitGet
	}
}

// requestPaths extracts the data model paths a request names, which
// decides both permission checks and schema-owner resolution.
func requestPaths(msg *usp.Message) []string {
	switch {
	case msg.Get != nil:
		return msg.Get.Paths
	case msg.Set != nil:
		paths := make([]string, len(msg.Set.UpdateObjs))
		for i, u := range msg.Set.UpdateObjs {
			paths[i] = u.ObjPath
		}
		return paths
	case msg.Add != nil:
		paths := make([]string, len(msg.Add.CreateObjs))
		for i, c := range msg.Add.CreateObjs {
			paths[i] = c.ObjPath
		}
		return paths
	case msg.Delete != nil:
		return msg.Delete.ObjPaths
	case msg.Operate != nil:
		return []string{commandObjectPath(msg.Operate.Command)}
	case msg.GetInstances != nil:
		return msg.GetInstances.ObjPaths
	default:
		return nil
	}
}

func allUnder(paths []string, pred func(string) bool) bool {
	for _, p := range paths {
		if !pred(p) {
			return false
		}
	}
	return true
}

// commandObjectPath strips the trailing command name off a full
// command path ("Device.WiFi.Reset()" -> "Device.WiFi."), since
// schema ownership is tracked per object, not per command.
func commandObjectPath(command string) string {
	command = strings.TrimSuffix(command, "()")
	idx := strings.LastIndex(command, ".")
	if idx < 0 {
		return command
	}
	return command[:idx+1]
}

// dispatchSplit handles the generic (non-passthru) case: paths that
// span more than one owning Service, or include paths no Service owns.
// Each owner gets a sub-request carrying only the paths it owns; their
// partial results are merged into one reply once every sub-request has
// completed or timed out. Faults for unowned paths come first, then
// each Service's results in the order the sub-responses arrive; the
// original request's path order is not restored.
func (a *Actor) dispatchSplit(endpointID string, msg *usp.Message, owners map[int][]string, unowned []string) {
	merger := newResponseMerger(msg, unowned)
	merger.pending = len(owners)

	if merger.pending == 0 {
		a.send(endpointID, merger.finish())
		return
	}

	for instanceID, subset := range owners {
		svc := a.serviceByInstance(instanceID)
		if svc == nil {
			merger.addFault(subset, errUnknownService(""))
			if merger.done() {
				a.send(endpointID, merger.finish())
			}
			continue
		}
		sub := subsetMessage(msg, subset)
		a.dispatchVendorHook(svc, sub, func(resp *usp.Message, fault *usp.Fault) {
			if fault != nil {
				merger.addFault(subset, fault)
			} else {
				merger.addResult(resp)
			}
			if merger.done() {
				a.send(endpointID, merger.finish())
			}
		})
	}
}
