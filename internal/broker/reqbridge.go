package broker

import (
	"fmt"
	"strings"

	"github.com/uspbroker/broker/internal/store"
	"github.com/uspbroker/broker/internal/usp"
)

// RequestBridge owns reqMap: in-flight asynchronous Operate
// commands, each tied to a row in the Broker's Request table. It
// refuses to start a command the Broker could never close out, marks
// the row Active once the Service confirms it queued the command, and
// closes it out — removing the map entry and the row together — when
// the matching OperationComplete Notify arrives (see handleNotify in
// subscriptions.go) or when the owning Service goes away.
func (a *Actor) handleOperate(endpointID string, msg *usp.Message) {
	op := msg.Operate
	fullCommand := op.Command
	objPath := commandObjectPath(fullCommand)

	instanceID, obj, ok := a.schema.Lookup(objPath)
	if !ok {
		a.sendError(endpointID, msg, errNoSchemaOwner(objPath))
		return
	}
	svc := a.serviceByInstance(instanceID)
	if svc == nil {
		a.sendError(endpointID, msg, errUnknownService(""))
		return
	}

	if commandTypeFor(obj, commandName(objPath, fullCommand)) != usp.CommandAsync {
		a.forwardOperate(endpointID, msg, svc, "")
		return
	}

	if !a.hasOperationCompleteSubscription(instanceID, objPath) {
		a.sendError(endpointID, msg, usp.ErrCommandFailure(
			"no OperationComplete subscription exists for %q; async Operate refused", fullCommand))
		return
	}

	reqInstance, ok := a.reqArena.allocate()
	if !ok {
		a.sendError(endpointID, msg, errResourcesExceededReqMap(a.cfg.MaxInFlightRequests))
		return
	}
	key := reqMapKey(instanceID, fullCommand, op.CommandKey)
	entry := &ReqMapEntry{
		RequestInstance: reqInstance,
		Path:            fullCommand,
		CommandKey:      op.CommandKey,
		ServiceInstance: instanceID,
	}
	a.reqMap[key] = entry
	a.putRequestRow(entry, false)

	a.forwardOperate(endpointID, msg, svc, key)
}

// forwardOperate sends the Operate to the owning Service and, for an
// async command (reqKey non-empty), settles the ReqMapEntry once the
// OperateResp arrives before relaying the reply back to the originator.
func (a *Actor) forwardOperate(endpointID string, msg *usp.Message, svc *Service, reqKey string) {
	originMsgID := msg.MsgID()
	a.forwardToService(svc, usp.MsgOperate, func(msgID string) *usp.Message {
		fwd := *msg
		fwd.Header = &usp.Header{MsgID: msgID, MsgType: usp.MsgOperate}
		return &fwd
	}, func(resp *usp.Message, fault *usp.Fault) {
		if reqKey != "" {
			a.settleAsyncDispatch(reqKey, resp, fault)
		}
		if fault != nil {
			a.sendError(endpointID, &usp.Message{Header: &usp.Header{MsgID: originMsgID}}, fault)
			return
		}
		resp.Header.MsgID = originMsgID
		a.send(endpointID, resp)
	})
}

// settleAsyncDispatch marks the Request row Active once the Service's
// OperateResp confirms it queued the command under req_obj_path, or
// tears the ReqMapEntry down immediately if the Service answered with
// output args instead — no Request row was ever opened on its side,
// so there is nothing left to close out later.
func (a *Actor) settleAsyncDispatch(key string, resp *usp.Message, fault *usp.Fault) {
	entry, ok := a.reqMap[key]
	if !ok {
		return
	}
	if fault != nil || resp.OperateResp == nil || resp.OperateResp.ReqObjPath == "" {
		a.closeReqMapEntry(key, entry)
		return
	}
	a.putRequestRow(entry, true)
}

// closeReqMapEntry removes a ReqMapEntry and its Request-table row
// together (invariant 4: the two are destroyed together), releasing
// the row's instance number back to the arena.
func (a *Actor) closeReqMapEntry(key string, entry *ReqMapEntry) {
	delete(a.reqMap, key)
	a.reqArena.release(entry.RequestInstance)
	if a.reqTable != nil {
		_ = a.reqTable.Delete(asyncRequestRowKey(entry.RequestInstance))
	}
}

// completeAsyncOperate handles the RequestBridge side of an inbound
// OperationComplete Notify: find the ReqMapEntry keyed by the
// reconstructed (path, command_key) pair and close it out. Routing the
// notification itself up to the subscribing Controller is handled
// separately by relayNotify.
func (a *Actor) completeAsyncOperate(svc *Service, oc *usp.OperCompleteNotify) {
	if oc == nil {
		return
	}
	fullCommand := oc.ObjPath + oc.CommandName
	key := reqMapKey(svc.InstanceNumber, fullCommand, oc.CommandKey)
	entry, ok := a.reqMap[key]
	if !ok {
		return
	}
	a.closeReqMapEntry(key, entry)
}

// failAsyncCommandsFor closes out and fails, with CommandFailure, every
// ReqMapEntry belonging to instanceID — used on Service disconnect
// (every active command) and on deregistration of a path (every
// command whose path descends from it).
func (a *Actor) failAsyncCommandsFor(instanceID int, underPath string, reason *usp.Fault) {
	for key, entry := range a.reqMap {
		if entry.ServiceInstance != instanceID {
			continue
		}
		if underPath != "" && !strings.HasPrefix(entry.Path, underPath) {
			continue
		}
		a.closeReqMapEntry(key, entry)
		a.notifyCommandFailure(entry, reason)
	}
}

// notifyCommandFailure synthesizes an OperationComplete failure Notify
// to every Controller subscribed to the command's object path, since
// the Service that would otherwise have reported completion is gone or
// the path was pulled out from under the command.
func (a *Actor) notifyCommandFailure(entry *ReqMapEntry, reason *usp.Fault) {
	objPath := commandObjectPath(entry.Path)
	for _, row := range a.subsMap {
		if row.ServiceInstance != entry.ServiceInstance || row.NotifType != usp.NotifyOperationComplete || row.Path != objPath {
			continue
		}
		out := &usp.Message{
			Header: &usp.Header{MsgID: a.ids.NextMsgID(), MsgType: usp.MsgNotify},
			Notify: &usp.Notify{
				SubscriptionID: row.SubscriptionID,
				OperComplete: &usp.OperCompleteNotify{
					ObjPath:     objPath,
					CommandName: commandName(objPath, entry.Path),
					CommandKey:  entry.CommandKey,
					Failure:     reason.ToOperFailure(),
				},
			},
		}
		a.send(row.ControllerEndpoint, out)
	}
}

func (a *Actor) putRequestRow(entry *ReqMapEntry, active bool) {
	if a.reqTable == nil {
		return
	}
	_ = a.reqTable.Put(store.RequestRow{
		MsgID:           asyncRequestRowKey(entry.RequestInstance),
		ServiceInstance: entry.ServiceInstance,
		MsgType:         usp.MsgOperate,
		Path:            entry.Path,
		CommandKey:      entry.CommandKey,
		Active:          active,
	})
}

func asyncRequestRowKey(instance int) string {
	return fmt.Sprintf("ASYNC-%d", instance)
}

func reqMapKey(serviceInstance int, path, commandKey string) string {
	return fmt.Sprintf("%d|%s|%s", serviceInstance, path, commandKey)
}

// hasOperationCompleteSubscription reports whether svc already has a
// bridged OperationComplete subscription covering objPath — the
// precondition for starting an async Operate, since without one the
// Broker could never learn the command finished and close its Request
// row.
func (a *Actor) hasOperationCompleteSubscription(instanceID int, objPath string) bool {
	for _, row := range a.subsMap {
		if row.ServiceInstance == instanceID && row.NotifType == usp.NotifyOperationComplete && row.Path == objPath {
			return true
		}
	}
	return false
}

// commandName strips the owning object's path prefix off a full
// command path, leaving just the command itself ("Reboot()").
func commandName(objPath, fullCommand string) string {
	return strings.TrimPrefix(fullCommand, objPath)
}

// commandTypeFor looks up a command's declared sync/async type from
// the schema, defaulting to sync if the name is unrecognised (a
// malformed or stale command path is handled downstream as any sync
// passthru failure would be).
func commandTypeFor(obj usp.SupportedObj, name string) usp.CommandType {
	for _, c := range obj.SupportedCommands {
		if c.CommandName == name {
			return c.CommandType
		}
	}
	return usp.CommandSync
}
