package broker

import (
	"strconv"
	"strings"

	"github.com/uspbroker/broker/internal/metrics"
	"github.com/uspbroker/broker/internal/usp"
)

// PassThru is the fast path: every path named in a
// request resolves to the same owning Service, so the request is
// forwarded verbatim (only the msg_id is rewritten, for correlation)
// instead of being split and rebuilt path-by-path. The response, once
// it arrives, is forwarded back to the originating Controller with its
// own msg_id rewritten to match the original request — the Controller
// never sees the Broker-minted id.
//
// Delete additionally consults the instance cache before forwarding: a
// Delete naming an instance the cache knows is already gone fails fast
// instead of round-tripping to the Service for nothing. Add and Delete
// both update the cache from their own response once it comes back, so
// a later passthru sees the effect without a fresh GetInstances.
func (a *Actor) attemptPassthru(endpointID string, msg *usp.Message, instanceID int) {
	svc := a.serviceByInstance(instanceID)
	if svc == nil {
		a.sendError(endpointID, msg, errUnknownService(""))
		return
	}

	msgType := msg.Header.MsgType
	if fault := a.checkInstanceCache(instanceID, msgType, msg); fault != nil {
		metrics.PassthruTotal.WithLabelValues("error").Inc()
		a.sendError(endpointID, msg, fault)
		return
	}

	metrics.PassthruTotal.WithLabelValues("forwarded").Inc()

	originMsgID := msg.MsgID()
	if msgType == usp.MsgAdd {
		svc.AddPassthruInFlight++
	}

	a.forwardToService(svc, msgType, func(brokerMsgID string) *usp.Message {
		fwd := *msg
		fwd.Header = &usp.Header{MsgID: brokerMsgID, MsgType: msgType}
		return &fwd
	}, func(resp *usp.Message, fault *usp.Fault) {
		if fault != nil {
			metrics.PassthruTotal.WithLabelValues("error").Inc()
			a.sendError(endpointID, &usp.Message{Header: &usp.Header{MsgID: originMsgID}}, fault)
		} else {
			a.updateInstanceCache(instanceID, msgType, resp)
			resp.Header.MsgID = originMsgID
			a.send(endpointID, resp)
		}
		if msgType == usp.MsgAdd {
			svc.AddPassthruInFlight--
			a.flushPendingAddNotifies(svc)
		}
	})
}

// checkInstanceCache rejects a Delete against an instance the cache
// already knows does not exist, without ever contacting the Service.
// A cache miss (nothing seeded for that parent object yet) is not a
// rejection — it just means there is nothing to check against, so the
// Delete proceeds and the Service is the authority.
func (a *Actor) checkInstanceCache(instanceID int, msgType usp.MessageType, msg *usp.Message) *usp.Fault {
	if msgType != usp.MsgDelete || msg.Delete == nil {
		return nil
	}
	for _, path := range msg.Delete.ObjPaths {
		parent, inst, ok := splitInstancePath(path)
		if !ok {
			continue
		}
		cached, hit := a.instCache.Get(instanceID, parent)
		if !hit {
			continue
		}
		if !containsInstance(cached, inst) {
			return usp.ErrDeregisterFailure("path %q names an instance not present in the last known instance set for %q", path, parent)
		}
	}
	return nil
}

// updateInstanceCache keeps the cache in step with a passthru Add or
// Delete that the Service just confirmed, so the next Delete against
// the same object consults a cache that reflects this one's effect
// instead of only what the last GetInstances sweep saw.
func (a *Actor) updateInstanceCache(instanceID int, msgType usp.MessageType, resp *usp.Message) {
	switch msgType {
	case usp.MsgAdd:
		if resp.AddResp == nil {
			return
		}
		for _, result := range resp.AddResp.CreatedObjResults {
			if result.Failure != nil {
				continue
			}
			cached, _ := a.instCache.Get(instanceID, result.RequestedPath)
			a.instCache.Put(instanceID, result.RequestedPath, append(cached, strconv.Itoa(result.InstanceNumber)))
		}
	case usp.MsgDelete:
		if resp.DeleteResp == nil {
			return
		}
		for _, result := range resp.DeleteResp.DeletedObjResults {
			if result.Failure != nil {
				continue
			}
			parent, inst, ok := splitInstancePath(result.RequestedPath)
			if !ok {
				continue
			}
			if cached, hit := a.instCache.Get(instanceID, parent); hit {
				a.instCache.Put(instanceID, parent, removeInstance(cached, inst))
			}
		}
	}
}

// splitInstancePath splits an instance path ("Device.Foo.3.") into its
// parent multi-instance object ("Device.Foo.") and instance number
// ("3"). ok is false for a path that does not end in a numeric
// instance segment.
func splitInstancePath(path string) (parent, instance string, ok bool) {
	trimmed := strings.TrimSuffix(path, ".")
	idx := strings.LastIndex(trimmed, ".")
	if idx < 0 {
		return "", "", false
	}
	instance = trimmed[idx+1:]
	if _, err := strconv.Atoi(instance); err != nil {
		return "", "", false
	}
	return trimmed[:idx+1], instance, true
}

func containsInstance(instances []string, inst string) bool {
	for _, i := range instances {
		if i == inst {
			return true
		}
	}
	return false
}

func removeInstance(instances []string, inst string) []string {
	out := instances[:0]
	for _, i := range instances {
		if i != inst {
			out = append(out, i)
		}
	}
	return out
}

// flushPendingAddNotifies relays every ObjectCreation/ObjectDeletion
// notification held back while an Add passthru was in flight, once the
// last such passthru for this Service has completed.
func (a *Actor) flushPendingAddNotifies(svc *Service) {
	if svc.AddPassthruInFlight > 0 || len(svc.PendingAddNotifies) == 0 {
		return
	}
	queued := svc.PendingAddNotifies
	svc.PendingAddNotifies = nil
	for _, msg := range queued {
		a.relayNotify(svc, msg)
	}
}
