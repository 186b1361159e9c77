package broker

import (
	"time"

	"github.com/uspbroker/broker/internal/metrics"
	"github.com/uspbroker/broker/internal/store"
	"github.com/uspbroker/broker/internal/usp"
)

// RequestCorrelator is the Broker's only suspension
// mechanism: forwardToService mints a Broker msg_id, records a
// CorrelatorEntry keyed by it, sends the rewritten request, and arms a
// timer. Whichever happens first — a matching response recorded by
// handleServiceResponse/handleServiceError, or the timer firing — runs
// the entry's OnComplete exactly once and removes it from corr. The
// actor goroutine is never blocked waiting for either.
func (a *Actor) forwardToService(svc *Service, msgType usp.MessageType, build func(msgID string) *usp.Message, onComplete func(*usp.Message, *usp.Fault)) {
	if len(a.corr) >= a.cfg.MaxInFlightRequests {
		onComplete(nil, errResourcesExceededReqMap(a.cfg.MaxInFlightRequests))
		return
	}

	msgID := a.ids.NextMsgID()
	msg := build(msgID)
	msg.Header.MsgID = msgID
	msg.Header.MsgType = msgType

	timer := metrics.NewTimer()
	wrapped := func(resp *usp.Message, fault *usp.Fault) {
		timer.ObserveDuration(metrics.RequestDuration.WithLabelValues(string(msgType)))
		onComplete(resp, fault)
	}

	entry := &CorrelatorEntry{
		BrokerMsgID:     msgID,
		ServiceInstance: svc.InstanceNumber,
		MsgType:         msgType,
		Deadline:        time.Now().Add(a.cfg.ResponseTimeout),
		OnComplete:      wrapped,
	}
	a.corr[msgID] = entry
	if a.reqTable != nil {
		_ = a.reqTable.Put(store.RequestRow{
			MsgID:           entry.BrokerMsgID,
			OriginEndpoint:  entry.OriginEndpoint,
			OriginMsgID:     entry.OriginMsgID,
			ServiceInstance: entry.ServiceInstance,
			MsgType:         entry.MsgType,
		})
	}

	a.armTimeout(msgID, a.cfg.ResponseTimeout)
	a.send(svc.EndpointID, msg)
}

// armTimeout schedules a timeout closure back onto the actor's own
// inbox via time.AfterFunc + submit, so the firing goroutine never
// touches corr directly.
func (a *Actor) armTimeout(msgID string, d time.Duration) {
	time.AfterFunc(d, func() {
		a.submit(func() { a.timeoutRequest(msgID) })
	})
}

func (a *Actor) timeoutRequest(msgID string) {
	entry, ok := a.corr[msgID]
	if !ok {
		return // already completed
	}
	delete(a.corr, msgID)
	if a.reqTable != nil {
		_ = a.reqTable.Delete(msgID)
	}
	metrics.RequestTimeoutsTotal.WithLabelValues(string(entry.MsgType)).Inc()
	if entry.OnComplete != nil {
		entry.OnComplete(nil, usp.ErrInternalError("timed out waiting for Service response to %s", entry.MsgType))
	}
}

// completeRequest resolves a pending entry with a successful response,
// invoked from the MsgType-specific response handlers once they've
// matched a msg_id.
func (a *Actor) completeRequest(msgID string, msg *usp.Message) bool {
	entry, ok := a.corr[msgID]
	if !ok {
		return false
	}
	delete(a.corr, msgID)
	if a.reqTable != nil {
		_ = a.reqTable.Delete(msgID)
	}
	if entry.OnComplete != nil {
		entry.OnComplete(msg, nil)
	}
	return true
}

// completeRequestError resolves a pending entry with a wire-level
// Error reply from the Service.
func (a *Actor) completeRequestError(msgID string, fault *usp.Fault) bool {
	entry, ok := a.corr[msgID]
	if !ok {
		return false
	}
	delete(a.corr, msgID)
	if a.reqTable != nil {
		_ = a.reqTable.Delete(msgID)
	}
	if entry.OnComplete != nil {
		entry.OnComplete(nil, fault)
	}
	return true
}
