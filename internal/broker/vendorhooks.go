package broker

import "github.com/uspbroker/broker/internal/usp"

// VendorHookAdapter is the generic path: forward one
// message to one Service instance and hand the raw response or fault
// back to the caller's continuation. It differs from PassThru only in
// that its caller (dispatchSplit) has already carved the original
// request down to the paths this one Service owns; the adapter itself
// knows nothing about merging.
func (a *Actor) dispatchVendorHook(svc *Service, sub *usp.Message, onComplete func(*usp.Message, *usp.Fault)) {
	msgType := sub.Header.MsgType
	a.forwardToService(svc, msgType, func(msgID string) *usp.Message {
		sub.Header.MsgID = msgID
		sub.Header.MsgType = msgType
		return sub
	}, onComplete)
}

// handleServiceResponse dispatches an inbound *Resp from a Service to
// whichever correlator entry is waiting for it — the passthrough and
// vendor-hook paths share this demultiplexing point that resumes
// whatever call is suspended on the matching msg_id. GetSupportedDMResp
// arrives through handleGetSupportedDMResp instead, which resolves its
// entry the same way, through completeRequest.
func (a *Actor) handleServiceResponse(endpointID string, msg *usp.Message) {
	if !a.completeRequest(msg.MsgID(), msg) {
		a.log.Warn().Str("endpoint", endpointID).Str("msg_id", msg.MsgID()).
			Str("type", string(msg.Header.MsgType)).Msg("unsolicited response")
	}
}

// handleServiceError dispatches an inbound wire Error from a Service to
// the waiting correlator entry.
func (a *Actor) handleServiceError(endpointID string, msg *usp.Message) {
	fault := &usp.Fault{
		Kind:    usp.FaultKindForCode(msg.Error.ErrCode),
		Code:    msg.Error.ErrCode,
		Message: msg.Error.ErrMsg,
	}
	if !a.completeRequestError(msg.MsgID(), fault) {
		a.log.Warn().Str("endpoint", endpointID).Str("msg_id", msg.MsgID()).Msg("unsolicited error")
	}
}
