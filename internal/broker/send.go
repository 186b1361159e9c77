package broker

import (
	"github.com/uspbroker/broker/internal/metrics"
	"github.com/uspbroker/broker/internal/usp"
)

// send wraps msg in a Record addressed to endpointID and hands it to
// whatever Connection is currently open for that endpoint, whether it
// is an active Service, a still-Connecting one, or the endpoint is
// unknown (in which case the record is dropped and logged — this can
// happen if a response is being built just as the connection drops).
func (a *Actor) send(endpointID string, msg *usp.Message) {
	conn := a.connFor(endpointID)
	if conn == nil {
		a.log.Warn().Str("endpoint", endpointID).Str("msg_id", msg.MsgID()).Msg("dropping outbound message: no connection")
		return
	}
	rec := &usp.Record{FromID: a.cfg.EndpointID, ToID: endpointID, Message: msg}
	if err := conn.Send(rec); err != nil {
		a.log.Error().Err(err).Str("endpoint", endpointID).Msg("failed to send message")
		return
	}
	metrics.MessagesSentTotal.WithLabelValues(string(msg.Header.MsgType)).Inc()
}

func (a *Actor) connFor(endpointID string) interface {
	Send(rec *usp.Record) error
} {
	if svc := a.serviceByEndpoint(endpointID); svc != nil {
		return svc.Conn
	}
	if svc := a.pendingConns[endpointID]; svc != nil {
		return svc.Conn
	}
	return nil
}

// sendError builds and sends a wire Error message replying to req.
func (a *Actor) sendError(endpointID string, req *usp.Message, fault *usp.Fault) {
	errMsg := a.builders.ErrorMsg(fault)
	errMsg.Header.MsgID = req.MsgID()
	a.send(endpointID, errMsg)
}
