package broker

import (
	"testing"

	"github.com/uspbroker/broker/internal/usp"
)

func TestSendToActiveService(t *testing.T) {
	a := newTestActor(t)
	svc, conn := connectService(t, a, "svc-1", nil)
	conn.sent = nil

	a.send(svc.EndpointID, &usp.Message{Header: &usp.Header{MsgID: "m-1", MsgType: usp.MsgGetResp}})

	if len(conn.sent) != 1 {
		t.Fatalf("expected one message sent, got %d", len(conn.sent))
	}
	if conn.sent[0].FromID != a.cfg.EndpointID {
		t.Errorf("FromID = %q, want %q", conn.sent[0].FromID, a.cfg.EndpointID)
	}
	if conn.sent[0].ToID != "svc-1" {
		t.Errorf("ToID = %q, want %q", conn.sent[0].ToID, "svc-1")
	}
}

func TestSendToPendingConnection(t *testing.T) {
	a := newTestActor(t)
	conn := &fakeConn{endpointID: "svc-1"}
	a.connect("svc-1", conn)

	a.send("svc-1", &usp.Message{Header: &usp.Header{MsgID: "m-1", MsgType: usp.MsgRegisterResp}})

	if len(conn.sent) != 1 {
		t.Fatalf("expected one message sent to the pending connection, got %d", len(conn.sent))
	}
}

func TestSendUnknownEndpointIsDropped(t *testing.T) {
	a := newTestActor(t)
	// No panic, no send, just a logged warning.
	a.send("ghost", &usp.Message{Header: &usp.Header{MsgID: "m-1", MsgType: usp.MsgGetResp}})
}

func TestSendErrorBuildsWireError(t *testing.T) {
	a := newTestActor(t)
	_, conn := connectService(t, a, "svc-1", nil)
	conn.sent = nil

	a.sendError("svc-1", &usp.Message{Header: &usp.Header{MsgID: "orig-1"}}, usp.ErrRequestDenied("no access"))

	if len(conn.sent) != 1 {
		t.Fatalf("expected one Error message sent, got %d", len(conn.sent))
	}
	errMsg := conn.sent[0].Message
	if errMsg.Header.MsgID != "orig-1" {
		t.Errorf("MsgID = %q, want %q", errMsg.Header.MsgID, "orig-1")
	}
	if errMsg.Error.ErrCode != usp.ErrCodeRequestDenied {
		t.Errorf("ErrCode = %v, want RequestDenied", errMsg.Error.ErrCode)
	}
}
