package broker

import (
	"testing"

	"github.com/uspbroker/broker/internal/usp"
)

func TestForwardToServiceRecordsEntryAndSends(t *testing.T) {
	a := newTestActor(t)
	conn := &fakeConn{endpointID: "svc-1"}
	svc := &Service{EndpointID: "svc-1", InstanceNumber: 1, Conn: conn}

	a.forwardToService(svc, usp.MsgGet, func(msgID string) *usp.Message {
		return &usp.Message{Header: &usp.Header{MsgID: msgID}, Get: &usp.Get{Paths: []string{"Device.WiFi."}}}
	}, func(*usp.Message, *usp.Fault) {})

	if len(a.corr) != 1 {
		t.Fatalf("expected one correlator entry, got %d", len(a.corr))
	}
	if len(conn.sent) != 1 {
		t.Fatalf("expected one message sent, got %d", len(conn.sent))
	}
	sentMsgID := conn.sent[0].Message.Header.MsgID
	if _, ok := a.corr[sentMsgID]; !ok {
		t.Error("correlator is not keyed by the msg_id actually sent on the wire")
	}
}

func TestForwardToServiceResourcesExceeded(t *testing.T) {
	a := newTestActor(t)
	a.cfg.MaxInFlightRequests = 0
	svc := &Service{EndpointID: "svc-1", InstanceNumber: 1, Conn: &fakeConn{endpointID: "svc-1"}}

	var gotFault *usp.Fault
	a.forwardToService(svc, usp.MsgGet, func(msgID string) *usp.Message {
		return &usp.Message{Header: &usp.Header{MsgID: msgID}}
	}, func(msg *usp.Message, fault *usp.Fault) { gotFault = fault })

	if gotFault == nil || gotFault.Kind != usp.FaultResourcesExceeded {
		t.Errorf("gotFault = %v, want ResourcesExceeded", gotFault)
	}
	if len(a.corr) != 0 {
		t.Error("no correlator entry should be recorded when at capacity")
	}
}

func TestCompleteRequestResolvesAndRemoves(t *testing.T) {
	a := newTestActor(t)
	var got *usp.Message
	a.corr["m-1"] = &CorrelatorEntry{OnComplete: func(msg *usp.Message, fault *usp.Fault) { got = msg }}

	ok := a.completeRequest("m-1", &usp.Message{Header: &usp.Header{MsgID: "m-1"}})

	if !ok {
		t.Fatal("completeRequest() = false, want true for a known msg_id")
	}
	if got == nil {
		t.Error("OnComplete did not run")
	}
	if _, exists := a.corr["m-1"]; exists {
		t.Error("entry should be removed after completing")
	}
}

func TestCompleteRequestUnknownMsgID(t *testing.T) {
	a := newTestActor(t)
	if a.completeRequest("never-sent", &usp.Message{}) {
		t.Error("completeRequest() on an unknown msg_id should return false")
	}
}

func TestCompleteRequestErrorResolvesWithFault(t *testing.T) {
	a := newTestActor(t)
	var gotFault *usp.Fault
	a.corr["m-1"] = &CorrelatorEntry{OnComplete: func(msg *usp.Message, fault *usp.Fault) { gotFault = fault }}

	fault := usp.ErrCommandFailure("boom")
	ok := a.completeRequestError("m-1", fault)

	if !ok {
		t.Fatal("completeRequestError() = false, want true")
	}
	if gotFault != fault {
		t.Error("OnComplete did not receive the expected fault")
	}
}

func TestTimeoutRequestFiresOnComplete(t *testing.T) {
	a := newTestActor(t)
	var gotFault *usp.Fault
	a.corr["m-1"] = &CorrelatorEntry{MsgType: usp.MsgGet, OnComplete: func(msg *usp.Message, fault *usp.Fault) { gotFault = fault }}

	a.timeoutRequest("m-1")

	if gotFault == nil {
		t.Fatal("expected a timeout fault")
	}
	if _, exists := a.corr["m-1"]; exists {
		t.Error("entry should be removed on timeout")
	}
}

func TestTimeoutRequestAlreadyCompletedIsNoop(t *testing.T) {
	a := newTestActor(t)
	// no entry recorded under "m-1"
	a.timeoutRequest("m-1")
}
