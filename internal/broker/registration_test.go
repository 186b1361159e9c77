package broker

import (
	"testing"

	"github.com/uspbroker/broker/internal/usp"
)

func TestHandleRegisterSuccess(t *testing.T) {
	a := newTestActor(t)
	conn := &fakeConn{endpointID: "svc-1"}
	a.connect("svc-1", conn)

	a.handleRegister("svc-1", &usp.Message{
		Header:   &usp.Header{MsgID: "reg-1", MsgType: usp.MsgRegister},
		Register: &usp.Register{RegPaths: []usp.RegisterPath{{Path: "Device.WiFi."}}},
	})

	svc := a.serviceByEndpoint("svc-1")
	if svc == nil {
		t.Fatal("handleRegister() did not move the connection into the registry")
	}
	if svc.State != ServiceActive {
		t.Errorf("State = %v, want %v", svc.State, ServiceActive)
	}
	if len(svc.RegisteredPaths) != 1 || svc.RegisteredPaths[0] != "Device.WiFi." {
		t.Errorf("RegisteredPaths = %v", svc.RegisteredPaths)
	}

	if len(conn.sent) != 1 {
		t.Fatalf("expected one RegisterResp sent, got %d", len(conn.sent))
	}
	resp := conn.sent[0].Message
	if resp.Header.MsgID != "reg-1" {
		t.Errorf("RegisterResp MsgID = %q, want %q", resp.Header.MsgID, "reg-1")
	}
	if resp.RegisterResp == nil || len(resp.RegisterResp.RegisteredPathResults) != 1 {
		t.Fatal("RegisterResp missing path results")
	}
	if resp.RegisterResp.RegisteredPathResults[0].Success == nil {
		t.Error("expected the registered path to succeed")
	}
}

func TestHandleRegisterOverlappingPathFails(t *testing.T) {
	a := newTestActor(t)
	connectService(t, a, "svc-1", []string{"Device.WiFi."})

	conn2 := &fakeConn{endpointID: "svc-2"}
	a.connect("svc-2", conn2)
	a.handleRegister("svc-2", &usp.Message{
		Header:   &usp.Header{MsgID: "reg-2", MsgType: usp.MsgRegister},
		Register: &usp.Register{RegPaths: []usp.RegisterPath{{Path: "Device.WiFi.Radio.1."}}},
	})

	resp := conn2.sent[0].Message
	result := resp.RegisterResp.RegisteredPathResults[0]
	if result.Success != nil {
		t.Error("overlapping path should not succeed")
	}
	if result.Failure == nil || result.Failure.ErrCode != usp.ErrCodePathAlreadyRegistered {
		t.Errorf("Failure = %+v, want ErrCodePathAlreadyRegistered", result.Failure)
	}
}

func TestHandleRegisterUnknownConnectionErrors(t *testing.T) {
	a := newTestActor(t)
	// no connect() call first
	a.handleRegister("ghost", &usp.Message{
		Header:   &usp.Header{MsgID: "reg-1", MsgType: usp.MsgRegister},
		Register: &usp.Register{RegPaths: []usp.RegisterPath{{Path: "Device.WiFi."}}},
	})
	// connFor("ghost") is nil so send() just logs; nothing to assert on
	// the wire, but handleRegister must not panic and must not create a
	// Service record.
	if a.serviceByEndpoint("ghost") != nil {
		t.Error("no Service should have been created for an unknown connection")
	}
}

func TestHandleDeregisterSuccess(t *testing.T) {
	a := newTestActor(t)
	svc, conn := connectService(t, a, "svc-1", []string{"Device.WiFi.", "Device.Ethernet."})
	conn.sent = nil

	a.handleDeregister("svc-1", &usp.Message{
		Header:     &usp.Header{MsgID: "dereg-1", MsgType: usp.MsgDeregister},
		Deregister: &usp.Deregister{Paths: []string{"Device.WiFi."}},
	})

	if len(svc.RegisteredPaths) != 1 || svc.RegisteredPaths[0] != "Device.Ethernet." {
		t.Errorf("RegisteredPaths after deregister = %v", svc.RegisteredPaths)
	}
	resp := conn.sent[0].Message
	result := resp.DeregisterResp.DeregisteredPathResults[0]
	if result.Success == nil {
		t.Error("expected the deregistered path to succeed")
	}
}

func TestHandleDeregisterUnownedPathFails(t *testing.T) {
	a := newTestActor(t)
	_, conn := connectService(t, a, "svc-1", []string{"Device.WiFi."})
	conn.sent = nil

	a.handleDeregister("svc-1", &usp.Message{
		Header:     &usp.Header{MsgID: "dereg-1", MsgType: usp.MsgDeregister},
		Deregister: &usp.Deregister{Paths: []string{"Device.Ethernet."}},
	})

	result := conn.sent[0].Message.DeregisterResp.DeregisteredPathResults[0]
	if result.Success != nil {
		t.Error("deregistering a path the Service never registered should fail")
	}
}

func TestHandleDeregisterAllSweepsEveryOwnedPath(t *testing.T) {
	a := newTestActor(t)
	svc, conn := connectService(t, a, "svc-1", []string{"Device.WiFi.", "Device.Ethernet."})
	conn.sent = nil

	a.handleDeregister("svc-1", &usp.Message{
		Header:     &usp.Header{MsgID: "dereg-1", MsgType: usp.MsgDeregister},
		Deregister: &usp.Deregister{Paths: nil},
	})

	if len(svc.RegisteredPaths) != 0 {
		t.Errorf("RegisteredPaths after deregister-all = %v, want empty", svc.RegisteredPaths)
	}
	resp := conn.sent[0].Message
	if resp.DeregisterResp == nil || len(resp.DeregisterResp.DeregisteredPathResults) != 2 {
		t.Fatalf("expected both owned paths reported, got %+v", resp.DeregisterResp)
	}
}

func TestHandleDeregisterAllRollsBackToSingleErrorOnFirstFailure(t *testing.T) {
	a := newTestActor(t)
	svc, conn := connectService(t, a, "svc-1", []string{"Device.WiFi.", "Device.Ethernet."})
	conn.sent = nil
	// An overlong registered path forces the all-paths sweep to hit a
	// failure partway through.
	overlong := "Device." + string(make([]byte, a.cfg.MaxDMPath)) + "."
	svc.RegisteredPaths = append(svc.RegisteredPaths, overlong)

	a.handleDeregister("svc-1", &usp.Message{
		Header:     &usp.Header{MsgID: "dereg-1", MsgType: usp.MsgDeregister},
		Deregister: &usp.Deregister{Paths: nil},
	})

	if len(conn.sent) != 1 {
		t.Fatalf("expected exactly one reply, got %d", len(conn.sent))
	}
	resp := conn.sent[0].Message
	if resp.DeregisterResp != nil {
		t.Error("a failing deregister-all sweep must reply with a single ERROR, not a partial DeregisterResp")
	}
	if resp.Error == nil {
		t.Fatal("expected an Error reply")
	}
	if len(svc.RegisteredPaths) != 1 || svc.RegisteredPaths[0] != overlong {
		t.Errorf("RegisteredPaths = %v, want only the unprocessed tail path left (no cascading undo)", svc.RegisteredPaths)
	}
}
