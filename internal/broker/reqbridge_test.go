package broker

import (
	"testing"

	"github.com/uspbroker/broker/internal/store"
	"github.com/uspbroker/broker/internal/usp"
)

// fakeRequestTable is an in-memory store.RequestTable stand-in for
// tests that need to observe whether a row was written and whether it
// was later marked Active.
type fakeRequestTable struct {
	rows map[string]store.RequestRow
}

func newFakeRequestTable() *fakeRequestTable {
	return &fakeRequestTable{rows: make(map[string]store.RequestRow)}
}

func (f *fakeRequestTable) Put(row store.RequestRow) error {
	f.rows[row.MsgID] = row
	return nil
}

func (f *fakeRequestTable) Get(msgID string) (store.RequestRow, bool, error) {
	row, ok := f.rows[msgID]
	return row, ok, nil
}

func (f *fakeRequestTable) Delete(msgID string) error {
	delete(f.rows, msgID)
	return nil
}

func (f *fakeRequestTable) All() ([]store.RequestRow, error) {
	var out []store.RequestRow
	for _, row := range f.rows {
		out = append(out, row)
	}
	return out, nil
}

func putAsyncRebootSchema(a *Actor, instanceID int) {
	a.schema.PutSchema(instanceID, []usp.SupportedObj{{
		SupportedObjPath: "Device.Foo.",
		SupportedCommands: []usp.SupportedCommand{
			{CommandName: "Reboot()", CommandType: usp.CommandAsync},
		},
	}})
}

func TestHandleOperateRefusesAsyncWithoutOperationCompleteSubscription(t *testing.T) {
	a := newTestActor(t)
	svc, svcConn := connectService(t, a, "svc-1", []string{"Device.Foo."})
	putAsyncRebootSchema(a, svc.InstanceNumber)
	svcConn.sent = nil

	ctrl := &fakeConn{endpointID: "ctrl-1"}
	a.pendingConns["ctrl-1"] = &Service{EndpointID: "ctrl-1", Conn: ctrl}

	a.handleOperate("ctrl-1", &usp.Message{
		Header:  &usp.Header{MsgID: "op-1", MsgType: usp.MsgOperate},
		Operate: &usp.Operate{Command: "Device.Foo.Reboot()", CommandKey: "K"},
	})

	if len(svcConn.sent) != 0 {
		t.Error("async Operate with no OperationComplete subscription must never reach the Service")
	}
	if len(ctrl.sent) != 1 || ctrl.sent[0].Message.Error == nil {
		t.Fatal("expected an Error reply to the Controller")
	}
	if len(a.reqMap) != 0 {
		t.Error("no ReqMapEntry should be created for a refused Operate")
	}
}

func TestHandleOperateAsyncInsertsReqMapEntryBeforeSending(t *testing.T) {
	a := newTestActor(t)
	svc, svcConn := connectService(t, a, "svc-1", []string{"Device.Foo."})
	putAsyncRebootSchema(a, svc.InstanceNumber)
	a.subsMap["BROKER-1"] = &SubsMapEntry{
		SubscriptionID: "BROKER-1", ServiceInstance: svc.InstanceNumber,
		Path: "Device.Foo.", NotifType: usp.NotifyOperationComplete,
	}
	svcConn.sent = nil

	ctrl := &fakeConn{endpointID: "ctrl-1"}
	a.pendingConns["ctrl-1"] = &Service{EndpointID: "ctrl-1", Conn: ctrl}

	a.handleOperate("ctrl-1", &usp.Message{
		Header:  &usp.Header{MsgID: "op-1", MsgType: usp.MsgOperate},
		Operate: &usp.Operate{Command: "Device.Foo.Reboot()", CommandKey: "K"},
	})

	if len(a.reqMap) != 1 {
		t.Fatalf("expected one ReqMapEntry inserted before the Operate was sent, got %d", len(a.reqMap))
	}
	if len(svcConn.sent) != 1 || svcConn.sent[0].Message.Header.MsgType != usp.MsgOperate {
		t.Fatal("expected the Operate forwarded to the Service")
	}

	var entry *ReqMapEntry
	for _, e := range a.reqMap {
		entry = e
	}
	if entry.Path != "Device.Foo.Reboot()" || entry.CommandKey != "K" {
		t.Errorf("entry = %+v, want path/key from the Operate", entry)
	}
}

func TestSettleAsyncDispatchMarksRequestRowActive(t *testing.T) {
	a := newTestActor(t)
	reqTable := newFakeRequestTable()
	a.reqTable = reqTable
	svc, svcConn := connectService(t, a, "svc-1", []string{"Device.Foo."})
	putAsyncRebootSchema(a, svc.InstanceNumber)
	a.subsMap["BROKER-1"] = &SubsMapEntry{
		SubscriptionID: "BROKER-1", ServiceInstance: svc.InstanceNumber,
		Path: "Device.Foo.", NotifType: usp.NotifyOperationComplete,
	}
	svcConn.sent = nil
	ctrl := &fakeConn{endpointID: "ctrl-1"}
	a.pendingConns["ctrl-1"] = &Service{EndpointID: "ctrl-1", Conn: ctrl}

	a.handleOperate("ctrl-1", &usp.Message{
		Header:  &usp.Header{MsgID: "op-1", MsgType: usp.MsgOperate},
		Operate: &usp.Operate{Command: "Device.Foo.Reboot()", CommandKey: "K"},
	})

	msgID := svcConn.sent[0].Message.Header.MsgID
	a.completeRequest(msgID, &usp.Message{
		Header:      &usp.Header{MsgID: msgID, MsgType: usp.MsgOperateResp},
		OperateResp: &usp.OperateResp{ReqObjPath: "Device.LocalAgent.Request.3."},
	})

	if len(a.reqMap) != 1 {
		t.Fatal("the ReqMapEntry must survive an OperateResp carrying req_obj_path")
	}

	found := false
	for _, row := range reqTable.rows {
		if row.Path == "Device.Foo.Reboot()" {
			found = true
			if !row.Active {
				t.Error("Request row should be marked Active once req_obj_path comes back")
			}
		}
	}
	if !found {
		t.Fatal("expected a Request row for the async command")
	}
}

func TestHandleOperateAsyncClosesEntryOnUnexpectedOutputArgs(t *testing.T) {
	a := newTestActor(t)
	svc, svcConn := connectService(t, a, "svc-1", []string{"Device.Foo."})
	putAsyncRebootSchema(a, svc.InstanceNumber)
	a.subsMap["BROKER-1"] = &SubsMapEntry{
		SubscriptionID: "BROKER-1", ServiceInstance: svc.InstanceNumber,
		Path: "Device.Foo.", NotifType: usp.NotifyOperationComplete,
	}
	svcConn.sent = nil
	ctrl := &fakeConn{endpointID: "ctrl-1"}
	a.pendingConns["ctrl-1"] = &Service{EndpointID: "ctrl-1", Conn: ctrl}

	a.handleOperate("ctrl-1", &usp.Message{
		Header:  &usp.Header{MsgID: "op-1", MsgType: usp.MsgOperate},
		Operate: &usp.Operate{Command: "Device.Foo.Reboot()", CommandKey: "K"},
	})
	msgID := svcConn.sent[0].Message.Header.MsgID

	a.completeRequest(msgID, &usp.Message{
		Header:      &usp.Header{MsgID: msgID, MsgType: usp.MsgOperateResp},
		OperateResp: &usp.OperateResp{OutputArgs: map[string]string{"result": "ok"}},
	})

	if len(a.reqMap) != 0 {
		t.Error("an OperateResp with output args instead of req_obj_path should close the entry immediately")
	}
}

func TestCompleteAsyncOperateClosesMatchingEntry(t *testing.T) {
	a := newTestActor(t)
	reqInstance, _ := a.reqArena.allocate()
	a.reqMap[reqMapKey(1, "Device.Foo.Reboot()", "K")] = &ReqMapEntry{
		RequestInstance: reqInstance, Path: "Device.Foo.Reboot()", CommandKey: "K", ServiceInstance: 1,
	}

	a.completeAsyncOperate(&Service{InstanceNumber: 1}, &usp.OperCompleteNotify{
		ObjPath: "Device.Foo.", CommandName: "Reboot()", CommandKey: "K",
	})

	if len(a.reqMap) != 0 {
		t.Error("expected the ReqMapEntry removed on matching OperationComplete")
	}
}

func TestCompleteAsyncOperateIgnoresUnmatchedNotify(t *testing.T) {
	a := newTestActor(t)
	reqInstance, _ := a.reqArena.allocate()
	a.reqMap[reqMapKey(1, "Device.Foo.Reboot()", "K")] = &ReqMapEntry{
		RequestInstance: reqInstance, Path: "Device.Foo.Reboot()", CommandKey: "K", ServiceInstance: 1,
	}

	a.completeAsyncOperate(&Service{InstanceNumber: 1}, &usp.OperCompleteNotify{
		ObjPath: "Device.Foo.", CommandName: "Reboot()", CommandKey: "OTHER",
	})

	if len(a.reqMap) != 1 {
		t.Error("a Notify for a different command_key must not touch an unrelated entry")
	}
}

func TestFailAsyncCommandsForDisconnectNotifiesSubscriber(t *testing.T) {
	a := newTestActor(t)
	reqInstance, _ := a.reqArena.allocate()
	a.reqMap["k1"] = &ReqMapEntry{RequestInstance: reqInstance, Path: "Device.Foo.Reboot()", CommandKey: "K", ServiceInstance: 1}
	a.subsMap["BROKER-1"] = &SubsMapEntry{
		SubscriptionID: "BROKER-1", ServiceInstance: 1, ControllerEndpoint: "ctrl-1",
		Path: "Device.Foo.", NotifType: usp.NotifyOperationComplete,
	}
	ctrl := &fakeConn{endpointID: "ctrl-1"}
	a.pendingConns["ctrl-1"] = &Service{EndpointID: "ctrl-1", Conn: ctrl}

	a.failAsyncCommandsFor(1, "", usp.ErrCommandFailure("service disconnected"))

	if len(a.reqMap) != 0 {
		t.Error("every active command for the instance should be closed out")
	}
	if len(ctrl.sent) != 1 {
		t.Fatalf("expected a synthesized OperationComplete failure Notify, got %d sends", len(ctrl.sent))
	}
	oc := ctrl.sent[0].Message.Notify.OperComplete
	if oc == nil || oc.Failure == nil {
		t.Error("expected the Notify to carry an OperFailure")
	}
}

func TestFailAsyncCommandsForDeregisteredPathOnlyFailsDescendants(t *testing.T) {
	a := newTestActor(t)
	r1, _ := a.reqArena.allocate()
	r2, _ := a.reqArena.allocate()
	a.reqMap["k1"] = &ReqMapEntry{RequestInstance: r1, Path: "Device.Foo.Reboot()", CommandKey: "K1", ServiceInstance: 1}
	a.reqMap["k2"] = &ReqMapEntry{RequestInstance: r2, Path: "Device.Bar.Reboot()", CommandKey: "K2", ServiceInstance: 1}

	a.failAsyncCommandsFor(1, "Device.Foo.", usp.ErrCommandFailure("path deregistered"))

	if _, ok := a.reqMap["k1"]; ok {
		t.Error("the command under the deregistered path should be closed")
	}
	if _, ok := a.reqMap["k2"]; !ok {
		t.Error("a command under an unrelated path should survive")
	}
}
