package mtp

import (
	"testing"

	"github.com/uspbroker/broker/internal/usp"
)

// TestLocalConnSenderAttribution guards against tagging a delivered
// record with the receiver's own endpoint id instead of the sender's:
// Deliver's first argument must identify who sent it, not who received
// it.
func TestLocalConnSenderAttribution(t *testing.T) {
	var gotFromA, gotFromB string
	inboxA := InboxFunc(func(endpointID string, rec *usp.Record) { gotFromB = endpointID })
	inboxB := InboxFunc(func(endpointID string, rec *usp.Record) { gotFromA = endpointID })

	connA, connB := NewLocalPair("endpoint-a", inboxA, "endpoint-b", inboxB)

	if err := connA.Send(&usp.Record{}); err != nil {
		t.Fatalf("connA.Send() error = %v", err)
	}
	if gotFromA != "endpoint-a" {
		t.Errorf("B's inbox saw sender %q, want %q", gotFromA, "endpoint-a")
	}

	if err := connB.Send(&usp.Record{}); err != nil {
		t.Fatalf("connB.Send() error = %v", err)
	}
	if gotFromB != "endpoint-b" {
		t.Errorf("A's inbox saw sender %q, want %q", gotFromB, "endpoint-b")
	}
}

func TestLocalConnEndpointIDReportsRemote(t *testing.T) {
	connA, connB := NewLocalPair("endpoint-a", InboxFunc(func(string, *usp.Record) {}), "endpoint-b", InboxFunc(func(string, *usp.Record) {}))

	if connA.EndpointID() != "endpoint-b" {
		t.Errorf("connA.EndpointID() = %q, want %q", connA.EndpointID(), "endpoint-b")
	}
	if connB.EndpointID() != "endpoint-a" {
		t.Errorf("connB.EndpointID() = %q, want %q", connB.EndpointID(), "endpoint-a")
	}
}

func TestLocalConnSendAfterCloseFails(t *testing.T) {
	connA, _ := NewLocalPair("endpoint-a", InboxFunc(func(string, *usp.Record) {}), "endpoint-b", InboxFunc(func(string, *usp.Record) {}))

	if err := connA.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := connA.Send(&usp.Record{}); err == nil {
		t.Error("Send() after Close() should return an error")
	}
}
