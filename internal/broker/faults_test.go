package broker

import (
	"testing"

	"github.com/uspbroker/broker/internal/usp"
)

func TestFaultConstructorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  *usp.Fault
		want usp.FaultKind
	}{
		{"resources exceeded services", errResourcesExceededServices(64), usp.FaultResourcesExceeded},
		{"resources exceeded reqmap", errResourcesExceededReqMap(4096), usp.FaultResourcesExceeded},
		{"unknown service", errUnknownService("svc-1"), usp.FaultInternalError},
		{"no schema owner", errNoSchemaOwner("Device.Unowned."), usp.FaultRequestDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.want)
			}
		})
	}
}
