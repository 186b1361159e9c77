package usp

import "testing"

// TestFaultConstructors tests each Err* constructor produces the right
// Kind/Code pairing and a formatted message.
func TestFaultConstructors(t *testing.T) {
	tests := []struct {
		name     string
		fault    *Fault
		wantKind FaultKind
		wantCode ErrorCode
	}{
		{"message not understood", ErrMessageNotUnderstood("bad %s", "path"), FaultMessageNotUnderstood, ErrCodeMessageNotUnderstood},
		{"register failure", ErrRegisterFailure("nope"), FaultRegisterFailure, ErrCodeRegisterFailure},
		{"deregister failure", ErrDeregisterFailure("nope"), FaultDeregisterFailure, ErrCodeDeregisterFailure},
		{"path already registered", ErrPathAlreadyRegistered("taken"), FaultPathAlreadyRegistered, ErrCodePathAlreadyRegistered},
		{"resources exceeded", ErrResourcesExceeded("full"), FaultResourcesExceeded, ErrCodeResourcesExceeded},
		{"request denied", ErrRequestDenied("denied"), FaultRequestDenied, ErrCodeRequestDenied},
		{"command failure", ErrCommandFailure("failed"), FaultCommandFailure, ErrCodeCommandFailure},
		{"internal error", ErrInternalError("oops"), FaultInternalError, ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.fault.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", tt.fault.Kind, tt.wantKind)
			}
			if tt.fault.Code != tt.wantCode {
				t.Errorf("Code = %v, want %v", tt.fault.Code, tt.wantCode)
			}
		})
	}
}

func TestFaultError(t *testing.T) {
	f := ErrRequestDenied("endpoint %q lacks permission", "ctrl-1")
	want := "RequestDenied: endpoint \"ctrl-1\" lacks permission"
	if got := f.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestFaultToUSPError(t *testing.T) {
	f := ErrInternalError("boom")
	wire := f.ToUSPError()
	if wire.ErrCode != ErrCodeInternalError {
		t.Errorf("ErrCode = %v, want %v", wire.ErrCode, ErrCodeInternalError)
	}
	if wire.ErrMsg != "boom" {
		t.Errorf("ErrMsg = %q, want %q", wire.ErrMsg, "boom")
	}
}

func TestFaultToOperFailure(t *testing.T) {
	f := ErrPathAlreadyRegistered("path %q taken", "Device.WiFi.")
	of := f.ToOperFailure()
	if of.ErrCode != ErrCodePathAlreadyRegistered {
		t.Errorf("ErrCode = %v, want %v", of.ErrCode, ErrCodePathAlreadyRegistered)
	}
	if of.ErrMsg != `path "Device.WiFi." taken` {
		t.Errorf("ErrMsg = %q", of.ErrMsg)
	}
}

// TestFaultKindForCode checks every known wire code maps back to its
// taxonomy member, and an unrecognised code falls back to InternalError.
func TestFaultKindForCode(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want FaultKind
	}{
		{ErrCodeMessageNotUnderstood, FaultMessageNotUnderstood},
		{ErrCodeRequestDenied, FaultRequestDenied},
		{ErrCodeResourcesExceeded, FaultResourcesExceeded},
		{ErrCodePathAlreadyRegistered, FaultPathAlreadyRegistered},
		{ErrCodeRegisterFailure, FaultRegisterFailure},
		{ErrCodeDeregisterFailure, FaultDeregisterFailure},
		{ErrCodeCommandFailure, FaultCommandFailure},
		{ErrCodeInternalError, FaultInternalError},
		{ErrorCode(1), FaultInternalError},
	}
	for _, tt := range tests {
		if got := FaultKindForCode(tt.code); got != tt.want {
			t.Errorf("FaultKindForCode(%v) = %v, want %v", tt.code, got, tt.want)
		}
	}
}
