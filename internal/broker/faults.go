package broker

import "github.com/uspbroker/broker/internal/usp"

func errResourcesExceededServices(max int) *usp.Fault {
	return usp.ErrResourcesExceeded("broker already holds the maximum of %d registered Services", max)
}

func errResourcesExceededReqMap(max int) *usp.Fault {
	return usp.ErrResourcesExceeded("broker already holds the maximum of %d in-flight requests", max)
}

func errUnknownService(endpointID string) *usp.Fault {
	return usp.ErrInternalError("no Service registered for endpoint %q", endpointID)
}

func errNoSchemaOwner(path string) *usp.Fault {
	return usp.ErrRequestDenied("path %q is not owned by any registered Service", path)
}
