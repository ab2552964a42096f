package api

// AdmissionCheck gates whether a cached controller may execute a request
// now or has to buffer it. It is polled synchronously right before each
// request is executed or buffered, so it should be cheap.
type AdmissionCheck interface {
	IsOperationPermitted() bool
}

// AdmissionFunc adapts a function to AdmissionCheck.
type AdmissionFunc func() bool

func (f AdmissionFunc) IsOperationPermitted() bool { return f() }

// AlwaysPermit admits every request.
var AlwaysPermit AdmissionCheck = AdmissionFunc(func() bool { return true })
