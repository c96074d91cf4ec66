package httpx

import "net/http"

// Status codes the gate and the api handlers answer with.
const (
	StatusOK              = http.StatusOK
	StatusCreated         = http.StatusCreated
	StatusNoContent       = http.StatusNoContent
	StatusBadRequest      = http.StatusBadRequest
	StatusUnauthorized    = http.StatusUnauthorized    // no bearer, bad signature, expired
	StatusForbidden       = http.StatusForbidden       // authenticated without the required role
	StatusNotFound        = http.StatusNotFound        // unknown user or stats not configured
	StatusTooManyRequests = http.StatusTooManyRequests // bucket empty; Retry-After is set
	StatusInternalError   = http.StatusInternalServerError
)
