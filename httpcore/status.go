package httpcore

// Status codes used by the server and its default error responses,
// grounded on original_source/src/http.hpp's StatusCode enum (trimmed to
// a subset; the server itself only produces 400, and its tests and the
// example handler 200).
const (
	StatusContinue           = 100
	StatusOK                 = 200
	StatusNoContent          = 204
	StatusMovedPermanently   = 301
	StatusFound              = 302
	StatusNotModified        = 304
	StatusBadRequest         = 400
	StatusUnauthorized       = 401
	StatusForbidden          = 403
	StatusNotFound           = 404
	StatusMethodNotAllowed   = 405
	StatusRequestTimeout     = 408
	StatusLengthRequired     = 411
	StatusPayloadTooLarge    = 413
	StatusURITooLong         = 414
	StatusInternalServerError = 500
	StatusNotImplemented     = 501
	StatusServiceUnavailable = 503
)
