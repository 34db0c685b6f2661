package entities

import "errors"

var (
	ErrValidation    = errors.New("invalid request")
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidFormat = errors.New("format must be one of web, chat")

	ErrUpstreamUnavailable = errors.New("rate provider unavailable")
	ErrUpstreamMalformed   = errors.New("rate provider returned malformed data")
	ErrNoDataForDate       = errors.New("no rates published for date")

	ErrGatewayUnavailable = errors.New("storage gateway unavailable")
	ErrConflict           = errors.New("storage conflict")
	ErrInvalidWindow      = errors.New("invalid window")

	ErrProcessNotFound = errors.New("process not found")
	ErrProcessCommand  = errors.New("process manager command failed")
)

type Kind string

const (
	KindValidation          Kind = "ValidationError"
	KindUpstreamUnavailable Kind = "UpstreamUnavailable"
	KindUpstreamMalformed   Kind = "UpstreamMalformed"
	KindNoDataForDate       Kind = "NoDataForDate"
	KindGatewayUnavailable  Kind = "GatewayUnavailable"
	KindConflict            Kind = "Conflict"
	KindInvalidWindow       Kind = "InvalidWindow"
	KindInternal            Kind = "InternalError"
)

// KindOf returns the stable error kind reported to HTTP callers.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidDate), errors.Is(err, ErrInvalidFormat):
		return KindValidation
	case errors.Is(err, ErrUpstreamUnavailable):
		return KindUpstreamUnavailable
	case errors.Is(err, ErrUpstreamMalformed):
		return KindUpstreamMalformed
	case errors.Is(err, ErrNoDataForDate):
		return KindNoDataForDate
	case errors.Is(err, ErrGatewayUnavailable):
		return KindGatewayUnavailable
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrInvalidWindow):
		return KindInvalidWindow
	default:
		return KindInternal
	}
}
