package public

import (
	"github.com/langowen/exchange-rates/internal/entities"
	"log/slog"
	"net/http"
)

var statusByKind = map[entities.Kind]int{
	entities.KindValidation:          http.StatusBadRequest,
	entities.KindInvalidWindow:       http.StatusBadRequest,
	entities.KindUpstreamUnavailable: http.StatusBadGateway,
	entities.KindUpstreamMalformed:   http.StatusBadGateway,
	entities.KindNoDataForDate:       http.StatusNoContent,
	entities.KindGatewayUnavailable:  http.StatusBadGateway,
	entities.KindConflict:            http.StatusConflict,
	entities.KindInternal:            http.StatusInternalServerError,
}

// publicMessage is what callers see for failures outside their control. The
// wrapped error can carry upstream URLs and stays in the logs.
var publicMessage = map[entities.Kind]string{
	entities.KindUpstreamUnavailable: "rate provider unavailable",
	entities.KindUpstreamMalformed:   "rate provider returned malformed data",
	entities.KindGatewayUnavailable:  "storage gateway unavailable",
	entities.KindConflict:            "concurrent write for the same date, retry the request",
	entities.KindInternal:            "internal error",
}

type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Kind    entities.Kind `json:"kind"`
	Message string        `json:"message"`
}

func StatusFor(kind entities.Kind) int {
	if code, ok := statusByKind[kind]; ok {
		return code
	}

	return http.StatusInternalServerError
}

// RespondWithServiceError maps err to its kind and status. NoDataForDate is an
// expected outcome on non-business days and gets a bare 204.
func RespondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := entities.KindOf(err)
	code := StatusFor(kind)

	switch {
	case code == http.StatusNoContent:
		slog.Info("No rates for requested date", "path", r.URL.Path, "query", r.URL.RawQuery)
		w.WriteHeader(code)
		return
	case code >= http.StatusInternalServerError:
		slog.Error("Request failed", "path", r.URL.Path, "kind", kind, "error", err)
	default:
		slog.Warn("Request failed", "path", r.URL.Path, "kind", kind, "error", err)
	}

	message, ok := publicMessage[kind]
	if !ok {
		message = err.Error()
	}

	RespondWithError(w, code, kind, message)
}

func RespondWithError(w http.ResponseWriter, code int, kind entities.Kind, message string) {
	RespondWithJSON(w, code, ErrorBody{Error: ErrorDetail{Kind: kind, Message: message}})
}
