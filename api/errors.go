package api

import (
	"errors"
	"net/http"

	"github.com/crudexec/construction-sub006/ledger"
	"github.com/crudexec/construction-sub006/logging"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details any               `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// errorStatus maps the ledger taxonomy to an HTTP status and a stable code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ledger.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, ledger.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, ledger.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, ledger.ErrConcurrentModification):
		return http.StatusConflict, "concurrent_modification"
	case errors.Is(err, ledger.ErrInvalidState):
		return http.StatusUnprocessableEntity, "invalid_state"
	case errors.Is(err, ledger.ErrInvalidTransition):
		return http.StatusUnprocessableEntity, "invalid_transition"
	case errors.Is(err, ledger.ErrOverReceipt):
		return http.StatusUnprocessableEntity, "over_receipt"
	case errors.Is(err, ledger.ErrInvalidReference):
		return http.StatusUnprocessableEntity, "invalid_reference"
	case errors.Is(err, ledger.ErrInsufficientStock):
		return http.StatusUnprocessableEntity, "insufficient_stock"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// OverReceiptLineDTO is one rejected line of a receipt batch.
type OverReceiptLineDTO struct {
	LineID    ledger.POLineID `json:"lineItemId"`
	Ordered   string          `json:"ordered"`
	Received  string          `json:"alreadyReceived"`
	Requested string          `json:"requested"`
	Excess    string          `json:"excess"`
}

// writeLedgerError writes err with the status its category maps to.
// Server errors are logged and their text is not exposed.
func writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	resp := ErrorResponse{Error: err.Error(), Code: code}

	var (
		ve  *ledger.ValidationError
		ore *ledger.OverReceiptError
		ref *ledger.ReferenceError
	)
	switch {
	case errors.As(err, &ve):
		resp.Fields = ve.FieldMap()
	case errors.As(err, &ore):
		lines := make([]OverReceiptLineDTO, len(ore.Lines))
		for i, l := range ore.Lines {
			lines[i] = OverReceiptLineDTO{
				LineID:    l.LineID,
				Ordered:   l.Ordered.String(),
				Received:  l.Received.String(),
				Requested: l.Requested.String(),
				Excess:    l.Excess().String(),
			}
		}
		resp.Details = lines
	case errors.As(err, &ref):
		resp.Details = map[string]any{"lineIds": ref.LineIDs}
	}

	if status == http.StatusInternalServerError {
		l := logging.FromContext(r.Context())
		l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}

// writeError writes a transport-level error such as a malformed body.
func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message, Code: http.StatusText(status)}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
