package connection

import (
	"fmt"
	"net/http"

	"github.com/buger/jsonparser"

	"github.com/Etesie/fauna-typed/pkg/constants"
)

// Service error codes the cache reacts to.
const (
	CodeDocumentNotFound      = "document_not_found"
	CodeContendedTransaction  = "contended_transaction"
	CodeLimitExceeded         = "limit_exceeded"
	CodeTimeOut               = "time_out"
	CodeInternalError         = "internal_error"
	CodeServiceUnavailable    = "service_unavailable"
	CodeInvalidQuery          = "invalid_query"
	CodeUnauthorized          = "unauthorized"
	statusTransactionTimedOut = 440
)

// QueryError is an error reported by the service.
type QueryError struct {
	Status  int
	Code    string
	Message string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed with status %d: %s: %s", e.Status, e.Code, e.Message)
}

// Is matches constants.ErrNotFound and constants.ErrTransient.
func (e *QueryError) Is(target error) bool {
	switch target {
	case constants.ErrNotFound:
		return e.Code == CodeDocumentNotFound || e.Status == http.StatusNotFound
	case constants.ErrTransient:
		switch e.Code {
		case CodeContendedTransaction, CodeLimitExceeded, CodeTimeOut, CodeInternalError, CodeServiceUnavailable:
			return true
		}
		return e.Status == http.StatusTooManyRequests ||
			e.Status == statusTransactionTimedOut ||
			e.Status >= http.StatusInternalServerError
	}
	return false
}

// parseQueryError reads {"error": {"code", "message"}} from a failed
// response body. Bodies without that shape still produce a QueryError
// carrying the status.
func parseQueryError(status int, body []byte) *QueryError {
	qe := &QueryError{Status: status}
	qe.Code, _ = jsonparser.GetString(body, "error", "code")
	qe.Message, _ = jsonparser.GetString(body, "error", "message")
	if qe.Message == "" {
		qe.Message = http.StatusText(status)
	}
	return qe
}
