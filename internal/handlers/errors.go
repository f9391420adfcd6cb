package handlers

import (
	"errors"
	"net/http"

	"github.com/BradenHooton/tasktrack/internal/models"
	pkghttp "github.com/BradenHooton/tasktrack/pkg/http"
)

// writeServiceError renders a service error through the shared failure table.
// Unexpected errors become operation_failed with no detail.
func writeServiceError(w http.ResponseWriter, err error) {
	failure := models.DescribeError(err)
	if failure.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	}
	pkghttp.WriteError(w, failure.Status, failure.Code, failure.Message)
}

// writeValidationError reports a rejected request DTO. A display name that
// fails validation gets its own code so clients can tell it apart.
func writeValidationError(w http.ResponseWriter, err error) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		if ve.Field == "display_name" {
			writeServiceError(w, models.ErrInvalidDisplayName)
			return
		}
		failure := models.DescribeError(models.ErrValidationFailed)
		pkghttp.WriteErrorWithDetails(w, failure.Status, failure.Code, failure.Message, ve.Field+": "+ve.Message)
		return
	}
	writeServiceError(w, models.ErrValidationFailed)
}

// normalizer is implemented by request DTOs that tidy their fields before
// validation runs
type normalizer interface {
	normalize()
}

// decodeAndValidate reads a JSON body into dst and validates it, writing the
// error response itself. It reports whether the handler should continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := pkghttp.DecodeJSON(w, r, dst); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}
	if n, ok := dst.(normalizer); ok {
		n.normalize()
	}
	if err := ValidateRequest(dst); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}
