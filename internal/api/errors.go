package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"adpilot/internal/apperrors"
	"adpilot/internal/intake"
)

// statusFor maps an error kind onto the HTTP status returned to API callers.
func statusFor(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.KindConfiguration, apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindAuthorization:
		return http.StatusForbidden
	case apperrors.KindRemoteFatal, apperrors.KindRemoteObjective, apperrors.KindGeneration:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its kind. A partial result, when present, is
// returned alongside so callers can see what was already created.
func respondError(c *gin.Context, err error, partial any) {
	body := gin.H{"error": intake.OperatorMessage(err), "kind": apperrors.KindOf(err)}
	if partial != nil {
		body["result"] = partial
	}
	c.JSON(statusFor(err), body)
}
