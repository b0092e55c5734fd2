package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "taskhub/pkg/domain-errors"
)

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; an encoding failure cannot change the status.
	_ = json.NewEncoder(w).Encode(response)
}

// partialCleanup is implemented by provisioning failures whose compensation left residue.
type partialCleanup interface {
	PartiallyCleanedUp() bool
}

// WriteError translates a domain error into the JSON error envelope.
// Authentication and tenant resolution failures use fixed descriptions so a
// caller cannot learn whether a realm exists or why it was refused.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if !errors.As(err, &domainErr) {
		WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"error": string(dErrors.CodeInternal),
		})
		return
	}

	status := DomainCodeToHTTPStatus(domainErr.Code)
	response := map[string]string{
		"error": DomainCodeToHTTPCode(domainErr.Code),
	}

	switch domainErr.Code {
	case dErrors.CodeUnauthenticated:
		response["error_description"] = "missing or malformed bearer token"
	case dErrors.CodeTokenExpired:
		response["error_description"] = "token expired"
	case dErrors.CodeTokenInvalid:
		response["error_description"] = "invalid token"
	case dErrors.CodeTenantUnknown, dErrors.CodeTenantInactive, dErrors.CodeForbidden:
		response["error_description"] = "access denied"
	case dErrors.CodeInternal:
	default:
		if domainErr.Message != "" {
			response["error_description"] = domainErr.Message
		}
	}

	var pc partialCleanup
	if errors.As(err, &pc) && pc.PartiallyCleanedUp() {
		response["cleanup"] = "incomplete"
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	WriteJSON(w, status, response)
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvariantViolation:
		return http.StatusBadRequest
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnauthenticated, dErrors.CodeTokenExpired, dErrors.CodeTokenInvalid:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden, dErrors.CodeTenantUnknown, dErrors.CodeTenantInactive:
		return http.StatusForbidden
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeProvisioningFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// DomainCodeToHTTPCode translates domain error codes to the "error" field.
func DomainCodeToHTTPCode(code dErrors.Code) string {
	switch code {
	case dErrors.CodeNotFound:
		return "not_found"
	case dErrors.CodeBadRequest:
		return "bad_request"
	case dErrors.CodeValidation, dErrors.CodeInvariantViolation:
		return "validation_error"
	case dErrors.CodeConflict:
		return "conflict"
	case dErrors.CodeUnauthenticated, dErrors.CodeTokenExpired, dErrors.CodeTokenInvalid:
		return "unauthenticated"
	case dErrors.CodeForbidden, dErrors.CodeTenantUnknown, dErrors.CodeTenantInactive:
		return "forbidden"
	case dErrors.CodeTimeout:
		return "timeout"
	case dErrors.CodeProvisioningFailed:
		return "provisioning_failed"
	default:
		return "internal_error"
	}
}
