package apierrors

import (
	"errors"
	"strings"

	"outcall-server/internal/store"
	"outcall-server/internal/voicecall/processor"
	"outcall-server/internal/voicecall/providers"
)

// MapError converts domain errors to APIErrors so every handler returns
// consistent responses. Unknown errors become a sanitized 500.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var providerErr *providers.ProviderError
	switch {
	case errors.Is(err, processor.ErrLeadOptedOut):
		return Conflict(CodeLeadOptedOut, "This lead has opted out of calls")

	case errors.As(err, &providerErr):
		return ServiceUnavailable(CodeAIServiceError,
			"AI service is temporarily unavailable. Please try again later.", err)

	case errors.Is(err, store.ErrNotFound):
		return NotFound(CodeNotFound, "Resource not found")

	default:
		return mapExternalServiceError(err)
	}
}

// mapExternalServiceError identifies external service failures by message
// content when no typed error is available.
func mapExternalServiceError(err error) *APIError {
	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "twilio") {
		return ServiceUnavailable(CodeTelephonyError,
			"Telephony provider is temporarily unavailable. Please try again later.", err)
	}

	if strings.Contains(errMsg, "openai") || strings.Contains(errMsg, "gemini") {
		return ServiceUnavailable(CodeAIServiceError,
			"AI service is temporarily unavailable. Please try again later.", err)
	}

	return InternalError(err)
}
