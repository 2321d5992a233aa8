package errors

import "net/http"

// Relay-specific error codes for the transcription/translation session
// pipeline. These sit alongside the generic taxonomy above and follow the
// same Retryable convention.
const (
	// ErrCodeAuthFailed indicates the session cookie could not be decoded.
	ErrCodeAuthFailed ErrorCode = "AUTH_FAILED"
	// ErrCodeMissingSessionParams indicates a required query parameter
	// (conversationId, targetLanguage) was absent at connect.
	ErrCodeMissingSessionParams ErrorCode = "MISSING_SESSION_PARAMS"
	// ErrCodeNoActiveOrganization indicates the authenticated user has no
	// active organization bound to the session.
	ErrCodeNoActiveOrganization ErrorCode = "NO_ACTIVE_ORGANIZATION"
	// ErrCodeNoSubscription indicates the organization has no subscription row.
	ErrCodeNoSubscription ErrorCode = "NO_SUBSCRIPTION"
	// ErrCodeQuotaExceeded indicates the organization has no remaining quota,
	// or its subscription is not active.
	ErrCodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"
	// ErrCodeUpstreamConnectFailed indicates the upstream STT dial failed.
	ErrCodeUpstreamConnectFailed ErrorCode = "UPSTREAM_CONNECT_FAILED"
	// ErrCodeUpstreamStreamError indicates the upstream STT connection
	// reported an error_code on an already-open stream.
	ErrCodeUpstreamStreamError ErrorCode = "UPSTREAM_STREAM_ERROR"
	// ErrCodeRecordingNotStarted indicates an audio_chunk arrived while the
	// recording meter was not running.
	ErrCodeRecordingNotStarted ErrorCode = "RECORDING_NOT_STARTED"
	// ErrCodePersistenceTransient indicates a write-queue operation failed
	// with a retryable error (connection refused, timeout, deadlock, ...).
	ErrCodePersistenceTransient ErrorCode = "PERSISTENCE_TRANSIENT"
	// ErrCodePersistencePermanent indicates a write-queue operation failed
	// with a non-retryable error, or exhausted its retries.
	ErrCodePersistencePermanent ErrorCode = "PERSISTENCE_PERMANENT"
)

func init() {
	retryableCodes[ErrCodeAuthFailed] = false
	retryableCodes[ErrCodeMissingSessionParams] = false
	retryableCodes[ErrCodeNoActiveOrganization] = false
	retryableCodes[ErrCodeNoSubscription] = false
	retryableCodes[ErrCodeQuotaExceeded] = false
	retryableCodes[ErrCodeUpstreamConnectFailed] = true
	retryableCodes[ErrCodeUpstreamStreamError] = false
	retryableCodes[ErrCodeRecordingNotStarted] = false
	retryableCodes[ErrCodePersistenceTransient] = true
	retryableCodes[ErrCodePersistencePermanent] = false
}

// AuthFailed creates an AppError for a session cookie that failed to decode.
func AuthFailed(reason string) *AppError {
	return &AppError{
		Code: ErrCodeAuthFailed, Message: "Authentication failed.",
		HTTPStatus: http.StatusUnauthorized, Retryable: false,
		Details: map[string]any{"reason": reason},
	}
}

// MissingSessionParams creates an AppError for an absent required query parameter.
func MissingSessionParams(field string) *AppError {
	return &AppError{
		Code: ErrCodeMissingSessionParams, Message: "Missing required connection parameter: " + field,
		HTTPStatus: http.StatusBadRequest, Retryable: false,
		Details: map[string]any{"field": field},
	}
}

// NoActiveOrganization creates an AppError for a user with no bound organization.
func NoActiveOrganization() *AppError {
	return &AppError{
		Code: ErrCodeNoActiveOrganization, Message: "No active organization for this session.",
		HTTPStatus: http.StatusForbidden, Retryable: false,
	}
}

// NoSubscription creates an AppError for an organization with no subscription row.
func NoSubscription(orgID string) *AppError {
	return &AppError{
		Code: ErrCodeNoSubscription, Message: "No subscription found for this organization.",
		HTTPStatus: http.StatusPaymentRequired, Retryable: false,
		Details: map[string]any{"organization_id": orgID},
	}
}

// QuotaExceeded creates an AppError carrying the plan/usage data the client needs
// to render an upgrade prompt (wire-contract shape matches spec quota:exceeded).
func QuotaExceeded(currentPlan string, quotaMinutes, usedMinutes float64) *AppError {
	return &AppError{
		Code: ErrCodeQuotaExceeded, Message: "Usage quota exceeded.",
		HTTPStatus: http.StatusPaymentRequired, Retryable: false,
		Details: map[string]any{
			"currentPlan":     currentPlan,
			"quotaMinutes":    quotaMinutes,
			"usedMinutes":     usedMinutes,
			"upgradeRequired": true,
		},
	}
}

// UpstreamConnectFailed creates an AppError for a failed upstream STT dial.
func UpstreamConnectFailed(cause error) *AppError {
	return &AppError{
		Code: ErrCodeUpstreamConnectFailed, Message: "Failed to connect to the speech-to-text provider.",
		HTTPStatus: http.StatusBadGateway, Retryable: true, Cause: cause,
	}
}

// UpstreamStreamError creates an AppError for an error_code reported mid-stream.
func UpstreamStreamError(code, message string) *AppError {
	return &AppError{
		Code: ErrCodeUpstreamStreamError, Message: message,
		HTTPStatus: http.StatusBadGateway, Retryable: false,
		Details: map[string]any{"upstream_code": code},
	}
}

// RecordingNotStarted creates an AppError for audio received before start_recording.
func RecordingNotStarted() *AppError {
	return &AppError{
		Code: ErrCodeRecordingNotStarted, Message: "Recording has not been started for this conversation.",
		HTTPStatus: http.StatusConflict, Retryable: false,
	}
}

// PersistenceTransient creates an AppError for a retryable write-queue failure.
func PersistenceTransient(cause error) *AppError {
	return &AppError{
		Code: ErrCodePersistenceTransient, Message: "Transient persistence failure.",
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true, Cause: cause,
	}
}

// PersistencePermanent creates an AppError for a non-retryable or retry-exhausted write-queue failure.
func PersistencePermanent(cause error) *AppError {
	return &AppError{
		Code: ErrCodePersistencePermanent, Message: "Persistence failure, operation dropped.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}
