package errors

// Error codes for standardized error responses
const (
	// Authentication errors
	ErrCodeUnauthorized           = "unauthorized"
	ErrCodeInvalidToken           = "invalid_token"
	ErrCodeAuthenticationRequired = "authentication_required"
	ErrCodeSanctioned             = "account_sanctioned"

	// Validation errors
	ErrCodeInvalidRequest = "invalid_request"
	ErrCodeInvalidMatchID = "invalid_match_id"

	// Resource errors
	ErrCodeNotFound = "not_found"

	// WebSocket errors
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeUnknownMessageType = "unknown_message_type"

	// Server errors
	ErrCodeInternalError = "internal_error"
	ErrCodeUpstreamError = "upstream_error"

	// Leaderboard errors
	ErrCodeUnknownWindow = "unknown_leaderboard_window"
)
