// Package common contains shared constants and sentinel errors used across
// Daybook components.
package common

// ErrorCode is a machine-readable error identifier carried in API error
// payloads so clients can classify failures without parsing messages.
type ErrorCode string

const (
	CodeUnauthorized ErrorCode = "unauthorized"
	CodeTokenExpired ErrorCode = "token_expired"
	CodeNotFound     ErrorCode = "not_found"
	CodeMissingIndex ErrorCode = "missing_index"
	CodeQuota        ErrorCode = "quota_exceeded"
	CodeValidation   ErrorCode = "validation"
	CodeInternal     ErrorCode = "internal"
)
