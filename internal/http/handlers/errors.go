// Package handlers – error codes
//
// Stable, machine-readable codes returned in ErrorResponse.Code. Clients may
// branch on these; messages are for humans and can change.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeValidation       = "validation_failed"
	ErrCodeNotAMember       = "not_a_member"
	ErrCodeGroupNotFound    = "group_not_found"
	ErrCodeChannelNotFound  = "channel_not_found"
	ErrCodeNotificationGone = "notification_not_found"
	ErrCodePersistFailed    = "persist_failed"
	ErrCodeCreateFailed     = "create_failed"
	ErrCodeListFailed       = "list_failed"
)
