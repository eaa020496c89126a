// Package services defines the business logic for groups, messages, and
// notifications. This file centralizes common service-level error values so
// that they can be consistently returned by service methods and checked by
// callers with errors.Is.
//
// Translation into wire error codes or HTTP status codes is performed by the
// realtime and http layers.
package services

import "errors"

var (
	// ErrValidation wraps every input validation failure. The wrapped text
	// names the offending field.
	ErrValidation = errors.New("validation failed")

	// ErrNotAMember is returned when the caller holds no active membership in
	// the target group.
	ErrNotAMember = errors.New("not a member of this group")

	// ErrChannelNotFound is returned when a named channel does not belong to
	// the target group.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrPersistFailed wraps storage failures on the send path. Retrying with
	// the same client message id is safe.
	ErrPersistFailed = errors.New("message persist failed")

	// ErrGroupNotFound indicates that the requested group does not exist.
	ErrGroupNotFound = errors.New("group not found")

	// ErrNotificationNotFound indicates that the notification does not exist
	// or belongs to another user.
	ErrNotificationNotFound = errors.New("notification not found")
)
