// Package services holds the business rules of the user, post, comment and
// attach services. This file centralizes the service-level error values so
// they are returned consistently by service methods and matched with
// errors.Is by callers.
//
// Each value carries a Kind (used by the HTTP layer to pick a status) and the
// stable numeric Code clients see in the error envelope. Failures of sibling
// services are not listed here: they surface as *remote.Error, wrapped.
package services

import (
	"errors"
	"fmt"
)

// Kind classifies service errors for the HTTP layer.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindConflict
	KindForbidden
	KindValidation
	KindUnauthorized
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error is a predictable business failure.
type Error struct {
	Kind    Kind
	Code    int
	Message string
}

func (e *Error) Error() string { return e.Message }

func newErr(kind Kind, code int, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Generic errors shared by every service.
var (
	// ErrUnauthenticated is returned when a mutating call carries no actor.
	ErrUnauthenticated = newErr(KindUnauthorized, 401, "missing or invalid caller identity")

	// ErrValidation is the parent of every field-level validation failure.
	ErrValidation = newErr(KindValidation, 400, "validation failed")
)

// User service errors.
var (
	ErrUserNotFound         = newErr(KindNotFound, 100, "user not found")
	ErrFollowTargetNotFound = newErr(KindNotFound, 101, "user to follow not found")
	ErrEmailExists          = newErr(KindConflict, 102, "email already exists")
	ErrUsernameExists       = newErr(KindConflict, 103, "username already exists")
	ErrAlreadyFollowed      = newErr(KindConflict, 104, "already followed or self follow")
	ErrAlreadyUnfollowed    = newErr(KindConflict, 105, "already unfollowed or self unfollow")
	ErrUserNotYours         = newErr(KindForbidden, 106, "user does not belong to the caller")
)

// Post service errors.
var (
	ErrPostNotFound      = newErr(KindNotFound, 100, "post not found")
	ErrPostAlreadyLiked  = newErr(KindConflict, 101, "post already liked")
	ErrPostNotLiked      = newErr(KindConflict, 102, "post already unliked")
	ErrPostNotYours      = newErr(KindForbidden, 103, "post does not belong to the caller")
	ErrPostAttachMissing = newErr(KindNotFound, 104, "attach not found")
	ErrPostSelfLike      = newErr(KindConflict, 105, "cannot like your own post")
)

// Comment service errors.
var (
	ErrCommentNotFound      = newErr(KindNotFound, 100, "comment not found")
	ErrCommentAlreadyLiked  = newErr(KindConflict, 101, "comment already liked")
	ErrCommentNotLiked      = newErr(KindConflict, 102, "comment already unliked")
	ErrCommentNotYours      = newErr(KindForbidden, 103, "comment does not belong to the caller")
	ErrCommentPostNotFound  = newErr(KindNotFound, 104, "post not found")
	ErrCommentAttachMissing = newErr(KindNotFound, 105, "attach not found")
	ErrCommentSelfLike      = newErr(KindConflict, 106, "cannot like your own comment")
)

// Attach service errors.
var (
	ErrFileCreation   = newErr(KindStorage, 100, "file creation failed")
	ErrAttachNotFound = newErr(KindNotFound, 101, "attach not found")
)

// invalid returns a validation error wrapping ErrValidation.
func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
