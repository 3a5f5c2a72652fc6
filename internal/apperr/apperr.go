// Package apperr is the error taxonomy shared by the core and the transport layer.
//
// Services return one of the typed errors below; the HTTP layer only needs
// errors.Is / errors.As to pick a status code, never string matching.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors. Every typed error in this package matches exactly one of them.
var (
	ErrValidation  = errors.New("validation failed")
	ErrForbidden   = errors.New("forbidden")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrRateLimited = errors.New("rate limited")
)

// Reason is a stable, machine-checkable denial code.
type Reason string

const (
	ReasonNotMember       Reason = "NOT_MEMBER"
	ReasonNotOwnerOrAdmin Reason = "NOT_OWNER_OR_ADMIN"
	ReasonNotOwner        Reason = "NOT_OWNER"
	ReasonPrivateChannel  Reason = "PRIVATE_CHANNEL"
	ReasonSelfTarget      Reason = "SELF_TARGET"
	ReasonAlreadyExists   Reason = "ALREADY_EXISTS"
	ReasonRateLimited     Reason = "RATE_LIMITED"
	ReasonOwnerImmutable  Reason = "OWNER_IMMUTABLE"
	ReasonNotRecipient    Reason = "NOT_RECIPIENT"
	ReasonNestedThread    Reason = "NESTED_THREAD"
	ReasonTargetNotMember Reason = "TARGET_NOT_MEMBER"
)

// ValidationError is malformed input, rejected before any authorization check.
type ValidationError struct {
	Field   string
	Message string
	Reason  Reason
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Validation builds a *ValidationError.
func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// AuthorizationError is a MembershipAuthority denial. It carries only the
// reason code, never the actor's or target's role.
type AuthorizationError struct {
	Reason Reason
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Reason)
}

func (e *AuthorizationError) Is(target error) bool { return target == ErrForbidden }

// Forbidden builds an *AuthorizationError.
func Forbidden(reason Reason) error {
	return &AuthorizationError{Reason: reason}
}

// NotFoundError is returned for absent resources and for resources the actor
// is not entitled to see.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound builds a *NotFoundError.
func NotFound(resource string) error {
	return &NotFoundError{Resource: resource}
}

// ConflictError signals a uniqueness violation (slug taken, already a member).
type ConflictError struct {
	Resource string
	Reason   Reason
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Resource, e.Reason)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// AlreadyExists builds a *ConflictError with ReasonAlreadyExists.
func AlreadyExists(resource string) error {
	return &ConflictError{Resource: resource, Reason: ReasonAlreadyExists}
}

// RateLimitError is a RateLimiter denial with a retry hint.
type RateLimitError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: scope=%s retry_after=%s", e.Scope, e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// ReasonOf extracts the stable reason code from err, if it carries one.
func ReasonOf(err error) (Reason, bool) {
	var authErr *AuthorizationError
	if errors.As(err, &authErr) {
		return authErr.Reason, true
	}
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict.Reason, true
	}
	var validation *ValidationError
	if errors.As(err, &validation) && validation.Reason != "" {
		return validation.Reason, true
	}
	if errors.Is(err, ErrRateLimited) {
		return ReasonRateLimited, true
	}
	return "", false
}
