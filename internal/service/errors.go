package service

import (
	"errors"
	"fmt"

	"tasktracker/internal/policy"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("task was changed by another request, reload and retry")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnknownActor = errors.New("session user no longer exists")
)

// ForbiddenError is a policy denial. It matches ErrForbidden with errors.Is.
type ForbiddenError struct {
	Action string
	Reason policy.DenyReason
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: you cannot %s (%s)", e.Action, e.Reason)
}

func (e *ForbiddenError) Is(target error) bool { return target == ErrForbidden }

func forbidden(action string, r policy.Result) error {
	return &ForbiddenError{Action: action, Reason: r.Reason}
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
