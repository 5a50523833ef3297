package models

import (
	"errors"
	"fmt"
)

// ErrUnresolvedLocalReference marks a queued transition whose target claim was
// never assigned a server ID. Replay stops on it rather than submit a
// placeholder the server has never seen.
var ErrUnresolvedLocalReference = errors.New("claim id is an unreconciled local placeholder")

// ValidationError is a pre-I/O rejection: a policy-disallowed transition or a
// malformed payload. Nothing was applied, queued, or sent.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

func NewTransitionNotAllowedError(role Role, from, to ClaimStatus) *ValidationError {
	return &ValidationError{
		Reason: fmt.Sprintf("role %q may not move a claim from %q to %q", role, from, to),
	}
}

// NetworkError is an online API failure: a transport error or a non-2xx
// response. StatusCode is zero when the request never got a response.
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ReplayError reports the queued action a replay pass stopped on. It surfaces
// passively (sync reports, alerts), never as a foreground failure.
type ReplayError struct {
	Action QueuedAction
	Err    error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay %s action %s (claim %s): %v", e.Action.Type, e.Action.Id, e.Action.ClaimId, e.Err)
}

func (e *ReplayError) Unwrap() error {
	return e.Err
}
