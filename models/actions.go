package models

import (
	"context"
	"time"
)

// Actions older than this are dropped from the queue at load time (with a
// warning and an alert) instead of being replayed against long-gone listings.
const DefaultMaxActionAge = 30 * 24 * time.Hour

type ActionType string

const (
	ActionType_Create     ActionType = "create"
	ActionType_Transition ActionType = "transition"
)

// CreateClaimParams is the claim creation payload. ListingOwnerId never goes
// to the server (it owns the listing record); it is carried so an offline
// create can synthesize a claim the transition policy can answer for.
type CreateClaimParams struct {
	ListingId       string  `json:"listingId" validate:"required"`
	ListingOwnerId  string  `json:"listingOwnerId,omitempty"`
	RequestId       *string `json:"requestId,omitempty"`
	QuantityClaimed float64 `json:"quantityClaimed" validate:"gt=0"`
	Notes           *string `json:"notes,omitempty"`
}

type TransitionParams struct {
	Status ClaimStatus `json:"status" validate:"required"`
	Notes  *string     `json:"notes,omitempty"`
}

// QueuedAction is one durable mutation intent. Exactly the payload matching
// Type is set. ClaimId holds the local placeholder for creates, and the target
// ID (possibly itself an unreconciled placeholder) for transitions.
type QueuedAction struct {
	Id         string             `json:"id" validate:"required"`
	Type       ActionType         `json:"type" validate:"required"`
	ClaimId    string             `json:"claimId" validate:"required"`
	Create     *CreateClaimParams `json:"create,omitempty"`
	Transition *TransitionParams  `json:"transition,omitempty"`
	EnqueuedAt time.Time          `json:"ts"`
}

// Wellformed reports whether the tagged variant is internally consistent.
// Records read back from storage are discarded when it fails.
func (a QueuedAction) Wellformed() bool {
	switch a.Type {
	case ActionType_Create:
		return a.Create != nil && a.Transition == nil && IsLocalId(a.ClaimId)
	case ActionType_Transition:
		return a.Transition != nil && a.Create == nil && len(a.ClaimId) > 0
	}
	return false
}

// Replay handlers are injected so the queue stays ignorant of the transport.
type CreateHandler func(ctx context.Context, params *CreateClaimParams) (*Claim, error)
type TransitionHandler func(ctx context.Context, claimId string, params *TransitionParams) (*Claim, error)

type ReplayRequest struct {
	ViewerId          string
	CreateHandler     CreateHandler
	TransitionHandler TransitionHandler
}

// ProcessedAction pairs a successfully replayed action with the authoritative
// claim the server returned. ReplaceClaimId names the placeholder the claim
// supersedes, when one existed.
type ProcessedAction struct {
	Action         QueuedAction
	Claim          *Claim
	ReplaceClaimId string
}

// ReplayResult reports a replay pass. Failed holds the first failing action
// and everything after it, still queued in original order; Err is the cause of
// that first failure and is nil whenever Failed is empty.
type ReplayResult struct {
	Processed []ProcessedAction
	Failed    []QueuedAction
	Err       error
}
