package services

import (
	"github.com/gleanhub/go-claimsync/models"
)

type OutcomeState string

const (
	// OutcomeState_Submitted: the server accepted the create while online.
	OutcomeState_Submitted OutcomeState = "submitted"
	// OutcomeState_Applied: the server accepted the transition while online.
	OutcomeState_Applied OutcomeState = "applied"
	// OutcomeState_Queued: the intent was applied optimistically and recorded
	// for replay. Callers render different confirmation text for this.
	OutcomeState_Queued OutcomeState = "queued"
	// OutcomeState_Ignored: a transition for the same claim was already in
	// flight and this one was dropped before any side effect.
	OutcomeState_Ignored OutcomeState = "ignored"
)

// SubmitOutcome reports how a claim creation was handled. Claim is the server
// claim when submitted, or the placeholder-ID claim when queued.
type SubmitOutcome struct {
	State OutcomeState
	Claim models.Claim
}

// TransitionOutcome reports how a status transition was handled. Claim is the
// authoritative server claim when applied, the optimistic claim when queued,
// and the untouched claim when ignored.
type TransitionOutcome struct {
	State OutcomeState
	Claim models.Claim
}

// SyncReport summarizes one replay pass. Remaining > 0 means the pass stalled
// on a failed action; the queue holds it and everything after it for a later
// reconnect, and Cause carries the failure for the passive "still syncing"
// surface.
type SyncReport struct {
	AlreadyRunning bool
	Synced         int
	Remaining      int
	Cause          error
}
