package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalIdPrefix marks claim IDs synthesized on-device before the server has
// acknowledged the claim. Replay swaps them for server-issued IDs.
const LocalIdPrefix = "local-"

type ClaimStatus string

const (
	ClaimStatus_Pending   ClaimStatus = "pending"
	ClaimStatus_Confirmed ClaimStatus = "confirmed"
	ClaimStatus_Completed ClaimStatus = "completed"
	ClaimStatus_Cancelled ClaimStatus = "cancelled"
	ClaimStatus_NoShow    ClaimStatus = "no_show"
)

// ClaimStatuses lists every status the engine recognizes, in lifecycle order.
var ClaimStatuses = []ClaimStatus{
	ClaimStatus_Pending,
	ClaimStatus_Confirmed,
	ClaimStatus_Completed,
	ClaimStatus_Cancelled,
	ClaimStatus_NoShow,
}

func (s ClaimStatus) Valid() bool {
	switch s {
	case ClaimStatus_Pending, ClaimStatus_Confirmed, ClaimStatus_Completed, ClaimStatus_Cancelled, ClaimStatus_NoShow:
		return true
	}
	return false
}

// Terminal statuses permit no further transitions. no_show is only ever set by
// the server but is just as final once seen.
func (s ClaimStatus) Terminal() bool {
	switch s {
	case ClaimStatus_Completed, ClaimStatus_Cancelled, ClaimStatus_NoShow:
		return true
	}
	return false
}

type Role string

const (
	Role_None    Role = ""
	Role_Owner   Role = "owner"
	Role_Claimer Role = "claimer"
)

type Claim struct {
	Id              string      `json:"id" validate:"required"`
	ListingId       string      `json:"listingId" validate:"required"`
	RequestId       *string     `json:"requestId,omitempty"`
	ClaimerId       string      `json:"claimerId" validate:"required"`
	ListingOwnerId  string      `json:"listingOwnerId"`
	QuantityClaimed float64     `json:"quantityClaimed" validate:"gt=0"`
	Status          ClaimStatus `json:"status" validate:"required"`
	Notes           *string     `json:"notes,omitempty"`
	ClaimedAt       *time.Time  `json:"claimedAt,omitempty"`
	ConfirmedAt     *time.Time  `json:"confirmedAt,omitempty"`
	CompletedAt     *time.Time  `json:"completedAt,omitempty"`
	CancelledAt     *time.Time  `json:"cancelledAt,omitempty"`
}

// RoleFor reports the part the viewer plays on this claim. A viewer on neither
// side has no role and thus no allowed actions.
func (c Claim) RoleFor(viewerId string) Role {
	switch viewerId {
	case "":
		return Role_None
	case c.ListingOwnerId:
		return Role_Owner
	case c.ClaimerId:
		return Role_Claimer
	}
	return Role_None
}

// SetStatus applies a status and stamps the matching lifecycle timestamp. The
// timestamp is only ever a local guess, server responses overwrite both.
func (c *Claim) SetStatus(status ClaimStatus, now time.Time) {
	c.Status = status
	switch status {
	case ClaimStatus_Pending:
		c.ClaimedAt = &now
	case ClaimStatus_Confirmed:
		c.ConfirmedAt = &now
	case ClaimStatus_Completed:
		c.CompletedAt = &now
	case ClaimStatus_Cancelled:
		c.CancelledAt = &now
	}
}

func NewLocalId() string {
	return LocalIdPrefix + uuid.NewString()
}

func IsLocalId(id string) bool {
	return strings.HasPrefix(id, LocalIdPrefix)
}
