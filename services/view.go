package services

import (
	"context"

	"github.com/gleanhub/go-claimsync/models"
)

// ClaimView is a render-ready snapshot of the viewer's claims: the cached
// claims, which of them still have queued actions, and the actions the
// transition policy allows the viewer to take. It is self-contained so UI
// code never consults the policy or the queue directly.
type ClaimView struct {
	ViewerId   string
	Claims     []models.Claim
	PendingIds []string
}

// AllowedActions is the sole input for showing action controls: a status is
// offered if and only if it is in the returned set.
func (v ClaimView) AllowedActions(claim models.Claim) []models.ClaimStatus {
	return models.AllowedTransitions(claim.RoleFor(v.ViewerId), claim.Status)
}

// IsPending reports whether the claim still has at least one queued action
// waiting for replay, so screens can badge it as "syncing".
func (v ClaimView) IsPending(claimId string) bool {
	for _, pendingId := range v.PendingIds {
		if pendingId == claimId {
			return true
		}
	}
	return false
}

func (c *ClaimCoordinator) View(ctx context.Context) ClaimView {
	pending := c.actionQueue.Pending(ctx, c.viewerId)
	pendingIds := make([]string, 0, len(pending))
	seen := map[string]struct{}{}
	for _, action := range pending {
		if _, found := seen[action.ClaimId]; !found {
			seen[action.ClaimId] = struct{}{}
			pendingIds = append(pendingIds, action.ClaimId)
		}
	}
	return ClaimView{
		ViewerId:   c.viewerId,
		Claims:     c.loadClaims(ctx),
		PendingIds: pendingIds,
	}
}

// ViewFiltered mirrors the server's status filter for list screens.
func (c *ClaimCoordinator) ViewFiltered(ctx context.Context, status models.ClaimStatus) ClaimView {
	view := c.View(ctx)
	filtered := make([]models.Claim, 0, len(view.Claims))
	for _, claim := range view.Claims {
		if claim.Status == status {
			filtered = append(filtered, claim)
		}
	}
	view.Claims = filtered
	return view
}
