package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator"

	"github.com/gleanhub/go-claimsync/models"
)

// ClaimCoordinator is the single entry point for claim mutations. It applies
// intents optimistically, records them for replay when the server is
// unreachable, and reconciles queued work after reconnect. All methods are
// goroutine-safe: transitions are serialized per claim, replay passes are
// serialized globally, and cache writes are whole-value under one lock.
type ClaimCoordinator struct {
	logger        models.Logger
	metricService models.MetricService
	notifier      models.Notifier
	viewerId      string
	claimStore    models.ClaimStore
	actionQueue   models.ActionQueue
	claimApi      models.ClaimApi
	connectivity  models.ConnectivityMonitor
	validator     *validator.Validate

	inFlight    sync.Map
	syncRunning atomic.Bool
	storeMu     sync.Mutex
}

func NewClaimCoordinator(
	ctx context.Context,
	logger models.Logger,
	metricService models.MetricService,
	notifier models.Notifier,
	viewerId string,
	claimStore models.ClaimStore,
	actionQueue models.ActionQueue,
	claimApi models.ClaimApi,
	connectivity models.ConnectivityMonitor,
) *ClaimCoordinator {
	coordinator := &ClaimCoordinator{
		logger:        logger,
		metricService: metricService,
		notifier:      notifier,
		viewerId:      viewerId,
		claimStore:    claimStore,
		actionQueue:   actionQueue,
		claimApi:      claimApi,
		connectivity:  connectivity,
		validator:     validator.New(),
	}
	if err := metricService.Gauge(ctx, models.MetricName_PendingActions, actionQueue.Monitor(viewerId)); err != nil {
		logger.Errorf("coordinator: error creating gauge for pending actions: %v", err)
	}
	return coordinator
}

// CreateClaim submits a new claim for the viewer. Online, the server claim is
// cached and returned. Offline, a placeholder-ID claim is synthesized, cached,
// and the create queued for replay; callers use the Queued state to render a
// weaker confirmation.
func (c *ClaimCoordinator) CreateClaim(ctx context.Context, params *models.CreateClaimParams) (SubmitOutcome, error) {
	if err := c.validator.Struct(params); err != nil {
		return SubmitOutcome{}, &models.ValidationError{Reason: err.Error()}
	}
	if c.connectivity.Online() {
		claim, err := c.claimApi.CreateClaim(ctx, params)
		if err != nil {
			// Nothing was applied optimistically online, so there is nothing to
			// roll back.
			return SubmitOutcome{}, err
		}
		c.mutateStore(ctx, func(claims []models.Claim) []models.Claim {
			return c.claimStore.Upsert(claims, *claim)
		})
		c.metricService.Count(ctx, models.MetricName_ClaimCreated, 1)
		c.logger.Infow("coordinator: claim created",
			"claimId", claim.Id,
			"listingId", claim.ListingId,
			"viewerId", c.viewerId,
		)
		return SubmitOutcome{State: OutcomeState_Submitted, Claim: *claim}, nil
	}

	// Offline synthesis needs the owner to answer transition policy questions
	// locally; online the server resolves ownership from the listing itself.
	if len(params.ListingOwnerId) == 0 {
		return SubmitOutcome{}, &models.ValidationError{Reason: "listingOwnerId is required to create a claim offline"}
	}

	now := time.Now().UTC()
	claim := models.Claim{
		Id:              models.NewLocalId(),
		ListingId:       params.ListingId,
		RequestId:       params.RequestId,
		ClaimerId:       c.viewerId,
		ListingOwnerId:  params.ListingOwnerId,
		QuantityClaimed: params.QuantityClaimed,
		Status:          models.ClaimStatus_Pending,
		Notes:           params.Notes,
		ClaimedAt:       &now,
	}
	c.mutateStore(ctx, func(claims []models.Claim) []models.Claim {
		return c.claimStore.Upsert(claims, claim)
	})
	c.actionQueue.EnqueueCreate(ctx, params, claim.Id, c.viewerId)
	c.metricService.Count(ctx, models.MetricName_CreateQueued, 1)
	c.logger.Infow("coordinator: claim queued for creation",
		"claimId", claim.Id,
		"listingId", claim.ListingId,
		"viewerId", c.viewerId,
	)
	return SubmitOutcome{State: OutcomeState_Queued, Claim: claim}, nil
}

// TransitionClaim moves a cached claim to a new status. The transition policy
// is consulted before any side effect, the new status is applied to the cache
// optimistically, and an online server rejection restores the exact
// pre-transition claim. A transition already in flight for the same claim
// makes this call a no-op with the Ignored state.
func (c *ClaimCoordinator) TransitionClaim(ctx context.Context, claimId string, params *models.TransitionParams) (TransitionOutcome, error) {
	if _, loaded := c.inFlight.LoadOrStore(claimId, struct{}{}); loaded {
		c.logger.Warnw("coordinator: transition already in flight",
			"claimId", claimId,
			"viewerId", c.viewerId,
		)
		claim, _ := c.findClaim(ctx, claimId)
		return TransitionOutcome{State: OutcomeState_Ignored, Claim: claim}, nil
	}
	defer c.inFlight.Delete(claimId)

	if err := c.validator.Struct(params); err != nil {
		return TransitionOutcome{}, &models.ValidationError{Reason: err.Error()}
	}
	claim, found := c.findClaim(ctx, claimId)
	if !found {
		return TransitionOutcome{}, &models.ValidationError{Reason: fmt.Sprintf("claim %s not found for viewer %s", claimId, c.viewerId)}
	}
	role := claim.RoleFor(c.viewerId)
	if !models.CanTransition(role, claim.Status, params.Status) {
		c.metricService.Count(ctx, models.MetricName_TransitionRejected, 1)
		return TransitionOutcome{}, models.NewTransitionNotAllowedError(role, claim.Status, params.Status)
	}

	snapshot := claim
	optimistic := claim
	optimistic.SetStatus(params.Status, time.Now().UTC())
	if params.Notes != nil {
		optimistic.Notes = params.Notes
	}
	c.mutateStore(ctx, func(claims []models.Claim) []models.Claim {
		return c.claimStore.Upsert(claims, optimistic)
	})

	// A transition targeting an unreconciled placeholder is queued even while
	// online: its create is still pending, and replaying both in order is the
	// only way the server ever learns the claim exists.
	if !c.connectivity.Online() || models.IsLocalId(claimId) {
		c.actionQueue.EnqueueTransition(ctx, claimId, params, c.viewerId)
		c.metricService.Count(ctx, models.MetricName_TransitionQueued, 1)
		c.logger.Infow("coordinator: transition queued",
			"claimId", claimId,
			"status", params.Status,
			"viewerId", c.viewerId,
		)
		return TransitionOutcome{State: OutcomeState_Queued, Claim: optimistic}, nil
	}

	serverClaim, err := c.claimApi.TransitionClaim(ctx, claimId, params)
	if err != nil {
		c.mutateStore(ctx, func(claims []models.Claim) []models.Claim {
			return c.claimStore.Upsert(claims, snapshot)
		})
		c.metricService.Count(ctx, models.MetricName_TransitionRolledBack, 1)
		c.logger.Warnf("coordinator: transition of claim %s to %s rolled back: %v", claimId, params.Status, err)
		return TransitionOutcome{}, err
	}
	c.mutateStore(ctx, func(claims []models.Claim) []models.Claim {
		return c.claimStore.Upsert(claims, *serverClaim)
	})
	c.metricService.Count(ctx, models.MetricName_TransitionApplied, 1)
	c.logger.Infow("coordinator: transition applied",
		"claimId", claimId,
		"status", serverClaim.Status,
		"viewerId", c.viewerId,
	)
	return TransitionOutcome{State: OutcomeState_Applied, Claim: *serverClaim}, nil
}

// Sync replays the viewer's queued actions against the server and folds the
// results back into the cache. Only one pass runs at a time; callers racing an
// active pass get AlreadyRunning and nothing else happens. A stalled pass is
// reported, logged, and raised as a warning, never returned as an error.
func (c *ClaimCoordinator) Sync(ctx context.Context) SyncReport {
	if !c.syncRunning.CompareAndSwap(false, true) {
		return SyncReport{AlreadyRunning: true}
	}
	defer c.syncRunning.Store(false)

	result := c.actionQueue.Replay(ctx, models.ReplayRequest{
		ViewerId:          c.viewerId,
		CreateHandler:     c.claimApi.CreateClaim,
		TransitionHandler: c.claimApi.TransitionClaim,
	})
	for _, processed := range result.Processed {
		processed := processed
		c.mutateStore(ctx, func(claims []models.Claim) []models.Claim {
			if len(processed.ReplaceClaimId) > 0 && processed.ReplaceClaimId != processed.Claim.Id {
				return c.claimStore.Replace(claims, processed.ReplaceClaimId, *processed.Claim)
			}
			return c.claimStore.Upsert(claims, *processed.Claim)
		})
	}
	if len(result.Processed) > 0 {
		c.metricService.Distribution(ctx, models.MetricName_SyncBatchSize, len(result.Processed))
	}

	report := SyncReport{
		Synced:    len(result.Processed),
		Remaining: len(result.Failed),
		Cause:     result.Err,
	}
	if report.Remaining > 0 {
		c.logger.Warnf("coordinator: sync stalled with %d action(s) remaining for viewer %s: %v", report.Remaining, c.viewerId, result.Err)
		c.warnReplayStalled(result.Failed)
	} else if report.Synced > 0 {
		c.logger.Infof("coordinator: synced %d action(s) for viewer %s", report.Synced, c.viewerId)
	}
	return report
}

func (c *ClaimCoordinator) warnReplayStalled(failed []models.QueuedAction) {
	if c.notifier == nil {
		return
	}
	lines := make([]string, len(failed))
	for idx, action := range failed {
		lines[idx] = fmt.Sprintf("%s %s (claim %s)", action.Type, action.Id, action.ClaimId)
	}
	if err := c.notifier.SendWarning(
		models.AlertTitle,
		models.AlertDesc_ReplayStalled,
		fmt.Sprintf(models.AlertFmt_ReplayStalled, len(failed), c.viewerId, strings.Join(lines, "\n")),
	); err != nil {
		c.logger.Errorf("coordinator: error sending replay warning: %v", err)
	}
}

func (c *ClaimCoordinator) findClaim(ctx context.Context, claimId string) (models.Claim, bool) {
	for _, claim := range c.loadClaims(ctx) {
		if claim.Id == claimId {
			return claim, true
		}
	}
	return models.Claim{}, false
}

func (c *ClaimCoordinator) loadClaims(ctx context.Context) []models.Claim {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()
	return c.claimStore.Load(ctx, c.viewerId)
}

// mutateStore serializes load-modify-save cycles on the claim cache so
// concurrent mutations cannot clobber each other's whole-value writes. The
// lock is never held across network calls.
func (c *ClaimCoordinator) mutateStore(ctx context.Context, mutate func([]models.Claim) []models.Claim) {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()
	c.claimStore.Save(ctx, mutate(c.claimStore.Load(ctx, c.viewerId)), c.viewerId)
}
