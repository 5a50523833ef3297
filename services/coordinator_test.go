package services

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/gleanhub/go-claimsync/common/db"
	"github.com/gleanhub/go-claimsync/common/loggers"
	"github.com/gleanhub/go-claimsync/models"
	"github.com/gleanhub/go-claimsync/queue"
	"github.com/gleanhub/go-claimsync/store"
)

type testEngine struct {
	viewerId     string
	coordinator  *ClaimCoordinator
	api          *FakeClaimApi
	connectivity *FakeConnectivity
	notifier     *FakeNotifier
	metrics      *FakeMetricService
	claimStore   *store.ClaimCache
	actionQueue  *queue.OfflineActionQueue
}

func newTestEngine(viewerId string) *testEngine {
	logger := loggers.NewTestLogger()
	metrics := &FakeMetricService{}
	notifier := &FakeNotifier{}
	repository := db.NewMemoryStore()
	api := NewFakeClaimApi()
	connectivity := &FakeConnectivity{online: true}
	claimStore := store.NewClaimCache(logger, metrics, repository)
	actionQueue := queue.NewOfflineActionQueue(logger, metrics, notifier, repository)
	coordinator := NewClaimCoordinator(context.Background(), logger, metrics, notifier, viewerId, claimStore, actionQueue, api, connectivity)
	return &testEngine{
		viewerId:     viewerId,
		coordinator:  coordinator,
		api:          api,
		connectivity: connectivity,
		notifier:     notifier,
		metrics:      metrics,
		claimStore:   claimStore,
		actionQueue:  actionQueue,
	}
}

func (e *testEngine) seedClaim(claim models.Claim) {
	e.api.Seed(claim)
	e.claimStore.Save(context.Background(), []models.Claim{claim}, e.viewerId)
}

func (e *testEngine) storedClaims() []models.Claim {
	return e.claimStore.Load(context.Background(), e.viewerId)
}

func pendingClaim() models.Claim {
	claimedAt := time.Date(2025, time.February, 10, 12, 0, 0, 0, time.UTC)
	return models.Claim{
		Id:              "claim-9",
		ListingId:       "listing-7",
		ClaimerId:       "viewer-1",
		ListingOwnerId:  "owner-1",
		QuantityClaimed: 2,
		Status:          models.ClaimStatus_Pending,
		ClaimedAt:       &claimedAt,
	}
}

func TestCreateClaimOnline(t *testing.T) {
	engine := newTestEngine("viewer-1")
	outcome, err := engine.coordinator.CreateClaim(context.Background(), &models.CreateClaimParams{
		ListingId:       "listing-7",
		QuantityClaimed: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.State != OutcomeState_Submitted {
		t.Errorf("expected submitted outcome, got %s", outcome.State)
	}
	if outcome.Claim.Id != "claim-1" {
		t.Errorf("expected server claim id, got %s", outcome.Claim.Id)
	}
	if !reflect.DeepEqual(engine.storedClaims(), []models.Claim{outcome.Claim}) {
		t.Errorf("expected store to hold the server claim, got %v", engine.storedClaims())
	}
	if engine.actionQueue.HasPending(context.Background(), "viewer-1") {
		t.Errorf("expected no queued actions after an online create")
	}
	if engine.metrics.counts[models.MetricName_ClaimCreated] != 1 {
		t.Errorf("expected created metric, got %v", engine.metrics.counts)
	}
}

func TestCreateClaimValidation(t *testing.T) {
	tests := map[string]*models.CreateClaimParams{
		"missing listing":   {QuantityClaimed: 1},
		"zero quantity":     {ListingId: "listing-7"},
		"negative quantity": {ListingId: "listing-7", QuantityClaimed: -3},
	}
	for name, params := range tests {
		t.Run(name, func(t *testing.T) {
			engine := newTestEngine("viewer-1")
			_, err := engine.coordinator.CreateClaim(context.Background(), params)
			validationErr := &models.ValidationError{}
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if engine.api.numCreates != 0 {
				t.Errorf("expected no api call for invalid params")
			}
			if len(engine.storedClaims()) != 0 {
				t.Errorf("expected store to stay empty")
			}
			if engine.actionQueue.HasPending(context.Background(), "viewer-1") {
				t.Errorf("expected queue to stay empty")
			}
		})
	}
}

func TestCreateClaimOnlineFailure(t *testing.T) {
	engine := newTestEngine("viewer-1")
	engine.api.failCreates = true
	_, err := engine.coordinator.CreateClaim(context.Background(), &models.CreateClaimParams{
		ListingId:       "listing-7",
		QuantityClaimed: 2,
	})
	networkErr := &models.NetworkError{}
	if !errors.As(err, &networkErr) {
		t.Fatalf("expected network error, got %v", err)
	}
	if networkErr.StatusCode != 500 {
		t.Errorf("expected status 500, got %d", networkErr.StatusCode)
	}
	// Online failures are returned, not queued: nothing was applied.
	if len(engine.storedClaims()) != 0 {
		t.Errorf("expected store to stay empty, got %v", engine.storedClaims())
	}
	if engine.actionQueue.HasPending(context.Background(), "viewer-1") {
		t.Errorf("expected queue to stay empty")
	}
}

func TestCreateClaimOffline(t *testing.T) {
	engine := newTestEngine("viewer-1")
	engine.connectivity.online = false
	outcome, err := engine.coordinator.CreateClaim(context.Background(), &models.CreateClaimParams{
		ListingId:       "listing-7",
		ListingOwnerId:  "owner-1",
		QuantityClaimed: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.State != OutcomeState_Queued {
		t.Errorf("expected queued outcome, got %s", outcome.State)
	}
	if !models.IsLocalId(outcome.Claim.Id) {
		t.Errorf("expected placeholder id, got %s", outcome.Claim.Id)
	}
	if outcome.Claim.Status != models.ClaimStatus_Pending || outcome.Claim.ClaimedAt == nil {
		t.Errorf("expected pending claim stamped now, got %v", outcome.Claim)
	}
	if outcome.Claim.ClaimerId != "viewer-1" {
		t.Errorf("expected viewer as claimer, got %s", outcome.Claim.ClaimerId)
	}
	if !reflect.DeepEqual(engine.storedClaims(), []models.Claim{outcome.Claim}) {
		t.Errorf("expected store to hold the placeholder claim, got %v", engine.storedClaims())
	}
	pending := engine.actionQueue.Pending(context.Background(), "viewer-1")
	if len(pending) != 1 || pending[0].Type != models.ActionType_Create || pending[0].ClaimId != outcome.Claim.Id {
		t.Errorf("expected one queued create for the placeholder, got %v", pending)
	}
	if engine.api.numCreates != 0 {
		t.Errorf("expected no api call while offline")
	}
	if engine.metrics.counts[models.MetricName_CreateQueued] != 1 {
		t.Errorf("expected queued metric, got %v", engine.metrics.counts)
	}
}

func TestCreateClaimOfflineRequiresOwner(t *testing.T) {
	// A placeholder claim without an owner could never answer transition
	// policy questions, so the offline path must reject it up front.
	engine := newTestEngine("viewer-1")
	engine.connectivity.online = false
	_, err := engine.coordinator.CreateClaim(context.Background(), &models.CreateClaimParams{
		ListingId:       "listing-7",
		QuantityClaimed: 2,
	})
	validationErr := &models.ValidationError{}
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(engine.storedClaims()) != 0 {
		t.Errorf("expected no placeholder synthesized, got %v", engine.storedClaims())
	}
	if engine.actionQueue.HasPending(context.Background(), "viewer-1") {
		t.Errorf("expected queue to stay empty")
	}
	if engine.api.numCreates != 0 {
		t.Errorf("expected no api call while offline")
	}
}

func TestOfflineCreateThenSync(t *testing.T) {
	engine := newTestEngine("viewer-1")
	engine.connectivity.online = false
	outcome, err := engine.coordinator.CreateClaim(context.Background(), &models.CreateClaimParams{
		ListingId:       "listing-7",
		ListingOwnerId:  "owner-1",
		QuantityClaimed: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	engine.connectivity.online = true
	report := engine.coordinator.Sync(context.Background())
	if !reflect.DeepEqual(report, SyncReport{Synced: 1}) {
		t.Errorf("expected one synced action, got %+v", report)
	}

	stored := engine.storedClaims()
	if len(stored) != 1 {
		t.Fatalf("expected exactly one claim, got %v", stored)
	}
	if stored[0].Id != "claim-1" || models.IsLocalId(stored[0].Id) {
		t.Errorf("expected placeholder replaced by server id, got %s", stored[0].Id)
	}
	if stored[0].ListingId != outcome.Claim.ListingId {
		t.Errorf("expected reconciled claim to keep its listing, got %v", stored[0])
	}
	if engine.actionQueue.HasPending(context.Background(), "viewer-1") {
		t.Errorf("expected empty queue after sync")
	}
	if !reflect.DeepEqual(engine.metrics.distributions[models.MetricName_SyncBatchSize], []int{1}) {
		t.Errorf("expected batch size distribution, got %v", engine.metrics.distributions)
	}
}

func TestTransitionClaimOnline(t *testing.T) {
	engine := newTestEngine("owner-1")
	engine.seedClaim(pendingClaim())

	outcome, err := engine.coordinator.TransitionClaim(context.Background(), "claim-9", &models.TransitionParams{Status: models.ClaimStatus_Confirmed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.State != OutcomeState_Applied {
		t.Errorf("expected applied outcome, got %s", outcome.State)
	}
	if outcome.Claim.Status != models.ClaimStatus_Confirmed {
		t.Errorf("expected confirmed claim, got %s", outcome.Claim.Status)
	}
	// The cached claim must carry the server's confirmedAt, not the local guess.
	stored := engine.storedClaims()
	if len(stored) != 1 || stored[0].ConfirmedAt == nil {
		t.Fatalf("expected one confirmed claim, got %v", stored)
	}
	if !stored[0].ConfirmedAt.Equal(engine.api.serverTime) {
		t.Errorf("expected server timestamp %v, got %v", engine.api.serverTime, *stored[0].ConfirmedAt)
	}
	if !reflect.DeepEqual(stored[0], outcome.Claim) {
		t.Errorf("expected store to match the returned claim exactly")
	}
	if engine.actionQueue.HasPending(context.Background(), "owner-1") {
		t.Errorf("expected no queued actions after an online transition")
	}
	if engine.metrics.counts[models.MetricName_TransitionApplied] != 1 {
		t.Errorf("expected applied metric, got %v", engine.metrics.counts)
	}
}

func TestTransitionClaimRejected(t *testing.T) {
	// A claimer may not confirm their own claim.
	engine := newTestEngine("viewer-1")
	claim := pendingClaim()
	engine.seedClaim(claim)

	_, err := engine.coordinator.TransitionClaim(context.Background(), "claim-9", &models.TransitionParams{Status: models.ClaimStatus_Confirmed})
	validationErr := &models.ValidationError{}
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if engine.api.numTransitions != 0 {
		t.Errorf("expected rejection before any api call")
	}
	if !reflect.DeepEqual(engine.storedClaims(), []models.Claim{claim}) {
		t.Errorf("expected store untouched, got %v", engine.storedClaims())
	}
	if engine.actionQueue.HasPending(context.Background(), "viewer-1") {
		t.Errorf("expected queue untouched")
	}
	if engine.metrics.counts[models.MetricName_TransitionRejected] != 1 {
		t.Errorf("expected rejected metric, got %v", engine.metrics.counts)
	}
}

func TestTransitionRollback(t *testing.T) {
	engine := newTestEngine("owner-1")
	claim := pendingClaim()
	engine.seedClaim(claim)
	engine.api.failTransitions = true

	_, err := engine.coordinator.TransitionClaim(context.Background(), "claim-9", &models.TransitionParams{Status: models.ClaimStatus_Confirmed})
	networkErr := &models.NetworkError{}
	if !errors.As(err, &networkErr) {
		t.Fatalf("expected network error, got %v", err)
	}
	if networkErr.StatusCode != 409 {
		t.Errorf("expected status 409, got %d", networkErr.StatusCode)
	}
	// The pre-transition snapshot is restored exactly, timestamps included.
	if !reflect.DeepEqual(engine.storedClaims(), []models.Claim{claim}) {
		t.Errorf("expected exact rollback to %v, got %v", claim, engine.storedClaims())
	}
	if engine.actionQueue.HasPending(context.Background(), "owner-1") {
		t.Errorf("expected nothing queued for a rolled-back transition")
	}
	if engine.metrics.counts[models.MetricName_TransitionRolledBack] != 1 {
		t.Errorf("expected rollback metric, got %v", engine.metrics.counts)
	}
}

func TestTransitionOffline(t *testing.T) {
	engine := newTestEngine("owner-1")
	engine.seedClaim(pendingClaim())
	engine.connectivity.online = false

	outcome, err := engine.coordinator.TransitionClaim(context.Background(), "claim-9", &models.TransitionParams{Status: models.ClaimStatus_Confirmed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.State != OutcomeState_Queued {
		t.Errorf("expected queued outcome, got %s", outcome.State)
	}
	if outcome.Claim.Status != models.ClaimStatus_Confirmed || outcome.Claim.ConfirmedAt == nil {
		t.Errorf("expected optimistic confirmed claim, got %v", outcome.Claim)
	}
	if !reflect.DeepEqual(engine.storedClaims(), []models.Claim{outcome.Claim}) {
		t.Errorf("expected store to hold the optimistic claim, got %v", engine.storedClaims())
	}
	pending := engine.actionQueue.Pending(context.Background(), "owner-1")
	if len(pending) != 1 || pending[0].Type != models.ActionType_Transition || pending[0].ClaimId != "claim-9" {
		t.Errorf("expected one queued transition, got %v", pending)
	}
	if engine.api.numTransitions != 0 {
		t.Errorf("expected no api call while offline")
	}
	if engine.metrics.counts[models.MetricName_TransitionQueued] != 1 {
		t.Errorf("expected queued metric, got %v", engine.metrics.counts)
	}

	// After reconnect the replayed transition's server timestamps supersede the
	// local guess.
	engine.connectivity.online = true
	report := engine.coordinator.Sync(context.Background())
	if report.Synced != 1 || report.Remaining != 0 {
		t.Fatalf("expected clean sync, got %+v", report)
	}
	stored := engine.storedClaims()
	if len(stored) != 1 || stored[0].ConfirmedAt == nil || !stored[0].ConfirmedAt.Equal(engine.api.serverTime) {
		t.Errorf("expected server timestamp after sync, got %v", stored)
	}
}

func TestTransitionUnknownClaim(t *testing.T) {
	engine := newTestEngine("viewer-1")
	_, err := engine.coordinator.TransitionClaim(context.Background(), "claim-404", &models.TransitionParams{Status: models.ClaimStatus_Cancelled})
	validationErr := &models.ValidationError{}
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if engine.api.numTransitions != 0 {
		t.Errorf("expected no api call for an unknown claim")
	}
}

func TestTransitionPlaceholderTargetQueued(t *testing.T) {
	engine := newTestEngine("viewer-1")
	engine.connectivity.online = false
	created, err := engine.coordinator.CreateClaim(context.Background(), &models.CreateClaimParams{
		ListingId:       "listing-7",
		ListingOwnerId:  "owner-1",
		QuantityClaimed: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Back online, but the create is still queued: a transition against the
	// placeholder must queue behind it instead of hitting the server.
	engine.connectivity.online = true
	outcome, err := engine.coordinator.TransitionClaim(context.Background(), created.Claim.Id, &models.TransitionParams{Status: models.ClaimStatus_Cancelled})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.State != OutcomeState_Queued {
		t.Errorf("expected queued outcome for placeholder target, got %s", outcome.State)
	}
	if engine.api.numTransitions != 0 {
		t.Errorf("expected no direct api call for placeholder target")
	}
	pending := engine.actionQueue.Pending(context.Background(), "viewer-1")
	if len(pending) != 2 || pending[0].Type != models.ActionType_Create || pending[1].Type != models.ActionType_Transition {
		t.Fatalf("expected create then transition queued, got %v", pending)
	}

	report := engine.coordinator.Sync(context.Background())
	if report.Synced != 2 || report.Remaining != 0 {
		t.Fatalf("expected both actions synced, got %+v", report)
	}
	stored := engine.storedClaims()
	if len(stored) != 1 || stored[0].Id != "claim-1" || stored[0].Status != models.ClaimStatus_Cancelled {
		t.Errorf("expected one cancelled server claim, got %v", stored)
	}
	if stored[0].CancelledAt == nil || !stored[0].CancelledAt.Equal(engine.api.serverTime) {
		t.Errorf("expected server cancellation timestamp, got %v", stored[0].CancelledAt)
	}
	if engine.actionQueue.HasPending(context.Background(), "viewer-1") {
		t.Errorf("expected empty queue after sync")
	}
}

func TestTransitionReentrantGuard(t *testing.T) {
	engine := newTestEngine("owner-1")
	engine.seedClaim(pendingClaim())
	engine.api.transitionStarted = make(chan string)
	engine.api.transitionRelease = make(chan struct{})

	outcomes := make(chan TransitionOutcome, 1)
	go func() {
		outcome, err := engine.coordinator.TransitionClaim(context.Background(), "claim-9", &models.TransitionParams{Status: models.ClaimStatus_Confirmed})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		outcomes <- outcome
	}()

	<-engine.api.transitionStarted
	second, err := engine.coordinator.TransitionClaim(context.Background(), "claim-9", &models.TransitionParams{Status: models.ClaimStatus_Cancelled})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.State != OutcomeState_Ignored {
		t.Errorf("expected ignored outcome while in flight, got %s", second.State)
	}
	if second.Claim.Id != "claim-9" {
		t.Errorf("expected the in-flight claim back, got %v", second.Claim)
	}

	close(engine.api.transitionRelease)
	first := <-outcomes
	if first.State != OutcomeState_Applied {
		t.Errorf("expected first transition applied, got %s", first.State)
	}
	if engine.api.numTransitions != 1 {
		t.Errorf("expected exactly one api call, got %d", engine.api.numTransitions)
	}
	stored := engine.storedClaims()
	if len(stored) != 1 || stored[0].Status != models.ClaimStatus_Confirmed {
		t.Errorf("expected the first transition to win, got %v", stored)
	}
}

func TestSyncEmptyQueue(t *testing.T) {
	engine := newTestEngine("viewer-1")
	report := engine.coordinator.Sync(context.Background())
	if !reflect.DeepEqual(report, SyncReport{}) {
		t.Errorf("expected empty report, got %+v", report)
	}
	if len(engine.metrics.distributions) != 0 {
		t.Errorf("expected no distribution for an empty pass, got %v", engine.metrics.distributions)
	}
	if len(engine.notifier.warnings) != 0 {
		t.Errorf("expected no warnings, got %v", engine.notifier.warnings)
	}
}

func TestSyncAlreadyRunning(t *testing.T) {
	engine := newTestEngine("owner-1")
	engine.seedClaim(pendingClaim())
	engine.connectivity.online = false
	if _, err := engine.coordinator.TransitionClaim(context.Background(), "claim-9", &models.TransitionParams{Status: models.ClaimStatus_Confirmed}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	engine.connectivity.online = true
	engine.api.transitionStarted = make(chan string)
	engine.api.transitionRelease = make(chan struct{})
	reports := make(chan SyncReport, 1)
	go func() {
		reports <- engine.coordinator.Sync(context.Background())
	}()

	<-engine.api.transitionStarted
	second := engine.coordinator.Sync(context.Background())
	if !reflect.DeepEqual(second, SyncReport{AlreadyRunning: true}) {
		t.Errorf("expected already-running report, got %+v", second)
	}

	close(engine.api.transitionRelease)
	first := <-reports
	if first.AlreadyRunning || first.Synced != 1 {
		t.Errorf("expected the first pass to complete, got %+v", first)
	}
}

func TestSyncReportsStall(t *testing.T) {
	engine := newTestEngine("viewer-1")
	engine.connectivity.online = false
	created, err := engine.coordinator.CreateClaim(context.Background(), &models.CreateClaimParams{
		ListingId:       "listing-7",
		ListingOwnerId:  "owner-1",
		QuantityClaimed: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	engine.connectivity.online = true
	engine.api.failCreates = true
	report := engine.coordinator.Sync(context.Background())
	if report.Synced != 0 || report.Remaining != 1 {
		t.Fatalf("expected a stalled pass, got %+v", report)
	}
	replayErr := &models.ReplayError{}
	if !errors.As(report.Cause, &replayErr) {
		t.Errorf("expected replay error cause, got %v", report.Cause)
	}
	if len(engine.notifier.warnings) != 1 {
		t.Fatalf("expected one stall warning, got %v", engine.notifier.warnings)
	}
	// The failed action stays queued and the optimistic claim stays cached.
	if !engine.actionQueue.HasPending(context.Background(), "viewer-1") {
		t.Errorf("expected failed action to stay queued")
	}
	stored := engine.storedClaims()
	if len(stored) != 1 || stored[0].Id != created.Claim.Id {
		t.Errorf("expected optimistic claim to survive the stall, got %v", stored)
	}

	// The next pass drains the queue.
	engine.api.failCreates = false
	report = engine.coordinator.Sync(context.Background())
	if report.Synced != 1 || report.Remaining != 0 {
		t.Fatalf("expected recovery pass to drain the queue, got %+v", report)
	}
	stored = engine.storedClaims()
	if len(stored) != 1 || models.IsLocalId(stored[0].Id) {
		t.Errorf("expected reconciled server claim, got %v", stored)
	}
}
