package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gleanhub/go-claimsync/models"
)

type FakeConnectivity struct {
	online bool
}

func (f *FakeConnectivity) Online() bool {
	return f.online
}

type FakeMetricService struct {
	models.MetricService
	counts        map[models.MetricName]int
	distributions map[models.MetricName][]int
}

func (f *FakeMetricService) Count(ctx context.Context, name models.MetricName, val int) error {
	if f.counts == nil {
		f.counts = make(map[models.MetricName]int)
	}
	f.counts[name] = f.counts[name] + val
	return nil
}

func (f *FakeMetricService) Gauge(ctx context.Context, name models.MetricName, monitor models.ResourceMonitor) error {
	return nil
}

func (f *FakeMetricService) Distribution(ctx context.Context, name models.MetricName, val int) error {
	if f.distributions == nil {
		f.distributions = make(map[models.MetricName][]int)
	}
	f.distributions[name] = append(f.distributions[name], val)
	return nil
}

type FakeNotifier struct {
	alerts   []string
	warnings []string
}

func (f *FakeNotifier) SendAlert(title, desc, content string) error {
	f.alerts = append(f.alerts, desc+": "+content)
	return nil
}

func (f *FakeNotifier) SendWarning(title, desc, content string) error {
	f.warnings = append(f.warnings, desc+": "+content)
	return nil
}

// FakeClaimApi stands in for the backend: creates mint server IDs, transitions
// mutate the fake's own claim state and stamp serverTime so tests can tell
// server timestamps from local guesses. The started/release channels, when
// set, block transitions mid-call for in-flight guard tests.
type FakeClaimApi struct {
	claims            map[string]*models.Claim
	nextServerId      int
	numCreates        int
	numTransitions    int
	failCreates       bool
	failTransitions   bool
	serverTime        time.Time
	transitionStarted chan string
	transitionRelease chan struct{}
}

func NewFakeClaimApi() *FakeClaimApi {
	return &FakeClaimApi{
		claims:     make(map[string]*models.Claim),
		serverTime: time.Date(2025, time.March, 14, 9, 26, 53, 0, time.UTC),
	}
}

func (f *FakeClaimApi) CreateClaim(ctx context.Context, params *models.CreateClaimParams) (*models.Claim, error) {
	f.numCreates = f.numCreates + 1
	if f.failCreates {
		return nil, &models.NetworkError{Op: "createClaim", StatusCode: 500, Err: errors.New("TestError")}
	}
	f.nextServerId = f.nextServerId + 1
	claimedAt := f.serverTime
	claim := &models.Claim{
		Id:              "claim-" + strconv.Itoa(f.nextServerId),
		ListingId:       params.ListingId,
		RequestId:       params.RequestId,
		ClaimerId:       "viewer-1",
		ListingOwnerId:  "owner-1",
		QuantityClaimed: params.QuantityClaimed,
		Status:          models.ClaimStatus_Pending,
		Notes:           params.Notes,
		ClaimedAt:       &claimedAt,
	}
	f.claims[claim.Id] = claim
	copied := *claim
	return &copied, nil
}

func (f *FakeClaimApi) TransitionClaim(ctx context.Context, claimId string, params *models.TransitionParams) (*models.Claim, error) {
	f.numTransitions = f.numTransitions + 1
	if f.transitionStarted != nil {
		f.transitionStarted <- claimId
		<-f.transitionRelease
	}
	if f.failTransitions {
		return nil, &models.NetworkError{Op: "transitionClaim", StatusCode: 409, Err: errors.New("TestError")}
	}
	claim, found := f.claims[claimId]
	if !found {
		return nil, &models.NetworkError{Op: "transitionClaim", StatusCode: 404, Err: errors.New("claim not found")}
	}
	claim.SetStatus(params.Status, f.serverTime)
	if params.Notes != nil {
		claim.Notes = params.Notes
	}
	copied := *claim
	return &copied, nil
}

// Seed installs a claim as preexisting server state, bypassing the creation
// counters.
func (f *FakeClaimApi) Seed(claim models.Claim) {
	copied := claim
	f.claims[claim.Id] = &copied
}
