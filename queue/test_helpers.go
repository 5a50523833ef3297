package queue

import (
	"context"
	"errors"
	"strconv"

	"github.com/gleanhub/go-claimsync/models"
)

type FakeKvRepository struct {
	records  map[string][]byte
	failGets bool
	failPuts bool
	numPuts  int
}

func NewFakeKvRepository() *FakeKvRepository {
	return &FakeKvRepository{records: make(map[string][]byte)}
}

func (f *FakeKvRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.failGets {
		return nil, false, errors.New("TestError")
	}
	data, found := f.records[key]
	return data, found, nil
}

func (f *FakeKvRepository) Put(ctx context.Context, key string, value []byte) error {
	if f.failPuts {
		return errors.New("TestError")
	}
	f.numPuts = f.numPuts + 1
	f.records[key] = value
	return nil
}

func (f *FakeKvRepository) Delete(ctx context.Context, key string) error {
	delete(f.records, key)
	return nil
}

type FakeMetricService struct {
	models.MetricService
	counts map[models.MetricName]int
}

func (f *FakeMetricService) Count(ctx context.Context, name models.MetricName, val int) error {
	if f.counts == nil {
		f.counts = make(map[models.MetricName]int)
	}
	f.counts[name] = f.counts[name] + val
	return nil
}

type FakeNotifier struct {
	alerts []string
}

func (f *FakeNotifier) SendAlert(title, desc, content string) error {
	f.alerts = append(f.alerts, desc+": "+content)
	return nil
}

func (f *FakeNotifier) SendWarning(title, desc, content string) error {
	f.alerts = append(f.alerts, desc+": "+content)
	return nil
}

// ScriptedApi hands out claims for replayed actions and fails on the call
// number it was told to. Creates return fresh server IDs so tests can verify
// placeholder reconciliation; the calls log records invocation order.
type ScriptedApi struct {
	nextServerId int
	failOnCall   int
	numCalls     int
	calls        []string
}

func (s *ScriptedApi) CreateClaim(ctx context.Context, params *models.CreateClaimParams) (*models.Claim, error) {
	if err := s.called(); err != nil {
		return nil, err
	}
	s.nextServerId = s.nextServerId + 1
	claim := newServerClaim(s.nextServerId, params)
	s.calls = append(s.calls, "create "+claim.Id)
	return claim, nil
}

func (s *ScriptedApi) TransitionClaim(ctx context.Context, claimId string, params *models.TransitionParams) (*models.Claim, error) {
	if err := s.called(); err != nil {
		return nil, err
	}
	s.calls = append(s.calls, "transition "+claimId+" "+string(params.Status))
	claim := newServerClaim(0, &models.CreateClaimParams{ListingId: "listing-1", QuantityClaimed: 1})
	claim.Id = claimId
	claim.Status = params.Status
	return claim, nil
}

func (s *ScriptedApi) called() error {
	s.numCalls = s.numCalls + 1
	if s.numCalls == s.failOnCall {
		return errors.New("TestError")
	}
	return nil
}

func newServerClaim(serial int, params *models.CreateClaimParams) *models.Claim {
	return &models.Claim{
		Id:              serverId(serial),
		ListingId:       params.ListingId,
		ClaimerId:       "viewer-1",
		ListingOwnerId:  "viewer-2",
		QuantityClaimed: params.QuantityClaimed,
		Status:          models.ClaimStatus_Pending,
	}
}

func serverId(serial int) string {
	return "claim-" + strconv.Itoa(serial)
}
