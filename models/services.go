package models

import (
	"context"
)

// KeyValueRepository is the durable record store behind the claim cache and
// the action queue. Values are whole-record replacements so an interrupted
// write can never leave a partially updated record behind.
type KeyValueRepository interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// ClaimStore is the per-viewer claim cache. Load and Save never return errors:
// the cache is convenience, not source of truth, so persistence failures
// degrade to empty results. Upsert and Replace are pure and leave their input
// untouched.
type ClaimStore interface {
	Load(ctx context.Context, viewerId string) []Claim
	Save(ctx context.Context, claims []Claim, viewerId string)
	Upsert(existing []Claim, claim Claim) []Claim
	Replace(existing []Claim, staleId string, claim Claim) []Claim
}

// ActionQueue records mutating intents that could not reach the server and
// replays them strictly in FIFO order per viewer. Enqueue failures are logged
// and swallowed for the same reason store failures are.
type ActionQueue interface {
	EnqueueCreate(ctx context.Context, params *CreateClaimParams, localClaimId, viewerId string)
	EnqueueTransition(ctx context.Context, claimId string, params *TransitionParams, viewerId string)
	HasPending(ctx context.Context, viewerId string) bool
	Pending(ctx context.Context, viewerId string) []QueuedAction
	Replay(ctx context.Context, request ReplayRequest) ReplayResult
	Monitor(viewerId string) ResourceMonitor
}

type ClaimApi interface {
	CreateClaim(ctx context.Context, params *CreateClaimParams) (*Claim, error)
	TransitionClaim(ctx context.Context, claimId string, params *TransitionParams) (*Claim, error)
}

type ConnectivityMonitor interface {
	Online() bool
}

type ResourceMonitor interface {
	GetValue(ctx context.Context) (int, error)
}

type Notifier interface {
	SendAlert(title, desc, content string) error
	SendWarning(title, desc, content string) error
}

type MetricService interface {
	Count(ctx context.Context, name MetricName, val int) error
	Gauge(ctx context.Context, name MetricName, monitor ResourceMonitor) error
	Distribution(ctx context.Context, name MetricName, val int) error
	Shutdown(ctx context.Context)
}

type Logger interface {
	Debugf(template string, args ...interface{})
	Debugw(msg string, args ...interface{})
	Errorf(template string, args ...interface{})
	Fatalf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, args ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, args ...interface{})
	Sync() error
}
