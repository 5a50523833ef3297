package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator"
	"github.com/google/uuid"

	"github.com/gleanhub/go-claimsync"
	"github.com/gleanhub/go-claimsync/models"
)

const actionsKeyPrefix = "actions:"

// Pre-multi-viewer builds persisted a single unscoped record under this key.
const legacyActionsKey = "actions"

// OfflineActionQueue durably records create/transition intents that could not
// reach the server and replays them strictly in FIFO order per viewer. Entries
// leave the queue only on successful replay; a failed action and everything
// after it stay queued in original order. Safe for concurrent use: every
// load-modify-save of the backing record runs under one mutex, and replay
// never holds that mutex across a handler call.
type OfflineActionQueue struct {
	logger        models.Logger
	metricService models.MetricService
	notifier      models.Notifier
	repository    models.KeyValueRepository
	validator     *validator.Validate
	maxActionAge  time.Duration

	// Serializes access to the whole-value queue records. An enqueue racing a
	// replay commit would otherwise clobber one side's write.
	mu sync.Mutex
}

var _ models.ActionQueue = &OfflineActionQueue{}

func NewOfflineActionQueue(logger models.Logger, metricService models.MetricService, notifier models.Notifier, repository models.KeyValueRepository) *OfflineActionQueue {
	maxActionAge := models.DefaultMaxActionAge
	if configMaxActionAge, found := os.LookupEnv(claimsync.Env_MaxActionAge); found {
		if parsedMaxActionAge, err := time.ParseDuration(configMaxActionAge); err == nil {
			maxActionAge = parsedMaxActionAge
		}
	}
	return &OfflineActionQueue{
		logger:        logger,
		metricService: metricService,
		notifier:      notifier,
		repository:    repository,
		validator:     validator.New(),
		maxActionAge:  maxActionAge,
	}
}

func actionsKey(viewerId string) string {
	return actionsKeyPrefix + viewerId
}

func (q *OfflineActionQueue) EnqueueCreate(ctx context.Context, params *models.CreateClaimParams, localClaimId, viewerId string) {
	q.enqueue(ctx, models.QueuedAction{
		Id:         uuid.NewString(),
		Type:       models.ActionType_Create,
		ClaimId:    localClaimId,
		Create:     params,
		EnqueuedAt: time.Now().UTC(),
	}, viewerId)
}

func (q *OfflineActionQueue) EnqueueTransition(ctx context.Context, claimId string, params *models.TransitionParams, viewerId string) {
	q.enqueue(ctx, models.QueuedAction{
		Id:         uuid.NewString(),
		Type:       models.ActionType_Transition,
		ClaimId:    claimId,
		Transition: params,
		EnqueuedAt: time.Now().UTC(),
	}, viewerId)
}

func (q *OfflineActionQueue) enqueue(ctx context.Context, action models.QueuedAction, viewerId string) {
	q.mu.Lock()
	actions, numExpired, _ := q.load(ctx, viewerId)
	q.save(ctx, append(actions, action), viewerId)
	q.mu.Unlock()
	q.alertExpired(numExpired, viewerId)
	q.logger.Debugw("queue: action enqueued",
		"actionId", action.Id,
		"type", action.Type,
		"claimId", action.ClaimId,
		"viewerId", viewerId,
	)
}

func (q *OfflineActionQueue) HasPending(ctx context.Context, viewerId string) bool {
	return len(q.Pending(ctx, viewerId)) > 0
}

func (q *OfflineActionQueue) Pending(ctx context.Context, viewerId string) []models.QueuedAction {
	q.mu.Lock()
	actions, numExpired, _ := q.load(ctx, viewerId)
	q.mu.Unlock()
	q.alertExpired(numExpired, viewerId)
	return actions
}

// Replay processes the viewer's queue strictly in order. Successful creates
// record a localClaimId -> serverClaimId mapping that later transitions in the
// same pass resolve their targets through. The first failure stops the pass:
// the failed action and everything after it remain queued, already-processed
// actions are never re-queued. The pass works off a snapshot, so actions
// enqueued while a handler is in flight stay queued for the next pass.
func (q *OfflineActionQueue) Replay(ctx context.Context, request models.ReplayRequest) models.ReplayResult {
	q.mu.Lock()
	actions, numExpired, _ := q.load(ctx, request.ViewerId)
	q.mu.Unlock()
	q.alertExpired(numExpired, request.ViewerId)
	if len(actions) == 0 {
		return models.ReplayResult{}
	}
	q.logger.Infof("queue: replaying %d action(s) for viewer %s", len(actions), request.ViewerId)

	serverIds := map[string]string{}
	replayedIds := make(map[string]struct{}, len(actions))
	processed := make([]models.ProcessedAction, 0, len(actions))
	for idx, action := range actions {
		replayed, err := q.replayAction(ctx, action, serverIds, request)
		if err != nil {
			// Every success already committed its own removal with reconciled
			// targets, so storage holds the failed action and its successors,
			// plus anything enqueued mid-pass, in original order.
			q.metricService.Count(ctx, models.MetricName_ReplayActionFailed, 1)
			q.logger.Warnf("queue: replay stopped at action %s for viewer %s: %v", action.Id, request.ViewerId, err)
			return models.ReplayResult{
				Processed: processed,
				Failed:    q.reconcileTail(actions[idx:], serverIds),
				Err:       &models.ReplayError{Action: action, Err: err},
			}
		}
		processed = append(processed, *replayed)
		replayedIds[action.Id] = struct{}{}
		q.metricService.Count(ctx, models.MetricName_ReplayActionReplayed, 1)
		q.commit(ctx, replayedIds, serverIds, request.ViewerId)
	}
	return models.ReplayResult{Processed: processed}
}

// commit removes the pass's replayed actions from durable storage after every
// success, so an interrupted pass can neither re-apply an action nor wedge on
// a mapping that existed only in this pass's memory. The queue is re-read
// under the mutex rather than trusted from the pass's snapshot: an action
// enqueued while a handler was in flight survives the write, and dropping by
// ID means a commit that was skipped is healed by the next one.
func (q *OfflineActionQueue) commit(ctx context.Context, replayedIds map[string]struct{}, serverIds map[string]string, viewerId string) {
	q.mu.Lock()
	current, numExpired, ok := q.load(ctx, viewerId)
	if !ok {
		// Never overwrite records that could not be read back.
		q.mu.Unlock()
		return
	}
	remaining := make([]models.QueuedAction, 0, len(current))
	for _, action := range current {
		if _, replayed := replayedIds[action.Id]; replayed {
			continue
		}
		remaining = append(remaining, action)
	}
	q.save(ctx, q.reconcileTail(remaining, serverIds), viewerId)
	q.mu.Unlock()
	q.alertExpired(numExpired, viewerId)
}

func (q *OfflineActionQueue) replayAction(ctx context.Context, action models.QueuedAction, serverIds map[string]string, request models.ReplayRequest) (*models.ProcessedAction, error) {
	switch action.Type {
	case models.ActionType_Create:
		claim, err := request.CreateHandler(ctx, action.Create)
		if err != nil {
			return nil, err
		}
		serverIds[action.ClaimId] = claim.Id
		return &models.ProcessedAction{Action: action, Claim: claim, ReplaceClaimId: action.ClaimId}, nil
	case models.ActionType_Transition:
		claimId := action.ClaimId
		if serverId, found := serverIds[claimId]; found {
			claimId = serverId
		}
		if models.IsLocalId(claimId) {
			// The create this transition depends on has not been replayed, so
			// the server has never seen this ID. Fail without invoking the
			// handler rather than drop the transition.
			return nil, models.ErrUnresolvedLocalReference
		}
		claim, err := request.TransitionHandler(ctx, claimId, action.Transition)
		if err != nil {
			return nil, err
		}
		return &models.ProcessedAction{Action: action, Claim: claim}, nil
	}
	return nil, fmt.Errorf("unknown action type %q", action.Type)
}

// reconcileTail rewrites transition targets that this pass has already mapped
// to server IDs. The input is left untouched.
func (q *OfflineActionQueue) reconcileTail(tail []models.QueuedAction, serverIds map[string]string) []models.QueuedAction {
	if len(tail) == 0 {
		return nil
	}
	reconciled := make([]models.QueuedAction, len(tail))
	copy(reconciled, tail)
	for i := range reconciled {
		if reconciled[i].Type == models.ActionType_Transition {
			if serverId, found := serverIds[reconciled[i].ClaimId]; found {
				reconciled[i].ClaimId = serverId
			}
		}
	}
	return reconciled
}

// load reads the viewer's queue. The bool is false when the backing read
// failed, as opposed to the queue being empty; the int counts entries dropped
// by retention so the caller can alert after releasing the mutex. Callers
// hold q.mu: a load may write through expiry or legacy migration.
func (q *OfflineActionQueue) load(ctx context.Context, viewerId string) ([]models.QueuedAction, int, bool) {
	data, found, err := q.repository.Get(ctx, actionsKey(viewerId))
	if err != nil {
		q.logger.Errorf("queue: error loading actions for viewer %s: %v", viewerId, err)
		q.metricService.Count(ctx, models.MetricName_PersistenceError, 1)
		return nil, 0, false
	}
	if !found {
		if data = q.migrateLegacy(ctx, viewerId); data == nil {
			return nil, 0, true
		}
	}
	actions, numExpired := q.decode(ctx, viewerId, data)
	return actions, numExpired, true
}

func (q *OfflineActionQueue) save(ctx context.Context, actions []models.QueuedAction, viewerId string) {
	if actions == nil {
		actions = []models.QueuedAction{}
	}
	data, err := json.Marshal(actions)
	if err != nil {
		q.logger.Errorf("queue: error encoding %d actions for viewer %s: %v", len(actions), viewerId, err)
		return
	}
	if err = q.repository.Put(ctx, actionsKey(viewerId), data); err != nil {
		q.logger.Errorf("queue: error saving actions for viewer %s: %v", viewerId, err)
		q.metricService.Count(ctx, models.MetricName_PersistenceError, 1)
	}
}

func (q *OfflineActionQueue) decode(ctx context.Context, viewerId string, data []byte) ([]models.QueuedAction, int) {
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		q.logger.Errorf("queue: error decoding action queue for viewer %s: %v", viewerId, err)
		q.metricService.Count(ctx, models.MetricName_RecordDiscarded, 1)
		return nil, 0
	}
	actions := make([]models.QueuedAction, 0, len(records))
	numExpired := 0
	for _, record := range records {
		action := models.QueuedAction{}
		if err := json.Unmarshal(record, &action); err != nil {
			q.logger.Warnf("queue: discarding malformed action record for viewer %s: %v", viewerId, err)
			q.metricService.Count(ctx, models.MetricName_RecordDiscarded, 1)
			continue
		}
		if err := q.validator.Struct(action); err != nil {
			q.logger.Warnf("queue: discarding invalid action %s for viewer %s: %v", action.Id, viewerId, err)
			q.metricService.Count(ctx, models.MetricName_RecordDiscarded, 1)
			continue
		}
		if !action.Wellformed() {
			q.logger.Warnf("queue: discarding %s action %s with inconsistent payload for viewer %s", action.Type, action.Id, viewerId)
			q.metricService.Count(ctx, models.MetricName_RecordDiscarded, 1)
			continue
		}
		if time.Since(action.EnqueuedAt) > q.maxActionAge {
			numExpired++
			continue
		}
		actions = append(actions, action)
	}
	if numExpired > 0 {
		q.expire(ctx, numExpired, actions, viewerId)
	}
	if len(actions) == 0 {
		return nil, numExpired
	}
	return actions, numExpired
}

// expire drops actions that outlived the retention window. Dropping is never
// silent: it is logged and counted here, alerted by the caller once the mutex
// is released, and the surviving queue is re-persisted so the expired entries
// are not seen again.
func (q *OfflineActionQueue) expire(ctx context.Context, numExpired int, remaining []models.QueuedAction, viewerId string) {
	q.logger.Warnf("queue: dropped %d action(s) older than %s for viewer %s", numExpired, q.maxActionAge, viewerId)
	q.metricService.Count(ctx, models.MetricName_ActionExpired, numExpired)
	q.save(ctx, remaining, viewerId)
}

// alertExpired raises the retention alert for a preceding load. It runs after
// the caller releases q.mu: the notifier call is a network send and must not
// stall enqueues.
func (q *OfflineActionQueue) alertExpired(numExpired int, viewerId string) {
	if numExpired == 0 || q.notifier == nil {
		return
	}
	if err := q.notifier.SendAlert(
		models.AlertTitle,
		models.AlertDesc_ExpiredActions,
		fmt.Sprintf(models.AlertFmt_ExpiredActions, numExpired, q.maxActionAge, viewerId),
	); err != nil {
		q.logger.Errorf("queue: error sending expiry alert: %v", err)
	}
}

// migrateLegacy adopts the unscoped pre-multi-viewer queue for this viewer.
// First reader wins; the legacy key is deleted only after the scoped copy is
// written so a failed write can be retried on a later load.
func (q *OfflineActionQueue) migrateLegacy(ctx context.Context, viewerId string) []byte {
	data, found, err := q.repository.Get(ctx, legacyActionsKey)
	if err != nil || !found {
		return nil
	}
	if err = q.repository.Put(ctx, actionsKey(viewerId), data); err != nil {
		q.logger.Errorf("queue: error adopting legacy action queue for viewer %s: %v", viewerId, err)
		return data
	}
	if err = q.repository.Delete(ctx, legacyActionsKey); err != nil {
		q.logger.Errorf("queue: error deleting legacy action queue: %v", err)
	}
	q.metricService.Count(ctx, models.MetricName_StoreMigrated, 1)
	q.logger.Infof("queue: migrated legacy action queue to viewer %s", viewerId)
	return data
}
