package models

type MetricName string

// Counts
const (
	MetricName_ActionExpired        MetricName = "action_expired"
	MetricName_ClaimCreated         MetricName = "claim_created"
	MetricName_CreateQueued         MetricName = "create_queued"
	MetricName_PersistenceError     MetricName = "persistence_error"
	MetricName_RecordDiscarded      MetricName = "record_discarded"
	MetricName_ReplayActionFailed   MetricName = "replay_action_failed"
	MetricName_ReplayActionReplayed MetricName = "replay_action_replayed"
	MetricName_StoreMigrated        MetricName = "store_migrated"
	MetricName_TransitionApplied    MetricName = "transition_applied"
	MetricName_TransitionQueued     MetricName = "transition_queued"
	MetricName_TransitionRejected   MetricName = "transition_rejected"
	MetricName_TransitionRolledBack MetricName = "transition_rolled_back"
)

// Gauges
const (
	MetricName_PendingActions MetricName = "pending_actions"
)

// Distributions
const (
	MetricName_SyncBatchSize MetricName = "sync_batch_size"
)

const MetricsCallerName = "go-claimsync"
