package models

// Defaults for the upstream claim API client.
const (
	DefaultRateLimit       = 16
	DefaultQueueDepthLimit = 100
)
