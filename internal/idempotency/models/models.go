package models

import "time"

// Record marks a request id as seen for a tenant until ExpireAt.
// (AppID, RequestID) is unique in every store.
type Record struct {
	AppID     string
	RequestID string
	ExpireAt  time.Time
}

// Store kinds the guard knows how to claim against atomically.
const (
	KindMemory   = "memory"
	KindPostgres = "postgres"
	KindRedis    = "redis"
)
