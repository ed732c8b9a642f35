// Package jobs provides the durable background job queue: a SQLite-backed
// store with atomic claims, a polling worker, and the enrichment handler.
package jobs

import (
	"encoding/json"
	"time"
)

// Type identifies a kind of background job.
type Type string

// Job types.
const (
	TypeEnrichment         Type = "enrichment"
	TypeRelationsDiscovery Type = "relations_discovery"
)

// Status is a job's position in the queue state machine.
type Status string

// Job statuses. A failed job is terminal; a retryable failure moves the
// job back to pending.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one unit of queued background work.
type Job struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	Payload     string    `json:"payload"`
	Status      Status    `json:"status"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	Priority    int       `json:"priority"`
	LastError   string    `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ClaimedAt   time.Time `json:"claimed_at,omitzero"`
}

// AnimePayload is the payload shared by both job types: the catalog record
// the job operates on.
type AnimePayload struct {
	AnimeID string `json:"anime_id"`
}

// DecodePayload unmarshals the job payload into v.
func (j *Job) DecodePayload(v any) error {
	return json.Unmarshal([]byte(j.Payload), v)
}

// Stats summarizes queue occupancy by status.
type Stats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
