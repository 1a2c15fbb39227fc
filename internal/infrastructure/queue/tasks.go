package queue

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// BatchIngestPayload is the payload of a batch:ingest task. The trigger
// request returns as soon as this is enqueued; progress is observable
// only by polling the batch record.
type BatchIngestPayload struct {
	BatchID uuid.UUID `json:"batch_id"`
}

// NewBatchIngestTask builds a batch:ingest task for the given batch.
func NewBatchIngestTask(batchID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(BatchIngestPayload{BatchID: batchID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch ingest payload: %w", err)
	}
	return asynq.NewTask(TaskTypeBatchIngest, payload), nil
}

// ParseBatchIngestPayload decodes a batch:ingest task payload.
func ParseBatchIngestPayload(task *asynq.Task) (*BatchIngestPayload, error) {
	var payload BatchIngestPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal batch ingest payload: %w", err)
	}
	if payload.BatchID == uuid.Nil {
		return nil, fmt.Errorf("batch ingest payload has no batch id")
	}
	return &payload, nil
}
