package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TypeReconciliationFlag marks records that need manual back-office
// reconciliation after a persistence inconsistency.
const TypeReconciliationFlag = "recon:flag"

// ReconciliationFlag describes what went inconsistent and where to look.
type ReconciliationFlag struct {
	Kind      string    `json:"kind"`
	Reference string    `json:"reference"`
	Detail    string    `json:"detail"`
	RaisedAt  time.Time `json:"raisedAt"`
}

// Client enqueues background tasks over asynq.
type Client struct {
	A *asynq.Client
}

// EnqueueReconciliationFlag schedules a reconciliation flag with retries; the
// flag must outlive the request that raised it.
func (c *Client) EnqueueReconciliationFlag(ctx context.Context, flag ReconciliationFlag) error {
	if c == nil || c.A == nil {
		return errors.New("queue: client not configured")
	}
	payload, err := json.Marshal(flag)
	if err != nil {
		return fmt.Errorf("queue: encode flag: %w", err)
	}
	task := asynq.NewTask(TypeReconciliationFlag, payload, asynq.MaxRetry(10), asynq.Timeout(30*time.Second))
	if _, err := c.A.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("queue: enqueue flag: %w", err)
	}
	return nil
}
