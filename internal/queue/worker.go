package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// FlagRecorder persists reconciliation flags so the back office has a durable
// worklist of inconsistencies to resolve by hand.
type FlagRecorder struct {
	Pool   *pgxpool.Pool
	Logger zerolog.Logger
}

// HandleReconciliationFlag processes a TypeReconciliationFlag task.
func (r *FlagRecorder) HandleReconciliationFlag(ctx context.Context, t *asynq.Task) error {
	if r == nil || r.Pool == nil {
		return errors.New("queue: recorder not configured")
	}
	var flag ReconciliationFlag
	if err := json.Unmarshal(t.Payload(), &flag); err != nil {
		return fmt.Errorf("queue: decode flag: %w", err)
	}
	r.Logger.Error().
		Str("kind", flag.Kind).
		Str("reference", flag.Reference).
		Str("detail", flag.Detail).
		Msg("reconciliation flag raised")
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO reconciliation_flags (kind, reference, detail, raised_at)
		 VALUES ($1, $2, $3, $4)`,
		flag.Kind, flag.Reference, flag.Detail, flag.RaisedAt,
	)
	if err != nil {
		return fmt.Errorf("queue: record flag: %w", err)
	}
	return nil
}

// NewMux registers all worker task handlers.
func NewMux(recorder *FlagRecorder) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeReconciliationFlag, recorder.HandleReconciliationFlag)
	return mux
}
