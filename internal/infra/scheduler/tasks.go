package scheduler

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const TaskReconcileAutoHeal = "identity.reconcile.autoheal"

// ReconcilePayload records who asked for a run. Cron runs use "scheduler".
type ReconcilePayload struct {
	RequestedBy string    `json:"requestedBy"`
	RequestedAt time.Time `json:"requestedAt"`
}

func NewReconcileTask(payload ReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcileAutoHeal, data), nil
}

func ParseReconcilePayload(task *asynq.Task) (ReconcilePayload, error) {
	var payload ReconcilePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReconcilePayload{}, err
	}
	return payload, nil
}
