package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/himera-settings/internal/domain"
)

const (
	TaskTypeActivityRecord = "activity:record"
	TaskTypeActivityPrune  = "activity:prune"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Queues is the weighted queue set the worker consumes.
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

const activityMaxRetry = 5

type ActivityRecordPayload struct {
	Entry domain.ActivityEntry `json:"entry"`
}

type ActivityPrunePayload struct {
	Retention time.Duration `json:"retention"`
}

// NewActivityRecordTask wraps entry into a task. The entry id doubles as the task id so
// a retried enqueue does not produce a second record.
func NewActivityRecordTask(entry domain.ActivityEntry) (*asynq.Task, error) {
	payload, err := json.Marshal(ActivityRecordPayload{Entry: entry})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskTypeActivityRecord,
		payload,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(activityMaxRetry),
		asynq.TaskID(entry.ID),
	), nil
}

func NewActivityPruneTask(retention time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(ActivityPrunePayload{Retention: retention})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeActivityPrune, payload, asynq.Queue(QueueLow)), nil
}
