package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskCRMSyncReply = "crm.sync_reply"

type CRMSyncReplyPayload struct {
	ExternalID string `json:"externalId"`
	Reply      string `json:"reply"`
}

func NewCRMSyncReplyTask(payload CRMSyncReplyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCRMSyncReply, data), nil
}

func ParseCRMSyncReplyPayload(task *asynq.Task) (CRMSyncReplyPayload, error) {
	var payload CRMSyncReplyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return CRMSyncReplyPayload{}, err
	}
	return payload, nil
}
