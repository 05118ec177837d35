package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dunamismax/flipframe/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeRenderFrames = "frames:render"

type RenderFramesPayload struct {
	JobID       string                `json:"job_id"`
	UserID      string                `json:"user_id,omitempty"`
	SourceType  string                `json:"source_type"`
	WebhookURL  string                `json:"webhook_url,omitempty"`
	ObjectKey   string                `json:"object_key"`
	Pipeline    []domain.PipelineStep `json:"pipeline"`
	RequestedAt time.Time             `json:"requested_at"`
}

func NewRenderFramesTask(payload RenderFramesPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal render payload: %w", err)
	}
	return asynq.NewTask(TypeRenderFrames, body), nil
}

func ParseRenderFramesPayload(task *asynq.Task) (RenderFramesPayload, error) {
	var payload RenderFramesPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RenderFramesPayload{}, fmt.Errorf("unmarshal render payload: %w", err)
	}
	if payload.JobID == "" {
		return RenderFramesPayload{}, fmt.Errorf("render payload is missing job_id")
	}
	return payload, nil
}
