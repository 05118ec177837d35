package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// RenderTimeout bounds one render attempt. Long animated sources
	// dominate the budget.
	RenderTimeout = 10 * time.Minute

	// RenderRetries is how often asynq re-runs a render that failed for a
	// transient reason.
	RenderRetries = 5

	// renderRetention keeps completed tasks inspectable; while a task is
	// retained its job id cannot be enqueued again.
	renderRetention = 24 * time.Hour
)

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string) *Client {
	return &Client{
		client: asynq.NewClient(redisOpt),
		queue:  queueName,
	}
}

// EnqueueRenderFrames schedules one render task per job; the job id doubles
// as the task id.
func (c *Client) EnqueueRenderFrames(ctx context.Context, payload RenderFramesPayload) (*asynq.TaskInfo, error) {
	task, err := NewRenderFramesTask(payload)
	if err != nil {
		return nil, err
	}
	info, err := c.client.EnqueueContext(ctx, task, renderTaskOptions(c.queue, payload)...)
	if err != nil {
		return nil, fmt.Errorf("enqueue render job_id=%s: %w", payload.JobID, err)
	}
	return info, nil
}

func renderTaskOptions(queueName string, payload RenderFramesPayload) []asynq.Option {
	return []asynq.Option{
		asynq.Queue(queueName),
		asynq.TaskID(payload.JobID),
		asynq.MaxRetry(RenderRetries),
		asynq.Timeout(RenderTimeout),
		asynq.Retention(renderRetention),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}
