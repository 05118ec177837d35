package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dunamismax/flipframe/internal/effects"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"

	SourceTypeLocalFile   = "local_file"
	SourceTypeS3Presigned = "s3_presigned"
)

type CreateJobRequest struct {
	SourceType string         `json:"source_type"`
	WebhookURL string         `json:"webhook_url,omitempty"`
	ObjectKey  string         `json:"object_key,omitempty"`
	Pipeline   []PipelineStep `json:"pipeline"`
}

type Job struct {
	ID         string
	UserID     string
	Status     string
	SourceType string
	WebhookURL string
	Pipeline   []PipelineStep
	ObjectKey  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r CreateJobRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return errors.New("source_type is required")
	}
	if sourceType != SourceTypeLocalFile && sourceType != SourceTypeS3Presigned {
		return fmt.Errorf("unsupported source_type: %s", r.SourceType)
	}
	if sourceType == SourceTypeLocalFile && strings.TrimSpace(r.ObjectKey) == "" {
		return errors.New("object_key is required for source_type=local_file")
	}
	if len(r.Pipeline) == 0 {
		return errors.New("pipeline must contain at least one step")
	}

	seen := make(map[string]struct{}, len(r.Pipeline))
	for i, step := range r.Pipeline {
		stepID := strings.TrimSpace(step.ID)
		if stepID == "" {
			return fmt.Errorf("pipeline[%d].id is required", i)
		}
		if _, dup := seen[stepID]; dup {
			return fmt.Errorf("pipeline[%d].id %q is used more than once", i, stepID)
		}
		seen[stepID] = struct{}{}

		if strings.TrimSpace(step.Action) == "" {
			return fmt.Errorf("pipeline[%d].action is required", i)
		}
		if err := step.Validate(); err != nil {
			return fmt.Errorf("pipeline[%d]: %w", i, err)
		}
	}
	return nil
}

// ColorSlots parses the genga color parameters, falling back to the default
// colors for empty fields.
func (p *GengaParams) ColorSlots() (outline, shadow, highlight effects.ColorSlot, err error) {
	defaults := effects.DefaultGengaConfig()
	outline, shadow, highlight = defaults.Outline, defaults.Shadow, defaults.Highlight
	if p == nil {
		return outline, shadow, highlight, nil
	}
	if outline, err = parseSlot("outline", p.Outline, outline); err != nil {
		return
	}
	if shadow, err = parseSlot("shadow", p.Shadow, shadow); err != nil {
		return
	}
	highlight, err = parseSlot("highlight", p.Highlight, highlight)
	return
}

func parseSlot(field, value string, fallback effects.ColorSlot) (effects.ColorSlot, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	slot, err := effects.ParseColorSlot(value)
	if err != nil {
		return effects.ColorSlot{}, fmt.Errorf("genga.%s: %w", field, err)
	}
	return slot, nil
}
