package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/captiondesk/internal/model"
)

const (
	// TranscribeTask is scheduled once per media file handed to the batch queue.
	TranscribeTask = "transcript:transcribe"

	maxRetry = 3
)

// TranscribePayload is serialized into the task payload so the worker knows
// which file to open and which options to transcribe it with.
type TranscribePayload struct {
	Path         string             `json:"path"`
	Language     string             `json:"language,omitempty"`
	ModelProfile model.ModelProfile `json:"model_size"`
}

// Validate checks the payload before it is queued or processed.
func (p TranscribePayload) Validate() error {
	if p.Path == "" {
		return errors.New("payload path is required")
	}
	if _, err := model.ParseModelProfile(string(p.ModelProfile)); err != nil {
		return err
	}
	return nil
}

// Enqueuer is the part of *asynq.Client used here.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewTranscribeTask builds the asynq task for payload.
func NewTranscribeTask(payload TranscribePayload) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TranscribeTask, data), nil
}

// EnqueueTranscribe enqueues a transcription job and returns its task id.
func EnqueueTranscribe(ctx context.Context, client Enqueuer, payload TranscribePayload) (string, error) {
	task, err := NewTranscribeTask(payload)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	info, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(maxRetry), asynq.TaskID(id))
	if err != nil {
		return "", fmt.Errorf("enqueue transcribe task: %w", err)
	}
	if info != nil && info.ID != "" {
		id = info.ID
	}
	return id, nil
}

// DecodeTranscribe parses and validates a task payload.
func DecodeTranscribe(data []byte) (TranscribePayload, error) {
	var payload TranscribePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}
