package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/captiondesk/internal/model"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{}, nil
}

func TestEnqueueTranscribe(t *testing.T) {
	client := &fakeEnqueuer{}
	id, err := EnqueueTranscribe(context.Background(), client, TranscribePayload{
		Path:         "/media/talk.mp4",
		Language:     "ko",
		ModelProfile: model.ProfileMedium,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Len(t, client.tasks, 1)
	require.Equal(t, TranscribeTask, client.tasks[0].Type())

	var retry, taskID bool
	for _, opt := range client.opts[0] {
		switch opt.Type() {
		case asynq.MaxRetryOpt:
			retry = opt.Value() == maxRetry
		case asynq.TaskIDOpt:
			taskID = opt.Value() == id
		}
	}
	require.True(t, retry)
	require.True(t, taskID)

	payload, err := DecodeTranscribe(client.tasks[0].Payload())
	require.NoError(t, err)
	require.Equal(t, "/media/talk.mp4", payload.Path)
	require.Equal(t, "ko", payload.Language)
	require.Equal(t, model.ProfileMedium, payload.ModelProfile)
}

func TestEnqueueRejectsInvalidPayload(t *testing.T) {
	client := &fakeEnqueuer{}
	_, err := EnqueueTranscribe(context.Background(), client, TranscribePayload{ModelProfile: model.ProfileSmall})
	require.Error(t, err)
	_, err = EnqueueTranscribe(context.Background(), client, TranscribePayload{Path: "a.mp4", ModelProfile: "huge"})
	require.ErrorIs(t, err, model.ErrUnknownModelProfile)
	require.Empty(t, client.tasks)
}

func TestEnqueuePropagatesClientError(t *testing.T) {
	boom := errors.New("redis down")
	_, err := EnqueueTranscribe(context.Background(), &fakeEnqueuer{err: boom}, TranscribePayload{Path: "a.mp4", ModelProfile: model.ProfileSmall})
	require.ErrorIs(t, err, boom)
}

func TestDecodeTranscribeRejectsGarbage(t *testing.T) {
	_, err := DecodeTranscribe([]byte("{"))
	require.Error(t, err)
	_, err = DecodeTranscribe([]byte(`{"model_size":"small"}`))
	require.Error(t, err)
}
