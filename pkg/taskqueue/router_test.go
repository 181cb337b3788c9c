package taskqueue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_Dispatch(t *testing.T) {
	t.Parallel()

	r := NewRouter()
	var got []string
	r.HandleFunc("loan.import", func(ctx context.Context, task Task) error {
		got = append(got, task.Topic)
		return nil
	})
	r.HandleFunc("audit.flush", func(ctx context.Context, task Task) error {
		return errors.New("boom")
	})

	assert.Equal(t, []string{"audit.flush", "loan.import"}, r.Topics())

	require.NoError(t, r.Dispatch(context.Background(), Task{Topic: "loan.import"}))
	assert.Equal(t, []string{"loan.import"}, got)

	err := r.Dispatch(context.Background(), Task{Topic: "audit.flush"})
	require.EqualError(t, err, "boom")
	assert.False(t, IsPermanent(err))
}

func TestRouter_UnknownTopicIsPermanent(t *testing.T) {
	t.Parallel()

	err := NewRouter().Dispatch(context.Background(), Task{Topic: "nope"})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, ErrUnknownTopic)
	assert.Contains(t, err.Error(), `"nope"`)
}

func TestNewTask(t *testing.T) {
	t.Parallel()

	task, err := NewTask("loan.import", map[string]string{"upload_id": "abc"})
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.JSONEq(t, `{"upload_id":"abc"}`, string(task.Payload))
	assert.False(t, task.EnqueuedAt.IsZero())

	_, err = NewTask("x", make(chan int))
	require.Error(t, err)
}
