/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestEnqueueAndClaim(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	taskID, err := q.Enqueue(ctx, "job_1", TaskTypeStep1, map[string]interface{}{"source": "upload"})
	require.NoError(t, err)
	assert.Greater(t, taskID, int64(0))

	task, err := q.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, taskID, task.TaskID)
	assert.Equal(t, "job_1", task.JobID)
	assert.Equal(t, TaskTypeStep1, task.TaskType)
	assert.Equal(t, StatusRunning, task.Status)
	assert.True(t, task.WorkerID.Valid)
	assert.True(t, task.StartedAt.Valid)
	assert.Equal(t, "upload", task.Payload()["source"])
}

func TestEnqueueCoalescesLiveRows(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, "job_1", TaskTypeStep1, nil)
	require.NoError(t, err)

	// second enqueue while QUEUED returns the same row
	second, err := q.Enqueue(ctx, "job_1", TaskTypeStep1, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// still coalesces while RUNNING
	task, err := q.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)
	third, err := q.Enqueue(ctx, "job_1", TaskTypeStep1, nil)
	require.NoError(t, err)
	assert.Equal(t, first, third)

	// a different task type is its own lane
	other, err := q.Enqueue(ctx, "job_1", TaskTypeStep2, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	// after the terminal status a fresh row is allowed
	require.NoError(t, q.SetSucceeded(ctx, first))
	fresh, err := q.Enqueue(ctx, "job_1", TaskTypeStep1, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first, fresh)
}

func TestEnqueueRejectsUnknownType(t *testing.T) {
	q := newTestQueue(t)
	_, err := q.Enqueue(context.Background(), "job_1", "RENDER", nil)
	assert.Error(t, err)
}

func TestClaimOrderIsFIFO(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	a, err := q.Enqueue(ctx, "job_a", TaskTypeStep1, nil)
	require.NoError(t, err)
	b, err := q.Enqueue(ctx, "job_b", TaskTypeStep1, nil)
	require.NoError(t, err)

	first, err := q.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, a, first.TaskID)

	second, err := q.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, b, second.TaskID)

	empty, err := q.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestTerminalSetters(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	taskID, err := q.Enqueue(ctx, "job_1", TaskTypeStep2, nil)
	require.NoError(t, err)
	task, err := q.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)

	require.NoError(t, q.SetFailed(ctx, taskID, "boom: raw stderr"))
	task, err = q.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, task.Status)
	assert.Equal(t, "boom: raw stderr", task.ErrorMessage.String)
	assert.True(t, task.FinishedAt.Valid)

	require.NoError(t, q.SetSucceeded(ctx, taskID))
	task, err = q.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, task.Status)
	assert.False(t, task.ErrorMessage.Valid)
}

func TestHasPending(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	pending, err := q.HasPending(ctx, "job_1", TaskTypeStep1)
	require.NoError(t, err)
	assert.False(t, pending)

	taskID, err := q.Enqueue(ctx, "job_1", TaskTypeStep1, nil)
	require.NoError(t, err)

	pending, err = q.HasPending(ctx, "job_1", TaskTypeStep1)
	require.NoError(t, err)
	assert.True(t, pending)

	require.NoError(t, q.SetSucceeded(ctx, taskID))
	pending, err = q.HasPending(ctx, "job_1", TaskTypeStep1)
	require.NoError(t, err)
	assert.False(t, pending)
}
