/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PoetCoderJun/video-auto-cut/pkg/jobstore"
	"github.com/PoetCoderJun/video-auto-cut/pkg/state"
	"github.com/PoetCoderJun/video-auto-cut/pkg/utils/timeutil"
)

func newFinishedJob(t *testing.T, store *jobstore.Store, jobID string, status state.Status, age time.Duration) {
	t.Helper()
	_, err := store.CreateJob(jobID, "user_1")
	require.NoError(t, err)

	audio := filepath.Join(store.InputDir(jobID), "a.m4a")
	require.NoError(t, os.WriteFile(audio, []byte("x"), 0o644))
	srt := filepath.Join(store.Step1Dir(jobID), "final_step1.srt")
	require.NoError(t, os.WriteFile(srt, []byte("1\n00:00:00,000 --> 00:00:01,000\nx\n\n"), 0o644))
	require.NoError(t, store.UpsertFiles(jobID, map[string]string{
		jobstore.SlotAudioPath:         audio,
		jobstore.SlotFinalStep1SRTPath: srt,
	}))

	// backdate updated_at past the TTL; SaveMeta keeps the timestamp
	meta, err := store.LoadMeta(jobID)
	require.NoError(t, err)
	meta.Status = status
	meta.Progress = state.ProgressFor(status)
	meta.UpdatedAt = timeutil.FormatISO(time.Now().Add(-age))
	require.NoError(t, store.SaveMeta(meta))
}

func TestCleanupJobArtifactsLeavesShellRow(t *testing.T) {
	store := jobstore.New(t.TempDir())
	sweeper := NewWithPolicy(store, time.Hour, 10)
	newFinishedJob(t, store, "job_done", state.StatusStep2Confirmed, 2*time.Hour)

	removed := sweeper.CleanupJobArtifacts("job_done", "test")
	assert.Greater(t, removed, 0)

	// artifacts gone, shell row retained as SUCCEEDED/100
	meta, err := store.LoadMeta("job_done")
	require.NoError(t, err)
	assert.Equal(t, state.StatusSucceeded, meta.Status)
	assert.Equal(t, state.ProgressSucceeded, meta.Progress)

	files, err := store.LoadFiles("job_done")
	require.NoError(t, err)
	assert.Empty(t, files)

	// the reconciled view must not regress to CREATED once evidence is gone
	assert.Equal(t, state.StatusSucceeded, store.ReconciledStatus(meta))

	assert.NoFileExists(t, filepath.Join(store.InputDir("job_done"), "a.m4a"))
}

func TestPurgeJobRemovesJob(t *testing.T) {
	store := jobstore.New(t.TempDir())
	sweeper := NewWithPolicy(store, time.Hour, 10)
	newFinishedJob(t, store, "job_dl", state.StatusSucceeded, 0)

	removed := sweeper.PurgeJob("job_dl", "test")
	assert.Greater(t, removed, 0)

	// no shell row either; the job is gone on the next lookup
	_, err := store.LoadMeta("job_dl")
	assert.ErrorIs(t, err, jobstore.ErrNotFound)
	assert.NoDirExists(t, store.JobDir("job_dl"))
}

func TestCleanupExpiredJobsHonorsTTLAndStatus(t *testing.T) {
	store := jobstore.New(t.TempDir())
	sweeper := NewWithPolicy(store, time.Hour, 10)

	newFinishedJob(t, store, "job_old", state.StatusSucceeded, 2*time.Hour)
	newFinishedJob(t, store, "job_fresh", state.StatusSucceeded, time.Minute)
	newFinishedJob(t, store, "job_running", state.StatusStep1Ready, 2*time.Hour)

	cleaned := sweeper.CleanupExpiredJobs()
	assert.Equal(t, 1, cleaned)

	files, err := store.LoadFiles("job_fresh")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	files, err = store.LoadFiles("job_running")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	files, err = store.LoadFiles("job_old")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestCleanupExpiredJobsBatchLimit(t *testing.T) {
	store := jobstore.New(t.TempDir())
	sweeper := NewWithPolicy(store, time.Hour, 2)

	newFinishedJob(t, store, "job_a", state.StatusSucceeded, 2*time.Hour)
	newFinishedJob(t, store, "job_b", state.StatusSucceeded, 2*time.Hour)
	newFinishedJob(t, store, "job_c", state.StatusSucceeded, 2*time.Hour)

	assert.Equal(t, 2, sweeper.CleanupExpiredJobs())
	assert.Equal(t, 1, sweeper.CleanupExpiredJobs())
}

func TestCleanupOrphanDirs(t *testing.T) {
	store := jobstore.New(t.TempDir())
	sweeper := NewWithPolicy(store, time.Hour, 10)

	require.NoError(t, os.MkdirAll(filepath.Join(store.JobsRoot(), "job_orphan"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(store.JobsRoot(), "not-a-job"), 0o755))
	newFinishedJob(t, store, "job_real", state.StatusSucceeded, time.Minute)

	removed := sweeper.CleanupOrphanDirs(time.Time{}, 0, "test")
	assert.Equal(t, 1, removed)
	assert.NoDirExists(t, filepath.Join(store.JobsRoot(), "job_orphan"))
	// non job_ prefixed dirs and real jobs are untouched
	assert.DirExists(t, filepath.Join(store.JobsRoot(), "not-a-job"))
	assert.True(t, store.HasMeta("job_real"))
}

func TestCleanupOrphanDirsAgeFilter(t *testing.T) {
	store := jobstore.New(t.TempDir())
	sweeper := NewWithPolicy(store, time.Hour, 10)

	require.NoError(t, os.MkdirAll(filepath.Join(store.JobsRoot(), "job_orphan"), 0o755))

	// cutoff in the past: the fresh orphan survives
	removed := sweeper.CleanupOrphanDirs(time.Now().Add(-time.Hour), 0, "test")
	assert.Equal(t, 0, removed)
	assert.DirExists(t, filepath.Join(store.JobsRoot(), "job_orphan"))
}

func TestCleanupOnStartupIgnoresTTL(t *testing.T) {
	store := jobstore.New(t.TempDir())
	sweeper := NewWithPolicy(store, time.Hour, 10)

	newFinishedJob(t, store, "job_fresh", state.StatusSucceeded, time.Minute)
	require.NoError(t, os.MkdirAll(filepath.Join(store.JobsRoot(), "job_orphan"), 0o755))

	total := sweeper.CleanupOnStartup()
	assert.Equal(t, 2, total)

	files, err := store.LoadFiles("job_fresh")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestMarkCleanupFromNowRestartsClock(t *testing.T) {
	store := jobstore.New(t.TempDir())
	sweeper := NewWithPolicy(store, time.Hour, 10)
	newFinishedJob(t, store, "job_done", state.StatusSucceeded, 2*time.Hour)

	sweeper.MarkCleanupFromNow("job_done", "download")

	// clock restarted: no longer expired
	assert.Equal(t, 0, sweeper.CleanupExpiredJobs())
}
