/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package jobstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PoetCoderJun/video-auto-cut/pkg/state"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir())
}

func TestNewJobID(t *testing.T) {
	id := NewJobID()
	assert.Regexp(t, `^job_[0-9a-f]{12}$`, id)
	assert.NotEqual(t, id, NewJobID())
}

func TestCreateAndLoadJob(t *testing.T) {
	s := newStore(t)
	jobID := NewJobID()

	meta, err := s.CreateJob(jobID, "user_1")
	require.NoError(t, err)
	assert.Equal(t, state.StatusCreated, meta.Status)
	assert.Equal(t, 0, meta.Progress)

	for _, dir := range []string{s.InputDir(jobID), s.Step1Dir(jobID), s.Step2Dir(jobID), s.RenderDir(jobID)} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	loaded, err := s.LoadMeta(jobID)
	require.NoError(t, err)
	assert.Equal(t, meta, loaded)
}

func TestLoadMetaMissingJob(t *testing.T) {
	s := newStore(t)
	_, err := s.LoadMeta("job_missing000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetStatusClearsError(t *testing.T) {
	s := newStore(t)
	jobID := NewJobID()
	_, err := s.CreateJob(jobID, "user_1")
	require.NoError(t, err)

	require.NoError(t, s.SetRecoverableError(jobID, state.StatusUploadReady, "INVALID_STEP_STATE", "额度不足"))
	meta, err := s.LoadMeta(jobID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusUploadReady, meta.Status)
	assert.Equal(t, 10, meta.Progress)
	assert.Equal(t, "额度不足", meta.ErrorMessage)

	meta, err = s.SetStatus(jobID, state.StatusStep1Running)
	require.NoError(t, err)
	assert.Equal(t, state.StatusStep1Running, meta.Status)
	assert.Equal(t, 11, meta.Progress)
	assert.Empty(t, meta.ErrorCode)
	assert.Empty(t, meta.ErrorMessage)
}

func TestTouchProgressIsMonotonic(t *testing.T) {
	s := newStore(t)
	jobID := NewJobID()
	_, err := s.CreateJob(jobID, "user_1")
	require.NoError(t, err)

	require.NoError(t, s.TouchProgress(jobID, 15))
	require.NoError(t, s.TouchProgress(jobID, 12)) // downgrade ignored
	meta, err := s.LoadMeta(jobID)
	require.NoError(t, err)
	assert.Equal(t, 15, meta.Progress)
}

func TestSetFailedWritesErrorMarker(t *testing.T) {
	s := newStore(t)
	jobID := NewJobID()
	_, err := s.CreateJob(jobID, "user_1")
	require.NoError(t, err)

	require.NoError(t, s.SetFailed(jobID, "INTERNAL_ERROR", "stage failed"))

	jobErr, err := s.LoadError(jobID)
	require.NoError(t, err)
	require.NotNil(t, jobErr)
	assert.Equal(t, "INTERNAL_ERROR", jobErr.Code)

	assert.Equal(t, state.StatusFailed, state.InferFromEvidence(s.Evidence(jobID)))
}

func TestUpsertFilesRejectsEscapes(t *testing.T) {
	s := newStore(t)
	jobID := NewJobID()
	_, err := s.CreateJob(jobID, "user_1")
	require.NoError(t, err)

	err = s.UpsertFiles(jobID, map[string]string{SlotAudioPath: "/etc/passwd"})
	assert.Error(t, err)

	inside := filepath.Join(s.InputDir(jobID), "audio.wav")
	require.NoError(t, s.UpsertFiles(jobID, map[string]string{SlotAudioPath: inside}))

	files, err := s.LoadFiles(jobID)
	require.NoError(t, err)
	assert.Equal(t, inside, files[SlotAudioPath])

	// empty value removes a slot
	require.NoError(t, s.UpsertFiles(jobID, map[string]string{SlotAudioPath: ""}))
	files, err = s.LoadFiles(jobID)
	require.NoError(t, err)
	assert.NotContains(t, files, SlotAudioPath)
}

func TestEvidenceProgression(t *testing.T) {
	s := newStore(t)
	jobID := NewJobID()
	_, err := s.CreateJob(jobID, "user_1")
	require.NoError(t, err)

	assert.Equal(t, state.StatusCreated, state.InferFromEvidence(s.Evidence(jobID)))

	require.NoError(t, os.WriteFile(filepath.Join(s.InputDir(jobID), "audio.wav"), []byte("x"), 0o644))
	assert.Equal(t, state.StatusUploadReady, state.InferFromEvidence(s.Evidence(jobID)))

	require.NoError(t, s.WriteStep1Lines(jobID, []Step1Line{{LineID: 1, Start: 0, End: 1, OriginalText: "a", OptimizedText: "a"}}))
	assert.Equal(t, state.StatusStep1Ready, state.InferFromEvidence(s.Evidence(jobID)))

	require.NoError(t, s.ConfirmStep1(jobID))
	assert.Equal(t, state.StatusStep1Confirmed, state.InferFromEvidence(s.Evidence(jobID)))

	require.NoError(t, s.WriteTopics(s.FinalTopicsPath(jobID), []Chapter{{ChapterID: 1, Title: "t", Start: 0, End: 1, LineIDs: []int{1}}}))
	assert.Equal(t, state.StatusStep2Ready, state.InferFromEvidence(s.Evidence(jobID)))

	require.NoError(t, s.ConfirmStep2(jobID))
	assert.Equal(t, state.StatusStep2Confirmed, state.InferFromEvidence(s.Evidence(jobID)))

	require.NoError(t, os.WriteFile(s.RenderOutputPath(jobID), []byte("mp4"), 0o644))
	assert.Equal(t, state.StatusSucceeded, state.InferFromEvidence(s.Evidence(jobID)))
}

func TestEvidenceIgnoresNonAudioInput(t *testing.T) {
	s := newStore(t)
	jobID := NewJobID()
	_, err := s.CreateJob(jobID, "user_1")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(s.InputDir(jobID), "notes.txt"), []byte("x"), 0o644))
	assert.False(t, s.Evidence(jobID).InputAudio)
}

func TestReconciledStatusKeepsRunning(t *testing.T) {
	s := newStore(t)
	jobID := NewJobID()
	_, err := s.CreateJob(jobID, "user_1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.InputDir(jobID), "audio.mp3"), []byte("x"), 0o644))

	meta, err := s.SetStatus(jobID, state.StatusUploadReady)
	require.NoError(t, err)
	meta, err = s.SetStatus(jobID, state.StatusStep1Running)
	require.NoError(t, err)

	// disk still says UPLOAD_READY; meta wins while the stage runs
	assert.Equal(t, state.StatusStep1Running, s.ReconciledStatus(meta))

	// once the stage writes its artifact, evidence wins
	require.NoError(t, s.WriteStep1Lines(jobID, []Step1Line{{LineID: 1, Start: 0, End: 1}}))
	assert.Equal(t, state.StatusStep1Ready, s.ReconciledStatus(meta))
}

func TestListJobIDsAndRemove(t *testing.T) {
	s := newStore(t)
	a := NewJobID()
	b := NewJobID()
	_, err := s.CreateJob(a, "u")
	require.NoError(t, err)
	_, err = s.CreateJob(b, "u")
	require.NoError(t, err)

	// orphan dir without metadata
	require.NoError(t, os.MkdirAll(filepath.Join(s.JobsRoot(), "job_orphan000000"), 0o755))

	ids, err := s.ListJobIDs()
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.False(t, s.HasMeta("job_orphan000000"))
	assert.True(t, s.HasMeta(a))

	require.NoError(t, s.RemoveJobDir(a))
	_, err = s.LoadMeta(a)
	assert.ErrorIs(t, err, ErrNotFound)

	// removing again is a no-op
	require.NoError(t, s.RemoveJobDir(a))
}
