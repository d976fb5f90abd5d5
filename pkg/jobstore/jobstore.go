/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

// Package jobstore persists job metadata and artifacts on disk. The
// filesystem is authoritative for job content; the relational store
// only holds users, coupons, the ledger, and the task queue.
package jobstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/PoetCoderJun/video-auto-cut/pkg/state"
	"github.com/PoetCoderJun/video-auto-cut/pkg/utils/jsonutil"
	"github.com/PoetCoderJun/video-auto-cut/pkg/utils/pathutil"
	"github.com/PoetCoderJun/video-auto-cut/pkg/utils/timeutil"
)

const (
	metaFileName  = "job.meta.json"
	filesFileName = "job.files.json"
	errorFileName = "job.error.json"

	confirmedMarker = ".confirmed"
)

// File slots recorded in job.files.json.
const (
	SlotAudioPath         = "audio_path"
	SlotSRTPath           = "srt_path"
	SlotOptimizedSRTPath  = "optimized_srt_path"
	SlotFinalStep1SRTPath = "final_step1_srt_path"
	SlotTopicsPath        = "topics_path"
	SlotFinalTopicsPath   = "final_topics_path"
	SlotCutSRTPath        = "cut_srt_path"
	SlotFinalVideoPath    = "final_video_path"
)

// AllowedAudioExtensions is the upload allow-list, lowercase with dot.
var AllowedAudioExtensions = map[string]bool{
	".m4a": true, ".mp3": true, ".wav": true, ".aac": true,
	".flac": true, ".ogg": true, ".opus": true, ".mp4": true,
}

// Meta mirrors job.meta.json. Error fields are set while the job
// carries a user-visible error and cleared on recovery.
type Meta struct {
	JobID        string       `json:"job_id"`
	OwnerUserID  string       `json:"owner_user_id"`
	Status       state.Status `json:"status"`
	Progress     int          `json:"progress"`
	ErrorCode    string       `json:"error_code,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	CreatedAt    string       `json:"created_at"`
	UpdatedAt    string       `json:"updated_at"`
}

// JobError mirrors job.error.json; its presence marks the job FAILED.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrNotFound is returned when a job directory or its metadata is
// missing. Handlers translate it to a 404.
var ErrNotFound = os.ErrNotExist

// Store roots all job directories under workDir/jobs.
type Store struct {
	workDir string
}

func New(workDir string) *Store {
	return &Store{workDir: workDir}
}

func (s *Store) WorkDir() string { return s.workDir }

func (s *Store) JobsRoot() string { return filepath.Join(s.workDir, "jobs") }

func (s *Store) JobDir(jobID string) string { return filepath.Join(s.JobsRoot(), jobID) }

func (s *Store) InputDir(jobID string) string { return filepath.Join(s.JobDir(jobID), "input") }

func (s *Store) Step1Dir(jobID string) string { return filepath.Join(s.JobDir(jobID), "step1") }

func (s *Store) Step2Dir(jobID string) string { return filepath.Join(s.JobDir(jobID), "step2") }

func (s *Store) RenderDir(jobID string) string { return filepath.Join(s.JobDir(jobID), "render") }

func (s *Store) metaPath(jobID string) string {
	return filepath.Join(s.JobDir(jobID), metaFileName)
}

func (s *Store) filesPath(jobID string) string {
	return filepath.Join(s.JobDir(jobID), filesFileName)
}

func (s *Store) errorPath(jobID string) string {
	return filepath.Join(s.JobDir(jobID), errorFileName)
}

// NewJobID mints an opaque id, e.g. job_3f9a0c21d44b.
func NewJobID() string {
	return "job_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// EnsureJobDirs creates the conventional subdirectories for a job.
func (s *Store) EnsureJobDirs(jobID string) error {
	for _, dir := range []string{s.InputDir(jobID), s.Step1Dir(jobID), s.Step2Dir(jobID), s.RenderDir(jobID)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// CreateJob initializes the directory tree and metadata for a new job.
func (s *Store) CreateJob(jobID, ownerUserID string) (*Meta, error) {
	if err := s.EnsureJobDirs(jobID); err != nil {
		return nil, err
	}
	now := timeutil.NowISO()
	meta := &Meta{
		JobID:       jobID,
		OwnerUserID: ownerUserID,
		Status:      state.StatusCreated,
		Progress:    state.ProgressCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.saveMeta(meta); err != nil {
		return nil, err
	}
	if err := s.writeJSONAtomic(s.filesPath(jobID), map[string]string{}); err != nil {
		return nil, err
	}
	return meta, nil
}

// LoadMeta reads job.meta.json; a missing job yields ErrNotFound.
func (s *Store) LoadMeta(jobID string) (*Meta, error) {
	data, err := os.ReadFile(s.metaPath(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var meta Meta
	if err := jsonutil.UnmarshalLenient(data, &meta); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.metaPath(jobID), err)
	}
	return &meta, nil
}

func (s *Store) saveMeta(meta *Meta) error {
	return s.writeJSONAtomic(s.metaPath(meta.JobID), meta)
}

// UpdateJob loads, mutates, stamps updated_at, and atomically rewrites
// the metadata.
func (s *Store) UpdateJob(jobID string, mutate func(*Meta)) (*Meta, error) {
	meta, err := s.LoadMeta(jobID)
	if err != nil {
		return nil, err
	}
	mutate(meta)
	meta.UpdatedAt = timeutil.NowISO()
	if err := s.saveMeta(meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// SetStatus moves the job to status with the rung progress for that
// status (running stages keep their floor) and clears any error.
func (s *Store) SetStatus(jobID string, status state.Status) (*Meta, error) {
	return s.UpdateJob(jobID, func(m *Meta) {
		m.Status = status
		if p := state.ProgressFor(status); p >= 0 {
			m.Progress = p
		}
		m.ErrorCode = ""
		m.ErrorMessage = ""
	})
}

// TouchProgress raises progress; downgrades are ignored so polling
// never observes the bar move backwards.
func (s *Store) TouchProgress(jobID string, progress int) error {
	_, err := s.UpdateJob(jobID, func(m *Meta) {
		if progress > m.Progress {
			m.Progress = progress
		}
	})
	return err
}

// SetFailed flips the job to FAILED with a safe message and drops the
// job.error.json marker so inference agrees after a restart.
func (s *Store) SetFailed(jobID, code, message string) error {
	if _, err := s.UpdateJob(jobID, func(m *Meta) {
		m.Status = state.StatusFailed
		m.ErrorCode = code
		m.ErrorMessage = message
	}); err != nil {
		return err
	}
	return s.writeJSONAtomic(s.errorPath(jobID), JobError{Code: code, Message: message})
}

// SetRecoverableError records a user-visible error without marking the
// job FAILED; used when STEP1 bounces off an empty credit balance.
func (s *Store) SetRecoverableError(jobID string, status state.Status, code, message string) error {
	if _, err := s.UpdateJob(jobID, func(m *Meta) {
		m.Status = status
		if p := state.ProgressFor(status); p >= 0 {
			m.Progress = p
		}
		m.ErrorCode = code
		m.ErrorMessage = message
	}); err != nil {
		return err
	}
	// an error marker would make inference report FAILED
	if err := os.Remove(s.errorPath(jobID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// SaveMeta atomically rewrites job.meta.json, recreating the job
// directory if needed. Cleanup uses this to rebuild the retained
// shell row after artifact removal.
func (s *Store) SaveMeta(meta *Meta) error {
	return s.saveMeta(meta)
}

// ResetFiles replaces the manifest with an empty one.
func (s *Store) ResetFiles(jobID string) error {
	return s.writeJSONAtomic(s.filesPath(jobID), map[string]string{})
}

// LoadFiles returns the declared artifact slots. Null and empty slots
// are dropped.
func (s *Store) LoadFiles(jobID string) (map[string]string, error) {
	data, err := os.ReadFile(s.filesPath(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	var raw map[string]*string
	if err := jsonutil.UnmarshalLenient(data, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.filesPath(jobID), err)
	}
	files := make(map[string]string, len(raw))
	for slot, path := range raw {
		if path != nil && *path != "" {
			files[slot] = *path
		}
	}
	return files, nil
}

// UpsertFiles merges updates into job.files.json. Every declared path
// must resolve inside the job directory.
func (s *Store) UpsertFiles(jobID string, updates map[string]string) error {
	jobDir := s.JobDir(jobID)
	for slot, path := range updates {
		if path != "" && !pathutil.IsWithin(jobDir, path) {
			return fmt.Errorf("artifact path for slot %s escapes job dir: %s", slot, path)
		}
	}
	files, err := s.LoadFiles(jobID)
	if err != nil {
		return err
	}
	for slot, path := range updates {
		if path == "" {
			delete(files, slot)
			continue
		}
		files[slot] = path
	}
	return s.writeJSONAtomic(s.filesPath(jobID), files)
}

// LoadError returns job.error.json, or nil when absent.
func (s *Store) LoadError(jobID string) (*JobError, error) {
	data, err := os.ReadFile(s.errorPath(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var jobErr JobError
	if err := jsonutil.UnmarshalLenient(data, &jobErr); err != nil {
		return nil, err
	}
	return &jobErr, nil
}

// Evidence scans the conventional artifact locations for a job.
func (s *Store) Evidence(jobID string) state.Evidence {
	return state.Evidence{
		ErrorFile:      fileExists(s.errorPath(jobID)),
		RenderOutput:   fileExists(filepath.Join(s.RenderDir(jobID), "output.mp4")),
		Step2Confirmed: fileExists(filepath.Join(s.Step2Dir(jobID), confirmedMarker)),
		Step2Topics:    fileExists(filepath.Join(s.Step2Dir(jobID), "final_topics.json")),
		Step1Confirmed: fileExists(filepath.Join(s.Step1Dir(jobID), confirmedMarker)),
		Step1Lines:     fileExists(filepath.Join(s.Step1Dir(jobID), "final_step1.json")),
		InputAudio:     s.hasInputAudio(jobID),
	}
}

func (s *Store) hasInputAudio(jobID string) bool {
	entries, err := os.ReadDir(s.InputDir(jobID))
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if AllowedAudioExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			return true
		}
	}
	return false
}

// ReconciledStatus resolves the status to report for a job, merging
// recorded metadata with on-disk evidence. This runs on every GET.
func (s *Store) ReconciledStatus(meta *Meta) state.Status {
	return state.Reconcile(meta.Status, state.InferFromEvidence(s.Evidence(meta.JobID)))
}

// ListJobIDs returns every directory under jobs/, sorted; directories
// without metadata are included so cleanup can spot orphans.
func (s *Store) ListJobIDs() ([]string, error) {
	entries, err := os.ReadDir(s.JobsRoot())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// HasMeta reports whether the job directory carries job.meta.json.
func (s *Store) HasMeta(jobID string) bool {
	return fileExists(s.metaPath(jobID))
}

// RemoveJobDir deletes the whole job directory tree. The path is
// re-checked against the work dir before removal.
func (s *Store) RemoveJobDir(jobID string) error {
	dir := s.JobDir(jobID)
	if !pathutil.IsWithin(s.workDir, dir) || jobID == "" || jobID == "." || jobID == ".." {
		return fmt.Errorf("refusing to remove suspicious job dir %q", dir)
	}
	return os.RemoveAll(dir)
}

func (s *Store) writeJSONAtomic(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, jsonutil.MarshalIndentSilently(v), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
