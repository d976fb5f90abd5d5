/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

// Package worker runs the stage task loop: claim a task from the
// queue, drive the external stage tools, persist artifacts, and move
// the job through its lifecycle.
package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"k8s.io/klog/v2"

	"github.com/PoetCoderJun/video-auto-cut/pkg/billing"
	"github.com/PoetCoderJun/video-auto-cut/pkg/cleanup"
	"github.com/PoetCoderJun/video-auto-cut/pkg/config"
	apierrors "github.com/PoetCoderJun/video-auto-cut/pkg/errors"
	"github.com/PoetCoderJun/video-auto-cut/pkg/jobstore"
	"github.com/PoetCoderJun/video-auto-cut/pkg/pipeline"
	"github.com/PoetCoderJun/video-auto-cut/pkg/queue"
	"github.com/PoetCoderJun/video-auto-cut/pkg/state"
)

// User-visible failure message; raw errors stay in the queue row for
// operators.
const msgTaskFailed = "任务执行失败，请稍后重试"

type Worker struct {
	store   *jobstore.Store
	queue   *queue.Queue
	billing *billing.Service
	driver  pipeline.Driver
	sweeper *cleanup.Sweeper

	pollInterval    time.Duration
	cleanupInterval time.Duration
	lastCleanupAt   time.Time

	// highest progress written per job, so restarts of the loop never
	// walk the bar backwards within a run
	lastProgress map[string]int
}

func New(store *jobstore.Store, q *queue.Queue, billingSvc *billing.Service, driver pipeline.Driver, sweeper *cleanup.Sweeper) *Worker {
	return &Worker{
		store:           store,
		queue:           q,
		billing:         billingSvc,
		driver:          driver,
		sweeper:         sweeper,
		pollInterval:    config.GetWorkerPollInterval(),
		cleanupInterval: config.GetCleanupInterval(),
		lastProgress:    map[string]int{},
	}
}

// Run executes the claim loop until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	klog.Infof("worker loop started, poll interval %s", w.pollInterval)
	for {
		if ctx.Err() != nil {
			klog.Info("worker loop stopped")
			return
		}
		if w.step(ctx) {
			continue
		}
		select {
		case <-ctx.Done():
			klog.Info("worker loop stopped")
			return
		case <-time.After(w.pollInterval):
		}
	}
}

// RunOnce processes at most one task and returns whether it ran one.
func (w *Worker) RunOnce(ctx context.Context) bool {
	return w.step(ctx)
}

// step runs one iteration: a cleanup sweep when due, then one claim.
// It reports whether a task was executed.
func (w *Worker) step(ctx context.Context) bool {
	if w.sweeper != nil && time.Since(w.lastCleanupAt) >= w.cleanupInterval {
		w.sweeper.CleanupExpiredJobs()
		w.lastCleanupAt = time.Now()
	}

	task, err := w.queue.ClaimNext(ctx)
	if err != nil {
		klog.ErrorS(err, "claim failed")
		return false
	}
	if task == nil {
		return false
	}
	w.execute(ctx, task)
	return true
}

func (w *Worker) execute(ctx context.Context, task *queue.Task) {
	klog.Infof("execute task=%s job=%s task_id=%d", task.TaskType, task.JobID, task.TaskID)

	var err error
	switch task.TaskType {
	case queue.TaskTypeStep1:
		err = w.runStep1(ctx, task.JobID)
	case queue.TaskTypeStep2:
		err = w.runStep2(ctx, task.JobID)
	default:
		err = fmt.Errorf("unsupported task type: %s", task.TaskType)
	}

	delete(w.lastProgress, task.JobID)
	if err != nil {
		klog.ErrorS(err, "task failed", "task", task.TaskType, "job", task.JobID)
		if qErr := w.queue.SetFailed(ctx, task.TaskID, err.Error()); qErr != nil {
			klog.ErrorS(qErr, "failed to mark task failed", "task_id", task.TaskID)
		}
		w.failJob(task, err)
		return
	}
	if qErr := w.queue.SetSucceeded(ctx, task.TaskID); qErr != nil {
		klog.ErrorS(qErr, "failed to mark task succeeded", "task_id", task.TaskID)
	}
}

// failJob translates a task error into job state. An empty credit
// balance bounces STEP1 back to UPLOAD_READY with a visible error
// instead of failing the job.
func (w *Worker) failJob(task *queue.Task, err error) {
	if errors.Is(err, billing.ErrInsufficientCredits) && task.TaskType == queue.TaskTypeStep1 {
		if sErr := w.store.SetRecoverableError(task.JobID, state.StatusUploadReady,
			apierrors.InvalidStepState, billing.MsgNoCredits); sErr != nil {
			klog.ErrorS(sErr, "failed to record credit bounce", "job", task.JobID)
		}
		return
	}
	if sErr := w.store.SetFailed(task.JobID, apierrors.InternalError, msgTaskFailed); sErr != nil {
		klog.ErrorS(sErr, "failed to mark job failed", "job", task.JobID)
	}
}

func (w *Worker) runStep1(ctx context.Context, jobID string) error {
	files, err := w.store.LoadFiles(jobID)
	if err != nil {
		return err
	}
	audioPath := files[jobstore.SlotAudioPath]
	if audioPath == "" {
		return fmt.Errorf("upload audio missing for step1: %s", jobID)
	}

	meta, err := w.store.LoadMeta(jobID)
	if err != nil {
		return err
	}
	ok, err := w.billing.HasAvailableCredits(ctx, meta.OwnerUserID, 1)
	if err != nil {
		return err
	}
	if !ok {
		return billing.ErrInsufficientCredits
	}

	report := w.progressReporter(jobID, state.StatusStep1Running)
	srtPath := filepath.Join(w.store.Step1Dir(jobID), "transcript.srt")
	klog.Infof("step1 transcribe start job=%s audio=%s", jobID, audioPath)
	if err := w.driver.Transcribe(ctx, audioPath, srtPath, report); err != nil {
		return err
	}

	optimizedPath := filepath.Join(w.store.Step1Dir(jobID), "transcript.optimized.srt")
	klog.Infof("step1 auto-edit start job=%s srt=%s", jobID, srtPath)
	if err := w.driver.AutoEdit(ctx, srtPath, optimizedPath, report); err != nil {
		return err
	}

	lines, err := pipeline.BuildStep1Lines(srtPath, optimizedPath)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return fmt.Errorf("step1 produced empty line list")
	}

	if err := w.store.WriteStep1SRT(jobID, lines); err != nil {
		return err
	}
	if err := w.store.WriteStep1Lines(jobID, lines); err != nil {
		return err
	}
	if err := w.store.UpsertFiles(jobID, map[string]string{
		jobstore.SlotSRTPath:           srtPath,
		jobstore.SlotOptimizedSRTPath:  optimizedPath,
		jobstore.SlotFinalStep1SRTPath: w.store.Step1SRTPath(jobID),
	}); err != nil {
		return err
	}

	if err := w.billing.ConsumeStep1Credit(ctx, meta.OwnerUserID, jobID); err != nil {
		return err
	}

	_, err = w.store.SetStatus(jobID, state.StatusStep1Ready)
	return err
}

func (w *Worker) runStep2(ctx context.Context, jobID string) error {
	files, err := w.store.LoadFiles(jobID)
	if err != nil {
		return err
	}
	sourceSRT := files[jobstore.SlotFinalStep1SRTPath]
	if sourceSRT == "" {
		return fmt.Errorf("final_step1.srt missing for step2: %s", jobID)
	}

	report := w.progressReporter(jobID, state.StatusStep2Running)
	topicsPath := w.store.TopicsPath(jobID)
	klog.Infof("step2 topic segmentation start job=%s srt=%s", jobID, sourceSRT)
	if err := w.driver.TopicSegment(ctx, sourceSRT, topicsPath, report); err != nil {
		return err
	}

	chapters, err := pipeline.LoadChapters(w.store, topicsPath)
	if err != nil {
		return err
	}
	if len(chapters) == 0 {
		return fmt.Errorf("step2 generated empty chapter list")
	}

	lines, err := w.store.ReadStep1Lines(jobID)
	if err != nil {
		return err
	}
	pipeline.EnsureFullLineCoverage(chapters, pipeline.KeptLineIDs(lines))

	if err := w.store.WriteTopics(w.store.FinalTopicsPath(jobID), chapters); err != nil {
		return err
	}
	if err := w.store.UpsertFiles(jobID, map[string]string{
		jobstore.SlotTopicsPath:      topicsPath,
		jobstore.SlotFinalTopicsPath: w.store.FinalTopicsPath(jobID),
	}); err != nil {
		return err
	}

	_, err = w.store.SetStatus(jobID, state.StatusStep2Ready)
	return err
}

// progressReporter maps driver ratios into the running status window
// and persists only strictly increasing values.
func (w *Worker) progressReporter(jobID string, status state.Status) pipeline.ProgressFunc {
	return func(stage string, ratio float64) {
		progress := state.StageProgress(status, ratio)
		if progress <= w.lastProgress[jobID] {
			return
		}
		w.lastProgress[jobID] = progress
		if err := w.store.TouchProgress(jobID, progress); err != nil {
			klog.ErrorS(err, "failed to persist progress", "job", jobID, "stage", stage)
		}
	}
}
