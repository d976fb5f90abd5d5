/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/PoetCoderJun/video-auto-cut/pkg/apiutils"
	"github.com/PoetCoderJun/video-auto-cut/pkg/billing"
	"github.com/PoetCoderJun/video-auto-cut/pkg/config"
	apierrors "github.com/PoetCoderJun/video-auto-cut/pkg/errors"
	"github.com/PoetCoderJun/video-auto-cut/pkg/handlers/authority"
	"github.com/PoetCoderJun/video-auto-cut/pkg/handlers/types"
	"github.com/PoetCoderJun/video-auto-cut/pkg/jobstore"
	"github.com/PoetCoderJun/video-auto-cut/pkg/pipeline"
	"github.com/PoetCoderJun/video-auto-cut/pkg/queue"
	"github.com/PoetCoderJun/video-auto-cut/pkg/state"
)

// RunStep1 kicks off transcription and auto-edit. The balance check
// here is a fast pre-check for immediate feedback; the worker holds
// the authoritative debit.
func (h *Handler) RunStep1(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		meta, err := h.loadOwnedJob(c)
		if err != nil {
			return nil, err
		}
		if err := requireStatus(h.store.ReconciledStatus(meta), state.StatusUploadReady); err != nil {
			return nil, err
		}

		identity := authority.CurrentUser(c)
		ctx, cancel := h.requestContext(c)
		defer cancel()
		ok, err := h.billing.HasAvailableCredits(ctx, identity.UserID, 1)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apierrors.NewInvalidStepState(billing.MsgNoCredits)
		}

		return h.kickOffStage(c, meta.JobID, queue.TaskTypeStep1, state.StatusStep1Running)
	})
}

// RunStep2 kicks off topic segmentation over the confirmed cut.
func (h *Handler) RunStep2(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		meta, err := h.loadOwnedJob(c)
		if err != nil {
			return nil, err
		}
		if err := requireStatus(h.store.ReconciledStatus(meta), state.StatusStep1Confirmed); err != nil {
			return nil, err
		}
		return h.kickOffStage(c, meta.JobID, queue.TaskTypeStep2, state.StatusStep2Running)
	})
}

// kickOffStage moves the job into its running status and enqueues the
// task. Repeat calls coalesce on the live queue row.
func (h *Handler) kickOffStage(c *gin.Context, jobID, taskType string, running state.Status) (interface{}, error) {
	updated, err := h.store.SetStatus(jobID, running)
	if err != nil {
		return nil, err
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()
	taskID, err := h.queue.Enqueue(ctx, jobID, taskType, nil)
	if err != nil {
		return nil, err
	}
	klog.Infof("enqueued stage job=%s task=%s task_id=%d", jobID, taskType, taskID)
	return types.AcceptedResponse{Accepted: true, Status: string(updated.Status)}, nil
}

func (h *Handler) GetStep1(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		meta, err := h.loadOwnedJob(c)
		if err != nil {
			return nil, err
		}
		if err := requireStatus(h.store.ReconciledStatus(meta),
			state.StatusStep1Ready, state.StatusStep1Confirmed, state.StatusStep2Running,
			state.StatusStep2Ready, state.StatusStep2Confirmed); err != nil {
			return nil, err
		}

		lines, err := h.store.ReadStep1Lines(meta.JobID)
		if err != nil {
			if errors.Is(err, jobstore.ErrNotFound) {
				return nil, apierrors.NewNotFound("step1 result not found")
			}
			return nil, err
		}
		return types.Step1LinesResponse{Lines: lines}, nil
	})
}

// ConfirmStep1 applies the user's review over the stored lines and
// freezes the cut: final srt rewritten, confirm marker dropped, job
// advanced to STEP1_CONFIRMED.
func (h *Handler) ConfirmStep1(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		meta, err := h.loadOwnedJob(c)
		if err != nil {
			return nil, err
		}
		if err := requireStatus(h.store.ReconciledStatus(meta), state.StatusStep1Ready); err != nil {
			return nil, err
		}

		var req types.ConfirmStep1Request
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, apierrors.NewBadRequest("invalid request body")
		}
		if len(req.Lines) == 0 {
			return nil, apierrors.NewBadRequest("lines cannot be empty")
		}

		lines, err := h.store.ReadStep1Lines(meta.JobID)
		if err != nil {
			if errors.Is(err, jobstore.ErrNotFound) {
				return nil, apierrors.NewNotFound("step1 result not found")
			}
			return nil, err
		}
		byID := make(map[int]int, len(lines))
		for i, line := range lines {
			byID[line.LineID] = i
		}
		for _, update := range req.Lines {
			i, ok := byID[update.LineID]
			if !ok {
				return nil, apierrors.NewBadRequest(fmt.Sprintf("invalid line_id: %d", update.LineID))
			}
			if update.OptimizedText != nil {
				lines[i].OptimizedText = *update.OptimizedText
			}
			if update.UserFinalRemove != nil {
				lines[i].UserFinalRemove = *update.UserFinalRemove
			}
		}

		if err := h.store.WriteStep1Lines(meta.JobID, lines); err != nil {
			return nil, err
		}
		if err := h.store.WriteStep1SRT(meta.JobID, lines); err != nil {
			return nil, err
		}
		if err := h.store.UpsertFiles(meta.JobID, map[string]string{
			jobstore.SlotFinalStep1SRTPath: h.store.Step1SRTPath(meta.JobID),
		}); err != nil {
			return nil, err
		}
		if err := h.store.ConfirmStep1(meta.JobID); err != nil {
			return nil, err
		}
		updated, err := h.store.SetStatus(meta.JobID, state.StatusStep1Confirmed)
		if err != nil {
			return nil, err
		}
		return types.ConfirmedResponse{Confirmed: true, Status: string(updated.Status)}, nil
	})
}

func (h *Handler) GetStep2(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		meta, err := h.loadOwnedJob(c)
		if err != nil {
			return nil, err
		}
		if err := requireStatus(h.store.ReconciledStatus(meta),
			state.StatusStep2Ready, state.StatusStep2Confirmed); err != nil {
			return nil, err
		}

		chapters, err := h.store.ReadTopics(h.store.FinalTopicsPath(meta.JobID))
		if err != nil {
			if errors.Is(err, jobstore.ErrNotFound) {
				return nil, apierrors.NewNotFound("step2 result not found")
			}
			return nil, err
		}
		return types.ChaptersResponse{Chapters: chapters}, nil
	})
}

// ConfirmStep2 freezes the user's final chapter list.
func (h *Handler) ConfirmStep2(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		meta, err := h.loadOwnedJob(c)
		if err != nil {
			return nil, err
		}
		if err := requireStatus(h.store.ReconciledStatus(meta), state.StatusStep2Ready); err != nil {
			return nil, err
		}

		var req types.ConfirmStep2Request
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, apierrors.NewBadRequest("invalid request body")
		}
		chapters, err := pipeline.NormalizeChapters(req.Chapters)
		if err != nil {
			return nil, apierrors.NewBadRequest(err.Error())
		}

		if err := h.store.WriteTopics(h.store.FinalTopicsPath(meta.JobID), chapters); err != nil {
			return nil, err
		}
		if err := h.store.UpsertFiles(meta.JobID, map[string]string{
			jobstore.SlotFinalTopicsPath: h.store.FinalTopicsPath(meta.JobID),
		}); err != nil {
			return nil, err
		}
		if err := h.store.ConfirmStep2(meta.JobID); err != nil {
			return nil, err
		}
		updated, err := h.store.SetStatus(meta.JobID, state.StatusStep2Confirmed)
		if err != nil {
			return nil, err
		}
		return types.ConfirmedResponse{Confirmed: true, Status: string(updated.Status)}, nil
	})
}

// GetRenderConfig synthesizes the browser-side render composition.
func (h *Handler) GetRenderConfig(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		meta, err := h.loadOwnedJob(c)
		if err != nil {
			return nil, err
		}
		if err := requireStatus(h.store.ReconciledStatus(meta),
			state.StatusStep2Confirmed, state.StatusSucceeded); err != nil {
			return nil, err
		}

		opts := pipeline.RenderOptions{MergeGap: config.GetCutMergeGap()}
		if opts.FPS, err = floatQuery(c, "fps"); err != nil {
			return nil, err
		}
		if opts.Width, err = intQuery(c, "width"); err != nil {
			return nil, err
		}
		if opts.Height, err = intQuery(c, "height"); err != nil {
			return nil, err
		}
		if opts.DurationSec, err = floatQuery(c, "duration_sec"); err != nil {
			return nil, err
		}

		cfg, err := pipeline.BuildRenderConfig(h.store, meta.JobID, c.Query("source_url"), opts)
		if err != nil {
			return nil, apierrors.NewInvalidStepState(err.Error())
		}
		return cfg, nil
	})
}

// Download streams the final video. It bypasses the JSON envelope;
// errors still travel as envelopes via AbortWithApiError.
func (h *Handler) Download(c *gin.Context) {
	meta, err := h.loadOwnedJob(c)
	if err != nil {
		apiutils.AbortWithApiError(c, err)
		return
	}
	if err := requireStatus(h.store.ReconciledStatus(meta), state.StatusSucceeded); err != nil {
		apiutils.AbortWithApiError(c, err)
		return
	}

	files, err := h.store.LoadFiles(meta.JobID)
	if err != nil {
		apiutils.AbortWithApiError(c, err)
		return
	}
	videoPath := files[jobstore.SlotFinalVideoPath]
	if videoPath == "" {
		videoPath = h.store.RenderOutputPath(meta.JobID)
	}
	if info, statErr := os.Stat(videoPath); statErr != nil || info.IsDir() {
		apiutils.AbortWithApiError(c, apierrors.NewInvalidStepState("final video not found"))
		return
	}

	c.Header("Content-Type", "video/mp4")
	c.FileAttachment(videoPath, filepath.Base(videoPath))

	// the body is fully written; reclaim or re-arm the TTL clock
	if h.sweeper == nil {
		return
	}
	if downloadCleanup(c) {
		h.sweeper.CleanupAfterDownload(meta.JobID)
	} else {
		h.sweeper.MarkCleanupFromNow(meta.JobID, "download")
	}
}

// downloadCleanup resolves the ?cleanup= override against the
// configured default.
func downloadCleanup(c *gin.Context) bool {
	raw := c.Query("cleanup")
	if raw == "" {
		return config.IsCleanupOnDownload()
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return config.IsCleanupOnDownload()
	}
	return enabled
}

func floatQuery(c *gin.Context, name string) (float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apierrors.NewBadRequest(fmt.Sprintf("invalid query param %s", name))
	}
	return value, nil
}

func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apierrors.NewBadRequest(fmt.Sprintf("invalid query param %s", name))
	}
	return value, nil
}
