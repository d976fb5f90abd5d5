/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

// Package handlers implements the HTTP API over the job store, the
// task queue, and the billing service.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/PoetCoderJun/video-auto-cut/pkg/billing"
	"github.com/PoetCoderJun/video-auto-cut/pkg/cleanup"
	"github.com/PoetCoderJun/video-auto-cut/pkg/config"
	apierrors "github.com/PoetCoderJun/video-auto-cut/pkg/errors"
	"github.com/PoetCoderJun/video-auto-cut/pkg/handlers/authority"
	"github.com/PoetCoderJun/video-auto-cut/pkg/handlers/types"
	"github.com/PoetCoderJun/video-auto-cut/pkg/jobstore"
	"github.com/PoetCoderJun/video-auto-cut/pkg/oss"
	"github.com/PoetCoderJun/video-auto-cut/pkg/queue"
	"github.com/PoetCoderJun/video-auto-cut/pkg/state"
)

type Handler struct {
	store   *jobstore.Store
	queue   *queue.Queue
	billing *billing.Service
	oss     oss.Interface
	sweeper *cleanup.Sweeper
}

func NewHandler(store *jobstore.Store, q *queue.Queue, billingSvc *billing.Service,
	ossClient oss.Interface, sweeper *cleanup.Sweeper) *Handler {
	return &Handler{
		store:   store,
		queue:   q,
		billing: billingSvc,
		oss:     ossClient,
		sweeper: sweeper,
	}
}

// requestContext bounds every relational-store call; filesystem work
// stays on the raw request context.
func (h *Handler) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), config.GetDBRequestTimeout())
}

// loadOwnedJob resolves the job in the path and checks ownership.
// Jobs that do not exist and jobs that belong to someone else are
// indistinguishable on the wire: both are a 404.
func (h *Handler) loadOwnedJob(c *gin.Context) (*jobstore.Meta, error) {
	jobID := strings.TrimSpace(c.Param("job_id"))
	meta, err := h.store.LoadMeta(jobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			return nil, apierrors.NewNotFound("job not found")
		}
		return nil, err
	}
	if meta.OwnerUserID != authority.CurrentUser(c).UserID {
		return nil, apierrors.NewNotFound("job not found")
	}
	return meta, nil
}

// requireStatus gates an operation on the job's reconciled status.
func requireStatus(current state.Status, allowed ...state.Status) error {
	for _, status := range allowed {
		if current == status {
			return nil
		}
	}
	names := make([]string, 0, len(allowed))
	for _, status := range allowed {
		names = append(names, string(status))
	}
	return apierrors.NewInvalidStepState(
		fmt.Sprintf("current status=%s expected in [%s]", current, strings.Join(names, ", ")))
}

// jobView renders a job for the client with its status reconciled
// against on-disk evidence.
func (h *Handler) jobView(meta *jobstore.Meta) types.JobView {
	status := h.store.ReconciledStatus(meta)
	progress := meta.Progress
	if status != meta.Status {
		if p := state.ProgressFor(status); p >= 0 {
			progress = p
		}
	}
	view := types.JobView{
		JobID:     meta.JobID,
		Status:    string(status),
		Progress:  progress,
		CreatedAt: meta.CreatedAt,
		UpdatedAt: meta.UpdatedAt,
	}
	if meta.ErrorCode != "" || meta.ErrorMessage != "" {
		view.Error = &types.JobErrorView{Code: meta.ErrorCode, Message: meta.ErrorMessage}
	}
	return view
}
