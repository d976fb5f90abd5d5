/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

// Package types holds the request and response payloads of the HTTP
// API. Everything travels inside the {"request_id", "data"} envelope.
package types

import "github.com/PoetCoderJun/video-auto-cut/pkg/jobstore"

// JobErrorView is the user-visible error block of a job.
type JobErrorView struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JobView is a job as reported to the client. Status is the reconciled
// status, re-derived from on-disk evidence on every read.
type JobView struct {
	JobID     string        `json:"job_id"`
	Status    string        `json:"status"`
	Progress  int           `json:"progress"`
	Error     *JobErrorView `json:"error"`
	CreatedAt string        `json:"created_at"`
	UpdatedAt string        `json:"updated_at"`
}

type JobResponse struct {
	Job JobView `json:"job"`
}

// AcceptedResponse acknowledges an async stage kickoff.
type AcceptedResponse struct {
	Accepted bool   `json:"accepted"`
	Status   string `json:"status"`
}

type ConfirmedResponse struct {
	Confirmed bool   `json:"confirmed"`
	Status    string `json:"status"`
}

type UploadResponse struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
}

type CreateOSSUploadURLRequest struct {
	Filename string `json:"filename"`
}

type OSSUploadURLResponse struct {
	UploadURL      string `json:"upload_url"`
	ObjectKey      string `json:"object_key"`
	ExpiresSeconds int    `json:"expires_seconds"`
}

type AudioOSSReadyRequest struct {
	ObjectKey string `json:"object_key"`
}

type AudioOSSReadyResponse struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Status    string `json:"status"`
}

type Step1LinesResponse struct {
	Lines []jobstore.Step1Line `json:"lines"`
}

// Step1LineUpdate is one reviewed line in the confirm request. Nil
// fields leave the stored value untouched.
type Step1LineUpdate struct {
	LineID          int     `json:"line_id"`
	OptimizedText   *string `json:"optimized_text"`
	UserFinalRemove *bool   `json:"user_final_remove"`
}

type ConfirmStep1Request struct {
	Lines []Step1LineUpdate `json:"lines"`
}

type ChaptersResponse struct {
	Chapters []jobstore.Chapter `json:"chapters"`
}

type ConfirmStep2Request struct {
	Chapters []jobstore.Chapter `json:"chapters"`
}

type CouponRequest struct {
	Code string `json:"code"`
}
