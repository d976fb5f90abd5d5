/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

// Package state holds the job state machine: legal statuses, the
// transition graph, progress rungs, and evidence-based status
// inference. It is pure logic with no storage dependencies.
package state

// Status is a job lifecycle status.
type Status string

const (
	StatusCreated        Status = "CREATED"
	StatusUploadReady    Status = "UPLOAD_READY"
	StatusStep1Running   Status = "STEP1_RUNNING"
	StatusStep1Ready     Status = "STEP1_READY"
	StatusStep1Confirmed Status = "STEP1_CONFIRMED"
	StatusStep2Running   Status = "STEP2_RUNNING"
	StatusStep2Ready     Status = "STEP2_READY"
	StatusStep2Confirmed Status = "STEP2_CONFIRMED"
	StatusSucceeded      Status = "SUCCEEDED"
	StatusFailed         Status = "FAILED"
)

// Progress rungs the UI keys off. Running stages interpolate between
// their floor and the next rung.
const (
	ProgressCreated        = 0
	ProgressUploadReady    = 10
	ProgressStep1Floor     = 11
	ProgressStep1Ceiling   = 29
	ProgressStep1Ready     = 35
	ProgressStep1Confirmed = 45
	ProgressStep2Floor     = 46
	ProgressStep2Ceiling   = 74
	ProgressStep2Ready     = 75
	ProgressStep2Confirmed = 80
	ProgressSucceeded      = 100
)

// ProgressFor returns the rung for a settled status. Running statuses
// return their floor; FAILED keeps whatever progress the job had, so it
// returns -1 meaning "leave as-is".
func ProgressFor(s Status) int {
	switch s {
	case StatusCreated:
		return ProgressCreated
	case StatusUploadReady:
		return ProgressUploadReady
	case StatusStep1Running:
		return ProgressStep1Floor
	case StatusStep1Ready:
		return ProgressStep1Ready
	case StatusStep1Confirmed:
		return ProgressStep1Confirmed
	case StatusStep2Running:
		return ProgressStep2Floor
	case StatusStep2Ready:
		return ProgressStep2Ready
	case StatusStep2Confirmed:
		return ProgressStep2Confirmed
	case StatusSucceeded:
		return ProgressSucceeded
	}
	return -1
}

// StageProgress maps a driver-reported ratio in [0,1] into the running
// stage's rung window, clamped below the next rung's floor.
func StageProgress(s Status, ratio float64) int {
	var floor, ceiling int
	switch s {
	case StatusStep1Running:
		floor, ceiling = ProgressStep1Floor, ProgressStep1Ceiling
	case StatusStep2Running:
		floor, ceiling = ProgressStep2Floor, ProgressStep2Ceiling
	default:
		return ProgressFor(s)
	}
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	progress := floor + int(ratio*float64(ceiling-floor))
	if progress > ceiling {
		progress = ceiling
	}
	return progress
}

// IsTerminal reports whether no further transitions are legal.
func IsTerminal(s Status) bool {
	return s == StatusSucceeded || s == StatusFailed
}

// IsValid reports whether s is a known status value.
func IsValid(s Status) bool {
	switch s {
	case StatusCreated, StatusUploadReady, StatusStep1Running, StatusStep1Ready,
		StatusStep1Confirmed, StatusStep2Running, StatusStep2Ready,
		StatusStep2Confirmed, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusCreated:        {StatusUploadReady, StatusFailed},
	StatusUploadReady:    {StatusUploadReady, StatusStep1Running, StatusFailed},
	StatusStep1Running:   {StatusStep1Ready, StatusUploadReady, StatusFailed},
	StatusStep1Ready:     {StatusStep1Confirmed, StatusFailed},
	StatusStep1Confirmed: {StatusStep2Running, StatusFailed},
	StatusStep2Running:   {StatusStep2Ready, StatusFailed},
	StatusStep2Ready:     {StatusStep2Confirmed, StatusFailed},
	StatusStep2Confirmed: {StatusSucceeded, StatusFailed},
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Evidence is the on-disk footprint of a job, gathered by the job
// store. Each field answers "does this artifact exist".
type Evidence struct {
	ErrorFile      bool // job.error.json
	RenderOutput   bool // render/output.mp4
	Step2Confirmed bool // step2/.confirmed
	Step2Topics    bool // step2/final_topics.json
	Step1Confirmed bool // step1/.confirmed
	Step1Lines     bool // step1/final_step1.json
	InputAudio     bool // any audio under input/
}

// InferFromEvidence resolves the highest-reached status the artifacts
// prove, by fixed precedence.
func InferFromEvidence(ev Evidence) Status {
	switch {
	case ev.ErrorFile:
		return StatusFailed
	case ev.RenderOutput:
		return StatusSucceeded
	case ev.Step2Confirmed:
		return StatusStep2Confirmed
	case ev.Step2Topics:
		return StatusStep2Ready
	case ev.Step1Confirmed:
		return StatusStep1Confirmed
	case ev.Step1Lines:
		return StatusStep1Ready
	case ev.InputAudio:
		return StatusUploadReady
	}
	return StatusCreated
}

// Reconcile merges recorded metadata with inferred evidence. A running
// meta status wins over evidence that merely has not caught up yet, a
// recorded failure sticks unless the artifacts prove completion, and a
// recorded success survives artifact reclamation (cleanup leaves a bare
// SUCCEEDED row whose evidence reads as CREATED).
func Reconcile(meta, inferred Status) Status {
	switch {
	case meta == StatusStep1Running && (inferred == StatusCreated || inferred == StatusUploadReady):
		return StatusStep1Running
	case meta == StatusStep2Running && inferred == StatusStep1Confirmed:
		return StatusStep2Running
	case meta == StatusFailed && !IsTerminal(inferred):
		return StatusFailed
	case meta == StatusSucceeded && inferred == StatusCreated:
		return StatusSucceeded
	}
	return inferred
}
