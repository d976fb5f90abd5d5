/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

// Package pipeline drives the out-of-process stage tools (ASR
// transcription, LLM auto-edit, topic segmentation) and owns the pure
// post-processing that turns their outputs into job artifacts.
package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"k8s.io/klog/v2"

	"github.com/PoetCoderJun/video-auto-cut/pkg/config"
)

// Stage names used for progress reporting and logging.
const (
	StageTranscribe   = "transcribe"
	StageAutoEdit     = "auto_edit"
	StageTopicSegment = "topic_segment"
)

// ProgressFunc receives stage progress as a ratio in [0, 1].
type ProgressFunc func(stage string, ratio float64)

// Driver runs the three stage tools. Paths are absolute and the
// caller owns output placement; tests swap in a fake.
type Driver interface {
	Transcribe(ctx context.Context, audioPath, outputSRT string, report ProgressFunc) error
	AutoEdit(ctx context.Context, srtPath, outputSRT string, report ProgressFunc) error
	TopicSegment(ctx context.Context, srtPath, outputJSON string, report ProgressFunc) error
}

// Stage tools print lines like RENDER_PROGRESS_PCT=42.5 on stdout.
var progressPattern = regexp.MustCompile(`^RENDER_PROGRESS_PCT=([0-9]+(?:\.[0-9]+)?)\s*$`)

const stderrTailLimit = 4096

// CommandDriver shells out to the commands configured through
// PIPELINE_TRANSCRIBE_CMD, PIPELINE_AUTOEDIT_CMD and
// PIPELINE_TOPICS_CMD. The tokens {input} and {output} in any argv
// element are replaced with the stage's input and output paths.
type CommandDriver struct {
	transcribe []string
	autoEdit   []string
	topics     []string
}

func NewCommandDriver() *CommandDriver {
	return &CommandDriver{
		transcribe: config.GetTranscribeCommand(),
		autoEdit:   config.GetAutoEditCommand(),
		topics:     config.GetTopicsCommand(),
	}
}

func (d *CommandDriver) Transcribe(ctx context.Context, audioPath, outputSRT string, report ProgressFunc) error {
	return runStage(ctx, StageTranscribe, d.transcribe, audioPath, outputSRT, report)
}

func (d *CommandDriver) AutoEdit(ctx context.Context, srtPath, outputSRT string, report ProgressFunc) error {
	return runStage(ctx, StageAutoEdit, d.autoEdit, srtPath, outputSRT, report)
}

func (d *CommandDriver) TopicSegment(ctx context.Context, srtPath, outputJSON string, report ProgressFunc) error {
	return runStage(ctx, StageTopicSegment, d.topics, srtPath, outputJSON, report)
}

func runStage(ctx context.Context, stage string, template []string, input, output string, report ProgressFunc) error {
	if len(template) == 0 {
		return fmt.Errorf("%s command not configured", stage)
	}
	argv := expandArgs(template, input, output)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%s stage: %v", stage, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("%s stage: %v", stage, err)
	}

	klog.Infof("running %s stage: %s", stage, strings.Join(argv, " "))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s stage failed to start: %v", stage, err)
	}

	tail := make(chan string, 1)
	go func() { tail <- readTail(stderr) }()
	scanProgress(stdout, stage, report)

	stderrTail := <-tail
	if err := cmd.Wait(); err != nil {
		if stderrTail != "" {
			return fmt.Errorf("%s stage failed: %v: %s", stage, err, stderrTail)
		}
		return fmt.Errorf("%s stage failed: %v", stage, err)
	}
	return nil
}

func expandArgs(template []string, input, output string) []string {
	argv := make([]string, len(template))
	for i, arg := range template {
		arg = strings.ReplaceAll(arg, "{input}", input)
		arg = strings.ReplaceAll(arg, "{output}", output)
		argv[i] = arg
	}
	return argv
}

func scanProgress(r io.Reader, stage string, report ProgressFunc) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		m := progressPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		pct, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if report != nil {
			report(stage, clampRatio(pct/100))
		}
	}
}

func clampRatio(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func readTail(r io.Reader) string {
	data, _ := io.ReadAll(r)
	text := strings.TrimSpace(string(data))
	if len(text) > stderrTailLimit {
		text = text[len(text)-stderrTailLimit:]
	}
	return text
}
