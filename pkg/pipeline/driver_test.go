/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandArgs(t *testing.T) {
	argv := expandArgs([]string{"asr", "--in", "{input}", "--out={output}"}, "/a.m4a", "/a.srt")
	assert.Equal(t, []string{"asr", "--in", "/a.m4a", "--out=/a.srt"}, argv)
}

func TestScanProgress(t *testing.T) {
	out := strings.NewReader(
		"loading model\n" +
			"RENDER_PROGRESS_PCT=12.5\n" +
			"RENDER_PROGRESS_PCT=not-a-number\n" +
			"RENDER_PROGRESS_PCT=250\n" +
			"done\n")

	var got []float64
	scanProgress(out, StageTranscribe, func(stage string, ratio float64) {
		assert.Equal(t, StageTranscribe, stage)
		got = append(got, ratio)
	})
	assert.Equal(t, []float64{0.125, 1.0}, got)
}

func TestRunStageUnconfigured(t *testing.T) {
	err := runStage(context.Background(), StageAutoEdit, nil, "in", "out", nil)
	assert.EqualError(t, err, "auto_edit command not configured")
}

func TestRunStageReportsProgressAndErrors(t *testing.T) {
	var ratios []float64
	err := runStage(context.Background(), StageTranscribe,
		[]string{"sh", "-c", "echo RENDER_PROGRESS_PCT=50"}, "", "",
		func(_ string, ratio float64) { ratios = append(ratios, ratio) })
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5}, ratios)

	err = runStage(context.Background(), StageTopicSegment,
		[]string{"sh", "-c", "echo boom >&2; exit 3"}, "", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic_segment stage failed")
	assert.Contains(t, err.Error(), "boom")
}
