/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package pipeline

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PoetCoderJun/video-auto-cut/pkg/jobstore"
	"github.com/PoetCoderJun/video-auto-cut/pkg/subtitle"
)

const (
	defaultFPS    = 30.0
	defaultWidth  = 1920
	defaultHeight = 1080
	minFPS        = 1.0
	maxFPS        = 120.0
)

// RenderCaption is one subtitle on the cut timeline.
type RenderCaption struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// RenderTopic is a chapter marker for the client renderer.
type RenderTopic struct {
	Title   string  `json:"title"`
	Summary string  `json:"summary"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

type Composition struct {
	ID               string  `json:"id"`
	FPS              float64 `json:"fps"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	DurationInFrames int     `json:"durationInFrames"`
}

type InputProps struct {
	Src      string             `json:"src"`
	Captions []RenderCaption    `json:"captions"`
	Segments []subtitle.Segment `json:"segments"`
	Topics   []RenderTopic      `json:"topics"`
	FPS      float64            `json:"fps"`
	Width    int                `json:"width"`
	Height   int                `json:"height"`
}

// RenderConfig is the document the browser-side renderer consumes.
type RenderConfig struct {
	SourceURL       string      `json:"source_url"`
	OutputName      string      `json:"output_name"`
	HasServerSource bool        `json:"has_server_source"`
	Composition     Composition `json:"composition"`
	InputProps      InputProps  `json:"input_props"`
}

// RenderOptions carries client overrides; zero values mean "use the
// default".
type RenderOptions struct {
	FPS         float64
	Width       int
	Height      int
	DurationSec float64
	MergeGap    float64
}

// BuildRenderConfig synthesizes the render composition for a job: it
// rebuilds the cut timeline from the confirmed step1 subtitles and
// attaches the confirmed chapters, dimensions and fps.
func BuildRenderConfig(store *jobstore.Store, jobID, sourceURL string, opts RenderOptions) (*RenderConfig, error) {
	files, err := store.LoadFiles(jobID)
	if err != nil {
		return nil, fmt.Errorf("job files not found for render: %v", err)
	}
	step1SRT := files[jobstore.SlotFinalStep1SRTPath]
	if step1SRT == "" {
		return nil, fmt.Errorf("render inputs missing")
	}

	if err := store.EnsureJobDirs(jobID); err != nil {
		return nil, err
	}
	cutSRT := filepath.Join(store.RenderDir(jobID), "web.cut.srt")
	timeline, err := subtitle.BuildCutSRT(step1SRT, cutSRT, opts.MergeGap)
	if err != nil {
		return nil, err
	}

	captions := make([]RenderCaption, 0, len(timeline.Captions))
	for _, cap := range timeline.Captions {
		text := strings.TrimSpace(cap.Text)
		if cap.End <= cap.Start || text == "" {
			continue
		}
		captions = append(captions, RenderCaption{
			Index: len(captions) + 1,
			Start: cap.Start,
			End:   cap.End,
			Text:  text,
		})
	}
	if len(captions) == 0 {
		return nil, fmt.Errorf("render captions missing")
	}

	segments := make([]subtitle.Segment, 0, len(timeline.Segments))
	for _, seg := range timeline.Segments {
		if seg.End <= seg.Start {
			continue
		}
		segments = append(segments, subtitle.Segment{Start: round3(seg.Start), End: round3(seg.End)})
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("render segments missing")
	}

	topics, err := renderTopics(store, jobID)
	if err != nil {
		return nil, err
	}

	fps := resolveFPS(opts.FPS)
	width, height := resolveDimensions(opts.Width, opts.Height)
	frames := durationFramesFromSegments(segments, fps)
	if frames <= 0 {
		frames = fallbackDurationFrames(opts.DurationSec, captions, segments, fps)
	}

	stem := sourceStem(files, jobID)
	return &RenderConfig{
		SourceURL:       sourceURL,
		OutputName:      stem + "_remotion.mp4",
		HasServerSource: hasServerSource(files),
		Composition: Composition{
			ID:               "StitchVideoWeb",
			FPS:              fps,
			Width:            width,
			Height:           height,
			DurationInFrames: frames,
		},
		InputProps: InputProps{
			Src:      sourceURL,
			Captions: captions,
			Segments: segments,
			Topics:   topics,
			FPS:      fps,
			Width:    width,
			Height:   height,
		},
	}, nil
}

func renderTopics(store *jobstore.Store, jobID string) ([]RenderTopic, error) {
	chapters, err := store.ReadTopics(store.FinalTopicsPath(jobID))
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			return []RenderTopic{}, nil
		}
		return nil, err
	}

	topics := make([]RenderTopic, 0, len(chapters))
	for _, chapter := range chapters {
		if chapter.End <= chapter.Start {
			continue
		}
		title := strings.TrimSpace(chapter.Title)
		if title == "" {
			title = "章节"
		}
		topics = append(topics, RenderTopic{
			Title:   title,
			Summary: strings.TrimSpace(chapter.Summary),
			Start:   round3(chapter.Start),
			End:     round3(chapter.End),
		})
	}
	sort.SliceStable(topics, func(i, j int) bool { return topics[i].Start < topics[j].Start })
	return topics, nil
}

func resolveFPS(override float64) float64 {
	fps := override
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		fps = defaultFPS
	}
	return math.Max(minFPS, math.Min(maxFPS, fps))
}

func resolveDimensions(width, height int) (int, int) {
	if width <= 0 || height <= 0 {
		return defaultWidth, defaultHeight
	}
	return ensureEven(width), ensureEven(height)
}

func ensureEven(value int) int {
	if value <= 2 {
		return 2
	}
	if value%2 == 0 {
		return value
	}
	return value - 1
}

// durationFramesFromSegments keeps the composition length strictly
// aligned with stitched segment frames.
func durationFramesFromSegments(segments []subtitle.Segment, fps float64) int {
	sorted := append([]subtitle.Segment(nil), segments...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	total := 0
	for _, seg := range sorted {
		if seg.End <= seg.Start {
			continue
		}
		trimBefore := int(math.Floor(seg.Start * fps))
		if trimBefore < 0 {
			trimBefore = 0
		}
		trimAfter := int(math.Ceil(seg.End * fps))
		if trimAfter < trimBefore+1 {
			trimAfter = trimBefore + 1
		}
		frames := trimAfter - trimBefore
		if frames < 1 {
			frames = 1
		}
		total += frames
	}
	return total
}

func fallbackDurationFrames(override float64, captions []RenderCaption, segments []subtitle.Segment, fps float64) int {
	duration := override
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		duration = 0
	}
	if duration <= 0 {
		for _, seg := range segments {
			duration += seg.End - seg.Start
		}
	}
	if duration <= 0 && len(captions) > 0 {
		duration = captions[len(captions)-1].End
	}
	if duration <= 0 {
		duration = 1
	}
	frames := int(math.Ceil(duration * fps))
	if frames < 1 {
		frames = 1
	}
	return frames
}

func sourceStem(files map[string]string, jobID string) string {
	if audio := files[jobstore.SlotAudioPath]; audio != "" {
		base := filepath.Base(audio)
		if stem := strings.TrimSuffix(base, filepath.Ext(base)); stem != "" {
			return stem
		}
	}
	return jobID
}

func hasServerSource(files map[string]string) bool {
	audio := files[jobstore.SlotAudioPath]
	if audio == "" {
		return false
	}
	_, err := os.Stat(audio)
	return err == nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
