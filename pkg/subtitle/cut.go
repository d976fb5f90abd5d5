/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package subtitle

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	"k8s.io/klog/v2"
)

// Segment is a kept slice of the source timeline, in source seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Caption is a subtitle remapped onto the cut (output) timeline.
type Caption struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// CutResult is what the cut-srt builder hands back to render config
// synthesis.
type CutResult struct {
	CutSRTPath string
	Kept       []Cue
	Segments   []Segment
	Captions   []Caption
}

var decisionHeaderPattern = regexp.MustCompile(`(?i)^\[(KEEP|REMOVE)\b[^\]]*\]\s*$`)

// ParseDecision splits an optional [KEEP]/[REMOVE] header off a cue's
// text. The decision is "" when no header is present.
func ParseDecision(content string) (decision, text string) {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if trim := strings.TrimSpace(line); trim != "" {
			lines = append(lines, trim)
		}
	}
	if len(lines) == 0 {
		return "", ""
	}
	m := decisionHeaderPattern.FindStringSubmatch(lines[0])
	if m == nil {
		return "", strings.Join(lines, "\n")
	}
	return strings.ToUpper(m[1]), strings.Join(lines[1:], "\n")
}

// FilterKept drops removed, empty, and zero-duration cues and returns
// the survivors sorted by start time, headers stripped.
func FilterKept(cues []Cue) []Cue {
	var kept []Cue
	for _, cue := range cues {
		decision, text := ParseDecision(cue.Text)
		if decision == "REMOVE" || strings.HasPrefix(text, RemoveToken) {
			continue
		}
		if text == "" || cue.End <= cue.Start {
			continue
		}
		cue.Text = text
		kept = append(kept, cue)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}

// MergeSegments collapses kept cues into contiguous timeline segments,
// joining neighbors closer than mergeGap seconds.
func MergeSegments(cues []Cue, mergeGap float64) []Segment {
	var segments []Segment
	for _, cue := range cues {
		start := cue.Start
		if start < 0 {
			start = 0
		}
		end := cue.End
		if end <= start {
			continue
		}
		if len(segments) > 0 && start-segments[len(segments)-1].End < mergeGap {
			if end > segments[len(segments)-1].End {
				segments[len(segments)-1].End = end
			}
			continue
		}
		segments = append(segments, Segment{Start: start, End: end})
	}
	return segments
}

const remapEps = 1e-4

// RemapCaptions projects kept cues from source time onto the cut
// timeline built from segments. Cues falling outside every segment are
// dropped with a warning.
func RemapCaptions(kept []Cue, segments []Segment) []Caption {
	type mapped struct {
		Segment
		outStart float64
	}
	timeline := make([]mapped, 0, len(segments))
	cursor := 0.0
	for _, seg := range segments {
		timeline = append(timeline, mapped{Segment: seg, outStart: cursor})
		cursor += seg.End - seg.Start
	}
	if len(timeline) == 0 {
		return nil
	}

	var captions []Caption
	segIdx := 0
	for _, cue := range kept {
		for segIdx+1 < len(timeline) {
			segEnd := timeline[segIdx].End
			if cue.Start > segEnd+remapEps {
				segIdx++
				continue
			}
			if cue.Start >= segEnd-remapEps && cue.End > segEnd+remapEps {
				segIdx++
				continue
			}
			break
		}
		seg := timeline[segIdx]
		if cue.Start < seg.Start-remapEps || cue.End > seg.End+remapEps {
			klog.Warningf("subtitle %.3f-%.3f is outside cut segment %.3f-%.3f, dropping", cue.Start, cue.End, seg.Start, seg.End)
			continue
		}
		outStart := seg.outStart + (cue.Start - seg.Start)
		outEnd := seg.outStart + (cue.End - seg.Start)
		if outEnd <= outStart {
			continue
		}
		captions = append(captions, Caption{
			Start: round3(outStart),
			End:   round3(outEnd),
			Text:  cue.Text,
		})
	}
	return captions
}

func round3(v float64) float64 {
	return float64(int64(v*1000+0.5)) / 1000
}

// BuildCutSRT runs the full cut pipeline: load the optimized SRT, drop
// removed lines, merge the kept timeline, remap captions onto it, and
// write the cut subtitles to outputPath.
func BuildCutSRT(sourcePath, outputPath string, mergeGap float64) (*CutResult, error) {
	cues, err := ParseFile(sourcePath)
	if err != nil {
		return nil, err
	}
	kept := FilterKept(cues)
	if len(kept) == 0 {
		return nil, errors.New("no kept subtitles found in optimized srt")
	}

	segments := MergeSegments(kept, mergeGap)
	captions := RemapCaptions(kept, segments)
	if len(captions) == 0 {
		return nil, errors.New("no captions left after remapping subtitle timeline")
	}

	out := make([]Cue, 0, len(captions))
	for _, cap := range captions {
		if cap.End <= cap.Start || cap.Text == "" {
			continue
		}
		out = append(out, Cue{Index: len(out) + 1, Start: cap.Start, End: cap.End, Text: cap.Text})
	}
	if err := WriteFile(outputPath, out); err != nil {
		return nil, err
	}
	klog.Infof("saved cut subtitles to %s", outputPath)

	return &CutResult{CutSRTPath: outputPath, Kept: kept, Segments: segments, Captions: captions}, nil
}
