/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package jobstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PoetCoderJun/video-auto-cut/pkg/subtitle"
	"github.com/PoetCoderJun/video-auto-cut/pkg/utils/jsonutil"
)

// Step1Line is one reviewed transcript line. LineID is the SRT index
// from the original transcript and stays stable across confirmation.
type Step1Line struct {
	LineID          int     `json:"line_id"`
	Start           float64 `json:"start"`
	End             float64 `json:"end"`
	OriginalText    string  `json:"original_text"`
	OptimizedText   string  `json:"optimized_text"`
	AISuggestRemove bool    `json:"ai_suggest_remove"`
	UserFinalRemove bool    `json:"user_final_remove"`
}

// Chapter is one topic segment over the kept lines.
type Chapter struct {
	ChapterID int     `json:"chapter_id"`
	Title     string  `json:"title"`
	Summary   string  `json:"summary"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	LineIDs   []int   `json:"line_ids"`
}

type step1Doc struct {
	Lines []Step1Line `json:"lines"`
}

type topicsDoc struct {
	Topics []Chapter `json:"topics"`
}

func (s *Store) Step1JSONPath(jobID string) string {
	return filepath.Join(s.Step1Dir(jobID), "final_step1.json")
}

func (s *Store) Step1SRTPath(jobID string) string {
	return filepath.Join(s.Step1Dir(jobID), "final_step1.srt")
}

func (s *Store) TopicsPath(jobID string) string {
	return filepath.Join(s.Step2Dir(jobID), "topics.json")
}

func (s *Store) FinalTopicsPath(jobID string) string {
	return filepath.Join(s.Step2Dir(jobID), "final_topics.json")
}

func (s *Store) CutSRTPath(jobID string) string {
	return filepath.Join(s.RenderDir(jobID), "cut.srt")
}

func (s *Store) RenderOutputPath(jobID string) string {
	return filepath.Join(s.RenderDir(jobID), "output.mp4")
}

// WriteStep1Lines persists the line list sorted by line_id.
func (s *Store) WriteStep1Lines(jobID string, lines []Step1Line) error {
	sorted := append([]Step1Line(nil), lines...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LineID < sorted[j].LineID })
	return s.writeJSONAtomic(s.Step1JSONPath(jobID), step1Doc{Lines: sorted})
}

// ReadStep1Lines loads step1/final_step1.json; missing file yields
// ErrNotFound.
func (s *Store) ReadStep1Lines(jobID string) ([]Step1Line, error) {
	data, err := os.ReadFile(s.Step1JSONPath(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var doc step1Doc
	if err := jsonutil.UnmarshalLenient(data, &doc); err != nil {
		return nil, fmt.Errorf("decode step1 lines for %s: %w", jobID, err)
	}
	return doc.Lines, nil
}

// WriteStep1SRT renders the line list back to final_step1.srt. Removed
// lines keep their slot with a remove token so the cut builder can see
// them; empty or inverted ranges are skipped.
func (s *Store) WriteStep1SRT(jobID string, lines []Step1Line) error {
	sorted := append([]Step1Line(nil), lines...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LineID < sorted[j].LineID })

	cues := make([]subtitle.Cue, 0, len(sorted))
	for _, line := range sorted {
		if line.End <= line.Start {
			continue
		}
		original := strings.TrimSpace(line.OriginalText)
		optimized := strings.TrimSpace(line.OptimizedText)
		if optimized == "" {
			optimized = original
		}
		content := optimized
		if line.UserFinalRemove {
			content = strings.TrimSpace(subtitle.RemoveToken + " " + original)
		}
		cues = append(cues, subtitle.Cue{
			Index: line.LineID,
			Start: line.Start,
			End:   line.End,
			Text:  content,
		})
	}
	return subtitle.WriteFile(s.Step1SRTPath(jobID), cues)
}

// WriteTopics persists chapters to the given path ({"topics": [...]}).
func (s *Store) WriteTopics(path string, chapters []Chapter) error {
	return s.writeJSONAtomic(path, topicsDoc{Topics: chapters})
}

// ReadTopics loads a topics document; missing file yields ErrNotFound.
func (s *Store) ReadTopics(path string) ([]Chapter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var doc topicsDoc
	if err := jsonutil.UnmarshalLenient(data, &doc); err != nil {
		return nil, fmt.Errorf("decode topics %s: %w", path, err)
	}
	return doc.Topics, nil
}

// ConfirmStep1 drops the step1/.confirmed marker.
func (s *Store) ConfirmStep1(jobID string) error {
	return s.writeMarker(filepath.Join(s.Step1Dir(jobID), confirmedMarker))
}

// ConfirmStep2 drops the step2/.confirmed marker.
func (s *Store) ConfirmStep2(jobID string) error {
	return s.writeMarker(filepath.Join(s.Step2Dir(jobID), confirmedMarker))
}

func (s *Store) writeMarker(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, nil, 0o644)
}
