/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PoetCoderJun/video-auto-cut/pkg/jobstore"
	"github.com/PoetCoderJun/video-auto-cut/pkg/subtitle"
)

// BuildStep1Lines merges the raw transcript with the auto-edited one
// into reviewable lines. Timing and line ids come from the original;
// the optimized pass contributes text plus the removal suggestion
// (empty text or a leading removal token counts as "suggest remove";
// a line the optimized pass never emitted keeps the original as-is).
// The user decision starts out mirroring the suggestion.
func BuildStep1Lines(originalSRT, optimizedSRT string) ([]jobstore.Step1Line, error) {
	original, err := subtitle.ParseFile(originalSRT)
	if err != nil {
		return nil, fmt.Errorf("parse original srt: %v", err)
	}
	optimized, err := subtitle.ParseFile(optimizedSRT)
	if err != nil {
		return nil, fmt.Errorf("parse optimized srt: %v", err)
	}

	optimizedByIndex := make(map[int]subtitle.Cue, len(optimized))
	for _, cue := range optimized {
		optimizedByIndex[cue.Index] = cue
	}

	lines := make([]jobstore.Step1Line, 0, len(original))
	for i, cue := range original {
		lineID := cue.Index
		if lineID <= 0 {
			lineID = i + 1
		}

		originalText := strings.TrimSpace(cue.Text)
		suggestRemove := false
		optimizedText := originalText
		if opt, ok := optimizedByIndex[lineID]; ok {
			content := strings.TrimSpace(opt.Text)
			suggestRemove = isRemoveText(content)
			optimizedText = stripRemoveToken(content)
			if optimizedText == "" {
				optimizedText = originalText
			}
		}

		lines = append(lines, jobstore.Step1Line{
			LineID:          lineID,
			Start:           cue.Start,
			End:             cue.End,
			OriginalText:    originalText,
			OptimizedText:   optimizedText,
			AISuggestRemove: suggestRemove,
			UserFinalRemove: suggestRemove,
		})
	}

	sort.Slice(lines, func(i, j int) bool { return lines[i].LineID < lines[j].LineID })
	return lines, nil
}

func isRemoveText(text string) bool {
	value := strings.TrimSpace(text)
	return value == "" || strings.HasPrefix(value, subtitle.RemoveToken)
}

func stripRemoveToken(text string) string {
	value := strings.TrimSpace(text)
	if !strings.HasPrefix(value, subtitle.RemoveToken) {
		return value
	}
	return strings.TrimSpace(value[len(subtitle.RemoveToken):])
}
