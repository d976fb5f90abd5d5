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
)

// KeptLineIDs returns the ascending ids of lines the user kept.
func KeptLineIDs(lines []jobstore.Step1Line) []int {
	kept := make([]int, 0, len(lines))
	for _, line := range lines {
		if !line.UserFinalRemove {
			kept = append(kept, line.LineID)
		}
	}
	sort.Ints(kept)
	return kept
}

// LoadChapters reads a generated topics.json and normalizes it into
// chapters: sequential chapter ids, default titles, the summary
// falling back to the title, and zero-length ranges dropped.
func LoadChapters(store *jobstore.Store, path string) ([]jobstore.Chapter, error) {
	topics, err := store.ReadTopics(path)
	if err != nil {
		return nil, err
	}

	chapters := make([]jobstore.Chapter, 0, len(topics))
	for i, topic := range topics {
		if topic.End <= topic.Start {
			continue
		}
		idx := i + 1
		title := strings.TrimSpace(topic.Title)
		if title == "" {
			title = fmt.Sprintf("章节%d", idx)
		}
		chapters = append(chapters, jobstore.Chapter{
			ChapterID: idx,
			Title:     title,
			Summary:   normalizeSummary(title, topic.Summary),
			Start:     topic.Start,
			End:       topic.End,
			LineIDs:   append([]int(nil), topic.LineIDs...),
		})
	}
	return chapters, nil
}

// MapLineIDsToStep1 translates chapter line ids back onto step1 ids.
// The segmenter may emit either real step1 ids or sequential indexes
// into the cut subtitle file; an id found in the kept set passes
// through, otherwise it is treated as a 1-based position in kept
// order. Unmappable ids are dropped, duplicates keep first position.
func MapLineIDsToStep1(rawLineIDs, keptLineIDs []int) []int {
	if len(rawLineIDs) == 0 {
		return []int{}
	}
	keptSet := make(map[int]struct{}, len(keptLineIDs))
	for _, id := range keptLineIDs {
		keptSet[id] = struct{}{}
	}

	mapped := make([]int, 0, len(rawLineIDs))
	seen := make(map[int]struct{}, len(rawLineIDs))
	for _, raw := range rawLineIDs {
		candidate := 0
		if _, ok := keptSet[raw]; ok {
			candidate = raw
		} else if raw >= 1 && raw <= len(keptLineIDs) {
			candidate = keptLineIDs[raw-1]
		} else {
			continue
		}
		if _, dup := seen[candidate]; dup {
			continue
		}
		seen[candidate] = struct{}{}
		mapped = append(mapped, candidate)
	}
	return mapped
}

// EnsureFullLineCoverage remaps every chapter's line ids and then
// guarantees each kept line belongs to exactly one chapter: an
// unassigned id goes to the first chapter whose max id reaches it,
// falling back to the last chapter. Final per-chapter ids are sorted
// and deduplicated.
func EnsureFullLineCoverage(chapters []jobstore.Chapter, keptLineIDs []int) {
	if len(chapters) == 0 {
		return
	}
	keptSet := make(map[int]struct{}, len(keptLineIDs))
	for _, id := range keptLineIDs {
		keptSet[id] = struct{}{}
	}

	assigned := make(map[int]struct{})
	for i := range chapters {
		chapters[i].LineIDs = MapLineIDsToStep1(chapters[i].LineIDs, keptLineIDs)
		for _, id := range chapters[i].LineIDs {
			if _, ok := keptSet[id]; ok {
				assigned[id] = struct{}{}
			}
		}
	}

	for _, id := range keptLineIDs {
		if _, ok := assigned[id]; ok {
			continue
		}
		target := len(chapters) - 1
		for i := range chapters {
			if max := maxID(chapters[i].LineIDs); max > 0 && id <= max {
				target = i
				break
			}
		}
		chapters[target].LineIDs = append(chapters[target].LineIDs, id)
	}

	for i := range chapters {
		chapters[i].LineIDs = sortedKept(chapters[i].LineIDs, keptSet)
	}
}

// NormalizeChapters validates user-confirmed chapter edits, applying
// the same title and summary defaults the generated path uses. A
// chapter with end <= start is rejected rather than dropped.
func NormalizeChapters(chapters []jobstore.Chapter) ([]jobstore.Chapter, error) {
	if len(chapters) == 0 {
		return nil, fmt.Errorf("chapters cannot be empty")
	}

	normalized := make([]jobstore.Chapter, 0, len(chapters))
	for i, chapter := range chapters {
		idx := i + 1
		if chapter.End <= chapter.Start {
			return nil, fmt.Errorf("chapter range invalid: %d", idx)
		}
		chapterID := chapter.ChapterID
		if chapterID == 0 {
			chapterID = idx
		}
		title := strings.TrimSpace(chapter.Title)
		if title == "" {
			title = fmt.Sprintf("章节%d", idx)
		}
		normalized = append(normalized, jobstore.Chapter{
			ChapterID: chapterID,
			Title:     title,
			Summary:   normalizeSummary(title, chapter.Summary),
			Start:     chapter.Start,
			End:       chapter.End,
			LineIDs:   append([]int(nil), chapter.LineIDs...),
		})
	}
	return normalized, nil
}

func normalizeSummary(title, summary string) string {
	value := strings.TrimSpace(summary)
	if value == "" || value == title {
		return title
	}
	return value
}

func maxID(ids []int) int {
	max := 0
	for _, id := range ids {
		if id > max {
			max = id
		}
	}
	return max
}

func sortedKept(ids []int, keptSet map[int]struct{}) []int {
	out := make([]int, 0, len(ids))
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := keptSet[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
