/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PoetCoderJun/video-auto-cut/pkg/jobstore"
)

func TestKeptLineIDs(t *testing.T) {
	lines := []jobstore.Step1Line{
		{LineID: 3},
		{LineID: 1, UserFinalRemove: true},
		{LineID: 2},
		{LineID: 5},
	}
	assert.Equal(t, []int{2, 3, 5}, KeptLineIDs(lines))
}

func TestMapLineIDsToStep1(t *testing.T) {
	kept := []int{2, 5, 9}

	// real ids pass through
	assert.Equal(t, []int{5, 2}, MapLineIDsToStep1([]int{5, 2}, kept))

	// sequential indexes map by kept order
	assert.Equal(t, []int{2, 5, 9}, MapLineIDsToStep1([]int{1, 2, 3}, kept))

	// duplicates collapse, out-of-range drops
	assert.Equal(t, []int{2, 5}, MapLineIDsToStep1([]int{2, 1, 5, 17}, kept))

	assert.Empty(t, MapLineIDsToStep1(nil, kept))
}

func TestEnsureFullLineCoverage(t *testing.T) {
	kept := []int{1, 2, 3, 4, 5}
	chapters := []jobstore.Chapter{
		{ChapterID: 1, LineIDs: []int{1, 2}},
		{ChapterID: 2, LineIDs: []int{5}},
	}

	EnsureFullLineCoverage(chapters, kept)

	// 3 and 4 were unassigned: both land in the chapter whose max id
	// first reaches them
	assert.Equal(t, []int{1, 2}, chapters[0].LineIDs)
	assert.Equal(t, []int{3, 4, 5}, chapters[1].LineIDs)
}

func TestEnsureFullLineCoverageFallsBackToLastChapter(t *testing.T) {
	kept := []int{1, 2, 9}
	chapters := []jobstore.Chapter{
		{ChapterID: 1, LineIDs: []int{1}},
		{ChapterID: 2, LineIDs: []int{2}},
	}

	EnsureFullLineCoverage(chapters, kept)

	assert.Equal(t, []int{1}, chapters[0].LineIDs)
	assert.Equal(t, []int{2, 9}, chapters[1].LineIDs)
}

func TestEnsureFullLineCoverageRemapsSequentialIDs(t *testing.T) {
	kept := []int{10, 20, 30}
	chapters := []jobstore.Chapter{
		{ChapterID: 1, LineIDs: []int{1, 2}},
		{ChapterID: 2, LineIDs: []int{3}},
	}

	EnsureFullLineCoverage(chapters, kept)

	assert.Equal(t, []int{10, 20}, chapters[0].LineIDs)
	assert.Equal(t, []int{30}, chapters[1].LineIDs)
}

func TestLoadChapters(t *testing.T) {
	store := jobstore.New(t.TempDir())
	require.NoError(t, store.EnsureJobDirs("job_a"))

	path := store.TopicsPath("job_a")
	require.NoError(t, store.WriteTopics(path, []jobstore.Chapter{
		{Title: "开场", Summary: "开场", Start: 0, End: 10, LineIDs: []int{1, 2}},
		{Title: "", Summary: "细节讨论", Start: 10, End: 5},
		{Title: "", Summary: "", Start: 10, End: 20, LineIDs: []int{3}},
	}))

	chapters, err := LoadChapters(store, path)
	require.NoError(t, err)
	require.Len(t, chapters, 2)

	// summary equal to title collapses to the title
	assert.Equal(t, 1, chapters[0].ChapterID)
	assert.Equal(t, "开场", chapters[0].Summary)

	// inverted range dropped; the survivor is renumbered and titled
	assert.Equal(t, "章节3", chapters[1].Title)
	assert.Equal(t, "章节3", chapters[1].Summary)
	assert.Equal(t, []int{3}, chapters[1].LineIDs)
}

func TestNormalizeChapters(t *testing.T) {
	normalized, err := NormalizeChapters([]jobstore.Chapter{
		{Start: 0, End: 10, Title: " 开场 ", Summary: "开场"},
		{ChapterID: 7, Start: 10, End: 20, Summary: "结尾总结"},
	})
	require.NoError(t, err)
	require.Len(t, normalized, 2)
	assert.Equal(t, 1, normalized[0].ChapterID)
	assert.Equal(t, "开场", normalized[0].Title)
	assert.Equal(t, "开场", normalized[0].Summary)
	assert.Equal(t, 7, normalized[1].ChapterID)
	assert.Equal(t, "章节2", normalized[1].Title)
	assert.Equal(t, "结尾总结", normalized[1].Summary)
}

func TestNormalizeChaptersRejectsBadRange(t *testing.T) {
	_, err := NormalizeChapters([]jobstore.Chapter{{Start: 5, End: 5}})
	assert.EqualError(t, err, "chapter range invalid: 1")

	_, err = NormalizeChapters(nil)
	assert.EqualError(t, err, "chapters cannot be empty")
}
