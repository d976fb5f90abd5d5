/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package pathutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsWithin(t *testing.T) {
	base := t.TempDir()

	assert.True(t, IsWithin(base, base))
	assert.True(t, IsWithin(base, filepath.Join(base, "jobs", "job_abc", "input", "audio.wav")))
	assert.False(t, IsWithin(base, filepath.Join(base, "..", "escape")))
	assert.False(t, IsWithin(base, filepath.Join(base, "jobs", "..", "..", "etc", "passwd")))
	assert.False(t, IsWithin(base, "/etc/passwd"))

	// a sibling directory sharing a name prefix is outside
	assert.False(t, IsWithin(base, base+"2"))
}
