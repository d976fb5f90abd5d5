/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package pathutil

import (
	"path/filepath"
	"strings"
)

// IsWithin reports whether candidate resolves to a path strictly inside
// base (or base itself). Every delete and every declared artifact path
// must pass this check; nothing outside the work directory is touched.
func IsWithin(base, candidate string) bool {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return false
	}
	absCandidate, err := filepath.Abs(candidate)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absBase, absCandidate)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
