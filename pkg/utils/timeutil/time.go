/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package timeutil

import "time"

// Timestamps are stored as UTC RFC3339 with second precision so that
// string comparison in SQL matches chronological order.
const Layout = "2006-01-02T15:04:05Z"

func NowISO() string {
	return FormatISO(time.Now())
}

func FormatISO(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(Layout)
}

// ParseISO accepts the storage layout plus RFC3339 variants with an
// offset, which older rows may carry.
func ParseISO(s string) (time.Time, error) {
	if t, err := time.Parse(Layout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
