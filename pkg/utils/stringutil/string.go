/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package stringutil

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// RandHex returns length hex characters from a CSPRNG.
func RandHex(length int) string {
	if length <= 0 {
		return ""
	}
	buf := make([]byte, (length+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return strings.Repeat("0", length)
	}
	return hex.EncodeToString(buf)[:length]
}

// NormalizeCode canonicalizes a coupon code for lookup.
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// NormalizeEmail lowercases and trims; returns "" for blank input.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
