/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package codesheet

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnglishHeaders(t *testing.T) {
	csv := "code,credits,max_uses,expires_at,status,source\n" +
		"welcome10,10,1,2027-01-01T00:00:00Z,active,ops\n" +
		"broken,,,,\n" +
		"zero,0,,,,\n"
	codes, err := Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, codes, 1)

	item := codes["WELCOME10"]
	assert.Equal(t, "WELCOME10", item.Code)
	assert.Equal(t, 10, item.Credits)
	assert.Equal(t, 1, item.MaxUses)
	assert.Equal(t, "2027-01-01T00:00:00Z", item.ExpiresAt)
	assert.Equal(t, "ACTIVE", item.Status)
	assert.Equal(t, "ops", item.Source)
}

func TestParseLocalizedHeadersWithBOM(t *testing.T) {
	csv := "\ufeff邀请码,额度,最大使用次数,过期时间,状态,来源\n" +
		"vip2026,5,,,,微信\n"
	codes, err := Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, codes, 1)

	item := codes["VIP2026"]
	assert.Equal(t, 5, item.Credits)
	assert.Equal(t, 0, item.MaxUses)
	assert.Equal(t, "ACTIVE", item.Status)
	assert.Equal(t, "微信", item.Source)
}

func TestCacheFromLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codes.csv")
	require.NoError(t, os.WriteFile(path, []byte("code,credits\nA1,3\n"), 0o644))

	cache := New(path, time.Minute)
	item, err := cache.Get(" a1 ")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, 3, item.Credits)

	item, err = cache.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestCacheFromHTTPAndStaleness(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte("code,credits\nB2,7\n"))
	}))
	defer srv.Close()

	cache := New(srv.URL, time.Minute)
	for i := 0; i < 3; i++ {
		item, err := cache.Get("B2")
		require.NoError(t, err)
		require.NotNil(t, item)
	}
	// TTL not expired, fetched once
	assert.Equal(t, 1, hits)
}

func TestCacheServesStaleOnFetchFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codes.csv")
	require.NoError(t, os.WriteFile(path, []byte("code,credits\nC3,2\n"), 0o644))

	cache := New(path, time.Minute)
	_, err := cache.Get("C3")
	require.NoError(t, err)

	// source disappears, warm cache still answers after expiry
	require.NoError(t, os.Remove(path))
	cache.expiresAt = time.Now().Add(-time.Second)
	item, err := cache.Get("C3")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, 2, item.Credits)
}

func TestUnconfiguredCache(t *testing.T) {
	cache := New("", time.Minute)
	assert.False(t, cache.Configured())
	item, err := cache.Get("ANY")
	require.NoError(t, err)
	assert.Nil(t, item)
}
