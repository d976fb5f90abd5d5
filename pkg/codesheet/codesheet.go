/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

// Package codesheet loads coupon codes from the legacy CSV sheet. The
// coupon_codes table is the primary source; the sheet only backfills
// codes distributed before the table existed.
package codesheet

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dimchansky/utfbom"
	"k8s.io/klog/v2"
)

// SheetCode is one parsed row.
type SheetCode struct {
	Code      string
	Credits   int
	MaxUses   int // 0 means unlimited
	ExpiresAt string
	Status    string
	Source    string
}

var headerAliases = map[string][]string{
	"code":       {"code", "coupon_code", "邀请码", "兑换码"},
	"credits":    {"credits", "额度", "次数"},
	"max_uses":   {"max_uses", "max_redemptions", "最大使用次数"},
	"expires_at": {"expires_at", "过期时间"},
	"status":     {"status", "状态"},
	"source":     {"source", "渠道", "来源"},
}

const fetchTimeout = 6 * time.Second

// Cache holds the process-wide code map with TTL expiry, guarded by a
// mutex. The map is replaced wholesale on refresh.
type Cache struct {
	source string
	ttl    time.Duration
	client *http.Client

	mu        sync.Mutex
	byCode    map[string]SheetCode
	expiresAt time.Time
}

// New builds a cache over the given source (http(s) URL, file:// URL,
// or local path). An empty source yields a cache that never matches.
func New(source string, ttl time.Duration) *Cache {
	if ttl < 5*time.Second {
		ttl = 5 * time.Second
	}
	return &Cache{
		source: strings.TrimSpace(source),
		ttl:    ttl,
		client: &http.Client{Timeout: fetchTimeout},
	}
}

// Configured reports whether a sheet source is set.
func (c *Cache) Configured() bool { return c.source != "" }

// Get returns the sheet row for code, or nil when absent. A refresh
// failure with a warm cache falls back to the stale map.
func (c *Cache) Get(code string) (*SheetCode, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" || !c.Configured() {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Now().After(c.expiresAt) || len(c.byCode) == 0 {
		mapping, err := c.fetch()
		if err != nil {
			if len(c.byCode) == 0 {
				return nil, err
			}
			klog.ErrorS(err, "coupon sheet refresh failed, serving stale cache")
		} else {
			c.byCode = mapping
			c.expiresAt = time.Now().Add(c.ttl)
		}
	}

	if item, ok := c.byCode[normalized]; ok {
		copied := item
		return &copied, nil
	}
	return nil, nil
}

func (c *Cache) fetch() (map[string]SheetCode, error) {
	var reader io.ReadCloser
	switch {
	case strings.HasPrefix(c.source, "http://"), strings.HasPrefix(c.source, "https://"):
		resp, err := c.client.Get(c.source)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch coupon csv: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to fetch coupon csv: status %d", resp.StatusCode)
		}
		reader = resp.Body
	case strings.HasPrefix(c.source, "file://"):
		f, err := os.Open(strings.TrimPrefix(c.source, "file://"))
		if err != nil {
			return nil, fmt.Errorf("failed to read coupon csv: %v", err)
		}
		reader = f
	default:
		f, err := os.Open(c.source)
		if err != nil {
			return nil, fmt.Errorf("failed to read coupon csv: %v", err)
		}
		reader = f
	}
	defer reader.Close()
	return Parse(reader)
}

// Parse decodes a coupon CSV, tolerating a UTF-8 BOM and localized
// header names. Rows without a code or positive credits are skipped.
func Parse(r io.Reader) (map[string]SheetCode, error) {
	reader := csv.NewReader(utfbom.SkipOnly(r))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read coupon csv header: %v", err)
	}
	columns := resolveColumns(header)

	result := map[string]SheetCode{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read coupon csv row: %v", err)
		}
		if item := parseRow(record, columns); item != nil {
			result[item.Code] = *item
		}
	}
	return result, nil
}

func resolveColumns(header []string) map[string]int {
	columns := map[string]int{}
	for idx, name := range header {
		normalized := strings.ToLower(strings.TrimSpace(name))
		for field, aliases := range headerAliases {
			if _, done := columns[field]; done {
				continue
			}
			for _, alias := range aliases {
				if normalized == alias {
					columns[field] = idx
					break
				}
			}
		}
	}
	return columns
}

func parseRow(record []string, columns map[string]int) *SheetCode {
	pick := func(field string) string {
		idx, ok := columns[field]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	code := strings.ToUpper(pick("code"))
	if code == "" {
		return nil
	}
	credits, err := strconv.Atoi(pick("credits"))
	if err != nil || credits <= 0 {
		return nil
	}

	maxUses := 0
	if raw := pick("max_uses"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			maxUses = parsed
		}
	}
	status := strings.ToUpper(pick("status"))
	if status == "" {
		status = "ACTIVE"
	}

	return &SheetCode{
		Code:      code,
		Credits:   credits,
		MaxUses:   maxUses,
		ExpiresAt: pick("expires_at"),
		Status:    status,
		Source:    pick("source"),
	}
}
