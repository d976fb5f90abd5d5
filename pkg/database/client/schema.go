/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"fmt"
)

const (
	TPUsers        = "users"
	TPCouponCodes  = "coupon_codes"
	TPCreditLedger = "credit_ledger"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS ` + TPUsers + ` (
		user_id      TEXT PRIMARY KEY,
		email        TEXT,
		status       TEXT NOT NULL DEFAULT 'PENDING_COUPON',
		activated_at TEXT,
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ` + TPCouponCodes + ` (
		coupon_id  INTEGER PRIMARY KEY AUTOINCREMENT,
		code       TEXT NOT NULL UNIQUE,
		credits    INTEGER NOT NULL,
		used_count INTEGER NOT NULL DEFAULT 0,
		expires_at TEXT,
		status     TEXT NOT NULL DEFAULT 'ACTIVE',
		source     TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ` + TPCreditLedger + ` (
		entry_id        INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id         TEXT NOT NULL,
		delta           INTEGER NOT NULL,
		reason          TEXT NOT NULL,
		job_id          TEXT,
		idempotency_key TEXT NOT NULL UNIQUE,
		created_at      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_credit_ledger_user_created ON ` + TPCreditLedger + ` (user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_coupon_codes_status_created ON ` + TPCouponCodes + ` (status, created_at DESC)`,
}

// EnsureSchema creates tables and indexes if missing. Statements are
// idempotent, so running at every startup is safe.
func (c *Client) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %v", err)
		}
	}
	return c.Sync()
}
