/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"fmt"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/PoetCoderJun/video-auto-cut/pkg/utils/timeutil"
)

const (
	balanceQuery = `SELECT COALESCE(SUM(delta), 0) FROM ` + TPCreditLedger + ` WHERE user_id = ?`
	insertLedgerQuery = `INSERT OR IGNORE INTO ` + TPCreditLedger + ` (user_id, delta, reason, job_id, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
)

// Balance is the sum of all ledger deltas for the user. Invariant: it
// never goes negative, enforced by the insert paths.
func Balance(ctx context.Context, q sqlx.QueryerContext, userID string) (int, error) {
	var balance int
	if err := sqlx.GetContext(ctx, q, &balance, balanceQuery, userID); err != nil {
		return 0, fmt.Errorf("failed to sum ledger for %s: %v", userID, err)
	}
	return balance, nil
}

// SelectLedger retrieves ledger entries matching the query conditions,
// newest first.
func SelectLedger(ctx context.Context, q sqlx.QueryerContext, query sqrl.Sqlizer, limit int) ([]*LedgerEntry, error) {
	builder := sqrl.StatementBuilder.PlaceholderFormat(sqrl.Question).
		Select("*").From(TPCreditLedger).OrderBy("entry_id DESC")
	if query != nil {
		builder = builder.Where(query)
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select ledger query: %v", err)
	}

	var entries []*LedgerEntry
	if err := sqlx.SelectContext(ctx, q, &entries, sql, args...); err != nil {
		return nil, fmt.Errorf("failed to select ledger entries: %v", err)
	}
	return entries, nil
}

// RecentLedger returns the user's newest entries, most recent first.
func RecentLedger(ctx context.Context, q sqlx.QueryerContext, userID string, limit int) ([]*LedgerEntry, error) {
	if limit < 1 {
		limit = 1
	}
	return SelectLedger(ctx, q, sqrl.Eq{"user_id": userID}, limit)
}

// InsertLedgerEntry appends one double-entry row. The UNIQUE constraint
// on idempotency_key makes re-runs no-ops; the return value reports
// whether this call actually inserted.
func InsertLedgerEntry(ctx context.Context, q sqlx.ExtContext, userID string, delta int, reason, jobID, idempotencyKey string) (bool, error) {
	var jobVal interface{}
	if jobID != "" {
		jobVal = jobID
	}
	res, err := q.ExecContext(ctx, insertLedgerQuery, userID, delta, reason, jobVal, idempotencyKey, timeutil.NowISO())
	if err != nil {
		return false, fmt.Errorf("failed to insert ledger entry %s: %v", idempotencyKey, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (c *Client) Balance(ctx context.Context, userID string) (int, error) {
	return Balance(ctx, c.db, userID)
}

func (c *Client) RecentLedger(ctx context.Context, userID string, limit int) ([]*LedgerEntry, error) {
	return RecentLedger(ctx, c.db, userID, limit)
}
