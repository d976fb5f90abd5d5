/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/PoetCoderJun/video-auto-cut/pkg/utils/stringutil"
	"github.com/PoetCoderJun/video-auto-cut/pkg/utils/timeutil"
)

const (
	selectCouponQuery = `SELECT * FROM ` + TPCouponCodes + ` WHERE code = ?`
	consumeCouponQuery = `UPDATE ` + TPCouponCodes + `
		SET used_count = 1, status = ?, updated_at = ?
		WHERE code = ? AND status = ? AND used_count = 0`
	insertCouponQuery = `INSERT INTO ` + TPCouponCodes + ` (code, credits, used_count, expires_at, status, source, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?, ?, ?, ?)`
)

// GetCoupon returns nil when no coupon carries the code.
func GetCoupon(ctx context.Context, q sqlx.QueryerContext, code string) (*CouponCode, error) {
	var coupon CouponCode
	err := sqlx.GetContext(ctx, q, &coupon, selectCouponQuery, stringutil.NormalizeCode(code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select coupon: %v", err)
	}
	return &coupon, nil
}

// ConsumeCoupon performs the single-use conditional update. It returns
// false when another redemption already won the race.
func ConsumeCoupon(ctx context.Context, q sqlx.ExtContext, code string) (bool, error) {
	res, err := q.ExecContext(ctx, consumeCouponQuery,
		CouponStatusDisabled, timeutil.NowISO(), stringutil.NormalizeCode(code), CouponStatusActive)
	if err != nil {
		return false, fmt.Errorf("failed to consume coupon: %v", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// InsertCoupon seeds a coupon row; used by import tooling and tests.
func InsertCoupon(ctx context.Context, q sqlx.ExtContext, coupon *CouponCode) error {
	now := timeutil.NowISO()
	if coupon.Status == "" {
		coupon.Status = CouponStatusActive
	}
	_, err := q.ExecContext(ctx, insertCouponQuery,
		stringutil.NormalizeCode(coupon.Code), coupon.Credits, coupon.ExpiresAt,
		coupon.Status, coupon.Source, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert coupon: %v", err)
	}
	return nil
}

func (c *Client) GetCoupon(ctx context.Context, code string) (*CouponCode, error) {
	return GetCoupon(ctx, c.db, code)
}

func (c *Client) InsertCoupon(ctx context.Context, coupon *CouponCode) error {
	return c.WithTx(ctx, func(tx *sqlx.Tx) error {
		return InsertCoupon(ctx, tx, coupon)
	})
}
