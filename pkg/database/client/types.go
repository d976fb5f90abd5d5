/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package client

import "database/sql"

// User statuses.
const (
	UserStatusPendingCoupon = "PENDING_COUPON"
	UserStatusActive        = "ACTIVE"
)

// Coupon statuses.
const (
	CouponStatusActive   = "ACTIVE"
	CouponStatusDisabled = "DISABLED"
)

// Ledger reasons.
const (
	ReasonCouponRedeem    = "COUPON_REDEEM"
	ReasonJobStep1Success = "JOB_STEP1_SUCCESS"
)

type User struct {
	UserID      string         `db:"user_id"`
	Email       sql.NullString `db:"email"`
	Status      string         `db:"status"`
	ActivatedAt sql.NullString `db:"activated_at"`
	CreatedAt   string         `db:"created_at"`
	UpdatedAt   string         `db:"updated_at"`
}

// Activated reports whether the user has redeemed an invite.
func (u *User) Activated() bool {
	return u.Status == UserStatusActive || u.ActivatedAt.Valid
}

type CouponCode struct {
	CouponID  int64          `db:"coupon_id"`
	Code      string         `db:"code"`
	Credits   int            `db:"credits"`
	UsedCount int            `db:"used_count"`
	ExpiresAt sql.NullString `db:"expires_at"`
	Status    string         `db:"status"`
	Source    sql.NullString `db:"source"`
	CreatedAt string         `db:"created_at"`
	UpdatedAt string         `db:"updated_at"`
}

type LedgerEntry struct {
	EntryID        int64          `db:"entry_id"`
	UserID         string         `db:"user_id"`
	Delta          int            `db:"delta"`
	Reason         string         `db:"reason"`
	JobID          sql.NullString `db:"job_id"`
	IdempotencyKey string         `db:"idempotency_key"`
	CreatedAt      string         `db:"created_at"`
}
