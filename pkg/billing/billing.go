/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

// Package billing enforces the credit economy: coupon redemption,
// balance gating, and the per-job STEP1 debit. All mutations run in
// single BEGIN IMMEDIATE transactions; idempotency keys on the ledger
// are the only cross-restart coordination primitive.
package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"k8s.io/klog/v2"

	"github.com/PoetCoderJun/video-auto-cut/pkg/codesheet"
	"github.com/PoetCoderJun/video-auto-cut/pkg/database/client"
	apierrors "github.com/PoetCoderJun/video-auto-cut/pkg/errors"
	"github.com/PoetCoderJun/video-auto-cut/pkg/utils/stringutil"
)

// User-visible messages, localized the way the product ships.
const (
	MsgNotActivated      = "账号尚未完成邀请码激活，请先激活后再继续"
	MsgCouponEmpty       = "兑换码不能为空"
	MsgCouponInvalid     = "兑换码无效，请检查后重试"
	MsgCouponExpired     = "兑换码已过期，请联系管理员获取新码"
	MsgCouponExhausted   = "兑换码已用完，请联系管理员获取新码"
	MsgCouponUnavailable = "兑换码服务暂不可用，请稍后再试"
	MsgInviteInvalid     = "邀请码无效，请检查后重试"
	MsgInviteExpired     = "邀请码已过期，请联系管理员获取新码"
	MsgInviteUsed        = "邀请码已被使用，请联系管理员获取新码"
	MsgNoCredits         = "额度不足，请先兑换邀请码后重试"
)

// ErrInsufficientCredits marks a STEP1 debit that would drive the
// balance negative; the worker maps it to a recoverable job error.
var ErrInsufficientCredits = errors.New("INSUFFICIENT_CREDITS")

const recentLedgerLimit = 20

// Service glues the primary store and the legacy CSV sheet together.
type Service struct {
	db    *client.Client
	sheet *codesheet.Cache
}

func New(db *client.Client, sheet *codesheet.Cache) *Service {
	return &Service{db: db, sheet: sheet}
}

// RedeemResult is the coupon redemption response payload.
type RedeemResult struct {
	AlreadyActivated bool `json:"already_activated"`
	CouponRedeemed   bool `json:"coupon_redeemed"`
	GrantedCredits   int  `json:"granted_credits"`
	Balance          int  `json:"balance"`
}

// LedgerView is one ledger entry as shown to the user.
type LedgerView struct {
	EntryID        int64   `json:"entry_id"`
	Delta          int     `json:"delta"`
	Reason         string  `json:"reason"`
	JobID          *string `json:"job_id"`
	IdempotencyKey string  `json:"idempotency_key"`
	CreatedAt      string  `json:"created_at"`
}

// Credits is the balance block of the profile payload.
type Credits struct {
	Balance      int          `json:"balance"`
	RecentLedger []LedgerView `json:"recent_ledger"`
}

// Profile is the GET /me payload.
type Profile struct {
	UserID      string  `json:"user_id"`
	Email       *string `json:"email"`
	Status      string  `json:"status"`
	ActivatedAt *string `json:"activated_at"`
	Credits     Credits `json:"credits"`
}

// CouponPreview is the public verify payload.
type CouponPreview struct {
	Valid   bool   `json:"valid"`
	Code    string `json:"code"`
	Credits int    `json:"credits"`
}

// HasAvailableCredits is the read-only pre-check used before STEP1.
func (s *Service) HasAvailableCredits(ctx context.Context, userID string, required int) (bool, error) {
	if required < 1 {
		required = 1
	}
	balance, err := s.db.Balance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance >= required, nil
}

// RequireActiveUser materializes the user and rejects anyone who has
// not redeemed an invite yet.
func (s *Service) RequireActiveUser(ctx context.Context, userID, email string) (*client.User, error) {
	user, err := s.db.EnsureUser(ctx, userID, email)
	if err != nil {
		return nil, err
	}
	if !user.Activated() {
		return nil, apierrors.NewForbidden(MsgNotActivated)
	}
	return user, nil
}

// Profile materializes the user and returns their profile with balance
// and the most recent ledger entries.
func (s *Service) Profile(ctx context.Context, userID, email string) (*Profile, error) {
	user, err := s.db.EnsureUser(ctx, userID, email)
	if err != nil {
		return nil, err
	}
	balance, err := s.db.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries, err := s.db.RecentLedger(ctx, userID, recentLedgerLimit)
	if err != nil {
		return nil, err
	}

	profile := &Profile{
		UserID:  user.UserID,
		Status:  user.Status,
		Credits: Credits{Balance: balance, RecentLedger: make([]LedgerView, 0, len(entries))},
	}
	if user.Email.Valid {
		profile.Email = &user.Email.String
	}
	if user.ActivatedAt.Valid {
		profile.ActivatedAt = &user.ActivatedAt.String
	}
	for _, entry := range entries {
		view := LedgerView{
			EntryID:        entry.EntryID,
			Delta:          entry.Delta,
			Reason:         entry.Reason,
			IdempotencyKey: entry.IdempotencyKey,
			CreatedAt:      entry.CreatedAt,
		}
		if entry.JobID.Valid {
			jobID := entry.JobID.String
			view.JobID = &jobID
		}
		profile.Credits.RecentLedger = append(profile.Credits.RecentLedger, view)
	}
	return profile, nil
}

// PreviewCoupon validates a code without consuming it. The table is
// checked first, then the legacy sheet.
func (s *Service) PreviewCoupon(ctx context.Context, code string) (*CouponPreview, error) {
	normalized := stringutil.NormalizeCode(code)
	if normalized == "" {
		return nil, apierrors.NewCouponCodeInvalid(MsgInviteInvalid)
	}

	coupon, err := s.db.GetCoupon(ctx, normalized)
	if err != nil {
		klog.ErrorS(err, "coupon preview lookup failed", "code", normalized)
		return nil, apierrors.NewCouponCodeInvalid(MsgCouponUnavailable)
	}
	if coupon != nil {
		if coupon.UsedCount > 0 || coupon.Status != client.CouponStatusActive {
			return nil, apierrors.NewCouponCodeExhausted(MsgInviteUsed)
		}
		if err := checkExpiry(coupon.ExpiresAt.String, MsgInviteExpired); err != nil {
			return nil, err
		}
		if coupon.Credits <= 0 {
			return nil, apierrors.NewCouponCodeInvalid(MsgInviteInvalid)
		}
		return &CouponPreview{Valid: true, Code: coupon.Code, Credits: coupon.Credits}, nil
	}

	sheetCode, err := s.lookupSheet(normalized)
	if err != nil {
		return nil, apierrors.NewCouponCodeInvalid(MsgCouponUnavailable)
	}
	if sheetCode == nil {
		return nil, apierrors.NewCouponCodeInvalid(MsgInviteInvalid)
	}
	if sheetCode.Status != client.CouponStatusActive {
		return nil, apierrors.NewCouponCodeExhausted(MsgInviteUsed)
	}
	if err := checkExpiry(sheetCode.ExpiresAt, MsgInviteExpired); err != nil {
		return nil, err
	}
	return &CouponPreview{Valid: true, Code: sheetCode.Code, Credits: sheetCode.Credits}, nil
}

// RedeemCoupon runs the double-entry redemption: consume the single-use
// coupon, grant its credits, and activate the user, all in one
// transaction. A user who is already activated gets a no-op success.
func (s *Service) RedeemCoupon(ctx context.Context, userID, email, code string) (*RedeemResult, error) {
	normalized := stringutil.NormalizeCode(code)
	if normalized == "" {
		return nil, apierrors.NewCouponCodeInvalid(MsgCouponEmpty)
	}

	var result *RedeemResult
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		user, err := client.EnsureUser(ctx, tx, userID, email)
		if err != nil {
			return err
		}
		if user.Activated() {
			balance, err := client.Balance(ctx, tx, userID)
			if err != nil {
				return err
			}
			result = &RedeemResult{AlreadyActivated: true, CouponRedeemed: true, Balance: balance}
			return nil
		}

		coupon, err := s.loadCouponForRedeem(ctx, tx, normalized)
		if err != nil {
			return err
		}

		consumed, err := client.ConsumeCoupon(ctx, tx, normalized)
		if err != nil {
			return err
		}
		if !consumed {
			return apierrors.NewCouponCodeExhausted(MsgCouponExhausted)
		}
		inserted, err := client.InsertLedgerEntry(ctx, tx, userID, coupon.Credits,
			client.ReasonCouponRedeem, "", "coupon:"+normalized)
		if err != nil {
			return err
		}
		if !inserted {
			return apierrors.NewCouponCodeExhausted(MsgCouponExhausted)
		}
		if err := client.ActivateUser(ctx, tx, userID); err != nil {
			return err
		}
		balance, err := client.Balance(ctx, tx, userID)
		if err != nil {
			return err
		}
		result = &RedeemResult{CouponRedeemed: true, GrantedCredits: coupon.Credits, Balance: balance}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// loadCouponForRedeem resolves the coupon row, backfilling it from the
// legacy sheet on first sight so the single-use update has a row to
// hit. Validates status, expiry, and credits.
func (s *Service) loadCouponForRedeem(ctx context.Context, tx *sqlx.Tx, code string) (*client.CouponCode, error) {
	coupon, err := client.GetCoupon(ctx, tx, code)
	if err != nil {
		klog.ErrorS(err, "coupon lookup failed", "code", code)
		return nil, apierrors.NewCouponCodeInvalid(MsgCouponUnavailable)
	}
	if coupon == nil {
		sheetCode, sheetErr := s.lookupSheet(code)
		if sheetErr != nil {
			return nil, apierrors.NewCouponCodeInvalid(MsgCouponUnavailable)
		}
		if sheetCode == nil {
			return nil, apierrors.NewCouponCodeInvalid(MsgCouponInvalid)
		}
		seed := &client.CouponCode{
			Code:    sheetCode.Code,
			Credits: sheetCode.Credits,
			Status:  sheetCode.Status,
		}
		if sheetCode.ExpiresAt != "" {
			seed.ExpiresAt = sql.NullString{String: sheetCode.ExpiresAt, Valid: true}
		}
		if sheetCode.Source != "" {
			seed.Source = sql.NullString{String: sheetCode.Source, Valid: true}
		}
		if err := client.InsertCoupon(ctx, tx, seed); err != nil {
			return nil, err
		}
		coupon, err = client.GetCoupon(ctx, tx, code)
		if err != nil || coupon == nil {
			return nil, apierrors.NewCouponCodeInvalid(MsgCouponUnavailable)
		}
	}

	if coupon.Status != client.CouponStatusActive || coupon.UsedCount > 0 {
		return nil, apierrors.NewCouponCodeExhausted(MsgCouponExhausted)
	}
	if err := checkExpiry(coupon.ExpiresAt.String, MsgCouponExpired); err != nil {
		return nil, err
	}
	if coupon.Credits <= 0 {
		return nil, apierrors.NewCouponCodeInvalid(MsgCouponInvalid)
	}
	return coupon, nil
}

// ConsumeStep1Credit charges one credit for a successful STEP1 run.
// Re-running the same job is a no-op thanks to the idempotency key; a
// fresh debit that would drive the balance negative aborts with
// ErrInsufficientCredits.
func (s *Service) ConsumeStep1Credit(ctx context.Context, userID, jobID string) error {
	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		key := fmt.Sprintf("job:%s:step1_success", jobID)
		inserted, err := client.InsertLedgerEntry(ctx, tx, userID, -1,
			client.ReasonJobStep1Success, jobID, key)
		if err != nil {
			return err
		}
		if !inserted {
			// prior successful run already paid
			return nil
		}
		balance, err := client.Balance(ctx, tx, userID)
		if err != nil {
			return err
		}
		if balance < 0 {
			return ErrInsufficientCredits
		}
		return nil
	})
}

func (s *Service) lookupSheet(code string) (*codesheet.SheetCode, error) {
	if s.sheet == nil || !s.sheet.Configured() {
		return nil, nil
	}
	return s.sheet.Get(code)
}

func checkExpiry(expiresAt, message string) error {
	if expiresAt == "" {
		return nil
	}
	parsed, err := parseExpiry(expiresAt)
	if err != nil {
		// unparsable expiry fails closed
		return apierrors.NewCouponCodeInvalid(MsgCouponInvalid)
	}
	if parsed.Before(time.Now().UTC()) {
		return apierrors.NewCouponCodeExpired(message)
	}
	return nil
}

func parseExpiry(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized expiry %q", raw)
}
