/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package billing

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PoetCoderJun/video-auto-cut/pkg/codesheet"
	"github.com/PoetCoderJun/video-auto-cut/pkg/database/client"
	dbutils "github.com/PoetCoderJun/video-auto-cut/pkg/database/utils"
	apierrors "github.com/PoetCoderJun/video-auto-cut/pkg/errors"
)

func newService(t *testing.T, sheet *codesheet.Cache) (*Service, *client.Client) {
	t.Helper()
	db, err := dbutils.ConnectLocal(filepath.Join(t.TempDir(), "billing.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	c := client.NewClientWithDB(db)
	require.NoError(t, c.EnsureSchema(context.Background()))
	return New(c, sheet), c
}

func seedCoupon(t *testing.T, c *client.Client, code string, credits int, expiresAt string) {
	t.Helper()
	coupon := &client.CouponCode{Code: code, Credits: credits}
	if expiresAt != "" {
		coupon.ExpiresAt = sql.NullString{String: expiresAt, Valid: true}
	}
	require.NoError(t, c.InsertCoupon(context.Background(), coupon))
}

func TestRedeemCouponHappyPath(t *testing.T) {
	s, c := newService(t, nil)
	ctx := context.Background()
	seedCoupon(t, c, "WELCOME10", 10, "")

	result, err := s.RedeemCoupon(ctx, "user_1", "u1@example.com", " welcome10 ")
	require.NoError(t, err)
	assert.False(t, result.AlreadyActivated)
	assert.True(t, result.CouponRedeemed)
	assert.Equal(t, 10, result.GrantedCredits)
	assert.Equal(t, 10, result.Balance)

	user, err := c.GetUser(ctx, "user_1")
	require.NoError(t, err)
	assert.True(t, user.Activated())

	coupon, err := c.GetCoupon(ctx, "WELCOME10")
	require.NoError(t, err)
	assert.Equal(t, 1, coupon.UsedCount)
	assert.Equal(t, client.CouponStatusDisabled, coupon.Status)
}

func TestRedeemCouponSecondUserExhausted(t *testing.T) {
	s, c := newService(t, nil)
	ctx := context.Background()
	seedCoupon(t, c, "ONCE", 5, "")

	_, err := s.RedeemCoupon(ctx, "user_1", "", "ONCE")
	require.NoError(t, err)

	_, err = s.RedeemCoupon(ctx, "user_2", "", "ONCE")
	require.Error(t, err)
	assert.Equal(t, apierrors.CouponCodeExhausted, apierrors.ReasonForError(err))

	// exactly one grant in the ledger for that coupon
	balance1, err := c.Balance(ctx, "user_1")
	require.NoError(t, err)
	balance2, err := c.Balance(ctx, "user_2")
	require.NoError(t, err)
	assert.Equal(t, 5, balance1)
	assert.Equal(t, 0, balance2)
}

func TestRedeemCouponAlreadyActivatedUser(t *testing.T) {
	s, c := newService(t, nil)
	ctx := context.Background()
	seedCoupon(t, c, "FIRST", 3, "")
	seedCoupon(t, c, "SECOND", 3, "")

	_, err := s.RedeemCoupon(ctx, "user_1", "", "FIRST")
	require.NoError(t, err)

	result, err := s.RedeemCoupon(ctx, "user_1", "", "SECOND")
	require.NoError(t, err)
	assert.True(t, result.AlreadyActivated)
	assert.Equal(t, 0, result.GrantedCredits)
	assert.Equal(t, 3, result.Balance)

	// SECOND is untouched
	coupon, err := c.GetCoupon(ctx, "SECOND")
	require.NoError(t, err)
	assert.Equal(t, 0, coupon.UsedCount)
}

func TestRedeemCouponValidation(t *testing.T) {
	s, c := newService(t, nil)
	ctx := context.Background()

	_, err := s.RedeemCoupon(ctx, "user_1", "", "  ")
	assert.Equal(t, apierrors.CouponCodeInvalid, apierrors.ReasonForError(err))

	_, err = s.RedeemCoupon(ctx, "user_1", "", "UNKNOWN")
	assert.Equal(t, apierrors.CouponCodeInvalid, apierrors.ReasonForError(err))

	seedCoupon(t, c, "OLD", 5, time.Now().UTC().Add(-time.Hour).Format(time.RFC3339))
	_, err = s.RedeemCoupon(ctx, "user_1", "", "OLD")
	assert.Equal(t, apierrors.CouponCodeExpired, apierrors.ReasonForError(err))

	seedCoupon(t, c, "BADDATE", 5, "not-a-date")
	_, err = s.RedeemCoupon(ctx, "user_1", "", "BADDATE")
	assert.Equal(t, apierrors.CouponCodeInvalid, apierrors.ReasonForError(err))
}

func TestRedeemCouponBackfillsFromSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codes.csv")
	require.NoError(t, os.WriteFile(path, []byte("邀请码,额度\nsheet5,5\n"), 0o644))
	sheet := codesheet.New(path, time.Minute)

	s, c := newService(t, sheet)
	ctx := context.Background()

	result, err := s.RedeemCoupon(ctx, "user_1", "", "SHEET5")
	require.NoError(t, err)
	assert.Equal(t, 5, result.GrantedCredits)

	// the sheet row is now a table row, single-use like any other
	coupon, err := c.GetCoupon(ctx, "SHEET5")
	require.NoError(t, err)
	assert.Equal(t, 1, coupon.UsedCount)

	_, err = s.RedeemCoupon(ctx, "user_2", "", "SHEET5")
	assert.Equal(t, apierrors.CouponCodeExhausted, apierrors.ReasonForError(err))
}

func TestPreviewCoupon(t *testing.T) {
	s, c := newService(t, nil)
	ctx := context.Background()
	seedCoupon(t, c, "PREVIEW", 8, "")

	preview, err := s.PreviewCoupon(ctx, "preview")
	require.NoError(t, err)
	assert.True(t, preview.Valid)
	assert.Equal(t, "PREVIEW", preview.Code)
	assert.Equal(t, 8, preview.Credits)

	// preview does not consume
	coupon, err := c.GetCoupon(ctx, "PREVIEW")
	require.NoError(t, err)
	assert.Equal(t, 0, coupon.UsedCount)

	_, err = s.RedeemCoupon(ctx, "user_1", "", "PREVIEW")
	require.NoError(t, err)
	_, err = s.PreviewCoupon(ctx, "PREVIEW")
	assert.Equal(t, apierrors.CouponCodeExhausted, apierrors.ReasonForError(err))
}

func TestConsumeStep1CreditIdempotent(t *testing.T) {
	s, c := newService(t, nil)
	ctx := context.Background()
	seedCoupon(t, c, "FUND", 2, "")
	_, err := s.RedeemCoupon(ctx, "user_1", "", "FUND")
	require.NoError(t, err)

	require.NoError(t, s.ConsumeStep1Credit(ctx, "user_1", "job_a"))
	// same job pays only once
	require.NoError(t, s.ConsumeStep1Credit(ctx, "user_1", "job_a"))

	balance, err := c.Balance(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, 1, balance)

	require.NoError(t, s.ConsumeStep1Credit(ctx, "user_1", "job_b"))
	err = s.ConsumeStep1Credit(ctx, "user_1", "job_c")
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	// failed debit rolled back, balance intact
	balance, err = c.Balance(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, 0, balance)
}

func TestRequireActiveUser(t *testing.T) {
	s, c := newService(t, nil)
	ctx := context.Background()

	_, err := s.RequireActiveUser(ctx, "user_1", "u1@example.com")
	require.Error(t, err)
	assert.Equal(t, apierrors.Forbidden, apierrors.ReasonForError(err))

	seedCoupon(t, c, "GO", 1, "")
	_, err = s.RedeemCoupon(ctx, "user_1", "", "GO")
	require.NoError(t, err)

	user, err := s.RequireActiveUser(ctx, "user_1", "")
	require.NoError(t, err)
	assert.Equal(t, client.UserStatusActive, user.Status)
}

func TestProfile(t *testing.T) {
	s, c := newService(t, nil)
	ctx := context.Background()
	seedCoupon(t, c, "P10", 10, "")
	_, err := s.RedeemCoupon(ctx, "user_1", "u1@example.com", "P10")
	require.NoError(t, err)
	require.NoError(t, s.ConsumeStep1Credit(ctx, "user_1", "job_a"))

	profile, err := s.Profile(ctx, "user_1", "")
	require.NoError(t, err)
	assert.Equal(t, "user_1", profile.UserID)
	require.NotNil(t, profile.Email)
	assert.Equal(t, "u1@example.com", *profile.Email)
	assert.Equal(t, client.UserStatusActive, profile.Status)
	assert.NotNil(t, profile.ActivatedAt)
	assert.Equal(t, 9, profile.Credits.Balance)
	require.Len(t, profile.Credits.RecentLedger, 2)
	// newest first
	assert.Equal(t, -1, profile.Credits.RecentLedger[0].Delta)
	assert.Equal(t, 10, profile.Credits.RecentLedger[1].Delta)
}

func TestHasAvailableCredits(t *testing.T) {
	s, c := newService(t, nil)
	ctx := context.Background()

	ok, err := s.HasAvailableCredits(ctx, "user_1", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	seedCoupon(t, c, "C2", 2, "")
	_, err = s.RedeemCoupon(ctx, "user_1", "", "C2")
	require.NoError(t, err)

	ok, err = s.HasAvailableCredits(ctx, "user_1", 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HasAvailableCredits(ctx, "user_1", 3)
	require.NoError(t, err)
	assert.False(t, ok)
}
