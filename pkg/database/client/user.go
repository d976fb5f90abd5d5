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
	selectUserQuery = `SELECT * FROM ` + TPUsers + ` WHERE user_id = ?`
	insertUserQuery = `INSERT INTO ` + TPUsers + ` (user_id, email, status, activated_at, created_at, updated_at)
		VALUES (?, ?, ?, NULL, ?, ?)`
	updateUserEmailQuery = `UPDATE ` + TPUsers + ` SET email = ?, updated_at = ? WHERE user_id = ?`
	activateUserQuery    = `UPDATE ` + TPUsers + ` SET status = ?, activated_at = COALESCE(activated_at, ?), updated_at = ? WHERE user_id = ?`
)

// GetUser returns nil when the user does not exist.
func GetUser(ctx context.Context, q sqlx.QueryerContext, userID string) (*User, error) {
	var user User
	err := sqlx.GetContext(ctx, q, &user, selectUserQuery, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select user %s: %v", userID, err)
	}
	return &user, nil
}

// EnsureUser materializes the user on first sight and refreshes the
// stored email when the token carries a different one.
func EnsureUser(ctx context.Context, q sqlx.ExtContext, userID, email string) (*User, error) {
	normalized := stringutil.NormalizeEmail(email)
	now := timeutil.NowISO()

	user, err := GetUser(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		var emailVal interface{}
		if normalized != "" {
			emailVal = normalized
		}
		if _, err := q.ExecContext(ctx, insertUserQuery, userID, emailVal, UserStatusPendingCoupon, now, now); err != nil {
			return nil, fmt.Errorf("failed to insert user %s: %v", userID, err)
		}
		return GetUser(ctx, q, userID)
	}
	if normalized != "" && user.Email.String != normalized {
		if _, err := q.ExecContext(ctx, updateUserEmailQuery, normalized, now, userID); err != nil {
			return nil, fmt.Errorf("failed to update user email %s: %v", userID, err)
		}
		user.Email = sql.NullString{String: normalized, Valid: true}
		user.UpdatedAt = now
	}
	return user, nil
}

// ActivateUser marks the user ACTIVE, keeping the first activation
// timestamp on repeat calls.
func ActivateUser(ctx context.Context, q sqlx.ExtContext, userID string) error {
	now := timeutil.NowISO()
	if _, err := q.ExecContext(ctx, activateUserQuery, UserStatusActive, now, now, userID); err != nil {
		return fmt.Errorf("failed to activate user %s: %v", userID, err)
	}
	return nil
}

// GetUser is the connection-scoped convenience form.
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	return GetUser(ctx, c.db, userID)
}

// EnsureUser materializes a user outside any caller transaction.
func (c *Client) EnsureUser(ctx context.Context, userID, email string) (*User, error) {
	var user *User
	err := c.WithTx(ctx, func(tx *sqlx.Tx) error {
		var txErr error
		user, txErr = EnsureUser(ctx, tx, userID, email)
		return txErr
	})
	return user, err
}
