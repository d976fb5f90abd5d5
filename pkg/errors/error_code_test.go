/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReasonForError(t *testing.T) {
	assert.Equal(t, NotFound, ReasonForError(NewNotFound("job not found")))
	assert.Equal(t, InvalidStepState, ReasonForError(NewInvalidStepState("bad state")))
	assert.Equal(t, InternalError, ReasonForError(fmt.Errorf("boom")))
}

func TestHTTPCodeMapping(t *testing.T) {
	cases := []struct {
		err  *StatusError
		code int
	}{
		{NewBadRequest("x"), http.StatusBadRequest},
		{NewUnauthorized("x"), http.StatusUnauthorized},
		{NewForbidden("x"), http.StatusForbidden},
		{NewNotFound("x"), http.StatusNotFound},
		{NewInvalidStepState("x"), http.StatusConflict},
		{NewUploadTooLarge("x"), http.StatusRequestEntityTooLarge},
		{NewUnsupportedAudioFormat("x"), http.StatusUnprocessableEntity},
		{NewCouponCodeInvalid("x"), http.StatusUnprocessableEntity},
		{NewCouponCodeExpired("x"), http.StatusUnprocessableEntity},
		{NewCouponCodeExhausted("x"), http.StatusUnprocessableEntity},
		{NewInternalError("x"), http.StatusInternalServerError},
	}
	for _, val := range cases {
		assert.Equal(t, val.code, val.err.HTTPCode, val.err.Reason)
		assert.Equal(t, val.code, HTTPCodeForError(val.err))
	}
}

func TestMessageForError(t *testing.T) {
	// the wire message carries no code prefix; Error() keeps it for logs
	err := NewInvalidStepState("额度不足，请先兑换邀请码后重试")
	assert.Equal(t, "额度不足，请先兑换邀请码后重试", MessageForError(err))
	assert.Equal(t, "INVALID_STEP_STATE: 额度不足，请先兑换邀请码后重试", err.Error())

	wrapped := fmt.Errorf("redeem: %w", NewCouponCodeInvalid("邀请码无效"))
	assert.Equal(t, "邀请码无效", MessageForError(wrapped))

	assert.Equal(t, "boom", MessageForError(fmt.Errorf("boom")))
}

func TestWrappedStatusError(t *testing.T) {
	inner := NewCouponCodeExhausted("used up")
	wrapped := fmt.Errorf("redeem: %w", inner)
	assert.True(t, IsCouponError(wrapped))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPCodeForError(wrapped))
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsNotFound(NewNotFound("x")))
	assert.True(t, IsInvalidStepState(NewInvalidStepState("x")))
	assert.True(t, IsUnauthorized(NewUnauthorized("x")))
	assert.False(t, IsNotFound(NewForbidden("x")))
	assert.True(t, IsInternal(fmt.Errorf("plain")))
}
