/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Wire error codes. Each maps to exactly one HTTP status (see the New*
// constructors below); the HTTP boundary never invents codes of its own.
const (
	BadRequest             = "BAD_REQUEST"
	Unauthorized           = "UNAUTHORIZED"
	Forbidden              = "FORBIDDEN"
	NotFound               = "NOT_FOUND"
	InvalidStepState       = "INVALID_STEP_STATE"
	UploadTooLarge         = "UPLOAD_TOO_LARGE"
	UnsupportedAudioFormat = "UNSUPPORTED_AUDIO_FORMAT"
	CouponCodeInvalid      = "COUPON_CODE_INVALID"
	CouponCodeExpired      = "COUPON_CODE_EXPIRED"
	CouponCodeExhausted    = "COUPON_CODE_EXHAUSTED"
	InternalError          = "INTERNAL_ERROR"
)

// StatusError carries a wire error code plus the HTTP status it travels
// under. Handlers return it as a plain error; the API layer unwraps it.
type StatusError struct {
	HTTPCode int
	Reason   string
	Message  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// ReasonForError returns the wire code of err, or InternalError for
// anything that is not a StatusError.
func ReasonForError(err error) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Reason
	}
	return InternalError
}

// MessageForError returns the user-facing message of err, without the
// wire code prefix Error() adds for logs. Non-status errors return
// their Error() text.
func MessageForError(err error) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Message
	}
	return err.Error()
}

// HTTPCodeForError returns the HTTP status of err, or 500 for anything
// that is not a StatusError.
func HTTPCodeForError(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.HTTPCode
	}
	return http.StatusInternalServerError
}

func IsStatusError(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr)
}

func IsBadRequest(err error) bool {
	return ReasonForError(err) == BadRequest
}

func IsUnauthorized(err error) bool {
	return ReasonForError(err) == Unauthorized
}

func IsForbidden(err error) bool {
	return ReasonForError(err) == Forbidden
}

func IsNotFound(err error) bool {
	return ReasonForError(err) == NotFound
}

func IsInvalidStepState(err error) bool {
	return ReasonForError(err) == InvalidStepState
}

func IsInternal(err error) bool {
	return ReasonForError(err) == InternalError
}

func IsCouponError(err error) bool {
	switch ReasonForError(err) {
	case CouponCodeInvalid, CouponCodeExpired, CouponCodeExhausted:
		return true
	}
	return false
}

func NewBadRequest(message string) *StatusError {
	return &StatusError{HTTPCode: http.StatusBadRequest, Reason: BadRequest, Message: message}
}

func NewUnauthorized(message string) *StatusError {
	return &StatusError{HTTPCode: http.StatusUnauthorized, Reason: Unauthorized, Message: message}
}

func NewForbidden(message string) *StatusError {
	return &StatusError{HTTPCode: http.StatusForbidden, Reason: Forbidden, Message: message}
}

func NewNotFound(message string) *StatusError {
	return &StatusError{HTTPCode: http.StatusNotFound, Reason: NotFound, Message: message}
}

func NewInvalidStepState(message string) *StatusError {
	return &StatusError{HTTPCode: http.StatusConflict, Reason: InvalidStepState, Message: message}
}

func NewUploadTooLarge(message string) *StatusError {
	return &StatusError{HTTPCode: http.StatusRequestEntityTooLarge, Reason: UploadTooLarge, Message: message}
}

func NewUnsupportedAudioFormat(message string) *StatusError {
	return &StatusError{HTTPCode: http.StatusUnprocessableEntity, Reason: UnsupportedAudioFormat, Message: message}
}

func NewCouponCodeInvalid(message string) *StatusError {
	return &StatusError{HTTPCode: http.StatusUnprocessableEntity, Reason: CouponCodeInvalid, Message: message}
}

func NewCouponCodeExpired(message string) *StatusError {
	return &StatusError{HTTPCode: http.StatusUnprocessableEntity, Reason: CouponCodeExpired, Message: message}
}

func NewCouponCodeExhausted(message string) *StatusError {
	return &StatusError{HTTPCode: http.StatusUnprocessableEntity, Reason: CouponCodeExhausted, Message: message}
}

func NewInternalError(message string) *StatusError {
	return &StatusError{HTTPCode: http.StatusInternalServerError, Reason: InternalError, Message: message}
}
