/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package apiutils

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/PoetCoderJun/video-auto-cut/pkg/errors"
	"github.com/PoetCoderJun/video-auto-cut/pkg/utils/stringutil"
)

const requestIDKey = "request_id"

// Response is the envelope every endpoint returns. Exactly one of Data
// and Error is set.
type Response struct {
	RequestID string      `json:"request_id"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorBody  `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewRequestID returns a fresh correlation id, e.g. req_9f2c01ab3d.
func NewRequestID() string {
	return "req_" + stringutil.RandHex(10)
}

// RequestIDMiddleware stamps every request with a correlation id before
// any handler runs, so error envelopes emitted from middleware carry one
// too.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(requestIDKey, NewRequestID())
		c.Next()
	}
}

// Logger logs one line per request: method, path, status, latency, and
// the correlation id.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		klog.Infof("%s %s %d %v request_id=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(),
			time.Since(start).Round(time.Microsecond), RequestID(c))
	}
}

// RequestID returns the id stamped by RequestIDMiddleware, minting one
// on the spot if the middleware did not run (tests, bare routers).
func RequestID(c *gin.Context) string {
	if id, ok := c.Get(requestIDKey); ok {
		if s, ok := id.(string); ok && s != "" {
			return s
		}
	}
	id := NewRequestID()
	c.Set(requestIDKey, id)
	return id
}

// Handle adapts a (data, error) handler to gin. Success is wrapped as
// {"request_id", "data"}; failure goes through AbortWithApiError.
func Handle(c *gin.Context, f func(c *gin.Context) (interface{}, error)) {
	data, err := f(c)
	if err != nil {
		AbortWithApiError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{RequestID: RequestID(c), Data: data})
}

// HandleCreated is Handle with a 201 on success.
func HandleCreated(c *gin.Context, f func(c *gin.Context) (interface{}, error)) {
	data, err := f(c)
	if err != nil {
		AbortWithApiError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{RequestID: RequestID(c), Data: data})
}

// AbortWithApiError renders err as an error envelope and aborts the
// chain. Unrecognized errors are masked as INTERNAL_ERROR; their detail
// goes to the log, not the wire.
func AbortWithApiError(c *gin.Context, err error) {
	code := errors.HTTPCodeForError(err)
	reason := errors.ReasonForError(err)
	message := errors.MessageForError(err)
	if !errors.IsStatusError(err) {
		klog.ErrorS(err, "unhandled error", "request_id", RequestID(c), "path", c.Request.URL.Path)
		message = "internal error"
	}
	c.AbortWithStatusJSON(code, Response{
		RequestID: RequestID(c),
		Error:     &ErrorBody{Code: reason, Message: message},
	})
}
