/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package apiutils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PoetCoderJun/video-auto-cut/pkg/errors"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

var requestIDPattern = regexp.MustCompile(`^req_[0-9a-f]{10}$`)

func newRouter() *gin.Engine {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	return r
}

func TestNewRequestID(t *testing.T) {
	assert.Regexp(t, requestIDPattern, NewRequestID())
	assert.NotEqual(t, NewRequestID(), NewRequestID())
}

func TestHandleSuccessEnvelope(t *testing.T) {
	r := newRouter()
	r.GET("/ping", func(c *gin.Context) {
		Handle(c, func(c *gin.Context) (interface{}, error) {
			return gin.H{"status": "ok"}, nil
		})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		RequestID string          `json:"request_id"`
		Data      map[string]any  `json:"data"`
		Error     json.RawMessage `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Regexp(t, requestIDPattern, resp.RequestID)
	assert.Equal(t, "ok", resp.Data["status"])
	assert.Nil(t, resp.Error)
}

func TestHandleErrorEnvelope(t *testing.T) {
	r := newRouter()
	r.GET("/missing", func(c *gin.Context) {
		Handle(c, func(c *gin.Context) (interface{}, error) {
			return nil, errors.NewNotFound("job not found")
		})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Regexp(t, requestIDPattern, resp.RequestID)
	assert.Nil(t, resp.Data)
	require.NotNil(t, resp.Error)
	assert.Equal(t, errors.NotFound, resp.Error.Code)
	assert.Equal(t, "job not found", resp.Error.Message)
}

func TestHandleMasksUnknownErrors(t *testing.T) {
	r := newRouter()
	r.GET("/boom", func(c *gin.Context) {
		Handle(c, func(c *gin.Context) (interface{}, error) {
			return nil, assert.AnError
		})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, errors.InternalError, resp.Error.Code)
	assert.Equal(t, "internal error", resp.Error.Message)
}

func TestHandleCreated(t *testing.T) {
	r := newRouter()
	r.POST("/jobs", func(c *gin.Context) {
		HandleCreated(c, func(c *gin.Context) (interface{}, error) {
			return gin.H{"job_id": "job_1"}, nil
		})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/jobs", nil))
	assert.Equal(t, http.StatusCreated, w.Code)
}
