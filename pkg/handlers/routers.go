/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/PoetCoderJun/video-auto-cut/pkg/apiutils"
	"github.com/PoetCoderJun/video-auto-cut/pkg/config"
	apierrors "github.com/PoetCoderJun/video-auto-cut/pkg/errors"
	"github.com/PoetCoderJun/video-auto-cut/pkg/handlers/authority"
)

// InitHttpHandlers wires the engine: logging, recovery, request ids,
// CORS, and every route.
func InitHttpHandlers(h *Handler) *gin.Engine {
	engine := gin.New()
	engine.Use(apiutils.Logger(), gin.Recovery(), apiutils.RequestIDMiddleware(), corsMiddleware())
	engine.NoRoute(func(c *gin.Context) {
		apiutils.AbortWithApiError(c, apierrors.NewNotFound("route not found"))
	})
	InitRouters(engine, h)
	return engine
}

// InitRouters registers all routes on the engine. Split out so tests
// can mount the API on a bare engine.
func InitRouters(e *gin.Engine, h *Handler) {
	e.GET("/healthz", h.Healthz)

	noAuthGroup := e.Group("/public")
	noAuthGroup.POST("/coupons/verify", h.VerifyCoupon)

	authed := e.Group("/", authority.Authorize())
	authed.POST("/auth/coupon/redeem", h.RedeemCoupon)
	authed.GET("/me", h.Me)

	jobs := authed.Group("/jobs")
	jobs.POST("", h.CreateJob)
	jobs.GET("/:job_id", h.GetJob)
	jobs.POST("/:job_id/oss-upload-url", h.CreateOSSUploadURL)
	jobs.POST("/:job_id/audio-oss-ready", h.AudioOSSReady)
	jobs.POST("/:job_id/audio", h.UploadAudio)
	jobs.POST("/:job_id/step1/run", h.RunStep1)
	jobs.GET("/:job_id/step1", h.GetStep1)
	jobs.PUT("/:job_id/step1/confirm", h.ConfirmStep1)
	jobs.POST("/:job_id/step2/run", h.RunStep2)
	jobs.GET("/:job_id/step2", h.GetStep2)
	jobs.PUT("/:job_id/step2/confirm", h.ConfirmStep2)
	jobs.GET("/:job_id/render/config", h.GetRenderConfig)
	jobs.GET("/:job_id/download", h.Download)
}

func corsMiddleware() gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: config.GetCORSAllowMethods(),
		AllowHeaders: config.GetCORSAllowHeaders(),
		MaxAge:       12 * time.Hour,
	}
	origins := config.GetCORSAllowOrigins()
	if len(origins) == 1 && origins[0] == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
