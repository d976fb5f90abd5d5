/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/PoetCoderJun/video-auto-cut/pkg/apiutils"
	apierrors "github.com/PoetCoderJun/video-auto-cut/pkg/errors"
	"github.com/PoetCoderJun/video-auto-cut/pkg/handlers/authority"
	"github.com/PoetCoderJun/video-auto-cut/pkg/handlers/types"
)

// VerifyCoupon previews a code without consuming it. Public: the
// activation page runs before login.
func (h *Handler) VerifyCoupon(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		req, err := bindCouponRequest(c)
		if err != nil {
			return nil, err
		}
		ctx, cancel := h.requestContext(c)
		defer cancel()
		return h.billing.PreviewCoupon(ctx, req.Code)
	})
}

// RedeemCoupon consumes the code, grants its credits, and activates
// the caller.
func (h *Handler) RedeemCoupon(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		req, err := bindCouponRequest(c)
		if err != nil {
			return nil, err
		}
		identity := authority.CurrentUser(c)
		ctx, cancel := h.requestContext(c)
		defer cancel()
		return h.billing.RedeemCoupon(ctx, identity.UserID, identity.Email, req.Code)
	})
}

// Me returns the caller's profile with balance and recent ledger.
func (h *Handler) Me(c *gin.Context) {
	apiutils.Handle(c, func(c *gin.Context) (interface{}, error) {
		identity := authority.CurrentUser(c)
		ctx, cancel := h.requestContext(c)
		defer cancel()
		return h.billing.Profile(ctx, identity.UserID, identity.Email)
	})
}

func bindCouponRequest(c *gin.Context) (*types.CouponRequest, error) {
	var req types.CouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, apierrors.NewBadRequest("invalid request body")
	}
	return &req, nil
}
