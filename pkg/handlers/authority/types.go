/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

// Package authority authenticates API requests. Tokens are RS256 JWTs
// verified against the identity provider's JWKS document; when auth is
// disabled every request runs as a fixed development user.
package authority

import "github.com/gin-gonic/gin"

const identityKey = "auth_identity"

// Development identity used when WEB_AUTH_ENABLED is off.
const (
	DevUserID = "user_dev_local"
	DevEmail  = "dev@localhost"
)

// Identity is the authenticated caller, as extracted from the token.
type Identity struct {
	UserID string
	Email  string
}

func setIdentity(c *gin.Context, identity *Identity) {
	c.Set(identityKey, identity)
}

// CurrentUser returns the identity stamped by Authorize. Handlers only
// run behind the middleware, so a missing identity yields an empty one
// rather than a panic.
func CurrentUser(c *gin.Context) *Identity {
	if v, ok := c.Get(identityKey); ok {
		if identity, ok := v.(*Identity); ok && identity != nil {
			return identity
		}
	}
	return &Identity{}
}
