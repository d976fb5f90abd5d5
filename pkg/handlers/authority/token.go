/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package authority

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"k8s.io/klog/v2"

	"github.com/PoetCoderJun/video-auto-cut/pkg/config"
	apierrors "github.com/PoetCoderJun/video-auto-cut/pkg/errors"
)

// Token failures all surface the same neutral message; the real cause
// goes to the log only.
const msgAuthInvalid = "登录状态无效，请重新登录"

const (
	jwksFetchTimeout = 5 * time.Second
	jwksCacheTTL     = 5 * time.Minute
)

type jwksDocument struct {
	Keys []jwksKey `json:"keys"`
}

type jwksKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// keySet caches the provider's RSA public keys by kid. A lookup for an
// unknown kid refreshes the document at most once per TTL, so key
// rotation is picked up without hammering the endpoint.
type keySet struct {
	url        string
	httpClient *http.Client

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func newKeySet(url string) *keySet {
	return &keySet{
		url:        url,
		httpClient: &http.Client{Timeout: jwksFetchTimeout},
		keys:       map[string]*rsa.PublicKey{},
	}
}

func (k *keySet) key(kid string) (*rsa.PublicKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if key, ok := k.keys[kid]; ok && time.Since(k.fetchedAt) < jwksCacheTTL {
		return key, nil
	}
	if err := k.refresh(); err != nil {
		// a stale key beats no key during provider hiccups
		if key, ok := k.keys[kid]; ok {
			klog.ErrorS(err, "jwks refresh failed, using cached key", "kid", kid)
			return key, nil
		}
		return nil, err
	}
	if key, ok := k.keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("unknown signing key: %s", kid)
}

// refresh is called with the lock held.
func (k *keySet) refresh() error {
	resp, err := k.httpClient.Get(k.url)
	if err != nil {
		return fmt.Errorf("failed to fetch jwks %s: %v", k.url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint %s returned %d", k.url, resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("failed to decode jwks document: %v", err)
	}

	keys := map[string]*rsa.PublicKey{}
	for _, raw := range doc.Keys {
		if raw.Kty != "RSA" || raw.Kid == "" {
			continue
		}
		key, err := parseRSAKey(raw)
		if err != nil {
			klog.ErrorS(err, "skip undecodable jwks key", "kid", raw.Kid)
			continue
		}
		keys[raw.Kid] = key
	}
	k.keys = keys
	k.fetchedAt = time.Now()
	return nil
}

func parseRSAKey(raw jwksKey) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(raw.N)
	if err != nil {
		return nil, fmt.Errorf("bad modulus: %v", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(raw.E)
	if err != nil {
		return nil, fmt.Errorf("bad exponent: %v", err)
	}
	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e <= 0 {
		return nil, fmt.Errorf("bad exponent value")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}

// Verifier parses and validates bearer tokens.
type Verifier struct {
	keys   *keySet
	parser *jwt.Parser
}

// NewVerifier builds a verifier from the auth configuration. Issuer and
// audience checks are enforced only when configured.
func NewVerifier() *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithLeeway(config.GetAuthJwtLeeway()),
		jwt.WithExpirationRequired(),
	}
	if issuer := config.GetAuthIssuer(); issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience := config.GetAuthAudience(); audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &Verifier{
		keys:   newKeySet(config.GetAuthJwksURL()),
		parser: jwt.NewParser(opts...),
	}
}

// Verify validates the token and extracts the caller identity. Any
// failure maps to UNAUTHORIZED with a neutral message.
func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	claims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, v.keyFunc)
	if err != nil || !token.Valid {
		klog.ErrorS(err, "token verification failed")
		return nil, apierrors.NewUnauthorized(msgAuthInvalid)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, apierrors.NewUnauthorized(msgAuthInvalid)
	}
	identity := &Identity{UserID: sub}
	if email, ok := claims["email"].(string); ok {
		identity.Email = email
	}
	return identity, nil
}

func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("token carries no kid header")
	}
	return v.keys.key(kid)
}
