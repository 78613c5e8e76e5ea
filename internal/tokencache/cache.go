/*
 * Copyright 2024-2026 Terravista
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package tokencache caches service tokens keyed by the service root, so that
// a connection holds at most one live token per target at a time.
package tokencache

import (
	"time"

	"github.com/patrickmn/go-cache"
	"gopkg.in/square/go-jose.v2/jwt"
)

// Cache for service tokens
type Cache struct {
	store *cache.Cache
}

// New creates a new token cache
func New(defaultExpiration, cleanupInterval time.Duration) *Cache {
	return &Cache{store: cache.New(defaultExpiration, cleanupInterval)}
}

// unsafeTokenExpiry deserialises the expiry claim of a JWT-shaped token
// without verifying the signature
func unsafeTokenExpiry(rawToken string) (expiry time.Time, ok bool) {
	token, err := jwt.ParseSigned(rawToken)
	if err != nil {
		return expiry, false
	}
	var claims jwt.Claims
	if err := token.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return expiry, false
	}
	if claims.Expiry == nil {
		return expiry, false
	}
	return claims.Expiry.Time(), true
}

// Put the token in the cache with the given key. A zero expiry falls back to
// the expiry claim of JWT-shaped tokens, then to the cache default.
func (c *Cache) Put(key, token string, expiry time.Time) {
	if expiry.IsZero() {
		if claimed, ok := unsafeTokenExpiry(token); ok && !claimed.IsZero() {
			expiry = claimed
		}
	}
	if expiry.IsZero() {
		c.store.SetDefault(key, token)
		return
	}
	// go-cache reads a negative TTL as "never expire"; a token that is
	// already past its expiry must not be cached at all
	ttl := time.Until(expiry)
	if ttl <= 0 {
		return
	}
	c.store.Set(key, token, ttl)
}

// Get a token from the cache
func (c *Cache) Get(key string) (token string, ok bool) {
	value, ok := c.store.Get(key)
	if !ok {
		return "", ok
	}
	token, ok = value.(string)
	return token, ok
}

// Remove the token with the given key. Obtaining a new token for the same
// target always removes the previous one first.
func (c *Cache) Remove(key string) {
	c.store.Delete(key)
}
