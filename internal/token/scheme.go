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

package token

import (
	"net/http"
	"strings"

	"github.com/terravista/portal-go/internal/debug"
)

// SchemeUnsupportedError indicates a 401 probe discovered an HTTP challenge
// scheme this client cannot satisfy, such as Negotiate on a host without
// Kerberos support.
type SchemeUnsupportedError struct {
	Scheme string
}

func (e *SchemeUnsupportedError) Error() string {
	return "unsupported HTTP authentication scheme: " + e.Scheme
}

// ChallengeScheme extracts the first challenge scheme named by a 401
// response's WWW-Authenticate header.
func ChallengeScheme(header http.Header) string {
	challenge := strings.TrimSpace(header.Get("WWW-Authenticate"))
	if challenge == "" {
		return ""
	}
	if i := strings.IndexAny(challenge, " ,"); i > 0 {
		challenge = challenge[:i]
	}
	return challenge
}

// ApplyChallenge records the HTTP authentication scheme demanded by a 401
// response. Basic challenges are satisfied with the held username and
// password from then on; everything else is unsupported. This is a one-time
// scheme discovery, not a retry.
func (m *Manager) ApplyChallenge(header http.Header) error {
	scheme := ChallengeScheme(header)
	if scheme == "" {
		return &SchemeUnsupportedError{Scheme: "none offered"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.httpScheme = scheme
	if strings.EqualFold(scheme, "Basic") && m.creds.Username != "" {
		debug.Logger.Printf("switching to HTTP Basic authentication for %s", m.root)
		m.transport.UseBasicAuth(m.creds.Username, m.creds.Password)
		return nil
	}
	return &SchemeUnsupportedError{Scheme: scheme}
}

// HTTPScheme returns the challenge scheme recorded by ApplyChallenge, if any.
func (m *Manager) HTTPScheme() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.httpScheme
}
