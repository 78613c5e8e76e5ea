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

// Package token obtains, caches and renews the credential tokens that prove
// authentication to the GIS service. A Manager resolves exactly one of the
// supported schemes: federated exchange through a parent connection, OAuth2,
// username/password, PKI client certificates (no token, TLS does the work)
// or anonymous.
package token

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/terravista/portal-go/internal/debug"
	"github.com/terravista/portal-go/internal/tokencache"
	"github.com/terravista/portal-go/internal/transport"
)

const (
	generateTokenPath = "/generateToken"

	formatKey  = "f"
	formatJSON = "json"

	defaultExpiration = 60 * time.Minute
)

// Scheme is the authentication scheme a set of credentials resolves to.
type Scheme int

const (
	SchemeAnonymous Scheme = iota
	SchemeUserPassword
	SchemeCertificate
	SchemeOAuth
)

func (s Scheme) String() string {
	switch s {
	case SchemeUserPassword:
		return "user-password"
	case SchemeCertificate:
		return "certificate"
	case SchemeOAuth:
		return "oauth"
	}
	return "anonymous"
}

// Credentials hold everything a Manager may need to authenticate. They are
// immutable for the life of a connection, except that a successful OAuth
// refresh replaces the refresh token.
type Credentials struct {
	Username string
	Password string

	// PEM pair or PKCS#12 bundle for PKI targets. The transport presents
	// these during the TLS handshake; the Manager issues no token call.
	CertFile string
	KeyFile  string

	ClientID     string
	RedirectURI  string
	RefreshToken string
}

// Scheme resolves which authentication scheme the credentials select.
func (c Credentials) Scheme() Scheme {
	switch {
	case c.ClientID != "":
		return SchemeOAuth
	case c.Username != "":
		return SchemeUserPassword
	case c.CertFile != "":
		return SchemeCertificate
	}
	return SchemeAnonymous
}

// Config for a Manager.
type Config struct {
	// Root is the REST root of the target service.
	Root string

	// Server marks the target as a standalone server rather than a portal.
	// Servers identify the token client by request IP, portals by referer.
	Server bool

	Referer     string
	Expiration  time.Duration
	Credentials Credentials

	// Prompt acquires an OAuth2 authorization code interactively. Required
	// for the authorization-code flow only.
	Prompt CodePrompt

	// Parent, when set, turns every login into a federated exchange: the
	// parent's token is presented to the parent's token endpoint together
	// with this service's URL.
	Parent *Manager
}

// Manager resolves tokens for one connection. Safe for concurrent use; the
// mutex serialises the read-then-write of a token refresh.
type Manager struct {
	mu        sync.Mutex
	transport *transport.Transport
	cache     *tokencache.Cache

	root       string
	server     bool
	referer    string
	expiration time.Duration
	creds      Credentials
	prompt     CodePrompt
	parent     *Manager

	// HTTP challenge scheme discovered by a 401 probe, recorded once
	httpScheme string
}

// NewManager creates a token Manager that issues its token requests through
// the given transport.
func NewManager(tr *transport.Transport, cfg Config) *Manager {
	expiration := cfg.Expiration
	if expiration <= 0 {
		expiration = defaultExpiration
	}
	return &Manager{
		transport:  tr,
		cache:      tokencache.New(expiration, expiration),
		root:       cfg.Root,
		server:     cfg.Server,
		referer:    cfg.Referer,
		expiration: expiration,
		creds:      cfg.Credentials,
		prompt:     cfg.Prompt,
		parent:     cfg.Parent,
	}
}

// Root returns the REST root of the target service.
func (m *Manager) Root() string {
	return m.root
}

// Scheme returns the resolved authentication scheme.
func (m *Manager) Scheme() Scheme {
	return m.creds.Scheme()
}

// RefreshToken returns the OAuth refresh token currently held, which a
// successful authorization-code login will have replaced.
func (m *Manager) RefreshToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds.RefreshToken
}

// Token returns the live token for this connection, logging in lazily on
// first use. Anonymous and certificate schemes always return the empty
// string and proceed without a token.
func (m *Manager) Token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token, ok := m.cache.Get(m.root); ok {
		return token, nil
	}
	return m.login()
}

// Login acquires a fresh token with the configured credentials.
func (m *Manager) Login() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.login()
}

// Relogin invalidates the current token and acquires a new one. There is at
// most one live token per connection; the old one is gone once this returns.
func (m *Manager) Relogin() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Remove(m.root)
	return m.login()
}

// Logout clears the cached token. The transport is stateless per call, so
// there is no session to close.
func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Remove(m.root)
}

// login must be called with the mutex held.
func (m *Manager) login() (string, error) {
	switch {
	case m.parent != nil:
		return m.federatedToken()
	case m.creds.Scheme() == SchemeOAuth:
		return m.oauthToken()
	case m.creds.Scheme() == SchemeUserPassword:
		return m.passwordToken()
	}
	// certificate and anonymous schemes carry no token
	return "", nil
}

// tokenResponse is the payload of a generateToken call.
type tokenResponse struct {
	Token string `json:"token"`
	// Expires is an epoch timestamp in milliseconds
	Expires int64 `json:"expires"`
	SSL     bool  `json:"ssl"`
}

// serviceFault is the error envelope a token endpoint may answer with.
type serviceFault struct {
	Error *struct {
		Code    int      `json:"code"`
		Message string   `json:"message"`
		Details []string `json:"details"`
	} `json:"error"`
}

// passwordToken requests a token with username and password. Portals
// identify the client by referer, standalone servers by request IP.
func (m *Manager) passwordToken() (string, error) {
	params := url.Values{}
	params.Set("username", m.creds.Username)
	params.Set("password", m.creds.Password)
	params.Set("expiration", strconv.Itoa(int(m.expiration.Minutes())))
	if m.server {
		params.Set("client", "requestip")
	} else {
		params.Set("client", "referer")
		params.Set("referer", m.referer)
	}
	reply, err := m.tokenRequest(m.root+generateTokenPath, params)
	if err != nil {
		return "", err
	}
	m.cache.Put(m.root, reply.Token, expiresTime(reply.Expires))
	return reply.Token, nil
}

// federatedToken exchanges the parent's token for a token scoped to this
// service, through the parent's token endpoint.
func (m *Manager) federatedToken() (string, error) {
	parentToken, err := m.parent.Token()
	if err != nil {
		return "", fmt.Errorf("federated exchange: %w", err)
	}
	params := url.Values{}
	params.Set("token", parentToken)
	params.Set("serverUrl", m.root)
	params.Set("expiration", strconv.Itoa(int(m.expiration.Minutes())))
	params.Set("referer", m.referer)
	reply, err := m.tokenRequest(m.parent.Root()+generateTokenPath, params)
	if err != nil {
		return "", err
	}
	m.cache.Put(m.root, reply.Token, expiresTime(reply.Expires))
	return reply.Token, nil
}

// tokenRequest posts to a token endpoint and decodes the reply. Token calls
// never pass through the retry orchestrator; a failure here is final.
func (m *Manager) tokenRequest(endpoint string, params url.Values) (*tokenResponse, error) {
	params.Set(formatKey, formatJSON)
	response, err := m.transport.Send(&transport.Request{
		Method: http.MethodPost,
		URL:    endpoint,
		Params: params,
	})
	if err != nil {
		return nil, err
	}

	var fault serviceFault
	if err := json.Unmarshal(response.Body, &fault); err == nil && fault.Error != nil {
		return nil, fmt.Errorf("token request refused (code %d): %s", fault.Error.Code, fault.Error.Message)
	}
	if response.Status != http.StatusOK {
		return nil, &transport.Error{Status: response.Status, Header: response.Header}
	}
	var reply tokenResponse
	if err := json.Unmarshal(response.Body, &reply); err != nil {
		return nil, fmt.Errorf("token request: undecodable reply: %w", err)
	}
	if reply.Token == "" {
		return nil, fmt.Errorf("token request: reply carried no token")
	}
	debug.Logger.Printf("token acquired from %s, expires %v", endpoint, expiresTime(reply.Expires))
	return &reply, nil
}

// expiresTime converts the epoch-millisecond expiry of a token reply.
func expiresTime(expires int64) time.Time {
	if expires <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(expires)
}
