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
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dchest/uniuri"
	"github.com/terravista/portal-go/internal/debug"
	"github.com/terravista/portal-go/internal/transport"
)

const (
	oauthAuthorizePath = "/oauth2/authorize"
	oauthTokenPath     = "/oauth2/token"

	// out-of-band redirect: the authorization code is displayed to the
	// user instead of being delivered to a callback server
	defaultRedirectURI = "urn:ietf:wg:oauth:2.0:oob"
)

// CodePrompt acquires an OAuth2 authorization code for the given authorize
// URL, typically by sending the user to a browser and reading the code back.
type CodePrompt func(authorizeURL string) (code string, err error)

// oauthTokenResponse is the payload of an oauth2/token call.
type oauthTokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// oauthToken renews the access token with the held refresh token, or runs
// the full authorization-code exchange when none is held yet.
func (m *Manager) oauthToken() (string, error) {
	if m.creds.RefreshToken != "" {
		return m.oauthRefresh()
	}
	return m.oauthAuthorizationCode()
}

// oauthRefresh exchanges the refresh token for a fresh access token. Any
// failure is surfaced; an expired refresh token is for the caller to handle.
func (m *Manager) oauthRefresh() (string, error) {
	params := url.Values{}
	params.Set("client_id", m.creds.ClientID)
	params.Set("grant_type", "refresh_token")
	params.Set("refresh_token", m.creds.RefreshToken)
	reply, err := m.oauthRequest(params)
	if err != nil {
		return "", fmt.Errorf("oauth refresh: %w", err)
	}
	if reply.RefreshToken != "" {
		m.creds.RefreshToken = reply.RefreshToken
	}
	m.cache.Put(m.root, reply.AccessToken, expiresInTime(reply.ExpiresIn))
	return reply.AccessToken, nil
}

// oauthAuthorizationCode runs the interactive authorization-code exchange
// and stores the granted refresh token for future renewals.
func (m *Manager) oauthAuthorizationCode() (string, error) {
	if m.prompt == nil {
		return "", fmt.Errorf("oauth: no refresh token held and no authorization code prompt configured")
	}
	redirect := m.creds.RedirectURI
	if redirect == "" {
		redirect = defaultRedirectURI
	}

	authorize := url.Values{}
	authorize.Set("client_id", m.creds.ClientID)
	authorize.Set("response_type", "code")
	authorize.Set("redirect_uri", redirect)
	authorize.Set("state", uniuri.New())
	code, err := m.prompt(m.root + oauthAuthorizePath + "?" + authorize.Encode())
	if err != nil {
		return "", fmt.Errorf("oauth authorization code prompt: %w", err)
	}

	params := url.Values{}
	params.Set("client_id", m.creds.ClientID)
	params.Set("grant_type", "authorization_code")
	params.Set("code", code)
	params.Set("redirect_uri", redirect)
	reply, err := m.oauthRequest(params)
	if err != nil {
		return "", fmt.Errorf("oauth code exchange: %w", err)
	}
	if reply.RefreshToken != "" {
		m.creds.RefreshToken = reply.RefreshToken
	}
	m.cache.Put(m.root, reply.AccessToken, expiresInTime(reply.ExpiresIn))
	debug.Logger.Printf("oauth authorization granted for client %s", m.creds.ClientID)
	return reply.AccessToken, nil
}

func (m *Manager) oauthRequest(params url.Values) (*oauthTokenResponse, error) {
	params.Set(formatKey, formatJSON)
	response, err := m.transport.Send(&transport.Request{
		Method: http.MethodPost,
		URL:    m.root + oauthTokenPath,
		Params: params,
	})
	if err != nil {
		return nil, err
	}
	var fault serviceFault
	if err := json.Unmarshal(response.Body, &fault); err == nil && fault.Error != nil {
		return nil, fmt.Errorf("refused (code %d): %s", fault.Error.Code, fault.Error.Message)
	}
	if response.Status != http.StatusOK {
		return nil, &transport.Error{Status: response.Status, Header: response.Header}
	}
	var reply oauthTokenResponse
	if err := json.Unmarshal(response.Body, &reply); err != nil {
		return nil, fmt.Errorf("undecodable reply: %w", err)
	}
	if reply.AccessToken == "" {
		return nil, fmt.Errorf("reply carried no access token")
	}
	return &reply, nil
}

// expiresInTime converts a relative expires_in of seconds.
func expiresInTime(seconds int64) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	return time.Now().Add(time.Duration(seconds) * time.Second)
}
